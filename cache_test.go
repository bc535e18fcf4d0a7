package chiru

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Fuyukai/chiru/discord"
)

func TestObjectCacheWholeValueReplacement(t *testing.T) {
	client := newTestClient(t)
	cache := client.Cache

	cache.PutGuild(client.Factory.MakeGuild(discord.Guild{ID: 1, Name: "before"}))
	cache.PutGuild(client.Factory.MakeGuild(discord.Guild{ID: 1, Name: "after"}))

	guild := cache.GetGuild(1)
	require.NotNil(t, guild)
	assert.Equal(t, "after", guild.Name)
	assert.Equal(t, 1, cache.GuildCount())
}

func TestObjectCacheUpdateGuild(t *testing.T) {
	client := newTestClient(t)
	cache := client.Cache

	cache.PutGuild(client.Factory.MakeGuild(discord.Guild{ID: 1, Name: "guild"}))

	updated := cache.UpdateGuild(1, func(existing *StatefulGuild) *StatefulGuild {
		require.NotNil(t, existing)

		next := *existing
		next.Name = "renamed"

		return &next
	})

	assert.Equal(t, "renamed", updated.Name)
	assert.Equal(t, "renamed", cache.GetGuild(1).Name)

	// Returning nil leaves the cache untouched.
	result := cache.UpdateGuild(1, func(existing *StatefulGuild) *StatefulGuild {
		return nil
	})
	assert.Equal(t, "renamed", result.Name)

	// Updating a missing guild does not invent one.
	missing := cache.UpdateGuild(999, func(existing *StatefulGuild) *StatefulGuild {
		assert.Nil(t, existing)

		return nil
	})
	assert.Nil(t, missing)
	assert.Nil(t, cache.GetGuild(999))
}

func TestObjectCacheRemoveGuildEvictsChannels(t *testing.T) {
	client := newTestClient(t)
	cache := client.Cache

	guildID := discord.Snowflake(1)
	otherID := discord.Snowflake(2)

	cache.PutGuild(client.Factory.MakeGuild(discord.Guild{ID: guildID}))
	cache.PutChannel(client.Factory.MakeChannel(discord.Channel{ID: 10, GuildID: &guildID}))
	cache.PutChannel(client.Factory.MakeChannel(discord.Channel{ID: 20, GuildID: &otherID}))

	cache.RemoveGuild(guildID)

	assert.Nil(t, cache.GetGuild(guildID))
	assert.Nil(t, cache.GetChannel(10))
	assert.NotNil(t, cache.GetChannel(20))
}

func TestObjectCacheConcurrentWriters(t *testing.T) {
	client := newTestClient(t)
	cache := client.Cache

	cache.PutGuild(client.Factory.MakeGuild(discord.Guild{ID: 1}))

	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			cache.UpdateGuild(1, func(existing *StatefulGuild) *StatefulGuild {
				next := *existing
				next.MemberCount++

				return &next
			})
		}()
	}

	wg.Wait()

	assert.EqualValues(t, 50, cache.GetGuild(1).MemberCount)
}

func TestObjectCacheGuildsSnapshot(t *testing.T) {
	client := newTestClient(t)
	cache := client.Cache

	cache.PutGuild(client.Factory.MakeGuild(discord.Guild{ID: 1}))
	cache.PutGuild(client.Factory.MakeGuild(discord.Guild{ID: 2}))

	assert.Len(t, cache.Guilds(), 2)
}
