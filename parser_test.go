package chiru

import (
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Fuyukai/chiru/discord"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()

	client, err := NewClient(zerolog.Nop(), NewConfiguration("test-token"))
	require.NoError(t, err)

	return client
}

func dispatchFrame(shardID int32, name, body string) GatewayDispatch {
	return GatewayDispatch{
		gatewayEvent: gatewayEvent{ShardID: shardID},
		EventName:    name,
		Body:         json.RawMessage(body),
	}
}

func parse(client *Client, event GatewayDispatch) []DispatchedEvent {
	return client.Parser.Parse(&EventContext{
		Client:       client,
		DispatchName: event.EventName,
		ShardID:      event.Shard(),
	}, event)
}

func TestParseUnknownDispatchProducesNothing(t *testing.T) {
	client := newTestClient(t)

	events := parse(client, dispatchFrame(0, "SOME_FUTURE_EVENT", `{"answer":42}`))
	assert.Empty(t, events)
}

func TestParseReadyWithoutGuildsIsImmediatelyReady(t *testing.T) {
	client := newTestClient(t)

	events := parse(client, dispatchFrame(0, "READY", `{"session_id":"abc","guilds":[]}`))

	require.Len(t, events, 2)
	assert.Equal(t, Connected{ShardID: 0}, events[0])
	assert.Equal(t, ShardReady{ShardID: 0}, events[1])
}

func TestParseGuildStreamingOrder(t *testing.T) {
	client := newTestClient(t)

	events := parse(client, dispatchFrame(0, "READY",
		`{"session_id":"abc","guilds":[{"id":"100","unavailable":true},{"id":"200","unavailable":true}]}`))
	require.Len(t, events, 1)
	assert.Equal(t, Connected{ShardID: 0}, events[0])

	events = parse(client, dispatchFrame(0, "GUILD_CREATE", `{"id":"100","name":"first"}`))
	require.Len(t, events, 1)
	assert.IsType(t, GuildStreamed{}, events[0])

	// The last streamed guild also fires ShardReady, in that order.
	events = parse(client, dispatchFrame(0, "GUILD_CREATE", `{"id":"200","name":"second"}`))
	require.Len(t, events, 2)
	assert.IsType(t, GuildStreamed{}, events[0])
	assert.Equal(t, ShardReady{ShardID: 0}, events[1])

	// A guild arriving after the stream finished is a fresh join.
	events = parse(client, dispatchFrame(0, "GUILD_CREATE", `{"id":"300","name":"third"}`))
	require.Len(t, events, 1)
	assert.IsType(t, GuildJoined{}, events[0])
}

func TestParseGuildAvailableAfterOutage(t *testing.T) {
	client := newTestClient(t)

	events := parse(client, dispatchFrame(0, "GUILD_CREATE", `{"id":"100","name":"guild"}`))
	require.Len(t, events, 1)
	assert.IsType(t, GuildJoined{}, events[0])

	events = parse(client, dispatchFrame(0, "GUILD_DELETE", `{"id":"100","unavailable":true}`))
	require.Len(t, events, 1)
	assert.Equal(t, GuildUnavailable{GuildID: 100}, events[0])

	// Still cached through the outage.
	require.NotNil(t, client.Cache.GetGuild(100))

	events = parse(client, dispatchFrame(0, "GUILD_CREATE", `{"id":"100","name":"guild"}`))
	require.Len(t, events, 1)
	assert.IsType(t, GuildAvailable{}, events[0])
}

func TestParseGuildLeftEvictsCache(t *testing.T) {
	client := newTestClient(t)

	parse(client, dispatchFrame(0, "GUILD_CREATE",
		`{"id":"100","name":"guild","channels":[{"id":"500","type":0,"name":"general"}]}`))

	require.NotNil(t, client.Cache.GetGuild(100))
	require.NotNil(t, client.Cache.GetChannel(500))

	events := parse(client, dispatchFrame(0, "GUILD_DELETE", `{"id":"100"}`))
	require.Len(t, events, 1)
	assert.Equal(t, GuildLeft{GuildID: 100}, events[0])

	assert.Nil(t, client.Cache.GetGuild(100))
	assert.Nil(t, client.Cache.GetChannel(500))
}

func TestParseMessageDeleteBulkIsSingleEvent(t *testing.T) {
	client := newTestClient(t)

	events := parse(client, dispatchFrame(0, "MESSAGE_DELETE_BULK",
		`{"ids":["1","2","3"],"channel_id":"500","guild_id":"100"}`))

	require.Len(t, events, 1)

	bulk, ok := events[0].(MessageBulkDeleted)
	require.True(t, ok)

	assert.Equal(t, []discord.Snowflake{1, 2, 3}, bulk.MessageIDs)
	assert.Equal(t, discord.Snowflake(500), bulk.ChannelID)
	assert.Equal(t, discord.Snowflake(100), bulk.GuildID)

	singles := bulk.AsSingleEvents()
	require.Len(t, singles, 3)
	assert.Equal(t, MessageDeleted{MessageID: 2, ChannelID: 500, GuildID: 100}, singles[1])
}

func TestParseChannelOfUnknownTypeIsIgnored(t *testing.T) {
	client := newTestClient(t)

	events := parse(client, dispatchFrame(0, "CHANNEL_CREATE", `{"id":"500","type":99}`))

	assert.Empty(t, events)
	assert.Nil(t, client.Cache.GetChannel(500))
}

func TestParseChannelUpdateCarriesPrevious(t *testing.T) {
	client := newTestClient(t)

	parse(client, dispatchFrame(0, "CHANNEL_CREATE", `{"id":"500","type":0,"name":"before"}`))

	events := parse(client, dispatchFrame(0, "CHANNEL_UPDATE", `{"id":"500","type":0,"name":"after"}`))
	require.Len(t, events, 1)

	updated, ok := events[0].(ChannelUpdated)
	require.True(t, ok)

	require.NotNil(t, updated.Previous)
	assert.Equal(t, "before", updated.Previous.Name)
	assert.Equal(t, "after", updated.Channel.Name)
}

func TestParseGuildEmojisUpdateCarriesPrevious(t *testing.T) {
	client := newTestClient(t)

	parse(client, dispatchFrame(0, "GUILD_CREATE",
		`{"id":"100","name":"guild","emojis":[{"id":"900","name":"old"}]}`))

	events := parse(client, dispatchFrame(0, "GUILD_EMOJIS_UPDATE",
		`{"guild_id":"100","emojis":[{"id":"901","name":"new"}]}`))
	require.Len(t, events, 1)

	update, ok := events[0].(GuildEmojiUpdated)
	require.True(t, ok)

	require.Len(t, update.Previous, 1)
	assert.Equal(t, "old", update.Previous[0].Name)
	require.Len(t, update.Emojis, 1)
	assert.Equal(t, "new", update.Emojis[0].Name)
}

func TestParseMessageCreateIsStateful(t *testing.T) {
	client := newTestClient(t)

	parse(client, dispatchFrame(0, "CHANNEL_CREATE", `{"id":"500","type":0,"name":"general"}`))

	events := parse(client, dispatchFrame(0, "MESSAGE_CREATE",
		`{"id":"1","channel_id":"500","content":"hello","author":{"id":"2","username":"someone"}}`))
	require.Len(t, events, 1)

	created, ok := events[0].(MessageCreated)
	require.True(t, ok)

	assert.Equal(t, "hello", created.Message.Content)
	require.NotNil(t, created.Message.Channel())
	assert.Equal(t, "general", created.Message.Channel().Name)
}

func TestParseMemberPayloadWithoutMemberIsSkipped(t *testing.T) {
	client := newTestClient(t)

	parse(client, dispatchFrame(0, "GUILD_CREATE", `{"id":"100","name":"guild"}`))

	// A member event with only a guild id is malformed; it must be dropped
	// without disturbing the stream or the cache.
	events := parse(client, dispatchFrame(0, "GUILD_MEMBER_ADD", `{"guild_id":"100"}`))
	assert.Empty(t, events)

	events = parse(client, dispatchFrame(0, "GUILD_MEMBER_UPDATE", `{"guild_id":"100"}`))
	assert.Empty(t, events)

	guild := client.Cache.GetGuild(100)
	require.NotNil(t, guild)
	assert.Empty(t, guild.Members)
}

func TestParseMemberLifecycle(t *testing.T) {
	client := newTestClient(t)

	parse(client, dispatchFrame(0, "GUILD_CREATE", `{"id":"100","name":"guild","member_count":1}`))

	events := parse(client, dispatchFrame(0, "GUILD_MEMBER_ADD",
		`{"guild_id":"100","user":{"id":"7","username":"person"},"roles":[],"joined_at":"now","deaf":false,"mute":false}`))
	require.Len(t, events, 1)
	assert.IsType(t, MemberJoined{}, events[0])

	guild := client.Cache.GetGuild(100)
	require.NotNil(t, guild)
	assert.Len(t, guild.Members, 1)
	assert.EqualValues(t, 2, guild.MemberCount)

	events = parse(client, dispatchFrame(0, "GUILD_MEMBER_REMOVE",
		`{"guild_id":"100","user":{"id":"7","username":"person"}}`))
	require.Len(t, events, 1)
	assert.IsType(t, MemberLeft{}, events[0])

	guild = client.Cache.GetGuild(100)
	require.NotNil(t, guild)
	assert.Empty(t, guild.Members)
	assert.EqualValues(t, 1, guild.MemberCount)
}
