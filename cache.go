package chiru

import (
	"sync"

	"github.com/Fuyukai/chiru/discord"

	"github.com/Fuyukai/chiru/pkg/lockset"
)

// ObjectCache holds the stateful objects the client knows about. Every
// mutation replaces the stored value wholesale, so readers never observe a
// partially updated object. Writes for the same id are serialized through a
// per-key lock; writes for different ids proceed in parallel.
type ObjectCache struct {
	guildsMu sync.RWMutex
	guilds   map[discord.Snowflake]*StatefulGuild

	channelsMu sync.RWMutex
	channels   map[discord.Snowflake]*StatefulChannel

	guildLocks   *lockset.KeyLocker
	channelLocks *lockset.KeyLocker
}

// NewObjectCache creates an empty ObjectCache.
func NewObjectCache() *ObjectCache {
	return &ObjectCache{
		guilds:       make(map[discord.Snowflake]*StatefulGuild),
		channels:     make(map[discord.Snowflake]*StatefulChannel),
		guildLocks:   lockset.NewKeyLocker(),
		channelLocks: lockset.NewKeyLocker(),
	}
}

// GetGuild returns the cached guild with the given id, or nil.
func (c *ObjectCache) GetGuild(id discord.Snowflake) *StatefulGuild {
	c.guildsMu.RLock()
	defer c.guildsMu.RUnlock()

	return c.guilds[id]
}

// Guilds returns a snapshot of every cached guild.
func (c *ObjectCache) Guilds() []*StatefulGuild {
	c.guildsMu.RLock()
	defer c.guildsMu.RUnlock()

	guilds := make([]*StatefulGuild, 0, len(c.guilds))
	for _, guild := range c.guilds {
		guilds = append(guilds, guild)
	}

	return guilds
}

// PutGuild stores a guild, replacing any previous value.
func (c *ObjectCache) PutGuild(guild *StatefulGuild) {
	c.guildLocks.Lock(int64(guild.ID))
	defer c.guildLocks.Unlock(int64(guild.ID))

	c.guildsMu.Lock()
	c.guilds[guild.ID] = guild
	c.guildsMu.Unlock()
}

// UpdateGuild applies fn to the cached guild under the guild's write lock and
// stores the value fn returns. fn receives nil when the guild is not cached;
// returning nil leaves the cache untouched.
func (c *ObjectCache) UpdateGuild(id discord.Snowflake, fn func(*StatefulGuild) *StatefulGuild) *StatefulGuild {
	c.guildLocks.Lock(int64(id))
	defer c.guildLocks.Unlock(int64(id))

	c.guildsMu.RLock()
	existing := c.guilds[id]
	c.guildsMu.RUnlock()

	updated := fn(existing)
	if updated == nil {
		return existing
	}

	c.guildsMu.Lock()
	c.guilds[id] = updated
	c.guildsMu.Unlock()

	return updated
}

// RemoveGuild evicts a guild and every channel belonging to it.
func (c *ObjectCache) RemoveGuild(id discord.Snowflake) {
	c.guildLocks.Lock(int64(id))
	defer c.guildLocks.Unlock(int64(id))

	c.guildsMu.Lock()
	delete(c.guilds, id)
	c.guildsMu.Unlock()

	c.channelsMu.Lock()
	for channelID, channel := range c.channels {
		if channel.GuildID != nil && *channel.GuildID == id {
			delete(c.channels, channelID)
		}
	}
	c.channelsMu.Unlock()
}

// GuildCount returns the number of cached guilds.
func (c *ObjectCache) GuildCount() int {
	c.guildsMu.RLock()
	defer c.guildsMu.RUnlock()

	return len(c.guilds)
}

// GetChannel returns the cached channel with the given id, or nil.
func (c *ObjectCache) GetChannel(id discord.Snowflake) *StatefulChannel {
	c.channelsMu.RLock()
	defer c.channelsMu.RUnlock()

	return c.channels[id]
}

// PutChannel stores a channel, replacing any previous value.
func (c *ObjectCache) PutChannel(channel *StatefulChannel) {
	c.channelLocks.Lock(int64(channel.ID))
	defer c.channelLocks.Unlock(int64(channel.ID))

	c.channelsMu.Lock()
	c.channels[channel.ID] = channel
	c.channelsMu.Unlock()
}

// RemoveChannel evicts a channel, returning the previous value or nil.
func (c *ObjectCache) RemoveChannel(id discord.Snowflake) *StatefulChannel {
	c.channelLocks.Lock(int64(id))
	defer c.channelLocks.Unlock(int64(id))

	c.channelsMu.Lock()
	existing := c.channels[id]
	delete(c.channels, id)
	c.channelsMu.Unlock()

	return existing
}
