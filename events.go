package chiru

import (
	"github.com/Fuyukai/chiru/discord"
)

// DispatchedEvent is a single high-level event parsed from a gateway
// dispatch. One dispatch frame may produce zero, one, or several of these.
type DispatchedEvent interface {
	// EventType returns a stable name for this event, used for handler
	// routing.
	EventType() string
}

// EventContext carries per-dispatch metadata alongside the parsed event.
type EventContext struct {
	Client       *Client
	DispatchName string
	Sequence     int64
	ShardID      int32
}

// Connected is fired when a shard finishes identifying or resuming.
type Connected struct {
	ShardID int32
}

func (Connected) EventType() string { return "Connected" }

// ShardReady is fired once per shard, when every guild that shard was told
// about during READY has been streamed.
type ShardReady struct {
	ShardID int32
}

func (ShardReady) EventType() string { return "ShardReady" }

// Ready is fired exactly once, when every shard in the collection has fired
// its ShardReady.
type Ready struct{}

func (Ready) EventType() string { return "Ready" }

// Resumed is fired when a shard successfully resumes a previous session. No
// guilds are re-streamed after a resume.
type Resumed struct {
	ShardID int32
}

func (Resumed) EventType() string { return "Resumed" }

// GuildStreamed is fired when a guild is streamed to us during the initial
// connection phase.
type GuildStreamed struct {
	Guild *StatefulGuild
}

func (GuildStreamed) EventType() string { return "GuildStreamed" }

// GuildJoined is fired when the bot joins a new guild after startup.
type GuildJoined struct {
	Guild *StatefulGuild
}

func (GuildJoined) EventType() string { return "GuildJoined" }

// GuildAvailable is fired when a previously unavailable guild becomes
// available again.
type GuildAvailable struct {
	Guild *StatefulGuild
}

func (GuildAvailable) EventType() string { return "GuildAvailable" }

// GuildUnavailable is fired when a guild goes unavailable due to an outage.
type GuildUnavailable struct {
	GuildID discord.Snowflake
}

func (GuildUnavailable) EventType() string { return "GuildUnavailable" }

// GuildLeft is fired when the bot leaves or is removed from a guild.
type GuildLeft struct {
	GuildID discord.Snowflake
}

func (GuildLeft) EventType() string { return "GuildLeft" }

// GuildMemberChunk is fired for each GUILD_MEMBERS_CHUNK received whilst
// chunking a guild's members.
type GuildMemberChunk struct {
	Guild      *StatefulGuild
	Members    []*StatefulMember
	Nonce      string
	ChunkIndex int32
	ChunkCount int32
}

func (GuildMemberChunk) EventType() string { return "GuildMemberChunk" }

// MemberJoined is fired when a member joins a guild.
type MemberJoined struct {
	Member *StatefulMember
}

func (MemberJoined) EventType() string { return "MemberJoined" }

// MemberLeft is fired when a member leaves a guild.
type MemberLeft struct {
	GuildID discord.Snowflake
	User    discord.User
}

func (MemberLeft) EventType() string { return "MemberLeft" }

// MemberUpdated is fired when a guild member's properties change.
type MemberUpdated struct {
	Member *StatefulMember
}

func (MemberUpdated) EventType() string { return "MemberUpdated" }

// GuildEmojiUpdated is fired when a guild's emoji set changes. Previous holds
// the emojis as they were before the update.
type GuildEmojiUpdated struct {
	GuildID  discord.Snowflake
	Previous []discord.Emoji
	Emojis   []discord.Emoji
}

func (GuildEmojiUpdated) EventType() string { return "GuildEmojiUpdated" }

// ChannelCreated is fired when a channel is created in a guild.
type ChannelCreated struct {
	Channel *StatefulChannel
}

func (ChannelCreated) EventType() string { return "ChannelCreated" }

// ChannelUpdated is fired when a channel's properties change. Previous is nil
// if the channel was not cached before the update.
type ChannelUpdated struct {
	Previous *StatefulChannel
	Channel  *StatefulChannel
}

func (ChannelUpdated) EventType() string { return "ChannelUpdated" }

// ChannelDeleted is fired when a channel is deleted.
type ChannelDeleted struct {
	ChannelID discord.Snowflake
	GuildID   discord.Snowflake
}

func (ChannelDeleted) EventType() string { return "ChannelDeleted" }

// MessageCreated is fired when a message is sent to a channel the bot can see.
type MessageCreated struct {
	Message *StatefulMessage
}

func (MessageCreated) EventType() string { return "MessageCreated" }

// MessageUpdated is fired when a message is edited.
type MessageUpdated struct {
	Message *StatefulMessage
}

func (MessageUpdated) EventType() string { return "MessageUpdated" }

// MessageDeleted is fired when a single message is deleted.
type MessageDeleted struct {
	MessageID discord.Snowflake
	ChannelID discord.Snowflake
	GuildID   discord.Snowflake
}

func (MessageDeleted) EventType() string { return "MessageDeleted" }

// MessageBulkDeleted is fired once per MESSAGE_DELETE_BULK, carrying every
// deleted message id in a single event.
type MessageBulkDeleted struct {
	MessageIDs []discord.Snowflake
	ChannelID  discord.Snowflake
	GuildID    discord.Snowflake
}

func (MessageBulkDeleted) EventType() string { return "MessageBulkDeleted" }

// AsSingleEvents explodes the bulk deletion into individual MessageDeleted
// events, for handlers that do not care about the distinction.
func (e MessageBulkDeleted) AsSingleEvents() []MessageDeleted {
	events := make([]MessageDeleted, 0, len(e.MessageIDs))

	for _, id := range e.MessageIDs {
		events = append(events, MessageDeleted{
			MessageID: id,
			ChannelID: e.ChannelID,
			GuildID:   e.GuildID,
		})
	}

	return events
}
