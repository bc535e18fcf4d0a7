package chiru

import (
	"encoding/json"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"

	"github.com/Fuyukai/chiru/discord"
)

var jsonDecoder = jsoniter.ConfigCompatibleWithStandardLibrary

// dispatchParser turns a raw dispatch body into zero or more high-level
// events. The order events are appended in is the order handlers see them.
type dispatchParser func(ctx *EventContext, data json.RawMessage) ([]DispatchedEvent, error)

// CachedEventParser parses gateway dispatches into high-level events,
// updating the object cache as a side effect. Events derived from state the
// cache held before the update (previous channel values, previous emoji sets)
// are only as good as the cache contents.
type CachedEventParser struct {
	client  *Client
	logger  zerolog.Logger
	parsers map[string]dispatchParser

	// unstreamedMu guards the per-shard sets of guild ids announced in
	// READY that have not yet arrived via GUILD_CREATE.
	unstreamedMu sync.Mutex
	unstreamed   map[int32]map[discord.Snowflake]struct{}
}

// NewCachedEventParser creates a parser bound to client.
func NewCachedEventParser(client *Client, logger zerolog.Logger) *CachedEventParser {
	parser := &CachedEventParser{
		client:     client,
		logger:     logger.With().Str("component", "parser").Logger(),
		unstreamed: make(map[int32]map[discord.Snowflake]struct{}),
	}

	parser.parsers = map[string]dispatchParser{
		"READY":               parser.parseReady,
		"RESUMED":             parser.parseResumed,
		"GUILD_CREATE":        parser.parseGuildCreate,
		"GUILD_DELETE":        parser.parseGuildDelete,
		"GUILD_MEMBERS_CHUNK": parser.parseGuildMembersChunk,
		"GUILD_MEMBER_ADD":    parser.parseGuildMemberAdd,
		"GUILD_MEMBER_REMOVE": parser.parseGuildMemberRemove,
		"GUILD_MEMBER_UPDATE": parser.parseGuildMemberUpdate,
		"GUILD_EMOJIS_UPDATE": parser.parseGuildEmojisUpdate,
		"CHANNEL_CREATE":      parser.parseChannelCreate,
		"CHANNEL_UPDATE":      parser.parseChannelUpdate,
		"CHANNEL_DELETE":      parser.parseChannelDelete,
		"MESSAGE_CREATE":      parser.parseMessageCreate,
		"MESSAGE_UPDATE":      parser.parseMessageUpdate,
		"MESSAGE_DELETE":      parser.parseMessageDelete,
		"MESSAGE_DELETE_BULK": parser.parseMessageDeleteBulk,
	}

	return parser
}

// Parse converts one gateway dispatch into its high-level events. A dispatch
// name with no registered parser produces no events.
func (p *CachedEventParser) Parse(ctx *EventContext, event GatewayDispatch) []DispatchedEvent {
	parser, ok := p.parsers[event.EventName]
	if !ok {
		p.logger.Info().
			Int32("shardId", ctx.ShardID).
			Str("event", event.EventName).
			Msg("No parser registered for dispatch")

		return nil
	}

	events, err := parser(ctx, event.Body)
	if err != nil {
		p.logger.Error().Err(err).
			Int32("shardId", ctx.ShardID).
			Str("event", event.EventName).
			Msg("Failed to parse dispatch")

		return nil
	}

	return events
}

// markUnstreamed records the guilds a shard was told about in READY.
func (p *CachedEventParser) markUnstreamed(shardID int32, guilds []discord.UnavailableGuild) {
	pending := make(map[discord.Snowflake]struct{}, len(guilds))
	for _, guild := range guilds {
		pending[guild.ID] = struct{}{}
	}

	p.unstreamedMu.Lock()
	p.unstreamed[shardID] = pending
	p.unstreamedMu.Unlock()
}

// consumeUnstreamed removes a guild from a shard's pending set. It reports
// whether the guild was pending and whether it was the last one.
func (p *CachedEventParser) consumeUnstreamed(shardID int32, guildID discord.Snowflake) (pending, last bool) {
	p.unstreamedMu.Lock()
	defer p.unstreamedMu.Unlock()

	set, ok := p.unstreamed[shardID]
	if !ok {
		return false, false
	}

	if _, ok := set[guildID]; !ok {
		return false, false
	}

	delete(set, guildID)

	return true, len(set) == 0
}
