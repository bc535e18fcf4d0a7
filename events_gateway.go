package chiru

import (
	"encoding/json"

	"github.com/Fuyukai/chiru/discord"
)

// IncomingGatewayEvent is a single low-level event produced by a shard. These
// sit below the dispatch events: they describe the lifecycle of the gateway
// connection itself rather than things happening inside Discord.
type IncomingGatewayEvent interface {
	// Shard returns the id of the shard this event came from.
	Shard() int32

	// Type returns a stable name for this event, used for handler routing.
	Type() string

	// Voidable reports whether this event may be dropped when the event
	// channel is full. Dispatches are never voidable; lifecycle noise such
	// as heartbeat acknowledgements is.
	Voidable() bool
}

type gatewayEvent struct {
	ShardID int32
}

func (e gatewayEvent) Shard() int32 { return e.ShardID }

// GatewayHello is fired when the gateway sends its initial Hello frame.
type GatewayHello struct {
	gatewayEvent

	HeartbeatInterval int64
}

func (GatewayHello) Type() string   { return "GatewayHello" }
func (GatewayHello) Voidable() bool { return true }

// GatewayDispatch is fired for every dispatch frame received. This is the
// event that carries actual Discord data and is never dropped.
type GatewayDispatch struct {
	gatewayEvent

	EventName string
	Sequence  int64
	Body      json.RawMessage
}

func (GatewayDispatch) Type() string   { return "GatewayDispatch" }
func (GatewayDispatch) Voidable() bool { return false }

// GatewayHeartbeatAck is fired when the gateway acknowledges a heartbeat.
type GatewayHeartbeatAck struct {
	gatewayEvent

	// AckCount is the number of acknowledgements this shard has received
	// over the lifetime of the connection.
	AckCount int64
}

func (GatewayHeartbeatAck) Type() string   { return "GatewayHeartbeatAck" }
func (GatewayHeartbeatAck) Voidable() bool { return true }

// GatewayHeartbeatSent is fired when the shard sends a heartbeat.
type GatewayHeartbeatSent struct {
	gatewayEvent

	// Count is the number of heartbeats sent over the lifetime of the
	// connection.
	Count int64

	// Sequence is the sequence number the heartbeat carried.
	Sequence int64
}

func (GatewayHeartbeatSent) Type() string   { return "GatewayHeartbeatSent" }
func (GatewayHeartbeatSent) Voidable() bool { return true }

// GatewayInvalidateSession is fired when the gateway invalidates the current
// session. When Resumable is false the shard will re-identify from scratch
// and consumers should expect a full guild re-stream.
type GatewayInvalidateSession struct {
	gatewayEvent

	Resumable bool
}

func (GatewayInvalidateSession) Type() string   { return "GatewayInvalidateSession" }
func (GatewayInvalidateSession) Voidable() bool { return true }

// GatewayReconnectRequested is fired when the gateway asks the shard to
// disconnect and resume on a fresh connection.
type GatewayReconnectRequested struct {
	gatewayEvent
}

func (GatewayReconnectRequested) Type() string   { return "GatewayReconnectRequested" }
func (GatewayReconnectRequested) Voidable() bool { return true }

// OutgoingGatewayEvent is a command that can be sent to a shard.
type OutgoingGatewayEvent interface {
	payload() (discord.SentPayload, error)
}

// MemberChunkRequest asks the gateway to stream member chunks for a guild.
// Exactly one of UserIDs or Query should be set; an empty Query with a zero
// Limit requests every member.
type MemberChunkRequest struct {
	GuildID   discord.Snowflake
	UserIDs   []discord.Snowflake
	Query     string
	Nonce     string
	Limit     int32
	Presences bool
}

func (r MemberChunkRequest) payload() (discord.SentPayload, error) {
	if len(r.UserIDs) > 0 && r.Query != "" {
		return discord.SentPayload{}, ErrMissingChunkTarget
	}

	return discord.SentPayload{
		Op: discord.GatewayOpRequestGuildMembers,
		Data: discord.RequestGuildMembers{
			GuildID:   r.GuildID,
			Query:     r.Query,
			Nonce:     r.Nonce,
			UserIDs:   r.UserIDs,
			Limit:     r.Limit,
			Presences: r.Presences,
		},
	}, nil
}

// PresenceUpdate changes the bot's displayed status on this shard.
type PresenceUpdate struct {
	Status string
	AFK    bool
}

func (p PresenceUpdate) payload() (discord.SentPayload, error) {
	status := p.Status
	if status == "" {
		status = "online"
	}

	return discord.SentPayload{
		Op: discord.GatewayOpStatusUpdate,
		Data: map[string]any{
			"since":      nil,
			"activities": []any{},
			"status":     status,
			"afk":        p.AFK,
		},
	}, nil
}
