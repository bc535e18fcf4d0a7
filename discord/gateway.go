package discord

import "encoding/json"

// gateway.go contains the wire-level framing for the gateway protocol.

// GatewayOp represents a gateway frame's operation code.
type GatewayOp uint8

// Operation codes for gateway frames.
const (
	GatewayOpDispatch GatewayOp = iota
	GatewayOpHeartbeat
	GatewayOpIdentify
	GatewayOpStatusUpdate
	GatewayOpVoiceStateUpdate
	_
	GatewayOpResume
	GatewayOpReconnect
	GatewayOpRequestGuildMembers
	GatewayOpInvalidSession
	GatewayOpHello
	GatewayOpHeartbeatACK
)

// The gateway's close codes.
const (
	CloseUnknownError = 4000 + iota
	CloseUnknownOpCode
	CloseDecodeError
	CloseNotAuthenticated
	CloseAuthenticationFailed
	CloseAlreadyAuthenticated
	_
	CloseInvalidSeq
	CloseRateLimited
	CloseSessionTimeout
	CloseInvalidShard
	CloseShardingRequired
	CloseInvalidAPIVersion
	CloseInvalidIntents
	CloseDisallowedIntents
)

// Gateway intents.
const (
	IntentGuilds uint32 = 1 << iota
	IntentGuildMembers
	IntentGuildBans
	IntentGuildEmojis
	IntentGuildIntegrations
	IntentGuildWebhooks
	IntentGuildInvites
	IntentGuildVoiceStates
	IntentGuildPresences
	IntentGuildMessages
	IntentGuildMessageReactions
	IntentGuildMessageTyping
	IntentDirectMessages
	IntentDirectMessageReactions
	IntentDirectMessageTyping
	IntentMessageContent
)

// GatewayPayload is the base of every JSON frame received from the gateway.
type GatewayPayload struct {
	Data     json.RawMessage `json:"d,omitempty"`
	Type     string          `json:"t,omitempty"`
	Op       GatewayOp       `json:"op"`
	Sequence int64           `json:"s,omitempty"`
}

// SentPayload is the base of every JSON frame sent to the gateway.
type SentPayload struct {
	Data any       `json:"d"`
	Op   GatewayOp `json:"op"`
}

// Hello is the payload of an OpHello frame.
type Hello struct {
	HeartbeatInterval int64 `json:"heartbeat_interval"`
}

// Identify represents an identify packet.
type Identify struct {
	Token          string              `json:"token"`
	Properties     *IdentifyProperties `json:"properties"`
	Compress       bool                `json:"compress,omitempty"`
	LargeThreshold int32               `json:"large_threshold,omitempty"`
	Shard          [2]int32            `json:"shard,omitempty"`
	Intents        uint32              `json:"intents"`
}

// IdentifyProperties is the properties sent in the identify packet.
type IdentifyProperties struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

// Resume represents a resume packet.
type Resume struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Sequence  int64  `json:"seq"`
}

// Ready represents the READY dispatch payload.
type Ready struct {
	User             User               `json:"user"`
	Guilds           []UnavailableGuild `json:"guilds"`
	SessionID        string             `json:"session_id"`
	ResumeGatewayURL string             `json:"resume_gateway_url"`
	Version          int32              `json:"v"`
}

// Resumed represents the RESUMED dispatch payload.
type Resumed struct{}

// RequestGuildMembers represents a request guild members packet.
type RequestGuildMembers struct {
	GuildID   Snowflake   `json:"guild_id"`
	Query     string      `json:"query"`
	Nonce     string      `json:"nonce,omitempty"`
	UserIDs   []Snowflake `json:"user_ids,omitempty"`
	Limit     int32       `json:"limit"`
	Presences bool        `json:"presences,omitempty"`
}

// GuildMembersChunk represents the GUILD_MEMBERS_CHUNK dispatch payload.
type GuildMembersChunk struct {
	GuildID    Snowflake     `json:"guild_id"`
	Nonce      string        `json:"nonce,omitempty"`
	Members    []GuildMember `json:"members"`
	NotFound   []Snowflake   `json:"not_found,omitempty"`
	ChunkIndex int32         `json:"chunk_index"`
	ChunkCount int32         `json:"chunk_count"`
}

// GatewayBot represents a GET /gateway/bot response.
type GatewayBot struct {
	URL               string `json:"url"`
	Shards            int32  `json:"shards"`
	SessionStartLimit struct {
		Total          int32 `json:"total"`
		Remaining      int32 `json:"remaining"`
		ResetAfter     int32 `json:"reset_after"`
		MaxConcurrency int32 `json:"max_concurrency"`
	} `json:"session_start_limit"`
}
