package chiru

import "errors"

// ErrAuthenticationFailed is returned when the gateway rejects the token.
// Retrying cannot succeed, so this is always fatal.
var ErrAuthenticationFailed = errors.New("authentication failed: token passed is not valid")

// ErrReconnect is used to distinguish if the shard simply wants to reconnect.
var ErrReconnect = errors.New("reconnect is required")

var (
	ErrShardingRequired   = errors.New("gateway requires more shards")
	ErrInvalidIntents     = errors.New("invalid or disallowed intents")
	ErrInvalidShard       = errors.New("invalid shard id specified")
	ErrShardNotRunning    = errors.New("shard is not running")
	ErrRetriesExhausted   = errors.New("ran out of connection retries")
	ErrOutgoingQueueFull  = errors.New("outgoing event queue is full")
	ErrChunkTimeout       = errors.New("timed out waiting for member chunks")
	ErrCollectionClosed   = errors.New("collection has been closed")
	ErrRateLimited        = errors.New("request was rate limited")
	ErrMissingChunkTarget = errors.New("exactly one of user ids or query may be passed")
)

var (
	ErrReadConfigurationFailure   = errors.New("failed to read configuration")
	ErrLoadConfigurationFailure   = errors.New("failed to load configuration")
	ErrConfigurationMissingToken  = errors.New("configuration missing token")
	ErrConfigurationInvalidShards = errors.New("configuration has invalid shard count")
)
