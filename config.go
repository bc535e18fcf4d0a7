package chiru

import (
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// VERSION follows semantic versioning.
const VERSION = "0.9.0"

const (
	defaultMessageChannelBuffer = 64
	defaultOutgoingQueueSize    = 16
	defaultMaxConcurrentTasks   = 16
	defaultConnectRetries       = int32(10)
	defaultMaxReconnectWait     = 60 * time.Second
	defaultChunkTimeout         = 2 * time.Second
)

var defaultGatewayURL = url.URL{
	Scheme:   "wss",
	Host:     "gateway.discord.gg",
	RawQuery: "v=10&encoding=json",
}

var defaultBaseURL = url.URL{
	Scheme: "https",
	Host:   "discord.com",
}

// Configuration holds everything needed to open a client.
type Configuration struct {
	// Token is the bot token used for identifying and REST calls.
	Token string `json:"token" yaml:"token"`

	// GatewayURL overrides the initial gateway URL. If empty, the URL
	// returned by GET /gateway/bot is used.
	GatewayURL string `json:"gateway_url" yaml:"gateway_url"`

	// BaseURL overrides the REST endpoint. If empty, https://discord.com.
	BaseURL string `json:"base_url" yaml:"base_url"`

	Intents uint32 `json:"intents" yaml:"intents"`

	// ShardCount of 0 uses the gateway's recommended shard count.
	ShardCount int32 `json:"shard_count" yaml:"shard_count"`

	// MessageChannelBuffer is the capacity of the merged event stream.
	MessageChannelBuffer int `json:"message_channel_buffer" yaml:"message_channel_buffer"`

	// OutgoingQueueSize bounds per-shard outgoing events queued whilst the
	// shard is not in a ready state.
	OutgoingQueueSize int `json:"outgoing_queue_size" yaml:"outgoing_queue_size"`

	// MaxConcurrentTasks caps handler tasks in the stateful dispatcher.
	MaxConcurrentTasks int `json:"max_concurrent_tasks" yaml:"max_concurrent_tasks"`

	// ConnectRetries is the retry budget before a shard error is fatal.
	ConnectRetries int32 `json:"connect_retries" yaml:"connect_retries"`

	// MaxReconnectWait caps the reconnect backoff delay.
	MaxReconnectWait time.Duration `json:"max_reconnect_wait" yaml:"max_reconnect_wait"`

	// ChunkTimeout is how long the chunker waits between member chunks
	// before marking a guild as complete.
	ChunkTimeout time.Duration `json:"chunk_timeout" yaml:"chunk_timeout"`

	// AutoChunkGuilds requests member chunks for large guilds as they come
	// in over the gateway.
	AutoChunkGuilds bool `json:"auto_chunk_guilds" yaml:"auto_chunk_guilds"`
}

// NewConfiguration returns a configuration with sane defaults applied. The
// default intents are every non-privileged intent plus message content.
func NewConfiguration(token string) Configuration {
	cfg := Configuration{
		Token:   token,
		Intents: (1 << 22) - 1,
	}
	cfg.applyDefaults()

	return cfg
}

func (cfg *Configuration) applyDefaults() {
	if cfg.MessageChannelBuffer <= 0 {
		cfg.MessageChannelBuffer = defaultMessageChannelBuffer
	}

	if cfg.OutgoingQueueSize <= 0 {
		cfg.OutgoingQueueSize = defaultOutgoingQueueSize
	}

	if cfg.MaxConcurrentTasks <= 0 {
		cfg.MaxConcurrentTasks = defaultMaxConcurrentTasks
	}

	if cfg.ConnectRetries <= 0 {
		cfg.ConnectRetries = defaultConnectRetries
	}

	if cfg.MaxReconnectWait <= 0 {
		cfg.MaxReconnectWait = defaultMaxReconnectWait
	}

	if cfg.ChunkTimeout <= 0 {
		cfg.ChunkTimeout = defaultChunkTimeout
	}
}

// Validate checks the configuration for values that cannot work.
func (cfg *Configuration) Validate() error {
	if cfg.Token == "" {
		return ErrConfigurationMissingToken
	}

	if cfg.ShardCount < 0 {
		return ErrConfigurationInvalidShards
	}

	return nil
}

// LoadConfiguration reads a yaml configuration from path.
func LoadConfiguration(path string) (Configuration, error) {
	var cfg Configuration

	file, err := os.ReadFile(path)
	if err != nil {
		return cfg, ErrReadConfigurationFailure
	}

	if err := yaml.Unmarshal(file, &cfg); err != nil {
		return cfg, ErrLoadConfigurationFailure
	}

	cfg.applyDefaults()

	return cfg, cfg.Validate()
}
