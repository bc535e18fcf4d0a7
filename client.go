package chiru

import (
	"context"
	"fmt"
	"net/url"

	"github.com/rs/zerolog"
)

// Dispatcher consumes the collection's event stream. StatefulDispatcher and
// ChannelDispatcher both satisfy this.
type Dispatcher interface {
	Run(ctx context.Context) error
}

// Client is the top-level object tying the gateway collection, cache and
// REST layer together.
type Client struct {
	Logger zerolog.Logger

	Configuration *Configuration

	Rest    *RestClient
	Cache   *ObjectCache
	Factory *StatefulFactory
	Parser  *CachedEventParser
	Chunker *GuildChunker

	// Collection is nil until Open is called.
	Collection *Collection
}

// NewClient creates a client from the given configuration.
func NewClient(logger zerolog.Logger, configuration Configuration) (*Client, error) {
	configuration.applyDefaults()

	if err := configuration.Validate(); err != nil {
		return nil, err
	}

	baseURL := configuration.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL.String()
	}

	client := &Client{
		Logger:        logger,
		Configuration: &configuration,
	}

	client.Rest = NewRestClient(logger, baseURL, configuration.Token)
	client.Cache = NewObjectCache()
	client.Factory = NewStatefulFactory(client)
	client.Parser = NewCachedEventParser(client, logger)
	client.Chunker = NewGuildChunker(client, configuration.ChunkTimeout)

	return client, nil
}

// Open connects every shard to the gateway. The shard count and gateway URL
// come from the configuration, falling back to what GET /gateway/bot
// recommends.
func (c *Client) Open(ctx context.Context) error {
	gatewayURL := c.Configuration.GatewayURL
	shardCount := c.Configuration.ShardCount

	if gatewayURL == "" || shardCount == 0 {
		gateway, err := c.Rest.GetGatewayBot(ctx)
		if err != nil {
			return fmt.Errorf("failed to fetch gateway: %w", err)
		}

		if gatewayURL == "" {
			gatewayURL = gateway.URL
		}

		if shardCount == 0 {
			shardCount = gateway.Shards
		}
	}

	if shardCount == 0 {
		shardCount = 1
	}

	gatewayURL, err := gatewayURLWithQuery(gatewayURL)
	if err != nil {
		return err
	}

	c.Logger.Info().
		Str("url", gatewayURL).
		Int32("shards", shardCount).
		Msg("Opening gateway connection")

	c.Collection = NewCollection(c.Logger, c.Configuration, gatewayURL, shardCount)
	c.Collection.Open(ctx)

	return nil
}

// Run opens the client and runs the dispatcher until it stops, then closes
// the collection. A fatal shard error surfaces here even when the dispatcher
// itself stops cleanly.
func (c *Client) Run(ctx context.Context, dispatcher Dispatcher) error {
	if err := c.Open(ctx); err != nil {
		return err
	}

	dispatchErr := dispatcher.Run(ctx)

	if err := c.Close(); err != nil {
		return err
	}

	return dispatchErr
}

// Close disconnects every shard and waits for them to stop.
func (c *Client) Close() error {
	if c.Collection == nil {
		return nil
	}

	return c.Collection.Close()
}

// gatewayURLWithQuery pins the API version and encoding onto a gateway URL.
func gatewayURLWithQuery(raw string) (string, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid gateway url %q: %w", raw, err)
	}

	parsed.RawQuery = defaultGatewayURL.RawQuery

	return parsed.String(), nil
}
