package chiru

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Fuyukai/chiru/discord"
)

// Collection owns every shard of a bot and fans their events into a single
// channel. Events from one shard keep their order; events from different
// shards interleave arbitrarily.
type Collection struct {
	Logger zerolog.Logger

	configuration *Configuration

	shards []*Shard

	events chan IncomingGatewayEvent

	group  *errgroup.Group
	cancel context.CancelFunc

	closeOnce sync.Once
	closed    chan struct{}
}

// NewCollection creates a collection of shardCount shards connecting to
// gatewayURL.
func NewCollection(logger zerolog.Logger, configuration *Configuration, gatewayURL string, shardCount int32) *Collection {
	events := make(chan IncomingGatewayEvent, configuration.MessageChannelBuffer)

	shards := make([]*Shard, 0, shardCount)

	for shardID := int32(0); shardID < shardCount; shardID++ {
		shard := NewShard(logger, configuration, shardID, shardCount, events)
		shard.ConnectionURL.Store(gatewayURL)

		shards = append(shards, shard)
	}

	return &Collection{
		Logger: logger.With().Str("component", "collection").Logger(),

		configuration: configuration,

		shards: shards,

		events: events,

		closed: make(chan struct{}),
	}
}

// ShardCount returns the number of shards in the collection.
func (c *Collection) ShardCount() int32 {
	return int32(len(c.shards))
}

// Shard returns the shard with the given id, or nil if out of range.
func (c *Collection) Shard(shardID int32) *Shard {
	if shardID < 0 || int(shardID) >= len(c.shards) {
		return nil
	}

	return c.shards[shardID]
}

// Events returns the merged event stream. The channel is closed once every
// shard has stopped.
func (c *Collection) Events() <-chan IncomingGatewayEvent {
	return c.events
}

// Open starts every shard. It returns immediately; shard failures surface
// through Wait.
func (c *Collection) Open(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	c.cancel = cancel
	c.group, ctx = errgroup.WithContext(ctx)

	c.Logger.Info().Int("shards", len(c.shards)).Msg("Opening shard collection")

	for _, shard := range c.shards {
		shard := shard

		c.group.Go(func() error {
			return shard.Open(ctx)
		})
	}

	go func() {
		_ = c.group.Wait()

		c.closeOnce.Do(func() {
			close(c.events)
			close(c.closed)
		})
	}()
}

// Wait blocks until every shard has stopped, returning the first fatal shard
// error.
func (c *Collection) Wait() error {
	<-c.closed

	return c.group.Wait()
}

// SendToShard submits an outgoing event to a specific shard.
func (c *Collection) SendToShard(shardID int32, event OutgoingGatewayEvent) error {
	select {
	case <-c.closed:
		return ErrCollectionClosed
	default:
	}

	shard := c.Shard(shardID)
	if shard == nil {
		return ErrInvalidShard
	}

	return shard.Send(event)
}

// SendToGuild submits an outgoing event to whichever shard handles the given
// guild.
func (c *Collection) SendToGuild(guildID discord.Snowflake, event OutgoingGatewayEvent) error {
	return c.SendToShard(guildID.ShardFor(c.ShardCount()), event)
}

// Close stops every shard and waits for them to finish. The merged event
// channel is closed on return.
func (c *Collection) Close() error {
	c.Logger.Info().Msg("Closing shard collection")

	if c.cancel != nil {
		c.cancel()
	}

	return c.Wait()
}
