package chiru

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Fuyukai/chiru/pkg/limiter"
)

const drainTimeout = 10 * time.Second

// EventHandler handles a single parsed event. Handlers for the same event
// type run in registration order, but each invocation runs on its own
// goroutine; a returned error is logged and does not affect other handlers.
type EventHandler func(ctx context.Context, evtCtx *EventContext, event DispatchedEvent) error

// GatewayEventHandler handles a low-level gateway lifecycle event. These run
// inline on the dispatch loop and must not block.
type GatewayEventHandler func(ctx context.Context, event IncomingGatewayEvent)

// StatefulDispatcher pulls events off the collection, parses dispatches into
// high-level events and runs registered handlers with a cap on how many run
// at once. When every ticket is taken the pull loop stalls, which backs
// pressure up through the collection to the gateway sockets.
type StatefulDispatcher struct {
	logger zerolog.Logger

	client *Client

	limiter *limiter.ConcurrencyLimiter

	handlersMu      sync.RWMutex
	handlers        map[string][]EventHandler
	gatewayHandlers map[string][]GatewayEventHandler

	// shardsReady tracks which shards have finished their guild stream so
	// the one-shot Ready event can be synthesized.
	readyMu     sync.Mutex
	shardsReady map[int32]struct{}
	readyFired  bool
}

// NewStatefulDispatcher creates a dispatcher for the given client.
func NewStatefulDispatcher(client *Client) *StatefulDispatcher {
	return &StatefulDispatcher{
		logger: client.Logger.With().Str("component", "dispatcher").Logger(),

		client: client,

		limiter: limiter.NewConcurrencyLimiter(client.Configuration.MaxConcurrentTasks),

		handlers:        make(map[string][]EventHandler),
		gatewayHandlers: make(map[string][]GatewayEventHandler),

		shardsReady: make(map[int32]struct{}),
	}
}

// AddHandler registers a handler for the named event type, as returned by
// DispatchedEvent.EventType.
func (d *StatefulDispatcher) AddHandler(eventType string, handler EventHandler) {
	d.handlersMu.Lock()
	defer d.handlersMu.Unlock()

	d.handlers[eventType] = append(d.handlers[eventType], handler)
}

// AddGatewayHandler registers a handler for the named gateway lifecycle
// event, as returned by IncomingGatewayEvent.Type.
func (d *StatefulDispatcher) AddGatewayHandler(eventType string, handler GatewayEventHandler) {
	d.handlersMu.Lock()
	defer d.handlersMu.Unlock()

	d.gatewayHandlers[eventType] = append(d.gatewayHandlers[eventType], handler)
}

// Run consumes the collection's event stream until the context is cancelled
// or the stream closes, then drains in-flight handler tasks.
func (d *StatefulDispatcher) Run(ctx context.Context) error {
	events := d.client.Collection.Events()

	for {
		select {
		case <-ctx.Done():
			return d.drain()
		case event, ok := <-events:
			if !ok {
				return d.drain()
			}

			d.dispatch(ctx, event)
		}
	}
}

func (d *StatefulDispatcher) drain() error {
	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	return d.limiter.Drain(drainCtx)
}

func (d *StatefulDispatcher) dispatch(ctx context.Context, event IncomingGatewayEvent) {
	dispatchEvent, ok := event.(GatewayDispatch)
	if !ok {
		d.handlersMu.RLock()
		handlers := d.gatewayHandlers[event.Type()]
		d.handlersMu.RUnlock()

		for _, handler := range handlers {
			handler(ctx, event)
		}

		return
	}

	evtCtx := &EventContext{
		Client:       d.client,
		DispatchName: dispatchEvent.EventName,
		Sequence:     dispatchEvent.Sequence,
		ShardID:      dispatchEvent.Shard(),
	}

	for _, parsed := range d.client.Parser.Parse(evtCtx, dispatchEvent) {
		d.handleParsed(ctx, evtCtx, parsed)
	}
}

func (d *StatefulDispatcher) handleParsed(ctx context.Context, evtCtx *EventContext, event DispatchedEvent) {
	switch typed := event.(type) {
	case GuildMemberChunk:
		d.client.Chunker.onChunk(typed)
	case GuildStreamed:
		d.maybeChunk(typed.Guild)
	case GuildJoined:
		d.maybeChunk(typed.Guild)
	case ShardReady:
		if ready := d.markShardReady(typed.ShardID); ready {
			d.logger.Info().Msg("All shards ready")

			defer d.runHandlers(ctx, evtCtx, Ready{})
		}
	}

	d.runHandlers(ctx, evtCtx, event)
}

// markShardReady records a shard's readiness, reporting whether this was the
// last outstanding shard.
func (d *StatefulDispatcher) markShardReady(shardID int32) bool {
	d.readyMu.Lock()
	defer d.readyMu.Unlock()

	d.shardsReady[shardID] = struct{}{}

	if d.readyFired || int32(len(d.shardsReady)) < d.client.Collection.ShardCount() {
		return false
	}

	d.readyFired = true

	return true
}

func (d *StatefulDispatcher) maybeChunk(guild *StatefulGuild) {
	if !d.client.Configuration.AutoChunkGuilds || !guild.Large {
		return
	}

	go func() {
		if err := d.client.Chunker.Chunk(guild.ID); err != nil {
			d.logger.Warn().Err(err).
				Int64("guildId", int64(guild.ID)).
				Msg("Failed to auto chunk guild")
		}
	}()
}

// runHandlers invokes every handler registered for the event, one ticket per
// invocation. Blocks whilst the limiter is saturated.
func (d *StatefulDispatcher) runHandlers(ctx context.Context, evtCtx *EventContext, event DispatchedEvent) {
	d.handlersMu.RLock()
	handlers := d.handlers[event.EventType()]
	d.handlersMu.RUnlock()

	for _, handler := range handlers {
		ticket, err := d.limiter.Wait(ctx)
		if err != nil {
			return
		}

		handler := handler

		go func() {
			defer d.limiter.FreeTicket(ticket)

			chiruHandlersInflight.Inc()
			defer chiruHandlersInflight.Dec()

			defer func() {
				if r := recover(); r != nil {
					chiruHandlerErrors.WithLabelValues(event.EventType()).Inc()

					d.logger.Error().
						Interface("panic", r).
						Str("event", event.EventType()).
						Int32("shardId", evtCtx.ShardID).
						Msg("Handler panicked")
				}
			}()

			if err := handler(ctx, evtCtx, event); err != nil {
				chiruHandlerErrors.WithLabelValues(event.EventType()).Inc()

				d.logger.Error().Err(err).
					Str("event", event.EventType()).
					Int32("shardId", evtCtx.ShardID).
					Msg("Handler returned error")
			}
		}()
	}
}
