package chiru

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// ReceivedEvent is what a DispatchChannel delivers: the parsed event plus
// its dispatch context.
type ReceivedEvent struct {
	Context *EventContext
	Event   DispatchedEvent
}

// DispatchChannel is a single subscription to an event type. Events are
// delivered over a bounded channel; with the default capacity of zero a slow
// consumer stalls the whole dispatcher, which is the backpressure contract.
type DispatchChannel struct {
	eventType  string
	ch         chan ReceivedEvent
	done       chan struct{}
	dispatcher *ChannelDispatcher
	closeOnce  sync.Once
}

// Receive returns the channel events are delivered on. It is closed when the
// dispatcher stops.
func (c *DispatchChannel) Receive() <-chan ReceivedEvent {
	return c.ch
}

// Close removes this subscription. No further events are delivered to it.
func (c *DispatchChannel) Close() {
	c.dispatcher.unsubscribe(c)
}

// ChannelDispatcher is the channel-routing alternative to the
// StatefulDispatcher: instead of running handler callbacks, it publishes
// every parsed event to subscriber channels. Publishing blocks until every
// subscriber has taken the event, so one stuck consumer stalls the stream
// for everyone. That is deliberate; it keeps the gateway from outrunning
// consumers.
type ChannelDispatcher struct {
	logger zerolog.Logger

	client *Client

	mu          sync.RWMutex
	subscribers map[string][]*DispatchChannel
	stopped     bool
}

// NewChannelDispatcher creates a channel dispatcher for the given client.
func NewChannelDispatcher(client *Client) *ChannelDispatcher {
	return &ChannelDispatcher{
		logger: client.Logger.With().Str("component", "channelDispatcher").Logger(),

		client: client,

		subscribers: make(map[string][]*DispatchChannel),
	}
}

// Subscribe creates a subscription for the named event type with an
// unbuffered delivery channel.
func (d *ChannelDispatcher) Subscribe(eventType string) *DispatchChannel {
	return d.SubscribeBuffered(eventType, 0)
}

// SubscribeBuffered creates a subscription with the given channel capacity.
func (d *ChannelDispatcher) SubscribeBuffered(eventType string, capacity int) *DispatchChannel {
	channel := &DispatchChannel{
		eventType:  eventType,
		ch:         make(chan ReceivedEvent, capacity),
		done:       make(chan struct{}),
		dispatcher: d,
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		channel.closeOnce.Do(func() {
			close(channel.done)
			close(channel.ch)
		})

		return channel
	}

	d.subscribers[eventType] = append(d.subscribers[eventType], channel)

	return channel
}

func (d *ChannelDispatcher) unsubscribe(channel *DispatchChannel) {
	d.mu.Lock()
	defer d.mu.Unlock()

	subscribers := d.subscribers[channel.eventType]

	for i, sub := range subscribers {
		if sub == channel {
			d.subscribers[channel.eventType] = append(subscribers[:i], subscribers[i+1:]...)

			break
		}
	}

	// The delivery channel stays open; a publisher may still be blocked
	// sending to it. Closing done unblocks that send instead.
	channel.closeOnce.Do(func() { close(channel.done) })
}

// Run consumes the collection's event stream, publishing parsed events to
// subscribers until the context is cancelled or the stream closes. All
// subscriber channels are closed on return.
func (d *ChannelDispatcher) Run(ctx context.Context) error {
	defer d.stop()

	events := d.client.Collection.Events()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-events:
			if !ok {
				return nil
			}

			dispatchEvent, ok := event.(GatewayDispatch)
			if !ok {
				// Lifecycle events have no subscribers here; the
				// stateful dispatcher is the home for those.
				continue
			}

			evtCtx := &EventContext{
				Client:       d.client,
				DispatchName: dispatchEvent.EventName,
				Sequence:     dispatchEvent.Sequence,
				ShardID:      dispatchEvent.Shard(),
			}

			for _, parsed := range d.client.Parser.Parse(evtCtx, dispatchEvent) {
				if chunk, ok := parsed.(GuildMemberChunk); ok {
					d.client.Chunker.onChunk(chunk)
				}

				if err := d.publish(ctx, evtCtx, parsed); err != nil {
					return err
				}
			}
		}
	}
}

// publish delivers an event to every subscriber of its type, blocking per
// subscriber until delivered.
func (d *ChannelDispatcher) publish(ctx context.Context, evtCtx *EventContext, event DispatchedEvent) error {
	d.mu.RLock()
	subscribers := append([]*DispatchChannel{}, d.subscribers[event.EventType()]...)
	d.mu.RUnlock()

	for _, sub := range subscribers {
		select {
		case sub.ch <- ReceivedEvent{Context: evtCtx, Event: event}:
		case <-sub.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}

func (d *ChannelDispatcher) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true

	for _, subscribers := range d.subscribers {
		for _, sub := range subscribers {
			sub.closeOnce.Do(func() {
				close(sub.done)
				close(sub.ch)
			})
		}
	}

	d.subscribers = make(map[string][]*DispatchChannel)
}
