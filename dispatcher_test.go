package chiru

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func messageFrame(content string) GatewayDispatch {
	return dispatchFrame(0, "MESSAGE_CREATE",
		`{"id":"1","channel_id":"500","content":"`+content+`","author":{"id":"2","username":"someone"}}`)
}

func TestDispatcherConcurrencyCap(t *testing.T) {
	client, err := NewClient(zerolog.Nop(), Configuration{
		Token:              "test-token",
		MaxConcurrentTasks: 2,
	})
	require.NoError(t, err)

	dispatcher := NewStatefulDispatcher(client)

	var mu sync.Mutex

	var active, peak int

	handler := func(ctx context.Context, evtCtx *EventContext, event DispatchedEvent) error {
		mu.Lock()
		active++
		if active > peak {
			peak = active
		}
		mu.Unlock()

		time.Sleep(20 * time.Millisecond)

		mu.Lock()
		active--
		mu.Unlock()

		return nil
	}

	for i := 0; i < 4; i++ {
		dispatcher.AddHandler("MessageCreated", handler)
	}

	dispatcher.dispatch(context.Background(), messageFrame("hello"))

	require.NoError(t, dispatcher.drain())

	mu.Lock()
	defer mu.Unlock()

	assert.LessOrEqual(t, peak, 2)
	assert.Zero(t, active)
}

func TestDispatcherHandlerPanicIsIsolated(t *testing.T) {
	client := newTestClient(t)
	dispatcher := NewStatefulDispatcher(client)

	ran := make(chan struct{}, 1)

	dispatcher.AddHandler("MessageCreated", func(ctx context.Context, evtCtx *EventContext, event DispatchedEvent) error {
		panic("handler exploded")
	})
	dispatcher.AddHandler("MessageCreated", func(ctx context.Context, evtCtx *EventContext, event DispatchedEvent) error {
		ran <- struct{}{}

		return nil
	})

	dispatcher.dispatch(context.Background(), messageFrame("boom"))

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("second handler never ran")
	}

	require.NoError(t, dispatcher.drain())
}

func TestDispatcherRunsHandlersInRegistrationOrder(t *testing.T) {
	client, err := NewClient(zerolog.Nop(), Configuration{
		Token:              "test-token",
		MaxConcurrentTasks: 1,
	})
	require.NoError(t, err)

	dispatcher := NewStatefulDispatcher(client)

	var mu sync.Mutex

	var order []int

	for i := 0; i < 3; i++ {
		i := i

		dispatcher.AddHandler("MessageCreated", func(ctx context.Context, evtCtx *EventContext, event DispatchedEvent) error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()

			return nil
		})
	}

	// With a single ticket, handler tasks serialize in the order their
	// tickets were taken, which is registration order.
	dispatcher.dispatch(context.Background(), messageFrame("ordered"))

	require.NoError(t, dispatcher.drain())

	mu.Lock()
	defer mu.Unlock()

	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestDispatcherSynthesizesReadyOnce(t *testing.T) {
	client := newTestClient(t)
	client.Collection = NewCollection(zerolog.Nop(), client.Configuration, "wss://gateway.invalid", 2)

	dispatcher := NewStatefulDispatcher(client)

	readyEvents := make(chan DispatchedEvent, 4)

	dispatcher.AddHandler("Ready", func(ctx context.Context, evtCtx *EventContext, event DispatchedEvent) error {
		readyEvents <- event

		return nil
	})

	dispatcher.dispatch(context.Background(), dispatchFrame(0, "READY", `{"session_id":"a","guilds":[]}`))

	select {
	case <-readyEvents:
		t.Fatal("Ready fired before every shard was ready")
	case <-time.After(50 * time.Millisecond):
	}

	dispatcher.dispatch(context.Background(), dispatchFrame(1, "READY", `{"session_id":"b","guilds":[]}`))

	select {
	case event := <-readyEvents:
		assert.Equal(t, Ready{}, event)
	case <-time.After(time.Second):
		t.Fatal("Ready never fired")
	}

	// A shard re-identifying later must not fire Ready again.
	dispatcher.dispatch(context.Background(), dispatchFrame(0, "READY", `{"session_id":"c","guilds":[]}`))

	select {
	case <-readyEvents:
		t.Fatal("Ready fired twice")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, dispatcher.drain())
}

func TestDispatcherGatewayHandlersRunInline(t *testing.T) {
	client := newTestClient(t)
	dispatcher := NewStatefulDispatcher(client)

	var acks []int64

	dispatcher.AddGatewayHandler("GatewayHeartbeatAck", func(ctx context.Context, event IncomingGatewayEvent) {
		acks = append(acks, event.(GatewayHeartbeatAck).AckCount)
	})

	dispatcher.dispatch(context.Background(), GatewayHeartbeatAck{
		gatewayEvent: gatewayEvent{ShardID: 0},
		AckCount:     3,
	})

	assert.Equal(t, []int64{3}, acks)
}
