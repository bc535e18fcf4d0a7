package limiter

import (
	"context"
	"sync/atomic"
	"time"
)

// ConcurrencyLimiter bounds how many units of work may run at once. It is
// used by the dispatcher to cap concurrently running handler tasks: when all
// tickets are taken, Wait blocks, which stalls the dispatcher's read loop and
// propagates backpressure up to the gateway.
type ConcurrencyLimiter struct {
	tickets    chan int
	limit      int
	inProgress int32
}

// NewConcurrencyLimiter allocates a new ConcurrencyLimiter with the given
// number of tickets.
func NewConcurrencyLimiter(limit int) *ConcurrencyLimiter {
	c := &ConcurrencyLimiter{
		limit:   limit,
		tickets: make(chan int, limit),
	}

	for i := 0; i < c.limit; i++ {
		c.tickets <- i
	}

	return c
}

// Wait blocks until a ticket is free or the context is cancelled. Callers
// must pass the returned ticket to FreeTicket when done.
func (c *ConcurrencyLimiter) Wait(ctx context.Context) (int, error) {
	select {
	case ticket := <-c.tickets:
		atomic.AddInt32(&c.inProgress, 1)

		return ticket, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// FreeTicket returns a ticket taken with Wait.
func (c *ConcurrencyLimiter) FreeTicket(ticket int) {
	c.tickets <- ticket
	atomic.AddInt32(&c.inProgress, -1)
}

// InProgress returns how many tickets are currently in use.
func (c *ConcurrencyLimiter) InProgress() int32 {
	return atomic.LoadInt32(&c.inProgress)
}

// Drain waits until every ticket has been returned or the context is
// cancelled. Used on shutdown to join in-flight work.
func (c *ConcurrencyLimiter) Drain(ctx context.Context) error {
	taken := make([]int, 0, c.limit)

	defer func() {
		for _, ticket := range taken {
			c.tickets <- ticket
		}
	}()

	for i := 0; i < c.limit; i++ {
		select {
		case ticket := <-c.tickets:
			taken = append(taken, ticket)
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}

// DurationLimiter allows an operation to run only limit times within any
// window of the configured duration. The gateway permits 120 frames a minute;
// the shard keeps under that to leave room for heartbeats.
type DurationLimiter struct {
	limit     int32
	duration  int64
	resetsAt  int64
	available int32
}

// NewDurationLimiter creates a DurationLimiter.
func NewDurationLimiter(limit int32, duration time.Duration) *DurationLimiter {
	return &DurationLimiter{
		limit:    limit,
		duration: duration.Nanoseconds(),
	}
}

// Lock blocks until there is an available slot in the limiter.
func (l *DurationLimiter) Lock() {
	for {
		now := time.Now().UnixNano()

		if atomic.LoadInt64(&l.resetsAt) <= now {
			atomic.StoreInt64(&l.resetsAt, now+l.duration)
			atomic.StoreInt32(&l.available, l.limit)
		}

		if atomic.AddInt32(&l.available, -1) >= 0 {
			return
		}

		time.Sleep(time.Duration(atomic.LoadInt64(&l.resetsAt) - now))
	}
}

// Reset pushes the window forward, freeing no slots until it elapses.
func (l *DurationLimiter) Reset() {
	atomic.StoreInt64(&l.resetsAt, time.Now().UnixNano()+l.duration)
	atomic.StoreInt32(&l.available, 0)
}
