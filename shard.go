package chiru

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/WelcomerTeam/czlib"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	gotils_strconv "github.com/savsgio/gotils/strconv"
	"go.uber.org/atomic"
	"nhooyr.io/websocket"

	"github.com/Fuyukai/chiru/discord"
	"github.com/Fuyukai/chiru/pkg/limiter"
)

const (
	websocketReadLimit          = 512 << 20
	websocketReconnectCloseCode = 4000

	gatewayLargeThreshold = 250

	// The gateway allows 120 frames per minute. We keep under that to
	// leave room for heartbeats.
	shardWSRateLimit = 110

	// How long a connection must stay in the ready state before its
	// reconnect backoff and retry budget are reset.
	steadyStateThreshold = 1 * time.Minute
)

// ShardStatus is the connection state of a single shard.
type ShardStatus int32

const (
	ShardStatusDisconnected ShardStatus = iota
	ShardStatusConnecting
	ShardStatusAwaitingHello
	ShardStatusAuthenticating
	ShardStatusReady
	ShardStatusReconnecting
	ShardStatusClosed
)

func (s ShardStatus) String() string {
	switch s {
	case ShardStatusDisconnected:
		return "disconnected"
	case ShardStatusConnecting:
		return "connecting"
	case ShardStatusAwaitingHello:
		return "awaiting hello"
	case ShardStatusAuthenticating:
		return "authenticating"
	case ShardStatusReady:
		return "ready"
	case ShardStatusReconnecting:
		return "reconnecting"
	case ShardStatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// List of handlers for gateway frames, keyed by operation code.
var gatewayHandlers = make(map[discord.GatewayOp]func(ctx context.Context, sh *Shard, msg discord.GatewayPayload) error)

func registerGatewayEvent(op discord.GatewayOp, handler func(ctx context.Context, sh *Shard, msg discord.GatewayPayload) error) {
	gatewayHandlers[op] = handler
}

// Shard is a single connection to the gateway. Incoming frames are converted
// into IncomingGatewayEvents and pushed onto the collection's event channel.
type Shard struct {
	Logger zerolog.Logger

	ShardID    int32
	ShardCount int32

	configuration *Configuration

	// events is the collection's merged channel. Dispatches block on it;
	// voidable lifecycle events are dropped when it is full.
	events chan<- IncomingGatewayEvent

	status *atomic.Int32

	Sequence         *atomic.Int64
	SessionID        *atomic.String
	ResumeGatewayURL *atomic.String
	ConnectionURL    *atomic.String

	LastHeartbeatAck  *atomic.Time
	LastHeartbeatSent *atomic.Time

	heartbeatInterval time.Duration
	heartbeatCount    *atomic.Int64
	ackCount          *atomic.Int64

	RetriesRemaining *atomic.Int32

	channelMu sync.RWMutex
	MessageCh chan discord.GatewayPayload
	ErrorCh   chan error

	wsConnMu sync.RWMutex
	wsConn   *websocket.Conn

	wsRatelimit *limiter.DurationLimiter

	// pending buffers outgoing events submitted whilst the shard is not
	// ready. It is flushed on READY and RESUMED.
	pendingMu sync.Mutex
	pending   []OutgoingGatewayEvent

	outgoingCh chan OutgoingGatewayEvent
}

// NewShard creates a shard that will feed events into the given channel.
func NewShard(logger zerolog.Logger, configuration *Configuration, shardID, shardCount int32, events chan<- IncomingGatewayEvent) *Shard {
	return &Shard{
		Logger: logger.With().Int32("shardId", shardID).Logger(),

		ShardID:    shardID,
		ShardCount: shardCount,

		configuration: configuration,

		events: events,

		status: atomic.NewInt32(int32(ShardStatusDisconnected)),

		Sequence:         &atomic.Int64{},
		SessionID:        &atomic.String{},
		ResumeGatewayURL: &atomic.String{},
		ConnectionURL:    &atomic.String{},

		LastHeartbeatAck:  &atomic.Time{},
		LastHeartbeatSent: &atomic.Time{},

		heartbeatCount: &atomic.Int64{},
		ackCount:       &atomic.Int64{},

		RetriesRemaining: atomic.NewInt32(configuration.ConnectRetries),

		wsRatelimit: limiter.NewDurationLimiter(shardWSRateLimit, time.Minute),

		outgoingCh: make(chan OutgoingGatewayEvent, configuration.OutgoingQueueSize),
	}
}

// GetStatus returns the shard's current status.
func (sh *Shard) GetStatus() ShardStatus {
	return ShardStatus(sh.status.Load())
}

// SetStatus sets the shard's current status.
func (sh *Shard) SetStatus(status ShardStatus) {
	sh.Logger.Debug().Stringer("status", status).Msg("Shard status changed")
	sh.status.Store(int32(status))
}

// Latency returns the heartbeat round trip time of the last acknowledged
// heartbeat.
func (sh *Shard) Latency() time.Duration {
	return sh.LastHeartbeatAck.Load().Sub(sh.LastHeartbeatSent.Load())
}

// Open connects the shard and keeps it connected until the context is
// cancelled or a fatal error occurs. Transient failures reconnect with
// exponential backoff; the retry budget and backoff are reset after the
// connection holds steady for a while.
func (sh *Shard) Open(ctx context.Context) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Second
	policy.MaxInterval = sh.configuration.MaxReconnectWait
	policy.MaxElapsedTime = 0

	for {
		connectedAt := time.Now()

		err := sh.run(ctx)

		sh.closeWS(websocket.StatusNormalClosure)

		switch {
		case ctx.Err() != nil:
			sh.SetStatus(ShardStatusClosed)

			return nil
		case isFatal(err):
			sh.SetStatus(ShardStatusClosed)
			sh.Logger.Error().Err(err).Msg("Shard hit a fatal error")

			return err
		}

		if time.Since(connectedAt) > steadyStateThreshold {
			policy.Reset()
			sh.RetriesRemaining.Store(sh.configuration.ConnectRetries)
		}

		if sh.RetriesRemaining.Dec() <= 0 {
			sh.SetStatus(ShardStatusClosed)
			sh.Logger.Warn().Msg("Ran out of retries whilst connecting")

			return ErrRetriesExhausted
		}

		wait := policy.NextBackOff()

		sh.SetStatus(ShardStatusReconnecting)
		sh.Logger.Warn().Err(err).Dur("retry", wait).Msg("Shard disconnected, reconnecting")

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			sh.SetStatus(ShardStatusClosed)

			return nil
		}
	}
}

// run performs one full connect-and-listen cycle.
func (sh *Shard) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := sh.connect(ctx); err != nil {
		return err
	}

	return sh.listen(ctx)
}

// connect dials the gateway, performs the Hello handshake and sends either
// an identify or a resume.
func (sh *Shard) connect(ctx context.Context) error {
	if sh.GetStatus() != ShardStatusReconnecting {
		sh.SetStatus(ShardStatusConnecting)
	}

	gatewayURL := sh.ConnectionURL.Load()

	if resumeURL := sh.ResumeGatewayURL.Load(); resumeURL != "" && sh.SessionID.Load() != "" {
		gatewayURL = resumeURL

		sh.Logger.Debug().Str("url", gatewayURL).Msg("Resuming shard")
	} else {
		sh.SessionID.Store("")
		sh.Sequence.Store(0)
	}

	if err := sh.feedWebsocket(ctx, gatewayURL); err != nil {
		sh.Logger.Error().Err(err).Msg("Failed to dial gateway")

		return err
	}

	sh.SetStatus(ShardStatusAwaitingHello)

	msg, err := sh.readMessage(ctx)
	if err != nil {
		sh.Logger.Error().Err(err).Msg("Failed to read message")

		return err
	}

	if msg.Op != discord.GatewayOpHello {
		return fmt.Errorf("expected hello, got op %d", msg.Op)
	}

	var hello discord.Hello

	if err := sh.decodeContent(msg, &hello); err != nil {
		return err
	}

	now := time.Now().UTC()

	sh.LastHeartbeatAck.Store(now)
	sh.LastHeartbeatSent.Store(now)
	sh.heartbeatInterval = time.Duration(hello.HeartbeatInterval) * time.Millisecond

	sh.Logger.Debug().
		Dur("interval", sh.heartbeatInterval).
		Msg("Received HELLO event")

	sh.emitVoidable(GatewayHello{
		gatewayEvent:      gatewayEvent{ShardID: sh.ShardID},
		HeartbeatInterval: hello.HeartbeatInterval,
	})

	go sh.heartbeat(ctx)

	sh.SetStatus(ShardStatusAuthenticating)

	if sh.SessionID.Load() == "" || sh.Sequence.Load() == 0 {
		err = sh.identify(ctx)
	} else {
		err = sh.resume(ctx)
	}

	if err != nil {
		sh.Logger.Error().Err(err).Msg("Failed to authenticate")

		return err
	}

	return nil
}

// identify sends the identify packet to the gateway.
func (sh *Shard) identify(ctx context.Context) error {
	sh.Logger.Debug().Msg("Sending identify")

	return sh.sendEvent(ctx, discord.GatewayOpIdentify, discord.Identify{
		Token: sh.configuration.Token,
		Properties: &discord.IdentifyProperties{
			OS:      runtime.GOOS,
			Browser: "chiru " + VERSION,
			Device:  "chiru " + VERSION,
		},
		Compress:       true,
		LargeThreshold: gatewayLargeThreshold,
		Shard:          [2]int32{sh.ShardID, sh.ShardCount},
		Intents:        sh.configuration.Intents,
	})
}

// resume sends the resume packet to the gateway.
func (sh *Shard) resume(ctx context.Context) error {
	sh.Logger.Debug().
		Int64("sequence", sh.Sequence.Load()).
		Msg("Sending resume")

	return sh.sendEvent(ctx, discord.GatewayOpResume, discord.Resume{
		Token:     sh.configuration.Token,
		SessionID: sh.SessionID.Load(),
		Sequence:  sh.Sequence.Load(),
	})
}

// heartbeat maintains a heartbeat with the gateway. The first heartbeat is
// jittered inside the interval so a fleet of shards does not beat in sync.
func (sh *Shard) heartbeat(ctx context.Context) {
	jitter := time.Duration(rand.Float64() * float64(sh.heartbeatInterval))

	first := time.NewTimer(jitter)
	defer first.Stop()

	select {
	case <-first.C:
	case <-ctx.Done():
		return
	}

	ticker := time.NewTicker(sh.heartbeatInterval)
	defer ticker.Stop()

	for {
		if err := sh.sendHeartbeat(ctx); err != nil {
			sh.pushError(err)

			return
		}

		select {
		case <-ticker.C:
			// A heartbeat sent a full interval ago with no ack since
			// means the connection is dead, even if reads still block
			// without erroring.
			if sh.LastHeartbeatAck.Load().Before(sh.LastHeartbeatSent.Load()) {
				sh.Logger.Warn().Msg("Heartbeat was not acknowledged within the interval")
				sh.pushError(ErrReconnect)

				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (sh *Shard) sendHeartbeat(ctx context.Context) error {
	sequence := sh.Sequence.Load()

	if err := sh.sendEvent(ctx, discord.GatewayOpHeartbeat, sequence); err != nil {
		sh.Logger.Error().Err(err).Msg("Failed to send heartbeat")

		return err
	}

	sh.LastHeartbeatSent.Store(time.Now().UTC())

	sh.emitVoidable(GatewayHeartbeatSent{
		gatewayEvent: gatewayEvent{ShardID: sh.ShardID},
		Count:        sh.heartbeatCount.Inc(),
		Sequence:     sequence,
	})

	return nil
}

// pushError feeds an error into the shard's error channel, waking the listen
// loop.
func (sh *Shard) pushError(err error) {
	sh.channelMu.RLock()
	errorCh := sh.ErrorCh
	sh.channelMu.RUnlock()

	select {
	case errorCh <- err:
	default:
	}
}

// listen processes gateway frames and outgoing events until the connection
// drops or the context is cancelled.
func (sh *Shard) listen(ctx context.Context) error {
	sh.channelMu.RLock()
	errorCh := sh.ErrorCh
	messageCh := sh.MessageCh
	sh.channelMu.RUnlock()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errorCh:
			return sh.mapConnectionError(err)
		case msg := <-messageCh:
			if err := sh.onEvent(ctx, msg); err != nil {
				return err
			}
		case event := <-sh.outgoingCh:
			if err := sh.writeOutgoing(ctx, event); err != nil {
				sh.Logger.Error().Err(err).Msg("Failed to write outgoing event")
			}
		}
	}
}

// mapConnectionError converts websocket close codes into the shard's error
// taxonomy. Codes that cannot be recovered by reconnecting are fatal.
func (sh *Shard) mapConnectionError(err error) error {
	if err == nil {
		return errors.New("error channel closed")
	}

	var closeError websocket.CloseError

	if errors.As(err, &closeError) {
		sh.Logger.Warn().
			Int("code", int(closeError.Code)).
			Msg("Websocket was closed")

		switch int(closeError.Code) {
		case discord.CloseAuthenticationFailed:
			return ErrAuthenticationFailed
		case discord.CloseShardingRequired:
			return ErrShardingRequired
		case discord.CloseInvalidShard:
			return ErrInvalidShard
		case discord.CloseInvalidIntents, discord.CloseDisallowedIntents:
			return ErrInvalidIntents
		case discord.CloseInvalidSeq, discord.CloseSessionTimeout:
			// The session is gone. Clear it so we re-identify.
			sh.SessionID.Store("")
			sh.Sequence.Store(0)

			return ErrReconnect
		}
	}

	return err
}

func isFatal(err error) bool {
	return errors.Is(err, ErrAuthenticationFailed) ||
		errors.Is(err, ErrShardingRequired) ||
		errors.Is(err, ErrInvalidShard) ||
		errors.Is(err, ErrInvalidIntents)
}

// onEvent routes a gateway frame to its operation handler.
func (sh *Shard) onEvent(ctx context.Context, msg discord.GatewayPayload) error {
	handler, ok := gatewayHandlers[msg.Op]
	if !ok {
		sh.Logger.Warn().
			Int("op", int(msg.Op)).
			Str("type", msg.Type).
			Msg("Gateway sent unknown packet")

		return nil
	}

	return handler(ctx, sh, msg)
}

func gatewayOpDispatch(ctx context.Context, sh *Shard, msg discord.GatewayPayload) error {
	if msg.Sequence != 0 {
		sh.Sequence.Store(msg.Sequence)
	}

	chiruDispatchEventCount.WithLabelValues(
		strconv.Itoa(int(sh.ShardID)), msg.Type,
	).Inc()

	switch msg.Type {
	case "READY":
		var ready discord.Ready

		if err := sh.decodeContent(msg, &ready); err != nil {
			return err
		}

		sh.SessionID.Store(ready.SessionID)
		sh.ResumeGatewayURL.Store(ready.ResumeGatewayURL)

		sh.Logger.Info().
			Str("sessionId", ready.SessionID).
			Int("guilds", len(ready.Guilds)).
			Msg("Shard received READY")

		sh.markReady(ctx)
	case "RESUMED":
		sh.Logger.Info().Msg("Shard resumed")

		sh.markReady(ctx)
	}

	// Dispatches are never dropped. If the consumer stalls, so do we, and
	// backpressure reaches the gateway through the unread socket.
	return sh.emitDispatch(ctx, GatewayDispatch{
		gatewayEvent: gatewayEvent{ShardID: sh.ShardID},
		EventName:    msg.Type,
		Sequence:     msg.Sequence,
		Body:         msg.Data,
	})
}

func gatewayOpHeartbeat(ctx context.Context, sh *Shard, _ discord.GatewayPayload) error {
	return sh.sendHeartbeat(ctx)
}

func gatewayOpReconnect(_ context.Context, sh *Shard, _ discord.GatewayPayload) error {
	sh.Logger.Info().Msg("Reconnecting in response to gateway")

	sh.emitVoidable(GatewayReconnectRequested{
		gatewayEvent: gatewayEvent{ShardID: sh.ShardID},
	})

	return ErrReconnect
}

func gatewayOpInvalidSession(_ context.Context, sh *Shard, msg discord.GatewayPayload) error {
	resumable := jsonDecoder.Get(msg.Data).ToBool()
	if !resumable {
		sh.SessionID.Store("")
		sh.Sequence.Store(0)
	}

	sh.Logger.Warn().Bool("resumable", resumable).Msg("Received invalid session")

	sh.emitVoidable(GatewayInvalidateSession{
		gatewayEvent: gatewayEvent{ShardID: sh.ShardID},
		Resumable:    resumable,
	})

	return ErrReconnect
}

func gatewayOpHeartbeatACK(_ context.Context, sh *Shard, _ discord.GatewayPayload) error {
	sh.LastHeartbeatAck.Store(time.Now().UTC())

	latency := sh.Latency()

	sh.Logger.Debug().
		Int64("RTT", latency.Milliseconds()).
		Msg("Received heartbeat ACK")

	chiruGatewayLatency.WithLabelValues(
		strconv.Itoa(int(sh.ShardID)),
	).Set(latency.Seconds())

	sh.emitVoidable(GatewayHeartbeatAck{
		gatewayEvent: gatewayEvent{ShardID: sh.ShardID},
		AckCount:     sh.ackCount.Inc(),
	})

	return nil
}

func init() {
	registerGatewayEvent(discord.GatewayOpDispatch, gatewayOpDispatch)
	registerGatewayEvent(discord.GatewayOpHeartbeat, gatewayOpHeartbeat)
	registerGatewayEvent(discord.GatewayOpReconnect, gatewayOpReconnect)
	registerGatewayEvent(discord.GatewayOpInvalidSession, gatewayOpInvalidSession)
	registerGatewayEvent(discord.GatewayOpHeartbeatACK, gatewayOpHeartbeatACK)
}

// markReady transitions to the ready state and flushes outgoing events that
// were queued whilst the shard could not send.
func (sh *Shard) markReady(ctx context.Context) {
	sh.SetStatus(ShardStatusReady)

	sh.pendingMu.Lock()
	pending := sh.pending
	sh.pending = nil
	sh.pendingMu.Unlock()

	for _, event := range pending {
		if err := sh.writeOutgoing(ctx, event); err != nil {
			sh.Logger.Error().Err(err).Msg("Failed to flush queued event")
		}
	}
}

// Send submits an outgoing event. If the shard is not ready it is queued and
// flushed once the shard is, up to the queue's capacity.
func (sh *Shard) Send(event OutgoingGatewayEvent) error {
	if sh.GetStatus() == ShardStatusClosed {
		return ErrShardNotRunning
	}

	if sh.GetStatus() != ShardStatusReady {
		sh.pendingMu.Lock()
		defer sh.pendingMu.Unlock()

		if len(sh.pending) >= sh.configuration.OutgoingQueueSize {
			return ErrOutgoingQueueFull
		}

		sh.pending = append(sh.pending, event)

		return nil
	}

	select {
	case sh.outgoingCh <- event:
		return nil
	default:
		return ErrOutgoingQueueFull
	}
}

func (sh *Shard) writeOutgoing(ctx context.Context, event OutgoingGatewayEvent) error {
	payload, err := event.payload()
	if err != nil {
		return err
	}

	return sh.sendEvent(ctx, payload.Op, payload.Data)
}

// emitVoidable pushes a droppable lifecycle event onto the event channel. If
// the channel is full the event is discarded.
func (sh *Shard) emitVoidable(event IncomingGatewayEvent) {
	select {
	case sh.events <- event:
	default:
		chiruVoidableDroppedCount.WithLabelValues(
			strconv.Itoa(int(sh.ShardID)),
		).Inc()

		sh.Logger.Trace().
			Str("event", event.Type()).
			Msg("Dropped voidable event, channel full")
	}
}

// emitDispatch pushes a dispatch onto the event channel, blocking until the
// consumer takes it or the context is cancelled.
func (sh *Shard) emitDispatch(ctx context.Context, event GatewayDispatch) error {
	select {
	case sh.events <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// feedWebsocket dials the gateway and starts the read pump, which feeds
// parsed frames into MessageCh and connection failures into ErrorCh.
func (sh *Shard) feedWebsocket(ctx context.Context, gatewayURL string) error {
	messageCh := make(chan discord.GatewayPayload, sh.configuration.MessageChannelBuffer)
	errorCh := make(chan error, 1)

	conn, _, err := websocket.Dial(ctx, gatewayURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to websocket: %w", err)
	}

	conn.SetReadLimit(websocketReadLimit)

	sh.wsConnMu.Lock()
	sh.wsConn = conn
	sh.wsConnMu.Unlock()

	sh.channelMu.Lock()
	sh.MessageCh = messageCh
	sh.ErrorCh = errorCh
	sh.channelMu.Unlock()

	go func() {
		for {
			messageType, data, connectionErr := conn.Read(ctx)

			select {
			case <-ctx.Done():
				return
			default:
			}

			chiruEventCount.WithLabelValues(
				strconv.Itoa(int(sh.ShardID)),
			).Inc()

			if connectionErr != nil {
				errorCh <- connectionErr

				return
			}

			if messageType == websocket.MessageBinary {
				data, connectionErr = czlib.Decompress(data)
				if connectionErr != nil {
					sh.Logger.Error().Err(connectionErr).Msg("Failed to decompress data")
					errorCh <- connectionErr

					return
				}
			}

			var msg discord.GatewayPayload

			if connectionErr = jsonDecoder.Unmarshal(data, &msg); connectionErr != nil {
				sh.Logger.Error().Err(connectionErr).Msg("Failed to unmarshal message")

				continue
			}

			select {
			case messageCh <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// readMessage reads a single frame from the read pump.
func (sh *Shard) readMessage(ctx context.Context) (discord.GatewayPayload, error) {
	sh.channelMu.RLock()
	errorCh := sh.ErrorCh
	messageCh := sh.MessageCh
	sh.channelMu.RUnlock()

	select {
	case err := <-errorCh:
		return discord.GatewayPayload{}, err
	case msg := <-messageCh:
		return msg, nil
	case <-ctx.Done():
		return discord.GatewayPayload{}, ctx.Err()
	}
}

// sendEvent sends a single frame to the gateway.
func (sh *Shard) sendEvent(ctx context.Context, op discord.GatewayOp, data any) error {
	res, err := jsonDecoder.Marshal(discord.SentPayload{
		Op:   op,
		Data: data,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	// Heartbeats bypass the rate limit so a busy send queue can never
	// kill the connection.
	if op != discord.GatewayOpHeartbeat {
		sh.wsRatelimit.Lock()
	}

	sh.wsConnMu.RLock()
	wsConn := sh.wsConn
	sh.wsConnMu.RUnlock()

	if wsConn == nil {
		return ErrShardNotRunning
	}

	sh.Logger.Trace().Msg("<<< " + gotils_strconv.B2S(res))

	if err := wsConn.Write(ctx, websocket.MessageText, res); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	return nil
}

// decodeContent converts the frame's data into the passed value.
func (sh *Shard) decodeContent(msg discord.GatewayPayload, out any) error {
	if err := jsonDecoder.Unmarshal(msg.Data, out); err != nil {
		sh.Logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to decode event")

		return err
	}

	return nil
}

func (sh *Shard) closeWS(statusCode websocket.StatusCode) {
	sh.wsConnMu.Lock()
	wsConn := sh.wsConn
	sh.wsConn = nil
	sh.wsConnMu.Unlock()

	if wsConn == nil {
		return
	}

	sh.Logger.Debug().Int("code", int(statusCode)).Msg("Closing websocket connection")

	if err := wsConn.Close(statusCode, ""); err != nil && !errors.Is(err, context.Canceled) {
		sh.Logger.Debug().Err(err).Msg("Encountered error closing websocket")
	}
}
