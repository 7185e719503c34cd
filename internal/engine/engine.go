package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-addon/internal/ipc"
	"github.com/nerrad567/gray-logic-addon/internal/messages"
)

// supportedGatewayMajor is the newest gateway major version this runtime
// can speak.
const supportedGatewayMajor = 1

// maxDecodeFailures is how many consecutive malformed inbound messages the
// engine tolerates before treating the connection as corrupt and
// reconnecting.
const maxDecodeFailures = 3

// Model is the entity-model surface the engine dispatches into.
// *addon.Manager satisfies it.
type Model interface {
	HandleMessage(env messages.Envelope) error
	AdapterIDs() []string
}

// Logger is the minimal logging surface the engine needs.
// *logging.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config holds the engine's protocol and lifecycle settings.
type Config struct {
	// PluginID identifies this plugin to the gateway.
	PluginID string

	// RequestTimeout bounds how long a correlated request waits for its
	// response.
	RequestTimeout time.Duration

	// HandshakeTimeout bounds the register exchange after connecting.
	HandshakeTimeout time.Duration

	// ReconnectInitialDelay is the first backoff delay after a failure.
	ReconnectInitialDelay time.Duration

	// ReconnectMaxDelay caps the backoff delay.
	ReconnectMaxDelay time.Duration

	// ReconnectMaxAttempts limits consecutive failed connection attempts.
	// Zero means retry forever.
	ReconnectMaxAttempts int

	// OutboundQueueSize is the capacity of the outbound message queue.
	OutboundQueueSize int

	// DrainGrace bounds the final flush during shutdown.
	DrainGrace time.Duration
}

func (c *Config) applyDefaults() {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.ReconnectInitialDelay <= 0 {
		c.ReconnectInitialDelay = time.Second
	}
	if c.ReconnectMaxDelay <= 0 {
		c.ReconnectMaxDelay = 2 * time.Minute
	}
	if c.OutboundQueueSize <= 0 {
		c.OutboundQueueSize = 256
	}
	if c.DrainGrace <= 0 {
		c.DrainGrace = 5 * time.Second
	}
}

// Engine drives the plugin side of the gateway protocol: it owns the
// connection lifecycle (connect, handshake, run, reconnect, drain), the
// outbound queue, and the request/response correlation table.
//
// Engine implements the addon.Emitter interface, so the entity model sends
// through it without knowing about connections.
type Engine struct {
	cfg    Config
	dial   ipc.Dialer
	codec  messages.Codec
	logger Logger
	model  Model

	pending  *pendingTable
	outbound chan []byte

	draining        atomic.Bool
	unloadRequested atomic.Bool

	stopOnce sync.Once
	stopCh   chan struct{}
}

// Option customises an Engine.
type Option func(*Engine)

// WithLogger attaches a logger to the engine.
func WithLogger(l Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an engine. Attach the entity model with AttachModel before
// calling Run.
//
// Parameters:
//   - cfg: protocol and lifecycle settings; zero fields get defaults
//   - dial: opens a channel to the gateway on each connection attempt
//   - opts: optional logger
//
// Returns:
//   - *Engine: ready for AttachModel and Run
func New(cfg Config, dial ipc.Dialer, opts ...Option) *Engine {
	cfg.applyDefaults()
	e := &Engine{
		cfg:      cfg,
		dial:     dial,
		logger:   noopLogger{},
		pending:  newPendingTable(cfg.RequestTimeout),
		outbound: make(chan []byte, cfg.OutboundQueueSize),
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AttachModel wires the entity model the engine dispatches inbound
// messages into. Must be called before Run.
func (e *Engine) AttachModel(m Model) { e.model = m }

// Notify queues a fire-and-forget envelope for delivery to the gateway.
//
// Returns an error if the envelope cannot be encoded, the queue is full,
// or the engine is draining. Queued envelopes survive reconnects.
func (e *Engine) Notify(env messages.Envelope) error {
	raw, err := e.codec.Encode(env)
	if err != nil {
		return err
	}
	return e.enqueue(raw)
}

// Request queues a correlated envelope and registers its completion
// callback. The engine assigns the correlation id.
//
// done is invoked exactly once: with the gateway's response, with
// ErrRequestTimeout, or with ErrConnectionLost/ErrDraining if the
// connection or the engine goes away first. If Request itself returns an
// error the callback is never invoked.
func (e *Engine) Request(env messages.Envelope, done func(resp *messages.GatewayResponse, err error)) error {
	corr, ok := env.Data.(messages.Correlated)
	if !ok {
		return fmt.Errorf("engine: %s payload is not correlatable", env.MessageType)
	}
	if e.draining.Load() {
		return ErrDraining
	}

	id := e.pending.register(done)
	corr.SetMessageID(id)

	raw, err := e.codec.Encode(env)
	if err != nil {
		e.pending.cancel(id)
		return err
	}
	if err := e.enqueue(raw); err != nil {
		e.pending.cancel(id)
		return err
	}
	return nil
}

func (e *Engine) enqueue(raw []byte) error {
	if e.draining.Load() {
		return ErrDraining
	}
	select {
	case e.outbound <- raw:
		return nil
	default:
		return fmt.Errorf("engine: outbound queue full (%d)", cap(e.outbound))
	}
}

// Run drives the connection state machine until ctx is cancelled, the
// gateway requests unload, or a fatal error occurs.
//
// Returns:
//   - error: nil after a clean drain; ErrProtocolVersion or
//     ErrReconnectExhausted on fatal conditions
func (e *Engine) Run(ctx context.Context) error {
	if e.model == nil {
		return errors.New("engine: no model attached")
	}

	delay := e.cfg.ReconnectInitialDelay
	attempts := 0

	for {
		if err := e.checkStopped(ctx); err != nil {
			return nil
		}

		e.logger.Info("connecting to gateway", "attempt", attempts+1)
		ch, err := e.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			attempts++
			if e.cfg.ReconnectMaxAttempts > 0 && attempts >= e.cfg.ReconnectMaxAttempts {
				return fmt.Errorf("%w: after %d attempts: %v", ErrReconnectExhausted, attempts, err)
			}
			e.logger.Warn("connection failed", "error", err, "retry_in", delay.String())
			if !sleepCtx(ctx, delay) {
				return nil
			}
			delay = nextDelay(delay, e.cfg.ReconnectMaxDelay)
			continue
		}

		if err := e.handshake(ch); err != nil {
			ch.Close()
			if errors.Is(err, ErrProtocolVersion) {
				return err
			}
			attempts++
			if e.cfg.ReconnectMaxAttempts > 0 && attempts >= e.cfg.ReconnectMaxAttempts {
				return fmt.Errorf("%w: after %d attempts: %v", ErrReconnectExhausted, attempts, err)
			}
			e.logger.Warn("handshake failed", "error", err, "retry_in", delay.String())
			if !sleepCtx(ctx, delay) {
				return nil
			}
			delay = nextDelay(delay, e.cfg.ReconnectMaxDelay)
			continue
		}

		attempts = 0
		delay = e.cfg.ReconnectInitialDelay

		err = e.session(ctx, ch)
		if err == nil {
			// Shutdown requested: drain on the still-open channel.
			e.drainAndClose(ch)
			return nil
		}

		e.logger.Warn("connection lost", "error", err)
		e.pending.failAll(ErrConnectionLost)
		ch.Close()
	}
}

// handshake registers the plugin and verifies the gateway version.
func (e *Engine) handshake(ch ipc.Channel) error {
	raw, err := e.codec.Encode(messages.Envelope{
		MessageType: messages.TypePluginRegisterRequest,
		Data:        &messages.PluginRegisterRequest{PluginID: e.cfg.PluginID},
	})
	if err != nil {
		return fmt.Errorf("engine: encode register request: %w", err)
	}
	if err := ch.Send(raw); err != nil {
		return fmt.Errorf("engine: send register request: %w", err)
	}

	// A timer-driven close bounds the wait; Receive has no deadline of
	// its own.
	timedOut := &atomic.Bool{}
	timer := time.AfterFunc(e.cfg.HandshakeTimeout, func() {
		timedOut.Store(true)
		ch.Close()
	})
	defer timer.Stop()

	for {
		raw, err := ch.Receive()
		if err != nil {
			if timedOut.Load() {
				return errors.New("engine: handshake timed out")
			}
			return fmt.Errorf("engine: handshake receive: %w", err)
		}

		env, err := e.codec.Decode(raw)
		if err != nil {
			e.logger.Warn("undecodable message during handshake", "error", err)
			continue
		}
		if env.MessageType != messages.TypePluginRegisterResponse {
			e.logger.Warn("message before registration dropped",
				"message_type", string(env.MessageType))
			continue
		}

		// Stop the timer before declaring success; if it already fired the
		// channel is closed (or about to be) and the handshake is void.
		if !timer.Stop() {
			return errors.New("engine: handshake timed out")
		}

		resp := env.Data.(*messages.PluginRegisterResponse)
		if err := checkGatewayVersion(resp.GatewayVersion); err != nil {
			return err
		}
		e.logger.Info("registered with gateway",
			"plugin_id", resp.PluginID,
			"gateway_version", resp.GatewayVersion)
		return nil
	}
}

// session runs the reader and writer until the connection fails or
// shutdown is requested. Returns nil on shutdown, the connection error
// otherwise. On the shutdown path the writer is joined before returning,
// so the drain flush is the only remaining consumer of the outbound
// queue; the reader stays blocked in Receive until closing the channel
// after draining releases it.
func (e *Engine) session(ctx context.Context, ch ipc.Channel) error {
	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	writerErr := make(chan error, 1)
	readerErr := make(chan error, 1)

	go func() { writerErr <- e.writeLoop(sctx, ch) }()
	go func() { readerErr <- e.readLoop(ch) }()

	select {
	case <-ctx.Done():
	case <-e.stopCh:
	case err := <-writerErr:
		return err
	case err := <-readerErr:
		return err
	}

	cancel()
	<-writerErr
	return nil
}

// writeLoop drains the outbound queue onto the channel.
func (e *Engine) writeLoop(ctx context.Context, ch ipc.Channel) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw := <-e.outbound:
			if err := ch.Send(raw); err != nil {
				return err
			}
		}
	}
}

// readLoop receives, decodes and dispatches inbound messages. Three
// consecutive malformed messages end the session; unknown message types
// are skipped without counting.
func (e *Engine) readLoop(ch ipc.Channel) error {
	decodeFailures := 0
	for {
		raw, err := ch.Receive()
		if err != nil {
			return err
		}

		env, err := e.codec.Decode(raw)
		switch {
		case errors.Is(err, messages.ErrUnknownMessageType):
			e.logger.Debug("unknown message type skipped", "error", err)
			continue
		case err != nil:
			decodeFailures++
			e.logger.Warn("malformed message",
				"error", err, "consecutive", decodeFailures)
			if decodeFailures >= maxDecodeFailures {
				return fmt.Errorf("engine: %d consecutive malformed messages", decodeFailures)
			}
			continue
		}
		decodeFailures = 0

		e.dispatch(env)
	}
}

// dispatch routes one decoded envelope: correlated responses to the pending
// table, lifecycle requests to the engine, everything else to the model.
func (e *Engine) dispatch(env messages.Envelope) {
	switch data := env.Data.(type) {
	case *messages.GatewayResponse:
		if !e.pending.resolve(data.MessageID, data) {
			e.logger.Warn("response for unknown request dropped",
				"message_id", data.MessageID)
		}
	case *messages.PluginRegisterResponse:
		e.logger.Warn("unexpected register response outside handshake")
	case *messages.PluginUnloadRequest:
		e.logger.Info("gateway requested unload")
		e.unloadRequested.Store(true)
		e.requestStop()
	default:
		if err := e.model.HandleMessage(env); err != nil {
			e.logger.Error("dispatch failed",
				"message_type", string(env.MessageType), "error", err)
		}
	}
}

// drainAndClose performs the shutdown sequence: fail outstanding requests,
// flush the outbound queue, unregister adapters, confirm unload if the
// gateway asked for it, then close the channel.
func (e *Engine) drainAndClose(ch ipc.Channel) {
	e.draining.Store(true)
	e.pending.failAll(ErrDraining)

	deadline := time.Now().Add(e.cfg.DrainGrace)
	e.logger.Info("draining", "queued", len(e.outbound), "grace", e.cfg.DrainGrace.String())

flush:
	for time.Now().Before(deadline) {
		select {
		case raw := <-e.outbound:
			if err := ch.Send(raw); err != nil {
				e.logger.Warn("drain send failed", "error", err)
				break flush
			}
		default:
			break flush
		}
	}

	for _, adapterID := range e.model.AdapterIDs() {
		e.sendDirect(ch, messages.Envelope{
			MessageType: messages.TypeAdapterUnloadResponse,
			Data: &messages.AdapterUnloadResponse{
				PluginID:  e.cfg.PluginID,
				AdapterID: adapterID,
			},
		})
	}
	if e.unloadRequested.Load() {
		e.sendDirect(ch, messages.Envelope{
			MessageType: messages.TypePluginUnloadResponse,
			Data:        &messages.PluginUnloadResponse{PluginID: e.cfg.PluginID},
		})
	}

	ch.Close()
}

func (e *Engine) sendDirect(ch ipc.Channel, env messages.Envelope) {
	raw, err := e.codec.Encode(env)
	if err != nil {
		e.logger.Error("encode during drain failed",
			"message_type", string(env.MessageType), "error", err)
		return
	}
	if err := ch.Send(raw); err != nil {
		e.logger.Warn("send during drain failed",
			"message_type", string(env.MessageType), "error", err)
	}
}

// Pending reports the number of outstanding correlated requests.
func (e *Engine) Pending() int { return e.pending.size() }

func (e *Engine) requestStop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
}

func (e *Engine) checkStopped(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopCh:
		return errors.New("stopped")
	default:
		return nil
	}
}

// checkGatewayVersion parses the major component of the gateway's version
// and rejects anything newer than this runtime supports.
func checkGatewayVersion(version string) error {
	majorStr, _, _ := strings.Cut(version, ".")
	major, err := strconv.Atoi(majorStr)
	if err != nil {
		return fmt.Errorf("%w: unparseable version %q", ErrProtocolVersion, version)
	}
	if major > supportedGatewayMajor {
		return fmt.Errorf("%w: gateway %s, supported major %d", ErrProtocolVersion, version, supportedGatewayMajor)
	}
	return nil
}

// nextDelay grows the backoff by half, capped.
func nextDelay(current, max time.Duration) time.Duration {
	next := current + current/2
	if next > max {
		return max
	}
	return next
}

// sleepCtx waits for d or until ctx is done. Returns false if ctx ended
// the wait.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
