// Package server coordinates connection registration, inbound event dispatch,
// message broadcast and connection cleanup for the GoChat system via the Hub type.
package server

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Conn is the transport primitive the hub talks to. Send must not block; an
// error means the event was not queued for that connection.
type Conn interface {
	ID() string
	Send(ev Event) error
	Close()
}

// pumper is implemented by transports that need goroutines started once the
// hub has accepted the connection.
type pumper interface {
	writePump()
	readPump()
}

type handlerFunc func(conn Conn, in Inbound) error

// Hub owns the session registry, message store and rate limiter. All mutations
// happen on the goroutine running Run, one event at a time.
type Hub struct {
	conns    map[string]Conn
	registry *SessionRegistry
	store    *MessageStore
	limiter  *RateLimiter
	policy   TextPolicy
	replay   int
	handlers map[EventType]handlerFunc

	register   chan Conn
	unregister chan string
	inbound    chan Inbound
	sweep      chan struct{}

	connCount atomic.Int64

	log   zerolog.Logger
	now   func() time.Time
	newID func() (string, error)

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// HubOption customizes a Hub.
type HubOption func(*Hub)

// WithLogger sets the hub logger.
func WithLogger(log zerolog.Logger) HubOption {
	return func(h *Hub) { h.log = log }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) HubOption {
	return func(h *Hub) { h.now = now }
}

// WithIDGenerator replaces the message id generator.
func WithIDGenerator(gen func() (string, error)) HubOption {
	return func(h *Hub) { h.newID = gen }
}

// WithPolicy replaces the text policy built from the configuration.
func WithPolicy(policy TextPolicy) HubOption {
	return func(h *Hub) { h.policy = policy }
}

func newMessageID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// NewHub creates and initializes a new Hub from cfg. The returned Hub is ready
// to be started with Run.
func NewHub(cfg Config, opts ...HubOption) (*Hub, error) {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		conns:      make(map[string]Conn),
		store:      NewMessageStore(cfg.HistoryCapacity),
		limiter:    NewRateLimiter(cfg.RateLimitMessages, cfg.RateLimitWindow),
		replay:     cfg.HistoryReplay,
		register:   make(chan Conn),
		unregister: make(chan string),
		inbound:    make(chan Inbound),
		sweep:      make(chan struct{}, 1),
		log:        zerolog.Nop(),
		now:        time.Now,
		newID:      newMessageID,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}

	if h.policy == nil {
		policyCfg, err := cfg.PolicyConfig()
		if err != nil {
			cancel()
			return nil, err
		}
		policy, err := NewTextPolicy(policyCfg)
		if err != nil {
			cancel()
			return nil, err
		}
		h.policy = policy
	}

	h.registry = NewSessionRegistry(h.policy, cfg.MaxUsernameLength)
	h.handlers = map[EventType]handlerFunc{
		EventJoin:        h.handleJoin,
		EventSend:        h.handleSend,
		EventTypingStart: h.handleTyping(true),
		EventTypingStop:  h.handleTyping(false),
	}
	return h, nil
}

// Registry exposes the session registry for read-only observers.
func (h *Hub) Registry() *SessionRegistry { return h.registry }

// Store exposes the message store for read-only observers.
func (h *Hub) Store() *MessageStore { return h.store }

// Limiter exposes the rate limiter for read-only observers.
func (h *Hub) Limiter() *RateLimiter { return h.limiter }

// Connections returns the number of registered connections, joined or not.
func (h *Hub) Connections() int {
	return int(h.connCount.Load())
}

// Running reports whether the hub loop has not been shut down.
func (h *Hub) Running() bool {
	return h.ctx.Err() == nil
}

// Register hands a new connection to the hub. It returns false when the hub
// is shutting down.
func (h *Hub) Register(conn Conn) bool {
	select {
	case h.register <- conn:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// Unregister reports that the connection with id has gone away.
func (h *Hub) Unregister(id string) {
	select {
	case h.unregister <- id:
	case <-h.ctx.Done():
	}
}

// Dispatch queues an inbound event for processing.
func (h *Hub) Dispatch(in Inbound) bool {
	select {
	case h.inbound <- in:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// RequestSweep asks the hub loop to drop expired rate-limit state. Requests
// made while one is already pending are coalesced.
func (h *Hub) RequestSweep() {
	select {
	case h.sweep <- struct{}{}:
	default:
	}
}

// Run starts the hub's main event loop. It returns after Shutdown is called.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownConns()
			return

		case conn := <-h.register:
			h.connect(conn)

		case id := <-h.unregister:
			h.disconnect(id)

		case in := <-h.inbound:
			h.handle(in)

		case <-h.sweep:
			h.sweepRateLimits()
		}
	}
}

func (h *Hub) connect(conn Conn) {
	if conn == nil {
		h.log.Warn().Msg("Received nil connection registration; skipping")
		return
	}

	h.conns[conn.ID()] = conn
	h.connCount.Store(int64(len(h.conns)))
	h.log.Info().Str("conn", conn.ID()).Int("connections", len(h.conns)).Msg("Connection registered")

	if p, ok := conn.(pumper); ok {
		h.wg.Go(p.writePump)
		h.wg.Go(p.readPump)
	}
}

func (h *Hub) sweepRateLimits() {
	removed := h.limiter.Sweep(h.now(), h.registry.Has)
	h.log.Debug().Int("removed", removed).Int("remaining", h.limiter.Len()).Msg("Rate limit sweep")
}

// handle routes an inbound event through the dispatch table. Panics and
// unexpected errors are converted to an error event for the sender only.
func (h *Hub) handle(in Inbound) {
	if in.Type == EventDisconnect {
		h.disconnect(in.ConnID)
		return
	}

	conn, ok := h.conns[in.ConnID]
	if !ok {
		h.log.Debug().Str("conn", in.ConnID).Str("event", string(in.Type)).Msg("Dropping event from unknown connection")
		return
	}

	handler, ok := h.handlers[in.Type]
	if !ok {
		h.unicastError(conn, ErrUnknownEvent)
		return
	}

	fallback := internalErrorFor(in.Type)
	defer func() {
		if r := recover(); r != nil {
			h.log.Error().Str("conn", in.ConnID).Str("event", string(in.Type)).Interface("panic", r).Msg("Recovered from panic in event handler")
			h.unicastError(conn, fallback)
		}
	}()

	if err := handler(conn, in); err != nil {
		ee := asHubError(err, fallback)
		if ee.Kind == KindInternalError {
			h.log.Error().Err(err).Str("conn", in.ConnID).Str("event", string(in.Type)).Msg("Event handler failed")
		}
		h.unicastError(conn, ee)
	}
}

func internalErrorFor(t EventType) *HubError {
	switch t {
	case EventJoin:
		return errJoinFailed
	case EventSend:
		return errSendFailed
	default:
		return errInternalFailed
	}
}

func (h *Hub) unicastError(conn Conn, ee *HubError) {
	h.unicast(conn, Event{Type: EventError, Payload: ee.Payload()})
}

func (h *Hub) unicast(conn Conn, ev Event) {
	if err := conn.Send(ev); err != nil {
		h.log.Debug().Err(err).Str("conn", conn.ID()).Str("event", string(ev.Type)).Msg("Unicast failed")
	}
}

// broadcast sends ev to every registered connection except the ones listed in
// exclude. A failing connection never stops delivery to the others.
func (h *Hub) broadcast(ev Event, exclude ...string) {
	targets := h.connSnapshot(exclude...)
	h.log.Debug().Str("event", string(ev.Type)).Int("targets", len(targets)).Msg("Broadcasting event")

	for _, conn := range targets {
		h.safeSend(conn, ev)
	}
}

func (h *Hub) safeSend(conn Conn, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error().Str("conn", conn.ID()).Interface("panic", r).Msg("Recovered from panic in safeSend")
		}
	}()

	if err := conn.Send(ev); err != nil {
		h.log.Warn().Err(err).Str("conn", conn.ID()).Str("event", string(ev.Type)).Msg("Broadcast delivery failed")
	}
}

// shutdownConns gracefully closes all active connections
func (h *Hub) shutdownConns() {
	h.log.Info().Msg("Shutting down all client connections...")

	conns := h.connSnapshot()
	for _, conn := range conns {
		conn.Close()
	}

	h.log.Info().Int("closed", len(conns)).Msg("Closed client connections")
}

// Shutdown initiates graceful shutdown of the hub and waits for all goroutines to complete.
// It returns after all client connections are closed and goroutines have finished,
// or when the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info().Msg("Initiating hub shutdown...")

	h.cancel()

	deadline := time.After(timeout)
	select {
	case <-h.done:
	case <-deadline:
		h.log.Warn().Msg("Hub loop did not stop before the shutdown timeout")
		return context.DeadlineExceeded
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info().Msg("Hub shutdown completed successfully")
		return nil
	case <-deadline:
		h.log.Warn().Msg("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
