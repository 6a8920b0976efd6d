// Package runtime owns the realtime node: who is connected, where each event goes,
// and what is left behind for users who are not.
// It holds no business rules beyond routing.
package runtime

import (
	"collab-realtime/codec"
	"collab-realtime/contract"
	"collab-realtime/domain"
	"collab-realtime/domain/event"
	"collab-realtime/errors"
	"collab-realtime/observability"
	"context"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"log/slog"
	"sync"
)

// session is the orchestrator's view of one accepted connection.
type session struct {
	conn   contract.Conn
	mu     sync.Mutex
	userID domain.UserID
	// frames counts inbound frames, only for logs
	frames uint64
}

func (s *session) identity() domain.UserID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

func (s *session) nextFrame() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames++
	return s.frames
}

type Orchestrator struct {
	mu         sync.Mutex
	log        *slog.Logger
	supervisor contract.ISupervisor
	registry   contract.IRegistry
	dispatcher contract.IDispatcher
	presence   contract.PresenceObserver
	relay      contract.Relay
	metrics    *observability.Metrics
	monitoring *observability.MonitoringManager
	sessions   map[uuid.UUID]*session
	workers    []contract.Worker
	accepting  sync.WaitGroup
	closing    bool
}

func NewOrchestrator(
	log *slog.Logger,
	supervisor contract.ISupervisor,
	registry contract.IRegistry,
	dispatcher contract.IDispatcher,
	presence contract.PresenceObserver,
	metrics *observability.Metrics,
	monitoring *observability.MonitoringManager,
) *Orchestrator {
	if presence == nil {
		presence = nopPresence{}
	}
	o := &Orchestrator{
		log:        log.With("component", "orchestrator"),
		supervisor: supervisor,
		registry:   registry,
		dispatcher: dispatcher,
		presence:   presence,
		metrics:    metrics,
		monitoring: monitoring,
		sessions:   make(map[uuid.UUID]*session),
	}
	monitoring.WithConnections(o.counts)
	return o
}

// WithRelay forwards every event entering on this node to the other nodes.
func (o *Orchestrator) WithRelay(relay contract.Relay) *Orchestrator {
	o.relay = relay
	return o
}

// Add registers background workers started with the supervisor.
func (o *Orchestrator) Add(workers ...contract.Worker) *Orchestrator {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.workers = append(o.workers, workers...)
	return o
}

// Accept owns conn until it closes. identity is the authenticated user, nil when the
// upgrade was anonymous: the first inbound event naming a user binds it instead.
// Frames are dispatched in arrival order. Accept returns the close reason.
func (o *Orchestrator) Accept(ctx context.Context, conn contract.Conn, identity *domain.UserID) error {
	o.mu.Lock()
	if o.closing {
		o.mu.Unlock()
		conn.Close(errors.ErrShuttingDown)
		return errors.ErrShuttingDown
	}
	s := &session{conn: conn}
	o.sessions[conn.ID()] = s
	o.accepting.Add(1)
	o.mu.Unlock()
	defer o.accepting.Done()

	o.metrics.ConnectionsOpen.Inc()
	defer o.metrics.ConnectionsOpen.Dec()

	log := o.log.With("conn_id", conn.ID())
	log.Debug("connection accepted")

	if identity != nil && !identity.IsZero() {
		o.bind(ctx, s, *identity)
	}

	reason := conn.Run(ctx, func(frame []byte) {
		o.handleFrame(ctx, s, frame)
	})

	o.mu.Lock()
	delete(o.sessions, conn.ID())
	o.mu.Unlock()

	// The one and only unregister for this handle. A superseded handle fails the
	// guard and leaves the newer connection registered.
	userID := s.identity()
	if !userID.IsZero() && o.registry.Unregister(userID, conn) {
		o.presence.Offline(context.WithoutCancel(ctx), userID)
	}
	o.metrics.UsersOnline.Set(float64(o.registry.Len()))

	log.Info("connection closed", "user_id", userID, "reason", reason)
	return reason
}

func (o *Orchestrator) bind(ctx context.Context, s *session, userID domain.UserID) {
	s.mu.Lock()
	if !s.userID.IsZero() {
		s.mu.Unlock()
		return
	}
	s.userID = userID
	s.mu.Unlock()

	o.registry.Register(userID, s.conn)
	o.presence.Online(ctx, userID)
	o.metrics.UsersOnline.Set(float64(o.registry.Len()))
	o.log.Info("user online", "user_id", userID, "conn_id", s.conn.ID())
}

func (o *Orchestrator) handleFrame(ctx context.Context, s *session, frame []byte) {
	seq := s.nextFrame()
	o.monitoring.IncrFramesReceived()
	log := o.log.With("conn_id", s.conn.ID(), "seq", seq)

	env, err := codec.Decode(frame)
	if err != nil {
		log.Warn("frame dropped", "error", err)
		o.metrics.Frames.WithLabelValues("decode_error").Inc()
		o.monitoring.IncrDecodeErrors()
		return
	}

	actor := s.identity()
	if claimed := env.Actor(); !claimed.IsZero() {
		switch {
		case actor.IsZero():
			o.bind(ctx, s, claimed)
			actor = claimed
		case claimed != actor:
			log.Warn("frame dropped", "type", env.Type, "user_id", actor, "claimed", claimed, "error", errors.ErrIdentityMismatch)
			o.metrics.Frames.WithLabelValues("identity_mismatch").Inc()
			return
		}
	}

	o.metrics.Frames.WithLabelValues("dispatched").Inc()
	o.dispatcher.Dispatch(ctx, actor, env)
	o.forward(ctx, actor, env, frame)
}

// Emit injects a synthetic event into the dispatch pipeline.
func (o *Orchestrator) Emit(ctx context.Context, t event.Type, payload any) (domain.DispatchReport, error) {
	env, err := codec.NewEnvelope(t, payload)
	if err != nil {
		return domain.DispatchReport{}, err
	}
	report := o.dispatcher.Dispatch(ctx, 0, env)
	if frame, err := codec.Encode(env); err == nil {
		o.forward(ctx, 0, env, frame)
	}
	return report, nil
}

// EmitFrame is Emit for an already encoded envelope.
func (o *Orchestrator) EmitFrame(ctx context.Context, raw []byte) (domain.DispatchReport, error) {
	env, err := codec.Decode(raw)
	if err != nil {
		return domain.DispatchReport{}, err
	}
	report := o.dispatcher.Dispatch(ctx, 0, env)
	o.forward(ctx, 0, env, raw)
	return report, nil
}

// EmitRelayed dispatches an event another node already handled for its own users.
// It is never forwarded again.
func (o *Orchestrator) EmitRelayed(ctx context.Context, origin string, actor domain.UserID, raw []byte) (domain.DispatchReport, error) {
	env, err := codec.Decode(raw)
	if err != nil {
		return domain.DispatchReport{}, err
	}
	env.Origin = origin
	return o.dispatcher.Dispatch(ctx, actor, env), nil
}

func (o *Orchestrator) forward(ctx context.Context, actor domain.UserID, env event.Envelope, frame []byte) {
	if o.relay == nil || env.Type.Strategy() == event.StrategyNone {
		return
	}
	if err := o.relay.Relay(ctx, actor, frame); err != nil {
		o.log.Warn("relay failed, other nodes miss this event", "type", env.Type, "error", err)
	}
}

// OpenHandles returns every accepted connection, identified or not.
func (o *Orchestrator) OpenHandles() []contract.Handle {
	o.mu.Lock()
	defer o.mu.Unlock()
	return lo.MapToSlice(o.sessions, func(_ uuid.UUID, s *session) contract.Handle {
		return s.conn
	})
}

// Refresh renews presence for the user behind h, if h still speaks for them.
func (o *Orchestrator) Refresh(ctx context.Context, h contract.Handle) {
	o.mu.Lock()
	s, ok := o.sessions[h.ID()]
	o.mu.Unlock()
	if !ok {
		return
	}
	userID := s.identity()
	if userID.IsZero() {
		return
	}
	if current, ok := o.registry.Lookup(userID); ok && current == h {
		o.presence.Online(ctx, userID)
	}
}

func (o *Orchestrator) IsOnline(userID domain.UserID) bool {
	return o.registry.IsOnline(userID)
}

func (o *Orchestrator) counts() (int, int) {
	o.mu.Lock()
	open := len(o.sessions)
	o.mu.Unlock()
	return open, o.registry.Len()
}

// Start runs the supervised workers and blocks until ctx is canceled or Stop is called.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	o.supervisor.Add(o.workers...)
	o.mu.Unlock()

	o.log.Info("Starting orchestrator and all supervised workers", "workers", len(o.workers))
	o.supervisor.Run(ctx)
	return nil
}

// Stop refuses new connections, stops the workers, closes every open
// connection and waits for their accept loops to finish.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	o.closing = true
	open := lo.Values(o.sessions)
	o.mu.Unlock()

	o.supervisor.Stop()
	for _, s := range open {
		s.conn.Close(errors.ErrShuttingDown)
	}
	o.accepting.Wait()
	o.log.Info("Orchestrator stopped", "closed_connections", len(open))
}

type nopPresence struct{}

func (nopPresence) Online(context.Context, domain.UserID)  {}
func (nopPresence) Offline(context.Context, domain.UserID) {}
