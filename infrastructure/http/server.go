// Package http exposes the realtime node: the websocket upgrade, the emit and
// presence endpoints used by the REST tier, and operator endpoints.
package http

import (
	"collab-realtime/auth"
	"collab-realtime/contract"
	"collab-realtime/domain"
	"collab-realtime/errors"
	"collab-realtime/infrastructure/ws"
	"collab-realtime/observability"
	"context"
	stderrors "errors"
	"fmt"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/lo"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

const maxEmitBodyBytes = 1 << 20

type Config struct {
	Host            string
	Port            int
	AuthRequired    bool
	AllowedOrigins  []string
	Connection      ws.Config
	ShutdownTimeout time.Duration
}

func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, fmt.Sprint(c.Port))
}

// PresenceReader answers for users connected to other nodes.
type PresenceReader interface {
	Node(ctx context.Context, userID domain.UserID) (string, error)
}

type Server struct {
	cfg          Config
	log          *slog.Logger
	orchestrator contract.IOrchestrator
	auth         *auth.Authenticator
	metrics      *observability.Metrics
	monitoring   *observability.MonitoringManager
	gatherer     prometheus.Gatherer
	presence     PresenceReader
	upgrader     websocket.Upgrader
}

func NewServer(
	cfg Config,
	log *slog.Logger,
	orchestrator contract.IOrchestrator,
	authenticator *auth.Authenticator,
	metrics *observability.Metrics,
	monitoring *observability.MonitoringManager,
	gatherer prometheus.Gatherer,
) *Server {
	s := &Server{
		cfg:          cfg,
		log:          log.With("component", "http"),
		orchestrator: orchestrator,
		auth:         authenticator,
		metrics:      metrics,
		monitoring:   monitoring,
		gatherer:     gatherer,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// WithPresence makes the presence endpoint consult the shared presence mirror.
func (s *Server) WithPresence(p PresenceReader) *Server {
	s.presence = p
	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	return lo.Contains(s.cfg.AllowedOrigins, "*") || lo.Contains(s.cfg.AllowedOrigins, origin)
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(s.metricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: lo.Ternary(len(s.cfg.AllowedOrigins) == 0, []string{"*"}, s.cfg.AllowedOrigins),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Api-Key"},
		MaxAge:         300,
	}))

	r.Get("/ws", s.handleUpgrade)
	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.With(s.auth.RequireRole(auth.RoleService)).Post("/emit", s.handleEmit)
		r.Get("/presence/{userID}", s.handlePresence)
		r.Get("/stats", s.handleStats)
	})
	return r
}

// Run serves until ctx is canceled, then drains within the shutdown timeout.
// Request contexts derive from ctx so accepted connections see the cancellation.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("HTTP server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.log.Info("HTTP server stopped")
	return nil
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	identity, err := s.auth.Identify(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	if identity == nil && s.cfg.AuthRequired {
		http.Error(w, errors.ErrUnauthorized.Error(), http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	handle := ws.NewConnection(s.log, conn, s.cfg.Connection)
	_ = s.orchestrator.Accept(r.Context(), handle, identity)
}

type deliveryResponse struct {
	UserID  domain.UserID `json:"userId"`
	Outcome string        `json:"outcome"`
	Error   string        `json:"error,omitempty"`
}

type emitResponse struct {
	Type       string             `json:"type"`
	GroupID    domain.GroupID     `json:"groupId,omitempty"`
	Recipients []deliveryResponse `json:"recipients,omitempty"`
}

func (s *Server) handleEmit(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxEmitBodyBytes))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	report, err := s.orchestrator.EmitFrame(r.Context(), raw)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.writeJSON(w, http.StatusOK, emitResponse{
		Type:    report.EventType,
		GroupID: report.GroupID,
		Recipients: lo.Map(report.Recipients, func(d domain.Delivery, _ int) deliveryResponse {
			resp := deliveryResponse{UserID: d.UserID, Outcome: d.Outcome.String()}
			if d.Err != nil {
				resp.Error = d.Err.Error()
			}
			return resp
		}),
	})
}

type presenceResponse struct {
	UserID domain.UserID `json:"userId"`
	Online bool          `json:"online"`
	Local  bool          `json:"local"`
	Node   string        `json:"node,omitempty"`
}

func (s *Server) handlePresence(w http.ResponseWriter, r *http.Request) {
	userID, err := domain.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	resp := presenceResponse{UserID: userID, Local: s.orchestrator.IsOnline(userID)}
	resp.Online = resp.Local
	if !resp.Local && s.presence != nil {
		node, err := s.presence.Node(r.Context(), userID)
		if err != nil {
			s.log.Warn("presence lookup failed", "user_id", userID, "error", err)
		}
		resp.Node = node
		resp.Online = node != ""
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.monitoring.GetLatest())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := jsonAPI.NewEncoder(w).Encode(body); err != nil {
		s.log.Warn("response encoding failed", "error", err)
	}
}
