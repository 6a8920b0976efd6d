package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"time"
)

const namespace = "realtime"

// Metrics holds every collector of the realtime node.
// All collectors are registered on the registerer given to NewMetrics so tests can use a private registry.
type Metrics struct {
	ConnectionsOpen  prometheus.Gauge
	UsersOnline      prometheus.Gauge
	Frames           *prometheus.CounterVec
	Dispatches       *prometheus.CounterVec
	DispatchDuration *prometheus.HistogramVec
	Deliveries       *prometheus.CounterVec
	PushFailures     prometheus.Counter
	MembershipErrors prometheus.Counter
	Fallbacks        *prometheus.CounterVec
	KeepaliveProbes  *prometheus.CounterVec
	WorkerRestarts   *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
	HTTPRequests     *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ConnectionsOpen: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_open",
			Help:      "Connections accepted and not yet closed.",
		}),
		UsersOnline: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "users_online",
			Help:      "Users with a registered connection.",
		}),
		Frames: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Inbound frames by result.",
		}, []string{"result"}),
		Dispatches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_total",
			Help:      "Dispatched envelopes by type and delivery strategy.",
		}, []string{"type", "strategy"}),
		DispatchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent dispatching one envelope, fallbacks included.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"strategy"}),
		Deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Recipients by delivery outcome.",
		}, []string{"outcome"}),
		PushFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_failures_total",
			Help:      "Pushes to a live handle that failed and were demoted to fallback.",
		}),
		MembershipErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "membership_errors_total",
			Help:      "Group broadcasts aborted because membership could not be resolved.",
		}),
		Fallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_notifications_total",
			Help:      "Offline fallback submissions by result.",
		}, []string{"result"}),
		KeepaliveProbes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keepalive_probes_total",
			Help:      "Liveness probes by result.",
		}, []string{"result"}),
		WorkerRestarts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_restarts_total",
			Help:      "Supervised workers restarted after a crash.",
		}, []string{"worker"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		}, []string{"path", "method", "status"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"path", "method", "status"}),
	}
}

func (m *Metrics) ObserveDispatch(eventType, strategy string, elapsed time.Duration) {
	m.Dispatches.WithLabelValues(eventType, strategy).Inc()
	m.DispatchDuration.WithLabelValues(strategy).Observe(elapsed.Seconds())
}
