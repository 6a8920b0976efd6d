package runtime

import (
	"collab-realtime/contract"
	"collab-realtime/domain"
	"collab-realtime/observability"
	"context"
	"errors"
	"github.com/sony/gobreaker"
	"log/slog"
	"time"
)

const breakerConsecutiveFailures = 5

// Notifier writes one durable notification per offline recipient.
// It is best effort: failures are logged and counted, never returned, never retried.
type Notifier struct {
	log        *slog.Logger
	store      contract.NotificationStore
	breaker    *gobreaker.CircuitBreaker
	timeout    time.Duration
	metrics    *observability.Metrics
	monitoring *observability.MonitoringManager
	now        func() time.Time
}

func NewNotifier(
	log *slog.Logger,
	store contract.NotificationStore,
	timeout time.Duration,
	metrics *observability.Metrics,
	monitoring *observability.MonitoringManager,
) *Notifier {
	log = log.With("component", "notifier")
	settings := gobreaker.Settings{
		Name:        "NotificationStore",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("Circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
		},
	}
	return &Notifier{
		log:        log,
		store:      store,
		breaker:    gobreaker.NewCircuitBreaker(settings),
		timeout:    timeout,
		metrics:    metrics,
		monitoring: monitoring,
		now:        time.Now,
	}
}

func (n *Notifier) NotifyOffline(
	ctx context.Context,
	recipient domain.UserID,
	category domain.NotificationCategory,
	summary string,
	entityID int64,
	entityType domain.EntityType,
) {
	record := domain.Notification{
		UserID:     recipient,
		Category:   category,
		Content:    summary,
		EntityID:   entityID,
		EntityType: entityType,
		IsRead:     false,
		CreatedAt:  n.now().UTC(),
	}

	_, err := n.breaker.Execute(func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, n.timeout)
		defer cancel()
		return nil, n.store.CreateNotification(callCtx, record)
	})

	switch {
	case err == nil:
		n.metrics.Fallbacks.WithLabelValues("stored").Inc()
		n.monitoring.IncrFallbacks(false)
		n.log.Debug("offline notification stored", "user_id", recipient, "category", category, "entity_id", entityID)
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		n.metrics.Fallbacks.WithLabelValues("rejected").Inc()
		n.monitoring.IncrFallbacks(true)
		n.log.Warn("notification store unavailable, fallback skipped", "user_id", recipient, "category", category, "error", err)
	default:
		n.metrics.Fallbacks.WithLabelValues("failed").Inc()
		n.monitoring.IncrFallbacks(true)
		n.log.Error("offline notification failed", "user_id", recipient, "category", category, "error", err)
	}
}
