package workers

import (
	"collab-realtime/contract"
	"collab-realtime/domain"
	"collab-realtime/errors"
	"collab-realtime/observability"
	"context"
	"golang.org/x/sync/errgroup"
	"log/slog"
	"sync/atomic"
	"time"
)

// KeepaliveWorker probes every open connection on a fixed period.
// A connection that does not acknowledge in time is closed with ErrKeepaliveTimeout;
// its accept loop then unregisters it like any other close.
type KeepaliveWorker struct {
	log         *slog.Logger
	target      contract.KeepaliveTarget
	interval    time.Duration
	timeout     time.Duration
	concurrency int
	metrics     *observability.Metrics
	monitoring  *observability.MonitoringManager
}

func NewKeepaliveWorker(
	log *slog.Logger,
	target contract.KeepaliveTarget,
	interval, timeout time.Duration,
	concurrency int,
	metrics *observability.Metrics,
	monitoring *observability.MonitoringManager,
) *KeepaliveWorker {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &KeepaliveWorker{
		log:         log.With("component", "keepalive"),
		target:      target,
		interval:    interval,
		timeout:     timeout,
		concurrency: concurrency,
		metrics:     metrics,
		monitoring:  monitoring,
	}
}

func (w *KeepaliveWorker) Run(ctx context.Context) error {
	w.log.Info("Starting keepalive worker", "interval", w.interval, "timeout", w.timeout)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			alive, reaped := w.Sweep(ctx)
			if reaped > 0 {
				w.log.Info("keepalive sweep", "alive", alive, "reaped", reaped)
			}
		}
	}
}

// Sweep probes the open handles once, at most concurrency at a time.
func (w *KeepaliveWorker) Sweep(ctx context.Context) (alive, reaped int) {
	var aliveCount, reapedCount atomic.Int64
	var g errgroup.Group
	g.SetLimit(w.concurrency)

	for _, h := range w.target.OpenHandles() {
		if h.State() != domain.ConnOpen {
			continue
		}
		g.Go(func() error {
			probeCtx, cancel := context.WithTimeout(ctx, w.timeout)
			err := h.Ping(probeCtx)
			cancel()

			if err == nil {
				aliveCount.Add(1)
				w.metrics.KeepaliveProbes.WithLabelValues("ok").Inc()
				w.target.Refresh(ctx, h)
				return nil
			}
			if ctx.Err() != nil {
				// shutting down, the connection is closed elsewhere
				return nil
			}

			w.log.Warn("connection missed keepalive, closing", "conn_id", h.ID(), "error", err)
			w.metrics.KeepaliveProbes.WithLabelValues("failed").Inc()
			w.monitoring.IncrKeepaliveReaped()
			h.Close(errors.ErrKeepaliveTimeout)
			reapedCount.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	return int(aliveCount.Load()), int(reapedCount.Load())
}
