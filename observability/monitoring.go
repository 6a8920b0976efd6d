package observability

import (
	"collab-realtime/domain"
	"context"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

const recentDispatchesKept = 20

// RecentDispatchInfo is one dispatched envelope as shown by /api/stats
type RecentDispatchInfo struct {
	Type      string `json:"type"`
	GroupID   int64  `json:"group_id,omitempty"`
	Live      int    `json:"live"`
	Fallback  int    `json:"fallback"`
	Skipped   int    `json:"skipped"`
	Timestamp string `json:"timestamp"`
}

// MonitoringStats is the JSON snapshot served to operators
type MonitoringStats struct {
	OpenConnections int    `json:"open_connections"`
	UsersOnline     int    `json:"users_online"`
	FramesReceived  uint64 `json:"frames_received"`
	DecodeErrors    uint64 `json:"decode_errors"`
	Dispatches      uint64 `json:"dispatches"`
	LiveDeliveries  uint64 `json:"live_deliveries"`
	Fallbacks       uint64 `json:"fallbacks"`
	FallbackErrors  uint64 `json:"fallback_errors"`
	KeepaliveReaped uint64 `json:"keepalive_reaped"`

	// Go runtime
	AllocMemMb       uint64               `json:"alloc_mem_mb"`
	NumGC            uint32               `json:"num_gc"`
	Goroutines       int                  `json:"goroutines"`
	RecentDispatches []RecentDispatchInfo `json:"recent_dispatches"`
}

// ConnectionCounter reports the live connection figures at refresh time
type ConnectionCounter func() (open int, online int)

// MonitoringManager keeps in-process counters and a snapshot refreshed every interval
type MonitoringManager struct {
	log         *slog.Logger
	mu          sync.RWMutex
	latestStats MonitoringStats
	interval    time.Duration
	connections ConnectionCounter

	FramesReceived  uint64
	DecodeErrors    uint64
	Dispatches      uint64
	LiveDeliveries  uint64
	Fallbacks       uint64
	FallbackErrors  uint64
	KeepaliveReaped uint64
}

func NewMonitoringManager(log *slog.Logger, interval time.Duration) *MonitoringManager {
	return &MonitoringManager{
		log:      log.With("component", "monitoring"),
		interval: interval,
		latestStats: MonitoringStats{
			RecentDispatches: make([]RecentDispatchInfo, 0),
		},
	}
}

// WithConnections sets where connection figures are read from on refresh
func (mm *MonitoringManager) WithConnections(counter ConnectionCounter) *MonitoringManager {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.connections = counter
	return mm
}

func (mm *MonitoringManager) IncrFramesReceived() {
	atomic.AddUint64(&mm.FramesReceived, 1)
}

func (mm *MonitoringManager) IncrDecodeErrors() {
	atomic.AddUint64(&mm.DecodeErrors, 1)
}

func (mm *MonitoringManager) IncrFallbacks(failed bool) {
	atomic.AddUint64(&mm.Fallbacks, 1)
	if failed {
		atomic.AddUint64(&mm.FallbackErrors, 1)
	}
}

func (mm *MonitoringManager) IncrKeepaliveReaped() {
	atomic.AddUint64(&mm.KeepaliveReaped, 1)
}

// AddDispatch counts a dispatch and keeps it among the recent ones
func (mm *MonitoringManager) AddDispatch(report domain.DispatchReport) {
	atomic.AddUint64(&mm.Dispatches, 1)
	live := report.Count(domain.LiveDelivered)
	atomic.AddUint64(&mm.LiveDeliveries, uint64(live))

	info := RecentDispatchInfo{
		Type:      report.EventType,
		GroupID:   int64(report.GroupID),
		Live:      live,
		Fallback:  report.Count(domain.OfflineFallback),
		Skipped:   report.Count(domain.SkippedSender),
		Timestamp: time.Now().Format("15:04:05"),
	}

	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.latestStats.RecentDispatches = append([]RecentDispatchInfo{info}, mm.latestStats.RecentDispatches...)
	if len(mm.latestStats.RecentDispatches) > recentDispatchesKept {
		mm.latestStats.RecentDispatches = mm.latestStats.RecentDispatches[:recentDispatchesKept]
	}
}

// Run refreshes the snapshot until ctx is canceled
func (mm *MonitoringManager) Run(ctx context.Context) error {
	ticker := time.NewTicker(mm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			mm.log.Info("Monitoring manager stopped")
			return nil
		case <-ticker.C:
			mm.updateStats()
		}
	}
}

func (mm *MonitoringManager) updateStats() {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	mm.latestStats.FramesReceived = atomic.LoadUint64(&mm.FramesReceived)
	mm.latestStats.DecodeErrors = atomic.LoadUint64(&mm.DecodeErrors)
	mm.latestStats.Dispatches = atomic.LoadUint64(&mm.Dispatches)
	mm.latestStats.LiveDeliveries = atomic.LoadUint64(&mm.LiveDeliveries)
	mm.latestStats.Fallbacks = atomic.LoadUint64(&mm.Fallbacks)
	mm.latestStats.FallbackErrors = atomic.LoadUint64(&mm.FallbackErrors)
	mm.latestStats.KeepaliveReaped = atomic.LoadUint64(&mm.KeepaliveReaped)
	if mm.connections != nil {
		mm.latestStats.OpenConnections, mm.latestStats.UsersOnline = mm.connections()
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	mm.latestStats.AllocMemMb = m.Alloc / 1024 / 1024
	mm.latestStats.NumGC = m.NumGC
	mm.latestStats.Goroutines = runtime.NumGoroutine()

	mm.log.Debug("Stats updated",
		"open_connections", mm.latestStats.OpenConnections,
		"users_online", mm.latestStats.UsersOnline,
		"dispatches", mm.latestStats.Dispatches,
		"mem_mb", mm.latestStats.AllocMemMb,
	)
}

func (mm *MonitoringManager) GetLatest() MonitoringStats {
	mm.updateStats()

	mm.mu.RLock()
	defer mm.mu.RUnlock()
	stats := mm.latestStats
	stats.RecentDispatches = append([]RecentDispatchInfo(nil), mm.latestStats.RecentDispatches...)
	return stats
}
