package runtime

import (
	"collab-realtime/domain"
	"collab-realtime/mocks"
	"collab-realtime/observability"
	"context"
	"fmt"
	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"log/slog"
	"testing"
	"time"
)

func newTestNotifier(t *testing.T, store *mocks.MockNotificationStore, timeout time.Duration) (*Notifier, *observability.Metrics) {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	return NewNotifier(log, store, timeout, metrics, observability.NewMonitoringManager(log, time.Second)), metrics
}

func TestNotifier_Builds_Unread_Record(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockNotificationStore(ctrl)
	notifier, metrics := newTestNotifier(t, store, time.Second)
	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.FixedZone("CET", 3600))
	notifier.now = func() time.Time { return at }

	var stored domain.Notification
	store.EXPECT().CreateNotification(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, n domain.Notification) error {
			stored = n
			return nil
		})

	// When an offline recipient is notified
	notifier.NotifyOffline(context.Background(), 4, domain.CategoryMessage, "New message from Ana: hi", 10, domain.EntityGroup)

	// Then one unread record is written
	req.Equal(domain.Notification{
		UserID:     4,
		Category:   domain.CategoryMessage,
		Content:    "New message from Ana: hi",
		EntityID:   10,
		EntityType: domain.EntityGroup,
		IsRead:     false,
		CreatedAt:  at.UTC(),
	}, stored)
	req.Equal(float64(1), testutil.ToFloat64(metrics.Fallbacks.WithLabelValues("stored")))
}

func TestNotifier_Swallows_Store_Errors(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockNotificationStore(ctrl)
	notifier, metrics := newTestNotifier(t, store, time.Second)

	// Given a failing store, no retry is expected
	store.EXPECT().CreateNotification(gomock.Any(), gomock.Any()).Return(fmt.Errorf("disk full")).Times(1)

	// When notifying, nothing panics or propagates
	req.NotPanics(func() {
		notifier.NotifyOffline(context.Background(), 4, domain.CategoryFile, "x", 1, domain.EntityFile)
	})
	req.Equal(float64(1), testutil.ToFloat64(metrics.Fallbacks.WithLabelValues("failed")))
}

func TestNotifier_Times_Out_Slow_Store(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockNotificationStore(ctrl)
	notifier, metrics := newTestNotifier(t, store, 20*time.Millisecond)

	store.EXPECT().CreateNotification(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ domain.Notification) error {
			<-ctx.Done()
			return ctx.Err()
		})

	start := time.Now()
	notifier.NotifyOffline(context.Background(), 4, domain.CategoryDocument, "x", 1, domain.EntityDocument)

	req.Less(time.Since(start), time.Second)
	req.Equal(float64(1), testutil.ToFloat64(metrics.Fallbacks.WithLabelValues("failed")))
}

func TestNotifier_Breaker_Opens_After_Consecutive_Failures(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockNotificationStore(ctrl)
	notifier, metrics := newTestNotifier(t, store, time.Second)

	// Given a store failing every call
	store.EXPECT().CreateNotification(gomock.Any(), gomock.Any()).
		Return(fmt.Errorf("connection refused")).
		Times(breakerConsecutiveFailures)

	// When more fallbacks than the breaker threshold are submitted
	for i := 0; i < breakerConsecutiveFailures+3; i++ {
		notifier.NotifyOffline(context.Background(), domain.UserID(i+1), domain.CategoryMessage, "x", 1, domain.EntityGroup)
	}

	// Then the store is left alone once the breaker is open
	req.Equal(float64(breakerConsecutiveFailures), testutil.ToFloat64(metrics.Fallbacks.WithLabelValues("failed")))
	req.Equal(float64(3), testutil.ToFloat64(metrics.Fallbacks.WithLabelValues("rejected")))
}

func TestNotifier_Repeated_Calls_Create_Repeated_Records(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockNotificationStore(ctrl)
	notifier, _ := newTestNotifier(t, store, time.Second)

	store.EXPECT().CreateNotification(gomock.Any(), gomock.Any()).Return(nil).Times(2)

	notifier.NotifyOffline(context.Background(), 4, domain.CategoryMessage, "same", 1, domain.EntityGroup)
	notifier.NotifyOffline(context.Background(), 4, domain.CategoryMessage, "same", 1, domain.EntityGroup)
}
