package runtime

import (
	"collab-realtime/domain"
	"collab-realtime/mocks"
	"collab-realtime/observability"
	"collab-realtime/runtime/workers"
	"context"
	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// sharedPresence is the presence mirror every node of a test cluster writes to.
type sharedPresence struct {
	mu    sync.Mutex
	nodes map[domain.UserID]string
}

func (p *sharedPresence) Nodes(_ context.Context, userIDs []domain.UserID) (map[domain.UserID]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	nodes := make(map[domain.UserID]string, len(userIDs))
	for _, u := range userIDs {
		nodes[u] = p.nodes[u]
	}
	return nodes, nil
}

// presenceAt is one node's view of the mirror.
type presenceAt struct {
	shared *sharedPresence
	nodeID string
}

func (p presenceAt) Online(_ context.Context, userID domain.UserID) {
	p.shared.mu.Lock()
	defer p.shared.mu.Unlock()
	p.shared.nodes[userID] = p.nodeID
}

func (p presenceAt) Offline(_ context.Context, userID domain.UserID) {
	p.shared.mu.Lock()
	defer p.shared.mu.Unlock()
	if p.shared.nodes[userID] == p.nodeID {
		delete(p.shared.nodes, userID)
	}
}

// loopbackBus hands relayed frames straight to the other nodes, like the redis channel does.
type loopbackBus struct {
	origin string
	peers  []*Orchestrator
}

func (b *loopbackBus) Relay(ctx context.Context, actor domain.UserID, frame []byte) error {
	for _, peer := range b.peers {
		if _, err := peer.EmitRelayed(ctx, b.origin, actor, frame); err != nil {
			return err
		}
	}
	return nil
}

type clusterNode struct {
	orchestrator *Orchestrator
	bus          *loopbackBus
}

func newClusterNode(t *testing.T, nodeID string, store *mocks.MockStore, presence *sharedPresence) clusterNode {
	log := logs.GetLoggerFromLevel(slog.LevelDebug).With("node_id", nodeID)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	monitoring := observability.NewMonitoringManager(log, time.Second)
	registry := NewRegistry()
	notifier := NewNotifier(log, store, time.Second, metrics, monitoring)
	dispatcher := NewDispatcher(log, registry, store, notifier, metrics, monitoring, time.Second).
		WithPresence(nodeID, presence)
	supervisor := workers.NewSupervisor(log, metrics, 10*time.Millisecond)
	bus := &loopbackBus{origin: nodeID}
	orchestrator := NewOrchestrator(log, supervisor, registry, dispatcher, presenceAt{shared: presence, nodeID: nodeID}, metrics, monitoring).
		WithRelay(bus)
	return clusterNode{orchestrator: orchestrator, bus: bus}
}

func TestCluster_Fallback_Written_Once_Per_Offline_Member(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	presence := &sharedPresence{nodes: map[domain.UserID]string{}}

	var mu sync.Mutex
	fallbacks := map[domain.UserID]int{}
	store.EXPECT().GetGroupMembers(gomock.Any(), domain.GroupID(1)).Return([]domain.UserID{1, 2, 3}, nil).AnyTimes()
	store.EXPECT().GetUser(gomock.Any(), domain.UserID(1)).Return(domain.User{ID: 1, Username: "ana"}, true, nil).AnyTimes()
	store.EXPECT().GetMessage(gomock.Any(), int64(5)).Return(domain.Message{ID: 5, GroupID: 1, UserID: 1, Content: "hi"}, true, nil).AnyTimes()
	store.EXPECT().CreateNotification(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, n domain.Notification) error {
		mu.Lock()
		defer mu.Unlock()
		fallbacks[n.UserID]++
		return nil
	}).AnyTimes()

	// Given two nodes sharing one store: user 1 on node-a, user 2 on node-b, user 3 nowhere
	nodeA := newClusterNode(t, "node-a", store, presence)
	nodeB := newClusterNode(t, "node-b", store, presence)
	nodeA.bus.peers = []*Orchestrator{nodeB.orchestrator}
	nodeB.bus.peers = []*Orchestrator{nodeA.orchestrator}

	ana, bob := newFakeConn(), newFakeConn()
	accept(nodeA.orchestrator, ana, userID(1))
	accept(nodeB.orchestrator, bob, userID(2))
	req.Eventually(func() bool {
		return nodeA.orchestrator.IsOnline(1) && nodeB.orchestrator.IsOnline(2)
	}, waitFor, 5*time.Millisecond)

	// When user 1 posts in group 1 through node-a
	ana.in <- []byte(`{"type":"NEW_MESSAGE","payload":{"groupId":1,"messageId":5,"userId":1}}`)

	// Then user 2 gets the frame from node-b only once
	req.Eventually(func() bool { return len(bob.Pushed()) == 1 }, waitFor, 5*time.Millisecond)
	req.Never(func() bool { return len(bob.Pushed()) > 1 }, 100*time.Millisecond, 10*time.Millisecond)
	req.Empty(ana.Pushed())

	// And only the member connected nowhere got a fallback, exactly one
	mu.Lock()
	defer mu.Unlock()
	req.Equal(map[domain.UserID]int{3: 1}, fallbacks)
}

func TestCluster_Synthetic_Event_Fans_Out_Across_Nodes(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	presence := &sharedPresence{nodes: map[domain.UserID]string{}}

	store.EXPECT().GetGroupMembers(gomock.Any(), domain.GroupID(1)).Return([]domain.UserID{1, 2}, nil).AnyTimes()
	store.EXPECT().CreateNotification(gomock.Any(), gomock.Any()).Times(0)

	nodeA := newClusterNode(t, "node-a", store, presence)
	nodeB := newClusterNode(t, "node-b", store, presence)
	nodeA.bus.peers = []*Orchestrator{nodeB.orchestrator}
	nodeB.bus.peers = []*Orchestrator{nodeA.orchestrator}

	ana, bob := newFakeConn(), newFakeConn()
	accept(nodeA.orchestrator, ana, userID(1))
	accept(nodeB.orchestrator, bob, userID(2))
	req.Eventually(func() bool {
		return nodeA.orchestrator.IsOnline(1) && nodeB.orchestrator.IsOnline(2)
	}, waitFor, 5*time.Millisecond)

	// When the REST tier emits a membership event through node-a
	report, err := nodeA.orchestrator.EmitFrame(context.Background(),
		[]byte(`{"type":"USER_JOINED","payload":{"groupId":1,"userId":2}}`))
	req.NoError(err)

	// Then both users receive it, each from the node holding them
	req.Len(ana.Pushed(), 1)
	req.Len(bob.Pushed(), 1)
	outcome, ok := report.OutcomeFor(2)
	req.True(ok)
	req.Equal(domain.HandledElsewhere, outcome)
}
