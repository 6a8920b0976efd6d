//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"collab-realtime/domain"
	"collab-realtime/domain/event"
	"context"
	"github.com/google/uuid"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Handle is the process-local side of one live duplex channel.
// Push never blocks on the peer: it enqueues or fails.
type Handle interface {
	ID() uuid.UUID
	Push(ctx context.Context, frame []byte) error
	// Ping sends a liveness probe and waits for its acknowledgement.
	Ping(ctx context.Context) error
	// Close is idempotent; reason is reported by Run.
	Close(reason error)
	State() domain.ConnState
	Done() <-chan struct{}
}

// Conn is a Handle the orchestrator can drive.
// Run reads frames in arrival order and hands each to onFrame, it returns once the
// channel is closed with the reason it closed for.
type Conn interface {
	Handle
	Run(ctx context.Context, onFrame func(frame []byte)) error
}

type IRegistry interface {
	Register(userID domain.UserID, h Handle)
	Unregister(userID domain.UserID, h Handle) bool
	Lookup(userID domain.UserID) (Handle, bool)
	IsOnline(userID domain.UserID) bool
	Len() int
	Users() []domain.UserID
}

type GroupMembershipOracle interface {
	GetGroupMembers(ctx context.Context, groupID domain.GroupID) ([]domain.UserID, error)
}

type UserDirectory interface {
	GetUser(ctx context.Context, userID domain.UserID) (domain.User, bool, error)
}

type MessageDirectory interface {
	GetMessage(ctx context.Context, messageID int64) (domain.Message, bool, error)
}

type NotificationStore interface {
	CreateNotification(ctx context.Context, n domain.Notification) error
}

// Store is everything the realtime node reads from or appends to the data layer.
type Store interface {
	GroupMembershipOracle
	UserDirectory
	MessageDirectory
	NotificationStore
}

type INotifier interface {
	NotifyOffline(ctx context.Context, recipient domain.UserID, category domain.NotificationCategory,
		summary string, entityID int64, entityType domain.EntityType)
}

type IDispatcher interface {
	Dispatch(ctx context.Context, actor domain.UserID, env event.Envelope) domain.DispatchReport
}

// PresenceObserver is told when a user becomes reachable or unreachable on this node.
type PresenceObserver interface {
	Online(ctx context.Context, userID domain.UserID)
	Offline(ctx context.Context, userID domain.UserID)
}

// PresenceDirectory tells which node holds each user, "" for users connected nowhere.
type PresenceDirectory interface {
	Nodes(ctx context.Context, userIDs []domain.UserID) (map[domain.UserID]string, error)
}

// Relay hands an event that entered on this node to the other nodes.
type Relay interface {
	Relay(ctx context.Context, actor domain.UserID, frame []byte) error
}

// KeepaliveTarget is what the keepalive sweep probes.
type KeepaliveTarget interface {
	OpenHandles() []Handle
	// Refresh records that h answered a probe.
	Refresh(ctx context.Context, h Handle)
}

type IOrchestrator interface {
	Accept(ctx context.Context, conn Conn, identity *domain.UserID) error
	Emit(ctx context.Context, t event.Type, payload any) (domain.DispatchReport, error)
	EmitFrame(ctx context.Context, raw []byte) (domain.DispatchReport, error)
	OpenHandles() []Handle
	Refresh(ctx context.Context, h Handle)
	IsOnline(userID domain.UserID) bool
	Start(ctx context.Context) error
	Stop()
}
