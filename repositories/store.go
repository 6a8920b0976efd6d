package repositories

import (
	"github.com/dgraph-io/badger/v4"
	"log/slog"
)

// Store is the embedded data layer of a standalone node: everything the
// dispatcher reads and the fallback notifier appends, in one Badger database.
type Store struct {
	MembershipRepository
	UserRepository
	MessageRepository
	NotificationRepository
}

func NewStore(db *badger.DB, log *slog.Logger, limitNotifications *int) Store {
	return Store{
		MembershipRepository:   NewMembershipRepository(db),
		UserRepository:         NewUserRepository(db),
		MessageRepository:      NewMessageRepository(db),
		NotificationRepository: NewNotificationRepository(db, log, limitNotifications),
	}
}

// OpenBadger opens the database at path with Badger's own logging silenced below warnings.
func OpenBadger(path string) (*badger.DB, error) {
	return badger.Open(badger.DefaultOptions(path).WithLoggingLevel(badger.WARNING))
}
