package repositories

import (
	"collab-realtime/domain"
	"context"
	"fmt"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"log/slog"
	"time"
)

type NotificationRepository struct {
	db                 *badger.DB
	log                *slog.Logger
	limitNotifications *int
}

func NewNotificationRepository(db *badger.DB, log *slog.Logger, limitNotifications *int) NotificationRepository {
	return NotificationRepository{db: db, log: log, limitNotifications: limitNotifications}
}

type DiskNotification struct {
	ID         uuid.UUID `json:"id"`
	UserID     int64     `json:"userId"`
	Type       string    `json:"type"`
	Content    string    `json:"content"`
	EntityID   int64     `json:"entityId"`
	EntityType string    `json:"entityType"`
	IsRead     bool      `json:"isRead"`
	At         time.Time `json:"createdAt"`
}

func notificationPrefix(userID domain.UserID) string {
	return fmt.Sprintf("notification:%019d:", userID)
}

// CreateNotification appends a record. The key is
// "notification:{user_padded}:{timestamp_padded}:{uuid}" to:
//  1. Keep a user's notifications chronologically sorted (lexicographical order).
//  2. Never overwrite: two records at the same nanosecond differ by their uuid,
//     repeated submissions are repeated records.
func (n NotificationRepository) CreateNotification(_ context.Context, notification domain.Notification) error {
	disk := fromDomainNotification(notification)
	key := fmt.Sprintf("%s%019d:%s", notificationPrefix(notification.UserID), disk.At.UnixNano(), disk.ID)
	data, err := jsonAPI.Marshal(disk)
	if err != nil {
		return err
	}
	return n.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

// ListNotifications returns a user's notifications newest first.
// The returned cursor is passed back to continue after the last returned record.
func (n NotificationRepository) ListNotifications(userID domain.UserID, cursor *string) ([]domain.Notification, *string, error) {
	var notifications []domain.Notification
	var lastKey string
	err := n.db.View(func(txn *badger.Txn) error {
		prefixStr := notificationPrefix(userID)
		prefix := []byte(prefixStr)
		prefixLen := len(prefixStr)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Past the newest possible key, then walk backwards
			seekKey = append(prefix, []byte("9999999999999999999")...)
		default:
			seekKey = append(prefix, []byte(*cursor)...)
		}

		it.Seek(seekKey)

		if cursor != nil && it.ValidForPrefix(prefix) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if n.limitNotifications != nil && len(notifications) == *n.limitNotifications {
				n.log.Debug(fmt.Sprintf("Maximum of %d notifications reached", *n.limitNotifications))
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[prefixLen:])
			var disk DiskNotification
			err := item.Value(func(value []byte) error {
				return jsonAPI.Unmarshal(value, &disk)
			})
			if err != nil {
				return err
			}
			notifications = append(notifications, toDomainNotification(disk))
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return notifications, &lastKey, nil
}

// AllNotifications walks every stored notification, oldest user first.
func (n NotificationRepository) AllNotifications() ([]DiskNotification, error) {
	var all []DiskNotification
	prefix := []byte("notification:")
	err := n.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var disk DiskNotification
			if err := it.Item().Value(func(value []byte) error {
				return jsonAPI.Unmarshal(value, &disk)
			}); err != nil {
				return err
			}
			all = append(all, disk)
		}
		return nil
	})
	return all, err
}

func fromDomainNotification(notification domain.Notification) DiskNotification {
	at := notification.CreatedAt
	if at.IsZero() {
		at = time.Now()
	}
	return DiskNotification{
		ID:         uuid.New(),
		UserID:     int64(notification.UserID),
		Type:       string(notification.Category),
		Content:    notification.Content,
		EntityID:   notification.EntityID,
		EntityType: string(notification.EntityType),
		IsRead:     notification.IsRead,
		At:         at.UTC(),
	}
}

func toDomainNotification(disk DiskNotification) domain.Notification {
	return domain.Notification{
		UserID:     domain.UserID(disk.UserID),
		Category:   domain.NotificationCategory(disk.Type),
		Content:    disk.Content,
		EntityID:   disk.EntityID,
		EntityType: domain.EntityType(disk.EntityType),
		IsRead:     disk.IsRead,
		CreatedAt:  disk.At.UTC(),
	}
}
