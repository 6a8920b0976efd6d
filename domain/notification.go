package domain

import "time"

// NotificationCategory is the "type" column of a durable notification.
type NotificationCategory string

const (
	CategoryMessage  NotificationCategory = "message"
	CategoryDocument NotificationCategory = "document"
	CategoryFile     NotificationCategory = "file"
)

// EntityType names the kind of entity a notification points at.
type EntityType string

const (
	EntityGroup    EntityType = "group"
	EntityDocument EntityType = "document"
	EntityFile     EntityType = "file"
)

// Notification is the record submitted to the notification store for an offline recipient.
// Its lifecycle after creation belongs to the data layer.
type Notification struct {
	UserID     UserID
	Category   NotificationCategory
	Content    string
	EntityID   int64
	EntityType EntityType
	IsRead     bool
	CreatedAt  time.Time
}
