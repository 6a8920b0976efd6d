// Package domain contains core concepts of the realtime layer.
// This file defines chat messages as seen by the fan-out path.
// Messages are owned by the data layer; the realtime layer only reads them.
package domain

import "time"

// Message represents an immutable chat message.
type Message struct {
	ID        int64
	GroupID   GroupID
	UserID    UserID
	Content   string
	IsAI      bool
	CreatedAt time.Time
}
