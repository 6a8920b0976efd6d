// Package domain contains core concepts of the realtime layer.
// This file defines the identities shared by users, groups and connections.
package domain

import (
	"fmt"
	"strconv"
)

// UserID identifies an authenticated user. Zero means "unknown".
type UserID int64

// GroupID identifies a collaboration group. Zero means "unknown".
type GroupID int64

func (u UserID) IsZero() bool { return u == 0 }

func (u UserID) String() string { return strconv.FormatInt(int64(u), 10) }

func (g GroupID) String() string { return strconv.FormatInt(int64(g), 10) }

// ParseUserID accepts the decimal form used in URLs, JWT subjects and storage keys.
func ParseUserID(s string) (UserID, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid user id %q: %w", s, err)
	}
	if id <= 0 {
		return 0, fmt.Errorf("invalid user id %q: must be positive", s)
	}
	return UserID(id), nil
}
