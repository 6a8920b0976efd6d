package repositories

import (
	"collab-realtime/domain"
	"fmt"
	"github.com/go-playground/validator/v10"
	"io"
)

// Seed is the import format of a standalone node: the users, memberships and
// messages the REST tier would otherwise own.
type Seed struct {
	Users    []SeedUser    `json:"users" validate:"dive"`
	Groups   []SeedGroup   `json:"groups" validate:"dive"`
	Messages []SeedMessage `json:"messages" validate:"dive"`
}

type SeedUser struct {
	ID          int64  `json:"id" validate:"gt=0"`
	Username    string `json:"username" validate:"required"`
	DisplayName string `json:"displayName"`
}

type SeedGroup struct {
	ID      int64   `json:"id" validate:"gt=0"`
	Members []int64 `json:"members" validate:"dive,gt=0"`
}

type SeedMessage struct {
	ID      int64  `json:"id" validate:"gt=0"`
	GroupID int64  `json:"groupId" validate:"gt=0"`
	UserID  int64  `json:"userId" validate:"gt=0"`
	Content string `json:"content"`
}

// SeedCounts is what one import wrote.
type SeedCounts struct {
	Users       int
	Memberships int
	Messages    int
}

// LoadSeed validates the whole document before writing anything, then upserts it.
// Loading the same document twice leaves the store unchanged.
func (s Store) LoadSeed(r io.Reader) (SeedCounts, error) {
	var seed Seed
	if err := jsonAPI.NewDecoder(r).Decode(&seed); err != nil {
		return SeedCounts{}, fmt.Errorf("decode seed: %w", err)
	}
	if err := validator.New().Struct(seed); err != nil {
		return SeedCounts{}, fmt.Errorf("invalid seed: %w", err)
	}

	var counts SeedCounts
	for _, u := range seed.Users {
		if err := s.SaveUser(domain.User{ID: domain.UserID(u.ID), Username: u.Username, DisplayName: u.DisplayName}); err != nil {
			return counts, fmt.Errorf("seed user %d: %w", u.ID, err)
		}
		counts.Users++
	}
	for _, g := range seed.Groups {
		for _, member := range g.Members {
			if err := s.AddMember(domain.GroupID(g.ID), domain.UserID(member)); err != nil {
				return counts, fmt.Errorf("seed member %d of group %d: %w", member, g.ID, err)
			}
			counts.Memberships++
		}
	}
	for _, m := range seed.Messages {
		message := domain.Message{ID: m.ID, GroupID: domain.GroupID(m.GroupID), UserID: domain.UserID(m.UserID), Content: m.Content}
		if err := s.StoreMessage(message); err != nil {
			return counts, fmt.Errorf("seed message %d: %w", m.ID, err)
		}
		counts.Messages++
	}
	return counts, nil
}
