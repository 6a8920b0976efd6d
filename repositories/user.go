package repositories

import (
	"collab-realtime/domain"
	"context"
	stderrors "errors"
	"fmt"
	"github.com/dgraph-io/badger/v4"
)

type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) UserRepository {
	return UserRepository{db: db}
}

// DiskUser is the stored profile, only what fallback texts need.
type DiskUser struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
}

func userKey(userID domain.UserID) []byte {
	return []byte(fmt.Sprintf("user:%019d", userID))
}

func (u UserRepository) SaveUser(user domain.User) error {
	data, err := jsonAPI.Marshal(DiskUser{ID: int64(user.ID), Username: user.Username, DisplayName: user.DisplayName})
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	return u.db.Update(func(txn *badger.Txn) error {
		return txn.Set(userKey(user.ID), data)
	})
}

// GetUser reports found=false, without error, for unknown users.
func (u UserRepository) GetUser(_ context.Context, userID domain.UserID) (domain.User, bool, error) {
	var disk DiskUser
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(userID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return jsonAPI.Unmarshal(val, &disk)
		})
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return domain.User{}, false, nil
	}
	if err != nil {
		return domain.User{}, false, err
	}
	return domain.User{ID: domain.UserID(disk.ID), Username: disk.Username, DisplayName: disk.DisplayName}, true, nil
}
