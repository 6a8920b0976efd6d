package repositories

import (
	"collab-realtime/domain"
	"context"
	stderrors "errors"
	"fmt"
	"github.com/dgraph-io/badger/v4"
	"time"
)

type MessageRepository struct {
	db *badger.DB
}

func NewMessageRepository(db *badger.DB) MessageRepository {
	return MessageRepository{db: db}
}

type DiskMessage struct {
	ID      int64     `json:"id"`
	GroupID int64     `json:"groupId"`
	UserID  int64     `json:"userId"`
	Content string    `json:"content"`
	IsAI    bool      `json:"isAI"`
	At      time.Time `json:"createdAt"`
}

func messageKey(messageID int64) []byte {
	return []byte(fmt.Sprintf("message:%019d", messageID))
}

func (m MessageRepository) StoreMessage(message domain.Message) error {
	data, err := jsonAPI.Marshal(fromDomainMessage(message))
	if err != nil {
		return err
	}
	return m.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(message.ID), data)
	})
}

func (m MessageRepository) GetMessage(_ context.Context, messageID int64) (domain.Message, bool, error) {
	var disk DiskMessage
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(messageKey(messageID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return jsonAPI.Unmarshal(val, &disk)
		})
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return domain.Message{}, false, nil
	}
	if err != nil {
		return domain.Message{}, false, err
	}
	return toDomainMessage(disk), true, nil
}

func fromDomainMessage(message domain.Message) DiskMessage {
	return DiskMessage{
		ID:      message.ID,
		GroupID: int64(message.GroupID),
		UserID:  int64(message.UserID),
		Content: message.Content,
		IsAI:    message.IsAI,
		At:      message.CreatedAt.UTC(),
	}
}

func toDomainMessage(disk DiskMessage) domain.Message {
	return domain.Message{
		ID:        disk.ID,
		GroupID:   domain.GroupID(disk.GroupID),
		UserID:    domain.UserID(disk.UserID),
		Content:   disk.Content,
		IsAI:      disk.IsAI,
		CreatedAt: disk.At.UTC(),
	}
}
