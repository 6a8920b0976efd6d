package repositories

import (
	"collab-realtime/domain"
	"context"
	"fmt"
	"github.com/dgraph-io/badger/v4"
	"strconv"
)

type MembershipRepository struct {
	db *badger.DB
}

func NewMembershipRepository(db *badger.DB) MembershipRepository {
	return MembershipRepository{db: db}
}

// memberKey is "member:{group_padded}:{user_padded}" so a prefix scan on a group lists its members.
func memberKey(groupID domain.GroupID, userID domain.UserID) []byte {
	return []byte(fmt.Sprintf("%s%019d", memberPrefix(groupID), userID))
}

func memberPrefix(groupID domain.GroupID) string {
	return fmt.Sprintf("member:%019d:", groupID)
}

func (m MembershipRepository) AddMember(groupID domain.GroupID, userID domain.UserID) error {
	return m.db.Update(func(txn *badger.Txn) error {
		return txn.Set(memberKey(groupID, userID), nil)
	})
}

func (m MembershipRepository) RemoveMember(groupID domain.GroupID, userID domain.UserID) error {
	return m.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(memberKey(groupID, userID))
	})
}

// HasMembers reports whether any group has at least one member.
func (m MembershipRepository) HasMembers() (bool, error) {
	found := false
	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		options.Prefix = []byte("member:")
		it := txn.NewIterator(options)
		defer it.Close()
		it.Rewind()
		found = it.Valid()
		return nil
	})
	return found, err
}

// GetGroupMembers reads the current members with a key-only prefix scan.
func (m MembershipRepository) GetGroupMembers(ctx context.Context, groupID domain.GroupID) ([]domain.UserID, error) {
	var members []domain.UserID
	prefixStr := memberPrefix(groupID)
	prefix := []byte(prefixStr)

	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			raw := string(it.Item().Key()[len(prefixStr):])
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return fmt.Errorf("corrupted member key %q: %w", it.Item().Key(), err)
			}
			members = append(members, domain.UserID(id))
		}
		return nil
	})
	return members, err
}
