// Package postgres reads group membership, users and messages from the platform's
// relational schema and appends fallback notifications to it.
// The schema is owned by the REST layer; this package never migrates it.
package postgres

import (
	"collab-realtime/domain"
	"context"
	stderrors "errors"
	"fmt"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	selectGroupMembers = `SELECT user_id FROM group_members WHERE group_id = $1 ORDER BY user_id`
	selectUser         = `SELECT id, username, display_name FROM users WHERE id = $1`
	selectMessage      = `SELECT id, group_id, user_id, content, is_ai, created_at FROM messages WHERE id = $1`
	insertNotification = `INSERT INTO notifications (user_id, type, content, entity_id, entity_type, is_read, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
)

type Store struct {
	pool *pgxpool.Pool
}

// Open connects a pool to dsn and checks it answers.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// GetGroupMembers returns the members at the time of the query.
func (s *Store) GetGroupMembers(ctx context.Context, groupID domain.GroupID) ([]domain.UserID, error) {
	rows, err := s.pool.Query(ctx, selectGroupMembers, int64(groupID))
	if err != nil {
		return nil, err
	}
	members, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.UserID, error) {
		var id int64
		err := row.Scan(&id)
		return domain.UserID(id), err
	})
	if err != nil {
		return nil, fmt.Errorf("group %d members: %w", groupID, err)
	}
	return members, nil
}

// GetUser reports found=false, without error, for a missing row.
func (s *Store) GetUser(ctx context.Context, userID domain.UserID) (domain.User, bool, error) {
	var (
		id                    int64
		username, displayName string
	)
	err := s.pool.QueryRow(ctx, selectUser, int64(userID)).Scan(&id, &username, &displayName)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, false, nil
	}
	if err != nil {
		return domain.User{}, false, err
	}
	return domain.User{ID: domain.UserID(id), Username: username, DisplayName: displayName}, true, nil
}

func (s *Store) GetMessage(ctx context.Context, messageID int64) (domain.Message, bool, error) {
	var m domain.Message
	var groupID, userID int64
	err := s.pool.QueryRow(ctx, selectMessage, messageID).
		Scan(&m.ID, &groupID, &userID, &m.Content, &m.IsAI, &m.CreatedAt)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return domain.Message{}, false, nil
	}
	if err != nil {
		return domain.Message{}, false, err
	}
	m.GroupID = domain.GroupID(groupID)
	m.UserID = domain.UserID(userID)
	return m, true, nil
}

func (s *Store) CreateNotification(ctx context.Context, n domain.Notification) error {
	_, err := s.pool.Exec(ctx, insertNotification,
		int64(n.UserID),
		string(n.Category),
		n.Content,
		n.EntityID,
		string(n.EntityType),
		n.IsRead,
		n.CreatedAt,
	)
	return err
}
