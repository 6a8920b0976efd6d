package postgres

import (
	"collab-realtime/contract"
	"collab-realtime/domain"
	"context"
	"github.com/stretchr/testify/require"
	"os"
	"strings"
	"testing"
	"time"
)

var _ contract.Store = (*Store)(nil)

const schema = `
CREATE TEMP TABLE users (id serial PRIMARY KEY, username text NOT NULL, display_name text NOT NULL);
CREATE TEMP TABLE group_members (id serial PRIMARY KEY, group_id integer NOT NULL, user_id integer NOT NULL);
CREATE TEMP TABLE messages (id serial PRIMARY KEY, group_id integer NOT NULL, user_id integer NOT NULL,
	content text NOT NULL, is_ai boolean NOT NULL DEFAULT false, created_at timestamp NOT NULL DEFAULT now());
CREATE TEMP TABLE notifications (id serial PRIMARY KEY, user_id integer NOT NULL, type text NOT NULL,
	content text NOT NULL, entity_id integer, entity_type text, is_read boolean NOT NULL DEFAULT false,
	created_at timestamp NOT NULL DEFAULT now());
`

// Runs against a throwaway database: POSTGRES_DSN=postgres://... go test ./infrastructure/postgres
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_DSN not set")
	}
	// temp tables live on one connection
	if strings.Contains(dsn, "?") {
		dsn += "&pool_max_conns=1"
	} else {
		dsn += "?pool_max_conns=1"
	}
	ctx := context.Background()
	store, err := Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(store.Close)

	_, err = store.pool.Exec(ctx, schema)
	require.NoError(t, err)
	return store
}

func TestStore_Against_Original_Schema(t *testing.T) {
	req := require.New(t)
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.pool.Exec(ctx, `INSERT INTO users (id, username, display_name) VALUES (1, 'ana', 'Ana'), (2, 'bob', 'Bob')`)
	req.NoError(err)
	_, err = store.pool.Exec(ctx, `INSERT INTO group_members (group_id, user_id) VALUES (7, 2), (7, 1), (8, 1)`)
	req.NoError(err)
	_, err = store.pool.Exec(ctx, `INSERT INTO messages (id, group_id, user_id, content) VALUES (3, 7, 1, 'hello')`)
	req.NoError(err)

	members, err := store.GetGroupMembers(ctx, 7)
	req.NoError(err)
	req.Equal([]domain.UserID{1, 2}, members)

	user, found, err := store.GetUser(ctx, 1)
	req.NoError(err)
	req.True(found)
	req.Equal("Ana", user.Name())
	_, found, err = store.GetUser(ctx, 99)
	req.NoError(err)
	req.False(found)

	message, found, err := store.GetMessage(ctx, 3)
	req.NoError(err)
	req.True(found)
	req.Equal("hello", message.Content)

	err = store.CreateNotification(ctx, domain.Notification{
		UserID: 2, Category: domain.CategoryMessage, Content: "New message from Ana: hello",
		EntityID: 7, EntityType: domain.EntityGroup, CreatedAt: time.Now().UTC(),
	})
	req.NoError(err)
	var count int
	req.NoError(store.pool.QueryRow(ctx, `SELECT count(*) FROM notifications WHERE user_id = 2 AND is_read = false`).Scan(&count))
	req.Equal(1, count)
}
