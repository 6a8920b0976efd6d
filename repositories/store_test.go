package repositories

import (
	"collab-realtime/contract"
	"collab-realtime/domain"
	"context"
	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"log/slog"
	"testing"
	"time"
)

var _ contract.Store = Store{}

func openTestStore(t *testing.T, limit *int) Store {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db, logs.GetLoggerFromLevel(slog.LevelDebug), limit)
}

func Test_Group_Members(t *testing.T) {
	req := require.New(t)
	store := openTestStore(t, nil)
	ctx := context.Background()

	// Given two groups sharing a member
	req.NoError(store.AddMember(1, 10))
	req.NoError(store.AddMember(1, 2))
	req.NoError(store.AddMember(1, 3))
	req.NoError(store.AddMember(12, 3))

	// When reading group 1
	members, err := store.GetGroupMembers(ctx, 1)

	// Then only its members come back, in id order
	req.NoError(err)
	req.Equal([]domain.UserID{2, 3, 10}, members)

	// When a member leaves, the next read reflects it
	req.NoError(store.RemoveMember(1, 3))
	members, err = store.GetGroupMembers(ctx, 1)
	req.NoError(err)
	req.Equal([]domain.UserID{2, 10}, members)

	members, err = store.GetGroupMembers(ctx, 99)
	req.NoError(err)
	req.Empty(members)
}

func Test_Get_User(t *testing.T) {
	req := require.New(t)
	store := openTestStore(t, nil)
	ctx := context.Background()

	req.NoError(store.SaveUser(domain.User{ID: 4, Username: "ana", DisplayName: "Ana Lima"}))

	user, found, err := store.GetUser(ctx, 4)
	req.NoError(err)
	req.True(found)
	req.Equal("Ana Lima", user.Name())

	_, found, err = store.GetUser(ctx, 5)
	req.NoError(err)
	req.False(found)
}

func Test_Get_Message(t *testing.T) {
	req := require.New(t)
	store := openTestStore(t, nil)
	ctx := context.Background()
	at := time.Now().UTC().Truncate(time.Millisecond)

	message := domain.Message{ID: 8, GroupID: 1, UserID: 4, Content: "this message will self destruct in 5 seconds", CreatedAt: at}
	req.NoError(store.StoreMessage(message))

	fetched, found, err := store.GetMessage(ctx, 8)
	req.NoError(err)
	req.True(found)
	req.Equal(message, fetched)

	_, found, err = store.GetMessage(ctx, 9)
	req.NoError(err)
	req.False(found)
}

func Test_Notifications_Newest_First_With_Cursor(t *testing.T) {
	req := require.New(t)
	limit := 2
	store := openTestStore(t, &limit)
	ctx := context.Background()
	at := time.Now().UTC()

	// Given three notifications for user 4 and one for user 5
	for i, content := range []string{"first", "second", "third"} {
		req.NoError(store.CreateNotification(ctx, domain.Notification{
			UserID:     4,
			Category:   domain.CategoryMessage,
			Content:    content,
			EntityID:   1,
			EntityType: domain.EntityGroup,
			CreatedAt:  at.Add(time.Duration(i) * time.Minute),
		}))
	}
	req.NoError(store.CreateNotification(ctx, domain.Notification{UserID: 5, Category: domain.CategoryFile, Content: "other", CreatedAt: at}))

	// When listing the first page
	page, cursor, err := store.ListNotifications(4, nil)
	req.NoError(err)
	req.Len(page, 2)
	req.Equal("third", page[0].Content)
	req.Equal("second", page[1].Content)
	req.False(page[0].IsRead)

	// Then the cursor continues where the page ended
	page, _, err = store.ListNotifications(4, cursor)
	req.NoError(err)
	req.Len(page, 1)
	req.Equal("first", page[0].Content)

	all, err := store.AllNotifications()
	req.NoError(err)
	req.Len(all, 4)
}

func Test_Repeated_Notifications_Are_Kept(t *testing.T) {
	req := require.New(t)
	store := openTestStore(t, nil)
	ctx := context.Background()
	n := domain.Notification{UserID: 4, Category: domain.CategoryDocument, Content: "same", CreatedAt: time.Now()}

	req.NoError(store.CreateNotification(ctx, n))
	req.NoError(store.CreateNotification(ctx, n))

	page, _, err := store.ListNotifications(4, nil)
	req.NoError(err)
	req.Len(page, 2)
}
