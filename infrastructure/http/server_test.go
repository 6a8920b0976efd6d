package http

import (
	"bytes"
	"collab-realtime/auth"
	"collab-realtime/domain"
	"collab-realtime/infrastructure/ws"
	"collab-realtime/observability"
	"collab-realtime/repositories"
	"collab-realtime/runtime"
	"collab-realtime/runtime/workers"
	"context"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const (
	testSecret = "test-secret"
	waitFor    = 2 * time.Second
)

// node is one in-process realtime node backed by a temporary Badger store.
type node struct {
	server       *httptest.Server
	orchestrator *runtime.Orchestrator
	keepalive    *workers.KeepaliveWorker
	store        repositories.Store
	auth         *auth.Authenticator
}

func newNode(t *testing.T, emitKeyHash string) *node {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	db, err := repositories.OpenBadger(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	store := repositories.NewStore(db, log, nil)

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	monitoring := observability.NewMonitoringManager(log, time.Second)
	registry := runtime.NewRegistry()
	notifier := runtime.NewNotifier(log, store, time.Second, metrics, monitoring)
	dispatcher := runtime.NewDispatcher(log, registry, store, notifier, metrics, monitoring, time.Second)
	supervisor := workers.NewSupervisor(log, metrics, 10*time.Millisecond)
	orchestrator := runtime.NewOrchestrator(log, supervisor, registry, dispatcher, nil, metrics, monitoring)
	keepalive := workers.NewKeepaliveWorker(log, orchestrator, time.Hour, 100*time.Millisecond, 4, metrics, monitoring)
	authenticator := auth.NewAuthenticator(testSecret, emitKeyHash)

	cfg := Config{
		Connection:      ws.Config{BufferSize: 16, WriteTimeout: time.Second, MaxFrameBytes: 1 << 16},
		ShutdownTimeout: time.Second,
	}
	server := httptest.NewServer(NewServer(cfg, log, orchestrator, authenticator, metrics, monitoring, reg).Router())
	t.Cleanup(func() {
		orchestrator.Stop()
		server.Close()
	})

	return &node{server: server, orchestrator: orchestrator, keepalive: keepalive, store: store, auth: authenticator}
}

func (n *node) token(t *testing.T, userID domain.UserID, roles ...string) string {
	t.Helper()
	token, err := n.auth.GenerateToken(userID, roles, time.Hour)
	require.NoError(t, err)
	return token
}

func (n *node) dial(t *testing.T, userID domain.UserID) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(n.server.URL, "http") + "/ws?token=" + n.token(t, userID)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.Eventually(t, func() bool { return n.orchestrator.IsOnline(userID) }, waitFor, 5*time.Millisecond)
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn, within time.Duration) (string, error) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(within))
	_, frame, err := conn.ReadMessage()
	return string(frame), err
}

func TestServer_Group_Message_Live_And_Fallback(t *testing.T) {
	req := require.New(t)
	n := newNode(t, "")
	req.NoError(n.store.SaveUser(domain.User{ID: 1, Username: "alice", DisplayName: "Alice"}))
	for _, member := range []domain.UserID{1, 2, 3} {
		req.NoError(n.store.AddMember(7, member))
	}

	// Given A and B connected and C offline
	alice := n.dial(t, 1)
	bob := n.dial(t, 2)

	// When A posts a message in the group
	frame := `{"type":"NEW_MESSAGE","payload":{"groupId":7,"messageId":42,"userId":1,"content":"hello team"}}`
	req.NoError(alice.WriteMessage(websocket.TextMessage, []byte(frame)))

	// Then B receives the envelope as sent
	received, err := readFrame(t, bob, waitFor)
	req.NoError(err)
	req.JSONEq(frame, received)

	// And C gets a durable notification
	req.Eventually(func() bool {
		records, _, err := n.store.ListNotifications(3, nil)
		return err == nil && len(records) == 1
	}, waitFor, 10*time.Millisecond)
	records, _, err := n.store.ListNotifications(3, nil)
	req.NoError(err)
	req.Equal(domain.CategoryMessage, records[0].Category)
	req.Equal("New message from Alice: hello team", records[0].Content)
	req.Equal(int64(7), records[0].EntityID)
	req.Equal(domain.EntityGroup, records[0].EntityType)

	// And A does not hear its own message
	_, err = readFrame(t, alice, 100*time.Millisecond)
	req.Error(err)

	// And nobody connected got a notification
	records, _, err = n.store.ListNotifications(2, nil)
	req.NoError(err)
	req.Empty(records)
}

func TestServer_Second_Connection_Supersedes_First(t *testing.T) {
	req := require.New(t)
	n := newNode(t, "")
	req.NoError(n.store.AddMember(1, 1))
	req.NoError(n.store.AddMember(1, 2))

	// Given user 1 connected twice
	first := n.dial(t, 1)
	second := n.dial(t, 1)

	// Then the first connection is closed by the server
	_, err := readFrame(t, first, waitFor)
	var closeErr *websocket.CloseError
	req.ErrorAs(err, &closeErr)
	req.Equal(websocket.ClosePolicyViolation, closeErr.Code)

	// And the newer one keeps receiving
	sender := n.dial(t, 2)
	frame := `{"type":"NEW_FILE","payload":{"groupId":1,"fileId":3,"userId":2,"name":"plan.pdf"}}`
	req.NoError(sender.WriteMessage(websocket.TextMessage, []byte(frame)))
	received, err := readFrame(t, second, waitFor)
	req.NoError(err)
	req.JSONEq(frame, received)
	req.True(n.orchestrator.IsOnline(1))
}

func TestServer_Keepalive_Reaps_Silent_Client(t *testing.T) {
	req := require.New(t)
	n := newNode(t, "")

	// Given a client that never reads, so never answers pings
	_ = n.dial(t, 5)

	// When the keepalive sweep runs
	alive, reaped := n.keepalive.Sweep(context.Background())

	// Then the connection is reaped and the user goes offline
	req.Equal(0, alive)
	req.Equal(1, reaped)
	req.Eventually(func() bool { return !n.orchestrator.IsOnline(5) }, waitFor, 5*time.Millisecond)

	// And the next broadcast falls back for that user
	req.NoError(n.store.AddMember(3, 5))
	report, err := n.orchestrator.EmitFrame(context.Background(),
		[]byte(`{"type":"NEW_DOCUMENT","payload":{"groupId":3,"documentId":11,"userId":9,"title":"Roadmap"}}`))
	req.NoError(err)
	outcome, ok := report.OutcomeFor(5)
	req.True(ok)
	req.Equal(domain.OfflineFallback, outcome)
}

func TestServer_Keepalive_Keeps_Responsive_Client(t *testing.T) {
	req := require.New(t)
	n := newNode(t, "")
	client := n.dial(t, 6)
	go func() {
		// The read loop answers pings
		for {
			if _, _, err := client.ReadMessage(); err != nil {
				return
			}
		}
	}()

	alive, reaped := n.keepalive.Sweep(context.Background())
	req.Equal(1, alive)
	req.Zero(reaped)
	req.True(n.orchestrator.IsOnline(6))
}

func TestServer_Upgrade_Rejects_Invalid_Token(t *testing.T) {
	req := require.New(t)
	n := newNode(t, "")

	url := "ws" + strings.TrimPrefix(n.server.URL, "http") + "/ws?token=garbage"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	req.Error(err)
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func TestServer_Emit_Requires_Service_Identity(t *testing.T) {
	req := require.New(t)
	hash, err := auth.HashKey("emitter-key")
	req.NoError(err)
	n := newNode(t, hash)
	req.NoError(n.store.AddMember(9, 1))
	req.NoError(n.store.AddMember(9, 2))
	member := n.dial(t, 1)

	body := `{"type":"USER_JOINED","payload":{"groupId":9,"userId":2}}`
	post := func(headers map[string]string) *http.Response {
		r, err := http.NewRequest(http.MethodPost, n.server.URL+"/api/emit", bytes.NewBufferString(body))
		req.NoError(err)
		for k, v := range headers {
			r.Header.Set(k, v)
		}
		resp, err := http.DefaultClient.Do(r)
		req.NoError(err)
		t.Cleanup(func() { _ = resp.Body.Close() })
		return resp
	}

	req.Equal(http.StatusUnauthorized, post(nil).StatusCode)
	req.Equal(http.StatusForbidden, post(map[string]string{"Authorization": "Bearer " + n.token(t, 1)}).StatusCode)
	req.Equal(http.StatusUnauthorized, post(map[string]string{"X-Api-Key": "wrong"}).StatusCode)

	// A service token dispatches to the group
	resp := post(map[string]string{"Authorization": "Bearer " + n.token(t, 100, auth.RoleService)})
	req.Equal(http.StatusOK, resp.StatusCode)
	var report emitResponse
	req.NoError(jsonAPI.NewDecoder(resp.Body).Decode(&report))
	req.Equal("USER_JOINED", report.Type)
	req.Len(report.Recipients, 2)
	// The joining user is not connected, and membership events leave no notification
	for _, d := range report.Recipients {
		if d.UserID == 2 {
			req.Equal("OFFLINE_NO_FALLBACK", d.Outcome)
		}
	}

	received, err := readFrame(t, member, waitFor)
	req.NoError(err)
	req.JSONEq(body, received)

	// So does the emitter API key
	req.Equal(http.StatusOK, post(map[string]string{"X-Api-Key": "emitter-key"}).StatusCode)
}

func TestServer_Emit_Rejects_Unknown_Type(t *testing.T) {
	req := require.New(t)
	n := newNode(t, "")

	r, err := http.NewRequest(http.MethodPost, n.server.URL+"/api/emit", strings.NewReader(`{"type":"MESSAGE_READ","payload":{}}`))
	req.NoError(err)
	r.Header.Set("Authorization", "Bearer "+n.token(t, 100, auth.RoleService))
	resp, err := http.DefaultClient.Do(r)
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusBadRequest, resp.StatusCode)
}

func TestServer_Presence(t *testing.T) {
	req := require.New(t)
	n := newNode(t, "")
	_ = n.dial(t, 4)

	get := func(path string) (*http.Response, presenceResponse) {
		resp, err := http.Get(n.server.URL + path)
		req.NoError(err)
		defer resp.Body.Close()
		var body presenceResponse
		if resp.StatusCode == http.StatusOK {
			req.NoError(jsonAPI.NewDecoder(resp.Body).Decode(&body))
		}
		return resp, body
	}

	resp, body := get("/api/presence/4")
	req.Equal(http.StatusOK, resp.StatusCode)
	req.True(body.Online)
	req.True(body.Local)

	_, body = get("/api/presence/8")
	req.False(body.Online)

	resp, _ = get("/api/presence/abc")
	req.Equal(http.StatusBadRequest, resp.StatusCode)
}

func TestServer_Operator_Endpoints(t *testing.T) {
	req := require.New(t)
	n := newNode(t, "")

	for _, path := range []string{"/healthz", "/metrics", "/api/stats"} {
		resp, err := http.Get(n.server.URL + path)
		req.NoError(err)
		_ = resp.Body.Close()
		req.Equal(http.StatusOK, resp.StatusCode, path)
	}
}
