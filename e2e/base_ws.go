package e2e

import (
	"bytes"
	"collab-realtime/auth"
	"collab-realtime/domain"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"time"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"
)

type BaseWsSuite struct {
	suite.Suite
	Config Config
	auth   *auth.Authenticator
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseWsSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.Addr == "" {
		s.T().Skip("REALTIME_ADDR not set")
	}
	s.auth = auth.NewAuthenticator(s.Config.JWTSecret, "")
}

// Step prints a colorized header so scenario steps stand out in verbose logs
func (s *BaseWsSuite) Step(name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
}

// NewUserID returns an id unlikely to collide with real users or a previous run
func (s *BaseWsSuite) NewUserID() domain.UserID {
	return domain.UserID(1_000_000_000 + rand.Int64N(1_000_000_000))
}

func (s *BaseWsSuite) Token(userID domain.UserID, roles ...string) string {
	token, err := s.auth.GenerateToken(userID, roles, time.Minute)
	s.Require().NoError(err)
	return token
}

// Dial opens an authenticated websocket as userID
func (s *BaseWsSuite) Dial(userID domain.UserID) *websocket.Conn {
	target := url.URL{Scheme: "ws", Host: s.Config.Addr, Path: "/ws", RawQuery: "token=" + s.Token(userID)}
	conn, _, err := websocket.DefaultDialer.Dial(target.String(), nil)
	s.Require().NoError(err, "Failed to connect to "+target.Host)
	s.T().Cleanup(func() { _ = conn.Close() })
	return conn
}

// Read waits for the next frame
func (s *BaseWsSuite) Read(conn *websocket.Conn, within time.Duration) ([]byte, error) {
	_ = conn.SetReadDeadline(time.Now().Add(within))
	_, frame, err := conn.ReadMessage()
	if err == nil && s.Config.DebugJSON {
		s.T().Logf("FRAME: %s", frame)
	}
	return frame, err
}

// Emit posts an envelope to /api/emit with a service token
func (s *BaseWsSuite) Emit(body string) (int, []byte) {
	req, err := http.NewRequest(http.MethodPost, "http://"+s.Config.Addr+"/api/emit", bytes.NewBufferString(body))
	s.Require().NoError(err)
	req.Header.Set("Authorization", "Bearer "+s.Token(s.NewUserID(), auth.RoleService))

	start := time.Now()
	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)

	s.T().Logf("POST /api/emit [%d] in %v", resp.StatusCode, time.Since(start))
	if s.Config.DebugJSON {
		s.T().Logf("REQUEST:\n%s\nRESPONSE:\n%s", body, respBody)
	}
	return resp.StatusCode, respBody
}

// Get fetches a path of the node
func (s *BaseWsSuite) Get(path string) (int, []byte) {
	resp, err := http.Get("http://" + s.Config.Addr + path)
	s.Require().NoError(err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	return resp.StatusCode, body
}
