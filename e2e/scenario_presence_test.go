package e2e

import (
	"collab-realtime/domain"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"
)

type testPresenceSuite struct {
	BaseWsSuite
}

func TestPresenceSuite(t *testing.T) {
	suite.Run(t, &testPresenceSuite{})
}

func (s *testPresenceSuite) eventuallyOnline(userID domain.UserID, online bool) {
	s.Require().Eventually(func() bool {
		status, body := s.Get("/api/presence/" + userID.String())
		return status == http.StatusOK && strings.Contains(string(body), fmt.Sprintf(`"online":%t`, online))
	}, 3*time.Second, 50*time.Millisecond)
}

func (s *testPresenceSuite) TestConnectDirectEventAndSupersede() {
	userID := s.NewUserID()

	s.Step("Connect and appear online")
	first := s.Dial(userID)
	s.eventuallyOnline(userID, true)

	s.Step("Direct notification reaches the connection")
	notification := fmt.Sprintf(`{"type":"NOTIFICATION","payload":{"targetUserId":%d,"content":"ping"}}`, userID)
	status, _ := s.Emit(notification)
	s.Require().Equal(http.StatusOK, status)
	frame, err := s.Read(first, 3*time.Second)
	s.Require().NoError(err)
	s.JSONEq(notification, string(frame))

	s.Step("A second connection supersedes the first")
	second := s.Dial(userID)
	_, err = s.Read(first, 3*time.Second)
	s.Require().True(websocket.IsCloseError(err, websocket.ClosePolicyViolation), "unexpected error: %v", err)

	status, _ = s.Emit(notification)
	s.Require().Equal(http.StatusOK, status)
	frame, err = s.Read(second, 3*time.Second)
	s.Require().NoError(err)
	s.JSONEq(notification, string(frame))

	s.Step("Disconnect and go offline")
	s.Require().NoError(second.Close())
	s.eventuallyOnline(userID, false)
}

func (s *testPresenceSuite) TestEmitRejectsBadEnvelopes() {
	s.Step("Unknown type")
	status, _ := s.Emit(`{"type":"MESSAGE_READ","payload":{}}`)
	s.Equal(http.StatusBadRequest, status)

	s.Step("Invalid payload")
	status, _ = s.Emit(`{"type":"NEW_MESSAGE","payload":{"groupId":"seven"}}`)
	s.Equal(http.StatusBadRequest, status)

	s.Step("Group lifecycle events reach nobody")
	status, body := s.Emit(`{"type":"GROUP_CREATED","payload":{"groupId":1,"userId":1}}`)
	s.Equal(http.StatusOK, status)
	s.NotContains(string(body), "recipients")
}
