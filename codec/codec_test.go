package codec

import (
	"collab-realtime/domain"
	"collab-realtime/domain/event"
	"collab-realtime/errors"
	stderrors "errors"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestDecode_NewMessage(t *testing.T) {
	req := require.New(t)
	raw := []byte(`{"type":"NEW_MESSAGE","payload":{"groupId":7,"messageId":42,"userId":3,"content":"hello"}}`)

	// When a well-formed frame is decoded
	env, err := Decode(raw)

	// Then the typed payload is populated
	req.NoError(err)
	req.Equal(event.NewMessage, env.Type)
	req.Equal(domain.UserID(3), env.Actor())
	group, ok := env.Group()
	req.True(ok)
	req.Equal(domain.GroupID(7), group)
	msg, ok := env.Body.(*event.MessagePayload)
	req.True(ok)
	req.Equal(int64(42), msg.MessageID)
	req.Equal("hello", msg.Content)
}

func TestDecode_Unknown_Type(t *testing.T) {
	req := require.New(t)

	// When the type is not part of the taxonomy
	_, err := Decode([]byte(`{"type":"TYPING","payload":{"groupId":1}}`))

	// Then a DecodeError wraps ErrUnknownEventType
	var decodeErr *DecodeError
	req.True(stderrors.As(err, &decodeErr))
	req.Equal(event.Type("TYPING"), decodeErr.Type)
	req.ErrorIs(err, errors.ErrUnknownEventType)
}

func TestDecode_Malformed(t *testing.T) {
	req := require.New(t)

	for _, raw := range []string{`not json`, `{"type":`, `[]`, `{"payload":{}}`} {
		_, err := Decode([]byte(raw))
		req.ErrorIs(err, errors.ErrMalformedFrame, raw)
	}
}

func TestDecode_Invalid_Payload(t *testing.T) {
	req := require.New(t)
	frames := []string{
		// group broadcast without a group
		`{"type":"NEW_FILE","payload":{"fileId":1,"userId":2}}`,
		// direct delivery without a target
		`{"type":"NOTIFICATION","payload":{}}`,
		// wrong shape
		`{"type":"USER_JOINED","payload":"group-1"}`,
		`{"type":"NEW_DOCUMENT","payload":{"groupId":-4}}`,
	}

	for _, raw := range frames {
		_, err := Decode([]byte(raw))
		req.ErrorIs(err, errors.ErrInvalidPayload, raw)
	}
}

func TestDecode_Group_Events_Without_Payload(t *testing.T) {
	req := require.New(t)

	// GROUP_CREATED is never pushed, an empty payload is accepted
	env, err := Decode([]byte(`{"type":"GROUP_CREATED"}`))

	req.NoError(err)
	req.Equal(event.GroupCreated, env.Type)
	req.JSONEq(`{}`, string(env.Raw))
}

func TestEncode_Preserves_Payload(t *testing.T) {
	req := require.New(t)
	raw := []byte(`{"type":"NEW_MESSAGE","payload":{"groupId":7,"messageId":42,"userId":3,"user":{"id":3,"displayName":"Ana"}}}`)

	// Given a frame carrying fields the server does not model
	env, err := Decode(raw)
	req.NoError(err)

	// When it is encoded again for a push
	out, err := Encode(env)

	// Then clients receive exactly what was sent
	req.NoError(err)
	req.JSONEq(string(raw), string(out))
}

func TestNewEnvelope_From_Struct(t *testing.T) {
	req := require.New(t)

	env, err := NewEnvelope(event.UserLeft, event.MembershipPayload{GroupID: 9, UserID: 4})

	req.NoError(err)
	req.Equal(domain.UserID(4), env.Actor())
	out, err := Encode(env)
	req.NoError(err)
	req.JSONEq(`{"type":"USER_LEFT","payload":{"groupId":9,"userId":4}}`, string(out))
}

func TestNewEnvelope_Rejects_Invalid(t *testing.T) {
	req := require.New(t)

	_, err := NewEnvelope(event.Notification, map[string]any{"targetUserId": 0})
	req.ErrorIs(err, errors.ErrInvalidPayload)

	_, err = NewEnvelope("SOMETHING", nil)
	req.ErrorIs(err, errors.ErrUnknownEventType)
}
