// Package codec turns raw websocket frames into envelopes and back.
package codec

import (
	"bytes"
	"collab-realtime/domain/event"
	"collab-realtime/errors"
	"encoding/json"
	"fmt"
	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"
)

var (
	jsonAPI  = jsoniter.ConfigCompatibleWithStandardLibrary
	validate = validator.New()
)

// DecodeError describes a frame that was dropped at the decode boundary.
type DecodeError struct {
	Type  event.Type
	Cause error
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("decode %q: %v: %v", e.Type, e.Cause, e.Err)
	}
	return fmt.Sprintf("decode: %v: %v", e.Cause, e.Err)
}

// Unwrap exposes both the sentinel and the underlying error to errors.Is.
func (e *DecodeError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Cause}
	}
	return []error{e.Cause, e.Err}
}

type wire struct {
	Type    event.Type      `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Decode parses a frame, checks the type against the known taxonomy and validates its payload.
func Decode(raw []byte) (event.Envelope, error) {
	var w wire
	if err := jsonAPI.Unmarshal(raw, &w); err != nil {
		return event.Envelope{}, &DecodeError{Cause: errors.ErrMalformedFrame, Err: err}
	}
	if w.Type == "" {
		return event.Envelope{}, &DecodeError{Cause: errors.ErrMalformedFrame, Err: fmt.Errorf("missing type")}
	}
	if !w.Type.Known() {
		return event.Envelope{}, &DecodeError{Type: w.Type, Cause: errors.ErrUnknownEventType}
	}

	payload := bytes.TrimSpace(w.Payload)
	if len(payload) == 0 || bytes.Equal(payload, []byte("null")) {
		payload = []byte("{}")
	}
	body := event.NewPayload(w.Type)
	if err := jsonAPI.Unmarshal(payload, body); err != nil {
		return event.Envelope{}, &DecodeError{Type: w.Type, Cause: errors.ErrInvalidPayload, Err: err}
	}
	if err := validate.Struct(body); err != nil {
		return event.Envelope{}, &DecodeError{Type: w.Type, Cause: errors.ErrInvalidPayload, Err: err}
	}

	return event.Envelope{Type: w.Type, Raw: json.RawMessage(payload), Body: body}, nil
}

// Encode renders the two-field wire object. The payload bytes are forwarded as received.
func Encode(env event.Envelope) ([]byte, error) {
	payload := env.Raw
	if len(payload) == 0 {
		if env.Body == nil {
			payload = json.RawMessage("{}")
		} else {
			b, err := jsonAPI.Marshal(env.Body)
			if err != nil {
				return nil, fmt.Errorf("encode %s payload: %w", env.Type, err)
			}
			payload = b
		}
	}
	return jsonAPI.Marshal(wire{Type: env.Type, Payload: payload})
}

// NewEnvelope builds an envelope from a Go value, running it through Decode
// so synthetic events obey the same rules as socket frames.
func NewEnvelope(t event.Type, payload any) (event.Envelope, error) {
	var raw []byte
	switch p := payload.(type) {
	case nil:
		raw = []byte("{}")
	case json.RawMessage:
		raw = p
	case []byte:
		raw = p
	default:
		b, err := jsonAPI.Marshal(payload)
		if err != nil {
			return event.Envelope{}, &DecodeError{Type: t, Cause: errors.ErrInvalidPayload, Err: err}
		}
		raw = b
	}
	frame, err := jsonAPI.Marshal(wire{Type: t, Payload: raw})
	if err != nil {
		return event.Envelope{}, &DecodeError{Type: t, Cause: errors.ErrMalformedFrame, Err: err}
	}
	return Decode(frame)
}
