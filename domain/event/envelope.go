package event

import (
	"collab-realtime/domain"
	"encoding/json"
)

// Envelope is one decoded wire unit. It is immutable once built by the codec:
// Raw keeps the payload bytes exactly as received so pushes forward them untouched.
type Envelope struct {
	Type Type            `json:"type"`
	Raw  json.RawMessage `json:"payload"`
	Body Payload         `json:"-"`
	// Origin is the node that relayed the envelope here, empty when it entered on this node.
	Origin string `json:"-"`
}

// Actor returns the user named by the payload, zero when absent.
func (e Envelope) Actor() domain.UserID {
	if e.Body == nil {
		return 0
	}
	return e.Body.Actor()
}

// Group returns the target group of a group-scoped envelope.
func (e Envelope) Group() (domain.GroupID, bool) {
	g, ok := e.Body.(GroupScoped)
	if !ok {
		return 0, false
	}
	return g.Group(), true
}

// Target returns the recipient of a direct envelope.
func (e Envelope) Target() (domain.UserID, bool) {
	d, ok := e.Body.(*DirectPayload)
	if !ok {
		return 0, false
	}
	return d.TargetUserID, true
}
