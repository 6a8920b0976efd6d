package event

import "collab-realtime/domain"

// Payload is the typed view of an envelope payload.
type Payload interface {
	// Actor is the user who caused the event, zero if the payload does not say.
	Actor() domain.UserID
}

// GroupScoped is implemented by payloads routed to the members of a group.
type GroupScoped interface {
	Payload
	Group() domain.GroupID
}

type MessagePayload struct {
	GroupID   domain.GroupID `json:"groupId" validate:"required,gt=0"`
	MessageID int64          `json:"messageId" validate:"gte=0"`
	UserID    domain.UserID  `json:"userId" validate:"gte=0"`
	Content   string         `json:"content,omitempty"`
}

func (p MessagePayload) Actor() domain.UserID  { return p.UserID }
func (p MessagePayload) Group() domain.GroupID { return p.GroupID }

type DocumentPayload struct {
	GroupID    domain.GroupID `json:"groupId" validate:"required,gt=0"`
	DocumentID int64          `json:"documentId" validate:"gte=0"`
	UserID     domain.UserID  `json:"userId" validate:"gte=0"`
	Title      string         `json:"title,omitempty"`
}

func (p DocumentPayload) Actor() domain.UserID  { return p.UserID }
func (p DocumentPayload) Group() domain.GroupID { return p.GroupID }

type FilePayload struct {
	GroupID domain.GroupID `json:"groupId" validate:"required,gt=0"`
	FileID  int64          `json:"fileId" validate:"gte=0"`
	UserID  domain.UserID  `json:"userId" validate:"gte=0"`
	Name    string         `json:"name,omitempty"`
}

func (p FilePayload) Actor() domain.UserID  { return p.UserID }
func (p FilePayload) Group() domain.GroupID { return p.GroupID }

// MembershipPayload carries USER_JOINED and USER_LEFT.
type MembershipPayload struct {
	GroupID domain.GroupID `json:"groupId" validate:"required,gt=0"`
	UserID  domain.UserID  `json:"userId" validate:"gte=0"`
}

func (p MembershipPayload) Actor() domain.UserID  { return p.UserID }
func (p MembershipPayload) Group() domain.GroupID { return p.GroupID }

// DirectPayload carries NOTIFICATION.
type DirectPayload struct {
	TargetUserID domain.UserID `json:"targetUserId" validate:"required,gt=0"`
}

func (p DirectPayload) Actor() domain.UserID { return 0 }

// GroupPayload carries GROUP_CREATED and GROUP_UPDATED, which are never pushed.
type GroupPayload struct {
	GroupID domain.GroupID `json:"groupId,omitempty" validate:"gte=0"`
	UserID  domain.UserID  `json:"userId,omitempty" validate:"gte=0"`
}

func (p GroupPayload) Actor() domain.UserID { return p.UserID }

// NewPayload returns a pointer to the empty payload struct for t, nil for unknown kinds.
func NewPayload(t Type) Payload {
	switch t {
	case NewMessage:
		return &MessagePayload{}
	case NewDocument, DocumentUpdated:
		return &DocumentPayload{}
	case NewFile:
		return &FilePayload{}
	case UserJoined, UserLeft:
		return &MembershipPayload{}
	case Notification:
		return &DirectPayload{}
	case GroupCreated, GroupUpdated:
		return &GroupPayload{}
	default:
		return nil
	}
}
