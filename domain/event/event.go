package event

import "collab-realtime/domain"

// Type is the "type" field of a wire envelope.
type Type string

const (
	NewMessage      Type = "NEW_MESSAGE"
	NewDocument     Type = "NEW_DOCUMENT"
	DocumentUpdated Type = "DOCUMENT_UPDATED"
	NewFile         Type = "NEW_FILE"
	UserJoined      Type = "USER_JOINED"
	UserLeft        Type = "USER_LEFT"
	GroupCreated    Type = "GROUP_CREATED"
	GroupUpdated    Type = "GROUP_UPDATED"
	Notification    Type = "NOTIFICATION"
)

// Strategy is how an event reaches its recipients.
type Strategy int

const (
	StrategyNone Strategy = iota
	StrategyGroupBroadcast
	StrategyDirect
)

func (s Strategy) String() string {
	switch s {
	case StrategyGroupBroadcast:
		return "group_broadcast"
	case StrategyDirect:
		return "direct"
	default:
		return "none"
	}
}

type rule struct {
	strategy       Strategy
	excludesSender bool
	fallback       domain.NotificationCategory
}

var rules = map[Type]rule{
	NewMessage:      {StrategyGroupBroadcast, true, domain.CategoryMessage},
	NewDocument:     {StrategyGroupBroadcast, true, domain.CategoryDocument},
	DocumentUpdated: {StrategyGroupBroadcast, true, domain.CategoryDocument},
	NewFile:         {StrategyGroupBroadcast, true, domain.CategoryFile},
	// membership changes are confirmed to the actor as well
	UserJoined:   {StrategyGroupBroadcast, false, ""},
	UserLeft:     {StrategyGroupBroadcast, false, ""},
	Notification: {StrategyDirect, false, ""},
	GroupCreated: {StrategyNone, false, ""},
	GroupUpdated: {StrategyNone, false, ""},
}

// Types lists every known event kind.
func Types() []Type {
	return []Type{
		NewMessage, NewDocument, DocumentUpdated, NewFile,
		UserJoined, UserLeft, GroupCreated, GroupUpdated, Notification,
	}
}

func (t Type) Known() bool {
	_, ok := rules[t]
	return ok
}

func (t Type) Strategy() Strategy {
	return rules[t].strategy
}

// ExcludesSender reports whether the acting user is left out of a group broadcast.
func (t Type) ExcludesSender() bool {
	return rules[t].excludesSender
}

// FallbackCategory is the notification category offline recipients get,
// or "" when the kind has no durable fallback.
func (t Type) FallbackCategory() domain.NotificationCategory {
	return rules[t].fallback
}
