package domain

// DeliveryOutcome classifies what happened to one recipient of a group broadcast.
type DeliveryOutcome int

const (
	LiveDelivered DeliveryOutcome = iota + 1
	OfflineFallback
	SkippedSender
	// OfflineNoFallback is an unreachable recipient of an event that leaves nothing behind.
	OfflineNoFallback
	// HandledElsewhere is a recipient another node delivers to, or falls back for.
	HandledElsewhere
)

func (o DeliveryOutcome) String() string {
	switch o {
	case LiveDelivered:
		return "LIVE_DELIVERED"
	case OfflineFallback:
		return "OFFLINE_FALLBACK"
	case SkippedSender:
		return "SKIPPED_SENDER"
	case OfflineNoFallback:
		return "OFFLINE_NO_FALLBACK"
	case HandledElsewhere:
		return "HANDLED_ELSEWHERE"
	default:
		return "UNKNOWN"
	}
}

// Delivery is the outcome for one intended recipient.
type Delivery struct {
	UserID  UserID
	Outcome DeliveryOutcome
	// Err is the push error that demoted a live recipient to fallback.
	Err error
}

// DispatchReport summarizes one dispatch. It is built for logs, metrics and tests
// and never travels over the wire.
type DispatchReport struct {
	EventType  string
	GroupID    GroupID
	Recipients []Delivery
}

func (r DispatchReport) Count(outcome DeliveryOutcome) int {
	n := 0
	for _, d := range r.Recipients {
		if d.Outcome == outcome {
			n++
		}
	}
	return n
}

func (r DispatchReport) OutcomeFor(userID UserID) (DeliveryOutcome, bool) {
	for _, d := range r.Recipients {
		if d.UserID == userID {
			return d.Outcome, true
		}
	}
	return 0, false
}
