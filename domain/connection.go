package domain

// ConnState is the liveness state of a connection handle.
type ConnState int32

const (
	ConnOpen ConnState = iota
	ConnClosing
	ConnClosed
)

func (s ConnState) String() string {
	switch s {
	case ConnOpen:
		return "OPEN"
	case ConnClosing:
		return "CLOSING"
	case ConnClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}
