package errors

import "fmt"

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")

	ErrMalformedFrame   = fmt.Errorf("malformed frame")
	ErrUnknownEventType = fmt.Errorf("unknown event type")
	ErrInvalidPayload   = fmt.Errorf("invalid payload")
	ErrIdentityMismatch = fmt.Errorf("event user does not match connection identity")

	ErrConnectionClosed = fmt.Errorf("connection closed")
	ErrSendBufferFull   = fmt.Errorf("send buffer full")
	ErrSuperseded       = fmt.Errorf("connection superseded by a newer session")
	ErrKeepaliveTimeout = fmt.Errorf("keepalive probe not acknowledged")
	ErrShuttingDown     = fmt.Errorf("server shutting down")

	ErrNotFound     = fmt.Errorf("not found")
	ErrUnauthorized = fmt.Errorf("unauthorized")
	ErrForbidden    = fmt.Errorf("forbidden")
)
