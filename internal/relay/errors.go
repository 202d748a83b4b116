package relay

import (
	"errors"
	"fmt"
)

var (
	ErrTenantNotFound   = errors.New("tenant not found")
	ErrTenantInactive   = errors.New("tenant inactive")
	ErrResolve          = errors.New("tenant lookup failed")
	ErrSubscriberClosed = errors.New("subscriber closed")
	ErrSlowSubscriber   = errors.New("subscriber queue full")
	ErrUnknownEventType = errors.New("unknown event type")
	ErrAlreadyJoined    = errors.New("already joined")
)

// Join rejection reasons as they appear on the wire.
const (
	ReasonCodeNotFound   = "code-not-found"
	ReasonTenantNotFound = "tenant-not-found"
	ReasonInactive       = "inactive"
	ReasonResolveFailed  = "resolve-failed"
	ReasonAlreadyJoined  = "already-joined"
)

// JoinError is returned for a rejected join attempt.
type JoinError struct {
	Reason string
	Err    error
}

func (e *JoinError) Error() string {
	return fmt.Sprintf("join rejected (%s): %v", e.Reason, e.Err)
}

func (e *JoinError) Unwrap() error { return e.Err }
