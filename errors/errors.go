package errors

import (
	stderrors "errors"
	"fmt"
)

var (
	ErrRoomNotFound     = fmt.Errorf("room not found")
	ErrForbidden        = fmt.Errorf("user is not a participant of this room")
	ErrEmptyContent     = fmt.Errorf("message content is empty")
	ErrMalformedEvent   = fmt.Errorf("malformed inbound event")
	ErrUnknownEventType = fmt.Errorf("unknown event type")
	ErrMissingIdentity  = fmt.Errorf("missing user identity")
	ErrWorkerPanic      = fmt.Errorf("worker panic")
)

// Is reports whether any error in err's chain matches target. Re-exported
// so callers comparing against the sentinels above need a single import.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}
