package domain

import "errors"

var (
	ErrRoomNotFound        = errors.New("room not found")
	ErrQueueItemNotFound   = errors.New("queue item not found")
	ErrParticipantNotFound = errors.New("participant not found")

	ErrForbidden         = errors.New("forbidden")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrRoomInactive      = errors.New("room is not active")
	ErrNotApproved       = errors.New("participant is not approved")
	ErrInvalidInput      = errors.New("invalid input")

	// ErrStoreUnavailable marks infrastructure failures; the whole operation may be retried.
	ErrStoreUnavailable = errors.New("store unavailable")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrRoomNotFound) ||
		errors.Is(err, ErrQueueItemNotFound) ||
		errors.Is(err, ErrParticipantNotFound)
}

func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
