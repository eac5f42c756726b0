package share

import "errors"

var (
	// ErrNotFound is returned when a share token or room id does not
	// resolve to an active room. Callers must not conflate this with
	// store unavailability: any other error from a lookup is transient
	// and retryable.
	ErrNotFound = errors.New("share room not found")

	// ErrRoomInactive is returned when a room exists but has been
	// deactivated. Surfaced to users the same way as ErrNotFound.
	ErrRoomInactive = errors.New("share room is no longer active")

	// ErrEmptyMessage is returned for user sends whose body is empty or
	// whitespace-only. Rejected before any network or store call.
	ErrEmptyMessage = errors.New("message content cannot be empty")

	// ErrMessageTooLong is returned when a message body exceeds MaxContentLength.
	ErrMessageTooLong = errors.New("message exceeds maximum length")

	// ErrTitleInvalid is returned for empty or oversized room titles.
	ErrTitleInvalid = errors.New("room title must be between 1 and 200 characters")

	// ErrNotPermitted is returned when the configured authorization policy
	// rejects a room operation.
	ErrNotPermitted = errors.New("operation not permitted")
)
