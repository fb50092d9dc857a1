package types

import "errors"

var (
	// ErrNotConfigured is returned when the workspace or tracker credentials are missing.
	ErrNotConfigured = errors.New("not configured")

	// ErrTrackerUnreachable is returned on transport failures, timeouts and 5xx responses.
	ErrTrackerUnreachable = errors.New("tracker unreachable")

	// ErrTrackerNotFound is returned when the tracker has no such issue.
	ErrTrackerNotFound = errors.New("tracker issue not found")

	// ErrTrackerRejected is returned when the tracker refuses a request.
	ErrTrackerRejected = errors.New("tracker rejected request")

	// ErrMalformedFragment is returned when a fragment cannot be decoded into a task.
	ErrMalformedFragment = errors.New("malformed fragment")

	// ErrNoMatchingTransition is reported when no transition leads to an acceptable status.
	ErrNoMatchingTransition = errors.New("no matching transition")

	// ErrTaskNotFound is returned when a task cannot be found in the workspace.
	ErrTaskNotFound = errors.New("task not found")
)
