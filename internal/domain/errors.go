package domain

import "errors"

var (
	// ErrQuotaExceeded is returned when a user has no plays left in the current window.
	ErrQuotaExceeded = errors.New("daily play quota exceeded")
	// ErrInvalidState is returned when a session is not in the state an operation requires.
	ErrInvalidState = errors.New("session not in expected state")
	// ErrDuplicateAnswer is returned when a problem index was already answered.
	ErrDuplicateAnswer = errors.New("problem already answered")
	// ErrOutOfRange is returned when a problem index does not exist in the issued set.
	ErrOutOfRange = errors.New("problem index out of range")
	// ErrAlreadyGraded signals the terminal grading pass already ran; callers
	// should return the prior result instead of recomputing.
	ErrAlreadyGraded = errors.New("session already graded")
	// ErrSessionNotFound is returned for unknown session IDs.
	ErrSessionNotFound = errors.New("session not found")
	// ErrChallengeNotFound indicates an unknown challenge type or difficulty.
	ErrChallengeNotFound = errors.New("challenge not found")
	// ErrUpstreamFailure indicates the progression bridge could not be reached.
	ErrUpstreamFailure = errors.New("progression bridge unavailable")
)
