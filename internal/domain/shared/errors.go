// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors. ErrInvalidArgument is the kind every input check
	// reports; the finer kinds below wrap it.
	ErrInvalidArgument = errors.New("invalid argument")
	ErrInvalidID       = fmt.Errorf("%w: invalid ID", ErrInvalidArgument)
	ErrEmptyValue      = fmt.Errorf("%w: value cannot be empty", ErrInvalidArgument)
	ErrValueOutOfRange = fmt.Errorf("%w: value out of range", ErrInvalidArgument)
	ErrInvalidFormat   = fmt.Errorf("%w: invalid format", ErrInvalidArgument)

	// State errors
	ErrFailedPrecondition = errors.New("failed precondition")
	ErrInvalidState       = errors.New("invalid state")

	// Concurrency errors
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrLockNotAcquired        = errors.New("lock not acquired")

	// Infrastructure errors
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "progress", "rating", "achievement"
	Op      string // Operation that failed, e.g., "RecordTribeVisit", "Grant"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// NewDomainErrorf creates a new domain error with a formatted message.
func NewDomainErrorf(domain, op string, kind error, format string, args ...any) *DomainError {
	return NewDomainError(domain, op, kind, fmt.Sprintf(format, args...))
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Progress domain errors
var (
	ErrProgressNotFound     = NewDomainError("progress", "Find", ErrNotFound, "progress not found")
	ErrNonPositiveMinutes   = NewDomainError("progress", "AddLearningTime", ErrValueOutOfRange, "minutes must be greater than zero")
	ErrSessionTooLong       = NewDomainError("progress", "AddLearningTime", ErrValueOutOfRange, "a learning session cannot exceed 1440 minutes")
	ErrLearningTimeOverflow = NewDomainError("progress", "AddLearningTime", ErrValueOutOfRange, "total learning time would exceed its maximum")
	ErrScoreOutOfRange      = NewDomainError("progress", "RecordVRCompletion", ErrValueOutOfRange, "score must be between 0 and 100")
	ErrUnknownActivityKind  = NewDomainError("progress", "Record", ErrInvalidArgument, "unknown activity kind")
	ErrProgressVersionStale = NewDomainError("progress", "Save", ErrConcurrentModification, "progress version is stale")
)

// Rating domain errors
var (
	ErrContentNotFound = NewDomainError("rating", "Find", ErrNotFound, "content not found")
	ErrInvalidRating   = NewDomainError("rating", "Validate", ErrValueOutOfRange, "rating must be between 1 and 5")
	ErrCommentTooLong  = NewDomainError("rating", "Validate", ErrValueOutOfRange, "comment exceeds 1000 characters")
	ErrRatingUserEmpty = NewDomainError("rating", "Validate", ErrEmptyValue, "user id is required to rate content")
)

// Achievement domain errors
var (
	ErrAchievementNotFound   = NewDomainError("achievement", "Find", ErrNotFound, "achievement not found")
	ErrPrerequisitesUnmet    = NewDomainError("achievement", "Grant", ErrFailedPrecondition, "achievement prerequisites are not earned")
	ErrInvalidCatalog        = NewDomainError("achievement", "LoadCatalog", ErrInvalidArgument, "invalid achievement catalog")
	ErrDuplicateAchievement  = NewDomainError("achievement", "LoadCatalog", ErrAlreadyExists, "duplicate achievement id")
	ErrPrerequisiteCycle     = NewDomainError("achievement", "LoadCatalog", ErrInvalidArgument, "prerequisite cycle detected")
	ErrUnknownPrerequisite   = NewDomainError("achievement", "LoadCatalog", ErrInvalidArgument, "unknown prerequisite")
	ErrInvalidValidityWindow = NewDomainError("achievement", "LoadCatalog", ErrInvalidArgument, "unlock date must be before expiry date")
)

// Lock errors
var (
	ErrLockTimeout = NewDomainError("lock", "Acquire", ErrLockNotAcquired, "timed out waiting for lock")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsInvalidArgument checks if the error is a validation error.
func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}

// IsFailedPrecondition checks if the error reports an unmet precondition.
func IsFailedPrecondition(err error) bool {
	return errors.Is(err, ErrFailedPrecondition)
}

// IsRetryable checks if the operation can be retried by the caller.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, ErrLockNotAcquired)
}
