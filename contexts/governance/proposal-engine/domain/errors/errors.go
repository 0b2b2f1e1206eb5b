package errors

import "errors"

var (
	ErrInvalidProposalInput = errors.New("invalid proposal input")
	ErrProposalNotFound     = errors.New("proposal not found")
	ErrOptionNotFound       = errors.New("proposal option not found")
	ErrValidationFailed     = errors.New("governance validation failed")
	ErrMalformedSnapshot    = errors.New("malformed proposal snapshot")
	ErrStatusConflict       = errors.New("proposal status changed concurrently")
	ErrConflict             = errors.New("proposal conflict")
	ErrAlreadyVoted         = errors.New("voter already voted on proposal")
	ErrResultsNotVisible    = errors.New("proposal results are not visible")
	ErrActorRequired        = errors.New("actor id is required")
)

// ValidationError carries a user-facing rule violation message. It matches
// ErrValidationFailed under errors.Is.
type ValidationError struct {
	Message string
}

func NewValidationError(message string) *ValidationError {
	return &ValidationError{Message: message}
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}
