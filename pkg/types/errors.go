package types

import "errors"

// Failure taxonomy shared across the pipeline. Components wrap these with
// fmt.Errorf("...: %w") so callers can classify with errors.Is.
var (
	// ErrParse means structure could not be derived; callers degrade to a fallback
	ErrParse = errors.New("parse failure")

	// ErrCompletion means a completion-service call failed
	ErrCompletion = errors.New("completion failure")

	// ErrRateLimited is a completion failure caused by rate limiting or quota exhaustion
	ErrRateLimited = &rateLimitedError{}

	// ErrPersistence means a write to the relational store failed
	ErrPersistence = errors.New("persistence failure")

	// ErrConfiguration means a codebase or settings entry is missing or invalid
	ErrConfiguration = errors.New("configuration failure")

	// ErrUnexpected wraps anything else caught at a task boundary
	ErrUnexpected = errors.New("unexpected failure")
)

type rateLimitedError struct{}

func (e *rateLimitedError) Error() string { return "rate limited" }

// Is makes errors.Is(ErrRateLimited, ErrCompletion) hold
func (e *rateLimitedError) Is(target error) bool {
	return target == ErrCompletion
}
