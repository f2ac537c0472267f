// File: api/schemas/errors.go
package schemas

import (
	"errors"
	"fmt"
)

// ProviderError is a transient failure of the LLM collaborator (network,
// rate limit, 5xx). It is retryable up to the agent's retry budget.
type ProviderError struct {
	Provider string
	Status   int
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("provider %s failed (status %d): %v", e.Provider, e.Status, e.Err)
	}
	return fmt.Sprintf("provider %s failed: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ParseError is a structural violation of the step-response contract:
// the provider answered, but the payload is not a valid StepResponse.
// It counts toward the same retry budget as ProviderError but is logged
// distinctly because it indicates a schema problem, not a transient fault.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed step response: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ReadError is the only error type the slide-reader collaborator may return.
// It wraps whatever the underlying format library failed with so that its
// exception types never leak past the reader boundary.
type ReadError struct {
	Region Region
	Level  int
	Err    error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("slide read failed at level %d region %s: %v", e.Level, e.Region, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// IsProviderError reports whether err is (or wraps) a ProviderError.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}

// IsParseError reports whether err is (or wraps) a ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}
