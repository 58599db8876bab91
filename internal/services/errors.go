package services

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors classify every failure the pipeline can surface. Callers
// match with errors.Is; the message carries entity keys and step context so
// an operator can diagnose without re-deriving state from logs.
var (
	// ErrNotFound indicates a referenced identifier does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState indicates a status precondition was violated. This is a
	// caller or workflow bug, never retried.
	ErrInvalidState = errors.New("invalid state")
	// ErrConcurrent indicates a canonicalization attempt lost the lock race to
	// another in-flight attempt. Safe to retry shortly.
	ErrConcurrent = errors.New("concurrent canonicalization")
	// ErrStale is the store-level conditional-write miss. It is always wrapped
	// into one of the higher-level sentinels before reaching a caller.
	ErrStale = errors.New("stale state")
	// ErrPartial indicates canonicalization failed after the lock was taken.
	// The locked candidates stay locked and require operator intervention.
	ErrPartial = errors.New("partial canonicalization")

	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrExternal      = errors.New("external provider error")
)

// Wrap builds an error message that includes component and operation context
// while tagging it with the provided marker for later classification. The
// marker should be one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrPartial
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Retryable reports whether the caller may safely retry the operation later.
// Only lock races qualify; every other failure indicates a bug, bad input, or
// a state that needs an operator.
func Retryable(err error) bool {
	return errors.Is(err, ErrConcurrent)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "pipeline failure"
	}
	return strings.Join(parts, ": ")
}
