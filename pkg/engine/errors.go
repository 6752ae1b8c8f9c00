// Package engine holds the error taxonomy shared by every relationship engine component.
package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidOperation rejects self-targeted or malformed requests.
	ErrInvalidOperation = errors.New("invalid operation")
	// ErrNotFound is returned when a referenced actor, owner or entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrBlocked is returned when a block in either direction forbids the action.
	ErrBlocked = errors.New("blocked")
	// ErrStorage wraps persistence failures.
	ErrStorage = errors.New("storage failure")
	// ErrRateLimited is returned when an actor exceeds the follow request budget.
	ErrRateLimited = errors.New("rate limited")
)

func InvalidOperation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidOperation, fmt.Sprintf(format, args...))
}

func NotFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func Blocked(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrBlocked, fmt.Sprintf(format, args...))
}

// Storage wraps err so callers can match both ErrStorage and the driver error.
func Storage(err error, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: failed to %s: %w", ErrStorage, action, err)
}

func RateLimited(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrRateLimited, fmt.Sprintf(format, args...))
}
