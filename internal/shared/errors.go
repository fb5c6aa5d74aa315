package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed or inconsistent user input. Callers may re-prompt.
	ErrValidation = errors.New("validation failed")
	// ErrPrecondition indicates missing prerequisite state, e.g. an empty goods table.
	ErrPrecondition = errors.New("precondition failed")
	// ErrGateway indicates the source ledger was unreachable or rejected the query.
	ErrGateway = errors.New("source gateway failure")
	// ErrStore indicates a warehouse connection or write failure.
	ErrStore = errors.New("warehouse store failure")
	// ErrLocked occurs when another run holds the sync lock.
	ErrLocked = errors.New("sync already running")
)

// ValidationError names the offending input field.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// Unwrap lets errors.Is match ErrValidation.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Precondition wraps a missing-state failure.
func Precondition(msg string) error {
	return fmt.Errorf("%w: %s", ErrPrecondition, msg)
}

// Gateway tags err as a source gateway failure for the given operation.
func Gateway(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("source: %s: %w", op, errors.Join(ErrGateway, err))
}

// Store tags err as a warehouse failure for the given operation.
func Store(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStore) {
		return err
	}
	return fmt.Errorf("warehouse: %s: %w", op, errors.Join(ErrStore, err))
}

// IsFatal reports whether err should terminate the run instead of re-prompting.
func IsFatal(err error) bool {
	return err != nil && !errors.Is(err, ErrValidation)
}
