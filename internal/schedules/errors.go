package schedules

import (
	"errors"
	"fmt"
)

var (
	// ErrScheduleNotFound is returned when a schedule cannot be found
	ErrScheduleNotFound = errors.New("schedule not found")

	// ErrDuplicateSchedule is returned when the (owner, collection,
	// cron expression) tuple is already registered
	ErrDuplicateSchedule = errors.New("schedule already exists for this owner, collection and cron expression")
)

// ValidationError reports a rejected schedule field. The API boundary
// maps it to a 400 response.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func newValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
