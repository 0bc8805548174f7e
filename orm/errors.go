package orm

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// DatabaseError wraps failures reported by the database driver.
type DatabaseError struct {
	Inner error
}

func (e *DatabaseError) Error() string {
	return "database operation failed: " + e.Inner.Error()
}

func (e *DatabaseError) Unwrap() error {
	return e.Inner
}

// NotFoundError is returned when a lookup by identifier matches no row.
type NotFoundError struct {
	Search string
}

func (e *NotFoundError) Error() string {
	return "record not found: " + e.Search
}

// ConflictError is returned when a write violates a uniqueness constraint.
type ConflictError struct {
	Conflict string
}

func (e *ConflictError) Error() string {
	return "conflicting record: " + e.Conflict
}

type BadInputError struct {
	Reason string
}

func (e *BadInputError) Error() string {
	return "bad input: " + e.Reason
}

func wrapErrorWithDetails(err error, operation, details string) error {
	if err == nil {
		return nil
	}

	// already classified by a nested call
	var (
		notFound *NotFoundError
		conflict *ConflictError
		badInput *BadInputError
		dbErr    *DatabaseError
	)
	if errors.As(err, &notFound) || errors.As(err, &conflict) ||
		errors.As(err, &badInput) || errors.As(err, &dbErr) {
		return err
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &NotFoundError{Search: fmt.Sprintf("%s (%s)", operation, details)}
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return &ConflictError{Conflict: fmt.Sprintf("%s (%s)", operation, details)}
	}

	return &DatabaseError{Inner: fmt.Errorf("%s: %w", operation, err)}
}
