package ports

import (
	"errors"
	"fmt"

	"spotstore/internal/domain"
)

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Database Specific Errors
	ErrDBConnection = errors.New("database connection error")
	ErrQueryFailed  = errors.New("database query failed")
	ErrUpdateFailed = errors.New("database update failed")

	// Constraint violations. Every specific violation also matches ErrConstraintViolation.
	ErrConstraintViolation = errors.New("constraint violation")
	ErrPrimaryKeyViolation = fmt.Errorf("primary key already exists: %w", ErrConstraintViolation)
	ErrUniqueViolation     = fmt.Errorf("unique key already exists: %w", ErrConstraintViolation)
	ErrNotNullViolation    = fmt.Errorf("required column is null: %w", ErrConstraintViolation)

	// Column value errors, raised before the row reaches the database.
	ErrNumericOverflow = domain.ErrNumericOverflow
	ErrValueTooLong    = domain.ErrValueTooLong
)

// IsDuplicate reports whether err means the row already exists, so callers can
// decide between skipping the write and failing the batch.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrPrimaryKeyViolation) || errors.Is(err, ErrUniqueViolation)
}
