package core

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by all layers. Storage and services wrap these with
// contextual detail; the HTTP layer maps them back to status codes.
var (
	// ErrNotFound covers entities that do not exist or belong to another
	// user. Ownership violations are indistinguishable from absence.
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument covers malformed input rejected before any
	// mutation takes place.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrConflict covers writes blocked by referential integrity, such as
	// deleting an account that still has transactions.
	ErrConflict = errors.New("conflict")
)

// Specific validation sentinels. They all unwrap to ErrInvalidArgument.
var (
	ErrInvalidAmount    = fmt.Errorf("amount must be a positive decimal: %w", ErrInvalidArgument)
	ErrEmptyName        = fmt.Errorf("empty name: %w", ErrInvalidArgument)
	ErrEmptyDescription = fmt.Errorf("empty description: %w", ErrInvalidArgument)
)

// NotFoundf formats a message and tags it as ErrNotFound.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
}

// InvalidArgumentf formats a message and tags it as ErrInvalidArgument.
func InvalidArgumentf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrInvalidArgument)...)
}

// Conflictf formats a message and tags it as ErrConflict.
func Conflictf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrConflict)...)
}
