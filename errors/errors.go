// Package errors provides the standardized error taxonomy for BotState
// storage backends. It includes sentinel errors for well-known conditions,
// an operation-scoped wrapper that preserves the original cause, and
// classification helpers for consistent handling across the system.
package errors

import (
	"errors"
	"fmt"
)

// Op identifies the storage operation an error occurred in.
type Op string

// Storage operations.
const (
	OpRead   Op = "read"
	OpWrite  Op = "write"
	OpDelete Op = "delete"
)

// Standard error variables for common conditions
var (
	// ErrInvalidConfig indicates invalid or missing settings at construction
	// time. Fatal, never retried.
	ErrInvalidConfig = errors.New("invalid store configuration")

	// ErrSchemaMismatch indicates the configured partition scheme disagrees
	// with the backing collection's actual partitioning. An environment or
	// setup problem, not a transport failure.
	ErrSchemaMismatch = errors.New("partition schema mismatch")

	// ErrConcurrencyConflict indicates a conditional write whose version tag
	// no longer matches the stored record. Recoverable: re-read and retry.
	ErrConcurrencyConflict = errors.New("version tag mismatch (concurrent update)")

	// ErrInvalidVersionTag indicates a write carried an empty (but present)
	// version tag. Caller misuse: omit the tag or use the wildcard.
	ErrInvalidVersionTag = errors.New("version tag is present but empty")

	// ErrEmptyKey indicates an operation was given an empty key.
	ErrEmptyKey = errors.New("key cannot be empty")

	// ErrKeyNotFound is returned by backends for point operations against
	// absent keys. Reads and deletes absorb it; it never escapes the store.
	ErrKeyNotFound = errors.New("key not found")

	// ErrNotProvisioned indicates a data operation ran before the backing
	// database or collection was ensured.
	ErrNotProvisioned = errors.New("backing resources not provisioned")
)

// StoreError wraps a transport or backend failure with the operation and key
// it occurred on. The original error is preserved as a chained cause.
type StoreError struct {
	Op  Op
	Key string
	Err error
}

// Error implements the error interface
func (e *StoreError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *StoreError) Unwrap() error {
	return e.Err
}

// WrapRead wraps err as a read failure for key. Nil in, nil out.
func WrapRead(key string, err error) error {
	return wrap(OpRead, key, err)
}

// WrapWrite wraps err as a write failure for key. Nil in, nil out.
func WrapWrite(key string, err error) error {
	return wrap(OpWrite, key, err)
}

// WrapDelete wraps err as a delete failure for key. Nil in, nil out.
func WrapDelete(key string, err error) error {
	return wrap(OpDelete, key, err)
}

func wrap(op Op, key string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Key: key, Err: err}
}

// Configf builds a configuration error with a formatted detail message.
// The result matches ErrInvalidConfig under errors.Is.
func Configf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// IsConfig checks whether err is a configuration error.
func IsConfig(err error) bool {
	return errors.Is(err, ErrInvalidConfig)
}

// IsSchemaMismatch checks whether err reports a partition schema mismatch.
func IsSchemaMismatch(err error) bool {
	return errors.Is(err, ErrSchemaMismatch)
}

// IsConflict checks whether err reports an optimistic-concurrency conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

// IsNotFound checks whether err reports an absent key.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrKeyNotFound)
}

// OpOf returns the storage operation err occurred in, if err carries one.
func OpOf(err error) (Op, bool) {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Op, true
	}
	return "", false
}
