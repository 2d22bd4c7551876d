package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCursorClosed is returned when trying to perform operations on a
	// closed [Cursor].
	ErrCursorClosed = errors.New("cursor is closed")
	// ErrScanBeforeNext is returned when calling [Cursor.Scan] before
	// calling [Cursor.Next].
	ErrScanBeforeNext = errors.New("called Scan before calling Next")
	// ErrTargetNil is returned when the passed target, which should be a
	// pointer, is nil.
	ErrTargetNil = errors.New("target interface is nil")
	// ErrNonPointer is returned when the passed target is not a pointer.
	ErrNonPointer = errors.New("target must be a pointer")
	// ErrCannotModifyID is returned when an update would change the _id
	// of a document.
	ErrCannotModifyID = errors.New("cannot modify the _id field")
	// ErrUnknownCommand is returned by a [DatabaseClient] that does not
	// support the command it was asked to run.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrNoIdentity is returned when an operation needs the identity of an
	// object that was never persisted.
	ErrNoIdentity = errors.New("object has no identity")
)

// DuplicateKeyCode is the write error code reported for unique index
// violations.
const DuplicateKeyCode = 11000

// ConfigurationError is returned for programming errors detected while
// reflecting classes or wiring the mapper: unreflectable types, hooks that
// cannot be invoked, unknown connection names. It is never retried.
type ConfigurationError struct {
	Subject string
	Reason  string
}

// Error implements [error].
func (e ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Subject, e.Reason)
}

// ValidationError is returned when a property value is rejected while an
// object is serialized. No write is issued when it happens.
type ValidationError struct {
	Class    string
	Property string
	Value    any
	Rule     string
}

// Error implements [error].
func (e ValidationError) Error() string {
	if e.Rule == "required" {
		return fmt.Sprintf("%s.%s is required", e.Class, e.Property)
	}
	return fmt.Sprintf("%s.%s: value %v failed %q validation", e.Class, e.Property, e.Value, e.Rule)
}

// NotFoundError is returned by strict lookups that find nothing.
type NotFoundError struct {
	Collection string
	Filter     any
}

// Error implements [error].
func (e NotFoundError) Error() string {
	return fmt.Sprintf("no document in %q matches %v", e.Collection, e.Filter)
}

// WriteError is a write rejected by the store, such as a unique index
// violation.
type WriteError struct {
	Index   int
	Code    int
	Message string
}

// Error implements [error].
func (e WriteError) Error() string {
	return fmt.Sprintf("write error %d at operation %d: %s", e.Code, e.Index, e.Message)
}

// WriteErrors is the list of errors reported for a write batch.
type WriteErrors []WriteError

// Error implements [error].
func (e WriteErrors) Error() string {
	msgs := make([]string, len(e))
	for n, we := range e {
		msgs[n] = we.Error()
	}
	return strings.Join(msgs, "; ")
}

// Unwrap returns every write error, allowing [errors.As] to find a single
// [WriteError].
func (e WriteErrors) Unwrap() []error {
	errs := make([]error, len(e))
	for n, we := range e {
		errs[n] = we
	}
	return errs
}

// ReferenceResolutionError is returned when a reference points to a document
// that no longer exists.
type ReferenceResolutionError struct {
	Collection string
	ID         any
}

// Error implements [error].
func (e ReferenceResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve reference to %v in %q", e.ID, e.Collection)
}

// ErrDecode is returned by [Decoder.Decode] to easily wrap third party decoding
// errors.
type ErrDecode struct {
	Source any
	Target any
}

// Error implements [error].
func (e ErrDecode) Error() string {
	return fmt.Sprintf("cannot decode %T into %T", e.Source, e.Target)
}
