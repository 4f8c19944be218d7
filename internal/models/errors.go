package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Error kinds shared by storage, extraction and query code. The transport
// layer maps them to status codes with errors.Is.
var (
	// ErrInvalidInput marks a malformed filename or query parameter.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound marks a stored file that does not exist at query time.
	ErrNotFound = errors.New("file not found")
	// ErrProcessFailure marks an extraction script that could not be spawned,
	// exited non-zero or timed out.
	ErrProcessFailure = errors.New("extraction failed")
	// ErrStorageFailure marks an I/O error from the staging root.
	ErrStorageFailure = errors.New("storage failure")
)

// OpError is an error raised by a named operation against a target file.
type OpError struct {
	Op        string    // Operation name, e.g. "list-users"
	Target    string    // File name the operation addressed
	Kind      error     // One of the Err* kinds above
	Err       error     // Underlying cause (optional)
	Timestamp time.Time // When the error occurred
}

// NewOpError creates an OpError stamped with the current time.
func NewOpError(op, target string, kind, err error) *OpError {
	return &OpError{
		Op:        op,
		Target:    target,
		Kind:      kind,
		Err:       err,
		Timestamp: time.Now(),
	}
}

// Error implements the error interface.
func (e *OpError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s %q: %v", e.Op, e.Target, e.Kind))
	if e.Err != nil {
		sb.WriteString(fmt.Sprintf(": %v", e.Err))
	}
	return sb.String()
}

// Is reports whether target is the kind of this error.
func (e *OpError) Is(target error) bool {
	return e.Kind != nil && target == e.Kind
}

// Unwrap returns the underlying cause.
func (e *OpError) Unwrap() error {
	return e.Err
}

// KindOf returns the error kind carried by err, or nil when err has none.
func KindOf(err error) error {
	for _, kind := range []error{ErrInvalidInput, ErrNotFound, ErrProcessFailure, ErrStorageFailure} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
