package ingest

import (
	"errors"
	"fmt"
)

// Fixed batch rejection reasons. The text is shown to operators verbatim in
// the run log.
var (
	ErrEmptyPayload = errors.New("File kosong.")
	ErrUnknownShape = errors.New("Struktur JSON tidak dikenali.")
	ErrNoPayloads   = errors.New("Tidak ada file yang dipilih.")
)

// ValidationError rejects a whole batch before any write: the payload was
// empty, not valid JSON, or not a recognized record shape.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return e.Err.Error() }
func (e *ValidationError) Unwrap() error { return e.Err }

// ReferenceError describes a record or detail whose platform or aspect had
// no id after resolution. It is counted and logged, never returned from a
// run.
type ReferenceError struct {
	Dimension string
	Name      string
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("%s %q could not be resolved", e.Dimension, e.Name)
}

// StorageError wraps a failed storage call made while processing a batch.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }

// IsValidation reports whether err rejected a batch during classification.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsStorage reports whether err came from a storage call.
func IsStorage(err error) bool {
	var s *StorageError
	return errors.As(err, &s)
}

// DecodeError reports a payload whose shape was recognized but whose
// elements could not be decoded into typed records.
type DecodeError struct {
	Kind Kind
	Err  error
}

func (e *DecodeError) Error() string { return e.Err.Error() }
func (e *DecodeError) Unwrap() error { return e.Err }
