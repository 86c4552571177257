package bodymap

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrMarkerNotFound is returned by MarkerStore implementations when no row
// matches the requested id.
var ErrMarkerNotFound = errors.New("marker not found")

// ValidationError reports a missing or out-of-range field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

func required(field string) error {
	return &ValidationError{Field: field, Message: "is required"}
}

// NotFoundError references an unknown marker, marker type, or body region.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// StateError is returned when a transition is not allowed from the marker's
// current state. The marker is left unchanged.
type StateError struct {
	MarkerID uuid.UUID
	Op       string
	Status   Status
	Active   bool
}

func (e *StateError) Error() string {
	if !e.Active {
		return fmt.Sprintf("cannot %s marker %s: marker is deactivated", e.Op, e.MarkerID)
	}
	return fmt.Sprintf("cannot %s marker %s: status is %s", e.Op, e.MarkerID, e.Status)
}

// StoreError wraps a persistence failure. The cause is preserved.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("marker store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// storeErr wraps err unless it is already a typed engine error.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var (
		ve *ValidationError
		nf *NotFoundError
		se *StateError
		st *StoreError
	)
	if errors.As(err, &ve) || errors.As(err, &nf) || errors.As(err, &se) || errors.As(err, &st) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}
