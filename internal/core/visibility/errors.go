package visibility

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrDegenerateGeometry = errors.New("degenerate geometry")
)

// ValidationError is returned for viewer input outside the supported domain.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// DegenerateGeometryError names the object that coincides with the viewer.
type DegenerateGeometryError struct {
	ObjectID string
}

func (e *DegenerateGeometryError) Error() string {
	return fmt.Sprintf("object %q coincides with the viewer position", e.ObjectID)
}

func (e *DegenerateGeometryError) Unwrap() error {
	return ErrDegenerateGeometry
}
