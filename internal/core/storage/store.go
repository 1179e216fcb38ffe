// Package storage provides read access to the spatial objects a query scans.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/zeusync/viewcone/internal/core/visibility"
)

var (
	ErrUnavailable  = errors.New("object store unavailable")
	ErrClosed       = errors.New("store is closed")
	ErrDuplicateID  = errors.New("duplicate object id")
	ErrInvalidSeed  = errors.New("invalid seed data")
	ErrUnknownStore = errors.New("unknown store driver")
)

// Store hands out sessions. Implementations must be safe for concurrent use.
type Store interface {
	// Open acquires a session. The caller must Close it on every path.
	Open(ctx context.Context) (Session, error)
	Ping(ctx context.Context) error
	Close() error
}

// Session is a scoped read handle on a Store.
type Session interface {
	// Objects returns every object in store iteration order.
	Objects(ctx context.Context) ([]visibility.SpatialObject, error)
	Close() error
}

// UnavailableError marks a failure to reach or read the store. It matches
// both ErrUnavailable and the underlying cause with errors.Is.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrUnavailable, e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() []error {
	return []error{ErrUnavailable, e.Err}
}

func unavailable(op string, err error) error {
	var ue *UnavailableError
	if errors.As(err, &ue) {
		return err
	}
	return &UnavailableError{Op: op, Err: err}
}
