package storage

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/zeusync/viewcone/internal/core/visibility"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps objects in insertion order.
type MemoryStore struct {
	mu      sync.RWMutex
	objects []visibility.SpatialObject
	index   map[string]int
	closed  bool
}

func NewMemory(objects ...visibility.SpatialObject) (*MemoryStore, error) {
	s := &MemoryStore{index: make(map[string]int, len(objects))}
	for _, o := range objects {
		if _, exists := s.index[o.ID]; exists {
			return nil, fmt.Errorf("new memory store: %q: %w", o.ID, ErrDuplicateID)
		}
		s.index[o.ID] = len(s.objects)
		s.objects = append(s.objects, o)
	}
	return s, nil
}

// Put inserts objects or replaces those with a known id in place.
func (s *MemoryStore) Put(objects ...visibility.SpatialObject) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	for _, o := range objects {
		if i, exists := s.index[o.ID]; exists {
			s.objects[i] = o
			continue
		}
		s.index[o.ID] = len(s.objects)
		s.objects = append(s.objects, o)
	}
	return nil
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

func (s *MemoryStore) Open(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("open session", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, unavailable("open session", ErrClosed)
	}
	return &memorySession{store: s}, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return unavailable("ping", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return unavailable("ping", ErrClosed)
	}
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type memorySession struct {
	store  *MemoryStore
	closed bool
}

func (m *memorySession) Objects(ctx context.Context) ([]visibility.SpatialObject, error) {
	if m.closed {
		return nil, unavailable("list objects", ErrClosed)
	}
	if err := ctx.Err(); err != nil {
		return nil, unavailable("list objects", err)
	}
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	if m.store.closed {
		return nil, unavailable("list objects", ErrClosed)
	}
	return slices.Clone(m.store.objects), nil
}

func (m *memorySession) Close() error {
	m.closed = true
	return nil
}
