package scoped

import (
	"context"
	"slices"
	"sync"
)

// MemoryStore is an in-memory Store keyed by (tenant, id). It applies the
// default filter on every call the same way the Postgres store does and is
// safe for concurrent use.
type MemoryStore[T Entity[T]] struct {
	mu    sync.RWMutex
	rows  map[Key]T
	order []Key
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore[T Entity[T]]() *MemoryStore[T] {
	return &MemoryStore[T]{rows: make(map[Key]T)}
}

func (s *MemoryStore[T]) List(ctx context.Context, f Filter) ([]T, error) {
	if err := ready(ctx, f); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]T, 0)
	for _, key := range s.order {
		if row, ok := s.rows[key]; ok && Matches(f, row) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (s *MemoryStore[T]) Get(ctx context.Context, f Filter) (T, error) {
	var zero T
	if err := ready(ctx, f); err != nil {
		return zero, err
	}
	if _, ok := f.ID(); !ok {
		return zero, ErrNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.rows[f.Key()]
	if !ok {
		return zero, ErrNotFound
	}
	return row, nil
}

func (s *MemoryStore[T]) Insert(ctx context.Context, f Filter, entity T) (T, error) {
	var zero T
	if err := ready(ctx, f); err != nil {
		return zero, err
	}
	if entity.OwnerTenantID() != f.TenantID() {
		return zero, ErrOwnershipViolation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := KeyOf(entity)
	if _, exists := s.rows[key]; exists {
		return zero, ErrDuplicateKey
	}
	s.rows[key] = entity
	s.order = append(s.order, key)
	return entity, nil
}

func (s *MemoryStore[T]) Update(ctx context.Context, f Filter, entity T) (T, error) {
	var zero T
	if err := ready(ctx, f); err != nil {
		return zero, err
	}
	if !Matches(f, entity) {
		return zero, ErrOwnershipViolation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := f.Key()
	if _, exists := s.rows[key]; !exists {
		return zero, ErrNotFound
	}
	s.rows[key] = entity
	return entity, nil
}

func (s *MemoryStore[T]) Delete(ctx context.Context, f Filter) error {
	if err := ready(ctx, f); err != nil {
		return err
	}
	if _, ok := f.ID(); !ok {
		return ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := f.Key()
	if _, exists := s.rows[key]; !exists {
		return ErrNotFound
	}
	delete(s.rows, key)
	if idx := slices.Index(s.order, key); idx >= 0 {
		s.order = slices.Delete(s.order, idx, idx+1)
	}
	return nil
}

// Len returns the number of rows across all tenants.
func (s *MemoryStore[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

func ready(ctx context.Context, f Filter) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return f.Valid()
}
