package settings

import "sync"

// Compile-time interface assertion.
var _ Sink = (*MemoryStore)(nil)

// MemoryStore is an in-process [Sink].
type MemoryStore struct {
	mu     sync.RWMutex
	values Values
}

// NewMemoryStore returns a store seeded with initial.
func NewMemoryStore(initial Values) *MemoryStore {
	return &MemoryStore{values: initial}
}

// UpdateParameter implements [Sink].
func (s *MemoryStore) UpdateParameter(key Key, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values.Set(key, value)
}

// Parameter implements [Sink].
func (s *MemoryStore) Parameter(key Key) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values.Get(key)
}

// Values returns a copy of the stored parameters.
func (s *MemoryStore) Values() Values {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values
}
