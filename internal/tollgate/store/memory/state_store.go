package memory

import (
	"bytes"
	"context"
	"sync"

	"github.com/tollgate-labs/tollgate/server/internal/tollgate/store"
)

// StateStore is an in-memory store.StateStore. It is intended for tests,
// dev environments and the memory backend.
type StateStore struct {
	mu   sync.RWMutex
	data map[store.StateKey][]byte
}

func NewStateStore() *StateStore {
	return &StateStore{data: make(map[store.StateKey][]byte)}
}

func (s *StateStore) Get(_ context.Context, key store.StateKey) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(v), true, nil
}

func (s *StateStore) Apply(_ context.Context, writes []store.StateWrite) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range writes {
		if w.Value == nil {
			delete(s.data, w.Key)
			continue
		}
		s.data[w.Key] = bytes.Clone(w.Value)
	}
	return nil
}

// Len reports the number of stored slots.  Test-only helper.
func (s *StateStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
