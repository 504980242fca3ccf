package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

type BindingStore struct {
	mu       sync.RWMutex
	bindings map[common.Address][]common.Address
}

func NewBindingStore() *BindingStore {
	return &BindingStore{bindings: make(map[common.Address][]common.Address)}
}

func (s *BindingStore) Bind(_ context.Context, registry, module common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slices.Contains(s.bindings[registry], module) {
		return nil
	}
	s.bindings[registry] = append(s.bindings[registry], module)
	return nil
}

func (s *BindingStore) Unbind(_ context.Context, registry, module common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	mods := s.bindings[registry]
	if i := slices.Index(mods, module); i >= 0 {
		s.bindings[registry] = slices.Delete(slices.Clone(mods), i, i+1)
	}
	return nil
}

func (s *BindingStore) IsBound(_ context.Context, registry, module common.Address) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Contains(s.bindings[registry], module), nil
}

func (s *BindingStore) Modules(_ context.Context, registry common.Address) ([]common.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.bindings[registry]), nil
}
