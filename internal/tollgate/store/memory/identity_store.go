package memory

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

type IdentityStore struct {
	mu    sync.RWMutex
	known map[common.Address]map[common.Address]struct{}
}

func NewIdentityStore() *IdentityStore {
	return &IdentityStore{known: make(map[common.Address]map[common.Address]struct{})}
}

func (s *IdentityStore) Register(_ context.Context, registry common.Address, identities []common.Address) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.known[registry]
	if !ok {
		set = make(map[common.Address]struct{})
		s.known[registry] = set
	}
	added := 0
	for _, id := range identities {
		if _, dup := set[id]; dup {
			continue
		}
		set[id] = struct{}{}
		added++
	}
	return added, nil
}

func (s *IdentityStore) IsRegistered(_ context.Context, registry, identity common.Address) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.known[registry][identity]
	return ok, nil
}

func (s *IdentityStore) Count(_ context.Context, registry common.Address) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.known[registry])), nil
}
