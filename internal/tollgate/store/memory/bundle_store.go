package memory

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tollgate-labs/tollgate/server/internal/tollgate/store"
	"github.com/tollgate-labs/tollgate/server/internal/tollgate/types"
)

type BundleStore struct {
	mu      sync.RWMutex
	bundles map[common.Address]types.AssetBundle
}

func NewBundleStore() *BundleStore {
	return &BundleStore{bundles: make(map[common.Address]types.AssetBundle)}
}

func (s *BundleStore) SaveBundle(_ context.Context, b types.AssetBundle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bundles[b.Asset]; ok {
		return store.ErrAlreadyExists
	}
	s.bundles[b.Asset] = b
	return nil
}

func (s *BundleStore) GetBundle(_ context.Context, asset common.Address) (types.AssetBundle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bundles[asset]
	if !ok {
		return types.AssetBundle{}, store.ErrNotFound
	}
	return b, nil
}

func (s *BundleStore) ListBundles(_ context.Context) ([]types.AssetBundle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.AssetBundle, 0, len(s.bundles))
	for _, b := range s.bundles {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return bytes.Compare(out[i].Asset.Bytes(), out[j].Asset.Bytes()) < 0
	})
	return out, nil
}
