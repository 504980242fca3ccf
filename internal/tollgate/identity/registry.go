// Package identity is the minimal identity registry an asset consults to
// decide whether a party is known.
package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tollgate-labs/tollgate/server/internal/tollgate/store"
)

var ErrInvalidIdentity = errors.New("identity must be a non-zero address")

type Registry struct {
	address common.Address
	store   store.IdentityStore
}

func NewRegistry(address common.Address, s store.IdentityStore) *Registry {
	return &Registry{address: address, store: s}
}

func (r *Registry) Address() common.Address { return r.address }

// RegisterUsers adds identities, ignoring ones already registered, and
// returns how many were new.
func (r *Registry) RegisterUsers(ctx context.Context, identities []common.Address) (int, error) {
	for _, id := range identities {
		if id == (common.Address{}) {
			return 0, ErrInvalidIdentity
		}
	}
	n, err := r.store.Register(ctx, r.address, identities)
	if err != nil {
		return 0, fmt.Errorf("register identities: %w", err)
	}
	return n, nil
}

func (r *Registry) IsVerified(ctx context.Context, identity common.Address) (bool, error) {
	if identity == (common.Address{}) {
		return false, nil
	}
	return r.store.IsRegistered(ctx, r.address, identity)
}

func (r *Registry) TotalUsers(ctx context.Context) (int64, error) {
	return r.store.Count(ctx, r.address)
}
