package store

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// IdentityStore backs an identity registry. Register ignores identities
// that are already present and reports how many were new.
type IdentityStore interface {
	Register(ctx context.Context, registry common.Address, identities []common.Address) (int, error)
	IsRegistered(ctx context.Context, registry, identity common.Address) (bool, error)
	Count(ctx context.Context, registry common.Address) (int64, error)
}
