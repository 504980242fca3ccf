package store

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tollgate-labs/tollgate/server/internal/tollgate/types"
)

// BundleStore keeps the per-asset configuration bundles. Bundles are
// written once; SaveBundle returns ErrAlreadyExists on a second write.
type BundleStore interface {
	SaveBundle(ctx context.Context, b types.AssetBundle) error
	GetBundle(ctx context.Context, asset common.Address) (types.AssetBundle, error)
	ListBundles(ctx context.Context) ([]types.AssetBundle, error)
}
