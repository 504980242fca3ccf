package db

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/tollgate-labs/tollgate/server/internal/tollgate/types"
)

// SeedAsset is one asset in a seed or create-asset file.
type SeedAsset struct {
	Owner      string                   `yaml:"owner"`
	Identities []string                 `yaml:"identities"`
	Asset      types.CreateAssetRequest `yaml:"asset"`
}

type SeedFile struct {
	Assets []SeedAsset `yaml:"assets"`
}

// AssetSeeder is the part of the service layer seeding needs.
type AssetSeeder interface {
	CreateAsset(ctx context.Context, caller common.Address, req types.CreateAssetRequest) (types.AssetBundle, error)
	RegisterUsers(ctx context.Context, caller, asset common.Address, req types.RegisterUsersRequest) (types.RegisterUsersResponse, error)
}

func LoadSeedFile(path string) (SeedFile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return SeedFile{}, fmt.Errorf("read seed file: %w", err)
	}
	return ParseSeed(b)
}

// ParseSeed decodes and validates seed YAML. Unknown fields are rejected.
func ParseSeed(data []byte) (SeedFile, error) {
	var f SeedFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return SeedFile{}, fmt.Errorf("decode seed: %w", err)
	}
	for i, a := range f.Assets {
		if !common.IsHexAddress(a.Owner) {
			return SeedFile{}, fmt.Errorf("asset %d: owner %q is not an address", i, a.Owner)
		}
		for _, id := range a.Identities {
			if !common.IsHexAddress(id) {
				return SeedFile{}, fmt.Errorf("asset %d: identity %q is not an address", i, id)
			}
		}
	}
	return f, nil
}

// SeedDev creates every asset in f and registers its identities as the
// asset owner. It returns the created bundles in file order.
func SeedDev(ctx context.Context, s AssetSeeder, f SeedFile, logger *slog.Logger) ([]types.AssetBundle, error) {
	out := make([]types.AssetBundle, 0, len(f.Assets))
	for i, a := range f.Assets {
		owner := common.HexToAddress(a.Owner)
		b, err := s.CreateAsset(ctx, owner, a.Asset)
		if err != nil {
			return out, fmt.Errorf("seed asset %d (%s): %w", i, a.Asset.Symbol, err)
		}

		if len(a.Identities) > 0 {
			ids := make([]common.Address, 0, len(a.Identities))
			for _, id := range a.Identities {
				ids = append(ids, common.HexToAddress(id))
			}
			if _, err := s.RegisterUsers(ctx, owner, b.Asset, types.RegisterUsersRequest{Identities: ids}); err != nil {
				return out, fmt.Errorf("seed identities for %s: %w", a.Asset.Symbol, err)
			}
		}

		if logger != nil {
			logger.Info("seeded asset", "symbol", a.Asset.Symbol, "asset", b.Asset.Hex(), "identities", len(a.Identities))
		}
		out = append(out, b)
	}
	return out, nil
}
