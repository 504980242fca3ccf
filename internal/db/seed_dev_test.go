package db_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tollgate-labs/tollgate/server/internal/db"
	"github.com/tollgate-labs/tollgate/server/internal/tollgate/types"
)

const seedYAML = `
assets:
  - owner: "0x0000000000000000000000000000000000000a11"
    identities:
      - "0x0000000000000000000000000000000000001001"
      - "0x0000000000000000000000000000000000001002"
    asset:
      name: Dev Token
      symbol: DEV
      precision: 18
      initial_supply: 1000000
      compliance:
        supply_limit: "20000"
        conditional_transfer_enabled: true
        time_window:
          duration_seconds: 3600
          limit: 10000
`

type fakeSeeder struct {
	created    []types.CreateAssetRequest
	registered [][]common.Address
	failCreate bool
}

func (f *fakeSeeder) CreateAsset(_ context.Context, _ common.Address, req types.CreateAssetRequest) (types.AssetBundle, error) {
	if f.failCreate {
		return types.AssetBundle{}, errors.New("refused")
	}
	f.created = append(f.created, req)
	return types.AssetBundle{Asset: common.HexToAddress("0xa55e7"), Request: req}, nil
}

func (f *fakeSeeder) RegisterUsers(_ context.Context, _, _ common.Address, req types.RegisterUsersRequest) (types.RegisterUsersResponse, error) {
	f.registered = append(f.registered, req.Identities)
	return types.RegisterUsersResponse{OK: true, Registered: len(req.Identities)}, nil
}

func TestParseSeed(t *testing.T) {
	f, err := db.ParseSeed([]byte(seedYAML))
	require.NoError(t, err)
	require.Len(t, f.Assets, 1)

	a := f.Assets[0].Asset
	assert.Equal(t, "DEV", a.Symbol)
	assert.Equal(t, uint8(18), a.Precision)
	assert.Equal(t, "1000000", a.InitialSupply.String())
	assert.Equal(t, "20000", a.Compliance.SupplyLimit.String())
	assert.True(t, a.Compliance.ConditionalTransferEnabled)
	assert.Equal(t, uint64(3600), a.Compliance.TimeWindow.DurationSeconds)
	assert.Equal(t, "10000", a.Compliance.TimeWindow.Limit.String())
}

func TestParseSeed_Rejects(t *testing.T) {
	cases := map[string]string{
		"bad owner":     "assets:\n  - owner: bob\n    asset: {name: X, symbol: X}\n",
		"bad identity":  "assets:\n  - owner: \"0x0000000000000000000000000000000000000a11\"\n    identities: [nope]\n",
		"unknown field": "assets:\n  - owner: \"0x0000000000000000000000000000000000000a11\"\n    colour: red\n",
		"bad amount":    "assets:\n  - owner: \"0x0000000000000000000000000000000000000a11\"\n    asset: {initial_supply: -5}\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := db.ParseSeed([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestSeedDev(t *testing.T) {
	f, err := db.ParseSeed([]byte(seedYAML))
	require.NoError(t, err)

	s := &fakeSeeder{}
	bundles, err := db.SeedDev(context.Background(), s, f, nil)
	require.NoError(t, err)
	assert.Len(t, bundles, 1)
	require.Len(t, s.registered, 1)
	assert.Len(t, s.registered[0], 2)

	_, err = db.SeedDev(context.Background(), &fakeSeeder{failCreate: true}, f, nil)
	assert.ErrorContains(t, err, "refused")
}
