package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tollgate-labs/tollgate/server/internal/tollgate/store"
	sqlitestore "github.com/tollgate-labs/tollgate/server/internal/tollgate/store/sqlite"
	"github.com/tollgate-labs/tollgate/server/internal/tollgate/types"
)

// ═══════════════════════════════════════════════════════════════════════════
// StateStore
// ═══════════════════════════════════════════════════════════════════════════

func TestStateStore_PutGetDelete(t *testing.T) {
	conn := openTestDB(t)
	s := sqlitestore.NewStateStore(conn, newTestWriter(t, conn))
	ctx := context.Background()

	key := store.StateKey{Module: moduleX, Tenant: registryA, Slot: "limit"}
	_, ok, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Apply(ctx, []store.StateWrite{{Key: key, Value: []byte(`"1500"`)}}))
	v, ok, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `"1500"`, string(v))

	require.NoError(t, s.Apply(ctx, []store.StateWrite{{Key: key, Value: []byte(`"2000"`)}}))
	v, _, err = s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, `"2000"`, string(v))

	require.NoError(t, s.Apply(ctx, []store.StateWrite{{Key: key}}))
	_, ok, err = s.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStateStore_TenantsAreSeparate(t *testing.T) {
	conn := openTestDB(t)
	s := sqlitestore.NewStateStore(conn, newTestWriter(t, conn))
	ctx := context.Background()

	keyA := store.StateKey{Module: moduleX, Tenant: registryA, Slot: "max"}
	keyB := store.StateKey{Module: moduleX, Tenant: registryB, Slot: "max"}
	require.NoError(t, s.Apply(ctx, []store.StateWrite{
		{Key: keyA, Value: []byte(`"1"`)},
		{Key: keyB, Value: []byte(`"2"`)},
	}))

	a, _, err := s.Get(ctx, keyA)
	require.NoError(t, err)
	b, _, err := s.Get(ctx, keyB)
	require.NoError(t, err)
	assert.Equal(t, `"1"`, string(a))
	assert.Equal(t, `"2"`, string(b))
}

// ═══════════════════════════════════════════════════════════════════════════
// BindingStore
// ═══════════════════════════════════════════════════════════════════════════

func TestBindingStore_OrderAndIdempotence(t *testing.T) {
	conn := openTestDB(t)
	s := sqlitestore.NewBindingStore(conn, newTestWriter(t, conn))
	ctx := context.Background()

	for _, m := range []common.Address{moduleX, moduleY, moduleZ, moduleX} {
		require.NoError(t, s.Bind(ctx, registryA, m))
	}
	mods, err := s.Modules(ctx, registryA)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{moduleX, moduleY, moduleZ}, mods)

	require.NoError(t, s.Unbind(ctx, registryA, moduleX))
	require.NoError(t, s.Unbind(ctx, registryA, moduleX))
	require.NoError(t, s.Bind(ctx, registryA, moduleX))
	mods, err = s.Modules(ctx, registryA)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{moduleY, moduleZ, moduleX}, mods)

	bound, err := s.IsBound(ctx, registryB, moduleX)
	require.NoError(t, err)
	assert.False(t, bound)
	bound, err = s.IsBound(ctx, registryA, moduleX)
	require.NoError(t, err)
	assert.True(t, bound)
}

// ═══════════════════════════════════════════════════════════════════════════
// IdentityStore
// ═══════════════════════════════════════════════════════════════════════════

func TestIdentityStore_RegisterCountsNewOnly(t *testing.T) {
	conn := openTestDB(t)
	s := sqlitestore.NewIdentityStore(conn, newTestWriter(t, conn))
	ctx := context.Background()

	n, err := s.Register(ctx, registryA, []common.Address{alice, bob, alice})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.Register(ctx, registryA, []common.Address{bob})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	count, err := s.Count(ctx, registryA)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	ok, err := s.IsRegistered(ctx, registryB, alice)
	require.NoError(t, err)
	assert.False(t, ok)
}

// ═══════════════════════════════════════════════════════════════════════════
// BundleStore
// ═══════════════════════════════════════════════════════════════════════════

func TestBundleStore_SaveGetList(t *testing.T) {
	conn := openTestDB(t)
	s := sqlitestore.NewBundleStore(conn, newTestWriter(t, conn))
	ctx := context.Background()

	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	b := types.AssetBundle{
		Asset:            common.HexToAddress("0xa5"),
		IdentityRegistry: common.HexToAddress("0xa6"),
		Compliance:       registryA,
		BalanceCapModule: moduleX,
		AllowListModule:  moduleY,
		SupplyCapModule:  moduleZ,
		TimeWindowModule: common.HexToAddress("0xd4"),
		Owner:            alice,
		Request: types.CreateAssetRequest{
			Name:   "Bond",
			Symbol: "BND",
			Compliance: types.ComplianceParams{
				SupplyLimit: types.NewAmount(20_000),
				TimeWindow:  types.TimeWindowParams{DurationSeconds: 60, Limit: types.NewAmount(5)},
			},
		},
		CreatedAt: created,
	}
	require.NoError(t, s.SaveBundle(ctx, b))
	assert.ErrorIs(t, s.SaveBundle(ctx, b), store.ErrAlreadyExists)

	got, err := s.GetBundle(ctx, b.Asset)
	require.NoError(t, err)
	assert.Equal(t, b.Compliance, got.Compliance)
	assert.Equal(t, common.Address{}, got.ConditionalTransferModule)
	assert.Equal(t, "20000", got.Request.Compliance.SupplyLimit.String())
	assert.True(t, created.Equal(got.CreatedAt))

	_, err = s.GetBundle(ctx, bob)
	assert.ErrorIs(t, err, store.ErrNotFound)

	later := b
	later.Asset = common.HexToAddress("0xb5")
	later.Compliance = registryB
	later.CreatedAt = created.Add(time.Minute)
	require.NoError(t, s.SaveBundle(ctx, later))

	list, err := s.ListBundles(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, b.Asset, list[0].Asset)
	assert.Equal(t, later.Asset, list[1].Asset)
}

// ═══════════════════════════════════════════════════════════════════════════
// DecisionEventStore
// ═══════════════════════════════════════════════════════════════════════════

func TestDecisionEventStore_RecordAndPrune(t *testing.T) {
	conn := openTestDB(t)
	s := sqlitestore.NewDecisionEventStore(conn, newTestWriter(t, conn))
	ctx := context.Background()
	now := time.Now().UTC()

	rejectedBy := moduleX
	require.NoError(t, s.RecordEvent(ctx, store.DecisionEventRecord{
		ID:         uuid.New(),
		Registry:   registryA,
		From:       alice,
		To:         bob,
		Amount:     types.NewAmount(7),
		Operation:  "transfer",
		RejectedBy: &rejectedBy,
		Reason:     "over cap",
		DecidedAt:  now.AddDate(0, 0, -40),
	}))
	require.NoError(t, s.RecordEvent(ctx, store.DecisionEventRecord{
		Registry:  registryA,
		To:        bob,
		Amount:    types.NewAmount(1),
		Operation: "mint",
		Allowed:   true,
		DecidedAt: now,
	}))

	var rejected string
	err := conn.QueryRowContext(ctx, `SELECT rejected_by FROM decision_events WHERE allowed = 0`).Scan(&rejected)
	require.NoError(t, err)
	assert.Equal(t, "0x00000000000000000000000000000000000d0001", rejected)

	deleted, err := s.PruneOlderThan(ctx, now.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	var count int
	require.NoError(t, conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM decision_events`).Scan(&count))
	assert.Equal(t, 1, count)
}
