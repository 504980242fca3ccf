package ledger_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tollgate-labs/tollgate/server/internal/authz"
	"github.com/tollgate-labs/tollgate/server/internal/tollgate/compliance"
	"github.com/tollgate-labs/tollgate/server/internal/tollgate/identity"
	"github.com/tollgate-labs/tollgate/server/internal/tollgate/ledger"
	"github.com/tollgate-labs/tollgate/server/internal/tollgate/rules"
	"github.com/tollgate-labs/tollgate/server/internal/tollgate/store"
	"github.com/tollgate-labs/tollgate/server/internal/tollgate/store/memory"
	"github.com/tollgate-labs/tollgate/server/internal/tollgate/types"
)

var (
	assetAddr    = common.HexToAddress("0x0000000000000000000000000000000000a55e71")
	idRegAddr    = common.HexToAddress("0x0000000000000000000000000000000000a55e72")
	registryAddr = common.HexToAddress("0x0000000000000000000000000000000000a55e73")
	balanceAddr  = common.HexToAddress("0x00000000000000000000000000000000000d0003")
	windowAddr   = common.HexToAddress("0x00000000000000000000000000000000000d0004")
	allowAddr    = common.HexToAddress("0x00000000000000000000000000000000000d0005")
	owner        = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	alice        = common.HexToAddress("0x0000000000000000000000000000000000001001")
	bob          = common.HexToAddress("0x0000000000000000000000000000000000001002")
	mallory      = common.HexToAddress("0x0000000000000000000000000000000000001666")
)

// flakyState fails every Apply while failApply is set.
type flakyState struct {
	*memory.StateStore
	failApply bool
}

func (s *flakyState) Apply(ctx context.Context, writes []store.StateWrite) error {
	if s.failApply {
		return errors.New("disk full")
	}
	return s.StateStore.Apply(ctx, writes)
}

type fixture struct {
	ledger    *ledger.Ledger
	reg       *compliance.Registry
	state     *flakyState
	balance   *rules.BalanceCap
	window    *rules.TimeWindow
	decisions []compliance.Verdict
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	az, err := authz.New(authz.Config{})
	require.NoError(t, err)
	require.NoError(t, az.GrantRole(registryAddr, owner, authz.RoleOwner))
	require.NoError(t, az.GrantRole(registryAddr, assetAddr, authz.RoleAgent))

	state := &flakyState{StateStore: memory.NewStateStore()}
	bindings := memory.NewBindingStore()
	cfg := func(addr common.Address) rules.Config {
		return rules.Config{Address: addr, State: state, Bindings: bindings, Authorizer: az}
	}
	balance := rules.NewBalanceCap(cfg(balanceAddr))
	window := rules.NewTimeWindow(cfg(windowAddr))
	allow := rules.NewAllowList(cfg(allowAddr))

	reg := compliance.NewRegistry(compliance.RegistryConfig{
		Address:    registryAddr,
		Catalog:    compliance.NewCatalog(balance, window, allow),
		Bindings:   bindings,
		State:      state,
		Authorizer: az,
	})
	require.NoError(t, reg.BindModule(ctx, owner, balanceAddr))
	require.NoError(t, reg.BindModule(ctx, owner, windowAddr))
	require.NoError(t, reg.BindModule(ctx, owner, allowAddr))
	_, err = reg.RelayCommand(ctx, owner, allowAddr, compliance.SetRestriction{Enabled: false})
	require.NoError(t, err)

	ids := identity.NewRegistry(idRegAddr, memory.NewIdentityStore())
	_, err = ids.RegisterUsers(ctx, []common.Address{alice, bob})
	require.NoError(t, err)

	fx := &fixture{reg: reg, state: state, balance: balance, window: window}
	fx.ledger = ledger.New(ledger.Config{
		Address:          assetAddr,
		Identities:       ids,
		Compliance:       reg,
		State:            state,
		BalanceCapModule: balanceAddr,
		OnDecision: func(_ context.Context, _ common.Address, _ compliance.Transfer, v compliance.Verdict) {
			fx.decisions = append(fx.decisions, v)
		},
	})
	return fx
}

func amt(n uint64) types.Amount { return types.NewAmount(n) }

func (fx *fixture) balanceOf(t *testing.T, who common.Address) string {
	t.Helper()
	b, err := fx.ledger.BalanceOf(context.Background(), who)
	require.NoError(t, err)
	return b.String()
}

// ═══════════════════════════════════════════════════════════════════════════
// Movements
// ═══════════════════════════════════════════════════════════════════════════

func TestLedger_MintTransferBurn(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	require.NoError(t, fx.ledger.Mint(ctx, alice, amt(100)))
	require.NoError(t, fx.ledger.Transfer(ctx, alice, bob, amt(30)))
	require.NoError(t, fx.ledger.Burn(ctx, bob, amt(10)))

	assert.Equal(t, "70", fx.balanceOf(t, alice))
	assert.Equal(t, "20", fx.balanceOf(t, bob))

	supply, err := fx.ledger.TotalSupply(ctx)
	require.NoError(t, err)
	assert.Equal(t, "90", supply.String())
	assert.Len(t, fx.decisions, 3)
}

func TestLedger_SelfTransferKeepsBalance(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	require.NoError(t, fx.ledger.Mint(ctx, alice, amt(10)))
	require.NoError(t, fx.ledger.Transfer(ctx, alice, alice, amt(10)))
	assert.Equal(t, "10", fx.balanceOf(t, alice))
}

func TestLedger_SelfTransferAtBalanceCap(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.reg.RelayCommand(ctx, owner, balanceAddr, compliance.SetMaxBalance{Max: amt(10)})
	require.NoError(t, err)
	require.NoError(t, fx.ledger.Mint(ctx, alice, amt(10)))

	require.NoError(t, fx.ledger.Transfer(ctx, alice, alice, amt(10)))
	assert.Equal(t, "10", fx.balanceOf(t, alice))

	tracked, err := fx.balance.GetIDBalance(ctx, registryAddr, alice)
	require.NoError(t, err)
	assert.Equal(t, "10", tracked.String())
}

func TestLedger_Validation(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, fx.ledger.Mint(ctx, alice, amt(0)), ledger.ErrInvalidAmount)
	assert.ErrorIs(t, fx.ledger.Mint(ctx, common.Address{}, amt(1)), ledger.ErrInvalidParty)
	assert.ErrorIs(t, fx.ledger.Mint(ctx, mallory, amt(1)), ledger.ErrUnknownIdentity)
	assert.ErrorIs(t, fx.ledger.Transfer(ctx, alice, bob, amt(1)), ledger.ErrInsufficientBalance)
	assert.ErrorIs(t, fx.ledger.Burn(ctx, bob, amt(1)), ledger.ErrInsufficientBalance)
	assert.Empty(t, fx.decisions, "validation failures never reach compliance")
}

// ═══════════════════════════════════════════════════════════════════════════
// Compliance
// ═══════════════════════════════════════════════════════════════════════════

func TestLedger_RejectionLeavesBalancesUntouched(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	require.NoError(t, fx.ledger.Mint(ctx, alice, amt(100)))
	_, err := fx.reg.RelayCommand(ctx, owner, allowAddr, compliance.SetRestriction{Enabled: true})
	require.NoError(t, err)

	err = fx.ledger.Transfer(ctx, alice, bob, amt(5))
	assert.ErrorIs(t, err, ledger.ErrComplianceRejected)
	assert.Equal(t, "100", fx.balanceOf(t, alice))
	assert.Equal(t, "0", fx.balanceOf(t, bob))

	require.Len(t, fx.decisions, 2)
	assert.False(t, fx.decisions[1].Allowed)
	assert.Equal(t, compliance.KindAllowList, fx.decisions[1].Kind)
}

func TestLedger_SettlementKeepsTrackedBalancesInSync(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.reg.RelayCommand(ctx, owner, balanceAddr, compliance.SetMaxBalance{Max: amt(60)})
	require.NoError(t, err)

	require.NoError(t, fx.ledger.Mint(ctx, alice, amt(60)))
	require.NoError(t, fx.ledger.Transfer(ctx, alice, bob, amt(50)))

	trackedA, err := fx.balance.GetIDBalance(ctx, registryAddr, alice)
	require.NoError(t, err)
	trackedB, err := fx.balance.GetIDBalance(ctx, registryAddr, bob)
	require.NoError(t, err)
	assert.Equal(t, "10", trackedA.String())
	assert.Equal(t, "50", trackedB.String())

	// Bob is at 50 of 60; 11 more would breach the cap.
	require.NoError(t, fx.ledger.Mint(ctx, alice, amt(20)))
	err = fx.ledger.Transfer(ctx, alice, bob, amt(11))
	assert.ErrorIs(t, err, ledger.ErrComplianceRejected)
	require.NoError(t, fx.ledger.Transfer(ctx, alice, bob, amt(10)))

	require.NoError(t, fx.ledger.Burn(ctx, bob, amt(60)))
	trackedB, err = fx.balance.GetIDBalance(ctx, registryAddr, bob)
	require.NoError(t, err)
	assert.True(t, trackedB.IsZero())
}

func TestLedger_FailedCommitLeavesWindowUnaccounted(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.reg.RelayCommand(ctx, owner, windowAddr, compliance.SetTimeWindow{DurationSeconds: 3600, Limit: amt(50)})
	require.NoError(t, err)
	require.NoError(t, fx.ledger.Mint(ctx, alice, amt(100)))

	fx.state.failApply = true
	err = fx.ledger.Transfer(ctx, alice, bob, amt(50))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ledger.ErrSettlement)
	fx.state.failApply = false

	_, moved, err := fx.window.Moved(ctx, registryAddr)
	require.NoError(t, err)
	assert.True(t, moved.IsZero(), "window accounting is committed with the balances or not at all")
	assert.Equal(t, "100", fx.balanceOf(t, alice))

	require.NoError(t, fx.ledger.Transfer(ctx, alice, bob, amt(50)))
	_, moved, err = fx.window.Moved(ctx, registryAddr)
	require.NoError(t, err)
	assert.Equal(t, "50", moved.String())
	assert.Equal(t, "50", fx.balanceOf(t, bob))
}
