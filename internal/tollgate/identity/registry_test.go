package identity_test

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tollgate-labs/tollgate/server/internal/tollgate/identity"
	"github.com/tollgate-labs/tollgate/server/internal/tollgate/store/memory"
)

var (
	regA  = common.HexToAddress("0x00000000000000000000000000000000000e0001")
	regB  = common.HexToAddress("0x00000000000000000000000000000000000e0002")
	alice = common.HexToAddress("0x0000000000000000000000000000000000001001")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000001002")
)

func TestRegistry_RegisterUsersIgnoresDuplicates(t *testing.T) {
	ctx := context.Background()
	s := memory.NewIdentityStore()
	r := identity.NewRegistry(regA, s)

	n, err := r.RegisterUsers(ctx, []common.Address{alice, bob, alice})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = r.RegisterUsers(ctx, []common.Address{bob})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	total, err := r.TotalUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	ok, err := r.IsVerified(ctx, alice)
	require.NoError(t, err)
	assert.True(t, ok)

	// Registrations are per registry.
	other := identity.NewRegistry(regB, s)
	ok, err = other.IsVerified(ctx, alice)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRegistry_RejectsZeroAddress(t *testing.T) {
	r := identity.NewRegistry(regA, memory.NewIdentityStore())

	_, err := r.RegisterUsers(context.Background(), []common.Address{alice, {}})
	assert.ErrorIs(t, err, identity.ErrInvalidIdentity)

	total, err := r.TotalUsers(context.Background())
	require.NoError(t, err)
	assert.Zero(t, total)

	ok, err := r.IsVerified(context.Background(), common.Address{})
	require.NoError(t, err)
	assert.False(t, ok)
}
