package authz

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	tenantA = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	tenantB = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	owner   = common.HexToAddress("0x0000000000000000000000000000000000000011")
	agent   = common.HexToAddress("0x0000000000000000000000000000000000000022")
	nobody  = common.HexToAddress("0x0000000000000000000000000000000000000033")
)

// ═══════════════════════════════════════════════════════════════════════════
// ParseMode
// ═══════════════════════════════════════════════════════════════════════════

func TestParseMode(t *testing.T) {
	m, err := ParseMode("", false)
	require.NoError(t, err)
	assert.Equal(t, ModeEnforce, m)

	m, err = ParseMode(" Shadow ", false)
	require.NoError(t, err)
	assert.Equal(t, ModeShadow, m)

	_, err = ParseMode("disabled", false)
	assert.Error(t, err)

	m, err = ParseMode("disabled", true)
	require.NoError(t, err)
	assert.Equal(t, ModeDisabled, m)

	_, err = ParseMode("nope", true)
	assert.Error(t, err)
}

// ═══════════════════════════════════════════════════════════════════════════
// Roles are scoped to a tenant
// ═══════════════════════════════════════════════════════════════════════════

func TestAuthorizer_OwnerMayDoAnythingInOwnTenantOnly(t *testing.T) {
	a, err := New(Config{})
	require.NoError(t, err)
	require.NoError(t, a.GrantRole(tenantA, owner, RoleOwner))

	ok, err := a.Allowed(owner, tenantA, ObjectCompliance, "bind")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = a.Allowed(owner, tenantA, "supply_cap", "setSupplyLimit")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = a.Allowed(owner, tenantB, ObjectCompliance, "relay")
	require.NoError(t, err)
	assert.False(t, ok, "role must not leak into another tenant")

	assert.True(t, a.HasRole(tenantA, owner, RoleOwner))
	assert.False(t, a.HasRole(tenantB, owner, RoleOwner))
}

func TestAuthorizer_AgentPermissions(t *testing.T) {
	a, err := New(Config{})
	require.NoError(t, err)
	require.NoError(t, a.GrantRole(tenantA, agent, RoleAgent))

	cases := []struct {
		obj, act string
		want     bool
	}{
		{ObjectCompliance, "relay", true},
		{ObjectCompliance, "bind", false},
		{"conditional_transfer", "consumeApproval", true},
		{"balance_cap", "recordBalanceDelta", true},
		{"balance_cap", "setMaxBalance", false},
		{"supply_cap", "setSupplyLimit", false},
		{ObjectLedger, "mint", true},
	}
	for _, tc := range cases {
		ok, err := a.Allowed(agent, tenantA, tc.obj, tc.act)
		require.NoError(t, err)
		assert.Equal(t, tc.want, ok, "%s.%s", tc.obj, tc.act)
	}
}

func TestAuthorizer_RevokeRole(t *testing.T) {
	a, err := New(Config{})
	require.NoError(t, err)
	require.NoError(t, a.GrantRole(tenantA, agent, RoleAgent))
	require.NoError(t, a.GrantRole(tenantA, agent, RoleAgent))
	require.NoError(t, a.RevokeRole(tenantA, agent, RoleAgent))

	ok, err := a.Allowed(agent, tenantA, ObjectCompliance, "relay")
	require.NoError(t, err)
	assert.False(t, ok)
}

// ═══════════════════════════════════════════════════════════════════════════
// Modes
// ═══════════════════════════════════════════════════════════════════════════

func TestAuthorizer_ShadowAndDisabledAllow(t *testing.T) {
	shadow, err := New(Config{Mode: ModeShadow})
	require.NoError(t, err)
	ok, err := shadow.Allowed(nobody, tenantA, ObjectCompliance, "bind")
	require.NoError(t, err)
	assert.True(t, ok)

	disabled, err := New(Config{Mode: ModeDisabled})
	require.NoError(t, err)
	ok, err = disabled.Allowed(nobody, tenantA, ObjectCompliance, "bind")
	require.NoError(t, err)
	assert.True(t, ok)

	enforce, err := New(Config{Mode: ModeEnforce})
	require.NoError(t, err)
	ok, err = enforce.Allowed(nobody, tenantA, ObjectCompliance, "bind")
	require.NoError(t, err)
	assert.False(t, ok)
}

// ═══════════════════════════════════════════════════════════════════════════
// Policy file
// ═══════════════════════════════════════════════════════════════════════════

func TestAuthorizer_PolicyFileExtendsDefaults(t *testing.T) {
	dir := t.TempDir()
	policy := filepath.Join(dir, "policy.csv")
	lines := "p, role:auditor, compliance, evaluate\n" +
		"g, " + SubjectFromAddress(nobody) + ", role:auditor, " + DomainFromTenant(tenantA) + "\n"
	require.NoError(t, os.WriteFile(policy, []byte(lines), 0o644))

	a, err := New(Config{PolicyPath: policy})
	require.NoError(t, err)

	ok, err := a.Allowed(nobody, tenantA, ObjectCompliance, "evaluate")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = a.Allowed(nobody, tenantB, ObjectCompliance, "evaluate")
	require.NoError(t, err)
	assert.False(t, ok)

	// Defaults are still present.
	require.NoError(t, a.GrantRole(tenantB, owner, RoleOwner))
	ok, err = a.Allowed(owner, tenantB, ObjectCompliance, "bind")
	require.NoError(t, err)
	assert.True(t, ok)
}
