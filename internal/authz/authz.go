package authz

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"
	"github.com/ethereum/go-ethereum/common"
)

type Mode string

const (
	ModeEnforce  Mode = "enforce"
	ModeShadow   Mode = "shadow"
	ModeDisabled Mode = "disabled"
)

// ParseMode normalizes a configured mode. Disabling enforcement needs an
// explicit unsafe opt-in.
func ParseMode(raw string, allowDisabled bool) (Mode, error) {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" {
		return ModeEnforce, nil
	}
	switch Mode(raw) {
	case ModeEnforce, ModeShadow:
		return Mode(raw), nil
	case ModeDisabled:
		if !allowDisabled {
			return "", errors.New("authz: mode=disabled requires the unsafe opt-in")
		}
		return ModeDisabled, nil
	default:
		return "", fmt.Errorf("authz: invalid mode %q (expected enforce|shadow|disabled)", raw)
	}
}

// Roles are granted per tenant (compliance registry).
const (
	RoleOwner = "owner"
	RoleAgent = "agent"
)

// Objects outside the rule modules. Rule modules use their kind as the
// object and the relayed method as the action.
const (
	ObjectCompliance = "compliance"
	ObjectLedger     = "ledger"
	ObjectIdentity   = "identity"
)

const modelText = `
[request_definition]
r = sub, dom, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub, r.dom) && (p.obj == "*" || r.obj == p.obj) && (p.act == "*" || r.act == p.act)
`

// DefaultPolicies is the built-in permission table. Owners may do anything
// within their tenant; agents may relay the calls a ledger or transfer
// agent needs for day-to-day operation.
var DefaultPolicies = [][]string{
	{SubjectFromRole(RoleOwner), "*", "*"},
	{SubjectFromRole(RoleAgent), ObjectCompliance, "relay"},
	{SubjectFromRole(RoleAgent), ObjectCompliance, "evaluate"},
	{SubjectFromRole(RoleAgent), "conditional_transfer", "approveTransfer"},
	{SubjectFromRole(RoleAgent), "conditional_transfer", "unapproveTransfer"},
	{SubjectFromRole(RoleAgent), "conditional_transfer", "consumeApproval"},
	{SubjectFromRole(RoleAgent), "balance_cap", "presetBalance"},
	{SubjectFromRole(RoleAgent), "balance_cap", "recordBalanceDelta"},
	{SubjectFromRole(RoleAgent), "allow_list", "allowUser"},
	{SubjectFromRole(RoleAgent), "allow_list", "disallowUser"},
	{SubjectFromRole(RoleAgent), ObjectLedger, "mint"},
	{SubjectFromRole(RoleAgent), ObjectLedger, "burn"},
	{SubjectFromRole(RoleAgent), ObjectLedger, "transfer"},
	{SubjectFromRole(RoleAgent), ObjectIdentity, "register"},
}

func SubjectFromRole(role string) string {
	role = strings.TrimSpace(strings.ToLower(role))
	if role == "" {
		role = "anonymous"
	}
	return "role:" + role
}

func SubjectFromAddress(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

func DomainFromTenant(tenant common.Address) string {
	return strings.ToLower(tenant.Hex())
}

type Config struct {
	Mode Mode
	// PolicyPath optionally points at a casbin CSV file whose p/g lines are
	// loaded on top of DefaultPolicies.
	PolicyPath string
	Logger     *slog.Logger
}

// Authorizer answers role-based questions per tenant. It satisfies the
// compliance.Authorizer interface.
type Authorizer struct {
	enforcer *casbin.SyncedEnforcer
	mode     Mode
	logger   *slog.Logger
}

func New(cfg Config) (*Authorizer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("authz: model: %w", err)
	}

	var enforcer *casbin.SyncedEnforcer
	if cfg.PolicyPath != "" {
		enforcer, err = casbin.NewSyncedEnforcer(m, fileadapter.NewAdapter(cfg.PolicyPath))
	} else {
		enforcer, err = casbin.NewSyncedEnforcer(m)
	}
	if err != nil {
		return nil, fmt.Errorf("authz: enforcer: %w", err)
	}
	// Grants are runtime state; the policy file is never written back.
	enforcer.EnableAutoSave(false)

	// One at a time: a batch is skipped whole if the policy file already
	// holds any of its rules.
	for _, rule := range DefaultPolicies {
		if _, err := enforcer.AddPolicy(rule[0], rule[1], rule[2]); err != nil {
			return nil, fmt.Errorf("authz: default policy %v: %w", rule, err)
		}
	}

	mode := cfg.Mode
	if mode == "" {
		mode = ModeEnforce
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Authorizer{enforcer: enforcer, mode: mode, logger: logger}, nil
}

func (a *Authorizer) Mode() Mode { return a.mode }

// GrantRole gives subject role within tenant. Granting twice is a no-op.
func (a *Authorizer) GrantRole(tenant, subject common.Address, role string) error {
	_, err := a.enforcer.AddGroupingPolicy(SubjectFromAddress(subject), SubjectFromRole(role), DomainFromTenant(tenant))
	if err != nil {
		return fmt.Errorf("authz: grant %s: %w", role, err)
	}
	return nil
}

func (a *Authorizer) RevokeRole(tenant, subject common.Address, role string) error {
	_, err := a.enforcer.RemoveGroupingPolicy(SubjectFromAddress(subject), SubjectFromRole(role), DomainFromTenant(tenant))
	if err != nil {
		return fmt.Errorf("authz: revoke %s: %w", role, err)
	}
	return nil
}

func (a *Authorizer) HasRole(tenant, subject common.Address, role string) bool {
	roles := a.enforcer.GetRolesForUserInDomain(SubjectFromAddress(subject), DomainFromTenant(tenant))
	return slices.Contains(roles, SubjectFromRole(role))
}

// Allowed reports whether caller may perform action on object within
// tenant. In shadow mode denials are logged and then allowed.
func (a *Authorizer) Allowed(caller, tenant common.Address, object, action string) (bool, error) {
	switch a.mode {
	case ModeDisabled:
		return true, nil
	case ModeShadow, ModeEnforce:
	default:
		return false, fmt.Errorf("authz: unknown mode %q", a.mode)
	}

	ok, err := a.enforcer.Enforce(SubjectFromAddress(caller), DomainFromTenant(tenant), object, action)
	if err != nil {
		return false, fmt.Errorf("authz: enforce: %w", err)
	}
	if !ok && a.mode == ModeShadow {
		a.logger.Warn("authz shadow deny",
			"caller", caller.Hex(), "tenant", tenant.Hex(), "object", object, "action", action)
		return true, nil
	}
	return ok, nil
}
