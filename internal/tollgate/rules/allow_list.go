package rules

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tollgate-labs/tollgate/server/internal/tollgate/compliance"
)

// The restriction is on unless the tenant opted out, so a registry that
// binds the module without configuring it denies unknown receivers.
const unrestrictedSlot = "unrestricted"

func allowedSlot(identity common.Address) string {
	return addrSlot("allowed", identity)
}

// AllowList restricts who may receive the asset. Unknown receivers are
// denied unless the tenant has turned the restriction off.
type AllowList struct {
	base
}

func NewAllowList(cfg Config) *AllowList {
	return &AllowList{base: newBase(compliance.KindAllowList, cfg)}
}

func (m *AllowList) Restricted(ctx context.Context, tenant common.Address) (bool, error) {
	var off bool
	_, err := m.load(ctx, tenant, unrestrictedSlot, &off)
	return !off, err
}

func (m *AllowList) IsUserAllowed(ctx context.Context, tenant, identity common.Address) (bool, error) {
	var ok bool
	_, err := m.load(ctx, tenant, allowedSlot(identity), &ok)
	return ok, err
}

// Check gates the receiver of a transfer. Mints are gated by the issuer's
// own role and burns have no receiver, so both pass.
func (m *AllowList) Check(ctx context.Context, tenant common.Address, t compliance.Transfer) (compliance.Decision, error) {
	if t.Operation() != compliance.OpTransfer {
		return compliance.Allow(), nil
	}
	on, err := m.Restricted(ctx, tenant)
	if err != nil {
		return compliance.Decision{}, err
	}
	if !on {
		return compliance.Allow(), nil
	}
	ok, err := m.IsUserAllowed(ctx, tenant, t.To)
	if err != nil {
		return compliance.Decision{}, err
	}
	if !ok {
		return compliance.Reject("receiver " + t.To.Hex() + " is not allowed"), nil
	}
	return compliance.Allow(), nil
}

func (m *AllowList) ModuleCheck(ctx context.Context, tenant common.Address, t compliance.Transfer) (bool, error) {
	d, err := m.Check(ctx, tenant, t)
	return m.settle(ctx, d, err)
}

func (m *AllowList) Handle(ctx context.Context, call compliance.Call) error {
	if err := m.admit(ctx, call); err != nil {
		return err
	}

	switch cmd := call.Command.(type) {
	case compliance.AllowUser:
		w, err := m.put(call.Tenant, allowedSlot(cmd.Identity), true)
		if err != nil {
			return err
		}
		return m.apply(ctx, w)
	case compliance.DisallowUser:
		return m.apply(ctx, m.del(call.Tenant, allowedSlot(cmd.Identity)))
	case compliance.SetRestriction:
		if cmd.Enabled {
			return m.apply(ctx, m.del(call.Tenant, unrestrictedSlot))
		}
		w, err := m.put(call.Tenant, unrestrictedSlot, true)
		if err != nil {
			return err
		}
		return m.apply(ctx, w)
	default:
		return unexpected(m.kind, call.Command)
	}
}

// Reset restores the default restriction. Allowed receivers are kept.
func (m *AllowList) Reset(ctx context.Context, tenant common.Address) error {
	return m.apply(ctx, m.del(tenant, unrestrictedSlot))
}
