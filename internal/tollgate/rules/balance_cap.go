package rules

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tollgate-labs/tollgate/server/internal/tollgate/compliance"
	"github.com/tollgate-labs/tollgate/server/internal/tollgate/types"
)

const maxBalanceSlot = "max"

func balanceSlot(identity common.Address) string {
	return addrSlot("balance", identity)
}

// BalanceCap limits how much any one identity may hold. The module keeps
// its own tracked balances; it never reads the ledger. Those balances are
// kept in step through relayed PresetBalance and RecordBalanceDelta calls.
type BalanceCap struct {
	base
}

func NewBalanceCap(cfg Config) *BalanceCap {
	return &BalanceCap{base: newBase(compliance.KindBalanceCap, cfg)}
}

// MaxBalance returns the per-identity maximum. Zero means disabled.
func (m *BalanceCap) MaxBalance(ctx context.Context, tenant common.Address) (types.Amount, error) {
	var capped types.Amount
	if _, err := m.load(ctx, tenant, maxBalanceSlot, &capped); err != nil {
		return types.Amount{}, err
	}
	return capped, nil
}

// GetIDBalance returns the tracked balance of identity.
func (m *BalanceCap) GetIDBalance(ctx context.Context, tenant, identity common.Address) (types.Amount, error) {
	var bal types.Amount
	if _, err := m.load(ctx, tenant, balanceSlot(identity), &bal); err != nil {
		return types.Amount{}, err
	}
	return bal, nil
}

// Check rejects a transfer that would lift the receiver above the cap.
// Burns and self-transfers leave every holding as it was and pass.
func (m *BalanceCap) Check(ctx context.Context, tenant common.Address, t compliance.Transfer) (compliance.Decision, error) {
	if t.To == (common.Address{}) || t.From == t.To {
		return compliance.Allow(), nil
	}
	capped, err := m.MaxBalance(ctx, tenant)
	if err != nil {
		return compliance.Decision{}, err
	}
	if capped.IsZero() {
		return compliance.Allow(), nil
	}
	bal, err := m.GetIDBalance(ctx, tenant, t.To)
	if err != nil {
		return compliance.Decision{}, err
	}
	if after := bal.Add(t.Amount); after.Cmp(capped) > 0 {
		return compliance.Reject(fmt.Sprintf("balance of %s would be %s, max %s", t.To.Hex(), after, capped)), nil
	}
	return compliance.Allow(), nil
}

func (m *BalanceCap) ModuleCheck(ctx context.Context, tenant common.Address, t compliance.Transfer) (bool, error) {
	d, err := m.Check(ctx, tenant, t)
	return m.settle(ctx, d, err)
}

func (m *BalanceCap) Handle(ctx context.Context, call compliance.Call) error {
	if err := m.admit(ctx, call); err != nil {
		return err
	}

	switch cmd := call.Command.(type) {
	case compliance.SetMaxBalance:
		if cmd.Max.IsZero() {
			return m.apply(ctx, m.del(call.Tenant, maxBalanceSlot))
		}
		w, err := m.put(call.Tenant, maxBalanceSlot, cmd.Max)
		if err != nil {
			return err
		}
		return m.apply(ctx, w)

	case compliance.PresetBalance:
		return m.storeBalance(ctx, call.Tenant, cmd.Identity, cmd.Balance)

	case compliance.RecordBalanceDelta:
		bal, err := m.GetIDBalance(ctx, call.Tenant, cmd.Identity)
		if err != nil {
			return err
		}
		if !cmd.Decrease {
			return m.storeBalance(ctx, call.Tenant, cmd.Identity, bal.Add(cmd.Amount))
		}
		next, ok := bal.Sub(cmd.Amount)
		if !ok {
			return fmt.Errorf("%w: tracked balance of %s would go below zero (%s - %s)",
				compliance.ErrInvariantViolation, cmd.Identity.Hex(), bal, cmd.Amount)
		}
		return m.storeBalance(ctx, call.Tenant, cmd.Identity, next)

	default:
		return unexpected(m.kind, call.Command)
	}
}

func (m *BalanceCap) storeBalance(ctx context.Context, tenant, identity common.Address, bal types.Amount) error {
	if bal.IsZero() {
		return m.apply(ctx, m.del(tenant, balanceSlot(identity)))
	}
	w, err := m.put(tenant, balanceSlot(identity), bal)
	if err != nil {
		return err
	}
	return m.apply(ctx, w)
}

// Reset drops the cap. Tracked balances are left alone.
func (m *BalanceCap) Reset(ctx context.Context, tenant common.Address) error {
	return m.apply(ctx, m.del(tenant, maxBalanceSlot))
}
