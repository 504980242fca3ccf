package rules

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tollgate-labs/tollgate/server/internal/tollgate/compliance"
	"github.com/tollgate-labs/tollgate/server/internal/tollgate/types"
)

const supplyLimitSlot = "limit"

// SupplyCap bounds the asset's total supply. A zero limit disables it.
type SupplyCap struct {
	base
}

func NewSupplyCap(cfg Config) *SupplyCap {
	return &SupplyCap{base: newBase(compliance.KindSupplyCap, cfg)}
}

func (m *SupplyCap) GetSupplyLimit(ctx context.Context, tenant common.Address) (types.Amount, error) {
	var limit types.Amount
	if _, err := m.load(ctx, tenant, supplyLimitSlot, &limit); err != nil {
		return types.Amount{}, err
	}
	return limit, nil
}

// Check compares the supply after the operation against the limit. Only a
// mint grows supply, so transfers and burns always pass.
func (m *SupplyCap) Check(ctx context.Context, tenant common.Address, t compliance.Transfer) (compliance.Decision, error) {
	if t.Operation() != compliance.OpMint {
		return compliance.Allow(), nil
	}
	limit, err := m.GetSupplyLimit(ctx, tenant)
	if err != nil {
		return compliance.Decision{}, err
	}
	if limit.IsZero() {
		return compliance.Allow(), nil
	}
	if after := t.SupplyAfter(); after.Cmp(limit) > 0 {
		return compliance.Reject(fmt.Sprintf("supply %s would exceed limit %s", after, limit)), nil
	}
	return compliance.Allow(), nil
}

func (m *SupplyCap) ModuleCheck(ctx context.Context, tenant common.Address, t compliance.Transfer) (bool, error) {
	d, err := m.Check(ctx, tenant, t)
	return m.settle(ctx, d, err)
}

func (m *SupplyCap) Handle(ctx context.Context, call compliance.Call) error {
	if err := m.admit(ctx, call); err != nil {
		return err
	}
	cmd, ok := call.Command.(compliance.SetSupplyLimit)
	if !ok {
		return unexpected(m.kind, call.Command)
	}
	if cmd.Limit.IsZero() {
		return m.apply(ctx, m.del(call.Tenant, supplyLimitSlot))
	}
	w, err := m.put(call.Tenant, supplyLimitSlot, cmd.Limit)
	if err != nil {
		return err
	}
	return m.apply(ctx, w)
}

func (m *SupplyCap) Reset(ctx context.Context, tenant common.Address) error {
	return m.apply(ctx, m.del(tenant, supplyLimitSlot))
}
