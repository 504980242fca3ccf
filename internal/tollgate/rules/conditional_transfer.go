package rules

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tollgate-labs/tollgate/server/internal/tollgate/compliance"
	"github.com/tollgate-labs/tollgate/server/internal/tollgate/types"
)

// ConditionalTransfer only lets a movement through when the tenant has
// pre-approved at least that amount for the (from, to) pair. Checking never
// spends the approval; the ledger settles it with ConsumeApproval once the
// movement has happened.
type ConditionalTransfer struct {
	base
}

func NewConditionalTransfer(cfg Config) *ConditionalTransfer {
	return &ConditionalTransfer{base: newBase(compliance.KindConditionalTransfer, cfg)}
}

func approvalSlot(from, to common.Address) string {
	return addrSlot("approval", from, to)
}

// Approved returns the remaining approved amount for the pair.
func (m *ConditionalTransfer) Approved(ctx context.Context, tenant, from, to common.Address) (types.Amount, error) {
	var remaining types.Amount
	if _, err := m.load(ctx, tenant, approvalSlot(from, to), &remaining); err != nil {
		return types.Amount{}, err
	}
	return remaining, nil
}

func (m *ConditionalTransfer) Check(ctx context.Context, tenant common.Address, t compliance.Transfer) (compliance.Decision, error) {
	var remaining types.Amount
	found, err := m.load(ctx, tenant, approvalSlot(t.From, t.To), &remaining)
	if err != nil {
		return compliance.Decision{}, err
	}
	if !found {
		return compliance.Reject("transfer not approved"), nil
	}
	if remaining.Cmp(t.Amount) < 0 {
		return compliance.Reject(fmt.Sprintf("approved %s, requested %s", remaining, t.Amount)), nil
	}
	return compliance.Allow(), nil
}

// ModuleCheck evaluates t for tenant outside of a registry walk.
func (m *ConditionalTransfer) ModuleCheck(ctx context.Context, tenant common.Address, t compliance.Transfer) (bool, error) {
	d, err := m.Check(ctx, tenant, t)
	return m.settle(ctx, d, err)
}

func (m *ConditionalTransfer) Handle(ctx context.Context, call compliance.Call) error {
	if err := m.admit(ctx, call); err != nil {
		return err
	}

	switch cmd := call.Command.(type) {
	case compliance.ApproveTransfer:
		if cmd.Amount.IsZero() {
			return nil
		}
		remaining, err := m.Approved(ctx, call.Tenant, cmd.From, cmd.To)
		if err != nil {
			return err
		}
		w, err := m.put(call.Tenant, approvalSlot(cmd.From, cmd.To), remaining.Add(cmd.Amount))
		if err != nil {
			return err
		}
		return m.apply(ctx, w)

	case compliance.UnapproveTransfer:
		remaining, err := m.Approved(ctx, call.Tenant, cmd.From, cmd.To)
		if err != nil {
			return err
		}
		return m.store(ctx, call.Tenant, cmd.From, cmd.To, remaining.SubFloor(cmd.Amount))

	case compliance.ConsumeApproval:
		remaining, err := m.Approved(ctx, call.Tenant, cmd.From, cmd.To)
		if err != nil {
			return err
		}
		left, ok := remaining.Sub(cmd.Amount)
		if !ok {
			return fmt.Errorf("%w: consuming %s of an approval of %s", compliance.ErrInvariantViolation, cmd.Amount, remaining)
		}
		return m.store(ctx, call.Tenant, cmd.From, cmd.To, left)

	default:
		return unexpected(m.kind, call.Command)
	}
}

// store writes the remaining approval, deleting the entry at zero.
func (m *ConditionalTransfer) store(ctx context.Context, tenant, from, to common.Address, remaining types.Amount) error {
	if remaining.IsZero() {
		return m.apply(ctx, m.del(tenant, approvalSlot(from, to)))
	}
	w, err := m.put(tenant, approvalSlot(from, to), remaining)
	if err != nil {
		return err
	}
	return m.apply(ctx, w)
}
