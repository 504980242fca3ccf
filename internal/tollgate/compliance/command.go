package compliance

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/tollgate-labs/tollgate/server/internal/tollgate/types"
)

// Command is one of the closed set of configuration calls a registry may
// relay. Each command belongs to exactly one module kind.
type Command interface {
	Kind() Kind
	Method() string
	args() map[string]any
}

const (
	MethodApproveTransfer    = "approveTransfer"
	MethodUnapproveTransfer  = "unapproveTransfer"
	MethodConsumeApproval    = "consumeApproval"
	MethodSetSupplyLimit     = "setSupplyLimit"
	MethodSetMaxBalance      = "setMaxBalance"
	MethodPresetBalance      = "presetBalance"
	MethodRecordBalanceDelta = "recordBalanceDelta"
	MethodSetTimeWindow      = "setTimeWindow"
	MethodAllowUser          = "allowUser"
	MethodDisallowUser       = "disallowUser"
	MethodSetRestriction     = "setRestriction"
)

// ApproveTransfer adds Amount to the approval for (From, To).
type ApproveTransfer struct {
	From, To common.Address
	Amount   types.Amount
}

// UnapproveTransfer removes up to Amount from the approval for (From, To).
type UnapproveTransfer struct {
	From, To common.Address
	Amount   types.Amount
}

// ConsumeApproval settles a completed transfer against its approval.
type ConsumeApproval struct {
	From, To common.Address
	Amount   types.Amount
}

type SetSupplyLimit struct {
	Limit types.Amount
}

type SetMaxBalance struct {
	Max types.Amount
}

// PresetBalance overwrites the tracked balance of an identity, for assets
// migrating existing holders.
type PresetBalance struct {
	Identity common.Address
	Balance  types.Amount
}

// RecordBalanceDelta moves the tracked balance of an identity by Amount,
// downwards when Decrease is set.
type RecordBalanceDelta struct {
	Identity common.Address
	Amount   types.Amount
	Decrease bool
}

type SetTimeWindow struct {
	DurationSeconds uint64
	Limit           types.Amount
}

type AllowUser struct {
	Identity common.Address
}

type DisallowUser struct {
	Identity common.Address
}

// SetRestriction turns allow-list enforcement on or off for the tenant.
type SetRestriction struct {
	Enabled bool
}

func (ApproveTransfer) Kind() Kind { return KindConditionalTransfer }
func (UnapproveTransfer) Kind() Kind { return KindConditionalTransfer }
func (ConsumeApproval) Kind() Kind { return KindConditionalTransfer }
func (SetSupplyLimit) Kind() Kind { return KindSupplyCap }
func (SetMaxBalance) Kind() Kind { return KindBalanceCap }
func (PresetBalance) Kind() Kind { return KindBalanceCap }
func (RecordBalanceDelta) Kind() Kind { return KindBalanceCap }
func (SetTimeWindow) Kind() Kind { return KindTimeWindow }
func (AllowUser) Kind() Kind { return KindAllowList }
func (DisallowUser) Kind() Kind { return KindAllowList }
func (SetRestriction) Kind() Kind { return KindAllowList }
func (ApproveTransfer) Method() string { return MethodApproveTransfer }
func (UnapproveTransfer) Method() string { return MethodUnapproveTransfer }
func (ConsumeApproval) Method() string { return MethodConsumeApproval }
func (SetSupplyLimit) Method() string { return MethodSetSupplyLimit }
func (SetMaxBalance) Method() string { return MethodSetMaxBalance }
func (PresetBalance) Method() string { return MethodPresetBalance }
func (RecordBalanceDelta) Method() string { return MethodRecordBalanceDelta }
func (SetTimeWindow) Method() string { return MethodSetTimeWindow }
func (AllowUser) Method() string { return MethodAllowUser }
func (DisallowUser) Method() string { return MethodDisallowUser }
func (SetRestriction) Method() string { return MethodSetRestriction }

func (c ApproveTransfer) args() map[string]any {
	return map[string]any{"from": c.From.Hex(), "to": c.To.Hex(), "amount": c.Amount.String()}
}

func (c UnapproveTransfer) args() map[string]any {
	return map[string]any{"from": c.From.Hex(), "to": c.To.Hex(), "amount": c.Amount.String()}
}

func (c ConsumeApproval) args() map[string]any {
	return map[string]any{"from": c.From.Hex(), "to": c.To.Hex(), "amount": c.Amount.String()}
}

func (c SetSupplyLimit) args() map[string]any {
	return map[string]any{"limit": c.Limit.String()}
}

func (c SetMaxBalance) args() map[string]any {
	return map[string]any{"max": c.Max.String()}
}

func (c PresetBalance) args() map[string]any {
	return map[string]any{"identity": c.Identity.Hex(), "balance": c.Balance.String()}
}

func (c RecordBalanceDelta) args() map[string]any {
	return map[string]any{"identity": c.Identity.Hex(), "amount": c.Amount.String(), "decrease": c.Decrease}
}

func (c SetTimeWindow) args() map[string]any {
	return map[string]any{"duration_seconds": float64(c.DurationSeconds), "limit": c.Limit.String()}
}

func (c AllowUser) args() map[string]any {
	return map[string]any{"identity": c.Identity.Hex()}
}

func (c DisallowUser) args() map[string]any {
	return map[string]any{"identity": c.Identity.Hex()}
}

func (c SetRestriction) args() map[string]any {
	return map[string]any{"enabled": c.Enabled}
}
