package compliance

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tollgate-labs/tollgate/server/internal/tollgate/store"
	"github.com/tollgate-labs/tollgate/server/internal/tollgate/types"
)

// Kind identifies one of the closed set of rule module variants.
type Kind string

const (
	KindConditionalTransfer Kind = "conditional_transfer"
	KindSupplyCap           Kind = "supply_cap"
	KindBalanceCap          Kind = "balance_cap"
	KindTimeWindow          Kind = "time_window"
	KindAllowList           Kind = "allow_list"
)

func (k Kind) Valid() bool {
	switch k {
	case KindConditionalTransfer, KindSupplyCap, KindBalanceCap, KindTimeWindow, KindAllowList:
		return true
	}
	return false
}

type Operation string

const (
	OpMint     Operation = "mint"
	OpTransfer Operation = "transfer"
	OpBurn     Operation = "burn"
)

// LedgerContext is the ledger state a predicate may depend on. It is
// passed in by the caller; modules never query the ledger themselves.
type LedgerContext struct {
	TotalSupply types.Amount
}

// Transfer is a proposed balance change. A zero From is a mint and a zero
// To is a burn.
type Transfer struct {
	From    common.Address
	To      common.Address
	Amount  types.Amount
	Context LedgerContext
}

func (t Transfer) Operation() Operation {
	switch {
	case t.From == (common.Address{}):
		return OpMint
	case t.To == (common.Address{}):
		return OpBurn
	default:
		return OpTransfer
	}
}

// SupplyAfter is the total supply once the transfer is applied.
func (t Transfer) SupplyAfter() types.Amount {
	switch t.Operation() {
	case OpMint:
		return t.Context.TotalSupply.Add(t.Amount)
	case OpBurn:
		return t.Context.TotalSupply.SubFloor(t.Amount)
	}
	return t.Context.TotalSupply
}

// Decision is a module's answer for one transfer. Writes hold the state
// the module wants recorded if, and only if, the aggregate verdict allows
// the transfer.
type Decision struct {
	Allowed bool
	Reason  string
	Writes  []store.StateWrite
}

func Allow(writes ...store.StateWrite) Decision {
	return Decision{Allowed: true, Writes: writes}
}

func Reject(reason string) Decision {
	return Decision{Reason: reason}
}

// Call is a configuration command relayed to a module on behalf of Caller
// by the registry identified by Tenant.
type Call struct {
	Tenant  common.Address
	Caller  common.Address
	Command Command
}

// Module is the capability every rule variant implements.
//
// Check must only read state under tenant. Handle must refuse calls whose
// Tenant is not currently bound to the module.
type Module interface {
	Address() common.Address
	Kind() Kind
	Check(ctx context.Context, tenant common.Address, t Transfer) (Decision, error)
	Handle(ctx context.Context, call Call) error
}

// Authorizer answers whether caller may perform action on object within
// the tenant's domain.
type Authorizer interface {
	Allowed(caller, tenant common.Address, object, action string) (bool, error)
}

// Resetter is implemented by modules that keep per-tenant configuration.
// Reset drops that configuration so the tenant reads as never configured.
// It is not a relayed command and bypasses admission.
type Resetter interface {
	Reset(ctx context.Context, tenant common.Address) error
}
