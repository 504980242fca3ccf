// Package ledger is a minimal balance book for one asset. It exists to
// drive the compliance engine end to end: every movement is evaluated by
// the asset's compliance registry and settled back into the rule modules.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tollgate-labs/tollgate/server/internal/tollgate/compliance"
	"github.com/tollgate-labs/tollgate/server/internal/tollgate/identity"
	"github.com/tollgate-labs/tollgate/server/internal/tollgate/store"
	"github.com/tollgate-labs/tollgate/server/internal/tollgate/types"
)

var (
	ErrComplianceRejected  = errors.New("rejected by compliance")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrUnknownIdentity     = errors.New("party is not a registered identity")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInvalidParty        = errors.New("party must be a non-zero address")

	// ErrSettlement means the movement was applied but the rule modules
	// could not be told about it.
	ErrSettlement = errors.New("settlement failed")
)

const supplySlot = "supply"

// DecisionFunc observes every verdict the ledger obtains.
type DecisionFunc func(ctx context.Context, registry common.Address, t compliance.Transfer, v compliance.Verdict)

type Config struct {
	// Address is the asset address. The ledger relays settlement calls as
	// this address, so it must hold the agent role on the registry.
	Address                   common.Address
	Identities                *identity.Registry
	Compliance                *compliance.Registry
	// State must be the store Compliance commits module state to.
	State                     store.StateStore
	ConditionalTransferModule common.Address
	BalanceCapModule          common.Address
	OnDecision                DecisionFunc
	Logger                    *slog.Logger
}

type Ledger struct {
	mu          sync.Mutex
	address     common.Address
	identities  *identity.Registry
	compliance  *compliance.Registry
	state       store.StateStore
	conditional common.Address
	balanceCap  common.Address
	onDecision  DecisionFunc
	logger      *slog.Logger
}

func New(cfg Config) *Ledger {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Ledger{
		address:     cfg.Address,
		identities:  cfg.Identities,
		compliance:  cfg.Compliance,
		state:       cfg.State,
		conditional: cfg.ConditionalTransferModule,
		balanceCap:  cfg.BalanceCapModule,
		onDecision:  cfg.OnDecision,
		logger:      logger.With("asset", cfg.Address.Hex()),
	}
}

func (l *Ledger) Address() common.Address { return l.address }

func (l *Ledger) Compliance() *compliance.Registry { return l.compliance }

func (l *Ledger) Identities() *identity.Registry { return l.identities }

func (l *Ledger) key(slot string) store.StateKey {
	return store.StateKey{Module: l.address, Tenant: l.address, Slot: slot}
}

func balanceSlot(party common.Address) string {
	return "balance/" + strings.ToLower(party.Hex())
}

func (l *Ledger) read(ctx context.Context, slot string) (types.Amount, error) {
	var a types.Amount
	raw, ok, err := l.state.Get(ctx, l.key(slot))
	if err != nil || !ok {
		return a, err
	}
	if err := json.Unmarshal(raw, &a); err != nil {
		return types.Amount{}, fmt.Errorf("decode %s: %w", slot, err)
	}
	return a, nil
}

func (l *Ledger) write(slot string, a types.Amount) (store.StateWrite, error) {
	if a.IsZero() {
		return store.StateWrite{Key: l.key(slot)}, nil
	}
	raw, err := json.Marshal(a)
	if err != nil {
		return store.StateWrite{}, err
	}
	return store.StateWrite{Key: l.key(slot), Value: raw}, nil
}

func (l *Ledger) BalanceOf(ctx context.Context, party common.Address) (types.Amount, error) {
	return l.read(ctx, balanceSlot(party))
}

func (l *Ledger) TotalSupply(ctx context.Context) (types.Amount, error) {
	return l.read(ctx, supplySlot)
}

func (l *Ledger) Mint(ctx context.Context, to common.Address, amount types.Amount) error {
	if to == (common.Address{}) {
		return ErrInvalidParty
	}
	return l.move(ctx, common.Address{}, to, amount)
}

func (l *Ledger) Transfer(ctx context.Context, from, to common.Address, amount types.Amount) error {
	if from == (common.Address{}) || to == (common.Address{}) {
		return ErrInvalidParty
	}
	return l.move(ctx, from, to, amount)
}

func (l *Ledger) Burn(ctx context.Context, from common.Address, amount types.Amount) error {
	if from == (common.Address{}) {
		return ErrInvalidParty
	}
	return l.move(ctx, from, common.Address{}, amount)
}

// move runs one balance change: identity checks, then compliance
// evaluation, then module settlement. The balances are committed in the
// same batch as the module state the evaluation proposes, so a failed
// commit leaves neither behind. Settlement runs after the commit under
// l.mu; a settlement failure leaves the balances moved and is reported
// as ErrSettlement.
func (l *Ledger) move(ctx context.Context, from, to common.Address, amount types.Amount) error {
	if amount.IsZero() {
		return ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, party := range []common.Address{from, to} {
		if party == (common.Address{}) {
			continue
		}
		ok, err := l.identities.IsVerified(ctx, party)
		if err != nil {
			return fmt.Errorf("identity lookup: %w", err)
		}
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownIdentity, party.Hex())
		}
	}

	supply, err := l.TotalSupply(ctx)
	if err != nil {
		return err
	}
	var writes []store.StateWrite

	if from != (common.Address{}) {
		bal, err := l.BalanceOf(ctx, from)
		if err != nil {
			return err
		}
		left, ok := bal.Sub(amount)
		if !ok {
			return fmt.Errorf("%w: %s holds %s, needs %s", ErrInsufficientBalance, from.Hex(), bal, amount)
		}
		w, err := l.write(balanceSlot(from), left)
		if err != nil {
			return err
		}
		writes = append(writes, w)
	}
	if to != (common.Address{}) {
		bal, err := l.BalanceOf(ctx, to)
		if err != nil {
			return err
		}
		if to == from {
			bal, _ = bal.Sub(amount)
		}
		w, err := l.write(balanceSlot(to), bal.Add(amount))
		if err != nil {
			return err
		}
		writes = append(writes, w)
	}

	t := compliance.Transfer{From: from, To: to, Amount: amount, Context: compliance.LedgerContext{TotalSupply: supply}}
	if after := t.SupplyAfter(); !after.Equal(supply) {
		w, err := l.write(supplySlot, after)
		if err != nil {
			return err
		}
		writes = append(writes, w)
	}

	v, err := l.compliance.EvaluateWith(ctx, t, writes)
	if l.onDecision != nil {
		l.onDecision(ctx, l.compliance.Address(), t, v)
	}
	if err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	if !v.Allowed {
		return fmt.Errorf("%w: %s: %s", ErrComplianceRejected, v.Kind, v.Reason)
	}

	l.logger.Info("balance moved", "operation", t.Operation(), "from", from.Hex(), "to", to.Hex(), "amount", amount.String())

	return l.settle(ctx, from, to, amount)
}

// settle tells the stateful modules about a completed movement: the
// approval it used is consumed and both tracked balances are updated.
func (l *Ledger) settle(ctx context.Context, from, to common.Address, amount types.Amount) error {
	var cmds []relayed
	if l.bound(ctx, l.conditional) {
		cmds = append(cmds, relayed{l.conditional, compliance.ConsumeApproval{From: from, To: to, Amount: amount}})
	}
	if l.bound(ctx, l.balanceCap) {
		if from != (common.Address{}) {
			cmds = append(cmds, relayed{l.balanceCap, compliance.RecordBalanceDelta{Identity: from, Amount: amount, Decrease: true}})
		}
		if to != (common.Address{}) {
			cmds = append(cmds, relayed{l.balanceCap, compliance.RecordBalanceDelta{Identity: to, Amount: amount}})
		}
	}

	var errs []error
	for _, c := range cmds {
		if _, err := l.compliance.RelayCommand(ctx, l.address, c.module, c.cmd); err != nil {
			l.logger.Error("settlement relay failed", "module", c.module.Hex(), "method", c.cmd.Method(), "error", err)
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrSettlement, errors.Join(errs...))
	}
	return nil
}

type relayed struct {
	module common.Address
	cmd    compliance.Command
}

func (l *Ledger) bound(ctx context.Context, module common.Address) bool {
	if module == (common.Address{}) {
		return false
	}
	ok, err := l.compliance.IsModuleBound(ctx, module)
	if err != nil {
		l.logger.Error("binding lookup failed", "module", module.Hex(), "error", err)
		return false
	}
	return ok
}
