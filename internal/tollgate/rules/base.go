// Package rules implements the compliance rule modules. Each module is a
// single shared instance that files its state under the tenant key of the
// registry it was called for.
package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tollgate-labs/tollgate/server/internal/tollgate/compliance"
	"github.com/tollgate-labs/tollgate/server/internal/tollgate/store"
)

// Config is shared by every module constructor.
type Config struct {
	Address    common.Address
	State      store.StateStore
	Bindings   store.BindingStore
	Authorizer compliance.Authorizer
}

type base struct {
	address  common.Address
	kind     compliance.Kind
	state    store.StateStore
	bindings store.BindingStore
	authz    compliance.Authorizer
}

func newBase(kind compliance.Kind, cfg Config) base {
	return base{
		address:  cfg.Address,
		kind:     kind,
		state:    cfg.State,
		bindings: cfg.Bindings,
		authz:    cfg.Authorizer,
	}
}

func (b *base) Address() common.Address { return b.address }

func (b *base) Kind() compliance.Kind { return b.kind }

// admit runs the admission policy shared by all modules: the tenant must be
// bound to this module, the command must belong to this module kind and the
// caller's role must permit the method.
func (b *base) admit(ctx context.Context, call compliance.Call) error {
	bound, err := b.bindings.IsBound(ctx, call.Tenant, b.address)
	if err != nil {
		return fmt.Errorf("%s: lookup binding: %w", b.kind, err)
	}
	if !bound {
		return fmt.Errorf("%w: %s is not bound to registry %s", compliance.ErrUnauthorized, b.kind, call.Tenant.Hex())
	}
	if call.Command == nil || call.Command.Kind() != b.kind {
		return fmt.Errorf("%w: %s cannot handle %s", compliance.ErrConfiguration, b.kind, describe(call.Command))
	}
	ok, err := b.authz.Allowed(call.Caller, call.Tenant, string(b.kind), call.Command.Method())
	if err != nil {
		return fmt.Errorf("%s: %w", b.kind, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s may not call %s.%s", compliance.ErrUnauthorized, call.Caller.Hex(), b.kind, call.Command.Method())
	}
	return nil
}

func describe(cmd compliance.Command) string {
	if cmd == nil {
		return "empty command"
	}
	return string(cmd.Kind()) + "." + cmd.Method()
}

func (b *base) key(tenant common.Address, slot string) store.StateKey {
	return store.StateKey{Module: b.address, Tenant: tenant, Slot: slot}
}

// load decodes the slot into v and reports whether it was present.
func (b *base) load(ctx context.Context, tenant common.Address, slot string, v any) (bool, error) {
	raw, ok, err := b.state.Get(ctx, b.key(tenant, slot))
	if err != nil {
		return false, fmt.Errorf("%s: read %s: %w", b.kind, slot, err)
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("%w: %s: decode %s: %v", compliance.ErrInvariantViolation, b.kind, slot, err)
	}
	return true, nil
}

func (b *base) put(tenant common.Address, slot string, v any) (store.StateWrite, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return store.StateWrite{}, fmt.Errorf("%s: encode %s: %w", b.kind, slot, err)
	}
	return store.StateWrite{Key: b.key(tenant, slot), Value: raw}, nil
}

func (b *base) del(tenant common.Address, slot string) store.StateWrite {
	return store.StateWrite{Key: b.key(tenant, slot)}
}

func (b *base) apply(ctx context.Context, writes ...store.StateWrite) error {
	if err := b.state.Apply(ctx, writes); err != nil {
		return fmt.Errorf("%s: write state: %w", b.kind, err)
	}
	return nil
}

// settle commits the writes of an accepting decision. It backs the
// standalone ModuleCheck methods, where check and accounting are fused.
func (b *base) settle(ctx context.Context, d compliance.Decision, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	if d.Allowed && len(d.Writes) > 0 {
		if err := b.apply(ctx, d.Writes...); err != nil {
			return false, err
		}
	}
	return d.Allowed, nil
}

func addrSlot(prefix string, addrs ...common.Address) string {
	parts := make([]string, 0, len(addrs)+1)
	parts = append(parts, prefix)
	for _, a := range addrs {
		parts = append(parts, strings.ToLower(a.Hex()))
	}
	return strings.Join(parts, "/")
}

func unexpected(kind compliance.Kind, cmd compliance.Command) error {
	return fmt.Errorf("%w: %s cannot handle %s", compliance.ErrConfiguration, kind, describe(cmd))
}
