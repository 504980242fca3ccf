package compliance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tollgate-labs/tollgate/server/internal/tollgate/store"
)

// Authorization objects and actions checked by the registry itself.
const (
	ObjectCompliance = "compliance"
	ActionBind       = "bind"
	ActionRelay      = "relay"
)

const tracerName = "github.com/tollgate-labs/tollgate/server/internal/tollgate/compliance"

// Verdict is the aggregate answer of Evaluate. When the transfer is
// rejected, Module and Kind identify the first module that refused it.
type Verdict struct {
	Allowed bool
	Module  *common.Address
	Kind    Kind
	Reason  string
}

// RelayResult reports which module accepted a relayed call.
type RelayResult struct {
	Module common.Address
	Kind   Kind
	Method string
}

type RegistryConfig struct {
	Address    common.Address
	Catalog    *Catalog
	Bindings   store.BindingStore
	State      store.StateStore
	Authorizer Authorizer
	Logger     *slog.Logger
}

// Registry is the compliance instance owned by one asset. Its address is
// the tenant key every bound module files state under.
//
// Evaluate and Relay are serialized per registry.
type Registry struct {
	mu       sync.Mutex
	address  common.Address
	catalog  *Catalog
	bindings store.BindingStore
	state    store.StateStore
	authz    Authorizer
	logger   *slog.Logger
	tracer   trace.Tracer
}

func NewRegistry(cfg RegistryConfig) *Registry {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Registry{
		address:  cfg.Address,
		catalog:  cfg.Catalog,
		bindings: cfg.Bindings,
		state:    cfg.State,
		authz:    cfg.Authorizer,
		logger:   logger.With("registry", cfg.Address.Hex()),
		tracer:   otel.Tracer(tracerName),
	}
}

func (r *Registry) Address() common.Address { return r.address }

func (r *Registry) authorize(caller common.Address, action string) error {
	ok, err := r.authz.Allowed(caller, r.address, ObjectCompliance, action)
	if err != nil {
		return fmt.Errorf("authorize %s: %w", action, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s may not %s on registry %s", ErrUnauthorized, caller.Hex(), action, r.address.Hex())
	}
	return nil
}

// BindModule adds module to the bound set. Binding a module that is already
// bound succeeds without changing the order.
func (r *Registry) BindModule(ctx context.Context, caller, module common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.authorize(caller, ActionBind); err != nil {
		return err
	}
	m, err := r.catalog.Get(module)
	if err != nil {
		return err
	}
	if err := r.bindings.Bind(ctx, r.address, module); err != nil {
		return fmt.Errorf("bind %s: %w", module.Hex(), err)
	}
	r.logger.Info("module bound", "module", module.Hex(), "kind", m.Kind())
	return nil
}

// UnbindModule removes module from the bound set. The module refuses
// relayed calls from this registry from then on.
func (r *Registry) UnbindModule(ctx context.Context, caller, module common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.authorize(caller, ActionBind); err != nil {
		return err
	}
	if err := r.bindings.Unbind(ctx, r.address, module); err != nil {
		return fmt.Errorf("unbind %s: %w", module.Hex(), err)
	}
	r.logger.Info("module unbound", "module", module.Hex())
	return nil
}

func (r *Registry) IsModuleBound(ctx context.Context, module common.Address) (bool, error) {
	return r.bindings.IsBound(ctx, r.address, module)
}

// Modules returns the bound modules in bind order.
func (r *Registry) Modules(ctx context.Context) ([]Module, error) {
	addrs, err := r.bindings.Modules(ctx, r.address)
	if err != nil {
		return nil, fmt.Errorf("list bindings: %w", err)
	}
	out := make([]Module, 0, len(addrs))
	for _, a := range addrs {
		m, err := r.catalog.Get(a)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// Evaluate asks every bound module, in bind order, whether t may proceed.
// The first rejection ends the walk. A module that errors or panics counts
// as a rejection. State proposed by the modules is committed in one batch
// only when the transfer is allowed.
//
// The returned error is reserved for storage failures of the registry
// itself; a rejection is reported through the Verdict.
func (r *Registry) Evaluate(ctx context.Context, t Transfer) (Verdict, error) {
	return r.evaluate(ctx, t, nil)
}

// EvaluateWith is Evaluate for a caller that moves balances in the same
// state store. When t is allowed, the module state and writes are
// committed in a single Apply, so accounting such as the time window
// never runs ahead of the balances it describes.
func (r *Registry) EvaluateWith(ctx context.Context, t Transfer, writes []store.StateWrite) (Verdict, error) {
	return r.evaluate(ctx, t, writes)
}

func (r *Registry) evaluate(ctx context.Context, t Transfer, extra []store.StateWrite) (Verdict, error) {
	ctx, span := r.tracer.Start(ctx, "compliance.Evaluate", trace.WithAttributes(
		attribute.String("registry", r.address.Hex()),
		attribute.String("operation", string(t.Operation())),
		attribute.String("amount", t.Amount.String()),
	))
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	modules, err := r.Modules(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Verdict{Reason: "bindings unavailable"}, err
	}

	var writes []store.StateWrite
	for _, m := range modules {
		d, err := r.check(ctx, m, t)
		if err == nil {
			err = r.verifyWrites(m, d.Writes)
		}
		if err != nil {
			r.logger.Error("module check failed", "module", m.Address().Hex(), "kind", m.Kind(), "error", err)
			d = Reject("module error")
		}
		if !d.Allowed {
			addr := m.Address()
			span.SetAttributes(attribute.Bool("allowed", false), attribute.String("rejected_by", string(m.Kind())))
			return Verdict{Module: &addr, Kind: m.Kind(), Reason: d.Reason}, nil
		}
		writes = append(writes, d.Writes...)
	}
	writes = append(writes, extra...)

	if len(writes) > 0 {
		if err := r.state.Apply(ctx, writes); err != nil {
			err = fmt.Errorf("commit module state: %w", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return Verdict{Reason: "state unavailable"}, err
		}
	}
	span.SetAttributes(attribute.Bool("allowed", true))
	return Verdict{Allowed: true}, nil
}

func (r *Registry) check(ctx context.Context, m Module, t Transfer) (d Decision, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("module panicked: %v", p)
		}
	}()
	return m.Check(ctx, r.address, t)
}

// verifyWrites refuses state proposed outside the module's own bucket for
// this registry.
func (r *Registry) verifyWrites(m Module, writes []store.StateWrite) error {
	for _, w := range writes {
		if w.Key.Tenant != r.address || w.Key.Module != m.Address() {
			return fmt.Errorf("%w: write to %s/%s/%s", ErrInvariantViolation, w.Key.Module.Hex(), w.Key.Tenant.Hex(), w.Key.Slot)
		}
	}
	return nil
}

// Relay forwards an encoded configuration call to a bound module on behalf
// of caller. The module decides whether the caller's role admits the call.
func (r *Registry) Relay(ctx context.Context, caller, module common.Address, call []byte) (RelayResult, error) {
	ctx, span := r.tracer.Start(ctx, "compliance.Relay", trace.WithAttributes(
		attribute.String("registry", r.address.Hex()),
		attribute.String("module", module.Hex()),
	))
	defer span.End()

	res, err := r.relay(ctx, caller, module, call)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if !errors.Is(err, ErrConfiguration) {
			r.logger.Warn("relay refused", "module", module.Hex(), "caller", caller.Hex(), "error", err)
		}
		return RelayResult{}, err
	}
	span.SetAttributes(attribute.String("method", res.Method))
	return res, nil
}

func (r *Registry) relay(ctx context.Context, caller, module common.Address, call []byte) (RelayResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.authorize(caller, ActionRelay); err != nil {
		return RelayResult{}, err
	}
	bound, err := r.bindings.IsBound(ctx, r.address, module)
	if err != nil {
		return RelayResult{}, fmt.Errorf("lookup binding: %w", err)
	}
	if !bound {
		return RelayResult{}, fmt.Errorf("%w: module %s is not bound to registry %s", ErrUnauthorized, module.Hex(), r.address.Hex())
	}
	m, err := r.catalog.Get(module)
	if err != nil {
		return RelayResult{}, err
	}
	cmd, err := DecodeCall(call)
	if err != nil {
		return RelayResult{}, err
	}
	if err := m.Handle(ctx, Call{Tenant: r.address, Caller: caller, Command: cmd}); err != nil {
		return RelayResult{}, err
	}
	return RelayResult{Module: module, Kind: m.Kind(), Method: cmd.Method()}, nil
}

// RelayCommand encodes cmd and relays it.
func (r *Registry) RelayCommand(ctx context.Context, caller, module common.Address, cmd Command) (RelayResult, error) {
	call, err := EncodeCall(cmd)
	if err != nil {
		return RelayResult{}, fmt.Errorf("%w: encode call: %v", ErrConfiguration, err)
	}
	return r.Relay(ctx, caller, module, call)
}
