// Package factory wires new assets: a ledger, an identity registry and a
// compliance registry per asset, bound to the shared rule module instances.
package factory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"github.com/tollgate-labs/tollgate/server/internal/authz"
	"github.com/tollgate-labs/tollgate/server/internal/tollgate/compliance"
	"github.com/tollgate-labs/tollgate/server/internal/tollgate/identity"
	"github.com/tollgate-labs/tollgate/server/internal/tollgate/ledger"
	"github.com/tollgate-labs/tollgate/server/internal/tollgate/rules"
	"github.com/tollgate-labs/tollgate/server/internal/tollgate/store"
	"github.com/tollgate-labs/tollgate/server/internal/tollgate/types"
)

var (
	ErrInvalidRequest = errors.New("invalid asset request")
	ErrAssetNotFound  = errors.New("asset not found")
)

// moduleNonces is the number of creation nonces reserved for the shared
// module instances; asset nonces start after it, three per asset.
const moduleNonces = 5

// nonceSlot holds the next unused asset nonce under the factory's own
// state bucket. A nonce is spent once reserved, even if creation fails.
const nonceSlot = "asset-nonce"

// Modules are the shared rule module instances every asset binds.
type Modules struct {
	Conditional *rules.ConditionalTransfer
	SupplyCap   *rules.SupplyCap
	BalanceCap  *rules.BalanceCap
	TimeWindow  *rules.TimeWindow
	AllowList   *rules.AllowList
}

// NewModules creates the shared module instances at addresses derived from
// the factory address.
func NewModules(factory common.Address, state store.StateStore, bindings store.BindingStore, az compliance.Authorizer, windowOpts ...rules.TimeWindowOption) Modules {
	cfg := func(nonce uint64) rules.Config {
		return rules.Config{
			Address:    crypto.CreateAddress(factory, nonce),
			State:      state,
			Bindings:   bindings,
			Authorizer: az,
		}
	}
	return Modules{
		Conditional: rules.NewConditionalTransfer(cfg(0)),
		SupplyCap:   rules.NewSupplyCap(cfg(1)),
		BalanceCap:  rules.NewBalanceCap(cfg(2)),
		TimeWindow:  rules.NewTimeWindow(cfg(3), windowOpts...),
		AllowList:   rules.NewAllowList(cfg(4)),
	}
}

func (m Modules) All() []compliance.Module {
	return []compliance.Module{m.Conditional, m.SupplyCap, m.BalanceCap, m.TimeWindow, m.AllowList}
}

type Config struct {
	Address    common.Address
	Modules    Modules
	State      store.StateStore
	Bindings   store.BindingStore
	Identities store.IdentityStore
	Bundles    store.BundleStore
	Authorizer *authz.Authorizer
	OnDecision ledger.DecisionFunc
	Logger     *slog.Logger
	Now        func() time.Time
}

// Asset is the live wiring of one created asset.
type Asset struct {
	Bundle     types.AssetBundle
	Ledger     *ledger.Ledger
	Identities *identity.Registry
	Compliance *compliance.Registry
}

type Factory struct {
	mu         sync.Mutex
	cfg        Config
	catalog    *compliance.Catalog
	logger     *slog.Logger
	assets     map[common.Address]*Asset
	registries map[common.Address]*Asset
}

func New(cfg Config) *Factory {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Factory{
		cfg:        cfg,
		catalog:    compliance.NewCatalog(cfg.Modules.All()...),
		logger:     logger,
		assets:     make(map[common.Address]*Asset),
		registries: make(map[common.Address]*Asset),
	}
}

func (f *Factory) Address() common.Address { return f.cfg.Address }

func (f *Factory) Catalog() *compliance.Catalog { return f.catalog }

func (f *Factory) Modules() Modules { return f.cfg.Modules }

func validate(owner common.Address, req types.CreateAssetRequest) error {
	if owner == (common.Address{}) {
		return fmt.Errorf("%w: owner is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(req.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(req.Symbol) == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalidRequest)
	}
	if d := req.Compliance.TimeWindow.DurationSeconds; d > rules.MaxWindowSeconds {
		return fmt.Errorf("%w: time window of %d seconds exceeds %d", ErrInvalidRequest, d, rules.MaxWindowSeconds)
	}
	return nil
}

// reserveNonce returns the first of three fresh creation nonces and
// records them as used. Stores written before the counter existed fall
// back to the bundle count.
func (f *Factory) reserveNonce(ctx context.Context) (uint64, error) {
	key := store.StateKey{Module: f.cfg.Address, Tenant: f.cfg.Address, Slot: nonceSlot}
	next := uint64(moduleNonces)
	raw, found, err := f.cfg.State.Get(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("read nonce: %w", err)
	}
	if found {
		if err := json.Unmarshal(raw, &next); err != nil {
			return 0, fmt.Errorf("decode nonce: %w", err)
		}
	}
	existing, err := f.cfg.Bundles.ListBundles(ctx)
	if err != nil {
		return 0, fmt.Errorf("list bundles: %w", err)
	}
	next = max(next, uint64(moduleNonces+3*len(existing)))

	raw, err = json.Marshal(next + 3)
	if err != nil {
		return 0, err
	}
	if err := f.cfg.State.Apply(ctx, []store.StateWrite{{Key: key, Value: raw}}); err != nil {
		return 0, fmt.Errorf("reserve nonce: %w", err)
	}
	return next, nil
}

// CreateAsset builds and configures a new asset owned by owner and records
// its bundle. The request is validated before anything is granted; a
// failure after that revokes the grants, unbinds the modules and drops
// their configuration. The addresses are never handed out again.
func (f *Factory) CreateAsset(ctx context.Context, owner common.Address, req types.CreateAssetRequest) (*Asset, error) {
	if err := validate(owner, req); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	nonce, err := f.reserveNonce(ctx)
	if err != nil {
		return nil, err
	}
	mods := f.cfg.Modules

	b := types.AssetBundle{
		Asset:            crypto.CreateAddress(f.cfg.Address, nonce),
		IdentityRegistry: crypto.CreateAddress(f.cfg.Address, nonce+1),
		Compliance:       crypto.CreateAddress(f.cfg.Address, nonce+2),
		BalanceCapModule: mods.BalanceCap.Address(),
		AllowListModule:  mods.AllowList.Address(),
		SupplyCapModule:  mods.SupplyCap.Address(),
		TimeWindowModule: mods.TimeWindow.Address(),
		Owner:            owner,
		Request:          req,
		CreatedAt:        f.cfg.Now().UTC(),
	}
	if req.Compliance.ConditionalTransferEnabled {
		b.ConditionalTransferModule = mods.Conditional.Address()
	}

	a, err := f.wire(b)
	if err == nil {
		err = f.bindAndConfigure(ctx, a)
	}
	if err == nil {
		if err = f.cfg.Bundles.SaveBundle(ctx, b); err != nil {
			err = fmt.Errorf("save bundle: %w", err)
		}
	}
	if err != nil {
		f.rollback(ctx, b, err)
		return nil, err
	}
	f.remember(a)

	f.logger.Info("AssetCreated",
		"event_id", uuid.NewString(),
		"asset", b.Asset.Hex(),
		"identity_registry", b.IdentityRegistry.Hex(),
		"compliance", b.Compliance.Hex(),
		"owner", owner.Hex(),
		"name", req.Name,
		"symbol", req.Symbol,
		"precision", req.Precision,
		"initial_supply", req.InitialSupply.String(),
	)
	return a, nil
}

// wire builds the in-memory objects for a bundle and grants the owner and
// ledger their roles on the compliance registry.
func (f *Factory) wire(b types.AssetBundle) (*Asset, error) {
	if err := f.cfg.Authorizer.GrantRole(b.Compliance, b.Owner, authz.RoleOwner); err != nil {
		return nil, err
	}
	if err := f.cfg.Authorizer.GrantRole(b.Compliance, b.Asset, authz.RoleAgent); err != nil {
		return nil, err
	}

	reg := compliance.NewRegistry(compliance.RegistryConfig{
		Address:    b.Compliance,
		Catalog:    f.catalog,
		Bindings:   f.cfg.Bindings,
		State:      f.cfg.State,
		Authorizer: f.cfg.Authorizer,
		Logger:     f.logger,
	})
	ids := identity.NewRegistry(b.IdentityRegistry, f.cfg.Identities)
	led := ledger.New(ledger.Config{
		Address:                   b.Asset,
		Identities:                ids,
		Compliance:                reg,
		State:                     f.cfg.State,
		ConditionalTransferModule: f.cfg.Modules.Conditional.Address(),
		BalanceCapModule:          f.cfg.Modules.BalanceCap.Address(),
		OnDecision:                f.cfg.OnDecision,
		Logger:                    f.logger,
	})
	return &Asset{Bundle: b, Ledger: led, Identities: ids, Compliance: reg}, nil
}

func (f *Factory) bindAndConfigure(ctx context.Context, a *Asset) error {
	b, params := a.Bundle, a.Bundle.Request.Compliance
	reg := a.Compliance

	bind := []common.Address{b.BalanceCapModule, b.AllowListModule, b.SupplyCapModule, b.TimeWindowModule}
	if b.ConditionalTransferModule != (common.Address{}) {
		bind = append(bind, b.ConditionalTransferModule)
	}
	for _, m := range bind {
		if err := reg.BindModule(ctx, b.Owner, m); err != nil {
			return fmt.Errorf("bind module %s: %w", m.Hex(), err)
		}
	}

	config := []struct {
		module common.Address
		cmd    compliance.Command
	}{
		{b.SupplyCapModule, compliance.SetSupplyLimit{Limit: params.SupplyLimit}},
		{b.BalanceCapModule, compliance.SetMaxBalance{Max: params.MaxSupply}},
		{b.TimeWindowModule, compliance.SetTimeWindow{DurationSeconds: params.TimeWindow.DurationSeconds, Limit: params.TimeWindow.Limit}},
		{b.AllowListModule, compliance.SetRestriction{Enabled: params.TransferRestrictionEnabled}},
	}
	for _, c := range config {
		if _, err := reg.RelayCommand(ctx, b.Owner, c.module, c.cmd); err != nil {
			return fmt.Errorf("configure %s: %w", c.cmd.Method(), err)
		}
	}
	return nil
}

// rollback undoes a partly created bundle. It runs to completion even if
// ctx is done, and logs what it could not undo.
func (f *Factory) rollback(ctx context.Context, b types.AssetBundle, cause error) {
	ctx = context.WithoutCancel(ctx)
	var errs []error
	for _, m := range f.cfg.Modules.All() {
		errs = append(errs, f.cfg.Bindings.Unbind(ctx, b.Compliance, m.Address()))
		if r, ok := m.(compliance.Resetter); ok {
			errs = append(errs, r.Reset(ctx, b.Compliance))
		}
	}
	errs = append(errs,
		f.cfg.Authorizer.RevokeRole(b.Compliance, b.Owner, authz.RoleOwner),
		f.cfg.Authorizer.RevokeRole(b.Compliance, b.Asset, authz.RoleAgent),
	)
	if err := errors.Join(errs...); err != nil {
		f.logger.Error("asset rollback incomplete", "asset", b.Asset.Hex(), "compliance", b.Compliance.Hex(), "cause", cause, "error", err)
		return
	}
	f.logger.Warn("asset creation rolled back", "asset", b.Asset.Hex(), "compliance", b.Compliance.Hex(), "cause", cause)
}

func (f *Factory) remember(a *Asset) {
	f.assets[a.Bundle.Asset] = a
	f.registries[a.Bundle.Compliance] = a
}

// LoadAsset returns the wiring for a created asset, rebuilding it from the
// stored bundle after a restart.
func (f *Factory) LoadAsset(ctx context.Context, asset common.Address) (*Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if a, ok := f.assets[asset]; ok {
		return a, nil
	}
	b, err := f.cfg.Bundles.GetBundle(ctx, asset)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrAssetNotFound, asset.Hex())
	}
	if err != nil {
		return nil, fmt.Errorf("load bundle: %w", err)
	}
	a, err := f.wire(b)
	if err != nil {
		return nil, err
	}
	f.remember(a)
	return a, nil
}

// AssetByRegistry finds the asset whose compliance registry is registry.
func (f *Factory) AssetByRegistry(ctx context.Context, registry common.Address) (*Asset, error) {
	f.mu.Lock()
	a, ok := f.registries[registry]
	f.mu.Unlock()
	if ok {
		return a, nil
	}

	bundles, err := f.cfg.Bundles.ListBundles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list bundles: %w", err)
	}
	for _, b := range bundles {
		if b.Compliance == registry {
			return f.LoadAsset(ctx, b.Asset)
		}
	}
	return nil, fmt.Errorf("%w: no asset uses registry %s", ErrAssetNotFound, registry.Hex())
}

// Restore rebuilds every stored asset. It is called once at startup.
func (f *Factory) Restore(ctx context.Context) (int, error) {
	bundles, err := f.cfg.Bundles.ListBundles(ctx)
	if err != nil {
		return 0, fmt.Errorf("list bundles: %w", err)
	}
	for _, b := range bundles {
		if _, err := f.LoadAsset(ctx, b.Asset); err != nil {
			return 0, err
		}
	}
	return len(bundles), nil
}

func (f *Factory) ListAssets(ctx context.Context) ([]types.AssetBundle, error) {
	return f.cfg.Bundles.ListBundles(ctx)
}
