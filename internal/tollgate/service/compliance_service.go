package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tollgate-labs/tollgate/server/internal/authz"
	"github.com/tollgate-labs/tollgate/server/internal/tollgate/compliance"
	"github.com/tollgate-labs/tollgate/server/internal/tollgate/factory"
	"github.com/tollgate-labs/tollgate/server/internal/tollgate/types"
)

var (
	ErrInvalidRequest = errors.New("invalid request")
)

// ComplianceService is the application facade shared by the HTTP and gRPC
// transports. Every method takes the authenticated caller address.
type ComplianceService struct {
	factory  *factory.Factory
	authz    *authz.Authorizer
	recorder *DecisionRecorder
	logger   *slog.Logger
}

func NewComplianceService(f *factory.Factory, az *authz.Authorizer, rec *DecisionRecorder, logger *slog.Logger) *ComplianceService {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &ComplianceService{factory: f, authz: az, recorder: rec, logger: logger}
}

func serverTime() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// require checks caller against the asset's compliance domain.
func (s *ComplianceService) require(caller common.Address, a *factory.Asset, object, action string) error {
	ok, err := s.authz.Allowed(caller, a.Bundle.Compliance, object, action)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s may not %s.%s", compliance.ErrUnauthorized, caller.Hex(), object, action)
	}
	return nil
}

// ─── Assets ──────────────────────────────────────────────────────────────

// CreateAsset creates an asset owned by caller.
func (s *ComplianceService) CreateAsset(ctx context.Context, caller common.Address, req types.CreateAssetRequest) (types.AssetBundle, error) {
	a, err := s.factory.CreateAsset(ctx, caller, req)
	if err != nil {
		return types.AssetBundle{}, err
	}
	return a.Bundle, nil
}

func (s *ComplianceService) GetAsset(ctx context.Context, asset common.Address) (types.AssetBundle, error) {
	a, err := s.factory.LoadAsset(ctx, asset)
	if err != nil {
		return types.AssetBundle{}, err
	}
	return a.Bundle, nil
}

func (s *ComplianceService) ListAssets(ctx context.Context) ([]types.AssetBundle, error) {
	return s.factory.ListAssets(ctx)
}

// ─── Compliance registry ─────────────────────────────────────────────────

// Evaluate runs the registry's check for a proposed change. It commits the
// same accounting a ledger-driven check would, so callers need the
// evaluate permission.
func (s *ComplianceService) Evaluate(ctx context.Context, caller, registry common.Address, req types.EvaluateRequest) (types.EvaluateResponse, error) {
	a, err := s.factory.AssetByRegistry(ctx, registry)
	if err != nil {
		return types.EvaluateResponse{}, err
	}
	if err := s.require(caller, a, authz.ObjectCompliance, "evaluate"); err != nil {
		return types.EvaluateResponse{}, err
	}

	t := compliance.Transfer{
		From:    req.From,
		To:      req.To,
		Amount:  req.Amount,
		Context: compliance.LedgerContext{TotalSupply: req.TotalSupply},
	}
	v, err := a.Compliance.Evaluate(ctx, t)
	s.recorder.Record(ctx, registry, t, v)
	if err != nil {
		return types.EvaluateResponse{}, err
	}

	return types.EvaluateResponse{
		OK:         true,
		Allowed:    v.Allowed,
		Registry:   registry,
		RejectedBy: v.Module,
		Reason:     v.Reason,
		ServerTime: serverTime(),
	}, nil
}

// Relay forwards a configuration call. The call is either the encoded
// command or a method with arguments.
func (s *ComplianceService) Relay(ctx context.Context, caller, registry common.Address, req types.RelayRequest) (types.RelayResponse, error) {
	a, err := s.factory.AssetByRegistry(ctx, registry)
	if err != nil {
		return types.RelayResponse{}, err
	}

	call := req.Call
	if len(call) == 0 {
		cmd, err := compliance.CommandFromArgs(req.Method, req.Args)
		if err != nil {
			return types.RelayResponse{}, err
		}
		if call, err = compliance.EncodeCall(cmd); err != nil {
			return types.RelayResponse{}, fmt.Errorf("%w: %v", compliance.ErrConfiguration, err)
		}
	}

	res, err := a.Compliance.Relay(ctx, caller, req.Module, call)
	if err != nil {
		return types.RelayResponse{}, err
	}
	return types.RelayResponse{
		OK:         true,
		Registry:   registry,
		Module:     res.Module,
		Method:     res.Method,
		ServerTime: serverTime(),
	}, nil
}

func (s *ComplianceService) BindModule(ctx context.Context, caller, registry, module common.Address) (types.BindResponse, error) {
	a, err := s.factory.AssetByRegistry(ctx, registry)
	if err != nil {
		return types.BindResponse{}, err
	}
	if err := a.Compliance.BindModule(ctx, caller, module); err != nil {
		return types.BindResponse{}, err
	}
	return s.bindings(ctx, a)
}

func (s *ComplianceService) UnbindModule(ctx context.Context, caller, registry, module common.Address) (types.BindResponse, error) {
	a, err := s.factory.AssetByRegistry(ctx, registry)
	if err != nil {
		return types.BindResponse{}, err
	}
	if err := a.Compliance.UnbindModule(ctx, caller, module); err != nil {
		return types.BindResponse{}, err
	}
	return s.bindings(ctx, a)
}

// Modules lists the registry's bound modules in evaluation order.
func (s *ComplianceService) Modules(ctx context.Context, registry common.Address) (types.BindResponse, error) {
	a, err := s.factory.AssetByRegistry(ctx, registry)
	if err != nil {
		return types.BindResponse{}, err
	}
	return s.bindings(ctx, a)
}

func (s *ComplianceService) bindings(ctx context.Context, a *factory.Asset) (types.BindResponse, error) {
	mods, err := a.Compliance.Modules(ctx)
	if err != nil {
		return types.BindResponse{}, err
	}
	resp := types.BindResponse{OK: true, Registry: a.Compliance.Address(), Modules: make([]common.Address, 0, len(mods))}
	for _, m := range mods {
		resp.Modules = append(resp.Modules, m.Address())
	}
	return resp, nil
}

// ─── Identities ──────────────────────────────────────────────────────────

func (s *ComplianceService) RegisterUsers(ctx context.Context, caller, asset common.Address, req types.RegisterUsersRequest) (types.RegisterUsersResponse, error) {
	a, err := s.factory.LoadAsset(ctx, asset)
	if err != nil {
		return types.RegisterUsersResponse{}, err
	}
	if len(req.Identities) == 0 {
		return types.RegisterUsersResponse{}, fmt.Errorf("%w: identities are required", ErrInvalidRequest)
	}
	if err := s.require(caller, a, authz.ObjectIdentity, "register"); err != nil {
		return types.RegisterUsersResponse{}, err
	}

	n, err := a.Identities.RegisterUsers(ctx, req.Identities)
	if err != nil {
		return types.RegisterUsersResponse{}, err
	}
	total, err := a.Identities.TotalUsers(ctx)
	if err != nil {
		return types.RegisterUsersResponse{}, err
	}
	return types.RegisterUsersResponse{OK: true, Registered: n, TotalUsers: total}, nil
}

func (s *ComplianceService) TotalUsers(ctx context.Context, asset common.Address) (types.TotalUsersResponse, error) {
	a, err := s.factory.LoadAsset(ctx, asset)
	if err != nil {
		return types.TotalUsersResponse{}, err
	}
	total, err := a.Identities.TotalUsers(ctx)
	if err != nil {
		return types.TotalUsersResponse{}, err
	}
	return types.TotalUsersResponse{TotalUsers: total}, nil
}

// ─── Ledger ──────────────────────────────────────────────────────────────

func (s *ComplianceService) Mint(ctx context.Context, caller, asset common.Address, req types.LedgerRequest) (types.LedgerResponse, error) {
	a, err := s.factory.LoadAsset(ctx, asset)
	if err != nil {
		return types.LedgerResponse{}, err
	}
	if err := s.require(caller, a, authz.ObjectLedger, "mint"); err != nil {
		return types.LedgerResponse{}, err
	}
	if err := a.Ledger.Mint(ctx, req.To, req.Amount); err != nil {
		return types.LedgerResponse{}, err
	}
	return s.ledgerResponse(ctx, a)
}

// Transfer moves caller's own balance, or anyone's when caller holds the
// ledger transfer permission.
func (s *ComplianceService) Transfer(ctx context.Context, caller, asset common.Address, req types.LedgerRequest) (types.LedgerResponse, error) {
	a, err := s.factory.LoadAsset(ctx, asset)
	if err != nil {
		return types.LedgerResponse{}, err
	}
	if caller != req.From {
		if err := s.require(caller, a, authz.ObjectLedger, "transfer"); err != nil {
			return types.LedgerResponse{}, err
		}
	}
	if err := a.Ledger.Transfer(ctx, req.From, req.To, req.Amount); err != nil {
		return types.LedgerResponse{}, err
	}
	return s.ledgerResponse(ctx, a)
}

func (s *ComplianceService) Burn(ctx context.Context, caller, asset common.Address, req types.LedgerRequest) (types.LedgerResponse, error) {
	a, err := s.factory.LoadAsset(ctx, asset)
	if err != nil {
		return types.LedgerResponse{}, err
	}
	if err := s.require(caller, a, authz.ObjectLedger, "burn"); err != nil {
		return types.LedgerResponse{}, err
	}
	if err := a.Ledger.Burn(ctx, req.From, req.Amount); err != nil {
		return types.LedgerResponse{}, err
	}
	return s.ledgerResponse(ctx, a)
}

func (s *ComplianceService) ledgerResponse(ctx context.Context, a *factory.Asset) (types.LedgerResponse, error) {
	supply, err := a.Ledger.TotalSupply(ctx)
	if err != nil {
		return types.LedgerResponse{}, err
	}
	return types.LedgerResponse{OK: true, Asset: a.Bundle.Asset, TotalSupply: supply, ServerTime: serverTime()}, nil
}

func (s *ComplianceService) Balance(ctx context.Context, asset, party common.Address) (types.BalanceResponse, error) {
	a, err := s.factory.LoadAsset(ctx, asset)
	if err != nil {
		return types.BalanceResponse{}, err
	}
	bal, err := a.Ledger.BalanceOf(ctx, party)
	if err != nil {
		return types.BalanceResponse{}, err
	}
	return types.BalanceResponse{Asset: asset, Party: party, Balance: bal}, nil
}
