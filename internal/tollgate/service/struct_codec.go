package service

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tollgate-labs/tollgate/server/internal/tollgate/compliance"
	"github.com/tollgate-labs/tollgate/server/internal/tollgate/types"
)

// Struct forms of the evaluate and relay payloads, shared by the protobuf
// HTTP content type and the gRPC service.

// ── Evaluate ─────────────────────────────────────────────────────────────────

// EvaluateRequestFromStruct reads {from, to, amount, total_supply}. Missing
// addresses are the zero address; missing amounts are zero.
func EvaluateRequestFromStruct(s *structpb.Struct) (types.EvaluateRequest, error) {
	f := s.GetFields()
	var req types.EvaluateRequest
	var err error
	if req.From, err = addressField(f, "from"); err != nil {
		return req, err
	}
	if req.To, err = addressField(f, "to"); err != nil {
		return req, err
	}
	if req.Amount, err = amountField(f, "amount"); err != nil {
		return req, err
	}
	if req.TotalSupply, err = amountField(f, "total_supply"); err != nil {
		return req, err
	}
	return req, nil
}

func EvaluateResponseToStruct(r types.EvaluateResponse) (*structpb.Struct, error) {
	m := map[string]any{
		"ok":          r.OK,
		"allowed":     r.Allowed,
		"registry":    r.Registry.Hex(),
		"server_time": r.ServerTime,
	}
	if r.RejectedBy != nil {
		m["rejected_by"] = r.RejectedBy.Hex()
		m["reason"] = r.Reason
	}
	return structpb.NewStruct(m)
}

// ── Relay ────────────────────────────────────────────────────────────────────

// RelayRequestFromStruct reads {module, method, args}.
func RelayRequestFromStruct(s *structpb.Struct) (types.RelayRequest, error) {
	f := s.GetFields()
	module, err := addressField(f, "module")
	if err != nil {
		return types.RelayRequest{}, err
	}
	req := types.RelayRequest{
		Module: module,
		Method: f["method"].GetStringValue(),
		Args:   f["args"].GetStructValue().AsMap(),
	}
	return req, nil
}

func RelayResponseToStruct(r types.RelayResponse) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"ok":          r.OK,
		"registry":    r.Registry.Hex(),
		"module":      r.Module.Hex(),
		"method":      r.Method,
		"server_time": r.ServerTime,
	})
}

func addressField(f map[string]*structpb.Value, name string) (common.Address, error) {
	v, ok := f[name]
	if !ok {
		return common.Address{}, nil
	}
	s := v.GetStringValue()
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %s is not an address", compliance.ErrConfiguration, name)
	}
	return common.HexToAddress(s), nil
}

func amountField(f map[string]*structpb.Value, name string) (types.Amount, error) {
	v, ok := f[name]
	if !ok {
		return types.Amount{}, nil
	}
	a, err := compliance.AmountArg(v.AsInterface())
	if err != nil {
		return types.Amount{}, fmt.Errorf("%w: %s: %v", compliance.ErrConfiguration, name, err)
	}
	return a, nil
}
