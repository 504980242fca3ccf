package types

import "github.com/ethereum/go-ethereum/common"

// EvaluateRequest asks a compliance registry whether a balance change may
// proceed. TotalSupply is the asset's supply before the operation; the
// operation kind is derived from the zero address on either side.
type EvaluateRequest struct {
	From        common.Address `json:"from"`
	To          common.Address `json:"to"`
	Amount      Amount         `json:"amount"`
	TotalSupply Amount         `json:"total_supply"`
}

type EvaluateResponse struct {
	OK         bool            `json:"ok"`
	Allowed    bool            `json:"allowed"`
	Registry   common.Address  `json:"registry"`
	RejectedBy *common.Address `json:"rejected_by,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	ServerTime string          `json:"server_time"`
}

// RelayRequest carries a configuration call for one bound module. Call is
// the protobuf-encoded command; when it is empty, Method and Args are
// encoded server-side instead.
type RelayRequest struct {
	Module common.Address `json:"module"`
	Call   []byte         `json:"call,omitempty"`
	Method string         `json:"method,omitempty"`
	Args   map[string]any `json:"args,omitempty"`
}

type RelayResponse struct {
	OK         bool           `json:"ok"`
	Registry   common.Address `json:"registry"`
	Module     common.Address `json:"module"`
	Method     string         `json:"method"`
	ServerTime string         `json:"server_time"`
}

type BindRequest struct {
	Module common.Address `json:"module"`
}

type BindResponse struct {
	OK       bool             `json:"ok"`
	Registry common.Address   `json:"registry"`
	Modules  []common.Address `json:"modules"`
}
