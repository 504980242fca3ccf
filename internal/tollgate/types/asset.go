package types

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TimeWindowParams configures the rolling transfer cap at creation time.
type TimeWindowParams struct {
	DurationSeconds uint64 `json:"duration_seconds" yaml:"duration_seconds"`
	Limit           Amount `json:"limit" yaml:"limit"`
}

// ComplianceParams mirrors the factory's complianceParams tuple.
// SupplyLimit feeds the aggregate supply cap and MaxSupply the
// per-identity balance cap.
type ComplianceParams struct {
	MaxSupply                  Amount           `json:"max_supply" yaml:"max_supply"`
	SupplyLimit                Amount           `json:"supply_limit" yaml:"supply_limit"`
	ConditionalTransferEnabled bool             `json:"conditional_transfer_enabled" yaml:"conditional_transfer_enabled"`
	TransferRestrictionEnabled bool             `json:"transfer_restriction_enabled" yaml:"transfer_restriction_enabled"`
	TimeWindow                 TimeWindowParams `json:"time_window" yaml:"time_window"`
}

type CreateAssetRequest struct {
	Name          string           `json:"name" yaml:"name"`
	Symbol        string           `json:"symbol" yaml:"symbol"`
	Precision     uint8            `json:"precision" yaml:"precision"`
	InitialSupply Amount           `json:"initial_supply" yaml:"initial_supply"`
	Compliance    ComplianceParams `json:"compliance" yaml:"compliance"`
}

// AssetBundle is the immutable record written once per created asset.
// Address fields are listed in their documented slot order.
type AssetBundle struct {
	Asset                     common.Address `json:"asset"`
	IdentityRegistry          common.Address `json:"identity_registry"`
	Compliance                common.Address `json:"compliance"`
	BalanceCapModule          common.Address `json:"balance_cap_module"`
	AllowListModule           common.Address `json:"allow_list_module"`
	SupplyCapModule           common.Address `json:"supply_cap_module"`
	TimeWindowModule          common.Address `json:"time_window_module"`
	ConditionalTransferModule common.Address `json:"conditional_transfer_module"`

	Owner     common.Address     `json:"owner"`
	Request   CreateAssetRequest `json:"request"`
	CreatedAt time.Time          `json:"created_at"`
}

// Slots returns the bundle addresses in slot order.
func (b AssetBundle) Slots() [8]common.Address {
	return [8]common.Address{
		b.Asset,
		b.IdentityRegistry,
		b.Compliance,
		b.BalanceCapModule,
		b.AllowListModule,
		b.SupplyCapModule,
		b.TimeWindowModule,
		b.ConditionalTransferModule,
	}
}

type RegisterUsersRequest struct {
	Identities []common.Address `json:"identities"`
}

type RegisterUsersResponse struct {
	OK         bool  `json:"ok"`
	Registered int   `json:"registered"`
	TotalUsers int64 `json:"total_users"`
}

type TotalUsersResponse struct {
	TotalUsers int64 `json:"total_users"`
}

// LedgerRequest drives a mint, transfer or burn. Mint ignores From and
// burn ignores To.
type LedgerRequest struct {
	From   common.Address `json:"from"`
	To     common.Address `json:"to"`
	Amount Amount         `json:"amount"`
}

type LedgerResponse struct {
	OK          bool           `json:"ok"`
	Asset       common.Address `json:"asset"`
	TotalSupply Amount         `json:"total_supply"`
	ServerTime  string         `json:"server_time"`
}

type BalanceResponse struct {
	Asset   common.Address `json:"asset"`
	Party   common.Address `json:"party"`
	Balance Amount         `json:"balance"`
}
