package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	dbpkg "github.com/tollgate-labs/tollgate/server/internal/db"
	"github.com/tollgate-labs/tollgate/server/internal/tollgate/store"
	"github.com/tollgate-labs/tollgate/server/internal/tollgate/types"
)

type BundleStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewBundleStore(db *sql.DB, writer *dbpkg.Worker) *BundleStore {
	return &BundleStore{db: db, writer: writer}
}

const bundleColumns = `asset, identity_registry, compliance, balance_cap_module, allow_list_module,
  supply_cap_module, time_window_module, conditional_transfer_module, owner, request_json, created_at_ms`

func (s *BundleStore) SaveBundle(ctx context.Context, b types.AssetBundle) error {
	req, err := json.Marshal(b.Request)
	if err != nil {
		return fmt.Errorf("encode bundle request: %w", err)
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
INSERT INTO asset_bundles(`+bundleColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
			hexAddr(b.Asset), hexAddr(b.IdentityRegistry), hexAddr(b.Compliance),
			hexAddr(b.BalanceCapModule), hexAddr(b.AllowListModule), hexAddr(b.SupplyCapModule),
			hexAddr(b.TimeWindowModule), hexAddr(b.ConditionalTransferModule),
			hexAddr(b.Owner), string(req), b.CreatedAt.UTC().UnixMilli(),
		)
		if err != nil {
			if strings.Contains(err.Error(), "UNIQUE constraint failed") {
				return fmt.Errorf("bundle %s: %w", b.Asset.Hex(), store.ErrAlreadyExists)
			}
			return fmt.Errorf("save bundle: %w", err)
		}
		return nil
	})
}

func (s *BundleStore) GetBundle(ctx context.Context, asset common.Address) (types.AssetBundle, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT `+bundleColumns+` FROM asset_bundles WHERE asset = ?;
`, hexAddr(asset))
	b, err := scanBundle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.AssetBundle{}, store.ErrNotFound
	}
	return b, err
}

// ListBundles returns bundles in creation order.
func (s *BundleStore) ListBundles(ctx context.Context) ([]types.AssetBundle, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+bundleColumns+` FROM asset_bundles ORDER BY created_at_ms, asset;
`)
	if err != nil {
		return nil, fmt.Errorf("list bundles: %w", err)
	}
	defer rows.Close()

	var out []types.AssetBundle
	for rows.Next() {
		b, err := scanBundle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBundle(r rowScanner) (types.AssetBundle, error) {
	var (
		asset, idReg, comp, balance, allow, supply, window, cond, owner string
		reqJSON                                                         string
		createdMs                                                       int64
	)
	if err := r.Scan(&asset, &idReg, &comp, &balance, &allow, &supply, &window, &cond, &owner, &reqJSON, &createdMs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.AssetBundle{}, err
		}
		return types.AssetBundle{}, fmt.Errorf("scan bundle: %w", err)
	}

	b := types.AssetBundle{
		Asset:                     common.HexToAddress(asset),
		IdentityRegistry:          common.HexToAddress(idReg),
		Compliance:                common.HexToAddress(comp),
		BalanceCapModule:          common.HexToAddress(balance),
		AllowListModule:           common.HexToAddress(allow),
		SupplyCapModule:           common.HexToAddress(supply),
		TimeWindowModule:          common.HexToAddress(window),
		ConditionalTransferModule: common.HexToAddress(cond),
		Owner:                     common.HexToAddress(owner),
		CreatedAt:                 time.UnixMilli(createdMs).UTC(),
	}
	if err := json.Unmarshal([]byte(reqJSON), &b.Request); err != nil {
		return types.AssetBundle{}, fmt.Errorf("decode bundle request: %w", err)
	}
	return b, nil
}
