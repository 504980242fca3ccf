package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	dbpkg "github.com/tollgate-labs/tollgate/server/internal/db"
)

type BindingStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewBindingStore(db *sql.DB, writer *dbpkg.Worker) *BindingStore {
	return &BindingStore{db: db, writer: writer}
}

func (s *BindingStore) Bind(ctx context.Context, registry, module common.Address) error {
	nowMs := time.Now().UTC().UnixMilli()
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT OR IGNORE INTO module_bindings(registry, module, bound_at_ms) VALUES (?, ?, ?);
`, hexAddr(registry), hexAddr(module), nowMs); err != nil {
			return fmt.Errorf("bind %s: %w", module.Hex(), err)
		}
		return nil
	})
}

func (s *BindingStore) Unbind(ctx context.Context, registry, module common.Address) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
DELETE FROM module_bindings WHERE registry = ? AND module = ?;
`, hexAddr(registry), hexAddr(module)); err != nil {
			return fmt.Errorf("unbind %s: %w", module.Hex(), err)
		}
		return nil
	})
}

func (s *BindingStore) IsBound(ctx context.Context, registry, module common.Address) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM module_bindings WHERE registry = ? AND module = ?;
`, hexAddr(registry), hexAddr(module)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("is bound: %w", err)
	}
	return n > 0, nil
}

// Modules returns the bound modules in bind order.
func (s *BindingStore) Modules(ctx context.Context, registry common.Address) ([]common.Address, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT module FROM module_bindings WHERE registry = ? ORDER BY id;
`, hexAddr(registry))
	if err != nil {
		return nil, fmt.Errorf("list bindings: %w", err)
	}
	defer rows.Close()

	var out []common.Address
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, fmt.Errorf("scan binding: %w", err)
		}
		out = append(out, common.HexToAddress(m))
	}
	return out, rows.Err()
}
