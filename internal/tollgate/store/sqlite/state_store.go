package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	dbpkg "github.com/tollgate-labs/tollgate/server/internal/db"
	"github.com/tollgate-labs/tollgate/server/internal/tollgate/store"
)

// hexAddr is the canonical column form of an address.
func hexAddr(a common.Address) string {
	return strings.ToLower(a.Hex())
}

type StateStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewStateStore(db *sql.DB, writer *dbpkg.Worker) *StateStore {
	return &StateStore{db: db, writer: writer}
}

func (s *StateStore) Get(ctx context.Context, key store.StateKey) ([]byte, bool, error) {
	var v []byte
	err := s.db.QueryRowContext(ctx, `
SELECT value FROM module_state WHERE module = ? AND tenant = ? AND slot = ?;
`, hexAddr(key.Module), hexAddr(key.Tenant), key.Slot).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("state get %s: %w", key.Slot, err)
	}
	return v, true, nil
}

// Apply writes the batch in one transaction.
func (s *StateStore) Apply(ctx context.Context, writes []store.StateWrite) error {
	if len(writes) == 0 {
		return nil
	}
	nowMs := time.Now().UTC().UnixMilli()

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		for _, w := range writes {
			module, tenant := hexAddr(w.Key.Module), hexAddr(w.Key.Tenant)
			if w.Value == nil {
				if _, err := tx.ExecContext(ctx, `
DELETE FROM module_state WHERE module = ? AND tenant = ? AND slot = ?;
`, module, tenant, w.Key.Slot); err != nil {
					return fmt.Errorf("state delete %s: %w", w.Key.Slot, err)
				}
				continue
			}
			if _, err := tx.ExecContext(ctx, `
INSERT INTO module_state(module, tenant, slot, value, updated_at_ms)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(module, tenant, slot) DO UPDATE SET
  value = excluded.value,
  updated_at_ms = excluded.updated_at_ms;
`, module, tenant, w.Key.Slot, w.Value, nowMs); err != nil {
				return fmt.Errorf("state put %s: %w", w.Key.Slot, err)
			}
		}
		return nil
	})
}
