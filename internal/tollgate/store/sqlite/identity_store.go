package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	dbpkg "github.com/tollgate-labs/tollgate/server/internal/db"
)

type IdentityStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewIdentityStore(db *sql.DB, writer *dbpkg.Worker) *IdentityStore {
	return &IdentityStore{db: db, writer: writer}
}

// Register inserts identities not yet present and reports how many were new.
func (s *IdentityStore) Register(ctx context.Context, registry common.Address, identities []common.Address) (int, error) {
	nowMs := time.Now().UTC().UnixMilli()
	added := 0
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		added = 0
		for _, id := range identities {
			res, err := tx.ExecContext(ctx, `
INSERT OR IGNORE INTO identities(registry, identity, registered_at_ms) VALUES (?, ?, ?);
`, hexAddr(registry), hexAddr(id), nowMs)
			if err != nil {
				return fmt.Errorf("register %s: %w", id.Hex(), err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			added += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

func (s *IdentityStore) IsRegistered(ctx context.Context, registry, identity common.Address) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM identities WHERE registry = ? AND identity = ?;
`, hexAddr(registry), hexAddr(identity)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("is registered: %w", err)
	}
	return n > 0, nil
}

func (s *IdentityStore) Count(ctx context.Context, registry common.Address) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM identities WHERE registry = ?;
`, hexAddr(registry)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count identities: %w", err)
	}
	return n, nil
}
