package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	dbpkg "github.com/tollgate-labs/tollgate/server/internal/db"
	"github.com/tollgate-labs/tollgate/server/internal/tollgate/store"
)

type DecisionEventStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewDecisionEventStore(db *sql.DB, writer *dbpkg.Worker) *DecisionEventStore {
	return &DecisionEventStore{db: db, writer: writer}
}

func (s *DecisionEventStore) RecordEvent(ctx context.Context, rec store.DecisionEventRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.DecidedAt.IsZero() {
		rec.DecidedAt = time.Now().UTC()
	}

	var allowed int
	if rec.Allowed {
		allowed = 1
	}
	var rejectedBy any
	if rec.RejectedBy != nil {
		rejectedBy = hexAddr(*rec.RejectedBy)
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO decision_events(
  id, registry, from_addr, to_addr, amount, operation,
  allowed, rejected_by, reason, decided_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
			rec.ID.String(), hexAddr(rec.Registry), hexAddr(rec.From), hexAddr(rec.To),
			rec.Amount.String(), rec.Operation, allowed, rejectedBy, rec.Reason,
			rec.DecidedAt.UTC().UnixMilli(),
		); err != nil {
			return fmt.Errorf("RecordEvent insert: %w", err)
		}
		return nil
	})
}

// PruneOlderThan deletes decision events decided before cutoff.
func (s *DecisionEventStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	cutoffMs := cutoff.UTC().UnixMilli()
	var deleted int64

	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM decision_events WHERE decided_at_ms < ?;`, cutoffMs)
		if err != nil {
			return fmt.Errorf("PruneOlderThan: %w", err)
		}
		deleted, err = res.RowsAffected()
		return err
	})
	return deleted, err
}
