package store

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/tollgate-labs/tollgate/server/internal/tollgate/types"
)

// DecisionEventRecord captures a single evaluate verdict for the audit log.
// RejectedBy is nil when the transfer was allowed.
type DecisionEventRecord struct {
	ID         uuid.UUID
	Registry   common.Address
	From       common.Address
	To         common.Address
	Amount     types.Amount
	Operation  string
	Allowed    bool
	RejectedBy *common.Address
	Reason     string
	DecidedAt  time.Time
}

// DecisionEventStore persists verdicts as an append-only audit log.
type DecisionEventStore interface {
	RecordEvent(ctx context.Context, rec DecisionEventRecord) error
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
