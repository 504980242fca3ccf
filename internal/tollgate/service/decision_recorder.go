package service

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/tollgate-labs/tollgate/server/internal/tollgate/compliance"
	"github.com/tollgate-labs/tollgate/server/internal/tollgate/store"
)

// DecisionRecorder writes evaluate verdicts to the audit log. Its Record
// method is handed to the factory so ledger-driven verdicts are logged the
// same way as direct evaluate calls.
type DecisionRecorder struct {
	events store.DecisionEventStore
	logger *slog.Logger
	now    func() time.Time
}

func NewDecisionRecorder(events store.DecisionEventStore, logger *slog.Logger) *DecisionRecorder {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &DecisionRecorder{events: events, logger: logger, now: time.Now}
}

// Record persists one verdict. Errors are logged and not returned: a failed
// audit write must not change the outcome of the check it describes.
func (r *DecisionRecorder) Record(ctx context.Context, registry common.Address, t compliance.Transfer, v compliance.Verdict) {
	rec := store.DecisionEventRecord{
		ID:         uuid.New(),
		Registry:   registry,
		From:       t.From,
		To:         t.To,
		Amount:     t.Amount,
		Operation:  string(t.Operation()),
		Allowed:    v.Allowed,
		RejectedBy: v.Module,
		Reason:     v.Reason,
		DecidedAt:  r.now().UTC(),
	}
	if err := r.events.RecordEvent(ctx, rec); err != nil {
		r.logger.Error("record decision event", "registry", registry.Hex(), "error", err)
	}
}
