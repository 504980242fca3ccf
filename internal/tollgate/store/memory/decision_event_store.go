package memory

import (
	"context"
	"sync"
	"time"

	"github.com/tollgate-labs/tollgate/server/internal/tollgate/store"
)

// DecisionEventStore is an in-memory append-only log of evaluate verdicts.
// It is intended for use in tests and dev environments.
type DecisionEventStore struct {
	mu     sync.Mutex
	events []store.DecisionEventRecord
}

func NewDecisionEventStore() *DecisionEventStore {
	return &DecisionEventStore{}
}

func (s *DecisionEventStore) RecordEvent(_ context.Context, rec store.DecisionEventRecord) error {
	if rec.DecidedAt.IsZero() {
		rec.DecidedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, rec)
	return nil
}

func (s *DecisionEventStore) PruneOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.events[:0]
	var deleted int64
	for _, ev := range s.events {
		if ev.DecidedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, ev)
	}
	s.events = kept
	return deleted, nil
}

// Events returns a copy of all recorded events.  Test-only helper.
func (s *DecisionEventStore) Events() []store.DecisionEventRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.DecisionEventRecord, len(s.events))
	copy(out, s.events)
	return out
}
