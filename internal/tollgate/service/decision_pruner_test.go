package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tollgate-labs/tollgate/server/internal/tollgate/service"
	"github.com/tollgate-labs/tollgate/server/internal/tollgate/store"
	"github.com/tollgate-labs/tollgate/server/internal/tollgate/store/memory"
)

func TestDecisionPruner_DisabledWhenRetentionZero(t *testing.T) {
	pruner := service.NewDecisionPruner(memory.NewDecisionEventStore(), service.PrunerConfig{
		RetentionDays: 0,
		IntervalHours: 1,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pruner.Start(ctx)
	pruner.Stop()
}

func TestDecisionPruner_PruneOnce(t *testing.T) {
	events := memory.NewDecisionEventStore()
	ctx := context.Background()

	require.NoError(t, events.RecordEvent(ctx, store.DecisionEventRecord{DecidedAt: time.Now().UTC().AddDate(0, 0, -40)}))
	require.NoError(t, events.RecordEvent(ctx, store.DecisionEventRecord{DecidedAt: time.Now().UTC().AddDate(0, 0, -1)}))

	pruner := service.NewDecisionPruner(events, service.PrunerConfig{RetentionDays: 30}, nil)
	assert.Equal(t, int64(1), pruner.PruneOnce(ctx))
	assert.Len(t, events.Events(), 1)
	assert.Equal(t, int64(0), pruner.PruneOnce(ctx))
}

func TestDecisionPruner_StartPrunesImmediately(t *testing.T) {
	events := memory.NewDecisionEventStore()
	ctx := context.Background()
	require.NoError(t, events.RecordEvent(ctx, store.DecisionEventRecord{DecidedAt: time.Now().UTC().AddDate(0, 0, -90)}))

	pruner := service.NewDecisionPruner(events, service.PrunerConfig{RetentionDays: 30, IntervalHours: 1}, nil)
	pruner.Start(ctx)
	defer pruner.Stop()

	assert.Eventually(t, func() bool { return len(events.Events()) == 0 }, time.Second, 10*time.Millisecond)
}

func TestDecisionPruner_StopIsIdempotent(t *testing.T) {
	pruner := service.NewDecisionPruner(memory.NewDecisionEventStore(), service.PrunerConfig{
		RetentionDays: 30,
		IntervalHours: 1,
	}, nil)

	pruner.Start(context.Background())
	pruner.Stop()
	pruner.Stop()
}

func TestDecisionPruner_StopsOnContextCancel(t *testing.T) {
	pruner := service.NewDecisionPruner(memory.NewDecisionEventStore(), service.PrunerConfig{
		RetentionDays: 30,
		IntervalHours: 1,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	pruner.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		pruner.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pruner did not stop after context cancel")
	}
}
