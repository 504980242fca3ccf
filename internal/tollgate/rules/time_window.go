package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tollgate-labs/tollgate/server/internal/tollgate/compliance"
	"github.com/tollgate-labs/tollgate/server/internal/tollgate/types"
)

const (
	windowConfigSlot = "config"
	windowStateSlot  = "window"
)

// MaxWindowSeconds is the longest window SetTimeWindow accepts; longer
// ones would overflow a time.Duration.
const MaxWindowSeconds = uint64(1<<62) / uint64(time.Second)

type windowConfig struct {
	DurationSeconds uint64       `json:"duration_seconds"`
	Limit           types.Amount `json:"limit"`
}

type windowState struct {
	Start int64        `json:"start"`
	Moved types.Amount `json:"moved"`
}

// TimeWindow caps how much may be transferred within a rolling window.
// Unlike the other modules its check does accounting: an accepted transfer
// adds to the amount moved in the current window. Mints and burns are not
// counted.
type TimeWindow struct {
	base
	now func() time.Time
}

type TimeWindowOption func(*TimeWindow)

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) TimeWindowOption {
	return func(m *TimeWindow) { m.now = now }
}

func NewTimeWindow(cfg Config, opts ...TimeWindowOption) *TimeWindow {
	m := &TimeWindow{base: newBase(compliance.KindTimeWindow, cfg), now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetTimeTransferLimits returns the window length and the amount allowed
// per window. Either being zero disables the module.
func (m *TimeWindow) GetTimeTransferLimits(ctx context.Context, tenant common.Address) (time.Duration, types.Amount, error) {
	var cfg windowConfig
	if _, err := m.load(ctx, tenant, windowConfigSlot, &cfg); err != nil {
		return 0, types.Amount{}, err
	}
	return time.Duration(cfg.DurationSeconds) * time.Second, cfg.Limit, nil
}

// Moved returns the window start and the amount moved in it, as last
// recorded.
func (m *TimeWindow) Moved(ctx context.Context, tenant common.Address) (time.Time, types.Amount, error) {
	var w windowState
	found, err := m.load(ctx, tenant, windowStateSlot, &w)
	if err != nil || !found {
		return time.Time{}, types.Amount{}, err
	}
	return time.Unix(w.Start, 0).UTC(), w.Moved, nil
}

func (m *TimeWindow) Check(ctx context.Context, tenant common.Address, t compliance.Transfer) (compliance.Decision, error) {
	if t.Operation() != compliance.OpTransfer {
		return compliance.Allow(), nil
	}
	var cfg windowConfig
	if _, err := m.load(ctx, tenant, windowConfigSlot, &cfg); err != nil {
		return compliance.Decision{}, err
	}
	if cfg.DurationSeconds == 0 || cfg.Limit.IsZero() {
		return compliance.Allow(), nil
	}

	now := m.now().Unix()
	var w windowState
	found, err := m.load(ctx, tenant, windowStateSlot, &w)
	if err != nil {
		return compliance.Decision{}, err
	}
	if !found || now > w.Start+int64(cfg.DurationSeconds) {
		w = windowState{Start: now}
	}

	remaining, ok := cfg.Limit.Sub(w.Moved)
	if !ok {
		return compliance.Decision{}, fmt.Errorf("%w: moved %s exceeds window limit %s",
			compliance.ErrInvariantViolation, w.Moved, cfg.Limit)
	}
	if t.Amount.Cmp(remaining) > 0 {
		return compliance.Reject(fmt.Sprintf("window allows %s more, requested %s", remaining, t.Amount)), nil
	}

	w.Moved = w.Moved.Add(t.Amount)
	write, err := m.put(tenant, windowStateSlot, w)
	if err != nil {
		return compliance.Decision{}, err
	}
	return compliance.Allow(write), nil
}

func (m *TimeWindow) ModuleCheck(ctx context.Context, tenant common.Address, t compliance.Transfer) (bool, error) {
	d, err := m.Check(ctx, tenant, t)
	return m.settle(ctx, d, err)
}

// Handle accepts SetTimeWindow. A new configuration starts a fresh window.
func (m *TimeWindow) Handle(ctx context.Context, call compliance.Call) error {
	if err := m.admit(ctx, call); err != nil {
		return err
	}
	cmd, ok := call.Command.(compliance.SetTimeWindow)
	if !ok {
		return unexpected(m.kind, call.Command)
	}
	if cmd.DurationSeconds > MaxWindowSeconds {
		return fmt.Errorf("%w: window of %d seconds is too long", compliance.ErrConfiguration, cmd.DurationSeconds)
	}
	w, err := m.put(call.Tenant, windowConfigSlot, windowConfig{DurationSeconds: cmd.DurationSeconds, Limit: cmd.Limit})
	if err != nil {
		return err
	}
	return m.apply(ctx, w, m.del(call.Tenant, windowStateSlot))
}

func (m *TimeWindow) Reset(ctx context.Context, tenant common.Address) error {
	return m.apply(ctx, m.del(tenant, windowConfigSlot), m.del(tenant, windowStateSlot))
}
