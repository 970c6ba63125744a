// Package quota enforces the free-tier daily lookup allowance.
package quota

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/stalehq/staleness/internal/freshness"
	"github.com/stalehq/staleness/internal/kvstore"
	"github.com/stalehq/staleness/internal/metrics"
)

const stateKey = "quota"

// DefaultDailyLimit is the free-tier allowance per UTC day.
const DefaultDailyLimit = 10

// Decision is the outcome of a quota check.
type Decision struct {
	Allowed bool                 `json:"allowed"`
	State   freshness.QuotaState `json:"state"`
}

// Manager owns the persisted daily counter. The counter resets lazily:
// the first read on a new UTC day zeroes it, no timer required. A
// scheduled reset still runs so an idle day's state does not go stale
// for observers.
type Manager struct {
	kv     kvstore.Store
	clock  freshness.Clock
	limit  int
	logger *zap.Logger
}

// New builds a Manager with the given daily limit.
func New(kv kvstore.Store, clock freshness.Clock, limit int, logger *zap.Logger) *Manager {
	if limit <= 0 {
		limit = DefaultDailyLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{kv: kv, clock: clock, limit: limit, logger: logger}
}

// State returns the current counter, rolling it over first if the stored
// reset day is in the past.
func (m *Manager) State(ctx context.Context) (freshness.QuotaState, error) {
	today := freshness.DayString(m.clock.Now())

	state, found, err := m.load(ctx)
	if err != nil {
		return freshness.QuotaState{}, err
	}
	if !found || state.ResetDate != today {
		state = freshness.QuotaState{Count: 0, DailyLimit: m.limit, ResetDate: today}
		if err := m.save(ctx, state); err != nil {
			return freshness.QuotaState{}, err
		}
	}
	state.DailyLimit = m.limit
	return state, nil
}

// Check reports whether another lookup is allowed. Paid users bypass the
// counter entirely.
func (m *Manager) Check(ctx context.Context, isPaid bool) (Decision, error) {
	state, err := m.State(ctx)
	if err != nil {
		return Decision{}, err
	}
	allowed := isPaid || state.Count < state.DailyLimit
	metrics.ObserveQuotaDecision(allowed)
	return Decision{Allowed: allowed, State: state}, nil
}

// Increment bumps the counter and returns the new state. It does not
// enforce the limit; call Check first.
func (m *Manager) Increment(ctx context.Context) (freshness.QuotaState, error) {
	state, err := m.State(ctx)
	if err != nil {
		return freshness.QuotaState{}, err
	}
	state.Count++
	if err := m.save(ctx, state); err != nil {
		return freshness.QuotaState{}, err
	}
	return state, nil
}

// Reset zeroes the counter for the current day.
func (m *Manager) Reset(ctx context.Context) (freshness.QuotaState, error) {
	state := freshness.QuotaState{
		Count:      0,
		DailyLimit: m.limit,
		ResetDate:  freshness.DayString(m.clock.Now()),
	}
	if err := m.save(ctx, state); err != nil {
		return freshness.QuotaState{}, err
	}
	m.logger.Info("quota reset", zap.String("day", state.ResetDate))
	return state, nil
}

func (m *Manager) load(ctx context.Context) (freshness.QuotaState, bool, error) {
	values, err := m.kv.Get(ctx, stateKey)
	if err != nil {
		return freshness.QuotaState{}, false, fmt.Errorf("load quota: %w", err)
	}
	raw, ok := values[stateKey]
	if !ok {
		return freshness.QuotaState{}, false, nil
	}
	var state freshness.QuotaState
	if err := json.Unmarshal(raw, &state); err != nil {
		// Corrupt state starts the day over rather than wedging lookups.
		m.logger.Warn("corrupt quota state, resetting", zap.Error(err))
		return freshness.QuotaState{}, false, nil
	}
	return state, true, nil
}

func (m *Manager) save(ctx context.Context, state freshness.QuotaState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode quota: %w", err)
	}
	if err := m.kv.Set(ctx, map[string][]byte{stateKey: raw}); err != nil {
		return fmt.Errorf("save quota: %w", err)
	}
	return nil
}
