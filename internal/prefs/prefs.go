// Package prefs persists user preferences as a partial overlay on the
// defaults, so new settings pick up their default value for existing
// installs.
package prefs

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/stalehq/staleness/internal/freshness"
	"github.com/stalehq/staleness/internal/kvstore"
)

const stateKey = "preferences"

// Manager stores preferences in the key-value store.
type Manager struct {
	kv     kvstore.Store
	logger *zap.Logger
}

// New builds a Manager.
func New(kv kvstore.Store, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{kv: kv, logger: logger}
}

// Get returns the stored preferences merged over the defaults. Missing or
// corrupt state yields pure defaults.
func (m *Manager) Get(ctx context.Context) (freshness.Preferences, error) {
	prefs := freshness.DefaultPreferences()

	values, err := m.kv.Get(ctx, stateKey)
	if err != nil {
		return prefs, fmt.Errorf("load preferences: %w", err)
	}
	raw, ok := values[stateKey]
	if !ok {
		return prefs, nil
	}
	if err := json.Unmarshal(raw, &prefs); err != nil {
		m.logger.Warn("corrupt preferences, using defaults", zap.Error(err))
		return freshness.DefaultPreferences(), nil
	}
	return normalize(prefs), nil
}

// Set applies a partial patch over the current preferences and persists
// the merged result. Only keys present in the patch change.
func (m *Manager) Set(ctx context.Context, patch map[string]json.RawMessage) (freshness.Preferences, error) {
	current, err := m.Get(ctx)
	if err != nil {
		return freshness.Preferences{}, err
	}

	merged, err := json.Marshal(current)
	if err != nil {
		return freshness.Preferences{}, fmt.Errorf("encode preferences: %w", err)
	}
	var asMap map[string]json.RawMessage
	if err := json.Unmarshal(merged, &asMap); err != nil {
		return freshness.Preferences{}, fmt.Errorf("merge preferences: %w", err)
	}
	for key, value := range patch {
		asMap[key] = value
	}
	remerged, err := json.Marshal(asMap)
	if err != nil {
		return freshness.Preferences{}, fmt.Errorf("merge preferences: %w", err)
	}

	var next freshness.Preferences
	if err := json.Unmarshal(remerged, &next); err != nil {
		return freshness.Preferences{}, fmt.Errorf("invalid preference patch: %w", err)
	}
	next = normalize(next)

	raw, err := json.Marshal(next)
	if err != nil {
		return freshness.Preferences{}, fmt.Errorf("encode preferences: %w", err)
	}
	if err := m.kv.Set(ctx, map[string][]byte{stateKey: raw}); err != nil {
		return freshness.Preferences{}, fmt.Errorf("save preferences: %w", err)
	}
	return next, nil
}

// normalize clamps values a patch could push out of range.
func normalize(p freshness.Preferences) freshness.Preferences {
	defaults := freshness.DefaultPreferences()
	if p.Thresholds.Green <= 0 || p.Thresholds.Yellow <= p.Thresholds.Green ||
		p.Thresholds.Orange <= p.Thresholds.Yellow {
		p.Thresholds = defaults.Thresholds
	}
	if p.BadgeOpacity <= 0 || p.BadgeOpacity > 1 {
		p.BadgeOpacity = defaults.BadgeOpacity
	}
	switch p.BadgePosition {
	case "top-left", "top-right", "bottom-left", "bottom-right":
	default:
		p.BadgePosition = defaults.BadgePosition
	}
	return p
}
