// Package cache implements the URL-keyed snapshot cache with independent
// positive and negative TTLs and hard size/age bounds.
package cache

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/stalehq/staleness/internal/freshness"
	"github.com/stalehq/staleness/internal/kvstore"
	"github.com/stalehq/staleness/internal/metrics"
)

const keyPrefix = "cache/"

// Config bounds cache growth and entry lifetimes.
type Config struct {
	PositiveTTL time.Duration
	NegativeTTL time.Duration
	MaxAge      time.Duration
	MaxEntries  int
}

// DefaultConfig returns the stock TTLs and bounds.
func DefaultConfig() Config {
	return Config{
		PositiveTTL: 24 * time.Hour,
		NegativeTTL: 6 * time.Hour,
		MaxAge:      7 * 24 * time.Hour,
		MaxEntries:  5000,
	}
}

// Store reads and writes immutable CacheEntry snapshots through the
// persisted key-value store. Concurrent writers may race on a key;
// last-write-wins is fine because entries are idempotent snapshots.
type Store struct {
	kv     kvstore.Store
	clock  freshness.Clock
	cfg    Config
	logger *zap.Logger
}

// New builds a Store.
func New(kv kvstore.Store, clock freshness.Clock, cfg Config, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PositiveTTL <= 0 {
		cfg.PositiveTTL = DefaultConfig().PositiveTTL
	}
	if cfg.NegativeTTL <= 0 {
		cfg.NegativeTTL = DefaultConfig().NegativeTTL
	}
	return &Store{kv: kv, clock: clock, cfg: cfg, logger: logger}
}

// Get returns the entry for a URL, or nil when absent, expired, or the
// store is unavailable. Expired entries are evicted on read.
func (s *Store) Get(ctx context.Context, rawURL string) *freshness.CacheEntry {
	normalized, err := freshness.NormalizeURL(rawURL)
	if err != nil {
		return nil
	}
	key := keyPrefix + normalized

	values, err := s.kv.Get(ctx, key)
	if err != nil {
		s.logger.Warn("cache read failed", zap.String("url", normalized), zap.Error(err))
		metrics.ObserveCacheLookup("miss")
		return nil
	}
	raw, ok := values[key]
	if !ok {
		metrics.ObserveCacheLookup("miss")
		return nil
	}

	var entry freshness.CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		s.logger.Warn("cache entry corrupt", zap.String("url", normalized), zap.Error(err))
		_ = s.kv.Delete(ctx, key)
		metrics.ObserveCacheLookup("miss")
		return nil
	}

	if s.clock.Now().Sub(entry.CachedAt) > s.ttlFor(entry) {
		if err := s.kv.Delete(ctx, key); err != nil {
			s.logger.Warn("stale entry eviction failed", zap.String("url", normalized), zap.Error(err))
		}
		metrics.ObserveCacheLookup("stale")
		metrics.ObserveCacheEviction("expired", 1)
		return nil
	}

	if entry.IsNegative() {
		metrics.ObserveCacheLookup("negative_hit")
	} else {
		metrics.ObserveCacheLookup("hit")
	}
	return &entry
}

// Set overwrites the entry for a URL wholesale, stamping CachedAt.
func (s *Store) Set(ctx context.Context, rawURL string, entry freshness.CacheEntry) error {
	normalized, err := freshness.NormalizeURL(rawURL)
	if err != nil {
		return fmt.Errorf("normalize url: %w", err)
	}
	if !entry.IsNegative() && !entry.HasDate() {
		return fmt.Errorf("positive entry for %s carries no date", normalized)
	}

	entry.URL = normalized
	entry.CachedAt = s.clock.Now()

	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	if err := s.kv.Set(ctx, map[string][]byte{keyPrefix + normalized: raw}); err != nil {
		return fmt.Errorf("write entry: %w", err)
	}
	return nil
}

// Sweep deletes entries older than MaxAge regardless of TTL, then evicts
// oldest-by-write-time entries until the count is back under MaxEntries.
// It returns the number of entries removed.
func (s *Store) Sweep(ctx context.Context) int {
	keys, err := s.kv.Keys(ctx, keyPrefix)
	if err != nil {
		s.logger.Warn("cache sweep: listing keys failed", zap.Error(err))
		return 0
	}
	if len(keys) == 0 {
		return 0
	}

	values, err := s.kv.Get(ctx, keys...)
	if err != nil {
		s.logger.Warn("cache sweep: reading entries failed", zap.Error(err))
		return 0
	}

	now := s.clock.Now()
	type aged struct {
		key      string
		cachedAt time.Time
	}
	var (
		tooOld []string
		kept   []aged
	)
	for key, raw := range values {
		var entry freshness.CacheEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			tooOld = append(tooOld, key)
			continue
		}
		if s.cfg.MaxAge > 0 && now.Sub(entry.CachedAt) > s.cfg.MaxAge {
			tooOld = append(tooOld, key)
			continue
		}
		kept = append(kept, aged{key: key, cachedAt: entry.CachedAt})
	}

	removed := 0
	if len(tooOld) > 0 {
		if err := s.kv.Delete(ctx, tooOld...); err != nil {
			s.logger.Warn("cache sweep: age eviction failed", zap.Error(err))
		} else {
			removed += len(tooOld)
			metrics.ObserveCacheEviction("max_age", len(tooOld))
		}
	}

	if s.cfg.MaxEntries > 0 && len(kept) > s.cfg.MaxEntries {
		sort.Slice(kept, func(i, j int) bool {
			return kept[i].cachedAt.Before(kept[j].cachedAt)
		})
		excess := len(kept) - s.cfg.MaxEntries
		oldest := make([]string, 0, excess)
		for _, e := range kept[:excess] {
			oldest = append(oldest, e.key)
		}
		if err := s.kv.Delete(ctx, oldest...); err != nil {
			s.logger.Warn("cache sweep: count eviction failed", zap.Error(err))
		} else {
			removed += excess
			metrics.ObserveCacheEviction("max_entries", excess)
		}
	}

	if removed > 0 {
		s.logger.Info("cache sweep finished",
			zap.Int("removed", removed), zap.Int("remaining", len(keys)-removed))
	}
	return removed
}

func (s *Store) ttlFor(entry freshness.CacheEntry) time.Duration {
	if entry.IsNegative() {
		if entry.NegativeTTL > 0 {
			return entry.NegativeTTL
		}
		return s.cfg.NegativeTTL
	}
	return s.cfg.PositiveTTL
}
