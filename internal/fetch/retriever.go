package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/stalehq/staleness/internal/cache"
	"github.com/stalehq/staleness/internal/extract"
	"github.com/stalehq/staleness/internal/freshness"
	"github.com/stalehq/staleness/internal/headercache"
	"github.com/stalehq/staleness/internal/metrics"
)

// docFetcher is the slice of Fetcher the retriever needs.
type docFetcher interface {
	Fetch(rawURL string) (Result, error)
}

// Retriever resolves a URL to a cached date entry, fetching a document
// prefix on cache miss. Concurrent misses for the same URL collapse into
// a single fetch whose result every caller shares.
type Retriever struct {
	fetcher  docFetcher
	cache    *cache.Store
	headers  *headercache.Cache
	pipeline *extract.Pipeline
	clock    freshness.Clock
	logger   *zap.Logger
	group    singleflight.Group
}

// NewRetriever builds a Retriever.
func NewRetriever(
	fetcher docFetcher,
	cacheStore *cache.Store,
	headers *headercache.Cache,
	pipeline *extract.Pipeline,
	clock freshness.Clock,
	logger *zap.Logger,
) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{
		fetcher:  fetcher,
		cache:    cacheStore,
		headers:  headers,
		pipeline: pipeline,
		clock:    clock,
		logger:   logger,
	}
}

// FetchDate returns the date entry for a URL, from cache when possible. A
// miss triggers one prefix fetch; a lookup that finds no date, fails, or
// times out is recorded as a negative entry so repeat misses stay cheap
// and fetch trouble never surfaces as a fault. The returned entry may be
// negative; callers check IsNegative.
func (r *Retriever) FetchDate(ctx context.Context, rawURL string) (*freshness.CacheEntry, error) {
	key, err := freshness.NormalizeURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("normalize url: %w", err)
	}

	if entry := r.cache.Get(ctx, key); entry != nil {
		return entry, nil
	}

	// The fetch runs on its own deadline, detached from any one caller's
	// context: its result is shared, so the first caller hanging up must
	// not starve the rest.
	ch := r.group.DoChan(key, func() (any, error) {
		return r.fetchAndStore(key)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			metrics.ObserveDeepFetch("shared", 0)
		}
		entry := res.Val.(freshness.CacheEntry)
		return &entry, nil
	}
}

func (r *Retriever) fetchAndStore(key string) (any, error) {
	start := time.Now()
	result, err := r.fetcher.Fetch(key)
	if err != nil {
		if errors.Is(err, ErrNotHTML) {
			metrics.ObserveDeepFetch("non_html", time.Since(start))
		} else {
			metrics.ObserveDeepFetch("error", time.Since(start))
			r.logger.Warn("fetch failed", zap.String("url", key), zap.Error(err))
		}
		return r.storeNegative(key), nil
	}

	if lastModified := result.Header.Get("Last-Modified"); lastModified != "" && r.headers != nil {
		r.headers.Record(key, lastModified)
	}

	doc, err := extract.NewDocument(key, bytes.NewReader(result.Body), result.Header)
	if err != nil {
		metrics.ObserveDeepFetch("error", time.Since(start))
		r.logger.Warn("document parse failed", zap.String("url", key), zap.Error(err))
		return r.storeNegative(key), nil
	}

	candidate := r.pipeline.Run(doc)
	if candidate == nil || !candidate.HasDate() {
		metrics.ObserveDeepFetch("no_date", time.Since(start))
		return r.storeNegative(key), nil
	}

	entry := freshness.CacheEntry{
		URL:        key,
		Published:  candidate.Published,
		Modified:   candidate.Modified,
		Confidence: candidate.Confidence,
		Source:     candidate.Source,
	}
	if err := r.cache.Set(context.Background(), key, entry); err != nil {
		r.logger.Warn("cache write failed", zap.String("url", key), zap.Error(err))
	}
	metrics.ObserveDeepFetch("found", time.Since(start))
	entry.CachedAt = r.clock.Now()
	return entry, nil
}

func (r *Retriever) storeNegative(key string) freshness.CacheEntry {
	entry := freshness.CacheEntry{URL: key, Source: freshness.SourceNone}
	if err := r.cache.Set(context.Background(), key, entry); err != nil {
		r.logger.Warn("cache write failed", zap.String("url", key), zap.Error(err))
	}
	entry.CachedAt = r.clock.Now()
	return entry
}
