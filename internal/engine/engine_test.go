package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/stalehq/staleness/internal/cache"
	"github.com/stalehq/staleness/internal/dateparse"
	"github.com/stalehq/staleness/internal/extract"
	"github.com/stalehq/staleness/internal/fetch"
	"github.com/stalehq/staleness/internal/freshness"
	"github.com/stalehq/staleness/internal/headercache"
	"github.com/stalehq/staleness/internal/kvstore/memory"
	"github.com/stalehq/staleness/internal/license"
	"github.com/stalehq/staleness/internal/prefs"
	"github.com/stalehq/staleness/internal/quota"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

var testNow = time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC)

type stubFetcher struct {
	calls int
	body  string
}

func (s *stubFetcher) Fetch(_ string) (fetch.Result, error) {
	s.calls++
	h := http.Header{}
	h.Set("Content-Type", "text/html; charset=utf-8")
	h.Set("Last-Modified", "Mon, 15 Jan 2024 10:30:00 GMT")
	return fetch.Result{StatusCode: http.StatusOK, Header: h, Body: []byte(s.body)}, nil
}

type testEnv struct {
	engine  *Engine
	fetcher *stubFetcher
	quota   *quota.Manager
}

func newTestEnv(t *testing.T, dailyLimit int, verifyURL string) *testEnv {
	t.Helper()

	clock := &fakeClock{now: testNow}
	parser := dateparse.New(clock)
	kv := memory.New()
	logger := zap.NewNop()

	cacheStore := cache.New(kv, clock, cache.DefaultConfig(), logger)
	headers := headercache.New()
	fetcher := &stubFetcher{body: `<html><head>
		<meta property="article:published_time" content="2024-01-15T10:30:00Z">
	</head><body></body></html>`}
	pipeline := extract.NewPipeline(extract.DeepExtractors(parser, clock), extract.DefaultPipelineConfig(), logger)
	retriever := fetch.NewRetriever(fetcher, cacheStore, headers, pipeline, clock, logger)

	quotaMgr := quota.New(kv, clock, dailyLimit, logger)
	licenseMgr := license.New(kv, license.DefaultConfig(verifyURL), logger)
	prefsMgr := prefs.New(kv, logger)

	return &testEnv{
		engine:  New(quotaMgr, cacheStore, retriever, headers, licenseMgr, prefsMgr, clock, logger),
		fetcher: fetcher,
		quota:   quotaMgr,
	}
}

func urlRequest(kind Kind, url string) Request {
	payload, _ := json.Marshal(URLPayload{URL: url})
	return Request{ID: "req-1", Kind: kind, Payload: payload}
}

func TestFetchDate(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 10, "")
	ctx := context.Background()

	resp := env.engine.Handle(ctx, urlRequest(KindFetchDate, "https://example.com/article"))
	require.True(t, resp.OK, resp.Error)
	require.Equal(t, "req-1", resp.ID)

	answer, ok := resp.Data.(DateAnswer)
	require.True(t, ok)
	require.False(t, answer.FromCache)
	require.Equal(t, freshness.SourceStructuredMetadata, answer.Entry.Source)
	require.Equal(t, freshness.TierGreen, answer.Freshness.Tier)

	state, err := env.quota.State(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, state.Count, "a real fetch consumes quota")
}

func TestFetchDateCachedIsFree(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 10, "")
	ctx := context.Background()

	first := env.engine.Handle(ctx, urlRequest(KindFetchDate, "https://example.com/article"))
	require.True(t, first.OK)

	second := env.engine.Handle(ctx, urlRequest(KindFetchDate, "https://example.com/article"))
	require.True(t, second.OK)
	answer := second.Data.(DateAnswer)
	require.True(t, answer.FromCache)
	require.Equal(t, 1, env.fetcher.calls)

	state, err := env.quota.State(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, state.Count, "cached answers must not consume quota")
}

func TestFetchDateQuotaExceeded(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 1, "")
	ctx := context.Background()

	resp := env.engine.Handle(ctx, urlRequest(KindFetchDate, "https://example.com/a"))
	require.True(t, resp.OK, resp.Error)

	resp = env.engine.Handle(ctx, urlRequest(KindFetchDate, "https://example.com/b"))
	require.False(t, resp.OK)
	require.Equal(t, ErrQuotaExceeded, resp.Error)
	state, ok := resp.Data.(freshness.QuotaState)
	require.True(t, ok)
	require.Equal(t, 1, state.Count)
	require.Equal(t, 1, env.fetcher.calls, "refused request must not fetch")
}

func TestFetchDatePaidBypassesQuota(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 1, "")
	ctx := context.Background()

	payload, _ := json.Marshal(freshness.LicenseState{IsPaid: true, Email: "ada@example.com"})
	resp := env.engine.Handle(ctx, Request{Kind: KindSetLicense, Payload: payload})
	require.True(t, resp.OK)

	for _, url := range []string{"https://example.com/a", "https://example.com/b", "https://example.com/c"} {
		resp := env.engine.Handle(ctx, urlRequest(KindFetchDate, url))
		require.True(t, resp.OK, resp.Error)
	}
}

func TestSetLicenseStampsPurchaseDate(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 10, "")
	ctx := context.Background()

	payload, _ := json.Marshal(freshness.LicenseState{IsPaid: true, Email: "ada@example.com"})
	resp := env.engine.Handle(ctx, Request{Kind: KindSetLicense, Payload: payload})
	require.True(t, resp.OK)
	state, ok := resp.Data.(freshness.LicenseState)
	require.True(t, ok)
	require.Equal(t, freshness.DayString(testNow), state.PurchaseDate)

	// An explicit date is kept as-is.
	payload, _ = json.Marshal(freshness.LicenseState{IsPaid: true, Email: "ada@example.com", PurchaseDate: "2023-11-05"})
	resp = env.engine.Handle(ctx, Request{Kind: KindSetLicense, Payload: payload})
	require.True(t, resp.OK)
	state, ok = resp.Data.(freshness.LicenseState)
	require.True(t, ok)
	require.Equal(t, "2023-11-05", state.PurchaseDate)
}

func TestCheckAndIncrementQuota(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 2, "")
	ctx := context.Background()

	resp := env.engine.Handle(ctx, Request{Kind: KindCheckQuota})
	require.True(t, resp.OK)
	decision := resp.Data.(quota.Decision)
	require.True(t, decision.Allowed)
	require.Equal(t, 0, decision.State.Count)

	resp = env.engine.Handle(ctx, Request{Kind: KindIncrementQuota})
	require.True(t, resp.OK)
	require.Equal(t, 1, resp.Data.(freshness.QuotaState).Count)
}

func TestCacheRoundTrip(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 10, "")
	ctx := context.Background()

	published := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)
	entry := freshness.CacheEntry{
		URL:        "https://example.com/stored",
		Published:  &published,
		Confidence: 0.85,
		Source:     freshness.SourceInlineTimeMarkup,
	}
	payload, _ := json.Marshal(entry)

	resp := env.engine.Handle(ctx, Request{Kind: KindSetCache, Payload: payload})
	require.True(t, resp.OK, resp.Error)

	resp = env.engine.Handle(ctx, urlRequest(KindGetCache, "https://example.com/stored"))
	require.True(t, resp.OK)
	got := resp.Data.(*freshness.CacheEntry)
	require.Equal(t, freshness.SourceInlineTimeMarkup, got.Source)

	resp = env.engine.Handle(ctx, urlRequest(KindGetCache, "https://example.com/absent"))
	require.False(t, resp.OK)
}

func TestGetHTTPDateAfterFetch(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 10, "")
	ctx := context.Background()

	resp := env.engine.Handle(ctx, urlRequest(KindFetchDate, "https://example.com/article"))
	require.True(t, resp.OK)

	resp = env.engine.Handle(ctx, urlRequest(KindGetHTTPDate, "https://example.com/article"))
	require.True(t, resp.OK)
	answer := resp.Data.(HTTPDateAnswer)
	require.True(t, answer.Found)
	require.Equal(t, "Mon, 15 Jan 2024 10:30:00 GMT", answer.LastModified)
}

func TestVerifyLicense(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"isPaid":true,"purchaseDate":"2024-01-10"}`))
	}))
	defer srv.Close()

	env := newTestEnv(t, 10, srv.URL)
	payload, _ := json.Marshal(EmailPayload{Email: "ada@example.com"})
	resp := env.engine.Handle(context.Background(), Request{Kind: KindVerifyLicense, Payload: payload})
	require.True(t, resp.OK, resp.Error)
	state := resp.Data.(freshness.LicenseState)
	require.True(t, state.IsPaid)
}

func TestPreferencesRoundTrip(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 10, "")
	ctx := context.Background()

	resp := env.engine.Handle(ctx, Request{Kind: KindGetPreferences})
	require.True(t, resp.OK)
	require.Equal(t, freshness.DefaultPreferences(), resp.Data.(freshness.Preferences))

	resp = env.engine.Handle(ctx, Request{
		Kind:    KindSetPreferences,
		Payload: json.RawMessage(`{"enabled":false}`),
	})
	require.True(t, resp.OK)
	require.False(t, resp.Data.(freshness.Preferences).Enabled)
}

func TestUnknownKind(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 10, "")
	resp := env.engine.Handle(context.Background(), Request{ID: "x", Kind: "explode"})
	require.False(t, resp.OK)
	require.Equal(t, "x", resp.ID)
	require.Contains(t, resp.Error, "unknown operation")
}

func TestMalformedPayload(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 10, "")
	resp := env.engine.Handle(context.Background(), Request{
		Kind:    KindFetchDate,
		Payload: json.RawMessage(`{broken`),
	})
	require.False(t, resp.OK)
	require.Contains(t, resp.Error, "invalid payload")
}

func TestPanicBecomesErrorResponse(t *testing.T) {
	t.Parallel()

	// A half-wired engine panics on use; the contract still answers.
	e := New(nil, nil, nil, nil, nil, nil, &fakeClock{now: testNow}, zap.NewNop())
	resp := e.Handle(context.Background(), Request{ID: "p", Kind: KindCheckQuota})
	require.False(t, resp.OK)
	require.Equal(t, "p", resp.ID)
	require.Equal(t, "internal error", resp.Error)
}
