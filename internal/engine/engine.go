// Package engine exposes every operation behind a single typed
// request/response contract. Transports stay thin: they decode a Request,
// call Handle, and write the Response.
package engine

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/stalehq/staleness/internal/cache"
	"github.com/stalehq/staleness/internal/fetch"
	"github.com/stalehq/staleness/internal/freshness"
	"github.com/stalehq/staleness/internal/headercache"
	"github.com/stalehq/staleness/internal/license"
	"github.com/stalehq/staleness/internal/prefs"
	"github.com/stalehq/staleness/internal/quota"
)

// Kind names an operation. The set is closed: anything else is answered
// with an error response, never a crash.
type Kind string

// Operation kinds.
const (
	KindCheckQuota     Kind = "check-quota"
	KindIncrementQuota Kind = "increment-quota"
	KindGetCache       Kind = "get-cache"
	KindSetCache       Kind = "set-cache"
	KindFetchDate      Kind = "fetch-date"
	KindGetHTTPDate    Kind = "get-http-date"
	KindGetLicense     Kind = "get-license"
	KindSetLicense     Kind = "set-license"
	KindVerifyLicense  Kind = "verify-license"
	KindGetPreferences Kind = "get-preferences"
	KindSetPreferences Kind = "set-preferences"
)

// Request is one operation invocation.
type Request struct {
	ID      string          `json:"id,omitempty"`
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response always answers a Request: either Data or Error is set, and the
// ID round-trips so callers can correlate.
type Response struct {
	ID    string `json:"id,omitempty"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	Data  any    `json:"data,omitempty"`
}

// URLPayload addresses operations that act on a single URL.
type URLPayload struct {
	URL string `json:"url"`
}

// EmailPayload carries the address for license verification.
type EmailPayload struct {
	Email string `json:"email"`
}

// DateAnswer is the fetch-date result: the resolved entry plus its
// freshness classification under the user's thresholds.
type DateAnswer struct {
	Entry     freshness.CacheEntry `json:"entry"`
	Freshness freshness.Freshness  `json:"freshness"`
	FromCache bool                 `json:"from_cache"`
}

// HTTPDateAnswer is the get-http-date result.
type HTTPDateAnswer struct {
	URL          string `json:"url"`
	LastModified string `json:"last_modified,omitempty"`
	Found        bool   `json:"found"`
}

// ErrQuotaExceeded marks responses refused by the daily limit. Transports
// map it to their own too-many-requests signal.
const ErrQuotaExceeded = "quota exceeded"

// Engine wires the subsystems behind the operation contract.
type Engine struct {
	quota     *quota.Manager
	cache     *cache.Store
	retriever *fetch.Retriever
	headers   *headercache.Cache
	license   *license.Manager
	prefs     *prefs.Manager
	clock     freshness.Clock
	logger    *zap.Logger
}

// New builds an Engine.
func New(
	quotaMgr *quota.Manager,
	cacheStore *cache.Store,
	retriever *fetch.Retriever,
	headers *headercache.Cache,
	licenseMgr *license.Manager,
	prefsMgr *prefs.Manager,
	clock freshness.Clock,
	logger *zap.Logger,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		quota:     quotaMgr,
		cache:     cacheStore,
		retriever: retriever,
		headers:   headers,
		license:   licenseMgr,
		prefs:     prefsMgr,
		clock:     clock,
		logger:    logger,
	}
}

// Handle executes one request. It never panics outward and never returns
// nothing: every request gets a Response.
func (e *Engine) Handle(ctx context.Context, req Request) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("operation panicked",
				zap.String("kind", string(req.Kind)), zap.Any("panic", r))
			resp = e.fail(req, "internal error")
		}
	}()

	switch req.Kind {
	case KindCheckQuota:
		return e.checkQuota(ctx, req)
	case KindIncrementQuota:
		return e.incrementQuota(ctx, req)
	case KindGetCache:
		return e.getCache(ctx, req)
	case KindSetCache:
		return e.setCache(ctx, req)
	case KindFetchDate:
		return e.fetchDate(ctx, req)
	case KindGetHTTPDate:
		return e.getHTTPDate(req)
	case KindGetLicense:
		return e.getLicense(ctx, req)
	case KindSetLicense:
		return e.setLicense(ctx, req)
	case KindVerifyLicense:
		return e.verifyLicense(ctx, req)
	case KindGetPreferences:
		return e.getPreferences(ctx, req)
	case KindSetPreferences:
		return e.setPreferences(ctx, req)
	default:
		return e.fail(req, fmt.Sprintf("unknown operation %q", req.Kind))
	}
}

func (e *Engine) checkQuota(ctx context.Context, req Request) Response {
	state, err := e.license.Get(ctx)
	if err != nil {
		return e.fail(req, err.Error())
	}
	decision, err := e.quota.Check(ctx, state.IsPaid)
	if err != nil {
		return e.fail(req, err.Error())
	}
	return e.ok(req, decision)
}

func (e *Engine) incrementQuota(ctx context.Context, req Request) Response {
	state, err := e.quota.Increment(ctx)
	if err != nil {
		return e.fail(req, err.Error())
	}
	return e.ok(req, state)
}

func (e *Engine) getCache(ctx context.Context, req Request) Response {
	var payload URLPayload
	if err := decode(req.Payload, &payload); err != nil {
		return e.fail(req, err.Error())
	}
	entry := e.cache.Get(ctx, payload.URL)
	if entry == nil {
		return e.fail(req, "not cached")
	}
	return e.ok(req, entry)
}

func (e *Engine) setCache(ctx context.Context, req Request) Response {
	var entry freshness.CacheEntry
	if err := decode(req.Payload, &entry); err != nil {
		return e.fail(req, err.Error())
	}
	if entry.URL == "" {
		return e.fail(req, "url is required")
	}
	if err := e.cache.Set(ctx, entry.URL, entry); err != nil {
		return e.fail(req, err.Error())
	}
	return e.ok(req, entry)
}

// fetchDate is the composite lookup: cached answers are free, a real
// fetch consumes one unit of quota.
func (e *Engine) fetchDate(ctx context.Context, req Request) Response {
	var payload URLPayload
	if err := decode(req.Payload, &payload); err != nil {
		return e.fail(req, err.Error())
	}
	if payload.URL == "" {
		return e.fail(req, "url is required")
	}

	userPrefs, err := e.prefs.Get(ctx)
	if err != nil {
		userPrefs = freshness.DefaultPreferences()
	}

	if entry := e.cache.Get(ctx, payload.URL); entry != nil {
		return e.ok(req, e.answer(*entry, userPrefs, true))
	}

	licState, err := e.license.Get(ctx)
	if err != nil {
		return e.fail(req, err.Error())
	}
	decision, err := e.quota.Check(ctx, licState.IsPaid)
	if err != nil {
		return e.fail(req, err.Error())
	}
	if !decision.Allowed {
		resp := e.fail(req, ErrQuotaExceeded)
		resp.Data = decision.State
		return resp
	}

	entry, err := e.retriever.FetchDate(ctx, payload.URL)
	if err != nil {
		return e.fail(req, err.Error())
	}
	if _, err := e.quota.Increment(ctx); err != nil {
		e.logger.Warn("quota increment failed", zap.Error(err))
	}
	return e.ok(req, e.answer(*entry, userPrefs, false))
}

func (e *Engine) getHTTPDate(req Request) Response {
	var payload URLPayload
	if err := decode(req.Payload, &payload); err != nil {
		return e.fail(req, err.Error())
	}
	lastModified, found := e.headers.Lookup(payload.URL)
	return e.ok(req, HTTPDateAnswer{
		URL:          payload.URL,
		LastModified: lastModified,
		Found:        found,
	})
}

func (e *Engine) getLicense(ctx context.Context, req Request) Response {
	state, err := e.license.Get(ctx)
	if err != nil {
		return e.fail(req, err.Error())
	}
	return e.ok(req, state)
}

func (e *Engine) setLicense(ctx context.Context, req Request) Response {
	var state freshness.LicenseState
	if err := decode(req.Payload, &state); err != nil {
		return e.fail(req, err.Error())
	}
	if state.IsPaid && state.PurchaseDate == "" {
		state.PurchaseDate = freshness.DayString(e.clock.Now())
	}
	if err := e.license.Set(ctx, state); err != nil {
		return e.fail(req, err.Error())
	}
	return e.ok(req, state)
}

func (e *Engine) verifyLicense(ctx context.Context, req Request) Response {
	var payload EmailPayload
	if err := decode(req.Payload, &payload); err != nil {
		return e.fail(req, err.Error())
	}
	if payload.Email == "" {
		return e.fail(req, "email is required")
	}
	state, err := e.license.Verify(ctx, payload.Email)
	if err != nil {
		resp := e.fail(req, err.Error())
		resp.Data = state
		return resp
	}
	return e.ok(req, state)
}

func (e *Engine) getPreferences(ctx context.Context, req Request) Response {
	userPrefs, err := e.prefs.Get(ctx)
	if err != nil {
		return e.fail(req, err.Error())
	}
	return e.ok(req, userPrefs)
}

func (e *Engine) setPreferences(ctx context.Context, req Request) Response {
	var patch map[string]json.RawMessage
	if err := decode(req.Payload, &patch); err != nil {
		return e.fail(req, err.Error())
	}
	userPrefs, err := e.prefs.Set(ctx, patch)
	if err != nil {
		return e.fail(req, err.Error())
	}
	return e.ok(req, userPrefs)
}

func (e *Engine) answer(entry freshness.CacheEntry, userPrefs freshness.Preferences, fromCache bool) DateAnswer {
	return DateAnswer{
		Entry:     entry,
		Freshness: freshness.Classify(entry.Published, entry.Modified, userPrefs.Thresholds, e.clock.Now()),
		FromCache: fromCache,
	}
}

func (e *Engine) ok(req Request, data any) Response {
	return Response{ID: req.ID, OK: true, Data: data}
}

func (e *Engine) fail(req Request, message string) Response {
	return Response{ID: req.ID, OK: false, Error: message}
}

func decode(raw json.RawMessage, into any) error {
	if len(raw) == 0 {
		return fmt.Errorf("missing payload")
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}
