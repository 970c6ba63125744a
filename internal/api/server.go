// Package api exposes the HTTP interface for the freshness service.
package api

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stalehq/staleness/internal/config"
	"github.com/stalehq/staleness/internal/engine"
	"github.com/stalehq/staleness/internal/metrics"
)

// Server wires HTTP handlers to the engine.
type Server struct {
	router chi.Router
	engine *engine.Engine
	cfg    config.Config
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(eng *engine.Engine, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		engine: eng,
		cfg:    cfg,
		logger: logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	timeout := cfg.ServerTimeout()
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	r.Use(timeoutMiddleware(timeout))
	r.Use(metrics.Middleware)
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/quota", func(r chi.Router) {
			r.Get("/", s.checkQuota)
			r.Post("/increment", s.incrementQuota)
		})
		r.Route("/cache", func(r chi.Router) {
			r.Get("/", s.getCache)
			r.Post("/", s.setCache)
		})
		r.Get("/date", s.fetchDateQuery)
		r.Post("/date", s.fetchDate)
		r.Get("/httpdate", s.getHTTPDate)
		r.Route("/license", func(r chi.Router) {
			r.Get("/", s.getLicense)
			r.Put("/", s.setLicense)
			r.Post("/verify", s.verifyLicense)
		})
		r.Route("/preferences", func(r chi.Router) {
			r.Get("/", s.getPreferences)
			r.Patch("/", s.setPreferences)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) checkQuota(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, engine.KindCheckQuota, nil)
}

func (s *Server) incrementQuota(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, engine.KindIncrementQuota, nil)
}

func (s *Server) getCache(w http.ResponseWriter, r *http.Request) {
	payload, ok := urlFromQuery(w, r)
	if !ok {
		return
	}
	s.dispatch(w, r, engine.KindGetCache, payload)
}

func (s *Server) setCache(w http.ResponseWriter, r *http.Request) {
	s.dispatchBody(w, r, engine.KindSetCache)
}

func (s *Server) fetchDate(w http.ResponseWriter, r *http.Request) {
	s.dispatchBody(w, r, engine.KindFetchDate)
}

func (s *Server) fetchDateQuery(w http.ResponseWriter, r *http.Request) {
	payload, ok := urlFromQuery(w, r)
	if !ok {
		return
	}
	s.dispatch(w, r, engine.KindFetchDate, payload)
}

func (s *Server) getHTTPDate(w http.ResponseWriter, r *http.Request) {
	payload, ok := urlFromQuery(w, r)
	if !ok {
		return
	}
	s.dispatch(w, r, engine.KindGetHTTPDate, payload)
}

func (s *Server) getLicense(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, engine.KindGetLicense, nil)
}

func (s *Server) setLicense(w http.ResponseWriter, r *http.Request) {
	s.dispatchBody(w, r, engine.KindSetLicense)
}

func (s *Server) verifyLicense(w http.ResponseWriter, r *http.Request) {
	s.dispatchBody(w, r, engine.KindVerifyLicense)
}

func (s *Server) getPreferences(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, engine.KindGetPreferences, nil)
}

func (s *Server) setPreferences(w http.ResponseWriter, r *http.Request) {
	s.dispatchBody(w, r, engine.KindSetPreferences)
}

// dispatchBody forwards the request body verbatim as the operation payload.
func (s *Server) dispatchBody(w http.ResponseWriter, r *http.Request, kind engine.Kind) {
	var payload json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	s.dispatch(w, r, kind, payload)
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, kind engine.Kind, payload json.RawMessage) {
	resp := s.engine.Handle(r.Context(), engine.Request{
		ID:      requestID(r.Context()),
		Kind:    kind,
		Payload: payload,
	})
	if resp.OK {
		writeJSON(w, http.StatusOK, resp)
		return
	}
	writeJSON(w, statusFor(resp.Error), resp)
}

// statusFor maps engine error strings onto HTTP status codes.
func statusFor(message string) int {
	switch {
	case message == engine.ErrQuotaExceeded:
		return http.StatusTooManyRequests
	case message == "not cached":
		return http.StatusNotFound
	case message == "internal error":
		return http.StatusInternalServerError
	case strings.Contains(message, "invalid payload"),
		strings.Contains(message, "missing payload"),
		strings.Contains(message, "is required"),
		strings.Contains(message, "unknown operation"),
		strings.Contains(message, "normalize url"):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func urlFromQuery(w http.ResponseWriter, r *http.Request) (json.RawMessage, bool) {
	target := r.URL.Query().Get("url")
	if target == "" {
		writeError(w, http.StatusBadRequest, "url query parameter is required")
		return nil, false
	}
	payload, err := json.Marshal(engine.URLPayload{URL: target})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "encode payload")
		return nil, false
	}
	return payload, true
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("panic", rec))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func requestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
