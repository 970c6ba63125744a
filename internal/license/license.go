// Package license mirrors the remote license verdict locally. The remote
// service is authoritative; the local copy only bridges outages, keeping
// the last known verdict when verification cannot complete.
package license

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/stalehq/staleness/internal/freshness"
	"github.com/stalehq/staleness/internal/kvstore"
	"github.com/stalehq/staleness/internal/metrics"
)

const stateKey = "license"

// Config points the Manager at the verification endpoint.
type Config struct {
	VerifyURL string
	Timeout   time.Duration
}

// DefaultConfig returns the standard verification tuning.
func DefaultConfig(verifyURL string) Config {
	return Config{VerifyURL: verifyURL, Timeout: 10 * time.Second}
}

type verifyRequest struct {
	Email string `json:"email"`
}

type verifyResponse struct {
	IsPaid       bool   `json:"isPaid"`
	PurchaseDate string `json:"purchaseDate,omitempty"`
}

// Manager persists license state and talks to the verification service.
type Manager struct {
	kv     kvstore.Store
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New builds a Manager.
func New(kv kvstore.Store, cfg Config, logger *zap.Logger) *Manager {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		kv:     kv,
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Get returns the stored license state. Absent state means free tier.
func (m *Manager) Get(ctx context.Context) (freshness.LicenseState, error) {
	values, err := m.kv.Get(ctx, stateKey)
	if err != nil {
		return freshness.LicenseState{}, fmt.Errorf("load license: %w", err)
	}
	raw, ok := values[stateKey]
	if !ok {
		return freshness.LicenseState{}, nil
	}
	var state freshness.LicenseState
	if err := json.Unmarshal(raw, &state); err != nil {
		m.logger.Warn("corrupt license state", zap.Error(err))
		return freshness.LicenseState{}, nil
	}
	return state, nil
}

// Set overwrites the stored license state.
func (m *Manager) Set(ctx context.Context, state freshness.LicenseState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode license: %w", err)
	}
	if err := m.kv.Set(ctx, map[string][]byte{stateKey: raw}); err != nil {
		return fmt.Errorf("save license: %w", err)
	}
	return nil
}

// Verify asks the remote service about an email and persists the verdict.
// Any failure, network, non-2xx, or undecodable body, leaves the stored
// state untouched and returns the last known verdict alongside the error.
func (m *Manager) Verify(ctx context.Context, email string) (freshness.LicenseState, error) {
	known, loadErr := m.Get(ctx)
	if loadErr != nil {
		known = freshness.LicenseState{}
	}

	verdict, err := m.callRemote(ctx, email)
	if err != nil {
		metrics.ObserveLicenseVerification("error")
		m.logger.Warn("license verification failed, keeping last known state",
			zap.String("email", email), zap.Error(err))
		return known, err
	}

	state := freshness.LicenseState{
		IsPaid:       verdict.IsPaid,
		PurchaseDate: verdict.PurchaseDate,
		Email:        email,
	}
	if err := m.Set(ctx, state); err != nil {
		metrics.ObserveLicenseVerification("error")
		return known, err
	}
	if state.IsPaid {
		metrics.ObserveLicenseVerification("paid")
	} else {
		metrics.ObserveLicenseVerification("unpaid")
	}
	return state, nil
}

// Revalidate re-runs verification for the stored email, if any. Meant for
// the periodic background refresh; errors are logged, not propagated.
func (m *Manager) Revalidate(ctx context.Context) {
	state, err := m.Get(ctx)
	if err != nil || state.Email == "" {
		return
	}
	if _, err := m.Verify(ctx, state.Email); err != nil {
		m.logger.Warn("license revalidation failed", zap.Error(err))
	}
}

func (m *Manager) callRemote(ctx context.Context, email string) (verifyResponse, error) {
	if m.cfg.VerifyURL == "" {
		return verifyResponse{}, fmt.Errorf("no verification endpoint configured")
	}

	body, err := json.Marshal(verifyRequest{Email: email})
	if err != nil {
		return verifyResponse{}, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.VerifyURL, bytes.NewReader(body))
	if err != nil {
		return verifyResponse{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return verifyResponse{}, fmt.Errorf("call verification service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return verifyResponse{}, fmt.Errorf("verification service returned %d", resp.StatusCode)
	}

	var verdict verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&verdict); err != nil {
		return verifyResponse{}, fmt.Errorf("decode response: %w", err)
	}
	return verdict, nil
}
