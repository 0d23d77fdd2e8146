// Package memory implements MemoryBridge: per-world episodic memory backed
// by a remote HTTP service, with retry/backoff and a local vector-store
// fallback. The retry loop (bounded tries, per-attempt timeout,
// status-code-driven retry decisions) runs a fixed exponential backoff
// schedule against an overall per-request deadline.
package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/corvidrun/corvid/pkg/logger"
	"github.com/corvidrun/corvid/pkg/vectorstore"
)

// ErrServiceUnavailable is returned internally to trigger the local
// fallback path; callers of Store/Recall never see it directly since the
// fallback always completes the operation on the local store instead.
var ErrServiceUnavailable = errors.New("memory: service unavailable")

const (
	maxRetries        = 3
	perRequestTimeout = 10 * time.Second
	healthCheckPeriod = 60 * time.Second
)

var backoffSchedule = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

// StoreResult mirrors `{success, stored}`.
type StoreResult struct {
	Success  bool
	Stored   int
	Fallback bool
}

// RecallResult mirrors `{success, results}`.
type RecallResult struct {
	Success  bool
	Results  []string
	Fallback bool
}

// Stats tracks fallback usage, for status reporting.
type Stats struct {
	Fallback int64
}

// Bridge is MemoryBridge.
type Bridge struct {
	serviceURL string
	httpClient *http.Client
	local      *vectorstore.Store
	log        *logger.Logger

	mu              sync.Mutex
	stats           Stats
	healthy         bool
	lastHealthCheck time.Time
}

// Option configures a Bridge at construction.
type Option func(*Bridge)

// WithOAuth2ClientCredentials authenticates every request with a token
// obtained via the OAuth2 client-credentials grant, wrapping the transport
// in a token source rather than attaching a static header.
func WithOAuth2ClientCredentials(clientID, clientSecret, tokenURL string) Option {
	return func(b *Bridge) {
		if clientID == "" || clientSecret == "" || tokenURL == "" {
			return
		}
		cfg := &clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     tokenURL,
		}
		b.httpClient = cfg.Client(context.Background())
	}
}

// WithBearerToken authenticates every request with a static bearer
// token, used when no OAuth2 client is configured.
func WithBearerToken(token string) Option {
	return func(b *Bridge) {
		if token == "" {
			return
		}
		base := b.httpClient.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		b.httpClient.Transport = &bearerTransport{token: token, base: base}
	}
}

type bearerTransport struct {
	token string
	base  http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+t.token)
	return t.base.RoundTrip(req)
}

// New builds a Bridge talking to serviceURL, falling back to local when
// the service is unhealthy or unreachable.
func New(serviceURL string, local *vectorstore.Store, opts ...Option) *Bridge {
	b := &Bridge{
		serviceURL: serviceURL,
		httpClient: &http.Client{},
		local:      local,
		log:        logger.Default(),
		healthy:    true,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Stats returns a snapshot of fallback usage counters.
func (b *Bridge) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

func (b *Bridge) recordFallback() {
	b.mu.Lock()
	b.stats.Fallback++
	b.mu.Unlock()
}

// shouldSkipService reports whether the cached health state says to go
// straight to fallback without attempting the network call.
func (b *Bridge) shouldSkipService() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.healthy {
		return false
	}
	return time.Since(b.lastHealthCheck) < healthCheckPeriod
}

func (b *Bridge) markUnhealthy() {
	b.mu.Lock()
	b.healthy = false
	b.lastHealthCheck = time.Now()
	b.mu.Unlock()
}

func (b *Bridge) markHealthy() {
	b.mu.Lock()
	b.healthy = true
	b.lastHealthCheck = time.Now()
	b.mu.Unlock()
}

// doWithRetry POSTs/DELETEs/GETs body to path with a fixed retry policy:
// maxRetries attempts, exponential backoff [1s,2s,4s], each attempt bounded
// by perRequestTimeout and cancelled via the request's own context when
// the deadline fires.
func (b *Bridge) doWithRetry(ctx context.Context, method, path string, body any) ([]byte, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("memory: marshal request: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		reqCtx, cancel := context.WithTimeout(ctx, perRequestTimeout)
		respBody, status, err := b.attempt(reqCtx, method, path, payload)
		cancel()

		if err == nil && status < 500 {
			if status >= 400 {
				return nil, fmt.Errorf("memory: %s %s: status %d: %s", method, path, status, string(respBody))
			}
			return respBody, nil
		}
		lastErr = err
		if err == nil {
			lastErr = fmt.Errorf("memory: %s %s: status %d", method, path, status)
		}

		if attempt < len(backoffSchedule) {
			select {
			case <-time.After(backoffSchedule[attempt]):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	b.markUnhealthy()
	return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, lastErr)
}

func (b *Bridge) attempt(ctx context.Context, method, path string, payload []byte) ([]byte, int, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, b.serviceURL+path, reader)
	if err != nil {
		return nil, 0, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return data, resp.StatusCode, nil
}

// Store persists facts for worldID via the remote service; on failure
// (including a cached-unhealthy skip) it falls back to the local vector
// store, incrementing Stats.Fallback.
func (b *Bridge) Store(ctx context.Context, worldID string, facts []string, metadata map[string]any) (StoreResult, error) {
	if !b.shouldSkipService() {
		type reqBody struct {
			WorldID  string         `json:"world_id"`
			Facts    []string       `json:"facts"`
			Metadata map[string]any `json:"metadata"`
		}
		resp, err := b.doWithRetry(ctx, http.MethodPost, "/remember", reqBody{WorldID: worldID, Facts: facts, Metadata: metadata})
		if err == nil {
			var out struct {
				Success     bool `json:"success"`
				FactsStored int  `json:"facts_stored"`
			}
			if jerr := json.Unmarshal(resp, &out); jerr == nil {
				b.markHealthy()
				return StoreResult{Success: out.Success, Stored: out.FactsStored}, nil
			}
		}
		b.log.WarnCF("memory", "remember call failed, falling back to local store", map[string]any{"world_id": worldID, "error": errString(err)})
	}

	b.recordFallback()
	n, err := b.local.Store(ctx, worldID, facts, metadata)
	if err != nil {
		return StoreResult{}, fmt.Errorf("memory: local fallback store: %w", err)
	}
	return StoreResult{Success: true, Stored: n, Fallback: true}, nil
}

// Recall queries the remote service, falling back to the local vector
// store on failure. Results from worldID never include another world's
// records in either path.
func (b *Bridge) Recall(ctx context.Context, worldID, query string, limit int) (RecallResult, error) {
	if !b.shouldSkipService() {
		type reqBody struct {
			WorldID string `json:"world_id"`
			Query   string `json:"query"`
			Limit   int    `json:"limit"`
		}
		resp, err := b.doWithRetry(ctx, http.MethodPost, "/recall", reqBody{WorldID: worldID, Query: query, Limit: limit})
		if err == nil {
			var out struct {
				Success bool     `json:"success"`
				Results []string `json:"results"`
				Count   int      `json:"count"`
			}
			if jerr := json.Unmarshal(resp, &out); jerr == nil {
				b.markHealthy()
				return RecallResult{Success: out.Success, Results: out.Results}, nil
			}
		}
		b.log.WarnCF("memory", "recall call failed, falling back to local store", map[string]any{"world_id": worldID, "error": errString(err)})
	}

	b.recordFallback()
	results, err := b.local.Recall(ctx, worldID, query, limit)
	if err != nil {
		return RecallResult{}, fmt.Errorf("memory: local fallback recall: %w", err)
	}
	return RecallResult{Success: true, Results: results, Fallback: true}, nil
}

// ClearWorld deletes worldID's records from the remote service and the
// local fallback store, so neither holds stale state after a call.
func (b *Bridge) ClearWorld(ctx context.Context, worldID string) error {
	_, err := b.doWithRetry(ctx, http.MethodDelete, "/clear_world/"+worldID, nil)
	if err != nil {
		b.log.WarnCF("memory", "remote clear_world failed", map[string]any{"world_id": worldID, "error": err.Error()})
	}
	return b.local.ClearWorld(ctx, worldID)
}

// HealthCheck probes GET /health and caches the result. If unhealthy,
// subsequent requests skip straight to fallback until healthCheckPeriod
// elapses, at which point the next call re-probes.
func (b *Bridge) HealthCheck(ctx context.Context) (bool, error) {
	reqCtx, cancel := context.WithTimeout(ctx, perRequestTimeout)
	defer cancel()

	resp, status, err := b.attempt(reqCtx, http.MethodGet, "/health", nil)
	if err != nil || status != http.StatusOK {
		b.markUnhealthy()
		return false, err
	}

	var out struct {
		OK                bool `json:"ok"`
		CogneeInitialized bool `json:"cognee_initialized"`
	}
	if jerr := json.Unmarshal(resp, &out); jerr != nil {
		b.markUnhealthy()
		return false, jerr
	}
	if out.OK {
		b.markHealthy()
	} else {
		b.markUnhealthy()
	}
	return out.OK, nil
}

// ProbeBackground issues a best-effort health probe without blocking the
// caller, intended to be driven by pkg/cron on a configured
// health-check-interval cadence.
func (b *Bridge) ProbeBackground(ctx context.Context) {
	go func() {
		if _, err := b.HealthCheck(ctx); err != nil {
			b.log.DebugCF("memory", "background health probe failed", map[string]any{"error": err.Error()})
		}
	}()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
