package credentials

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nmhq/claude-bridge/internal/json"
	log "github.com/nmhq/claude-bridge/internal/logging"
)

// ClientID identifies the Claude CLI OAuth application at the token endpoint.
const ClientID = "9d1c250a-e61b-44d9-88ed-5944d1962f5e"

// ManagerConfig tunes the credential manager. Zero fields take defaults.
type ManagerConfig struct {
	// TokenURL is the OAuth token endpoint for refresh exchanges.
	TokenURL string

	// CacheTTL bounds how long a read is served from memory before the
	// backing file is consulted again.
	CacheTTL time.Duration

	// ExpiryBuffer refreshes tokens this long before their actual expiry so a
	// request never races token lapse.
	ExpiryBuffer time.Duration

	// HTTPClient executes the refresh call. Defaults to a client with a 30s
	// timeout.
	HTTPClient *http.Client
}

// DefaultManagerConfig returns the defaults used by the CLI.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		CacheTTL:     30 * time.Second,
		ExpiryBuffer: 5 * time.Minute,
	}
}

// Manager owns the in-memory credential cache for one process. It is safe for
// concurrent use; overlapping refresh attempts are collapsed into a single
// token-endpoint call.
type Manager struct {
	store  *Store
	config ManagerConfig
	client *http.Client

	now func() time.Time

	mu       sync.Mutex
	cached   *Record
	cachedAt time.Time

	sf singleflight.Group
}

// NewManager creates a manager over the given store.
func NewManager(store *Store, cfg ManagerConfig) *Manager {
	if cfg.TokenURL == "" {
		cfg.TokenURL = "https://console.anthropic.com/v1/oauth/token"
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 30 * time.Second
	}
	if cfg.ExpiryBuffer <= 0 {
		cfg.ExpiryBuffer = 5 * time.Minute
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Manager{
		store:  store,
		config: cfg,
		client: client,
		now:    time.Now,
	}
}

// Store exposes the backing store, mainly for the login flow which writes
// freshly minted credentials through it.
func (m *Manager) Store() *Store { return m.store }

// ReadCredentials returns the current credential record. Reads within the
// cache window are served from memory and never touch the disk; a stale or
// empty cache forces a re-read of the backing file.
func (m *Manager) ReadCredentials(ctx context.Context) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.cached != nil && m.now().Sub(m.cachedAt) < m.config.CacheTTL {
		rec := m.cached.Clone()
		m.mu.Unlock()
		return rec, nil
	}
	m.mu.Unlock()

	rec, err := m.store.Read()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.cached = rec.Clone()
	m.cachedAt = m.now()
	m.mu.Unlock()
	return rec, nil
}

// IsExpired reports whether rec's access token is expired (or will be within
// the configured buffer) at this instant.
func (m *Manager) IsExpired(rec *Record) bool {
	return rec.ExpiredAt(m.now(), m.config.ExpiryBuffer)
}

type refreshRequest struct {
	GrantType    string `json:"grant_type"`
	RefreshToken string `json:"refresh_token"`
	ClientID     string `json:"client_id"`
}

type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Refresh exchanges rec's refresh token for a new token pair. Concurrent
// callers share one token-endpoint call. On success the new record preserves
// everything but the token values and expiry, the cache is updated, and the
// record is persisted best-effort: a persist failure is only a warning since
// the in-memory token remains usable for the rest of the process.
func (m *Manager) Refresh(ctx context.Context, rec *Record) (*Record, error) {
	result, err, _ := m.sf.Do("refresh", func() (any, error) {
		// Another caller may have already rotated the token while this one
		// waited on the flight group.
		m.mu.Lock()
		if m.cached != nil && m.cached.RefreshToken != rec.RefreshToken && !m.IsExpired(m.cached) {
			fresh := m.cached.Clone()
			m.mu.Unlock()
			return fresh, nil
		}
		m.mu.Unlock()

		return m.doRefresh(ctx, rec)
	})
	if err != nil {
		return nil, err
	}
	return result.(*Record), nil
}

func (m *Manager) doRefresh(ctx context.Context, rec *Record) (*Record, error) {
	body, err := json.Marshal(refreshRequest{
		GrantType:    "refresh_token",
		RefreshToken: rec.RefreshToken,
		ClientID:     ClientID,
	})
	if err != nil {
		return nil, fmt.Errorf("encode refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.config.TokenURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := m.now()
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token refresh: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read refresh response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RefreshError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var tokens refreshResponse
	if err := json.Unmarshal(respBody, &tokens); err != nil {
		return nil, fmt.Errorf("parse refresh response: %w", err)
	}
	if tokens.AccessToken == "" {
		return nil, &RefreshError{StatusCode: resp.StatusCode, Body: "response missing access_token"}
	}

	updated := rec.Clone()
	updated.AccessToken = tokens.AccessToken
	if tokens.RefreshToken != "" {
		updated.RefreshToken = tokens.RefreshToken
	}
	updated.ExpiresAt = m.now().UnixMilli() + tokens.ExpiresIn*1000

	log.Debugf("credentials: refresh succeeded in %v, new expiry %s",
		m.now().Sub(start).Round(time.Millisecond), updated.ExpiresAtTime().Format(time.RFC3339))

	if err := m.store.Write(updated); err != nil {
		log.Warnf("credentials: refreshed token could not be persisted: %v", err)
	}

	m.mu.Lock()
	m.cached = updated.Clone()
	m.cachedAt = m.now()
	m.mu.Unlock()

	return updated, nil
}

// AccessToken returns a valid bearer token, refreshing first when the current
// one is expired or about to expire. This is the entry point other components
// should use.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	rec, err := m.ReadCredentials(ctx)
	if err != nil {
		return "", err
	}
	if m.IsExpired(rec) {
		rec, err = m.Refresh(ctx, rec)
		if err != nil {
			return "", err
		}
	}
	return rec.AccessToken, nil
}

// Invalidate drops the in-memory cache so the next read hits the disk.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	m.cached = nil
	m.cachedAt = time.Time{}
	m.mu.Unlock()
}
