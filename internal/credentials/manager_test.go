package credentials

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nmhq/claude-bridge/internal/json"
)

func writeRecord(t *testing.T, store *Store, rec *Record) {
	t.Helper()
	if err := store.Write(rec); err != nil {
		t.Fatal(err)
	}
}

func testManager(t *testing.T, tokenURL string) (*Manager, *Store) {
	t.Helper()
	store := tempStore(t)
	m := NewManager(store, ManagerConfig{
		TokenURL:     tokenURL,
		CacheTTL:     30 * time.Second,
		ExpiryBuffer: 5 * time.Minute,
	})
	return m, store
}

// tokenEndpoint returns an httptest server answering refresh requests, and a
// counter of how many calls it served.
func tokenEndpoint(t *testing.T, expiresIn int64) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	calls := &atomic.Int64{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)

		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read refresh request: %v", err)
		}
		var req map[string]any
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("decode refresh request: %v", err)
		}
		if req["grant_type"] != "refresh_token" {
			t.Errorf("grant_type: got %v", req["grant_type"])
		}
		if req["refresh_token"] == "" {
			t.Error("refresh_token missing")
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"new-at","refresh_token":"new-rt","expires_in":` +
			strconv.FormatInt(expiresIn, 10) + `}`))
	}))
	t.Cleanup(server.Close)
	return server, calls
}

func TestManager_CacheHitAvoidsDisk(t *testing.T) {
	m, store := testManager(t, "http://unused.invalid")
	writeRecord(t, store, &Record{AccessToken: "first", RefreshToken: "r", ExpiresAt: 9_999_999_999_999})

	first, err := m.ReadCredentials(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	// Rewrite the file; a cached read must not observe the change.
	writeRecord(t, store, &Record{AccessToken: "second", RefreshToken: "r", ExpiresAt: 9_999_999_999_999})

	second, err := m.ReadCredentials(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if second.AccessToken != first.AccessToken {
		t.Fatalf("read within cache window hit the disk: %q", second.AccessToken)
	}
}

func TestManager_CacheExpiryForcesReRead(t *testing.T) {
	m, store := testManager(t, "http://unused.invalid")
	writeRecord(t, store, &Record{AccessToken: "first", RefreshToken: "r", ExpiresAt: 9_999_999_999_999})

	base := time.Now()
	m.now = func() time.Time { return base }
	if _, err := m.ReadCredentials(context.Background()); err != nil {
		t.Fatal(err)
	}

	writeRecord(t, store, &Record{AccessToken: "second", RefreshToken: "r", ExpiresAt: 9_999_999_999_999})

	m.now = func() time.Time { return base.Add(31 * time.Second) }
	rec, err := m.ReadCredentials(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rec.AccessToken != "second" {
		t.Fatalf("read outside cache window should re-read: %q", rec.AccessToken)
	}
}

func TestManager_InvalidateDropsCache(t *testing.T) {
	m, store := testManager(t, "http://unused.invalid")
	writeRecord(t, store, &Record{AccessToken: "first", RefreshToken: "r", ExpiresAt: 9_999_999_999_999})

	if _, err := m.ReadCredentials(context.Background()); err != nil {
		t.Fatal(err)
	}
	writeRecord(t, store, &Record{AccessToken: "second", RefreshToken: "r", ExpiresAt: 9_999_999_999_999})
	m.Invalidate()

	rec, err := m.ReadCredentials(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rec.AccessToken != "second" {
		t.Fatalf("invalidate should force a disk read: %q", rec.AccessToken)
	}
}

func TestManager_MissingStoreNoNetworkCall(t *testing.T) {
	server, calls := tokenEndpoint(t, 3600)
	m, _ := testManager(t, server.URL)

	_, err := m.AccessToken(context.Background())
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("want NotFoundError, got %v", err)
	}
	if calls.Load() != 0 {
		t.Fatalf("missing credentials must not reach the token endpoint: %d calls", calls.Load())
	}
}

func TestManager_RefreshPreservesIdentityFields(t *testing.T) {
	server, _ := tokenEndpoint(t, 3600)
	m, store := testManager(t, server.URL)

	old := &Record{
		AccessToken:      "old-at",
		RefreshToken:     "old-rt",
		ExpiresAt:        time.Now().Add(-time.Hour).UnixMilli(),
		Scopes:           []string{"user:inference"},
		SubscriptionType: "max",
		RateLimitTier:    "tier",
		OrganizationID:   "org-1",
	}
	writeRecord(t, store, old)

	updated, err := m.Refresh(context.Background(), old)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}

	if updated.AccessToken != "new-at" || updated.RefreshToken != "new-rt" {
		t.Fatalf("tokens not rotated: %+v", updated)
	}
	if updated.ExpiresAt <= old.ExpiresAt {
		t.Fatal("expiresAt must move strictly later")
	}
	if len(updated.Scopes) != 1 || updated.Scopes[0] != "user:inference" {
		t.Fatalf("scopes not preserved: %v", updated.Scopes)
	}
	if updated.OrganizationID != "org-1" || updated.SubscriptionType != "max" || updated.RateLimitTier != "tier" {
		t.Fatalf("identity fields not preserved: %+v", updated)
	}

	// The refreshed record must have been persisted.
	persisted, err := store.Read()
	if err != nil {
		t.Fatal(err)
	}
	if persisted.AccessToken != "new-at" {
		t.Fatalf("persisted token: %q", persisted.AccessToken)
	}
}

func TestManager_RefreshFailureKeepsStaleToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	t.Cleanup(server.Close)

	m, store := testManager(t, server.URL)
	old := &Record{AccessToken: "stale", RefreshToken: "rt", ExpiresAt: time.Now().Add(-time.Hour).UnixMilli()}
	writeRecord(t, store, old)
	if _, err := m.ReadCredentials(context.Background()); err != nil {
		t.Fatal(err)
	}

	_, err := m.Refresh(context.Background(), old)
	var refreshErr *RefreshError
	if !errors.As(err, &refreshErr) {
		t.Fatalf("want RefreshError, got %v", err)
	}
	if refreshErr.StatusCode != http.StatusForbidden {
		t.Fatalf("status: got %d", refreshErr.StatusCode)
	}
	if refreshErr.Body == "" {
		t.Fatal("refresh error should carry the response body")
	}

	// The cache still holds the stale record untouched.
	rec, err := m.ReadCredentials(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rec.AccessToken != "stale" {
		t.Fatalf("cache must keep the stale token on refresh failure: %q", rec.AccessToken)
	}
}

func TestManager_RefreshPersistFailureIsNonFatal(t *testing.T) {
	server, _ := tokenEndpoint(t, 3600)

	dir := t.TempDir()
	store := NewStore(dir) // path is a directory: writes will fail
	m := NewManager(store, ManagerConfig{TokenURL: server.URL})

	old := &Record{AccessToken: "old", RefreshToken: "rt", ExpiresAt: 0}
	updated, err := m.Refresh(context.Background(), old)
	if err != nil {
		t.Fatalf("persist failure must not fail the refresh: %v", err)
	}
	if updated.AccessToken != "new-at" {
		t.Fatalf("got %+v", updated)
	}

	// The in-memory cache was still updated.
	rec, err := m.ReadCredentials(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rec.AccessToken != "new-at" {
		t.Fatalf("cache should hold the refreshed token: %q", rec.AccessToken)
	}
}

func TestManager_ConcurrentRefreshSingleFlight(t *testing.T) {
	server, calls := tokenEndpoint(t, 3600)
	m, store := testManager(t, server.URL)

	old := &Record{AccessToken: "old", RefreshToken: "rt", ExpiresAt: time.Now().Add(-time.Hour).UnixMilli()}
	writeRecord(t, store, old)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Refresh(context.Background(), old); err != nil {
				t.Errorf("refresh: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("concurrent refreshes should collapse to one endpoint call, got %d", got)
	}
}

func TestManager_AccessTokenRefreshesWhenExpired(t *testing.T) {
	server, calls := tokenEndpoint(t, 3600)
	m, store := testManager(t, server.URL)

	writeRecord(t, store, &Record{
		AccessToken:  "expired",
		RefreshToken: "rt",
		ExpiresAt:    time.Now().Add(-time.Minute).UnixMilli(),
	})

	token, err := m.AccessToken(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if token != "new-at" {
		t.Fatalf("want refreshed token, got %q", token)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected one refresh call, got %d", calls.Load())
	}
}

func TestManager_AccessTokenSkipsRefreshWhenValid(t *testing.T) {
	server, calls := tokenEndpoint(t, 3600)
	m, store := testManager(t, server.URL)

	writeRecord(t, store, &Record{
		AccessToken:  "still-good",
		RefreshToken: "rt",
		ExpiresAt:    time.Now().Add(2 * time.Hour).UnixMilli(),
	})

	token, err := m.AccessToken(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if token != "still-good" {
		t.Fatalf("got %q", token)
	}
	if calls.Load() != 0 {
		t.Fatalf("valid token must not trigger refresh, got %d calls", calls.Load())
	}
}

func TestWatcher_InvalidatesOnFileChange(t *testing.T) {
	m, store := testManager(t, "http://unused.invalid")
	writeRecord(t, store, &Record{AccessToken: "first", RefreshToken: "r", ExpiresAt: 9_999_999_999_999})

	watcher, err := Watch(m)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = watcher.Close() }()

	if _, err := m.ReadCredentials(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Rewrite the file out from under the manager.
	writeRecord(t, store, &Record{AccessToken: "second", RefreshToken: "r", ExpiresAt: 9_999_999_999_999})

	deadline := time.Now().Add(2 * time.Second)
	for {
		rec, err := m.ReadCredentials(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if rec.AccessToken == "second" {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("watcher did not invalidate the cache")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestManager_ContextCancelled(t *testing.T) {
	m, store := testManager(t, "http://unused.invalid")
	writeRecord(t, store, &Record{AccessToken: "a", RefreshToken: "r", ExpiresAt: 9_999_999_999_999})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.ReadCredentials(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

func TestManager_ReadCorruptSurfacesImmediately(t *testing.T) {
	m, store := testManager(t, "http://unused.invalid")
	if err := os.WriteFile(store.Path(), []byte("garbage"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := m.ReadCredentials(context.Background())
	var corrupt *CorruptError
	if !errors.As(err, &corrupt) {
		t.Fatalf("want CorruptError, got %v", err)
	}
}
