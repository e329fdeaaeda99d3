package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xokvictor/miles-mcp/pkg/ride"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestTokenIsExpired(t *testing.T) {
	tests := []struct {
		name     string
		access   string
		expiry   time.Time
		expected bool
	}{
		{
			name:     "no access token",
			access:   "",
			expiry:   time.Now().Add(1 * time.Hour),
			expected: true,
		},
		{
			name:     "zero expiry",
			access:   "a",
			expiry:   time.Time{},
			expected: false,
		},
		{
			name:     "expired token",
			access:   "a",
			expiry:   time.Now().Add(-1 * time.Hour),
			expected: true,
		},
		{
			name:     "expires soon (within 5 min buffer)",
			access:   "a",
			expiry:   time.Now().Add(3 * time.Minute),
			expected: true,
		},
		{
			name:     "valid token",
			access:   "a",
			expiry:   time.Now().Add(1 * time.Hour),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token := &Token{AccessToken: tt.access, Expiry: tt.expiry}
			if got := token.IsExpired(); got != tt.expected {
				t.Errorf("IsExpired() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestTokenExpiresIn(t *testing.T) {
	t.Run("zero expiry", func(t *testing.T) {
		token := &Token{Expiry: time.Time{}}
		if got := token.ExpiresIn(); got != 0 {
			t.Errorf("ExpiresIn() = %v, want 0", got)
		}
	})

	t.Run("future expiry", func(t *testing.T) {
		token := &Token{Expiry: time.Now().Add(1 * time.Hour)}
		got := token.ExpiresIn()
		if got < 59*time.Minute || got > 61*time.Minute {
			t.Errorf("ExpiresIn() = %v, expected ~1 hour", got)
		}
	})
}

// tokenServer serves the Strava token endpoint, counting refresh calls.
type tokenServer struct {
	*httptest.Server
	calls    atomic.Int32
	status   atomic.Int32
	lastForm atomic.Value
}

func newTokenServer(t *testing.T) *tokenServer {
	t.Helper()
	ts := &tokenServer{}
	ts.status.Store(http.StatusOK)
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := ts.calls.Add(1)
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm() error = %v", err)
		}
		ts.lastForm.Store(r.PostForm)

		w.Header().Set("Content-Type", "application/json")
		status := int(ts.status.Load())
		if status != http.StatusOK {
			w.WriteHeader(status)
			io.WriteString(w, `{"message":"Bad Request","errors":[{"resource":"RefreshToken","code":"invalid"}]}`)
			return
		}
		fmt.Fprintf(w, `{"token_type":"Bearer","access_token":"access-%d","refresh_token":"refresh-%d","expires_at":%d,"expires_in":21600}`,
			n, n, time.Now().Add(6*time.Hour).Unix())
	}))
	t.Cleanup(ts.Close)
	return ts
}

func newTestManager(t *testing.T, tokenURL string, store *FileStore) *TokenManager {
	t.Helper()
	tm, err := NewTokenManager(Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RefreshToken: "refresh-0",
		TokenURL:     tokenURL,
		Store:        store,
		Logger:       discardLogger,
	})
	if err != nil {
		t.Fatalf("NewTokenManager() error = %v", err)
	}
	return tm
}

func TestNewTokenManagerRequiresCredentials(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"nothing", Config{}},
		{"no secret", Config{ClientID: "id", RefreshToken: "r"}},
		{"no refresh token", Config{ClientID: "id", ClientSecret: "s"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.Logger = discardLogger
			tm, err := NewTokenManager(tt.cfg)
			if tm != nil {
				t.Error("NewTokenManager() should not return a manager")
			}
			if !errors.Is(err, ride.ErrConfiguration) {
				t.Errorf("NewTokenManager() error = %v, want configuration error", err)
			}
		})
	}
}

func TestEnsureValidTokenRefreshesOnce(t *testing.T) {
	ts := newTokenServer(t)
	tm := newTestManager(t, ts.URL, nil)

	token, err := tm.EnsureValidToken(context.Background())
	if err != nil {
		t.Fatalf("EnsureValidToken() error = %v", err)
	}
	if token != "access-1" {
		t.Errorf("EnsureValidToken() = %q, want access-1", token)
	}

	form := ts.lastForm.Load().(url.Values)
	if got := form.Get("grant_type"); got != "refresh_token" {
		t.Errorf("grant_type = %q, want refresh_token", got)
	}
	if got := form.Get("refresh_token"); got != "refresh-0" {
		t.Errorf("refresh_token = %q, want refresh-0", got)
	}
	if got := form.Get("client_id"); got != "client-id" {
		t.Errorf("client_id = %q, want client-id", got)
	}

	// A valid token is reused without another call.
	for i := 0; i < 3; i++ {
		if _, err := tm.EnsureValidToken(context.Background()); err != nil {
			t.Fatalf("EnsureValidToken() error = %v", err)
		}
	}
	if got := ts.calls.Load(); got != 1 {
		t.Errorf("token endpoint calls = %d, want 1", got)
	}
}

func TestEnsureValidTokenRefreshesExpired(t *testing.T) {
	ts := newTokenServer(t)
	tm := newTestManager(t, ts.URL, nil)
	tm.token = &Token{AccessToken: "stale", RefreshToken: "refresh-0", Expiry: time.Now().Add(-time.Minute)}

	token, err := tm.EnsureValidToken(context.Background())
	if err != nil {
		t.Fatalf("EnsureValidToken() error = %v", err)
	}
	if token != "access-1" {
		t.Errorf("EnsureValidToken() = %q, want access-1", token)
	}
	if got := ts.calls.Load(); got != 1 {
		t.Errorf("token endpoint calls = %d, want 1", got)
	}
	if tm.refreshToken != "refresh-1" {
		t.Errorf("refresh token = %q, want rotated refresh-1", tm.refreshToken)
	}
}

func TestExpiresAtOverridesExpiresIn(t *testing.T) {
	expiresAt := time.Now().Add(90 * time.Minute).Unix()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"a","refresh_token":"r","expires_at":%d,"expires_in":60}`, expiresAt)
	}))
	defer server.Close()

	tm := newTestManager(t, server.URL, nil)
	token, err := tm.ForceRefresh(context.Background())
	if err != nil {
		t.Fatalf("ForceRefresh() error = %v", err)
	}
	if token.Expiry.Unix() != expiresAt {
		t.Errorf("Expiry = %v, want %v", token.Expiry.Unix(), expiresAt)
	}
}

func TestRefreshFailureKeepsPriorToken(t *testing.T) {
	tests := []struct {
		name   string
		status int
		kind   error
	}{
		{"rejected refresh token", http.StatusBadRequest, ride.ErrAuthentication},
		{"revoked app", http.StatusUnauthorized, ride.ErrAuthentication},
		{"token endpoint down", http.StatusBadGateway, ride.ErrNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTokenServer(t)
			ts.status.Store(int32(tt.status))
			tm := newTestManager(t, ts.URL, nil)

			prior := &Token{AccessToken: "prior", RefreshToken: "refresh-0", Expiry: time.Now().Add(-time.Minute)}
			tm.token = prior

			_, err := tm.EnsureValidToken(context.Background())
			if !errors.Is(err, tt.kind) {
				t.Errorf("EnsureValidToken() error = %v, want %v", err, tt.kind)
			}
			if tm.token != prior || tm.token.AccessToken != "prior" {
				t.Error("failed refresh must leave the prior token untouched")
			}
			if tm.refreshToken != "refresh-0" {
				t.Errorf("refresh token = %q, want refresh-0", tm.refreshToken)
			}
			if got := ts.calls.Load(); got != 1 {
				t.Errorf("token endpoint calls = %d, want exactly 1", got)
			}
		})
	}
}

func TestRefreshNetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	tokenURL := server.URL
	server.Close()

	tm := newTestManager(t, tokenURL, nil)
	_, err := tm.EnsureValidToken(context.Background())
	if !errors.Is(err, ride.ErrNetwork) {
		t.Errorf("EnsureValidToken() error = %v, want network error", err)
	}
}

func TestRefreshPersistsRotatedToken(t *testing.T) {
	ts := newTokenServer(t)
	store := &FileStore{path: filepath.Join(t.TempDir(), "token.json")}
	tm := newTestManager(t, ts.URL, store)

	if _, err := tm.ForceRefresh(context.Background()); err != nil {
		t.Fatalf("ForceRefresh() error = %v", err)
	}

	saved, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if saved == nil || saved.RefreshToken != "refresh-1" || saved.AccessToken != "access-1" {
		t.Fatalf("saved token = %+v, want rotated token", saved)
	}

	// A new manager picks the rotated refresh token up from disk.
	next := newTestManager(t, ts.URL, store)
	if next.refreshToken != "refresh-1" {
		t.Errorf("refresh token = %q, want refresh-1 from store", next.refreshToken)
	}
	if _, err := next.EnsureValidToken(context.Background()); err != nil {
		t.Fatalf("EnsureValidToken() error = %v", err)
	}
	if got := ts.calls.Load(); got != 1 {
		t.Errorf("token endpoint calls = %d, want 1 (stored token still valid)", got)
	}
}

func TestAdopt(t *testing.T) {
	store := &FileStore{path: filepath.Join(t.TempDir(), "token.json")}
	tm := newTestManager(t, "http://127.0.0.1:0", store)

	if err := tm.Adopt(&Token{AccessToken: "a"}); !errors.Is(err, ride.ErrAuthentication) {
		t.Errorf("Adopt() without refresh token error = %v", err)
	}

	err := tm.Adopt(&Token{AccessToken: "a", RefreshToken: "r", AthleteID: "42", Expiry: time.Now().Add(time.Hour)})
	if err != nil {
		t.Fatalf("Adopt() error = %v", err)
	}

	status := tm.Status()
	if !status.HasAccessToken || status.Expired || status.AthleteID != "42" {
		t.Errorf("Status() = %+v", status)
	}
	if status.StorePath != store.Path() {
		t.Errorf("StorePath = %q, want %q", status.StorePath, store.Path())
	}
	if status.ExpiresAt == nil || status.ExpiresIn == "" {
		t.Error("Status() should report expiry")
	}
}

func TestStatusWithoutToken(t *testing.T) {
	tm := newTestManager(t, "http://127.0.0.1:0", nil)
	status := tm.Status()
	if status.HasAccessToken || !status.Expired || !status.HasRefreshToken {
		t.Errorf("Status() = %+v", status)
	}
}

func TestFileStoreLoadSave(t *testing.T) {
	tokenPath := filepath.Join(t.TempDir(), "nested", "token.json")
	store, err := NewFileStore(tokenPath)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}

	token, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v, want nil for non-existent file", err)
	}
	if token != nil {
		t.Error("Load() should return nil for non-existent file")
	}

	testToken := &Token{
		AccessToken:  "test-access-token",
		RefreshToken: "test-refresh-token",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(1 * time.Hour),
	}
	if err := store.Save(testToken); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(tokenPath)
	if err != nil {
		t.Fatalf("stat error: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("file permissions = %v, want 0600", info.Mode().Perm())
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.AccessToken != testToken.AccessToken {
		t.Errorf("AccessToken = %v, want %v", loaded.AccessToken, testToken.AccessToken)
	}
	if loaded.RefreshToken != testToken.RefreshToken {
		t.Errorf("RefreshToken = %v, want %v", loaded.RefreshToken, testToken.RefreshToken)
	}
}

func TestFileStoreDelete(t *testing.T) {
	tokenPath := filepath.Join(t.TempDir(), "token.json")
	store := &FileStore{path: tokenPath}

	if err := store.Delete(); err != nil {
		t.Errorf("Delete() non-existent file error = %v", err)
	}

	if err := os.WriteFile(tokenPath, []byte("{}"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(); err != nil {
		t.Errorf("Delete() error = %v", err)
	}
	if _, err := os.Stat(tokenPath); !os.IsNotExist(err) {
		t.Error("file should be deleted")
	}
}

func TestDefaultStorePath(t *testing.T) {
	store, err := NewFileStore("")
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	if !filepath.IsAbs(store.Path()) {
		t.Error("default store path should be absolute")
	}
	if filepath.Base(store.Path()) != tokenFileName {
		t.Errorf("store path should end with %s, got %v", tokenFileName, store.Path())
	}
}
