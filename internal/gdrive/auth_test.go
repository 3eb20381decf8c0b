package gdrive

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/tonimelisma/drive2s3/internal/tokenfile"
)

const (
	testClientID = "test-client.apps.googleusercontent.com"
	testScope    = "https://www.googleapis.com/auth/drive"
)

const testTokenJSON = `{
	"access_token": "test-access-token",
	"refresh_token": "test-refresh-token",
	"token_type": "Bearer",
	"expires_in": 3600
}`

// newMockOAuthServer serves an authorize endpoint that redirects back with a
// code, and a token endpoint driven by tokenHandler.
func newMockOAuthServer(t *testing.T, tokenHandler http.HandlerFunc) oauth2.Endpoint {
	t.Helper()

	mux := http.NewServeMux()

	mux.HandleFunc("GET /authorize", func(w http.ResponseWriter, r *http.Request) {
		redirectURI := r.URL.Query().Get("redirect_uri")
		state := r.URL.Query().Get("state")
		http.Redirect(w, r, redirectURI+"?code=test-auth-code&state="+url.QueryEscape(state), http.StatusFound)
	})

	if tokenHandler == nil {
		tokenHandler = func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(testTokenJSON))
		}
	}

	mux.HandleFunc("POST /token", tokenHandler)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return oauth2.Endpoint{
		AuthURL:   srv.URL + "/authorize",
		TokenURL:  srv.URL + "/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
}

func testOAuthConfig(endpoint oauth2.Endpoint) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     testClientID,
		ClientSecret: "test-secret",
		Endpoint:     endpoint,
		Scopes:       []string{testScope},
	}
}

// simulateBrowserCallback acts as the browser: fetches the auth URL and
// follows the redirect to the loopback callback server itself.
func simulateBrowserCallback(t *testing.T) func(string) error {
	t.Helper()

	client := &http.Client{
		CheckRedirect: func(_ *http.Request, _ []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return func(authURL string) error {
		resp, err := client.Get(authURL) //nolint:noctx // test helper
		require.NoError(t, err)
		resp.Body.Close()

		location := resp.Header.Get("Location")
		require.NotEmpty(t, location, "authorize endpoint must redirect")

		callbackResp, err := http.Get(location) //nolint:noctx // test helper
		require.NoError(t, err)
		callbackResp.Body.Close()

		return nil
	}
}

func TestOAuthConfig_FromClientSecretFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client_secret.json")
	secret := `{"installed":{"client_id":"cid.apps.googleusercontent.com","client_secret":"shh",` +
		`"auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token",` +
		`"redirect_uris":["http://localhost"]}}`
	require.NoError(t, os.WriteFile(path, []byte(secret), 0o600))

	cfg, err := OAuthConfig(path, []string{testScope})
	require.NoError(t, err)
	assert.Equal(t, "cid.apps.googleusercontent.com", cfg.ClientID)
	assert.Equal(t, []string{testScope}, cfg.Scopes)
	assert.Equal(t, "https://oauth2.googleapis.com/token", cfg.Endpoint.TokenURL)
}

func TestOAuthConfig_MissingFile(t *testing.T) {
	_, err := OAuthConfig(filepath.Join(t.TempDir(), "absent.json"), []string{testScope})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading client secret file")
}

func TestOAuthConfig_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client_secret.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"web":`), 0o600))

	_, err := OAuthConfig(path, []string{testScope})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing client secret file")
}

func TestLoadOrRefreshCredential_NoFile(t *testing.T) {
	cfg := testOAuthConfig(oauth2.Endpoint{})

	_, err := LoadOrRefreshCredential(context.Background(), cfg,
		filepath.Join(t.TempDir(), "google-drive.json"), slog.Default())
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestLoadOrRefreshCredential_ValidTokenNoRefresh(t *testing.T) {
	var tokenCalls atomic.Int32

	endpoint := newMockOAuthServer(t, func(w http.ResponseWriter, _ *http.Request) {
		tokenCalls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})
	cfg := testOAuthConfig(endpoint)

	path := filepath.Join(t.TempDir(), "google-drive.json")
	require.NoError(t, tokenfile.Save(path, &oauth2.Token{
		AccessToken:  "still-good",
		RefreshToken: "r",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(time.Hour),
	}, tokenMeta(cfg)))

	ts, err := LoadOrRefreshCredential(context.Background(), cfg, path, slog.Default())
	require.NoError(t, err)

	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "still-good", tok)
	assert.Zero(t, tokenCalls.Load())
}

func TestLoadOrRefreshCredential_RefreshPersistsNewToken(t *testing.T) {
	endpoint := newMockOAuthServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		assert.Equal(t, "old-refresh", r.Form.Get("refresh_token"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "fresh-access",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	cfg := testOAuthConfig(endpoint)

	path := filepath.Join(t.TempDir(), "google-drive.json")
	require.NoError(t, tokenfile.Save(path, &oauth2.Token{
		AccessToken:  "stale-access",
		RefreshToken: "old-refresh",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(-time.Hour),
	}, tokenMeta(cfg)))

	ts, err := LoadOrRefreshCredential(context.Background(), cfg, path, slog.Default())
	require.NoError(t, err)

	// Written through before any API call.
	saved, meta, err := tokenfile.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "fresh-access", saved.AccessToken)
	assert.Equal(t, "old-refresh", saved.RefreshToken)
	assert.Equal(t, tokenMeta(cfg), meta)

	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "fresh-access", tok)
}

func TestLoadOrRefreshCredential_RevokedGrant(t *testing.T) {
	endpoint := newMockOAuthServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Token has been expired or revoked."}`))
	})
	cfg := testOAuthConfig(endpoint)

	path := filepath.Join(t.TempDir(), "google-drive.json")
	require.NoError(t, tokenfile.Save(path, &oauth2.Token{
		AccessToken:  "stale",
		RefreshToken: "revoked",
		Expiry:       time.Now().Add(-time.Hour),
	}, tokenMeta(cfg)))

	_, err := LoadOrRefreshCredential(context.Background(), cfg, path, slog.Default())
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestLoadOrRefreshCredential_RefreshServerError(t *testing.T) {
	endpoint := newMockOAuthServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	cfg := testOAuthConfig(endpoint)

	path := filepath.Join(t.TempDir(), "google-drive.json")
	require.NoError(t, tokenfile.Save(path, &oauth2.Token{
		AccessToken:  "stale",
		RefreshToken: "r",
		Expiry:       time.Now().Add(-time.Hour),
	}, tokenMeta(cfg)))

	_, err := LoadOrRefreshCredential(context.Background(), cfg, path, slog.Default())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotLoggedIn)
	assert.Contains(t, err.Error(), "refreshing token")
}

func TestLoadOrRefreshCredential_ScopeChangeRequiresLogin(t *testing.T) {
	cfg := testOAuthConfig(oauth2.Endpoint{})

	path := filepath.Join(t.TempDir(), "google-drive.json")
	require.NoError(t, tokenfile.Save(path, &oauth2.Token{AccessToken: "a"}, tokenfile.Meta{
		ClientID: testClientID,
		Scopes:   []string{"https://www.googleapis.com/auth/drive.readonly"},
	}))

	_, err := LoadOrRefreshCredential(context.Background(), cfg, path, slog.Default())
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestLogin_Success(t *testing.T) {
	cfg := testOAuthConfig(newMockOAuthServer(t, nil))
	path := filepath.Join(t.TempDir(), "credentials", "google-drive.json")

	ts, err := Login(context.Background(), cfg, path, simulateBrowserCallback(t), slog.Default())
	require.NoError(t, err)

	saved, meta, err := tokenfile.Load(path)
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, "test-access-token", saved.AccessToken)
	assert.Equal(t, "test-refresh-token", saved.RefreshToken)
	assert.Equal(t, testClientID, meta.ClientID)

	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "test-access-token", tok)

	// The caller's config is not mutated by the flow.
	assert.Empty(t, cfg.RedirectURL)
}

func TestLogin_SendsPKCEAndLoopbackRedirect(t *testing.T) {
	var authQuery url.Values

	mux := http.NewServeMux()
	mux.HandleFunc("GET /authorize", func(w http.ResponseWriter, r *http.Request) {
		authQuery = r.URL.Query()
		http.Redirect(w, r, authQuery.Get("redirect_uri")+"?code=c&state="+url.QueryEscape(authQuery.Get("state")),
			http.StatusFound)
	})
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.NotEmpty(t, r.Form.Get("code_verifier"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(testTokenJSON))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := testOAuthConfig(oauth2.Endpoint{AuthURL: srv.URL + "/authorize", TokenURL: srv.URL + "/token"})
	path := filepath.Join(t.TempDir(), "google-drive.json")

	_, err := Login(context.Background(), cfg, path, simulateBrowserCallback(t), slog.Default())
	require.NoError(t, err)

	assert.Equal(t, "S256", authQuery.Get("code_challenge_method"))
	assert.NotEmpty(t, authQuery.Get("code_challenge"))
	assert.Equal(t, "offline", authQuery.Get("access_type"))
	assert.Contains(t, authQuery.Get("redirect_uri"), "http://127.0.0.1:")
}

func TestLogin_InvalidState(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /authorize", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, r.URL.Query().Get("redirect_uri")+"?code=c&state=wrong-state", http.StatusFound)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := testOAuthConfig(oauth2.Endpoint{AuthURL: srv.URL + "/authorize", TokenURL: srv.URL + "/token"})

	_, err := Login(context.Background(), cfg, filepath.Join(t.TempDir(), "t.json"),
		simulateBrowserCallback(t), slog.Default())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "state mismatch")
}

func TestLogin_AuthorizationDenied(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /authorize", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		http.Redirect(w, r, q.Get("redirect_uri")+"?error=access_denied&state="+url.QueryEscape(q.Get("state")),
			http.StatusFound)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := testOAuthConfig(oauth2.Endpoint{AuthURL: srv.URL + "/authorize", TokenURL: srv.URL + "/token"})

	_, err := Login(context.Background(), cfg, filepath.Join(t.TempDir(), "t.json"),
		simulateBrowserCallback(t), slog.Default())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access_denied")
}

func TestLogin_ContextCancel(t *testing.T) {
	cfg := testOAuthConfig(newMockOAuthServer(t, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	// The browser never completes the flow.
	openURL := func(string) error { return nil }

	_, err := Login(ctx, cfg, filepath.Join(t.TempDir(), "t.json"), openURL, slog.Default())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "browser auth canceled")
}

func TestLogout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "google-drive.json")
	require.NoError(t, tokenfile.Save(path, &oauth2.Token{AccessToken: "a"}, tokenfile.Meta{}))

	require.NoError(t, Logout(path, slog.Default()))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Already logged out.
	assert.NoError(t, Logout(path, slog.Default()))
}

func TestPersistingSource_SavesOnlyOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "google-drive.json")
	initial := &oauth2.Token{AccessToken: "same"}

	src := newPersistingSource(oauth2.StaticTokenSource(initial), initial, path, tokenfile.Meta{}, slog.Default())

	_, err := src.Token()
	require.NoError(t, err)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "unchanged token must not be rewritten")

	changed := newPersistingSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "new"}),
		initial, path, tokenfile.Meta{ClientID: "c"}, slog.Default())

	_, err = changed.Token()
	require.NoError(t, err)

	saved, meta, err := tokenfile.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "new", saved.AccessToken)
	assert.Equal(t, "c", meta.ClientID)
}

func TestTokenBridge_Error(t *testing.T) {
	endpoint := newMockOAuthServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	cfg := testOAuthConfig(endpoint)

	bridge := &tokenBridge{
		src:    cfg.TokenSource(context.Background(), &oauth2.Token{RefreshToken: "r", Expiry: time.Now().Add(-time.Hour)}),
		logger: slog.Default(),
	}

	_, err := bridge.Token()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gdrive: obtaining token")
}
