package gdrive

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/tonimelisma/drive2s3/internal/tokenfile"
)

// stateTokenBytes is the number of random bytes for the OAuth2 state parameter.
const stateTokenBytes = 16

// callbackPath is the HTTP path the OAuth2 redirect hits on the local server.
const callbackPath = "/"

// shutdownTimeout is how long to wait for the callback server to drain.
const shutdownTimeout = 5 * time.Second

// OAuthConfig reads a Google "installed application" client secret file and
// returns an oauth2.Config requesting scopes.
func OAuthConfig(clientSecretFile string, scopes []string) (*oauth2.Config, error) {
	data, err := os.ReadFile(clientSecretFile)
	if err != nil {
		return nil, fmt.Errorf("gdrive: reading client secret file: %w", err)
	}

	cfg, err := google.ConfigFromJSON(data, scopes...)
	if err != nil {
		return nil, fmt.Errorf("gdrive: parsing client secret file %s: %w", clientSecretFile, err)
	}

	return cfg, nil
}

// LoadOrRefreshCredential loads the cached token at tokenPath and returns a
// TokenSource that refreshes it when needed. Every token change is written
// back to tokenPath before the new token is used. The token is refreshed
// up front when expired, so a revoked grant fails here rather than mid-run.
//
// Returns ErrNotLoggedIn when there is no usable cached token: no file, a
// token issued for another client or scope set, or a refresh token the
// server no longer accepts.
//
// ctx must outlive the TokenSource; refreshes use it.
func LoadOrRefreshCredential(
	ctx context.Context,
	cfg *oauth2.Config,
	tokenPath string,
	logger *slog.Logger,
) (TokenSource, error) {
	tok, meta, err := tokenfile.Load(tokenPath)
	if err != nil {
		return nil, err
	}

	if tok == nil {
		return nil, ErrNotLoggedIn
	}

	if !meta.Matches(cfg.ClientID, cfg.Scopes) {
		logger.Warn("cached token was issued for a different client or scopes",
			slog.String("path", tokenPath),
		)

		return nil, ErrNotLoggedIn
	}

	expired := !tok.Expiry.IsZero() && tok.Expiry.Before(time.Now())
	logger.Info("loaded saved token",
		slog.String("path", tokenPath),
		slog.Time("expiry", tok.Expiry),
		slog.Bool("expired", expired),
	)

	src := newPersistingSource(cfg.TokenSource(ctx, tok), tok, tokenPath, tokenMeta(cfg), logger)

	if _, err := src.Token(); err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.ErrorCode == "invalid_grant" {
			logger.Warn("refresh token rejected, login required", slog.String("path", tokenPath))

			return nil, fmt.Errorf("%w: %w", ErrNotLoggedIn, err)
		}

		return nil, fmt.Errorf("gdrive: refreshing token: %w", err)
	}

	return &tokenBridge{src: src, logger: logger}, nil
}

// Logout removes the cached token. A missing file means already logged out.
func Logout(tokenPath string, logger *slog.Logger) error {
	if err := tokenfile.Remove(tokenPath); err != nil {
		return err
	}

	logger.Info("logout: token cache cleared", slog.String("path", tokenPath))

	return nil
}

func tokenMeta(cfg *oauth2.Config) tokenfile.Meta {
	return tokenfile.Meta{ClientID: cfg.ClientID, Scopes: cfg.Scopes}
}

// persistingSource wraps an oauth2.TokenSource and saves every token that
// differs from the last one saved. A save failure is returned so a refreshed
// token is never used without being cached.
type persistingSource struct {
	src       oauth2.TokenSource
	tokenPath string
	meta      tokenfile.Meta
	logger    *slog.Logger

	mu   sync.Mutex
	last string // access token last written to disk
}

func newPersistingSource(
	src oauth2.TokenSource,
	initial *oauth2.Token,
	tokenPath string,
	meta tokenfile.Meta,
	logger *slog.Logger,
) *persistingSource {
	return &persistingSource{
		src:       src,
		tokenPath: tokenPath,
		meta:      meta,
		logger:    logger,
		last:      initial.AccessToken,
	}
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := p.src.Token()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if tok.AccessToken == p.last {
		return tok, nil
	}

	if err := tokenfile.Save(p.tokenPath, tok, p.meta); err != nil {
		p.logger.Warn("failed to persist refreshed token",
			slog.String("path", p.tokenPath),
			slog.String("error", err.Error()),
		)

		return nil, fmt.Errorf("gdrive: persisting refreshed token: %w", err)
	}

	p.last = tok.AccessToken
	p.logger.Info("persisted refreshed token",
		slog.String("path", p.tokenPath),
		slog.Time("new_expiry", tok.Expiry),
	)

	return tok, nil
}

// tokenBridge adapts oauth2.TokenSource to gdrive.TokenSource.
type tokenBridge struct {
	src    oauth2.TokenSource
	logger *slog.Logger
}

func (b *tokenBridge) Token() (string, error) {
	t, err := b.src.Token()
	if err != nil {
		b.logger.Warn("token acquisition failed", slog.String("error", err.Error()))
		return "", fmt.Errorf("gdrive: obtaining token: %w", err)
	}

	b.logger.Debug("token acquired",
		slog.Time("expiry", t.Expiry),
		slog.Bool("valid", t.Valid()),
	)

	return t.AccessToken, nil
}

// callbackResult carries the authorization code or error from the callback handler.
type callbackResult struct {
	code string
	err  error
}

// Login performs the authorization code + PKCE flow against Google:
//  1. Binds a loopback HTTP server on a random port
//  2. Hands the authorization URL to openURL (normally a browser launcher)
//  3. Receives the callback with the authorization code
//  4. Exchanges the code for tokens using the PKCE verifier
//  5. Saves the token to tokenPath
//
// If openURL fails, the URL is printed to stderr for manual use.
func Login(
	ctx context.Context,
	cfg *oauth2.Config,
	tokenPath string,
	openURL func(string) error,
	logger *slog.Logger,
) (TokenSource, error) {
	logger.Info("starting browser auth flow (authorization code + PKCE)",
		slog.String("path", tokenPath),
	)

	resultCh := make(chan callbackResult, 1)
	mux := http.NewServeMux()

	srv, port, err := startCallbackServer(ctx, mux, resultCh, logger)
	if err != nil {
		return nil, err
	}

	defer shutdownCallbackServer(srv, logger)

	// Work on a copy: the redirect URL is specific to this listener.
	flowCfg := *cfg
	flowCfg.RedirectURL = fmt.Sprintf("http://127.0.0.1:%d%s", port, callbackPath)

	verifier := oauth2.GenerateVerifier()

	state, err := generateState()
	if err != nil {
		return nil, fmt.Errorf("gdrive: generating state token: %w", err)
	}

	registerCallbackHandler(mux, state, resultCh)

	authURL := flowCfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.S256ChallengeOption(verifier),
	)

	launchBrowser(authURL, openURL, logger)

	code, err := waitForCallback(ctx, resultCh)
	if err != nil {
		return nil, err
	}

	return exchangeAndSave(ctx, &flowCfg, tokenPath, code, verifier, logger)
}

// startCallbackServer binds to 127.0.0.1:0 and serves mux.
func startCallbackServer(
	ctx context.Context,
	mux *http.ServeMux,
	resultCh chan<- callbackResult,
	logger *slog.Logger,
) (*http.Server, int, error) {
	lc := net.ListenConfig{}

	listener, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		return nil, 0, fmt.Errorf("gdrive: binding localhost listener: %w", err)
	}

	tcpAddr, ok := listener.Addr().(*net.TCPAddr)
	if !ok {
		listener.Close()
		return nil, 0, errors.New("gdrive: listener address is not TCP")
	}

	port := tcpAddr.Port
	logger.Info("callback server listening", slog.Int("port", port))

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: shutdownTimeout,
	}

	go func() {
		if serveErr := srv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			sendResult(resultCh, callbackResult{err: fmt.Errorf("gdrive: callback server error: %w", serveErr)})
		}
	}()

	return srv, port, nil
}

// registerCallbackHandler adds the callback route to the mux.
func registerCallbackHandler(mux *http.ServeMux, state string, resultCh chan<- callbackResult) {
	mux.HandleFunc("GET "+callbackPath, func(w http.ResponseWriter, r *http.Request) {
		handleOAuthCallback(w, r, state, resultCh)
	})
}

// handleOAuthCallback validates the state, extracts the code, and sends the result.
func handleOAuthCallback(w http.ResponseWriter, r *http.Request, state string, resultCh chan<- callbackResult) {
	query := r.URL.Query()

	if query.Get("state") != state {
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		sendResult(resultCh, callbackResult{err: errors.New("gdrive: OAuth2 state mismatch (possible CSRF)")})

		return
	}

	if errParam := query.Get("error"); errParam != "" {
		http.Error(w, "Authorization failed: "+errParam, http.StatusBadRequest)
		sendResult(resultCh, callbackResult{err: fmt.Errorf("gdrive: authorization failed: %s: %s",
			errParam, query.Get("error_description"))})

		return
	}

	code := query.Get("code")
	if code == "" {
		http.Error(w, "Missing authorization code", http.StatusBadRequest)
		sendResult(resultCh, callbackResult{err: errors.New("gdrive: callback missing authorization code")})

		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, "<html><body><h1>Authentication successful</h1>"+
		"<p>You can close this window and return to the terminal.</p></body></html>")
	sendResult(resultCh, callbackResult{code: code})
}

// sendResult delivers the first result; later ones (a reloaded tab) are dropped.
func sendResult(resultCh chan<- callbackResult, res callbackResult) {
	select {
	case resultCh <- res:
	default:
	}
}

func shutdownCallbackServer(srv *http.Server, logger *slog.Logger) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("callback server shutdown error", slog.String("error", err.Error()))
	}
}

// launchBrowser attempts to open the auth URL, printing it to stderr when
// that fails.
func launchBrowser(authURL string, openURL func(string) error, logger *slog.Logger) {
	logger.Info("opening browser for authorization")

	if openErr := openURL(authURL); openErr != nil {
		logger.Warn("failed to open browser, printing URL",
			slog.String("error", openErr.Error()),
		)

		fmt.Fprintf(os.Stderr, "Open this URL in your browser:\n%s\n", authURL)
	}
}

// waitForCallback blocks until the callback fires or the context is canceled.
func waitForCallback(ctx context.Context, resultCh <-chan callbackResult) (string, error) {
	select {
	case result := <-resultCh:
		if result.err != nil {
			return "", result.err
		}

		return result.code, nil
	case <-ctx.Done():
		return "", fmt.Errorf("gdrive: browser auth canceled: %w", ctx.Err())
	}
}

// exchangeAndSave exchanges the auth code for a token and persists it.
func exchangeAndSave(
	ctx context.Context,
	cfg *oauth2.Config,
	tokenPath, code, verifier string,
	logger *slog.Logger,
) (TokenSource, error) {
	logger.Info("received authorization code, exchanging for token")

	tok, err := cfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("gdrive: token exchange failed: %w", err)
	}

	if saveErr := tokenfile.Save(tokenPath, tok, tokenMeta(cfg)); saveErr != nil {
		return nil, fmt.Errorf("gdrive: saving token: %w", saveErr)
	}

	logger.Info("browser login successful",
		slog.String("path", tokenPath),
		slog.Time("expiry", tok.Expiry),
	)

	src := newPersistingSource(cfg.TokenSource(ctx, tok), tok, tokenPath, tokenMeta(cfg), logger)

	return &tokenBridge{src: src, logger: logger}, nil
}

// generateState produces a random hex string for the OAuth2 state parameter.
func generateState() (string, error) {
	b := make([]byte, stateTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}
