package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"html"
	"log/slog"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/xokvictor/miles-mcp/pkg/ride"
)

const (
	callbackPort  = 8080
	callbackPath  = "/callback"
	authTimeout   = 5 * time.Minute
	defaultScopes = "read,activity:read_all"
	redirectURI   = "http://localhost:8080/callback"
)

// OAuthConfig contains settings for the browser authorization flow. The
// client credentials are only used when no TokenManager is supplied, as on
// first-time setup before any refresh token exists.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       string
	Store        *FileStore
	HTTPClient   *http.Client
	Logger       *slog.Logger
}

func (c OAuthConfig) oauth2Config() oauth2.Config {
	cfg := oauth2.Config{
		ClientID:     strings.TrimSpace(c.ClientID),
		ClientSecret: strings.TrimSpace(c.ClientSecret),
		Endpoint: oauth2.Endpoint{
			AuthURL:   AuthURL,
			TokenURL:  c.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	if cfg.Endpoint.TokenURL == "" {
		cfg.Endpoint.TokenURL = TokenURL
	}
	return cfg
}

// AuthResult contains the result of the OAuth authorization flow.
type AuthResult struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	AthleteID    string `json:"athlete_id,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	AuthURL      string `json:"auth_url,omitempty"`
}

// StartAuthFlow runs the Strava authorization code flow. It starts a local
// callback server, opens the browser, exchanges the returned code and hands
// the resulting token to tokenManager, or saves it to config.Store when
// tokenManager is nil.
func StartAuthFlow(ctx context.Context, config OAuthConfig, tokenManager *TokenManager) (*AuthResult, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	oauthCfg, httpClient := config.oauth2Config(), config.HTTPClient
	if tokenManager != nil {
		oauthCfg, httpClient = tokenManager.OAuthConfig(), tokenManager.HTTPClient()
	}
	if oauthCfg.ClientID == "" || oauthCfg.ClientSecret == "" {
		return nil, fmt.Errorf("%w: strava client id and secret are required", ride.ErrConfiguration)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}

	state, err := generateState()
	if err != nil {
		return nil, fmt.Errorf("generating state: %w", err)
	}

	codeChan := make(chan string, 1)
	errChan := make(chan error, 1)

	server, err := startCallbackServer(state, codeChan, errChan)
	if err != nil {
		return nil, fmt.Errorf("starting callback server: %w", err)
	}
	defer server.Shutdown(context.Background())

	authURL := buildAuthURL(oauthCfg, config.Scopes, state)

	if err := openBrowser(authURL); err != nil {
		logger.Warn("could not open browser, visit the authorization URL manually", slog.String("url", authURL))
	}

	select {
	case code := <-codeChan:
		token, err := exchangeCode(ctx, oauthCfg, httpClient, code)
		if err != nil {
			return nil, fmt.Errorf("exchanging code: %w", err)
		}

		switch {
		case tokenManager != nil:
			if err := tokenManager.Adopt(token); err != nil {
				return nil, err
			}
		case config.Store != nil:
			if err := config.Store.Save(token); err != nil {
				return nil, fmt.Errorf("saving token: %w", err)
			}
		}

		return &AuthResult{
			Success:      true,
			Message:      "Authorization successful! Token saved.",
			AthleteID:    token.AthleteID,
			RefreshToken: token.RefreshToken,
		}, nil

	case err := <-errChan:
		return nil, err

	case <-time.After(authTimeout):
		return &AuthResult{
			Success: false,
			Message: "Authorization timed out. Please try again.",
			AuthURL: authURL,
		}, nil

	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// buildAuthURL keeps Strava's comma separated scope list as a single value.
func buildAuthURL(cfg oauth2.Config, scopes, state string) string {
	if scopes == "" {
		scopes = defaultScopes
	}
	cfg.RedirectURL = redirectURI
	cfg.Scopes = []string{scopes}
	return cfg.AuthCodeURL(state, oauth2.SetAuthURLParam("approval_prompt", "auto"))
}

func startCallbackServer(expectedState string, codeChan chan<- string, errChan chan<- error) (*http.Server, error) {
	mux := http.NewServeMux()

	mux.HandleFunc(callbackPath, func(w http.ResponseWriter, r *http.Request) {
		state := r.URL.Query().Get("state")
		if state != expectedState {
			errChan <- fmt.Errorf("invalid state parameter")
			http.Error(w, "Invalid state", http.StatusBadRequest)
			return
		}

		if errMsg := r.URL.Query().Get("error"); errMsg != "" {
			errChan <- fmt.Errorf("authorization error: %s", errMsg)
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprintf(w, `<html><body><h1>Authorization Failed</h1><p>%s</p></body></html>`, html.EscapeString(errMsg))
			return
		}

		code := r.URL.Query().Get("code")
		if code == "" {
			errChan <- fmt.Errorf("no authorization code received")
			http.Error(w, "No code received", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><h1>Strava authorization complete</h1><p>You can close this window.</p><script>setTimeout(function(){window.close();},3000);</script></body></html>`)
		codeChan <- code
	})

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", callbackPort))
	if err != nil {
		return nil, fmt.Errorf("port %d is already in use: %w", callbackPort, err)
	}

	server := &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("callback server error: %w", err)
		}
	}()

	return server, nil
}

func openBrowser(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	return cmd.Start()
}

func exchangeCode(ctx context.Context, cfg oauth2.Config, client *http.Client, code string) (*Token, error) {
	cfg.RedirectURL = redirectURI
	ctx = context.WithValue(ctx, oauth2.HTTPClient, client)

	ot, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, classifyTokenError(err)
	}
	return fromOAuth(ot), nil
}
