// Package auth manages the Strava OAuth token lifecycle: refreshing access
// tokens, persisting rotated refresh tokens, and the one-time browser
// authorization flow.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/xokvictor/miles-mcp/pkg/parse"
	"github.com/xokvictor/miles-mcp/pkg/ride"
)

const (
	AuthURL  = "https://www.strava.com/oauth/authorize"
	TokenURL = "https://www.strava.com/oauth/token"

	expiryBuffer   = 5 * time.Minute
	defaultTimeout = 30 * time.Second
)

// Token is an OAuth token as held in memory and on disk.
type Token struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	Expiry       time.Time `json:"expiry"`
	AthleteID    string    `json:"athlete_id,omitempty"`
}

// IsExpired returns true if there is no access token or it expires within
// five minutes. A token without an expiry never expires.
func (t *Token) IsExpired() bool {
	if t.AccessToken == "" {
		return true
	}
	if t.Expiry.IsZero() {
		return false
	}
	return time.Now().Add(expiryBuffer).After(t.Expiry)
}

// ExpiresIn returns the duration until the token expires.
func (t *Token) ExpiresIn() time.Duration {
	if t.Expiry.IsZero() {
		return 0
	}
	return time.Until(t.Expiry)
}

// Config configures a TokenManager. ClientID, ClientSecret and a refresh
// token (here or in Store) are required.
type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	TokenURL     string
	Store        *FileStore
	HTTPClient   *http.Client
	Timeout      time.Duration
	Logger       *slog.Logger
}

// TokenStatus is a point-in-time view of the manager's token.
type TokenStatus struct {
	HasAccessToken  bool       `json:"has_access_token"`
	HasRefreshToken bool       `json:"has_refresh_token"`
	Expired         bool       `json:"expired"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	ExpiresIn       string     `json:"expires_in,omitempty"`
	AthleteID       string     `json:"athlete_id,omitempty"`
	StorePath       string     `json:"store_path,omitempty"`
}

// TokenManager hands out valid access tokens, refreshing them through the
// token endpoint when they are absent or about to expire. The stored token is
// only replaced by a fully successful refresh.
type TokenManager struct {
	mu           sync.Mutex
	oauth        oauth2.Config
	refreshToken string
	token        *Token
	store        *FileStore
	httpClient   *http.Client
	logger       *slog.Logger
}

// NewTokenManager validates cfg and creates a TokenManager. A refresh token
// saved in cfg.Store takes precedence over cfg.RefreshToken, since Strava
// rotates refresh tokens.
func NewTokenManager(cfg Config) (*TokenManager, error) {
	tm := &TokenManager{
		oauth: oauth2.Config{
			ClientID:     strings.TrimSpace(cfg.ClientID),
			ClientSecret: strings.TrimSpace(cfg.ClientSecret),
			Endpoint: oauth2.Endpoint{
				AuthURL:   AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		refreshToken: strings.TrimSpace(cfg.RefreshToken),
		store:        cfg.Store,
		httpClient:   cfg.HTTPClient,
		logger:       cfg.Logger,
	}
	if tm.oauth.Endpoint.TokenURL == "" {
		tm.oauth.Endpoint.TokenURL = TokenURL
	}
	if tm.logger == nil {
		tm.logger = slog.Default()
	}
	if tm.httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		tm.httpClient = &http.Client{Timeout: timeout}
	}

	if tm.store != nil {
		saved, err := tm.store.Load()
		if err != nil {
			tm.logger.Warn("ignoring unreadable token file", slog.String("path", tm.store.Path()), slog.Any("error", err))
		} else if saved != nil && saved.RefreshToken != "" {
			tm.token = saved
			tm.refreshToken = saved.RefreshToken
		}
	}

	var missing []string
	if tm.oauth.ClientID == "" {
		missing = append(missing, "client id")
	}
	if tm.oauth.ClientSecret == "" {
		missing = append(missing, "client secret")
	}
	if tm.refreshToken == "" {
		missing = append(missing, "refresh token")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: strava %s not set", ride.ErrConfiguration, strings.Join(missing, ", "))
	}
	return tm, nil
}

// EnsureValidToken returns the current access token, refreshing it first if
// it is missing or expired.
func (tm *TokenManager) EnsureValidToken(ctx context.Context) (string, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.token != nil && !tm.token.IsExpired() {
		return tm.token.AccessToken, nil
	}
	token, err := tm.refreshLocked(ctx)
	if err != nil {
		return "", err
	}
	return token.AccessToken, nil
}

// ForceRefresh refreshes the access token regardless of its expiry.
func (tm *TokenManager) ForceRefresh(ctx context.Context) (*Token, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	token, err := tm.refreshLocked(ctx)
	if err != nil {
		return nil, err
	}
	cp := *token
	return &cp, nil
}

// Adopt installs a token obtained elsewhere, such as the authorization flow,
// and persists it when a store is configured.
func (tm *TokenManager) Adopt(token *Token) error {
	if token == nil || token.RefreshToken == "" {
		return fmt.Errorf("%w: token has no refresh token", ride.ErrAuthentication)
	}

	tm.mu.Lock()
	defer tm.mu.Unlock()

	cp := *token
	tm.token = &cp
	tm.refreshToken = cp.RefreshToken
	if tm.store != nil {
		if err := tm.store.Save(&cp); err != nil {
			return fmt.Errorf("saving token: %w", err)
		}
	}
	return nil
}

// Status reports the current token without refreshing it.
func (tm *TokenManager) Status() TokenStatus {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	status := TokenStatus{HasRefreshToken: tm.refreshToken != ""}
	if tm.store != nil {
		status.StorePath = tm.store.Path()
	}
	if tm.token == nil {
		status.Expired = true
		return status
	}

	status.HasAccessToken = tm.token.AccessToken != ""
	status.Expired = tm.token.IsExpired()
	status.AthleteID = tm.token.AthleteID
	if !tm.token.Expiry.IsZero() {
		expiry := tm.token.Expiry
		status.ExpiresAt = &expiry
		if d := tm.token.ExpiresIn(); d > 0 {
			status.ExpiresIn = d.Round(time.Second).String()
		}
	}
	return status
}

// OAuthConfig exposes the underlying oauth2 configuration for the
// authorization flow.
func (tm *TokenManager) OAuthConfig() oauth2.Config {
	return tm.oauth
}

// HTTPClient returns the client used for token requests.
func (tm *TokenManager) HTTPClient() *http.Client {
	return tm.httpClient
}

func (tm *TokenManager) refreshLocked(ctx context.Context) (*Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, tm.httpClient)
	src := tm.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: tm.refreshToken})

	ot, err := src.Token()
	if err != nil {
		return nil, classifyTokenError(err)
	}

	token := fromOAuth(ot)
	if token.RefreshToken == "" {
		token.RefreshToken = tm.refreshToken
	}
	if token.AthleteID == "" && tm.token != nil {
		token.AthleteID = tm.token.AthleteID
	}

	tm.token = token
	tm.refreshToken = token.RefreshToken
	tm.logger.Info("strava token refreshed", slog.Time("expires_at", token.Expiry))

	if tm.store != nil {
		if err := tm.store.Save(token); err != nil {
			tm.logger.Warn("failed to persist refreshed token", slog.String("path", tm.store.Path()), slog.Any("error", err))
		}
	}
	return token, nil
}

// classifyTokenError separates rejected credentials from transport trouble.
func classifyTokenError(err error) error {
	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) {
		if rErr.Response != nil && rErr.Response.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("%w: refreshing strava token: %w", ride.ErrNetwork, err)
		}
		return fmt.Errorf("%w: refreshing strava token: %w", ride.ErrAuthentication, err)
	}

	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: refreshing strava token: %w", ride.ErrNetwork, err)
	}
	return fmt.Errorf("%w: refreshing strava token: %w", ride.ErrAuthentication, err)
}

// fromOAuth converts an oauth2 token, honouring Strava's absolute expires_at
// and the athlete summary returned on code exchange.
func fromOAuth(ot *oauth2.Token) *Token {
	token := &Token{
		AccessToken:  ot.AccessToken,
		RefreshToken: ot.RefreshToken,
		TokenType:    ot.TokenType,
		Expiry:       ot.Expiry,
	}
	if at := parse.Float(ot.Extra("expires_at"), 0); at > 0 {
		token.Expiry = time.Unix(int64(at), 0)
	}
	if athlete, ok := ot.Extra("athlete").(map[string]interface{}); ok {
		if id := parse.Float(athlete["id"], 0); id > 0 {
			token.AthleteID = strconv.FormatInt(int64(id), 10)
		}
	}
	return token
}
