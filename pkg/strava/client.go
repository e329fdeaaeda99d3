// Package strava reads athlete statistics from the Strava API, retrying
// rate-limited and transient failures with exponential backoff.
package strava

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/xokvictor/miles-mcp/pkg/auth"
	"github.com/xokvictor/miles-mcp/pkg/config"
	"github.com/xokvictor/miles-mcp/pkg/ride"
)

const (
	BaseURL = "https://www.strava.com/api/v3"

	defaultTimeout     = 30 * time.Second
	defaultMaxAttempts = 3
	defaultBaseDelay   = time.Second
	maxDelay           = 30 * time.Second
	maxErrorBody       = 512

	// Strava's published application limits.
	defaultShortLimit = 100
	shortWindow       = 15 * time.Minute
	defaultDailyLimit = 1000
	dailyWindow       = 24 * time.Hour
)

// TokenProvider supplies access tokens and can be forced to refresh after
// the API rejects one.
type TokenProvider interface {
	EnsureValidToken(ctx context.Context) (string, error)
	ForceRefresh(ctx context.Context) (*auth.Token, error)
}

// Config configures a Client. AthleteID is required.
type Config struct {
	AthleteID   string
	BaseURL     string
	Timeout     time.Duration
	MaxAttempts int
	BaseDelay   time.Duration
	HTTPClient  *http.Client
	Logger      *slog.Logger

	// ShortLimit caps requests per 15 minutes and DailyLimit per day.
	// Zero selects Strava's defaults (100 and 1000).
	ShortLimit int
	DailyLimit int
}

// Client is the Strava API client.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	athleteID   string
	tokens      TokenProvider
	maxAttempts int
	baseDelay   time.Duration
	logger      *slog.Logger
	short       *rate.Limiter
	daily       *rate.Limiter
}

// NewClient creates a Strava client that authenticates through tokens.
func NewClient(cfg Config, tokens TokenProvider) (*Client, error) {
	athleteID := strings.TrimSpace(cfg.AthleteID)
	if athleteID == "" {
		return nil, fmt.Errorf("%w: strava athlete id not set", ride.ErrConfiguration)
	}
	if id, err := strconv.ParseInt(athleteID, 10, 64); err != nil || id <= 0 {
		return nil, fmt.Errorf("%w: strava athlete id %q is not a positive integer", ride.ErrConfiguration, athleteID)
	}
	if tokens == nil {
		return nil, fmt.Errorf("%w: strava token provider not set", ride.ErrConfiguration)
	}

	c := &Client{
		httpClient:  cfg.HTTPClient,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		athleteID:   athleteID,
		tokens:      tokens,
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.BaseDelay,
		logger:      cfg.Logger,
	}
	if c.httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		c.httpClient = &http.Client{Timeout: timeout}
	}
	if c.baseURL == "" {
		c.baseURL = BaseURL
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = defaultMaxAttempts
	}
	if c.baseDelay <= 0 {
		c.baseDelay = defaultBaseDelay
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.short = newWindowLimiter(cfg.ShortLimit, defaultShortLimit, shortWindow)
	c.daily = newWindowLimiter(cfg.DailyLimit, defaultDailyLimit, dailyWindow)
	return c, nil
}

// Authenticate forces a token refresh and reports whether it produced a
// usable access token.
func (c *Client) Authenticate(ctx context.Context) bool {
	token, err := c.tokens.ForceRefresh(ctx)
	if err != nil {
		c.logger.Warn("strava authentication failed", slog.Any("error", err))
		return false
	}
	if token == nil || token.AccessToken == "" {
		c.logger.Warn("strava authentication returned no access token")
		return false
	}
	c.logger.Info("strava authentication successful")
	return true
}

// ConfigSummary describes the client's settings with identifiers masked.
func (c *Client) ConfigSummary() map[string]string {
	return map[string]string{
		"athlete_id":   config.Mask(c.athleteID),
		"api_base":     c.baseURL,
		"max_attempts": strconv.Itoa(c.maxAttempts),
		"base_delay":   c.baseDelay.String(),
		"short_limit":  strconv.Itoa(c.short.Burst()),
		"daily_limit":  strconv.Itoa(c.daily.Burst()),
	}
}

// newWindowLimiter allows a full window's worth of requests up front and
// refills evenly across the window.
func newWindowLimiter(limit, def int, window time.Duration) *rate.Limiter {
	if limit <= 0 {
		limit = def
	}
	return rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit)
}

// throttle spends one request from both windows. It waits for the 15 minute
// window to refill but fails at once when the daily budget is spent.
func (c *Client) throttle(ctx context.Context) error {
	if c.daily.Tokens() < 1 {
		return fmt.Errorf("%w: daily strava request budget of %d spent", ride.ErrRateLimited, c.daily.Burst())
	}
	if c.short.Tokens() < 1 {
		c.logger.Warn("strava request window full, waiting")
	}
	if err := c.short.Wait(ctx); err != nil {
		return fmt.Errorf("%w: waiting for strava request window: %w", ride.ErrRateLimited, err)
	}
	if !c.daily.Allow() {
		return fmt.Errorf("%w: daily strava request budget of %d spent", ride.ErrRateLimited, c.daily.Burst())
	}
	return nil
}

func (c *Client) newBackOff(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.baseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0.25
	b.MaxInterval = maxDelay
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.maxAttempts-1)), ctx)
}

// doRequest performs a GET with the retry policy: rate limits, 5xx responses
// and transport failures are retried with backoff, a 401 triggers a single
// forced token refresh, and anything else fails immediately.
func (c *Client) doRequest(ctx context.Context, path string) ([]byte, error) {
	var (
		body      []byte
		attempts  int
		refreshed bool
	)

	op := func() error {
		attempts++
		b, err := c.send(ctx, path)
		if isUnauthorized(err) && !refreshed {
			refreshed = true
			c.logger.Info("strava rejected access token, refreshing")
			if _, rerr := c.tokens.ForceRefresh(ctx); rerr != nil {
				return backoff.Permanent(rerr)
			}
			b, err = c.send(ctx, path)
		}
		if err == nil {
			body = b
			return nil
		}
		if ctx.Err() != nil || !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, delay time.Duration) {
		c.logger.Warn("strava request failed, retrying",
			slog.String("path", path),
			slog.Int("attempt", attempts),
			slog.Duration("delay", delay),
			slog.Any("error", err),
		)
	}

	err := backoff.RetryNotify(op, c.newBackOff(ctx), notify)
	if err == nil {
		return body, nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.IsRateLimited() {
		return nil, &RateLimitError{
			Attempts: attempts,
			Limit:    apiErr.RateLimit,
			Usage:    apiErr.RateUsage,
			Err:      err,
		}
	}
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		return nil, fmt.Errorf("%w: %w", ride.ErrNetwork, ctxErr)
	}
	if attempts > 1 {
		return nil, fmt.Errorf("strava request failed after %d attempts: %w", attempts, err)
	}
	return nil, err
}

func (c *Client) send(ctx context.Context, path string) ([]byte, error) {
	if err := c.throttle(ctx); err != nil {
		return nil, err
	}

	token, err := c.tokens.EnsureValidToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: executing request: %w", ride.ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %w", ride.ErrNetwork, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := string(body)
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    msg,
			RateLimit:  resp.Header.Get("X-RateLimit-Limit"),
			RateUsage:  resp.Header.Get("X-RateLimit-Usage"),
		}
	}

	return body, nil
}

func (c *Client) get(ctx context.Context, path string, result interface{}) error {
	body, err := c.doRequest(ctx, path)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("%w: parsing response: %w", ride.ErrUnparsable, err)
	}

	return nil
}

func isUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.IsUnauthorized()
}

func retryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsRateLimited() || apiErr.IsServerError()
	}
	if errors.Is(err, ride.ErrAuthentication) {
		return false
	}
	return errors.Is(err, ride.ErrNetwork)
}
