// Package peloton fetches cycling workouts from Peloton using a browser
// session cookie. The bulk CSV export is tried first; the paginated JSON
// workout listing is the fallback.
package peloton

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/xokvictor/miles-mcp/pkg/config"
	"github.com/xokvictor/miles-mcp/pkg/ride"
)

const (
	DefaultBaseURL    = "https://api.onepeloton.com"
	DefaultExportPath = "/workout_history_csv?timezone="
	DefaultPlatform   = "web"

	defaultTimeout   = 30 * time.Second
	defaultPageLimit = 100
	defaultMaxPages  = 50
	maxErrorBody     = 512

	userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
	referer   = "https://members.onepeloton.com/"
)

// Config holds everything a Client needs. UserID and SessionID are required.
type Config struct {
	UserID     string
	SessionID  string
	Location   *time.Location
	BaseURL    string
	ExportPath string
	Platform   string
	PageLimit  int
	MaxPages   int
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
	Now        func() time.Time
}

// Client is the Peloton API client. It is immutable after construction.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userID     string
	sessionID  string
	exportPath string
	platform   string
	loc        *time.Location
	pageLimit  int
	maxPages   int
	logger     *slog.Logger
	now        func() time.Time
}

// NewClient validates cfg and creates a Client. Missing credentials are
// reported as a configuration error before any request is made.
func NewClient(cfg Config) (*Client, error) {
	var missing []string
	if strings.TrimSpace(cfg.UserID) == "" {
		missing = append(missing, "user id")
	}
	if strings.TrimSpace(cfg.SessionID) == "" {
		missing = append(missing, "session id")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: peloton %s not set", ride.ErrConfiguration, strings.Join(missing, " and "))
	}

	c := &Client{
		httpClient: cfg.HTTPClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		userID:     strings.TrimSpace(cfg.UserID),
		sessionID:  strings.TrimSpace(cfg.SessionID),
		exportPath: cfg.ExportPath,
		platform:   cfg.Platform,
		loc:        cfg.Location,
		pageLimit:  cfg.PageLimit,
		maxPages:   cfg.MaxPages,
		logger:     cfg.Logger,
		now:        cfg.Now,
	}
	if c.httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		c.httpClient = &http.Client{Timeout: timeout}
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.exportPath == "" {
		c.exportPath = DefaultExportPath
	}
	if c.platform == "" {
		c.platform = DefaultPlatform
	}
	if c.loc == nil {
		c.loc = time.UTC
	}
	if c.pageLimit <= 0 {
		c.pageLimit = defaultPageLimit
	}
	if c.maxPages <= 0 {
		c.maxPages = defaultMaxPages
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c, nil
}

// Location returns the timezone workouts are normalized to.
func (c *Client) Location() *time.Location {
	return c.loc
}

// Authenticate checks that the session cookie is accepted. It never returns
// an error; rejected credentials and network failures both yield false.
func (c *Client) Authenticate(ctx context.Context) bool {
	if _, err := c.doRequest(ctx, c.userURL()); err != nil {
		c.logger.Warn("peloton authentication failed", slog.Any("error", err))
		return false
	}
	c.logger.Info("peloton authentication successful")
	return true
}

// ConfigSummary describes the client's settings with identifiers masked.
func (c *Client) ConfigSummary() map[string]string {
	return map[string]string{
		"user_id":     config.Mask(c.userID),
		"session_id":  config.Mask(c.sessionID),
		"timezone":    c.loc.String(),
		"api_base":    c.baseURL,
		"export_path": c.exportPath,
		"platform":    c.platform,
	}
}

// userURL is {base}/api/user/{id}, or {base}/{id} when the base already
// points at the user collection.
func (c *Client) userURL() string {
	id := url.PathEscape(c.userID)
	if strings.HasSuffix(c.baseURL, "/user") {
		return c.baseURL + "/" + id
	}
	return c.baseURL + "/api/user/" + id
}

func (c *Client) exportURL() string {
	return c.userURL() + c.exportPath + url.QueryEscape(c.loc.String())
}

type response struct {
	contentType string
	body        []byte
}

func (c *Client) doRequest(ctx context.Context, rawURL string) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/csv,application/json,*/*")
	req.Header.Set("Referer", referer)
	req.Header.Set("Peloton-Platform", c.platform)
	req.AddCookie(&http.Cookie{Name: "peloton_session_id", Value: c.sessionID})
	req.AddCookie(&http.Cookie{Name: "user_id", Value: c.userID})

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
		}
	}

	return &response{
		contentType: resp.Header.Get("Content-Type"),
		body:        body,
	}, nil
}

// APIError represents a non-2xx response from the Peloton API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

// Unwrap maps the status onto the shared error kinds.
func (e *APIError) Unwrap() error {
	switch {
	case e.IsUnauthorized():
		return ride.ErrAuthentication
	case e.IsRateLimited():
		return ride.ErrRateLimited
	default:
		return ride.ErrNetwork
	}
}

// IsUnauthorized returns true for 401 and 403 responses.
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// IsNotFound returns true if the error is a 404 Not Found response.
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsRateLimited returns true if the error is a 429 Too Many Requests response.
func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}
