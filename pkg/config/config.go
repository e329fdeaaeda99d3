// Package config loads the aggregator's settings from the environment and an
// optional dotenv file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/xokvictor/miles-mcp/pkg/ride"
)

const (
	DefaultTimezone       = "UTC"
	DefaultAPITimeout     = 30 * time.Second
	DefaultMaxRetries     = 3
	DefaultRetryBaseDelay = time.Second
	DefaultOutputFile     = "activities.csv"
	DefaultLogLevel       = "info"
	DefaultEnvFile        = ".env"
)

// Required lists the keys Load refuses to run without.
var Required = []string{
	"PELOTON_USER_ID",
	"PELOTON_SESSION_ID",
	"STRAVA_CLIENT_ID",
	"STRAVA_CLIENT_SECRET",
	"STRAVA_REFRESH_TOKEN",
	"STRAVA_ATHLETE_ID",
}

var athletePathRe = regexp.MustCompile(`/athletes/(\d+)`)

// Config is the validated, read-only settings for one run.
type Config struct {
	PelotonUserID    string
	PelotonSessionID string
	PelotonAPIBase   string
	PelotonAPIPath   string
	PelotonPlatform  string

	StravaClientID     string
	StravaClientSecret string
	StravaRefreshToken string
	StravaAthleteID    string
	StravaAPIBase      string
	StravaTokenURL     string
	StravaTokenFile    string

	Timezone       string
	Location       *time.Location
	APITimeout     time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration
	OutputFile     string
	LogLevel       string
}

// Error reports every missing or malformed key at once.
type Error struct {
	Missing []string
	Invalid []string
}

func (e *Error) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required configuration: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid configuration: "+strings.Join(e.Invalid, "; "))
	}
	return strings.Join(parts, "; ")
}

// Is makes every *Error match ride.ErrConfiguration.
func (e *Error) Is(target error) bool {
	return target == ride.ErrConfiguration
}

// Load reads and validates the configuration. envFile may be empty; a
// missing envFile is not an error.
func Load(envFile string) (*Config, error) {
	cfg, err := Read(envFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read loads the configuration without checking required keys. Malformed
// values such as an unknown timezone are still reported.
func Read(envFile string) (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("peloton_platform", "web")
	v.SetDefault("max_retries", DefaultMaxRetries)
	v.SetDefault("log_level", DefaultLogLevel)

	if envFile != "" {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, &Error{Invalid: []string{fmt.Sprintf("reading %s: %v", envFile, err)}}
		}
	}

	cfg := &Config{
		PelotonUserID:      str(v, "peloton_user_id"),
		PelotonSessionID:   str(v, "peloton_session_id"),
		PelotonAPIBase:     str(v, "peloton_api_base"),
		PelotonAPIPath:     str(v, "peloton_api_path"),
		PelotonPlatform:    str(v, "peloton_platform"),
		StravaClientID:     str(v, "strava_client_id"),
		StravaClientSecret: str(v, "strava_client_secret"),
		StravaRefreshToken: str(v, "strava_refresh_token"),
		StravaAthleteID:    str(v, "strava_athlete_id"),
		StravaAPIBase:      str(v, "strava_api_base"),
		StravaTokenURL:     str(v, "strava_token_url"),
		StravaTokenFile:    str(v, "strava_token_file"),
		Timezone:           str(v, "timezone", "peloton_timezone"),
		OutputFile:         str(v, "output_file", "peloton_output_file"),
		LogLevel:           strings.ToLower(str(v, "log_level")),
	}

	if cfg.StravaAthleteID == "" {
		if m := athletePathRe.FindStringSubmatch(str(v, "strava_api_path")); m != nil {
			cfg.StravaAthleteID = m[1]
		}
	}
	if cfg.Timezone == "" {
		cfg.Timezone = DefaultTimezone
	}
	if cfg.OutputFile == "" {
		cfg.OutputFile = DefaultOutputFile
	}

	var invalid []string

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		invalid = append(invalid, fmt.Sprintf("TIMEZONE %q: %v", cfg.Timezone, err))
	}
	cfg.Location = loc

	cfg.APITimeout, err = seconds(str(v, "api_timeout"), DefaultAPITimeout)
	if err != nil {
		invalid = append(invalid, fmt.Sprintf("API_TIMEOUT: %v", err))
	}
	cfg.RetryBaseDelay, err = seconds(str(v, "retry_base_delay"), DefaultRetryBaseDelay)
	if err != nil {
		invalid = append(invalid, fmt.Sprintf("RETRY_BASE_DELAY: %v", err))
	}

	cfg.MaxRetries, err = strconv.Atoi(str(v, "max_retries"))
	if err != nil || cfg.MaxRetries < 1 {
		invalid = append(invalid, fmt.Sprintf("MAX_RETRIES %q: must be a positive integer", str(v, "max_retries")))
	}

	if len(invalid) > 0 {
		return nil, &Error{Invalid: invalid}
	}
	return cfg, nil
}

// Validate checks that every required credential is present.
func (c *Config) Validate() error {
	values := map[string]string{
		"PELOTON_USER_ID":      c.PelotonUserID,
		"PELOTON_SESSION_ID":   c.PelotonSessionID,
		"STRAVA_CLIENT_ID":     c.StravaClientID,
		"STRAVA_CLIENT_SECRET": c.StravaClientSecret,
		"STRAVA_REFRESH_TOKEN": c.StravaRefreshToken,
		"STRAVA_ATHLETE_ID":    c.StravaAthleteID,
	}

	var missing []string
	for _, key := range Required {
		if values[key] == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return &Error{Missing: missing}
	}
	return nil
}

// Summary returns the settings for display with credentials masked.
func (c *Config) Summary() map[string]string {
	return map[string]string{
		"peloton_user_id":      Mask(c.PelotonUserID),
		"peloton_session_id":   Mask(c.PelotonSessionID),
		"peloton_api_base":     c.PelotonAPIBase,
		"peloton_platform":     c.PelotonPlatform,
		"strava_client_id":     Mask(c.StravaClientID),
		"strava_client_secret": Mask(c.StravaClientSecret),
		"strava_refresh_token": Mask(c.StravaRefreshToken),
		"strava_athlete_id":    Mask(c.StravaAthleteID),
		"strava_api_base":      c.StravaAPIBase,
		"strava_token_file":    c.StravaTokenFile,
		"timezone":             c.Timezone,
		"api_timeout":          c.APITimeout.String(),
		"max_retries":          strconv.Itoa(c.MaxRetries),
		"output_file":          c.OutputFile,
		"log_level":            c.LogLevel,
	}
}

// Mask reveals at most the first eight characters of an identifier, and never
// more than half of it.
func Mask(s string) string {
	if s == "" {
		return "(not set)"
	}
	n := 8
	if len(s) <= 2*n {
		n = len(s) / 2
	}
	return s[:n] + "..."
}

func str(v *viper.Viper, keys ...string) string {
	for _, k := range keys {
		if s := strings.TrimSpace(v.GetString(k)); s != "" {
			return s
		}
	}
	return ""
}

// seconds accepts a bare number of seconds or a Go duration string.
func seconds(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if f <= 0 {
			return 0, fmt.Errorf("%q must be positive", s)
		}
		return time.Duration(f * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%q is neither seconds nor a duration", s)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%q must be positive", s)
	}
	return d, nil
}
