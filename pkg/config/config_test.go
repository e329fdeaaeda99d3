package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xokvictor/miles-mcp/pkg/ride"
)

var allKeys = []string{
	"PELOTON_USER_ID", "PELOTON_SESSION_ID", "PELOTON_API_BASE", "PELOTON_API_PATH", "PELOTON_PLATFORM",
	"PELOTON_TIMEZONE", "PELOTON_OUTPUT_FILE",
	"STRAVA_CLIENT_ID", "STRAVA_CLIENT_SECRET", "STRAVA_REFRESH_TOKEN", "STRAVA_ATHLETE_ID",
	"STRAVA_API_BASE", "STRAVA_API_PATH", "STRAVA_TOKEN_URL", "STRAVA_TOKEN_FILE",
	"TIMEZONE", "API_TIMEOUT", "MAX_RETRIES", "RETRY_BASE_DELAY", "OUTPUT_FILE", "LOG_LEVEL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allKeys {
		t.Setenv(k, "")
	}
}

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("PELOTON_USER_ID", "peloton-user-0001")
	t.Setenv("PELOTON_SESSION_ID", "peloton-session-0001")
	t.Setenv("STRAVA_CLIENT_ID", "12345")
	t.Setenv("STRAVA_CLIENT_SECRET", "strava-secret-value")
	t.Setenv("STRAVA_REFRESH_TOKEN", "strava-refresh-value")
	t.Setenv("STRAVA_ATHLETE_ID", "987654")
}

func writeEnvFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadFromEnvironment(t *testing.T) {
	clearEnv(t)
	setRequired(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "peloton-user-0001", cfg.PelotonUserID)
	assert.Equal(t, "987654", cfg.StravaAthleteID)
	assert.Equal(t, DefaultTimezone, cfg.Timezone)
	assert.Equal(t, time.UTC, cfg.Location)
	assert.Equal(t, DefaultAPITimeout, cfg.APITimeout)
	assert.Equal(t, DefaultMaxRetries, cfg.MaxRetries)
	assert.Equal(t, DefaultRetryBaseDelay, cfg.RetryBaseDelay)
	assert.Equal(t, DefaultOutputFile, cfg.OutputFile)
	assert.Equal(t, "web", cfg.PelotonPlatform)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadFromEnvFile(t *testing.T) {
	clearEnv(t)
	path := writeEnvFile(t, `PELOTON_USER_ID=file-user-id
PELOTON_SESSION_ID=file-session-id
STRAVA_CLIENT_ID=111
STRAVA_CLIENT_SECRET=file-secret
STRAVA_REFRESH_TOKEN=file-refresh
STRAVA_API_PATH=/athletes/4242/stats
PELOTON_TIMEZONE=America/Denver
API_TIMEOUT=45
LOG_LEVEL=DEBUG
`)
	t.Setenv("PELOTON_USER_ID", "env-user-id")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-user-id", cfg.PelotonUserID, "environment overrides the file")
	assert.Equal(t, "file-session-id", cfg.PelotonSessionID)
	assert.Equal(t, "4242", cfg.StravaAthleteID)
	assert.Equal(t, "America/Denver", cfg.Location.String())
	assert.Equal(t, 45*time.Second, cfg.APITimeout)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadMissingEnvFileIsIgnored(t *testing.T) {
	clearEnv(t)
	setRequired(t)

	_, err := Load(filepath.Join(t.TempDir(), "nope.env"))
	assert.NoError(t, err)
}

func TestLoadReportsAllMissingKeys(t *testing.T) {
	clearEnv(t)
	t.Setenv("PELOTON_USER_ID", "only-this-one")

	cfg, err := Load("")
	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ride.ErrConfiguration)

	var cfgErr *Error
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, []string{
		"PELOTON_SESSION_ID",
		"STRAVA_CLIENT_ID",
		"STRAVA_CLIENT_SECRET",
		"STRAVA_REFRESH_TOKEN",
		"STRAVA_ATHLETE_ID",
	}, cfgErr.Missing)
	assert.Contains(t, err.Error(), "STRAVA_ATHLETE_ID")
}

func TestReadRejectsMalformedValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"unknown timezone", "TIMEZONE", "Mars/Olympus"},
		{"bad timeout", "API_TIMEOUT", "soon"},
		{"negative timeout", "API_TIMEOUT", "-5"},
		{"zero retries", "MAX_RETRIES", "0"},
		{"bad base delay", "RETRY_BASE_DELAY", "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			setRequired(t)
			t.Setenv(tt.key, tt.value)

			_, err := Read("")
			assert.ErrorIs(t, err, ride.ErrConfiguration)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestDurationSettings(t *testing.T) {
	clearEnv(t)
	setRequired(t)
	t.Setenv("API_TIMEOUT", "1m30s")
	t.Setenv("RETRY_BASE_DELAY", "0.25")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.APITimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryBaseDelay)
}

func TestMask(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", "(not set)"},
		{"ab", "a..."},
		{"abcdefgh", "abcd..."},
		{"0123456789abcdef", "01234567..."},
		{"0123456789abcdefghijklmnop", "01234567..."},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, Mask(tt.input))
		})
	}
}

func TestSummaryMasksSecrets(t *testing.T) {
	clearEnv(t)
	setRequired(t)

	cfg, err := Load("")
	require.NoError(t, err)

	summary := cfg.Summary()
	assert.Equal(t, "peloton-...", summary["peloton_user_id"])
	assert.Equal(t, "strava-s...", summary["strava_client_secret"])
	assert.Equal(t, "987...", summary["strava_athlete_id"])
	for key, value := range summary {
		assert.NotEqual(t, "strava-secret-value", value, key)
		assert.NotEqual(t, "strava-refresh-value", value, key)
	}
	assert.Equal(t, "UTC", summary["timezone"])
}
