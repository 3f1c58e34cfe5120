package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
admin:
  token: "test-admin-token"
spotify:
  client_id: "test-client-id"
  client_secret: "test-client-secret"
`

// clearEnv neutralizes overrides that may be set on the machine running the tests.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"SPOTIFY_CLIENT_ID", "SPOTIFY_CLIENT_SECRET", "LASTFM_API_KEY", "ADMIN_TOKEN", "TUNEMAP_CACHE_PATH"} {
		t.Setenv(k, "")
	}
}

func TestParse_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "https://accounts.spotify.com/api/token", cfg.Spotify.TokenURL)
	assert.Equal(t, "https://api.spotify.com/v1/", cfg.Spotify.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Spotify.ConnectTimeout)
	assert.Equal(t, 60*time.Second, cfg.Spotify.RequestTimeout)
	assert.Equal(t, 60*time.Second, cfg.Spotify.TokenSafetyMargin)
	assert.Equal(t, uint32(5), cfg.Spotify.Breaker.FailureThreshold)
	assert.Equal(t, "regional_music_cache.json", cfg.Cache.Path)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.Equal(t, 50, cfg.Cache.MaxSize)
	assert.Equal(t, 8, cfg.Fetch.Concurrency)
	assert.Equal(t, DefaultStrategies(), cfg.Fetch.Strategies)
	assert.Equal(t, 500.0, cfg.Viewport.MinDistanceKm)
}

func TestParse_ExplicitValues(t *testing.T) {
	clearEnv(t)

	cfg, err := Parse([]byte(minimalYAML + `
cache:
  path: /var/lib/tunemap/cache.json
  ttl: 30m
  max_size: 10
fetch:
  concurrency: 4
  strategies:
    - type: new_releases
      settings:
        album_limit: 5
    - type: top_chart
viewport:
  min_distance_km: 250
`))
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/tunemap/cache.json", cfg.Cache.Path)
	assert.Equal(t, 30*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 10, cfg.Cache.MaxSize)
	assert.Equal(t, 4, cfg.Fetch.Concurrency)
	require.Len(t, cfg.Fetch.Strategies, 2)
	assert.Equal(t, "new_releases", cfg.Fetch.Strategies[0].Type)
	assert.Equal(t, 5, cfg.Fetch.Strategies[0].Settings["album_limit"])
	assert.Equal(t, "top_chart", cfg.Fetch.Strategies[1].Type)
	assert.Equal(t, 250.0, cfg.Viewport.MinDistanceKm)
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		yaml   string
		errMsg string
	}{
		{
			name: "missing spotify client id",
			yaml: `
admin:
  token: "t"
spotify:
  client_secret: "s"
`,
			errMsg: "ClientID",
		},
		{
			name: "missing admin token",
			yaml: `
spotify:
  client_id: "c"
  client_secret: "s"
`,
			errMsg: "Token",
		},
		{
			name:   "unknown strategy",
			yaml:   minimalYAML + "fetch:\n  strategies:\n    - type: billboard\n",
			errMsg: "Type",
		},
		{
			name:   "duplicate strategy",
			yaml:   minimalYAML + "fetch:\n  strategies:\n    - type: top_chart\n    - type: top_chart\n",
			errMsg: "more than once",
		},
		{
			name:   "concurrency out of range",
			yaml:   minimalYAML + "fetch:\n  concurrency: 500\n",
			errMsg: "Concurrency",
		},
		{
			name:   "safety margin longer than token lifetime",
			yaml:   "admin:\n  token: t\nspotify:\n  client_id: c\n  client_secret: s\n  token_safety_margin: 2h\n",
			errMsg: "token_safety_margin",
		},
		{
			name:   "malformed yaml",
			yaml:   "admin: [",
			errMsg: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)

			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err, "expected validation to fail")
			assert.Contains(t, err.Error(), tt.errMsg,
				"error message should mention the problematic field")
		})
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SPOTIFY_CLIENT_ID", "env-client-id")
	t.Setenv("SPOTIFY_CLIENT_SECRET", "env-client-secret")
	t.Setenv("ADMIN_TOKEN", "env-admin-token")
	t.Setenv("LASTFM_API_KEY", "env-lastfm-key")
	t.Setenv("TUNEMAP_CACHE_PATH", "/tmp/override.json")

	path := filepath.Join(t.TempDir(), "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
fetch:
  strategies:
    - type: top_chart
    - type: lastfm_geo
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-client-id", cfg.Spotify.ClientID)
	assert.Equal(t, "env-client-secret", cfg.Spotify.ClientSecret)
	assert.Equal(t, "env-admin-token", cfg.Admin.Token)
	assert.Equal(t, "/tmp/override.json", cfg.Cache.Path)
	assert.Equal(t, "env-lastfm-key", cfg.Fetch.Strategies[1].Settings["api_key"])
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}
