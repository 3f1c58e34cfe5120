// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Admin    AdminConfig    `yaml:"admin"`
	Spotify  SpotifyConfig  `yaml:"spotify"`
	Cache    CacheConfig    `yaml:"cache"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Viewport ViewportConfig `yaml:"viewport"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr  string      `yaml:"addr" default:":8080"`
	Hooks HooksConfig `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// AdminConfig represents admin-related configuration.
type AdminConfig struct {
	Token string `yaml:"token" validate:"required"`
}

// SpotifyConfig represents Spotify API configuration.
type SpotifyConfig struct {
	ClientID       string        `yaml:"client_id" validate:"required"`
	ClientSecret   string        `yaml:"client_secret" validate:"required"`
	TokenURL       string        `yaml:"token_url" default:"https://accounts.spotify.com/api/token" validate:"url"`
	BaseURL        string        `yaml:"base_url" default:"https://api.spotify.com/v1/" validate:"url"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"30s" validate:"gt=0"`
	RequestTimeout time.Duration `yaml:"request_timeout" default:"60s" validate:"gt=0"`
	// TokenSafetyMargin is subtracted from the token lifetime to absorb clock skew.
	TokenSafetyMargin time.Duration `yaml:"token_safety_margin" default:"60s" validate:"gte=0"`
	RequestsPerSecond float64       `yaml:"requests_per_second" default:"10" validate:"gt=0"`
	Burst             int           `yaml:"burst" default:"5" validate:"gte=1"`
	Breaker           BreakerConfig `yaml:"breaker"`
}

// BreakerConfig represents the circuit breaker guarding music API calls.
type BreakerConfig struct {
	FailureThreshold uint32        `yaml:"failure_threshold" default:"5" validate:"gte=1"`
	OpenTimeout      time.Duration `yaml:"open_timeout" default:"30s" validate:"gt=0"`
	HalfOpenRequests uint32        `yaml:"half_open_requests" default:"1" validate:"gte=1"`
}

// CacheConfig represents the regional cache policy.
type CacheConfig struct {
	Path    string        `yaml:"path" default:"regional_music_cache.json" validate:"required"`
	TTL     time.Duration `yaml:"ttl" default:"1h" validate:"gt=0"`
	MaxSize int           `yaml:"max_size" default:"50" validate:"gte=1"`
}

// FetchConfig represents the bulk refresh settings.
type FetchConfig struct {
	Concurrency int              `yaml:"concurrency" default:"8" validate:"gte=1,lte=64"`
	Strategies  []StrategyConfig `yaml:"strategies" validate:"dive"`
}

// StrategyConfig represents one top-song lookup strategy, tried in order.
type StrategyConfig struct {
	Type     string         `yaml:"type" validate:"required,oneof=top_chart new_releases lastfm_geo"`
	Settings map[string]any `yaml:"settings"`
}

// ViewportConfig represents the "search this area" throttle.
type ViewportConfig struct {
	MinDistanceKm float64 `yaml:"min_distance_km" default:"500" validate:"gt=0"`
}

// DefaultStrategies is used when no strategy is configured.
func DefaultStrategies() []StrategyConfig {
	return []StrategyConfig{
		{Type: "top_chart"},
		{Type: "new_releases"},
	}
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	return Parse(data)
}

// Parse parses configuration from YAML bytes, then applies environment
// overrides, defaults and validation.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if len(cfg.Fetch.Strategies) == 0 {
		cfg.Fetch.Strategies = DefaultStrategies()
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
	if v := os.Getenv("LASTFM_API_KEY"); v != "" {
		for i := range c.Fetch.Strategies {
			if c.Fetch.Strategies[i].Type == "lastfm_geo" {
				if c.Fetch.Strategies[i].Settings == nil {
					c.Fetch.Strategies[i].Settings = map[string]any{}
				}
				c.Fetch.Strategies[i].Settings["api_key"] = v
				break
			}
		}
	}
	if v := os.Getenv("ADMIN_TOKEN"); v != "" {
		c.Admin.Token = v
	}
	if v := os.Getenv("TUNEMAP_CACHE_PATH"); v != "" {
		c.Cache.Path = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	if c.Spotify.TokenSafetyMargin >= time.Hour {
		return errors.Newf("token_safety_margin (%s) must be shorter than the one hour token lifetime", c.Spotify.TokenSafetyMargin)
	}

	seen := make(map[string]bool, len(c.Fetch.Strategies))
	for i, s := range c.Fetch.Strategies {
		if seen[s.Type] {
			return errors.Newf("strategy %s is configured more than once (index %d)", s.Type, i)
		}
		seen[s.Type] = true
	}

	return nil
}
