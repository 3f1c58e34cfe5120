package regional

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tunemap/internal/domain/region"
	"github.com/osa030/tunemap/internal/domain/remote"
	"github.com/osa030/tunemap/internal/domain/track"
	"github.com/osa030/tunemap/internal/infra/lastfm"
)

type LastFmGeoStrategyConfig struct {
	APIKey string `yaml:"api_key" mapstructure:"api_key" validate:"required"`
	// ChartSize is how many chart entries are tried against the catalog.
	ChartSize int `yaml:"chart_size" mapstructure:"chart_size" default:"5" validate:"gte=1,lte=50"`
	// CacheTTL is how long a country's Last.fm chart is reused.
	CacheTTL time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl" default:"1h" validate:"gte=0"`
}

// LastFmGeoStrategy takes the most played Last.fm track in the country that
// can be found in the Spotify catalog for that market.
type LastFmGeoStrategy struct {
	lastfm  LastFmClient
	gateway Gateway
	config  *LastFmGeoStrategyConfig
}

// NewLastFmGeoStrategy creates a new LastFmGeoStrategy with its own Last.fm client.
func NewLastFmGeoStrategy(gateway Gateway, settings map[string]any) (*LastFmGeoStrategy, error) {
	if gateway == nil {
		return nil, errors.New("gateway is required")
	}
	if len(settings) == 0 {
		return nil, errors.New("settings are required")
	}

	var config LastFmGeoStrategyConfig
	if err := decodeSettings(settings, &config); err != nil {
		return nil, err
	}

	client, err := lastfm.New(lastfm.Config{
		APIKey:   config.APIKey,
		CacheTTL: config.CacheTTL,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create last.fm client")
	}

	return &LastFmGeoStrategy{lastfm: client, gateway: gateway, config: &config}, nil
}

// Find implements Strategy.
func (s *LastFmGeoStrategy) Find(ctx context.Context, accessToken string, country region.Country) (*track.Track, error) {
	chart, err := s.lastfm.GetGeoTopTracks(ctx, country.Name, s.config.ChartSize)
	if err != nil {
		if errors.Is(err, remote.ErrNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get last.fm geo chart")
	}

	for _, entry := range chart {
		t, err := s.gateway.SearchTrack(ctx, accessToken, entry.Artist, entry.Name, country.Code)
		if err != nil {
			if errors.Is(err, remote.ErrUnauthorized) || ctx.Err() != nil {
				return nil, err
			}
			zlog.Debug().Err(err).Msgf("catalog lookup failed: country=%s track=%s - %s", country.Code, entry.Artist, entry.Name)
			continue
		}
		if t != nil {
			return t, nil
		}
	}
	return nil, nil
}

// Name implements Strategy.
func (s *LastFmGeoStrategy) Name() string {
	return StrategyLastFmGeo
}
