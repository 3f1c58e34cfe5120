package regional

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/osa030/tunemap/internal/domain/album"
	"github.com/osa030/tunemap/internal/domain/region"
	"github.com/osa030/tunemap/internal/domain/track"
)

type NewReleasesStrategyConfig struct {
	// AlbumLimit is how many of the expanded releases are inspected.
	AlbumLimit int `yaml:"album_limit" mapstructure:"album_limit" default:"10" validate:"gte=1,lte=20"`
}

// NewReleasesStrategy takes the first track of the country's newest release.
type NewReleasesStrategy struct {
	gateway Gateway
	config  *NewReleasesStrategyConfig
}

// NewNewReleasesStrategy creates a new NewReleasesStrategy.
func NewNewReleasesStrategy(gateway Gateway, settings map[string]any) (*NewReleasesStrategy, error) {
	if gateway == nil {
		return nil, errors.New("gateway is required")
	}

	var config NewReleasesStrategyConfig
	if err := decodeSettings(settings, &config); err != nil {
		return nil, err
	}
	return &NewReleasesStrategy{gateway: gateway, config: &config}, nil
}

// Find implements Strategy.
func (s *NewReleasesStrategy) Find(ctx context.Context, accessToken string, country region.Country) (*track.Track, error) {
	albums, err := s.gateway.FetchNewReleases(ctx, accessToken, country)
	if err != nil {
		return nil, err
	}
	if len(albums) > s.config.AlbumLimit {
		albums = albums[:s.config.AlbumLimit]
	}
	return album.FirstTrackOf(albums), nil
}

// Name implements Strategy.
func (s *NewReleasesStrategy) Name() string {
	return StrategyNewReleases
}
