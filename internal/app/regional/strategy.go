// Package regional provides the per-country top song lookup strategies, the
// bulk refresh orchestrator and the viewport refetch throttle.
package regional

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/osa030/tunemap/internal/domain/album"
	"github.com/osa030/tunemap/internal/domain/region"
	"github.com/osa030/tunemap/internal/domain/track"
	"github.com/osa030/tunemap/internal/infra/lastfm"
)

// Strategy is one way of finding a representative song for a country.
// Different implementations look in different places (chart playlists,
// new releases, third-party charts).
type Strategy interface {
	// Find returns the song for country, or nil if this strategy has none.
	Find(ctx context.Context, accessToken string, country region.Country) (*track.Track, error)

	// Name returns the strategy type (used in config and metrics).
	Name() string
}

// Gateway defines the music API operations needed by the strategies.
type Gateway interface {
	SearchTopChart(ctx context.Context, accessToken string, country region.Country) (*track.Track, error)
	FetchNewReleases(ctx context.Context, accessToken string, country region.Country) ([]album.Album, error)
	SearchTrack(ctx context.Context, accessToken, artist, title, market string) (*track.Track, error)
}

// LastFmClient defines the Last.fm operations needed by the geo strategy.
type LastFmClient interface {
	GetGeoTopTracks(ctx context.Context, country string, limit int) ([]lastfm.TopTrack, error)
}

// decodeSettings decodes free-form strategy settings into out, then applies
// defaults and validation.
func decodeSettings(settings map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create settings decoder")
	}
	if err := dec.Decode(settings); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(out); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(out); err != nil {
		return errors.Wrap(err, "validation failed")
	}
	return nil
}
