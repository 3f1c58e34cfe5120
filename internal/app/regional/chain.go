package regional

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"github.com/osa030/tunemap/internal/domain/region"
	"github.com/osa030/tunemap/internal/domain/remote"
	"github.com/osa030/tunemap/internal/domain/track"
)

// Strategy types as used in configuration.
const (
	StrategyTopChart    = "top_chart"
	StrategyNewReleases = "new_releases"
	StrategyLastFmGeo   = "lastfm_geo"
)

// Chain tries strategies in order until one yields a song.
type Chain struct {
	strategies []Strategy
	log        zerolog.Logger
}

// NewChain creates a new strategy chain.
func NewChain(log zerolog.Logger, strategies ...Strategy) *Chain {
	return &Chain{strategies: strategies, log: log}
}

// Find returns the first song any strategy yields and the name of that
// strategy. A strategy that fails is skipped unless the failure is an
// authorization or cancellation error. When no strategy yields a song the
// result is nil, with the last failure if every attempt failed.
func (c *Chain) Find(ctx context.Context, accessToken string, country region.Country) (*track.Track, string, error) {
	var lastErr error
	failures := 0

	for i, s := range c.strategies {
		c.log.Debug().Msgf("trying strategy: index=%d total=%d name=%s country=%s",
			i+1, len(c.strategies), s.Name(), country.Code)

		t, err := s.Find(ctx, accessToken, country)
		if err != nil {
			if errors.Is(err, remote.ErrUnauthorized) || ctx.Err() != nil {
				return nil, s.Name(), err
			}
			c.log.Warn().Err(err).Msgf("strategy failed, trying next: strategy=%s country=%s", s.Name(), country.Code)
			lastErr = errors.Wrapf(err, "strategy %s", s.Name())
			failures++
			continue
		}

		if t == nil {
			c.log.Debug().Msgf("strategy returned no track: strategy=%s country=%s", s.Name(), country.Code)
			continue
		}

		return t, s.Name(), nil
	}

	if failures == len(c.strategies) && lastErr != nil {
		return nil, "", lastErr
	}
	return nil, "", nil
}

// Names returns the strategy names in order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.strategies))
	for i, s := range c.strategies {
		names[i] = s.Name()
	}
	return names
}
