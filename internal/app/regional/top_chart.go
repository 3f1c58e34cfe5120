package regional

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/osa030/tunemap/internal/domain/region"
	"github.com/osa030/tunemap/internal/domain/track"
)

// TopChartStrategy takes the first track of the country's chart playlist.
type TopChartStrategy struct {
	gateway Gateway
}

// NewTopChartStrategy creates a new TopChartStrategy.
func NewTopChartStrategy(gateway Gateway) (*TopChartStrategy, error) {
	if gateway == nil {
		return nil, errors.New("gateway is required")
	}
	return &TopChartStrategy{gateway: gateway}, nil
}

// Find implements Strategy.
func (s *TopChartStrategy) Find(ctx context.Context, accessToken string, country region.Country) (*track.Track, error) {
	return s.gateway.SearchTopChart(ctx, accessToken, country)
}

// Name implements Strategy.
func (s *TopChartStrategy) Name() string {
	return StrategyTopChart
}
