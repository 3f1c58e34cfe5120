package regional

import (
	"github.com/cockroachdb/errors"

	"github.com/osa030/tunemap/internal/infra/config"
	"github.com/osa030/tunemap/internal/infra/logger"
)

// NewChainFromConfig creates a strategy chain from configuration.
func NewChainFromConfig(cfg *config.Config, gateway Gateway) (*Chain, error) {
	if len(cfg.Fetch.Strategies) == 0 {
		return nil, errors.New("no fetch strategies configured")
	}

	log := logger.Component("regional")
	var strategies []Strategy

	for i, scfg := range cfg.Fetch.Strategies {
		var strategy Strategy
		var err error
		log.Debug().Msgf("creating strategy: index=%d type=%s", i+1, scfg.Type)
		switch scfg.Type {
		case StrategyTopChart:
			strategy, err = NewTopChartStrategy(gateway)

		case StrategyNewReleases:
			strategy, err = NewNewReleasesStrategy(gateway, scfg.Settings)

		case StrategyLastFmGeo:
			strategy, err = NewLastFmGeoStrategy(gateway, scfg.Settings)

		default:
			return nil, errors.Newf("unsupported strategy type: %s (strategy index %d)", scfg.Type, i)
		}

		if err != nil {
			return nil, errors.Wrapf(err, "failed to create strategy (index %d, type %s)", i, scfg.Type)
		}

		strategies = append(strategies, strategy)
		log.Info().Msgf("registered strategy: index=%d type=%s", i+1, scfg.Type)
	}

	return NewChain(log, strategies...), nil
}
