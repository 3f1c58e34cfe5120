package regional

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/osa030/tunemap/internal/app/geocache"
	"github.com/osa030/tunemap/internal/domain/region"
	"github.com/osa030/tunemap/internal/domain/remote"
	"github.com/osa030/tunemap/internal/domain/track"
	"github.com/osa030/tunemap/internal/infra/logger"
	"github.com/osa030/tunemap/internal/infra/metrics"
)

// DefaultConcurrency bounds the number of countries fetched at once.
const DefaultConcurrency = 8

// Entry is a cached top song for one country.
type Entry = geocache.Entry[track.Track]

// TokenSource provides bearer tokens for the music API.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Finder looks up the song for one country.
type Finder interface {
	Find(ctx context.Context, accessToken string, country region.Country) (*track.Track, string, error)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTable replaces the built-in country table.
func WithTable(t region.Table) Option {
	return func(o *Orchestrator) { o.table = t }
}

// WithConcurrency bounds parallel country fetches.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithClock replaces time.Now for FetchedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithLogger overrides the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// Orchestrator refreshes the regional cache: it serves hits from the cache
// and fetches the misses concurrently, tolerating per-country failures.
type Orchestrator struct {
	cache       *geocache.Cache[track.Track]
	tokens      TokenSource
	finder      Finder
	table       region.Table
	concurrency int
	now         func() time.Time
	log         zerolog.Logger
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(cache *geocache.Cache[track.Track], tokens TokenSource, finder Finder, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cache:       cache,
		tokens:      tokens,
		finder:      finder,
		table:       region.Countries,
		concurrency: DefaultConcurrency,
		now:         time.Now,
		log:         logger.Component("regional"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Refresh returns an entry for every requested code that is cached or can be
// fetched now. Codes that fail to fetch, have no song, or are not in the
// country table are absent from the result; that is not an error. If ctx
// ends, entries fetched so far are still cached and returned along with the
// context error.
func (o *Orchestrator) Refresh(ctx context.Context, codes []string) (map[string]Entry, error) {
	start := time.Now()
	defer func() {
		metrics.RefreshDuration.Observe(time.Since(start).Seconds())
	}()

	codes = region.NormalizeCodes(codes)
	result := o.cache.GetMany(codes)

	var misses []region.Country
	for _, code := range codes {
		if _, ok := result[code]; ok {
			continue
		}
		country, ok := o.table.Lookup(code)
		if !ok {
			o.log.Debug().Str("country", code).Msg("skipping code without coordinates")
			continue
		}
		misses = append(misses, country)
	}

	if len(misses) == 0 {
		o.log.Debug().Int("hits", len(result)).Msg("refresh served from cache")
		return result, nil
	}

	fetched := o.fetchAll(ctx, misses)

	if len(fetched) > 0 {
		if err := o.cache.PutMany(fetched); err != nil {
			// the entries are cached in memory; only durability is lost
			o.log.Warn().Err(err).Int("entries", len(fetched)).Msg("failed to persist refreshed entries")
		}
	}
	for _, e := range fetched {
		result[e.CountryCode] = e
	}

	o.log.Info().
		Int("requested", len(codes)).
		Int("hits", len(codes)-len(misses)).
		Int("misses", len(misses)).
		Int("fetched", len(fetched)).
		Msg("refresh completed")

	if err := ctx.Err(); err != nil {
		return result, errors.Wrap(err, "refresh interrupted")
	}
	return result, nil
}

// RefreshViewport refreshes every country whose centroid is inside v.
func (o *Orchestrator) RefreshViewport(ctx context.Context, v region.Viewport) (map[string]Entry, error) {
	return o.Refresh(ctx, o.table.VisibleCountries(v))
}

// Cached returns the cached entries for codes without fetching anything.
func (o *Orchestrator) Cached(codes []string) map[string]Entry {
	return o.cache.GetMany(region.NormalizeCodes(codes))
}

// Table returns the country table used to resolve codes.
func (o *Orchestrator) Table() region.Table {
	return o.table
}

// fetchAll fetches countries with bounded parallelism. A failure in one
// country does not cancel the others.
func (o *Orchestrator) fetchAll(ctx context.Context, countries []region.Country) []Entry {
	var (
		mu      sync.Mutex
		fetched = make([]Entry, 0, len(countries))
		g       errgroup.Group
	)
	g.SetLimit(o.concurrency)

	for _, country := range countries {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			entry, ok := o.fetchCountry(ctx, country)
			if ok {
				mu.Lock()
				fetched = append(fetched, entry)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return fetched
}

// fetchCountry looks up one country's song, retrying once with a fresh
// token when the current one is rejected.
func (o *Orchestrator) fetchCountry(ctx context.Context, country region.Country) (Entry, bool) {
	log := o.log.With().Str("country", country.Code).Logger()

	var (
		t        *track.Track
		strategy string
		err      error
	)
	for attempt := 0; attempt < 2; attempt++ {
		var accessToken string
		accessToken, err = o.tokens.AccessToken(ctx)
		if err != nil {
			break
		}
		t, strategy, err = o.finder.Find(ctx, accessToken, country)
		if !errors.Is(err, remote.ErrUnauthorized) {
			break
		}
		log.Info().Int("attempt", attempt+1).Msg("access token rejected, retrying with a fresh token")
	}

	switch {
	case err != nil && ctx.Err() != nil:
		log.Debug().Err(err).Msg("fetch cancelled")
		return Entry{}, false
	case err != nil:
		metrics.RegionFetches.WithLabelValues(strategyLabel(strategy), remote.KindOf(err).String()).Inc()
		log.Warn().Err(err).Msg("failed to fetch top song")
		return Entry{}, false
	case t == nil:
		metrics.RegionFetches.WithLabelValues("none", "not_found").Inc()
		log.Info().Msg("no top song available")
		return Entry{}, false
	}

	metrics.RegionFetches.WithLabelValues(strategy, "success").Inc()
	log.Debug().Str("strategy", strategy).Str("track", t.Name).Msg("top song fetched")

	return Entry{
		CountryCode: country.Code,
		CountryName: country.Name,
		Payload:     *t,
		Latitude:    country.Latitude,
		Longitude:   country.Longitude,
		FetchedAt:   o.now(),
	}, true
}

func strategyLabel(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
