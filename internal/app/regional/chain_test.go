package regional

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/tunemap/internal/domain/album"
	"github.com/osa030/tunemap/internal/domain/region"
	"github.com/osa030/tunemap/internal/domain/remote"
	"github.com/osa030/tunemap/internal/domain/track"
	"github.com/osa030/tunemap/internal/infra/config"
	"github.com/osa030/tunemap/internal/infra/lastfm"
)

var japan = region.Country{Code: "JP", Name: "Japan", Latitude: 36.2048, Longitude: 138.2529}

type stubStrategy struct {
	name  string
	track *track.Track
	err   error
	calls int
}

func (s *stubStrategy) Find(ctx context.Context, accessToken string, country region.Country) (*track.Track, error) {
	s.calls++
	return s.track, s.err
}

func (s *stubStrategy) Name() string { return s.name }

// mockGateway is a hand-written Gateway.
type mockGateway struct {
	chart       *track.Track
	chartErr    error
	albums      []album.Album
	albumsErr   error
	catalog     map[string]*track.Track // keyed by title
	searchCalls []string
}

func (m *mockGateway) SearchTopChart(ctx context.Context, accessToken string, country region.Country) (*track.Track, error) {
	return m.chart, m.chartErr
}

func (m *mockGateway) FetchNewReleases(ctx context.Context, accessToken string, country region.Country) ([]album.Album, error) {
	return m.albums, m.albumsErr
}

func (m *mockGateway) SearchTrack(ctx context.Context, accessToken, artist, title, market string) (*track.Track, error) {
	m.searchCalls = append(m.searchCalls, title)
	return m.catalog[title], nil
}

type mockLastFm struct {
	tracks []lastfm.TopTrack
	err    error
}

func (m *mockLastFm) GetGeoTopTracks(ctx context.Context, country string, limit int) ([]lastfm.TopTrack, error) {
	if m.err != nil {
		return nil, m.err
	}
	if len(m.tracks) > limit {
		return m.tracks[:limit], nil
	}
	return m.tracks, nil
}

func TestChain_Find(t *testing.T) {
	serverErr := remote.New(remote.KindServerError, 500, errors.New("boom"))
	unauthorized := remote.New(remote.KindUnauthorized, 401, nil)

	tests := []struct {
		name         string
		strategies   []*stubStrategy
		wantTrack    string
		wantStrategy string
		wantErr      error
		wantCalls    []int
	}{
		{
			name: "first strategy wins",
			strategies: []*stubStrategy{
				{name: StrategyTopChart, track: song("chart")},
				{name: StrategyNewReleases, track: song("release")},
			},
			wantTrack:    "chart",
			wantStrategy: StrategyTopChart,
			wantCalls:    []int{1, 0},
		},
		{
			name: "empty result falls through",
			strategies: []*stubStrategy{
				{name: StrategyTopChart},
				{name: StrategyNewReleases, track: song("release")},
			},
			wantTrack:    "release",
			wantStrategy: StrategyNewReleases,
			wantCalls:    []int{1, 1},
		},
		{
			name: "failure falls through",
			strategies: []*stubStrategy{
				{name: StrategyTopChart, err: serverErr},
				{name: StrategyNewReleases, track: song("release")},
			},
			wantTrack:    "release",
			wantStrategy: StrategyNewReleases,
			wantCalls:    []int{1, 1},
		},
		{
			name: "unauthorized stops the chain",
			strategies: []*stubStrategy{
				{name: StrategyTopChart, err: unauthorized},
				{name: StrategyNewReleases, track: song("release")},
			},
			wantStrategy: StrategyTopChart,
			wantErr:      remote.ErrUnauthorized,
			wantCalls:    []int{1, 0},
		},
		{
			name: "nothing found is not an error",
			strategies: []*stubStrategy{
				{name: StrategyTopChart, err: serverErr},
				{name: StrategyNewReleases},
			},
			wantCalls: []int{1, 1},
		},
		{
			name: "every strategy failing is an error",
			strategies: []*stubStrategy{
				{name: StrategyTopChart, err: serverErr},
				{name: StrategyNewReleases, err: serverErr},
			},
			wantErr:   remote.ErrServerError,
			wantCalls: []int{1, 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			strategies := make([]Strategy, len(tt.strategies))
			for i, s := range tt.strategies {
				strategies[i] = s
			}
			chain := NewChain(zerolog.Nop(), strategies...)

			got, strategy, err := chain.Find(context.Background(), "tok", japan)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			if tt.wantTrack == "" {
				assert.Nil(t, got)
			} else {
				require.NotNil(t, got)
				assert.Equal(t, tt.wantTrack, got.Name)
			}
			assert.Equal(t, tt.wantStrategy, strategy)
			for i, s := range tt.strategies {
				assert.Equal(t, tt.wantCalls[i], s.calls, "calls to %s", s.name)
			}
		})
	}
}

func TestNewReleasesStrategy(t *testing.T) {
	gateway := &mockGateway{albums: []album.Album{
		{ID: "empty"},
		{ID: "a1", Tracks: []track.Track{*song("opening"), *song("second")}},
		{ID: "a2", Tracks: []track.Track{*song("other")}},
	}}

	s, err := NewNewReleasesStrategy(gateway, nil)
	require.NoError(t, err)
	got, err := s.Find(context.Background(), "tok", japan)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "opening", got.Name)

	limited, err := NewNewReleasesStrategy(gateway, map[string]any{"album_limit": 1})
	require.NoError(t, err)
	got, err = limited.Find(context.Background(), "tok", japan)
	require.NoError(t, err)
	assert.Nil(t, got, "only the first album is inspected")
}

func TestNewReleasesStrategy_InvalidSettings(t *testing.T) {
	_, err := NewNewReleasesStrategy(&mockGateway{}, map[string]any{"album_limit": 99})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AlbumLimit")
}

func TestLastFmGeoStrategy_Find(t *testing.T) {
	gateway := &mockGateway{catalog: map[string]*track.Track{"Second": song("second-on-spotify")}}
	s := &LastFmGeoStrategy{
		lastfm: &mockLastFm{tracks: []lastfm.TopTrack{
			{Name: "First", Artist: "A", Rank: 1},
			{Name: "Second", Artist: "B", Rank: 2},
			{Name: "Third", Artist: "C", Rank: 3},
		}},
		gateway: gateway,
		config:  &LastFmGeoStrategyConfig{ChartSize: 5},
	}

	got, err := s.Find(context.Background(), "tok", japan)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "second-on-spotify", got.Name)
	assert.Equal(t, []string{"First", "Second"}, gateway.searchCalls)
}

func TestLastFmGeoStrategy_UnknownCountry(t *testing.T) {
	s := &LastFmGeoStrategy{
		lastfm:  &mockLastFm{err: remote.New(remote.KindNotFound, 400, nil)},
		gateway: &mockGateway{},
		config:  &LastFmGeoStrategyConfig{ChartSize: 5},
	}

	got, err := s.Find(context.Background(), "tok", japan)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestNewChainFromConfig(t *testing.T) {
	tests := []struct {
		name       string
		strategies []config.StrategyConfig
		wantNames  []string
		errMsg     string
	}{
		{
			name:       "defaults",
			strategies: config.DefaultStrategies(),
			wantNames:  []string{StrategyTopChart, StrategyNewReleases},
		},
		{
			name: "with last.fm",
			strategies: []config.StrategyConfig{
				{Type: StrategyLastFmGeo, Settings: map[string]any{"api_key": "k", "cache_ttl": "30m"}},
				{Type: StrategyTopChart},
			},
			wantNames: []string{StrategyLastFmGeo, StrategyTopChart},
		},
		{
			name: "last.fm without key",
			strategies: []config.StrategyConfig{
				{Type: StrategyLastFmGeo, Settings: map[string]any{"chart_size": 3}},
			},
			errMsg: "APIKey",
		},
		{
			name:       "unknown type",
			strategies: []config.StrategyConfig{{Type: "billboard"}},
			errMsg:     "unsupported strategy type",
		},
		{
			name:   "empty",
			errMsg: "no fetch strategies configured",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{Fetch: config.FetchConfig{Strategies: tt.strategies}}

			chain, err := NewChainFromConfig(cfg, &mockGateway{})
			if tt.errMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantNames, chain.Names())
		})
	}
}
