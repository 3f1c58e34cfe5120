// Package lastfm provides a client for the Last.fm geo charts.
package lastfm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/goccy/go-json"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/osa030/tunemap/internal/domain/remote"
)

const (
	defaultBaseURL = "https://ws.audioscrobbler.com/2.0/"

	// Last.fm error codes, see https://www.last.fm/api/errorcodes
	errInvalidParameters = 6
	errInvalidAPIKey     = 10
	errRateLimitExceeded = 29
)

// geoCacheEntry represents a cached geo chart result.
type geoCacheEntry struct {
	tracks    []TopTrack
	fetchedAt time.Time
}

// Client is a Last.fm API client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	cacheTTL   time.Duration

	// Cache for geo charts, keyed by lower-cased country name
	geoCache map[string]*geoCacheEntry
	cacheMu  sync.RWMutex
}

// Config represents Last.fm client configuration.
type Config struct {
	APIKey            string
	Timeout           time.Duration
	RequestsPerSecond float64
	// CacheTTL is how long a country chart is reused. Zero disables caching.
	CacheTTL time.Duration
}

// TopTrack represents a chart entry.
type TopTrack struct {
	Name   string
	Artist string
	Rank   int
}

// GeoTopTracksResponse represents the response from geo.getTopTracks API.
type GeoTopTracksResponse struct {
	Tracks struct {
		Track []struct {
			Name   string `json:"name"`
			Artist struct {
				Name string `json:"name"`
			} `json:"artist"`
			// Attr.Rank is zero-based
			Attr struct {
				Rank string `json:"rank"`
			} `json:"@attr"`
		} `json:"track"`
	} `json:"tracks"`
}

// LastFMError represents an error response from Last.fm API.
type LastFMError struct {
	Error   int    `json:"error"`
	Message string `json:"message"`
}

// New creates a new Last.fm client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("last.fm API key is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		cacheTTL:   cfg.CacheTTL,
		geoCache:   make(map[string]*geoCacheEntry),
	}, nil
}

// GetGeoTopTracks retrieves the most popular tracks in a country.
// The country is given by its English name, e.g. "Japan".
// Reference: https://www.last.fm/api/show/geo.getTopTracks
func (c *Client) GetGeoTopTracks(ctx context.Context, country string, limit int) ([]TopTrack, error) {
	if country == "" {
		return nil, errors.New("country name is required")
	}

	if limit <= 0 {
		limit = 10
	}
	if limit > 50 {
		limit = 50
	}

	// Check cache first
	cacheKey := strings.ToLower(country)
	if tracks, ok := c.cached(cacheKey); ok {
		zlog.Debug().Msgf("using cached geo top tracks for country: %s", country)
		return truncate(tracks, limit), nil
	}

	params := url.Values{}
	params.Set("method", "geo.getTopTracks")
	params.Set("api_key", c.apiKey)
	params.Set("country", country)
	params.Set("limit", fmt.Sprintf("%d", limit))
	params.Set("format", "json")

	reqURL := c.baseURL + "?" + params.Encode()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "rate limiter")
	}

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrap(err, "failed to send request")
		}
		return nil, remote.New(remote.KindUnavailable, 0, errors.Wrap(err, "failed to send request"))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response body")
	}

	// Check for Last.fm API errors
	var apiError LastFMError
	if err := json.Unmarshal(body, &apiError); err == nil && apiError.Error != 0 {
		return nil, apiErrorToRemote(resp.StatusCode, apiError)
	}
	if resp.StatusCode >= 400 {
		return nil, remote.New(remote.FromStatus(resp.StatusCode), resp.StatusCode, errors.New("last.fm request failed"))
	}

	// Parse successful response
	var response GeoTopTracksResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, remote.New(remote.KindDecodeFailed, resp.StatusCode, errors.Wrap(err, "failed to parse response"))
	}

	tracks := make([]TopTrack, 0, len(response.Tracks.Track))
	for i, t := range response.Tracks.Track {
		rank := i + 1
		if r, err := strconv.Atoi(t.Attr.Rank); err == nil {
			rank = r + 1
		}
		tracks = append(tracks, TopTrack{
			Name:   t.Name,
			Artist: t.Artist.Name,
			Rank:   rank,
		})
	}

	// Cache the result
	if c.cacheTTL > 0 {
		c.cacheMu.Lock()
		c.geoCache[cacheKey] = &geoCacheEntry{tracks: tracks, fetchedAt: time.Now()}
		c.cacheMu.Unlock()
		zlog.Debug().Msgf("cached geo top tracks for country: %s (count: %d)", country, len(tracks))
	}

	return tracks, nil
}

func (c *Client) cached(key string) ([]TopTrack, bool) {
	if c.cacheTTL <= 0 {
		return nil, false
	}
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()
	entry, ok := c.geoCache[key]
	if !ok || time.Since(entry.fetchedAt) > c.cacheTTL {
		return nil, false
	}
	return entry.tracks, true
}

func apiErrorToRemote(status int, apiErr LastFMError) error {
	cause := errors.Errorf("last.fm API error %d: %s", apiErr.Error, apiErr.Message)
	switch apiErr.Error {
	case errRateLimitExceeded:
		return remote.New(remote.KindRateLimited, status, cause)
	case errInvalidAPIKey:
		return remote.New(remote.KindClientError, status, cause)
	case errInvalidParameters:
		return remote.New(remote.KindNotFound, status, cause)
	default:
		if status >= 500 {
			return remote.New(remote.KindServerError, status, cause)
		}
		return remote.New(remote.KindClientError, status, cause)
	}
}

func truncate(tracks []TopTrack, limit int) []TopTrack {
	if len(tracks) > limit {
		return tracks[:limit]
	}
	return tracks
}
