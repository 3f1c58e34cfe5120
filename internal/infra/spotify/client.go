// Package spotify provides the music API gateway used to find a
// representative song per country.
package spotify

import (
	"context"
	stdjson "encoding/json"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/osa030/tunemap/internal/domain/remote"
	"github.com/osa030/tunemap/internal/infra/logger"
	"github.com/osa030/tunemap/internal/infra/metrics"
)

const breakerName = "spotify-api"

// Invalidator discards a bearer token that the API rejected.
type Invalidator interface {
	Invalidate()
}

// Config represents Spotify gateway configuration.
type Config struct {
	BaseURL           string
	ConnectTimeout    time.Duration
	RequestTimeout    time.Duration
	RequestsPerSecond float64
	Burst             int
	Breaker           BreakerConfig
	// Invalidator is told about 401 responses. Optional.
	Invalidator Invalidator
}

// BreakerConfig represents circuit breaker settings.
type BreakerConfig struct {
	FailureThreshold uint32
	OpenTimeout      time.Duration
	HalfOpenRequests uint32
}

// Client calls the Spotify Web API with a caller-supplied bearer token.
// Calls are rate limited and guarded by a circuit breaker that only counts
// transient failures.
type Client struct {
	baseURL        string
	transport      http.RoundTripper
	requestTimeout time.Duration
	limiter        *rate.Limiter
	breaker        *gobreaker.CircuitBreaker[any]
	invalidator    Invalidator
	log            zerolog.Logger
}

// New creates a new Spotify gateway.
func New(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.spotify.com/v1/"
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 10
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	if cfg.Breaker.FailureThreshold == 0 {
		cfg.Breaker.FailureThreshold = 5
	}
	if cfg.Breaker.OpenTimeout <= 0 {
		cfg.Breaker.OpenTimeout = 30 * time.Second
	}
	if cfg.Breaker.HalfOpenRequests == 0 {
		cfg.Breaker.HalfOpenRequests = 1
	}

	log := logger.Component("spotify")

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   cfg.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}).DialContext
	transport.TLSHandshakeTimeout = cfg.ConnectTimeout

	threshold := cfg.Breaker.FailureThreshold
	metrics.BreakerState.WithLabelValues(breakerName).Set(0)
	breaker := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: cfg.Breaker.HalfOpenRequests,
		Timeout:     cfg.Breaker.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// Client errors and authorization failures say nothing about API health.
		IsSuccessful: func(err error) bool {
			return err == nil || !remote.IsTransient(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
			metrics.BreakerState.WithLabelValues(name).Set(breakerStateValue(to))
		},
	})

	return &Client{
		baseURL:        baseURL,
		transport:      transport,
		requestTimeout: cfg.RequestTimeout,
		limiter:        rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		breaker:        breaker,
		invalidator:    cfg.Invalidator,
		log:            log,
	}
}

// api returns a library client that sends accessToken as the bearer token.
func (c *Client) api(accessToken string) *spotify.Client {
	httpClient := &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}),
			Base:   c.transport,
		},
		Timeout: c.requestTimeout,
	}
	return spotify.New(httpClient, spotify.WithBaseURL(c.baseURL))
}

// call runs fn behind the rate limiter and the circuit breaker and maps its
// error into a remote error category.
func (c *Client) call(ctx context.Context, op string, fn func() error) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrapf(mapError(ctx, err), "spotify %s", op)
	}

	_, err := c.breaker.Execute(func() (any, error) {
		return nil, mapError(ctx, fn())
	})
	if err == nil {
		return nil
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = remote.New(remote.KindUnavailable, 0, err)
	}
	if errors.Is(err, remote.ErrUnauthorized) && c.invalidator != nil {
		c.invalidator.Invalidate()
	}
	return errors.Wrapf(err, "spotify %s", op)
}

// mapError categorizes an error returned by the Spotify library.
func mapError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}

	var re *remote.Error
	if errors.As(err, &re) {
		return err
	}

	var se spotify.Error
	if errors.As(err, &se) {
		return remote.New(statusKind(se.Status), se.Status, err)
	}
	var sep *spotify.Error
	if errors.As(err, &sep) {
		return remote.New(statusKind(sep.Status), sep.Status, err)
	}

	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return remote.New(remote.KindTimeout, 0, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return remote.New(remote.KindTimeout, 0, err)
	}

	var syntaxErr *stdjson.SyntaxError
	var typeErr *stdjson.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return remote.New(remote.KindDecodeFailed, 0, err)
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return remote.New(remote.KindUnavailable, 0, err)
	}
	return err
}

func statusKind(status int) remote.Kind {
	if k := remote.FromStatus(status); k != remote.KindUnknown {
		return k
	}
	return remote.KindClientError
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
