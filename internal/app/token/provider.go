// Package token hands out bearer tokens for the music API, refreshing them
// with the client-credentials grant.
package token

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/osa030/tunemap/internal/domain/remote"
	"github.com/osa030/tunemap/internal/infra/logger"
	"github.com/osa030/tunemap/internal/infra/metrics"
)

const (
	// DefaultSafetyMargin is subtracted from the issued lifetime.
	DefaultSafetyMargin = 60 * time.Second
	// DefaultExchangeTimeout bounds a single exchange.
	DefaultExchangeTimeout = 60 * time.Second

	flightKey = "client_credentials"
)

// Exchanger performs one client-credentials exchange.
type Exchanger interface {
	ExchangeClientCredentials(ctx context.Context) (accessToken string, expiresIn time.Duration, err error)
}

// Token is a bearer token and the instant after which it is no longer used.
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
}

// State describes the currently held token without exposing it.
type State struct {
	HasToken  bool      `json:"hasToken"`
	Valid     bool      `json:"valid"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
}

// Option configures a Provider.
type Option func(*Provider)

// WithSafetyMargin sets how long before the issued expiry a token is dropped.
func WithSafetyMargin(d time.Duration) Option {
	return func(p *Provider) { p.margin = d }
}

// WithExchangeTimeout bounds each exchange.
func WithExchangeTimeout(d time.Duration) Option {
	return func(p *Provider) { p.exchangeTimeout = d }
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

// WithLogger overrides the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Provider) { p.log = l }
}

// Provider caches one token. Concurrent callers that find no valid token
// share a single exchange.
type Provider struct {
	exchanger       Exchanger
	margin          time.Duration
	exchangeTimeout time.Duration
	now             func() time.Time
	log             zerolog.Logger

	flight singleflight.Group

	mu    sync.RWMutex
	token Token
}

// NewProvider creates a provider using exchanger.
func NewProvider(exchanger Exchanger, opts ...Option) *Provider {
	p := &Provider{
		exchanger:       exchanger,
		margin:          DefaultSafetyMargin,
		exchangeTimeout: DefaultExchangeTimeout,
		now:             time.Now,
		log:             logger.Component("token"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Token returns a valid access token, exchanging credentials when none is
// held. The exchange is not tied to ctx, so one caller giving up does not
// fail the others waiting on it; ctx only bounds how long this caller waits.
func (p *Provider) Token(ctx context.Context) (Token, error) {
	if t, ok := p.cached(); ok {
		return t, nil
	}

	exchangeCtx := context.WithoutCancel(ctx)
	ch := p.flight.DoChan(flightKey, func() (interface{}, error) {
		return p.exchange(exchangeCtx)
	})

	select {
	case <-ctx.Done():
		return Token{}, errors.Wrap(ctx.Err(), "waiting for token exchange")
	case res := <-ch:
		if res.Err != nil {
			return Token{}, res.Err
		}
		return res.Val.(Token), nil
	}
}

// AccessToken is Token without the expiry.
func (p *Provider) AccessToken(ctx context.Context) (string, error) {
	t, err := p.Token(ctx)
	if err != nil {
		return "", err
	}
	return t.AccessToken, nil
}

// Invalidate discards the held token so the next call exchanges again.
func (p *Provider) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.token.AccessToken == "" {
		return
	}
	p.token.ExpiresAt = time.Time{}
	metrics.TokenInvalidations.Inc()
	p.log.Info().Msg("access token invalidated")
}

// State reports whether a token is held and until when it is used.
func (p *Provider) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.token.AccessToken == "" {
		return State{}
	}
	return State{
		HasToken:  true,
		Valid:     p.now().Before(p.token.ExpiresAt),
		ExpiresAt: p.token.ExpiresAt,
	}
}

func (p *Provider) cached() (Token, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.token.AccessToken != "" && p.now().Before(p.token.ExpiresAt) {
		return p.token, true
	}
	return Token{}, false
}

func (p *Provider) exchange(ctx context.Context) (Token, error) {
	// A flight that finished just before this one started may have stored a token.
	if t, ok := p.cached(); ok {
		return t, nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.exchangeTimeout)
	defer cancel()

	issuedAt := p.now()
	access, expiresIn, err := p.exchanger.ExchangeClientCredentials(ctx)
	if err != nil {
		metrics.TokenExchanges.WithLabelValues("failure").Inc()
		p.log.Error().Err(err).Msg("client credentials exchange failed")
		if errors.Is(err, remote.ErrAuthenticationFailed) {
			return Token{}, err
		}
		return Token{}, remote.AuthenticationFailed(0, "token exchange failed", err)
	}
	if access == "" {
		metrics.TokenExchanges.WithLabelValues("failure").Inc()
		return Token{}, remote.AuthenticationFailed(0, "empty access token", nil)
	}

	if expiresIn <= 0 {
		metrics.TokenExchanges.WithLabelValues("failure").Inc()
		return Token{}, remote.AuthenticationFailed(0, "token issued without lifetime", nil)
	}

	// A lifetime shorter than the margin keeps at least half of it usable.
	margin := min(p.margin, expiresIn/2)
	if margin < p.margin {
		p.log.Warn().Dur("expires_in", expiresIn).Dur("margin", margin).Msg("short token lifetime, safety margin reduced")
	}
	t := Token{
		AccessToken: access,
		ExpiresAt:   issuedAt.Add(expiresIn - margin),
	}

	p.mu.Lock()
	p.token = t
	p.mu.Unlock()

	metrics.TokenExchanges.WithLabelValues("success").Inc()
	p.log.Info().Time("expires_at", t.ExpiresAt).Msg("access token refreshed")
	return t, nil
}
