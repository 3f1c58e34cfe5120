package spotify

import (
	"context"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/osa030/tunemap/internal/domain/remote"
)

// defaultTokenLifetime is assumed when the token response carries no expiry.
const defaultTokenLifetime = time.Hour

// CredentialsConfig represents the client-credentials grant settings.
type CredentialsConfig struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	Timeout      time.Duration
}

// CredentialsExchanger trades the application credentials for an access token.
type CredentialsExchanger struct {
	config     clientcredentials.Config
	httpClient *http.Client
}

// NewCredentialsExchanger creates an exchanger. Client ID and secret are required.
func NewCredentialsExchanger(cfg CredentialsConfig) (*CredentialsExchanger, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("spotify client credentials are required")
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = "https://accounts.spotify.com/api/token"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	return &CredentialsExchanger{
		config: clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			AuthStyle:    oauth2.AuthStyleInHeader,
		},
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// ExchangeClientCredentials performs one token request and returns the
// access token with its lifetime in seconds as reported by the server.
func (e *CredentialsExchanger) ExchangeClientCredentials(ctx context.Context) (string, time.Duration, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, e.httpClient)

	tok, err := e.config.Token(ctx)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			status := 0
			if re.Response != nil {
				status = re.Response.StatusCode
			}
			return "", 0, remote.AuthenticationFailed(status, re.ErrorCode, err)
		}
		return "", 0, remote.AuthenticationFailed(0, "token request failed", err)
	}

	expiresIn := time.Duration(tok.ExpiresIn) * time.Second
	if expiresIn <= 0 && !tok.Expiry.IsZero() {
		expiresIn = time.Until(tok.Expiry).Round(time.Second)
	}
	if expiresIn <= 0 {
		expiresIn = defaultTokenLifetime
	}
	return tok.AccessToken, expiresIn, nil
}
