// Package main provides the Spotify credentials check tool.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"

	"github.com/osa030/tunemap/internal/app/token"
	"github.com/osa030/tunemap/internal/domain/remote"
	"github.com/osa030/tunemap/internal/infra/spotify"
)

var (
	app          = kingpin.New("tunemap-auth", "Spotify client credentials check for tunemap")
	clientID     = app.Flag("client-id", "Spotify Client ID").Envar("SPOTIFY_CLIENT_ID").Required().String()
	clientSecret = app.Flag("client-secret", "Spotify Client Secret").Envar("SPOTIFY_CLIENT_SECRET").Required().String()
	tokenURL     = app.Flag("token-url", "Token endpoint").Default("https://accounts.spotify.com/api/token").String()
	timeout      = app.Flag("timeout", "Exchange timeout").Default("60s").Duration()
	showToken    = app.Flag("show-token", "Print the access token").Bool()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse flags
	kingpin.MustParse(app.Parse(os.Args[1:]))

	exchanger, err := spotify.NewCredentialsExchanger(spotify.CredentialsConfig{
		ClientID:     *clientID,
		ClientSecret: *clientSecret,
		TokenURL:     *tokenURL,
		Timeout:      *timeout,
	})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	provider := token.NewProvider(exchanger, token.WithExchangeTimeout(*timeout))

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	fmt.Println("Exchanging client credentials...")
	tok, err := provider.Token(ctx)
	if err != nil {
		fmt.Println("")
		fmt.Println("=== Authentication Failed ===")
		fmt.Println("")
		var rerr *remote.Error
		if errors.As(err, &rerr) {
			fmt.Printf("Status: %d\n", rerr.StatusCode)
			if rerr.Reason != "" {
				fmt.Printf("Reason: %s\n", rerr.Reason)
			}
		}
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	state := provider.State()

	fmt.Println("")
	fmt.Println("=== Authentication Successful ===")
	fmt.Println("")
	fmt.Printf("Valid: %v\n", state.Valid)
	fmt.Printf("Usable until: %s (%s from now)\n",
		state.ExpiresAt.Local().Format(time.RFC3339),
		time.Until(state.ExpiresAt).Round(time.Second))
	if *showToken {
		fmt.Println("")
		fmt.Println("Access Token:")
		fmt.Println(tok.AccessToken)
	}
	fmt.Println("")
	fmt.Println("Add these to your config.yaml:")
	fmt.Println("")
	fmt.Println("spotify:")
	fmt.Printf("  client_id: \"%s\"\n", *clientID)
	fmt.Println("  client_secret: \"...\"")
	fmt.Println("")
	fmt.Println("Or set as environment variables:")
	fmt.Println("export SPOTIFY_CLIENT_ID=... SPOTIFY_CLIENT_SECRET=...")
}
