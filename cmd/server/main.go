// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/osa030/tunemap/internal/api/httpapi"
	"github.com/osa030/tunemap/internal/app/geocache"
	"github.com/osa030/tunemap/internal/app/notification"
	"github.com/osa030/tunemap/internal/app/regional"
	"github.com/osa030/tunemap/internal/app/token"
	"github.com/osa030/tunemap/internal/domain/track"
	"github.com/osa030/tunemap/internal/infra/config"
	"github.com/osa030/tunemap/internal/infra/logger"
	"github.com/osa030/tunemap/internal/infra/spotify"
)

var (
	app        = kingpin.New("tunemap-server", "tunemap regional top songs server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()
	skipCheck  = app.Flag("skip-credential-check", "Start without verifying Spotify credentials").Bool()

	// list-strategies command
	listStrategiesCmd = app.Command("list-strategies", "List available fetch strategies and exit")
)

func init() {
	// start command (default) - no need to store the command
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse command
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == listStrategiesCmd.FullCommand() {
		printStrategies()
		return
	}

	// Initialize logger
	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
		loggerConfig.File = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	// Load config
	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		os.Exit(1)
	}
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx := context.Background()

	// Token provider over the client credentials exchange
	exchanger, err := spotify.NewCredentialsExchanger(spotify.CredentialsConfig{
		ClientID:     cfg.Spotify.ClientID,
		ClientSecret: cfg.Spotify.ClientSecret,
		TokenURL:     cfg.Spotify.TokenURL,
		Timeout:      cfg.Spotify.RequestTimeout,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create credentials exchanger")
	}
	tokens := token.NewProvider(exchanger,
		token.WithSafetyMargin(cfg.Spotify.TokenSafetyMargin),
		token.WithExchangeTimeout(cfg.Spotify.RequestTimeout),
	)

	if !*skipCheck {
		if err := verifyCredentials(ctx, tokens); err != nil {
			return errors.Wrap(err, "credential check failed")
		}
	}

	// Music API gateway
	gateway := spotify.New(spotify.Config{
		BaseURL:           cfg.Spotify.BaseURL,
		ConnectTimeout:    cfg.Spotify.ConnectTimeout,
		RequestTimeout:    cfg.Spotify.RequestTimeout,
		RequestsPerSecond: cfg.Spotify.RequestsPerSecond,
		Burst:             cfg.Spotify.Burst,
		Breaker: spotify.BreakerConfig{
			FailureThreshold: cfg.Spotify.Breaker.FailureThreshold,
			OpenTimeout:      cfg.Spotify.Breaker.OpenTimeout,
			HalfOpenRequests: cfg.Spotify.Breaker.HalfOpenRequests,
		},
		Invalidator: tokens,
	})

	chain, err := regional.NewChainFromConfig(cfg, gateway)
	if err != nil {
		return errors.Wrap(err, "failed to create strategy chain")
	}

	// Cache with durable store and change notifications
	events := notification.NewManager()
	store := geocache.NewFileStore[track.Track](cfg.Cache.Path)
	cache := geocache.New[track.Track](store,
		geocache.WithTTL(cfg.Cache.TTL),
		geocache.WithMaxSize(cfg.Cache.MaxSize),
		geocache.WithNotifier(events),
	)
	zlog.Info().Msgf("Cache ready: path=%s entries=%d ttl=%s max=%d", store.Path(), cache.Len(), cache.TTL(), cache.MaxSize())

	orchestrator := regional.NewOrchestrator(cache, tokens, chain,
		regional.WithConcurrency(cfg.Fetch.Concurrency),
	)

	api := httpapi.NewServer(httpapi.Services{
		Regions:  orchestrator,
		Cache:    cache,
		Tokens:   tokens,
		Events:   events,
		Throttle: regional.NewThrottle(cfg.Viewport.MinDistanceKm),
	}, cfg.Admin.Token)

	// Create HTTP mux
	mux := http.NewServeMux()
	mux.Handle("/v1/", api.Handler())
	mux.Handle("/metrics", promhttp.Handler())

	// Requests derive from baseCtx so shutdown can end open event streams
	baseCtx, cancelRequests := context.WithCancel(ctx)
	defer cancelRequests()

	serverAddr := cfg.Server.Addr
	// Create server with h2c (HTTP/2 cleartext) support
	server := &http.Server{
		Addr:              serverAddr,
		Handler:           h2c.NewHandler(mux, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}

	// Channel to capture server startup errors
	serverErrCh := make(chan error, 1)
	serverStartedCh := make(chan struct{})

	go func() {
		zlog.Info().Msgf("Starting server: addr=%s strategies=%v", serverAddr, chain.Names())
		close(serverStartedCh)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	// Wait for server to start listening
	<-serverStartedCh
	// Give the server a moment to fully initialize
	time.Sleep(100 * time.Millisecond)

	// Execute startup hook if configured (after server is running)
	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")

	// Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		return errors.Wrap(err, "server error")
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cancelRequests()
	events.Close()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")

	// Execute shutdown hook if configured
	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")

	return nil
}

// printStrategies prints available fetch strategies.
func printStrategies() {
	fmt.Println("Available Strategies:")
	fmt.Printf("  %-15s - %s\n", regional.StrategyTopChart, "first track of the country's chart playlist")
	fmt.Printf("  %-15s - %s\n", regional.StrategyNewReleases, "opening track of the newest album released in the country")
	fmt.Printf("  %-15s - %s\n", regional.StrategyLastFmGeo, "Last.fm country chart matched against the Spotify catalog (needs api_key)")
}

// verifyCredentials performs one token exchange, retrying transient
// failures with exponential backoff.
func verifyCredentials(ctx context.Context, tokens *token.Provider) error {
	maxRetries := 5
	baseDelay := 1 * time.Second

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		if i > 0 {
			delay := baseDelay * time.Duration(1<<uint(i-1))
			zlog.Info().Msgf("Retrying credential check in %v...", delay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		tok, err := tokens.Token(ctx)
		if err == nil {
			zlog.Info().Msgf("Spotify credentials verified: token valid until %s", tok.ExpiresAt.Format(time.RFC3339))
			return nil
		}
		lastErr = err
		zlog.Warn().Msgf("Failed to verify credentials (attempt %d/%d): %v", i+1, maxRetries, err)
	}
	return errors.Wrapf(lastErr, "failed after %d attempts", maxRetries)
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		// Use sh -c to allow shell features like redirection or pipes
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
