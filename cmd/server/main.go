/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the fundamentals engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env + environment), apply flag overrides
  2. Initialize logger and SQLite store
  3. Load aggregation policies
  4. Build the fetch chain: EODHD client behind the SQLite payload cache
  5. Seed tracked symbols, start the refresh scheduler
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides PORT)
  -db      SQLite database path (overrides DB_PATH)
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler (waits for a running pass)
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  EODHD_API_TOKEN=demo SYMBOLS=AAPL.US,MSFT.US ./server
  ./server -db=":memory:" -port=3000

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
  - store/sqlite/cache.go: Payload cache
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/warp/fundamentals-engine/api"
	"github.com/warp/fundamentals-engine/config"
	"github.com/warp/fundamentals-engine/eodhd"
	"github.com/warp/fundamentals-engine/factory"
	"github.com/warp/fundamentals-engine/logger"
	"github.com/warp/fundamentals-engine/store/sqlite"
)

func main() {
	port := flag.Int("port", 0, "HTTP server port (overrides PORT)")
	dbPath := flag.String("db", "", "SQLite database path (overrides DB_PATH)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *dbPath != "" {
		cfg.DatabasePath = *dbPath
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	logger.SetGlobalLogger(log)

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	store, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	policies, err := factory.NewPolicyFactory().LoadFile(cfg.PolicyFile)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}

	if cfg.EODHDToken == "" {
		log.Warn().Msg("EODHD_API_TOKEN not set, upstream fetches will be rejected")
	}
	client := eodhd.NewClient(cfg.EODHDToken,
		eodhd.WithBaseURL(cfg.EODHDBaseURL),
		eodhd.WithRateLimit(cfg.EODHDRatePerSec),
		eodhd.WithLogger(log),
	)
	fetcher := sqlite.NewPayloadCache(store, client, cfg.CacheTTL, log)

	handler := api.NewHandler(store, fetcher, policies, log)

	ctx := context.Background()
	for _, symbol := range cfg.Symbols {
		if err := store.SaveSymbol(ctx, symbol); err != nil {
			return fmt.Errorf("failed to track %s: %w", symbol, err)
		}
	}

	var scheduler *api.RefreshScheduler
	if cfg.RefreshSchedule != "" {
		scheduler, err = api.NewRefreshScheduler(store, handler, cfg.RefreshSchedule, log)
		if err != nil {
			return err
		}
		scheduler.Start()
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      api.NewRouter(handler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Port).Str("db", cfg.DatabasePath).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	log.Info().Msg("shutting down server")
	if scheduler != nil {
		scheduler.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info().Msg("server stopped")
	return nil
}
