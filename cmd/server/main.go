/*
main.go - Application entry point

PURPOSE:
  Starts the fare engine HTTP server. Loads configuration, wires the store,
  rate card, logging and metrics, and handles graceful shutdown.

STARTUP SEQUENCE:
  1. Load FARE_* settings (and .env if present), apply flag overrides
  2. Build the logger and metrics registry
  3. Open the SQLite store
  4. Load the stored rate card, or seed it from FARE_RATE_CARD
  5. Start the rate card refresh loop
  6. Configure the router and serve

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides FARE_PORT)
  -db      SQLite database path (overrides FARE_DB_PATH)
           Use ":memory:" for an in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the rate card refresh loop
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close the database connection

EXAMPLES:
  # Seed a YAML rate card into a fresh database
  FARE_RATE_CARD=./rates.yaml ./server -db="./data/fares.db"

  # Human-readable logs, in-memory store
  FARE_LOG_FORMAT=console ./server -db=":memory:"

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/warp/fare-engine/api"
	"github.com/warp/fare-engine/config"
	"github.com/warp/fare-engine/obs"
	"github.com/warp/fare-engine/store/sqlite"
)

func main() {
	port := flag.String("port", "", "HTTP server port (overrides FARE_PORT)")
	dbPath := flag.String("db", "", "SQLite database path (overrides FARE_DB_PATH)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		bootLogger := obs.NewLogger("json", "info")
		bootLogger.Fatal().Err(err).Msg("invalid configuration")
	}
	if *port != "" {
		cfg.Port = *port
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := obs.NewMetrics(cfg.MetricsNamespace, registry)

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		logger.Fatal().Err(err).Str("db", cfg.DBPath).Msg("failed to initialize database")
	}
	defer store.Close()

	handler := api.NewHandler(store, logger, metrics)
	if err := handler.LoadRateCard(context.Background(), cfg.RateCardPath); err != nil {
		logger.Fatal().Err(err).Str("rate_card", cfg.RateCardPath).Msg("failed to load rate card")
	}

	scheduler := api.NewRateCardScheduler(handler, cfg.RateCardRefresh)
	scheduler.Start()

	server := &http.Server{
		Addr:         cfg.HTTPAddr(),
		Handler:      api.NewRouter(handler, cfg.CORSAllowedOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Str("db", cfg.DBPath).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
		return
	}

	logger.Info().Msg("server stopped")
}
