// Package main runs the pump.fun data scraper in one of two modes:
// - live: realtime WebSocket stream ingestion with auto-reconnect
// - poll: fixed-cadence REST polling of coins and trades
// Both modes merge into the same in-memory store and flush to the
// configured archiver backends on a timer.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pumpfeed/internal/config"
	"pumpfeed/internal/observability"
	"pumpfeed/internal/pumpapi"
	"pumpfeed/internal/scraper"
	"pumpfeed/internal/storage"
	chstore "pumpfeed/internal/storage/clickhouse"
	"pumpfeed/internal/storage/file"
	"pumpfeed/internal/storage/migrations"
	pgstore "pumpfeed/internal/storage/postgres"
	"pumpfeed/internal/store"
	"pumpfeed/internal/stream"
)

func main() {
	mode := flag.String("mode", "live", "Ingestion mode: live or poll")
	configFile := flag.String("config", "", "Path to YAML config file (default: config.yaml if present)")
	duration := flag.Duration("duration", 0, "Stop after this long (0 = run until signalled)")
	outputDir := flag.String("output-dir", "", "Override storage output directory")
	outputFormat := flag.String("output-format", "", "Override storage output format: json, csv or both")
	postgresDSN := flag.String("postgres-dsn", "", "Override PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "Override ClickHouse connection string")
	httpAddr := flag.String("http-addr", "", "Override metrics/health HTTP address")

	flag.Parse()

	logger := log.New(os.Stdout, "[scraper] ", log.LstdFlags|log.Lshortfile)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Fatalf("Load config: %v", err)
	}
	applyOverrides(cfg, *outputDir, *outputFormat, *postgresDSN, *clickhouseDSN, *httpAddr)
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("Invalid config: %v", err)
	}

	metrics := observability.NewMetrics("")

	// Create context with cancellation
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if *duration > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), *duration)
		logger.Printf("Running for %v", *duration)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}

	archiver, cleanup, err := createArchiver(ctx, cfg, logger)
	if err != nil {
		cancel()
		logger.Fatalf("Create archiver: %v", err)
	}
	defer cleanup()

	st := store.NewMergeStore()

	// Channel to signal main goroutine completion
	done := make(chan error, 1)

	// Handle shutdown signals with graceful timeout
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		case <-ctx.Done():
			return
		}
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
			// Normal shutdown completed
		}
	}()

	// Start metrics/health HTTP server
	go startHTTPServer(cfg.Server.Addr, st, logger)

	switch *mode {
	case "live":
		err = runLive(ctx, cfg, st, archiver, metrics, logger)
	case "poll":
		err = runPoll(ctx, cfg, st, archiver, metrics, logger)
	default:
		logger.Fatalf("Unknown mode: %s", *mode)
	}

	done <- err
	cancel()

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		logger.Fatalf("Error: %v", err)
	}
	logger.Println("Shutdown complete")
}

// applyOverrides layers non-empty flag values over the loaded config.
func applyOverrides(cfg *config.Config, outputDir, outputFormat, postgresDSN, clickhouseDSN, httpAddr string) {
	if outputDir != "" {
		cfg.Storage.OutputDir = outputDir
	}
	if outputFormat != "" {
		cfg.Storage.OutputFormat = outputFormat
	}
	if postgresDSN != "" {
		cfg.Storage.PostgresDSN = postgresDSN
	}
	if clickhouseDSN != "" {
		cfg.Storage.ClickhouseDSN = clickhouseDSN
	}
	if httpAddr != "" {
		cfg.Server.Addr = httpAddr
	}
}

// createArchiver builds the archiver fan-out: timestamped files always,
// PostgreSQL and ClickHouse when their DSNs are configured. Schema
// migrations run before the database stores are handed out.
func createArchiver(ctx context.Context, cfg *config.Config, logger *log.Logger) (storage.Archiver, func(), error) {
	fileArch, err := file.New(cfg.Storage.OutputDir, cfg.Storage.OutputFormat)
	if err != nil {
		return nil, nil, fmt.Errorf("create file archiver: %w", err)
	}
	targets := []storage.Archiver{fileArch}

	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	if cfg.Storage.PostgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		cleanups = append(cleanups, pool.Close)

		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("migrate postgres: %w", err)
		}
		targets = append(targets, pgstore.NewArchiveStore(pool))
		logger.Println("PostgreSQL archiver enabled")
	}

	if cfg.Storage.ClickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickhouseDSN)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("migrate clickhouse: %w", err)
		}
		cleanups = append(cleanups, func() { _ = conn.Close() })
		targets = append(targets, chstore.NewArchiveStore(conn))
		logger.Println("ClickHouse archiver enabled")
	}

	return storage.NewMulti(targets...), cleanup, nil
}

// runLive runs realtime stream ingestion.
func runLive(ctx context.Context, cfg *config.Config, st *store.MergeStore, archiver storage.Archiver, metrics *observability.Metrics, logger *log.Logger) error {
	s := scraper.New(scraper.Options{
		Stream: stream.Config{
			URL:              cfg.Stream.URL,
			APIKey:           cfg.Stream.APIKey,
			ReceiveTimeout:   cfg.Stream.ReceiveTimeout,
			SubscribeDelay:   cfg.Stream.SubscribeDelay,
			ReconnectDelay:   cfg.Stream.ReconnectDelay,
			MaxReconnectWait: cfg.Stream.MaxReconnectWait,
			MaxAttempts:      cfg.Stream.ReconnectAttempts,
		},
		Store:           st,
		Archiver:        archiver,
		Metrics:         metrics,
		Logger:          logger,
		PersistInterval: cfg.Collect.PersistInterval,
		StatsInterval:   cfg.Collect.StatsInterval,
	})

	logger.Printf("Starting live ingestion from %s...", cfg.Stream.URL)
	return s.Run(ctx)
}

// runPoll runs REST polling ingestion.
func runPoll(ctx context.Context, cfg *config.Config, st *store.MergeStore, archiver storage.Archiver, metrics *observability.Metrics, logger *log.Logger) error {
	client := pumpapi.NewClient(cfg.API.BaseURL,
		pumpapi.WithTimeout(cfg.API.Timeout),
		pumpapi.WithMaxRetries(cfg.API.MaxRetries),
		pumpapi.WithRetryDelay(cfg.API.RetryDelay),
		pumpapi.WithMaxDelay(cfg.API.MaxBackoff),
		pumpapi.WithPageSize(cfg.API.PageSize),
		pumpapi.WithRequestDelay(cfg.API.RequestDelay),
	)

	p := scraper.NewPoller(scraper.PollerOptions{
		Client:          client,
		Store:           st,
		Archiver:        archiver,
		Metrics:         metrics,
		Logger:          logger,
		Interval:        cfg.Poll.Interval,
		MaxTokens:       cfg.Poll.MaxTokens,
		TradeTokens:     cfg.Poll.TradeTokens,
		TradesPerToken:  cfg.Poll.TradesPerToken,
		NewLaunchWindow: cfg.Poll.NewLaunchWindow,
		MinMarketCap:    cfg.Poll.MinMarketCap,
		MinVolume:       cfg.Poll.MinVolume,
		StatsInterval:   cfg.Collect.StatsInterval,
	})

	logger.Printf("Starting poll ingestion from %s every %v...", cfg.API.BaseURL, cfg.Poll.Interval)
	return p.Run(ctx)
}

// StatusResponse is the JSON response for the /status endpoint.
type StatusResponse struct {
	Status             string    `json:"status"`
	Uptime             string    `json:"uptime"`
	SessionStart       time.Time `json:"session_start"`
	MessagesReceived   int64     `json:"messages_received"`
	ParseErrors        int64     `json:"parse_errors"`
	ConnectionErrors   int64     `json:"connection_errors"`
	ReconnectAttempts  int64     `json:"reconnect_attempts"`
	TokensCollected    int       `json:"tokens_collected"`
	TransactionsStored int       `json:"transactions_stored"`
	NewLaunches        int       `json:"new_launches"`
	Migrations         int       `json:"migrations"`
	DuplicatesDropped  int64     `json:"duplicates_dropped"`
	PersistFlushes     int64     `json:"persist_flushes"`
	PersistFailures    int64     `json:"persist_failures"`
}

// startHTTPServer serves health, metrics and session status.
func startHTTPServer(addr string, st *store.MergeStore, logger *log.Logger) {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.Handle("/metrics", observability.Handler())

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		stats := st.Stats()
		resp := StatusResponse{
			Status:             "running",
			Uptime:             time.Since(stats.SessionStart).String(),
			SessionStart:       stats.SessionStart,
			MessagesReceived:   stats.MessagesReceived,
			ParseErrors:        stats.ParseErrors,
			ConnectionErrors:   stats.ConnectionErrors,
			ReconnectAttempts:  stats.ReconnectAttempts,
			TokensCollected:    stats.TokensCollected,
			TransactionsStored: stats.TransactionsStored,
			NewLaunches:        stats.NewLaunches,
			Migrations:         stats.Migrations,
			DuplicatesDropped:  stats.DuplicatesDropped,
			PersistFlushes:     stats.PersistFlushes,
			PersistFailures:    stats.PersistFailures,
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})

	logger.Printf("Starting HTTP server on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		logger.Printf("HTTP server error: %v", err)
	}
}
