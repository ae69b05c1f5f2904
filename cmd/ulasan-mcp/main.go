// ulasan-mcp is a standalone MCP server for the ulasan review-sentiment
// engine. It opens the configured database directly and serves ingestion,
// dashboard query, and review analysis tools over stdio.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/matthewjhunter/ulasan"
	"github.com/matthewjhunter/ulasan/internal/logging"
	"github.com/matthewjhunter/ulasan/internal/storage"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "./config/config.yaml", "path to config file (yaml or toml)")
	dbPath := flag.String("db", "", "path to SQLite database (overrides config)")
	poll := flag.Duration("poll", 0, "re-ingest the seed directory on this interval (0 disables)")
	flag.Parse()

	cfg, err := storage.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ulasan-mcp: %v\n", err)
		os.Exit(1)
	}
	if *dbPath != "" {
		cfg.Database.Driver = string(storage.DialectSQLite)
		cfg.Database.Path = *dbPath
	}

	logger, err := logging.New(cfg.Logging.Mode, cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ulasan-mcp: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	engine, err := ulasan.NewEngineFromConfig(cfg, logger)
	if err != nil {
		logger.Fatal("create ulasan engine", zap.Error(err))
	}
	defer engine.Close()

	srv := newServer(engine, logger.Named("mcp"))
	if *poll > 0 {
		srv.poller = newPoller(engine, []string{cfg.Ingest.SeedDir}, *poll, logger.Named("poller"))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := srv.run(ctx); err != nil && ctx.Err() == nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
