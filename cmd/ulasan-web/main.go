package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/matthewjhunter/ulasan"
	"github.com/matthewjhunter/ulasan/internal/auth"
	"github.com/matthewjhunter/ulasan/internal/logging"
	"github.com/matthewjhunter/ulasan/internal/storage"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "./config/config.yaml", "path to config file (yaml or toml)")
	addr := flag.String("addr", "", "listen address (default: server.addr from config)")
	flag.Parse()

	cfg, err := storage.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ulasan-web: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	logger, err := logging.New(cfg.Logging.Mode, cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ulasan-web: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	engine, err := ulasan.NewEngineFromConfig(cfg, logger)
	if err != nil {
		logger.Fatal("failed to open engine", zap.Error(err))
	}
	defer engine.Close()

	opts := routerOptions{
		maxUploadBytes: cfg.Server.MaxUploadMB << 20,
		logger:         logger.Named("http"),
	}
	if cfg.Server.UploadSecret != "" {
		opts.issuer, err = auth.NewIssuer(cfg.Server.UploadSecret)
		if err != nil {
			logger.Fatal("invalid upload secret", zap.Error(err))
		}
	} else {
		logger.Warn("server.upload_secret is not set; uploads are unauthenticated")
	}

	mux := newRouter(engine, opts)

	srv := newHTTPServer(cfg.Server.Addr, requestLogging(opts.logger, recovery(opts.logger, mux)))

	// Graceful shutdown on SIGINT/SIGTERM
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-done
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
		return
	}
	logger.Info("stopped")
}

// newHTTPServer sets the connection timeouts. The write window outlasts an
// upload run so the run log always reaches the client.
func newHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      uploadRunTimeout + 30*time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
