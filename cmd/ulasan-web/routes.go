package main

import (
	"net/http"

	"github.com/matthewjhunter/ulasan"
	"github.com/matthewjhunter/ulasan/internal/auth"
	"go.uber.org/zap"
)

type routerOptions struct {
	issuer         *auth.Issuer // nil disables upload authentication
	maxUploadBytes int64
	logger         *zap.Logger
}

// newRouter sets up all routes using Go 1.22+ enhanced routing.
func newRouter(engine *ulasan.Engine, opts routerOptions) http.Handler {
	if opts.logger == nil {
		opts.logger = zap.NewNop()
	}
	if opts.maxUploadBytes <= 0 {
		opts.maxUploadBytes = 32 << 20
	}

	mux := http.NewServeMux()

	h := &handlers{
		engine:         engine,
		issuer:         opts.issuer,
		maxUploadBytes: opts.maxUploadBytes,
		logger:         opts.logger,
	}

	// Dimensions
	mux.HandleFunc("GET /api/platforms", h.handlePlatforms)
	mux.HandleFunc("GET /api/aspects", h.handleAspects)

	// Dashboard queries
	mux.HandleFunc("GET /api/sentiment", h.handleTimeSeries)
	mux.HandleFunc("GET /api/sentiment/aggregate", h.handleAggregate)
	mux.HandleFunc("GET /api/sentiment/distribution", h.handleDistribution)
	mux.HandleFunc("GET /api/versions", h.handleVersions)
	mux.HandleFunc("GET /api/day", h.handleDay)
	mux.HandleFunc("GET /api/wordcloud", h.handleWordCloud)

	// Writes and model calls
	mux.HandleFunc("POST /api/upload", h.requireUploadToken(h.handleUpload))
	mux.HandleFunc("POST /api/analyze", h.handleAnalyze)

	// Operations
	mux.HandleFunc("GET /healthz", h.handleHealth)
	mux.Handle("GET /metrics", engine.MetricsHandler())

	return mux
}
