package main

import (
	"context"
	"sync"
	"time"

	"github.com/matthewjhunter/ulasan"
	"go.uber.org/zap"
)

// poller re-ingests the seed paths in the background so files dropped there
// become queryable without an explicit ingest_files call.
type poller struct {
	engine   *ulasan.Engine
	paths    []string
	interval time.Duration
	logger   *zap.Logger

	mu   sync.Mutex
	done chan struct{}
}

func newPoller(engine *ulasan.Engine, paths []string, interval time.Duration, logger *zap.Logger) *poller {
	return &poller{
		engine:   engine,
		paths:    paths,
		interval: interval,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// start launches the background poll loop. It polls immediately, then on
// each tick of the configured interval.
func (p *poller) start(ctx context.Context) {
	go p.loop(ctx)
	p.logger.Info("poller started", zap.Duration("interval", p.interval), zap.Strings("paths", p.paths))
}

// stop signals the poll loop to exit.
func (p *poller) stop() {
	close(p.done)
	p.logger.Info("poller stopped")
}

// poll runs a single seed cycle. Also backs the seed_now MCP tool.
func (p *poller) poll(ctx context.Context) (*ulasan.IngestResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	result, err := p.engine.IngestPaths(ctx, p.paths)
	if err != nil {
		return nil, err
	}

	p.logger.Info("poll completed",
		zap.String("run_id", result.RunID),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed))
	return result, nil
}

func (p *poller) loop(ctx context.Context) {
	if _, err := p.poll(ctx); err != nil {
		p.logger.Warn("initial poll failed", zap.Error(err))
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.poll(ctx); err != nil {
				p.logger.Warn("poll failed", zap.Error(err))
			}
		}
	}
}
