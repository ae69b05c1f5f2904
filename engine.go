package ulasan

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/matthewjhunter/ulasan/internal/analyzer"
	"github.com/matthewjhunter/ulasan/internal/ingest"
	"github.com/matthewjhunter/ulasan/internal/metrics"
	"github.com/matthewjhunter/ulasan/internal/storage"
)

const dateLayout = "2006-01-02"

// Engine is the public API for review-sentiment ingestion and dashboards.
// It owns the storage handle for its whole lifetime.
type Engine struct {
	store     storage.Store
	ingester  *ingest.Ingester
	analyzer  *analyzer.Analyzer
	metrics   *metrics.Metrics
	logger    *zap.Logger
	wordCloud string
}

// NewEngine opens the configured database, creating the schema if needed.
// The analyzer is created eagerly but only contacts Ollama when called.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	defaults := storage.DefaultConfig()
	if cfg.AnalyzerURL == "" {
		cfg.AnalyzerURL = defaults.Analyzer.BaseURL
	}
	if cfg.AnalyzerModel == "" {
		cfg.AnalyzerModel = defaults.Analyzer.Model
	}
	if len(cfg.AnalyzerAspects) == 0 {
		cfg.AnalyzerAspects = defaults.Analyzer.Aspects
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	dialect, ok := storage.ParseDialect(cfg.Driver)
	if !ok {
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	if cfg.DSN == "" {
		if dialect == storage.DialectPostgres {
			return nil, errors.New("a connection URL is required for postgres")
		}
		cfg.DSN = defaults.Database.Path
	}

	store, err := storage.Open(context.Background(), dialect, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	a, err := analyzer.New(cfg.AnalyzerURL, cfg.AnalyzerModel, cfg.AnalyzerTemperature, cfg.AnalyzerAspects, nil)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("create analyzer: %w", err)
	}

	return newEngine(store, a, cfg), nil
}

// NewEngineFromConfig builds an engine from a loaded configuration file.
func NewEngineFromConfig(cfg *storage.Config, logger *zap.Logger) (*Engine, error) {
	dialect, dsn, err := cfg.DataSource()
	if err != nil {
		return nil, err
	}
	return NewEngine(EngineConfig{
		Driver:              string(dialect),
		DSN:                 dsn,
		Workers:             cfg.Ingest.Workers,
		AnalyzerURL:         cfg.Analyzer.BaseURL,
		AnalyzerModel:       cfg.Analyzer.Model,
		AnalyzerTemperature: cfg.Analyzer.Temperature,
		AnalyzerAspects:     cfg.Analyzer.Aspects,
		WordCloudBaseURL:    cfg.WordCloud.BaseURL,
		Logger:              logger,
	})
}

func newEngine(store storage.Store, a *analyzer.Analyzer, cfg EngineConfig) *Engine {
	m := metrics.New()
	return &Engine{
		store: store,
		ingester: ingest.New(store,
			ingest.WithLogger(cfg.Logger.Named("ingest")),
			ingest.WithWorkers(cfg.Workers),
			ingest.WithObserver(m),
		),
		analyzer:  a,
		metrics:   m,
		logger:    cfg.Logger,
		wordCloud: strings.TrimRight(cfg.WordCloudBaseURL, "/"),
	}
}

// Close releases the database connection.
func (e *Engine) Close() error {
	return e.store.Close()
}

// Ping checks that the database is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	return e.store.Ping(ctx)
}

// MetricsHandler serves the engine's Prometheus metrics.
func (e *Engine) MetricsHandler() http.Handler {
	return e.metrics.Handler()
}

// Ingest processes payloads as one run. Failed batches are reported in the
// result, never as an error.
func (e *Engine) Ingest(ctx context.Context, payloads []Payload) *IngestResult {
	in := make([]ingest.Payload, len(payloads))
	for i, p := range payloads {
		in[i] = ingest.Payload{Name: p.Name, Data: p.Data}
	}
	return resultFromInternal(e.ingester.Run(ctx, in))
}

// IngestPaths reads files and directories and ingests them as one run. Each
// directory contributes its *.json files in name order. A file that cannot be
// read fails its own batch; only a missing top-level path is an error.
func (e *Engine) IngestPaths(ctx context.Context, paths []string) (*IngestResult, error) {
	files, err := expandPaths(paths)
	if err != nil {
		return nil, err
	}
	payloads := make([]ingest.Payload, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			e.logger.Warn("unreadable file", zap.String("path", f), zap.Error(err))
		}
		payloads = append(payloads, ingest.Payload{Name: filepath.Base(f), Data: data, Err: err})
	}
	e.logger.Info("ingesting files", zap.Strings("paths", paths), zap.Int("files", len(files)))
	return resultFromInternal(e.ingester.Run(ctx, payloads)), nil
}

func expandPaths(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", p, err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read directory %s: %w", p, err)
		}
		// ReadDir returns entries sorted by name.
		for _, entry := range entries {
			if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".json") {
				continue
			}
			files = append(files, filepath.Join(p, entry.Name()))
		}
	}
	return files, nil
}

// Platforms returns every known platform ordered by name.
func (e *Engine) Platforms(ctx context.Context) ([]Platform, error) {
	start := time.Now()
	rows, err := e.store.ListPlatforms(ctx)
	e.metrics.ObserveQuery("platforms", start, err)
	if err != nil {
		return nil, err
	}
	out := make([]Platform, len(rows))
	for i, r := range rows {
		out[i] = Platform{ID: r.ID, Name: r.Name}
	}
	return out, nil
}

// Aspects returns every known aspect ordered by name.
func (e *Engine) Aspects(ctx context.Context) ([]Aspect, error) {
	start := time.Now()
	rows, err := e.store.ListAspects(ctx)
	e.metrics.ObserveQuery("aspects", start, err)
	if err != nil {
		return nil, err
	}
	out := make([]Aspect, len(rows))
	for i, r := range rows {
		out[i] = Aspect{ID: r.ID, Name: r.Name}
	}
	return out, nil
}

// SentimentTimeSeries returns per-day sentiment counts by platform and
// aspect, ordered by date, platform name and aspect name.
func (e *Engine) SentimentTimeSeries(ctx context.Context, q TimeSeriesQuery) ([]TimeSeriesPoint, error) {
	r, err := dateRange(q.StartDate, q.EndDate)
	if err != nil {
		return nil, err
	}
	if err := optionalID("platformId", q.PlatformID); err != nil {
		return nil, err
	}
	if err := optionalID("aspectId", q.AspectID); err != nil {
		return nil, err
	}

	start := time.Now()
	rows, err := e.store.TimeSeries(ctx, storage.TimeSeriesFilter{PlatformID: q.PlatformID, AspectID: q.AspectID, Range: r})
	e.metrics.ObserveQuery("timeseries", start, err)
	if err != nil {
		return nil, err
	}
	out := make([]TimeSeriesPoint, len(rows))
	for i, row := range rows {
		out[i] = TimeSeriesPoint(row)
	}
	return out, nil
}

// AggregatedSentiment sums sentiment counts per platform, ordered by
// platform name. Platforms without matching rows are absent.
func (e *Engine) AggregatedSentiment(ctx context.Context, q TotalsQuery) ([]PlatformTotals, error) {
	r, err := dateRange(q.StartDate, q.EndDate)
	if err != nil {
		return nil, err
	}
	if err := optionalID("aspectId", q.AspectID); err != nil {
		return nil, err
	}

	start := time.Now()
	rows, err := e.store.AggregatedTotals(ctx, storage.TotalsFilter{AspectID: q.AspectID, Range: r})
	e.metrics.ObserveQuery("totals", start, err)
	if err != nil {
		return nil, err
	}
	out := make([]PlatformTotals, len(rows))
	for i, row := range rows {
		out[i] = PlatformTotals(row)
	}
	return out, nil
}

// AspectDistribution sums one sentiment per platform and aspect, dropping
// zero sums. Rows are ordered by platform name, then by sum descending.
func (e *Engine) AspectDistribution(ctx context.Context, q DistributionQuery) ([]AspectShare, error) {
	sentiment, ok := storage.ParseSentimentType(q.SentimentType)
	if !ok {
		return nil, fmt.Errorf("%w: sentimentType must be positive, neutral or negative, got %q", ErrInvalidQuery, q.SentimentType)
	}
	r, err := dateRange(q.StartDate, q.EndDate)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	rows, err := e.store.AspectDistribution(ctx, storage.DistributionFilter{Sentiment: sentiment, Range: r})
	e.metrics.ObserveQuery("distribution", start, err)
	if err != nil {
		return nil, err
	}
	out := make([]AspectShare, len(rows))
	for i, row := range rows {
		out[i] = AspectShare(row)
	}
	return out, nil
}

// VersionHistory lists a platform's releases in release-date order.
func (e *Engine) VersionHistory(ctx context.Context, q VersionQuery) ([]VersionEvent, error) {
	if q.PlatformID <= 0 {
		return nil, fmt.Errorf("%w: platformId is required", ErrInvalidQuery)
	}
	r, err := dateRange(q.StartDate, q.EndDate)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	rows, err := e.store.VersionTimeline(ctx, storage.VersionFilter{PlatformID: q.PlatformID, Range: r})
	e.metrics.ObserveQuery("versions", start, err)
	if err != nil {
		return nil, err
	}
	out := make([]VersionEvent, len(rows))
	for i, row := range rows {
		out[i] = VersionEvent(row)
	}
	return out, nil
}

// DailyBreakdown returns the stored summary and per-aspect details for one
// platform and day.
func (e *Engine) DailyBreakdown(ctx context.Context, platformID int64, date string) (*DayBreakdown, error) {
	if platformID <= 0 {
		return nil, fmt.Errorf("%w: platformId is required", ErrInvalidQuery)
	}
	if err := checkDate("date", date); err != nil {
		return nil, err
	}

	start := time.Now()
	ds, err := e.store.GetDailySummary(ctx, platformID, date)
	if err == nil && ds == nil {
		e.metrics.ObserveQuery("breakdown", start, nil)
		return nil, fmt.Errorf("%w: no summary for platform %d on %s", ErrNotFound, platformID, date)
	}
	var details []storage.SentimentDetail
	if err == nil {
		details, err = e.store.ListSentimentDetails(ctx, ds.ID)
	}
	e.metrics.ObserveQuery("breakdown", start, err)
	if err != nil {
		return nil, err
	}

	out := &DayBreakdown{
		PlatformID:           ds.PlatformID,
		Date:                 ds.Date,
		TotalReviews:         ds.TotalReviews,
		TotalAspectedReviews: ds.TotalAspectedReviews,
		Aspects:              make([]AspectBreakdown, len(details)),
	}
	for i, d := range details {
		out.Aspects[i] = AspectBreakdown{
			AspectID:           d.AspectID,
			AspectName:         d.AspectName,
			TotalAspectReviews: d.TotalAspectReviews,
			PositiveCount:      d.PositiveCount,
			NeutralCount:       d.NeutralCount,
			NegativeCount:      d.NegativeCount,
			PositiveProportion: d.PositiveProportion,
			NeutralProportion:  d.NeutralProportion,
			NegativeProportion: d.NegativeProportion,
		}
	}
	return out, nil
}

// AnalyzerAspects returns the aspect names Analyze labels.
func (e *Engine) AnalyzerAspects() []string {
	return e.analyzer.Aspects()
}

// Analyze classifies one free-text review per aspect.
func (e *Engine) Analyze(ctx context.Context, review string) (map[string]string, error) {
	return e.analyzer.Analyze(ctx, review)
}

// WordCloudURL returns the public image URL of the word cloud rendered for
// a platform, day and aspect.
func (e *Engine) WordCloudURL(platform, date, aspect string) (string, error) {
	if e.wordCloud == "" {
		return "", fmt.Errorf("%w: word cloud base URL", ErrNotConfigured)
	}
	if platform == "" || aspect == "" {
		return "", fmt.Errorf("%w: platform and aspect are required", ErrInvalidQuery)
	}
	if err := checkDate("date", date); err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s_%s_%s.png", platform, date, aspect)
	return e.wordCloud + "/" + url.PathEscape(name), nil
}

func checkDate(field, value string) error {
	if _, err := time.Parse(dateLayout, value); err != nil {
		return fmt.Errorf("%w: %s must be YYYY-MM-DD, got %q", ErrInvalidQuery, field, value)
	}
	return nil
}

func dateRange(startDate, endDate string) (storage.DateRange, error) {
	if startDate != "" {
		if err := checkDate("startDate", startDate); err != nil {
			return storage.DateRange{}, err
		}
	}
	if endDate != "" {
		if err := checkDate("endDate", endDate); err != nil {
			return storage.DateRange{}, err
		}
	}
	// ISO dates order lexically.
	if startDate != "" && endDate != "" && startDate > endDate {
		return storage.DateRange{}, fmt.Errorf("%w: startDate %s is after endDate %s", ErrInvalidQuery, startDate, endDate)
	}
	return storage.DateRange{Start: startDate, End: endDate}, nil
}

func optionalID(field string, id int64) error {
	if id < 0 {
		return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalidQuery, field, id)
	}
	return nil
}

func resultFromInternal(r ingest.Result) *IngestResult {
	out := &IngestResult{
		RunID:     r.RunID,
		Success:   r.Success,
		Message:   r.Message,
		Succeeded: r.Succeeded,
		Failed:    r.Failed,
		Batches:   make([]BatchOutcome, len(r.Outcomes)),
	}
	for i, o := range r.Outcomes {
		b := BatchOutcome{
			Name:             o.Name,
			Kind:             string(o.Kind),
			State:            string(o.State),
			Records:          o.Counters.Records,
			SkippedRecords:   o.Counters.SkippedRecords,
			Details:          o.Counters.Details,
			SkippedDetails:   o.Counters.SkippedDetails,
			VersionsInserted: o.Counters.VersionsInserted,
			VersionsIgnored:  o.Counters.VersionsIgnored,
			DurationMS:       float64(o.Duration.Microseconds()) / 1000,
		}
		if o.Err != nil {
			b.Error = o.Err.Error()
		}
		out.Batches[i] = b
	}
	return out
}
