package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/matthewjhunter/ulasan"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

// server is the ulasan MCP server.
type server struct {
	engine *ulasan.Engine
	logger *zap.Logger
	poller *poller // non-nil when --poll is enabled
	mcp    *mcp.Server
}

// Output types. Tool results must be JSON objects, so slices are wrapped.

type platformsOutput struct {
	Platforms []ulasan.Platform `json:"platforms"`
}

type aspectsOutput struct {
	Aspects []ulasan.Aspect `json:"aspects"`
}

type timeSeriesOutput struct {
	Points []ulasan.TimeSeriesPoint `json:"points"`
}

type totalsOutput struct {
	Totals []ulasan.PlatformTotals `json:"totals"`
}

type distributionOutput struct {
	Shares []ulasan.AspectShare `json:"shares"`
}

type versionsOutput struct {
	Versions []ulasan.VersionEvent `json:"versions"`
}

// dayOutput mirrors ulasan.DayBreakdown with proportions as fixed-point
// strings, which keeps the inferred output schema a plain string.
type dayOutput struct {
	PlatformID           int64           `json:"platform_id"`
	Date                 string          `json:"date"`
	TotalReviews         int             `json:"total_reviews"`
	TotalAspectedReviews int             `json:"total_aspected_reviews"`
	Aspects              []dayAspectItem `json:"aspects"`
}

type dayAspectItem struct {
	AspectName         string `json:"aspect_name"`
	TotalAspectReviews int    `json:"total_aspect_reviews"`
	PositiveCount      int    `json:"positive_count"`
	NeutralCount       int    `json:"neutral_count"`
	NegativeCount      int    `json:"negative_count"`
	PositiveProportion string `json:"positive_proportion"`
	NeutralProportion  string `json:"neutral_proportion"`
	NegativeProportion string `json:"negative_proportion"`
}

type wordCloudOutput struct {
	URL string `json:"url"`
}

type analyzeOutput struct {
	Labels map[string]string `json:"labels"`
}

func newServer(engine *ulasan.Engine, logger *zap.Logger) *server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &server{
		engine: engine,
		logger: logger,
		mcp:    mcp.NewServer(&mcp.Implementation{Name: "ulasan", Version: "0.1.0"}, nil),
	}
	s.registerTools()
	return s
}

// run serves MCP over stdin/stdout until the client disconnects or ctx ends.
func (s *server) run(ctx context.Context) error {
	s.logger.Info("ulasan-mcp starting", zap.Bool("poll", s.poller != nil))
	if s.poller != nil {
		s.poller.start(ctx)
		defer s.poller.stop()
	}
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

func (s *server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "platforms_list",
		Description: "List the review platforms (app store listings) that have been ingested, with their IDs.",
	}, s.handlePlatformsList)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "aspects_list",
		Description: "List the product aspects reviews are classified against, with their IDs.",
	}, s.handleAspectsList)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "sentiment_timeseries",
		Description: "Daily positive/neutral/negative review counts per platform and aspect, ordered by date. All filters are optional and combine.",
	}, s.handleTimeSeries)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "sentiment_totals",
		Description: "Total positive/neutral/negative review counts per platform over an optional date range and aspect.",
	}, s.handleTotals)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "aspect_distribution",
		Description: "For one sentiment, the review count of every aspect on every platform. Aspects with zero reviews of that sentiment are omitted.",
	}, s.handleDistribution)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "version_timeline",
		Description: "App releases of one platform ordered by release date, for correlating sentiment shifts with versions.",
	}, s.handleVersions)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "daily_breakdown",
		Description: "Everything stored for one platform on one day: review totals and per-aspect counts and proportions.",
	}, s.handleDay)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "wordcloud_url",
		Description: "Public URL of the word cloud image rendered for a platform, day and aspect.",
	}, s.handleWordCloud)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "ingest_files",
		Description: "Ingest JSON files from the server host as one run. Each file is classified as daily sentiment summaries or app versions; a bad file fails alone. Re-ingesting is safe.",
	}, s.handleIngestFiles)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "review_analyze",
		Description: fmt.Sprintf("Label one free-text review Positif, Netral or Negatif for each of these aspects: %s. Uses the configured language model.",
			strings.Join(s.engine.AnalyzerAspects(), ", ")),
	}, s.handleAnalyze)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "seed_now",
		Description: "Re-ingest the configured seed directory immediately. Only available when polling is enabled.",
	}, s.handleSeedNow)
}

func (s *server) handlePlatformsList(ctx context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, platformsOutput, error) {
	platforms, err := s.engine.Platforms(ctx)
	if err != nil {
		return nil, platformsOutput{}, err
	}
	return nil, platformsOutput{Platforms: nonNil(platforms)}, nil
}

func (s *server) handleAspectsList(ctx context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, aspectsOutput, error) {
	aspects, err := s.engine.Aspects(ctx)
	if err != nil {
		return nil, aspectsOutput{}, err
	}
	return nil, aspectsOutput{Aspects: nonNil(aspects)}, nil
}

func (s *server) handleTimeSeries(ctx context.Context, _ *mcp.CallToolRequest, in timeSeriesInput) (*mcp.CallToolResult, timeSeriesOutput, error) {
	points, err := s.engine.SentimentTimeSeries(ctx, ulasan.TimeSeriesQuery{
		PlatformID: deref(in.PlatformID),
		AspectID:   deref(in.AspectID),
		StartDate:  deref(in.StartDate),
		EndDate:    deref(in.EndDate),
	})
	if err != nil {
		return nil, timeSeriesOutput{}, err
	}
	return nil, timeSeriesOutput{Points: nonNil(points)}, nil
}

func (s *server) handleTotals(ctx context.Context, _ *mcp.CallToolRequest, in totalsInput) (*mcp.CallToolResult, totalsOutput, error) {
	totals, err := s.engine.AggregatedSentiment(ctx, ulasan.TotalsQuery{
		AspectID:  deref(in.AspectID),
		StartDate: deref(in.StartDate),
		EndDate:   deref(in.EndDate),
	})
	if err != nil {
		return nil, totalsOutput{}, err
	}
	return nil, totalsOutput{Totals: nonNil(totals)}, nil
}

func (s *server) handleDistribution(ctx context.Context, _ *mcp.CallToolRequest, in distributionInput) (*mcp.CallToolResult, distributionOutput, error) {
	shares, err := s.engine.AspectDistribution(ctx, ulasan.DistributionQuery{
		SentimentType: in.SentimentType,
		StartDate:     deref(in.StartDate),
		EndDate:       deref(in.EndDate),
	})
	if err != nil {
		return nil, distributionOutput{}, err
	}
	return nil, distributionOutput{Shares: nonNil(shares)}, nil
}

func (s *server) handleVersions(ctx context.Context, _ *mcp.CallToolRequest, in versionsInput) (*mcp.CallToolResult, versionsOutput, error) {
	versions, err := s.engine.VersionHistory(ctx, ulasan.VersionQuery{
		PlatformID: in.PlatformID,
		StartDate:  deref(in.StartDate),
		EndDate:    deref(in.EndDate),
	})
	if err != nil {
		return nil, versionsOutput{}, err
	}
	return nil, versionsOutput{Versions: nonNil(versions)}, nil
}

func (s *server) handleDay(ctx context.Context, _ *mcp.CallToolRequest, in dayInput) (*mcp.CallToolResult, dayOutput, error) {
	day, err := s.engine.DailyBreakdown(ctx, in.PlatformID, in.Date)
	if err != nil {
		return nil, dayOutput{}, err
	}
	out := dayOutput{
		PlatformID:           day.PlatformID,
		Date:                 day.Date,
		TotalReviews:         day.TotalReviews,
		TotalAspectedReviews: day.TotalAspectedReviews,
		Aspects:              make([]dayAspectItem, len(day.Aspects)),
	}
	for i, a := range day.Aspects {
		out.Aspects[i] = dayAspectItem{
			AspectName:         a.AspectName,
			TotalAspectReviews: a.TotalAspectReviews,
			PositiveCount:      a.PositiveCount,
			NeutralCount:       a.NeutralCount,
			NegativeCount:      a.NegativeCount,
			PositiveProportion: a.PositiveProportion.StringFixed(2),
			NeutralProportion:  a.NeutralProportion.StringFixed(2),
			NegativeProportion: a.NegativeProportion.StringFixed(2),
		}
	}
	return nil, out, nil
}

func (s *server) handleWordCloud(ctx context.Context, _ *mcp.CallToolRequest, in wordCloudInput) (*mcp.CallToolResult, wordCloudOutput, error) {
	u, err := s.engine.WordCloudURL(in.Platform, in.Date, in.Aspect)
	if err != nil {
		return nil, wordCloudOutput{}, err
	}
	return nil, wordCloudOutput{URL: u}, nil
}

func (s *server) handleIngestFiles(ctx context.Context, _ *mcp.CallToolRequest, in ingestFilesInput) (*mcp.CallToolResult, ulasan.IngestResult, error) {
	if len(in.Paths) == 0 {
		return nil, ulasan.IngestResult{}, errors.New("paths must not be empty")
	}
	result, err := s.engine.IngestPaths(ctx, in.Paths)
	if err != nil {
		return nil, ulasan.IngestResult{}, err
	}
	s.logger.Info("ingest_files", zap.String("run_id", result.RunID),
		zap.Int("succeeded", result.Succeeded), zap.Int("failed", result.Failed))
	return nil, *result, nil
}

func (s *server) handleAnalyze(ctx context.Context, _ *mcp.CallToolRequest, in analyzeInput) (*mcp.CallToolResult, analyzeOutput, error) {
	labels, err := s.engine.Analyze(ctx, in.ReviewText)
	if err != nil {
		return nil, analyzeOutput{}, err
	}
	return nil, analyzeOutput{Labels: labels}, nil
}

func (s *server) handleSeedNow(ctx context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, ulasan.IngestResult, error) {
	if s.poller == nil {
		return nil, ulasan.IngestResult{}, errors.New("polling is not enabled; start ulasan-mcp with --poll")
	}
	result, err := s.poller.poll(ctx)
	if err != nil {
		return nil, ulasan.IngestResult{}, err
	}
	return nil, *result, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
