package storage

import "context"

// Store defines the storage interface for the review-sentiment fact model.
type Store interface {
	Close() error
	Ping(ctx context.Context) error

	// Dimensions
	ResolvePlatforms(ctx context.Context, names []string) (map[string]int64, error)
	ResolveAspects(ctx context.Context, names []string) (map[string]int64, error)
	ListPlatforms(ctx context.Context) ([]Platform, error)
	ListAspects(ctx context.Context) ([]Aspect, error)

	// Facts
	UpsertDailySummary(ctx context.Context, platformID int64, date string, totalReviews, totalAspectedReviews int) (int64, error)
	UpsertSentimentDetail(ctx context.Context, summaryID, aspectID int64, totalAspectReviews int, counts SentimentCounts, shares SentimentShares) error
	InsertVersion(ctx context.Context, platformID int64, versionNumber, releaseDate string) (bool, error)
	GetDailySummary(ctx context.Context, platformID int64, date string) (*DailySummary, error)
	ListSentimentDetails(ctx context.Context, summaryID int64) ([]SentimentDetail, error)

	// Aggregations
	TimeSeries(ctx context.Context, f TimeSeriesFilter) ([]TimeSeriesRow, error)
	AggregatedTotals(ctx context.Context, f TotalsFilter) ([]PlatformTotalsRow, error)
	AspectDistribution(ctx context.Context, f DistributionFilter) ([]AspectShareRow, error)
	VersionTimeline(ctx context.Context, f VersionFilter) ([]VersionRow, error)
}

var _ Store = (*SQLStore)(nil)
