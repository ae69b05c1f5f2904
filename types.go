package ulasan

import (
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/matthewjhunter/ulasan/internal/analyzer"
)

var (
	// ErrInvalidQuery wraps every query rejected before it reaches storage.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrNotFound is returned when a requested day has not been ingested.
	ErrNotFound = errors.New("not found")
	// ErrNotConfigured is returned by optional features left unconfigured.
	ErrNotConfigured = errors.New("not configured")
	// ErrEmptyReview is returned by Analyze for blank input. The text is
	// meant to be shown to end users.
	ErrEmptyReview = analyzer.ErrEmptyReview
)

// EngineConfig configures the ulasan engine.
type EngineConfig struct {
	Driver  string // sqlite (default) or postgres
	DSN     string // file path for sqlite, connection URL for postgres
	Workers int    // concurrent (platform, date) groups per sentiment batch

	AnalyzerURL         string
	AnalyzerModel       string
	AnalyzerTemperature float64
	AnalyzerAspects     []string

	WordCloudBaseURL string

	Logger *zap.Logger
}

// Payload is one named JSON upload.
type Payload struct {
	Name string
	Data []byte
}

// IngestResult reports one ingestion run.
type IngestResult struct {
	RunID     string         `json:"run_id"`
	Success   bool           `json:"success"`
	Message   string         `json:"message"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	Batches   []BatchOutcome `json:"batches"`
}

// BatchOutcome reports one batch of a run.
type BatchOutcome struct {
	Name             string  `json:"name"`
	Kind             string  `json:"kind"`
	State            string  `json:"state"`
	Error            string  `json:"error,omitempty"`
	Records          int     `json:"records"`
	SkippedRecords   int     `json:"skipped_records"`
	Details          int     `json:"details"`
	SkippedDetails   int     `json:"skipped_details"`
	VersionsInserted int     `json:"versions_inserted"`
	VersionsIgnored  int     `json:"versions_ignored"`
	DurationMS       float64 `json:"duration_ms"`
}

// Platform is a review source such as an app store listing.
type Platform struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Aspect is a product facet that reviews are classified against.
type Aspect struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// TimeSeriesQuery filters a sentiment time series. Zero ids and empty dates
// match everything.
type TimeSeriesQuery struct {
	PlatformID int64
	AspectID   int64
	StartDate  string
	EndDate    string
}

// TotalsQuery filters per-platform sentiment totals.
type TotalsQuery struct {
	AspectID  int64
	StartDate string
	EndDate   string
}

// DistributionQuery selects one sentiment to break down by aspect.
type DistributionQuery struct {
	SentimentType string // positive, neutral or negative
	StartDate     string
	EndDate       string
}

// VersionQuery selects one platform's releases.
type VersionQuery struct {
	PlatformID int64
	StartDate  string
	EndDate    string
}

// TimeSeriesPoint is one platform, aspect and day of sentiment counts.
type TimeSeriesPoint struct {
	Date          string `json:"date"`
	PlatformName  string `json:"platform_name"`
	AspectName    string `json:"aspect_name"`
	PositiveCount int64  `json:"positive_count"`
	NeutralCount  int64  `json:"neutral_count"`
	NegativeCount int64  `json:"negative_count"`
}

// PlatformTotals sums sentiment counts for one platform.
type PlatformTotals struct {
	PlatformID   int64  `json:"platform_id"`
	PlatformName string `json:"platform_name"`
	Positive     int64  `json:"positive"`
	Neutral      int64  `json:"neutral"`
	Negative     int64  `json:"negative"`
}

// AspectShare is one aspect's count of the chosen sentiment on a platform.
type AspectShare struct {
	PlatformID   int64  `json:"platform_id"`
	PlatformName string `json:"platform_name"`
	AspectID     int64  `json:"aspect_id"`
	AspectName   string `json:"aspect_name"`
	TotalReviews int64  `json:"total_reviews"`
}

// VersionEvent is one app release.
type VersionEvent struct {
	PlatformName  string `json:"platform_name"`
	VersionNumber string `json:"version_number"`
	ReleaseDate   string `json:"release_date"`
}

// DayBreakdown is everything stored for one platform on one day.
type DayBreakdown struct {
	PlatformID           int64             `json:"platform_id"`
	Date                 string            `json:"date"`
	TotalReviews         int               `json:"total_reviews"`
	TotalAspectedReviews int               `json:"total_aspected_reviews"`
	Aspects              []AspectBreakdown `json:"aspects"`
}

// AspectBreakdown holds one aspect's counts and reported proportions.
type AspectBreakdown struct {
	AspectID           int64           `json:"aspect_id"`
	AspectName         string          `json:"aspect_name"`
	TotalAspectReviews int             `json:"total_aspect_reviews"`
	PositiveCount      int             `json:"positive_count"`
	NeutralCount       int             `json:"neutral_count"`
	NegativeCount      int             `json:"negative_count"`
	PositiveProportion decimal.Decimal `json:"positive_proportion"`
	NeutralProportion  decimal.Decimal `json:"neutral_proportion"`
	NegativeProportion decimal.Decimal `json:"negative_proportion"`
}
