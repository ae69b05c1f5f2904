package storage

import (
	"context"
	"fmt"
	"strings"
)

// SentimentType selects which sentiment label an aspect distribution sums.
type SentimentType string

const (
	Positive SentimentType = "positive"
	Neutral  SentimentType = "neutral"
	Negative SentimentType = "negative"
)

// ParseSentimentType accepts positive, neutral or negative in any case.
func ParseSentimentType(s string) (SentimentType, bool) {
	t := SentimentType(strings.ToLower(strings.TrimSpace(s)))
	_, ok := t.countColumn()
	return t, ok
}

// countColumn maps a sentiment type to its sentiment_details column.
func (t SentimentType) countColumn() (string, bool) {
	switch t {
	case Positive:
		return "sd.positive_count", true
	case Neutral:
		return "sd.neutral_count", true
	case Negative:
		return "sd.negative_count", true
	}
	return "", false
}

// DateRange is an inclusive window of ISO dates. Empty bounds are open.
type DateRange struct {
	Start string
	End   string
}

// TimeSeriesFilter narrows a time series; zero ids match everything.
type TimeSeriesFilter struct {
	PlatformID int64
	AspectID   int64
	Range      DateRange
}

type TotalsFilter struct {
	AspectID int64
	Range    DateRange
}

type DistributionFilter struct {
	Sentiment SentimentType
	Range     DateRange
}

type VersionFilter struct {
	PlatformID int64
	Range      DateRange
}

type TimeSeriesRow struct {
	Date          string `db:"date"`
	PlatformName  string `db:"platform_name"`
	AspectName    string `db:"aspect_name"`
	PositiveCount int64  `db:"positive_count"`
	NeutralCount  int64  `db:"neutral_count"`
	NegativeCount int64  `db:"negative_count"`
}

type PlatformTotalsRow struct {
	PlatformID   int64  `db:"platform_id"`
	PlatformName string `db:"platform_name"`
	Positive     int64  `db:"positive"`
	Neutral      int64  `db:"neutral"`
	Negative     int64  `db:"negative"`
}

type AspectShareRow struct {
	PlatformID   int64  `db:"platform_id"`
	PlatformName string `db:"platform_name"`
	AspectID     int64  `db:"aspect_id"`
	AspectName   string `db:"aspect_name"`
	TotalReviews int64  `db:"total_reviews"`
}

type VersionRow struct {
	PlatformName  string `db:"platform_name"`
	VersionNumber string `db:"version_number"`
	ReleaseDate   string `db:"release_date"`
}

// conditions accumulates AND-ed predicates and their arguments.
type conditions struct {
	clauses []string
	args    []any
}

func (c *conditions) add(clause string, arg any) {
	c.clauses = append(c.clauses, clause)
	c.args = append(c.args, arg)
}

func (c *conditions) dateRange(column string, r DateRange) {
	if r.Start != "" {
		c.add(column+" >= ?", r.Start)
	}
	if r.End != "" {
		c.add(column+" <= ?", r.End)
	}
}

func (c *conditions) where() string {
	if len(c.clauses) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(c.clauses, " AND ")
}

const factJoins = `
	FROM sentiment_details sd
	JOIN daily_summaries ds ON sd.summary_id = ds.id
	JOIN platforms p ON ds.platform_id = p.id
	JOIN aspects a ON sd.aspect_id = a.id
`

// TimeSeries returns per-day, per-aspect sentiment counts matching f.
func (s *SQLStore) TimeSeries(ctx context.Context, f TimeSeriesFilter) ([]TimeSeriesRow, error) {
	var c conditions
	if f.PlatformID != 0 {
		c.add("ds.platform_id = ?", f.PlatformID)
	}
	if f.AspectID != 0 {
		c.add("sd.aspect_id = ?", f.AspectID)
	}
	c.dateRange("ds.date", f.Range)

	query := `SELECT CAST(ds.date AS TEXT) AS date, p.name AS platform_name, a.name AS aspect_name,
		sd.positive_count, sd.neutral_count, sd.negative_count` +
		factJoins + c.where() + `
		ORDER BY ds.date, p.name, a.name`

	var rows []TimeSeriesRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), c.args...); err != nil {
		return nil, fmt.Errorf("failed to query time series: %w", err)
	}
	return rows, nil
}

// AggregatedTotals sums sentiment counts per platform.
func (s *SQLStore) AggregatedTotals(ctx context.Context, f TotalsFilter) ([]PlatformTotalsRow, error) {
	var c conditions
	if f.AspectID != 0 {
		c.add("sd.aspect_id = ?", f.AspectID)
	}
	c.dateRange("ds.date", f.Range)

	query := `SELECT p.id AS platform_id, p.name AS platform_name,
		SUM(sd.positive_count) AS positive,
		SUM(sd.neutral_count) AS neutral,
		SUM(sd.negative_count) AS negative` +
		factJoins + c.where() + `
		GROUP BY p.id, p.name
		ORDER BY p.name`

	var rows []PlatformTotalsRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), c.args...); err != nil {
		return nil, fmt.Errorf("failed to query aggregated totals: %w", err)
	}
	return rows, nil
}

// AspectDistribution sums one sentiment label per platform and aspect,
// leaving out pairs whose sum is zero.
func (s *SQLStore) AspectDistribution(ctx context.Context, f DistributionFilter) ([]AspectShareRow, error) {
	column, ok := f.Sentiment.countColumn()
	if !ok {
		return nil, fmt.Errorf("unknown sentiment type %q", f.Sentiment)
	}

	var c conditions
	c.dateRange("ds.date", f.Range)

	query := `SELECT p.id AS platform_id, p.name AS platform_name,
		a.id AS aspect_id, a.name AS aspect_name,
		SUM(` + column + `) AS total_reviews` +
		factJoins + c.where() + `
		GROUP BY p.id, p.name, a.id, a.name
		HAVING SUM(` + column + `) > 0
		ORDER BY p.name, total_reviews DESC, a.name`

	var rows []AspectShareRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), c.args...); err != nil {
		return nil, fmt.Errorf("failed to query aspect distribution: %w", err)
	}
	return rows, nil
}

// VersionTimeline lists a platform's releases in release order.
func (s *SQLStore) VersionTimeline(ctx context.Context, f VersionFilter) ([]VersionRow, error) {
	var c conditions
	c.add("vh.platform_id = ?", f.PlatformID)
	c.dateRange("vh.release_date", f.Range)

	query := `SELECT p.name AS platform_name, vh.version_number,
		CAST(vh.release_date AS TEXT) AS release_date
		FROM version_history vh
		JOIN platforms p ON vh.platform_id = p.id
		` + c.where() + `
		ORDER BY vh.release_date, vh.version_number`

	var rows []VersionRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), c.args...); err != nil {
		return nil, fmt.Errorf("failed to query version timeline: %w", err)
	}
	return rows, nil
}
