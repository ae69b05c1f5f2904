package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ProportionScale is the number of fractional digits kept for proportions.
const ProportionScale = 2

// UpsertDailySummary writes the day's counts for a platform, overwriting any
// earlier counts for the same day, and returns the summary id.
func (s *SQLStore) UpsertDailySummary(ctx context.Context, platformID int64, date string, totalReviews, totalAspectedReviews int) (int64, error) {
	var id int64
	err := s.db.GetContext(ctx, &id, s.db.Rebind(`
		INSERT INTO daily_summaries (platform_id, date, total_reviews, total_aspected_reviews)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (platform_id, date) DO UPDATE SET
			total_reviews = excluded.total_reviews,
			total_aspected_reviews = excluded.total_aspected_reviews
		RETURNING id
	`), platformID, date, totalReviews, totalAspectedReviews)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert daily summary: %w", err)
	}
	return id, nil
}

// UpsertSentimentDetail writes one aspect's breakdown for a summary,
// overwriting every value column when the pair already exists.
func (s *SQLStore) UpsertSentimentDetail(ctx context.Context, summaryID, aspectID int64, totalAspectReviews int, counts SentimentCounts, shares SentimentShares) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO sentiment_details (
			summary_id, aspect_id, total_aspect_reviews,
			positive_count, neutral_count, negative_count,
			positive_proportion, neutral_proportion, negative_proportion
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (summary_id, aspect_id) DO UPDATE SET
			total_aspect_reviews = excluded.total_aspect_reviews,
			positive_count = excluded.positive_count,
			neutral_count = excluded.neutral_count,
			negative_count = excluded.negative_count,
			positive_proportion = excluded.positive_proportion,
			neutral_proportion = excluded.neutral_proportion,
			negative_proportion = excluded.negative_proportion
	`), summaryID, aspectID, totalAspectReviews,
		counts.Positive, counts.Neutral, counts.Negative,
		shares.Positive.Round(ProportionScale).StringFixed(ProportionScale),
		shares.Neutral.Round(ProportionScale).StringFixed(ProportionScale),
		shares.Negative.Round(ProportionScale).StringFixed(ProportionScale),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert sentiment detail: %w", err)
	}
	return nil
}

// InsertVersion records a release. The first record for a version number
// wins; inserted is false when the version was already known.
func (s *SQLStore) InsertVersion(ctx context.Context, platformID int64, versionNumber, releaseDate string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO version_history (platform_id, version_number, release_date)
		VALUES (?, ?, ?)
		ON CONFLICT (platform_id, version_number) DO NOTHING
	`), platformID, versionNumber, releaseDate)
	if err != nil {
		return false, fmt.Errorf("failed to insert version: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert result: %w", err)
	}
	return n > 0, nil
}

// GetDailySummary returns the summary for a platform and day, or nil when
// none has been ingested.
func (s *SQLStore) GetDailySummary(ctx context.Context, platformID int64, date string) (*DailySummary, error) {
	var ds DailySummary
	err := s.db.GetContext(ctx, &ds, s.db.Rebind(`
		SELECT id, platform_id, CAST(date AS TEXT) AS date, total_reviews, total_aspected_reviews
		FROM daily_summaries
		WHERE platform_id = ? AND date = ?
	`), platformID, date)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get daily summary: %w", err)
	}
	return &ds, nil
}

// ListSentimentDetails returns the per-aspect rows of a summary ordered by
// aspect name.
func (s *SQLStore) ListSentimentDetails(ctx context.Context, summaryID int64) ([]SentimentDetail, error) {
	var details []SentimentDetail
	err := s.db.SelectContext(ctx, &details, s.db.Rebind(`
		SELECT sd.id, sd.summary_id, sd.aspect_id, a.name AS aspect_name,
			sd.total_aspect_reviews, sd.positive_count, sd.neutral_count, sd.negative_count,
			sd.positive_proportion, sd.neutral_proportion, sd.negative_proportion
		FROM sentiment_details sd
		JOIN aspects a ON sd.aspect_id = a.id
		WHERE sd.summary_id = ?
		ORDER BY a.name
	`), summaryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sentiment details: %w", err)
	}
	return details, nil
}
