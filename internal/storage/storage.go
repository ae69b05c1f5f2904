package storage

import (
	"context"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

func init() {
	// sqlx only knows the mattn driver name for SQLite.
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// SQLStore implements Store over database/sql. The same statements serve
// SQLite and Postgres; placeholders are written as ? and rebound per driver.
type SQLStore struct {
	db      *sqlx.DB
	dialect Dialect
}

type Platform struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
}

type Aspect struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
}

// DailySummary is one platform's review volume for one calendar day.
type DailySummary struct {
	ID                   int64  `db:"id"`
	PlatformID           int64  `db:"platform_id"`
	Date                 string `db:"date"`
	TotalReviews         int    `db:"total_reviews"`
	TotalAspectedReviews int    `db:"total_aspected_reviews"`
}

// SentimentCounts holds per-label review counts for one aspect.
type SentimentCounts struct {
	Positive int
	Neutral  int
	Negative int
}

// SentimentShares holds per-label proportions exactly as reported by the
// upstream analysis. They are not recomputed from the counts.
type SentimentShares struct {
	Positive decimal.Decimal
	Neutral  decimal.Decimal
	Negative decimal.Decimal
}

// SentimentDetail is the per-aspect breakdown attached to a DailySummary.
type SentimentDetail struct {
	ID                 int64           `db:"id"`
	SummaryID          int64           `db:"summary_id"`
	AspectID           int64           `db:"aspect_id"`
	AspectName         string          `db:"aspect_name"`
	TotalAspectReviews int             `db:"total_aspect_reviews"`
	PositiveCount      int             `db:"positive_count"`
	NeutralCount       int             `db:"neutral_count"`
	NegativeCount      int             `db:"negative_count"`
	PositiveProportion decimal.Decimal `db:"positive_proportion"`
	NeutralProportion  decimal.Decimal `db:"neutral_proportion"`
	NegativeProportion decimal.Decimal `db:"negative_proportion"`
}

// Open connects to the database named by dsn using the given dialect and
// makes sure the schema exists.
func Open(ctx context.Context, dialect Dialect, dsn string) (*SQLStore, error) {
	if dialect == "" {
		dialect = DialectSQLite
	}
	if dialect == DialectSQLite {
		dsn = sqliteDSN(dsn)
	}

	db, err := sqlx.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single SQLite connection serializes writers; the busy timeout covers
	// other processes holding the file.
	if dialect == DialectSQLite {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	for _, stmt := range statements(dialect.schema()) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
	}

	return &SQLStore{db: db, dialect: dialect}, nil
}

// NewStore opens (creating if needed) the SQLite database at dbPath.
func NewStore(dbPath string) (*SQLStore, error) {
	return Open(context.Background(), DialectSQLite, dbPath)
}

func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// Dialect reports which SQL flavour the store speaks.
func (s *SQLStore) Dialect() Dialect {
	return s.dialect
}

// Ping checks that the database is reachable.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	return s.db.Close()
}
