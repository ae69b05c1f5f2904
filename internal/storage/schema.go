package storage

import "strings"

// Dialect selects the SQL flavour and database/sql driver for a Store.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// ParseDialect maps a configured driver name to a Dialect.
func ParseDialect(name string) (Dialect, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "sqlite", "sqlite3":
		return DialectSQLite, true
	case "postgres", "postgresql", "pgx":
		return DialectPostgres, true
	}
	return "", false
}

func (d Dialect) driverName() string {
	if d == DialectPostgres {
		return "pgx"
	}
	return "sqlite"
}

func (d Dialect) schema() string {
	if d == DialectPostgres {
		return PostgresSchema
	}
	return SQLiteSchema
}

// statements splits a schema script into individual statements so each can
// be executed on its own; the pgx driver rejects multi-statement Exec calls
// that carry parameters and some poolers reject them outright.
func statements(script string) []string {
	var out []string
	for _, stmt := range strings.Split(script, ";") {
		if s := strings.TrimSpace(stmt); s != "" {
			out = append(out, s)
		}
	}
	return out
}

const SQLiteSchema = `
CREATE TABLE IF NOT EXISTS platforms (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS aspects (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS daily_summaries (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    platform_id INTEGER NOT NULL,
    date TEXT NOT NULL,
    total_reviews INTEGER NOT NULL,
    total_aspected_reviews INTEGER NOT NULL,
    FOREIGN KEY (platform_id) REFERENCES platforms(id) ON DELETE CASCADE,
    CONSTRAINT platform_date_unq UNIQUE (platform_id, date)
);

CREATE INDEX IF NOT EXISTS idx_daily_summaries_date ON daily_summaries(date);

CREATE TABLE IF NOT EXISTS sentiment_details (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    summary_id INTEGER NOT NULL,
    aspect_id INTEGER NOT NULL,
    total_aspect_reviews INTEGER NOT NULL,
    positive_count INTEGER NOT NULL,
    neutral_count INTEGER NOT NULL,
    negative_count INTEGER NOT NULL,
    positive_proportion NUMERIC(5,2) NOT NULL,
    neutral_proportion NUMERIC(5,2) NOT NULL,
    negative_proportion NUMERIC(5,2) NOT NULL,
    FOREIGN KEY (summary_id) REFERENCES daily_summaries(id) ON DELETE CASCADE,
    FOREIGN KEY (aspect_id) REFERENCES aspects(id) ON DELETE CASCADE,
    CONSTRAINT summary_aspect_unq UNIQUE (summary_id, aspect_id)
);

CREATE INDEX IF NOT EXISTS idx_sentiment_details_aspect ON sentiment_details(aspect_id);

CREATE TABLE IF NOT EXISTS version_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    platform_id INTEGER NOT NULL,
    version_number TEXT NOT NULL,
    release_date TEXT NOT NULL,
    FOREIGN KEY (platform_id) REFERENCES platforms(id) ON DELETE CASCADE,
    CONSTRAINT platform_version_unq UNIQUE (platform_id, version_number)
);

CREATE INDEX IF NOT EXISTS idx_version_history_release ON version_history(platform_id, release_date);
`

const PostgresSchema = `
CREATE TABLE IF NOT EXISTS platforms (
    id SERIAL PRIMARY KEY,
    name VARCHAR(50) NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS aspects (
    id SERIAL PRIMARY KEY,
    name VARCHAR(50) NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS daily_summaries (
    id SERIAL PRIMARY KEY,
    platform_id INTEGER NOT NULL REFERENCES platforms(id) ON DELETE CASCADE,
    date DATE NOT NULL,
    total_reviews INTEGER NOT NULL,
    total_aspected_reviews INTEGER NOT NULL,
    CONSTRAINT platform_date_unq UNIQUE (platform_id, date)
);

CREATE INDEX IF NOT EXISTS idx_daily_summaries_date ON daily_summaries(date);

CREATE TABLE IF NOT EXISTS sentiment_details (
    id SERIAL PRIMARY KEY,
    summary_id INTEGER NOT NULL REFERENCES daily_summaries(id) ON DELETE CASCADE,
    aspect_id INTEGER NOT NULL REFERENCES aspects(id) ON DELETE CASCADE,
    total_aspect_reviews INTEGER NOT NULL,
    positive_count INTEGER NOT NULL,
    neutral_count INTEGER NOT NULL,
    negative_count INTEGER NOT NULL,
    positive_proportion DECIMAL(5,2) NOT NULL,
    neutral_proportion DECIMAL(5,2) NOT NULL,
    negative_proportion DECIMAL(5,2) NOT NULL,
    CONSTRAINT summary_aspect_unq UNIQUE (summary_id, aspect_id)
);

CREATE INDEX IF NOT EXISTS idx_sentiment_details_aspect ON sentiment_details(aspect_id);

CREATE TABLE IF NOT EXISTS version_history (
    id SERIAL PRIMARY KEY,
    platform_id INTEGER NOT NULL REFERENCES platforms(id) ON DELETE CASCADE,
    version_number VARCHAR(100) NOT NULL,
    release_date DATE NOT NULL,
    CONSTRAINT platform_version_unq UNIQUE (platform_id, version_number)
);

CREATE INDEX IF NOT EXISTS idx_version_history_release ON version_history(platform_id, release_date);
`
