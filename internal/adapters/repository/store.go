// Package repository persists history, feature vectors, the model registry
// and served predictions in sqlite, and model artifacts in badger.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver

	"github.com/okian/stride/internal/domain/features"
	"github.com/okian/stride/internal/domain/history"
	"github.com/okian/stride/internal/domain/prediction"
	"github.com/okian/stride/internal/domain/training"
	"github.com/okian/stride/pkg/logger"
)

var (
	_ features.Repository      = (*FeatureRepository)(nil)
	_ training.Registry        = (*ModelRegistry)(nil)
	_ prediction.ModelResolver = (*ModelRegistry)(nil)
	_ prediction.Recorder      = (*SQLite)(nil)
	_ history.Source           = (*SQLite)(nil)
)

const schema = `
CREATE TABLE IF NOT EXISTS profiles (
	user_id    TEXT PRIMARY KEY,
	birth_date INTEGER NOT NULL DEFAULT 0,
	height_cm  REAL    NOT NULL DEFAULT 0,
	weight_kg  REAL    NOT NULL DEFAULT 0,
	gender     TEXT    NOT NULL DEFAULT '',
	resting_hr REAL    NOT NULL DEFAULT 0,
	max_hr     REAL    NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS workouts (
	id         TEXT PRIMARY KEY,
	user_id    TEXT    NOT NULL,
	date       INTEGER NOT NULL,
	distance_m REAL    NOT NULL,
	duration_s REAL    NOT NULL,
	heart_rate REAL    NOT NULL DEFAULT 0,
	intensity  TEXT    NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_workouts_user_date ON workouts(user_id, date);

CREATE TABLE IF NOT EXISTS race_results (
	id         TEXT PRIMARY KEY,
	user_id    TEXT    NOT NULL,
	date       INTEGER NOT NULL,
	distance_m REAL    NOT NULL,
	duration_s REAL    NOT NULL,
	heart_rate REAL    NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_races_user_date ON race_results(user_id, date);
CREATE INDEX IF NOT EXISTS idx_races_date ON race_results(date);

CREATE TABLE IF NOT EXISTS feature_vectors (
	id             TEXT PRIMARY KEY,
	user_id        TEXT    NOT NULL,
	schema_version TEXT    NOT NULL,
	calculated_at  INTEGER NOT NULL,
	features       TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_features_user_time ON feature_vectors(user_id, calculated_at);
CREATE INDEX IF NOT EXISTS idx_features_time ON feature_vectors(calculated_at);

CREATE TABLE IF NOT EXISTS models (
	id             TEXT PRIMARY KEY,
	event          TEXT    NOT NULL,
	version        INTEGER NOT NULL,
	algorithm      TEXT    NOT NULL,
	r2             REAL    NOT NULL,
	rmse           REAL    NOT NULL,
	train_samples  INTEGER NOT NULL,
	test_samples   INTEGER NOT NULL,
	feature_names  TEXT    NOT NULL,
	importances    TEXT    NOT NULL,
	schema_version TEXT    NOT NULL,
	artifact_key   TEXT    NOT NULL,
	trained_at     INTEGER NOT NULL,
	active         INTEGER NOT NULL DEFAULT 0,
	UNIQUE(event, version)
);

CREATE TABLE IF NOT EXISTS predictions (
	id         TEXT PRIMARY KEY,
	user_id    TEXT    NOT NULL,
	event      TEXT    NOT NULL,
	seconds    REAL    NOT NULL,
	confidence REAL    NOT NULL,
	model_id   TEXT    NOT NULL,
	source     TEXT    NOT NULL,
	reason     TEXT    NOT NULL,
	features   TEXT    NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_predictions_user ON predictions(user_id, created_at);
`

// SQLite is the relational store. One value serves the feature store, the
// model registry, prediction records and the history source.
type SQLite struct {
	db     *sql.DB
	logger logger.Logger
}

// Option configures a SQLite store.
type Option func(*SQLite)

// WithLogger sets the store logger.
func WithLogger(l logger.Logger) Option {
	return func(s *SQLite) {
		if l != nil {
			s.logger = l
		}
	}
}

// OpenSQLite opens (creating if needed) the database at path and applies
// the schema.
func OpenSQLite(ctx context.Context, path string, opts ...Option) (*SQLite, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_busy_timeout=5000&_journal_mode=WAL"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpen, err)
	}
	// sqlite allows one writer; a single connection also keeps
	// in-memory databases consistent.
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db, logger: logger.Discard()}
	for _, opt := range opts {
		opt(s)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %w", ErrMigrate, err)
	}
	s.logger.Info(ctx, "sqlite store opened", logger.String("path", path))
	return s, nil
}

// Ping checks the connection.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnix(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
