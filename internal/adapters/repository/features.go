package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"

	"github.com/okian/stride/internal/domain/features"
)

// FeatureRepository adapts SQLite to features.Repository.
type FeatureRepository struct {
	s *SQLite
}

// Features returns the feature vector repository.
func (s *SQLite) Features() *FeatureRepository {
	return &FeatureRepository{s: s}
}

// Insert appends v.
func (r *FeatureRepository) Insert(ctx context.Context, v *features.Vector) error {
	payload, err := json.Marshal(v.Values)
	if err != nil {
		return fmt.Errorf("marshal features: %w", err)
	}
	_, err = r.s.db.ExecContext(ctx,
		`INSERT INTO feature_vectors (id, user_id, schema_version, calculated_at, features) VALUES (?, ?, ?, ?, ?)`,
		v.ID, v.UserID, v.SchemaVersion, toUnix(v.CalculatedAt), string(payload))
	if err != nil {
		return fmt.Errorf("insert feature vector: %w", err)
	}
	return nil
}

// Latest returns the newest vector of userID; ties on time go to the last
// inserted row.
func (r *FeatureRepository) Latest(ctx context.Context, userID string) (*features.Vector, error) {
	row := r.s.db.QueryRowContext(ctx,
		`SELECT id, user_id, schema_version, calculated_at, features
		   FROM feature_vectors
		  WHERE user_id = ?
		  ORDER BY calculated_at DESC, rowid DESC
		  LIMIT 1`, userID)

	var (
		v       features.Vector
		at      int64
		payload string
	)
	if err := row.Scan(&v.ID, &v.UserID, &v.SchemaVersion, &at, &payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, features.ErrNotFound
		}
		return nil, fmt.Errorf("read feature vector: %w", err)
	}
	if err := json.Unmarshal([]byte(payload), &v.Values); err != nil {
		return nil, fmt.Errorf("unmarshal features: %w", err)
	}
	v.CalculatedAt = fromUnix(at)
	return &v, nil
}

// DeleteUpTo removes vectors calculated at or before cutoff.
func (r *FeatureRepository) DeleteUpTo(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := r.s.db.ExecContext(ctx, `DELETE FROM feature_vectors WHERE calculated_at <= ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("delete feature vectors: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}
