package repository

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/okian/stride/internal/domain/model"
)

// SavePrediction stores a served prediction.
func (s *SQLite) SavePrediction(ctx context.Context, p *model.Prediction) error {
	payload, err := json.Marshal(p.Features)
	if err != nil {
		return fmt.Errorf("marshal prediction features: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO predictions (id, user_id, event, seconds, confidence, model_id, source, reason, features, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.Event, p.Seconds, p.Confidence, p.ModelID, string(p.Source), p.Reason, string(payload), toUnix(p.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert prediction: %w", err)
	}
	return nil
}

// Predictions returns the latest predictions of userID, newest first.
func (s *SQLite) Predictions(ctx context.Context, userID string, limit int) ([]*model.Prediction, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, event, seconds, confidence, model_id, source, reason, features, created_at
		   FROM predictions WHERE user_id = ?
		  ORDER BY created_at DESC, rowid DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list predictions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*model.Prediction
	for rows.Next() {
		var (
			p       model.Prediction
			source  string
			payload string
			created int64
		)
		if err := rows.Scan(&p.ID, &p.UserID, &p.Event, &p.Seconds, &p.Confidence, &p.ModelID, &source, &p.Reason, &payload, &created); err != nil {
			return nil, fmt.Errorf("scan prediction: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &p.Features); err != nil {
			return nil, fmt.Errorf("unmarshal prediction features: %w", err)
		}
		p.Source = model.PredictionSource(source)
		p.CreatedAt = fromUnix(created)
		p.Formatted = model.FormatDuration(p.Seconds)
		out = append(out, &p)
	}
	return out, rows.Err()
}
