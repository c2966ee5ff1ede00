// Package history defines the read-only view of training sessions, race
// results and profiles owned by the surrounding application.
package history

import (
	"context"
	"time"

	"github.com/okian/stride/internal/domain/features"
	"github.com/okian/stride/internal/domain/model"
)

// Source reads user history. Profile returns (nil, nil) for unknown users.
type Source interface {
	// Workouts returns sessions with from < date <= to, oldest first.
	Workouts(ctx context.Context, userID string, from, to time.Time) ([]model.Record, error)
	// Races returns race results dated at or before before, oldest first.
	Races(ctx context.Context, userID string, before time.Time) ([]model.Record, error)
	// AllRaces returns every race result of every user, oldest first.
	AllRaces(ctx context.Context) ([]model.Record, error)
	Profile(ctx context.Context, userID string) (*model.Profile, error)
}

// Load assembles the extractor input for userID at instant at.
func Load(ctx context.Context, src Source, userID string, at time.Time, lookbackDays int) (features.History, error) {
	if lookbackDays <= 0 {
		lookbackDays = features.DefaultLookbackDays
	}
	ws, err := src.Workouts(ctx, userID, at.AddDate(0, 0, -lookbackDays), at)
	if err != nil {
		return features.History{}, err
	}
	rs, err := src.Races(ctx, userID, at)
	if err != nil {
		return features.History{}, err
	}
	p, err := src.Profile(ctx, userID)
	if err != nil {
		return features.History{}, err
	}
	return features.History{Workouts: ws, Races: rs, Profile: p, At: at}, nil
}
