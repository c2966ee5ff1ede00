package training

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/okian/stride/internal/domain/features"
	"github.com/okian/stride/internal/domain/history"
	"github.com/okian/stride/internal/domain/model"
	"github.com/okian/stride/internal/domain/race"
)

// Dataset is the in-memory design matrix for one event. Columns follow Names.
type Dataset struct {
	Names []string
	X     [][]float64
	Y     []float64
	Users []string
}

// Len returns the number of rows.
func (d *Dataset) Len() int { return len(d.Y) }

// BuildDataset joins every race result matching ev to the feature vector
// computed from the runner's history before that race. Races without any
// prior workout in the window are skipped.
func BuildDataset(ctx context.Context, src history.Source, ev race.Event, lookbackWeeks int) (*Dataset, error) {
	races, err := src.AllRaces(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: races: %w", ErrHistory, err)
	}
	lookbackDays := lookbackWeeks * 7
	profiles := make(map[string]*model.Profile)
	ds := &Dataset{Names: append([]string(nil), features.Keys...)}

	for i := range races {
		r := &races[i]
		if !ev.Matches(r.DistanceMeters) || r.DurationSeconds <= 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		profile, ok := profiles[r.UserID]
		if !ok {
			profile, err = src.Profile(ctx, r.UserID)
			if err != nil {
				return nil, fmt.Errorf("%w: profile %s: %w", ErrHistory, r.UserID, err)
			}
			profiles[r.UserID] = profile
		}

		at := r.Date.Add(-time.Nanosecond)
		ws, err := src.Workouts(ctx, r.UserID, at.AddDate(0, 0, -lookbackDays), at)
		if err != nil {
			return nil, fmt.Errorf("%w: workouts %s: %w", ErrHistory, r.UserID, err)
		}
		if len(ws) == 0 {
			continue
		}
		prior, err := src.Races(ctx, r.UserID, at)
		if err != nil {
			return nil, fmt.Errorf("%w: races %s: %w", ErrHistory, r.UserID, err)
		}

		v := features.Compute(features.History{Workouts: ws, Races: prior, Profile: profile, At: at}, lookbackDays)
		if v.Insufficient() {
			continue
		}
		ds.X = append(ds.X, features.Align(v.Values, ds.Names))
		ds.Y = append(ds.Y, r.DurationSeconds)
		ds.Users = append(ds.Users, r.UserID)
	}
	return ds, nil
}

// Split shuffles rows with seed and holds out testFraction of them (at
// least one row on each side when the dataset has two or more rows).
func (d *Dataset) Split(testFraction float64, seed int64) (trainX [][]float64, trainY []float64, testX [][]float64, testY []float64) {
	n := d.Len()
	nTest := int(float64(n)*testFraction + 0.5)
	if nTest < 1 && n > 1 {
		nTest = 1
	}
	if nTest >= n {
		nTest = n - 1
	}
	//nolint:gosec // G404: reproducible split, not security
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	for k, i := range perm {
		if k < nTest {
			testX = append(testX, d.X[i])
			testY = append(testY, d.Y[i])
			continue
		}
		trainX = append(trainX, d.X[i])
		trainY = append(trainY, d.Y[i])
	}
	return trainX, trainY, testX, testY
}
