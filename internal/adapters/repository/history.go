package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/stride/internal/domain/model"
)

// Workouts returns sessions of userID with from < date <= to, oldest first.
func (s *SQLite) Workouts(ctx context.Context, userID string, from, to time.Time) ([]model.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, date, distance_m, duration_s, heart_rate, intensity
		   FROM workouts
		  WHERE user_id = ? AND date > ? AND date <= ?
		  ORDER BY date`, userID, toUnix(from), toUnix(to))
	if err != nil {
		return nil, fmt.Errorf("query workouts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Record
	for rows.Next() {
		r := model.Record{Kind: model.KindWorkout}
		var date int64
		if err := rows.Scan(&r.ID, &r.UserID, &date, &r.DistanceMeters, &r.DurationSeconds, &r.HeartRate, &r.Intensity); err != nil {
			return nil, fmt.Errorf("scan workout: %w", err)
		}
		r.Date = fromUnix(date)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Races returns race results of userID dated at or before before.
func (s *SQLite) Races(ctx context.Context, userID string, before time.Time) ([]model.Record, error) {
	return s.races(ctx,
		`SELECT id, user_id, date, distance_m, duration_s, heart_rate
		   FROM race_results WHERE user_id = ? AND date <= ? ORDER BY date`, userID, toUnix(before))
}

// AllRaces returns every race result, oldest first.
func (s *SQLite) AllRaces(ctx context.Context) ([]model.Record, error) {
	return s.races(ctx,
		`SELECT id, user_id, date, distance_m, duration_s, heart_rate
		   FROM race_results ORDER BY date, id`)
}

func (s *SQLite) races(ctx context.Context, query string, args ...any) ([]model.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query races: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Record
	for rows.Next() {
		r := model.Record{Kind: model.KindRace}
		var date int64
		if err := rows.Scan(&r.ID, &r.UserID, &date, &r.DistanceMeters, &r.DurationSeconds, &r.HeartRate); err != nil {
			return nil, fmt.Errorf("scan race: %w", err)
		}
		r.Date = fromUnix(date)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Profile returns the profile of userID, or (nil, nil) when unknown.
func (s *SQLite) Profile(ctx context.Context, userID string) (*model.Profile, error) {
	var (
		p     model.Profile
		birth int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, birth_date, height_cm, weight_kg, gender, resting_hr, max_hr
		   FROM profiles WHERE user_id = ?`, userID).
		Scan(&p.UserID, &birth, &p.HeightCM, &p.WeightKG, &p.Gender, &p.RestingHR, &p.MaxHR)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	p.BirthDate = fromUnix(birth)
	return &p, nil
}

// AddRecords inserts workouts and race results in one transaction. Records
// without an id get a generated one. The tables belong to the surrounding
// application; this exists for seeding and tests.
func (s *SQLite) AddRecords(ctx context.Context, records ...model.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i := range records {
		r := &records[i]
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		switch r.Kind {
		case model.KindRace:
			_, err = tx.ExecContext(ctx,
				`INSERT INTO race_results (id, user_id, date, distance_m, duration_s, heart_rate) VALUES (?, ?, ?, ?, ?, ?)`,
				r.ID, r.UserID, toUnix(r.Date), r.DistanceMeters, r.DurationSeconds, r.HeartRate)
		default:
			_, err = tx.ExecContext(ctx,
				`INSERT INTO workouts (id, user_id, date, distance_m, duration_s, heart_rate, intensity) VALUES (?, ?, ?, ?, ?, ?, ?)`,
				r.ID, r.UserID, toUnix(r.Date), r.DistanceMeters, r.DurationSeconds, r.HeartRate, r.Intensity)
		}
		if err != nil {
			return fmt.Errorf("insert %s %s: %w", r.Kind, r.ID, err)
		}
	}
	return tx.Commit()
}

// PutProfile inserts or replaces a profile.
func (s *SQLite) PutProfile(ctx context.Context, p *model.Profile) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO profiles (user_id, birth_date, height_cm, weight_kg, gender, resting_hr, max_hr)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			birth_date = excluded.birth_date,
			height_cm  = excluded.height_cm,
			weight_kg  = excluded.weight_kg,
			gender     = excluded.gender,
			resting_hr = excluded.resting_hr,
			max_hr     = excluded.max_hr`,
		p.UserID, toUnix(p.BirthDate), p.HeightCM, p.WeightKG, p.Gender, p.RestingHR, p.MaxHR)
	if err != nil {
		return fmt.Errorf("put profile: %w", err)
	}
	return nil
}
