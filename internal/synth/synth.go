// Package synth generates synthetic training histories: users with a
// profile, a block of workouts and one race result each. The race time
// follows the user's training pace, so a trained model has signal to find.
package synth

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/okian/stride/internal/domain/model"
	"github.com/okian/stride/pkg/logger"
)

// Config controls generation.
type Config struct {
	Users          int       // number of users
	Seed           int64     // same seed, same histories
	End            time.Time // last race day; races are spread before it
	RaceMeters     float64   // race distance, e.g. 5000
	Workouts       int       // workouts per user
	BlockDays      int       // days of training before each race
	Workers        int       // concurrent generators
	UserPrefix     string
	RaceSpreadDays int // races fall in [End-RaceSpreadDays, End]
}

// DefaultConfig returns a 5k dataset of 60 users.
func DefaultConfig(end time.Time) Config {
	return Config{
		Users:          60,
		Seed:           7,
		End:            end,
		RaceMeters:     5000,
		Workouts:       20,
		BlockDays:      60,
		Workers:        4,
		UserPrefix:     "synthetic",
		RaceSpreadDays: 240,
	}
}

// Dataset is the generated output.
type Dataset struct {
	Profiles []*model.Profile
	Records  []model.Record
}

// tier is an ability band in seconds per kilometre.
type tier struct {
	minPace, spread float64
}

// Ability bands, most common first.
var tiers = []tier{
	{minPace: 270, spread: 60},  // recreational
	{minPace: 330, spread: 60},  // beginner
	{minPace: 230, spread: 40},  // club
	{minPace: 390, spread: 90},  // novice
	{minPace: 200, spread: 30},  // competitive
	{minPace: 175, spread: 25},  // elite, rare
	{minPace: 290, spread: 120}, // wide range
}

// Workout intensity cycle and its pace factor relative to ability pace.
var cycle = []struct {
	tag    string
	factor float64
	meters float64
}{
	{"easy", 1.15, 8000},
	{"tempo", 0.97, 6000},
	{"easy", 1.15, 10000},
	{"interval", 0.9, 5000},
}

// Generate builds the dataset concurrently. Each user draws from its own
// seeded source, so output does not depend on worker scheduling.
func Generate(ctx context.Context, cfg Config) (*Dataset, error) {
	if cfg.Users <= 0 || cfg.Workouts <= 0 || cfg.RaceMeters <= 0 || cfg.BlockDays <= 0 {
		return nil, fmt.Errorf("synth: users, workouts, race distance and block days must be positive")
	}
	if cfg.End.IsZero() {
		cfg.End = time.Now().UTC()
	}
	workers := cfg.Workers
	if workers <= 0 || workers > cfg.Users {
		workers = cfg.Users
	}

	logger.Get().Named("synth").Debug(ctx, "generating synthetic users",
		logger.Int("users", cfg.Users),
		logger.Int("workers", workers))

	type result struct {
		index   int
		profile *model.Profile
		records []model.Record
	}
	results := make(chan result, cfg.Users)
	perWorker := cfg.Users / workers

	for w := 0; w < workers; w++ {
		start := w * perWorker
		end := start + perWorker
		if w == workers-1 {
			end = cfg.Users
		}
		go func(start, end int) {
			for i := start; i < end; i++ {
				if ctx.Err() != nil {
					return
				}
				p, rs := user(cfg, i)
				results <- result{index: i, profile: p, records: rs}
			}
		}(start, end)
	}

	profiles := make([]*model.Profile, cfg.Users)
	records := make([][]model.Record, cfg.Users)
	for i := 0; i < cfg.Users; i++ {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("synth: generation cancelled: %w", ctx.Err())
		case r := <-results:
			profiles[r.index], records[r.index] = r.profile, r.records
		}
	}

	ds := &Dataset{Profiles: profiles}
	for _, rs := range records {
		ds.Records = append(ds.Records, rs...)
	}
	return ds, nil
}

// UserID names the i-th generated user.
func UserID(cfg Config, i int) string {
	return fmt.Sprintf("%s-%03d", cfg.UserPrefix, i)
}

func user(cfg Config, i int) (*model.Profile, []model.Record) {
	rng := rand.New(rand.NewSource(cfg.Seed + int64(i)*7919))
	id := UserID(cfg, i)

	t := tiers[rng.Intn(len(tiers))]
	pace := t.minPace + rng.Float64()*t.spread

	p := &model.Profile{
		UserID:    id,
		BirthDate: cfg.End.AddDate(-(20 + rng.Intn(40)), -rng.Intn(12), 0),
		HeightCM:  155 + rng.Float64()*40,
		WeightKG:  50 + rng.Float64()*40,
		Gender:    []string{model.GenderMale, model.GenderFemale}[rng.Intn(2)],
		RestingHR: 45 + rng.Float64()*25,
		MaxHR:     175 + rng.Float64()*25,
	}

	spread := cfg.RaceSpreadDays
	raceDay := cfg.End
	if spread > 0 {
		raceDay = cfg.End.AddDate(0, 0, -rng.Intn(spread+1))
	}
	step := float64(cfg.BlockDays) / float64(cfg.Workouts)

	records := make([]model.Record, 0, cfg.Workouts+1)
	for k := 0; k < cfg.Workouts; k++ {
		c := cycle[k%len(cycle)]
		wp := pace * c.factor * (1 + (rng.Float64()-0.5)*0.04)
		records = append(records, model.Record{
			UserID:          id,
			Kind:            model.KindWorkout,
			Date:            raceDay.Add(-time.Duration(float64(cfg.BlockDays)-float64(k)*step) * 24 * time.Hour),
			DistanceMeters:  c.meters,
			DurationSeconds: wp * c.meters / 1000,
			HeartRate:       p.RestingHR + (p.MaxHR-p.RestingHR)*(0.55+0.35*(1.15-c.factor)/0.25),
			Intensity:       c.tag,
		})
	}
	km := cfg.RaceMeters / 1000
	records = append(records, model.Record{
		UserID:          id,
		Kind:            model.KindRace,
		Date:            raceDay,
		DistanceMeters:  cfg.RaceMeters,
		DurationSeconds: pace*0.97*km + (rng.Float64()-0.5)*4*km,
	})
	return p, records
}
