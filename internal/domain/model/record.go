// Package model contains domain models passed between layers.
package model

import (
	"strings"
	"time"
)

// RecordKind separates training sessions from race results.
type RecordKind string

// Record kinds.
const (
	KindWorkout RecordKind = "workout"
	KindRace    RecordKind = "race"
)

// Record is one training session or race result. Records are owned by the
// surrounding application; the pipeline only reads them.
type Record struct {
	ID              string
	UserID          string
	Kind            RecordKind
	Date            time.Time
	DistanceMeters  float64
	DurationSeconds float64
	HeartRate       float64 // average bpm, 0 when not recorded
	Intensity       string  // optional tag: easy, tempo, interval, race
}

// Pace returns seconds per kilometre, or 0 when the record has no distance.
func (r *Record) Pace() float64 {
	if r.DistanceMeters <= 0 || r.DurationSeconds <= 0 {
		return 0
	}
	return r.DurationSeconds / (r.DistanceMeters / 1000)
}

// Gender values accepted on a profile.
const (
	GenderMale   = "male"
	GenderFemale = "female"
)

// Profile holds the static attributes of a user.
type Profile struct {
	UserID    string
	BirthDate time.Time // zero when unknown
	HeightCM  float64
	WeightKG  float64
	Gender    string
	RestingHR float64
	MaxHR     float64
}

// IsMale reports whether the profile gender encodes as 1.
func (p *Profile) IsMale() bool {
	return p != nil && strings.EqualFold(strings.TrimSpace(p.Gender), GenderMale)
}

// AgeAt returns whole years between the birth date and at, or 0 when unknown.
func (p *Profile) AgeAt(at time.Time) float64 {
	if p == nil || p.BirthDate.IsZero() || at.Before(p.BirthDate) {
		return 0
	}
	years := at.Year() - p.BirthDate.Year()
	if at.Month() < p.BirthDate.Month() || (at.Month() == p.BirthDate.Month() && at.Day() < p.BirthDate.Day()) {
		years--
	}
	return float64(years)
}
