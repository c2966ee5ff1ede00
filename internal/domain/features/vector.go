// Package features turns a user's training and race history into the fixed
// schema numeric vector consumed by the trainer and the prediction server,
// and stores those vectors per user.
package features

import (
	"math"
	"time"
)

// SchemaVersion tags every vector. Bump it whenever Keys or how they are
// computed changes, so vectors produced under different schemas stay
// distinguishable.
const SchemaVersion = "3"

// Feature keys, grouped as they are computed.
const (
	KeyTotalSessions   = "total_sessions"
	KeyTotalDistance   = "total_distance"
	KeyAvgDistance     = "avg_distance"
	KeyAvgPace         = "avg_pace"
	KeyWeeklyFrequency = "weekly_frequency"

	KeyDistanceTrend  = "distance_trend"
	KeyPaceTrend      = "pace_trend"
	KeyIntensityTrend = "intensity_trend"

	KeyEasyRatio     = "easy_ratio"
	KeyTempoRatio    = "tempo_ratio"
	KeyIntervalRatio = "interval_ratio"
	KeyRaceRatio     = "race_ratio"
	KeyAvgIntensity  = "avg_intensity"

	KeyRecentRaceCount = "recent_race_count"
	KeyAvgRacePace     = "avg_race_pace"
	KeyAvgRaceDistance = "avg_race_distance"
	KeyRacePaceTrend   = "race_pace_trend"
	KeyBestRacePace    = "best_race_pace"

	KeyAge       = "age"
	KeyBMI       = "bmi"
	KeyGender    = "gender"
	KeyRestingHR = "resting_hr"
	KeyMaxHR     = "max_hr"

	KeyConsistency = "consistency_score"
	KeySeasonal    = "seasonal_factor"
)

// Keys is the ordered key set of SchemaVersion.
var Keys = []string{
	KeyTotalSessions, KeyTotalDistance, KeyAvgDistance, KeyAvgPace, KeyWeeklyFrequency,
	KeyDistanceTrend, KeyPaceTrend, KeyIntensityTrend,
	KeyEasyRatio, KeyTempoRatio, KeyIntervalRatio, KeyRaceRatio, KeyAvgIntensity,
	KeyRecentRaceCount, KeyAvgRacePace, KeyAvgRaceDistance, KeyRacePaceTrend, KeyBestRacePace,
	KeyAge, KeyBMI, KeyGender, KeyRestingHR, KeyMaxHR,
	KeyConsistency, KeySeasonal,
}

// Vector is one computed feature vector for a user.
type Vector struct {
	ID            string
	UserID        string
	Values        map[string]float64
	SchemaVersion string
	CalculatedAt  time.Time
}

// newVector returns a vector with every key present and zero.
func newVector(at time.Time) *Vector {
	values := make(map[string]float64, len(Keys))
	for _, k := range Keys {
		values[k] = 0
	}
	return &Vector{Values: values, SchemaVersion: SchemaVersion, CalculatedAt: at}
}

// Get returns the value for key, 0 when absent.
func (v *Vector) Get(key string) float64 {
	if v == nil {
		return 0
	}
	return v.Values[key]
}

// Insufficient reports whether the vector was computed from an empty
// training history.
func (v *Vector) Insufficient() bool {
	return v.Get(KeyTotalSessions) == 0
}

// Clone returns a deep copy so callers can echo values without aliasing.
func (v *Vector) Clone() map[string]float64 {
	if v == nil {
		return nil
	}
	out := make(map[string]float64, len(v.Values))
	for k, val := range v.Values {
		out[k] = val
	}
	return out
}

// set stores a finite value; NaN and ±Inf become 0.
func (v *Vector) set(key string, val float64) {
	v.Values[key] = finite(val)
}

// Align orders values by names for model input. Names missing from values
// (or holding a non-finite number) become 0; extra values are ignored.
// Model input is never built positionally from a map.
func Align(values map[string]float64, names []string) []float64 {
	out := make([]float64, len(names))
	for i, name := range names {
		if val, ok := values[name]; ok {
			out[i] = finite(val)
		}
	}
	return out
}

func finite(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return x
}
