package features

import (
	"math"
	"sort"
	"strings"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/okian/stride/internal/domain/model"
)

// DefaultLookbackDays is the workout window used when none is given.
const DefaultLookbackDays = 90

// RecentRaceDays bounds recent_race_count.
const RecentRaceDays = 90

// Intensity zone thresholds on the 0..1 intensity scale.
const (
	easyCeiling     = 0.75
	tempoCeiling    = 0.85
	intervalCeiling = 0.95

	defaultIntensity = 0.65
	defaultMaxHR     = 190.0
)

var tagIntensity = map[string]float64{
	"recovery":  0.6,
	"easy":      0.65,
	"long":      0.7,
	"tempo":     0.8,
	"threshold": 0.83,
	"interval":  0.9,
	"speed":     0.92,
	"race":      0.97,
}

// History is everything the extractor needs about one user.
type History struct {
	Workouts []model.Record
	Races    []model.Record
	Profile  *model.Profile
	// At is the reference instant; zero means now.
	At time.Time
}

// Compute derives a vector from h. Only workouts in (At-lookbackDays, At]
// count toward the volume, trend, intensity and consistency groups; races
// dated after At are ignored. Compute is pure: it never fails and empty
// input yields an all-zero vector apart from profile and season values.
func Compute(h History, lookbackDays int) *Vector {
	at := h.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	if lookbackDays <= 0 {
		lookbackDays = DefaultLookbackDays
	}

	v := newVector(at)
	workouts := window(h.Workouts, at.AddDate(0, 0, -lookbackDays), at)
	races := window(h.Races, time.Time{}, at)
	maxHR := effectiveMaxHR(h.Profile, at)

	volume(v, workouts, lookbackDays)
	trends(v, workouts, maxHR)
	intensities(v, workouts, maxHR)
	raceHistory(v, races, at)
	physiology(v, h.Profile, at)
	v.set(KeyConsistency, consistency(workouts))
	v.set(KeySeasonal, math.Sin(float64(at.Month())/12*2*math.Pi))
	return v
}

// window returns records with from < Date <= to, ordered by date.
// A zero from keeps everything up to to.
func window(records []model.Record, from, to time.Time) []model.Record {
	out := make([]model.Record, 0, len(records))
	for _, r := range records {
		if r.Date.After(to) {
			continue
		}
		if !from.IsZero() && !r.Date.After(from) {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

func volume(v *Vector, ws []model.Record, lookbackDays int) {
	if len(ws) == 0 {
		return
	}
	var total float64
	paces := make([]float64, 0, len(ws))
	for i := range ws {
		total += ws[i].DistanceMeters
		if p := ws[i].Pace(); p > 0 {
			paces = append(paces, p)
		}
	}
	n := float64(len(ws))
	v.set(KeyTotalSessions, n)
	v.set(KeyTotalDistance, total)
	v.set(KeyAvgDistance, total/n)
	if len(paces) > 0 {
		v.set(KeyAvgPace, stat.Mean(paces, nil))
	}
	v.set(KeyWeeklyFrequency, n/(float64(lookbackDays)/7))
}

// trends fits each series against its position in the ordered sessions.
func trends(v *Vector, ws []model.Record, maxHR float64) {
	if len(ws) < 2 {
		return
	}
	var dx, dy, px, py, ix, iy []float64
	for i := range ws {
		seq := float64(i)
		dx = append(dx, seq)
		dy = append(dy, ws[i].DistanceMeters)
		if p := ws[i].Pace(); p > 0 {
			px = append(px, seq)
			py = append(py, p)
		}
		ix = append(ix, seq)
		iy = append(iy, intensityOf(&ws[i], maxHR))
	}
	v.set(KeyDistanceTrend, slope(dx, dy))
	v.set(KeyPaceTrend, slope(px, py))
	v.set(KeyIntensityTrend, slope(ix, iy))
}

func intensities(v *Vector, ws []model.Record, maxHR float64) {
	if len(ws) == 0 {
		return
	}
	var easy, tempo, interval, hard float64
	levels := make([]float64, len(ws))
	for i := range ws {
		x := intensityOf(&ws[i], maxHR)
		levels[i] = x
		switch {
		case x < easyCeiling:
			easy++
		case x < tempoCeiling:
			tempo++
		case x < intervalCeiling:
			interval++
		default:
			hard++
		}
	}
	n := float64(len(ws))
	v.set(KeyEasyRatio, easy/n)
	v.set(KeyTempoRatio, tempo/n)
	v.set(KeyIntervalRatio, interval/n)
	v.set(KeyRaceRatio, hard/n)
	v.set(KeyAvgIntensity, stat.Mean(levels, nil))
}

func raceHistory(v *Vector, races []model.Record, at time.Time) {
	if len(races) == 0 {
		return
	}
	recentFrom := at.AddDate(0, 0, -RecentRaceDays)
	var recent float64
	var xs, paces, meters []float64
	for i := range races {
		if races[i].Date.After(recentFrom) {
			recent++
		}
		if p := races[i].Pace(); p > 0 {
			xs = append(xs, float64(i))
			paces = append(paces, p)
			meters = append(meters, races[i].DistanceMeters)
		}
	}
	v.set(KeyRecentRaceCount, recent)
	if len(paces) == 0 {
		return
	}
	v.set(KeyAvgRacePace, stat.Mean(paces, nil))
	v.set(KeyAvgRaceDistance, stat.Mean(meters, nil))
	v.set(KeyBestRacePace, floats.Min(paces))
	if len(paces) >= 2 {
		v.set(KeyRacePaceTrend, slope(xs, paces))
	}
}

func physiology(v *Vector, p *model.Profile, at time.Time) {
	if p == nil {
		return
	}
	v.set(KeyAge, p.AgeAt(at))
	if p.HeightCM > 0 && p.WeightKG > 0 {
		m := p.HeightCM / 100
		v.set(KeyBMI, p.WeightKG/(m*m))
	}
	if p.IsMale() {
		v.set(KeyGender, 1)
	}
	v.set(KeyRestingHR, p.RestingHR)
	v.set(KeyMaxHR, p.MaxHR)
}

// consistency is 1/std of the day gaps between sessions, capped at 1.
func consistency(ws []model.Record) float64 {
	if len(ws) < 2 {
		return 0
	}
	gaps := make([]float64, 0, len(ws)-1)
	for i := 1; i < len(ws); i++ {
		gaps = append(gaps, ws[i].Date.Sub(ws[i-1].Date).Hours()/24)
	}
	_, std := stat.PopMeanStdDev(gaps, nil)
	if std < 1e-9 {
		return 1
	}
	return math.Min(1, 1/std)
}

// slope fits y = a + b*x and returns b, or 0 when undetermined.
func slope(xs, ys []float64) float64 {
	if len(xs) < 2 || floats.Max(xs) == floats.Min(xs) {
		return 0
	}
	_, beta := stat.LinearRegression(xs, ys, nil, false)
	return finite(beta)
}

// effectiveMaxHR prefers the profile, then 220-age, then a population default.
func effectiveMaxHR(p *model.Profile, at time.Time) float64 {
	if p != nil && p.MaxHR > 0 {
		return p.MaxHR
	}
	if age := p.AgeAt(at); age > 0 {
		return 220 - age
	}
	return defaultMaxHR
}

// intensityOf maps a session to 0..1: heart-rate share of max when recorded,
// else the intensity tag, else a moderate default.
func intensityOf(r *model.Record, maxHR float64) float64 {
	if r.HeartRate > 0 && maxHR > 0 {
		return math.Min(r.HeartRate/maxHR, 1)
	}
	if x, ok := tagIntensity[strings.ToLower(strings.TrimSpace(r.Intensity))]; ok {
		return x
	}
	return defaultIntensity
}
