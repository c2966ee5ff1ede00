// Package race holds the catalog of canonical race events used as the
// training and serving key.
package race

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// DistanceTolerance is the relative distance band within which a race
// result counts toward an event (±10%).
const DistanceTolerance = 0.10

// DefaultPace is the fallback seconds-per-km used when an event has no category.
const DefaultPace = 360.0

// Category groups events that share a base pace.
type Category string

// Event categories.
const (
	CategoryNone     Category = ""
	CategoryMiddle   Category = "middle"
	CategoryShort    Category = "short"
	CategoryMedium   Category = "medium"
	CategoryHalf     Category = "half"
	CategoryMarathon Category = "marathon"
	CategoryUltra    Category = "ultra"
)

// basePaces is the seconds-per-km table of the fallback estimator.
var basePaces = map[Category]float64{
	CategoryMiddle:   270,
	CategoryShort:    330,
	CategoryMedium:   345,
	CategoryHalf:     360,
	CategoryMarathon: 380,
	CategoryUltra:    420,
}

// Event is a canonical race distance.
type Event struct {
	Code           string
	Name           string
	DistanceMeters float64
	Category       Category
}

// Kilometres returns the event distance in km.
func (e Event) Kilometres() float64 {
	return e.DistanceMeters / 1000
}

// Matches reports whether a result distance falls within the tolerance band.
func (e Event) Matches(distanceMeters float64) bool {
	if e.DistanceMeters <= 0 || distanceMeters <= 0 {
		return false
	}
	return math.Abs(distanceMeters-e.DistanceMeters) <= DistanceTolerance*e.DistanceMeters
}

// BasePace returns the category pace and whether the category is known.
func (e Event) BasePace() (float64, bool) {
	p, ok := basePaces[e.Category]
	if !ok {
		return DefaultPace, false
	}
	return p, true
}

// BasePaceFor returns the category pace of the catalog event closest to
// distanceMeters on a log scale, so any race result can be compared with
// the table.
func BasePaceFor(distanceMeters float64) (float64, bool) {
	if distanceMeters <= 0 {
		return DefaultPace, false
	}
	best, bestGap := Event{}, math.Inf(1)
	for _, e := range catalog {
		if gap := math.Abs(math.Log(distanceMeters / e.DistanceMeters)); gap < bestGap {
			best, bestGap = e, gap
		}
	}
	return best.BasePace()
}

var catalog = map[string]Event{
	"1500m":         {Code: "1500m", Name: "1500 metres", DistanceMeters: 1500, Category: CategoryMiddle},
	"mile":          {Code: "mile", Name: "Mile", DistanceMeters: 1609.344, Category: CategoryMiddle},
	"5k":            {Code: "5k", Name: "5 km", DistanceMeters: 5000, Category: CategoryShort},
	"10k":           {Code: "10k", Name: "10 km", DistanceMeters: 10000, Category: CategoryMedium},
	"15k":           {Code: "15k", Name: "15 km", DistanceMeters: 15000, Category: CategoryMedium},
	"half_marathon": {Code: "half_marathon", Name: "Half marathon", DistanceMeters: 21097.5, Category: CategoryHalf},
	"marathon":      {Code: "marathon", Name: "Marathon", DistanceMeters: 42195, Category: CategoryMarathon},
	"50k":           {Code: "50k", Name: "50 km", DistanceMeters: 50000, Category: CategoryUltra},
}

var aliases = map[string]string{
	"half":  "half_marathon",
	"hm":    "half_marathon",
	"21k":   "half_marathon",
	"42k":   "marathon",
	"full":  "marathon",
	"5000m": "5k",
	"1mi":   "mile",
}

var customDistance = regexp.MustCompile(`^(\d+(?:\.\d+)?)(k|km|m)$`)

// Lookup returns a catalog event by code or alias.
func Lookup(code string) (Event, bool) {
	key := normalize(code)
	if alias, ok := aliases[key]; ok {
		key = alias
	}
	e, ok := catalog[key]
	return e, ok
}

// Parse resolves catalog codes and custom distances such as "8k" or "3000m".
// Custom distances have no category.
func Parse(code string) (Event, error) {
	if e, ok := Lookup(code); ok {
		return e, nil
	}
	key := normalize(code)
	m := customDistance.FindStringSubmatch(key)
	if m == nil {
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownEvent, code)
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil || v <= 0 {
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownEvent, code)
	}
	if m[2] != "m" {
		v *= 1000
	}
	return Event{Code: key, Name: key, DistanceMeters: v, Category: CategoryNone}, nil
}

// Catalog lists the canonical events ordered by distance.
func Catalog() []Event {
	out := make([]Event, 0, len(catalog))
	for _, e := range catalog {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DistanceMeters < out[j].DistanceMeters })
	return out
}

func normalize(code string) string {
	s := strings.ToLower(strings.TrimSpace(code))
	s = strings.ReplaceAll(s, " ", "_")
	return strings.ReplaceAll(s, "-", "_")
}
