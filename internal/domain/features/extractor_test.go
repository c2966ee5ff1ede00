package features

import (
	"math"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/stride/internal/domain/model"
)

var refTime = time.Date(2024, time.March, 31, 12, 0, 0, 0, time.UTC)

func workout(daysAgo int, meters, seconds float64) model.Record {
	return model.Record{
		UserID:          "u-1",
		Kind:            model.KindWorkout,
		Date:            refTime.AddDate(0, 0, -daysAgo),
		DistanceMeters:  meters,
		DurationSeconds: seconds,
	}
}

func TestComputeEmptyHistory(t *testing.T) {
	Convey("Given no history", t, func() {
		v := Compute(History{At: refTime}, 90)

		Convey("Then every schema key is present", func() {
			So(len(v.Values), ShouldEqual, len(Keys))
			for _, k := range Keys {
				_, ok := v.Values[k]
				So(ok, ShouldBeTrue)
			}
			So(v.SchemaVersion, ShouldEqual, SchemaVersion)
			So(v.CalculatedAt, ShouldEqual, refTime)
		})

		Convey("Then the vector is marked insufficient", func() {
			So(v.Insufficient(), ShouldBeTrue)
		})

		Convey("Then trend, race and consistency groups are zero", func() {
			for _, k := range []string{
				KeyDistanceTrend, KeyPaceTrend, KeyIntensityTrend,
				KeyRecentRaceCount, KeyAvgRacePace, KeyAvgRaceDistance, KeyRacePaceTrend, KeyBestRacePace,
				KeyConsistency, KeyEasyRatio, KeyAvgIntensity,
			} {
				So(v.Get(k), ShouldEqual, 0)
			}
		})

		Convey("Then the season is still encoded", func() {
			So(v.Get(KeySeasonal), ShouldAlmostEqual, 1.0, 1e-9)
		})
	})
}

func TestComputeSingleWorkout(t *testing.T) {
	Convey("Given one workout", t, func() {
		v := Compute(History{At: refTime, Workouts: []model.Record{workout(1, 5000, 1500)}}, 90)

		So(v.Insufficient(), ShouldBeFalse)
		So(v.Get(KeyTotalSessions), ShouldEqual, 1)
		So(v.Get(KeyAvgPace), ShouldAlmostEqual, 300, 1e-9)
		So(v.Get(KeyDistanceTrend), ShouldEqual, 0)
		So(v.Get(KeyPaceTrend), ShouldEqual, 0)
		So(v.Get(KeyConsistency), ShouldEqual, 0)
	})
}

func TestComputeVolumeAndTrends(t *testing.T) {
	Convey("Given 30 daily 5 km sessions with improving pace", t, func() {
		var ws []model.Record
		for i := 0; i < 30; i++ {
			ws = append(ws, workout(30-i, 5000, 1800-float64(i)*10))
		}
		v := Compute(History{At: refTime, Workouts: ws}, 90)

		Convey("Then volume reflects the sessions", func() {
			So(v.Get(KeyTotalSessions), ShouldEqual, 30)
			So(v.Get(KeyTotalDistance), ShouldEqual, 150000)
			So(v.Get(KeyAvgDistance), ShouldEqual, 5000)
			So(v.Get(KeyWeeklyFrequency), ShouldAlmostEqual, 30/(90.0/7), 1e-9)
		})

		Convey("Then the pace trend is negative and distance is flat", func() {
			So(v.Get(KeyPaceTrend), ShouldBeLessThan, 0)
			So(v.Get(KeyDistanceTrend), ShouldAlmostEqual, 0, 1e-9)
		})

		Convey("Then evenly spaced sessions are fully consistent", func() {
			So(v.Get(KeyConsistency), ShouldEqual, 1)
		})
	})

	Convey("Given strictly increasing distances", t, func() {
		ws := []model.Record{workout(10, 3000, 900), workout(7, 5000, 1500), workout(4, 7000, 2100), workout(1, 9000, 2700)}
		v := Compute(History{At: refTime, Workouts: ws}, 90)
		So(v.Get(KeyDistanceTrend), ShouldBeGreaterThan, 0)
	})

	Convey("Given strictly decreasing distances", t, func() {
		ws := []model.Record{workout(10, 9000, 2700), workout(7, 7000, 2100), workout(4, 5000, 1500), workout(1, 3000, 900)}
		v := Compute(History{At: refTime, Workouts: ws}, 90)
		So(v.Get(KeyDistanceTrend), ShouldBeLessThan, 0)
	})

	Convey("Given ordered sessions logged on the same day", t, func() {
		ws := []model.Record{workout(3, 3000, 900), workout(3, 5000, 1600), workout(3, 8000, 2800)}
		v := Compute(History{At: refTime, Workouts: ws}, 90)

		Convey("Then trends follow session order", func() {
			So(v.Get(KeyDistanceTrend), ShouldBeGreaterThan, 0)
			So(v.Get(KeyPaceTrend), ShouldBeGreaterThan, 0)
		})
	})

	Convey("Given unevenly spaced sessions growing by a fixed step", t, func() {
		ws := []model.Record{workout(30, 3000, 900), workout(29, 5000, 1500), workout(1, 7000, 2100)}
		v := Compute(History{At: refTime, Workouts: ws}, 90)

		Convey("Then the slope is the per-session step", func() {
			So(v.Get(KeyDistanceTrend), ShouldAlmostEqual, 2000, 1e-9)
		})
	})

	Convey("Given races run on the same day", t, func() {
		race := func(seconds float64) model.Record {
			r := workout(5, 5000, seconds)
			r.Kind = model.KindRace
			return r
		}
		v := Compute(History{At: refTime, Races: []model.Record{race(1500), race(1450), race(1400)}}, 90)

		Convey("Then the race pace trend is still improving", func() {
			So(v.Get(KeyRacePaceTrend), ShouldBeLessThan, 0)
		})
	})

	Convey("Given irregular gaps", t, func() {
		ws := []model.Record{workout(20, 5000, 1500), workout(19, 5000, 1500), workout(10, 5000, 1500), workout(1, 5000, 1500)}
		v := Compute(History{At: refTime, Workouts: ws}, 90)
		So(v.Get(KeyConsistency), ShouldBeGreaterThan, 0)
		So(v.Get(KeyConsistency), ShouldBeLessThan, 1)
	})
}

func TestComputeWindow(t *testing.T) {
	Convey("Given workouts inside and outside the lookback window", t, func() {
		ws := []model.Record{workout(5, 5000, 1500), workout(100, 5000, 1500), workout(-2, 5000, 1500)}
		v := Compute(History{At: refTime, Workouts: ws}, 90)

		Convey("Then only the in-window workout counts", func() {
			So(v.Get(KeyTotalSessions), ShouldEqual, 1)
		})
	})

	Convey("Given a non-positive lookback", t, func() {
		v := Compute(History{At: refTime, Workouts: []model.Record{workout(80, 5000, 1500)}}, 0)
		So(v.Get(KeyTotalSessions), ShouldEqual, 1)
		So(v.Get(KeyWeeklyFrequency), ShouldAlmostEqual, 1/(float64(DefaultLookbackDays)/7), 1e-9)
	})
}

func TestComputeIntensity(t *testing.T) {
	Convey("Given sessions with heart rate and tags", t, func() {
		profile := &model.Profile{UserID: "u-1", MaxHR: 200}
		ws := []model.Record{
			{Date: refTime.AddDate(0, 0, -4), DistanceMeters: 8000, DurationSeconds: 2800, HeartRate: 130},
			{Date: refTime.AddDate(0, 0, -3), DistanceMeters: 6000, DurationSeconds: 1800, HeartRate: 165},
			{Date: refTime.AddDate(0, 0, -2), DistanceMeters: 5000, DurationSeconds: 1350, Intensity: "interval"},
			{Date: refTime.AddDate(0, 0, -1), DistanceMeters: 5000, DurationSeconds: 1200, Intensity: "race"},
		}
		v := Compute(History{At: refTime, Workouts: ws, Profile: profile}, 90)

		Convey("Then each zone gets one session", func() {
			So(v.Get(KeyEasyRatio), ShouldEqual, 0.25)
			So(v.Get(KeyTempoRatio), ShouldEqual, 0.25)
			So(v.Get(KeyIntervalRatio), ShouldEqual, 0.25)
			So(v.Get(KeyRaceRatio), ShouldEqual, 0.25)
		})

		Convey("Then ratios sum to one", func() {
			sum := v.Get(KeyEasyRatio) + v.Get(KeyTempoRatio) + v.Get(KeyIntervalRatio) + v.Get(KeyRaceRatio)
			So(sum, ShouldAlmostEqual, 1, 1e-9)
		})

		Convey("Then intensity rises over the window", func() {
			So(v.Get(KeyIntensityTrend), ShouldBeGreaterThan, 0)
			So(v.Get(KeyAvgIntensity), ShouldBeGreaterThan, 0)
		})
	})

	Convey("Given untagged sessions without heart rate", t, func() {
		v := Compute(History{At: refTime, Workouts: []model.Record{workout(2, 5000, 1500), workout(1, 5000, 1500)}}, 90)
		So(v.Get(KeyEasyRatio), ShouldEqual, 1)
		So(v.Get(KeyAvgIntensity), ShouldAlmostEqual, defaultIntensity, 1e-9)
	})
}

func TestComputeRacesAndProfile(t *testing.T) {
	Convey("Given races and a profile", t, func() {
		races := []model.Record{
			{Kind: model.KindRace, Date: refTime.AddDate(0, -6, 0), DistanceMeters: 5000, DurationSeconds: 1500},
			{Kind: model.KindRace, Date: refTime.AddDate(0, 0, -30), DistanceMeters: 5000, DurationSeconds: 1400},
			{Kind: model.KindRace, Date: refTime.AddDate(0, 0, 10), DistanceMeters: 5000, DurationSeconds: 1000},
		}
		profile := &model.Profile{
			BirthDate: time.Date(1990, time.June, 15, 0, 0, 0, 0, time.UTC),
			HeightCM:  180,
			WeightKG:  81,
			Gender:    "Male",
			RestingHR: 50,
		}
		v := Compute(History{At: refTime, Races: races, Profile: profile}, 90)

		Convey("Then future races are ignored", func() {
			So(v.Get(KeyRecentRaceCount), ShouldEqual, 1)
			So(v.Get(KeyBestRacePace), ShouldEqual, 280)
			So(v.Get(KeyAvgRacePace), ShouldEqual, 290)
			So(v.Get(KeyAvgRaceDistance), ShouldEqual, 5000)
		})

		Convey("Then race pace is improving", func() {
			So(v.Get(KeyRacePaceTrend), ShouldBeLessThan, 0)
		})

		Convey("Then physiology is encoded", func() {
			So(v.Get(KeyAge), ShouldEqual, 33)
			So(v.Get(KeyBMI), ShouldAlmostEqual, 25, 1e-9)
			So(v.Get(KeyGender), ShouldEqual, 1)
			So(v.Get(KeyRestingHR), ShouldEqual, 50)
			So(v.Get(KeyMaxHR), ShouldEqual, 0)
		})

		Convey("Then workouts are still absent", func() {
			So(v.Insufficient(), ShouldBeTrue)
		})
	})
}

func TestAlign(t *testing.T) {
	Convey("Given a value map and a name list", t, func() {
		values := map[string]float64{"a": 1, "b": 2, "extra": 9, "bad": math.NaN()}

		Convey("Then output follows name order with zero for missing or non-finite", func() {
			So(Align(values, []string{"b", "missing", "a", "bad"}), ShouldResemble, []float64{2, 0, 1, 0})
		})

		Convey("Then an empty name list yields an empty slice", func() {
			So(Align(values, nil), ShouldHaveLength, 0)
		})
	})
}
