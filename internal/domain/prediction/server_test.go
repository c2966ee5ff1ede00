package prediction

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/stride/internal/domain/features"
	"github.com/okian/stride/internal/domain/ml"
	"github.com/okian/stride/internal/domain/model"
)

var errMissing = errors.New("missing")

type fakeModels struct {
	active map[string]*model.TrainedModel
	fail   error
}

func (f *fakeModels) Active(_ context.Context, event string) (*model.TrainedModel, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	return f.active[event], nil
}

type fakeArtifacts struct {
	mu    sync.Mutex
	blobs map[string][]byte
	reads int
}

func (f *fakeArtifacts) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	data, ok := f.blobs[key]
	if !ok {
		return nil, errMissing
	}
	return data, nil
}

type fakeVectors map[string]*features.Vector

func (f fakeVectors) GetLatest(_ context.Context, userID string) (*features.Vector, error) {
	v, ok := f[userID]
	if !ok {
		return nil, features.ErrNotFound
	}
	return v, nil
}

type fakeRecorder struct {
	saved []*model.Prediction
	fail  error
}

func (f *fakeRecorder) SavePrediction(_ context.Context, p *model.Prediction) error {
	if f.fail != nil {
		return f.fail
	}
	f.saved = append(f.saved, p)
	return nil
}

func vector(values map[string]float64) *features.Vector {
	return &features.Vector{Values: values, SchemaVersion: features.SchemaVersion, CalculatedAt: time.Now()}
}

func paceArtifact(r2 float64) []byte {
	scaler := &ml.StandardScaler{Mean: []float64{0}, Std: []float64{1}}
	art, err := ml.NewArtifact(ml.AlgorithmRidge, []string{features.KeyAvgPace}, features.SchemaVersion, scaler, &ml.Ridge{Coef: []float64{5}}, r2)
	So(err, ShouldBeNil)
	data, err := ml.Encode(art)
	So(err, ShouldBeNil)
	return data
}

func TestFallbackChain(t *testing.T) {
	Convey("Given a server without any active model", t, func() {
		ctx := context.Background()
		vectors := fakeVectors{
			"racer":  vector(map[string]float64{features.KeyTotalSessions: 12, features.KeyAvgRacePace: 300}),
			"slow":   vector(map[string]float64{features.KeyTotalSessions: 12, features.KeyAvgRacePace: 900}),
			"novice": vector(map[string]float64{features.KeyTotalSessions: 3}),
		}
		rec := &fakeRecorder{}
		srv := NewServer(&fakeModels{}, &fakeArtifacts{}, vectors, WithRecorder(rec))

		Convey("Then every catalog event falls back with bounded confidence", func() {
			for _, code := range []string{"1500m", "mile", "5k", "10k", "half_marathon", "marathon", "50k"} {
				p := srv.Predict(ctx, "nobody", code)
				So(p.ModelID, ShouldEqual, model.FallbackModelID)
				So(p.IsFallback(), ShouldBeTrue)
				So(p.Confidence, ShouldBeLessThanOrEqualTo, 0.3)
				So(p.Seconds, ShouldBeGreaterThan, 0)
			}
		})

		Convey("When the runner has no vector", func() {
			p := srv.Predict(ctx, "nobody", "5k")

			Convey("Then the category pace is used unscaled", func() {
				So(p.Source, ShouldEqual, model.SourceFallback)
				So(p.Seconds, ShouldAlmostEqual, 330*5, 1e-9)
				So(p.Confidence, ShouldEqual, 0.3)
				So(p.Reason, ShouldEqual, ReasonNoActiveModel)
				So(p.Formatted, ShouldEqual, "0:27:30")
				So(p.Features, ShouldBeNil)
			})

			Convey("Then the prediction is recorded", func() {
				So(rec.saved, ShouldHaveLength, 1)
				So(rec.saved[0].ID, ShouldEqual, p.ID)
			})
		})

		Convey("When the runner has race history", func() {
			p := srv.Predict(ctx, "racer", "5k")
			So(p.Seconds, ShouldAlmostEqual, 1500, 1e-9)
			So(p.Features[features.KeyAvgRacePace], ShouldEqual, 300)
		})

		Convey("When the race pace is extreme the multiplier is clamped", func() {
			p := srv.Predict(ctx, "slow", "5k")
			So(p.Seconds, ShouldAlmostEqual, 330*5*MaxMultiplier, 1e-9)
		})

		Convey("When the runner has no race history", func() {
			p := srv.Predict(ctx, "novice", "10k")
			So(p.Seconds, ShouldAlmostEqual, 345*10, 1e-9)
		})

		Convey("When the event is a custom distance", func() {
			p := srv.Predict(ctx, "racer", "8k")

			Convey("Then the default pace is used", func() {
				So(p.Source, ShouldEqual, model.SourceDefault)
				So(p.Seconds, ShouldAlmostEqual, 360*8, 1e-9)
				So(p.Confidence, ShouldEqual, 0.1)
				So(p.Reason, ShouldEqual, ReasonUnknownCategory)
			})
		})

		Convey("When the event cannot be parsed", func() {
			p := srv.Predict(ctx, "racer", "ultra-trail")

			Convey("Then the estimate is zero", func() {
				So(p.Seconds, ShouldEqual, 0)
				So(p.Confidence, ShouldEqual, 0)
				So(p.Event, ShouldEqual, "ultra-trail")
				So(p.Reason, ShouldEqual, ReasonUnknownEvent)
				So(p.ModelID, ShouldEqual, model.FallbackModelID)
			})
		})

		Convey("When storing the prediction fails", func() {
			rec.fail = errors.New("disk full")
			p := srv.Predict(ctx, "racer", "5k")
			So(p, ShouldNotBeNil)
			So(p.Seconds, ShouldBeGreaterThan, 0)
		})
	})
}

func TestModelStage(t *testing.T) {
	Convey("Given an active ridge model for 5k", t, func() {
		ctx := context.Background()
		store := &fakeArtifacts{blobs: map[string][]byte{"model/5k/a": paceArtifact(0.99)}}
		models := &fakeModels{active: map[string]*model.TrainedModel{
			"5k": {ID: "m-1", Event: "5k", Version: 1, Algorithm: ml.AlgorithmRidge, R2: 0.99, ArtifactKey: "model/5k/a", Active: true},
		}}
		vectors := fakeVectors{
			"trained": vector(map[string]float64{features.KeyTotalSessions: 30, features.KeyAvgPace: 300}),
			"empty":   vector(map[string]float64{features.KeyTotalSessions: 0}),
		}
		srv := NewServer(models, store, vectors)

		Convey("When a trained runner asks", func() {
			p := srv.Predict(ctx, "trained", "5k")

			Convey("Then the model answers with clamped confidence", func() {
				So(p.Source, ShouldEqual, model.SourceModel)
				So(p.ModelID, ShouldEqual, "m-1")
				So(p.Seconds, ShouldAlmostEqual, 1500, 1e-9)
				So(p.Confidence, ShouldEqual, 0.95)
				So(p.Reason, ShouldBeEmpty)
			})

			Convey("Then a second call reuses the decoded artifact", func() {
				srv.Predict(ctx, "trained", "5k")
				So(store.reads, ShouldEqual, 1)
			})
		})

		Convey("When the model scored poorly", func() {
			store.blobs["model/5k/b"] = paceArtifact(0.1)
			models.active["5k"] = &model.TrainedModel{ID: "m-2", Event: "5k", R2: 0.1, ArtifactKey: "model/5k/b"}
			p := srv.Predict(ctx, "trained", "5k")
			So(p.Confidence, ShouldEqual, 0.5)
		})

		Convey("When the runner has no vector", func() {
			p := srv.Predict(ctx, "ghost", "5k")
			So(p.Source, ShouldEqual, model.SourceFallback)
			So(p.Reason, ShouldEqual, ReasonNoFeatures)
		})

		Convey("When the runner has no sessions", func() {
			p := srv.Predict(ctx, "empty", "5k")
			So(p.Source, ShouldEqual, model.SourceFallback)
			So(p.Reason, ShouldEqual, ReasonInsufficientHistory)
		})

		Convey("When the registry fails", func() {
			models.fail = errors.New("locked")
			p := srv.Predict(ctx, "trained", "5k")
			So(p.Reason, ShouldEqual, ReasonRegistryError)
			So(p.IsFallback(), ShouldBeTrue)
		})

		Convey("When the artifact keeps failing to load", func() {
			models.active["5k"] = &model.TrainedModel{ID: "m-3", Event: "5k", R2: 0.9, ArtifactKey: "model/5k/gone"}
			srv := NewServer(models, store, vectors, WithBreaker(2, time.Minute))

			first := srv.Predict(ctx, "trained", "5k")
			second := srv.Predict(ctx, "trained", "5k")
			third := srv.Predict(ctx, "trained", "5k")

			Convey("Then the breaker opens after the threshold", func() {
				So(first.Reason, ShouldEqual, ReasonArtifactUnavailable)
				So(second.Reason, ShouldEqual, ReasonArtifactUnavailable)
				So(third.Reason, ShouldEqual, ReasonBreakerOpen)
				So(third.IsFallback(), ShouldBeTrue)
				So(store.reads, ShouldEqual, 2)
			})
		})
	})

	Convey("Given an active forest model", t, func() {
		ctx := context.Background()
		var x [][]float64
		var y []float64
		for i := 0; i < 100; i++ {
			pace := 240 + float64(i)*2
			x = append(x, []float64{pace})
			y = append(y, 5*pace)
		}
		scaler, err := ml.FitScaler(x)
		So(err, ShouldBeNil)
		scaled, err := scaler.TransformAll(x)
		So(err, ShouldBeNil)
		forest := ml.NewRandomForest(ml.WithTrees(20))
		So(forest.Fit(scaled, y), ShouldBeNil)
		art, err := ml.NewArtifact(ml.AlgorithmRandomForest, []string{features.KeyAvgPace}, features.SchemaVersion, scaler, forest, 0.2)
		So(err, ShouldBeNil)
		data, err := ml.Encode(art)
		So(err, ShouldBeNil)

		srv := NewServer(
			&fakeModels{active: map[string]*model.TrainedModel{"5k": {ID: "f-1", Event: "5k", R2: 0.2, ArtifactKey: "k"}}},
			&fakeArtifacts{blobs: map[string][]byte{"k": data}},
			fakeVectors{"u": vector(map[string]float64{features.KeyTotalSessions: 10, features.KeyAvgPace: 300})},
			WithConfidenceBounds(0.4, 0.9),
		)
		p := srv.Predict(ctx, "u", "5k")

		Convey("Then confidence comes from tree agreement within bounds", func() {
			So(p.Source, ShouldEqual, model.SourceModel)
			So(p.Confidence, ShouldBeBetweenOrEqual, 0.4, 0.9)
			So(p.Seconds, ShouldAlmostEqual, 1500, 100)
		})
	})
}

func TestMultiplier(t *testing.T) {
	Convey("Multiplier defaults to one without race data", t, func() {
		So(Multiplier(nil, 330), ShouldEqual, 1)
		So(Multiplier(vector(map[string]float64{}), 330), ShouldEqual, 1)
		So(Multiplier(vector(map[string]float64{features.KeyAvgRacePace: 100}), 330), ShouldEqual, MinMultiplier)
	})

	Convey("Given a runner who only races the 1500m", t, func() {
		miler := vector(map[string]float64{features.KeyAvgRacePace: 243, features.KeyAvgRaceDistance: 1500})

		Convey("Then a marathon fallback keeps their relative standing", func() {
			So(Multiplier(miler, 380), ShouldAlmostEqual, 0.9, 1e-9)
		})

		Convey("Then the same runner scales identically at home distance", func() {
			So(Multiplier(miler, 270), ShouldAlmostEqual, 0.9, 1e-9)
		})
	})
}
