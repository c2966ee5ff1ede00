// Package training builds datasets from race history, fits the candidate
// panel for one event, selects the best model and persists it.
package training

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/okian/stride/internal/domain/features"
	"github.com/okian/stride/internal/domain/history"
	"github.com/okian/stride/internal/domain/ml"
	"github.com/okian/stride/internal/domain/model"
	"github.com/okian/stride/internal/domain/race"
	"github.com/okian/stride/pkg/logger"
	"github.com/okian/stride/pkg/metrics"
)

// Status of a training run.
type Status string

// Training statuses.
const (
	StatusSuccess          Status = "success"
	StatusPartial          Status = "partial"
	StatusInsufficientData Status = "insufficient_data"
	StatusFailed           Status = "failed"
)

// Registry stores model metadata and allocates versions.
type Registry interface {
	// Register persists m, assigning the next version for m.Event.
	Register(ctx context.Context, m *model.TrainedModel) (*model.TrainedModel, error)
}

// ArtifactStore stores encoded model artifacts.
type ArtifactStore interface {
	Put(ctx context.Context, key string, data []byte) error
}

// CandidateResult is the held-out evaluation of one panel entry.
type CandidateResult struct {
	Algorithm string
	R2        float64
	RMSE      float64
	Err       string
	Duration  time.Duration
}

// Failed reports whether the candidate was excluded.
func (c CandidateResult) Failed() bool { return c.Err != "" }

// Outcome describes a training run.
type Outcome struct {
	RunID        string
	Event        string
	Status       Status
	Message      string
	Samples      int
	Required     int
	TrainSamples int
	TestSamples  int
	Candidates   []CandidateResult
	Winner       string
	R2           float64
	RMSE         float64
	Importances  map[string]float64
	ModelID      string
	Version      int
	ArtifactKey  string
	Duration     time.Duration
}

// Trainer runs training for one event at a time. It is safe for concurrent
// use; runs for different events do not share state.
type Trainer struct {
	source        history.Source
	registry      Registry
	artifacts     ArtifactStore
	lookbackWeeks int
	minSamples    int
	testFraction  float64
	seed          int64
	panel         []string
	logger        logger.Logger
	now           func() time.Time
}

// Option configures a Trainer.
type Option func(*Trainer)

// WithLookbackWeeks sets the workout window joined to each race.
func WithLookbackWeeks(w int) Option {
	return func(t *Trainer) {
		if w > 0 {
			t.lookbackWeeks = w
		}
	}
}

// WithMinSamples sets the smallest accepted dataset.
func WithMinSamples(n int) Option {
	return func(t *Trainer) {
		if n > 0 {
			t.minSamples = n
		}
	}
}

// WithTestFraction sets the held-out share.
func WithTestFraction(f float64) Option {
	return func(t *Trainer) {
		if f > 0 && f < 1 {
			t.testFraction = f
		}
	}
}

// WithSeed sets the split and ensemble seed.
func WithSeed(seed int64) Option {
	return func(t *Trainer) { t.seed = seed }
}

// WithPanel replaces the candidate list; order decides ties.
func WithPanel(algorithms ...string) Option {
	return func(t *Trainer) {
		if len(algorithms) > 0 {
			t.panel = append([]string(nil), algorithms...)
		}
	}
}

// WithLogger sets the trainer logger.
func WithLogger(l logger.Logger) Option {
	return func(t *Trainer) {
		if l != nil {
			t.logger = l
		}
	}
}

// NewTrainer wires a trainer to its collaborators.
func NewTrainer(src history.Source, registry Registry, artifacts ArtifactStore, opts ...Option) *Trainer {
	t := &Trainer{
		source:        src,
		registry:      registry,
		artifacts:     artifacts,
		lookbackWeeks: 12,
		minSamples:    50,
		testFraction:  0.2,
		seed:          42,
		panel:         append([]string(nil), ml.Panel...),
		logger:        logger.Discard(),
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Train fits the panel for eventCode and registers the winner. The error is
// non-nil only when history cannot be read or the winner cannot be
// persisted; every other failure is described by the Outcome.
func (t *Trainer) Train(ctx context.Context, eventCode string) (*Outcome, error) {
	start := time.Now()
	out := &Outcome{RunID: uuid.NewString(), Event: eventCode, Required: t.minSamples}
	log := t.logger.With(logger.String("event", eventCode), logger.String("run_id", out.RunID))
	defer func() {
		out.Duration = time.Since(start)
		metrics.RecordTrainingRun(out.Event, string(out.Status), out.Duration)
	}()

	ev, err := race.Parse(eventCode)
	if err != nil {
		out.Status, out.Message = StatusFailed, err.Error()
		log.Warn(ctx, "training rejected", logger.Error(err))
		return out, nil
	}
	out.Event = ev.Code

	ds, err := BuildDataset(ctx, t.source, ev, t.lookbackWeeks)
	if err != nil {
		out.Status, out.Message = StatusFailed, err.Error()
		log.Error(ctx, "dataset build failed", logger.Error(err))
		return out, err
	}
	out.Samples = ds.Len()
	if out.Samples < t.minSamples {
		out.Status = StatusInsufficientData
		out.Message = fmt.Sprintf("need at least %d samples, have %d", t.minSamples, out.Samples)
		log.Info(ctx, "not enough samples to train",
			logger.Int("samples", out.Samples),
			logger.Int("required", t.minSamples))
		return out, nil
	}

	trainX, trainY, testX, testY := ds.Split(t.testFraction, t.seed)
	out.TrainSamples, out.TestSamples = len(trainY), len(testY)
	metrics.UpdateTrainingSamples(ev.Code, out.TrainSamples, out.TestSamples)

	scaler, err := ml.FitScaler(trainX)
	if err != nil {
		out.Status, out.Message = StatusFailed, err.Error()
		return out, nil
	}
	trainS, err := scaler.TransformAll(trainX)
	if err != nil {
		out.Status, out.Message = StatusFailed, err.Error()
		return out, nil
	}
	testS, err := scaler.TransformAll(testX)
	if err != nil {
		out.Status, out.Message = StatusFailed, err.Error()
		return out, nil
	}

	fitted, results, err := t.fitPanel(ctx, ev.Code, trainS, trainY, testS, testY)
	out.Candidates = results
	if err != nil {
		out.Status, out.Message = StatusFailed, err.Error()
		return out, err
	}

	best := -1
	failures := 0
	for i, r := range results {
		if r.Failed() {
			failures++
			continue
		}
		if best < 0 || ml.Better(r.R2, results[best].R2) {
			best = i
		}
	}
	if best < 0 {
		out.Status, out.Message = StatusFailed, "every candidate failed"
		log.Error(ctx, "training failed", logger.Int("candidates", len(results)))
		return out, nil
	}

	winner := results[best]
	out.Winner, out.R2, out.RMSE = winner.Algorithm, winner.R2, winner.RMSE
	out.Importances = importanceMap(ds.Names, fitted[best].Importances())

	if err := t.persist(ctx, ev, out, scaler, fitted[best], ds.Names); err != nil {
		out.Status, out.Message = StatusFailed, err.Error()
		metrics.RecordErrorByComponent("trainer", "persistence")
		log.Error(ctx, "persisting model failed", logger.Error(err))
		return out, err
	}

	out.Status = StatusSuccess
	if failures > 0 {
		out.Status = StatusPartial
	}
	log.Info(ctx, "training completed",
		logger.String("status", string(out.Status)),
		logger.String("winner", out.Winner),
		logger.Float64("r2", out.R2),
		logger.Float64("rmse", out.RMSE),
		logger.Int("version", out.Version),
		logger.Int("train_samples", out.TrainSamples),
		logger.Int("test_samples", out.TestSamples))
	return out, nil
}

// fitPanel trains every candidate concurrently. Results keep panel order.
// A candidate that errors or panics is marked failed; only context
// cancellation aborts the panel.
func (t *Trainer) fitPanel(ctx context.Context, event string, trainX [][]float64, trainY []float64, testX [][]float64, testY []float64) ([]ml.Regressor, []CandidateResult, error) {
	fitted := make([]ml.Regressor, len(t.panel))
	results := make([]CandidateResult, len(t.panel))

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range t.panel {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			started := time.Now()
			r, score, err := fitCandidate(name, t.seed, trainX, trainY, testX, testY)
			res := CandidateResult{Algorithm: name, Duration: time.Since(started)}
			if err != nil {
				res.Err = err.Error()
				metrics.RecordCandidateFailure(event, name)
				t.logger.Warn(gctx, "candidate failed",
					logger.String("event", event),
					logger.String("algorithm", name),
					logger.Error(err))
			} else {
				res.R2, res.RMSE = score.R2, score.RMSE
				metrics.UpdateCandidateScore(event, name, score.R2)
			}
			fitted[i], results[i] = r, res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, results, err
	}
	return fitted, results, nil
}

func fitCandidate(name string, seed int64, trainX [][]float64, trainY []float64, testX [][]float64, testY []float64) (r ml.Regressor, score ml.Score, err error) {
	defer func() {
		if p := recover(); p != nil {
			r, err = nil, fmt.Errorf("candidate %s panicked: %v", name, p)
		}
	}()
	r, err = ml.NewRegressor(name, seed)
	if err != nil {
		return nil, ml.Score{}, err
	}
	if err := r.Fit(trainX, trainY); err != nil {
		return nil, ml.Score{}, err
	}
	return r, ml.Evaluate(r, testX, testY), nil
}

// persist writes the artifact first and the registry row second, so an
// interrupted run never leaves a registered model without its artifact.
func (t *Trainer) persist(ctx context.Context, ev race.Event, out *Outcome, scaler *ml.StandardScaler, r ml.Regressor, names []string) error {
	art, err := ml.NewArtifact(out.Winner, names, features.SchemaVersion, scaler, r, out.R2)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	data, err := ml.Encode(art)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	key := ArtifactKey(ev.Code, out.RunID)
	if err := t.artifacts.Put(ctx, key, data); err != nil {
		return fmt.Errorf("%w: artifact %s: %w", ErrPersistence, key, err)
	}

	registered, err := t.registry.Register(ctx, &model.TrainedModel{
		ID:            uuid.NewString(),
		Event:         ev.Code,
		Algorithm:     out.Winner,
		R2:            out.R2,
		RMSE:          out.RMSE,
		TrainSamples:  out.TrainSamples,
		TestSamples:   out.TestSamples,
		FeatureNames:  names,
		Importances:   out.Importances,
		SchemaVersion: features.SchemaVersion,
		ArtifactKey:   key,
		TrainedAt:     t.now(),
	})
	if err != nil {
		return fmt.Errorf("%w: register: %w", ErrPersistence, err)
	}
	out.ModelID, out.Version, out.ArtifactKey = registered.ID, registered.Version, key
	return nil
}

// ArtifactKey is the blob key of a training run's artifact.
func ArtifactKey(event, runID string) string {
	return "model/" + event + "/" + runID
}

func importanceMap(names []string, weights []float64) map[string]float64 {
	out := make(map[string]float64, len(names))
	norm := ml.Normalize(weights)
	for i, name := range names {
		if i < len(norm) {
			out[name] = norm[i]
		}
	}
	return out
}

// IsPersistence reports whether err came from the persistence layer.
func IsPersistence(err error) bool {
	return errors.Is(err, ErrPersistence) || errors.Is(err, ErrHistory)
}
