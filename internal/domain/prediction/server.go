// Package prediction serves finishing-time estimates. A request walks an
// ordered chain of stages; each stage either answers or falls through with
// a reason, and the last stage always answers.
package prediction

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/okian/stride/internal/domain/features"
	"github.com/okian/stride/internal/domain/ml"
	"github.com/okian/stride/internal/domain/model"
	"github.com/okian/stride/internal/domain/race"
	"github.com/okian/stride/pkg/logger"
	"github.com/okian/stride/pkg/metrics"
)

// ModelResolver finds the active model of an event; (nil, nil) means none.
type ModelResolver interface {
	Active(ctx context.Context, event string) (*model.TrainedModel, error)
}

// ArtifactSource reads encoded artifacts by key.
type ArtifactSource interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// VectorReader returns a user's latest feature vector or features.ErrNotFound.
type VectorReader interface {
	GetLatest(ctx context.Context, userID string) (*features.Vector, error)
}

// Recorder stores served predictions.
type Recorder interface {
	SavePrediction(ctx context.Context, p *model.Prediction) error
}

// Server answers predict requests. It holds no per-request state and is
// safe for concurrent use.
type Server struct {
	models    ModelResolver
	artifacts ArtifactSource
	vectors   VectorReader
	recorder  Recorder
	breaker   *gobreaker.CircuitBreaker[*ml.Artifact]
	cache     sync.Map // artifact key -> *ml.Artifact
	logger    logger.Logger
	now       func() time.Time

	confidenceMin      float64
	confidenceMax      float64
	fallbackConfidence float64
	unknownConfidence  float64
	breakerFailures    uint32
	breakerTimeout     time.Duration

	chain []stage
}

// Option configures a Server.
type Option func(*Server)

// WithConfidenceBounds sets the range model confidence is clamped into.
func WithConfidenceBounds(minimum, maximum float64) Option {
	return func(s *Server) {
		if minimum >= 0 && maximum <= 1 && minimum <= maximum {
			s.confidenceMin, s.confidenceMax = minimum, maximum
		}
	}
}

// WithFallbackConfidence sets the confidence of category estimates.
func WithFallbackConfidence(c float64) Option {
	return func(s *Server) { s.fallbackConfidence = clamp(c, 0, 1) }
}

// WithUnknownConfidence sets the confidence of default-pace estimates.
func WithUnknownConfidence(c float64) Option {
	return func(s *Server) { s.unknownConfidence = clamp(c, 0, 1) }
}

// WithBreaker sets the artifact loader trip threshold and open period.
func WithBreaker(failures int, timeout time.Duration) Option {
	return func(s *Server) {
		if failures > 0 {
			s.breakerFailures = uint32(failures)
		}
		if timeout > 0 {
			s.breakerTimeout = timeout
		}
	}
}

// WithRecorder stores every served prediction.
func WithRecorder(r Recorder) Option {
	return func(s *Server) { s.recorder = r }
}

// WithLogger sets the server logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// NewServer wires a server to its collaborators.
func NewServer(models ModelResolver, artifacts ArtifactSource, vectors VectorReader, opts ...Option) *Server {
	s := &Server{
		models:             models,
		artifacts:          artifacts,
		vectors:            vectors,
		logger:             logger.Discard(),
		now:                func() time.Time { return time.Now().UTC() },
		confidenceMin:      0.5,
		confidenceMax:      0.95,
		fallbackConfidence: 0.3,
		unknownConfidence:  0.1,
		breakerFailures:    5,
		breakerTimeout:     30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.breaker = gobreaker.NewCircuitBreaker[*ml.Artifact](gobreaker.Settings{
		Name:        "artifacts",
		MaxRequests: 1,
		Timeout:     s.breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.breakerFailures
		},
		OnStateChange: func(name string, _, to gobreaker.State) {
			metrics.UpdateBreakerState(name, int(to))
			s.logger.Warn(context.Background(), "artifact breaker state changed",
				logger.String("breaker", name),
				logger.String("state", to.String()))
		},
	})
	s.chain = []stage{
		{name: "model", run: s.fromModel},
		{name: "category", run: s.fromCategory},
		{name: "default_pace", run: s.fromDefaultPace},
		{name: "unparsable", run: s.unparsable},
	}
	return s
}

// request is the shared input of every stage.
type request struct {
	userID   string
	code     string
	event    race.Event
	eventErr error
	vector   *features.Vector
}

// stage answers with a prediction or falls through with a reason.
type stage struct {
	name string
	run  func(ctx context.Context, req *request) (*model.Prediction, string)
}

// Predict always returns a result and never fails: every degradation is
// logged, counted and reflected in the source, reason and confidence. An
// event code that names no distance yields zero seconds at zero confidence
// with reason unknown_event; callers that need a usable estimate validate
// the code with race.Parse first.
func (s *Server) Predict(ctx context.Context, userID, eventCode string) *model.Prediction {
	start := time.Now()
	req := s.prepare(ctx, userID, eventCode)
	log := s.logger.With(logger.String("user_id", userID), logger.String("event", eventCode))

	var (
		p      *model.Prediction
		reason string
	)
	for _, st := range s.chain {
		var why string
		p, why = st.run(ctx, req)
		if p != nil {
			break
		}
		reason = why
		metrics.RecordFallback(why)
		log.Info(ctx, "prediction stage fell through",
			logger.String("stage", st.name),
			logger.String("reason", why))
	}

	p.ID = uuid.NewString()
	p.UserID = userID
	p.Reason = reason
	p.Confidence = clamp(p.Confidence, 0, 1)
	p.Formatted = model.FormatDuration(p.Seconds)
	p.Features = req.vector.Clone()
	p.CreatedAt = s.now()
	if p.Event == "" {
		p.Event = eventCode
	}

	if s.recorder != nil {
		if err := s.recorder.SavePrediction(ctx, p); err != nil {
			metrics.RecordErrorByComponent("prediction", "persistence")
			log.Error(ctx, "storing prediction failed", logger.Error(err))
		}
	}
	metrics.RecordPrediction(p.Event, string(p.Source), float64(time.Since(start).Microseconds())/1000)
	log.Debug(ctx, "prediction served",
		logger.String("source", string(p.Source)),
		logger.Float64("seconds", p.Seconds),
		logger.Float64("confidence", p.Confidence))
	return p
}

func (s *Server) prepare(ctx context.Context, userID, eventCode string) *request {
	req := &request{userID: userID, code: eventCode}
	req.event, req.eventErr = race.Parse(eventCode)
	if s.vectors == nil || userID == "" {
		return req
	}
	v, err := s.vectors.GetLatest(ctx, userID)
	if err != nil {
		if !errors.Is(err, features.ErrNotFound) {
			s.logger.Warn(ctx, "reading features failed", logger.String("user_id", userID), logger.Error(err))
		}
		return req
	}
	req.vector = v
	return req
}

func (s *Server) fromModel(ctx context.Context, req *request) (*model.Prediction, string) {
	if req.eventErr != nil {
		return nil, ReasonUnknownEvent
	}
	if s.models == nil {
		return nil, ReasonNoActiveModel
	}
	tm, err := s.models.Active(ctx, req.event.Code)
	if err != nil {
		s.logger.Warn(ctx, "resolving active model failed", logger.String("event", req.event.Code), logger.Error(err))
		return nil, ReasonRegistryError
	}
	if tm == nil {
		return nil, ReasonNoActiveModel
	}
	if req.vector == nil {
		return nil, ReasonNoFeatures
	}
	if req.vector.Insufficient() {
		return nil, ReasonInsufficientHistory
	}

	art, err := s.load(ctx, tm.ArtifactKey)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ReasonBreakerOpen
		}
		s.logger.Warn(ctx, "loading artifact failed", logger.String("key", tm.ArtifactKey), logger.Error(err))
		return nil, ReasonArtifactUnavailable
	}

	row := features.Align(req.vector.Values, art.FeatureNames)
	seconds, conf, native, err := art.Estimate(row)
	if err != nil {
		s.logger.Warn(ctx, "model estimate failed", logger.String("model_id", tm.ID), logger.Error(err))
		return nil, ReasonPredictionError
	}
	if seconds <= 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return nil, ReasonInvalidEstimate
	}
	if !native {
		conf = tm.R2
	}
	return &model.Prediction{
		Event:      req.event.Code,
		Seconds:    seconds,
		Confidence: clamp(conf, s.confidenceMin, s.confidenceMax),
		ModelID:    tm.ID,
		Source:     model.SourceModel,
	}, ""
}

// load decodes an artifact through the breaker. Decoded artifacts are
// immutable and cached by key.
func (s *Server) load(ctx context.Context, key string) (*ml.Artifact, error) {
	if cached, ok := s.cache.Load(key); ok {
		return cached.(*ml.Artifact), nil
	}
	art, err := s.breaker.Execute(func() (*ml.Artifact, error) {
		data, err := s.artifacts.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		return ml.Decode(data)
	})
	if err != nil {
		return nil, err
	}
	s.cache.Store(key, art)
	return art, nil
}

// fromCategory estimates base pace × distance × personal multiplier.
func (s *Server) fromCategory(_ context.Context, req *request) (*model.Prediction, string) {
	if req.eventErr != nil {
		return nil, ReasonUnknownEvent
	}
	pace, ok := req.event.BasePace()
	if !ok {
		return nil, ReasonUnknownCategory
	}
	return &model.Prediction{
		Event:      req.event.Code,
		Seconds:    pace * req.event.Kilometres() * Multiplier(req.vector, pace),
		Confidence: s.fallbackConfidence,
		ModelID:    model.FallbackModelID,
		Source:     model.SourceFallback,
	}, ""
}

func (s *Server) fromDefaultPace(_ context.Context, req *request) (*model.Prediction, string) {
	if req.eventErr != nil {
		return nil, ReasonUnknownEvent
	}
	return &model.Prediction{
		Event:      req.event.Code,
		Seconds:    race.DefaultPace * req.event.Kilometres(),
		Confidence: s.unknownConfidence,
		ModelID:    model.FallbackModelID,
		Source:     model.SourceDefault,
	}, ""
}

func (s *Server) unparsable(_ context.Context, req *request) (*model.Prediction, string) {
	return &model.Prediction{
		Event:   req.code,
		ModelID: model.FallbackModelID,
		Source:  model.SourceDefault,
	}, ""
}

// Multiplier bounds for the personal pace adjustment.
const (
	MinMultiplier = 0.7
	MaxMultiplier = 1.5
)

// Multiplier scales a category pace by how the runner's average race pace
// compares with the table pace of the distances they actually raced, so a
// miler is not judged against marathon pace. Without a raced distance the
// target pace is the reference. It is 1 when the vector is missing or has
// no race history.
func Multiplier(v *features.Vector, basePace float64) float64 {
	racePace := v.Get(features.KeyAvgRacePace)
	if racePace <= 0 || basePace <= 0 {
		return 1
	}
	reference := basePace
	if raced := v.Get(features.KeyAvgRaceDistance); raced > 0 {
		if p, ok := race.BasePaceFor(raced); ok {
			reference = p
		}
	}
	return clamp(racePace/reference, MinMultiplier, MaxMultiplier)
}

func clamp(x, lo, hi float64) float64 {
	if math.IsNaN(x) {
		return lo
	}
	return math.Max(lo, math.Min(hi, x))
}
