// Package service wires storage, feature extraction, training and serving
// into one process-level component used by the HTTP ops server and the CLI.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	eventqueue "github.com/okian/stride/internal/adapters/mq/queue"
	workerpool "github.com/okian/stride/internal/adapters/mq/worker"
	"github.com/okian/stride/internal/adapters/repository"
	"github.com/okian/stride/internal/config"
	"github.com/okian/stride/internal/domain/dedupe"
	"github.com/okian/stride/internal/domain/features"
	"github.com/okian/stride/internal/domain/history"
	"github.com/okian/stride/internal/domain/model"
	"github.com/okian/stride/internal/domain/prediction"
	"github.com/okian/stride/internal/domain/race"
	"github.com/okian/stride/internal/domain/training"
	"github.com/okian/stride/pkg/logger"
	"github.com/okian/stride/pkg/metrics"
)

// Service owns the pipeline components and their lifecycle.
type Service struct {
	mu sync.RWMutex

	cfg   *config.Config
	panel []string

	// Storage
	db          *repository.SQLite
	artifacts   *repository.Artifacts
	ownsStorage bool

	// Pipeline
	features *features.Store
	trainer  *training.Trainer
	server   *prediction.Server

	// Background training. pending holds events with a queued or running job.
	queue   *eventqueue.InMemoryQueue
	pool    *workerpool.Pool
	pending *dedupe.InMemoryDeduper

	runsMu   sync.Mutex
	lastRuns map[string]*training.Outcome

	started bool
	stopCh  chan struct{}
	loops   sync.WaitGroup

	now    func() time.Time
	logger logger.Logger
}

// New constructs a Service. Nothing is opened until Start.
func New(opts ...Option) *Service {
	s := &Service{
		cfg:         config.New(),
		ownsStorage: true,
		lastRuns:    make(map[string]*training.Outcome),
		pending:     dedupe.NewInMemoryDeduper(),
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens storage when none was injected, builds the pipeline and
// starts the training workers and the cleanup loop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	log := s.logger.Named("service")
	log.Info(ctx, "starting stride service...")

	if s.ownsStorage {
		if err := s.openStorage(ctx); err != nil {
			return err
		}
	}

	s.features = features.NewStore(s.db.Features(),
		features.WithClock(s.now),
		features.WithLogger(s.logger.Named("features")))

	trainerOpts := []training.Option{
		training.WithLookbackWeeks(s.cfg.TrainingLookbackWeeks),
		training.WithMinSamples(s.cfg.MinSamples),
		training.WithTestFraction(s.cfg.TestFraction),
		training.WithSeed(s.cfg.RandomSeed),
		training.WithLogger(s.logger.Named("trainer")),
	}
	if len(s.panel) > 0 {
		trainerOpts = append(trainerOpts, training.WithPanel(s.panel...))
	}
	s.trainer = training.NewTrainer(s.db, s.db.Models(), s.artifacts, trainerOpts...)

	s.server = prediction.NewServer(s.db.Models(), s.artifacts, s.features,
		prediction.WithConfidenceBounds(s.cfg.ConfidenceMin, s.cfg.ConfidenceMax),
		prediction.WithFallbackConfidence(s.cfg.FallbackConfidence),
		prediction.WithUnknownConfidence(s.cfg.UnknownConfidence),
		prediction.WithBreaker(s.cfg.BreakerFailures, s.cfg.BreakerTimeout),
		prediction.WithRecorder(s.db),
		prediction.WithClock(s.now),
		prediction.WithLogger(s.logger.Named("prediction")))

	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.cfg.QueueSize))
	s.pool = workerpool.NewPool(s.cfg.WorkerCount, s.queue,
		workerpool.HandlerFunc(s.handleJob),
		workerpool.WithLogger(s.logger))
	s.pool.Start(context.WithoutCancel(ctx))

	s.stopCh = make(chan struct{})
	if s.cfg.CleanupInterval > 0 {
		s.loops.Add(1)
		go s.cleanupLoop(s.cfg.CleanupInterval)
	}

	s.started = true
	log.Info(ctx, "stride service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queue_size", s.cfg.QueueSize),
		logger.String("database", s.cfg.DatabasePath),
		logger.String("artifacts", s.cfg.ArtifactDir))
	return nil
}

func (s *Service) openStorage(ctx context.Context) error {
	db, err := repository.OpenSQLite(ctx, s.cfg.DatabasePath,
		repository.WithLogger(s.logger.Named("repository")))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	artifacts, err := repository.OpenArtifacts(s.cfg.ArtifactDir)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("open artifact store: %w", err)
	}
	s.db, s.artifacts = db, artifacts
	return nil
}

// Stop drains the workers, stops the cleanup loop and closes owned storage.
// Queued and in-flight training jobs finish before storage is closed; when
// they cannot finish before ctx ends, the error says so and owned storage is
// left open for them.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.mu.Unlock()

	log := s.logger.Named("service")
	log.Info(ctx, "stopping stride service...")

	var errs []error
	drained := true
	if err := s.pool.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("drain training workers: %w", err))
		drained = false
	}
	close(s.stopCh)
	s.loops.Wait()

	switch {
	case !drained && s.ownsStorage:
		log.Warn(ctx, "leaving storage open: training jobs still running")
	case s.ownsStorage:
		if err := s.artifacts.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := s.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	log.Info(ctx, "stride service stopped")
	return errors.Join(errs...)
}

func (s *Service) running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// RefreshFeatures recomputes and stores the vector of userID from its
// history as of now.
func (s *Service) RefreshFeatures(ctx context.Context, userID string) (*features.Vector, error) {
	if !s.running() {
		return nil, ErrNotStarted
	}
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	start := time.Now()
	at := s.now()
	h, err := history.Load(ctx, s.db, userID, at, s.cfg.LookbackDays)
	if err != nil {
		metrics.RecordErrorByComponent("features", "history")
		return nil, fmt.Errorf("load history for %s: %w", userID, err)
	}
	v := features.Compute(h, s.cfg.LookbackDays)
	metrics.RecordFeaturesComputed(float64(time.Since(start).Microseconds())/1000, v.Insufficient())
	id, err := s.features.Save(ctx, userID, v)
	if err != nil {
		return nil, err
	}
	v.ID, v.UserID = id, userID
	return v, nil
}

// Features returns the latest stored vector of userID.
func (s *Service) Features(ctx context.Context, userID string) (*features.Vector, error) {
	if !s.running() {
		return nil, ErrNotStarted
	}
	return s.features.GetLatest(ctx, userID)
}

// Predict estimates the finishing time of userID on eventCode. Degraded
// answers are still answers; the error only reports a stopped service or an
// event code that names no distance (ErrUnknownEvent).
func (s *Service) Predict(ctx context.Context, userID, eventCode string) (*model.Prediction, error) {
	if !s.running() {
		return nil, ErrNotStarted
	}
	ev, err := race.Parse(eventCode)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnknownEvent, err)
	}
	return s.server.Predict(ctx, userID, ev.Code), nil
}

// Train runs training for eventCode synchronously. When activate is set and
// the run produced a model scoring at least MinActivationScore, the model is
// activated.
func (s *Service) Train(ctx context.Context, eventCode string, activate bool) (*training.Outcome, error) {
	if !s.running() {
		return nil, ErrNotStarted
	}
	return s.train(ctx, eventCode, activate)
}

func (s *Service) train(ctx context.Context, eventCode string, activate bool) (*training.Outcome, error) {
	out, err := s.trainer.Train(ctx, eventCode)
	if out != nil {
		s.runsMu.Lock()
		s.lastRuns[out.Event] = out
		s.runsMu.Unlock()
	}
	if err != nil {
		return out, err
	}
	if !activate || out.ModelID == "" {
		return out, nil
	}
	if out.R2 < s.cfg.MinActivationScore {
		s.logger.Named("service").Info(ctx, "model below activation score",
			logger.String("model_id", out.ModelID),
			logger.Float64("r2", out.R2),
			logger.Float64("required", s.cfg.MinActivationScore))
		return out, nil
	}
	if _, err := s.activate(ctx, out.ModelID); err != nil {
		return out, err
	}
	return out, nil
}

// EnqueueTraining schedules a background training run. At most one job per
// event is queued or running at a time; a second request gets ErrPending.
func (s *Service) EnqueueTraining(ctx context.Context, eventCode string, activate bool) (model.TrainJob, error) {
	if !s.running() {
		return model.TrainJob{}, ErrNotStarted
	}
	ev, err := race.Parse(eventCode)
	if err != nil {
		return model.TrainJob{}, fmt.Errorf("%w: %w", ErrUnknownEvent, err)
	}
	if s.pending.SeenAndRecord(ctx, ev.Code) {
		return model.TrainJob{}, fmt.Errorf("%w: %s", ErrPending, ev.Code)
	}
	job := model.TrainJob{
		ID:          uuid.NewString(),
		Event:       ev.Code,
		Activate:    activate,
		RequestedAt: s.now(),
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		s.pending.Unrecord(ctx, ev.Code)
		if errors.Is(err, eventqueue.ErrFull) {
			return model.TrainJob{}, ErrQueueFull
		}
		return model.TrainJob{}, err
	}
	s.logger.Named("service").Info(ctx, "training enqueued",
		logger.String("job_id", job.ID),
		logger.String("event", job.Event))
	return job, nil
}

func (s *Service) handleJob(ctx context.Context, j model.TrainJob) error {
	defer s.pending.Unrecord(ctx, j.Event)
	out, err := s.train(ctx, j.Event, j.Activate || s.cfg.AutoActivate)
	if err != nil {
		return err
	}
	s.logger.Named("service").Info(ctx, "training job outcome",
		logger.String("job_id", j.ID),
		logger.String("status", string(out.Status)),
		logger.String("message", out.Message))
	return nil
}

// Activate makes modelID the active model of its event.
func (s *Service) Activate(ctx context.Context, modelID string) (*model.TrainedModel, error) {
	if !s.running() {
		return nil, ErrNotStarted
	}
	return s.activate(ctx, modelID)
}

func (s *Service) activate(ctx context.Context, modelID string) (*model.TrainedModel, error) {
	m, err := s.db.Models().Activate(ctx, modelID)
	if err != nil {
		return nil, err
	}
	metrics.RecordModelActivation(m.Event)
	return m, nil
}

// Models lists registered models of eventCode, or of every event when empty.
func (s *Service) Models(ctx context.Context, eventCode string) ([]*model.TrainedModel, error) {
	if !s.running() {
		return nil, ErrNotStarted
	}
	if eventCode != "" {
		ev, err := race.Parse(eventCode)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnknownEvent, err)
		}
		eventCode = ev.Code
	}
	return s.db.Models().List(ctx, eventCode)
}

// LastRun returns the latest training outcome of eventCode in this process.
func (s *Service) LastRun(eventCode string) (*training.Outcome, bool) {
	s.runsMu.Lock()
	defer s.runsMu.Unlock()
	out, ok := s.lastRuns[eventCode]
	return out, ok
}

// Cleanup removes feature vectors older than the configured retention.
func (s *Service) Cleanup(ctx context.Context) (int, error) {
	if !s.running() {
		return 0, ErrNotStarted
	}
	return s.features.Cleanup(ctx, s.cfg.FeatureRetentionDays)
}

func (s *Service) cleanupLoop(interval time.Duration) {
	defer s.loops.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			if _, err := s.features.Cleanup(ctx, s.cfg.FeatureRetentionDays); err != nil {
				s.logger.Named("service").Error(ctx, "feature cleanup failed", logger.Error(err))
			}
			cancel()
		}
	}
}

// History exposes the sqlite-backed history tables for seeding.
func (s *Service) History() *repository.SQLite {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":     s.started,
		"workerCount": s.cfg.WorkerCount,
		"queueSize":   s.cfg.QueueSize,
	}
	if !s.started {
		return stats
	}
	stats["queueLength"] = s.queue.Len(ctx)
	pending := map[string]any{}
	for _, c := range s.pending.Claims() {
		pending[c.ID] = c.Since
	}
	stats["pendingTraining"] = pending

	active := map[string]any{}
	for _, ev := range race.Catalog() {
		m, err := s.db.Models().Active(ctx, ev.Code)
		if err != nil || m == nil {
			continue
		}
		active[ev.Code] = map[string]any{
			"id":        m.ID,
			"version":   m.Version,
			"algorithm": m.Algorithm,
			"r2":        m.R2,
		}
	}
	stats["activeModels"] = active

	s.runsMu.Lock()
	runs := make(map[string]any, len(s.lastRuns))
	for ev, out := range s.lastRuns {
		runs[ev] = map[string]any{
			"status":  string(out.Status),
			"samples": out.Samples,
			"winner":  out.Winner,
			"r2":      out.R2,
		}
	}
	s.runsMu.Unlock()
	stats["lastRuns"] = runs
	return stats
}
