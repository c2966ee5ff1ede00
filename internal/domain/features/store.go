package features

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/stride/pkg/logger"
	"github.com/okian/stride/pkg/metrics"
)

// Repository persists vectors. Implementations must order Latest by
// calculation time, newest first, and delete strictly by timestamp.
type Repository interface {
	Insert(ctx context.Context, v *Vector) error
	Latest(ctx context.Context, userID string) (*Vector, error)
	DeleteUpTo(ctx context.Context, cutoff time.Time) (int, error)
}

// Store is the per-user feature store.
type Store struct {
	repo   Repository
	now    func() time.Time
	logger logger.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the store logger.
func WithLogger(l logger.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// NewStore wraps repo.
func NewStore(repo Repository, opts ...StoreOption) *Store {
	s := &Store{
		repo:   repo,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save stores a copy of v for userID and returns the new vector id. A zero
// CalculatedAt is stamped with the current time on the copy; v itself is
// left untouched, so saving it twice yields two rows with distinct ids.
func (s *Store) Save(ctx context.Context, userID string, v *Vector) (string, error) {
	if userID == "" || v == nil {
		return "", fmt.Errorf("%w: user id and vector are required", ErrInvalidInput)
	}
	row := &Vector{
		ID:            uuid.NewString(),
		UserID:        userID,
		Values:        v.Clone(),
		SchemaVersion: v.SchemaVersion,
		CalculatedAt:  v.CalculatedAt,
	}
	if row.SchemaVersion == "" {
		row.SchemaVersion = SchemaVersion
	}
	if row.CalculatedAt.IsZero() {
		row.CalculatedAt = s.now()
	}
	if err := s.repo.Insert(ctx, row); err != nil {
		return "", fmt.Errorf("save features for %s: %w", userID, err)
	}
	metrics.RecordFeatureStoreWrite()
	s.logger.Debug(ctx, "feature vector stored",
		logger.String("user_id", userID),
		logger.String("vector_id", row.ID),
		logger.Bool("insufficient", row.Insufficient()))
	return row.ID, nil
}

// GetLatest returns the most recently calculated vector for userID or
// ErrNotFound.
func (s *Store) GetLatest(ctx context.Context, userID string) (*Vector, error) {
	v, err := s.repo.Latest(ctx, userID)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Cleanup deletes vectors calculated at or before now-retentionDays and
// returns how many were removed.
func (s *Store) Cleanup(ctx context.Context, retentionDays int) (int, error) {
	if retentionDays < 0 {
		return 0, fmt.Errorf("%w: negative retention %d", ErrInvalidInput, retentionDays)
	}
	cutoff := s.now().AddDate(0, 0, -retentionDays)
	n, err := s.repo.DeleteUpTo(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup features: %w", err)
	}
	metrics.RecordFeatureStoreCleanup(n)
	s.logger.Info(ctx, "feature vectors cleaned up",
		logger.Int("deleted", n),
		logger.Time("cutoff", cutoff))
	return n, nil
}
