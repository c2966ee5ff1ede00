package service

import (
	"time"

	"github.com/okian/stride/internal/adapters/repository"
	"github.com/okian/stride/internal/config"
	"github.com/okian/stride/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig replaces the default configuration.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithStorage injects already opened stores. The service does not close
// injected stores on Stop.
func WithStorage(db *repository.SQLite, artifacts *repository.Artifacts) Option {
	return func(s *Service) {
		if db != nil && artifacts != nil {
			s.db, s.artifacts = db, artifacts
			s.ownsStorage = false
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithPanel restricts the candidate algorithms used by training runs.
func WithPanel(algorithms ...string) Option {
	return func(s *Service) {
		if len(algorithms) > 0 {
			s.panel = algorithms
		}
	}
}
