// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers a YAML file and STRIDE_* environment variables on top.
// - External errors must be wrapped with this package's sentinel errors.
package config

import (
	"runtime"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"oneof=debug info warn warning error"`

	// LogJSON switches log output to JSON lines.
	LogJSON bool `koanf:"log_json"`

	// MetricsEnabled turns Prometheus recording on or off.
	MetricsEnabled bool `koanf:"metrics_enabled"`

	// MetricsRefreshInterval is how often runtime and queue gauges are sampled.
	MetricsRefreshInterval time.Duration `koanf:"metrics_refresh_interval" validate:"gte=0"`

	// Addr configures the ops HTTP listen address, e.g. ":9090".
	Addr string `koanf:"addr" validate:"required"`

	// DatabasePath is the sqlite file holding history, feature vectors,
	// the model registry and stored predictions.
	DatabasePath string `koanf:"database_path" validate:"required"`

	// ArtifactDir is the badger directory for model artifacts. Empty keeps
	// artifacts in memory, which is only useful for tests.
	ArtifactDir string `koanf:"artifact_dir"`

	// QueueSize bounds the in-memory training job queue.
	QueueSize int `koanf:"queue_size" validate:"gte=1"`

	// WorkerCount sets the number of training workers.
	WorkerCount int `koanf:"worker_count" validate:"gte=1"`

	// LookbackDays is the serving-time feature window.
	LookbackDays int `koanf:"lookback_days" validate:"gte=7"`

	// TrainingLookbackWeeks is the workout window joined to each race result.
	TrainingLookbackWeeks int `koanf:"training_lookback_weeks" validate:"gte=1"`

	// MinSamples is the smallest dataset a training run accepts.
	MinSamples int `koanf:"min_samples" validate:"gte=2"`

	// TestFraction is the held-out share of the dataset.
	TestFraction float64 `koanf:"test_fraction" validate:"gt=0,lt=1"`

	// RandomSeed makes splits and tree ensembles reproducible.
	RandomSeed int64 `koanf:"random_seed"`

	// AutoActivate activates the winning model when a queued run succeeds.
	AutoActivate bool `koanf:"auto_activate"`

	// MinActivationScore is the held-out R2 a model needs to be auto-activated.
	MinActivationScore float64 `koanf:"min_activation_score"`

	// FeatureRetentionDays bounds how long feature vectors are kept.
	FeatureRetentionDays int `koanf:"feature_retention_days" validate:"gte=0"`

	// CleanupInterval is how often retention cleanup runs; 0 disables it.
	CleanupInterval time.Duration `koanf:"cleanup_interval"`

	// Confidence policy for served predictions.
	ConfidenceMin      float64 `koanf:"confidence_min" validate:"gte=0,lte=1"`
	ConfidenceMax      float64 `koanf:"confidence_max" validate:"gte=0,lte=1,gtefield=ConfidenceMin"`
	FallbackConfidence float64 `koanf:"fallback_confidence" validate:"gte=0,lte=1"`
	UnknownConfidence  float64 `koanf:"unknown_confidence" validate:"gte=0,lte=1"`

	// BreakerFailures trips the artifact loader breaker after this many
	// consecutive load failures.
	BreakerFailures int `koanf:"breaker_failures" validate:"gte=1"`

	// BreakerTimeout is how long the breaker stays open.
	BreakerTimeout time.Duration `koanf:"breaker_timeout"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:               "info",
		MetricsEnabled:         true,
		MetricsRefreshInterval: 10 * time.Second,
		Addr:                   ":9090",
		DatabasePath:           "stride.db",
		ArtifactDir:            "artifacts",
		QueueSize:              64,
		WorkerCount:            runtime.NumCPU(),
		LookbackDays:           90,
		TrainingLookbackWeeks:  12,
		MinSamples:             50,
		TestFraction:           0.2,
		RandomSeed:             42,
		AutoActivate:           true,
		MinActivationScore:     0,
		FeatureRetentionDays:   180,
		CleanupInterval:        6 * time.Hour,
		ConfidenceMin:          0.5,
		ConfidenceMax:          0.95,
		FallbackConfidence:     0.3,
		UnknownConfidence:      0.1,
		BreakerFailures:        5,
		BreakerTimeout:         30 * time.Second,
	}
}
