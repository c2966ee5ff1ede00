package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/okian/stride/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.MinSamples, convey.ShouldEqual, 50)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			t.Setenv("STRIDE_ADDR", ":8080")
			t.Setenv("STRIDE_MIN_SAMPLES", "80")
			t.Setenv("STRIDE_TEST_FRACTION", "0.25")
			t.Setenv("STRIDE_CLEANUP_INTERVAL", "15m")
			t.Setenv("STRIDE_AUTO_ACTIVATE", "false")
			t.Setenv("STRIDE_METRICS_ENABLED", "false")
			t.Setenv("STRIDE_METRICS_REFRESH_INTERVAL", "30s")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.MinSamples, convey.ShouldEqual, 80)
				convey.So(cfg.TestFraction, convey.ShouldEqual, 0.25)
				convey.So(cfg.CleanupInterval, convey.ShouldEqual, 15*time.Minute)
				convey.So(cfg.AutoActivate, convey.ShouldBeFalse)
				convey.So(cfg.MetricsEnabled, convey.ShouldBeFalse)
				convey.So(cfg.MetricsRefreshInterval, convey.ShouldEqual, 30*time.Second)
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			tmpFile := createTempConfigFile(t, `
addr: ":7070"
database_path: "/tmp/stride-test.db"
worker_count: 3
confidence_min: 0.4
`)
			t.Setenv("STRIDE_CONFIG", tmpFile)
			t.Setenv("STRIDE_WORKER_COUNT", "6")

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":7070")
				convey.So(cfg.DatabasePath, convey.ShouldEqual, "/tmp/stride-test.db")
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 6)
				convey.So(cfg.ConfidenceMin, convey.ShouldEqual, 0.4)
				convey.So(cfg.ConfidenceMax, convey.ShouldEqual, 0.95)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			t.Setenv("STRIDE_CONFIG", createTempConfigFile(t, `invalid: yaml: content: [`))

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			cfg, err := config.LoadFile(ctx, "/non/existent/file.yaml")

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with empty addr", func() {
			t.Setenv("STRIDE_ADDR", "")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the confidence bounds are inverted", func() {
			t.Setenv("STRIDE_CONFIDENCE_MIN", "0.9")
			t.Setenv("STRIDE_CONFIDENCE_MAX", "0.6")

			_, err := config.Load(ctx)

			convey.Convey("Then validation rejects it", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			t.Setenv("STRIDE_MIN_SAMPLES", "not_a_number")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

func createTempConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stride.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func clearConfigEnvVars() {
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(key, config.EnvPrefix) {
			_ = os.Unsetenv(key)
		}
	}
}
