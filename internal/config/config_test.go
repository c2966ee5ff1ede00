package config_test

import (
	"runtime"
	"testing"
	"time"

	"github.com/okian/stride/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.MinSamples, convey.ShouldEqual, 50)
			convey.So(cfg.TestFraction, convey.ShouldEqual, 0.2)
			convey.So(cfg.RandomSeed, convey.ShouldEqual, 42)
			convey.So(cfg.TrainingLookbackWeeks, convey.ShouldEqual, 12)
			convey.So(cfg.ConfidenceMin, convey.ShouldEqual, 0.5)
			convey.So(cfg.ConfidenceMax, convey.ShouldEqual, 0.95)
			convey.So(cfg.FallbackConfidence, convey.ShouldEqual, 0.3)
			convey.So(cfg.UnknownConfidence, convey.ShouldEqual, 0.1)
			convey.So(cfg.CleanupInterval, convey.ShouldEqual, 6*time.Hour)
		})

		convey.Convey("Then the defaults validate", func() {
			convey.So(config.Validate(cfg), convey.ShouldBeNil)
		})
	})
}
