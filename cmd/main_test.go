package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/stride/internal/adapters/http/api"
	app "github.com/okian/stride/internal/app"
	"github.com/okian/stride/internal/config"
	"github.com/okian/stride/pkg/logger"
)

func TestMainFunction(t *testing.T) {
	convey.Convey("Given the main application", t, func() {
		convey.Convey("When configuration comes from the environment", func() {
			t.Setenv("STRIDE_ADDR", ":8080")
			t.Setenv("STRIDE_QUEUE_SIZE", "16")
			t.Setenv("STRIDE_WORKER_COUNT", "2")

			convey.Convey("Then it is loadable", func() {
				cfg, err := config.Load(context.Background())
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 16)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 2)
			})
		})

		convey.Convey("When the address is blanked", func() {
			t.Setenv("STRIDE_ADDR", "")

			convey.Convey("Then loading fails validation", func() {
				cfg, err := config.Load(context.Background())
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

func TestMainApplicationComponents(t *testing.T) {
	convey.Convey("Given main application components", t, func() {
		svc := app.New(app.WithLogger(logger.Discard()))

		convey.Convey("When the metric updaters run until their context ends", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()

			convey.So(func() { startSystemMetricsUpdater(ctx) }, convey.ShouldNotPanic)
			convey.So(func() { startServiceMetricsUpdater(ctx, svc) }, convey.ShouldNotPanic)
			convey.So(updateSystemMetrics, convey.ShouldNotPanic)
			convey.So(func() { updateServiceMetrics(context.Background(), svc) }, convey.ShouldNotPanic)
		})
	})
}

func TestMainApplicationIntegration(t *testing.T) {
	convey.Convey("Given a started service behind the ops mux", t, func() {
		cfg := config.New()
		dir := t.TempDir()
		cfg.DatabasePath = filepath.Join(dir, "stride.db")
		cfg.ArtifactDir = filepath.Join(dir, "artifacts")
		cfg.WorkerCount = 1
		cfg.CleanupInterval = 0

		ctx := context.Background()
		svc := app.New(app.WithConfig(cfg), app.WithLogger(logger.Discard()))
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		mux := http.NewServeMux()
		api.NewServer(svc).Register(mux)

		convey.Convey("Then stats report a running service", func() {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stats", nil))
			convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
			convey.So(w.Body.String(), convey.ShouldContainSubstring, `"started":true`)
		})

		convey.Convey("Then models start empty", func() {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/models?event=5k", nil))
			convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
			convey.So(w.Body.String(), convey.ShouldContainSubstring, "[]")
		})
	})
}
