package worker_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/stride/internal/adapters/mq/queue"
	"github.com/okian/stride/internal/adapters/mq/worker"
	"github.com/okian/stride/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

type mockQueue struct {
	jobs      chan queue.Job
	closeOnce sync.Once
}

func newMockQueue() *mockQueue {
	return &mockQueue{jobs: make(chan queue.Job, 10)}
}

func (mq *mockQueue) Dequeue(context.Context) <-chan queue.Job { return mq.jobs }

func (mq *mockQueue) Close() error {
	mq.closeOnce.Do(func() { close(mq.jobs) })
	return nil
}

type mockHandler struct {
	mu   sync.Mutex
	seen []model.TrainJob
	err  error
}

func (h *mockHandler) Handle(_ context.Context, j worker.Job) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, j)
	return h.err
}

func (h *mockHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.seen)
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a new InMemoryWorker", t, func() {
		q := newMockQueue()
		h := &mockHandler{}
		w := worker.NewInMemoryWorker(q, h, worker.WithName("trainer-0"))

		convey.Convey("When jobs are queued", func() {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go w.Run(ctx)

			q.jobs <- model.TrainJob{ID: "a", Event: "5k"}
			q.jobs <- model.TrainJob{ID: "b", Event: "10k"}

			convey.Convey("Then the handler sees each one in order", func() {
				convey.So(waitFor(func() bool { return h.count() == 2 }), convey.ShouldBeTrue)
				convey.So(h.seen[0].ID, convey.ShouldEqual, "a")
				convey.So(h.seen[1].Event, convey.ShouldEqual, "10k")
				convey.So(w.Shutdown(context.Background()), convey.ShouldBeNil)
			})
		})

		convey.Convey("When a job fails", func() {
			h.err = errors.New("history unavailable")
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go w.Run(ctx)

			q.jobs <- model.TrainJob{ID: "x", Event: "5k"}
			q.jobs <- model.TrainJob{ID: "y", Event: "5k"}

			convey.Convey("Then the worker keeps consuming", func() {
				convey.So(waitFor(func() bool { return h.count() == 2 }), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the handler panics", func() {
			var calls atomic.Int32
			pw := worker.NewInMemoryWorker(q, worker.HandlerFunc(func(context.Context, worker.Job) error {
				if calls.Add(1) == 1 {
					panic("boom")
				}
				return nil
			}))
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go pw.Run(ctx)

			q.jobs <- model.TrainJob{ID: "p"}
			q.jobs <- model.TrainJob{ID: "q"}

			convey.Convey("Then the panic is contained", func() {
				convey.So(waitFor(func() bool { return calls.Load() == 2 }), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the context is canceled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			go w.Run(ctx)
			cancel()

			convey.Convey("Then Run returns", func() {
				select {
				case <-w.Done():
				case <-time.After(time.Second):
					convey.So("worker did not stop", convey.ShouldBeEmpty)
				}
			})
		})

		convey.Convey("When the queue is closed", func() {
			go w.Run(context.Background())
			convey.So(q.Close(), convey.ShouldBeNil)

			convey.Convey("Then Run returns", func() {
				select {
				case <-w.Done():
				case <-time.After(time.Second):
					convey.So("worker did not stop", convey.ShouldBeEmpty)
				}
			})
		})

		convey.Convey("When shutdown is called twice", func() {
			go w.Run(context.Background())
			convey.So(w.Shutdown(context.Background()), convey.ShouldBeNil)
			convey.So(w.Shutdown(context.Background()), convey.ShouldBeNil)
		})

		convey.Convey("When shutdown times out", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			convey.Convey("Then an error is returned", func() {
				convey.So(w.Shutdown(ctx), convey.ShouldNotBeNil)
			})
		})
	})
}

func TestWorkerPool(t *testing.T) {
	convey.Convey("Given a pool over a real in-memory queue", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(16))
		h := &mockHandler{}
		pool := worker.NewPool(3, q, h)

		convey.So(pool.Size(), convey.ShouldEqual, 3)

		convey.Convey("When jobs are enqueued after start", func() {
			ctx := context.Background()
			pool.Start(ctx)
			for i := 0; i < 6; i++ {
				convey.So(q.Enqueue(ctx, model.TrainJob{ID: string(rune('a' + i)), Event: "5k"}), convey.ShouldBeNil)
			}

			convey.Convey("Then every job is handled and shutdown closes the queue", func() {
				convey.So(waitFor(func() bool { return h.count() == 6 }), convey.ShouldBeTrue)
				convey.So(pool.Shutdown(ctx), convey.ShouldBeNil)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When shutdown starts while jobs are still queued", func() {
			release := make(chan struct{})
			var handled atomic.Int32
			slow := worker.NewPool(1, q, worker.HandlerFunc(func(context.Context, worker.Job) error {
				<-release
				handled.Add(1)
				return nil
			}))
			ctx := context.Background()
			slow.Start(ctx)
			for _, id := range []string{"a", "b", "c"} {
				convey.So(q.Enqueue(ctx, model.TrainJob{ID: id, Event: "5k"}), convey.ShouldBeNil)
			}

			done := make(chan error, 1)
			go func() { done <- slow.Shutdown(ctx) }()
			time.Sleep(20 * time.Millisecond)
			close(release)

			convey.Convey("Then every accepted job runs before shutdown returns", func() {
				select {
				case err := <-done:
					convey.So(err, convey.ShouldBeNil)
				case <-time.After(2 * time.Second):
					convey.So("pool did not stop", convey.ShouldBeEmpty)
				}
				convey.So(handled.Load(), convey.ShouldEqual, 3)
			})
		})

		convey.Convey("When a running job outlives the shutdown deadline", func() {
			var started, cancelled atomic.Bool
			stuck := worker.NewPool(1, q, worker.HandlerFunc(func(ctx context.Context, _ worker.Job) error {
				started.Store(true)
				<-ctx.Done()
				cancelled.Store(true)
				return ctx.Err()
			}))
			stuck.Start(context.Background())
			convey.So(q.Enqueue(context.Background(), model.TrainJob{ID: "slow", Event: "marathon"}), convey.ShouldBeNil)
			convey.So(waitFor(started.Load), convey.ShouldBeTrue)

			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()

			convey.Convey("Then shutdown reports it and the job is cancelled", func() {
				convey.So(stuck.Shutdown(ctx), convey.ShouldNotBeNil)
				convey.So(waitFor(cancelled.Load), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When a non-positive count is given", func() {
			p := worker.NewPool(0, newMockQueue(), h)

			convey.Convey("Then one worker is created", func() {
				convey.So(p.Size(), convey.ShouldEqual, 1)
			})
		})
	})
}

func TestWorkerOptions(t *testing.T) {
	convey.Convey("Options tolerate empty values", t, func() {
		w := worker.NewInMemoryWorker(newMockQueue(), &mockHandler{}, worker.WithName(""), worker.WithLogger(nil))
		convey.So(w, convey.ShouldNotBeNil)
	})
}
