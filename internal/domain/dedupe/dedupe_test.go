package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/stride/internal/domain/dedupe"
)

func TestInMemoryDeduper(t *testing.T) {
	Convey("Given a new InMemoryDeduper", t, func() {
		ctx := context.Background()
		d := dedupe.NewInMemoryDeduper()
		So(d.Size(), ShouldEqual, 0)

		Convey("When a key is claimed", func() {
			seen := d.SeenAndRecord(ctx, "5k")

			Convey("Then it was new and is now held", func() {
				So(seen, ShouldBeFalse)
				So(d.Size(), ShouldEqual, 1)
				So(d.SeenAndRecord(ctx, "5k"), ShouldBeTrue)
				So(d.Size(), ShouldEqual, 1)
			})

			Convey("Then other keys are independent", func() {
				So(d.SeenAndRecord(ctx, "10k"), ShouldBeFalse)
				claims := d.Claims()
				So(claims, ShouldHaveLength, 2)
				So(claims[0].ID, ShouldEqual, "10k")
				So(claims[1].ID, ShouldEqual, "5k")
				So(claims[1].Since.IsZero(), ShouldBeFalse)
			})

			Convey("Then releasing it allows a new claim", func() {
				d.Unrecord(ctx, "5k")
				So(d.Size(), ShouldEqual, 0)
				So(d.SeenAndRecord(ctx, "5k"), ShouldBeFalse)
			})
		})

		Convey("When an unknown key is released", func() {
			So(func() { d.Unrecord(ctx, "marathon") }, ShouldNotPanic)
			So(d.Size(), ShouldEqual, 0)
		})

		Convey("When many goroutines race for the same keys", func() {
			var wins atomic.Int64
			var wg sync.WaitGroup
			for i := 0; i < 100; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					if !d.SeenAndRecord(ctx, fmt.Sprintf("event-%d", i%5)) {
						wins.Add(1)
					}
				}(i)
			}
			wg.Wait()

			Convey("Then exactly one claim per key succeeds", func() {
				So(wins.Load(), ShouldEqual, 5)
				So(d.Size(), ShouldEqual, 5)
			})
		})
	})
}
