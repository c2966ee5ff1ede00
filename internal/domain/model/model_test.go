package model_test

import (
	"math"
	"testing"
	"time"

	"github.com/okian/stride/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestRecordPace(t *testing.T) {
	Convey("Given records", t, func() {
		r := model.Record{DistanceMeters: 5000, DurationSeconds: 1500}
		So(r.Pace(), ShouldEqual, 300)

		empty := model.Record{DurationSeconds: 100}
		So(empty.Pace(), ShouldEqual, 0)
	})
}

func TestProfile(t *testing.T) {
	Convey("Given a profile", t, func() {
		p := &model.Profile{BirthDate: time.Date(1990, 6, 15, 0, 0, 0, 0, time.UTC), Gender: " Male "}

		Convey("Age counts completed years", func() {
			So(p.AgeAt(time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)), ShouldEqual, 33)
			So(p.AgeAt(time.Date(2024, 6, 16, 0, 0, 0, 0, time.UTC)), ShouldEqual, 34)
		})

		Convey("Gender encoding is case-insensitive", func() {
			So(p.IsMale(), ShouldBeTrue)
			var nilProfile *model.Profile
			So(nilProfile.IsMale(), ShouldBeFalse)
			So(nilProfile.AgeAt(time.Now()), ShouldEqual, 0)
		})
	})
}

func TestFormatDuration(t *testing.T) {
	Convey("Durations format as H:MM:SS", t, func() {
		So(model.FormatDuration(1500), ShouldEqual, "0:25:00")
		So(model.FormatDuration(3725.4), ShouldEqual, "1:02:05")
		So(model.FormatDuration(-1), ShouldEqual, "0:00:00")
		So(model.FormatDuration(math.NaN()), ShouldEqual, "0:00:00")
	})
}
