package report_test

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/okian/arena/internal/domain/report"
	. "github.com/smartystreets/goconvey/convey"
)

func TestFeed(t *testing.T) {
	Convey("Given an empty feed", t, func() {
		ctx := context.Background()
		clock := clockwork.NewFakeClock()
		f := report.NewFeed(report.WithClock(clock), report.WithCapacity(3))
		So(f.List(), ShouldBeEmpty)

		Convey("When two notices are reported", func() {
			f.Report(ctx, "Invalid Vote", "unknown candidate", 0)
			clock.Advance(time.Millisecond)
			f.Report(ctx, "Rate Limit Exceeded", "slow down", 3*time.Second)
			list := f.List()

			Convey("Then the newest comes first with distinct ids", func() {
				So(len(list), ShouldEqual, 2)
				So(list[0].Title, ShouldEqual, "Rate Limit Exceeded")
				So(list[1].Title, ShouldEqual, "Invalid Vote")
				So(list[0].ID, ShouldNotEqual, list[1].ID)
			})

			Convey("And the shorter notice expires first", func() {
				clock.Advance(3 * time.Second)
				list := f.List()
				So(len(list), ShouldEqual, 1)
				So(list[0].Title, ShouldEqual, "Invalid Vote")
			})

			Convey("And the default dismissal is five seconds", func() {
				clock.Advance(report.DefaultDismiss)
				So(f.List(), ShouldBeEmpty)
			})

			Convey("And a notice can be dismissed by id", func() {
				So(f.Dismiss(list[1].ID), ShouldBeTrue)
				So(f.Dismiss("unknown"), ShouldBeFalse)
				So(len(f.List()), ShouldEqual, 1)
			})

			Convey("And clear drops everything", func() {
				f.Clear()
				So(f.List(), ShouldBeEmpty)
			})
		})

		Convey("When a sticky notice is reported", func() {
			f.Report(ctx, "Sync Failed", "remote down", -1)
			clock.Advance(24 * time.Hour)
			So(len(f.List()), ShouldEqual, 1)
		})

		Convey("When more notices than the capacity arrive", func() {
			for _, title := range []string{"a", "b", "c", "d"} {
				f.Report(ctx, title, "", -1)
			}
			list := f.List()

			Convey("Then the oldest are dropped", func() {
				So(len(list), ShouldEqual, 3)
				So(list[0].Title, ShouldEqual, "d")
				So(list[2].Title, ShouldEqual, "b")
			})
		})
	})
}
