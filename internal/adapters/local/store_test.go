package local_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/okian/arena/internal/adapters/local"
	. "github.com/smartystreets/goconvey/convey"
)

func exerciseStore(ctx context.Context, s local.Store, clock *clockwork.FakeClock) {
	Convey("When a key is absent", func() {
		_, ok, err := s.Get(ctx, "missing")
		So(err, ShouldBeNil)
		So(ok, ShouldBeFalse)
	})

	Convey("When a key is written without expiry", func() {
		So(s.Set(ctx, "arena_voter_id", "abc", 0), ShouldBeNil)
		clock.Advance(10 * 365 * 24 * time.Hour)
		v, ok, err := s.Get(ctx, "arena_voter_id")

		Convey("Then it is readable forever", func() {
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			So(v, ShouldEqual, "abc")
		})

		Convey("And overwriting replaces the value", func() {
			So(s.Set(ctx, "arena_voter_id", "def", 0), ShouldBeNil)
			v, _, _ := s.Get(ctx, "arena_voter_id")
			So(v, ShouldEqual, "def")
		})

		Convey("And deleting removes it", func() {
			So(s.Delete(ctx, "arena_voter_id"), ShouldBeNil)
			_, ok, _ := s.Get(ctx, "arena_voter_id")
			So(ok, ShouldBeFalse)
		})
	})

	Convey("When a key is written with a TTL", func() {
		So(s.Set(ctx, "pairs", "{}", time.Hour), ShouldBeNil)

		Convey("Then it is readable before expiry", func() {
			clock.Advance(59 * time.Minute)
			_, ok, err := s.Get(ctx, "pairs")
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
		})

		Convey("And gone once the TTL elapses", func() {
			clock.Advance(time.Hour)
			_, ok, err := s.Get(ctx, "pairs")
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)
		})
	})
}

func TestMemoryStore(t *testing.T) {
	Convey("Given an in-memory store", t, func() {
		ctx := context.Background()
		clock := clockwork.NewFakeClock()
		s := local.NewMemory(local.WithMemoryClock(clock))

		exerciseStore(ctx, s, clock)

		Convey("When closed", func() {
			So(s.Close(), ShouldBeNil)
			_, _, err := s.Get(ctx, "x")
			So(err, ShouldEqual, local.ErrClosed)
			So(s.Set(ctx, "x", "y", 0), ShouldEqual, local.ErrClosed)
		})
	})
}

func TestSQLiteStore(t *testing.T) {
	Convey("Given a SQLite store in a temp dir", t, func() {
		ctx := context.Background()
		clock := clockwork.NewFakeClock()
		path := filepath.Join(t.TempDir(), "state.db")
		s, err := local.OpenSQLite(ctx, path, local.WithSQLiteClock(clock))
		So(err, ShouldBeNil)
		defer func() { _ = s.Close() }()

		exerciseStore(ctx, s, clock)

		Convey("When the database is reopened", func() {
			So(s.Set(ctx, "arena_hourly_vote_count", "7", 0), ShouldBeNil)
			So(s.Close(), ShouldBeNil)

			again, err := local.OpenSQLite(ctx, path, local.WithSQLiteClock(clock))
			So(err, ShouldBeNil)
			defer func() { _ = again.Close() }()

			Convey("Then values survive", func() {
				v, ok, err := again.Get(ctx, "arena_hourly_vote_count")
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(v, ShouldEqual, "7")
			})
		})
	})
}
