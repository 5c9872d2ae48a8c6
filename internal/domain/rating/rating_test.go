package rating_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/arena/internal/domain/model"
	"github.com/okian/arena/internal/domain/rating"
	. "github.com/smartystreets/goconvey/convey"
)

type mapCatalog struct {
	mu sync.Mutex
	m  map[string]model.Candidate
}

func (c *mapCatalog) Get(id string) (model.Candidate, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[id]
	return v, ok
}

func (c *mapCatalog) Upsert(v model.Candidate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[v.ID] = v
}

type recordingPersister struct {
	mu     sync.Mutex
	calls  map[string]model.Ratings
	failID string
}

func (p *recordingPersister) UpdateCandidateRating(_ context.Context, id string, r model.Ratings, _ int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id == p.failID {
		return errors.New("connection reset")
	}
	p.calls[id] = r
	return nil
}

// slowPersister fails failID at once and writes every other id after delay
// unless ctx ends first.
type slowPersister struct {
	recordingPersister
	delay time.Duration
}

func (p *slowPersister) UpdateCandidateRating(ctx context.Context, id string, r model.Ratings, n int) error {
	if id != p.failID {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return p.recordingPersister.UpdateCandidateRating(ctx, id, r, n)
}

func newCatalog() *mapCatalog {
	return &mapCatalog{m: map[string]model.Candidate{
		"a": {ID: "a", Ratings: model.DefaultRatings()},
		"b": {ID: "b", Ratings: model.DefaultRatings()},
	}}
}

func TestExpectedAndUpdate(t *testing.T) {
	Convey("Given two equally rated candidates", t, func() {
		So(rating.Expected(1000, 1000), ShouldEqual, 0.5)

		Convey("When A wins", func() {
			na, nb := rating.Update(1000, 1000, model.AWins)

			Convey("Then A gains 16 and B loses 16", func() {
				So(na, ShouldEqual, 1016)
				So(nb, ShouldEqual, 984)
			})
		})

		Convey("When B wins", func() {
			na, nb := rating.Update(1000, 1000, model.BWins)
			So(na, ShouldEqual, 984)
			So(nb, ShouldEqual, 1016)
		})
	})

	Convey("Given an underdog", t, func() {
		Convey("When the underdog wins", func() {
			na, nb := rating.Update(1200, 1000, model.BWins)

			Convey("Then it gains more than half of K", func() {
				So(nb-1000, ShouldBeGreaterThan, rating.KFactor/2)
				So(na, ShouldBeLessThan, 1200)
			})
		})

		Convey("When the favourite wins", func() {
			na, nb := rating.Update(1200, 1000, model.AWins)

			Convey("Then the winner never loses rating and the loser never gains", func() {
				So(na, ShouldBeGreaterThanOrEqualTo, 1200)
				So(nb, ShouldBeLessThanOrEqualTo, 1000)
			})
		})
	})
}

func TestEngineApplyOutcome(t *testing.T) {
	Convey("Given an engine over a two-candidate catalog", t, func() {
		ctx := context.Background()
		catalog := newCatalog()
		store := &recordingPersister{calls: map[string]model.Ratings{}}
		engine := rating.NewEngine(catalog, store)

		Convey("When A wins a planning vote", func() {
			a, b, err := engine.ApplyOutcome(ctx, "a", "b", model.AWins, model.Planning)

			Convey("Then only planning and overall move", func() {
				So(err, ShouldBeNil)
				So(a.Ratings.Planning, ShouldEqual, 1016)
				So(b.Ratings.Planning, ShouldEqual, 984)
				So(a.Ratings.Overall, ShouldEqual, 1003)
				So(b.Ratings.Overall, ShouldEqual, 997)
				So(a.Ratings.Debugging, ShouldEqual, model.DefaultRating)
			})

			Convey("And both vote counts and the catalog are updated", func() {
				So(a.VoteCount, ShouldEqual, 1)
				So(b.VoteCount, ShouldEqual, 1)
				stored, _ := catalog.Get("a")
				So(stored, ShouldResemble, a)
			})

			Convey("And both candidates are persisted", func() {
				So(store.calls["a"], ShouldResemble, a.Ratings)
				So(store.calls["b"], ShouldResemble, b.Ratings)
			})
		})

		Convey("When persisting one side fails", func() {
			store.failID = "b"
			a, _, err := engine.ApplyOutcome(ctx, "a", "b", model.BWins, model.Debugging)

			Convey("Then ErrRatingPersistFailed is returned and the catalog keeps the update", func() {
				So(errors.Is(err, model.ErrRatingPersistFailed), ShouldBeTrue)
				stored, _ := catalog.Get("a")
				So(stored.Ratings.Debugging, ShouldEqual, 984)
				So(a.Ratings.Debugging, ShouldEqual, 984)
			})
		})

		Convey("When one side fails fast while the other is still writing", func() {
			slow := &slowPersister{
				recordingPersister: recordingPersister{calls: map[string]model.Ratings{}, failID: "a"},
				delay:              50 * time.Millisecond,
			}
			_, b, err := rating.NewEngine(catalog, slow).ApplyOutcome(ctx, "a", "b", model.BWins, model.Agentic)

			Convey("Then the other side is still persisted", func() {
				So(errors.Is(err, model.ErrRatingPersistFailed), ShouldBeTrue)
				So(slow.calls, ShouldContainKey, "b")
				So(slow.calls["b"], ShouldResemble, b.Ratings)
				So(slow.calls, ShouldNotContainKey, "a")
			})
		})

		Convey("When a candidate is missing", func() {
			_, _, err := engine.ApplyOutcome(ctx, "a", "zzz", model.AWins, model.Agentic)
			So(errors.Is(err, model.ErrUnknownCandidate), ShouldBeTrue)
		})

		Convey("When targeting overall", func() {
			_, _, err := engine.ApplyOutcome(ctx, "a", "b", model.AWins, model.Overall)
			So(errors.Is(err, model.ErrInvalidCategory), ShouldBeTrue)
		})
	})
}
