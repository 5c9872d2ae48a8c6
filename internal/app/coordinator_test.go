package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/okian/arena/internal/adapters/local"
	"github.com/okian/arena/internal/adapters/mq/queue"
	"github.com/okian/arena/internal/adapters/remote"
	"github.com/okian/arena/internal/adapters/repository"
	service "github.com/okian/arena/internal/app"
	"github.com/okian/arena/internal/domain/identity"
	"github.com/okian/arena/internal/domain/ledger"
	"github.com/okian/arena/internal/domain/model"
	"github.com/okian/arena/internal/domain/ratelimit"
	"github.com/okian/arena/internal/domain/report"
	. "github.com/smartystreets/goconvey/convey"
)

var bundled = []model.Candidate{
	{ID: "a", Name: "A", Company: "Acme", Ratings: model.DefaultRatings()},
	{ID: "b", Name: "B", Company: "Acme", Ratings: model.DefaultRatings()},
	{ID: "c", Name: "C", Company: "Other", Ratings: model.DefaultRatings()},
}

type harness struct {
	ctx     context.Context
	kv      *local.Memory
	remote  *remote.Memory
	catalog *repository.Catalog
	ledger  *ledger.Ledger
	feed    *report.Feed
	queue   *queue.InMemoryQueue
	coord   *service.Coordinator
}

func newHarness() *harness {
	h := &harness{
		ctx:     context.Background(),
		kv:      local.NewMemory(),
		remote:  remote.NewMemory(),
		catalog: repository.NewCatalog(),
		feed:    report.NewFeed(),
		queue:   queue.NewInMemoryQueue(queue.WithCapacity(8)),
	}
	ids := identity.New(h.kv, identity.WithGenerator(func() string { return "voter-1" }))
	limiter := ratelimit.New(h.kv)
	h.ledger = ledger.New(ledger.Deps{Local: h.kv, Reporter: h.feed})
	h.coord = service.NewCoordinator(service.CoordinatorDeps{
		Identity: ids,
		Ledger:   h.ledger,
		Limiter:  limiter,
		Remote:   h.remote,
		Catalog:  h.catalog,
		Queue:    h.queue,
		Reporter: h.feed,
		Bundled:  bundled,
	})
	return h
}

func titles(f *report.Feed) []string {
	var out []string
	for _, e := range f.List() {
		out = append(out, e.Title)
	}
	return out
}

func TestCoordinator_Initialize(t *testing.T) {
	Convey("Given an empty remote store", t, func() {
		h := newHarness()
		defer h.coord.Close()
		So(h.coord.State(), ShouldEqual, service.Uninitialized)

		Convey("When initializing", func() {
			err := h.coord.Initialize(h.ctx)

			Convey("Then the bundled catalog is seeded and loaded", func() {
				So(err, ShouldBeNil)
				So(h.coord.State(), ShouldEqual, service.Ready)
				So(h.catalog.Count(), ShouldEqual, 3)
				cs, _ := h.remote.FetchCandidates(h.ctx)
				So(len(cs), ShouldEqual, 3)
				So(h.remote.Subscribers(), ShouldEqual, 1)
				So(h.feed.List(), ShouldBeEmpty)
			})

			Convey("Then remote changes are queued for refresh", func() {
				So(h.remote.UpdateCandidateMetadata(h.ctx, model.Candidate{ID: "a", Name: "Alpha"}), ShouldBeNil)
				So(h.queue.Len(h.ctx), ShouldEqual, 1)
				ev := <-h.queue.Dequeue(h.ctx)
				So(ev.Kind, ShouldEqual, model.ChangeUpdate)
				So(ev.CandidateID, ShouldEqual, "a")
			})

			Convey("Then close ends the subscription", func() {
				h.coord.Close()
				So(h.remote.Subscribers(), ShouldEqual, 0)
			})
		})
	})

	Convey("Given remote vote history for the persisted identity", t, func() {
		h := newHarness()
		defer h.coord.Close()
		So(h.kv.Set(h.ctx, identity.Key, "voter-9", 0), ShouldBeNil)
		So(h.remote.InsertCandidates(h.ctx, bundled), ShouldBeNil)
		So(h.remote.InsertVoteRecord(h.ctx, model.VoteRecord{
			CandidateA: "c", CandidateB: "a", Category: model.Debugging, VoterID: "voter-9",
		}), ShouldBeNil)
		So(h.remote.InsertVoteRecord(h.ctx, model.VoteRecord{
			CandidateA: "a", CandidateB: "b", Category: model.Debugging, VoterID: "someone-else",
		}), ShouldBeNil)

		Convey("When initializing", func() {
			So(h.coord.Initialize(h.ctx), ShouldBeNil)

			Convey("Then only this identity's pairs are merged and persisted", func() {
				So(h.ledger.HasVoted("a", "c", model.Debugging), ShouldBeTrue)
				So(h.ledger.HasVoted("a", "b", model.Debugging), ShouldBeFalse)
				raw, ok, _ := h.kv.Get(h.ctx, ledger.KeyVotedPairs)
				So(ok, ShouldBeTrue)
				So(raw, ShouldContainSubstring, "a|c")
			})
		})
	})

	Convey("Given a remote store that cannot be read", t, func() {
		h := newHarness()
		defer h.coord.Close()
		down := errors.New("connection refused")
		h.remote.Fail(remote.OpFetchCandidates, down)
		h.remote.Fail(remote.OpFetchVotes, down)

		Convey("When initializing", func() {
			err := h.coord.Initialize(h.ctx)

			Convey("Then startup continues degraded on the bundled catalog", func() {
				So(errors.Is(err, down), ShouldBeTrue)
				So(h.coord.State(), ShouldEqual, service.Degraded)
				So(h.catalog.Count(), ShouldEqual, 3)
				So(h.remote.Subscribers(), ShouldEqual, 1)
				So(titles(h.feed), ShouldContain, service.TitleHistoryFailed)
				So(titles(h.feed), ShouldContain, service.TitleSeedFailed)
				So(titles(h.feed), ShouldContain, service.TitleCatalogFailed)
			})

			Convey("And the remote recovers before a resync", func() {
				h.remote.Fail(remote.OpFetchCandidates, nil)
				h.remote.Fail(remote.OpFetchVotes, nil)
				So(h.remote.InsertCandidates(h.ctx, []model.Candidate{{ID: "z", Name: "Z", Ratings: model.DefaultRatings()}}), ShouldBeNil)

				Convey("Then the remote catalog replaces the bundled one", func() {
					So(h.coord.Resync(h.ctx), ShouldBeNil)
					So(h.coord.State(), ShouldEqual, service.Ready)
					So(h.catalog.Count(), ShouldEqual, 1)
					_, ok := h.catalog.Get("z")
					So(ok, ShouldBeTrue)
				})
			})
		})
	})

	Convey("Given corrupt local vote history", t, func() {
		h := newHarness()
		defer h.coord.Close()
		So(h.kv.Set(h.ctx, ledger.KeyVotedPairs, "[", 0), ShouldBeNil)

		Convey("When initializing", func() {
			err := h.coord.Initialize(h.ctx)

			Convey("Then the history resets and the other steps still run", func() {
				So(errors.Is(err, model.ErrLocalStateCorrupt), ShouldBeTrue)
				So(h.coord.State(), ShouldEqual, service.Degraded)
				So(h.ledger.Size(), ShouldEqual, 0)
				So(h.catalog.Count(), ShouldEqual, 3)
				So(titles(h.feed), ShouldContain, ledger.TitleLocalCorrupt)
			})
		})
	})
}

func TestCoordinator_Refresh(t *testing.T) {
	Convey("Given a loaded catalog", t, func() {
		h := newHarness()
		defer h.coord.Close()
		So(h.coord.Initialize(h.ctx), ShouldBeNil)

		Convey("When the remote fails on a later refresh", func() {
			So(h.remote.UpdateCandidateMetadata(h.ctx, model.Candidate{ID: "a", Name: "Alpha"}), ShouldBeNil)
			So(h.coord.Refresh(h.ctx), ShouldBeNil)
			h.remote.Fail(remote.OpFetchCandidates, errors.New("timeout"))
			err := h.coord.Refresh(h.ctx)

			Convey("Then the cached catalog is kept", func() {
				So(err, ShouldNotBeNil)
				a, ok := h.catalog.Get("a")
				So(ok, ShouldBeTrue)
				So(a.Name, ShouldEqual, "Alpha")
			})
		})
	})
}

func TestCoordinator_ResetIdentity(t *testing.T) {
	Convey("Given an identity with voted pairs", t, func() {
		h := newHarness()
		defer h.coord.Close()
		So(h.coord.Initialize(h.ctx), ShouldBeNil)
		_, err := h.ledger.Merge(h.ctx, []model.VoteRecord{{CandidateA: "a", CandidateB: "b", Category: model.Planning}})
		So(err, ShouldBeNil)

		Convey("When the identity is reset", func() {
			id, err := h.coord.ResetIdentity(h.ctx)

			Convey("Then a new token is issued and local pairs are forgotten", func() {
				So(err, ShouldBeNil)
				So(id, ShouldEqual, "voter-1")
				So(h.ledger.HasVoted("a", "b", model.Planning), ShouldBeFalse)
				_, ok, _ := h.kv.Get(h.ctx, ledger.KeyVotedPairs)
				So(ok, ShouldBeFalse)
			})
		})
	})
}
