package repository_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/okian/arena/internal/adapters/repository"
	"github.com/okian/arena/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func cand(id string, overall, planning int, cost float64) model.Candidate {
	r := model.DefaultRatings()
	r.Overall = overall
	r.Planning = planning
	return model.Candidate{ID: id, Name: id, CostCredits: cost, ContextWindow: 1000, Ratings: r}
}

func ids(entries []repository.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Candidate.ID
	}
	return out
}

func TestCatalogBasics(t *testing.T) {
	Convey("Given a catalog with three candidates", t, func() {
		ctx := context.Background()
		c := repository.NewCatalog(repository.WithCandidates(
			cand("a", 1010, 990, 2),
			cand("b", 1030, 1000, 0.5),
			cand("c", 1020, 1050, 1),
		))

		Convey("Then lookups and counts work", func() {
			So(c.Count(), ShouldEqual, 3)
			got, ok := c.Get("b")
			So(ok, ShouldBeTrue)
			So(got.Ratings.Overall, ShouldEqual, 1030)
			_, ok = c.Get("z")
			So(ok, ShouldBeFalse)
			So(ids(mustTop(c, repository.SortOverall, 10, false)), ShouldResemble, []string{"b", "c", "a"})
		})

		Convey("When ranking by a category", func() {
			top := mustTop(c, repository.ForCategory(model.Planning), 2, false)

			Convey("Then the category order is used and limited", func() {
				So(ids(top), ShouldResemble, []string{"c", "b"})
				So(top[0].Rank, ShouldEqual, 1)
				So(top[0].Value, ShouldEqual, 1050)
			})
		})

		Convey("When ranking by cost ascending", func() {
			top := mustTop(c, repository.SortCostCredits, 3, true)
			So(ids(top), ShouldResemble, []string{"b", "c", "a"})
			So(top[0].Value, ShouldEqual, 0.5)
		})

		Convey("When a candidate is updated", func() {
			updated := cand("a", 1040, 990, 2)
			updated.VoteCount = 4
			c.Upsert(updated)

			Convey("Then every view reflects the new values", func() {
				So(ids(mustTop(c, repository.SortOverall, 3, false)), ShouldResemble, []string{"a", "b", "c"})
				e, err := c.Rank(ctx, repository.SortOverall, "a")
				So(err, ShouldBeNil)
				So(e.Rank, ShouldEqual, 1)
				So(e.Candidate.VoteCount, ShouldEqual, 4)
				So(c.Count(), ShouldEqual, 3)
			})
		})

		Convey("When replaced", func() {
			c.Replace(ctx, []model.Candidate{cand("x", 1000, 1000, 1)})
			So(c.Count(), ShouldEqual, 1)
			So(ids(mustTop(c, repository.SortOverall, 5, false)), ShouldResemble, []string{"x"})
			So(c.All()[0].ID, ShouldEqual, "x")
		})

		Convey("When asking for an invalid limit or key", func() {
			_, err := c.TopN(ctx, repository.SortOverall, 0, false)
			So(err, ShouldEqual, repository.ErrInvalidLimit)
			_, err = c.TopN(ctx, repository.SortKey(99), 1, false)
			So(err, ShouldEqual, repository.ErrInvalidSortKey)
			_, err = c.Rank(ctx, repository.SortOverall, "missing")
			So(err, ShouldEqual, repository.ErrNotFound)
		})
	})
}

func TestCatalogTies(t *testing.T) {
	Convey("Given candidates sharing a rating", t, func() {
		c := repository.NewCatalog(repository.WithCandidates(
			cand("d", 1000, 1000, 1),
			cand("b", 1000, 1000, 1),
			cand("a", 1100, 1000, 1),
		))
		top := mustTop(c, repository.SortOverall, 3, false)

		Convey("Then ties share a rank and are ordered by id", func() {
			So(ids(top), ShouldResemble, []string{"a", "b", "d"})
			So(top[0].Rank, ShouldEqual, 1)
			So(top[1].Rank, ShouldEqual, 2)
			So(top[2].Rank, ShouldEqual, 2)
		})
	})
}

func TestParseSortKey(t *testing.T) {
	Convey("Given sort key names", t, func() {
		k, err := repository.ParseSortKey("contextwindow")
		So(err, ShouldBeNil)
		So(k, ShouldEqual, repository.SortContextWindow)
		k, err = repository.ParseSortKey("")
		So(err, ShouldBeNil)
		So(k, ShouldEqual, repository.SortOverall)
		So(repository.SortExplaining.String(), ShouldEqual, "explaining")
		_, err = repository.ParseSortKey("price")
		So(err, ShouldNotBeNil)
	})
}

func TestCatalogConcurrentUpserts(t *testing.T) {
	Convey("Given concurrent upserts and reads", t, func() {
		c := repository.NewCatalog()
		var wg sync.WaitGroup
		for w := 0; w < 8; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := 0; i < 100; i++ {
					c.Upsert(cand(fmt.Sprintf("m%02d", i%20), 900+w*10+i, 1000, 1))
					_, _ = c.TopN(context.Background(), repository.SortOverall, 5, false)
				}
			}(w)
		}
		wg.Wait()

		Convey("Then every view holds each candidate exactly once", func() {
			So(c.Count(), ShouldEqual, 20)
			for k := repository.SortOverall; k <= repository.SortSpeed; k++ {
				So(len(mustTop(c, k, 100, false)), ShouldEqual, 20)
			}
		})
	})
}

func mustTop(c *repository.Catalog, key repository.SortKey, n int, asc bool) []repository.Entry {
	out, err := c.TopN(context.Background(), key, n, asc)
	So(err, ShouldBeNil)
	return out
}
