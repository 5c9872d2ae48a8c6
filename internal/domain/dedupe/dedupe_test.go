package dedupe_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/okian/arena/internal/domain/dedupe"
	"github.com/okian/arena/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestPairKey(t *testing.T) {
	Convey("Given two candidate ids", t, func() {
		Convey("Then the key is symmetric and sorted", func() {
			So(dedupe.PairKey("gpt", "claude"), ShouldEqual, "claude|gpt")
			So(dedupe.PairKey("claude", "gpt"), ShouldEqual, dedupe.PairKey("gpt", "claude"))
		})
	})
}

func TestIndex(t *testing.T) {
	Convey("Given a new index", t, func() {
		ctx := context.Background()
		idx := dedupe.NewIndex()
		So(idx.Size(), ShouldEqual, 0)

		Convey("When a pair is recorded in planning", func() {
			seen := idx.SeenAndRecord(ctx, model.Planning, "a", "b")

			Convey("Then it is new and visible in either order", func() {
				So(seen, ShouldBeFalse)
				So(idx.Has(model.Planning, "a", "b"), ShouldBeTrue)
				So(idx.Has(model.Planning, "b", "a"), ShouldBeTrue)
				So(idx.Size(), ShouldEqual, 1)
			})

			Convey("And other categories are unaffected", func() {
				So(idx.Has(model.Debugging, "a", "b"), ShouldBeFalse)
			})

			Convey("And recording the reversed pair reports it as seen", func() {
				So(idx.SeenAndRecord(ctx, model.Planning, "b", "a"), ShouldBeTrue)
				So(idx.Size(), ShouldEqual, 1)
			})
		})

		Convey("When recording under overall", func() {
			So(idx.SeenAndRecord(ctx, model.Overall, "a", "b"), ShouldBeFalse)
			So(idx.Has(model.Overall, "a", "b"), ShouldBeFalse)
			So(idx.Size(), ShouldEqual, 0)
		})

		Convey("When merging remote records", func() {
			idx.SeenAndRecord(ctx, model.Agentic, "x", "y")
			added := idx.Merge([]model.VoteRecord{
				{CandidateA: "y", CandidateB: "x", Category: model.Agentic},
				{CandidateA: "a", CandidateB: "c", Category: model.Explaining},
				{CandidateA: "a", CandidateB: "c", Category: model.Explaining},
			})

			Convey("Then only new pairs are added and nothing is removed", func() {
				So(added, ShouldEqual, 1)
				So(idx.Size(), ShouldEqual, 2)
				So(idx.Keys(model.Agentic), ShouldResemble, []string{"x|y"})
				So(idx.Keys(model.Explaining), ShouldResemble, []string{"a|c"})
			})
		})

		Convey("When reset", func() {
			idx.SeenAndRecord(ctx, model.Refactoring, "a", "b")
			idx.Reset()
			So(idx.Size(), ShouldEqual, 0)
			So(idx.Keys(model.Refactoring), ShouldBeEmpty)
		})
	})
}

func TestIndexJSON(t *testing.T) {
	Convey("Given an index with pairs in two categories", t, func() {
		idx := dedupe.NewIndex()
		idx.Merge([]model.VoteRecord{
			{CandidateA: "b", CandidateB: "a", Category: model.Planning},
			{CandidateA: "c", CandidateB: "d", Category: model.Debugging},
		})

		Convey("When serialised", func() {
			b, err := json.Marshal(idx)
			So(err, ShouldBeNil)

			var raw map[string]map[string]bool
			So(json.Unmarshal(b, &raw), ShouldBeNil)

			Convey("Then every category is present", func() {
				So(len(raw), ShouldEqual, 5)
				So(raw["planning"]["a|b"], ShouldBeTrue)
				So(raw["agentic"], ShouldBeEmpty)
			})

			Convey("And deserialising yields the same sets", func() {
				back := dedupe.NewIndex()
				So(json.Unmarshal(b, back), ShouldBeNil)
				for _, c := range model.Votable {
					So(back.Keys(c), ShouldResemble, idx.Keys(c))
				}
				So(back.Size(), ShouldEqual, 2)
			})
		})

		Convey("When deserialising malformed JSON", func() {
			err := json.Unmarshal([]byte(`{"planning":`), idx)

			Convey("Then the state is reported corrupt", func() {
				So(errors.Is(err, model.ErrLocalStateCorrupt), ShouldBeTrue)
			})
		})

		Convey("When deserialising an unknown category", func() {
			err := idx.UnmarshalJSON([]byte(`{"overall":{"a|b":true}}`))

			Convey("Then it is corrupt and the index is unchanged", func() {
				So(errors.Is(err, model.ErrLocalStateCorrupt), ShouldBeTrue)
				So(idx.Size(), ShouldEqual, 2)
			})
		})

		Convey("When some categories are missing", func() {
			back := dedupe.NewIndex()
			So(back.UnmarshalJSON([]byte(`{"agentic":{"a|b":true,"c|d":false}}`)), ShouldBeNil)
			So(back.Keys(model.Agentic), ShouldResemble, []string{"a|b"})
			So(back.Keys(model.Planning), ShouldBeEmpty)
		})
	})
}

func TestIndexConcurrency(t *testing.T) {
	Convey("Given many goroutines recording the same pair", t, func() {
		idx := dedupe.NewIndex()
		var wg sync.WaitGroup
		var mu sync.Mutex
		fresh := 0
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				a, b := "a", "b"
				if i%2 == 0 {
					a, b = b, a
				}
				if !idx.SeenAndRecord(context.Background(), model.Agentic, a, b) {
					mu.Lock()
					fresh++
					mu.Unlock()
				}
				idx.SeenAndRecord(context.Background(), model.Planning, fmt.Sprintf("p%d", i), "q")
			}(i)
		}
		wg.Wait()

		Convey("Then exactly one call wins", func() {
			So(fresh, ShouldEqual, 1)
			So(idx.Size(), ShouldEqual, 51)
		})
	})
}
