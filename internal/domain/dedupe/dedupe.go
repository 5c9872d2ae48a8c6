// Package dedupe tracks which unordered candidate pairs a voter has already
// judged, per category.
package dedupe

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/okian/arena/internal/domain/model"
)

// PairKey returns the canonical key for an unordered pair: the two ids sorted
// lexicographically and joined with "|".
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

// Index is the voted-pairs set, one set of pair keys per votable category.
// The zero value is not usable; use NewIndex.
type Index struct {
	mu   sync.RWMutex
	sets map[model.Category]map[string]struct{}
	size atomic.Int64
}

// NewIndex creates an empty index with every votable category present.
func NewIndex() *Index {
	idx := &Index{}
	idx.resetLocked()
	return idx
}

func (x *Index) resetLocked() {
	x.sets = make(map[model.Category]map[string]struct{}, len(model.Votable))
	for _, c := range model.Votable {
		x.sets[c] = make(map[string]struct{})
	}
	x.size.Store(0)
}

// SeenAndRecord atomically checks whether the pair was recorded in category
// and records it if not. Returns true if it was already present.
// Non-votable categories are never recorded and report false.
func (x *Index) SeenAndRecord(_ context.Context, category model.Category, a, b string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	set, ok := x.sets[category]
	if !ok {
		return false
	}
	key := PairKey(a, b)
	if _, exists := set[key]; exists {
		return true
	}
	set[key] = struct{}{}
	x.size.Add(1)
	return false
}

// Has reports whether the unordered pair is recorded in category.
func (x *Index) Has(category model.Category, a, b string) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.sets[category][PairKey(a, b)]
	return ok
}

// Merge unions the given vote records into the index. Existing entries are
// never removed. Returns the number of pairs newly added.
func (x *Index) Merge(records []model.VoteRecord) int {
	x.mu.Lock()
	defer x.mu.Unlock()

	added := 0
	for _, r := range records {
		set, ok := x.sets[r.Category]
		if !ok {
			continue
		}
		key := PairKey(r.CandidateA, r.CandidateB)
		if _, exists := set[key]; !exists {
			set[key] = struct{}{}
			added++
		}
	}
	x.size.Add(int64(added))
	return added
}

// Keys returns the sorted pair keys recorded in category.
func (x *Index) Keys(category model.Category) []string {
	x.mu.RLock()
	defer x.mu.RUnlock()

	set := x.sets[category]
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Size returns the total number of recorded pairs across categories.
func (x *Index) Size() int64 {
	return x.size.Load()
}

// Reset clears every category.
func (x *Index) Reset() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.resetLocked()
}

// MarshalJSON encodes the index as {"agentic":{"a|b":true},...}. Every
// votable category is present even when empty.
func (x *Index) MarshalJSON() ([]byte, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	out := make(map[string]map[string]bool, len(model.Votable))
	for _, c := range model.Votable {
		m := make(map[string]bool, len(x.sets[c]))
		for k := range x.sets[c] {
			m[k] = true
		}
		out[c.String()] = m
	}
	return json.Marshal(out)
}

// UnmarshalJSON replaces the index content. Malformed input or a category
// outside the votable set fails with model.ErrLocalStateCorrupt and leaves
// the index unchanged.
func (x *Index) UnmarshalJSON(b []byte) error {
	var raw map[string]map[string]bool
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("%w: %w", model.ErrLocalStateCorrupt, err)
	}

	sets := make(map[model.Category]map[string]struct{}, len(model.Votable))
	for _, c := range model.Votable {
		sets[c] = make(map[string]struct{})
	}
	var n int64
	for name, pairs := range raw {
		c, err := model.ParseCategory(name)
		if err != nil || !c.IsVotable() {
			return fmt.Errorf("%w: unexpected category %q", model.ErrLocalStateCorrupt, name)
		}
		for k, voted := range pairs {
			if !voted {
				continue
			}
			sets[c][k] = struct{}{}
			n++
		}
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	x.sets = sets
	x.size.Store(n)
	return nil
}
