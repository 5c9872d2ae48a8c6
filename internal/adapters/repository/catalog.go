package repository

import (
	"context"
	"hash/fnv"
	"math"
	"slices"
	"sort"
	"sync"

	"github.com/okian/arena/internal/domain/model"
	"github.com/okian/arena/pkg/metrics"
)

// One treap per SortKey, ordered value DESC then id ASC so that an in-order
// walk yields the leaderboard from best to worst.

// valueScale converts float values to fixed point with 6 decimal places.
const valueScale = 1_000_000

type valueFP int64

func toFixedPoint(x float64) valueFP {
	switch {
	case math.IsNaN(x):
		return 0
	case x*valueScale >= math.MaxInt64:
		return valueFP(math.MaxInt64)
	case x*valueScale <= math.MinInt64:
		return valueFP(math.MinInt64)
	}
	return valueFP(math.Round(x * valueScale))
}

func toFloat(x valueFP) float64 {
	return float64(x) / valueScale
}

type node struct {
	id    string
	value valueFP
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less reports whether (av, aID) ranks before (bv, bID).
func less(av valueFP, aID string, bv valueFP, bID string) bool {
	if av != bv {
		return av > bv
	}
	return aID < bID
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

// idPriority derives a stable heap priority from the id so tree shape does
// not depend on insertion order.
func idPriority(id string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	return h.Sum64()
}

func insert(n *node, id string, v valueFP) *node {
	if n == nil {
		return &node{id: id, value: v, prio: idPriority(id), size: 1}
	}
	if less(v, id, n.value, n.id) {
		n.left = insert(n.left, id, v)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, id, v)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, id string, v valueFP) *node {
	if n == nil {
		return nil
	}
	switch {
	case v == n.value && id == n.id:
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, id, v)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, id, v)
		}
	case less(v, id, n.value, n.id):
		n.left = deleteNode(n.left, id, v)
	default:
		n.right = deleteNode(n.right, id, v)
	}
	fix(n)
	return n
}

// collectTopN appends up to limit ids in rank order.
func collectTopN(n *node, limit int, out *[]*node) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectTopN(n.left, limit, out)
	if len(*out) < limit {
		*out = append(*out, n)
	}
	if len(*out) < limit {
		collectTopN(n.right, limit, out)
	}
}

// Catalog is the shared in-memory candidate set. Every mutation keeps the
// per-key treaps in sync with the candidate map.
type Catalog struct {
	mu    sync.RWMutex
	byID  map[string]model.Candidate
	trees [sortKeyCount]*node
}

// NewCatalog constructs an empty catalog.
func NewCatalog(opts ...Option) *Catalog {
	c := &Catalog{byID: make(map[string]model.Candidate)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Replace swaps the whole catalog content for cs.
func (c *Catalog) Replace(_ context.Context, cs []model.Candidate) {
	c.mu.Lock()
	c.byID = make(map[string]model.Candidate, len(cs))
	c.trees = [sortKeyCount]*node{}
	for _, cand := range cs {
		c.upsertLocked(cand)
	}
	n := len(c.byID)
	c.mu.Unlock()
	metrics.UpdateCatalogSize(n)
}

// Get returns a candidate by id.
func (c *Catalog) Get(id string) (model.Candidate, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cand, ok := c.byID[id]
	return cand, ok
}

// Upsert inserts or replaces a candidate in every view.
func (c *Catalog) Upsert(cand model.Candidate) {
	c.mu.Lock()
	c.upsertLocked(cand)
	n := len(c.byID)
	c.mu.Unlock()
	metrics.UpdateCatalogSize(n)
}

func (c *Catalog) upsertLocked(cand model.Candidate) {
	if old, ok := c.byID[cand.ID]; ok {
		for k := SortKey(0); k < sortKeyCount; k++ {
			c.trees[k] = deleteNode(c.trees[k], old.ID, toFixedPoint(k.value(old)))
		}
	}
	c.byID[cand.ID] = cand
	for k := SortKey(0); k < sortKeyCount; k++ {
		c.trees[k] = insert(c.trees[k], cand.ID, toFixedPoint(k.value(cand)))
	}
}

// All returns every candidate ordered by id.
func (c *Catalog) All() []model.Candidate {
	c.mu.RLock()
	out := make([]model.Candidate, 0, len(c.byID))
	for _, cand := range c.byID {
		out = append(out, cand)
	}
	c.mu.RUnlock()
	slices.SortFunc(out, func(a, b model.Candidate) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out
}

// Count returns the number of candidates.
func (c *Catalog) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byID)
}

// TopN returns the first n rows of the key view. Descending order puts the
// highest value first; ascending reverses it. Ties share a rank and are
// ordered by id.
func (c *Catalog) TopN(_ context.Context, key SortKey, n int, ascending bool) ([]Entry, error) {
	if n < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	}
	if key >= sortKeyCount {
		return nil, ErrInvalidSortKey
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	var nodes []*node
	if ascending {
		collectTopN(c.trees[key], len(c.byID), &nodes)
		slices.Reverse(nodes)
		sort.SliceStable(nodes, func(i, j int) bool {
			if nodes[i].value != nodes[j].value {
				return nodes[i].value < nodes[j].value
			}
			return nodes[i].id < nodes[j].id
		})
		if len(nodes) > n {
			nodes = nodes[:n]
		}
	} else {
		collectTopN(c.trees[key], n, &nodes)
	}

	out := make([]Entry, len(nodes))
	for i, nd := range nodes {
		out[i] = Entry{Value: toFloat(nd.value), Candidate: c.byID[nd.id]}
	}
	assignRanksWithTies(out)
	return out, nil
}

// Rank returns the descending-order row of id under key.
func (c *Catalog) Rank(ctx context.Context, key SortKey, id string) (Entry, error) {
	if _, ok := c.Get(id); !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return Entry{}, ErrNotFound
	}
	all, err := c.TopN(ctx, key, max(c.Count(), 1), false)
	if err != nil {
		return Entry{}, err
	}
	for _, e := range all {
		if e.Candidate.ID == id {
			return e, nil
		}
	}
	return Entry{}, ErrNotFound
}

// assignRanksWithTies gives equal values the same rank; the next distinct
// value takes the following rank.
func assignRanksWithTies(entries []Entry) {
	rank := 0
	for i := range entries {
		if i == 0 || entries[i].Value != entries[i-1].Value {
			rank++
		}
		entries[i].Rank = rank
	}
}
