package remote

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/okian/arena/internal/domain/model"
)

// Memory is an in-process Store. It backs ephemeral runs and tests and can be
// told to fail individual operations.
type Memory struct {
	mu         sync.Mutex
	candidates map[string]model.Candidate
	votes      []model.VoteRecord
	voteKeys   map[string]struct{}
	subs       map[int]ChangeHandler
	nextSub    int
	failures   map[string]error
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		candidates: make(map[string]model.Candidate),
		voteKeys:   make(map[string]struct{}),
		subs:       make(map[int]ChangeHandler),
		failures:   make(map[string]error),
	}
}

// Operation names accepted by Fail.
const (
	OpFetchCandidates  = "fetch_candidates"
	OpInsertCandidates = "insert_candidates"
	OpUpdateMetadata   = "update_metadata"
	OpUpdateRating     = "update_rating"
	OpInsertVote       = "insert_vote"
	OpFetchVotes       = "fetch_votes"
	OpSubscribe        = "subscribe"
)

// Fail makes every call of op return err until cleared with a nil err.
func (m *Memory) Fail(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, op)
		return
	}
	m.failures[op] = err
}

func (m *Memory) failure(op string) error {
	return m.failures[op]
}

func (m *Memory) FetchCandidates(_ context.Context) ([]model.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(OpFetchCandidates); err != nil {
		return nil, err
	}
	out := make([]model.Candidate, 0, len(m.candidates))
	for _, c := range m.candidates {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b model.Candidate) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out, nil
}

func (m *Memory) InsertCandidates(_ context.Context, cs []model.Candidate) error {
	m.mu.Lock()
	if err := m.failure(OpInsertCandidates); err != nil {
		m.mu.Unlock()
		return err
	}
	var events []model.ChangeEvent
	for _, c := range cs {
		if _, exists := m.candidates[c.ID]; exists {
			continue
		}
		m.candidates[c.ID] = c
		events = append(events, model.ChangeEvent{Kind: model.ChangeInsert, CandidateID: c.ID, At: time.Now()})
	}
	subs := m.subscribersLocked()
	m.mu.Unlock()
	notify(subs, events...)
	return nil
}

func (m *Memory) UpdateCandidateMetadata(_ context.Context, c model.Candidate) error {
	m.mu.Lock()
	if err := m.failure(OpUpdateMetadata); err != nil {
		m.mu.Unlock()
		return err
	}
	cur, ok := m.candidates[c.ID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, c.ID)
	}
	cur.Name, cur.Company, cur.LogoURL = c.Name, c.Company, c.LogoURL
	cur.CostCredits, cur.ContextWindow, cur.Speed = c.CostCredits, c.ContextWindow, c.Speed
	m.candidates[c.ID] = cur
	subs := m.subscribersLocked()
	m.mu.Unlock()
	notify(subs, model.ChangeEvent{Kind: model.ChangeUpdate, CandidateID: c.ID, At: time.Now()})
	return nil
}

func (m *Memory) UpdateCandidateRating(_ context.Context, id string, r model.Ratings, voteCount int) error {
	m.mu.Lock()
	if err := m.failure(OpUpdateRating); err != nil {
		m.mu.Unlock()
		return err
	}
	cur, ok := m.candidates[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	cur.Ratings = r
	cur.VoteCount = voteCount
	m.candidates[id] = cur
	subs := m.subscribersLocked()
	m.mu.Unlock()
	notify(subs, model.ChangeEvent{Kind: model.ChangeUpdate, CandidateID: id, At: time.Now()})
	return nil
}

func (m *Memory) InsertVoteRecord(_ context.Context, v model.VoteRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(OpInsertVote); err != nil {
		return err
	}
	key := NaturalKey(v)
	if _, exists := m.voteKeys[key]; exists {
		return ErrDuplicateVote
	}
	m.voteKeys[key] = struct{}{}
	m.votes = append(m.votes, v)
	return nil
}

func (m *Memory) FetchVoteRecordsByIdentity(_ context.Context, voterID string) ([]model.VoteRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(OpFetchVotes); err != nil {
		return nil, err
	}
	var out []model.VoteRecord
	for _, v := range m.votes {
		if v.VoterID == voterID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (m *Memory) SubscribeToCandidateChanges(ctx context.Context, h ChangeHandler) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(OpSubscribe); err != nil {
		return nil, err
	}
	id := m.nextSub
	m.nextSub++
	m.subs[id] = h

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
	go func() {
		<-ctx.Done()
		unsubscribe()
	}()
	return unsubscribe, nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.subs)
	return nil
}

// Subscribers returns the number of live subscriptions.
func (m *Memory) Subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

func (m *Memory) subscribersLocked() []ChangeHandler {
	out := make([]ChangeHandler, 0, len(m.subs))
	for _, h := range m.subs {
		out = append(out, h)
	}
	return out
}

func notify(subs []ChangeHandler, events ...model.ChangeEvent) {
	for _, ev := range events {
		for _, h := range subs {
			h(ev)
		}
	}
}
