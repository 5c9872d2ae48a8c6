// Package redis implements the remote store on Redis. Candidates live in one
// hash, vote records in per-voter lists, and change events go out over
// Pub/Sub.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/okian/arena/internal/adapters/remote"
	"github.com/okian/arena/internal/domain/model"
	"github.com/okian/arena/pkg/logger"
	goredis "github.com/redis/go-redis/v9"
)

const (
	candidatesKey = "arena:candidates"
	voteKeysKey   = "arena:votekeys"
	votesPrefix   = "arena:votes:"
	changeChannel = "arena:candidate_changes"
)

// insertVoteScript adds the natural key and appends the record in one step.
// Returns 0 when the key was already present.
// KEYS: [1]=vote key set, [2]=voter list. ARGV: [1]=natural key, [2]=record.
var insertVoteScript = goredis.NewScript(`
if redis.call('SADD', KEYS[1], ARGV[1]) == 0 then
  return 0
end
redis.call('RPUSH', KEYS[2], ARGV[2])
return 1
`)

// updateRatingScript replaces ratings and vote count of a stored candidate.
// KEYS: [1]=candidate hash, [2]=channel. ARGV: [1]=id, [2]=ratings, [3]=votes, [4]=event.
var updateRatingScript = goredis.NewScript(`
local raw = redis.call('HGET', KEYS[1], ARGV[1])
if not raw then
  return 0
end
local c = cjson.decode(raw)
c['ratings'] = cjson.decode(ARGV[2])
c['votes'] = tonumber(ARGV[3])
redis.call('HSET', KEYS[1], ARGV[1], cjson.encode(c))
redis.call('PUBLISH', KEYS[2], ARGV[4])
return 1
`)

// updateMetadataScript stores a new candidate document but keeps the stored
// ratings and vote count.
// KEYS: [1]=candidate hash, [2]=channel. ARGV: [1]=id, [2]=candidate, [3]=event.
var updateMetadataScript = goredis.NewScript(`
local raw = redis.call('HGET', KEYS[1], ARGV[1])
if not raw then
  return 0
end
local old = cjson.decode(raw)
local c = cjson.decode(ARGV[2])
c['ratings'] = old['ratings']
c['votes'] = old['votes']
redis.call('HSET', KEYS[1], ARGV[1], cjson.encode(c))
redis.call('PUBLISH', KEYS[2], ARGV[3])
return 1
`)

// Store is a remote.Store backed by a go-redis client.
type Store struct {
	rdb    *goredis.Client
	logger logger.Logger
}

var _ remote.Store = (*Store)(nil)

// Connect parses redisURL (e.g. "redis://localhost:6379") and pings the server.
func Connect(ctx context.Context, redisURL string) (*Store, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := goredis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return New(rdb), nil
}

// New wraps an existing client.
func New(rdb *goredis.Client) *Store {
	return &Store{rdb: rdb, logger: logger.Get().Named("redis")}
}

func (s *Store) FetchCandidates(ctx context.Context) ([]model.Candidate, error) {
	raw, err := s.rdb.HGetAll(ctx, candidatesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall candidates: %w", err)
	}
	out := make([]model.Candidate, 0, len(raw))
	for id, doc := range raw {
		var c model.Candidate
		if err := json.Unmarshal([]byte(doc), &c); err != nil {
			return nil, fmt.Errorf("decode candidate %s: %w", id, err)
		}
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b model.Candidate) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *Store) InsertCandidates(ctx context.Context, cs []model.Candidate) error {
	if len(cs) == 0 {
		return nil
	}
	pipe := s.rdb.TxPipeline()
	cmds := make([]*goredis.BoolCmd, len(cs))
	for i, c := range cs {
		doc, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("encode candidate %s: %w", c.ID, err)
		}
		cmds[i] = pipe.HSetNX(ctx, candidatesKey, c.ID, doc)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("insert candidates: %w", err)
	}
	for i, cmd := range cmds {
		if cmd.Val() {
			if err := s.publish(ctx, model.ChangeInsert, cs[i].ID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Store) UpdateCandidateMetadata(ctx context.Context, c model.Candidate) error {
	doc, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode candidate %s: %w", c.ID, err)
	}
	return s.runUpdate(ctx, updateMetadataScript, c.ID, string(doc))
}

func (s *Store) UpdateCandidateRating(ctx context.Context, id string, r model.Ratings, voteCount int) error {
	ratings, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode ratings of %s: %w", id, err)
	}
	return s.runUpdate(ctx, updateRatingScript, id, string(ratings), voteCount)
}

func (s *Store) runUpdate(ctx context.Context, script *goredis.Script, id string, args ...any) error {
	event, err := encodeEvent(model.ChangeUpdate, id)
	if err != nil {
		return err
	}
	argv := append(append([]any{id}, args...), event)
	n, err := script.Run(ctx, s.rdb, []string{candidatesKey, changeChannel}, argv...).Int()
	if err != nil {
		return fmt.Errorf("update candidate %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", remote.ErrNotFound, id)
	}
	return nil
}

func (s *Store) InsertVoteRecord(ctx context.Context, v model.VoteRecord) error {
	doc, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode vote record: %w", err)
	}
	n, err := insertVoteScript.Run(ctx, s.rdb, []string{voteKeysKey, votesPrefix + v.VoterID},
		remote.NaturalKey(v), doc).Int()
	if err != nil {
		return fmt.Errorf("insert vote record: %w", err)
	}
	if n == 0 {
		return remote.ErrDuplicateVote
	}
	return nil
}

func (s *Store) FetchVoteRecordsByIdentity(ctx context.Context, voterID string) ([]model.VoteRecord, error) {
	raw, err := s.rdb.LRange(ctx, votesPrefix+voterID, 0, -1).Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("lrange vote records: %w", err)
	}
	out := make([]model.VoteRecord, 0, len(raw))
	for _, doc := range raw {
		var v model.VoteRecord
		if err := json.Unmarshal([]byte(doc), &v); err != nil {
			return nil, fmt.Errorf("decode vote record: %w", err)
		}
		out = append(out, v)
	}
	return out, nil
}

// SubscribeToCandidateChanges returns once the subscription is confirmed.
// Events are delivered from a single goroutine in publish order.
func (s *Store) SubscribeToCandidateChanges(ctx context.Context, h remote.ChangeHandler) (func(), error) {
	sub := s.rdb.Subscribe(ctx, changeChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", changeChannel, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		msgCh := sub.Channel()
		for {
			select {
			case msg, ok := <-msgCh:
				if !ok {
					return
				}
				var ev model.ChangeEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil || ev.CandidateID == "" {
					s.logger.Warn(subCtx, "discarding malformed change event", logger.String("payload", msg.Payload))
					continue
				}
				h(ev)
			case <-subCtx.Done():
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			_ = sub.Close()
			<-done
		})
	}, nil
}

func (s *Store) publish(ctx context.Context, kind model.ChangeKind, id string) error {
	event, err := encodeEvent(kind, id)
	if err != nil {
		return err
	}
	if err := s.rdb.Publish(ctx, changeChannel, event).Err(); err != nil {
		return fmt.Errorf("publish change for %s: %w", id, err)
	}
	return nil
}

func encodeEvent(kind model.ChangeKind, id string) (string, error) {
	b, err := json.Marshal(model.ChangeEvent{Kind: kind, CandidateID: id, At: time.Now()})
	if err != nil {
		return "", fmt.Errorf("encode change event: %w", err)
	}
	return string(b), nil
}

// Ping reports whether the server is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}
