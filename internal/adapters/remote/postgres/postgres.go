// Package postgres implements the remote store on PostgreSQL. Candidate row
// changes are pushed to subscribers through LISTEN/NOTIFY.
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/okian/arena/internal/adapters/remote"
	"github.com/okian/arena/internal/domain/model"
	"github.com/okian/arena/pkg/logger"
)

//go:embed schema.sql
var schemaSQL string

const (
	changeChannel = "candidate_changes"

	// schemaLockID is the advisory lock held while the schema is applied.
	schemaLockID = 0x6172656e61

	reconnectDelay = time.Second
)

// Store is a remote.Store backed by a pgx connection pool.
type Store struct {
	pool   *pgxpool.Pool
	logger logger.Logger
}

var _ remote.Store = (*Store)(nil)

// Connect opens a pool for databaseURL, pings it and applies the schema.
func Connect(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{pool: pool, logger: logger.Get().Named("postgres")}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	s.logger.Info(ctx, "database connected",
		logger.Int("min_conns", int(cfg.MinConns)),
		logger.Int("max_conns", int(cfg.MaxConns)),
	)
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection for schema: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", schemaLockID); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}
	defer func() {
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := conn.Exec(unlockCtx, "SELECT pg_advisory_unlock($1)", schemaLockID); err != nil {
			s.logger.Error(unlockCtx, "release schema lock", logger.Error(err))
		}
	}()

	if _, err := conn.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

const selectCandidates = `
SELECT id, name, company, cost_credits, context_window, speed, logo_url, ratings, vote_count
FROM candidates ORDER BY id`

func (s *Store) FetchCandidates(ctx context.Context) ([]model.Candidate, error) {
	rows, err := s.pool.Query(ctx, selectCandidates)
	if err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Candidate, error) {
		var (
			c       model.Candidate
			ratings []byte
		)
		if err := row.Scan(&c.ID, &c.Name, &c.Company, &c.CostCredits, &c.ContextWindow,
			&c.Speed, &c.LogoURL, &ratings, &c.VoteCount); err != nil {
			return c, err
		}
		if err := json.Unmarshal(ratings, &c.Ratings); err != nil {
			return c, fmt.Errorf("decode ratings of %s: %w", c.ID, err)
		}
		return c, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan candidates: %w", err)
	}
	return out, nil
}

const insertCandidate = `
INSERT INTO candidates (id, name, company, cost_credits, context_window, speed, logo_url, ratings, vote_count)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9)
ON CONFLICT (id) DO NOTHING`

func (s *Store) InsertCandidates(ctx context.Context, cs []model.Candidate) error {
	if len(cs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, c := range cs {
		ratings, err := json.Marshal(c.Ratings)
		if err != nil {
			return fmt.Errorf("encode ratings of %s: %w", c.ID, err)
		}
		batch.Queue(insertCandidate, c.ID, c.Name, c.Company, c.CostCredits, c.ContextWindow,
			c.Speed, c.LogoURL, string(ratings), c.VoteCount)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert candidates: %w", err)
	}
	return nil
}

func (s *Store) UpdateCandidateMetadata(ctx context.Context, c model.Candidate) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE candidates
SET name = $2, company = $3, cost_credits = $4, context_window = $5, speed = $6, logo_url = $7, updated_at = now()
WHERE id = $1`, c.ID, c.Name, c.Company, c.CostCredits, c.ContextWindow, c.Speed, c.LogoURL)
	if err != nil {
		return fmt.Errorf("update metadata of %s: %w", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", remote.ErrNotFound, c.ID)
	}
	return nil
}

func (s *Store) UpdateCandidateRating(ctx context.Context, id string, r model.Ratings, voteCount int) error {
	ratings, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode ratings of %s: %w", id, err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE candidates SET ratings = $2::jsonb, vote_count = $3, updated_at = now() WHERE id = $1`,
		id, string(ratings), voteCount)
	if err != nil {
		return fmt.Errorf("update rating of %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", remote.ErrNotFound, id)
	}
	return nil
}

func (s *Store) InsertVoteRecord(ctx context.Context, v model.VoteRecord) error {
	tag, err := s.pool.Exec(ctx, `
INSERT INTO pair_votes (voter_id, category, candidate_a, candidate_b, outcome, voted_at_ms)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT DO NOTHING`,
		v.VoterID, v.Category.String(), v.CandidateA, v.CandidateB, int16(v.Outcome), v.Timestamp)
	if err != nil {
		return fmt.Errorf("insert vote record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return remote.ErrDuplicateVote
	}
	return nil
}

func (s *Store) FetchVoteRecordsByIdentity(ctx context.Context, voterID string) ([]model.VoteRecord, error) {
	rows, err := s.pool.Query(ctx, `
SELECT candidate_a, candidate_b, category, outcome, voted_at_ms
FROM pair_votes WHERE voter_id = $1 ORDER BY id`, voterID)
	if err != nil {
		return nil, fmt.Errorf("query vote records: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.VoteRecord, error) {
		var (
			v       model.VoteRecord
			cat     string
			outcome int16
		)
		if err := row.Scan(&v.CandidateA, &v.CandidateB, &cat, &outcome, &v.Timestamp); err != nil {
			return v, err
		}
		c, err := model.ParseCategory(cat)
		if err != nil {
			return v, err
		}
		v.Category = c
		v.Outcome = model.Outcome(outcome)
		v.VoterID = voterID
		return v, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan vote records: %w", err)
	}
	return out, nil
}

// SubscribeToCandidateChanges holds one pooled connection in LISTEN mode and
// reacquires it after connection loss until unsubscribed.
func (s *Store) SubscribeToCandidateChanges(ctx context.Context, h remote.ChangeHandler) (func(), error) {
	conn, err := s.listen(ctx)
	if err != nil {
		return nil, err
	}

	subCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			s.drain(subCtx, conn, h)
			release(conn)
			if subCtx.Err() != nil {
				return
			}
			for conn = nil; conn == nil; {
				select {
				case <-subCtx.Done():
					return
				case <-time.After(reconnectDelay):
				}
				if conn, err = s.listen(subCtx); err != nil {
					s.logger.Warn(subCtx, "relisten failed", logger.Error(err))
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}, nil
}

func (s *Store) listen(ctx context.Context) (*pgxpool.Conn, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire listen connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+changeChannel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listen %s: %w", changeChannel, err)
	}
	return conn, nil
}

func (s *Store) drain(ctx context.Context, conn *pgxpool.Conn, h remote.ChangeHandler) {
	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Warn(ctx, "notification wait failed", logger.Error(err))
			}
			return
		}
		var ev model.ChangeEvent
		if err := json.Unmarshal([]byte(n.Payload), &ev); err != nil || ev.CandidateID == "" {
			s.logger.Warn(ctx, "discarding malformed notification", logger.String("payload", n.Payload))
			continue
		}
		ev.At = time.Now()
		h(ev)
	}
}

func release(conn *pgxpool.Conn) {
	if !conn.Conn().IsClosed() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_, err := conn.Exec(ctx, "UNLISTEN *")
		cancel()
		if err != nil {
			_ = conn.Conn().Close(context.Background())
		}
	}
	conn.Release()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
