// Package service wires the vote engine together and exposes the operations
// used by the HTTP API and the CLI.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/okian/arena/internal/adapters/local"
	"github.com/okian/arena/internal/adapters/mq/queue"
	"github.com/okian/arena/internal/adapters/mq/worker"
	"github.com/okian/arena/internal/adapters/remote"
	"github.com/okian/arena/internal/adapters/remote/postgres"
	remoteredis "github.com/okian/arena/internal/adapters/remote/redis"
	"github.com/okian/arena/internal/adapters/repository"
	"github.com/okian/arena/internal/adapters/seed"
	"github.com/okian/arena/internal/config"
	"github.com/okian/arena/internal/domain/identity"
	"github.com/okian/arena/internal/domain/ledger"
	"github.com/okian/arena/internal/domain/model"
	"github.com/okian/arena/internal/domain/ratelimit"
	"github.com/okian/arena/internal/domain/rating"
	"github.com/okian/arena/internal/domain/report"
	"github.com/okian/arena/internal/domain/validation"
	"github.com/okian/arena/pkg/logger"
	"github.com/okian/arena/pkg/metrics"
)

// ErrNotStarted is returned by operations called before Start.
var ErrNotStarted = errors.New("service not started")

// Service owns every engine component for one voter instance.
type Service struct {
	mu sync.RWMutex

	cfg     *config.Config
	clock   clockwork.Clock
	bundled []model.Candidate

	// Injected or built on Start. Stores built by Start are owned and closed
	// by Stop.
	local     local.Store
	remote    remote.Store
	ownLocal  bool
	ownRemote bool

	guarded     *remote.Guarded
	catalog     *repository.Catalog
	identity    *identity.Provider
	limiter     *ratelimit.Limiter
	feed        *report.Feed
	ledger      *ledger.Ledger
	queue       *queue.InMemoryQueue
	worker      *worker.RefreshWorker
	coordinator *Coordinator

	started   bool
	startedAt time.Time
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithRemote uses s instead of the store selected by remote_driver.
func WithRemote(s remote.Store) Option {
	return func(svc *Service) {
		if s != nil {
			svc.remote = s
		}
	}
}

// WithLocal uses s instead of the store selected by local_state_path.
func WithLocal(s local.Store) Option {
	return func(svc *Service) {
		if s != nil {
			svc.local = s
		}
	}
}

// WithClock sets the clock used by the limiter, the error feed and vote
// timestamps.
func WithClock(c clockwork.Clock) Option {
	return func(svc *Service) {
		if c != nil {
			svc.clock = c
		}
	}
}

// WithBundled replaces the catalog loaded from catalog_path.
func WithBundled(cs []model.Candidate) Option {
	return func(svc *Service) {
		svc.bundled = cs
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(svc *Service) {
		if l != nil {
			svc.logger = l
		}
	}
}

// New constructs a Service. A nil cfg means defaults.
func New(cfg *config.Config, opts ...Option) *Service {
	if cfg == nil {
		cfg = config.New()
	}
	s := &Service{
		cfg:   cfg,
		clock: clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds the components, starts the refresh worker and runs the
// initial sync. Sync failures leave the service Degraded but running; only
// store construction errors fail Start.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	s.logger.Info(ctx, "starting vote engine...",
		logger.String("remote_driver", s.cfg.RemoteDriver),
		logger.String("local_state_path", s.cfg.LocalStatePath),
	)

	if err := s.openStores(ctx); err != nil {
		return err
	}
	if s.bundled == nil {
		cs, err := seed.Load(s.cfg.CatalogPath)
		if err != nil {
			s.closeStores()
			return fmt.Errorf("load bundled catalog: %w", err)
		}
		s.bundled = cs
	}

	s.guarded = remote.NewGuarded(s.remote,
		remote.WithMaxFailures(s.cfg.BreakerMaxFailures),
		remote.WithOpenTimeout(s.cfg.BreakerOpenTimeout()),
	)
	s.catalog = repository.NewCatalog()
	s.identity = identity.New(s.local)
	s.limiter = ratelimit.New(s.local, ratelimit.WithClock(s.clock))
	s.feed = report.NewFeed(report.WithClock(s.clock), report.WithCapacity(s.cfg.ReportCapacity))
	s.ledger = ledger.New(ledger.Deps{
		Local:    s.local,
		Remote:   s.guarded,
		Checker:  validation.New(s.catalog),
		Limiter:  s.limiter,
		Rater:    rating.NewEngine(s.catalog, s.guarded),
		Voter:    s.identity,
		Reporter: s.feed,
	}, ledger.WithClock(s.clock))
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.cfg.ChangeQueueSize))
	s.coordinator = NewCoordinator(CoordinatorDeps{
		Identity: s.identity,
		Ledger:   s.ledger,
		Limiter:  s.limiter,
		Remote:   s.guarded,
		Catalog:  s.catalog,
		Queue:    s.queue,
		Reporter: s.feed,
		Bundled:  s.bundled,
	})
	s.worker = worker.NewRefreshWorker(s.queue, s.coordinator)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.worker.Run(runCtx)
	}()

	if err := s.coordinator.Initialize(ctx); err != nil {
		s.logger.Warn(ctx, "starting degraded", logger.Error(err))
	}

	s.started = true
	s.startedAt = s.clock.Now()
	s.logger.Info(ctx, "vote engine started",
		logger.String("state", s.coordinator.State().String()),
		logger.String("voter_id", s.identity.Current()),
		logger.Int("candidates", s.catalog.Count()),
	)
	return nil
}

func (s *Service) openStores(ctx context.Context) error {
	if s.local == nil {
		if s.cfg.LocalStatePath == "" {
			s.local = local.NewMemory(local.WithMemoryClock(s.clock))
			s.ownLocal = true
		} else {
			db, err := local.OpenSQLite(ctx, s.cfg.LocalStatePath, local.WithSQLiteClock(s.clock))
			if err != nil {
				return fmt.Errorf("open local state: %w", err)
			}
			s.local = db
			s.ownLocal = true
		}
	}
	if s.remote != nil {
		return nil
	}
	switch s.cfg.RemoteDriver {
	case config.DriverPostgres:
		pg, err := postgres.Connect(ctx, s.cfg.DatabaseURL)
		if err != nil {
			s.closeStores()
			return fmt.Errorf("connect postgres: %w", err)
		}
		s.remote = pg
	case config.DriverRedis:
		rs, err := remoteredis.Connect(ctx, s.cfg.RedisURL)
		if err != nil {
			s.closeStores()
			return fmt.Errorf("connect redis: %w", err)
		}
		s.remote = rs
	default:
		s.remote = remote.NewMemory()
	}
	s.ownRemote = true
	return nil
}

func (s *Service) closeStores() {
	if s.ownRemote {
		if err := s.remote.Close(); err != nil {
			s.logger.Warn(context.Background(), "close remote store", logger.Error(err))
		}
		s.remote, s.ownRemote = nil, false
	}
	if s.ownLocal {
		if err := s.local.Close(); err != nil {
			s.logger.Warn(context.Background(), "close local store", logger.Error(err))
		}
		s.local, s.ownLocal = nil, false
	}
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping vote engine...")

	s.coordinator.Close()
	_ = s.queue.Close()

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := s.worker.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn(ctx, "worker shutdown", logger.Error(err))
	}
	cancel()
	s.cancel()
	s.wg.Wait()

	s.closeStores()
	s.started = false
	s.logger.Info(ctx, "vote engine stopped")
}

func (s *Service) running() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

// Vote submits one pairwise vote.
func (s *Service) Vote(ctx context.Context, req model.VoteRequest) (ledger.Receipt, error) {
	if err := s.running(); err != nil {
		return ledger.Receipt{}, err
	}
	return s.ledger.RecordVote(ctx, req)
}

// HasVoted reports whether the current identity voted on the unordered pair
// in category.
func (s *Service) HasVoted(a, b, category string) (bool, error) {
	if err := s.running(); err != nil {
		return false, err
	}
	c, err := votable(category)
	if err != nil {
		return false, err
	}
	return s.ledger.HasVoted(a, b, c), nil
}

// Pairs lists the pair keys the current identity voted on in category.
func (s *Service) Pairs(category string) ([]string, error) {
	if err := s.running(); err != nil {
		return nil, err
	}
	c, err := votable(category)
	if err != nil {
		return nil, err
	}
	return s.ledger.Pairs(c), nil
}

func votable(category string) (model.Category, error) {
	c, err := model.ParseCategory(category)
	if err != nil {
		return 0, err
	}
	if !c.IsVotable() {
		return 0, fmt.Errorf("%w: %s", model.ErrInvalidCategory, category)
	}
	return c, nil
}

// Leaderboard returns up to limit candidates ranked by sortBy, which is a
// category or a metadata field name. An empty sortBy ranks by overall.
func (s *Service) Leaderboard(ctx context.Context, sortBy string, limit int, ascending bool) ([]repository.Entry, error) {
	if err := s.running(); err != nil {
		return nil, err
	}
	key, err := repository.ParseSortKey(sortBy)
	if err != nil {
		return nil, err
	}
	if limit > s.cfg.MaxLeaderboardLimit {
		limit = s.cfg.MaxLeaderboardLimit
	}
	return s.catalog.TopN(ctx, key, limit, ascending)
}

// Candidate returns one candidate with its rank under sortBy.
func (s *Service) Candidate(ctx context.Context, id, sortBy string) (repository.Entry, error) {
	if err := s.running(); err != nil {
		return repository.Entry{}, err
	}
	key, err := repository.ParseSortKey(sortBy)
	if err != nil {
		return repository.Entry{}, err
	}
	return s.catalog.Rank(ctx, key, id)
}

// Errors lists active error notices, newest first.
func (s *Service) Errors() []report.Entry {
	if s.running() != nil {
		return nil
	}
	return s.feed.List()
}

// DismissError removes one notice.
func (s *Service) DismissError(id string) bool {
	if s.running() != nil {
		return false
	}
	return s.feed.Dismiss(id)
}

// ClearErrors removes every notice.
func (s *Service) ClearErrors() {
	if s.running() != nil {
		return
	}
	s.feed.Clear()
}

// Identity returns the current voter token.
func (s *Service) Identity() string {
	if s.running() != nil {
		return ""
	}
	return s.identity.Current()
}

// ResetIdentity issues a new voter token.
func (s *Service) ResetIdentity(ctx context.Context) (string, error) {
	if err := s.running(); err != nil {
		return "", err
	}
	return s.coordinator.ResetIdentity(ctx)
}

// Sync re-pulls vote history and the catalog from the remote store.
func (s *Service) Sync(ctx context.Context) error {
	if err := s.running(); err != nil {
		return err
	}
	return s.coordinator.Resync(ctx)
}

// Stats is a point-in-time view of the engine.
type Stats struct {
	Started      bool            `json:"started"`
	State        string          `json:"state"`
	Uptime       string          `json:"uptime,omitempty"`
	VoterID      string          `json:"voter_id,omitempty"`
	Candidates   int             `json:"candidates"`
	VotedPairs   int64           `json:"voted_pairs"`
	RateLimit    ratelimit.State `json:"rate_limit"`
	QueueLength  int             `json:"queue_length"`
	Refreshes    int64           `json:"refreshes"`
	Breaker      string          `json:"breaker,omitempty"`
	RemoteDriver string          `json:"remote_driver"`
	ErrorCount   int             `json:"errors"`
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		Started:      s.started,
		State:        Uninitialized.String(),
		RemoteDriver: s.cfg.RemoteDriver,
	}
	if !s.started {
		return st
	}

	ctx := context.Background()
	st.State = s.coordinator.State().String()
	st.Uptime = s.clock.Since(s.startedAt).Round(time.Second).String()
	st.VoterID = s.identity.Current()
	st.Candidates = s.catalog.Count()
	st.VotedPairs = s.ledger.Size()
	st.RateLimit = s.limiter.Snapshot()
	st.QueueLength = s.queue.Len(ctx)
	st.Refreshes = s.worker.Refreshes()
	st.Breaker = s.guarded.State().String()
	st.ErrorCount = len(s.feed.List())

	metrics.UpdateCatalogSize(st.Candidates)
	metrics.UpdateQueueSize(st.QueueLength)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
	return st
}
