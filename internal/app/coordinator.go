package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/okian/arena/internal/adapters/mq/queue"
	"github.com/okian/arena/internal/adapters/remote"
	"github.com/okian/arena/internal/adapters/repository"
	"github.com/okian/arena/internal/adapters/seed"
	"github.com/okian/arena/internal/domain/identity"
	"github.com/okian/arena/internal/domain/ledger"
	"github.com/okian/arena/internal/domain/model"
	"github.com/okian/arena/internal/domain/ratelimit"
	"github.com/okian/arena/internal/domain/report"
	"github.com/okian/arena/pkg/logger"
	"github.com/okian/arena/pkg/metrics"
	"golang.org/x/sync/singleflight"
)

// State is the lifecycle state of a Coordinator.
type State int32

const (
	Uninitialized State = iota
	Syncing
	Ready
	// Degraded means at least one sync step failed; the engine keeps serving
	// from cached or bundled data.
	Degraded
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Syncing:
		return "syncing"
	case Ready:
		return "ready"
	case Degraded:
		return "degraded"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Titles of notices raised while syncing.
const (
	TitleIdentityFailed  = "Identity Unavailable"
	TitleLocalLoadFailed = "Local State Unavailable"
	TitleHistoryFailed   = "Vote History Sync Failed"
	TitleSeedFailed      = "Catalog Seeding Failed"
	TitleCatalogFailed   = "Catalog Sync Failed"
	TitleSubscribeFailed = "Live Updates Unavailable"
)

// Catalog sources recorded on every reload.
const (
	SourceRemote  = "remote"
	SourceBundled = "bundled"
	SourceCached  = "cached"
)

// Enqueuer accepts change events for the refresh worker.
type Enqueuer interface {
	Enqueue(ctx context.Context, e queue.Event) bool
}

// Coordinator brings the engine from cold start to a synced state and keeps
// the catalog current afterwards.
type Coordinator struct {
	identity *identity.Provider
	ledger   *ledger.Ledger
	limiter  *ratelimit.Limiter
	remote   remote.Store
	catalog  *repository.Catalog
	queue    Enqueuer
	reporter report.Reporter
	bundled  []model.Candidate

	state atomic.Int32
	group singleflight.Group

	mu          sync.Mutex
	unsubscribe func()

	logger logger.Logger
}

// CoordinatorDeps are the collaborators a Coordinator drives.
type CoordinatorDeps struct {
	Identity *identity.Provider
	Ledger   *ledger.Ledger
	Limiter  *ratelimit.Limiter
	Remote   remote.Store
	Catalog  *repository.Catalog
	Queue    Enqueuer
	Reporter report.Reporter
	Bundled  []model.Candidate
}

// NewCoordinator creates a Coordinator in the Uninitialized state.
func NewCoordinator(d CoordinatorDeps) *Coordinator {
	c := &Coordinator{
		identity: d.Identity,
		ledger:   d.Ledger,
		limiter:  d.Limiter,
		remote:   d.Remote,
		catalog:  d.Catalog,
		queue:    d.Queue,
		reporter: d.Reporter,
		bundled:  d.Bundled,
		logger:   logger.Get().Named("sync"),
	}
	c.setState(Uninitialized)
	return c
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

func (c *Coordinator) setState(s State) {
	c.state.Store(int32(s))
	metrics.UpdateSyncState(int(s))
}

// Initialize runs every sync step in order. A failing step is reported and
// skipped; the remaining steps still run and the coordinator ends Degraded.
// The returned error joins the step failures and is informational only.
func (c *Coordinator) Initialize(ctx context.Context) error {
	c.setState(Syncing)
	c.logger.Info(ctx, "initializing")

	var errs []error
	step := func(name, title string, fn func(context.Context) error) {
		if err := fn(ctx); err != nil {
			metrics.RecordSyncStep(name, "error")
			c.logger.Warn(ctx, "sync step failed", logger.String("step", name), logger.Error(err))
			c.report(ctx, title, err.Error())
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			return
		}
		metrics.RecordSyncStep(name, "ok")
	}

	step("identity", TitleIdentityFailed, c.acquireIdentity)
	step("local_state", TitleLocalLoadFailed, c.loadLocal)
	step("vote_history", TitleHistoryFailed, c.mergeHistory)
	step("seed", TitleSeedFailed, c.seed)
	step("catalog", TitleCatalogFailed, c.Refresh)
	step("subscribe", TitleSubscribeFailed, c.subscribe)

	if len(errs) > 0 {
		c.setState(Degraded)
		c.logger.Warn(ctx, "initialized in degraded mode", logger.Int("failed_steps", len(errs)))
		return errors.Join(errs...)
	}
	c.setState(Ready)
	c.logger.Info(ctx, "initialized", logger.Int("candidates", c.catalog.Count()))
	return nil
}

// Resync pulls this identity's vote history and the catalog again. It never
// touches the subscription.
func (c *Coordinator) Resync(ctx context.Context) error {
	c.setState(Syncing)
	err := errors.Join(c.mergeHistory(ctx), c.Refresh(ctx))
	if err != nil {
		c.report(ctx, TitleCatalogFailed, err.Error())
		c.setState(Degraded)
		return err
	}
	c.setState(Ready)
	return nil
}

// ResetIdentity issues a new voter token and forgets the voted pairs of the
// previous one. Rate-limit counters are kept.
func (c *Coordinator) ResetIdentity(ctx context.Context) (string, error) {
	id, err := c.identity.Reset(ctx)
	if err != nil {
		c.report(ctx, TitleIdentityFailed, err.Error())
		return "", err
	}
	if err := c.ledger.Reset(ctx); err != nil {
		c.report(ctx, TitleLocalLoadFailed, err.Error())
		return id, err
	}
	return id, nil
}

// Refresh reloads the catalog from the remote store. Concurrent callers share
// one fetch. An empty remote catalog falls back to the bundled one; a failed
// fetch keeps the current catalog, or installs the bundled one when nothing is
// loaded yet, and still returns the fetch error.
func (c *Coordinator) Refresh(ctx context.Context) error {
	_, err, _ := c.group.Do("refresh", func() (any, error) {
		return nil, c.refresh(ctx)
	})
	return err
}

func (c *Coordinator) refresh(ctx context.Context) error {
	cs, err := c.remote.FetchCandidates(ctx)
	switch {
	case err != nil && c.catalog.Count() > 0:
		c.logger.Warn(ctx, "catalog fetch failed; keeping cached catalog", logger.Error(err))
		c.loaded(SourceCached)
		return err
	case err != nil:
		c.install(ctx, c.bundled, SourceBundled)
		return err
	case len(cs) == 0:
		c.install(ctx, c.bundled, SourceBundled)
		return nil
	default:
		c.install(ctx, cs, SourceRemote)
		return nil
	}
}

func (c *Coordinator) install(ctx context.Context, cs []model.Candidate, source string) {
	c.catalog.Replace(ctx, cs)
	c.loaded(source)
	c.logger.Debug(ctx, "catalog loaded", logger.String("source", source), logger.Int("candidates", len(cs)))
}

func (c *Coordinator) loaded(source string) {
	metrics.RecordCatalogReload(source)
	metrics.UpdateCatalogSize(c.catalog.Count())
}

// Close ends the change subscription.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
}

func (c *Coordinator) acquireIdentity(ctx context.Context) error {
	id, err := c.identity.Acquire(ctx)
	if err != nil {
		return err
	}
	c.logger.Debug(ctx, "voter identity", logger.String("voter_id", id))
	return nil
}

func (c *Coordinator) loadLocal(ctx context.Context) error {
	return errors.Join(c.ledger.Load(ctx), c.limiter.Load(ctx))
}

// mergeHistory unions the remote records of the current identity into the
// voted-pairs index. Pairs are never removed.
func (c *Coordinator) mergeHistory(ctx context.Context) error {
	voter := c.identity.Current()
	if voter == "" {
		return errors.New("no voter identity")
	}
	recs, err := c.remote.FetchVoteRecordsByIdentity(ctx, voter)
	if err != nil {
		return err
	}
	added, err := c.ledger.Merge(ctx, recs)
	if err != nil {
		return err
	}
	if added > 0 {
		c.logger.Info(ctx, "merged remote vote history", logger.Int("added", added))
	}
	return nil
}

func (c *Coordinator) seed(ctx context.Context) error {
	if len(c.bundled) == 0 {
		return nil
	}
	res, err := seed.Sync(ctx, c.remote, c.bundled)
	if err != nil {
		return err
	}
	if res.Inserted > 0 || res.Updated > 0 {
		c.logger.Info(ctx, "catalog seeded", logger.Int("inserted", res.Inserted), logger.Int("updated", res.Updated))
	}
	return nil
}

func (c *Coordinator) subscribe(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unsubscribe != nil {
		return nil
	}
	// The subscription outlives the Initialize call.
	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	unsub, err := c.remote.SubscribeToCandidateChanges(subCtx, c.onChange)
	if err != nil {
		cancel()
		return err
	}
	c.unsubscribe = func() {
		unsub()
		cancel()
	}
	return nil
}

func (c *Coordinator) onChange(ev model.ChangeEvent) {
	ctx := context.Background()
	if c.queue == nil || !c.queue.Enqueue(ctx, ev) {
		c.logger.Warn(ctx, "change event dropped",
			logger.String("kind", string(ev.Kind)),
			logger.String("candidate_id", ev.CandidateID),
		)
	}
}

func (c *Coordinator) report(ctx context.Context, title, detail string) {
	if c.reporter != nil {
		c.reporter.Report(ctx, title, detail, 0)
	}
}
