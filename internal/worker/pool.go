// Package worker schedules harvest attempts over a primary and a retry queue,
// each served by its own fixed set of workers.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nexconsult/rera-harvester/internal/config"
	"github.com/nexconsult/rera-harvester/internal/metrics"
	"github.com/nexconsult/rera-harvester/internal/models"
	"github.com/nexconsult/rera-harvester/internal/queue"
	"github.com/nexconsult/rera-harvester/internal/service/navigator"
	"github.com/sirupsen/logrus"
)

var (
	ErrInvalidConfig  = errors.New("invalid worker pool configuration")
	ErrAlreadyRunning = errors.New("worker pool is already running")
	ErrPanic          = errors.New("panic in worker loop")
)

// Session is a browser session owned by exactly one worker.
type Session interface {
	navigator.Page
	Healthy() bool
	Close() error
}

// SessionFactory opens sessions.
type SessionFactory interface {
	NewSession(ctx context.Context) (Session, error)
}

// SessionFactoryFunc adapts a function to SessionFactory.
type SessionFactoryFunc func(ctx context.Context) (Session, error)

func (f SessionFactoryFunc) NewSession(ctx context.Context) (Session, error) { return f(ctx) }

// Runner executes one attempt for a project on a session.
type Runner interface {
	Run(ctx context.Context, page navigator.Page, projectID int) (*models.ProjectRecord, error)
	URL(projectID int) string
}

// RecordSink stores harvested records.
type RecordSink interface {
	Append(rec *models.ProjectRecord) error
}

// Ledger tracks outstanding failed projects.
type Ledger interface {
	Add(entry models.FailedEntry) (bool, error)
	Remove(projectID int) (bool, error)
	Len() int
}

// Config sizes the pool.
type Config struct {
	Workers      int
	RetryWorkers int
	RetryDelay   time.Duration
	// MaxRetryAttempts dead-letters a project after this many failed attempts; 0 retries forever.
	MaxRetryAttempts int
}

// ConfigFrom builds a pool config from the harvest settings.
func ConfigFrom(h config.HarvestConfig) Config {
	return Config{
		Workers:          h.Workers,
		RetryWorkers:     h.RetryWorkers,
		RetryDelay:       h.RetryDelay,
		MaxRetryAttempts: h.MaxRetryAttempts,
	}
}

// Deps are the pool's collaborators.
type Deps struct {
	Sessions SessionFactory
	Runner   Runner
	Records  RecordSink
	Ledger   Ledger
}

// Stats summarizes one Run.
type Stats struct {
	Processed     int64         `json:"processed"`
	Succeeded     int64         `json:"succeeded"`
	Failed        int64         `json:"failed"`
	Retried       int64         `json:"retried"`
	DeadLettered  int64         `json:"dead_lettered"`
	Dropped       int64         `json:"dropped"`
	PersistErrors int64         `json:"persist_errors"`
	Duration      time.Duration `json:"duration"`
}

type counters struct {
	processed, succeeded, failed, retried, deadLettered, dropped, persistErrors atomic.Int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Processed:     c.processed.Load(),
		Succeeded:     c.succeeded.Load(),
		Failed:        c.failed.Load(),
		Retried:       c.retried.Load(),
		DeadLettered:  c.deadLettered.Load(),
		Dropped:       c.dropped.Load(),
		PersistErrors: c.persistErrors.Load(),
	}
}

// Pool runs the primary and retry workers.
type Pool struct {
	cfg    Config
	deps   Deps
	logger *logrus.Logger

	running atomic.Bool

	// Per-run state, set by Run.
	primary *queue.Queue[models.WorkItem]
	retry   *queue.Queue[models.WorkItem]
	pending *pending
	stats   *counters
}

// NewPool validates the configuration and creates a pool.
func NewPool(cfg Config, deps Deps, logger *logrus.Logger) (*Pool, error) {
	switch {
	case cfg.Workers < 1:
		return nil, fmt.Errorf("%w: workers must be at least 1, got %d", ErrInvalidConfig, cfg.Workers)
	case cfg.RetryWorkers < 1:
		return nil, fmt.Errorf("%w: retry workers must be at least 1, got %d", ErrInvalidConfig, cfg.RetryWorkers)
	case cfg.RetryDelay < 0:
		return nil, fmt.Errorf("%w: negative retry delay", ErrInvalidConfig)
	case cfg.MaxRetryAttempts < 0:
		return nil, fmt.Errorf("%w: negative max retry attempts", ErrInvalidConfig)
	case deps.Sessions == nil || deps.Runner == nil || deps.Records == nil || deps.Ledger == nil:
		return nil, fmt.Errorf("%w: missing dependency", ErrInvalidConfig)
	}
	return &Pool{cfg: cfg, deps: deps, logger: logger}, nil
}

// Run harvests ids and returns once every ID reached a terminal outcome or ctx
// is canceled. On cancellation the in-flight projects are dropped, not retried,
// and ctx's error is returned with the stats gathered so far.
func (p *Pool) Run(ctx context.Context, ids []int) (Stats, error) {
	return p.RunSeeded(ctx, ids, nil)
}

// RunSeeded is Run with retryIDs placed straight on the retry queue, for
// projects a previous run left in the failed ledger.
func (p *Pool) RunSeeded(ctx context.Context, ids, retryIDs []int) (Stats, error) {
	if !p.running.CompareAndSwap(false, true) {
		return Stats{}, ErrAlreadyRunning
	}
	defer p.running.Store(false)

	start := time.Now()
	p.primary = queue.New[models.WorkItem](string(models.QueuePrimary))
	p.retry = queue.New[models.WorkItem](string(models.QueueRetry))
	total := len(ids) + len(retryIDs)
	p.pending = newPending(total)
	p.stats = &counters{}
	if total == 0 {
		return p.finish(start), nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, id := range ids {
		if err := p.primary.Enqueue(runCtx, models.WorkItem{ProjectID: id}); err != nil {
			return p.finish(start), err
		}
	}
	for _, id := range retryIDs {
		if err := p.retry.Enqueue(runCtx, models.WorkItem{ProjectID: id}); err != nil {
			return p.finish(start), err
		}
	}
	p.observeDepth()

	p.logger.WithFields(logrus.Fields{
		"projects":       len(ids),
		"seeded_retries": len(retryIDs),
		"workers":        p.cfg.Workers,
		"retry_workers":  p.cfg.RetryWorkers,
	}).Info("Starting worker pool")

	var wg sync.WaitGroup
	for i := 1; i <= p.cfg.Workers; i++ {
		wg.Add(1)
		go p.runWorker(runCtx, &wg, models.QueuePrimary, i)
	}
	for i := 1; i <= p.cfg.RetryWorkers; i++ {
		wg.Add(1)
		go p.runWorker(runCtx, &wg, models.QueueRetry, i)
	}

	var err error
	select {
	case <-p.pending.drained():
		p.logger.Info("All projects settled, stopping workers")
	case <-ctx.Done():
		err = ctx.Err()
		p.logger.WithError(err).Warn("Worker pool canceled, in-flight projects are dropped")
	}

	cancel()
	p.primary.Close()
	p.retry.Close()
	wg.Wait()

	return p.finish(start), err
}

func (p *Pool) finish(start time.Time) Stats {
	s := p.stats.snapshot()
	s.Duration = time.Since(start)

	fields := logrus.Fields{
		"processed":      s.Processed,
		"succeeded":      s.Succeeded,
		"failed":         s.Failed,
		"retried":        s.Retried,
		"dead_lettered":  s.DeadLettered,
		"dropped":        s.Dropped,
		"persist_errors": s.PersistErrors,
		"duration":       s.Duration.String(),
	}
	if p.primary != nil {
		fields["primary_left"] = p.primary.Len()
		fields["retry_left"] = p.retry.Len()
	}
	p.logger.WithFields(fields).Info("Worker pool final stats")
	return s
}

func (p *Pool) queueFor(kind models.QueueKind) *queue.Queue[models.WorkItem] {
	if kind == models.QueueRetry {
		return p.retry
	}
	return p.primary
}

func (p *Pool) observeDepth() {
	metrics.SetQueueDepth(string(models.QueuePrimary), p.primary.Len())
	metrics.SetQueueDepth(string(models.QueueRetry), p.retry.Len())
}

// pending counts projects that have not reached a terminal outcome. A project
// moved to the retry queue stays pending.
type pending struct {
	mu   sync.Mutex
	n    int
	done chan struct{}
	once sync.Once
}

func newPending(n int) *pending {
	p := &pending{n: n, done: make(chan struct{})}
	if n <= 0 {
		p.once.Do(func() { close(p.done) })
	}
	return p
}

func (p *pending) settle() {
	p.mu.Lock()
	p.n--
	n := p.n
	p.mu.Unlock()
	if n <= 0 {
		p.once.Do(func() { close(p.done) })
	}
}

func (p *pending) drained() <-chan struct{} { return p.done }

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
