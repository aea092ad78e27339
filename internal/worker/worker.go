package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/nexconsult/rera-harvester/internal/metrics"
	"github.com/nexconsult/rera-harvester/internal/models"
	"github.com/sirupsen/logrus"
)

// sessionRetryFloor keeps session creation from spinning when RetryDelay is 0.
const sessionRetryFloor = 100 * time.Millisecond

type worker struct {
	pool   *Pool
	kind   models.QueueKind
	logger *logrus.Entry
}

// runWorker owns one session for its whole life and closes it on every exit path.
func (p *Pool) runWorker(ctx context.Context, wg *sync.WaitGroup, kind models.QueueKind, n int) {
	defer wg.Done()

	w := &worker{
		pool: p,
		kind: kind,
		logger: p.logger.WithFields(logrus.Fields{
			"worker_id": fmt.Sprintf("%s-%d", kind, n),
			"queue":     string(kind),
		}),
	}

	sess, err := w.acquire(ctx)
	if err != nil {
		w.logger.Debug("Worker stopped before a session was available")
		return
	}
	defer func() {
		if sess != nil {
			_ = sess.Close()
		}
	}()
	w.logger.Debug("Worker started")

	q := p.queueFor(kind)
	for {
		item, err := q.Dequeue(ctx)
		if err != nil {
			w.logger.Debug("Worker stopped")
			return
		}
		p.observeDepth()

		w.handle(ctx, sess, item)

		if !sess.Healthy() {
			w.logger.Warn("Browser session is no longer usable, replacing it")
			_ = sess.Close()
			if sess, err = w.acquire(ctx); err != nil {
				return
			}
		}
	}
}

// acquire opens a session, retrying until it succeeds or ctx ends.
func (w *worker) acquire(ctx context.Context) (Session, error) {
	delay := w.pool.cfg.RetryDelay
	if delay < sessionRetryFloor {
		delay = sessionRetryFloor
	}
	for {
		sess, err := w.pool.deps.Sessions.NewSession(ctx)
		if err == nil {
			return sess, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		w.logger.WithError(err).Warn("Failed to create browser session, retrying")
		if err := sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// handle runs one attempt and routes its outcome. A panic anywhere in here is
// turned into an ordinary failure.
func (w *worker) handle(ctx context.Context, sess Session, item models.WorkItem) {
	p := w.pool
	log := w.logger.WithFields(logrus.Fields{
		"project_id": item.ProjectID,
		"attempt":    item.Attempts + 1,
	})
	start := time.Now()
	recorded := false

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		log.WithFields(logrus.Fields{
			"panic": fmt.Sprint(r),
			"stack": string(debug.Stack()),
		}).Error("Recovered from panic in worker loop")
		if recorded {
			// The record is on disk; the ID must not reach the ledger as well.
			p.pending.settle()
			return
		}
		w.failSafely(ctx, item, fmt.Errorf("%w: %v", ErrPanic, r), start, log)
	}()

	p.stats.processed.Add(1)
	record, err := p.deps.Runner.Run(ctx, sess, item.ProjectID)

	if err != nil && ctx.Err() != nil {
		p.stats.dropped.Add(1)
		metrics.ObserveAttempt(string(w.kind), metrics.OutcomeDropped, time.Since(start))
		log.WithError(err).Warn("Project dropped at shutdown, it is neither recorded nor retried")
		p.pending.settle()
		return
	}
	if err != nil {
		w.fail(ctx, item, err, start, log)
		return
	}

	if err := p.deps.Records.Append(record); err != nil {
		p.stats.persistErrors.Add(1)
		metrics.ObserveAttempt(string(w.kind), metrics.OutcomePersistError, time.Since(start))
		log.WithError(err).WithField("persistence_error", true).
			Error("Failed to write record, keeping the project in the failed ledger without retry")
		if _, lerr := p.deps.Ledger.Add(w.entry(item.ProjectID)); lerr != nil {
			log.WithError(lerr).WithField("persistence_error", true).Error("Failed to write failed ledger entry")
		}
		metrics.SetLedgerSize(p.deps.Ledger.Len())
		p.pending.settle()
		return
	}
	recorded = true
	metrics.IncRecordsWritten()

	removed, err := p.deps.Ledger.Remove(item.ProjectID)
	if err != nil {
		log.WithError(err).WithField("persistence_error", true).Error("Failed to remove project from failed ledger")
	}
	metrics.SetLedgerSize(p.deps.Ledger.Len())

	p.stats.succeeded.Add(1)
	metrics.ObserveAttempt(string(w.kind), metrics.OutcomeSuccess, time.Since(start))
	log.WithFields(logrus.Fields{
		"populated":      record.Populated(),
		"ledger_removed": removed,
		"duration":       time.Since(start).String(),
	}).Info("Project harvested")
	p.pending.settle()
}

func (w *worker) entry(id int) models.FailedEntry {
	return models.FailedEntry{ProjectID: id, URL: w.pool.deps.Runner.URL(id)}
}

// fail records the failure in the ledger and then queues a retry, or
// dead-letters the project once its attempt budget is spent.
func (w *worker) fail(ctx context.Context, item models.WorkItem, cause error, start time.Time, log *logrus.Entry) {
	p := w.pool
	item.Attempts++
	p.stats.failed.Add(1)

	if _, err := p.deps.Ledger.Add(w.entry(item.ProjectID)); err != nil {
		log.WithError(err).WithField("persistence_error", true).Error("Failed to write failed ledger entry")
	}
	metrics.SetLedgerSize(p.deps.Ledger.Len())

	if limit := p.cfg.MaxRetryAttempts; limit > 0 && item.Attempts >= limit {
		p.stats.deadLettered.Add(1)
		metrics.ObserveAttempt(string(w.kind), metrics.OutcomeDeadLetter, time.Since(start))
		log.WithError(cause).WithField("attempts", item.Attempts).
			Error("Project exhausted its retry budget, leaving it in the failed ledger")
		p.pending.settle()
		return
	}
	metrics.ObserveAttempt(string(w.kind), metrics.OutcomeFailure, time.Since(start))

	if w.kind == models.QueueRetry {
		if err := sleep(ctx, p.cfg.RetryDelay); err != nil {
			w.drop(item, log)
			return
		}
	}
	if err := p.retry.Enqueue(ctx, item); err != nil {
		w.drop(item, log)
		return
	}
	p.observeDepth()
	p.stats.retried.Add(1)

	log.WithError(cause).WithFields(logrus.Fields{
		"attempts": item.Attempts,
		"duration": time.Since(start).String(),
	}).Warn("Attempt failed, queued for retry")
}

// failSafely runs the failure path from the panic backstop.
func (w *worker) failSafely(ctx context.Context, item models.WorkItem, cause error, start time.Time, log *logrus.Entry) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", fmt.Sprint(r)).Error("Failure path panicked, dropping project")
			w.pool.stats.dropped.Add(1)
			w.pool.pending.settle()
		}
	}()
	w.fail(ctx, item, cause, start, log)
}

func (w *worker) drop(item models.WorkItem, log *logrus.Entry) {
	w.pool.stats.dropped.Add(1)
	log.WithField("attempts", item.Attempts).Warn("Project dropped at shutdown, it stays in the failed ledger")
	w.pool.pending.settle()
}
