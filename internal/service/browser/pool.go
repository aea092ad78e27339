package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrPoolClosed is returned by Acquire after Close.
var ErrPoolClosed = errors.New("browser pool is closed")

// Resource is anything the pool can hand out.
type Resource interface {
	Healthy() bool
	Close() error
}

// Pool lends up to size lazily created resources to concurrent callers.
type Pool[R Resource] struct {
	open   func(ctx context.Context) (R, error)
	size   int
	logger *logrus.Logger

	idle chan R

	mu      sync.Mutex
	created int
	closed  bool
}

// NewPool creates a pool of at most size resources.
func NewPool[R Resource](size int, open func(ctx context.Context) (R, error), logger *logrus.Logger) *Pool[R] {
	if size < 1 {
		size = 1
	}
	return &Pool[R]{
		open:   open,
		size:   size,
		logger: logger,
		idle:   make(chan R, size),
	}
}

// Acquire returns an idle resource, opens a new one while under the limit, or
// waits for a release.
func (p *Pool[R]) Acquire(ctx context.Context) (R, error) {
	var zero R
	for {
		select {
		case r := <-p.idle:
			if r.Healthy() {
				return r, nil
			}
			p.discard(r)
			continue
		default:
		}

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return zero, ErrPoolClosed
		}
		if p.created < p.size {
			p.created++
			p.mu.Unlock()

			r, err := p.open(ctx)
			if err != nil {
				p.mu.Lock()
				p.created--
				p.mu.Unlock()
				return zero, fmt.Errorf("open pooled session: %w", err)
			}
			return r, nil
		}
		p.mu.Unlock()

		select {
		case r := <-p.idle:
			if r.Healthy() {
				return r, nil
			}
			p.discard(r)
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Release hands a resource back. Unhealthy resources are closed and their slot freed.
func (p *Pool[R]) Release(r R) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()

	if closed || !r.Healthy() {
		p.discard(r)
		return
	}
	select {
	case p.idle <- r:
	default:
		p.discard(r)
	}
}

func (p *Pool[R]) discard(r R) {
	if err := r.Close(); err != nil {
		p.logger.WithError(err).Warn("Failed to close pooled session")
	}
	p.mu.Lock()
	p.created--
	p.mu.Unlock()
}

// Stats reports pool occupancy.
func (p *Pool[R]) Stats() map[string]interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return map[string]interface{}{
		"size":      p.size,
		"created":   p.created,
		"available": len(p.idle),
		"closed":    p.closed,
	}
}

// Close closes idle resources; resources still lent out are closed on release.
func (p *Pool[R]) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	for {
		select {
		case r := <-p.idle:
			p.discard(r)
		default:
			p.logger.Info("Browser pool closed")
			return
		}
	}
}
