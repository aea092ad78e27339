package browser

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
)

// ErrNetworkBusy is returned when the page never went quiet before the deadline.
var ErrNetworkBusy = errors.New("network did not become idle")

// Page lifecycle event names, as emitted once SetLifecycleEventsEnabled is on.
const (
	lifecycleInit        = "init"
	lifecycleNetworkIdle = "networkIdle"
)

type frameState struct {
	loader cdp.LoaderID
	idle   bool
}

// lifecycle follows page lifecycle events per frame. "init" starts a new
// document in a frame and "networkIdle" marks that document quiet.
type lifecycle struct {
	mu      sync.Mutex
	frames  map[cdp.FrameID]frameState
	main    cdp.FrameID
	changed chan struct{}
}

func newLifecycle() *lifecycle {
	return &lifecycle{frames: make(map[cdp.FrameID]frameState), changed: make(chan struct{})}
}

// notify wakes every waiter. Callers hold mu.
func (l *lifecycle) notify() {
	close(l.changed)
	l.changed = make(chan struct{})
}

func (l *lifecycle) event(frame cdp.FrameID, loader cdp.LoaderID, name string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.frames[frame]
	switch name {
	case lifecycleInit:
		st = frameState{loader: loader}
	case lifecycleNetworkIdle:
		// A late event of a replaced document must not mark the new one idle.
		if st.loader != "" && st.loader != loader {
			return
		}
		st = frameState{loader: loader, idle: true}
	default:
		return
	}
	l.frames[frame] = st
	l.notify()
}

// navigated records the main frame and the loader of the document just requested.
func (l *lifecycle) navigated(frame cdp.FrameID, loader cdp.LoaderID) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.main = frame
	if st := l.frames[frame]; st.loader != loader {
		l.frames[frame] = frameState{loader: loader}
	}
	l.notify()
}

func (l *lifecycle) idle() (bool, <-chan struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.main != "" && l.frames[l.main].idle, l.changed
}

// waitIdle blocks until the main frame's current document has reached
// networkIdle, or timeout elapses.
func (l *lifecycle) waitIdle(ctx context.Context, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		ok, changed := l.idle()
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return ErrNetworkBusy
		case <-changed:
		}
	}
}
