package worker

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nexconsult/rera-harvester/internal/logger"
	"github.com/nexconsult/rera-harvester/internal/models"
	"github.com/nexconsult/rera-harvester/internal/service/navigator"
	"github.com/nexconsult/rera-harvester/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	id      int
	healthy atomic.Bool
	closed  atomic.Int32
}

func (s *fakeSession) Navigate(context.Context, string) error { return nil }
func (s *fakeSession) CaptureChallenge(context.Context) ([]byte, error) { return nil, nil }
func (s *fakeSession) SubmitChallenge(context.Context, string) error { return nil }
func (s *fakeSession) ChallengeAccepted(context.Context) (bool, error) { return true, nil }
func (s *fakeSession) WaitStable(context.Context) error { return nil }
func (s *fakeSession) HTML(context.Context) (string, error) { return "", nil }
func (s *fakeSession) Healthy() bool { return s.healthy.Load() }
func (s *fakeSession) Close() error { s.closed.Add(1); return nil }

type fakeFactory struct {
	mu       sync.Mutex
	sessions []*fakeSession
	failFor  int
	calls    int
}

func (f *fakeFactory) NewSession(context.Context) (Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failFor {
		return nil, errors.New("chrome failed to start")
	}
	s := &fakeSession{id: len(f.sessions) + 1}
	s.healthy.Store(true)
	f.sessions = append(f.sessions, s)
	return s, nil
}

func (f *fakeFactory) created() []*fakeSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeSession(nil), f.sessions...)
}

// scriptedRunner fails or panics according to per-ID scripts.
type scriptedRunner struct {
	mu         sync.Mutex
	calls      map[int]int
	failTimes  map[int]int
	alwaysFail map[int]bool
	panicOnce  map[int]bool
	onRun      func(ctx context.Context, page navigator.Page, id int) error
}

func newScriptedRunner() *scriptedRunner {
	return &scriptedRunner{
		calls:      make(map[int]int),
		failTimes:  make(map[int]int),
		alwaysFail: make(map[int]bool),
		panicOnce:  make(map[int]bool),
	}
}

func (r *scriptedRunner) URL(id int) string {
	return fmt.Sprintf("https://example.test/public/project/view/%d", id)
}

func (r *scriptedRunner) Run(ctx context.Context, page navigator.Page, id int) (*models.ProjectRecord, error) {
	r.mu.Lock()
	r.calls[id]++
	n := r.calls[id]
	fail := r.alwaysFail[id] || n <= r.failTimes[id]
	doPanic := r.panicOnce[id] && n == 1
	onRun := r.onRun
	r.mu.Unlock()

	if onRun != nil {
		if err := onRun(ctx, page, id); err != nil {
			return nil, err
		}
	}
	if doPanic {
		panic("detail page script crashed")
	}
	if fail {
		return nil, &navigator.AttemptError{ProjectID: id, State: navigator.StateChallengePending, Kind: navigator.ErrChallengeUnsolved}
	}
	b := models.NewRecordBuilder(id)
	b.Set("project_name", fmt.Sprintf("Project %d", id))
	return b.Build(), nil
}

func (r *scriptedRunner) callsFor(id int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[id]
}

type harness struct {
	records *storage.RecordTable
	ledger  *storage.FailedLedger
	factory *fakeFactory
	runner  *scriptedRunner
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	records, err := storage.OpenRecordTable(filepath.Join(dir, "records.csv"))
	require.NoError(t, err)
	ledger, err := storage.OpenFailedLedger(filepath.Join(dir, "failed.csv"))
	require.NoError(t, err)
	return &harness{records: records, ledger: ledger, factory: &fakeFactory{}, runner: newScriptedRunner()}
}

func (h *harness) pool(t *testing.T, cfg Config, sink RecordSink) *Pool {
	t.Helper()
	if sink == nil {
		sink = h.records
	}
	p, err := NewPool(cfg, Deps{Sessions: h.factory, Runner: h.runner, Records: sink, Ledger: h.ledger}, logger.Discard())
	require.NoError(t, err)
	return p
}

func testConfig() Config {
	return Config{Workers: 3, RetryWorkers: 2, RetryDelay: 5 * time.Millisecond}
}

func idRange(from, to int) []int {
	ids := make([]int, 0, to-from+1)
	for i := from; i <= to; i++ {
		ids = append(ids, i)
	}
	return ids
}

func assertSessionsClosed(t *testing.T, f *fakeFactory) {
	t.Helper()
	for _, s := range f.created() {
		assert.Equalf(t, int32(1), s.closed.Load(), "session %d closed %d times", s.id, s.closed.Load())
	}
}

func TestPoolNoIDLoss(t *testing.T) {
	h := newHarness(t)
	for id := 3; id <= 30; id += 3 {
		h.runner.failTimes[id] = 1
	}
	h.runner.alwaysFail[7] = true

	cfg := testConfig()
	cfg.MaxRetryAttempts = 3
	stats, err := h.pool(t, cfg, nil).Run(context.Background(), idRange(1, 30))
	require.NoError(t, err)

	for id := 1; id <= 30; id++ {
		inRecords, inLedger := h.records.Contains(id), h.ledger.Contains(id)
		assert.Truef(t, inRecords != inLedger, "project %d: records=%v ledger=%v", id, inRecords, inLedger)
	}
	assert.True(t, h.ledger.Contains(7))
	assert.Equal(t, 1, h.ledger.Len())
	assert.Equal(t, 29, h.records.Len())

	assert.Equal(t, int64(29), stats.Succeeded)
	assert.Equal(t, int64(1), stats.DeadLettered)
	assert.Equal(t, int64(10+3), stats.Failed)
	assert.Equal(t, int64(10+2), stats.Retried)
	assert.Equal(t, 3, h.runner.callsFor(7))
	assertSessionsClosed(t, h.factory)
}

func TestPoolRetryConvergence(t *testing.T) {
	h := newHarness(t)
	// Left over from an earlier run.
	_, err := h.ledger.Add(models.FailedEntry{ProjectID: 5, URL: h.runner.URL(5)})
	require.NoError(t, err)
	h.runner.failTimes[5] = 1

	stats, err := h.pool(t, testConfig(), nil).Run(context.Background(), []int{4, 5, 6})
	require.NoError(t, err)

	assert.True(t, h.records.Contains(5))
	assert.False(t, h.ledger.Contains(5))
	assert.Equal(t, 0, h.ledger.Len())
	assert.Equal(t, 2, h.runner.callsFor(5))
	assert.Equal(t, int64(3), stats.Succeeded)
	assert.Equal(t, int64(1), stats.Retried)
}

func TestPoolRecoversFromPanics(t *testing.T) {
	h := newHarness(t)
	h.runner.panicOnce[3] = true

	stats, err := h.pool(t, testConfig(), nil).Run(context.Background(), idRange(1, 5))
	require.NoError(t, err)

	assert.True(t, h.records.Contains(3))
	assert.False(t, h.ledger.Contains(3))
	assert.Equal(t, int64(5), stats.Succeeded)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, 5, h.records.Len())
}

func TestPoolOneSessionPerWorker(t *testing.T) {
	h := newHarness(t)
	used := sync.Map{}
	h.runner.onRun = func(_ context.Context, page navigator.Page, id int) error {
		used.Store(page.(*fakeSession).id, true)
		return nil
	}

	cfg := Config{Workers: 2, RetryWorkers: 1, RetryDelay: time.Millisecond}
	_, err := h.pool(t, cfg, nil).Run(context.Background(), idRange(1, 40))
	require.NoError(t, err)

	assert.Len(t, h.factory.created(), 3)
	distinct := 0
	used.Range(func(_, _ any) bool { distinct++; return true })
	assert.LessOrEqual(t, distinct, 3)
	assert.Equal(t, 40, h.records.Len())
	assertSessionsClosed(t, h.factory)
}

func TestPoolReplacesUnhealthySession(t *testing.T) {
	h := newHarness(t)
	h.runner.onRun = func(_ context.Context, page navigator.Page, id int) error {
		if id == 2 {
			page.(*fakeSession).healthy.Store(false)
		}
		return nil
	}

	cfg := Config{Workers: 1, RetryWorkers: 1, RetryDelay: time.Millisecond}
	_, err := h.pool(t, cfg, nil).Run(context.Background(), idRange(1, 4))
	require.NoError(t, err)

	assert.Len(t, h.factory.created(), 3)
	assert.Equal(t, 4, h.records.Len())
	assertSessionsClosed(t, h.factory)
}

func TestPoolRetriesSessionCreation(t *testing.T) {
	h := newHarness(t)
	h.factory.failFor = 2

	cfg := Config{Workers: 1, RetryWorkers: 1, RetryDelay: time.Millisecond}
	stats, err := h.pool(t, cfg, nil).Run(context.Background(), []int{1, 2})
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Succeeded)
}

type failingSink struct {
	RecordSink
	failID int
}

func (s failingSink) Append(rec *models.ProjectRecord) error {
	if rec.ProjectID() == s.failID {
		return errors.New("no space left on device")
	}
	return s.RecordSink.Append(rec)
}

func TestPoolPersistenceErrorKeepsIDInLedger(t *testing.T) {
	h := newHarness(t)

	stats, err := h.pool(t, testConfig(), failingSink{RecordSink: h.records, failID: 4}).Run(context.Background(), idRange(1, 6))
	require.NoError(t, err)

	assert.False(t, h.records.Contains(4))
	assert.True(t, h.ledger.Contains(4))
	assert.Equal(t, 1, h.runner.callsFor(4))
	assert.Equal(t, int64(1), stats.PersistErrors)
	assert.Equal(t, int64(5), stats.Succeeded)
}

func TestPoolCancellationDropsInFlight(t *testing.T) {
	h := newHarness(t)
	started := make(chan struct{})
	var once sync.Once
	h.runner.onRun = func(ctx context.Context, _ navigator.Page, _ int) error {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	cfg := Config{Workers: 1, RetryWorkers: 1, RetryDelay: time.Millisecond}
	stats, err := h.pool(t, cfg, nil).Run(ctx, []int{1, 2, 3})
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, int64(1), stats.Dropped)
	assert.Equal(t, int64(0), stats.Succeeded)
	assert.Equal(t, 0, h.records.Len())
	assert.Equal(t, 0, h.ledger.Len())
	assertSessionsClosed(t, h.factory)
}

func TestPoolSeededRetries(t *testing.T) {
	h := newHarness(t)
	_, err := h.ledger.Add(models.FailedEntry{ProjectID: 90, URL: h.runner.URL(90)})
	require.NoError(t, err)

	stats, err := h.pool(t, testConfig(), nil).RunSeeded(context.Background(), []int{1, 2}, []int{90})
	require.NoError(t, err)

	assert.True(t, h.records.Contains(90))
	assert.Equal(t, 0, h.ledger.Len())
	assert.Equal(t, int64(3), stats.Succeeded)
	assert.Equal(t, int64(0), stats.Retried)
}

func TestPoolRejectsConcurrentRun(t *testing.T) {
	h := newHarness(t)
	release := make(chan struct{})
	h.runner.onRun = func(ctx context.Context, _ navigator.Page, _ int) error {
		<-release
		return nil
	}
	p := h.pool(t, Config{Workers: 1, RetryWorkers: 1}, nil)

	done := make(chan error, 1)
	go func() {
		_, err := p.Run(context.Background(), []int{1})
		done <- err
	}()

	require.Eventually(t, func() bool { return h.runner.callsFor(1) == 1 }, time.Second, 5*time.Millisecond)
	_, err := p.Run(context.Background(), []int{2})
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	close(release)
	require.NoError(t, <-done)
}

func TestPoolEmptyRun(t *testing.T) {
	h := newHarness(t)
	stats, err := h.pool(t, testConfig(), nil).Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, stats.Processed)
	assert.Zero(t, stats.Succeeded)
	assert.Empty(t, h.factory.created())
}

func TestNewPoolValidates(t *testing.T) {
	h := newHarness(t)
	deps := Deps{Sessions: h.factory, Runner: h.runner, Records: h.records, Ledger: h.ledger}

	tests := []struct {
		name string
		cfg  Config
		deps Deps
	}{
		{"no workers", Config{Workers: 0, RetryWorkers: 1}, deps},
		{"no retry workers", Config{Workers: 1, RetryWorkers: 0}, deps},
		{"negative delay", Config{Workers: 1, RetryWorkers: 1, RetryDelay: -time.Second}, deps},
		{"negative budget", Config{Workers: 1, RetryWorkers: 1, MaxRetryAttempts: -1}, deps},
		{"missing deps", Config{Workers: 1, RetryWorkers: 1}, Deps{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPool(tt.cfg, tt.deps, logger.Discard())
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}
