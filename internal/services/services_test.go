package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nexconsult/rera-harvester/internal/logger"
	"github.com/nexconsult/rera-harvester/internal/models"
	"github.com/nexconsult/rera-harvester/internal/service/navigator"
	"github.com/nexconsult/rera-harvester/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSession struct{ navigator.Page }

func (stubSession) Healthy() bool { return true }
func (stubSession) Close() error  { return nil }

type stubPool struct {
	mu       sync.Mutex
	acquired int
	released int
	err      error
}

func (p *stubPool) Acquire(context.Context) (PageSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	p.acquired++
	return stubSession{}, nil
}

func (p *stubPool) Release(PageSession) {
	p.mu.Lock()
	p.released++
	p.mu.Unlock()
}

func (p *stubPool) Stats() map[string]interface{} { return map[string]interface{}{"size": 1} }
func (p *stubPool) Close()                        {}

type stubRunner struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (r *stubRunner) URL(id int) string { return fmt.Sprintf("https://example.test/view/%d", id) }

func (r *stubRunner) Run(_ context.Context, _ navigator.Page, id int) (*models.ProjectRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	b := models.NewRecordBuilder(id)
	b.Set("project_name", "Sunrise Heights")
	b.Set("registration_number", "P51800012345")
	return b.Build(), nil
}

func newTestService(t *testing.T, persist bool) (*ScrapeService, *stubPool, *stubRunner, *storage.RecordTable, *storage.FailedLedger) {
	t.Helper()
	pool := &stubPool{}
	runner := &stubRunner{}
	cache := NewCacheService(nil, time.Hour, logger.Discard())
	if !persist {
		return NewScrapeService(cache, pool, runner, nil, nil, logger.Discard()), pool, runner, nil, nil
	}
	dir := t.TempDir()
	records, err := storage.OpenRecordTable(filepath.Join(dir, "records.csv"))
	require.NoError(t, err)
	ledger, err := storage.OpenFailedLedger(filepath.Join(dir, "failed.csv"))
	require.NoError(t, err)
	return NewScrapeService(cache, pool, runner, records, ledger, logger.Discard()), pool, runner, records, ledger
}

func TestScrapeCachesResult(t *testing.T) {
	svc, pool, runner, _, _ := newTestService(t, false)
	ctx := context.Background()

	first, err := svc.Scrape(ctx, 12345)
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, "https://example.test/view/12345", first.URL)

	second, err := svc.Scrape(ctx, 12345)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	name, ok := second.Record.Get("project_name")
	assert.True(t, ok)
	assert.Equal(t, "Sunrise Heights", name)
	_, ok = second.Record.Get("bank_name")
	assert.False(t, ok)

	assert.Equal(t, 1, runner.calls)
	assert.Equal(t, 1, pool.acquired)
	assert.Equal(t, 1, pool.released)
}

func TestScrapeInvalidate(t *testing.T) {
	svc, _, runner, _, _ := newTestService(t, false)
	ctx := context.Background()

	_, err := svc.Scrape(ctx, 7)
	require.NoError(t, err)
	require.NoError(t, svc.Invalidate(ctx, 7))

	res, err := svc.Scrape(ctx, 7)
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, 2, runner.calls)
}

func TestScrapeRejectsInvalidID(t *testing.T) {
	svc, _, _, _, _ := newTestService(t, false)
	_, err := svc.Scrape(context.Background(), 0)
	assert.ErrorIs(t, err, ErrInvalidProjectID)
	assert.ErrorIs(t, svc.Invalidate(context.Background(), -1), ErrInvalidProjectID)
}

func TestScrapeBrowserUnavailable(t *testing.T) {
	svc, pool, _, _, _ := newTestService(t, false)
	pool.err = errors.New("chrome not found")

	_, err := svc.Scrape(context.Background(), 3)
	assert.ErrorIs(t, err, ErrBrowserUnavailable)
}

func TestScrapePersistsAndClearsLedger(t *testing.T) {
	svc, _, runner, records, ledger := newTestService(t, true)
	ctx := context.Background()

	runner.err = &navigator.AttemptError{ProjectID: 9, State: navigator.StateChallengePending, Kind: navigator.ErrChallengeUnsolved}
	_, err := svc.Scrape(ctx, 9)
	require.ErrorIs(t, err, navigator.ErrChallengeUnsolved)
	assert.True(t, ledger.Contains(9))
	assert.False(t, records.Contains(9))

	runner.err = nil
	_, err = svc.Scrape(ctx, 9)
	require.NoError(t, err)
	assert.True(t, records.Contains(9))
	assert.False(t, ledger.Contains(9))

	// A second scrape after invalidation does not duplicate the row.
	require.NoError(t, svc.Invalidate(ctx, 9))
	_, err = svc.Scrape(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, 1, records.Len())
}

func TestScrapeNeverLeavesRecordedIDInLedger(t *testing.T) {
	svc, _, runner, records, ledger := newTestService(t, true)
	ctx := context.Background()

	_, err := svc.Scrape(ctx, 11)
	require.NoError(t, err)
	require.True(t, records.Contains(11))

	require.NoError(t, svc.Invalidate(ctx, 11))
	runner.err = &navigator.AttemptError{ProjectID: 11, State: navigator.StateNavigating, Kind: navigator.ErrNavigation}
	_, err = svc.Scrape(ctx, 11)
	require.ErrorIs(t, err, navigator.ErrNavigation)
	assert.False(t, ledger.Contains(11))

	require.NoError(t, svc.Invalidate(ctx, 11))
	runner.err = nil
	_, err = svc.Scrape(ctx, 11)
	require.NoError(t, err)
	assert.True(t, records.Contains(11))
	assert.False(t, ledger.Contains(11))
	assert.Equal(t, 1, records.Len())
}

func TestScrapeClearsStaleLedgerEntry(t *testing.T) {
	svc, _, _, records, ledger := newTestService(t, true)
	ctx := context.Background()

	// Left behind by an earlier run that crashed between the two writes.
	require.NoError(t, records.Append(models.NewRecordBuilder(12).Build()))
	_, err := ledger.Add(models.FailedEntry{ProjectID: 12, URL: "https://example.test/view/12"})
	require.NoError(t, err)

	_, err = svc.Scrape(ctx, 12)
	require.NoError(t, err)
	assert.False(t, ledger.Contains(12))
	assert.Equal(t, 1, records.Len())
}

func TestScrapeDiscardsCorruptCacheEntry(t *testing.T) {
	svc, _, runner, _, _ := newTestService(t, false)
	ctx := context.Background()
	require.NoError(t, svc.cache.Set(ctx, ProjectKey(5), "{not json"))

	res, err := svc.Scrape(ctx, 5)
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, 1, runner.calls)
}

func TestMemoryCache(t *testing.T) {
	c := NewCacheService(nil, 50*time.Millisecond, logger.Discard())
	ctx := context.Background()

	_, err := c.Get(ctx, ProjectKey(1))
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Set(ctx, ProjectKey(1), "a"))
	require.NoError(t, c.Set(ctx, "other:key", "b"))
	v, err := c.Get(ctx, ProjectKey(1))
	require.NoError(t, err)
	assert.Equal(t, "a", v)

	ok, err := c.Exists(ctx, ProjectKey(1))
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, c.Clear(ctx))
	_, err = c.Get(ctx, ProjectKey(1))
	assert.ErrorIs(t, err, ErrCacheMiss)
	v, err = c.Get(ctx, "other:key")
	require.NoError(t, err)
	assert.Equal(t, "b", v)

	time.Sleep(60 * time.Millisecond)
	_, err = c.Get(ctx, "other:key")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestCacheCleanupEvictsExpired(t *testing.T) {
	c := NewCacheService(nil, time.Millisecond, logger.Discard())
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, ProjectKey(1), "a"))
	require.NoError(t, c.Set(ctx, ProjectKey(2), "b"))

	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, 2, c.cleanupExpired())

	stats, err := c.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats["memory"].(map[string]interface{})["size"])
	assert.Equal(t, "disabled", c.Health()["redis"].(map[string]interface{})["status"])
}

func TestProjectKey(t *testing.T) {
	assert.Equal(t, "rera:project:12345", ProjectKey(12345))
}
