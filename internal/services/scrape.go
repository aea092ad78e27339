package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nexconsult/rera-harvester/internal/metrics"
	"github.com/nexconsult/rera-harvester/internal/models"
	"github.com/sirupsen/logrus"
)

var (
	ErrInvalidProjectID   = errors.New("project id must be a positive integer")
	ErrBrowserUnavailable = errors.New("no browser session available")
)

// ScrapeResult is one project served by the API.
type ScrapeResult struct {
	ProjectID int                   `json:"project_id"`
	URL       string                `json:"url"`
	Record    *models.ProjectRecord `json:"record"`
	Cached    bool                  `json:"cached"`
	Duration  time.Duration         `json:"-"`
}

// ScrapeService serves single projects on demand.
type ScrapeService struct {
	cache   CacheServiceInterface
	pool    SessionPool
	runner  ProjectRunner
	records RecordStore
	ledger  FailureLedger
	logger  *logrus.Logger
}

// NewScrapeService wires a scrape service. records and ledger may both be nil,
// in which case results are only cached.
func NewScrapeService(cache CacheServiceInterface, pool SessionPool, runner ProjectRunner, records RecordStore, ledger FailureLedger, logger *logrus.Logger) *ScrapeService {
	return &ScrapeService{
		cache:   cache,
		pool:    pool,
		runner:  runner,
		records: records,
		ledger:  ledger,
		logger:  logger,
	}
}

func (s *ScrapeService) persisting() bool { return s.records != nil && s.ledger != nil }

// Scrape returns the cached record of projectID or harvests it on a pooled session.
func (s *ScrapeService) Scrape(ctx context.Context, projectID int) (*ScrapeResult, error) {
	if projectID < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidProjectID, projectID)
	}
	start := time.Now()
	log := s.logger.WithField("project_id", projectID)
	result := &ScrapeResult{ProjectID: projectID, URL: s.runner.URL(projectID)}

	if rec, ok := s.cached(ctx, projectID); ok {
		result.Record = rec
		result.Cached = true
		result.Duration = time.Since(start)
		log.Debug("Served project from cache")
		return result, nil
	}

	sess, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBrowserUnavailable, err)
	}
	defer s.pool.Release(sess)

	rec, err := s.runner.Run(ctx, sess, projectID)
	if err != nil {
		metrics.ObserveAttempt("api", metrics.OutcomeFailure, time.Since(start))
		// An ID already in the record table stays out of the ledger.
		if s.persisting() && ctx.Err() == nil && !s.records.Contains(projectID) {
			if _, lerr := s.ledger.Add(models.FailedEntry{ProjectID: projectID, URL: result.URL}); lerr != nil {
				log.WithError(lerr).WithField("persistence_error", true).Error("Failed to write failed ledger entry")
			}
		}
		return nil, err
	}
	metrics.ObserveAttempt("api", metrics.OutcomeSuccess, time.Since(start))

	if data, err := json.Marshal(rec); err == nil {
		_ = s.cache.Set(ctx, ProjectKey(projectID), string(data))
	} else {
		log.WithError(err).Warn("Failed to encode record for cache")
	}
	s.persist(rec, log)

	result.Record = rec
	result.Duration = time.Since(start)
	log.WithFields(logrus.Fields{
		"populated": rec.Populated(),
		"duration":  result.Duration.String(),
	}).Info("Project scraped on demand")
	return result, nil
}

func (s *ScrapeService) cached(ctx context.Context, projectID int) (*models.ProjectRecord, bool) {
	raw, err := s.cache.Get(ctx, ProjectKey(projectID))
	if err != nil {
		return nil, false
	}
	var rec models.ProjectRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil || rec.ProjectID() != projectID {
		s.logger.WithField("project_id", projectID).Warn("Discarding unreadable cache entry")
		_ = s.cache.Delete(ctx, ProjectKey(projectID))
		return nil, false
	}
	return &rec, true
}

func (s *ScrapeService) persist(rec *models.ProjectRecord, log *logrus.Entry) {
	if !s.persisting() {
		return
	}
	if !s.records.Contains(rec.ProjectID()) {
		if err := s.records.Append(rec); err != nil {
			log.WithError(err).WithField("persistence_error", true).Error("Failed to write record")
			return
		}
		metrics.IncRecordsWritten()
	}
	if _, err := s.ledger.Remove(rec.ProjectID()); err != nil {
		log.WithError(err).WithField("persistence_error", true).Error("Failed to remove project from failed ledger")
	}
}

// Invalidate drops the cached record of projectID.
func (s *ScrapeService) Invalidate(ctx context.Context, projectID int) error {
	if projectID < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidProjectID, projectID)
	}
	return s.cache.Delete(ctx, ProjectKey(projectID))
}

// Health reports the session pool and persistence mode.
func (s *ScrapeService) Health() map[string]interface{} {
	return map[string]interface{}{
		"status":  "healthy",
		"pool":    s.pool.Stats(),
		"persist": s.persisting(),
	}
}

// Close closes the session pool.
func (s *ScrapeService) Close() error {
	s.pool.Close()
	return nil
}
