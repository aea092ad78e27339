package services

import (
	"context"

	"github.com/nexconsult/rera-harvester/internal/models"
	"github.com/nexconsult/rera-harvester/internal/service/navigator"
)

// ScrapeServiceInterface defines the on-demand scrape capability
type ScrapeServiceInterface interface {
	// Scrape returns the record of one project, from cache when fresh
	Scrape(ctx context.Context, projectID int) (*ScrapeResult, error)

	// Invalidate drops the cached record of a project
	Invalidate(ctx context.Context, projectID int) error

	// Health returns service health status
	Health() map[string]interface{}

	// Close releases browser sessions
	Close() error
}

// CacheServiceInterface defines the interface for cache service
type CacheServiceInterface interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Exists(ctx context.Context, key string) (bool, error)
	GetStats(ctx context.Context) (map[string]interface{}, error)
	Health() map[string]interface{}
}

// PageSession is a pooled browser session.
type PageSession interface {
	navigator.Page
	Healthy() bool
	Close() error
}

// SessionPool lends browser sessions to concurrent requests.
type SessionPool interface {
	Acquire(ctx context.Context) (PageSession, error)
	Release(s PageSession)
	Stats() map[string]interface{}
	Close()
}

// ProjectRunner runs one attempt at a project page.
type ProjectRunner interface {
	Run(ctx context.Context, page navigator.Page, projectID int) (*models.ProjectRecord, error)
	URL(projectID int) string
}

// RecordStore is the record table as seen by the API.
type RecordStore interface {
	Append(rec *models.ProjectRecord) error
	Contains(projectID int) bool
}

// FailureLedger is the failed ledger as seen by the API.
type FailureLedger interface {
	Add(entry models.FailedEntry) (bool, error)
	Remove(projectID int) (bool, error)
}
