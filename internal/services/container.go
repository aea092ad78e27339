package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nexconsult/rera-harvester/internal/config"
	"github.com/nexconsult/rera-harvester/internal/service/browser"
	"github.com/nexconsult/rera-harvester/internal/service/captcha"
	"github.com/nexconsult/rera-harvester/internal/service/extractor"
	"github.com/nexconsult/rera-harvester/internal/service/navigator"
	"github.com/nexconsult/rera-harvester/internal/storage"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const cacheCleanupInterval = 5 * time.Minute

// Container holds all service dependencies
type Container struct {
	config      *config.Config
	logger      *logrus.Logger
	redisClient *redis.Client
	stop        context.CancelFunc

	CacheService  *CacheService
	ScrapeService *ScrapeService
	Records       *storage.RecordTable
	Ledger        *storage.FailedLedger
}

// NewContainer creates a new service container
func NewContainer(cfg *config.Config, logger *logrus.Logger) (*Container, error) {
	container := &Container{
		config: cfg,
		logger: logger,
	}

	container.initRedis()

	if err := container.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return container, nil
}

// initRedis connects to Redis; the cache runs from memory when it is disabled or unreachable.
func (c *Container) initRedis() {
	if !c.config.Redis.Enabled {
		c.logger.Info("Redis disabled, using in-memory cache")
		return
	}

	c.redisClient = redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", c.config.Redis.Host, c.config.Redis.Port),
		Password:     c.config.Redis.Password,
		DB:           c.config.Redis.DB,
		PoolSize:     c.config.Redis.PoolSize,
		DialTimeout:  c.config.Redis.DialTimeout,
		ReadTimeout:  c.config.Redis.ReadTimeout,
		WriteTimeout: c.config.Redis.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), c.config.Redis.DialTimeout)
	defer cancel()
	if err := c.redisClient.Ping(ctx).Err(); err != nil {
		c.logger.WithError(err).Warn("Redis connection failed, running with in-memory cache")
		_ = c.redisClient.Close()
		c.redisClient = nil
		return
	}
	c.logger.Info("Redis connection established")
}

func (c *Container) initServices() error {
	ctx, stop := context.WithCancel(context.Background())
	c.stop = stop

	c.CacheService = NewCacheService(c.redisClient, c.config.Server.CacheTTL, c.logger)
	c.CacheService.StartCleanupRoutine(ctx, cacheCleanupInterval)

	factory := browser.NewFactory(c.config.Browser, c.config.Captcha.SubmitTimeout, c.logger)
	pool := browser.NewPool[PageSession](c.config.Browser.PoolSize, func(ctx context.Context) (PageSession, error) {
		s, err := factory.NewSession(ctx)
		if err != nil {
			return nil, err
		}
		return s, nil
	}, c.logger)

	solver := captcha.NewSolver(c.config.Captcha, nil, c.logger)
	engine := extractor.NewEngine(c.logger)
	nav := navigator.New(c.config.Harvest.ProjectURL, solver, engine, c.config.Captcha, c.logger)

	var (
		records RecordStore
		ledger  FailureLedger
	)
	if c.config.Server.Persist {
		var err error
		if c.Records, err = storage.OpenRecordTable(c.config.Harvest.RecordsFile); err != nil {
			return err
		}
		if c.Ledger, err = storage.OpenFailedLedger(c.config.Harvest.FailedFile); err != nil {
			return err
		}
		records, ledger = c.Records, c.Ledger
		c.logger.WithFields(logrus.Fields{
			"records_file": c.Records.Path(),
			"failed_file":  c.Ledger.Path(),
		}).Info("API results are persisted")
	}

	c.ScrapeService = NewScrapeService(c.CacheService, pool, nav, records, ledger, c.logger)
	return nil
}

// Close closes all service connections
func (c *Container) Close() error {
	var errs []error

	if c.stop != nil {
		c.stop()
	}
	if c.ScrapeService != nil {
		if err := c.ScrapeService.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close scrape service: %w", err))
		}
	}
	if c.redisClient != nil {
		if err := c.redisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close Redis: %w", err))
		}
	}

	return errors.Join(errs...)
}

// Health checks the health of all services
func (c *Container) Health() map[string]interface{} {
	health := map[string]interface{}{
		"cache": c.CacheService.Health(),
	}
	if c.ScrapeService != nil {
		health["scrape"] = c.ScrapeService.Health()
	}
	return health
}

// GetConfig returns the configuration
func (c *Container) GetConfig() *config.Config {
	return c.config
}

// GetLogger returns the logger
func (c *Container) GetLogger() *logrus.Logger {
	return c.logger
}
