// Package api exposes the on-demand scrape capability over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nexconsult/rera-harvester/internal/api/handlers"
	"github.com/nexconsult/rera-harvester/internal/api/middleware"
	"github.com/nexconsult/rera-harvester/internal/config"
	"github.com/nexconsult/rera-harvester/internal/models"
	"github.com/nexconsult/rera-harvester/internal/services"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Deps are the services the routes call into.
type Deps struct {
	Scrape services.ScrapeServiceInterface
	Cache  services.CacheServiceInterface
	Health handlers.HealthChecker
}

// DepsFromContainer wires Deps from a service container.
func DepsFromContainer(c *services.Container) Deps {
	return Deps{Scrape: c.ScrapeService, Cache: c.CacheService, Health: c}
}

// Server represents the HTTP server
type Server struct {
	Router *gin.Engine
	config *config.Config
	logger *logrus.Logger
	deps   Deps
	stop   context.CancelFunc
}

// NewServer creates a new HTTP server
func NewServer(cfg *config.Config, logger *logrus.Logger, deps Deps) *Server {
	server := &Server{
		config: cfg,
		logger: logger,
		deps:   deps,
	}

	server.setupRouter()
	return server
}

func (s *Server) setupRouter() {
	ctx, stop := context.WithCancel(context.Background())
	s.stop = stop

	s.Router = gin.New()

	s.Router.Use(middleware.RequestID())
	s.Router.Use(middleware.Logger(s.logger))
	s.Router.Use(middleware.Recovery(s.logger))
	s.Router.Use(middleware.CORS(s.config.Security.CORS))
	s.Router.Use(middleware.Security())

	healthHandler := handlers.NewHealthHandler(s.deps.Health, s.logger)
	s.Router.GET("/health", healthHandler.GetHealth)
	s.Router.GET("/health/live", healthHandler.GetLiveness)
	s.Router.GET("/metrics", handlers.GetMetrics())

	if s.config.Server.Environment != "production" {
		s.Router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
		s.Router.GET("/", func(c *gin.Context) {
			c.Redirect(http.StatusMovedPermanently, "/swagger/index.html")
		})
	}

	rateLimiter := middleware.NewRateLimiter(ctx, s.config.Security.RateLimit)

	v1 := s.Router.Group("/api/v1")
	v1.Use(rateLimiter.Middleware())
	{
		projectHandler := handlers.NewProjectHandler(s.deps.Scrape, s.logger)
		v1.GET("/projects/:id", projectHandler.GetProject)

		cacheHandler := handlers.NewCacheHandler(s.deps.Cache, s.logger)
		cache := v1.Group("/cache")
		{
			cache.GET("/stats", cacheHandler.GetStats)
			cache.DELETE("/clear", cacheHandler.Clear)
			cache.DELETE("/:id", cacheHandler.Delete)
		}
	}

	s.Router.NoRoute(func(c *gin.Context) {
		resp := models.NewErrorResponse("NOT_FOUND", "The requested resource was not found", gin.H{"path": c.Request.URL.Path})
		resp.SetRequestID(c.GetString(middleware.RequestIDKey))
		c.JSON(http.StatusNotFound, resp)
	})
}

// ListenAndServe serves until ctx is canceled, then drains in-flight requests
// for up to shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, shutdownTimeout time.Duration) error {
	defer s.stop()

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:      s.Router,
		ReadTimeout:  time.Duration(s.config.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(s.config.Server.IdleTimeout) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithFields(logrus.Fields{
			"port":        s.config.Server.Port,
			"environment": s.config.Server.Environment,
		}).Info("Server starting...")

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	s.logger.Info("Server exited")
	return nil
}
