package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nexconsult/rera-harvester/internal/models"
	"github.com/nexconsult/rera-harvester/internal/services"
	"github.com/sirupsen/logrus"
)

// CacheHandler handles cache management requests
type CacheHandler struct {
	cacheService services.CacheServiceInterface
	logger       *logrus.Logger
}

// NewCacheHandler creates a new cache handler
func NewCacheHandler(cacheService services.CacheServiceInterface, logger *logrus.Logger) *CacheHandler {
	return &CacheHandler{
		cacheService: cacheService,
		logger:       logger,
	}
}

// GetStats handles cache statistics request
// @Summary Get cache statistics
// @Description Get cache sizes and backend health
// @Tags Cache
// @Produce json
// @Success 200 {object} models.StandardResponse
// @Failure 500 {object} models.StandardResponse
// @Router /cache/stats [get]
func (h *CacheHandler) GetStats(c *gin.Context) {
	requestID := c.GetString("request_id")

	stats, err := h.cacheService.GetStats(c.Request.Context())
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to get cache statistics")

		h.fail(c, http.StatusInternalServerError, models.ErrorCodeCacheError, "Failed to retrieve cache statistics")
		return
	}

	resp := models.NewSuccessResponse("Cache statistics", gin.H{
		"stats":  stats,
		"health": h.cacheService.Health(),
	})
	resp.SetRequestID(requestID)
	c.JSON(http.StatusOK, resp)
}

// Clear handles cache clear request
// @Summary Clear all cached projects
// @Tags Cache
// @Produce json
// @Success 200 {object} models.StandardResponse
// @Failure 500 {object} models.StandardResponse
// @Router /cache/clear [delete]
func (h *CacheHandler) Clear(c *gin.Context) {
	requestID := c.GetString("request_id")

	if err := h.cacheService.Clear(c.Request.Context()); err != nil {
		h.logger.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to clear cache")

		h.fail(c, http.StatusInternalServerError, models.ErrorCodeCacheError, "Failed to clear cache")
		return
	}

	h.logger.WithField("request_id", requestID).Info("Cache cleared successfully")

	resp := models.NewSuccessResponse("Cache cleared successfully", nil)
	resp.SetRequestID(requestID)
	c.JSON(http.StatusOK, resp)
}

// Delete handles specific cache entry deletion
// @Summary Delete a cached project
// @Description Drop the cached record of one project so the next lookup scrapes it again
// @Tags Cache
// @Param id path int true "Project ID"
// @Produce json
// @Success 200 {object} models.StandardResponse
// @Failure 400 {object} models.StandardResponse
// @Failure 404 {object} models.StandardResponse
// @Failure 500 {object} models.StandardResponse
// @Router /cache/{id} [delete]
func (h *CacheHandler) Delete(c *gin.Context) {
	requestID := c.GetString("request_id")

	id, ok := parseProjectID(c)
	if !ok {
		return
	}
	key := services.ProjectKey(id)
	log := h.logger.WithFields(logrus.Fields{
		"request_id": requestID,
		"project_id": id,
	})

	exists, err := h.cacheService.Exists(c.Request.Context(), key)
	if err != nil {
		log.WithError(err).Error("Failed to check cache key existence")
		h.fail(c, http.StatusInternalServerError, models.ErrorCodeCacheError, "Failed to check cache")
		return
	}
	if !exists {
		h.fail(c, http.StatusNotFound, models.ErrorCodeNotInCache, "Project not found in cache")
		return
	}

	if err := h.cacheService.Delete(c.Request.Context(), key); err != nil {
		log.WithError(err).Error("Failed to delete project from cache")
		h.fail(c, http.StatusInternalServerError, models.ErrorCodeCacheError, "Failed to delete from cache")
		return
	}

	log.Info("Project deleted from cache")

	resp := models.NewSuccessResponse("Project deleted from cache", gin.H{
		"project_id": id,
		"deleted_at": time.Now(),
	})
	resp.SetRequestID(requestID)
	c.JSON(http.StatusOK, resp)
}

func (h *CacheHandler) fail(c *gin.Context, status int, code, message string) {
	resp := models.NewErrorResponse(code, message, nil)
	resp.SetRequestID(c.GetString("request_id"))
	c.JSON(status, resp)
}
