package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nexconsult/rera-harvester/internal/models"
	"github.com/sirupsen/logrus"
)

// Version is reported by the health endpoints.
const Version = "1.0.0"

// HealthChecker reports per-dependency health maps.
type HealthChecker interface {
	Health() map[string]interface{}
}

// HealthHandler handles health check requests
type HealthHandler struct {
	services  HealthChecker
	logger    *logrus.Logger
	startTime time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(services HealthChecker, logger *logrus.Logger) *HealthHandler {
	return &HealthHandler{
		services:  services,
		logger:    logger,
		startTime: time.Now(),
	}
}

// GetHealth handles general health check
// @Summary Health check
// @Description Get the health status of the API and its dependencies
// @Tags Health
// @Produce json
// @Success 200 {object} models.HealthResponse
// @Failure 503 {object} models.HealthResponse
// @Router /health [get]
func (h *HealthHandler) GetHealth(c *gin.Context) {
	servicesHealth := h.services.Health()
	now := time.Now()

	response := models.HealthResponse{
		Status:    "healthy",
		Timestamp: now,
		Version:   Version,
		Uptime:    time.Since(h.startTime).String(),
		Services:  make(map[string]models.ServiceInfo, len(servicesHealth)),
	}

	for name, raw := range servicesHealth {
		healthMap, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		info := models.ServiceInfo{
			Status:    statusOf(healthMap),
			Details:   healthMap,
			LastCheck: now,
		}
		if msg, ok := healthMap["error"].(string); ok {
			info.Error = msg
		}

		switch info.Status {
		case "unhealthy":
			response.Status = "unhealthy"
		case "degraded":
			if response.Status == "healthy" {
				response.Status = "degraded"
			}
		}
		response.Services[name] = info
	}

	httpStatus := http.StatusOK
	if response.Status == "unhealthy" {
		httpStatus = http.StatusServiceUnavailable
	}
	c.JSON(httpStatus, response)
}

// statusOf reads a service's status. Maps without one, like the cache's
// per-backend map, are degraded when any backend is unhealthy.
func statusOf(m map[string]interface{}) string {
	if s, ok := m["status"].(string); ok {
		return s
	}
	status := "healthy"
	for _, v := range m {
		if sub, ok := v.(map[string]interface{}); ok && sub["status"] == "unhealthy" {
			status = "degraded"
		}
	}
	return status
}

// GetLiveness handles the liveness check
// @Summary Liveness check
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health/live [get]
func (h *HealthHandler) GetLiveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"alive":     true,
		"timestamp": time.Now(),
		"uptime":    time.Since(h.startTime).String(),
		"version":   Version,
	})
}
