package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/nexconsult/rera-harvester/internal/metrics"
)

// GetMetrics exposes the Prometheus registry
// @Summary Prometheus metrics
// @Tags Metrics
// @Produce plain
// @Success 200 {string} string
// @Router /metrics [get]
func GetMetrics() gin.HandlerFunc {
	return gin.WrapH(metrics.Handler())
}
