package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nexconsult/rera-harvester/internal/models"
	"github.com/nexconsult/rera-harvester/internal/service/navigator"
	"github.com/nexconsult/rera-harvester/internal/services"
	"github.com/sirupsen/logrus"
)

// ProjectHandler serves single projects from the registry
type ProjectHandler struct {
	scrape services.ScrapeServiceInterface
	logger *logrus.Logger
}

// NewProjectHandler creates a new project handler
func NewProjectHandler(scrape services.ScrapeServiceInterface, logger *logrus.Logger) *ProjectHandler {
	return &ProjectHandler{
		scrape: scrape,
		logger: logger,
	}
}

// GetProject handles a single project lookup
// @Summary Get a registered project
// @Description Scrape the public registry page of a project, solving its challenge, and return the flat record. Fresh results are served from cache.
// @Tags Projects
// @Produce json
// @Param id path int true "Project ID" example(12345)
// @Success 200 {object} models.StandardResponse{data=services.ScrapeResult}
// @Failure 400 {object} models.StandardResponse
// @Failure 429 {object} models.StandardResponse
// @Failure 502 {object} models.StandardResponse
// @Failure 503 {object} models.StandardResponse
// @Failure 504 {object} models.StandardResponse
// @Router /projects/{id} [get]
func (h *ProjectHandler) GetProject(c *gin.Context) {
	start := time.Now()
	requestID := c.GetString("request_id")

	id, ok := parseProjectID(c)
	if !ok {
		return
	}
	log := h.logger.WithFields(logrus.Fields{
		"request_id": requestID,
		"project_id": id,
	})

	result, err := h.scrape.Scrape(c.Request.Context(), id)
	if err != nil {
		status, code, message := classify(err)
		log.WithError(err).WithFields(logrus.Fields{
			"code":     code,
			"duration": time.Since(start).String(),
		}).Error("Failed to scrape project")

		resp := models.NewErrorResponse(code, message, nil)
		resp.SetRequestID(requestID)
		resp.SetExecutionTime(time.Since(start))
		c.JSON(status, resp)
		return
	}

	log.WithFields(logrus.Fields{
		"cached":   result.Cached,
		"duration": time.Since(start).String(),
	}).Info("Project lookup completed")

	if result.Cached {
		c.Header("X-Cache", "HIT")
	} else {
		c.Header("X-Cache", "MISS")
	}

	resp := models.NewSuccessResponse("Project scraped", result)
	resp.Meta.Cached = result.Cached
	resp.SetRequestID(requestID)
	resp.SetExecutionTime(time.Since(start))
	c.JSON(http.StatusOK, resp)
}

// classify maps a scrape failure to a status, an error code and a client message.
func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, services.ErrInvalidProjectID):
		return http.StatusBadRequest, models.ErrorCodeInvalidProjectID, err.Error()
	case errors.Is(err, services.ErrBrowserUnavailable):
		return http.StatusServiceUnavailable, models.ErrorCodeUnavailable, "No browser session is available, try again later"
	case errors.Is(err, navigator.ErrChallengeUnsolved):
		return http.StatusServiceUnavailable, models.ErrorCodeCaptchaError, "The challenge could not be solved, try again later"
	case errors.Is(err, navigator.ErrNavigation):
		return http.StatusBadGateway, models.ErrorCodeNavigationError, "The registry page could not be loaded"
	case errors.Is(err, navigator.ErrRenderTimeout):
		return http.StatusGatewayTimeout, models.ErrorCodeRenderTimeout, "The registry page did not finish rendering"
	case errors.Is(err, navigator.ErrExtraction):
		return http.StatusBadGateway, models.ErrorCodeExtractionError, "The registry page did not contain project details"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout, models.ErrorCodeTimeout, "The request took too long to process"
	default:
		return http.StatusInternalServerError, models.ErrorCodeInternalError, "An unexpected error occurred"
	}
}

// parseProjectID reads the :id path parameter, answering 400 itself when it is invalid.
func parseProjectID(c *gin.Context) (int, bool) {
	raw := c.Param("id")
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		resp := models.NewErrorResponse(models.ErrorCodeInvalidProjectID, "Project ID must be a positive integer", gin.H{"id": raw})
		resp.SetRequestID(c.GetString("request_id"))
		c.JSON(http.StatusBadRequest, resp)
		return 0, false
	}
	return id, true
}
