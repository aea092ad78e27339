package models

import "time"

// StandardResponse is the envelope returned by every API endpoint
// @Description Unified response envelope
type StandardResponse struct {
	// Operation status (success, error)
	Status string `json:"status" example:"success"`

	// Human readable message
	Message string `json:"message" example:"Project scraped"`

	// Payload, only when status = success
	Data interface{} `json:"data,omitempty"`

	// Error details, only when status = error
	Error *ErrorDetails `json:"error,omitempty"`

	Meta *ResponseMeta `json:"meta"`
}

// ErrorDetails describes a failed request
type ErrorDetails struct {
	Code    string      `json:"code" example:"CAPTCHA_ERROR"`
	Message string      `json:"message" example:"challenge could not be solved"`
	Details interface{} `json:"details,omitempty"`
}

// ResponseMeta carries response metadata
type ResponseMeta struct {
	Timestamp     time.Time `json:"timestamp"`
	ExecutionTime string    `json:"execution_time,omitempty" example:"14.2s"`
	RequestID     string    `json:"request_id,omitempty"`
	Cached        bool      `json:"cached,omitempty"`
	Version       string    `json:"version,omitempty" example:"v1"`
}

// Standard statuses
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Standard error codes
const (
	ErrorCodeInvalidProjectID = "INVALID_PROJECT_ID"
	ErrorCodeInternalError    = "INTERNAL_ERROR"
	ErrorCodeRateLimit        = "RATE_LIMIT_EXCEEDED"
	ErrorCodeNavigationError  = "NAVIGATION_ERROR"
	ErrorCodeCaptchaError     = "CAPTCHA_ERROR"
	ErrorCodeRenderTimeout    = "RENDER_TIMEOUT"
	ErrorCodeExtractionError  = "EXTRACTION_ERROR"
	ErrorCodeUnavailable      = "BROWSER_UNAVAILABLE"
	ErrorCodeTimeout          = "TIMEOUT"
	ErrorCodeNotInCache       = "NOT_IN_CACHE"
	ErrorCodeCacheError       = "CACHE_ERROR"
)

// NewSuccessResponse builds a success envelope
func NewSuccessResponse(message string, data interface{}) *StandardResponse {
	return &StandardResponse{
		Status:  StatusSuccess,
		Message: message,
		Data:    data,
		Meta: &ResponseMeta{
			Timestamp: time.Now(),
			Version:   "v1",
		},
	}
}

// NewErrorResponse builds an error envelope
func NewErrorResponse(code, message string, details interface{}) *StandardResponse {
	return &StandardResponse{
		Status:  StatusError,
		Message: "Request failed",
		Error: &ErrorDetails{
			Code:    code,
			Message: message,
			Details: details,
		},
		Meta: &ResponseMeta{
			Timestamp: time.Now(),
			Version:   "v1",
		},
	}
}

// SetExecutionTime records how long the operation took
func (r *StandardResponse) SetExecutionTime(duration time.Duration) {
	if r.Meta != nil {
		r.Meta.ExecutionTime = duration.String()
	}
}

// SetRequestID records the request ID
func (r *StandardResponse) SetRequestID(requestID string) {
	if r.Meta != nil {
		r.Meta.RequestID = requestID
	}
}

// HealthResponse is returned by the health endpoint
type HealthResponse struct {
	Status    string                 `json:"status" example:"healthy"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version" example:"1.0.0"`
	Uptime    string                 `json:"uptime"`
	Services  map[string]ServiceInfo `json:"services"`
}

// ServiceInfo is the health of one dependency
type ServiceInfo struct {
	Status    string                 `json:"status" example:"healthy"`
	Error     string                 `json:"error,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	LastCheck time.Time              `json:"last_check"`
}
