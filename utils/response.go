package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error codes shared across the API. Clients key off these strings, so they
// are part of the contract.
const (
	CodeMethodNotAllowed  = "METHOD_NOT_ALLOWED"
	CodeBadRequest        = "BAD_REQUEST"
	CodeValidationError   = "VALIDATION_ERROR"
	CodeNotFound          = "NOT_FOUND"
	CodeRateLimited       = "RATE_LIMIT_EXCEEDED"
	CodeScanLimitExceeded = "SCAN_LIMIT_EXCEEDED"
	CodeInternalError     = "INTERNAL_SERVER_ERROR"
	CodeConfigError       = "CONFIGURATION_ERROR"
	CodeExternalService   = "EXTERNAL_SERVICE_ERROR"
)

// ErrorResponse is the uniform error envelope for all API failures.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ErrorEnvelope writes the standard error envelope with the given status.
func ErrorEnvelope(ctx *gin.Context, status int, code, message string) {
	ctx.JSON(status, ErrorResponse{Success: false, Error: code, Message: message})
}

// ErrorWithLog writes the envelope and records the underlying cause
// server-side; the cause is never exposed to the client.
func ErrorWithLog(ctx *gin.Context, status int, code, message string, err error) {
	if Sugar != nil {
		if err != nil {
			Sugar.Errorw(message, "code", code, "status", status, "error", err, "request_id", ctx.GetString(RequestIDKey))
		} else {
			Sugar.Errorw(message, "code", code, "status", status, "request_id", ctx.GetString(RequestIDKey))
		}
	}
	ErrorEnvelope(ctx, status, code, message)
}

// BadRequest writes a 400 validation failure.
func BadRequest(ctx *gin.Context, message string) {
	ErrorEnvelope(ctx, http.StatusBadRequest, CodeBadRequest, message)
}

// NotFound writes a 404.
func NotFound(ctx *gin.Context, message string) {
	ErrorEnvelope(ctx, http.StatusNotFound, CodeNotFound, message)
}

// ConfigurationError writes a 500 for operator misconfiguration (missing
// credentials and the like). Never retried.
func ConfigurationError(ctx *gin.Context, message string) {
	ErrorEnvelope(ctx, http.StatusInternalServerError, CodeConfigError, message)
}

// InternalError writes a generic 500.
func InternalError(ctx *gin.Context, message string, err error) {
	ErrorWithLog(ctx, http.StatusInternalServerError, CodeInternalError, message, err)
}

// UpstreamError writes a 502 for downstream service failures.
func UpstreamError(ctx *gin.Context, message string, err error) {
	ErrorWithLog(ctx, http.StatusBadGateway, CodeExternalService, message, err)
}

// UpstreamTimeout writes a 504 for downstream timeouts.
func UpstreamTimeout(ctx *gin.Context, message string, err error) {
	ErrorWithLog(ctx, http.StatusGatewayTimeout, CodeExternalService, message, err)
}
