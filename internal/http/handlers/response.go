// Package handlers provides HTTP handler implementations for the gateway.
//
// This file defines the response utilities shared by all endpoints. Two
// response styles coexist deliberately:
//
//   - The webhook endpoint speaks the channel provider's dialect: plain-text
//     error bodies and a `text/xml` TwiML acknowledgement, because that is
//     what the provider's delivery machinery expects.
//   - Operator-facing endpoints (sweep, health) return JSON, with error
//     responses carrying a stable machine-readable `code`.
//
// Example error response:
//
//	HTTP/1.1 401 Unauthorized
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "unauthorized",
//	  "message": "missing or invalid bearer token"
//	}
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-wa-gateway/internal/http/middleware"
)

// emptyTwiML is the acknowledgement body the provider expects on every
// accepted (or deliberately swallowed) webhook.
const emptyTwiML = "<Response></Response>"

// ErrorResponse is the standard JSON error envelope for operator endpoints.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code"`
	// Human-readable message (safe to show to users)
	Message string `json:"message"`
}

// fail aborts the request with a structured JSON error and logs 5xx responses
// with the request-scoped logger.
func fail(c *gin.Context, status int, code, msg string) {
	reqID := c.Writer.Header().Get("X-Request-ID")
	resp := ErrorResponse{
		RequestID: reqID,
		Code:      code,
		Message:   msg,
	}

	if status >= http.StatusInternalServerError {
		lg := middleware.LoggerFrom(c)
		lg.Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, resp)
}

// Fail is the exported variant of fail(), for router-level handlers.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// ok writes a success JSON response.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// twiML writes the 200 acknowledgement the provider expects. Used on accept,
// duplicate, and error-swallow paths alike so the provider never retries.
func twiML(c *gin.Context) {
	c.Data(http.StatusOK, "text/xml", []byte(emptyTwiML))
}

// plainError writes a provider-facing plain-text rejection and stops the
// chain. Logged at error level for 5xx only; 4xx rejections are logged where
// the context (signature state, payload shape) is known.
func plainError(c *gin.Context, status int, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().Int("status", status).Str("message", msg).Msg("webhook error")
	}
	c.String(status, msg)
	c.Abort()
}
