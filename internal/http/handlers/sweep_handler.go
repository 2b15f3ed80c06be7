// Package handlers – SweepHandler
//
// This file implements the operator-facing re-delivery endpoint, invoked by a
// cron job to retry outbound messages whose delivery previously failed. It is
// protected by a shared-secret bearer token compared in constant time.
package handlers

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-wa-gateway/internal/http/middleware"
	"github.com/tbourn/go-wa-gateway/internal/services"
)

// SweepHandler terminates POST /internal/sweep.
type SweepHandler struct {
	Svc *services.SweepService

	// Secret is the shared bearer token. Empty disables the endpoint
	// entirely rather than leaving it open.
	Secret string
}

// sweepResponse is the JSON result of one sweep pass.
type sweepResponse struct {
	Status    string   `json:"status"`
	Processed int      `json:"processed"`
	Sent      int      `json:"sent"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// Handle re-attempts delivery of failed outbound messages.
//
// Auth: `Authorization: Bearer <secret>`. A missing or wrong token gets 401;
// an unset server-side secret gets 503 so a misdeployed cron fails loudly.
func (h *SweepHandler) Handle(c *gin.Context) {
	if h.Secret == "" {
		fail(c, http.StatusServiceUnavailable, ErrCodeInternal, "sweep endpoint not configured")
		return
	}
	if !h.authorized(c.GetHeader("Authorization")) {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "missing or invalid bearer token")
		return
	}

	res, err := h.Svc.SweepFailed(c.Request.Context())
	if err != nil {
		middleware.LoggerFrom(c).Error().Err(err).Msg("sweep scan failed")
		fail(c, http.StatusInternalServerError, ErrCodeSweepFailed, "failed to scan messages")
		return
	}

	ok(c, http.StatusOK, sweepResponse{
		Status:    "ok",
		Processed: res.Processed,
		Sent:      res.Sent,
		Failed:    res.Failed,
		Errors:    res.Errors,
	})
}

// authorized compares the presented bearer token against the shared secret
// in constant time.
func (h *SweepHandler) authorized(header string) bool {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	token := header[len(prefix):]
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.Secret)) == 1
}
