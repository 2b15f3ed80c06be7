// Package handlers – WebhookHandler
//
// This file implements the inbound webhook endpoint. It is the trust and
// idempotency boundary of the pipeline: requests are rejected before any
// processing if the payload is malformed or the provider signature does not
// verify, and replayed deliveries are short-circuited by an insert-or-ignore
// gate on the provider message id.
//
// The handler always answers fast: accepted messages are processed in a
// detached goroutine after the TwiML acknowledgement is written, so provider
// webhook timeouts never race the AI generation or delivery calls.
package handlers

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-wa-gateway/internal/ai"
	"github.com/tbourn/go-wa-gateway/internal/domain"
	"github.com/tbourn/go-wa-gateway/internal/http/middleware"
	"github.com/tbourn/go-wa-gateway/internal/phone"
	"github.com/tbourn/go-wa-gateway/internal/repo"
	"github.com/tbourn/go-wa-gateway/internal/services"
	"github.com/tbourn/go-wa-gateway/internal/twilio"
)

// processTimeout bounds one detached processing run end to end: generation,
// rate-limiter wait, and retried delivery all fit well inside it.
const processTimeout = 5 * time.Minute

// WebhookHandler terminates the provider's inbound webhook.
type WebhookHandler struct {
	DB  *gorm.DB
	Svc *services.MessageService

	// AuthToken signs webhook payloads; empty means the server is
	// misconfigured and must answer 500, never skip validation.
	AuthToken string

	// WebhookURL is the operator-configured public URL. Signatures are
	// always validated against it, not against the observed request URL,
	// so the endpoint works behind rewriting proxies.
	WebhookURL string

	urlWarn sync.Once
}

// Handle processes POST /webhook.
//
// Response contract (provider-facing):
//   - 200 text/xml `<Response></Response>` on accept, duplicate, and
//     swallowed-error paths
//   - 400 text/plain on missing or malformed payload
//   - 403 text/plain on missing or invalid signature
//   - 500 text/plain when the signing secret is not configured
func (h *WebhookHandler) Handle(c *gin.Context) {
	lg := middleware.LoggerFrom(c)

	if c.Request.ContentLength == 0 {
		plainError(c, http.StatusBadRequest, "Missing payload")
		return
	}
	if err := c.Request.ParseForm(); err != nil {
		plainError(c, http.StatusBadRequest, "Malformed payload")
		return
	}
	form := c.Request.PostForm
	if len(form) == 0 {
		plainError(c, http.StatusBadRequest, "Missing payload")
		return
	}

	in, err := twilio.ParseInbound(form)
	if err != nil {
		lg.Warn().Err(err).Msg("webhook payload rejected")
		h.audit(repo.NewWebhookLogParams{
			Source:     "twilio",
			Direction:  domain.DirectionInbound,
			Status:     domain.WebhookInvalidPayload,
			RequestURL: h.WebhookURL,
			Error:      ai.Redact(err.Error()),
		})
		plainError(c, http.StatusBadRequest, "Invalid payload")
		return
	}

	sig := c.GetHeader(twilio.SignatureHeader)
	if sig == "" {
		lg.Warn().Str("provider_message_id", in.MessageSid).Msg("webhook missing signature")
		h.audit(h.rejectionLog(in, domain.WebhookMissingSignature, "missing signature header"))
		plainError(c, http.StatusForbidden, "Missing signature")
		return
	}

	if h.AuthToken == "" {
		plainError(c, http.StatusInternalServerError, "Server misconfigured")
		return
	}

	h.warnOnURLMismatch(c)

	if !twilio.ValidateSignature(h.AuthToken, h.WebhookURL, form, sig) {
		lg.Warn().Str("provider_message_id", in.MessageSid).Msg("webhook signature invalid")
		h.audit(h.rejectionLog(in, domain.WebhookSignatureFailed, "signature validation failed"))
		plainError(c, http.StatusForbidden, "Invalid signature")
		return
	}

	// Idempotency gate: one pending ledger row per provider message id,
	// ever. Losers of the race see a duplicate and stop here.
	wl, outcome, err := repo.CreatePendingInbound(c.Request.Context(), h.DB, repo.NewWebhookLogParams{
		Source:            "twilio",
		Direction:         domain.DirectionInbound,
		Status:            domain.WebhookPending,
		RequestURL:        h.WebhookURL,
		ProviderMessageID: in.MessageSid,
		FromNumber:        phone.Normalize(in.From),
		ToNumber:          phone.Normalize(in.To),
	})
	if err != nil {
		// Persistence trouble must not trigger a provider retry storm;
		// acknowledge and leave the evidence in the logs.
		lg.Error().Str("provider_message_id", in.MessageSid).Err(err).Msg("idempotency gate failed")
		twiML(c)
		return
	}
	if outcome == repo.InsertDuplicate {
		lg.Info().Str("provider_message_id", in.MessageSid).Msg("duplicate webhook short-circuited")
		twiML(c)
		return
	}

	go h.processDetached(wl.ID, in)

	twiML(c)
}

// processDetached runs the pipeline outside the request lifecycle. The HTTP
// response has already been written; errors terminate in the webhook log.
func (h *WebhookHandler) processDetached(logID string, in *twilio.InboundMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
	defer cancel()
	_ = h.Svc.Process(ctx, logID, in)
}

// warnOnURLMismatch logs once when the observed request URL disagrees with
// the configured one. Validation still uses the configured URL; behind a
// rewriting proxy a mismatch is expected, but when signatures start failing
// this warning is the first place to look.
func (h *WebhookHandler) warnOnURLMismatch(c *gin.Context) {
	scheme := "http"
	if c.Request.TLS != nil || strings.EqualFold(c.GetHeader("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}
	observed := scheme + "://" + c.Request.Host + c.Request.URL.RequestURI()
	if observed != h.WebhookURL {
		h.urlWarn.Do(func() {
			log.Warn().
				Str("configured_url", h.WebhookURL).
				Str("observed_url", observed).
				Msg("webhook URL mismatch; signatures validate against the configured URL")
		})
	}
}

// rejectionLog builds the audit row for a rejected request. The provider
// message id is deliberately omitted: rejected deliveries must not occupy
// the idempotency slot a later, correctly signed delivery needs.
func (h *WebhookHandler) rejectionLog(in *twilio.InboundMessage, status, errMsg string) repo.NewWebhookLogParams {
	return repo.NewWebhookLogParams{
		Source:     "twilio",
		Direction:  domain.DirectionInbound,
		Status:     status,
		RequestURL: h.WebhookURL,
		FromNumber: phone.Normalize(in.From),
		ToNumber:   phone.Normalize(in.To),
		Error:      errMsg,
	}
}

// audit fire-and-forgets a webhook-log row; rejection bookkeeping must never
// delay or fail the HTTP response.
func (h *WebhookHandler) audit(p repo.NewWebhookLogParams) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := repo.CreateWebhookLog(ctx, h.DB, p); err != nil {
			log.Error().Str("status", p.Status).Err(err).Msg("webhook audit write failed")
		}
	}()
}
