// Package httpapi wires the HTTP transport (Gin) to the gateway's services:
// webhook ingestion, the failed-send sweep, health, and metrics. It
// centralizes cross-cutting concerns such as tracing, correlation IDs,
// logging/redaction, panic recovery, metrics, CORS, and security headers.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/tbourn/go-wa-gateway/internal/ai"
	"github.com/tbourn/go-wa-gateway/internal/config"
	"github.com/tbourn/go-wa-gateway/internal/http/handlers"
	"github.com/tbourn/go-wa-gateway/internal/http/middleware"
	"github.com/tbourn/go-wa-gateway/internal/ratelimit"
	"github.com/tbourn/go-wa-gateway/internal/retry"
	"github.com/tbourn/go-wa-gateway/internal/services"
	"github.com/tbourn/go-wa-gateway/internal/twilio"
)

// Deps carries the injectable collaborators. Zero-value fields are built
// from cfg; tests inject fakes.
type Deps struct {
	Sender    services.Sender
	Responder services.Responder
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. CORS and security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg config.Config, deps Deps) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (256 KiB; webhook forms are small)
	r.Use(limitBody(256 << 10))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) CORS only when origins are configured; the webhook and sweep are
	// server-to-server and need none by default.
	if len(cfg.CORS.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:  cfg.CORS.AllowedOrigins,
			AllowMethods:  []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders: []string{"X-Request-ID", "Content-Length"},
			MaxAge:        12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS: cfg.Security.EnableHSTS,
		HSTSMaxAge: cfg.Security.HSTSMaxAge,
		NoStore:    true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Dependency injection: delivery client and safety layer from config
	// unless the caller provided them.
	sender := deps.Sender
	if sender == nil {
		limiter := ratelimit.New(cfg.RateLimit.Capacity, cfg.RateLimit.RefillPerSec,
			ratelimit.WithMaxWait(cfg.RateLimit.MaxWait),
			ratelimit.WithIdleTTL(cfg.RateLimit.IdleTTL),
		)
		sender = twilio.NewClient(twilio.Options{
			AccountSID:          cfg.Twilio.AccountSID,
			AuthToken:           cfg.Twilio.AuthToken,
			From:                cfg.Twilio.FromNumber,
			MessagingServiceSID: cfg.Twilio.MessagingServiceSID,
			BaseURL:             cfg.Twilio.APIBaseURL,
			Timeout:             cfg.Twilio.HTTPTimeout,
			TypingEnabled:       cfg.Twilio.TypingEnabled,
		}, limiter, retry.Config{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay,
			MaxDelay:    cfg.Retry.MaxDelay,
		})
	}

	responder := deps.Responder
	if responder == nil {
		responder = &ai.SafeResponder{
			Gen: ai.NewOpenAIGenerator(ai.OpenAIOptions{
				APIKey:       cfg.AI.APIKey,
				BaseURL:      cfg.AI.BaseURL,
				Model:        cfg.AI.Model,
				SystemPrompt: cfg.AI.SystemPrompt,
			}),
			DB:            db,
			Timeout:       cfg.AI.Timeout,
			MaxRetries:    cfg.AI.MaxRetries,
			MinReplyChars: cfg.AI.MinReplyChars,
		}
	}

	msgSvc := &services.MessageService{
		DB:            db,
		Responder:     responder,
		Sender:        sender,
		HistoryLimit:  cfg.HistoryLimit,
		TitleMaxWords: cfg.TitleMaxWords,
		TitleLocale:   language.English,
	}
	sweepSvc := &services.SweepService{
		DB:        db,
		Sender:    sender,
		BatchSize: cfg.Sweep.BatchSize,
	}

	webhook := &handlers.WebhookHandler{
		DB:         db,
		Svc:        msgSvc,
		AuthToken:  cfg.Twilio.AuthToken,
		WebhookURL: cfg.Twilio.WebhookURL,
	}
	sweep := &handlers.SweepHandler{Svc: sweepSvc, Secret: cfg.Sweep.Secret}

	r.POST("/webhook", webhook.Handle)
	r.POST("/internal/sweep", sweep.Handle)
}

// limitBody caps the request body size using http.MaxBytesReader; reads past
// the cap error downstream.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
