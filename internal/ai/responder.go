package ai

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-wa-gateway/internal/repo"
)

// Failure classifications recorded on escalations.
const (
	ClassTimeout          = "timeout"
	ClassInvalidResponse  = "invalid_response"
	ClassEmptyResponse    = "empty_response"
	ClassSchemaValidation = "schema_validation_failed"
	ClassAPIError         = "api_error"
	ClassUnknown          = "unknown"
)

// Canned user-facing fallbacks. Timeout and API failures get distinct "try
// again" wording; every other class collapses to the generic message.
const (
	FallbackTimeout = "I'm taking longer than usual to respond. Please try again in a moment."
	FallbackAPI     = "I'm having trouble reaching my knowledge service right now. Please try again shortly."
	FallbackGeneric = "I'm experiencing technical difficulties at the moment. Please try again later."
)

// SafeResponder wraps a Generator so that every invocation yields a sendable
// reply. Failures are classified, recorded as escalations for operator
// follow-up, and replaced with a canned fallback. Respond never returns an
// error.
type SafeResponder struct {
	Gen Generator
	DB  *gorm.DB

	// Timeout bounds each generation attempt; defaults to 30s.
	Timeout time.Duration
	// MaxRetries is the number of additional attempts after the first;
	// defaults to 2.
	MaxRetries int
	// MinReplyChars is the minimum trimmed reply length; defaults to 1.
	MinReplyChars int
}

// Classify maps a generation error onto the escalation taxonomy by substring
// matching on the error text.
func Classify(err error) string {
	if err == nil {
		return ClassUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTimeout
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "aborted"):
		return ClassTimeout
	case strings.Contains(msg, "schema") || strings.Contains(msg, "validation"):
		return ClassSchemaValidation
	case strings.Contains(msg, "api") || strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "429") || strings.Contains(msg, "500"):
		return ClassAPIError
	default:
		return ClassUnknown
	}
}

// FallbackFor returns the canned reply for a classification.
func FallbackFor(class string) string {
	switch class {
	case ClassTimeout:
		return FallbackTimeout
	case ClassAPIError:
		return FallbackAPI
	default:
		return FallbackGeneric
	}
}

// Respond generates a reply for prompt over history. On any failure it
// escalates once and returns the classified fallback; the caller can always
// send the result.
func (s *SafeResponder) Respond(ctx context.Context, chatID string, history []Turn, prompt string) string {
	tr := otel.Tracer("ai/SafeResponder")
	ctx, span := tr.Start(ctx, "Respond",
		trace.WithAttributes(attribute.String("chat.id", chatID)),
	)
	defer span.End()

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	retries := s.MaxRetries
	if retries < 0 {
		retries = 0
	} else if retries == 0 {
		retries = 2
	}
	minChars := s.MinReplyChars
	if minChars <= 0 {
		minChars = 1
	}

	var out string
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		genCtx, cancel := context.WithTimeout(ctx, timeout)
		out, lastErr = s.Gen.Generate(genCtx, history, prompt)
		cancel()
		if lastErr == nil {
			break
		}
		// Only transient failures are worth another attempt inside the
		// safety layer; permanent classes escalate immediately.
		if class := Classify(lastErr); class != ClassTimeout && class != ClassAPIError {
			break
		}
	}

	if lastErr != nil {
		class := Classify(lastErr)
		s.escalate(ctx, chatID, class, lastErr.Error())
		return FallbackFor(class)
	}

	trimmed := strings.TrimSpace(out)
	if trimmed == "" {
		s.escalate(ctx, chatID, ClassEmptyResponse, "generator returned empty or whitespace-only text")
		return FallbackGeneric
	}
	if utf8.RuneCountInString(trimmed) < minChars {
		s.escalate(ctx, chatID, ClassInvalidResponse, "generator output below minimum length")
		return FallbackGeneric
	}
	return trimmed
}

// escalate writes the durable operator record and a structured log line.
// It is its own error boundary: persistence failures are logged and
// swallowed so the audit side-channel can never break the message flow.
func (s *SafeResponder) escalate(ctx context.Context, chatID, class, detail string) {
	detail = sanitize(detail)
	fallbacksServed.WithLabelValues(class).Inc()

	log.Warn().
		Str("chat_id", chatID).
		Str("classification", class).
		Str("detail", detail).
		Msg("ai generation fell back")

	if s.DB == nil {
		return
	}
	if _, err := repo.CreateEscalation(ctx, s.DB, chatID, class, detail); err != nil {
		log.Error().Err(err).Str("chat_id", chatID).Msg("escalation record write failed")
	}
}
