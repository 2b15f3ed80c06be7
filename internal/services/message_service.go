// Package services – MessageService
//
// This file implements MessageService, the application-level component that
// owns the lifecycle of an inbound WhatsApp turn: it resolves the sender to a
// registered user, reuses or creates their conversation, persists the inbound
// message durably before anything can fail downstream, obtains a reply
// through the AI safety layer, and dispatches it through the rate-limited
// delivery client. Every outcome lands in the webhook-log ledger.
//
// Processing runs after the webhook HTTP response has already been sent, so
// errors here never surface to the channel provider; they terminate in a
// webhook-log status instead.
//
// Observability: public methods are OpenTelemetry-instrumented; spans include
// provider message and chat identifiers.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"golang.org/x/text/language"

	"github.com/tbourn/go-wa-gateway/internal/ai"
	"github.com/tbourn/go-wa-gateway/internal/domain"
	"github.com/tbourn/go-wa-gateway/internal/phone"
	"github.com/tbourn/go-wa-gateway/internal/repo"
	"github.com/tbourn/go-wa-gateway/internal/sysutil"
	"github.com/tbourn/go-wa-gateway/internal/twilio"
)

// Responder produces a sendable reply for an inbound turn. Implementations
// must not return errors to the caller; degraded output is still output.
type Responder interface {
	Respond(ctx context.Context, chatID string, history []ai.Turn, prompt string) string
}

// Sender dispatches outbound messages to the channel provider.
type Sender interface {
	SendWithRetry(ctx context.Context, p twilio.SendParams) (*twilio.SendResult, error)
	SendTypingIndicator(ctx context.Context, conversationSid string) error
}

// MessageService coordinates inbound processing end to end.
type MessageService struct {
	DB        *gorm.DB
	Responder Responder
	Sender    Sender

	// HistoryLimit caps how many prior messages are loaded as generation
	// context. Zero disables history.
	HistoryLimit int

	// Title generation config
	TitleMaxWords int
	TitleLocale   language.Tag

	// userLocks serializes processing per user so rapid-fire messages from
	// one number cannot interleave their replies out of order.
	mu        sync.Mutex
	userLocks map[string]*sync.Mutex
}

// lockUser acquires the per-user mutex, creating it on first sight, and
// returns the unlock func.
func (s *MessageService) lockUser(userID string) func() {
	s.mu.Lock()
	if s.userLocks == nil {
		s.userLocks = make(map[string]*sync.Mutex)
	}
	l, ok := s.userLocks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.userLocks[userID] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Process handles one newly-seen inbound message. The caller guarantees it is
// invoked at most once per provider message id (the ingestion layer's
// insert-or-ignore gate enforces that). logID is the pending webhook-log row
// created by that gate.
//
// The return value is for callers that care (tests, the sweep endpoint);
// nothing upstream is waiting synchronously.
func (s *MessageService) Process(ctx context.Context, logID string, in *twilio.InboundMessage) error {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "Process",
		trace.WithAttributes(
			attribute.String("webhook_log.id", logID),
			attribute.String("provider_message.id", in.MessageSid),
		),
	)
	defer span.End()

	// Step 1: the ledger row leaves "pending".
	s.setLogStatus(ctx, logID, domain.WebhookProcessing, "")

	// Step 2: resolve the sender. Unknown numbers are a hard failure.
	from := phone.Normalize(in.From)
	user, err := repo.GetUserByPhone(ctx, s.DB, from)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			err = fmt.Errorf("%w: %s", ErrUnknownSender, ai.Redact(from))
		}
		s.setLogStatus(ctx, logID, domain.WebhookProcessingError, err.Error())
		inboundProcessed.WithLabelValues("unknown_sender").Inc()
		log.Warn().Str("webhook_log_id", logID).Str("provider_message_id", in.MessageSid).
			Err(err).Msg("inbound sender rejected")
		return err
	}

	unlock := s.lockUser(user.ID)
	defer unlock()

	if err := s.process(ctx, logID, user, from, in); err != nil {
		s.setLogStatus(ctx, logID, domain.WebhookProcessingError, err.Error())
		inboundProcessed.WithLabelValues("processing_error").Inc()
		log.Error().Str("webhook_log_id", logID).Str("provider_message_id", in.MessageSid).
			Err(err).Msg("inbound processing failed")
		return err
	}

	// Step 9: a failed send does not make the turn unprocessed; the
	// failure lives on the outbound message row for the sweep to retry.
	s.setLogStatus(ctx, logID, domain.WebhookProcessed, "")
	inboundProcessed.WithLabelValues("processed").Inc()
	return nil
}

// process runs steps 3–8 under the per-user lock. Any returned error is
// recorded as processing_error by the caller.
func (s *MessageService) process(ctx context.Context, logID string, user *domain.User, from string, in *twilio.InboundMessage) error {
	body := strings.TrimSpace(in.Body)
	attachments := in.Attachments()
	if body == "" && len(attachments) == 0 {
		return ErrEmptyMessage
	}

	// Step 3: reuse the most recent chat, or create one on first contact.
	chat, err := repo.LatestChatForUser(ctx, s.DB, user.ID)
	if errors.Is(err, repo.ErrNotFound) {
		title := sysutil.FirstNonEmpty(in.ProfileName, phone.Format(from))
		chat, err = repo.CreateChat(ctx, s.DB, user.ID, title)
	}
	if err != nil {
		return fmt.Errorf("resolve chat: %w", err)
	}

	// Step 4: load context, then persist the inbound message so it is
	// durable even if everything downstream fails.
	history, err := s.history(ctx, chat.ID)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	inbound, err := repo.CreateMessage(s.DB.WithContext(ctx), repo.NewMessageParams{
		ChatID:            chat.ID,
		Role:              domain.RoleUser,
		Content:           body,
		Attachments:       attachments,
		Direction:         domain.DirectionInbound,
		ProviderMessageID: in.MessageSid,
		FromNumber:        from,
		ToNumber:          phone.Normalize(in.To),
	})
	if err != nil {
		return fmt.Errorf("persist inbound: %w", err)
	}

	// First real text in a placeholder-titled chat names the chat.
	if body != "" && shouldAutoTitle(chat.Title) {
		if gen := generateTitle(body, s.TitleMaxWords, s.TitleLocale); gen != "" {
			if uerr := repo.UpdateChatTitle(ctx, s.DB, chat.ID, user.ID, gen); uerr != nil {
				log.Debug().Str("chat_id", chat.ID).Err(uerr).Msg("auto-title skipped")
			}
		}
	}

	// Step 5: typing indicator is best-effort; failure never aborts.
	if err := s.Sender.SendTypingIndicator(ctx, in.ConversationSid); err != nil {
		log.Warn().Str("chat_id", chat.ID).Err(err).Msg("typing indicator failed")
		s.auditOutbound(ctx, repo.NewWebhookLogParams{
			Source:    "twilio",
			Direction: domain.DirectionOutbound,
			Status:    domain.WebhookTypingFailed,
			ToNumber:  from,
			Error:     ai.Redact(err.Error()),
		})
	}

	// Step 6: the safety layer always returns something sendable.
	prompt := body
	if prompt == "" {
		prompt = describeAttachments(attachments)
	}
	reply := s.Responder.Respond(ctx, chat.ID, history, prompt)

	// Step 7: outbound persisted as pending before the network is touched.
	outbound, err := repo.CreateMessage(s.DB.WithContext(ctx), repo.NewMessageParams{
		ChatID:     chat.ID,
		Role:       domain.RoleAssistant,
		Content:    reply,
		Direction:  domain.DirectionOutbound,
		SendStatus: domain.SendPending,
		ToNumber:   from,
		FromNumber: inbound.ToNumber,
	})
	if err != nil {
		return fmt.Errorf("persist outbound: %w", err)
	}

	// Step 8: attempt delivery; a failure is terminal on the message row,
	// not on the turn.
	res, sendErr := s.Sender.SendWithRetry(ctx, twilio.SendParams{
		To:                phone.Format(from),
		Body:              reply,
		ProviderMessageID: in.MessageSid,
		ChatID:            chat.ID,
	})
	if sendErr != nil {
		if merr := repo.MarkMessageFailed(ctx, s.DB, outbound.ID, sendErr.Error()); merr != nil {
			log.Error().Str("message_id", outbound.ID).Err(merr).Msg("mark failed send")
		}
		outboundSends.WithLabelValues("failed").Inc()
		s.auditOutbound(ctx, repo.NewWebhookLogParams{
			Source:    "twilio",
			Direction: domain.DirectionOutbound,
			Status:    domain.WebhookSendFailed,
			ToNumber:  from,
			Error:     ai.Redact(sendErr.Error()),
		})
		return nil
	}

	if merr := repo.MarkMessageSent(ctx, s.DB, outbound.ID, res.Sid); merr != nil {
		log.Error().Str("message_id", outbound.ID).Err(merr).Msg("mark sent")
	}
	outboundSends.WithLabelValues("sent").Inc()
	s.auditOutbound(ctx, repo.NewWebhookLogParams{
		Source:            "twilio",
		Direction:         domain.DirectionOutbound,
		Status:            domain.WebhookSent,
		ProviderMessageID: res.Sid,
		ToNumber:          from,
	})
	return nil
}

// history loads up to HistoryLimit prior messages for generation context,
// oldest first.
func (s *MessageService) history(ctx context.Context, chatID string) ([]ai.Turn, error) {
	if s.HistoryLimit <= 0 {
		return nil, nil
	}
	msgs, err := repo.ListRecentMessages(s.DB.WithContext(ctx), chatID, s.HistoryLimit)
	if err != nil {
		return nil, err
	}
	turns := make([]ai.Turn, 0, len(msgs))
	for _, m := range msgs {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		turns = append(turns, ai.Turn{Role: m.Role, Content: m.Content})
	}
	return turns, nil
}

// setLogStatus updates the webhook-log ledger; a failed ledger write is
// logged and swallowed so it can never break the message flow.
func (s *MessageService) setLogStatus(ctx context.Context, logID, status, errMsg string) {
	if err := repo.UpdateWebhookLogStatus(ctx, s.DB, logID, status, errMsg); err != nil {
		log.Error().Str("webhook_log_id", logID).Str("status", status).
			Err(err).Msg("webhook log update failed")
	}
}

// auditOutbound appends an outbound audit row; log-and-swallow boundary.
func (s *MessageService) auditOutbound(ctx context.Context, p repo.NewWebhookLogParams) {
	if _, err := repo.CreateWebhookLog(ctx, s.DB, p); err != nil {
		log.Error().Str("status", p.Status).Err(err).Msg("outbound audit write failed")
	}
}

// describeAttachments renders a media-only inbound message as a prompt the
// generator can react to.
func describeAttachments(atts []domain.Attachment) string {
	kinds := make([]string, 0, len(atts))
	for _, a := range atts {
		kind := a.ContentType
		if i := strings.IndexByte(kind, '/'); i > 0 {
			kind = kind[:i]
		}
		if kind == "" {
			kind = "file"
		}
		kinds = append(kinds, kind)
	}
	return "[user sent media: " + strings.Join(kinds, ", ") + "]"
}
