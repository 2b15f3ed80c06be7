// Package services – SweepService
//
// This file implements the failed-send sweep: a cron-driven re-delivery pass
// over outbound messages whose last dispatch attempt ended in sendStatus
// "failed". Each re-attempt goes through the same rate-limited, retried
// delivery path as first-time sends.
package services

import (
	"context"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tbourn/go-wa-gateway/internal/ai"
	"github.com/tbourn/go-wa-gateway/internal/phone"
	"github.com/tbourn/go-wa-gateway/internal/repo"
	"github.com/tbourn/go-wa-gateway/internal/twilio"
)

// SweepResult summarizes one sweep pass.
type SweepResult struct {
	Processed int      `json:"processed"`
	Sent      int      `json:"sent"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// SweepService re-attempts delivery of failed outbound messages.
type SweepService struct {
	DB     *gorm.DB
	Sender Sender

	// BatchSize caps messages per pass; zero means 50.
	BatchSize int
}

// SweepFailed scans messages with sendStatus=failed and re-attempts delivery.
// Per-message failures are collected, not fatal; the returned error covers
// only the scan itself.
func (s *SweepService) SweepFailed(ctx context.Context) (*SweepResult, error) {
	tr := otel.Tracer("services/SweepService")
	ctx, span := tr.Start(ctx, "SweepFailed")
	defer span.End()

	limit := s.BatchSize
	if limit <= 0 {
		limit = 50
	}

	msgs, err := repo.ListFailedOutbound(ctx, s.DB, limit)
	if err != nil {
		return nil, err
	}

	res := &SweepResult{Processed: len(msgs)}
	for i := range msgs {
		m := &msgs[i]
		out, sendErr := s.Sender.SendWithRetry(ctx, twilio.SendParams{
			To:     phone.Format(m.ToNumber),
			Body:   m.Content,
			ChatID: m.ChatID,
		})
		if sendErr != nil {
			res.Failed++
			res.Errors = append(res.Errors, ai.Redact(sendErr.Error()))
			sweepRedeliveries.WithLabelValues("failed").Inc()
			if merr := repo.MarkMessageFailed(ctx, s.DB, m.ID, sendErr.Error()); merr != nil {
				log.Error().Str("message_id", m.ID).Err(merr).Msg("sweep: mark failed")
			}
			continue
		}
		res.Sent++
		sweepRedeliveries.WithLabelValues("sent").Inc()
		if merr := repo.MarkMessageSent(ctx, s.DB, m.ID, out.Sid); merr != nil {
			log.Error().Str("message_id", m.ID).Err(merr).Msg("sweep: mark sent")
		}
	}

	span.SetAttributes(
		attribute.Int("sweep.processed", res.Processed),
		attribute.Int("sweep.sent", res.Sent),
		attribute.Int("sweep.failed", res.Failed),
	)
	return res, nil
}
