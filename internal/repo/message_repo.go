// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message
// model, including the outbound send-status transitions used by the delivery
// path and the failed-send sweep.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-wa-gateway/internal/domain"
)

// NewMessageParams carries the fields for a message insert. Role and Content
// are required; the channel metadata fields are optional and depend on
// direction.
type NewMessageParams struct {
	ChatID            string
	Role              string
	Content           string
	Attachments       []domain.Attachment
	Direction         string
	ProviderMessageID string
	SendStatus        string
	ToNumber          string
	FromNumber        string
}

// CreateMessage inserts a new message row with a UUID primary key and UTC
// creation time.
func CreateMessage(db *gorm.DB, p NewMessageParams) (*domain.Message, error) {
	m := &domain.Message{
		ID:                uuid.NewString(),
		ChatID:            p.ChatID,
		Role:              p.Role,
		Content:           p.Content,
		Attachments:       p.Attachments,
		Direction:         p.Direction,
		ProviderMessageID: p.ProviderMessageID,
		SendStatus:        p.SendStatus,
		ToNumber:          p.ToNumber,
		FromNumber:        p.FromNumber,
		CreatedAt:         time.Now().UTC(),
	}
	return m, db.Create(m).Error
}

// ListRecentMessages returns the most recent limit messages for a chat in
// chronological order (oldest first), the shape expected as generation
// history. Ordering is deterministic (CreatedAt, ID).
func ListRecentMessages(db *gorm.DB, chatID string, limit int) ([]domain.Message, error) {
	var out []domain.Message
	q := db.Where("chat_id = ?", chatID).Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	// Reverse into ascending order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// MarkMessageSent records a successful dispatch: sendStatus "sent" plus the
// provider message id returned by the channel.
func MarkMessageSent(ctx context.Context, db *gorm.DB, id, providerMessageID string) error {
	return db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"send_status":         domain.SendSent,
			"provider_message_id": providerMessageID,
			"send_error":          "",
		}).Error
}

// MarkMessageFailed records a terminal dispatch failure with the error text.
// The row stays queryable by the sweep job for later re-delivery.
func MarkMessageFailed(ctx context.Context, db *gorm.DB, id, sendErr string) error {
	return db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"send_status": domain.SendFailed,
			"send_error":  sendErr,
		}).Error
}

// ListFailedOutbound returns up to limit outbound messages stuck in
// sendStatus "failed", oldest first, for the cron-driven retry sweep.
func ListFailedOutbound(ctx context.Context, db *gorm.DB, limit int) ([]domain.Message, error) {
	var out []domain.Message
	q := db.WithContext(ctx).
		Where("direction = ? AND send_status = ?", domain.DirectionOutbound, domain.SendFailed).
		Order("created_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// CountMessages uses a raw COUNT so a missing table surfaces as an error.
func CountMessages(db *gorm.DB, chatID string) (int64, error) {
	var total int64
	err := db.Raw("SELECT COUNT(*) FROM messages WHERE chat_id = ?", chatID).Scan(&total).Error
	return total, err
}
