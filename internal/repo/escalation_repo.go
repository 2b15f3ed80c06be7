// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for Escalation
// records written by the AI safety layer.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-wa-gateway/internal/domain"
)

// CreateEscalation inserts an escalation record. Detail must already be
// redacted and truncated by the caller; this function persists it verbatim.
func CreateEscalation(ctx context.Context, db *gorm.DB, chatID, classification, detail string) (*domain.Escalation, error) {
	e := &domain.Escalation{
		ID:             uuid.NewString(),
		ChatID:         chatID,
		Classification: classification,
		Detail:         detail,
		CreatedAt:      time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(e).Error; err != nil {
		return nil, err
	}
	return e, nil
}

// CountEscalations returns the number of escalations for a chat. Used by
// operator tooling and tests.
func CountEscalations(ctx context.Context, db *gorm.DB, chatID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Escalation{}).
		Where("chat_id = ?", chatID).
		Count(&total).Error
	return total, err
}
