// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for the WebhookLog
// ledger, including the insert-or-do-nothing idempotency gate keyed by the
// provider message id.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-wa-gateway/internal/domain"
)

// InsertOutcome is the result of the idempotency-gated insert.
type InsertOutcome int

const (
	// InsertCreated means the row was inserted: first sight of this
	// provider message id, processing should proceed.
	InsertCreated InsertOutcome = iota
	// InsertDuplicate means a row with this provider message id already
	// exists; the webhook is a replay and must not be reprocessed.
	InsertDuplicate
)

// NewWebhookLogParams carries the fields for a webhook-log insert.
type NewWebhookLogParams struct {
	Source            string
	Direction         string
	Status            string
	RequestURL        string
	ProviderMessageID string // empty means NULL (no idempotency key)
	FromNumber        string
	ToNumber          string
	Payload           string
	Error             string
}

func newWebhookLog(p NewWebhookLogParams) *domain.WebhookLog {
	var pmid *string
	if p.ProviderMessageID != "" {
		pmid = &p.ProviderMessageID
	}
	return &domain.WebhookLog{
		ID:                uuid.NewString(),
		Source:            p.Source,
		Direction:         p.Direction,
		Status:            p.Status,
		RequestURL:        p.RequestURL,
		ProviderMessageID: pmid,
		FromNumber:        p.FromNumber,
		ToNumber:          p.ToNumber,
		Payload:           p.Payload,
		Error:             p.Error,
		CreatedAt:         time.Now().UTC(),
	}
}

// CreateWebhookLog inserts a ledger row unconditionally (rejection records,
// outbound attempts). Callers on best-effort paths wrap this in their own
// log-and-swallow boundary.
func CreateWebhookLog(ctx context.Context, db *gorm.DB, p NewWebhookLogParams) (*domain.WebhookLog, error) {
	entry := newWebhookLog(p)
	if err := db.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, err
	}
	return entry, nil
}

// CreatePendingInbound attempts to insert a "pending" inbound row keyed by
// the provider message id, with insert-or-do-nothing-on-conflict semantics
// against the unique index. RowsAffected == 0 means the id was already
// recorded and the webhook is a duplicate.
//
// On InsertDuplicate the returned entry is nil.
func CreatePendingInbound(ctx context.Context, db *gorm.DB, p NewWebhookLogParams) (*domain.WebhookLog, InsertOutcome, error) {
	p.Direction = domain.DirectionInbound
	p.Status = domain.WebhookPending
	entry := newWebhookLog(p)

	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider_message_id"}},
			DoNothing: true,
		}).
		Create(entry)
	if res.Error != nil {
		return nil, InsertCreated, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, InsertDuplicate, nil
	}
	return entry, InsertCreated, nil
}

// UpdateWebhookLogStatus transitions a ledger row to the given status,
// recording the error text when present. Returns ErrNotFound if the row
// does not exist.
func UpdateWebhookLogStatus(ctx context.Context, db *gorm.DB, id, status, errMsg string) error {
	updates := map[string]any{"status": status}
	if errMsg != "" {
		updates["error"] = errMsg
	}
	res := db.WithContext(ctx).
		Model(&domain.WebhookLog{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetWebhookLog fetches a ledger row by ID, or ErrNotFound.
func GetWebhookLog(ctx context.Context, db *gorm.DB, id string) (*domain.WebhookLog, error) {
	var entry domain.WebhookLog
	if err := db.WithContext(ctx).Where("id = ?", id).First(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}
