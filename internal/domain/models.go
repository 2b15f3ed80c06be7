// Package domain defines the persistence models for the WhatsApp message
// pipeline: users, chats, messages, the webhook audit ledger, and escalation
// records. These types are mapped with GORM and form the core data layer
// of the gateway.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message directions (stored in metadata columns).
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Outbound send statuses. A row is created as SendPending before the first
// dispatch attempt and moves to SendSent or SendFailed afterwards, which is
// what makes at-least-once delivery observable.
const (
	SendPending = "pending"
	SendSent    = "sent"
	SendFailed  = "failed"
)

// User is a pre-registered end user of the channel. Messages from phone
// numbers without a matching row are rejected; the pipeline never provisions
// users on first contact.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - Phone: E.164 number, unique; the lookup key for inbound messages.
//   - Email / PasswordHash: account fields owned by the web application;
//     channel-only users may carry an unusable hash.
type User struct {
	ID           string         `json:"id"    gorm:"type:char(36);primaryKey"`
	Phone        string         `json:"phone" gorm:"type:varchar(20);not null;uniqueIndex:ux_users_phone"`
	Email        string         `json:"email" gorm:"type:varchar(255)"`
	PasswordHash string         `json:"-"     gorm:"type:varchar(255)"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `json:"-"     gorm:"index"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Chat represents a conversation owned by a user. One chat exists per channel
// identity at a time: the most recent chat is reused for subsequent inbound
// messages, and a new one is created lazily on first contact.
type Chat struct {
	ID        string         `json:"id"      gorm:"type:char(36);primaryKey"`
	UserID    string         `json:"user_id" gorm:"type:char(36);not null;index:idx_user_chats"`
	Title     string         `json:"title"   gorm:"type:varchar(255);not null;default:'New chat'"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-"       gorm:"index"`
}

// TableName returns the database table name for Chat.
func (Chat) TableName() string { return "chats" }

// Attachment is a media item carried by a message (inbound media from the
// provider, or outbound media URLs).
type Attachment struct {
	URL         string `json:"url"`
	ContentType string `json:"content_type,omitempty"`
}

// Message is a single utterance within a chat. Inbound and outbound messages
// are both persisted as rows; channel metadata (direction, provider SID, send
// status, endpoints) lives in dedicated columns so the sweep job can query it.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - ChatID: foreign key to the owning chat (indexed, cascade delete).
//   - Role: "user" or "assistant" (enforced by DB constraint).
//   - Content: full text content of the message.
//   - Attachments: JSON-serialized media list (may be empty).
//   - Direction / ProviderMessageID / SendStatus / ToNumber / FromNumber /
//     SendError: channel metadata; SendStatus is only meaningful for
//     outbound rows.
type Message struct {
	ID          string       `json:"id"          gorm:"type:char(36);primaryKey"`
	ChatID      string       `json:"chat_id"     gorm:"type:char(36);not null;index:idx_chat_msgs,priority:1"`
	Role        string       `json:"role"        gorm:"type:varchar(16);not null;check:role IN ('user','assistant')"`
	Content     string       `json:"content"     gorm:"type:text;not null"`
	Attachments []Attachment `json:"attachments,omitempty" gorm:"type:text;serializer:json"`

	Direction         string `json:"direction"                     gorm:"type:varchar(16);index"`
	ProviderMessageID string `json:"provider_message_id,omitempty" gorm:"type:varchar(64);index"`
	SendStatus        string `json:"send_status,omitempty"         gorm:"type:varchar(16);index:idx_msgs_send_status"`
	ToNumber          string `json:"to_number,omitempty"           gorm:"type:varchar(32)"`
	FromNumber        string `json:"from_number,omitempty"         gorm:"type:varchar(32)"`
	SendError         string `json:"send_error,omitempty"          gorm:"type:text"`

	CreatedAt time.Time      `json:"created_at" gorm:"index:idx_chat_msgs,priority:2"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-"          gorm:"index"`

	// Chat is the parent conversation. Messages are cascade-deleted
	// if their chat is removed.
	Chat Chat `json:"-" gorm:"foreignKey:ChatID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// Webhook log statuses. Inbound rows progress pending → processing →
// processed | processing_error; the remaining values record terminal
// rejection and outbound outcomes. Rows are never deleted.
const (
	WebhookPending          = "pending"
	WebhookProcessing       = "processing"
	WebhookProcessed        = "processed"
	WebhookProcessingError  = "processing_error"
	WebhookReceived         = "received"
	WebhookSent             = "sent"
	WebhookSendFailed       = "send_failed"
	WebhookSignatureFailed  = "signature_failed"
	WebhookMissingSignature = "missing_signature"
	WebhookInvalidPayload   = "invalid_payload"
	WebhookTypingFailed     = "typing_failed"
)

// WebhookLog is the append/upsert audit ledger of every inbound and outbound
// attempt. The unique index on ProviderMessageID is the idempotency gate:
// a replayed inbound webhook fails the insert and is short-circuited.
//
// ProviderMessageID is a pointer because outbound and rejection rows may not
// carry one, and SQLite treats NULLs as distinct under a unique index.
type WebhookLog struct {
	ID                string    `json:"id"                  gorm:"type:char(36);primaryKey"`
	Source            string    `json:"source"              gorm:"type:varchar(32);not null"`
	Direction         string    `json:"direction,omitempty" gorm:"type:varchar(16)"`
	Status            string    `json:"status"              gorm:"type:varchar(32);not null;index"`
	RequestURL        string    `json:"request_url"         gorm:"type:text"`
	ProviderMessageID *string   `json:"provider_message_id,omitempty" gorm:"type:varchar(64);uniqueIndex:ux_webhook_provider_msg"`
	FromNumber        string    `json:"from_number,omitempty" gorm:"type:varchar(32)"`
	ToNumber          string    `json:"to_number,omitempty"   gorm:"type:varchar(32)"`
	Payload           string    `json:"payload,omitempty"     gorm:"type:text"`
	Error             string    `json:"error,omitempty"       gorm:"type:text"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// TableName returns the database table name for WebhookLog.
func (WebhookLog) TableName() string { return "webhook_logs" }

// Escalation is a durable note created whenever the AI safety layer serves a
// fallback instead of a real reply. It is the audit trail that lets a human
// notice systematic generation failures. Detail is redacted and truncated
// before it reaches this row.
type Escalation struct {
	ID             string    `json:"id"             gorm:"type:char(36);primaryKey"`
	ChatID         string    `json:"chat_id"        gorm:"type:char(36);index"`
	Classification string    `json:"classification" gorm:"type:varchar(32);not null"`
	Detail         string    `json:"detail"         gorm:"type:text"`
	CreatedAt      time.Time `json:"created_at"`
}

// TableName returns the database table name for Escalation.
func (Escalation) TableName() string { return "escalations" }
