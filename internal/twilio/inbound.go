// Package twilio implements the WhatsApp channel integration: parsing and
// validating inbound webhook payloads, validating request signatures,
// chunking long bodies, and dispatching outbound messages through the
// provider's REST API.
package twilio

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/tbourn/go-wa-gateway/internal/domain"
)

// validate is the shared schema validator for inbound payloads.
var validate = validator.New()

// Media is one inbound media item, reconstructed from the provider's indexed
// MediaUrl0..N / MediaContentType0..N form fields.
type Media struct {
	URL         string `validate:"required,url"`
	ContentType string
}

// InboundMessage is the parsed and schema-validated inbound webhook payload.
// MessageSid, From and To are mandatory; everything else defaults (empty
// body, zero media).
type InboundMessage struct {
	MessageSid      string `validate:"required"`
	From            string `validate:"required"`
	To              string `validate:"required"`
	Body            string
	ProfileName     string
	WaID            string
	ConversationSid string
	NumMedia        int
	Media           []Media `validate:"dive"`
}

// ParseInbound builds an InboundMessage from the URL-encoded form fields and
// validates it against the schema. Media items are constructed by iterating
// the declared count against indexed lookups, keeping the parse total and
// enumerable rather than scanning for arbitrary keys.
func ParseInbound(form url.Values) (*InboundMessage, error) {
	numMedia := 0
	if raw := form.Get("NumMedia"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid NumMedia %q", raw)
		}
		numMedia = n
	}

	msg := &InboundMessage{
		MessageSid:      form.Get("MessageSid"),
		From:            form.Get("From"),
		To:              form.Get("To"),
		Body:            form.Get("Body"),
		ProfileName:     form.Get("ProfileName"),
		WaID:            form.Get("WaId"),
		ConversationSid: form.Get("ConversationSid"),
		NumMedia:        numMedia,
	}
	for i := 0; i < numMedia; i++ {
		msg.Media = append(msg.Media, Media{
			URL:         form.Get("MediaUrl" + strconv.Itoa(i)),
			ContentType: form.Get("MediaContentType" + strconv.Itoa(i)),
		})
	}

	if err := validate.Struct(msg); err != nil {
		return nil, fmt.Errorf("inbound payload schema: %w", err)
	}
	return msg, nil
}

// Attachments converts the media list to the persistence representation.
func (m *InboundMessage) Attachments() []domain.Attachment {
	if len(m.Media) == 0 {
		return nil
	}
	out := make([]domain.Attachment, 0, len(m.Media))
	for _, md := range m.Media {
		out = append(out, domain.Attachment{URL: md.URL, ContentType: md.ContentType})
	}
	return out
}
