package twilio

import (
	"net/url"
	"testing"
)

func TestParseInbound_MinimalPayload(t *testing.T) {
	form := url.Values{}
	form.Set("MessageSid", "SM1")
	form.Set("From", "whatsapp:+15551234567")
	form.Set("To", "whatsapp:+15557654321")

	msg, err := ParseInbound(form)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Body != "" || msg.NumMedia != 0 || len(msg.Media) != 0 {
		t.Fatalf("optional fields must default: %#v", msg)
	}
}

func TestParseInbound_MissingRequiredField(t *testing.T) {
	form := url.Values{}
	form.Set("From", "whatsapp:+15551234567")
	form.Set("To", "whatsapp:+15557654321")

	if _, err := ParseInbound(form); err == nil {
		t.Fatalf("expected schema error without MessageSid")
	}
}

func TestParseInbound_MediaList(t *testing.T) {
	form := url.Values{}
	form.Set("MessageSid", "SM2")
	form.Set("From", "whatsapp:+15551234567")
	form.Set("To", "whatsapp:+15557654321")
	form.Set("Body", "see attached")
	form.Set("NumMedia", "2")
	form.Set("MediaUrl0", "https://media.example.com/a.jpg")
	form.Set("MediaContentType0", "image/jpeg")
	form.Set("MediaUrl1", "https://media.example.com/b.pdf")
	form.Set("MediaContentType1", "application/pdf")

	msg, err := ParseInbound(form)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msg.Media) != 2 {
		t.Fatalf("expected 2 media items, got %d", len(msg.Media))
	}
	if msg.Media[1].URL != "https://media.example.com/b.pdf" || msg.Media[1].ContentType != "application/pdf" {
		t.Fatalf("indexed media fields misparsed: %#v", msg.Media)
	}

	atts := msg.Attachments()
	if len(atts) != 2 || atts[0].URL != msg.Media[0].URL {
		t.Fatalf("attachment conversion broken: %#v", atts)
	}
}

func TestParseInbound_BadNumMedia(t *testing.T) {
	form := url.Values{}
	form.Set("MessageSid", "SM3")
	form.Set("From", "whatsapp:+15551234567")
	form.Set("To", "whatsapp:+15557654321")
	form.Set("NumMedia", "-1")

	if _, err := ParseInbound(form); err == nil {
		t.Fatalf("expected error for negative NumMedia")
	}
	form.Set("NumMedia", "two")
	if _, err := ParseInbound(form); err == nil {
		t.Fatalf("expected error for non-numeric NumMedia")
	}
}

func TestParseInbound_MissingDeclaredMediaURL(t *testing.T) {
	form := url.Values{}
	form.Set("MessageSid", "SM4")
	form.Set("From", "whatsapp:+15551234567")
	form.Set("To", "whatsapp:+15557654321")
	form.Set("NumMedia", "1")
	// MediaUrl0 absent: the declared count promises an item that is not there.

	if _, err := ParseInbound(form); err == nil {
		t.Fatalf("expected schema error for missing MediaUrl0")
	}
}
