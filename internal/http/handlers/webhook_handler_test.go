package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-wa-gateway/internal/ai"
	"github.com/tbourn/go-wa-gateway/internal/domain"
	"github.com/tbourn/go-wa-gateway/internal/repo"
	"github.com/tbourn/go-wa-gateway/internal/services"
	"github.com/tbourn/go-wa-gateway/internal/twilio"
)

const (
	testToken = "auth-token-for-tests"
	testURL   = "https://gateway.example.com/webhook"
)

func newHandlerDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

type stubSender struct{}

func (stubSender) SendWithRetry(ctx context.Context, p twilio.SendParams) (*twilio.SendResult, error) {
	return &twilio.SendResult{Sid: "SM-reply", Status: "queued"}, nil
}

func (stubSender) SendTypingIndicator(ctx context.Context, conversationSid string) error {
	return nil
}

type stubResponder struct{}

func (stubResponder) Respond(ctx context.Context, chatID string, history []ai.Turn, prompt string) string {
	return "echo: " + prompt
}

func newWebhookRouter(t *testing.T, db *gorm.DB) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := &WebhookHandler{
		DB: db,
		Svc: &services.MessageService{
			DB:        db,
			Responder: stubResponder{},
			Sender:    stubSender{},
		},
		AuthToken:  testToken,
		WebhookURL: testURL,
	}
	r := gin.New()
	r.POST("/webhook", h.Handle)
	return r
}

func signedRequest(form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(twilio.SignatureHeader, twilio.ComputeSignature(testToken, testURL, form))
	return req
}

func inboundForm(sid, from, body string) url.Values {
	return url.Values{
		"MessageSid": {sid},
		"From":       {"whatsapp:" + from},
		"To":         {"whatsapp:+15557654321"},
		"Body":       {body},
	}
}

// waitForLogStatus polls until the webhook log for sid reaches a terminal
// status; processing runs in a detached goroutine.
func waitForLogStatus(t *testing.T, db *gorm.DB, sid string, want string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		var wl domain.WebhookLog
		err := db.Where("provider_message_id = ?", sid).First(&wl).Error
		if err == nil && wl.Status == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("webhook log for %s never reached %q", sid, want)
}

func TestWebhook_EmptyBody(t *testing.T) {
	r := newWebhookRouter(t, newHandlerDB(t))

	req := httptest.NewRequest(http.MethodPost, "/webhook", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if w.Body.String() != "Missing payload" {
		t.Fatalf("body = %q", w.Body.String())
	}
}

func TestWebhook_InvalidPayload(t *testing.T) {
	db := newHandlerDB(t)
	r := newWebhookRouter(t, db)

	form := url.Values{"From": {"whatsapp:+15551234567"}} // no MessageSid/To
	w := httptest.NewRecorder()
	r.ServeHTTP(w, signedRequest(form))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}

	var count int64
	if err := db.Model(&domain.Message{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("message rows = %d, want 0", count)
	}
}

func TestWebhook_MissingSignature(t *testing.T) {
	db := newHandlerDB(t)
	r := newWebhookRouter(t, db)

	form := inboundForm("SM-nosig", "+15551234567", "Hi")
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
}

func TestWebhook_InvalidSignature(t *testing.T) {
	db := newHandlerDB(t)
	r := newWebhookRouter(t, db)

	form := inboundForm("SM-badsig", "+15551234567", "Hi")
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(twilio.SignatureHeader, "not-the-right-signature")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}

	// Signature failures never reach the processing service.
	var count int64
	if err := db.Model(&domain.Message{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("message rows = %d, want 0", count)
	}
}

func TestWebhook_UnconfiguredSecret(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newHandlerDB(t)
	h := &WebhookHandler{
		DB:         db,
		Svc:        &services.MessageService{DB: db, Responder: stubResponder{}, Sender: stubSender{}},
		AuthToken:  "",
		WebhookURL: testURL,
	}
	r := gin.New()
	r.POST("/webhook", h.Handle)

	form := inboundForm("SM-noconf", "+15551234567", "Hi")
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(twilio.SignatureHeader, "anything")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if w.Body.String() != "Server misconfigured" {
		t.Fatalf("body = %q", w.Body.String())
	}
}

func TestWebhook_HappyPathAndReplay(t *testing.T) {
	db := newHandlerDB(t)
	if err := db.Create(&domain.User{ID: "u1", Phone: "+15551234567"}).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	r := newWebhookRouter(t, db)

	form := inboundForm("SM1", "+15551234567", "Hi")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, signedRequest(form))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if w.Body.String() != "<Response></Response>" {
		t.Fatalf("body = %q, want TwiML ack", w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/xml") {
		t.Fatalf("content type = %q", ct)
	}

	waitForLogStatus(t, db, "SM1", domain.WebhookProcessed)

	var msgs []domain.Message
	if err := db.Order("created_at asc").Find(&msgs).Error; err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("message rows = %d, want inbound + outbound", len(msgs))
	}
	if msgs[0].Role != domain.RoleUser || msgs[0].Content != "Hi" {
		t.Fatalf("inbound = %+v", msgs[0])
	}
	if msgs[1].Role != domain.RoleAssistant || msgs[1].Content != "echo: Hi" {
		t.Fatalf("outbound = %+v", msgs[1])
	}

	// Replay: same provider message id, valid signature.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, signedRequest(form))
	if w.Code != http.StatusOK || w.Body.String() != "<Response></Response>" {
		t.Fatalf("replay: status=%d body=%q", w.Code, w.Body.String())
	}

	// No new rows appeared.
	time.Sleep(50 * time.Millisecond)
	var count int64
	if err := db.Model(&domain.Message{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("message rows after replay = %d, want 2", count)
	}
}

func TestWebhook_UnknownSenderStillAcked(t *testing.T) {
	db := newHandlerDB(t)
	r := newWebhookRouter(t, db)

	form := inboundForm("SM-unknown", "+15550009999", "Hi")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, signedRequest(form))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (errors are swallowed)", w.Code)
	}
	waitForLogStatus(t, db, "SM-unknown", domain.WebhookProcessingError)

	var count int64
	if err := db.Model(&domain.Message{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("message rows = %d, want 0", count)
	}
}
