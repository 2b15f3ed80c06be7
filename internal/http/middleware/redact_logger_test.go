package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// captureLogs swaps the global zerolog writer for the duration of the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = orig })
	return &buf
}

func redactRouter(opts RedactOptions) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RedactingLogger(opts))
	r.POST("/webhook", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	return r
}

func TestRedactingLogger_MasksSignatureHeader(t *testing.T) {
	buf := captureLogs(t)
	r := redactRouter(RedactOptions{})

	req := httptest.NewRequest(http.MethodPost, "/webhook", nil)
	req.Header.Set("X-Twilio-Signature", "c2lnbmF0dXJl")
	req.Header.Set("Authorization", "Bearer secret-token")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	out := buf.String()
	if strings.Contains(out, "c2lnbmF0dXJl") || strings.Contains(out, "secret-token") {
		t.Fatalf("sensitive header value leaked: %s", out)
	}
	if !strings.Contains(out, "[REDACTED]") {
		t.Fatalf("expected masked headers in log: %s", out)
	}
}

func TestRedactingLogger_ScrubsQueryPII(t *testing.T) {
	buf := captureLogs(t)
	r := redactRouter(RedactOptions{})

	req := httptest.NewRequest(http.MethodPost, "/webhook?contact=%2B15551234567&mail=a%40b.com", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	out := buf.String()
	if strings.Contains(out, "15551234567") || strings.Contains(out, "a@b.com") {
		t.Fatalf("PII leaked to log: %s", out)
	}
}

func TestRedactingLogger_CustomMaskHeader(t *testing.T) {
	buf := captureLogs(t)
	r := redactRouter(RedactOptions{MaskHeaders: []string{"X-Api-Key"}})

	req := httptest.NewRequest(http.MethodPost, "/webhook", nil)
	req.Header.Set("X-Api-Key", "super-secret")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if strings.Contains(buf.String(), "super-secret") {
		t.Fatalf("custom masked header leaked: %s", buf.String())
	}
}
