package ai

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-wa-gateway/internal/domain"
	"github.com/tbourn/go-wa-gateway/internal/repo"
)

func newAIDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.Escalation{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestClassify(t *testing.T) {
	cases := map[string]string{
		"request timeout after 30s":   ClassTimeout,
		"operation aborted":           ClassTimeout,
		"schema mismatch in reply":    ClassSchemaValidation,
		"output validation failed":    ClassSchemaValidation,
		"api unavailable":             ClassAPIError,
		"rate limit exceeded":         ClassAPIError,
		"status 429 from provider":    ClassAPIError,
		"upstream returned 500":       ClassAPIError,
		"something else went wrong":   ClassUnknown,
	}
	for msg, want := range cases {
		if got := Classify(errors.New(msg)); got != want {
			t.Fatalf("Classify(%q) = %q, want %q", msg, got, want)
		}
	}
	if got := Classify(context.DeadlineExceeded); got != ClassTimeout {
		t.Fatalf("deadline errors must classify as timeout, got %q", got)
	}
}

func TestRespond_TimeoutFallbackAndSingleEscalation(t *testing.T) {
	db := newAIDB(t)
	calls := 0
	s := &SafeResponder{
		DB:         db,
		MaxRetries: 1,
		Gen: GeneratorFunc(func(ctx context.Context, _ []Turn, _ string) (string, error) {
			calls++
			return "", errors.New("request timeout")
		}),
	}

	got := s.Respond(context.Background(), "chat-1", nil, "hi")
	if got != FallbackTimeout {
		t.Fatalf("expected timeout fallback, got %q", got)
	}
	if calls != 2 {
		t.Fatalf("expected 1+MaxRetries attempts for transient failure, got %d", calls)
	}
	n, err := repo.CountEscalations(context.Background(), db, "chat-1")
	if err != nil || n != 1 {
		t.Fatalf("expected exactly one escalation, got n=%d err=%v", n, err)
	}
}

func TestRespond_WhitespaceOutputGenericFallback(t *testing.T) {
	db := newAIDB(t)
	s := &SafeResponder{
		DB:  db,
		Gen: GeneratorFunc(func(context.Context, []Turn, string) (string, error) { return "  \n\t ", nil }),
	}

	if got := s.Respond(context.Background(), "chat-2", nil, "hi"); got != FallbackGeneric {
		t.Fatalf("expected generic fallback for whitespace output, got %q", got)
	}

	var recs []domain.Escalation
	if err := db.Where("chat_id = ?", "chat-2").Find(&recs).Error; err != nil {
		t.Fatalf("list escalations: %v", err)
	}
	if len(recs) != 1 || recs[0].Classification != ClassEmptyResponse {
		t.Fatalf("expected one empty_response escalation, got %#v", recs)
	}
}

func TestRespond_APIErrorDistinctMessage(t *testing.T) {
	s := &SafeResponder{
		MaxRetries: 1,
		Gen:        GeneratorFunc(func(context.Context, []Turn, string) (string, error) { return "", errors.New("api returned 500") }),
	}
	if got := s.Respond(context.Background(), "c", nil, "hi"); got != FallbackAPI {
		t.Fatalf("expected api fallback, got %q", got)
	}
}

func TestRespond_PermanentErrorNotRetried(t *testing.T) {
	calls := 0
	s := &SafeResponder{
		MaxRetries: 2,
		Gen: GeneratorFunc(func(context.Context, []Turn, string) (string, error) {
			calls++
			return "", errors.New("schema violation in tool output")
		}),
	}
	if got := s.Respond(context.Background(), "c", nil, "hi"); got != FallbackGeneric {
		t.Fatalf("expected generic fallback, got %q", got)
	}
	if calls != 1 {
		t.Fatalf("permanent classes must not be retried, got %d calls", calls)
	}
}

func TestRespond_SuccessPassesThroughTrimmed(t *testing.T) {
	s := &SafeResponder{
		Gen: GeneratorFunc(func(context.Context, []Turn, string) (string, error) { return "  a real answer \n", nil }),
	}
	if got := s.Respond(context.Background(), "c", nil, "hi"); got != "a real answer" {
		t.Fatalf("expected trimmed pass-through, got %q", got)
	}
}

func TestRespond_HonorsDeadline(t *testing.T) {
	s := &SafeResponder{
		Timeout:    20 * time.Millisecond,
		MaxRetries: -1, // no extra attempts; keep the test fast
		Gen: GeneratorFunc(func(ctx context.Context, _ []Turn, _ string) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		}),
	}
	if got := s.Respond(context.Background(), "c", nil, "hi"); got != FallbackTimeout {
		t.Fatalf("expected timeout fallback when deadline fires, got %q", got)
	}
}
