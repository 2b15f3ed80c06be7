package services

import (
	"context"
	"errors"
	"testing"

	"github.com/tbourn/go-wa-gateway/internal/domain"
	"github.com/tbourn/go-wa-gateway/internal/repo"
)

func TestSweepFailed_RedeliversAndMarksSent(t *testing.T) {
	db := newSvcDB(t)
	seedUser(t, db, "+15551234567")
	chat, err := repo.CreateChat(context.Background(), db, "u-+15551234567", "Support")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	for i := 0; i < 3; i++ {
		m, err := repo.CreateMessage(db, repo.NewMessageParams{
			ChatID:     chat.ID,
			Role:       domain.RoleAssistant,
			Content:    "pending reply",
			Direction:  domain.DirectionOutbound,
			SendStatus: domain.SendPending,
			ToNumber:   "+15551234567",
		})
		if err != nil {
			t.Fatalf("message: %v", err)
		}
		if err := repo.MarkMessageFailed(context.Background(), db, m.ID, "provider 503"); err != nil {
			t.Fatalf("mark failed: %v", err)
		}
	}

	sender := &fakeSender{}
	sweep := &SweepService{DB: db, Sender: sender, BatchSize: 10}

	res, err := sweep.SweepFailed(context.Background())
	if err != nil {
		t.Fatalf("SweepFailed: %v", err)
	}
	if res.Processed != 3 || res.Sent != 3 || res.Failed != 0 {
		t.Fatalf("result = %+v, want 3/3/0", res)
	}

	var remaining int64
	if err := db.Model(&domain.Message{}).Where("send_status = ?", domain.SendFailed).Count(&remaining).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("still-failed rows = %d, want 0", remaining)
	}
}

func TestSweepFailed_CollectsPerMessageErrors(t *testing.T) {
	db := newSvcDB(t)
	seedUser(t, db, "+15551234567")
	chat, err := repo.CreateChat(context.Background(), db, "u-+15551234567", "Support")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	m, err := repo.CreateMessage(db, repo.NewMessageParams{
		ChatID:     chat.ID,
		Role:       domain.RoleAssistant,
		Content:    "reply",
		Direction:  domain.DirectionOutbound,
		SendStatus: domain.SendPending,
		ToNumber:   "+15551234567",
	})
	if err != nil {
		t.Fatalf("message: %v", err)
	}
	if err := repo.MarkMessageFailed(context.Background(), db, m.ID, "provider 503"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	sender := &fakeSender{sendErr: errors.New("still down")}
	sweep := &SweepService{DB: db, Sender: sender}

	res, err := sweep.SweepFailed(context.Background())
	if err != nil {
		t.Fatalf("SweepFailed: %v", err)
	}
	if res.Processed != 1 || res.Sent != 0 || res.Failed != 1 {
		t.Fatalf("result = %+v, want 1/0/1", res)
	}
	if len(res.Errors) != 1 {
		t.Fatalf("errors = %v, want one entry", res.Errors)
	}
}

func TestSweepFailed_EmptyBacklog(t *testing.T) {
	db := newSvcDB(t)
	sweep := &SweepService{DB: db, Sender: &fakeSender{}}

	res, err := sweep.SweepFailed(context.Background())
	if err != nil {
		t.Fatalf("SweepFailed: %v", err)
	}
	if res.Processed != 0 || len(res.Errors) != 0 {
		t.Fatalf("result = %+v, want empty", res)
	}
}
