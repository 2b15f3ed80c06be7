package twilio

import (
	"strings"
	"testing"
)

func TestChunkMessage_ShortBodySinglePiece(t *testing.T) {
	got := ChunkMessage("hello", 1600)
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("expected single chunk, got %#v", got)
	}
}

func TestChunkMessage_JoinReconstructsOriginal(t *testing.T) {
	lines := make([]string, 0, 50)
	for i := 0; i < 50; i++ {
		lines = append(lines, strings.Repeat("x", 40))
	}
	body := strings.Join(lines, "\n")

	chunks := ChunkMessage(body, 100)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks for %d-char body", len(body))
	}
	if strings.Join(chunks, "\n") != body {
		t.Fatalf("joining chunks must reconstruct the original body")
	}
	for i, ch := range chunks {
		if len(ch) > 100 {
			t.Fatalf("chunk %d exceeds limit: %d chars", i, len(ch))
		}
	}
}

func TestChunkMessage_GreedyPacking(t *testing.T) {
	// Three 30-char lines with a 70-char limit: first chunk packs two lines
	// (30+1+30=61), second holds the remainder.
	line := strings.Repeat("a", 30)
	chunks := ChunkMessage(line+"\n"+line+"\n"+line, 70)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %#v", len(chunks), chunks)
	}
	if chunks[0] != line+"\n"+line || chunks[1] != line {
		t.Fatalf("greedy packing broken: %#v", chunks)
	}
}

func TestChunkMessage_OversizedLineKeptWhole(t *testing.T) {
	long := strings.Repeat("y", 200)
	chunks := ChunkMessage("short\n"+long+"\ntail", 100)
	found := false
	for _, ch := range chunks {
		if ch == long {
			found = true
		}
	}
	if !found {
		t.Fatalf("oversized single line must stay whole, got %#v", chunks)
	}
	if strings.Join(chunks, "\n") != "short\n"+long+"\ntail" {
		t.Fatalf("join must still reconstruct original")
	}
}

func TestChunkMessage_EmptyBody(t *testing.T) {
	got := ChunkMessage("", 100)
	if len(got) != 1 || got[0] != "" {
		t.Fatalf("expected single empty chunk, got %#v", got)
	}
}
