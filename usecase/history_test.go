package usecase

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/ao-agents-hackathon-band-of-the-hawk/voicecore/adapters/storage"
	"github.com/ao-agents-hackathon-band-of-the-hawk/voicecore/domain/entities"
)

func testHistory(maxBytes int) *History {
	h := NewHistory(storage.NewMemoryStore(maxBytes), nil, zap.NewNop())
	clock := int64(0)
	h.now = func() int64 {
		clock++
		return clock
	}
	return h
}

func TestRecordTurnCreatesAndAppends(t *testing.T) {
	h := testHistory(0)
	ctx := context.Background()

	if err := h.RecordTurn(ctx, "voice-s1", "hi", "hello!"); err != nil {
		t.Fatalf("RecordTurn failed: %v", err)
	}
	if err := h.RecordTurn(ctx, "voice-s1", "more", "sure"); err != nil {
		t.Fatalf("RecordTurn failed: %v", err)
	}

	conversations, err := h.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(conversations) != 1 {
		t.Fatalf("Expected both turns merged into 1 conversation, got %d", len(conversations))
	}
	if len(conversations[0].Pairs) != 2 {
		t.Errorf("Expected 2 pairs, got %d", len(conversations[0].Pairs))
	}
	if conversations[0].Pairs[0].User != "hi" || conversations[0].Pairs[1].User != "more" {
		t.Errorf("Pairs out of order: %+v", conversations[0].Pairs)
	}
}

func TestListMostRecentFirst(t *testing.T) {
	h := testHistory(0)
	ctx := context.Background()

	h.RecordTurn(ctx, "voice-old", "a", "b")
	h.RecordTurn(ctx, "chat-new", "c", "d")
	h.RecordTurn(ctx, "voice-old", "e", "f") // touch moves it to front

	conversations, err := h.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(conversations) != 2 {
		t.Fatalf("Expected 2 conversations, got %d", len(conversations))
	}
	if conversations[0].ID != "voice-old" {
		t.Errorf("Expected the touched conversation first, got %s", conversations[0].ID)
	}
}

func TestDeleteConversation(t *testing.T) {
	h := testHistory(0)
	ctx := context.Background()

	h.RecordTurn(ctx, "voice-a", "1", "2")
	h.RecordTurn(ctx, "voice-b", "3", "4")

	if err := h.Delete(ctx, "voice-a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	conversations, _ := h.List(ctx)
	if len(conversations) != 1 || conversations[0].ID != "voice-b" {
		t.Errorf("Expected only voice-b to survive, got %+v", conversations)
	}

	// Deleting a missing id is a no-op.
	if err := h.Delete(ctx, "voice-missing"); err != nil {
		t.Errorf("Delete of missing id failed: %v", err)
	}
}

func TestQuotaEvictsOldestAndRetries(t *testing.T) {
	// Size the quota so ten conversations fit but the eleventh write
	// trips it.
	h := testHistory(0)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		h.RecordTurn(ctx, entities.VoiceConversationID(string(rune('a'+i))), "question", "answer")
	}
	blob, err := h.store.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	limited := NewHistory(storage.NewMemoryStore(len(blob)+10), nil, zap.NewNop())
	clock := int64(0)
	limited.now = func() int64 { clock++; return clock }
	for i := 0; i < 10; i++ {
		if err := limited.RecordTurn(ctx, entities.VoiceConversationID(string(rune('a'+i))), "question", "answer"); err != nil {
			t.Fatalf("RecordTurn %d failed: %v", i, err)
		}
	}

	// This write exceeds the quota and must evict rather than fail.
	if err := limited.RecordTurn(ctx, "voice-overflow", "question", "answer"); err != nil {
		t.Fatalf("RecordTurn after quota failed: %v", err)
	}

	conversations, err := limited.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(conversations) >= 11 {
		t.Errorf("Expected eviction to shrink the collection, got %d", len(conversations))
	}
	// The newest write must have survived the eviction.
	found := false
	for _, c := range conversations {
		if c.ID == "voice-overflow" {
			found = true
		}
	}
	if !found {
		t.Error("The conversation that triggered eviction must survive")
	}
}

func TestExportShape(t *testing.T) {
	h := testHistory(0)
	ctx := context.Background()

	h.RecordTurn(ctx, "voice-first", "q1", "a1")
	h.RecordTurn(ctx, "chat-second", "q2", "a2")

	export, err := h.Export(ctx)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if len(export) != 2 {
		t.Fatalf("Expected 2 exported conversations, got %d", len(export))
	}

	// Export is oldest first, the reverse of List.
	first := export[0]
	if len(first.Messages) != 3 {
		t.Fatalf("Expected system + user + assistant, got %d messages", len(first.Messages))
	}
	if first.Messages[0].Role != "system" {
		t.Errorf("Expected system prompt first, got %s", first.Messages[0].Role)
	}
	if first.Messages[1].Role != "user" || first.Messages[1].Content != "q1" {
		t.Errorf("Unexpected user message: %+v", first.Messages[1])
	}
	if first.Messages[2].Role != "assistant" || first.Messages[2].Content != "a1" {
		t.Errorf("Unexpected assistant message: %+v", first.Messages[2])
	}
}

func TestSubscribeNotifiedOnMutation(t *testing.T) {
	h := testHistory(0)
	ctx := context.Background()

	notified := 0
	h.Subscribe(func() { notified++ })

	h.RecordTurn(ctx, "voice-s1", "hi", "hello")
	h.Delete(ctx, "voice-s1")

	if notified != 2 {
		t.Errorf("Expected 2 notifications, got %d", notified)
	}
}
