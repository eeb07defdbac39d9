package usecase

import (
	"strings"
	"testing"

	"whatsapp-approval-relay/internal/domain/model"
)

func TestContextWindowShape(t *testing.T) {
	cb := NewContextBuilder("gpt-4o-mini", "You are a helpful shop assistant.", 100000)
	cb.enc = nil // deterministic byte estimate, no vocab download in tests

	history := []model.HistoryEntry{
		{Content: "Do you sell shoes?", FromMe: false},
		{Content: "Yes, sizes 38 to 46.", FromMe: true},
	}
	msgs := cb.Build(history, "What about size 47?")

	if len(msgs) != 4 {
		t.Fatalf("window length = %d, want 4", len(msgs))
	}
	if msgs[0].Role != "system" {
		t.Errorf("first role = %s, want system", msgs[0].Role)
	}
	if msgs[1].Role != "user" || msgs[2].Role != "assistant" {
		t.Errorf("history roles = %s,%s, want user,assistant", msgs[1].Role, msgs[2].Role)
	}
	last := msgs[len(msgs)-1]
	if last.Role != "user" || last.Content != "What about size 47?" {
		t.Errorf("last message = %+v, want the incoming text", last)
	}
}

func TestContextWindowDropsOldestWhenOverBudget(t *testing.T) {
	cb := NewContextBuilder("gpt-4o-mini", "sys", 40)
	cb.enc = nil

	long := strings.Repeat("word ", 40) // ~50 estimated tokens, never fits
	history := []model.HistoryEntry{
		{Content: long, FromMe: false},
		{Content: "short and recent", FromMe: false},
	}
	msgs := cb.Build(history, "incoming")

	for _, m := range msgs[1 : len(msgs)-1] {
		if m.Content == long {
			t.Fatal("oversized oldest entry must be dropped first")
		}
	}
	if msgs[1].Content != "short and recent" {
		t.Errorf("kept history = %q, want the newest entry", msgs[1].Content)
	}
}
