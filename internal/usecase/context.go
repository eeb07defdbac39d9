package usecase

import (
	"whatsapp-approval-relay/internal/domain/model"
	"whatsapp-approval-relay/internal/domain/ports/adapter"

	"github.com/pkoukk/tiktoken-go"
)

// ContextBuilder assembles the chat-completion window: system prompt, as much
// recent history as the token budget allows (newest kept, oldest dropped) and
// the incoming text last.
type ContextBuilder struct {
	enc          *tiktoken.Tiktoken
	systemPrompt string
	tokenBudget  int
}

// NewContextBuilder loads the tokenizer for modelName. When no encoding can be
// loaded (offline start, unknown model) it falls back to a bytes/4 estimate
// rather than failing; the budget is a trimming heuristic, not a hard limit.
func NewContextBuilder(modelName, systemPrompt string, tokenBudget int) *ContextBuilder {
	enc, err := tiktoken.EncodingForModel(modelName)
	if err != nil {
		enc, _ = tiktoken.GetEncoding("cl100k_base")
	}
	return &ContextBuilder{enc: enc, systemPrompt: systemPrompt, tokenBudget: tokenBudget}
}

func (c *ContextBuilder) countTokens(s string) int {
	if c.enc == nil {
		return len(s)/4 + 1
	}
	return len(c.enc.Encode(s, nil, nil))
}

// Build returns the message window for one generation call. history must be
// ordered oldest first.
func (c *ContextBuilder) Build(history []model.HistoryEntry, incoming string) []adapter.Message {
	budget := c.tokenBudget
	budget -= c.countTokens(c.systemPrompt)
	budget -= c.countTokens(incoming)

	// Walk history newest to oldest, keeping entries while the budget holds.
	kept := 0
	for i := len(history) - 1; i >= 0; i-- {
		cost := c.countTokens(history[i].Content)
		if budget-cost < 0 {
			break
		}
		budget -= cost
		kept++
	}

	msgs := make([]adapter.Message, 0, kept+2)
	msgs = append(msgs, adapter.Message{Role: "system", Content: c.systemPrompt})
	for _, h := range history[len(history)-kept:] {
		role := "user"
		if h.FromMe {
			role = "assistant"
		}
		msgs = append(msgs, adapter.Message{Role: role, Content: h.Content})
	}
	msgs = append(msgs, adapter.Message{Role: "user", Content: incoming})
	return msgs
}
