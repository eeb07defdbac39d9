package adapter

import "context"

// Message is one entry of a chat-completion context window.
type Message struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// ReplyGenerator is the port for the reply-suggestion service. Implementations
// classify failures: rate limits and upstream outages surface as
// domain.ErrRateLimited / domain.ErrUnavailable so callers can retry, anything
// else is permanent for that input.
type ReplyGenerator interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}

// Transcriber converts a downloaded voice recording to text. language may be
// empty for autodetection.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, language string) (string, error)
}
