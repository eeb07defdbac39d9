package ai

import (
	"context"

	"whatsapp-approval-relay/internal/domain/ports/adapter"
)

var _ adapter.ReplyGenerator = (*NoopGenerator)(nil)
var _ adapter.Transcriber = (*NoopTranscriber)(nil)

// NoopGenerator is the last-resort generator when no AI key is configured.
// It suggests nothing, so every card arrives without a reply and the operator
// answers manually.
type NoopGenerator struct{}

func NewNoopGenerator() *NoopGenerator { return &NoopGenerator{} }

func (NoopGenerator) Chat(ctx context.Context, _ []adapter.Message) (string, error) {
	return "", nil
}

// NoopTranscriber disables transcription; voice notes fall back to the
// placeholder path.
type NoopTranscriber struct{}

func NewNoopTranscriber() *NoopTranscriber { return &NoopTranscriber{} }

func (NoopTranscriber) Transcribe(ctx context.Context, _, _ string) (string, error) {
	return "", nil
}
