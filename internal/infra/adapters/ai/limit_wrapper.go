package ai

import (
	"context"

	"whatsapp-approval-relay/internal/domain/ports/adapter"
)

// Compile-time check
var _ adapter.ReplyGenerator = (*limitedGenerator)(nil)

type limitedGenerator struct {
	inner adapter.ReplyGenerator
	sem   chan struct{}
}

// NewLimitedGenerator caps concurrent generation calls with a semaphore.
func NewLimitedGenerator(inner adapter.ReplyGenerator, maxConcurrent int) adapter.ReplyGenerator {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedGenerator{
		inner: inner,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

func (l *limitedGenerator) Chat(ctx context.Context, messages []adapter.Message) (string, error) {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { <-l.sem }()
	return l.inner.Chat(ctx, messages)
}
