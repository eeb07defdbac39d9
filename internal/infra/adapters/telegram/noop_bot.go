package telegram

import (
	"context"
	"log"

	"whatsapp-approval-relay/internal/domain/ports/adapter"
)

var _ adapter.OperatorSurface = (*NoopBotAdapter)(nil)

// NoopBotAdapter implements adapter.OperatorSurface for local/dev testing.
// It logs cards instead of talking to Telegram.
type NoopBotAdapter struct{}

// NewNoopBotAdapter constructs the noop adapter.
func NewNoopBotAdapter() *NoopBotAdapter {
	return &NoopBotAdapter{}
}

func (b *NoopBotAdapter) PresentCard(ctx context.Context, card adapter.Card) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	log.Printf("[noop-telegram] card %s (media=%s):\n%s\n", card.SourceMessageID, card.MediaKind, card.Text)
	return nil
}

func (b *NoopBotAdapter) Notify(ctx context.Context, text string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	log.Printf("[noop-telegram] %s\n", text)
	return nil
}
