package adapter

import (
	"context"

	"whatsapp-approval-relay/internal/domain/model"
)

// Card is what the operator sees for the currently active queue item. The
// surface derives action affordances (approve, reject, record-own, custom,
// defer) from the source message id.
type Card struct {
	SourceMessageID string
	Text            string
	MediaKind       model.MediaKind
	MediaPath       string
}

// OperatorSurface renders cards and notices to the human operator.
type OperatorSurface interface {
	PresentCard(ctx context.Context, card Card) error
	Notify(ctx context.Context, text string) error
}
