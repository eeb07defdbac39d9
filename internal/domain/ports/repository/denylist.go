package repository

import (
	"context"

	"whatsapp-approval-relay/internal/domain/model"
)

type DenylistRepository interface {
	IsDenied(ctx context.Context, conversationID string) (bool, error)
	Add(ctx context.Context, conversationID, reason, notes string) error
	// Remove reports whether an entry was actually deleted.
	Remove(ctx context.Context, conversationID string) (bool, error)
	List(ctx context.Context, limit int) ([]*model.DenyEntry, error)
}
