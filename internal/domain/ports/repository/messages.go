package repository

import (
	"context"
	"time"

	"whatsapp-approval-relay/internal/domain/model"
)

// MessageSourceRepository reads the external message store written by the
// relay bridge. It is consumed read-only.
type MessageSourceRepository interface {
	// ListInboundSince returns inbound rows strictly newer than since,
	// ordered by timestamp ascending.
	ListInboundSince(ctx context.Context, since time.Time, limit int) ([]*model.InboundMessage, error)

	// RecentHistory returns up to limit recent entries for a conversation,
	// oldest first.
	RecentHistory(ctx context.Context, conversationID string, limit int) ([]model.HistoryEntry, error)

	// MessageTimestamp returns the source timestamp of a single message.
	MessageTimestamp(ctx context.Context, messageID, conversationID string) (time.Time, error)

	// MediaSize returns the stored media byte length, 0 when unknown.
	MediaSize(ctx context.Context, messageID, conversationID string) (int64, error)
}
