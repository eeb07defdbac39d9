package repository

import (
	"context"

	"whatsapp-approval-relay/internal/domain/model"
)

// QueueRepository is the durable approval queue. It is the single source of
// truth for item state; in-memory caches layered above it are disposable.
type QueueRepository interface {
	// Insert appends a new pending item and returns its assigned id.
	Insert(ctx context.Context, tx Tx, item *model.QueueItem) (int64, error)

	// ActiveItem returns the item with status=active, or ErrNotFound.
	ActiveItem(ctx context.Context) (*model.QueueItem, error)

	// PromoteNextPending atomically selects the pending item with the lowest
	// priority (ties broken by earliest created_at), marks it active and
	// returns it. ErrNotFound when nothing is pending. Concurrent promotions
	// must not both succeed for the same no-active condition.
	PromoteNextPending(ctx context.Context) (*model.QueueItem, error)

	// SetStatus writes status and stamps last_transition_at unconditionally.
	SetStatus(ctx context.Context, tx Tx, id int64, status model.QueueStatus) error

	// ResetStuckActive moves an active item with the given source message id
	// back to pending. Reports whether a row was actually reset, so racing
	// callers can tell first from second.
	ResetStuckActive(ctx context.Context, sourceMessageID string) (bool, error)

	PendingCount(ctx context.Context) (int, error)

	// PeekPending returns up to limit pending items in promotion order.
	PeekPending(ctx context.Context, limit int) ([]*model.QueueItem, error)

	// FindBySourceMessageID returns the most recent item for a source message
	// (last_transition_at desc, id desc), or ErrNotFound. Source message ids
	// are not unique across retries.
	FindBySourceMessageID(ctx context.Context, sourceMessageID string) (*model.QueueItem, error)
}
