package repository

import "context"

// ApprovalContext is the hot-path snapshot of an enqueued item, keyed by its
// source message id. It mirrors columns already persisted on the queue row;
// losing the cache only costs a database lookup.
type ApprovalContext struct {
	ConversationID string `json:"conversation_id"`
	DisplayName    string `json:"display_name"`
	SuggestedReply string `json:"suggested_reply"`
	AuditRef       string `json:"audit_ref"`
}

type ApprovalContextCache interface {
	Put(ctx context.Context, sourceMessageID string, c ApprovalContext) error
	// Get returns ErrNotFound on a miss.
	Get(ctx context.Context, sourceMessageID string) (ApprovalContext, error)
	Delete(ctx context.Context, sourceMessageID string) error
}
