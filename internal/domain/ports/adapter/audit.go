package adapter

import (
	"context"
	"time"
)

// AuditEntry is one appended row of the external audit log.
type AuditEntry struct {
	Timestamp      time.Time
	ConversationID string
	DisplayName    string
	Incoming       string
	SuggestedReply string
}

// AuditLog is the append-only external record of message/reply/status history.
// Failures must never block the pipeline; callers log and continue with an
// empty row reference.
type AuditLog interface {
	AppendRow(ctx context.Context, entry AuditEntry) (rowRef string, err error)
	UpdateStatus(ctx context.Context, rowRef, status, finalText string) error
}
