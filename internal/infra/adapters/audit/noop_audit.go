package audit

import (
	"context"

	"whatsapp-approval-relay/internal/domain/ports/adapter"
)

var _ adapter.AuditLog = (*NoopLog)(nil)

// NoopLog is used when no spreadsheet is configured. Items carry an empty row
// reference and status updates vanish.
type NoopLog struct{}

func NewNoopLog() *NoopLog { return &NoopLog{} }

func (NoopLog) AppendRow(context.Context, adapter.AuditEntry) (string, error) { return "", nil }

func (NoopLog) UpdateStatus(context.Context, string, string, string) error { return nil }
