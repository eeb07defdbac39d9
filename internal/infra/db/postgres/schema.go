package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
)

// EnsureSchema creates the tables this service owns. The messages and chats
// tables belong to the bridge and are never created here.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS queue_items (
    id                 BIGSERIAL PRIMARY KEY,
    source_message_id  TEXT NOT NULL,
    conversation_id    TEXT NOT NULL,
    display_name       TEXT NOT NULL DEFAULT '',
    content            TEXT NOT NULL,
    media_kind         TEXT NOT NULL DEFAULT '',
    media_ref          TEXT NOT NULL DEFAULT '',
    suggested_reply    TEXT NOT NULL DEFAULT '',
    audit_ref          TEXT NOT NULL DEFAULT '',
    status             TEXT NOT NULL DEFAULT 'pending',
    priority           INT  NOT NULL DEFAULT 20,
    created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    last_transition_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_queue_items_status_order
    ON queue_items (status, priority, created_at);
CREATE INDEX IF NOT EXISTS idx_queue_items_source
    ON queue_items (source_message_id);

CREATE TABLE IF NOT EXISTS denylist (
    conversation_id TEXT PRIMARY KEY,
    blocked_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    reason          TEXT NOT NULL DEFAULT '',
    notes           TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS subscriptions (
    conversation_id TEXT PRIMARY KEY,
    tier            TEXT NOT NULL DEFAULT 'free',
    daily_count     INT  NOT NULL DEFAULT 0,
    last_reset      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    subscribed_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    expires_at      TIMESTAMPTZ,
    notes           TEXT NOT NULL DEFAULT ''
);`
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
