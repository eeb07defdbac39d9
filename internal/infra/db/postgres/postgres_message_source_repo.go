package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"whatsapp-approval-relay/internal/domain"
	"whatsapp-approval-relay/internal/domain/model"
	"whatsapp-approval-relay/internal/domain/ports/repository"
)

// Ensure compile-time conformance
var _ repository.MessageSourceRepository = (*MessageSourceRepo)(nil)

// MessageSourceRepo reads the messages and chats tables the bridge maintains.
// This side never writes them.
type MessageSourceRepo struct {
	pool *pgxpool.Pool
}

func NewMessageSourceRepo(pool *pgxpool.Pool) *MessageSourceRepo {
	return &MessageSourceRepo{pool: pool}
}

func (r *MessageSourceRepo) ListInboundSince(ctx context.Context, since time.Time, limit int) ([]*model.InboundMessage, error) {
	const q = `
SELECT m.id, m.conversation_id, m.sender_id, COALESCE(m.content,''), m.timestamp,
       COALESCE(c.display_name, m.sender_id), COALESCE(m.media_type,'')
FROM messages m
LEFT JOIN chats c ON c.conversation_id = m.conversation_id
WHERE m.is_from_me = FALSE AND m.timestamp > $1
ORDER BY m.timestamp ASC
LIMIT $2;`
	rows, err := r.pool.Query(ctx, q, since, limit)
	if err != nil {
		return nil, fmt.Errorf("list inbound: %w", err)
	}
	defer rows.Close()

	var out []*model.InboundMessage
	for rows.Next() {
		var m model.InboundMessage
		var mediaType string
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &m.Timestamp, &m.DisplayName, &mediaType); err != nil {
			return nil, fmt.Errorf("scan inbound row: %w", err)
		}
		m.MediaKind = model.MediaKind(mediaType)
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (r *MessageSourceRepo) RecentHistory(ctx context.Context, conversationID string, limit int) ([]model.HistoryEntry, error) {
	const q = `
SELECT COALESCE(content,''), is_from_me, timestamp
FROM messages
WHERE conversation_id = $1 AND COALESCE(content,'') <> ''
ORDER BY timestamp DESC
LIMIT $2;`
	rows, err := r.pool.Query(ctx, q, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent history: %w", err)
	}
	defer rows.Close()

	var desc []model.HistoryEntry
	for rows.Next() {
		var h model.HistoryEntry
		if err := rows.Scan(&h.Content, &h.FromMe, &h.Timestamp); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		desc = append(desc, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Flip to oldest-first for the context window.
	out := make([]model.HistoryEntry, len(desc))
	for i, h := range desc {
		out[len(desc)-1-i] = h
	}
	return out, nil
}

func (r *MessageSourceRepo) MessageTimestamp(ctx context.Context, messageID, conversationID string) (time.Time, error) {
	const q = `SELECT timestamp FROM messages WHERE id = $1 AND conversation_id = $2;`
	var ts time.Time
	err := r.pool.QueryRow(ctx, q, messageID, conversationID).Scan(&ts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, domain.ErrNotFound
		}
		return time.Time{}, fmt.Errorf("message timestamp: %w", err)
	}
	return ts, nil
}

func (r *MessageSourceRepo) MediaSize(ctx context.Context, messageID, conversationID string) (int64, error) {
	const q = `SELECT media_size FROM messages WHERE id = $1 AND conversation_id = $2;`
	var size sql.NullInt64
	err := r.pool.QueryRow(ctx, q, messageID, conversationID).Scan(&size)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrNotFound
		}
		return 0, fmt.Errorf("media size: %w", err)
	}
	return size.Int64, nil
}
