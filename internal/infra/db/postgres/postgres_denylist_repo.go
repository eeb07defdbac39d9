package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"whatsapp-approval-relay/internal/domain/model"
	"whatsapp-approval-relay/internal/domain/ports/repository"
)

// Ensure compile-time conformance
var _ repository.DenylistRepository = (*DenylistRepo)(nil)

type DenylistRepo struct {
	pool *pgxpool.Pool
}

func NewDenylistRepo(pool *pgxpool.Pool) *DenylistRepo {
	return &DenylistRepo{pool: pool}
}

func (r *DenylistRepo) IsDenied(ctx context.Context, conversationID string) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM denylist WHERE conversation_id=$1);`
	var denied bool
	if err := r.pool.QueryRow(ctx, q, conversationID).Scan(&denied); err != nil {
		return false, fmt.Errorf("denylist lookup: %w", err)
	}
	return denied, nil
}

func (r *DenylistRepo) Add(ctx context.Context, conversationID, reason, notes string) error {
	const q = `
INSERT INTO denylist (conversation_id, reason, notes)
VALUES ($1,$2,$3)
ON CONFLICT (conversation_id) DO UPDATE SET reason=EXCLUDED.reason, notes=EXCLUDED.notes;`
	if _, err := r.pool.Exec(ctx, q, conversationID, reason, notes); err != nil {
		return fmt.Errorf("denylist add: %w", err)
	}
	return nil
}

func (r *DenylistRepo) Remove(ctx context.Context, conversationID string) (bool, error) {
	const q = `DELETE FROM denylist WHERE conversation_id=$1;`
	tag, err := r.pool.Exec(ctx, q, conversationID)
	if err != nil {
		return false, fmt.Errorf("denylist remove: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *DenylistRepo) List(ctx context.Context, limit int) ([]*model.DenyEntry, error) {
	const q = `
SELECT conversation_id, blocked_at, reason, notes
FROM denylist ORDER BY blocked_at DESC LIMIT $1;`
	rows, err := r.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("denylist list: %w", err)
	}
	defer rows.Close()

	var out []*model.DenyEntry
	for rows.Next() {
		var e model.DenyEntry
		if err := rows.Scan(&e.ConversationID, &e.BlockedAt, &e.Reason, &e.Notes); err != nil {
			return nil, fmt.Errorf("scan denylist row: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
