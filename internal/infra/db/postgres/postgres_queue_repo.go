package postgres

import (
	"context"
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
var _ repository.QueueRepository = (*QueueRepo)(nil)

// QueueRepo persists approval queue items. Rows are never deleted; done items
// stay behind as the audit trail and restart-recovery record.
type QueueRepo struct {
	pool *pgxpool.Pool
	tm   repository.TransactionManager
}

func NewQueueRepo(pool *pgxpool.Pool, tm repository.TransactionManager) *QueueRepo {
	return &QueueRepo{pool: pool, tm: tm}
}

const queueColumns = `id, source_message_id, conversation_id, display_name, content,
media_kind, media_ref, suggested_reply, audit_ref, status, priority, created_at, last_transition_at`

func scanQueueItem(row pgx.Row) (*model.QueueItem, error) {
	var it model.QueueItem
	var status, mediaKind string
	err := row.Scan(
		&it.ID, &it.SourceMessageID, &it.ConversationID, &it.DisplayName, &it.Content,
		&mediaKind, &it.MediaRef, &it.SuggestedReply, &it.AuditRef, &status, &it.Priority,
		&it.CreatedAt, &it.LastTransitionAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan queue item: %w", err)
	}
	it.Status = model.QueueStatus(status)
	it.MediaKind = model.MediaKind(mediaKind)
	return &it, nil
}

func (r *QueueRepo) Insert(ctx context.Context, tx repository.Tx, item *model.QueueItem) (int64, error) {
	const q = `
INSERT INTO queue_items
  (source_message_id, conversation_id, display_name, content, media_kind, media_ref,
   suggested_reply, audit_ref, status, priority, created_at, last_transition_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NOW(),NOW())
RETURNING id;`
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return 0, err
	}
	var id int64
	err = ex.QueryRow(ctx, q,
		item.SourceMessageID, item.ConversationID, item.DisplayName, item.Content,
		string(item.MediaKind), item.MediaRef, item.SuggestedReply, item.AuditRef,
		string(model.QueueStatusPending), item.Priority,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert queue item: %w", err)
	}
	return id, nil
}

func (r *QueueRepo) ActiveItem(ctx context.Context) (*model.QueueItem, error) {
	q := fmt.Sprintf(`SELECT %s FROM queue_items WHERE status='active' ORDER BY id LIMIT 1;`, queueColumns)
	return scanQueueItem(r.pool.QueryRow(ctx, q))
}

// PromoteNextPending locks the next pending row and flips it to active inside
// one transaction. SKIP LOCKED keeps two racing promoters from both claiming
// the same row.
func (r *QueueRepo) PromoteNextPending(ctx context.Context) (*model.QueueItem, error) {
	var promoted *model.QueueItem
	err := r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		fetch := fmt.Sprintf(`
SELECT %s FROM queue_items
WHERE status='pending'
  AND NOT EXISTS (SELECT 1 FROM queue_items WHERE status='active')
ORDER BY priority ASC, created_at ASC, id ASC
LIMIT 1
FOR UPDATE SKIP LOCKED;`, queueColumns)

		ex, err := getExecutor(r.pool, tx)
		if err != nil {
			return err
		}
		it, err := scanQueueItem(ex.QueryRow(ctx, fetch))
		if err != nil {
			return err
		}
		const mark = `UPDATE queue_items SET status='active', last_transition_at=NOW() WHERE id=$1;`
		if _, err := ex.Exec(ctx, mark, it.ID); err != nil {
			return fmt.Errorf("mark active: %w", err)
		}
		it.Status = model.QueueStatusActive
		it.LastTransitionAt = time.Now()
		promoted = it
		return nil
	})
	if err != nil {
		return nil, err
	}
	return promoted, nil
}

func (r *QueueRepo) SetStatus(ctx context.Context, tx repository.Tx, id int64, status model.QueueStatus) error {
	const q = `UPDATE queue_items SET status=$2, last_transition_at=NOW() WHERE id=$1;`
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	tag, err := ex.Exec(ctx, q, id, string(status))
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ResetStuckActive is the race arbiter for stale-card recovery: the UPDATE's
// row count tells the first caller apart from everyone who arrived second.
func (r *QueueRepo) ResetStuckActive(ctx context.Context, sourceMessageID string) (bool, error) {
	const q = `
UPDATE queue_items SET status='pending', last_transition_at=NOW()
WHERE status='active' AND source_message_id=$1;`
	tag, err := r.pool.Exec(ctx, q, sourceMessageID)
	if err != nil {
		return false, fmt.Errorf("reset stuck active: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *QueueRepo) PendingCount(ctx context.Context) (int, error) {
	const q = `SELECT COUNT(*) FROM queue_items WHERE status='pending';`
	var n int
	if err := r.pool.QueryRow(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("pending count: %w", err)
	}
	return n, nil
}

func (r *QueueRepo) PeekPending(ctx context.Context, limit int) ([]*model.QueueItem, error) {
	q := fmt.Sprintf(`
SELECT %s FROM queue_items
WHERE status='pending'
ORDER BY priority ASC, created_at ASC, id ASC
LIMIT $1;`, queueColumns)
	rows, err := r.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("peek pending: %w", err)
	}
	defer rows.Close()

	var out []*model.QueueItem
	for rows.Next() {
		it, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *QueueRepo) FindBySourceMessageID(ctx context.Context, sourceMessageID string) (*model.QueueItem, error) {
	q := fmt.Sprintf(`
SELECT %s FROM queue_items
WHERE source_message_id=$1
ORDER BY last_transition_at DESC, id DESC
LIMIT 1;`, queueColumns)
	return scanQueueItem(r.pool.QueryRow(ctx, q, sourceMessageID))
}
