package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"whatsapp-approval-relay/internal/domain/model"
	"whatsapp-approval-relay/internal/domain/ports/repository"
)

// Ensure compile-time conformance
var _ repository.SubscriptionRepository = (*SubscriptionRepo)(nil)

type SubscriptionRepo struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepo(pool *pgxpool.Pool) *SubscriptionRepo {
	return &SubscriptionRepo{pool: pool}
}

func (r *SubscriptionRepo) Get(ctx context.Context, conversationID string) (*model.Subscription, error) {
	const q = `
SELECT conversation_id, tier, daily_count, last_reset, subscribed_at, expires_at, notes
FROM subscriptions WHERE conversation_id=$1;`
	var s model.Subscription
	var tier string
	err := r.pool.QueryRow(ctx, q, conversationID).Scan(
		&s.ConversationID, &tier, &s.DailyCount, &s.LastReset, &s.SubscribedAt, &s.ExpiresAt, &s.Notes,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Unknown conversations default to the free tier.
			return &model.Subscription{ConversationID: conversationID, Tier: model.TierFree}, nil
		}
		return nil, fmt.Errorf("subscription get: %w", err)
	}
	s.Tier = model.Tier(tier)
	return &s, nil
}

func (r *SubscriptionRepo) SetTier(ctx context.Context, conversationID string, tier model.Tier, expiresAt *time.Time, notes string) error {
	const q = `
INSERT INTO subscriptions (conversation_id, tier, expires_at, notes, subscribed_at)
VALUES ($1,$2,$3,$4,NOW())
ON CONFLICT (conversation_id) DO UPDATE SET
  tier=EXCLUDED.tier, expires_at=EXCLUDED.expires_at, notes=EXCLUDED.notes, subscribed_at=NOW();`
	if _, err := r.pool.Exec(ctx, q, conversationID, string(tier), expiresAt, notes); err != nil {
		return fmt.Errorf("subscription set tier: %w", err)
	}
	return nil
}

// IncrementDailyCount resets the counter when the stored date rolled over,
// then bumps it, all in one statement so concurrent approvals count correctly.
func (r *SubscriptionRepo) IncrementDailyCount(ctx context.Context, conversationID string) (int, error) {
	const q = `
INSERT INTO subscriptions (conversation_id, tier, daily_count, last_reset)
VALUES ($1, 'free', 1, NOW())
ON CONFLICT (conversation_id) DO UPDATE SET
  daily_count = CASE
    WHEN subscriptions.last_reset::date < NOW()::date THEN 1
    ELSE subscriptions.daily_count + 1
  END,
  last_reset = NOW()
RETURNING daily_count;`
	var n int
	if err := r.pool.QueryRow(ctx, q, conversationID).Scan(&n); err != nil {
		return 0, fmt.Errorf("subscription increment: %w", err)
	}
	return n, nil
}
