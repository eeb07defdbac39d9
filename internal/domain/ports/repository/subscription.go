package repository

import (
	"context"
	"time"

	"whatsapp-approval-relay/internal/domain/model"
)

// SubscriptionRepository stores per-conversation tiers and daily counters.
// A missing row reads as a default free-tier subscription.
type SubscriptionRepository interface {
	Get(ctx context.Context, conversationID string) (*model.Subscription, error)
	SetTier(ctx context.Context, conversationID string, tier model.Tier, expiresAt *time.Time, notes string) error
	// IncrementDailyCount bumps today's counter (resetting it first when the
	// date rolled over) and returns the new value.
	IncrementDailyCount(ctx context.Context, conversationID string) (int, error)
}
