package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"whatsapp-approval-relay/internal/domain"
	"whatsapp-approval-relay/internal/domain/ports/repository"
)

// Ensure compile-time conformance
var _ repository.ApprovalContextCache = (*ApprovalCache)(nil)

// ApprovalCache keeps the per-card approval context hot so operator taps skip
// the database. Entries expire on their own; the queue row remains the
// fallback.
type ApprovalCache struct {
	client RedisClient
	ttl    time.Duration
}

func NewApprovalCache(client RedisClient, ttl time.Duration) *ApprovalCache {
	return &ApprovalCache{client: client, ttl: ttl}
}

func key(sourceMessageID string) string {
	return fmt.Sprintf("approval:ctx:%s", sourceMessageID)
}

func (c *ApprovalCache) Put(ctx context.Context, sourceMessageID string, a repository.ApprovalContext) error {
	b, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal approval context: %w", err)
	}
	return c.client.Set(ctx, key(sourceMessageID), string(b), c.ttl)
}

func (c *ApprovalCache) Get(ctx context.Context, sourceMessageID string) (repository.ApprovalContext, error) {
	s, err := c.client.Get(ctx, key(sourceMessageID))
	if err != nil {
		if IsNil(err) {
			return repository.ApprovalContext{}, domain.ErrNotFound
		}
		return repository.ApprovalContext{}, err
	}
	var a repository.ApprovalContext
	if err := json.Unmarshal([]byte(s), &a); err != nil {
		return repository.ApprovalContext{}, fmt.Errorf("unmarshal approval context: %w", err)
	}
	return a, nil
}

func (c *ApprovalCache) Delete(ctx context.Context, sourceMessageID string) error {
	return c.client.Del(ctx, key(sourceMessageID))
}
