package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"whatsapp-approval-relay/internal/domain"
	"whatsapp-approval-relay/internal/domain/ports/repository"

	goredis "github.com/go-redis/redis/v8"
)

type fakeClient struct {
	m      map[string]string
	counts map[string]int64
}

var _ RedisClient = (*fakeClient)(nil)

func newFakeClient() *fakeClient {
	return &fakeClient{m: make(map[string]string), counts: make(map[string]int64)}
}

func (f *fakeClient) Ping(context.Context) error { return nil }

func (f *fakeClient) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	f.m[key] = value.(string)
	return nil
}

func (f *fakeClient) Get(_ context.Context, key string) (string, error) {
	v, ok := f.m[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (f *fakeClient) Incr(_ context.Context, key string) (int64, error) {
	f.counts[key]++
	return f.counts[key], nil
}

func (f *fakeClient) Expire(context.Context, string, time.Duration) error { return nil }

func (f *fakeClient) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.m, k)
	}
	return nil
}

func (f *fakeClient) Close() error { return nil }

func TestApprovalCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	cache := NewApprovalCache(newFakeClient(), time.Hour)

	in := repository.ApprovalContext{
		ConversationID: "conv-1",
		DisplayName:    "Alice",
		SuggestedReply: "See you at 5",
		AuditRef:       "42",
	}
	if err := cache.Put(ctx, "m1", in); err != nil {
		t.Fatalf("put: %v", err)
	}
	out, err := cache.Get(ctx, "m1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if out != in {
		t.Errorf("got %+v, want %+v", out, in)
	}

	if err := cache.Delete(ctx, "m1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := cache.Get(ctx, "m1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("get after delete = %v, want ErrNotFound", err)
	}
}

func TestRateLimiterWindow(t *testing.T) {
	ctx := context.Background()
	rl := NewRateLimiter(newFakeClient())

	key := OperatorCommandKey(7, "queue")
	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, key, 3, time.Minute)
		if err != nil || !ok {
			t.Fatalf("call %d: ok=%v err=%v", i, ok, err)
		}
	}
	ok, err := rl.Allow(ctx, key, 3, time.Minute)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if ok {
		t.Error("fourth call within the window must be rejected")
	}
}
