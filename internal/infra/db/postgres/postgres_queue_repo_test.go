//go:build integration

package postgres

import (
	"context"
	"errors"
	"sync"
	"testing"

	"whatsapp-approval-relay/internal/domain"
	"whatsapp-approval-relay/internal/domain/model"
)

func newTestQueueRepo() *QueueRepo {
	return NewQueueRepo(testPool, NewTxManager(testPool))
}

func insertItem(t *testing.T, repo *QueueRepo, msgID, conv, content string) int64 {
	t.Helper()
	id, err := repo.Insert(context.Background(), nil, &model.QueueItem{
		SourceMessageID: msgID,
		ConversationID:  conv,
		DisplayName:     "Tester",
		Content:         content,
		Priority:        model.ClassifyPriority(content),
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	return id
}

func TestQueueRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	repo := newTestQueueRepo()

	t.Run("promotes lowest priority first", func(t *testing.T) {
		cleanup(t)
		insertItem(t, repo, "m1", "c1", "Long question about the product lineup")
		insertItem(t, repo, "m2", "c2", "hi")
		insertItem(t, repo, "m3", "c3", "Another substantive question here")

		it, err := repo.PromoteNextPending(ctx)
		if err != nil {
			t.Fatalf("promote: %v", err)
		}
		if it.SourceMessageID != "m1" {
			t.Errorf("promoted %s, want m1", it.SourceMessageID)
		}
		if it.Status != model.QueueStatusActive {
			t.Errorf("status = %s, want active", it.Status)
		}
	})

	t.Run("promotion refuses while another item is active", func(t *testing.T) {
		cleanup(t)
		insertItem(t, repo, "m1", "c1", "first message body")
		insertItem(t, repo, "m2", "c2", "second message body")

		if _, err := repo.PromoteNextPending(ctx); err != nil {
			t.Fatalf("first promote: %v", err)
		}
		if _, err := repo.PromoteNextPending(ctx); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("second promote = %v, want ErrNotFound while one is active", err)
		}
	})

	t.Run("concurrent promotions yield exactly one active", func(t *testing.T) {
		cleanup(t)
		for i := 0; i < 5; i++ {
			insertItem(t, repo, "m"+string(rune('a'+i)), "c", "message body for racing")
		}

		var wg sync.WaitGroup
		wins := make(chan struct{}, 10)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := repo.PromoteNextPending(ctx); err == nil {
					wins <- struct{}{}
				}
			}()
		}
		wg.Wait()
		close(wins)

		won := 0
		for range wins {
			won++
		}
		if won != 1 {
			t.Errorf("promotions succeeded = %d, want exactly 1", won)
		}
		if n, _ := repo.PendingCount(ctx); n != 4 {
			t.Errorf("pending = %d, want 4", n)
		}
	})

	t.Run("reset stuck active reports first caller", func(t *testing.T) {
		cleanup(t)
		insertItem(t, repo, "m1", "c1", "a message that will get stuck")
		if _, err := repo.PromoteNextPending(ctx); err != nil {
			t.Fatalf("promote: %v", err)
		}

		first, err := repo.ResetStuckActive(ctx, "m1")
		if err != nil {
			t.Fatalf("reset: %v", err)
		}
		second, err := repo.ResetStuckActive(ctx, "m1")
		if err != nil {
			t.Fatalf("second reset: %v", err)
		}
		if !first || second {
			t.Errorf("reset results = %v,%v, want true,false", first, second)
		}
	})

	t.Run("find by source message id returns latest", func(t *testing.T) {
		cleanup(t)
		insertItem(t, repo, "m1", "c1", "original attempt")
		id2, err := repo.Insert(ctx, nil, &model.QueueItem{
			SourceMessageID: "m1", ConversationID: "c1", Content: "retry attempt", Priority: model.PriorityStandard,
		})
		if err != nil {
			t.Fatalf("insert retry: %v", err)
		}

		it, err := repo.FindBySourceMessageID(ctx, "m1")
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if it.ID != id2 {
			t.Errorf("found id %d, want latest %d", it.ID, id2)
		}
	})

	t.Run("set status stamps transition and rejects unknown ids", func(t *testing.T) {
		cleanup(t)
		id := insertItem(t, repo, "m1", "c1", "message to complete")
		if err := repo.SetStatus(ctx, nil, id, model.QueueStatusDone); err != nil {
			t.Fatalf("set status: %v", err)
		}
		if err := repo.SetStatus(ctx, nil, 99999, model.QueueStatusDone); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("unknown id = %v, want ErrNotFound", err)
		}
	})
}

func TestSubscriptionRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	repo := NewSubscriptionRepo(testPool)

	t.Run("missing row reads as free tier", func(t *testing.T) {
		cleanup(t)
		sub, err := repo.Get(ctx, "nobody")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if sub.Tier != model.TierFree {
			t.Errorf("tier = %s, want free", sub.Tier)
		}
	})

	t.Run("increment creates and counts", func(t *testing.T) {
		cleanup(t)
		for want := 1; want <= 3; want++ {
			n, err := repo.IncrementDailyCount(ctx, "c1")
			if err != nil {
				t.Fatalf("increment: %v", err)
			}
			if n != want {
				t.Errorf("count = %d, want %d", n, want)
			}
		}
	})
}

func TestDenylistRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	repo := NewDenylistRepo(testPool)

	cleanup(t)
	if err := repo.Add(ctx, "spammer", "spam", "repeated ads"); err != nil {
		t.Fatalf("add: %v", err)
	}
	denied, err := repo.IsDenied(ctx, "spammer")
	if err != nil || !denied {
		t.Errorf("IsDenied = %v,%v, want true,nil", denied, err)
	}
	removed, err := repo.Remove(ctx, "spammer")
	if err != nil || !removed {
		t.Errorf("Remove = %v,%v, want true,nil", removed, err)
	}
	removed, _ = repo.Remove(ctx, "spammer")
	if removed {
		t.Error("second remove must report false")
	}
}
