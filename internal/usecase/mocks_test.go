package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"whatsapp-approval-relay/internal/domain"
	"whatsapp-approval-relay/internal/domain/model"
	"whatsapp-approval-relay/internal/domain/ports/adapter"
	"whatsapp-approval-relay/internal/domain/ports/repository"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
)

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// --- queue ---

type memQueueRepo struct {
	mu     sync.Mutex
	items  []*model.QueueItem
	nextID int64
}

var _ repository.QueueRepository = (*memQueueRepo)(nil)

func newMemQueueRepo() *memQueueRepo { return &memQueueRepo{nextID: 1} }

func (r *memQueueRepo) Insert(_ context.Context, _ repository.Tx, item *model.QueueItem) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *item
	cp.ID = r.nextID
	r.nextID++
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	cp.LastTransitionAt = cp.CreatedAt
	r.items = append(r.items, &cp)
	return cp.ID, nil
}

func (r *memQueueRepo) ActiveItem(_ context.Context) (*model.QueueItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, it := range r.items {
		if it.Status == model.QueueStatusActive {
			cp := *it
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memQueueRepo) PromoteNextPending(_ context.Context) (*model.QueueItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var pend []*model.QueueItem
	for _, it := range r.items {
		if it.Status == model.QueueStatusPending {
			pend = append(pend, it)
		}
	}
	if len(pend) == 0 {
		return nil, domain.ErrNotFound
	}
	sort.Slice(pend, func(i, j int) bool {
		if pend[i].Priority != pend[j].Priority {
			return pend[i].Priority < pend[j].Priority
		}
		if !pend[i].CreatedAt.Equal(pend[j].CreatedAt) {
			return pend[i].CreatedAt.Before(pend[j].CreatedAt)
		}
		return pend[i].ID < pend[j].ID
	})
	pend[0].Status = model.QueueStatusActive
	pend[0].LastTransitionAt = time.Now()
	cp := *pend[0]
	return &cp, nil
}

func (r *memQueueRepo) SetStatus(_ context.Context, _ repository.Tx, id int64, status model.QueueStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, it := range r.items {
		if it.ID == id {
			it.Status = status
			it.LastTransitionAt = time.Now()
			return nil
		}
	}
	return domain.ErrNotFound
}

func (r *memQueueRepo) ResetStuckActive(_ context.Context, sourceMessageID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, it := range r.items {
		if it.SourceMessageID == sourceMessageID && it.Status == model.QueueStatusActive {
			it.Status = model.QueueStatusPending
			it.LastTransitionAt = time.Now()
			return true, nil
		}
	}
	return false, nil
}

func (r *memQueueRepo) PendingCount(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, it := range r.items {
		if it.Status == model.QueueStatusPending {
			n++
		}
	}
	return n, nil
}

func (r *memQueueRepo) PeekPending(_ context.Context, limit int) ([]*model.QueueItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var pend []*model.QueueItem
	for _, it := range r.items {
		if it.Status == model.QueueStatusPending {
			cp := *it
			pend = append(pend, &cp)
		}
	}
	sort.Slice(pend, func(i, j int) bool {
		if pend[i].Priority != pend[j].Priority {
			return pend[i].Priority < pend[j].Priority
		}
		return pend[i].ID < pend[j].ID
	})
	if len(pend) > limit {
		pend = pend[:limit]
	}
	return pend, nil
}

func (r *memQueueRepo) FindBySourceMessageID(_ context.Context, sourceMessageID string) (*model.QueueItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var found *model.QueueItem
	for _, it := range r.items {
		if it.SourceMessageID != sourceMessageID {
			continue
		}
		if found == nil || it.LastTransitionAt.After(found.LastTransitionAt) ||
			(it.LastTransitionAt.Equal(found.LastTransitionAt) && it.ID > found.ID) {
			found = it
		}
	}
	if found == nil {
		return nil, domain.ErrNotFound
	}
	cp := *found
	return &cp, nil
}

// --- tx ---

type fakeTxManager struct{}

var _ repository.TransactionManager = (*fakeTxManager)(nil)

func (fakeTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, nil)
}

// --- cache ---

type memCache struct {
	mu sync.Mutex
	m  map[string]repository.ApprovalContext
}

var _ repository.ApprovalContextCache = (*memCache)(nil)

func newMemCache() *memCache { return &memCache{m: make(map[string]repository.ApprovalContext)} }

func (c *memCache) Put(_ context.Context, id string, a repository.ApprovalContext) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[id] = a
	return nil
}

func (c *memCache) Get(_ context.Context, id string) (repository.ApprovalContext, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.m[id]
	if !ok {
		return repository.ApprovalContext{}, domain.ErrNotFound
	}
	return a, nil
}

func (c *memCache) Delete(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, id)
	return nil
}

// --- subscriptions ---

type memSubsRepo struct {
	mu sync.Mutex
	m  map[string]*model.Subscription
}

var _ repository.SubscriptionRepository = (*memSubsRepo)(nil)

func newMemSubsRepo() *memSubsRepo { return &memSubsRepo{m: make(map[string]*model.Subscription)} }

func (r *memSubsRepo) Get(_ context.Context, conversationID string) (*model.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.m[conversationID]; ok {
		cp := *s
		return &cp, nil
	}
	return &model.Subscription{ConversationID: conversationID, Tier: model.TierFree}, nil
}

func (r *memSubsRepo) SetTier(_ context.Context, conversationID string, tier model.Tier, expiresAt *time.Time, notes string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[conversationID] = &model.Subscription{
		ConversationID: conversationID,
		Tier:           tier,
		ExpiresAt:      expiresAt,
		Notes:          notes,
		SubscribedAt:   time.Now(),
	}
	return nil
}

func (r *memSubsRepo) IncrementDailyCount(_ context.Context, conversationID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.m[conversationID]
	if !ok {
		s = &model.Subscription{ConversationID: conversationID, Tier: model.TierFree}
		r.m[conversationID] = s
	}
	now := time.Now()
	if s.CountFor(now) == 0 {
		s.DailyCount = 0
		s.LastReset = now
	}
	s.DailyCount++
	return s.DailyCount, nil
}

func (r *memSubsRepo) set(s *model.Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[s.ConversationID] = s
}

// --- denylist ---

type memDenyRepo struct {
	mu sync.Mutex
	m  map[string]*model.DenyEntry
}

var _ repository.DenylistRepository = (*memDenyRepo)(nil)

func newMemDenyRepo() *memDenyRepo { return &memDenyRepo{m: make(map[string]*model.DenyEntry)} }

func (r *memDenyRepo) IsDenied(_ context.Context, conversationID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.m[conversationID]
	return ok, nil
}

func (r *memDenyRepo) Add(_ context.Context, conversationID, reason, notes string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[conversationID] = &model.DenyEntry{ConversationID: conversationID, Reason: reason, Notes: notes, BlockedAt: time.Now()}
	return nil
}

func (r *memDenyRepo) Remove(_ context.Context, conversationID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.m[conversationID]
	delete(r.m, conversationID)
	return ok, nil
}

func (r *memDenyRepo) List(_ context.Context, limit int) ([]*model.DenyEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.DenyEntry
	for _, e := range r.m {
		cp := *e
		out = append(out, &cp)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// --- message source ---

type fakeMsgSource struct {
	mu         sync.Mutex
	inbound    []*model.InboundMessage
	history    map[string][]model.HistoryEntry
	timestamps map[string]time.Time
	mediaSizes map[string]int64
}

var _ repository.MessageSourceRepository = (*fakeMsgSource)(nil)

func newFakeMsgSource() *fakeMsgSource {
	return &fakeMsgSource{
		history:    make(map[string][]model.HistoryEntry),
		timestamps: make(map[string]time.Time),
		mediaSizes: make(map[string]int64),
	}
}

func (f *fakeMsgSource) ListInboundSince(_ context.Context, since time.Time, limit int) ([]*model.InboundMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.InboundMessage
	for _, m := range f.inbound {
		if m.Timestamp.After(since) {
			cp := *m
			out = append(out, &cp)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeMsgSource) RecentHistory(_ context.Context, conversationID string, limit int) ([]model.HistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := f.history[conversationID]
	if len(h) > limit {
		h = h[len(h)-limit:]
	}
	return append([]model.HistoryEntry(nil), h...), nil
}

func (f *fakeMsgSource) MessageTimestamp(_ context.Context, messageID, _ string) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ts, ok := f.timestamps[messageID]
	if !ok {
		return time.Time{}, domain.ErrNotFound
	}
	return ts, nil
}

func (f *fakeMsgSource) MediaSize(_ context.Context, messageID, _ string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mediaSizes[messageID], nil
}

func (f *fakeMsgSource) push(m *model.InboundMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inbound = append(f.inbound, m)
	f.timestamps[m.ID] = m.Timestamp
}

// --- relay ---

type sentText struct {
	conversationID string
	text           string
}

type fakeRelay struct {
	mu        sync.Mutex
	texts     []sentText
	media     []sentText // text field holds the path
	sendErr   error
	dlFile    adapter.MediaFile
	dlErr     error
	recentRet string
}

var _ adapter.RelayAdapter = (*fakeRelay)(nil)

func (f *fakeRelay) SendText(_ context.Context, conversationID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.texts = append(f.texts, sentText{conversationID, text})
	return nil
}

func (f *fakeRelay) SendMedia(_ context.Context, conversationID, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.media = append(f.media, sentText{conversationID, path})
	return nil
}

func (f *fakeRelay) DownloadMedia(_ context.Context, _, _ string) (adapter.MediaFile, error) {
	return f.dlFile, f.dlErr
}

func (f *fakeRelay) FindRecentMedia(_ string) string { return f.recentRet }

func (f *fakeRelay) Login(_ context.Context) error  { return nil }
func (f *fakeRelay) Logout(_ context.Context) error { return nil }

// --- audit ---

type fakeAudit struct {
	mu       sync.Mutex
	rows     []adapter.AuditEntry
	statuses map[string]string
	appendFn func() (string, error)
}

var _ adapter.AuditLog = (*fakeAudit)(nil)

func newFakeAudit() *fakeAudit { return &fakeAudit{statuses: make(map[string]string)} }

func (f *fakeAudit) AppendRow(_ context.Context, e adapter.AuditEntry) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendFn != nil {
		return f.appendFn()
	}
	f.rows = append(f.rows, e)
	return "row-" + e.ConversationID, nil
}

func (f *fakeAudit) UpdateStatus(_ context.Context, rowRef, status, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[rowRef] = status
	return nil
}

// --- operator surface ---

type fakeSurface struct {
	mu      sync.Mutex
	cards   []adapter.Card
	notices []string
}

var _ adapter.OperatorSurface = (*fakeSurface)(nil)

func (f *fakeSurface) PresentCard(_ context.Context, card adapter.Card) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cards = append(f.cards, card)
	return nil
}

func (f *fakeSurface) Notify(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices = append(f.notices, text)
	return nil
}

func (f *fakeSurface) lastCard() (adapter.Card, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.cards) == 0 {
		return adapter.Card{}, false
	}
	return f.cards[len(f.cards)-1], true
}

// --- ai ---

type fakeAI struct {
	fn func(ctx context.Context, msgs []adapter.Message) (string, error)
}

var _ adapter.ReplyGenerator = (*fakeAI)(nil)

func (f *fakeAI) Chat(ctx context.Context, msgs []adapter.Message) (string, error) {
	if f.fn != nil {
		return f.fn(ctx, msgs)
	}
	return "suggested reply", nil
}

type fakeTranscriber struct {
	text string
	err  error
}

var _ adapter.Transcriber = (*fakeTranscriber)(nil)

func (f *fakeTranscriber) Transcribe(_ context.Context, _, _ string) (string, error) {
	return f.text, f.err
}
