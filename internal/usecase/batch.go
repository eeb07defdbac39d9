package usecase

import (
	"context"
	"strings"
	"sync"
	"time"

	"whatsapp-approval-relay/internal/domain"
	"whatsapp-approval-relay/internal/domain/model"

	"github.com/rs/zerolog"
)

type fragment struct {
	id      string
	content string
}

type pendingBatch struct {
	fragments   []fragment
	displayName string
	lastArrival time.Time
}

// BatchBuffer coalesces rapid-fire text fragments per conversation. A batch
// flushes once no new fragment has arrived for the conversation's idle window.
// The buffer holds no timers; readiness is evaluated on each poll tick.
type BatchBuffer struct {
	mu            sync.Mutex
	byConv        map[string]*pendingBatch
	defaultWindow time.Duration
	log           *zerolog.Logger
}

func NewBatchBuffer(defaultWindow time.Duration, log *zerolog.Logger) *BatchBuffer {
	return &BatchBuffer{
		byConv:        make(map[string]*pendingBatch),
		defaultWindow: defaultWindow,
		log:           log,
	}
}

// Add appends a fragment to the conversation's batch and restarts its idle
// window.
func (b *BatchBuffer) Add(conversationID, displayName, messageID, content string, now time.Time) {
	if content == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.byConv[conversationID]
	if !ok {
		p = &pendingBatch{}
		b.byConv[conversationID] = p
	}
	p.fragments = append(p.fragments, fragment{id: messageID, content: content})
	if displayName != "" {
		p.displayName = displayName
	}
	p.lastArrival = now
}

// Has reports whether a conversation currently has buffered fragments.
func (b *BatchBuffer) Has(conversationID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.byConv[conversationID]
	return ok
}

// Len returns the number of conversations with buffered fragments.
func (b *BatchBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.byConv)
}

// FlushReady drains every batch whose idle window has elapsed, runs generate
// on the combined text and returns the results. windowFor supplies the
// per-conversation idle window (tier overrides); generate produces the
// suggested reply. A transient generation failure leaves the batch buffered
// for the next tick; a permanent one discards it so a poison input cannot
// retry forever.
func (b *BatchBuffer) FlushReady(
	ctx context.Context,
	now time.Time,
	windowFor func(ctx context.Context, conversationID string) time.Duration,
	generate func(ctx context.Context, conversationID, combined string) (string, error),
) []model.FlushedBatch {
	ready := b.takeReady(ctx, now, windowFor)

	out := make([]model.FlushedBatch, 0, len(ready))
	for convID, p := range ready {
		parts := make([]string, 0, len(p.fragments))
		for _, f := range p.fragments {
			parts = append(parts, f.content)
		}
		combined := strings.Join(parts, " \n")

		reply, err := generate(ctx, convID, combined)
		if err != nil {
			if domain.Transient(err) {
				b.log.Warn().Err(err).Str("conversation_id", convID).
					Msg("reply generation deferred, batch retained")
				b.restore(convID, p)
				continue
			}
			b.log.Error().Err(err).Str("conversation_id", convID).
				Str("combined", combined).Msg("reply generation failed, batch discarded")
			continue
		}

		out = append(out, model.FlushedBatch{
			ConversationID: convID,
			LastFragmentID: p.fragments[len(p.fragments)-1].id,
			DisplayName:    p.displayName,
			CombinedText:   combined,
			SuggestedReply: reply,
		})
	}
	return out
}

func (b *BatchBuffer) takeReady(ctx context.Context, now time.Time, windowFor func(context.Context, string) time.Duration) map[string]*pendingBatch {
	b.mu.Lock()
	defer b.mu.Unlock()

	ready := make(map[string]*pendingBatch)
	for convID, p := range b.byConv {
		window := b.defaultWindow
		if windowFor != nil {
			if w := windowFor(ctx, convID); w >= 0 {
				window = w
			}
		}
		if now.Sub(p.lastArrival) >= window {
			ready[convID] = p
			delete(b.byConv, convID)
		}
	}
	return ready
}

// restore puts a batch back after a transient failure, untouched, so it is
// ready again on the very next call. Fragments that arrived meanwhile are
// appended behind it and their arrival restarts the window as usual.
func (b *BatchBuffer) restore(conversationID string, p *pendingBatch) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cur, ok := b.byConv[conversationID]
	if !ok {
		b.byConv[conversationID] = p
		return
	}
	cur.fragments = append(p.fragments, cur.fragments...)
	if cur.displayName == "" {
		cur.displayName = p.displayName
	}
}
