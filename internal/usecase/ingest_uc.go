package usecase

import (
	"context"
	"fmt"
	"time"

	"whatsapp-approval-relay/internal/domain"
	"whatsapp-approval-relay/internal/domain/model"
	"whatsapp-approval-relay/internal/domain/ports/adapter"
	"whatsapp-approval-relay/internal/domain/ports/repository"
	"whatsapp-approval-relay/internal/infra/logging"
	"whatsapp-approval-relay/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// IngestUC drives one poll cycle: read new rows from the message store,
// deduplicate, drop denylisted conversations, buffer text fragments, handle
// media and voice, then flush ready batches into the approval queue.
type IngestUC struct {
	msgs        repository.MessageSourceRepository
	deny        repository.DenylistRepository
	subs        repository.SubscriptionRepository
	dedup       *Deduper
	batch       *BatchBuffer
	ctxBuilder  *ContextBuilder
	ai          adapter.ReplyGenerator
	transcriber adapter.Transcriber
	relay       adapter.RelayAdapter
	approvals   *ApprovalUC
	log         *zerolog.Logger

	fetchLimit      int
	maxHistory      int
	whisperLanguage string

	now func() time.Time
}

func NewIngestUC(
	msgs repository.MessageSourceRepository,
	deny repository.DenylistRepository,
	subs repository.SubscriptionRepository,
	dedup *Deduper,
	batch *BatchBuffer,
	ctxBuilder *ContextBuilder,
	ai adapter.ReplyGenerator,
	transcriber adapter.Transcriber,
	relay adapter.RelayAdapter,
	approvals *ApprovalUC,
	log *zerolog.Logger,
	fetchLimit, maxHistory int,
	whisperLanguage string,
) *IngestUC {
	l := log.With().Str("component", "ingest_uc").Logger()
	return &IngestUC{
		msgs:            msgs,
		deny:            deny,
		subs:            subs,
		dedup:           dedup,
		batch:           batch,
		ctxBuilder:      ctxBuilder,
		ai:              ai,
		transcriber:     transcriber,
		relay:           relay,
		approvals:       approvals,
		log:             &l,
		fetchLimit:      fetchLimit,
		maxHistory:      maxHistory,
		whisperLanguage: whisperLanguage,
		now:             time.Now,
	}
}

// Cycle runs one tick of the ingest loop.
func (uc *IngestUC) Cycle(ctx context.Context) error {
	now := uc.now()

	rows, err := uc.msgs.ListInboundSince(ctx, uc.dedup.Since(), uc.fetchLimit)
	if err != nil {
		return fmt.Errorf("list inbound: %w", err)
	}

	enqueued := false
	for _, row := range rows {
		if !uc.dedup.Observe(row.ID, row.Timestamp) {
			continue
		}
		rowCtx := logging.WithConversationID(ctx, row.ConversationID)
		denied, derr := uc.deny.IsDenied(rowCtx, row.ConversationID)
		if derr != nil {
			logging.With(rowCtx, uc.log).Warn().Err(derr).
				Msg("denylist lookup failed, processing anyway")
		}
		if denied {
			continue
		}

		switch row.MediaKind {
		case model.MediaNone:
			uc.batch.Add(row.ConversationID, row.DisplayName, row.ID, row.Content, now)
		case model.MediaVoice:
			uc.ingestVoice(rowCtx, row, now)
			enqueued = true
		default:
			uc.ingestMedia(rowCtx, row)
			enqueued = true
		}
	}

	flushed := uc.batch.FlushReady(ctx, now, uc.windowFor, uc.generate)
	for _, fb := range flushed {
		if _, err := uc.approvals.Enqueue(ctx, fb, model.MediaNone, ""); err != nil {
			uc.log.Error().Err(err).Str("conversation_id", fb.ConversationID).
				Msg("enqueue flushed batch failed")
			continue
		}
		metrics.IncBatchFlush()
		enqueued = true
	}

	if enqueued {
		if err := uc.approvals.AutoAdvance(ctx); err != nil {
			uc.log.Error().Err(err).Msg("auto advance failed")
		}
	}
	return nil
}

// ingestVoice transcribes a voice note when the conversation's tier allows it
// and feeds the transcript into the batch buffer; otherwise the note is
// enqueued directly with a placeholder so the operator can answer manually.
func (uc *IngestUC) ingestVoice(ctx context.Context, row *model.InboundMessage, now time.Time) {
	if uc.allowTranscription(ctx, row.ConversationID) && uc.transcriber != nil {
		mf, err := uc.relay.DownloadMedia(ctx, row.ID, row.ConversationID)
		if err == nil && mf.Path != "" {
			text, terr := uc.transcriber.Transcribe(ctx, mf.Path, uc.whisperLanguage)
			if terr == nil && text != "" {
				metrics.IncTranscription("ok")
				uc.batch.Add(row.ConversationID, row.DisplayName, row.ID, text, now)
				return
			}
			metrics.IncTranscription("failed")
			uc.log.Warn().Err(terr).Str("message_id", row.ID).Msg("transcription failed")
		} else {
			uc.log.Warn().Err(err).Str("message_id", row.ID).Msg("voice download failed")
		}
	}

	uc.enqueueDirect(ctx, row, "[voice message]", model.MediaVoice)
}

// ingestMedia enqueues image/video/document messages directly; they never
// participate in text batching.
func (uc *IngestUC) ingestMedia(ctx context.Context, row *model.InboundMessage) {
	content := row.Content
	if content == "" {
		content = fmt.Sprintf("[%s]", row.MediaKind)
	}
	uc.enqueueDirect(ctx, row, content, row.MediaKind)
}

func (uc *IngestUC) enqueueDirect(ctx context.Context, row *model.InboundMessage, content string, kind model.MediaKind) {
	reply, err := uc.generate(ctx, row.ConversationID, content)
	if err != nil {
		// Media items are not buffered, so even transient failures flush
		// without a suggestion rather than dropping the message.
		uc.log.Warn().Err(err).Str("message_id", row.ID).
			Msg("reply generation failed for media item")
		reply = ""
	}

	fb := model.FlushedBatch{
		ConversationID: row.ConversationID,
		LastFragmentID: row.ID,
		DisplayName:    row.DisplayName,
		CombinedText:   content,
		SuggestedReply: reply,
	}
	if _, err := uc.approvals.Enqueue(ctx, fb, kind, row.ID); err != nil {
		uc.log.Error().Err(err).Str("message_id", row.ID).Msg("enqueue media item failed")
	}
}

func (uc *IngestUC) generate(ctx context.Context, conversationID, combined string) (string, error) {
	history, err := uc.msgs.RecentHistory(ctx, conversationID, uc.maxHistory)
	if err != nil {
		uc.log.Warn().Err(err).Str("conversation_id", conversationID).
			Msg("history fetch failed, generating without context")
		history = nil
	}
	window := uc.ctxBuilder.Build(history, combined)
	reply, err := uc.ai.Chat(ctx, window)
	if err != nil {
		if domain.Transient(err) {
			metrics.IncGeneration("transient")
			return "", err
		}
		metrics.IncGeneration("failed")
		return "", fmt.Errorf("generate reply: %w", err)
	}
	metrics.IncGeneration("ok")
	return reply, nil
}

// windowFor returns the tier batch-window override for a conversation, or a
// negative duration when the default applies.
func (uc *IngestUC) windowFor(ctx context.Context, conversationID string) time.Duration {
	sub, err := uc.subs.Get(ctx, conversationID)
	if err != nil {
		return -1
	}
	tier := sub.Tier
	if sub.Expired(uc.now()) {
		tier = model.TierFree
	}
	return tier.Limits().BatchWindow
}

func (uc *IngestUC) allowTranscription(ctx context.Context, conversationID string) bool {
	sub, err := uc.subs.Get(ctx, conversationID)
	if err != nil {
		return false
	}
	tier := sub.Tier
	if sub.Expired(uc.now()) {
		tier = model.TierFree
	}
	return tier.Limits().Transcription
}
