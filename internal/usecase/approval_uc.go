package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"whatsapp-approval-relay/internal/domain"
	"whatsapp-approval-relay/internal/domain/model"
	"whatsapp-approval-relay/internal/domain/ports/adapter"
	"whatsapp-approval-relay/internal/domain/ports/repository"
	"whatsapp-approval-relay/internal/infra/logging"
	"whatsapp-approval-relay/internal/infra/metrics"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
)

// Audit status strings, mirrored in the external sheet.
const (
	auditStatusApproved = "Sent (AI Reply)"
	auditStatusVoice    = "Sent (Manual Voice)"
	auditStatusCustom   = "Sent (Custom)"
	auditStatusRejected = "Rejected"
)

// ApprovalUC owns the approval queue workflow: enqueueing new items, keeping
// exactly one item active, and executing operator decisions. All decision
// paths and promotion run under one mutex so a decision and an auto-advance
// can never interleave; the database row remains the source of truth across
// restarts.
type ApprovalUC struct {
	mu sync.Mutex

	queue     repository.QueueRepository
	txManager repository.TransactionManager
	cache     repository.ApprovalContextCache
	subs      repository.SubscriptionRepository
	deny      repository.DenylistRepository
	relay     adapter.RelayAdapter
	audit     adapter.AuditLog
	presenter *Presenter
	log       *zerolog.Logger

	// presentedOnce flips after the first card so later cards use relative ages.
	presentedOnce bool
}

func NewApprovalUC(
	queue repository.QueueRepository,
	txManager repository.TransactionManager,
	cache repository.ApprovalContextCache,
	subs repository.SubscriptionRepository,
	deny repository.DenylistRepository,
	relay adapter.RelayAdapter,
	audit adapter.AuditLog,
	presenter *Presenter,
	log *zerolog.Logger,
) *ApprovalUC {
	l := log.With().Str("component", "approval_uc").Logger()
	return &ApprovalUC{
		queue:     queue,
		txManager: txManager,
		cache:     cache,
		subs:      subs,
		deny:      deny,
		relay:     relay,
		audit:     audit,
		presenter: presenter,
		log:       &l,
	}
}

// Enqueue records a flushed batch as a pending queue item and returns its id.
// The audit row is appended first; audit failure is tolerated and leaves the
// item without a row reference.
func (uc *ApprovalUC) Enqueue(ctx context.Context, batch model.FlushedBatch, mediaKind model.MediaKind, mediaRef string) (int64, error) {
	rowRef, err := uc.audit.AppendRow(ctx, adapter.AuditEntry{
		Timestamp:      time.Now(),
		ConversationID: batch.ConversationID,
		DisplayName:    batch.DisplayName,
		Incoming:       batch.CombinedText,
		SuggestedReply: batch.SuggestedReply,
	})
	if err != nil {
		uc.log.Warn().Err(err).Str("conversation_id", batch.ConversationID).
			Msg("audit append failed, continuing without row reference")
		rowRef = ""
	}

	item := &model.QueueItem{
		SourceMessageID: batch.LastFragmentID,
		ConversationID:  batch.ConversationID,
		DisplayName:     batch.DisplayName,
		Content:         batch.CombinedText,
		MediaKind:       mediaKind,
		MediaRef:        mediaRef,
		SuggestedReply:  batch.SuggestedReply,
		AuditRef:        rowRef,
		Status:          model.QueueStatusPending,
		Priority:        model.ClassifyPriority(batch.CombinedText),
	}

	var id int64
	err = uc.txManager.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		var ierr error
		id, ierr = uc.queue.Insert(ctx, tx, item)
		return ierr
	})
	if err != nil {
		return 0, fmt.Errorf("enqueue item: %w", err)
	}

	if cerr := uc.cache.Put(ctx, batch.LastFragmentID, repository.ApprovalContext{
		ConversationID: batch.ConversationID,
		DisplayName:    batch.DisplayName,
		SuggestedReply: batch.SuggestedReply,
		AuditRef:       rowRef,
	}); cerr != nil {
		uc.log.Warn().Err(cerr).Msg("approval context cache write failed")
	}

	uc.log.Info().Int64("item_id", id).Str("conversation_id", batch.ConversationID).
		Int("priority", item.Priority).Msg("item enqueued")
	metrics.IncEnqueued(string(mediaKind))
	if n, err := uc.queue.PendingCount(ctx); err == nil {
		metrics.SetPendingDepth(n)
	}
	return id, nil
}

// AutoAdvance promotes the next pending item when nothing is active and
// presents it to the operator. It is a no-op while an item is already active.
func (uc *ApprovalUC) AutoAdvance(ctx context.Context) error {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	return uc.advanceLocked(ctx)
}

func (uc *ApprovalUC) advanceLocked(ctx context.Context) error {
	if _, err := uc.queue.ActiveItem(ctx); err == nil {
		return nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	item, err := uc.queue.PromoteNextPending(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("promote next pending: %w", err)
	}
	return uc.presentLocked(ctx, item)
}

func (uc *ApprovalUC) presentLocked(ctx context.Context, item *model.QueueItem) error {
	ctx = logging.WithItemID(logging.WithConversationID(ctx, item.ConversationID), item.ID)
	absolute := !uc.presentedOnce
	uc.presentedOnce = true
	if err := uc.presenter.Present(ctx, item, absolute); err != nil {
		// The item stays active; the operator can recover it with /show.
		logging.With(ctx, uc.log).Error().Err(err).Msg("card presentation failed")
		return err
	}
	return nil
}

// StartupPresent restores the operator view after a restart: the persisted
// active item if one exists, otherwise the next pending one.
func (uc *ApprovalUC) StartupPresent(ctx context.Context) error {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	item, err := uc.queue.ActiveItem(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return uc.advanceLocked(ctx)
	}
	if err != nil {
		return err
	}
	return uc.presentLocked(ctx, item)
}

// RepresentActive re-renders the current active card on demand (/next).
func (uc *ApprovalUC) RepresentActive(ctx context.Context) error {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	item, err := uc.queue.ActiveItem(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return uc.advanceLocked(ctx)
	}
	if err != nil {
		return err
	}
	return uc.presentLocked(ctx, item)
}

// resolveLocked maps an operator action back to the active item. Actions
// referencing anything but the current active item are expired: a stale card
// whose item has already been decided.
func (uc *ApprovalUC) resolveLocked(ctx context.Context, sourceMessageID string) (*model.QueueItem, repository.ApprovalContext, error) {
	item, err := uc.queue.ActiveItem(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, repository.ApprovalContext{}, domain.ErrExpired
	}
	if err != nil {
		return nil, repository.ApprovalContext{}, err
	}
	if item.SourceMessageID != sourceMessageID {
		return nil, repository.ApprovalContext{}, domain.ErrExpired
	}

	actx, cerr := uc.cache.Get(ctx, sourceMessageID)
	if cerr != nil {
		// Cache miss or outage; the queue row carries everything needed.
		actx = repository.ApprovalContext{
			ConversationID: item.ConversationID,
			DisplayName:    item.DisplayName,
			SuggestedReply: item.SuggestedReply,
			AuditRef:       item.AuditRef,
		}
	}
	return item, actx, nil
}

func (uc *ApprovalUC) finishLocked(ctx context.Context, item *model.QueueItem, actx repository.ApprovalContext, status, finalText string) error {
	if !model.CanTransition(item.Status, model.QueueStatusDone) {
		return fmt.Errorf("%w: item %d is %s, cannot complete", domain.ErrInvalidArgument, item.ID, item.Status)
	}
	err := uc.txManager.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		return uc.queue.SetStatus(ctx, tx, item.ID, model.QueueStatusDone)
	})
	if err != nil {
		return fmt.Errorf("mark item done: %w", err)
	}

	if actx.AuditRef != "" {
		if aerr := uc.audit.UpdateStatus(ctx, actx.AuditRef, status, finalText); aerr != nil {
			uc.log.Warn().Err(aerr).Str("row_ref", actx.AuditRef).Msg("audit status update failed")
		}
	}
	if cerr := uc.cache.Delete(ctx, item.SourceMessageID); cerr != nil {
		uc.log.Debug().Err(cerr).Msg("approval context cache delete failed")
	}
	return uc.advanceLocked(ctx)
}

// Approve sends the suggested reply to the conversation and completes the
// item. Tier daily limits are enforced here, at the moment of sending.
func (uc *ApprovalUC) Approve(ctx context.Context, sourceMessageID string) error {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	item, actx, err := uc.resolveLocked(ctx, sourceMessageID)
	if err != nil {
		return err
	}
	if actx.SuggestedReply == "" {
		return fmt.Errorf("%w: no suggested reply to approve", domain.ErrInvalidArgument)
	}

	// The conversation may have been blocked while the item sat in the queue.
	denied, derr := uc.deny.IsDenied(ctx, item.ConversationID)
	if derr != nil {
		uc.log.Warn().Err(derr).Str("conversation_id", item.ConversationID).
			Msg("denylist lookup failed, allowing send")
	} else if denied {
		return fmt.Errorf("%w: %s", domain.ErrDeniedConversation, item.ConversationID)
	}

	if err := uc.checkDailyLimit(ctx, item.ConversationID); err != nil {
		return err
	}

	if err := uc.relay.SendText(ctx, item.ConversationID, actx.SuggestedReply); err != nil {
		return fmt.Errorf("send approved reply: %w", err)
	}
	if _, err := uc.subs.IncrementDailyCount(ctx, item.ConversationID); err != nil {
		uc.log.Warn().Err(err).Msg("daily counter increment failed")
	}

	uc.log.Info().Int64("item_id", item.ID).Msg("reply approved and sent")
	metrics.IncDecision("approve")
	return uc.finishLocked(ctx, item, actx, auditStatusApproved, actx.SuggestedReply)
}

// Reject discards the item without sending anything.
func (uc *ApprovalUC) Reject(ctx context.Context, sourceMessageID string) error {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	item, actx, err := uc.resolveLocked(ctx, sourceMessageID)
	if err != nil {
		return err
	}
	uc.log.Info().Int64("item_id", item.ID).Msg("item rejected")
	metrics.IncDecision("reject")
	return uc.finishLocked(ctx, item, actx, auditStatusRejected, "")
}

// Defer returns the active item to pending and surfaces the next one in
// promotion order. The deferred item competes again under its original
// priority and creation time.
func (uc *ApprovalUC) Defer(ctx context.Context, sourceMessageID string) error {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	item, _, err := uc.resolveLocked(ctx, sourceMessageID)
	if err != nil {
		return err
	}
	if !model.CanTransition(item.Status, model.QueueStatusPending) {
		return fmt.Errorf("%w: item %d is %s, cannot defer", domain.ErrInvalidArgument, item.ID, item.Status)
	}
	err = uc.txManager.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		return uc.queue.SetStatus(ctx, tx, item.ID, model.QueueStatusPending)
	})
	if err != nil {
		return fmt.Errorf("defer item: %w", err)
	}
	uc.log.Info().Int64("item_id", item.ID).Msg("item deferred")
	metrics.IncDecision("defer")
	return uc.advanceLocked(ctx)
}

// DeferActive returns whatever is active to pending and promotes the next item
// in order (/next). Reports whether an item is active afterwards; with a single
// pending item that may be the one just deferred.
func (uc *ApprovalUC) DeferActive(ctx context.Context) (bool, error) {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	item, err := uc.queue.ActiveItem(ctx)
	if err == nil {
		if !model.CanTransition(item.Status, model.QueueStatusPending) {
			return false, fmt.Errorf("%w: item %d is %s, cannot defer", domain.ErrInvalidArgument, item.ID, item.Status)
		}
		err = uc.txManager.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
			return uc.queue.SetStatus(ctx, tx, item.ID, model.QueueStatusPending)
		})
		if err != nil {
			return false, fmt.Errorf("defer active item: %w", err)
		}
		metrics.IncDecision("defer")
	} else if !errors.Is(err, domain.ErrNotFound) {
		return false, err
	}

	if err := uc.advanceLocked(ctx); err != nil {
		return false, err
	}
	_, err = uc.queue.ActiveItem(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// RecordOwn sends the operator's recorded voice note instead of the suggestion.
func (uc *ApprovalUC) RecordOwn(ctx context.Context, sourceMessageID, voicePath string) error {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	item, actx, err := uc.resolveLocked(ctx, sourceMessageID)
	if err != nil {
		return err
	}
	if err := uc.relay.SendMedia(ctx, item.ConversationID, voicePath); err != nil {
		return fmt.Errorf("send voice reply: %w", err)
	}
	uc.log.Info().Int64("item_id", item.ID).Msg("operator voice reply sent")
	metrics.IncDecision("voice")
	return uc.finishLocked(ctx, item, actx, auditStatusVoice, "")
}

// CustomReply sends operator-typed text instead of the suggestion. The item is
// completed even when delivery fails; a retryable relay fault must not block
// the queue, so the failure is logged for manual follow-up instead.
func (uc *ApprovalUC) CustomReply(ctx context.Context, sourceMessageID, text string) error {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	item, actx, err := uc.resolveLocked(ctx, sourceMessageID)
	if err != nil {
		return err
	}
	if text == "" {
		return fmt.Errorf("%w: empty custom reply", domain.ErrInvalidArgument)
	}
	if err := uc.relay.SendText(ctx, item.ConversationID, text); err != nil {
		uc.log.Error().Err(err).Int64("item_id", item.ID).Str("text", text).
			Msg("custom reply delivery failed, completing item anyway")
	} else {
		uc.log.Info().Int64("item_id", item.ID).Msg("custom reply sent")
	}
	metrics.IncDecision("custom")
	return uc.finishLocked(ctx, item, actx, auditStatusCustom, text)
}

// CustomMedia sends an operator-supplied file (photo, video, document) instead
// of the suggestion. Same completion policy as CustomReply: done regardless of
// delivery outcome.
func (uc *ApprovalUC) CustomMedia(ctx context.Context, sourceMessageID, mediaPath string) error {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	item, actx, err := uc.resolveLocked(ctx, sourceMessageID)
	if err != nil {
		return err
	}
	if mediaPath == "" {
		return fmt.Errorf("%w: empty media path", domain.ErrInvalidArgument)
	}
	if err := uc.relay.SendMedia(ctx, item.ConversationID, mediaPath); err != nil {
		uc.log.Error().Err(err).Int64("item_id", item.ID).Str("path", mediaPath).
			Msg("custom media delivery failed, completing item anyway")
	} else {
		uc.log.Info().Int64("item_id", item.ID).Msg("custom media reply sent")
	}
	metrics.IncDecision("custom")
	return uc.finishLocked(ctx, item, actx, auditStatusCustom, "")
}

// ResetExpired handles an action on a stale card by returning the stuck
// active item to pending. Exactly one of several racing callers observes
// reset=true; the rest no-op.
func (uc *ApprovalUC) ResetExpired(ctx context.Context, sourceMessageID string) (bool, error) {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	reset, err := uc.queue.ResetStuckActive(ctx, sourceMessageID)
	if err != nil {
		return false, err
	}
	if !reset {
		return false, nil
	}
	uc.log.Warn().Str("source_message_id", sourceMessageID).Msg("stuck active item reset to pending")
	metrics.IncDecision("expired")
	return true, uc.advanceLocked(ctx)
}

// PendingCount exposes queue depth for the operator's /queue command.
func (uc *ApprovalUC) PendingCount(ctx context.Context) (int, error) {
	return uc.queue.PendingCount(ctx)
}

// PeekPending lists upcoming items in promotion order.
func (uc *ApprovalUC) PeekPending(ctx context.Context, limit int) ([]*model.QueueItem, error) {
	return uc.queue.PeekPending(ctx, limit)
}

func (uc *ApprovalUC) checkDailyLimit(ctx context.Context, conversationID string) error {
	sub, err := uc.subs.Get(ctx, conversationID)
	if err != nil {
		uc.log.Warn().Err(err).Msg("subscription lookup failed, allowing send")
		return nil
	}
	now := time.Now()
	tier := sub.Tier
	if sub.Expired(now) {
		tier = model.TierFree
	}
	limits := tier.Limits()
	if limits.DailyReplies >= 0 && sub.CountFor(now) >= limits.DailyReplies {
		return domain.ErrDailyLimitReached
	}
	return nil
}
