package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"whatsapp-approval-relay/internal/domain/model"
	"whatsapp-approval-relay/internal/domain/ports/adapter"
	"whatsapp-approval-relay/internal/domain/ports/repository"

	"github.com/rs/zerolog"
)

// Presenter renders the currently active queue item as an operator card.
// Media is resolved just in time, at presentation: a fresh download first,
// then the most recent file in the conversation's store as a fallback.
type Presenter struct {
	relay adapter.RelayAdapter
	msgs  repository.MessageSourceRepository
	out   adapter.OperatorSurface
	log   *zerolog.Logger

	now func() time.Time
}

func NewPresenter(relay adapter.RelayAdapter, msgs repository.MessageSourceRepository, out adapter.OperatorSurface, log *zerolog.Logger) *Presenter {
	return &Presenter{relay: relay, msgs: msgs, out: out, log: log, now: time.Now}
}

// Present shows item to the operator. absolute selects the first-card-after-
// restart wording, where a relative age would mislead.
func (p *Presenter) Present(ctx context.Context, item *model.QueueItem, absolute bool) error {
	card := adapter.Card{
		SourceMessageID: item.SourceMessageID,
		MediaKind:       item.MediaKind,
		Text:            p.renderText(ctx, item, absolute),
	}

	if item.MediaKind != model.MediaNone {
		card.MediaPath = p.resolveMedia(ctx, item)
	}

	return p.out.PresentCard(ctx, card)
}

func (p *Presenter) renderText(ctx context.Context, item *model.QueueItem, absolute bool) string {
	var b strings.Builder
	b.WriteString("🔔 New message needs approval\n\n")
	fmt.Fprintf(&b, "👤 %s\n", item.DisplayName)
	fmt.Fprintf(&b, "📱 %s\n", item.ConversationID)
	fmt.Fprintf(&b, "🕒 %s\n\n", p.stamp(ctx, item, absolute))
	fmt.Fprintf(&b, "💬 %s", item.Content)
	if item.MediaKind != model.MediaNone {
		fmt.Fprintf(&b, "\n\n📎 %s", p.mediaCaption(ctx, item))
	}
	if item.SuggestedReply != "" {
		fmt.Fprintf(&b, "\n\n🤖 %s", item.SuggestedReply)
	}
	return b.String()
}

func (p *Presenter) stamp(ctx context.Context, item *model.QueueItem, absolute bool) string {
	ts, err := p.msgs.MessageTimestamp(ctx, item.SourceMessageID, item.ConversationID)
	if err != nil || ts.IsZero() {
		ts = item.CreatedAt
	}
	if absolute {
		return "received " + ts.Local().Format("2006-01-02 15:04")
	}
	age := p.now().Sub(ts)
	switch {
	case age < time.Minute:
		return "just now"
	case age < time.Hour:
		return fmt.Sprintf("%dm ago", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(age.Hours()))
	default:
		return ts.Local().Format("2006-01-02 15:04")
	}
}

func (p *Presenter) mediaCaption(ctx context.Context, item *model.QueueItem) string {
	kind := string(item.MediaKind)
	size, err := p.msgs.MediaSize(ctx, item.SourceMessageID, item.ConversationID)
	if err != nil || size <= 0 {
		return kind
	}
	return fmt.Sprintf("%s (%.1f KB)", kind, float64(size)/1024)
}

func (p *Presenter) resolveMedia(ctx context.Context, item *model.QueueItem) string {
	mf, err := p.relay.DownloadMedia(ctx, item.SourceMessageID, item.ConversationID)
	if err == nil && mf.Path != "" {
		return mf.Path
	}
	if err != nil {
		p.log.Warn().Err(err).Str("message_id", item.SourceMessageID).
			Msg("media download failed, trying recent-file fallback")
	}
	return p.relay.FindRecentMedia(item.ConversationID)
}
