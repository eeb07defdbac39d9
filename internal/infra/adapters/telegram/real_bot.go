package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"whatsapp-approval-relay/internal/config"
	"whatsapp-approval-relay/internal/domain"
	"whatsapp-approval-relay/internal/domain/model"
	"whatsapp-approval-relay/internal/domain/ports/adapter"
	"whatsapp-approval-relay/internal/domain/ports/repository"
	red "whatsapp-approval-relay/internal/infra/redis"
	"whatsapp-approval-relay/internal/usecase"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.OperatorSurface = (*RealBotAdapter)(nil)

// RealBotAdapter is the operator's Telegram surface: it renders approval
// cards with action buttons, routes button taps and commands back into the
// approval workflow, and captures the operator's voice or typed follow-ups.
type RealBotAdapter struct {
	bot         *tgbotapi.BotAPI
	cfg         *config.BotConfig
	approvals   *usecase.ApprovalUC
	deny        repository.DenylistRepository
	subs        repository.SubscriptionRepository
	relay       adapter.RelayAdapter
	rateLimiter *red.RateLimiter
	log         *zerolog.Logger

	adminIDsMap   map[int64]struct{}
	updateWorkers int
	cancelPolling context.CancelFunc
	voiceDir      string

	// Follow-up targets for the single operator. Set when a record/custom
	// button is tapped, consumed by the next voice or text message.
	followMu      sync.Mutex
	pendingVoice  string // source message id awaiting a voice note
	pendingCustom string // source message id awaiting typed text
}

func NewRealBotAdapter(
	cfg *config.BotConfig,
	approvals *usecase.ApprovalUC,
	deny repository.DenylistRepository,
	subs repository.SubscriptionRepository,
	relay adapter.RelayAdapter,
	rateLimiter *red.RateLimiter,
	voiceDir string,
	log *zerolog.Logger,
) (*RealBotAdapter, error) {
	if cfg == nil {
		return nil, errors.New("bot config is nil")
	}
	if approvals == nil {
		return nil, errors.New("approval usecase is nil")
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, err
	}

	adminMap := map[int64]struct{}{cfg.OperatorChatID: {}}
	for _, id := range cfg.AdminIDs {
		adminMap[id] = struct{}{}
	}

	l := log.With().Str("component", "telegram_bot").Logger()
	return &RealBotAdapter{
		bot:           bot,
		cfg:           cfg,
		approvals:     approvals,
		deny:          deny,
		subs:          subs,
		relay:         relay,
		rateLimiter:   rateLimiter,
		log:           &l,
		adminIDsMap:   adminMap,
		updateWorkers: cfg.Workers,
		voiceDir:      voiceDir,
	}, nil
}

func (r *RealBotAdapter) StartPolling(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := r.bot.GetUpdatesChan(u)

	ctx, cancel := context.WithCancel(ctx)
	r.cancelPolling = cancel

	var wg sync.WaitGroup
	updateChan := make(chan tgbotapi.Update, 100)

	for i := 0; i < r.updateWorkers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case up := <-updateChan:
					if err := r.handleUpdate(ctx, up); err != nil {
						r.log.Error().Err(err).Int("worker", id).Msg("update handling failed")
					}
				}
			}
		}(i)
	}

	for {
		select {
		case <-ctx.Done():
			close(updateChan)
			wg.Wait()
			return ctx.Err()
		case up := <-updates:
			updateChan <- up
		}
	}
}

func (r *RealBotAdapter) StopPolling() {
	if r.cancelPolling != nil {
		r.cancelPolling()
	}
}

// ---- OperatorSurface ----

// approvalKeyboard builds the action rows shown under every card.
func approvalKeyboard(sourceMessageID string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Approve", "approve_"+sourceMessageID),
			tgbotapi.NewInlineKeyboardButtonData("❌ Reject", "reject_"+sourceMessageID),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🎤 Record Own", "record_"+sourceMessageID),
			tgbotapi.NewInlineKeyboardButtonData("✍️ Custom", "custom_"+sourceMessageID),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⏳ Reply Later", "later_"+sourceMessageID),
		),
	)
}

func (r *RealBotAdapter) PresentCard(ctx context.Context, card adapter.Card) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	keyboard := approvalKeyboard(card.SourceMessageID)
	chatID := r.cfg.OperatorChatID

	if card.MediaPath != "" {
		if _, err := os.Stat(card.MediaPath); err == nil {
			return r.sendMediaCard(chatID, card, keyboard)
		}
		r.log.Warn().Str("path", card.MediaPath).Msg("card media path missing, sending text only")
	}

	msg := tgbotapi.NewMessage(chatID, card.Text)
	msg.ReplyMarkup = keyboard
	_, err := r.bot.Send(msg)
	return err
}

func (r *RealBotAdapter) sendMediaCard(chatID int64, card adapter.Card, keyboard tgbotapi.InlineKeyboardMarkup) error {
	file := tgbotapi.FilePath(card.MediaPath)
	switch card.MediaKind {
	case model.MediaImage:
		msg := tgbotapi.NewPhoto(chatID, file)
		msg.Caption = card.Text
		msg.ReplyMarkup = keyboard
		_, err := r.bot.Send(msg)
		return err
	case model.MediaVideo:
		msg := tgbotapi.NewVideo(chatID, file)
		msg.Caption = card.Text
		msg.ReplyMarkup = keyboard
		_, err := r.bot.Send(msg)
		return err
	case model.MediaVoice:
		msg := tgbotapi.NewVoice(chatID, file)
		msg.Caption = card.Text
		msg.ReplyMarkup = keyboard
		_, err := r.bot.Send(msg)
		return err
	default:
		msg := tgbotapi.NewDocument(chatID, file)
		msg.Caption = card.Text
		msg.ReplyMarkup = keyboard
		_, err := r.bot.Send(msg)
		return err
	}
}

func (r *RealBotAdapter) Notify(ctx context.Context, text string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	msg := tgbotapi.NewMessage(r.cfg.OperatorChatID, text)
	_, err := r.bot.Send(msg)
	return err
}

// ---- update routing ----

func (r *RealBotAdapter) handleUpdate(ctx context.Context, update tgbotapi.Update) error {
	if update.CallbackQuery != nil {
		return r.handleCallback(ctx, update.CallbackQuery)
	}
	if update.Message == nil || update.Message.From == nil {
		return nil
	}
	if !r.isAdmin(update.Message.Chat.ID) {
		return nil
	}

	msg := update.Message
	if msg.Voice != nil || msg.Audio != nil {
		return r.handleOperatorVoice(ctx, msg)
	}
	if len(msg.Photo) > 0 || msg.Video != nil || msg.Document != nil {
		return r.handleOperatorMedia(ctx, msg)
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return nil
	}
	if strings.HasPrefix(text, "/") {
		return r.handleCommand(ctx, msg.Chat.ID, text)
	}
	return r.handleOperatorText(ctx, text)
}

type cbHandler func(ctx context.Context, chatID int64, sourceMessageID string) error

// Prefix-match callbacks
func (r *RealBotAdapter) cbPrefixRoutes() []struct {
	Prefix string
	Fn     cbHandler
} {
	return []struct {
		Prefix string
		Fn     cbHandler
	}{
		{Prefix: "approve_", Fn: func(ctx context.Context, chatID int64, id string) error {
			return r.decide(ctx, chatID, id, "Approved and sent ✅", func() error {
				return r.approvals.Approve(ctx, id)
			})
		}},
		{Prefix: "reject_", Fn: func(ctx context.Context, chatID int64, id string) error {
			return r.decide(ctx, chatID, id, "Rejected ❌", func() error {
				return r.approvals.Reject(ctx, id)
			})
		}},
		{Prefix: "later_", Fn: func(ctx context.Context, chatID int64, id string) error {
			return r.decide(ctx, chatID, id, "⏳ Deferred. Showing next message.", func() error {
				return r.approvals.Defer(ctx, id)
			})
		}},
		{Prefix: "record_", Fn: func(ctx context.Context, chatID int64, id string) error {
			r.followMu.Lock()
			r.pendingVoice = id
			r.pendingCustom = ""
			r.followMu.Unlock()
			return r.Notify(ctx, "🎤 Send me the voice note to forward.")
		}},
		{Prefix: "custom_", Fn: func(ctx context.Context, chatID int64, id string) error {
			r.followMu.Lock()
			r.pendingCustom = id
			r.pendingVoice = ""
			r.followMu.Unlock()
			return r.Notify(ctx, "✍️ Type the reply to send.")
		}},
	}
}

func (r *RealBotAdapter) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) error {
	// Always answer, otherwise the client keeps its spinner.
	if _, err := r.bot.Request(tgbotapi.NewCallback(q.ID, "")); err != nil {
		r.log.Debug().Err(err).Msg("callback ack failed")
	}
	if q.Message == nil || !r.isAdmin(q.Message.Chat.ID) {
		return nil
	}
	for _, route := range r.cbPrefixRoutes() {
		if strings.HasPrefix(q.Data, route.Prefix) {
			return route.Fn(ctx, q.Message.Chat.ID, strings.TrimPrefix(q.Data, route.Prefix))
		}
	}
	r.log.Warn().Str("data", q.Data).Msg("unknown callback")
	return nil
}

// decide runs a workflow action and translates domain errors into the messages
// the operator sees. An expired card triggers the stale-item reset; only the
// first of racing taps performs it.
func (r *RealBotAdapter) decide(ctx context.Context, chatID int64, sourceMessageID, okText string, action func() error) error {
	err := action()
	switch {
	case err == nil:
		return r.Notify(ctx, okText)
	case errors.Is(err, domain.ErrExpired):
		reset, rerr := r.approvals.ResetExpired(ctx, sourceMessageID)
		if rerr != nil {
			return rerr
		}
		if reset {
			return r.Notify(ctx, "⚠️ That card was stale; the item went back into the queue.")
		}
		return r.Notify(ctx, "⚠️ This card expired, the item was already handled.")
	case errors.Is(err, domain.ErrDeniedConversation):
		return r.Notify(ctx, "🚫 This conversation is blocked. Unblock it first or reject the message.")
	case errors.Is(err, domain.ErrDailyLimitReached):
		return r.Notify(ctx, "🚫 Daily reply limit reached for this conversation. Use a custom reply or upgrade the tier.")
	case errors.Is(err, domain.ErrInvalidArgument):
		return r.Notify(ctx, "⚠️ Nothing to send for this card. Use Record Own or Custom.")
	default:
		r.log.Error().Err(err).Str("source_message_id", sourceMessageID).Msg("decision failed")
		return r.Notify(ctx, "❌ Action failed: "+err.Error())
	}
}

// ---- operator follow-ups ----

func (r *RealBotAdapter) takePendingVoice() (string, bool) {
	r.followMu.Lock()
	defer r.followMu.Unlock()
	if r.pendingVoice == "" {
		return "", false
	}
	id := r.pendingVoice
	r.pendingVoice = ""
	return id, true
}

func (r *RealBotAdapter) takePendingCustom() (string, bool) {
	r.followMu.Lock()
	defer r.followMu.Unlock()
	if r.pendingCustom == "" {
		return "", false
	}
	id := r.pendingCustom
	r.pendingCustom = ""
	return id, true
}

func (r *RealBotAdapter) handleOperatorVoice(ctx context.Context, msg *tgbotapi.Message) error {
	target, ok := r.takePendingVoice()
	if !ok {
		return r.Notify(ctx, "No card is waiting for a voice note. Tap 🎤 Record Own first.")
	}

	fileID := ""
	if msg.Voice != nil {
		fileID = msg.Voice.FileID
	} else if msg.Audio != nil {
		fileID = msg.Audio.FileID
	}
	path, err := r.downloadVoice(ctx, fileID)
	if err != nil {
		return r.Notify(ctx, "❌ Could not fetch the voice note: "+err.Error())
	}
	defer os.Remove(path)

	if err := r.approvals.RecordOwn(ctx, target, path); err != nil {
		if errors.Is(err, domain.ErrExpired) {
			return r.Notify(ctx, "⚠️ That card expired before the voice note arrived.")
		}
		return r.Notify(ctx, "❌ Sending voice failed: "+err.Error())
	}
	return r.Notify(ctx, "🎤 Voice reply sent ✅")
}

// handleOperatorMedia forwards an operator-supplied photo, video or document
// to the conversation when a custom follow-up is armed.
func (r *RealBotAdapter) handleOperatorMedia(ctx context.Context, msg *tgbotapi.Message) error {
	target, ok := r.takePendingCustom()
	if !ok {
		return r.Notify(ctx, "No card is waiting for a reply. Tap ✍️ Custom first.")
	}

	fileID := ""
	ext := ".bin"
	switch {
	case len(msg.Photo) > 0:
		fileID = msg.Photo[len(msg.Photo)-1].FileID
		ext = ".jpg"
	case msg.Video != nil:
		fileID = msg.Video.FileID
		ext = ".mp4"
	case msg.Document != nil:
		fileID = msg.Document.FileID
		if e := filepath.Ext(msg.Document.FileName); e != "" {
			ext = e
		}
	}
	path, err := r.downloadFile(ctx, fileID, ext)
	if err != nil {
		return r.Notify(ctx, "❌ Could not fetch the file: "+err.Error())
	}
	defer os.Remove(path)

	if err := r.approvals.CustomMedia(ctx, target, path); err != nil {
		if errors.Is(err, domain.ErrExpired) {
			return r.Notify(ctx, "⚠️ That card expired before the file arrived.")
		}
		return r.Notify(ctx, "❌ Sending file failed: "+err.Error())
	}
	return r.Notify(ctx, "📎 Media reply sent ✅")
}

func (r *RealBotAdapter) handleOperatorText(ctx context.Context, text string) error {
	target, ok := r.takePendingCustom()
	if !ok {
		// Plain text without a pending card is ignored on purpose.
		return nil
	}
	if err := r.approvals.CustomReply(ctx, target, text); err != nil {
		if errors.Is(err, domain.ErrExpired) {
			return r.Notify(ctx, "⚠️ That card expired before your reply arrived.")
		}
		return r.Notify(ctx, "❌ Sending reply failed: "+err.Error())
	}
	return r.Notify(ctx, "✍️ Custom reply sent ✅")
}

func (r *RealBotAdapter) downloadVoice(ctx context.Context, fileID string) (string, error) {
	if fileID == "" {
		return "", errors.New("message carries no audio")
	}
	return r.downloadFile(ctx, fileID, ".ogg")
}

func (r *RealBotAdapter) downloadFile(ctx context.Context, fileID, ext string) (string, error) {
	if fileID == "" {
		return "", errors.New("message carries no file")
	}
	url, err := r.bot.GetFileDirectURL(fileID)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("file download http %d", resp.StatusCode)
	}

	if err := os.MkdirAll(r.voiceDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(r.voiceDir, fmt.Sprintf("reply_%s%s", ulid.Make().String(), ext))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

// ---- commands ----

func (r *RealBotAdapter) handleCommand(ctx context.Context, chatID int64, text string) error {
	fields := strings.Fields(text)
	command := strings.ToLower(fields[0])
	args := fields[1:]

	if r.rateLimiter != nil {
		allowed, err := r.rateLimiter.Allow(ctx, red.OperatorCommandKey(chatID, command), 20, time.Minute)
		if err != nil {
			r.log.Warn().Err(err).Msg("rate limit check failed")
		} else if !allowed {
			return r.Notify(ctx, "Rate limit exceeded. Please try again later.")
		}
	}

	switch command {
	case "/start":
		return r.Notify(ctx, "👋 Relay is running. I will show each incoming message here for approval.\n"+
			"Commands: /queue /next /show /block /unblock /blocklist /tier /wlogin /wlogout")
	case "/queue":
		return r.cmdQueue(ctx)
	case "/next":
		moved, err := r.approvals.DeferActive(ctx)
		if err != nil {
			return r.Notify(ctx, "❌ Could not advance: "+err.Error())
		}
		if !moved {
			return r.Notify(ctx, "✅ Queue is empty.")
		}
		return r.Notify(ctx, "➡️ Moved to next message.")
	case "/show":
		if err := r.approvals.RepresentActive(ctx); err != nil {
			return r.Notify(ctx, "❌ Could not show the current card: "+err.Error())
		}
		return nil
	case "/block":
		return r.cmdBlock(ctx, args)
	case "/unblock":
		return r.cmdUnblock(ctx, args)
	case "/blocklist":
		return r.cmdBlocklist(ctx)
	case "/tier":
		return r.cmdTier(ctx, args)
	case "/wlogin":
		if err := r.relay.Login(ctx); err != nil {
			return r.Notify(ctx, "❌ Bridge login failed: "+err.Error())
		}
		return r.Notify(ctx, "🔗 Bridge login requested. Scan the QR code on the bridge console.")
	case "/wlogout":
		if err := r.relay.Logout(ctx); err != nil {
			return r.Notify(ctx, "❌ Bridge logout failed: "+err.Error())
		}
		return r.Notify(ctx, "🔌 Bridge session closed.")
	default:
		return r.Notify(ctx, "Unknown command. Try /queue, /next, /show, /block, /unblock, /blocklist, /tier, /wlogin or /wlogout.")
	}
}

func (r *RealBotAdapter) cmdQueue(ctx context.Context) error {
	n, err := r.approvals.PendingCount(ctx)
	if err != nil {
		return r.Notify(ctx, "❌ Queue lookup failed: "+err.Error())
	}
	if n == 0 {
		return r.Notify(ctx, "📭 Queue is empty.")
	}
	items, err := r.approvals.PeekPending(ctx, 5)
	if err != nil {
		return r.Notify(ctx, "❌ Queue lookup failed: "+err.Error())
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📬 %d pending. Next up:\n", n)
	for i, it := range items {
		preview := it.Content
		if len(preview) > 40 {
			preview = preview[:40] + "…"
		}
		fmt.Fprintf(&b, "%d. %s: %s\n", i+1, it.DisplayName, preview)
	}
	return r.Notify(ctx, b.String())
}

func (r *RealBotAdapter) cmdBlock(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return r.Notify(ctx, "Usage: /block <conversation_id> [reason]")
	}
	reason := strings.Join(args[1:], " ")
	if err := r.deny.Add(ctx, args[0], reason, ""); err != nil {
		return r.Notify(ctx, "❌ Block failed: "+err.Error())
	}
	return r.Notify(ctx, "🚫 Blocked "+args[0])
}

func (r *RealBotAdapter) cmdUnblock(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return r.Notify(ctx, "Usage: /unblock <conversation_id>")
	}
	removed, err := r.deny.Remove(ctx, args[0])
	if err != nil {
		return r.Notify(ctx, "❌ Unblock failed: "+err.Error())
	}
	if !removed {
		return r.Notify(ctx, "That conversation was not blocked.")
	}
	return r.Notify(ctx, "✅ Unblocked "+args[0])
}

func (r *RealBotAdapter) cmdBlocklist(ctx context.Context) error {
	entries, err := r.deny.List(ctx, 20)
	if err != nil {
		return r.Notify(ctx, "❌ Blocklist lookup failed: "+err.Error())
	}
	if len(entries) == 0 {
		return r.Notify(ctx, "Blocklist is empty.")
	}
	var b strings.Builder
	b.WriteString("🚫 Blocked conversations:\n")
	for _, e := range entries {
		if e.Reason != "" {
			fmt.Fprintf(&b, "• %s (%s)\n", e.ConversationID, e.Reason)
		} else {
			fmt.Fprintf(&b, "• %s\n", e.ConversationID)
		}
	}
	return r.Notify(ctx, b.String())
}

func (r *RealBotAdapter) cmdTier(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return r.Notify(ctx, "Usage: /tier <conversation_id> <free|basic|premium> [days]")
	}
	tier, err := parseTier(args[1])
	if err != nil {
		return r.Notify(ctx, "Unknown tier. Use free, basic or premium.")
	}
	var expiresAt *time.Time
	if len(args) >= 3 {
		days, err := strconv.Atoi(args[2])
		if err != nil || days <= 0 {
			return r.Notify(ctx, "Days must be a positive number.")
		}
		t := time.Now().AddDate(0, 0, days)
		expiresAt = &t
	}
	if err := r.subs.SetTier(ctx, args[0], tier, expiresAt, ""); err != nil {
		return r.Notify(ctx, "❌ Tier update failed: "+err.Error())
	}
	if expiresAt != nil {
		return r.Notify(ctx, fmt.Sprintf("⭐ %s is now %s until %s.", args[0], tier, expiresAt.Format("2006-01-02")))
	}
	return r.Notify(ctx, fmt.Sprintf("⭐ %s is now %s.", args[0], tier))
}

func parseTier(s string) (model.Tier, error) {
	switch strings.ToLower(s) {
	case "free":
		return model.TierFree, nil
	case "basic":
		return model.TierBasic, nil
	case "premium":
		return model.TierPremium, nil
	default:
		return "", fmt.Errorf("unknown tier %q", s)
	}
}

func (r *RealBotAdapter) isAdmin(chatID int64) bool {
	_, ok := r.adminIDsMap[chatID]
	return ok
}
