package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"whatsapp-approval-relay/internal/config"
	"whatsapp-approval-relay/internal/domain/ports/adapter"
	aiAdapters "whatsapp-approval-relay/internal/infra/adapters/ai"
	auditAdapters "whatsapp-approval-relay/internal/infra/adapters/audit"
	"whatsapp-approval-relay/internal/infra/adapters/relay"
	tele "whatsapp-approval-relay/internal/infra/adapters/telegram"
	pg "whatsapp-approval-relay/internal/infra/db/postgres"
	"whatsapp-approval-relay/internal/infra/logging"
	"whatsapp-approval-relay/internal/infra/metrics"
	red "whatsapp-approval-relay/internal/infra/redis"
	"whatsapp-approval-relay/internal/infra/sched"
	"whatsapp-approval-relay/internal/infra/web"
	"whatsapp-approval-relay/internal/usecase"
)

// lateSurface lets the approval workflow be constructed before the Telegram
// adapter that implements its operator surface. Bind is called once during
// wiring, before any goroutine presents a card.
type lateSurface struct {
	inner adapter.OperatorSurface
}

func (s *lateSurface) Bind(inner adapter.OperatorSurface) { s.inner = inner }

func (s *lateSurface) PresentCard(ctx context.Context, card adapter.Card) error {
	return s.inner.PresentCard(ctx, card)
}

func (s *lateSurface) Notify(ctx context.Context, text string) error {
	return s.inner.Notify(ctx, text)
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "developer mode (console logs, log cards instead of Telegram)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("developer mode enabled")
	}

	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.Connect(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connect failed")
	}
	defer pool.Close()
	if err := pg.EnsureSchema(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("schema migration failed")
	}

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connect failed")
	}
	defer redisClient.Close()
	approvalCache := red.NewApprovalCache(redisClient, cfg.Redis.TTL)
	rateLimiter := red.NewRateLimiter(redisClient)

	// ---- Repositories ----
	txManager := pg.NewTxManager(pool)
	queueRepo := pg.NewQueueRepo(pool, txManager)
	msgRepo := pg.NewMessageSourceRepo(pool)
	denyRepo := pg.NewDenylistRepo(pool)
	subsRepo := pg.NewSubscriptionRepo(pool)

	// ---- Outbound adapters ----
	bridge := relay.NewBridgeClient(cfg.Bridge.URL, cfg.Bridge.StoreDir, cfg.Bridge.Timeout, logger)

	var auditLog adapter.AuditLog
	if cfg.Audit.SpreadsheetID != "" {
		sheets, err := auditAdapters.NewSheetsLog(ctx, cfg.Audit.CredentialsFile, cfg.Audit.SpreadsheetID, cfg.Audit.SheetName)
		if err != nil {
			logger.Fatal().Err(err).Msg("sheets audit log failed")
		}
		auditLog = sheets
		logger.Info().Str("spreadsheet_id", cfg.Audit.SpreadsheetID).Msg("audit log: google sheets")
	} else {
		auditLog = auditAdapters.NewNoopLog()
		logger.Info().Msg("audit log: disabled")
	}

	// ---- AI (OpenAI -> Gemini -> none) ----
	var generator adapter.ReplyGenerator
	var transcriber adapter.Transcriber = aiAdapters.NewNoopTranscriber()
	switch {
	case cfg.AI.OpenAIKey != "":
		openai, err := aiAdapters.NewOpenAIAdapter(cfg.AI.OpenAIKey, cfg.AI.Model)
		if err != nil {
			logger.Fatal().Err(err).Msg("openai adapter failed")
		}
		generator = openai
		transcriber = openai
		logger.Info().Str("model", cfg.AI.Model).Msg("reply generator: openai")
	case cfg.AI.GeminiKey != "":
		gemini, err := aiAdapters.NewGeminiAdapter(ctx, cfg.AI.GeminiKey, cfg.AI.GeminiURL, cfg.AI.Model, 0)
		if err != nil {
			logger.Fatal().Err(err).Msg("gemini adapter failed")
		}
		generator = gemini
		logger.Info().Str("model", cfg.AI.Model).Msg("reply generator: gemini (no transcription)")
	default:
		generator = aiAdapters.NewNoopGenerator()
		logger.Warn().Msg("no AI provider configured, cards will carry no suggested reply")
	}
	generator = aiAdapters.NewLimitedGenerator(generator, cfg.AI.ConcurrentLimit)

	// ---- Use cases ----
	surface := &lateSurface{}
	presenter := usecase.NewPresenter(bridge, msgRepo, surface, logger)
	approvals := usecase.NewApprovalUC(queueRepo, txManager, approvalCache, subsRepo, denyRepo, bridge, auditLog, presenter, logger)

	dedup := usecase.NewDeduper(cfg.Ingest.DedupSize, time.Now())
	batch := usecase.NewBatchBuffer(cfg.Ingest.BatchWindow, logger)
	ctxBuilder := usecase.NewContextBuilder(cfg.AI.Model, cfg.AI.SystemPrompt, cfg.AI.ContextTokens)
	ingest := usecase.NewIngestUC(msgRepo, denyRepo, subsRepo, dedup, batch, ctxBuilder,
		generator, transcriber, bridge, approvals, logger,
		cfg.Ingest.FetchLimit, cfg.AI.MaxHistory, cfg.AI.WhisperLanguage)

	// ---- Telegram ----
	voiceDir := filepath.Join(os.TempDir(), "relay-voice")
	if cfg.Runtime.Dev {
		surface.Bind(tele.NewNoopBotAdapter())
		logger.Info().Msg("operator surface: log only")
	} else {
		bot, err := tele.NewRealBotAdapter(&cfg.Bot, approvals, denyRepo, subsRepo, bridge, rateLimiter, voiceDir, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("telegram adapter failed")
		}
		surface.Bind(bot)
		go func() {
			if err := bot.StartPolling(ctx); err != nil && ctx.Err() == nil {
				logger.Error().Err(err).Msg("telegram polling stopped")
			}
		}()
	}

	// Re-show whatever was active before the restart, or promote the next item.
	if err := approvals.StartupPresent(ctx); err != nil {
		logger.Error().Err(err).Msg("startup presentation failed")
	}

	// ---- Web ----
	server := web.NewServer(cfg.Web.Port, approvals, pool, redisClient, logger)
	go func() {
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("web server error")
		}
	}()

	// ---- Ingest worker ----
	worker := sched.NewIngestWorker(cfg.Ingest.PollInterval, ingest, logger)
	go func() { _ = worker.Run(ctx) }()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("web server shutdown failed")
	}
}
