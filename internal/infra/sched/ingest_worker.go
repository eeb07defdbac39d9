package sched

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"whatsapp-approval-relay/internal/infra/logging"
	"whatsapp-approval-relay/internal/infra/metrics"
	"whatsapp-approval-relay/internal/usecase"
)

// IngestWorker drives the poll loop: every tick it runs one ingest cycle.
// Cycle errors are logged and the loop keeps going; the next tick retries
// from the dedup cursor.
type IngestWorker struct {
	interval time.Duration
	ingest   *usecase.IngestUC
	log      *zerolog.Logger
}

func NewIngestWorker(interval time.Duration, ingest *usecase.IngestUC, logger *zerolog.Logger) *IngestWorker {
	l := logger.With().Str("component", "IngestWorker").Logger()
	return &IngestWorker{
		interval: interval,
		ingest:   ingest,
		log:      &l,
	}
}

func (w *IngestWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting ingest worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping ingest worker")
			return ctx.Err()
		case <-ticker.C:
			tickCtx := logging.WithTraceID(ctx, uuid.NewString())
			if err := w.ingest.Cycle(tickCtx); err != nil {
				metrics.IncIngestCycle("error")
				logging.With(tickCtx, w.log).Error().Err(err).Msg("ingest cycle failed")
				continue
			}
			metrics.IncIngestCycle("ok")
		}
	}
}
