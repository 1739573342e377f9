package worker

// scheduler.go
// Background goroutine that periodically lists suppliers and competitors
// whose next_sync_at has passed and enqueues one job per target. Targets run
// on independent intervals; the durable next_sync_at on each config row is
// the schedule, so restarts lose nothing.

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/jlongo78/joe-ritchey-machining/internal/dto"
)

const defaultSchedulerTick = time.Minute

type dueLister interface {
	DueForSync(ctx context.Context) ([]dto.DueTarget, error)
}

// Enqueuer is the part of Dispatcher the scheduler needs.
type Enqueuer interface {
	EnqueueSupplierSync(ctx context.Context, supplierID uint) (bool, error)
	EnqueueCompetitorSync(ctx context.Context, competitorID uint) (bool, error)
}

// SchedulerConfig holds all dependencies for the scheduler goroutine.
type SchedulerConfig struct {
	Suppliers   dueLister
	Competitors dueLister
	Queue       Enqueuer
	Interval    time.Duration
}

// StartSyncScheduler launches a background goroutine that ticks every
// cfg.Interval and enqueues due targets. It respects the context for graceful
// shutdown.
func StartSyncScheduler(ctx context.Context, cfg SchedulerConfig) {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultSchedulerTick
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		log.Info().Dur("interval", interval).Msg("sync_scheduler: started")

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("sync_scheduler: shutting down")
				return
			case <-ticker.C:
				if n, err := scheduleDue(ctx, cfg); err != nil {
					log.Error().Err(err).Msg("sync_scheduler: tick failed")
				} else if n > 0 {
					log.Info().Int("enqueued", n).Msg("sync_scheduler: jobs enqueued")
				}
			}
		}
	}()
}

// scheduleDue runs one scheduler tick and returns the number of jobs pushed.
// A failing enqueue for one target does not stop the others.
func scheduleDue(ctx context.Context, cfg SchedulerConfig) (int, error) {
	var suppliers, competitors []dto.DueTarget
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		suppliers, err = cfg.Suppliers.DueForSync(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		competitors, err = cfg.Competitors.DueForSync(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return 0, err
	}

	enqueued := 0
	push := func(kind string, targets []dto.DueTarget, fn func(context.Context, uint) (bool, error)) {
		for _, t := range targets {
			ok, err := fn(ctx, t.ID)
			if err != nil {
				log.Warn().Err(err).Str("kind", kind).Uint("target_id", t.ID).Msg("sync_scheduler: enqueue failed")
				continue
			}
			if ok {
				enqueued++
			}
		}
	}
	push("supplier", suppliers, cfg.Queue.EnqueueSupplierSync)
	push("competitor", competitors, cfg.Queue.EnqueueCompetitorSync)
	return enqueued, nil
}
