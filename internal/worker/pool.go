package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	QueueSupplierSync   = "jobs:supplier_sync"
	QueueCompetitorSync = "jobs:competitor_sync"

	JobSupplierSync   = "supplier_sync"
	JobCompetitorSync = "competitor_sync"

	// MaxJobAttempts bounds redelivery of a failing job before it goes to the DLQ.
	MaxJobAttempts = 3

	queuedKeyPrefix = "sync:queued:"
)

// Job is the generic envelope for all async tasks.
type Job struct {
	Type     string          `json:"type"`
	Payload  json.RawMessage `json:"payload"`
	Attempts int             `json:"attempts"`
}

// SyncJobPayload names the supplier or competitor a sync job runs for.
type SyncJobPayload struct {
	TargetID uint `json:"target_id"`
}

// JobHandler processes one job payload. A non-nil error asks for redelivery.
type JobHandler interface {
	Process(ctx context.Context, raw json.RawMessage) error
}

// Dispatcher enqueues async jobs into Redis lists.
// The worker pool dequeues them via BRPOP.
type Dispatcher struct {
	rdb       *redis.Client
	queuedTTL time.Duration
}

// NewDispatcher returns a Dispatcher. queuedTTL bounds how long a target is
// considered already queued, so a lost job cannot block its schedule forever.
func NewDispatcher(rdb *redis.Client, queuedTTL time.Duration) *Dispatcher {
	if queuedTTL <= 0 {
		queuedTTL = 10 * time.Minute
	}
	return &Dispatcher{rdb: rdb, queuedTTL: queuedTTL}
}

// EnqueueSupplierSync pushes a supplier sync job unless one is already queued.
// It reports whether a job was pushed.
func (d *Dispatcher) EnqueueSupplierSync(ctx context.Context, supplierID uint) (bool, error) {
	return d.enqueueOnce(ctx, QueueSupplierSync, JobSupplierSync, supplierID)
}

// EnqueueCompetitorSync pushes a competitor fetch job unless one is already queued.
func (d *Dispatcher) EnqueueCompetitorSync(ctx context.Context, competitorID uint) (bool, error) {
	return d.enqueueOnce(ctx, QueueCompetitorSync, JobCompetitorSync, competitorID)
}

func (d *Dispatcher) enqueueOnce(ctx context.Context, queue, jobType string, id uint) (bool, error) {
	ok, err := d.rdb.SetNX(ctx, queuedKey(jobType, id), 1, d.queuedTTL).Result()
	if err != nil {
		return false, fmt.Errorf("dispatcher: mark queued: %w", err)
	}
	if !ok {
		return false, nil
	}
	if err := d.enqueue(ctx, queue, Job{Type: jobType}, SyncJobPayload{TargetID: id}); err != nil {
		d.rdb.Del(ctx, queuedKey(jobType, id))
		return false, err
	}
	return true, nil
}

func (d *Dispatcher) enqueue(ctx context.Context, queue string, job Job, payload interface{}) error {
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		job.Payload = data
	}
	encoded, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return d.rdb.LPush(ctx, queue, encoded).Err()
}

func queuedKey(jobType string, id uint) string {
	return fmt.Sprintf("%s%s:%d", queuedKeyPrefix, jobType, id)
}

// Pool consumes the sync queues with a fixed number of goroutines.
type Pool struct {
	rdb      *redis.Client
	handlers map[string]JobHandler
	queues   map[string]string // job type → queue
}

func NewPool(rdb *redis.Client, supplier, competitor JobHandler) *Pool {
	return &Pool{
		rdb: rdb,
		handlers: map[string]JobHandler{
			JobSupplierSync:   supplier,
			JobCompetitorSync: competitor,
		},
		queues: map[string]string{
			JobSupplierSync:   QueueSupplierSync,
			JobCompetitorSync: QueueCompetitorSync,
		},
	}
}

// Start launches numWorkers goroutines consuming both queues.
// Each goroutine blocks on BRPOP, so idle workers cost nothing.
func (p *Pool) Start(ctx context.Context, numWorkers int) {
	for i := 0; i < numWorkers; i++ {
		go p.runWorker(ctx, i)
	}
	log.Info().Msgf("worker pool started with %d workers", numWorkers)
}

func (p *Pool) runWorker(ctx context.Context, id int) {
	queues := []string{QueueSupplierSync, QueueCompetitorSync}
	for {
		select {
		case <-ctx.Done():
			log.Info().Msgf("worker %d shutting down", id)
			return
		default:
			// Blocking pop waits up to 5s then loops to check ctx
			result, err := p.rdb.BRPop(ctx, 5*time.Second, queues...).Result()
			if err != nil {
				if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
					log.Warn().Err(err).Int("worker", id).Msg("worker: brpop failed")
					time.Sleep(time.Second)
				}
				continue
			}
			if len(result) < 2 {
				continue
			}
			p.processJob(ctx, result[0], result[1])
		}
	}
}

func (p *Pool) processJob(ctx context.Context, queue, raw string) {
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		log.Error().Str("queue", queue).Err(err).Msg("failed to unmarshal job")
		SendToDLQ(ctx, p.rdb, queue, "unknown", json.RawMessage(raw), "undecodable job: "+err.Error(), 0)
		return
	}
	h, ok := p.handlers[job.Type]
	if !ok || h == nil {
		SendToDLQ(ctx, p.rdb, queue, job.Type, job.Payload, "no handler for job type", job.Attempts)
		return
	}

	// the target may be queued again as soon as it starts running
	var payload SyncJobPayload
	if json.Unmarshal(job.Payload, &payload) == nil && payload.TargetID != 0 {
		p.rdb.Del(ctx, queuedKey(job.Type, payload.TargetID))
	}

	job.Attempts++
	log.Info().Str("type", job.Type).Str("queue", queue).Int("attempt", job.Attempts).Msg("processing job")
	err := h.Process(ctx, job.Payload)
	switch nextStep(err, job.Attempts) {
	case stepDone:
	case stepRetry:
		log.Warn().Err(err).Str("type", job.Type).Int("attempt", job.Attempts).Msg("job failed, requeueing")
		encoded, mErr := json.Marshal(job)
		if mErr == nil {
			mErr = p.rdb.LPush(ctx, p.queues[job.Type], encoded).Err()
		}
		if mErr != nil {
			SendToDLQ(ctx, p.rdb, queue, job.Type, job.Payload, "requeue failed: "+mErr.Error(), job.Attempts)
		}
	case stepDeadLetter:
		SendToDLQ(ctx, p.rdb, queue, job.Type, job.Payload,
			fmt.Sprintf("max attempts (%d) exceeded: %v", MaxJobAttempts, err), job.Attempts)
	}
}

type step int

const (
	stepDone step = iota
	stepRetry
	stepDeadLetter
)

func nextStep(err error, attempts int) step {
	switch {
	case err == nil:
		return stepDone
	case attempts < MaxJobAttempts:
		return stepRetry
	default:
		return stepDeadLetter
	}
}
