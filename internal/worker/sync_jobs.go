package worker

// sync_jobs.go
// Job handlers for scheduled supplier cost syncs and competitor fetches.
// Each job runs one cycle for one target. Outcomes that the cycle already
// recorded on the target's scheduling row (feed failures, lease held by
// another instance) are not retried here: the scheduler picks the target up
// again at its next_sync_at.

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/jlongo78/joe-ritchey-machining/internal/apierror"
	"github.com/jlongo78/joe-ritchey-machining/internal/dto"
)

type supplierSyncer interface {
	Sync(ctx context.Context, supplierID uint) (*dto.SupplierSyncResult, error)
}

type competitorFetcher interface {
	Fetch(ctx context.Context, competitorID uint) (*dto.CompetitorFetchResult, error)
}

// SupplierSyncWorker processes jobs from QueueSupplierSync.
type SupplierSyncWorker struct {
	svc supplierSyncer
}

func NewSupplierSyncWorker(svc supplierSyncer) *SupplierSyncWorker {
	return &SupplierSyncWorker{svc: svc}
}

func (w *SupplierSyncWorker) Process(ctx context.Context, raw json.RawMessage) error {
	id, err := targetID(raw)
	if err != nil {
		log.Error().Err(err).Msg("supplier_sync_worker: invalid payload")
		return nil
	}
	res, err := w.svc.Sync(ctx, id)
	if err != nil {
		return classify("supplier_sync_worker", id, err)
	}
	log.Info().
		Uint("supplier_id", id).
		Str("status", res.Status).
		Int("checked", res.ProductsChecked).
		Int("updated", res.ProductsUpdated).
		Int("repriced", res.ProductsRepriced).
		Int("pending_approval", res.ProductsPendingApproval).
		Int("errors", len(res.Errors)).
		Msg("supplier_sync_worker: cycle finished")
	return nil
}

// CompetitorSyncWorker processes jobs from QueueCompetitorSync.
type CompetitorSyncWorker struct {
	svc competitorFetcher
}

func NewCompetitorSyncWorker(svc competitorFetcher) *CompetitorSyncWorker {
	return &CompetitorSyncWorker{svc: svc}
}

func (w *CompetitorSyncWorker) Process(ctx context.Context, raw json.RawMessage) error {
	id, err := targetID(raw)
	if err != nil {
		log.Error().Err(err).Msg("competitor_sync_worker: invalid payload")
		return nil
	}
	res, err := w.svc.Fetch(ctx, id)
	if err != nil {
		return classify("competitor_sync_worker", id, err)
	}
	log.Info().
		Uint("competitor_id", id).
		Str("status", res.Status).
		Int("matched", res.ProductsMatched).
		Int("recorded", res.ObservationsRecorded).
		Int("unmatched", len(res.Unmatched)).
		Msg("competitor_sync_worker: cycle finished")
	return nil
}

func targetID(raw json.RawMessage) (uint, error) {
	var p SyncJobPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return 0, err
	}
	if p.TargetID == 0 {
		return 0, fmt.Errorf("missing target_id")
	}
	return p.TargetID, nil
}

// classify decides whether a failed cycle is worth redelivering. Only
// internal failures are: everything else is either recorded on the
// scheduling row already or will not succeed on retry.
func classify(worker string, id uint, err error) error {
	switch apierror.KindOf(err) {
	case apierror.KindConflict:
		log.Info().Uint("target_id", id).Msgf("%s: another instance holds the lease, skipping", worker)
		return nil
	case apierror.KindExternalService:
		log.Warn().Err(err).Uint("target_id", id).Msgf("%s: feed fetch failed", worker)
		return nil
	case apierror.KindNotFound, apierror.KindValidation:
		log.Warn().Err(err).Uint("target_id", id).Msgf("%s: target not syncable", worker)
		return nil
	default:
		log.Error().Err(err).Uint("target_id", id).Msgf("%s: cycle failed", worker)
		return err
	}
}
