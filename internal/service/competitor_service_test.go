package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jlongo78/joe-ritchey-machining/internal/apierror"
	"github.com/jlongo78/joe-ritchey-machining/internal/dto"
	"github.com/jlongo78/joe-ritchey-machining/internal/model"
	"github.com/jlongo78/joe-ritchey-machining/internal/pricing"
)

func seedCompetitor(st *memStore, id uint, monitor string) {
	endpoint := "https://scraper.test/prices/northside"
	st.mu.Lock()
	defer st.mu.Unlock()
	st.data.competitors[id] = model.CompetitorConfig{
		ID:                 id,
		Name:               "Northside Supply",
		MonitorType:        monitor,
		APIEndpoint:        &endpoint,
		ScraperEndpoint:    &endpoint,
		FeedFormat:         "csv",
		MatchBy:            "sku",
		SyncFrequencyHours: 12,
		IsActive:           true,
	}
}

func newTestCompetitors(st *memStore, feed *stubFeed) *competitorService {
	return newCompetitorService(st, feed, testSettings(), clock)
}

func TestCompetitorFetch_RecordsMatchedObservations(t *testing.T) {
	st := newMemStore()
	p := seedProduct(st, "BRK-100", "50.00", "64.99")
	seedCompetitor(st, 5, MonitorAPI)
	feed := &stubFeed{body: []byte("SKU,Price\nbrk-100,70.00\nUNKNOWN-1,10.00\n")}

	res, err := newTestCompetitors(st, feed).Fetch(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, dto.SyncSuccess, res.Status)
	assert.Equal(t, 2, res.ItemsReceived)
	assert.Equal(t, 1, res.ProductsMatched)
	assert.Equal(t, 1, res.ObservationsRecorded)
	assert.Equal(t, []string{"unknown-1"}, res.Unmatched)
	assert.Equal(t, "https://scraper.test/prices/northside", feed.last.URL)

	hist := st.historyFor(p.ID)
	require.Len(t, hist, 1)
	assert.Equal(t, string(pricing.SourceCompetitor), hist[0].Source)
	assert.Equal(t, "70.00", hist[0].CompetitorPrice.Decimal.StringFixed(2))
	assert.False(t, hist[0].RetailPrice.Valid)
	require.NotNil(t, hist[0].CompetitorID)
	assert.Equal(t, uint(5), *hist[0].CompetitorID)

	// retail price is never touched by monitoring
	assert.Equal(t, "64.99", st.product(p.ID).RetailPrice.StringFixed(2))

	st.mu.Lock()
	cfg := st.data.competitors[5]
	st.mu.Unlock()
	assert.Equal(t, dto.SyncSuccess, *cfg.LastCheckStatus)
	assert.Equal(t, testNow.Add(12*time.Hour), *cfg.NextSyncAt)
	assert.Nil(t, cfg.LeaseToken)
}

func TestCompetitorFetch_ManualTargetRejected(t *testing.T) {
	st := newMemStore()
	seedCompetitor(st, 5, MonitorManual)
	feed := &stubFeed{}

	_, err := newTestCompetitors(st, feed).Fetch(context.Background(), 5)
	assert.True(t, apierror.Is(err, apierror.KindValidation))
	assert.Equal(t, 0, feed.calls)

	_, err = newTestCompetitors(st, feed).Fetch(context.Background(), 6)
	assert.True(t, apierror.Is(err, apierror.KindNotFound))
}

func TestRecordObservations(t *testing.T) {
	st := newMemStore()
	a := seedProduct(st, "BRK-100", "50.00", "64.99")
	b := seedProduct(st, "BRK-200", "20.00", "29.99")
	seedCompetitor(st, 5, MonitorManual)
	missing := uint(9999)
	earlier := testNow.Add(-3 * time.Hour)
	future := testNow.Add(time.Hour)
	actor := uint(4)

	res, err := newTestCompetitors(st, &stubFeed{}).RecordObservations(context.Background(), 5, dto.RecordObservationsRequest{
		Observations: []dto.CompetitorObservationInput{
			{ProductID: &a.ID, Price: d("61.00")},
			{Key: "brk-200", Price: d("27.50"), ObservedAt: &earlier},
			{ProductID: &missing, Price: d("10.00")},
			{Key: "BRK-100", Price: d("62.00"), ObservedAt: &future},
			{Key: "nope", Price: d("5.00")},
		},
	}, &actor)
	require.NoError(t, err)

	assert.Equal(t, dto.SyncPartial, res.Status)
	assert.Equal(t, 5, res.ItemsReceived)
	assert.Equal(t, 2, res.ObservationsRecorded)
	assert.Len(t, res.Errors, 2)
	assert.Equal(t, []string{"nope"}, res.Unmatched)

	ha := st.historyFor(a.ID)
	require.Len(t, ha, 1)
	assert.Equal(t, testNow, ha[0].RecordedAt)
	assert.Equal(t, &actor, ha[0].ChangedBy)

	hb := st.historyFor(b.ID)
	require.Len(t, hb, 1)
	assert.Equal(t, earlier, hb[0].RecordedAt)
	assert.Equal(t, "27.50", hb[0].CompetitorPrice.Decimal.StringFixed(2))
}

func TestCompetitorDueForSync_SkipsManual(t *testing.T) {
	st := newMemStore()
	seedCompetitor(st, 5, MonitorScraper)
	seedCompetitor(st, 6, MonitorManual)

	due, err := newTestCompetitors(st, &stubFeed{}).DueForSync(context.Background())
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, uint(5), due[0].ID)
}

func TestCompetitorFetch_MissingEndpointAdvancesSchedule(t *testing.T) {
	st := newMemStore()
	seedCompetitor(st, 5, MonitorScraper)
	st.mu.Lock()
	cfg := st.data.competitors[5]
	cfg.ScraperEndpoint = nil
	st.data.competitors[5] = cfg
	st.mu.Unlock()
	feed := &stubFeed{}
	svc := newTestCompetitors(st, feed)

	_, err := svc.Fetch(context.Background(), 5)
	assert.True(t, apierror.Is(err, apierror.KindValidation))
	assert.Equal(t, 0, feed.calls)

	st.mu.Lock()
	cfg = st.data.competitors[5]
	st.mu.Unlock()
	require.NotNil(t, cfg.LastCheckStatus)
	assert.Equal(t, dto.SyncError, *cfg.LastCheckStatus)
	require.NotNil(t, cfg.LastCheckError)
	assert.Contains(t, *cfg.LastCheckError, "no scraper endpoint")
	assert.Equal(t, testNow.Add(12*time.Hour), *cfg.NextSyncAt)
	assert.Nil(t, cfg.LeaseToken)

	due, err := svc.DueForSync(context.Background())
	require.NoError(t, err)
	assert.Empty(t, due)
}
