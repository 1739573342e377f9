package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// Sync / check status values written to scheduling rows and results.
const (
	SyncSuccess = "success"
	SyncPartial = "partial"
	SyncError   = "error"
	SyncSkipped = "skipped"
)

type ItemError struct {
	ProductID uint   `json:"product_id,omitempty"`
	SKU       string `json:"sku,omitempty"`
	Error     string `json:"error"`
}

// SupplierSyncResult is returned by a sync cycle; errors never abort it.
type SupplierSyncResult struct {
	SupplierID              uint        `json:"supplier_id"`
	SupplierName            string      `json:"supplier_name"`
	Status                  string      `json:"status"`
	FeedShape               string      `json:"feed_shape,omitempty"`
	ProductsChecked         int         `json:"products_checked"`
	ProductsUpdated         int         `json:"products_updated"`
	ProductsRepriced        int         `json:"products_repriced"`
	ProductsPendingApproval int         `json:"products_pending_approval"`
	Errors                  []ItemError `json:"errors"`
	ParseErrors             []ItemError `json:"parse_errors"`
	StartedAt               time.Time   `json:"started_at"`
	FinishedAt              time.Time   `json:"finished_at"`
}

type CostChangePreview struct {
	ProductID   uint            `json:"product_id"`
	SupplierSKU string          `json:"supplier_sku"`
	CurrentCost decimal.Decimal `json:"current_cost"`
	NewCost     decimal.Decimal `json:"new_cost"`
}

// FetchPreviewResponse is the no-write view of a supplier feed.
type FetchPreviewResponse struct {
	SupplierID  uint                       `json:"supplier_id"`
	FeedShape   string                     `json:"feed_shape"`
	ItemCount   int                        `json:"item_count"`
	Prices      map[string]decimal.Decimal `json:"prices"`
	Changes     []CostChangePreview        `json:"changes"`
	ParseErrors []ItemError                `json:"parse_errors"`
	FetchedAt   time.Time                  `json:"fetched_at"`
}

type ScheduleResponse struct {
	SupplierID    uint      `json:"supplier_id"`
	IntervalHours int       `json:"interval_hours"`
	NextSyncAt    time.Time `json:"next_sync_at"`
}

// DueTarget is one supplier or competitor the scheduler should run now.
type DueTarget struct {
	ID         uint       `json:"id"`
	Name       string     `json:"name"`
	NextSyncAt *time.Time `json:"next_sync_at"`
	LastSyncAt *time.Time `json:"last_sync_at"`
	LastStatus *string    `json:"last_status"`
}

type CompetitorFetchResult struct {
	CompetitorID         uint        `json:"competitor_id"`
	CompetitorName       string      `json:"competitor_name"`
	Status               string      `json:"status"`
	ItemsReceived        int         `json:"items_received"`
	ProductsMatched      int         `json:"products_matched"`
	ObservationsRecorded int         `json:"observations_recorded"`
	Unmatched            []string    `json:"unmatched,omitempty"`
	Errors               []ItemError `json:"errors"`
	ParseErrors          []ItemError `json:"parse_errors"`
	FetchedAt            time.Time   `json:"fetched_at"`
}

type CompetitorObservationInput struct {
	ProductID  *uint           `json:"product_id"`
	Key        string          `json:"key"         validate:"required_without=ProductID"`
	Price      decimal.Decimal `json:"price"       validate:"required,gt=0"`
	ObservedAt *time.Time      `json:"observed_at"`
}

type RecordObservationsRequest struct {
	Observations []CompetitorObservationInput `json:"observations" validate:"required,min=1,max=1000,dive"`
}
