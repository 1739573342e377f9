package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jlongo78/joe-ritchey-machining/internal/apierror"
	"github.com/jlongo78/joe-ritchey-machining/internal/service"
)

// SuppliersHandler exposes supplier cost sync.
type SuppliersHandler struct {
	svc service.SupplierSyncService
}

func NewSuppliersHandler(svc service.SupplierSyncService) *SuppliersHandler {
	return &SuppliersHandler{svc: svc}
}

// Sync godoc
// @Summary      Run a supplier cost sync now
// @Description  Fetches the supplier feed, records cost changes and reprices affected products. Item failures are reported in the result, not as an error status.
// @Tags         suppliers
// @Security     BearerAuth
// @Param        id  path     int true "Supplier ID"
// @Success      200 {object} dto.SupplierSyncResult
// @Failure      404 {object} apierror.APIError
// @Failure      409 {object} apierror.APIError "sync already running"
// @Failure      502 {object} apierror.APIError "feed unreachable"
// @Router       /v1/pricing/suppliers/{id}/sync [post]
func (h *SuppliersHandler) Sync(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	res, err := h.svc.Sync(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// FetchPreview godoc
// @Summary      Preview a supplier feed
// @Description  Fetches and normalizes the feed and diffs it against stored costs. Writes nothing.
// @Tags         suppliers
// @Security     BearerAuth
// @Param        id  path     int true "Supplier ID"
// @Success      200 {object} dto.FetchPreviewResponse
// @Failure      404 {object} apierror.APIError
// @Failure      502 {object} apierror.APIError
// @Router       /v1/pricing/suppliers/{id}/fetch [post]
func (h *SuppliersHandler) FetchPreview(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	res, err := h.svc.FetchPreview(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Schedule godoc
// @Summary      Set a supplier's sync interval
// @Tags         suppliers
// @Security     BearerAuth
// @Param        id             path     int true "Supplier ID"
// @Param        interval_hours query    int true "Hours between syncs (1-168)"
// @Success      200 {object} dto.ScheduleResponse
// @Failure      404 {object} apierror.APIError
// @Failure      422 {object} apierror.APIError
// @Router       /v1/pricing/suppliers/{id}/schedule [post]
func (h *SuppliersHandler) Schedule(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if c.Query("interval_hours") == "" {
		c.JSON(http.StatusUnprocessableEntity, apierror.New("interval_hours is required"))
		return
	}
	hours, ok := queryInt(c, "interval_hours", 0)
	if !ok {
		return
	}
	res, err := h.svc.Schedule(c.Request.Context(), id, hours)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// DueForSync godoc
// @Summary      Suppliers due for a sync
// @Tags         suppliers
// @Security     BearerAuth
// @Success      200 {array} dto.DueTarget
// @Router       /v1/pricing/suppliers/due-for-sync [get]
func (h *SuppliersHandler) DueForSync(c *gin.Context) {
	res, err := h.svc.DueForSync(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
