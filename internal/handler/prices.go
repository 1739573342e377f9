package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jlongo78/joe-ritchey-machining/internal/dto"
	"github.com/jlongo78/joe-ritchey-machining/internal/middleware"
	"github.com/jlongo78/joe-ritchey-machining/internal/service"
)

// PricesHandler serves price history, manual edits and the adjustment log.
type PricesHandler struct {
	svc service.PricingService
}

func NewPricesHandler(svc service.PricingService) *PricesHandler {
	return &PricesHandler{svc: svc}
}

// History godoc
// @Summary      Price history of a product
// @Description  Append-only cost, retail and competitor observations, newest first.
// @Tags         history
// @Security     BearerAuth
// @Param        product_id path     int true  "Product ID"
// @Param        days       query    int false "Look-back window in days (1-365, default 30)"
// @Success      200 {object} dto.PriceHistoryResponse
// @Failure      404 {object} apierror.APIError
// @Failure      422 {object} apierror.APIError
// @Router       /v1/pricing/history/{product_id} [get]
func (h *PricesHandler) History(c *gin.Context) {
	id, ok := pathID(c, "product_id")
	if !ok {
		return
	}
	days, ok := queryInt(c, "days", 30)
	if !ok {
		return
	}
	res, err := h.svc.History(c.Request.Context(), id, days)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// UpdatePrice godoc
// @Summary      Manually set a product's cost and/or retail price
// @Description  A new retail price is written as is. A new cost alone runs the pricing rules.
// @Tags         products
// @Security     BearerAuth
// @Accept       json
// @Param        id   path     int                    true "Product ID"
// @Param        body body     dto.ManualPriceRequest true "Price change"
// @Success      200  {object} dto.ManualPriceResponse
// @Failure      404  {object} apierror.APIError
// @Failure      409  {object} apierror.APIError
// @Failure      422  {object} apierror.APIError
// @Router       /v1/pricing/products/{id}/price [put]
func (h *PricesHandler) UpdatePrice(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req dto.ManualPriceRequest
	if !bindAndValidate(c, &req) {
		return
	}
	res, err := h.svc.UpdateProductPrice(c.Request.Context(), id, req, middleware.ActorID(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ListAdjustments godoc
// @Summary      List price adjustments
// @Tags         adjustments
// @Security     BearerAuth
// @Param        product_id query    int    false "Filter by product"
// @Param        status     query    string false "applied, pending_approval or rejected"
// @Param        page       query    int    false "Page (default 1)"
// @Param        limit      query    int    false "Page size (default 50, max 200)"
// @Success      200 {object} dto.AdjustmentListResponse
// @Failure      422 {object} apierror.APIError
// @Router       /v1/pricing/adjustments [get]
func (h *PricesHandler) ListAdjustments(c *gin.Context) {
	productID, ok := queryUint(c, "product_id")
	if !ok {
		return
	}
	page, ok := queryInt(c, "page", 1)
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit", 50)
	if !ok {
		return
	}
	res, err := h.svc.ListAdjustments(c.Request.Context(), dto.AdjustmentFilter{
		ProductID: productID,
		Status:    c.Query("status"),
		Page:      page,
		Limit:     limit,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Approve godoc
// @Summary      Approve a pending adjustment
// @Description  Applies the proposed price. Fails with 409 if the adjustment is no longer pending or the cost has moved since.
// @Tags         adjustments
// @Security     BearerAuth
// @Param        id  path     int true "Adjustment ID"
// @Success      200 {object} dto.AdjustmentItem
// @Failure      404 {object} apierror.APIError
// @Failure      409 {object} apierror.APIError
// @Router       /v1/pricing/adjustments/{id}/approve [post]
func (h *PricesHandler) Approve(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	res, err := h.svc.ApproveAdjustment(c.Request.Context(), id, middleware.ActorID(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Reject godoc
// @Summary      Reject a pending adjustment
// @Tags         adjustments
// @Security     BearerAuth
// @Param        id  path     int true "Adjustment ID"
// @Success      200 {object} dto.AdjustmentItem
// @Failure      404 {object} apierror.APIError
// @Failure      409 {object} apierror.APIError
// @Router       /v1/pricing/adjustments/{id}/reject [post]
func (h *PricesHandler) Reject(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	res, err := h.svc.RejectAdjustment(c.Request.Context(), id, middleware.ActorID(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
