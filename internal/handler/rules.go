package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/jlongo78/joe-ritchey-machining/internal/apierror"
	"github.com/jlongo78/joe-ritchey-machining/internal/dto"
	"github.com/jlongo78/joe-ritchey-machining/internal/middleware"
	"github.com/jlongo78/joe-ritchey-machining/internal/service"
)

type RulesHandler struct {
	rules   service.RuleService
	pricing service.PricingService
}

func NewRulesHandler(rules service.RuleService, pricing service.PricingService) *RulesHandler {
	return &RulesHandler{rules: rules, pricing: pricing}
}

// List godoc
// @Summary      List pricing rules
// @Tags         rules
// @Security     BearerAuth
// @Param        is_active  query    bool    false "Filter by active flag"
// @Param        rule_type  query    string  false "Filter by rule type"
// @Param        applies_to query    string  false "Filter by scope"
// @Success      200 {object} dto.RuleListResponse
// @Router       /v1/pricing/rules [get]
func (h *RulesHandler) List(c *gin.Context) {
	filter := dto.RuleFilter{
		RuleType:  c.Query("rule_type"),
		AppliesTo: c.Query("applies_to"),
	}
	if raw := c.Query("is_active"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, apierror.New("Invalid is_active"))
			return
		}
		filter.IsActive = &v
	}
	resp, err := h.rules.List(c.Request.Context(), filter)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Create godoc
// @Summary      Create a pricing rule
// @Tags         rules
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        body body     dto.CreateRuleRequest true "Rule"
// @Success      201  {object} dto.RuleResponse
// @Failure      422  {object} apierror.APIError
// @Router       /v1/pricing/rules [post]
func (h *RulesHandler) Create(c *gin.Context) {
	var req dto.CreateRuleRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.rules.Create(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// Get godoc
// @Summary      Get a pricing rule
// @Tags         rules
// @Security     BearerAuth
// @Param        id  path     int true "Rule ID"
// @Success      200 {object} dto.RuleResponse
// @Failure      404 {object} apierror.APIError
// @Router       /v1/pricing/rules/{id} [get]
func (h *RulesHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	resp, err := h.rules.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Update godoc
// @Summary      Update a pricing rule
// @Description  Partial update; omitted fields keep their value.
// @Tags         rules
// @Security     BearerAuth
// @Accept       json
// @Param        id   path     int                   true "Rule ID"
// @Param        body body     dto.UpdateRuleRequest true "Changes"
// @Success      200  {object} dto.RuleResponse
// @Failure      404  {object} apierror.APIError
// @Failure      422  {object} apierror.APIError
// @Router       /v1/pricing/rules/{id} [put]
func (h *RulesHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req dto.UpdateRuleRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.rules.Update(c.Request.Context(), id, req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Delete godoc
// @Summary      Delete a pricing rule
// @Tags         rules
// @Security     BearerAuth
// @Param        id path int true "Rule ID"
// @Success      204
// @Failure      404 {object} apierror.APIError
// @Router       /v1/pricing/rules/{id} [delete]
func (h *RulesHandler) Delete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.rules.Delete(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type applyRuleRequest struct {
	BaseCost *decimal.Decimal `json:"base_cost" validate:"omitempty,gt=0"`
}

// Apply godoc
// @Summary      Apply one rule to one product
// @Description  Runs the calculator with the given rule regardless of its scope or active flag. base_cost overrides the stored cost.
// @Tags         rules
// @Security     BearerAuth
// @Param        id         path     int              true  "Rule ID"
// @Param        product_id path     int              true  "Product ID"
// @Param        body       body     applyRuleRequest false "Optional base cost"
// @Success      200 {object} dto.RepriceResponse
// @Failure      404 {object} apierror.APIError
// @Failure      409 {object} apierror.APIError
// @Router       /v1/pricing/rules/{id}/apply/{product_id} [post]
func (h *RulesHandler) Apply(c *gin.Context) {
	ruleID, ok := pathID(c, "id")
	if !ok {
		return
	}
	productID, ok := pathID(c, "product_id")
	if !ok {
		return
	}
	var req applyRuleRequest
	if c.Request.ContentLength > 0 && !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.pricing.ApplyRule(c.Request.Context(), ruleID, productID, req.BaseCost, middleware.ActorID(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
