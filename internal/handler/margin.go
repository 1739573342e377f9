package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jlongo78/joe-ritchey-machining/internal/service"
)

type MarginHandler struct {
	svc service.MarginService
}

func NewMarginHandler(svc service.MarginService) *MarginHandler {
	return &MarginHandler{svc: svc}
}

// Analyze godoc
// @Summary      Margin analysis
// @Tags         margin
// @Security     BearerAuth
// @Param        scope    query    string false "all (default), product, category or brand"
// @Param        scope_id query    int    false "Required unless scope is all"
// @Success      200 {object} dto.MarginAnalysisResponse
// @Failure      404 {object} apierror.APIError
// @Failure      422 {object} apierror.APIError
// @Router       /v1/pricing/margin-analysis [get]
func (h *MarginHandler) Analyze(c *gin.Context) {
	scopeID, ok := queryUint(c, "scope_id")
	if !ok {
		return
	}
	res, err := h.svc.Analyze(c.Request.Context(), c.Query("scope"), scopeID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ReportPDF godoc
// @Summary      Margin analysis as PDF
// @Tags         margin
// @Security     BearerAuth
// @Produce      application/pdf
// @Param        scope    query    string false "all (default), product, category or brand"
// @Param        scope_id query    int    false "Required unless scope is all"
// @Success      200 {file} binary
// @Failure      422 {object} apierror.APIError
// @Router       /v1/pricing/margin-analysis.pdf [get]
func (h *MarginHandler) ReportPDF(c *gin.Context) {
	scopeID, ok := queryUint(c, "scope_id")
	if !ok {
		return
	}
	scope := c.DefaultQuery("scope", "all")
	body, err := h.svc.Report(c.Request.Context(), scope, scopeID)
	if err != nil {
		fail(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="margin-analysis-%s.pdf"`, scope))
	c.Data(http.StatusOK, "application/pdf", body)
}
