package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jlongo78/joe-ritchey-machining/internal/dto"
	"github.com/jlongo78/joe-ritchey-machining/internal/middleware"
	"github.com/jlongo78/joe-ritchey-machining/internal/service"
)

type BulkHandler struct {
	svc service.BulkService
}

func NewBulkHandler(svc service.BulkService) *BulkHandler {
	return &BulkHandler{svc: svc}
}

// Update godoc
// @Summary      Bulk price update
// @Description  preview_only defaults to true. A preview returns exactly what apply would write.
// @Tags         bulk
// @Security     BearerAuth
// @Accept       json
// @Param        body body     dto.BulkUpdateRequest true "Bulk update"
// @Success      200  {object} dto.BulkUpdateResponse
// @Failure      422  {object} apierror.APIError
// @Router       /v1/pricing/bulk-update [post]
func (h *BulkHandler) Update(c *gin.Context) {
	var req dto.BulkUpdateRequest
	if !bindAndValidate(c, &req) {
		return
	}
	res, err := h.svc.Update(c.Request.Context(), req, middleware.ActorID(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
