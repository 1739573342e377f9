package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jlongo78/joe-ritchey-machining/internal/dto"
	"github.com/jlongo78/joe-ritchey-machining/internal/middleware"
	"github.com/jlongo78/joe-ritchey-machining/internal/service"
)

type CompetitorsHandler struct {
	svc service.CompetitorService
}

func NewCompetitorsHandler(svc service.CompetitorService) *CompetitorsHandler {
	return &CompetitorsHandler{svc: svc}
}

// Fetch godoc
// @Summary      Fetch a competitor's prices now
// @Description  Only api and scraper targets can be fetched; manual targets take observations.
// @Tags         competitors
// @Security     BearerAuth
// @Param        id  path     int true "Competitor ID"
// @Success      200 {object} dto.CompetitorFetchResult
// @Failure      404 {object} apierror.APIError
// @Failure      409 {object} apierror.APIError
// @Failure      422 {object} apierror.APIError
// @Failure      502 {object} apierror.APIError
// @Router       /v1/pricing/competitors/{id}/fetch [post]
func (h *CompetitorsHandler) Fetch(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	res, err := h.svc.Fetch(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// RecordObservations godoc
// @Summary      Record operator-entered competitor prices
// @Tags         competitors
// @Security     BearerAuth
// @Accept       json
// @Param        id   path     int                           true "Competitor ID"
// @Param        body body     dto.RecordObservationsRequest true "Observations"
// @Success      201  {object} dto.CompetitorFetchResult
// @Failure      404  {object} apierror.APIError
// @Failure      422  {object} apierror.APIError
// @Router       /v1/pricing/competitors/{id}/observations [post]
func (h *CompetitorsHandler) RecordObservations(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req dto.RecordObservationsRequest
	if !bindAndValidate(c, &req) {
		return
	}
	res, err := h.svc.RecordObservations(c.Request.Context(), id, req, middleware.ActorID(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// DueForSync godoc
// @Summary      Competitors due for a fetch
// @Tags         competitors
// @Security     BearerAuth
// @Success      200 {array} dto.DueTarget
// @Router       /v1/pricing/competitors/due-for-sync [get]
func (h *CompetitorsHandler) DueForSync(c *gin.Context) {
	res, err := h.svc.DueForSync(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
