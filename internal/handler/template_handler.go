package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clubpulse/clubpulse-api/internal/service"
	appErrors "github.com/clubpulse/clubpulse-api/pkg/errors"
	"github.com/clubpulse/clubpulse-api/pkg/response"
)

// TemplateHandler exposes ladder template administration.
type TemplateHandler struct {
	service *service.TemplateService
}

// NewTemplateHandler creates a new handler.
func NewTemplateHandler(svc *service.TemplateService) *TemplateHandler {
	return &TemplateHandler{service: svc}
}

// ListForClub godoc
// @Summary Resolved ladder for a club
// @Description Return the level templates that apply to a club after override resolution
// @Tags Templates
// @Produce json
// @Param clubId path string true "Club ID"
// @Success 200 {object} response.Envelope
// @Router /clubs/{clubId}/templates [get]
func (h *TemplateHandler) ListForClub(c *gin.Context) {
	templates, err := h.service.TemplatesForClub(c.Request.Context(), c.Param("clubId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, templates, nil)
}

// Create godoc
// @Summary Create a level template
// @Description Install a new global or club-scoped level template
// @Tags Templates
// @Accept json
// @Produce json
// @Param payload body service.CreateTemplateRequest true "Template payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /admin/templates [post]
func (h *TemplateHandler) Create(c *gin.Context) {
	var req service.CreateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid template payload"))
		return
	}

	template, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, template)
}

// Replace godoc
// @Summary Replace a level template
// @Description Retire a template and install a bumped version in its place
// @Tags Templates
// @Accept json
// @Produce json
// @Param id path string true "Template ID"
// @Param payload body service.CreateTemplateRequest true "Template payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/templates/{id} [put]
func (h *TemplateHandler) Replace(c *gin.Context) {
	var req service.CreateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid template payload"))
		return
	}

	template, err := h.service.Replace(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, template, nil)
}

// Deactivate godoc
// @Summary Deactivate a level template
// @Description Retire a template without replacement
// @Tags Templates
// @Produce json
// @Param id path string true "Template ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/templates/{id} [delete]
func (h *TemplateHandler) Deactivate(c *gin.Context) {
	if err := h.service.Deactivate(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
