package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clubpulse/clubpulse-api/internal/models"
	"github.com/clubpulse/clubpulse-api/internal/service"
	appErrors "github.com/clubpulse/clubpulse-api/pkg/errors"
	"github.com/clubpulse/clubpulse-api/pkg/response"
)

// PromotionHandler exposes the per-club leveling state.
type PromotionHandler struct {
	service *service.PromotionService
}

// NewPromotionHandler creates a new handler.
func NewPromotionHandler(svc *service.PromotionService) *PromotionHandler {
	return &PromotionHandler{service: svc}
}

// GetProgress godoc
// @Summary My promotion progress in a club
// @Description Return the caller's full leveling state for a club, materializing it on first call
// @Tags Promotions
// @Produce json
// @Param clubId path string true "Club ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /clubs/{clubId}/promotion [get]
func (h *PromotionHandler) GetProgress(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	progress, err := h.service.GetProgress(c.Request.Context(), claims.UserID, c.Param("clubId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, progress, nil)
}

type recordActivityRequest struct {
	Kind    string  `json:"kind" binding:"required"`
	EventID *string `json:"event_id,omitempty"`
}

// RecordActivity godoc
// @Summary Record a domain activity
// @Description Fold an activity (attendance, photo upload, QR scan, follow, stamp, share) into the caller's ladder
// @Tags Promotions
// @Accept json
// @Produce json
// @Param clubId path string true "Club ID"
// @Param payload body recordActivityRequest true "Activity payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /clubs/{clubId}/promotion/activities [post]
func (h *PromotionHandler) RecordActivity(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req recordActivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid activity payload"))
		return
	}

	progress, err := h.service.RecordActivity(c.Request.Context(), claims.UserID, c.Param("clubId"), models.ActivityKind(req.Kind), req.EventID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, progress, nil)
}
