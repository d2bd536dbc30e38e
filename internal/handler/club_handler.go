package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clubpulse/clubpulse-api/internal/service"
	appErrors "github.com/clubpulse/clubpulse-api/pkg/errors"
	"github.com/clubpulse/clubpulse-api/pkg/response"
)

// ClubHandler exposes venue accounts and the follow relationship.
type ClubHandler struct {
	service *service.ClubService
}

// NewClubHandler creates a new handler.
func NewClubHandler(svc *service.ClubService) *ClubHandler {
	return &ClubHandler{service: svc}
}

// Create godoc
// @Summary Create a club
// @Description Register a club owned by the caller
// @Tags Clubs
// @Accept json
// @Produce json
// @Param payload body service.CreateClubRequest true "Club payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /clubs [post]
func (h *ClubHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateClubRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid club payload"))
		return
	}

	club, err := h.service.Create(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, club)
}

// Get godoc
// @Summary Get a club
// @Tags Clubs
// @Produce json
// @Param clubId path string true "Club ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /clubs/{clubId} [get]
func (h *ClubHandler) Get(c *gin.Context) {
	club, err := h.service.Get(c.Request.Context(), c.Param("clubId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, club, nil)
}

// Follow godoc
// @Summary Follow a club
// @Description Follow a club; feeds the caller's follow missions there
// @Tags Clubs
// @Produce json
// @Param clubId path string true "Club ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /clubs/{clubId}/follow [post]
func (h *ClubHandler) Follow(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.Follow(c.Request.Context(), claims.UserID, c.Param("clubId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Unfollow godoc
// @Summary Unfollow a club
// @Tags Clubs
// @Produce json
// @Param clubId path string true "Club ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /clubs/{clubId}/follow [delete]
func (h *ClubHandler) Unfollow(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.Unfollow(c.Request.Context(), claims.UserID, c.Param("clubId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
