package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clubpulse/clubpulse-api/internal/service"
	appErrors "github.com/clubpulse/clubpulse-api/pkg/errors"
	"github.com/clubpulse/clubpulse-api/pkg/response"
)

// ReferralHandler exposes share links and the public redirect.
type ReferralHandler struct {
	service *service.ReferralService
}

// NewReferralHandler creates a new handler.
func NewReferralHandler(svc *service.ReferralService) *ReferralHandler {
	return &ReferralHandler{service: svc}
}

// Create godoc
// @Summary Create a share link
// @Description Mint a trackable referral link for a club or event
// @Tags Referrals
// @Accept json
// @Produce json
// @Param payload body service.CreateShareLinkRequest true "Share link payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /share-links [post]
func (h *ReferralHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateShareLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid share link payload"))
		return
	}

	link, err := h.service.CreateLink(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, link)
}

// ListMine godoc
// @Summary My share links
// @Tags Referrals
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /share-links [get]
func (h *ReferralHandler) ListMine(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	links, err := h.service.ListByUser(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, links, nil)
}

// Redirect godoc
// @Summary Follow a share link
// @Description Record the click and redirect to the shared club or event page
// @Tags Referrals
// @Param code path string true "Share code"
// @Success 302
// @Failure 404 {object} response.Envelope
// @Router /r/{code} [get]
func (h *ReferralHandler) Redirect(c *gin.Context) {
	target, err := h.service.ResolveClick(c.Request.Context(), c.Param("code"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Redirect(http.StatusFound, target)
}
