package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/clubpulse/clubpulse-api/internal/models"
	"github.com/clubpulse/clubpulse-api/internal/service"
	appErrors "github.com/clubpulse/clubpulse-api/pkg/errors"
	"github.com/clubpulse/clubpulse-api/pkg/response"
)

// ClaimHandler exposes the evidence claim lifecycle.
type ClaimHandler struct {
	service *service.ClaimService
}

// NewClaimHandler creates a new handler.
func NewClaimHandler(svc *service.ClaimService) *ClaimHandler {
	return &ClaimHandler{service: svc}
}

// Submit godoc
// @Summary Submit mission evidence
// @Description File an evidence claim against an approval-gated mission
// @Tags Claims
// @Accept json
// @Produce json
// @Param payload body service.SubmitClaimRequest true "Claim payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /claims [post]
func (h *ClaimHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.SubmitClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid claim payload"))
		return
	}
	req.IPAddress = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	claim, err := h.service.Submit(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, claim)
}

// Get godoc
// @Summary Get one claim
// @Description Return a claim visible to its owner, the club manager or an admin
// @Tags Claims
// @Produce json
// @Param id path string true "Claim ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /claims/{id} [get]
func (h *ClaimHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	claim, err := h.service.Get(c.Request.Context(), service.ReviewActor{UserID: claims.UserID, Role: claims.Role}, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, claim, nil)
}

// List godoc
// @Summary List claims
// @Description List claims filtered by club, user and status; members see their own
// @Tags Claims
// @Produce json
// @Param club_id query string false "Club ID"
// @Param status query string false "Claim status"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /claims [get]
func (h *ClaimHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	filter := models.ClaimFilter{
		ClubID:   c.Query("club_id"),
		Status:   models.ClaimStatus(c.Query("status")),
		Page:     page,
		PageSize: pageSize,
	}
	// Members only ever see their own claims; reviewers scope by club.
	if claims.Role == models.RoleMember {
		filter.UserID = claims.UserID
	} else if userID := c.Query("user_id"); userID != "" {
		filter.UserID = userID
	}

	items, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, &models.Pagination{
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalCount: total,
	})
}

// Review godoc
// @Summary Review a pending claim
// @Description Approve or reject a pending claim; approvals advance the mission
// @Tags Claims
// @Accept json
// @Produce json
// @Param id path string true "Claim ID"
// @Param payload body service.ReviewClaimRequest true "Review decision"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /claims/{id}/review [post]
func (h *ClaimHandler) Review(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.ReviewClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid review payload"))
		return
	}

	claim, err := h.service.Review(c.Request.Context(), service.ReviewActor{UserID: claims.UserID, Role: claims.Role}, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, claim, nil)
}

// Cancel godoc
// @Summary Cancel my pending claim
// @Description Withdraw a pending claim and reopen the mission
// @Tags Claims
// @Produce json
// @Param id path string true "Claim ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /claims/{id}/cancel [post]
func (h *ClaimHandler) Cancel(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	claim, err := h.service.Cancel(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, claim, nil)
}
