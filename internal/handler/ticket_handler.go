package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clubpulse/clubpulse-api/internal/models"
	"github.com/clubpulse/clubpulse-api/internal/service"
	appErrors "github.com/clubpulse/clubpulse-api/pkg/errors"
	"github.com/clubpulse/clubpulse-api/pkg/response"
)

// TicketHandler exposes the purchase flow and issued tickets.
type TicketHandler struct {
	service *service.TicketService
}

// NewTicketHandler creates a new handler.
func NewTicketHandler(svc *service.TicketService) *TicketHandler {
	return &TicketHandler{service: svc}
}

// CreateOrder godoc
// @Summary Create a ticket order
// @Description Record a purchase intent against a published event
// @Tags Tickets
// @Accept json
// @Produce json
// @Param payload body service.CreateOrderRequest true "Order payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /orders [post]
func (h *TicketHandler) CreateOrder(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid order payload"))
		return
	}

	order, err := h.service.CreateOrder(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, order)
}

// PaymentWebhook godoc
// @Summary Payment provider webhook
// @Description Settle an order from a verified payment notification; replays are no-ops
// @Tags Tickets
// @Accept json
// @Produce json
// @Param payload body models.PaymentWebhook true "Webhook payload"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /webhooks/payments [post]
func (h *TicketHandler) PaymentWebhook(c *gin.Context) {
	var payload models.PaymentWebhook
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid webhook payload"))
		return
	}

	if err := h.service.HandlePaymentWebhook(c.Request.Context(), payload); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListMine godoc
// @Summary My tickets
// @Tags Tickets
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /tickets [get]
func (h *TicketHandler) ListMine(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	tickets, err := h.service.ListByUser(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tickets, nil)
}

// Redeem godoc
// @Summary Redeem a ticket at the door
// @Description Mark a ticket used and record the attendance in the holder's ladder
// @Tags Tickets
// @Produce json
// @Param id path string true "Ticket ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /tickets/{id}/redeem [post]
func (h *TicketHandler) Redeem(c *gin.Context) {
	ticket, err := h.service.Redeem(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, ticket, nil)
}

// DownloadPDF godoc
// @Summary Download ticket PDF
// @Description Render the caller's ticket as a printable PDF
// @Tags Tickets
// @Produce application/pdf
// @Param id path string true "Ticket ID"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /tickets/{id}/pdf [get]
func (h *TicketHandler) DownloadPDF(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	data, err := h.service.RenderPDF(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=ticket-%s.pdf", c.Param("id")))
	c.Data(http.StatusOK, "application/pdf", data)
}
