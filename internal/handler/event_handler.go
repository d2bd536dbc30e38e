package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/clubpulse/clubpulse-api/internal/models"
	"github.com/clubpulse/clubpulse-api/internal/service"
	appErrors "github.com/clubpulse/clubpulse-api/pkg/errors"
	"github.com/clubpulse/clubpulse-api/pkg/response"
)

// EventHandler exposes the event catalogue and lifecycle.
type EventHandler struct {
	service *service.EventService
}

// NewEventHandler creates a new handler.
func NewEventHandler(svc *service.EventService) *EventHandler {
	return &EventHandler{service: svc}
}

// List godoc
// @Summary List events
// @Description List events with club context, filterable by club, status and city
// @Tags Events
// @Produce json
// @Param club_id query string false "Club ID"
// @Param status query string false "Event status"
// @Param city query string false "City"
// @Param search query string false "Name search"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /events [get]
func (h *EventHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	filter := models.EventFilter{
		ClubID:    c.Query("club_id"),
		Status:    models.EventStatus(c.Query("status")),
		City:      c.Query("city"),
		Search:    c.Query("search"),
		Page:      page,
		PageSize:  pageSize,
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
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

// Get godoc
// @Summary Get an event
// @Tags Events
// @Produce json
// @Param id path string true "Event ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /events/{id} [get]
func (h *EventHandler) Get(c *gin.Context) {
	event, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, event, nil)
}

// Create godoc
// @Summary Create an event
// @Description Draft an event under a club the caller manages
// @Tags Events
// @Accept json
// @Produce json
// @Param payload body service.CreateEventRequest true "Event payload"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /events [post]
func (h *EventHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid event payload"))
		return
	}

	event, err := h.service.Create(c.Request.Context(), service.EventActor{UserID: claims.UserID, Role: claims.Role}, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, event)
}

// Update godoc
// @Summary Update an event
// @Tags Events
// @Accept json
// @Produce json
// @Param id path string true "Event ID"
// @Param payload body service.UpdateEventRequest true "Event payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /events/{id} [put]
func (h *EventHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.UpdateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid event payload"))
		return
	}

	event, err := h.service.Update(c.Request.Context(), service.EventActor{UserID: claims.UserID, Role: claims.Role}, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, event, nil)
}

// Publish godoc
// @Summary Publish an event
// @Tags Events
// @Produce json
// @Param id path string true "Event ID"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /events/{id}/publish [post]
func (h *EventHandler) Publish(c *gin.Context) {
	h.transition(c, h.service.Publish)
}

// Cancel godoc
// @Summary Cancel an event
// @Tags Events
// @Produce json
// @Param id path string true "Event ID"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /events/{id}/cancel [post]
func (h *EventHandler) Cancel(c *gin.Context) {
	h.transition(c, h.service.Cancel)
}

// Finish godoc
// @Summary Finish an event
// @Tags Events
// @Produce json
// @Param id path string true "Event ID"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /events/{id}/finish [post]
func (h *EventHandler) Finish(c *gin.Context) {
	h.transition(c, h.service.Finish)
}

func (h *EventHandler) transition(c *gin.Context, fn func(ctx context.Context, actor service.EventActor, id string) (*models.Event, error)) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	event, err := fn(c.Request.Context(), service.EventActor{UserID: claims.UserID, Role: claims.Role}, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, event, nil)
}
