package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gosimple/slug"
	"go.uber.org/zap"

	"github.com/clubpulse/clubpulse-api/internal/models"
	appErrors "github.com/clubpulse/clubpulse-api/pkg/errors"
)

type eventRepository interface {
	List(ctx context.Context, filter models.EventFilter) ([]models.EventDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Event, error)
	Create(ctx context.Context, event *models.Event) error
	Update(ctx context.Context, event *models.Event) error
	UpdateStatus(ctx context.Context, id string, status models.EventStatus) error
}

type eventClubReader interface {
	FindByID(ctx context.Context, id string) (*models.Club, error)
}

// CreateEventRequest describes a new event under a club.
type CreateEventRequest struct {
	ClubID      string     `json:"club_id" validate:"required,uuid4"`
	Name        string     `json:"name" validate:"required,min=2,max=160"`
	Description string     `json:"description,omitempty" validate:"max=4000"`
	Venue       string     `json:"venue,omitempty" validate:"max=200"`
	StartsAt    time.Time  `json:"starts_at" validate:"required"`
	EndsAt      *time.Time `json:"ends_at,omitempty"`
	Capacity    int        `json:"capacity" validate:"min=0"`
	PriceCents  int64      `json:"price_cents" validate:"min=0"`
	Currency    string     `json:"currency" validate:"required,len=3"`
}

// UpdateEventRequest carries editable event fields.
type UpdateEventRequest struct {
	Name        string     `json:"name" validate:"required,min=2,max=160"`
	Description string     `json:"description,omitempty" validate:"max=4000"`
	Venue       string     `json:"venue,omitempty" validate:"max=200"`
	StartsAt    time.Time  `json:"starts_at" validate:"required"`
	EndsAt      *time.Time `json:"ends_at,omitempty"`
	Capacity    int        `json:"capacity" validate:"min=0"`
	PriceCents  int64      `json:"price_cents" validate:"min=0"`
	Currency    string     `json:"currency" validate:"required,len=3"`
}

// EventActor identifies who is managing an event.
type EventActor struct {
	UserID string
	Role   models.UserRole
}

// EventService manages the event catalogue and its publication
// lifecycle.
type EventService struct {
	repo      eventRepository
	clubs     eventClubReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEventService constructs EventService.
func NewEventService(repo eventRepository, clubs eventClubReader, validate *validator.Validate, logger *zap.Logger) *EventService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventService{repo: repo, clubs: clubs, validator: validate, logger: logger}
}

// List returns events matching the filter plus a total for pagination.
func (s *EventService) List(ctx context.Context, filter models.EventFilter) ([]models.EventDetail, int, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	return s.repo.List(ctx, filter)
}

// Get returns one event.
func (s *EventService) Get(ctx context.Context, id string) (*models.Event, error) {
	event, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load event")
	}
	return event, nil
}

// Create drafts an event under a club the actor manages.
func (s *EventService) Create(ctx context.Context, actor EventActor, req CreateEventRequest) (*models.Event, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid event payload")
	}
	if err := s.authorize(ctx, actor, req.ClubID); err != nil {
		return nil, err
	}

	event := &models.Event{
		ClubID:      req.ClubID,
		Name:        req.Name,
		Slug:        eventSlug(req.Name, req.StartsAt),
		Description: req.Description,
		Venue:       req.Venue,
		StartsAt:    req.StartsAt,
		EndsAt:      req.EndsAt,
		Status:      models.EventDraft,
		Capacity:    req.Capacity,
		PriceCents:  req.PriceCents,
		Currency:    req.Currency,
	}
	if err := s.repo.Create(ctx, event); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create event")
	}
	return event, nil
}

// Update edits a draft or published event; finished and cancelled
// events are frozen.
func (s *EventService) Update(ctx context.Context, actor EventActor, id string, req UpdateEventRequest) (*models.Event, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid event payload")
	}
	event, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actor, event.ClubID); err != nil {
		return nil, err
	}
	switch event.Status {
	case models.EventDraft, models.EventPublished:
	default:
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "event can no longer be edited")
	}
	if req.Capacity != 0 && req.Capacity < event.TicketsIssued {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "capacity cannot drop below tickets already issued")
	}

	event.Name = req.Name
	event.Description = req.Description
	event.Venue = req.Venue
	event.StartsAt = req.StartsAt
	event.EndsAt = req.EndsAt
	event.Capacity = req.Capacity
	event.PriceCents = req.PriceCents
	event.Currency = req.Currency

	if err := s.repo.Update(ctx, event); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update event")
	}
	return event, nil
}

// Publish opens a draft event for ticket sales.
func (s *EventService) Publish(ctx context.Context, actor EventActor, id string) (*models.Event, error) {
	return s.transition(ctx, actor, id, models.EventPublished, models.EventDraft)
}

// Cancel withdraws a draft or published event.
func (s *EventService) Cancel(ctx context.Context, actor EventActor, id string) (*models.Event, error) {
	return s.transition(ctx, actor, id, models.EventCancelled, models.EventDraft, models.EventPublished)
}

// Finish closes a published event after it ran.
func (s *EventService) Finish(ctx context.Context, actor EventActor, id string) (*models.Event, error) {
	return s.transition(ctx, actor, id, models.EventFinished, models.EventPublished)
}

func (s *EventService) transition(ctx context.Context, actor EventActor, id string, to models.EventStatus, from ...models.EventStatus) (*models.Event, error) {
	event, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actor, event.ClubID); err != nil {
		return nil, err
	}

	allowed := false
	for _, status := range from {
		if event.Status == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed,
			fmt.Sprintf("event cannot move from %s to %s", event.Status, to))
	}

	if err := s.repo.UpdateStatus(ctx, id, to); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update event status")
	}
	event.Status = to
	s.logger.Info("event status changed",
		zap.String("event_id", id),
		zap.String("status", string(to)))
	return event, nil
}

func (s *EventService) authorize(ctx context.Context, actor EventActor, clubID string) error {
	if actor.Role == models.RoleAdmin {
		return nil
	}
	if actor.Role != models.RoleClubManager {
		return appErrors.Clone(appErrors.ErrForbidden, "")
	}
	club, err := s.clubs.FindByID(ctx, clubID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "club not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load club")
	}
	if club.OwnerID != actor.UserID {
		return appErrors.Clone(appErrors.ErrForbidden, "event belongs to a club you do not manage")
	}
	return nil
}

func eventSlug(name string, startsAt time.Time) string {
	return fmt.Sprintf("%s-%s", slug.Make(name), startsAt.Format("2006-01-02"))
}
