package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/clubpulse/clubpulse-api/internal/models"
	appErrors "github.com/clubpulse/clubpulse-api/pkg/errors"
)

type mockEventRepo struct {
	items map[string]*models.Event
	seq   int
}

func (m *mockEventRepo) List(ctx context.Context, filter models.EventFilter) ([]models.EventDetail, int, error) {
	var result []models.EventDetail
	for _, event := range m.items {
		if filter.ClubID != "" && event.ClubID != filter.ClubID {
			continue
		}
		if filter.Status != "" && event.Status != filter.Status {
			continue
		}
		result = append(result, models.EventDetail{Event: *event})
	}
	return result, len(result), nil
}

func (m *mockEventRepo) FindByID(ctx context.Context, id string) (*models.Event, error) {
	if event, ok := m.items[id]; ok {
		cp := *event
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEventRepo) Create(ctx context.Context, event *models.Event) error {
	if m.items == nil {
		m.items = make(map[string]*models.Event)
	}
	m.seq++
	event.ID = fmt.Sprintf("event-%d", m.seq)
	cp := *event
	m.items[event.ID] = &cp
	return nil
}

func (m *mockEventRepo) Update(ctx context.Context, event *models.Event) error {
	cp := *event
	m.items[event.ID] = &cp
	return nil
}

func (m *mockEventRepo) UpdateStatus(ctx context.Context, id string, status models.EventStatus) error {
	if event, ok := m.items[id]; ok {
		event.Status = status
	}
	return nil
}

func eventServiceFixture() (*EventService, *mockEventRepo) {
	repo := &mockEventRepo{}
	clubs := &mockClubReader{clubs: map[string]*models.Club{
		testClubID: {ID: testClubID, Name: "Klub Verknipt", OwnerID: "manager-1", Active: true},
	}}
	return NewEventService(repo, clubs, validator.New(), zap.NewNop()), repo
}

func validEventRequest() CreateEventRequest {
	return CreateEventRequest{
		ClubID:     testClubID,
		Name:       "Warehouse Rave",
		StartsAt:   time.Date(2026, 9, 5, 23, 0, 0, 0, time.UTC),
		Capacity:   200,
		PriceCents: 2500,
		Currency:   "EUR",
	}
}

func TestEventCreate(t *testing.T) {
	svc, _ := eventServiceFixture()
	owner := EventActor{UserID: "manager-1", Role: models.RoleClubManager}

	event, err := svc.Create(context.Background(), owner, validEventRequest())
	require.NoError(t, err)
	assert.Equal(t, models.EventDraft, event.Status)
	assert.Equal(t, "warehouse-rave-2026-09-05", event.Slug)
}

func TestEventCreateForbiddenForForeignManager(t *testing.T) {
	svc, _ := eventServiceFixture()

	_, err := svc.Create(context.Background(), EventActor{UserID: "other", Role: models.RoleClubManager}, validEventRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = svc.Create(context.Background(), EventActor{UserID: "member", Role: models.RoleMember}, validEventRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	// Admins manage any club's events.
	_, err = svc.Create(context.Background(), EventActor{UserID: "root", Role: models.RoleAdmin}, validEventRequest())
	require.NoError(t, err)
}

func TestEventLifecycle(t *testing.T) {
	svc, repo := eventServiceFixture()
	owner := EventActor{UserID: "manager-1", Role: models.RoleClubManager}
	ctx := context.Background()

	event, err := svc.Create(ctx, owner, validEventRequest())
	require.NoError(t, err)

	published, err := svc.Publish(ctx, owner, event.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EventPublished, published.Status)

	// Publishing twice is rejected.
	_, err = svc.Publish(ctx, owner, event.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)

	finished, err := svc.Finish(ctx, owner, event.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EventFinished, finished.Status)
	assert.Equal(t, models.EventFinished, repo.items[event.ID].Status)

	// Finished events cannot be cancelled.
	_, err = svc.Cancel(ctx, owner, event.ID)
	require.Error(t, err)
}

func TestEventUpdateGuards(t *testing.T) {
	svc, repo := eventServiceFixture()
	owner := EventActor{UserID: "manager-1", Role: models.RoleClubManager}
	ctx := context.Background()

	event, err := svc.Create(ctx, owner, validEventRequest())
	require.NoError(t, err)
	repo.items[event.ID].TicketsIssued = 50

	update := UpdateEventRequest{
		Name:       "Warehouse Rave XL",
		StartsAt:   event.StartsAt,
		Capacity:   40,
		PriceCents: 3000,
		Currency:   "EUR",
	}
	_, err = svc.Update(ctx, owner, event.ID, update)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)

	update.Capacity = 250
	updated, err := svc.Update(ctx, owner, event.ID, update)
	require.NoError(t, err)
	assert.Equal(t, "Warehouse Rave XL", updated.Name)
	assert.Equal(t, 250, updated.Capacity)

	// Cancelled events are frozen.
	_, err = svc.Cancel(ctx, owner, event.ID)
	require.NoError(t, err)
	_, err = svc.Update(ctx, owner, event.ID, update)
	require.Error(t, err)
}

func TestEventListClampsPagination(t *testing.T) {
	svc, _ := eventServiceFixture()

	_, _, err := svc.List(context.Background(), models.EventFilter{Page: 0, PageSize: 1000})
	require.NoError(t, err)
}
