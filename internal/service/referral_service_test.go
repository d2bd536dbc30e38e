package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/clubpulse/clubpulse-api/internal/models"
	"github.com/clubpulse/clubpulse-api/pkg/config"
	appErrors "github.com/clubpulse/clubpulse-api/pkg/errors"
)

type mockReferralRepo struct {
	links map[string]*models.ShareLink
}

func (m *mockReferralRepo) Create(ctx context.Context, link *models.ShareLink) error {
	if m.links == nil {
		m.links = make(map[string]*models.ShareLink)
	}
	link.ID = "link-" + link.Code
	cp := *link
	m.links[link.Code] = &cp
	return nil
}

func (m *mockReferralRepo) FindByCode(ctx context.Context, code string) (*models.ShareLink, error) {
	if link, ok := m.links[code]; ok {
		cp := *link
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockReferralRepo) ListByUser(ctx context.Context, userID string) ([]models.ShareLink, error) {
	var result []models.ShareLink
	for _, link := range m.links {
		if link.UserID == userID {
			result = append(result, *link)
		}
	}
	return result, nil
}

func (m *mockReferralRepo) RegisterClick(ctx context.Context, code string) error {
	if link, ok := m.links[code]; ok {
		link.ClickCount++
	}
	return nil
}

func (m *mockReferralRepo) RegisterSignup(ctx context.Context, code string) error {
	if link, ok := m.links[code]; ok {
		link.SignupCount++
	}
	return nil
}

type mockReferralEventReader struct {
	events map[string]*models.Event
}

func (m *mockReferralEventReader) FindByID(ctx context.Context, id string) (*models.Event, error) {
	if event, ok := m.events[id]; ok {
		cp := *event
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func referralFixture() (*ReferralService, *mockReferralRepo, *mockActivityRecorder) {
	repo := &mockReferralRepo{}
	clubs := &mockClubReader{clubs: map[string]*models.Club{
		testClubID: {ID: testClubID, Name: "Klub Verknipt", Slug: "klub-verknipt", Active: true},
	}}
	events := &mockReferralEventReader{events: map[string]*models.Event{
		testEventID: {ID: testEventID, ClubID: testClubID, Name: "Warehouse Rave", Slug: "warehouse-rave-2026-09-05", Status: models.EventPublished},
	}}
	engine := &mockActivityRecorder{}
	cfg := config.ReferralsConfig{Enabled: true, BaseURL: "https://clubpulse.app/"}
	return NewReferralService(repo, clubs, events, engine, cfg, validator.New(), zap.NewNop()), repo, engine
}

func TestCreateShareLinkForClub(t *testing.T) {
	svc, _, _ := referralFixture()
	clubID := testClubID

	link, err := svc.CreateLink(context.Background(), "u1", CreateShareLinkRequest{ClubID: &clubID})
	require.NoError(t, err)
	assert.Equal(t, "https://clubpulse.app/clubs/klub-verknipt", link.TargetURL)
	assert.True(t, strings.HasPrefix(link.Code, "klub-verknipt-"))
	assert.Len(t, link.Code, len("klub-verknipt-")+8)
	require.NotNil(t, link.ClubID)
	assert.Equal(t, testClubID, *link.ClubID)
	assert.Nil(t, link.EventID)
	assert.True(t, link.Active)
}

func TestCreateShareLinkForEvent(t *testing.T) {
	svc, _, _ := referralFixture()
	eventID := testEventID

	link, err := svc.CreateLink(context.Background(), "u1", CreateShareLinkRequest{EventID: &eventID})
	require.NoError(t, err)
	assert.Equal(t, "https://clubpulse.app/events/warehouse-rave-2026-09-05", link.TargetURL)
	require.NotNil(t, link.ClubID)
	assert.Equal(t, testClubID, *link.ClubID)
	require.NotNil(t, link.EventID)
	assert.Equal(t, testEventID, *link.EventID)
}

func TestCreateShareLinkRequiresTarget(t *testing.T) {
	svc, _, _ := referralFixture()

	_, err := svc.CreateLink(context.Background(), "u1", CreateShareLinkRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCreateShareLinkUnknownEvent(t *testing.T) {
	svc, _, _ := referralFixture()
	eventID := "3f2504e0-4f89-41d3-9a0c-0305e82c3399"

	_, err := svc.CreateLink(context.Background(), "u1", CreateShareLinkRequest{EventID: &eventID})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestResolveClickRegistersAndFeedsShareMissions(t *testing.T) {
	svc, repo, engine := referralFixture()
	ctx := context.Background()
	clubID := testClubID

	link, err := svc.CreateLink(ctx, "u1", CreateShareLinkRequest{ClubID: &clubID})
	require.NoError(t, err)

	target, err := svc.ResolveClick(ctx, link.Code)
	require.NoError(t, err)
	assert.Equal(t, link.TargetURL, target)
	assert.EqualValues(t, 1, repo.links[link.Code].ClickCount)
	require.Len(t, engine.calls, 1)
	assert.Equal(t, "u1:"+testClubID+":share", engine.calls[0])
}

func TestResolveClickSurvivesEngineFailure(t *testing.T) {
	svc, repo, engine := referralFixture()
	ctx := context.Background()
	clubID := testClubID
	engine.err = appErrors.Clone(appErrors.ErrInternal, "engine down")

	link, err := svc.CreateLink(ctx, "u1", CreateShareLinkRequest{ClubID: &clubID})
	require.NoError(t, err)

	target, err := svc.ResolveClick(ctx, link.Code)
	require.NoError(t, err)
	assert.Equal(t, link.TargetURL, target)
	assert.EqualValues(t, 1, repo.links[link.Code].ClickCount)
}

func TestResolveClickUnknownOrInactive(t *testing.T) {
	svc, repo, _ := referralFixture()
	ctx := context.Background()
	clubID := testClubID

	_, err := svc.ResolveClick(ctx, "no-such-code")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	link, err := svc.CreateLink(ctx, "u1", CreateShareLinkRequest{ClubID: &clubID})
	require.NoError(t, err)
	repo.links[link.Code].Active = false

	_, err = svc.ResolveClick(ctx, link.Code)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestAttributeSignup(t *testing.T) {
	svc, repo, _ := referralFixture()
	ctx := context.Background()
	clubID := testClubID

	link, err := svc.CreateLink(ctx, "u1", CreateShareLinkRequest{ClubID: &clubID})
	require.NoError(t, err)

	referrer, err := svc.AttributeSignup(ctx, link.Code)
	require.NoError(t, err)
	require.NotNil(t, referrer)
	assert.Equal(t, "u1", *referrer)
	assert.EqualValues(t, 1, repo.links[link.Code].SignupCount)
}

func TestListShareLinksByUser(t *testing.T) {
	svc, _, _ := referralFixture()
	ctx := context.Background()
	clubID := testClubID
	eventID := testEventID

	_, err := svc.CreateLink(ctx, "u1", CreateShareLinkRequest{ClubID: &clubID})
	require.NoError(t, err)
	_, err = svc.CreateLink(ctx, "u1", CreateShareLinkRequest{EventID: &eventID})
	require.NoError(t, err)
	_, err = svc.CreateLink(ctx, "u2", CreateShareLinkRequest{ClubID: &clubID})
	require.NoError(t, err)

	links, err := svc.ListByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, links, 2)
}
