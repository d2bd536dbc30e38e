package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/clubpulse/clubpulse-api/internal/models"
	"github.com/clubpulse/clubpulse-api/pkg/config"
	appErrors "github.com/clubpulse/clubpulse-api/pkg/errors"
)

type mockTemplateRepo struct {
	global      []models.LevelTemplate
	byClub      map[string][]models.LevelTemplate
	items       map[string]*models.LevelTemplate
	created     []*models.LevelTemplate
	deactivated []string
	createErr   error
}

func (m *mockTemplateRepo) ListActiveByClub(ctx context.Context, clubID string) ([]models.LevelTemplate, error) {
	return m.byClub[clubID], nil
}

func (m *mockTemplateRepo) ListActiveGlobal(ctx context.Context) ([]models.LevelTemplate, error) {
	return m.global, nil
}

func (m *mockTemplateRepo) FindByID(ctx context.Context, id string) (*models.LevelTemplate, error) {
	if tpl, ok := m.items[id]; ok {
		cp := *tpl
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockTemplateRepo) Create(ctx context.Context, template *models.LevelTemplate) error {
	if m.createErr != nil {
		return m.createErr
	}
	if template.ID == "" {
		template.ID = "generated"
	}
	if template.Version <= 0 {
		template.Version = 1
	}
	m.created = append(m.created, template)
	return nil
}

func (m *mockTemplateRepo) Deactivate(ctx context.Context, id string) error {
	m.deactivated = append(m.deactivated, id)
	return nil
}

type mockClubReader struct {
	clubs map[string]*models.Club
}

func (m *mockClubReader) FindByID(ctx context.Context, id string) (*models.Club, error) {
	if club, ok := m.clubs[id]; ok {
		cp := *club
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func globalLadder() []models.LevelTemplate {
	return []models.LevelTemplate{
		{ID: "g1", Scope: models.ScopeGlobal, LevelNumber: 1, Title: "Global L1"},
		{ID: "g2", Scope: models.ScopeGlobal, LevelNumber: 2, Title: "Global L2"},
		{ID: "g3", Scope: models.ScopeGlobal, LevelNumber: 3, Title: "Global L3"},
	}
}

func clubOverride(clubID string) []models.LevelTemplate {
	return []models.LevelTemplate{
		{ID: "c2", Scope: models.ScopeClub, ClubID: &clubID, LevelNumber: 2, Title: "Club L2"},
	}
}

func TestTemplatesForClubReplaceAll(t *testing.T) {
	repo := &mockTemplateRepo{
		global: globalLadder(),
		byClub: map[string][]models.LevelTemplate{"club-1": clubOverride("club-1")},
	}
	svc := NewTemplateService(repo, &mockClubReader{}, config.PromotionsConfig{OverrideMode: config.OverrideReplaceAll}, validator.New(), zap.NewNop())

	templates, err := svc.TemplatesForClub(context.Background(), "club-1")
	require.NoError(t, err)
	// Any club override hides the whole global ladder.
	require.Len(t, templates, 1)
	assert.Equal(t, "Club L2", templates[0].Title)
}

func TestTemplatesForClubReplaceAllFallsBackToGlobal(t *testing.T) {
	repo := &mockTemplateRepo{global: globalLadder()}
	svc := NewTemplateService(repo, &mockClubReader{}, config.PromotionsConfig{OverrideMode: config.OverrideReplaceAll}, validator.New(), zap.NewNop())

	templates, err := svc.TemplatesForClub(context.Background(), "club-1")
	require.NoError(t, err)
	require.Len(t, templates, 3)
	assert.Equal(t, "Global L1", templates[0].Title)
}

func TestTemplatesForClubMergeByLevel(t *testing.T) {
	repo := &mockTemplateRepo{
		global: globalLadder(),
		byClub: map[string][]models.LevelTemplate{"club-1": clubOverride("club-1")},
	}
	svc := NewTemplateService(repo, &mockClubReader{}, config.PromotionsConfig{OverrideMode: config.OverrideMergeByLevel}, validator.New(), zap.NewNop())

	templates, err := svc.TemplatesForClub(context.Background(), "club-1")
	require.NoError(t, err)
	require.Len(t, templates, 3)
	assert.Equal(t, "Global L1", templates[0].Title)
	assert.Equal(t, "Club L2", templates[1].Title)
	assert.Equal(t, "Global L3", templates[2].Title)
}

func validTemplateRequest() CreateTemplateRequest {
	return CreateTemplateRequest{
		Scope:       "global",
		LevelNumber: 1,
		Title:       "Newcomer",
		Missions: []MissionTemplateInput{
			{Type: "attend_event", Title: "Attend an event", Target: 1, Order: 1},
		},
		Reward: Reward{Type: "badge", Title: "Newcomer badge", Value: "1"},
	}
}

func TestTemplateCreate(t *testing.T) {
	repo := &mockTemplateRepo{}
	svc := NewTemplateService(repo, &mockClubReader{}, config.PromotionsConfig{}, validator.New(), zap.NewNop())

	template, err := svc.Create(context.Background(), validTemplateRequest())
	require.NoError(t, err)
	assert.Equal(t, models.ScopeGlobal, template.Scope)
	assert.Equal(t, 1, template.Version)
	assert.True(t, template.Active)
	require.Len(t, template.Missions, 1)
	assert.True(t, template.Missions[0].Active)
	assert.Equal(t, models.RewardBadge, template.Reward.Type)
	assert.Equal(t, "1", template.Reward.ValueText)
	require.Len(t, repo.created, 1)
}

func TestTemplateCreateDuplicateLevelSurfacesConflict(t *testing.T) {
	repo := &mockTemplateRepo{
		createErr: appErrors.Clone(appErrors.ErrConflict, "active template already exists for this level"),
	}
	svc := NewTemplateService(repo, &mockClubReader{}, config.PromotionsConfig{}, validator.New(), zap.NewNop())

	_, err := svc.Create(context.Background(), validTemplateRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestTemplateCreateUnknownMissionType(t *testing.T) {
	svc := NewTemplateService(&mockTemplateRepo{}, &mockClubReader{}, config.PromotionsConfig{}, validator.New(), zap.NewNop())

	req := validTemplateRequest()
	req.Missions[0].Type = "moonwalk"
	_, err := svc.Create(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestTemplateCreateUnknownRewardType(t *testing.T) {
	svc := NewTemplateService(&mockTemplateRepo{}, &mockClubReader{}, config.PromotionsConfig{}, validator.New(), zap.NewNop())

	req := validTemplateRequest()
	req.Reward.Type = "yacht"
	_, err := svc.Create(context.Background(), req)
	require.Error(t, err)
}

func TestTemplateCreateClubScopeRequiresExistingClub(t *testing.T) {
	svc := NewTemplateService(&mockTemplateRepo{}, &mockClubReader{}, config.PromotionsConfig{}, validator.New(), zap.NewNop())

	req := validTemplateRequest()
	req.Scope = "club"
	req.ClubID = "missing"
	_, err := svc.Create(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	req.ClubID = ""
	_, err = svc.Create(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestTemplateReplaceBumpsVersion(t *testing.T) {
	repo := &mockTemplateRepo{
		items: map[string]*models.LevelTemplate{
			"tpl-1": {ID: "tpl-1", Scope: models.ScopeGlobal, LevelNumber: 1, Version: 2, Active: true},
		},
	}
	svc := NewTemplateService(repo, &mockClubReader{}, config.PromotionsConfig{}, validator.New(), zap.NewNop())

	replacement, err := svc.Replace(context.Background(), "tpl-1", validTemplateRequest())
	require.NoError(t, err)
	assert.Equal(t, 3, replacement.Version)
	assert.Equal(t, []string{"tpl-1"}, repo.deactivated)
	require.Len(t, repo.created, 1)
}

func TestTemplateReplaceMissing(t *testing.T) {
	svc := NewTemplateService(&mockTemplateRepo{}, &mockClubReader{}, config.PromotionsConfig{}, validator.New(), zap.NewNop())

	_, err := svc.Replace(context.Background(), "nope", validTemplateRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestTemplateDeactivate(t *testing.T) {
	repo := &mockTemplateRepo{
		items: map[string]*models.LevelTemplate{
			"tpl-1": {ID: "tpl-1", Active: true},
		},
	}
	svc := NewTemplateService(repo, &mockClubReader{}, config.PromotionsConfig{}, validator.New(), zap.NewNop())

	require.NoError(t, svc.Deactivate(context.Background(), "tpl-1"))
	assert.Equal(t, []string{"tpl-1"}, repo.deactivated)

	err := svc.Deactivate(context.Background(), "gone")
	require.Error(t, err)
}
