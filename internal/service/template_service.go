package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/clubpulse/clubpulse-api/internal/models"
	"github.com/clubpulse/clubpulse-api/pkg/config"
	appErrors "github.com/clubpulse/clubpulse-api/pkg/errors"
)

type templateRepository interface {
	ListActiveByClub(ctx context.Context, clubID string) ([]models.LevelTemplate, error)
	ListActiveGlobal(ctx context.Context) ([]models.LevelTemplate, error)
	FindByID(ctx context.Context, id string) (*models.LevelTemplate, error)
	Create(ctx context.Context, template *models.LevelTemplate) error
	Deactivate(ctx context.Context, id string) error
}

type templateClubReader interface {
	FindByID(ctx context.Context, id string) (*models.Club, error)
}

// MissionTemplateInput shapes one mission inside a template payload.
type MissionTemplateInput struct {
	Type             string                 `json:"type" validate:"required"`
	Title            string                 `json:"title" validate:"required"`
	Description      string                 `json:"description"`
	Target           int64                  `json:"target" validate:"required,min=1"`
	Params           map[string]interface{} `json:"params"`
	RequiresApproval bool                   `json:"requires_approval"`
	Order            int                    `json:"order" validate:"min=0"`
}

// CreateTemplateRequest describes a new level template.
type CreateTemplateRequest struct {
	Scope       string                 `json:"scope" validate:"required,oneof=global club"`
	ClubID      string                 `json:"club_id,omitempty"`
	LevelNumber int                    `json:"level_number" validate:"required,min=1,max=100"`
	Title       string                 `json:"title" validate:"required"`
	Description string                 `json:"description"`
	Missions    []MissionTemplateInput `json:"missions" validate:"required,min=1,dive"`
	Reward      Reward                 `json:"reward"`
}

// Reward mirrors models.Reward for request payload validation.
type Reward struct {
	Type        string                 `json:"type" validate:"required"`
	Title       string                 `json:"title" validate:"required"`
	Description string                 `json:"description"`
	Value       string                 `json:"value"`
	Meta        map[string]interface{} `json:"meta"`
}

// TemplateService owns the promotion ladder definitions and resolves
// which ladder applies to a club.
type TemplateService struct {
	repo      templateRepository
	clubs     templateClubReader
	cfg       config.PromotionsConfig
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTemplateService constructs TemplateService.
func NewTemplateService(repo templateRepository, clubs templateClubReader, cfg config.PromotionsConfig, validate *validator.Validate, logger *zap.Logger) *TemplateService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TemplateService{repo: repo, clubs: clubs, cfg: cfg, validator: validate, logger: logger}
}

// TemplatesForClub resolves the ladder that applies to a club.
//
// In replace_all mode (the default) the override is all-or-nothing: any
// active club-scoped template hides the entire global ladder, so a club
// customizing one level must define every level it wants. merge_by_level
// overlays club templates onto the global ladder per level number.
func (s *TemplateService) TemplatesForClub(ctx context.Context, clubID string) ([]models.LevelTemplate, error) {
	clubTemplates, err := s.repo.ListActiveByClub(ctx, clubID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load club templates")
	}

	if s.cfg.OverrideMode == config.OverrideReplaceAll && len(clubTemplates) > 0 {
		return clubTemplates, nil
	}

	globalTemplates, err := s.repo.ListActiveGlobal(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load global templates")
	}

	if len(clubTemplates) == 0 {
		return globalTemplates, nil
	}

	merged := make(map[int]models.LevelTemplate, len(globalTemplates))
	for _, tpl := range globalTemplates {
		merged[tpl.LevelNumber] = tpl
	}
	for _, tpl := range clubTemplates {
		merged[tpl.LevelNumber] = tpl
	}
	result := make([]models.LevelTemplate, 0, len(merged))
	for _, tpl := range merged {
		result = append(result, tpl)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].LevelNumber < result[j].LevelNumber })
	return result, nil
}

// Create validates and persists a new template.
func (s *TemplateService) Create(ctx context.Context, req CreateTemplateRequest) (*models.LevelTemplate, error) {
	template, err := s.build(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, template); err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create template")
	}
	return template, nil
}

func (s *TemplateService) build(ctx context.Context, req CreateTemplateRequest) (*models.LevelTemplate, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid template payload")
	}
	if _, ok := models.KnownRewardTypes[models.RewardType(req.Reward.Type)]; !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown reward type")
	}

	scope := models.TemplateScope(req.Scope)
	var clubID *string
	if scope == models.ScopeClub {
		if req.ClubID == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "club_id is required for club-scoped templates")
		}
		if _, err := s.clubs.FindByID(ctx, req.ClubID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "club not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load club")
		}
		clubID = &req.ClubID
	}

	missions := make(models.MissionTemplateList, 0, len(req.Missions))
	for _, m := range req.Missions {
		missionType := models.MissionType(m.Type)
		if _, ok := models.KnownMissionTypes[missionType]; !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown mission type")
		}
		missions = append(missions, models.MissionTemplate{
			Type:             missionType,
			Title:            m.Title,
			Description:      m.Description,
			Target:           m.Target,
			Params:           m.Params,
			RequiresApproval: m.RequiresApproval,
			Order:            m.Order,
			Active:           true,
		})
	}

	template := &models.LevelTemplate{
		Scope:       scope,
		ClubID:      clubID,
		LevelNumber: req.LevelNumber,
		Title:       req.Title,
		Description: req.Description,
		Missions:    missions,
		Reward: models.Reward{
			Type:        models.RewardType(req.Reward.Type),
			Title:       req.Reward.Title,
			Description: req.Reward.Description,
			ValueText:   req.Reward.Value,
			Meta:        req.Reward.Meta,
		},
		Active: true,
	}
	return template, nil
}

// Replace retires an existing template and installs a bumped version in
// its place. Templates are immutable: edits never mutate a live row.
func (s *TemplateService) Replace(ctx context.Context, id string, req CreateTemplateRequest) (*models.LevelTemplate, error) {
	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "template not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load template")
	}

	template, err := s.build(ctx, req)
	if err != nil {
		return nil, err
	}
	template.Version = existing.Version + 1

	if err := s.repo.Deactivate(ctx, existing.ID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to retire previous template version")
	}
	if err := s.repo.Create(ctx, template); err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create replacement template")
	}
	return template, nil
}

// Deactivate retires a template without replacement.
func (s *TemplateService) Deactivate(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "template not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load template")
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate template")
	}
	return nil
}
