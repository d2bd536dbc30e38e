package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gosimple/slug"
	"go.uber.org/zap"

	"github.com/clubpulse/clubpulse-api/internal/models"
	appErrors "github.com/clubpulse/clubpulse-api/pkg/errors"
)

type clubRepository interface {
	FindByID(ctx context.Context, id string) (*models.Club, error)
	FindBySlug(ctx context.Context, slug string) (*models.Club, error)
	Create(ctx context.Context, club *models.Club) error
	AdjustFollowers(ctx context.Context, id string, delta int64) error
}

type clubActivityRecorder interface {
	RecordActivity(ctx context.Context, userID, clubID string, kind models.ActivityKind, eventID *string) (*models.PromotionProgress, error)
}

// CreateClubRequest registers a new venue account.
type CreateClubRequest struct {
	Name        string `json:"name" validate:"required,min=2,max=120"`
	Description string `json:"description,omitempty" validate:"max=2000"`
	City        string `json:"city,omitempty" validate:"max=120"`
}

// ClubService manages venue accounts and the follow relationship.
type ClubService struct {
	repo      clubRepository
	engine    clubActivityRecorder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewClubService constructs ClubService. engine may be nil.
func NewClubService(repo clubRepository, engine clubActivityRecorder, validate *validator.Validate, logger *zap.Logger) *ClubService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClubService{repo: repo, engine: engine, validator: validate, logger: logger}
}

// Create registers a club owned by the caller.
func (s *ClubService) Create(ctx context.Context, ownerID string, req CreateClubRequest) (*models.Club, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid club payload")
	}

	club := &models.Club{
		Name:        req.Name,
		Slug:        slug.Make(req.Name),
		Description: req.Description,
		City:        req.City,
		OwnerID:     ownerID,
		Active:      true,
	}
	if err := s.repo.Create(ctx, club); err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create club")
	}
	return club, nil
}

// Get returns a club by ID.
func (s *ClubService) Get(ctx context.Context, id string) (*models.Club, error) {
	club, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "club not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load club")
	}
	return club, nil
}

// GetBySlug returns a club by its public slug.
func (s *ClubService) GetBySlug(ctx context.Context, clubSlug string) (*models.Club, error) {
	club, err := s.repo.FindBySlug(ctx, clubSlug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "club not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load club")
	}
	return club, nil
}

// Follow adds the caller to a club's followers and feeds the follow
// missions of their ladder in that club.
func (s *ClubService) Follow(ctx context.Context, userID, clubID string) error {
	if _, err := s.Get(ctx, clubID); err != nil {
		return err
	}
	if err := s.repo.AdjustFollowers(ctx, clubID, 1); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to follow club")
	}
	if s.engine != nil {
		if _, err := s.engine.RecordActivity(ctx, userID, clubID, models.ActivityFollow, nil); err != nil {
			s.logger.Warn("follow activity not recorded",
				zap.String("user_id", userID),
				zap.String("club_id", clubID),
				zap.Error(err))
		}
	}
	return nil
}

// Unfollow removes the caller from a club's followers. Follow missions
// never regress on unfollow.
func (s *ClubService) Unfollow(ctx context.Context, userID, clubID string) error {
	if _, err := s.Get(ctx, clubID); err != nil {
		return err
	}
	if err := s.repo.AdjustFollowers(ctx, clubID, -1); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to unfollow club")
	}
	return nil
}
