package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"go.uber.org/zap"

	"github.com/clubpulse/clubpulse-api/internal/models"
	"github.com/clubpulse/clubpulse-api/pkg/config"
	appErrors "github.com/clubpulse/clubpulse-api/pkg/errors"
)

type referralRepository interface {
	Create(ctx context.Context, link *models.ShareLink) error
	FindByCode(ctx context.Context, code string) (*models.ShareLink, error)
	ListByUser(ctx context.Context, userID string) ([]models.ShareLink, error)
	RegisterClick(ctx context.Context, code string) error
	RegisterSignup(ctx context.Context, code string) error
}

type referralClubReader interface {
	FindByID(ctx context.Context, id string) (*models.Club, error)
}

type referralEventReader interface {
	FindByID(ctx context.Context, id string) (*models.Event, error)
}

type shareActivityRecorder interface {
	RecordActivity(ctx context.Context, userID, clubID string, kind models.ActivityKind, eventID *string) (*models.PromotionProgress, error)
}

// CreateShareLinkRequest creates a trackable link for a club or event.
type CreateShareLinkRequest struct {
	ClubID  *string `json:"club_id,omitempty" validate:"omitempty,uuid4"`
	EventID *string `json:"event_id,omitempty" validate:"omitempty,uuid4"`
}

// ReferralService manages share links: generation, click tracking,
// signup attribution and the share-mission feedback into the promotion
// engine.
type ReferralService struct {
	repo      referralRepository
	clubs     referralClubReader
	events    referralEventReader
	engine    shareActivityRecorder
	cfg       config.ReferralsConfig
	validator *validator.Validate
	logger    *zap.Logger
}

// NewReferralService constructs ReferralService. engine may be nil.
func NewReferralService(repo referralRepository, clubs referralClubReader, events referralEventReader, engine shareActivityRecorder, cfg config.ReferralsConfig, validate *validator.Validate, logger *zap.Logger) *ReferralService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReferralService{repo: repo, clubs: clubs, events: events, engine: engine, cfg: cfg, validator: validate, logger: logger}
}

// CreateLink mints a share link for a club or an event. The code is a
// readable slug of the target's name plus a short random suffix.
func (s *ReferralService) CreateLink(ctx context.Context, userID string, req CreateShareLinkRequest) (*models.ShareLink, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid share link payload")
	}
	if req.ClubID == nil && req.EventID == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "either club_id or event_id is required")
	}

	var name, target string
	var clubID *string
	if req.EventID != nil {
		event, err := s.events.FindByID(ctx, *req.EventID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load event")
		}
		name = event.Name
		target = fmt.Sprintf("%s/events/%s", strings.TrimRight(s.cfg.BaseURL, "/"), event.Slug)
		clubID = &event.ClubID
	} else {
		club, err := s.clubs.FindByID(ctx, *req.ClubID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "club not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load club")
		}
		name = club.Name
		target = fmt.Sprintf("%s/clubs/%s", strings.TrimRight(s.cfg.BaseURL, "/"), club.Slug)
		clubID = req.ClubID
	}

	link := &models.ShareLink{
		Code:      shareCode(name),
		UserID:    userID,
		ClubID:    clubID,
		EventID:   req.EventID,
		TargetURL: target,
		Active:    true,
	}
	if err := s.repo.Create(ctx, link); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create share link")
	}

	s.logger.Info("share link created",
		zap.String("code", link.Code),
		zap.String("user_id", userID))
	return link, nil
}

// ResolveClick records a click on a share link and returns the redirect
// target. Clicks on club-bound links feed the owner's share missions.
func (s *ReferralService) ResolveClick(ctx context.Context, code string) (string, error) {
	link, err := s.findActive(ctx, code)
	if err != nil {
		return "", err
	}

	if err := s.repo.RegisterClick(ctx, code); err != nil {
		s.logger.Warn("click registration failed", zap.String("code", code), zap.Error(err))
	}

	if s.engine != nil && link.ClubID != nil {
		if _, err := s.engine.RecordActivity(ctx, link.UserID, *link.ClubID, models.ActivityShare, link.EventID); err != nil {
			s.logger.Warn("share activity not recorded",
				zap.String("code", code),
				zap.String("user_id", link.UserID),
				zap.Error(err))
		}
	}
	return link.TargetURL, nil
}

// AttributeSignup credits a signup to the link's owner and returns the
// owner's user ID for the referred_by column.
func (s *ReferralService) AttributeSignup(ctx context.Context, code string) (*string, error) {
	link, err := s.findActive(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := s.repo.RegisterSignup(ctx, code); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to register referral signup")
	}
	return &link.UserID, nil
}

// ListByUser returns the caller's share links with their counters.
func (s *ReferralService) ListByUser(ctx context.Context, userID string) ([]models.ShareLink, error) {
	links, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list share links")
	}
	return links, nil
}

func (s *ReferralService) findActive(ctx context.Context, code string) (*models.ShareLink, error) {
	link, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "share link not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load share link")
	}
	if !link.Active {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "share link not found")
	}
	return link, nil
}

func shareCode(name string) string {
	base := slug.Make(name)
	if len(base) > 32 {
		base = base[:32]
	}
	return base + "-" + uuid.NewString()[:8]
}
