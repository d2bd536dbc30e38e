package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/clubpulse/clubpulse-api/internal/models"
	appErrors "github.com/clubpulse/clubpulse-api/pkg/errors"
)

type claimRepository interface {
	Create(ctx context.Context, claim *models.PromotionClaim) error
	FindByID(ctx context.Context, id string) (*models.PromotionClaim, error)
	List(ctx context.Context, filter models.ClaimFilter) ([]models.PromotionClaim, int, error)
	Resolve(ctx context.Context, claim *models.PromotionClaim) error
	MarkRewardGranted(ctx context.Context, id string, grantedAt time.Time) error
}

type claimProgressEngine interface {
	EnsureProgress(ctx context.Context, userID, clubID string) (*models.PromotionProgress, error)
	MarkMissionPending(ctx context.Context, claim *models.PromotionClaim) error
	ApplyClaimOutcome(ctx context.Context, claim *models.PromotionClaim) error
	ReopenRejectedMission(ctx context.Context, userID, clubID string, levelNumber int, missionKey string) error
	RefreshPendingClaims(ctx context.Context, userID, clubID string) error
}

type claimClubReader interface {
	FindByID(ctx context.Context, id string) (*models.Club, error)
}

type claimAuditRecorder interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type claimMetrics interface {
	RecordClaim(status string)
}

// EvidenceInput is one proof item in a claim submission.
type EvidenceInput struct {
	Type    string                 `json:"type" validate:"required,oneof=photo qr_scan text mixed"`
	URL     string                 `json:"url,omitempty" validate:"omitempty,url"`
	QRID    string                 `json:"qr_id,omitempty"`
	Payload string                 `json:"payload,omitempty"`
	Text    string                 `json:"text,omitempty"`
	Meta    map[string]interface{} `json:"meta,omitempty"`
}

// SubmitClaimRequest is the payload for submitting mission evidence.
type SubmitClaimRequest struct {
	ClubID      string          `json:"club_id" validate:"required,uuid4"`
	EventID     *string         `json:"event_id,omitempty" validate:"omitempty,uuid4"`
	LevelNumber int             `json:"level_number" validate:"required,min=1"`
	MissionKey  string          `json:"mission_key" validate:"required"`
	Evidence    []EvidenceInput `json:"evidence" validate:"required,min=1,dive"`
	UserNote    string          `json:"user_note,omitempty" validate:"max=1000"`
	IPAddress   string          `json:"-"`
	UserAgent   string          `json:"-"`
}

// ReviewClaimRequest is the payload for a manager review decision.
type ReviewClaimRequest struct {
	Action      string `json:"action" validate:"required,oneof=approve reject"`
	ReviewNote  string `json:"review_note,omitempty" validate:"max=1000"`
	GrantReward bool   `json:"grant_reward,omitempty"`
}

// ReviewActor identifies who is acting on a claim.
type ReviewActor struct {
	UserID string
	Role   models.UserRole
}

// ClaimService owns the evidence claim lifecycle: submission, review,
// cancellation and the resulting progress mutations.
type ClaimService struct {
	claims    claimRepository
	engine    claimProgressEngine
	clubs     claimClubReader
	audit     claimAuditRecorder
	metrics   claimMetrics
	validator *validator.Validate
	logger    *zap.Logger
}

// NewClaimService constructs ClaimService. audit and metrics may be nil.
func NewClaimService(claims claimRepository, engine claimProgressEngine, clubs claimClubReader, audit claimAuditRecorder, metrics claimMetrics, validate *validator.Validate, logger *zap.Logger) *ClaimService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClaimService{claims: claims, engine: engine, clubs: clubs, audit: audit, metrics: metrics, validator: validate, logger: logger}
}

// Submit files evidence against an approval-gated mission. The mission
// must be open in the user's materialized progress; a second pending
// claim for the same slot is rejected as a conflict by the store.
func (s *ClaimService) Submit(ctx context.Context, userID string, req SubmitClaimRequest) (*models.PromotionClaim, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid claim payload")
	}

	progress, err := s.engine.EnsureProgress(ctx, userID, req.ClubID)
	if err != nil {
		return nil, err
	}
	mission, err := findMissionInProgress(progress, req.LevelNumber, req.MissionKey)
	if err != nil {
		return nil, err
	}
	if !mission.RequiresApproval {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "mission does not take evidence claims")
	}
	switch mission.Status {
	case models.MissionInProgress, models.MissionRejected:
	case models.MissionPending:
		return nil, appErrors.Clone(appErrors.ErrDuplicateClaim, "")
	default:
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "mission is not open for claims")
	}

	evidence := make(models.EvidenceList, 0, len(req.Evidence))
	for _, e := range req.Evidence {
		evidence = append(evidence, models.Evidence{
			Type:    models.EvidenceType(e.Type),
			URL:     e.URL,
			QRID:    e.QRID,
			Payload: e.Payload,
			Text:    e.Text,
			Meta:    e.Meta,
		})
	}

	claim := &models.PromotionClaim{
		UserID:      userID,
		ClubID:      req.ClubID,
		EventID:     req.EventID,
		LevelNumber: req.LevelNumber,
		MissionType: mission.Type,
		MissionKey:  req.MissionKey,
		Status:      models.ClaimPending,
		Evidence:    evidence,
		UserNote:    req.UserNote,
		IPAddress:   req.IPAddress,
		UserAgent:   req.UserAgent,
	}
	if err := s.claims.Create(ctx, claim); err != nil {
		return nil, err
	}

	// A rejected mission resubmits by reopening first; the pending flip
	// below covers both paths.
	if err := s.engine.MarkMissionPending(ctx, claim); err != nil {
		s.logger.Error("failed to mark mission pending after claim create",
			zap.String("claim_id", claim.ID), zap.Error(err))
		return nil, err
	}
	if err := s.engine.RefreshPendingClaims(ctx, userID, req.ClubID); err != nil {
		s.logger.Warn("pending claims refresh failed after submit",
			zap.String("claim_id", claim.ID), zap.Error(err))
	}

	s.recordAudit(ctx, &userID, models.AuditActionClaimSubmit, claim.ID, req.IPAddress, req.UserAgent)
	if s.metrics != nil {
		s.metrics.RecordClaim(string(models.ClaimPending))
	}
	s.logger.Info("claim submitted",
		zap.String("claim_id", claim.ID),
		zap.String("user_id", userID),
		zap.String("club_id", req.ClubID),
		zap.String("mission_key", req.MissionKey))
	return claim, nil
}

// Review resolves a pending claim. Managers may only review claims of
// clubs they own; admins review anything. Resolution is terminal.
func (s *ClaimService) Review(ctx context.Context, actor ReviewActor, claimID string, req ReviewClaimRequest) (*models.PromotionClaim, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid review payload")
	}

	claim, err := s.findClaim(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if claim.Status != models.ClaimPending {
		return nil, appErrors.Clone(appErrors.ErrClaimResolved, "")
	}
	if err := s.authorizeReview(ctx, actor, claim); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if req.Action == "approve" {
		claim.Status = models.ClaimApproved
	} else {
		claim.Status = models.ClaimRejected
	}
	claim.ReviewedBy = &actor.UserID
	claim.ReviewedAt = &now
	claim.ReviewNote = req.ReviewNote

	if err := s.claims.Resolve(ctx, claim); err != nil {
		return nil, err
	}

	if err := s.engine.ApplyClaimOutcome(ctx, claim); err != nil {
		s.logger.Error("failed to apply claim outcome to progress",
			zap.String("claim_id", claim.ID),
			zap.String("status", string(claim.Status)),
			zap.Error(err))
		return nil, err
	}
	if err := s.engine.RefreshPendingClaims(ctx, claim.UserID, claim.ClubID); err != nil {
		s.logger.Warn("pending claims refresh failed after review",
			zap.String("claim_id", claim.ID), zap.Error(err))
	}

	if claim.Status == models.ClaimApproved && req.GrantReward {
		if err := s.claims.MarkRewardGranted(ctx, claim.ID, now); err != nil {
			s.logger.Warn("failed to mark reward granted",
				zap.String("claim_id", claim.ID), zap.Error(err))
		} else {
			claim.RewardGranted = true
			claim.RewardGrantedAt = &now
		}
	}

	s.recordAudit(ctx, &actor.UserID, models.AuditActionClaimReview, claim.ID, "", "")
	if s.metrics != nil {
		s.metrics.RecordClaim(string(claim.Status))
	}
	s.logger.Info("claim reviewed",
		zap.String("claim_id", claim.ID),
		zap.String("reviewer_id", actor.UserID),
		zap.String("status", string(claim.Status)))
	return claim, nil
}

// Cancel withdraws the caller's own pending claim and reopens the
// mission.
func (s *ClaimService) Cancel(ctx context.Context, userID, claimID string) (*models.PromotionClaim, error) {
	claim, err := s.findClaim(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if claim.UserID != userID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "claim belongs to another user")
	}
	if claim.Status != models.ClaimPending {
		return nil, appErrors.Clone(appErrors.ErrClaimResolved, "")
	}

	claim.Status = models.ClaimCancelled
	if err := s.claims.Resolve(ctx, claim); err != nil {
		return nil, err
	}
	if err := s.engine.ApplyClaimOutcome(ctx, claim); err != nil {
		s.logger.Error("failed to reopen mission after cancel",
			zap.String("claim_id", claim.ID), zap.Error(err))
		return nil, err
	}
	if err := s.engine.RefreshPendingClaims(ctx, claim.UserID, claim.ClubID); err != nil {
		s.logger.Warn("pending claims refresh failed after cancel",
			zap.String("claim_id", claim.ID), zap.Error(err))
	}

	s.recordAudit(ctx, &userID, models.AuditActionClaimCancel, claim.ID, "", "")
	if s.metrics != nil {
		s.metrics.RecordClaim(string(models.ClaimCancelled))
	}
	return claim, nil
}

// Resubmit reopens a rejected mission so the user can file fresh
// evidence, then submits the new claim.
func (s *ClaimService) Resubmit(ctx context.Context, userID string, req SubmitClaimRequest) (*models.PromotionClaim, error) {
	if err := s.engine.ReopenRejectedMission(ctx, userID, req.ClubID, req.LevelNumber, req.MissionKey); err != nil {
		return nil, err
	}
	return s.Submit(ctx, userID, req)
}

// Get returns one claim, visible to its owner, the club's manager and
// admins.
func (s *ClaimService) Get(ctx context.Context, actor ReviewActor, claimID string) (*models.PromotionClaim, error) {
	claim, err := s.findClaim(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if claim.UserID != actor.UserID {
		if err := s.authorizeReview(ctx, actor, claim); err != nil {
			return nil, err
		}
	}
	return claim, nil
}

// List returns claims matching a filter with a total for pagination.
func (s *ClaimService) List(ctx context.Context, filter models.ClaimFilter) ([]models.PromotionClaim, int, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	return s.claims.List(ctx, filter)
}

func (s *ClaimService) findClaim(ctx context.Context, claimID string) (*models.PromotionClaim, error) {
	claim, err := s.claims.FindByID(ctx, claimID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "claim not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load claim")
	}
	return claim, nil
}

func (s *ClaimService) authorizeReview(ctx context.Context, actor ReviewActor, claim *models.PromotionClaim) error {
	if actor.Role == models.RoleAdmin {
		return nil
	}
	if actor.Role != models.RoleClubManager {
		return appErrors.Clone(appErrors.ErrForbidden, "")
	}
	club, err := s.clubs.FindByID(ctx, claim.ClubID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "club not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load club")
	}
	if club.OwnerID != actor.UserID {
		return appErrors.Clone(appErrors.ErrForbidden, "claim belongs to a club you do not manage")
	}
	return nil
}

func (s *ClaimService) recordAudit(ctx context.Context, userID *string, action, claimID, ip, userAgent string) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{
		UserID:     userID,
		Action:     action,
		Resource:   "promotion_claims",
		ResourceID: &claimID,
		IPAddress:  ip,
		UserAgent:  userAgent,
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("audit log write failed", zap.String("action", action), zap.Error(err))
	}
}

func findMissionInProgress(p *models.PromotionProgress, levelNumber int, missionKey string) (*models.MissionProgress, error) {
	level := findLevel(p, levelNumber)
	if level == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "level not found in progress")
	}
	mission := findMission(level, missionKey)
	if mission == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "mission not found in level")
	}
	return mission, nil
}
