package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/clubpulse/clubpulse-api/internal/models"
	"github.com/clubpulse/clubpulse-api/internal/repository"
	"github.com/clubpulse/clubpulse-api/pkg/config"
	appErrors "github.com/clubpulse/clubpulse-api/pkg/errors"
)

type ladderResolver interface {
	TemplatesForClub(ctx context.Context, clubID string) ([]models.LevelTemplate, error)
}

type progressRepository interface {
	FindByUserAndClub(ctx context.Context, userID, clubID string) (*models.PromotionProgress, error)
	Insert(ctx context.Context, progress *models.PromotionProgress) error
	Update(ctx context.Context, progress *models.PromotionProgress) error
	SetPendingClaimsCount(ctx context.Context, userID, clubID string, count int) error
	ListPairsWithPendingClaims(ctx context.Context) ([]models.PromotionProgress, error)
}

type pendingClaimCounter interface {
	CountPending(ctx context.Context, userID, clubID string) (int, error)
}

type progressCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type promotionMetrics interface {
	RecordActivity(kind string)
	RecordLevelUnlock(clubID string)
}

// PromotionService orchestrates the per-(user,club) leveling engine:
// lazy materialization from templates, activity ingestion, claim
// outcomes and the derived snapshot.
type PromotionService struct {
	resolver ladderResolver
	progress progressRepository
	claims   pendingClaimCounter
	cache    progressCache
	metrics  promotionMetrics
	cfg      config.PromotionsConfig
	logger   *zap.Logger
}

// NewPromotionService constructs PromotionService. metrics may be nil.
func NewPromotionService(resolver ladderResolver, progress progressRepository, claims pendingClaimCounter, cache progressCache, metrics promotionMetrics, cfg config.PromotionsConfig, logger *zap.Logger) *PromotionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.WriteRetries <= 0 {
		cfg.WriteRetries = 3
	}
	return &PromotionService{
		resolver: resolver,
		progress: progress,
		claims:   claims,
		cache:    cache,
		metrics:  metrics,
		cfg:      cfg,
		logger:   logger,
	}
}

// GetProgress returns the aggregate for a pair, serving from the Redis
// snapshot cache when possible. A miss falls through to the database
// and repopulates the cache.
func (s *PromotionService) GetProgress(ctx context.Context, userID, clubID string) (*models.PromotionProgress, error) {
	key := repository.ProgressCacheKey(userID, clubID)
	if s.cache != nil {
		var cached models.PromotionProgress
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("progress cache read failed", zap.Error(err))
		}
	}

	progress, err := s.EnsureProgress(ctx, userID, clubID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, progress, s.cfg.CacheTTL); err != nil {
			s.logger.Warn("progress cache write failed", zap.Error(err))
		}
	}
	return progress, nil
}

// EnsureProgress returns the aggregate for a pair, materializing it on
// first touch. Creation is idempotent: losing the insert race to a
// concurrent first request degrades to a re-read.
func (s *PromotionService) EnsureProgress(ctx context.Context, userID, clubID string) (*models.PromotionProgress, error) {
	progress, err := s.progress.FindByUserAndClub(ctx, userID, clubID)
	if err == nil {
		return progress, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load promotion progress")
	}

	templates, err := s.resolver.TemplatesForClub(ctx, clubID)
	if err != nil {
		return nil, err
	}
	if len(templates) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no promotion ladder configured for club")
	}

	startLevel := templates[0].LevelNumber
	for _, tpl := range templates {
		if tpl.LevelNumber < startLevel {
			startLevel = tpl.LevelNumber
		}
	}

	now := time.Now().UTC()
	levels, rewardTitle := BuildFromTemplates(templates, startLevel, now)
	progress = &models.PromotionProgress{
		UserID:             userID,
		ClubID:             clubID,
		CurrentLevel:       startLevel,
		CurrentProgress:    0,
		CurrentRewardTitle: rewardTitle,
		Status:             models.ProgressActive,
		Levels:             levels,
		Counters:           models.CounterMap{},
	}

	if err := s.progress.Insert(ctx, progress); err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) && appErr.Code == appErrors.ErrConflict.Code {
			existing, readErr := s.progress.FindByUserAndClub(ctx, userID, clubID)
			if readErr != nil {
				return nil, appErrors.Wrap(readErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to re-read promotion progress")
			}
			return existing, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to materialize promotion progress")
	}

	s.logger.Info("promotion progress materialized",
		zap.String("user_id", userID),
		zap.String("club_id", clubID),
		zap.Int("levels", len(levels)),
		zap.Int("start_level", startLevel))
	return progress, nil
}

// RecordActivity folds one domain event into the aggregate: counters,
// auto-tracked missions of the current level, level completion and
// unlock, then the snapshot. Version conflicts retry with a fresh read.
func (s *PromotionService) RecordActivity(ctx context.Context, userID, clubID string, kind models.ActivityKind, eventID *string) (*models.PromotionProgress, error) {
	if _, ok := models.KnownActivityKinds[kind]; !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown activity kind")
	}

	progress, err := s.mutate(ctx, userID, clubID, func(p *models.PromotionProgress) error {
		s.applyActivity(p, kind, eventID, time.Now().UTC())
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordActivity(string(kind))
	}
	return progress, nil
}

func (s *PromotionService) applyActivity(p *models.PromotionProgress, kind models.ActivityKind, eventID *string, now time.Time) {
	if p.Counters == nil {
		p.Counters = models.CounterMap{}
	}
	if eventID != nil {
		// Stamps accumulate within a single event; a new event resets
		// the running counter before this stamp lands.
		if kind == models.ActivityStamp && (p.LastEventID == nil || *p.LastEventID != *eventID) {
			p.Counters[models.CounterStampsInCurrentEvent] = 0
		}
		p.LastEventID = eventID
	}
	p.LastActivityAt = &now

	for _, counter := range activityCounters(kind) {
		p.Counters[counter]++
	}

	missionType, ok := activityMissionType(kind)
	if !ok {
		RefreshSnapshot(p)
		return
	}

	level := findLevel(p, p.CurrentLevel)
	if level == nil {
		RefreshSnapshot(p)
		return
	}

	for i := range level.Missions {
		m := &level.Missions[i]
		if m.Type != missionType || m.RequiresApproval {
			continue
		}
		AdvanceMission(m, 1, now)
	}

	if CompleteLevelIfDone(level, now) {
		UnlockNextLevel(p, level.LevelNumber, now)
		if s.metrics != nil {
			s.metrics.RecordLevelUnlock(p.ClubID)
		}
		s.logger.Info("promotion level completed",
			zap.String("user_id", p.UserID),
			zap.String("club_id", p.ClubID),
			zap.Int("completed_level", level.LevelNumber),
			zap.Int("current_level", p.CurrentLevel))
	}
	RefreshSnapshot(p)
}

// MarkMissionPending flips an approval-gated mission to pending and
// attaches the claim that gates it.
func (s *PromotionService) MarkMissionPending(ctx context.Context, claim *models.PromotionClaim) error {
	_, err := s.mutate(ctx, claim.UserID, claim.ClubID, func(p *models.PromotionProgress) error {
		mission, err := s.locateMission(p, claim.LevelNumber, claim.MissionKey)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		mission.Status = models.MissionPending
		mission.ClaimID = &claim.ID
		mission.UpdatedAt = &now
		RefreshSnapshot(p)
		return nil
	})
	return err
}

// ApplyClaimOutcome folds a claim resolution into the aggregate. An
// approval advances the mission by one and may complete the level; a
// rejection parks the mission at its last ratio until resubmission; a
// cancellation reopens the mission untouched.
func (s *PromotionService) ApplyClaimOutcome(ctx context.Context, claim *models.PromotionClaim) error {
	_, err := s.mutate(ctx, claim.UserID, claim.ClubID, func(p *models.PromotionProgress) error {
		mission, err := s.locateMission(p, claim.LevelNumber, claim.MissionKey)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		mission.ClaimID = nil
		switch claim.Status {
		case models.ClaimApproved:
			mission.Status = models.MissionApproved
			AdvanceMission(mission, 1, now)
		case models.ClaimRejected:
			mission.Status = models.MissionRejected
			mission.UpdatedAt = &now
		case models.ClaimCancelled:
			mission.Status = models.MissionInProgress
			mission.UpdatedAt = &now
		default:
			return appErrors.Clone(appErrors.ErrPreconditionFailed, "claim is not resolved")
		}

		if level := findLevel(p, claim.LevelNumber); level != nil {
			if CompleteLevelIfDone(level, now) {
				UnlockNextLevel(p, level.LevelNumber, now)
				if s.metrics != nil {
					s.metrics.RecordLevelUnlock(p.ClubID)
				}
			}
		}
		RefreshSnapshot(p)
		return nil
	})
	return err
}

// ReopenRejectedMission puts a rejected mission back in progress so the
// user can gather fresh evidence and resubmit.
func (s *PromotionService) ReopenRejectedMission(ctx context.Context, userID, clubID string, levelNumber int, missionKey string) error {
	_, err := s.mutate(ctx, userID, clubID, func(p *models.PromotionProgress) error {
		mission, err := s.locateMission(p, levelNumber, missionKey)
		if err != nil {
			return err
		}
		if mission.Status != models.MissionRejected {
			return appErrors.Clone(appErrors.ErrPreconditionFailed, "mission is not rejected")
		}
		now := time.Now().UTC()
		mission.Status = models.MissionInProgress
		mission.UpdatedAt = &now
		RefreshSnapshot(p)
		return nil
	})
	return err
}

// RefreshPendingClaims recounts the pair's pending claims from the
// claim store and writes the total. Always a full recount, never an
// increment, so drift self-heals.
func (s *PromotionService) RefreshPendingClaims(ctx context.Context, userID, clubID string) error {
	count, err := s.claims.CountPending(ctx, userID, clubID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count pending claims")
	}
	if err := s.progress.SetPendingClaimsCount(ctx, userID, clubID, count); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store pending claims count")
	}
	s.invalidate(ctx, userID, clubID)
	return nil
}

// ReconcilePendingClaims sweeps pairs whose cached pending count is
// non-zero and re-derives each from the claim store. Runs on a
// scheduler; safe to run concurrently with live traffic.
func (s *PromotionService) ReconcilePendingClaims(ctx context.Context) error {
	pairs, err := s.progress.ListPairsWithPendingClaims(ctx)
	if err != nil {
		return err
	}
	var corrected int
	for _, pair := range pairs {
		count, err := s.claims.CountPending(ctx, pair.UserID, pair.ClubID)
		if err != nil {
			s.logger.Warn("pending claims recount failed",
				zap.String("user_id", pair.UserID),
				zap.String("club_id", pair.ClubID),
				zap.Error(err))
			continue
		}
		if count == pair.PendingClaimsCount {
			continue
		}
		if err := s.progress.SetPendingClaimsCount(ctx, pair.UserID, pair.ClubID, count); err != nil {
			s.logger.Warn("pending claims correction failed",
				zap.String("user_id", pair.UserID),
				zap.String("club_id", pair.ClubID),
				zap.Error(err))
			continue
		}
		s.invalidate(ctx, pair.UserID, pair.ClubID)
		corrected++
	}
	if corrected > 0 {
		s.logger.Info("pending claims reconciled",
			zap.Int("checked", len(pairs)),
			zap.Int("corrected", corrected))
	}
	return nil
}

// mutate runs a read-modify-write cycle under optimistic concurrency,
// retrying with a fresh read when another writer wins.
func (s *PromotionService) mutate(ctx context.Context, userID, clubID string, apply func(*models.PromotionProgress) error) (*models.PromotionProgress, error) {
	var lastErr error
	for attempt := 0; attempt < s.cfg.WriteRetries; attempt++ {
		progress, err := s.EnsureProgress(ctx, userID, clubID)
		if err != nil {
			return nil, err
		}
		if err := apply(progress); err != nil {
			return nil, err
		}
		if err := s.progress.Update(ctx, progress); err != nil {
			if errors.Is(err, appErrors.ErrVersionConflict) {
				lastErr = err
				continue
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store promotion progress")
		}
		s.invalidate(ctx, userID, clubID)
		return progress, nil
	}
	return nil, appErrors.Wrap(lastErr, appErrors.ErrVersionConflict.Code, appErrors.ErrVersionConflict.Status, "promotion progress update kept losing the version race")
}

func (s *PromotionService) locateMission(p *models.PromotionProgress, levelNumber int, missionKey string) (*models.MissionProgress, error) {
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

func (s *PromotionService) invalidate(ctx context.Context, userID, clubID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, repository.ProgressCacheKey(userID, clubID)); err != nil {
		s.logger.Warn("progress cache invalidation failed", zap.Error(err))
	}
}

func activityCounters(kind models.ActivityKind) []string {
	switch kind {
	case models.ActivityAttendance:
		return []string{models.CounterAttendancesInClub, models.CounterAttendancesPlatform}
	case models.ActivityPhotoUpload:
		return []string{models.CounterPhotosUploadedInClub}
	case models.ActivityQRScan:
		return []string{models.CounterQRScansInClub}
	case models.ActivityFollow:
		return []string{models.CounterFollowedUsers}
	case models.ActivityStamp:
		return []string{models.CounterStampsInCurrentEvent}
	default:
		return nil
	}
}

func activityMissionType(kind models.ActivityKind) (models.MissionType, bool) {
	switch kind {
	case models.ActivityAttendance:
		return models.MissionAttendEvent, true
	case models.ActivityPhotoUpload:
		return models.MissionUploadPhoto, true
	case models.ActivityQRScan:
		return models.MissionScanQR, true
	case models.ActivityFollow:
		return models.MissionFollowUsers, true
	case models.ActivityStamp:
		return models.MissionCollectStamps, true
	case models.ActivityShare:
		return models.MissionShareLink, true
	default:
		return "", false
	}
}
