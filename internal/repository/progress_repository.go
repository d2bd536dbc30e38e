package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/clubpulse/clubpulse-api/internal/models"
	appErrors "github.com/clubpulse/clubpulse-api/pkg/errors"
)

// ProgressRepository handles persistence of the per-(user,club)
// promotion progress aggregate.
type ProgressRepository struct {
	db *sqlx.DB
}

// NewProgressRepository constructs the repository.
func NewProgressRepository(db *sqlx.DB) *ProgressRepository {
	return &ProgressRepository{db: db}
}

const progressColumns = `id, user_id, club_id, current_level, current_progress, current_reward_title, status,
        levels, counters, pending_claims_count, last_event_id, last_activity_at, version, created_at, updated_at`

// FindByUserAndClub returns the aggregate for a pair, or sql.ErrNoRows.
func (r *ProgressRepository) FindByUserAndClub(ctx context.Context, userID, clubID string) (*models.PromotionProgress, error) {
	query := fmt.Sprintf(`SELECT %s FROM user_club_promotions WHERE user_id = $1 AND club_id = $2`, progressColumns)
	var progress models.PromotionProgress
	if err := r.db.GetContext(ctx, &progress, query, userID, clubID); err != nil {
		return nil, err
	}
	return &progress, nil
}

// Insert persists a freshly materialized aggregate. A concurrent
// first-touch race loses on the (user_id, club_id) unique index and is
// reported as a conflict so callers can retry as a read.
func (r *ProgressRepository) Insert(ctx context.Context, progress *models.PromotionProgress) error {
	if progress.ID == "" {
		progress.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	progress.CreatedAt = now
	progress.UpdatedAt = now
	if progress.Version <= 0 {
		progress.Version = 1
	}
	const query = `INSERT INTO user_club_promotions
        (id, user_id, club_id, current_level, current_progress, current_reward_title, status,
         levels, counters, pending_claims_count, last_event_id, last_activity_at, version, created_at, updated_at)
        VALUES (:id, :user_id, :club_id, :current_level, :current_progress, :current_reward_title, :status,
         :levels, :counters, :pending_claims_count, :last_event_id, :last_activity_at, :version, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, progress); err != nil {
		if isUniqueViolation(err) {
			return appErrors.Clone(appErrors.ErrConflict, "progress already exists for user and club")
		}
		return fmt.Errorf("insert promotion progress: %w", err)
	}
	return nil
}

// Update writes the whole aggregate guarded by its version. Zero rows
// affected means another writer won the race; callers re-read and retry.
func (r *ProgressRepository) Update(ctx context.Context, progress *models.PromotionProgress) error {
	expected := progress.Version
	progress.Version = expected + 1
	progress.UpdatedAt = time.Now().UTC()
	const query = `UPDATE user_club_promotions SET
        current_level = :current_level,
        current_progress = :current_progress,
        current_reward_title = :current_reward_title,
        status = :status,
        levels = :levels,
        counters = :counters,
        pending_claims_count = :pending_claims_count,
        last_event_id = :last_event_id,
        last_activity_at = :last_activity_at,
        version = :version,
        updated_at = :updated_at
        WHERE id = :id AND version = :expected_version`
	arg := struct {
		models.PromotionProgress
		ExpectedVersion int64 `db:"expected_version"`
	}{PromotionProgress: *progress, ExpectedVersion: expected}

	res, err := r.db.NamedExecContext(ctx, query, arg)
	if err != nil {
		progress.Version = expected
		return fmt.Errorf("update promotion progress: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		progress.Version = expected
		return fmt.Errorf("update promotion progress rows: %w", err)
	}
	if affected == 0 {
		progress.Version = expected
		return appErrors.ErrVersionConflict
	}
	return nil
}

// SetPendingClaimsCount writes a recounted pending-claims total without
// touching the rest of the aggregate.
func (r *ProgressRepository) SetPendingClaimsCount(ctx context.Context, userID, clubID string, count int) error {
	const query = `UPDATE user_club_promotions SET pending_claims_count = $3, updated_at = $4
        WHERE user_id = $1 AND club_id = $2`
	if _, err := r.db.ExecContext(ctx, query, userID, clubID, count, time.Now().UTC()); err != nil {
		return fmt.Errorf("set pending claims count: %w", err)
	}
	return nil
}

// ListPairsWithPendingClaims returns (user, club) pairs whose cached
// pending count is non-zero, for the periodic reconciliation sweep.
func (r *ProgressRepository) ListPairsWithPendingClaims(ctx context.Context) ([]models.PromotionProgress, error) {
	const query = `SELECT id, user_id, club_id, pending_claims_count, version, created_at, updated_at
        FROM user_club_promotions WHERE pending_claims_count > 0`
	var rows []models.PromotionProgress
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list pending claim pairs: %w", err)
	}
	return rows, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "23505"
}
