package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/clubpulse/clubpulse-api/internal/models"
	appErrors "github.com/clubpulse/clubpulse-api/pkg/errors"
)

// ClaimRepository handles persistence of promotion claims.
type ClaimRepository struct {
	db *sqlx.DB
}

// NewClaimRepository constructs the repository.
func NewClaimRepository(db *sqlx.DB) *ClaimRepository {
	return &ClaimRepository{db: db}
}

const claimColumns = `id, user_id, club_id, event_id, level_number, mission_type, mission_key, status,
        evidence, user_note, reviewed_by, reviewed_at, review_note, reward_granted, reward_granted_at,
        ip_address, user_agent, created_at, updated_at`

// Create persists a new claim. The partial unique index on
// (user_id, club_id, level_number, mission_key) WHERE status='pending'
// rejects a second pending claim for the same slot; that violation is
// surfaced as a duplicate-claim conflict, not a fatal error.
func (r *ClaimRepository) Create(ctx context.Context, claim *models.PromotionClaim) error {
	if claim.ID == "" {
		claim.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	claim.CreatedAt = now
	claim.UpdatedAt = now
	if claim.Status == "" {
		claim.Status = models.ClaimPending
	}
	const query = `INSERT INTO promotion_claims
        (id, user_id, club_id, event_id, level_number, mission_type, mission_key, status,
         evidence, user_note, reviewed_by, reviewed_at, review_note, reward_granted, reward_granted_at,
         ip_address, user_agent, created_at, updated_at)
        VALUES (:id, :user_id, :club_id, :event_id, :level_number, :mission_type, :mission_key, :status,
         :evidence, :user_note, :reviewed_by, :reviewed_at, :review_note, :reward_granted, :reward_granted_at,
         :ip_address, :user_agent, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, claim); err != nil {
		if isUniqueViolation(err) {
			return appErrors.ErrDuplicateClaim
		}
		return fmt.Errorf("create claim: %w", err)
	}
	return nil
}

// FindByID returns a claim by its ID.
func (r *ClaimRepository) FindByID(ctx context.Context, id string) (*models.PromotionClaim, error) {
	query := fmt.Sprintf(`SELECT %s FROM promotion_claims WHERE id = $1`, claimColumns)
	var claim models.PromotionClaim
	if err := r.db.GetContext(ctx, &claim, query, id); err != nil {
		return nil, err
	}
	return &claim, nil
}

// List returns claims matching the filter with a total count.
func (r *ClaimRepository) List(ctx context.Context, filter models.ClaimFilter) ([]models.PromotionClaim, int, error) {
	var conditions []string
	var args []interface{}

	if filter.UserID != "" {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)+1))
		args = append(args, filter.UserID)
	}
	if filter.ClubID != "" {
		conditions = append(conditions, fmt.Sprintf("club_id = $%d", len(args)+1))
		args = append(args, filter.ClubID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s FROM promotion_claims%s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		claimColumns, clause, size, offset)
	var claims []models.PromotionClaim
	if err := r.db.SelectContext(ctx, &claims, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list claims: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM promotion_claims%s", clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count claims: %w", err)
	}
	return claims, total, nil
}

// CountPending recounts pending claims for a (user, club) pair. Full
// recount rather than increment/decrement: immune to double-counting,
// and the table is bounded by missions per user per club.
func (r *ClaimRepository) CountPending(ctx context.Context, userID, clubID string) (int, error) {
	const query = `SELECT COUNT(*) FROM promotion_claims WHERE user_id = $1 AND club_id = $2 AND status = $3`
	var count int
	if err := r.db.GetContext(ctx, &count, query, userID, clubID, models.ClaimPending); err != nil {
		return 0, fmt.Errorf("count pending claims: %w", err)
	}
	return count, nil
}

// Resolve transitions a pending claim into a terminal review state. The
// status guard in the WHERE clause keeps resolved claims immutable.
func (r *ClaimRepository) Resolve(ctx context.Context, claim *models.PromotionClaim) error {
	claim.UpdatedAt = time.Now().UTC()
	const query = `UPDATE promotion_claims SET
        status = :status,
        reviewed_by = :reviewed_by,
        reviewed_at = :reviewed_at,
        review_note = :review_note,
        reward_granted = :reward_granted,
        reward_granted_at = :reward_granted_at,
        updated_at = :updated_at
        WHERE id = :id AND status = 'pending'`
	res, err := r.db.NamedExecContext(ctx, query, claim)
	if err != nil {
		return fmt.Errorf("resolve claim: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolve claim rows: %w", err)
	}
	if affected == 0 {
		return appErrors.ErrClaimResolved
	}
	return nil
}

// MarkRewardGranted records reward bookkeeping on a resolved claim.
func (r *ClaimRepository) MarkRewardGranted(ctx context.Context, id string, grantedAt time.Time) error {
	const query = `UPDATE promotion_claims SET reward_granted = TRUE, reward_granted_at = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, grantedAt, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark reward granted: %w", err)
	}
	return nil
}
