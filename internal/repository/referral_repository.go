package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/clubpulse/clubpulse-api/internal/models"
)

// ReferralRepository handles persistence of share links.
type ReferralRepository struct {
	db *sqlx.DB
}

// NewReferralRepository constructs the repository.
func NewReferralRepository(db *sqlx.DB) *ReferralRepository {
	return &ReferralRepository{db: db}
}

const shareLinkColumns = `id, code, user_id, club_id, event_id, target_url, click_count, signup_count, active, last_click_at, created_at`

// Create persists a new share link.
func (r *ReferralRepository) Create(ctx context.Context, link *models.ShareLink) error {
	if link.ID == "" {
		link.ID = uuid.NewString()
	}
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO share_links (id, code, user_id, club_id, event_id, target_url, click_count, signup_count, active, created_at)
        VALUES (:id, :code, :user_id, :club_id, :event_id, :target_url, :click_count, :signup_count, :active, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, link); err != nil {
		return fmt.Errorf("create share link: %w", err)
	}
	return nil
}

// FindByCode returns a share link by its public code.
func (r *ReferralRepository) FindByCode(ctx context.Context, code string) (*models.ShareLink, error) {
	query := fmt.Sprintf(`SELECT %s FROM share_links WHERE code = $1`, shareLinkColumns)
	var link models.ShareLink
	if err := r.db.GetContext(ctx, &link, query, code); err != nil {
		return nil, err
	}
	return &link, nil
}

// ListByUser returns a user's share links, newest first.
func (r *ReferralRepository) ListByUser(ctx context.Context, userID string) ([]models.ShareLink, error) {
	query := fmt.Sprintf(`SELECT %s FROM share_links WHERE user_id = $1 ORDER BY created_at DESC`, shareLinkColumns)
	var links []models.ShareLink
	if err := r.db.SelectContext(ctx, &links, query, userID); err != nil {
		return nil, fmt.Errorf("list share links: %w", err)
	}
	return links, nil
}

// RegisterClick applies an atomic click increment; no read-modify-write.
func (r *ReferralRepository) RegisterClick(ctx context.Context, code string) error {
	const query = `UPDATE share_links SET click_count = click_count + 1, last_click_at = $2 WHERE code = $1 AND active = TRUE`
	if _, err := r.db.ExecContext(ctx, query, code, time.Now().UTC()); err != nil {
		return fmt.Errorf("register share link click: %w", err)
	}
	return nil
}

// RegisterSignup attributes a completed registration to the link.
func (r *ReferralRepository) RegisterSignup(ctx context.Context, code string) error {
	const query = `UPDATE share_links SET signup_count = signup_count + 1 WHERE code = $1`
	if _, err := r.db.ExecContext(ctx, query, code); err != nil {
		return fmt.Errorf("register share link signup: %w", err)
	}
	return nil
}
