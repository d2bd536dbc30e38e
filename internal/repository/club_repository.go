package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/clubpulse/clubpulse-api/internal/models"
)

// ClubRepository handles persistence of clubs.
type ClubRepository struct {
	db *sqlx.DB
}

// NewClubRepository constructs the repository.
func NewClubRepository(db *sqlx.DB) *ClubRepository {
	return &ClubRepository{db: db}
}

const clubColumns = `id, name, slug, description, city, owner_id, followers_count, active, created_at, updated_at`

// FindByID returns a club by ID.
func (r *ClubRepository) FindByID(ctx context.Context, id string) (*models.Club, error) {
	query := fmt.Sprintf(`SELECT %s FROM clubs WHERE id = $1`, clubColumns)
	var club models.Club
	if err := r.db.GetContext(ctx, &club, query, id); err != nil {
		return nil, err
	}
	return &club, nil
}

// FindBySlug returns a club by its URL slug.
func (r *ClubRepository) FindBySlug(ctx context.Context, slug string) (*models.Club, error) {
	query := fmt.Sprintf(`SELECT %s FROM clubs WHERE slug = $1`, clubColumns)
	var club models.Club
	if err := r.db.GetContext(ctx, &club, query, slug); err != nil {
		return nil, err
	}
	return &club, nil
}

// Create persists a new club.
func (r *ClubRepository) Create(ctx context.Context, club *models.Club) error {
	if club.ID == "" {
		club.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	club.CreatedAt = now
	club.UpdatedAt = now
	const query = `INSERT INTO clubs (id, name, slug, description, city, owner_id, followers_count, active, created_at, updated_at)
        VALUES (:id, :name, :slug, :description, :city, :owner_id, :followers_count, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, club); err != nil {
		return fmt.Errorf("create club: %w", err)
	}
	return nil
}

// AdjustFollowers applies an atomic follower-count delta.
func (r *ClubRepository) AdjustFollowers(ctx context.Context, id string, delta int64) error {
	const query = `UPDATE clubs SET followers_count = GREATEST(followers_count + $2, 0), updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, delta, time.Now().UTC()); err != nil {
		return fmt.Errorf("adjust club followers: %w", err)
	}
	return nil
}
