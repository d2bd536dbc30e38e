package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/clubpulse/clubpulse-api/internal/models"
	appErrors "github.com/clubpulse/clubpulse-api/pkg/errors"
)

// TemplateRepository handles persistence of promotion level templates.
type TemplateRepository struct {
	db *sqlx.DB
}

// NewTemplateRepository constructs the repository.
func NewTemplateRepository(db *sqlx.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

const templateColumns = `id, scope, club_id, level_number, title, description, missions, reward, active, version, created_at, updated_at`

// ListActiveByClub returns active club-scoped templates ordered by level.
func (r *TemplateRepository) ListActiveByClub(ctx context.Context, clubID string) ([]models.LevelTemplate, error) {
	query := fmt.Sprintf(`SELECT %s FROM promotion_level_templates
        WHERE scope = $1 AND club_id = $2 AND active = TRUE
        ORDER BY level_number ASC`, templateColumns)
	var templates []models.LevelTemplate
	if err := r.db.SelectContext(ctx, &templates, query, models.ScopeClub, clubID); err != nil {
		return nil, fmt.Errorf("list club templates: %w", err)
	}
	return templates, nil
}

// ListActiveGlobal returns the active global ladder ordered by level.
func (r *TemplateRepository) ListActiveGlobal(ctx context.Context) ([]models.LevelTemplate, error) {
	query := fmt.Sprintf(`SELECT %s FROM promotion_level_templates
        WHERE scope = $1 AND active = TRUE
        ORDER BY level_number ASC`, templateColumns)
	var templates []models.LevelTemplate
	if err := r.db.SelectContext(ctx, &templates, query, models.ScopeGlobal); err != nil {
		return nil, fmt.Errorf("list global templates: %w", err)
	}
	return templates, nil
}

// FindByID returns a template by its ID.
func (r *TemplateRepository) FindByID(ctx context.Context, id string) (*models.LevelTemplate, error) {
	query := fmt.Sprintf(`SELECT %s FROM promotion_level_templates WHERE id = $1`, templateColumns)
	var template models.LevelTemplate
	if err := r.db.GetContext(ctx, &template, query, id); err != nil {
		return nil, err
	}
	return &template, nil
}

// Create persists a new level template.
func (r *TemplateRepository) Create(ctx context.Context, template *models.LevelTemplate) error {
	if template.ID == "" {
		template.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if template.CreatedAt.IsZero() {
		template.CreatedAt = now
	}
	template.UpdatedAt = now
	if template.Version <= 0 {
		template.Version = 1
	}
	const query = `INSERT INTO promotion_level_templates
        (id, scope, club_id, level_number, title, description, missions, reward, active, version, created_at, updated_at)
        VALUES (:id, :scope, :club_id, :level_number, :title, :description, :missions, :reward, :active, :version, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, template); err != nil {
		if isUniqueViolation(err) {
			return appErrors.Clone(appErrors.ErrConflict, "active template already exists for this level")
		}
		return fmt.Errorf("create level template: %w", err)
	}
	return nil
}

// Deactivate retires a template version. Templates are immutable; edits
// deactivate the old row and insert a bumped version.
func (r *TemplateRepository) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE promotion_level_templates SET active = FALSE, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("deactivate level template: %w", err)
	}
	return nil
}
