package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/clubpulse/clubpulse-api/internal/models"
)

// EventRepository handles persistence of events.
type EventRepository struct {
	db *sqlx.DB
}

// NewEventRepository constructs the repository.
func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

// List returns events filtered by the provided criteria.
func (r *EventRepository) List(ctx context.Context, filter models.EventFilter) ([]models.EventDetail, int, error) {
	base := `FROM events e
LEFT JOIN clubs c ON c.id = e.club_id`
	var conditions []string
	var args []interface{}

	if filter.ClubID != "" {
		conditions = append(conditions, fmt.Sprintf("e.club_id = $%d", len(args)+1))
		args = append(args, filter.ClubID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.City != "" {
		conditions = append(conditions, fmt.Sprintf("c.city = $%d", len(args)+1))
		args = append(args, filter.City)
	}
	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("e.starts_at >= $%d", len(args)+1))
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("e.starts_at <= $%d", len(args)+1))
		args = append(args, *filter.To)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("e.name ILIKE $%d", len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"starts_at":  "e.starts_at",
		"name":       "e.name",
		"created_at": "e.created_at",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "e.starts_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
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

	query := fmt.Sprintf(`SELECT e.id, e.club_id, e.name, e.slug, e.description, e.venue, e.starts_at, e.ends_at,
        e.status, e.capacity, e.tickets_issued, e.price_cents, e.currency, e.created_at, e.updated_at,
        c.name AS club_name, c.slug AS club_slug
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var events []models.EventDetail
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list events: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}
	return events, total, nil
}

// FindByID returns an event by its ID.
func (r *EventRepository) FindByID(ctx context.Context, id string) (*models.Event, error) {
	const query = `SELECT id, club_id, name, slug, description, venue, starts_at, ends_at, status,
        capacity, tickets_issued, price_cents, currency, created_at, updated_at FROM events WHERE id = $1`
	var event models.Event
	if err := r.db.GetContext(ctx, &event, query, id); err != nil {
		return nil, err
	}
	return &event, nil
}

// Create persists a new event record.
func (r *EventRepository) Create(ctx context.Context, event *models.Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	event.CreatedAt = now
	event.UpdatedAt = now
	if event.Status == "" {
		event.Status = models.EventDraft
	}
	const query = `INSERT INTO events (id, club_id, name, slug, description, venue, starts_at, ends_at, status,
        capacity, tickets_issued, price_cents, currency, created_at, updated_at)
        VALUES (:id, :club_id, :name, :slug, :description, :venue, :starts_at, :ends_at, :status,
        :capacity, :tickets_issued, :price_cents, :currency, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	return nil
}

// Update rewrites the mutable event fields.
func (r *EventRepository) Update(ctx context.Context, event *models.Event) error {
	event.UpdatedAt = time.Now().UTC()
	const query = `UPDATE events SET name = :name, slug = :slug, description = :description, venue = :venue,
        starts_at = :starts_at, ends_at = :ends_at, capacity = :capacity, price_cents = :price_cents,
        currency = :currency, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	return nil
}

// UpdateStatus flips the publication status.
func (r *EventRepository) UpdateStatus(ctx context.Context, id string, status models.EventStatus) error {
	const query = `UPDATE events SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update event status: %w", err)
	}
	return nil
}

// ReserveCapacity atomically bumps tickets_issued while capacity holds.
// Zero rows affected means the event is sold out.
func (r *EventRepository) ReserveCapacity(ctx context.Context, id string, quantity int) (bool, error) {
	const query = `UPDATE events SET tickets_issued = tickets_issued + $2, updated_at = $3
        WHERE id = $1 AND (capacity = 0 OR tickets_issued + $2 <= capacity)`
	res, err := r.db.ExecContext(ctx, query, id, quantity, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("reserve event capacity: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reserve event capacity rows: %w", err)
	}
	return affected > 0, nil
}
