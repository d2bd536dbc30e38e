package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/clubpulse/clubpulse-api/internal/models"
)

// TicketRepository handles persistence of ticket orders and tickets.
type TicketRepository struct {
	db *sqlx.DB
}

// NewTicketRepository constructs the repository.
func NewTicketRepository(db *sqlx.DB) *TicketRepository {
	return &TicketRepository{db: db}
}

// CreateOrder persists a purchase intent awaiting payment.
func (r *TicketRepository) CreateOrder(ctx context.Context, order *models.TicketOrder) error {
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	order.CreatedAt = now
	order.UpdatedAt = now
	if order.Status == "" {
		order.Status = models.OrderPending
	}
	const query = `INSERT INTO ticket_orders (id, user_id, event_id, quantity, amount_cents, currency, payment_ref, status, created_at, updated_at)
        VALUES (:id, :user_id, :event_id, :quantity, :amount_cents, :currency, :payment_ref, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, order); err != nil {
		return fmt.Errorf("create ticket order: %w", err)
	}
	return nil
}

// FindOrderByPaymentRef resolves a webhook's payment reference.
func (r *TicketRepository) FindOrderByPaymentRef(ctx context.Context, paymentRef string) (*models.TicketOrder, error) {
	const query = `SELECT id, user_id, event_id, quantity, amount_cents, currency, payment_ref, status, created_at, updated_at
        FROM ticket_orders WHERE payment_ref = $1`
	var order models.TicketOrder
	if err := r.db.GetContext(ctx, &order, query, paymentRef); err != nil {
		return nil, err
	}
	return &order, nil
}

// FindOrderByID returns an order by its primary key.
func (r *TicketRepository) FindOrderByID(ctx context.Context, id string) (*models.TicketOrder, error) {
	const query = `SELECT id, user_id, event_id, quantity, amount_cents, currency, payment_ref, status, created_at, updated_at
        FROM ticket_orders WHERE id = $1`
	var order models.TicketOrder
	if err := r.db.GetContext(ctx, &order, query, id); err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateOrderStatus transitions an order. The status guard makes webhook
// redelivery idempotent: only pending orders move.
func (r *TicketRepository) UpdateOrderStatus(ctx context.Context, id string, from, to models.OrderStatus) (bool, error) {
	const query = `UPDATE ticket_orders SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`
	res, err := r.db.ExecContext(ctx, query, id, from, to, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("update order status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update order status rows: %w", err)
	}
	return affected > 0, nil
}

// CreateTicket persists an issued ticket.
func (r *TicketRepository) CreateTicket(ctx context.Context, ticket *models.Ticket) error {
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	if ticket.IssuedAt.IsZero() {
		ticket.IssuedAt = time.Now().UTC()
	}
	if ticket.Status == "" {
		ticket.Status = models.TicketIssued
	}
	const query = `INSERT INTO tickets (id, order_id, user_id, event_id, code, tier, status, issued_at)
        VALUES (:id, :order_id, :user_id, :event_id, :code, :tier, :status, :issued_at)`
	if _, err := r.db.NamedExecContext(ctx, query, ticket); err != nil {
		return fmt.Errorf("create ticket: %w", err)
	}
	return nil
}

// ListByUser returns a user's tickets, newest first.
func (r *TicketRepository) ListByUser(ctx context.Context, userID string) ([]models.Ticket, error) {
	const query = `SELECT id, order_id, user_id, event_id, code, tier, status, issued_at, redeemed_at
        FROM tickets WHERE user_id = $1 ORDER BY issued_at DESC`
	var tickets []models.Ticket
	if err := r.db.SelectContext(ctx, &tickets, query, userID); err != nil {
		return nil, fmt.Errorf("list user tickets: %w", err)
	}
	return tickets, nil
}

// FindTicketByID returns a ticket by ID.
func (r *TicketRepository) FindTicketByID(ctx context.Context, id string) (*models.Ticket, error) {
	const query = `SELECT id, order_id, user_id, event_id, code, tier, status, issued_at, redeemed_at
        FROM tickets WHERE id = $1`
	var ticket models.Ticket
	if err := r.db.GetContext(ctx, &ticket, query, id); err != nil {
		return nil, err
	}
	return &ticket, nil
}

// MarkRedeemed stamps a ticket as used at the door. The status guard
// keeps double scans from redeeming twice.
func (r *TicketRepository) MarkRedeemed(ctx context.Context, id string, at time.Time) (bool, error) {
	const query = `UPDATE tickets SET status = $2, redeemed_at = $3 WHERE id = $1 AND status = $4`
	res, err := r.db.ExecContext(ctx, query, id, models.TicketRedeemed, at, models.TicketIssued)
	if err != nil {
		return false, fmt.Errorf("mark ticket redeemed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark ticket redeemed rows: %w", err)
	}
	return affected > 0, nil
}

// ListByOrder returns the tickets issued against an order.
func (r *TicketRepository) ListByOrder(ctx context.Context, orderID string) ([]models.Ticket, error) {
	const query = `SELECT id, order_id, user_id, event_id, code, tier, status, issued_at, redeemed_at
        FROM tickets WHERE order_id = $1 ORDER BY issued_at ASC`
	var tickets []models.Ticket
	if err := r.db.SelectContext(ctx, &tickets, query, orderID); err != nil {
		return nil, fmt.Errorf("list order tickets: %w", err)
	}
	return tickets, nil
}
