package models

import "time"

// OrderStatus reflects the payment provider's view of an order.
type OrderStatus string

const (
	OrderPending  OrderStatus = "PENDING"
	OrderPaid     OrderStatus = "PAID"
	OrderFailed   OrderStatus = "FAILED"
	OrderRefunded OrderStatus = "REFUNDED"
)

// TicketOrder links a user's purchase intent to a payment reference.
type TicketOrder struct {
	ID          string      `db:"id" json:"id"`
	UserID      string      `db:"user_id" json:"user_id"`
	EventID     string      `db:"event_id" json:"event_id"`
	Quantity    int         `db:"quantity" json:"quantity"`
	AmountCents int64       `db:"amount_cents" json:"amount_cents"`
	Currency    string      `db:"currency" json:"currency"`
	PaymentRef  string      `db:"payment_ref" json:"payment_ref"`
	Status      OrderStatus `db:"status" json:"status"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updated_at"`
}

// TicketStatus reflects an issued ticket's lifecycle.
type TicketStatus string

const (
	TicketIssued   TicketStatus = "ISSUED"
	TicketRedeemed TicketStatus = "REDEEMED"
	TicketVoided   TicketStatus = "VOIDED"
)

// Ticket is one admission credential issued against a paid order.
type Ticket struct {
	ID         string       `db:"id" json:"id"`
	OrderID    string       `db:"order_id" json:"order_id"`
	UserID     string       `db:"user_id" json:"user_id"`
	EventID    string       `db:"event_id" json:"event_id"`
	Code       string       `db:"code" json:"code"`
	Tier       string       `db:"tier" json:"tier"`
	Status     TicketStatus `db:"status" json:"status"`
	IssuedAt   time.Time    `db:"issued_at" json:"issued_at"`
	RedeemedAt *time.Time   `db:"redeemed_at" json:"redeemed_at,omitempty"`
}

// PaymentWebhook is the already-verified payload handed over by the
// payment provider integration. Signature checking happens upstream.
type PaymentWebhook struct {
	PaymentRef  string    `json:"payment_ref" validate:"required"`
	EventType   string    `json:"event_type" validate:"required,oneof=payment.succeeded payment.failed payment.refunded"`
	AmountCents int64     `json:"amount_cents"`
	Currency    string    `json:"currency"`
	OccurredAt  time.Time `json:"occurred_at"`
}
