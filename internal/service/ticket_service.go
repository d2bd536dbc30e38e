package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clubpulse/clubpulse-api/internal/models"
	"github.com/clubpulse/clubpulse-api/pkg/config"
	appErrors "github.com/clubpulse/clubpulse-api/pkg/errors"
	"github.com/clubpulse/clubpulse-api/pkg/export"
	"github.com/clubpulse/clubpulse-api/pkg/jobs"
)

type ticketRepository interface {
	CreateOrder(ctx context.Context, order *models.TicketOrder) error
	FindOrderByID(ctx context.Context, id string) (*models.TicketOrder, error)
	FindOrderByPaymentRef(ctx context.Context, paymentRef string) (*models.TicketOrder, error)
	UpdateOrderStatus(ctx context.Context, id string, from, to models.OrderStatus) (bool, error)
	CreateTicket(ctx context.Context, ticket *models.Ticket) error
	ListByUser(ctx context.Context, userID string) ([]models.Ticket, error)
	FindTicketByID(ctx context.Context, id string) (*models.Ticket, error)
	ListByOrder(ctx context.Context, orderID string) ([]models.Ticket, error)
	MarkRedeemed(ctx context.Context, id string, at time.Time) (bool, error)
}

type ticketEventStore interface {
	FindByID(ctx context.Context, id string) (*models.Event, error)
	ReserveCapacity(ctx context.Context, id string, quantity int) (bool, error)
}

type ticketUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type ticketClubReader interface {
	FindByID(ctx context.Context, id string) (*models.Club, error)
}

type attendanceRecorder interface {
	RecordActivity(ctx context.Context, userID, clubID string, kind models.ActivityKind, eventID *string) (*models.PromotionProgress, error)
}

type ticketRenderer interface {
	Render(doc export.TicketDocument) ([]byte, error)
}

type ticketMetrics interface {
	RecordTicketsIssued(n int)
}

// CreateOrderRequest starts a ticket purchase against a published event.
type CreateOrderRequest struct {
	EventID    string `json:"event_id" validate:"required,uuid4"`
	Quantity   int    `json:"quantity" validate:"required,min=1,max=10"`
	PaymentRef string `json:"payment_ref" validate:"required"`
}

// TicketService owns the purchase flow: orders, payment webhooks,
// asynchronous ticket issuance and PDF export.
type TicketService struct {
	repo      ticketRepository
	events    ticketEventStore
	users     ticketUserReader
	clubs     ticketClubReader
	engine    attendanceRecorder
	renderer  ticketRenderer
	metrics   ticketMetrics
	queue     *jobs.Queue[string]
	cfg       config.TicketsConfig
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTicketService constructs TicketService. The issuance queue is
// created here and must be started by the caller. engine and metrics
// may be nil.
func NewTicketService(repo ticketRepository, events ticketEventStore, users ticketUserReader, clubs ticketClubReader, engine attendanceRecorder, renderer ticketRenderer, metrics ticketMetrics, cfg config.TicketsConfig, validate *validator.Validate, logger *zap.Logger) *TicketService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &TicketService{
		repo:      repo,
		events:    events,
		users:     users,
		clubs:     clubs,
		engine:    engine,
		renderer:  renderer,
		metrics:   metrics,
		cfg:       cfg,
		validator: validate,
		logger:    logger,
	}
	s.queue = jobs.New("ticket-issuance", s.IssueTickets, jobs.Options{
		Workers:     cfg.WorkerConcurrency,
		MaxAttempts: cfg.WorkerRetries,
		Logger:      logger,
	})
	return s
}

// Queue exposes the issuance queue for lifecycle wiring.
func (s *TicketService) Queue() *jobs.Queue[string] {
	return s.queue
}

// CreateOrder records a purchase intent. Payment happens out of band;
// the webhook settles the order.
func (s *TicketService) CreateOrder(ctx context.Context, userID string, req CreateOrderRequest) (*models.TicketOrder, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid order payload")
	}

	event, err := s.events.FindByID(ctx, req.EventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load event")
	}
	if event.Status != models.EventPublished {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "event is not open for sales")
	}
	if event.Capacity > 0 && event.TicketsIssued+req.Quantity > event.Capacity {
		return nil, appErrors.Clone(appErrors.ErrConflict, "event is sold out")
	}

	order := &models.TicketOrder{
		UserID:      userID,
		EventID:     req.EventID,
		Quantity:    req.Quantity,
		AmountCents: event.PriceCents * int64(req.Quantity),
		Currency:    event.Currency,
		PaymentRef:  req.PaymentRef,
		Status:      models.OrderPending,
	}
	if err := s.repo.CreateOrder(ctx, order); err != nil {
		return nil, err
	}

	s.logger.Info("ticket order created",
		zap.String("order_id", order.ID),
		zap.String("event_id", order.EventID),
		zap.Int("quantity", order.Quantity))
	return order, nil
}

// HandlePaymentWebhook settles an order from an already-verified
// provider notification. Status transitions are guarded so replayed
// webhooks are no-ops.
func (s *TicketService) HandlePaymentWebhook(ctx context.Context, payload models.PaymentWebhook) error {
	if err := s.validator.Struct(payload); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid webhook payload")
	}

	order, err := s.repo.FindOrderByPaymentRef(ctx, payload.PaymentRef)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "order not found for payment reference")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load order")
	}

	switch payload.EventType {
	case "payment.succeeded":
		return s.settlePaid(ctx, order)
	case "payment.failed":
		moved, err := s.repo.UpdateOrderStatus(ctx, order.ID, models.OrderPending, models.OrderFailed)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark order failed")
		}
		if !moved {
			s.logger.Info("webhook replay ignored", zap.String("order_id", order.ID))
		}
		return nil
	case "payment.refunded":
		moved, err := s.repo.UpdateOrderStatus(ctx, order.ID, models.OrderPaid, models.OrderRefunded)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark order refunded")
		}
		if !moved {
			s.logger.Info("webhook replay ignored", zap.String("order_id", order.ID))
		}
		return nil
	default:
		return appErrors.Clone(appErrors.ErrValidation, "unknown webhook event type")
	}
}

func (s *TicketService) settlePaid(ctx context.Context, order *models.TicketOrder) error {
	moved, err := s.repo.UpdateOrderStatus(ctx, order.ID, models.OrderPending, models.OrderPaid)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark order paid")
	}
	if !moved {
		s.logger.Info("webhook replay ignored", zap.String("order_id", order.ID))
		return nil
	}

	reserved, err := s.events.ReserveCapacity(ctx, order.EventID, order.Quantity)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reserve capacity")
	}
	if !reserved {
		// Paid but sold out between order and settlement; refund path is
		// manual for now and the order stays visible to support.
		if _, err := s.repo.UpdateOrderStatus(ctx, order.ID, models.OrderPaid, models.OrderRefunded); err != nil {
			s.logger.Error("failed to refund oversold order",
				zap.String("order_id", order.ID), zap.Error(err))
		}
		return appErrors.Clone(appErrors.ErrConflict, "event sold out before settlement")
	}

	if err := s.queue.Submit(order.ID); err != nil {
		s.logger.Error("failed to enqueue ticket issuance",
			zap.String("order_id", order.ID), zap.Error(err))
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to schedule ticket issuance")
	}
	return nil
}

// IssueTickets mints the tickets for a paid order. Safe to retry: a
// partially issued order only mints the missing remainder.
func (s *TicketService) IssueTickets(ctx context.Context, orderID string) error {
	order, err := s.repo.FindOrderByID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("load order %s: %w", orderID, err)
	}
	if order.Status != models.OrderPaid {
		return fmt.Errorf("order %s is %s, not paid", orderID, order.Status)
	}

	existing, err := s.repo.ListByOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("list tickets for order: %w", err)
	}

	for i := len(existing); i < order.Quantity; i++ {
		ticket := &models.Ticket{
			OrderID:  orderID,
			UserID:   order.UserID,
			EventID:  order.EventID,
			Code:     ticketCode(),
			Tier:     "GENERAL",
			Status:   models.TicketIssued,
			IssuedAt: time.Now().UTC(),
		}
		if err := s.repo.CreateTicket(ctx, ticket); err != nil {
			return fmt.Errorf("create ticket %d of %d: %w", i+1, order.Quantity, err)
		}
	}

	if err := s.users.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &order.UserID,
		Action:     models.AuditActionTicketIssue,
		Resource:   "tickets",
		ResourceID: &orderID,
		NewValues:  []byte(fmt.Sprintf(`{"quantity":%d}`, order.Quantity)),
	}); err != nil {
		s.logger.Warn("audit log write failed", zap.Error(err))
	}

	if s.metrics != nil {
		s.metrics.RecordTicketsIssued(order.Quantity - len(existing))
	}
	s.logger.Info("tickets issued",
		zap.String("order_id", orderID),
		zap.Int("quantity", order.Quantity))
	return nil
}

// Redeem marks a ticket used at the door and records the attendance in
// the holder's promotion ladder.
func (s *TicketService) Redeem(ctx context.Context, ticketID string) (*models.Ticket, error) {
	ticket, err := s.findTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status != models.TicketIssued {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "ticket is not redeemable")
	}

	event, err := s.events.FindByID(ctx, ticket.EventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load event")
	}

	now := time.Now().UTC()
	redeemed, err := s.repo.MarkRedeemed(ctx, ticket.ID, now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to redeem ticket")
	}
	if !redeemed {
		return nil, appErrors.Clone(appErrors.ErrConflict, "ticket already redeemed")
	}
	ticket.Status = models.TicketRedeemed
	ticket.RedeemedAt = &now

	if s.engine != nil {
		if _, err := s.engine.RecordActivity(ctx, ticket.UserID, event.ClubID, models.ActivityAttendance, &ticket.EventID); err != nil {
			s.logger.Warn("attendance activity not recorded",
				zap.String("ticket_id", ticket.ID), zap.Error(err))
		}
	}
	return ticket, nil
}

// ListByUser returns the caller's tickets.
func (s *TicketService) ListByUser(ctx context.Context, userID string) ([]models.Ticket, error) {
	tickets, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list tickets")
	}
	return tickets, nil
}

// RenderPDF produces the printable PDF for a ticket the caller owns.
func (s *TicketService) RenderPDF(ctx context.Context, userID, ticketID string) ([]byte, error) {
	ticket, err := s.findTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.UserID != userID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "ticket belongs to another user")
	}

	event, err := s.events.FindByID(ctx, ticket.EventID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load event")
	}
	club, err := s.clubs.FindByID(ctx, event.ClubID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load club")
	}
	user, err := s.users.FindByID(ctx, ticket.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	doc := export.TicketDocument{
		IssuerName:   s.cfg.IssuerName,
		EventName:    event.Name,
		ClubName:     club.Name,
		AttendeeName: user.DisplayName,
		TicketCode:   ticket.Code,
		Tier:         ticket.Tier,
		PriceLabel:   priceLabel(event.PriceCents, event.Currency),
		EventStarts:  event.StartsAt,
		IssuedAt:     ticket.IssuedAt,
	}
	data, err := s.renderer.Render(doc)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render ticket")
	}
	return data, nil
}

func (s *TicketService) findTicket(ctx context.Context, ticketID string) (*models.Ticket, error) {
	ticket, err := s.repo.FindTicketByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "ticket not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load ticket")
	}
	return ticket, nil
}

func ticketCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}

func priceLabel(cents int64, currency string) string {
	return fmt.Sprintf("%.2f %s", float64(cents)/100, strings.ToUpper(currency))
}
