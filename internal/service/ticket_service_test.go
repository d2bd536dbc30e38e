package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/clubpulse/clubpulse-api/internal/models"
	"github.com/clubpulse/clubpulse-api/pkg/config"
	appErrors "github.com/clubpulse/clubpulse-api/pkg/errors"
	"github.com/clubpulse/clubpulse-api/pkg/export"
)

const testEventID = "8ab4f2c1-7d2e-4b6a-9f3d-5e6a7b8c9d0e"

type mockTicketRepo struct {
	orders   map[string]*models.TicketOrder
	tickets  map[string]*models.Ticket
	byRef    map[string]string
	seq      int
	statuses []string
}

func newMockTicketRepo() *mockTicketRepo {
	return &mockTicketRepo{
		orders:  make(map[string]*models.TicketOrder),
		tickets: make(map[string]*models.Ticket),
		byRef:   make(map[string]string),
	}
}

func (m *mockTicketRepo) CreateOrder(ctx context.Context, order *models.TicketOrder) error {
	m.seq++
	order.ID = fmt.Sprintf("order-%d", m.seq)
	order.CreatedAt = time.Now().UTC()
	cp := *order
	m.orders[order.ID] = &cp
	m.byRef[order.PaymentRef] = order.ID
	return nil
}

func (m *mockTicketRepo) FindOrderByID(ctx context.Context, id string) (*models.TicketOrder, error) {
	if order, ok := m.orders[id]; ok {
		cp := *order
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockTicketRepo) FindOrderByPaymentRef(ctx context.Context, paymentRef string) (*models.TicketOrder, error) {
	if id, ok := m.byRef[paymentRef]; ok {
		return m.FindOrderByID(ctx, id)
	}
	return nil, sql.ErrNoRows
}

func (m *mockTicketRepo) UpdateOrderStatus(ctx context.Context, id string, from, to models.OrderStatus) (bool, error) {
	order, ok := m.orders[id]
	if !ok || order.Status != from {
		return false, nil
	}
	order.Status = to
	m.statuses = append(m.statuses, fmt.Sprintf("%s:%s->%s", id, from, to))
	return true, nil
}

func (m *mockTicketRepo) CreateTicket(ctx context.Context, ticket *models.Ticket) error {
	m.seq++
	ticket.ID = fmt.Sprintf("ticket-%d", m.seq)
	cp := *ticket
	m.tickets[ticket.ID] = &cp
	return nil
}

func (m *mockTicketRepo) ListByUser(ctx context.Context, userID string) ([]models.Ticket, error) {
	var result []models.Ticket
	for _, ticket := range m.tickets {
		if ticket.UserID == userID {
			result = append(result, *ticket)
		}
	}
	return result, nil
}

func (m *mockTicketRepo) FindTicketByID(ctx context.Context, id string) (*models.Ticket, error) {
	if ticket, ok := m.tickets[id]; ok {
		cp := *ticket
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockTicketRepo) ListByOrder(ctx context.Context, orderID string) ([]models.Ticket, error) {
	var result []models.Ticket
	for _, ticket := range m.tickets {
		if ticket.OrderID == orderID {
			result = append(result, *ticket)
		}
	}
	return result, nil
}

func (m *mockTicketRepo) MarkRedeemed(ctx context.Context, id string, at time.Time) (bool, error) {
	ticket, ok := m.tickets[id]
	if !ok || ticket.Status != models.TicketIssued {
		return false, nil
	}
	ticket.Status = models.TicketRedeemed
	ticket.RedeemedAt = &at
	return true, nil
}

type mockEventStore struct {
	events map[string]*models.Event
}

func (m *mockEventStore) FindByID(ctx context.Context, id string) (*models.Event, error) {
	if event, ok := m.events[id]; ok {
		cp := *event
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEventStore) ReserveCapacity(ctx context.Context, id string, quantity int) (bool, error) {
	event, ok := m.events[id]
	if !ok {
		return false, sql.ErrNoRows
	}
	if event.Capacity > 0 && event.TicketsIssued+quantity > event.Capacity {
		return false, nil
	}
	event.TicketsIssued += quantity
	return true, nil
}

type mockAttendanceRecorder struct {
	calls []string
	err   error
}

func (m *mockAttendanceRecorder) RecordActivity(ctx context.Context, userID, clubID string, kind models.ActivityKind, eventID *string) (*models.PromotionProgress, error) {
	m.calls = append(m.calls, fmt.Sprintf("%s:%s:%s", userID, clubID, kind))
	if m.err != nil {
		return nil, m.err
	}
	return &models.PromotionProgress{}, nil
}

type stubRenderer struct{}

func (stubRenderer) Render(doc export.TicketDocument) ([]byte, error) {
	return []byte("%PDF-" + doc.TicketCode), nil
}

type ticketFixture struct {
	repo    *mockTicketRepo
	events  *mockEventStore
	engine  *mockAttendanceRecorder
	users   *mockAuthRepo
	service *TicketService
}

func newTicketFixture(t *testing.T) *ticketFixture {
	t.Helper()
	repo := newMockTicketRepo()
	events := &mockEventStore{events: map[string]*models.Event{
		testEventID: {
			ID:         testEventID,
			ClubID:     testClubID,
			Name:       "Warehouse Rave",
			Slug:       "warehouse-rave-2026-09-05",
			Status:     models.EventPublished,
			Capacity:   100,
			PriceCents: 2500,
			Currency:   "EUR",
			StartsAt:   time.Now().Add(72 * time.Hour),
		},
	}}
	engine := &mockAttendanceRecorder{}
	users := newMockAuthRepo()
	users.addUser(&models.User{ID: "u1", Email: "owl@example.com", DisplayName: "Night Owl", Active: true})
	clubs := &mockClubReader{clubs: map[string]*models.Club{
		testClubID: {ID: testClubID, Name: "Klub Verknipt", Active: true},
	}}

	svc := NewTicketService(repo, events, users, clubs, engine, stubRenderer{}, nil,
		config.TicketsConfig{IssuerName: "ClubPulse", WorkerConcurrency: 1},
		validator.New(), zap.NewNop())
	return &ticketFixture{repo: repo, events: events, engine: engine, users: users, service: svc}
}

func (f *ticketFixture) placeOrder(t *testing.T, quantity int, paymentRef string) *models.TicketOrder {
	t.Helper()
	order, err := f.service.CreateOrder(context.Background(), "u1", CreateOrderRequest{
		EventID:    testEventID,
		Quantity:   quantity,
		PaymentRef: paymentRef,
	})
	require.NoError(t, err)
	return order
}

// drainQueue processes the issuance jobs inline; the worker pool is not
// started in tests.
func (f *ticketFixture) settleAndIssue(t *testing.T, order *models.TicketOrder) {
	t.Helper()
	err := f.service.HandlePaymentWebhook(context.Background(), models.PaymentWebhook{
		PaymentRef: order.PaymentRef,
		EventType:  "payment.succeeded",
	})
	require.NoError(t, err)
	require.NoError(t, f.service.IssueTickets(context.Background(), order.ID))
}

func TestCreateOrder(t *testing.T) {
	f := newTicketFixture(t)

	order := f.placeOrder(t, 2, "pay-1")
	assert.Equal(t, models.OrderPending, order.Status)
	assert.Equal(t, int64(5000), order.AmountCents)
	assert.Equal(t, "EUR", order.Currency)
}

func TestCreateOrderUnpublishedEvent(t *testing.T) {
	f := newTicketFixture(t)
	f.events.events[testEventID].Status = models.EventDraft

	_, err := f.service.CreateOrder(context.Background(), "u1", CreateOrderRequest{
		EventID:    testEventID,
		Quantity:   1,
		PaymentRef: "pay-1",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestCreateOrderSoldOut(t *testing.T) {
	f := newTicketFixture(t)
	f.events.events[testEventID].Capacity = 2
	f.events.events[testEventID].TicketsIssued = 2

	_, err := f.service.CreateOrder(context.Background(), "u1", CreateOrderRequest{
		EventID:    testEventID,
		Quantity:   1,
		PaymentRef: "pay-1",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestWebhookSettlesAndIssuesTickets(t *testing.T) {
	f := newTicketFixture(t)
	order := f.placeOrder(t, 3, "pay-1")
	f.settleAndIssue(t, order)

	assert.Equal(t, models.OrderPaid, f.repo.orders[order.ID].Status)
	assert.Equal(t, 3, f.events.events[testEventID].TicketsIssued)

	tickets, err := f.repo.ListByOrder(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, tickets, 3)
	for _, ticket := range tickets {
		assert.Equal(t, models.TicketIssued, ticket.Status)
		assert.Len(t, ticket.Code, 12)
		assert.Equal(t, "GENERAL", ticket.Tier)
	}
}

func TestWebhookReplayIsNoop(t *testing.T) {
	f := newTicketFixture(t)
	order := f.placeOrder(t, 2, "pay-1")
	f.settleAndIssue(t, order)

	// The provider retries the same notification.
	err := f.service.HandlePaymentWebhook(context.Background(), models.PaymentWebhook{
		PaymentRef: order.PaymentRef,
		EventType:  "payment.succeeded",
	})
	require.NoError(t, err)
	// Capacity is reserved exactly once.
	assert.Equal(t, 2, f.events.events[testEventID].TicketsIssued)
}

func TestWebhookFailedAndRefunded(t *testing.T) {
	f := newTicketFixture(t)
	order := f.placeOrder(t, 1, "pay-1")

	err := f.service.HandlePaymentWebhook(context.Background(), models.PaymentWebhook{
		PaymentRef: order.PaymentRef,
		EventType:  "payment.failed",
	})
	require.NoError(t, err)
	assert.Equal(t, models.OrderFailed, f.repo.orders[order.ID].Status)

	// A refund webhook for a failed order does not move it.
	err = f.service.HandlePaymentWebhook(context.Background(), models.PaymentWebhook{
		PaymentRef: order.PaymentRef,
		EventType:  "payment.refunded",
	})
	require.NoError(t, err)
	assert.Equal(t, models.OrderFailed, f.repo.orders[order.ID].Status)
}

func TestWebhookOversoldAfterPaymentRefunds(t *testing.T) {
	f := newTicketFixture(t)
	order := f.placeOrder(t, 2, "pay-1")
	f.events.events[testEventID].Capacity = 1

	err := f.service.HandlePaymentWebhook(context.Background(), models.PaymentWebhook{
		PaymentRef: order.PaymentRef,
		EventType:  "payment.succeeded",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Equal(t, models.OrderRefunded, f.repo.orders[order.ID].Status)
}

func TestIssueTicketsIsRetrySafe(t *testing.T) {
	f := newTicketFixture(t)
	order := f.placeOrder(t, 2, "pay-1")
	f.settleAndIssue(t, order)

	// A retried job mints nothing extra.
	require.NoError(t, f.service.IssueTickets(context.Background(), order.ID))
	tickets, err := f.repo.ListByOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Len(t, tickets, 2)
}

func TestIssueTicketsUnpaidOrder(t *testing.T) {
	f := newTicketFixture(t)
	order := f.placeOrder(t, 1, "pay-1")

	err := f.service.IssueTickets(context.Background(), order.ID)
	require.Error(t, err)
}

func TestRedeemRecordsAttendance(t *testing.T) {
	f := newTicketFixture(t)
	order := f.placeOrder(t, 1, "pay-1")
	f.settleAndIssue(t, order)

	tickets, err := f.repo.ListByOrder(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, tickets, 1)

	redeemed, err := f.service.Redeem(context.Background(), tickets[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.TicketRedeemed, redeemed.Status)
	require.NotNil(t, redeemed.RedeemedAt)
	require.Len(t, f.engine.calls, 1)
	assert.Equal(t, "u1:"+testClubID+":attendance", f.engine.calls[0])

	// Scanning the same ticket again is rejected.
	_, err = f.service.Redeem(context.Background(), tickets[0].ID)
	require.Error(t, err)
}

func TestRedeemSurvivesPromotionFailure(t *testing.T) {
	f := newTicketFixture(t)
	f.engine.err = appErrors.ErrInternal
	order := f.placeOrder(t, 1, "pay-1")
	f.settleAndIssue(t, order)

	tickets, err := f.repo.ListByOrder(context.Background(), order.ID)
	require.NoError(t, err)

	redeemed, err := f.service.Redeem(context.Background(), tickets[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.TicketRedeemed, redeemed.Status)
}

func TestRenderPDFOwnerOnly(t *testing.T) {
	f := newTicketFixture(t)
	order := f.placeOrder(t, 1, "pay-1")
	f.settleAndIssue(t, order)

	tickets, err := f.repo.ListByOrder(context.Background(), order.ID)
	require.NoError(t, err)

	data, err := f.service.RenderPDF(context.Background(), "u1", tickets[0].ID)
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	_, err = f.service.RenderPDF(context.Background(), "u2", tickets[0].ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}
