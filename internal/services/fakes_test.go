package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/stretchr/testify/mock"

	"tixhub/internal/services/bank"
	"tixhub/internal/status"
	"tixhub/models"
	"tixhub/utils"
)

type memEvents struct {
	events map[string]*models.Event
}

func (m *memEvents) FindEventByID(_ context.Context, id string) (*models.Event, error) {
	e, ok := m.events[id]
	if !ok {
		return nil, status.E(status.KindNotFound, "event not found", status.ErrEventNotFound).With("event_id", id)
	}
	cp := *e
	return &cp, nil
}

type memTickets struct {
	mu      sync.Mutex
	seq     int
	tickets map[string]models.Ticket
}

func newMemTickets() *memTickets {
	return &memTickets{tickets: make(map[string]models.Ticket)}
}

func (m *memTickets) CreateTicket(_ context.Context, t *models.Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t.ID = fmt.Sprintf("tkt_%d", m.seq)
	m.tickets[t.ID] = *t
	return nil
}

func (m *memTickets) FindTicketByID(_ context.Context, id string) (*models.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[id]
	if !ok {
		return nil, status.E(status.KindNotFound, "ticket not found", status.ErrTicketNotFound).With("ticket_id", id)
	}
	return &t, nil
}

func (m *memTickets) SetPaymentReference(_ context.Context, id, reference string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[id]
	if !ok || t.Status != models.TicketPendingPayment {
		return false, nil
	}
	t.PaymentReference = reference
	m.tickets[id] = t
	return true, nil
}

func (m *memTickets) RecordDelivery(_ context.Context, id, messageID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[id]
	if !ok || !t.Status.Fulfillable() {
		return false, nil
	}
	t.DeliveryMessageID = messageID
	t.FailureReason = ""
	m.tickets[id] = t
	return true, nil
}

func (m *memTickets) Transition(_ context.Context, id string, from []models.TicketStatus, to models.TicketStatus, patch models.TicketPatch) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[id]
	if !ok || !slices.Contains(from, t.Status) {
		return false, nil
	}
	if !t.Status.CanTransitionTo(to) {
		return false, status.ErrIllegalTransition
	}
	t.Status = to
	if patch.FailureReason != nil {
		t.FailureReason = *patch.FailureReason
	}
	if patch.DeliveryMessageID != nil {
		t.DeliveryMessageID = *patch.DeliveryMessageID
		t.FailureReason = ""
	}
	if patch.PaidAt != nil {
		t.PaidAt = patch.PaidAt
	}
	if patch.FulfilledAt != nil {
		t.FulfilledAt = patch.FulfilledAt
	}
	m.tickets[id] = t
	return true, nil
}

// flakyTickets behaves like a database driver: writes on a done context fail,
// and the next `failures` writes into failTo fail with a store error.
type flakyTickets struct {
	*memTickets
	mu       sync.Mutex
	failTo   models.TicketStatus
	failures int
	calls    int
}

func (f *flakyTickets) RecordDelivery(ctx context.Context, id, messageID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return f.memTickets.RecordDelivery(ctx, id, messageID)
}

func (f *flakyTickets) Transition(ctx context.Context, id string, from []models.TicketStatus, to models.TicketStatus, patch models.TicketPatch) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	f.mu.Lock()
	if to == f.failTo {
		f.calls++
		if f.failures > 0 {
			f.failures--
			f.mu.Unlock()
			return false, errors.New("database is locked")
		}
	}
	f.mu.Unlock()
	return f.memTickets.Transition(ctx, id, from, to, patch)
}

func (m *memTickets) get(id string) models.Ticket {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tickets[id]
}

func (m *memTickets) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tickets)
}

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) InitializeTransaction(ctx context.Context, req bank.InitializeRequest) (*bank.Authorization, error) {
	args := m.Called(ctx, req)
	auth, _ := args.Get(0).(*bank.Authorization)
	return auth, args.Error(1)
}

func (m *MockGateway) VerifyTransaction(ctx context.Context, reference string) (*bank.Verification, error) {
	args := m.Called(ctx, reference)
	v, _ := args.Get(0).(*bank.Verification)
	return v, args.Error(1)
}

type fakeRenderer struct {
	qrErr  error
	pdfErr error
	calls  atomic.Int32
}

func (f *fakeRenderer) RenderQRCode(buyerName, eventName string) ([]byte, error) {
	f.calls.Add(1)
	if f.qrErr != nil {
		return nil, f.qrErr
	}
	return []byte("png:" + buyerName + "|" + eventName), nil
}

func (f *fakeRenderer) VerifyQRContent(content string) bool {
	return strings.HasPrefix(content, "png:")
}

func (f *fakeRenderer) RenderTicketPDF(d models.TicketDetails, qr []byte) ([]byte, error) {
	if f.pdfErr != nil {
		return nil, f.pdfErr
	}
	return []byte("%PDF " + d.Location + " " + d.OrderNumber), nil
}

type sentMail struct {
	to   string
	html string
	pdf  []byte
}

type fakeMailer struct {
	mu     sync.Mutex
	err    error
	sent   []sentMail
	onSend func()
}

func (f *fakeMailer) TicketHTML(eventName, buyer, orderNumber string) (string, error) {
	return "<p>" + eventName + " " + buyer + " " + orderNumber + "</p>", nil
}

func (f *fakeMailer) SendTicketEmail(_ context.Context, to, html string, pdf []byte) (*models.DeliveryReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.onSend != nil {
		f.onSend()
	}
	if f.err != nil {
		return nil, status.E(status.KindDelivery, "send ticket email", f.err)
	}
	f.sent = append(f.sent, sentMail{to: to, html: html, pdf: pdf})
	return &models.DeliveryReceipt{MessageID: fmt.Sprintf("msg-%d", len(f.sent)), To: to}, nil
}

func (f *fakeMailer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type memLocker struct {
	mu   sync.Mutex
	held map[string]bool
	err  error
}

func newMemLocker() *memLocker {
	return &memLocker{held: make(map[string]bool)}
}

func (l *memLocker) Obtain(_ context.Context, key string) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	if l.held[key] {
		return nil, utils.ErrNotObtained
	}
	l.held[key] = true
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
		return nil
	}, nil
}

type recordingPublisher struct {
	mu       sync.Mutex
	statuses []models.TicketStatus
}

func (p *recordingPublisher) PublishTicketStatus(_ context.Context, t *models.Ticket) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses = append(p.statuses, t.Status)
}
