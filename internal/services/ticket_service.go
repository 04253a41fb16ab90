package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"tixhub/internal/services/bank"
	"tixhub/internal/services/notify"
	"tixhub/internal/status"
	"tixhub/models"
	"tixhub/monitoring"
	"tixhub/utils"
)

type TicketServiceConfig struct {
	// CallbackBaseURL is the public origin Paystack redirects the buyer back to.
	CallbackBaseURL string
	Logger          *slog.Logger
	NewOrderNumber  func() (string, error)
	Now             func() time.Time

	// FreeOnlyForUnpriced refuses free admission to events that carry a price.
	FreeOnlyForUnpriced bool
}

type TicketService struct {
	events    EventStore
	tickets   TicketStore
	gateway   bank.Gateway
	renderer  ArtifactRenderer
	mailer    TicketMailer
	locker    Locker
	publisher notify.StatusPublisher

	callbackBaseURL     string
	freeOnlyForUnpriced bool
	logger              *slog.Logger
	newOrderNumber      func() (string, error)
	now                 func() time.Time
}

func NewTicketService(
	events EventStore,
	tickets TicketStore,
	gateway bank.Gateway,
	renderer ArtifactRenderer,
	mailer TicketMailer,
	locker Locker,
	publisher notify.StatusPublisher,
	cfg TicketServiceConfig,
) *TicketService {
	s := &TicketService{
		events:              events,
		tickets:             tickets,
		gateway:             gateway,
		renderer:            renderer,
		mailer:              mailer,
		locker:              locker,
		publisher:           publisher,
		callbackBaseURL:     strings.TrimRight(cfg.CallbackBaseURL, "/"),
		freeOnlyForUnpriced: cfg.FreeOnlyForUnpriced,
		logger:              cfg.Logger,
		newOrderNumber:      cfg.NewOrderNumber,
		now:                 cfg.Now,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.newOrderNumber == nil {
		s.newOrderNumber = utils.GenerateOrderNumber
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.publisher == nil {
		s.publisher = notify.NopPublisher{}
	}
	return s
}

type PurchaseResult struct {
	Ticket           *models.Ticket `json:"ticket"`
	AuthorizationURL string         `json:"authorization_url"`
	Reference        string         `json:"reference"`
}

type FulfillmentResult struct {
	Ticket           *models.Ticket          `json:"ticket"`
	Delivered        bool                    `json:"delivered"`
	Receipt          *models.DeliveryReceipt `json:"receipt,omitempty"`
	AlreadyFulfilled bool                    `json:"already_fulfilled"`
}

type CallbackRequest struct {
	Reference string
	EventID   string
	TicketID  string
}

type CallbackResult struct {
	FulfillmentResult
	Verification *bank.Verification `json:"verification"`
}

// RequestPurchase records a pending ticket and opens a hosted checkout for it.
func (s *TicketService) RequestPurchase(ctx context.Context, eventID string, buyer models.Buyer) (res *PurchaseResult, err error) {
	defer track("purchase", &err)

	if err := validateBuyer(buyer); err != nil {
		return nil, err
	}

	event, err := s.events.FindEventByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	snap, err := event.Snapshot(true)
	if err != nil {
		return nil, err
	}

	t, err := s.newTicket(ctx, event.ID, buyer, snap, models.TicketTypeGeneral, models.TicketPendingPayment)
	if err != nil {
		return nil, err
	}

	auth, err := s.initializePayment(ctx, t)
	if err != nil {
		return nil, err
	}

	s.logger.Info("ticket purchase requested", "ticket_id", t.ID, "event_id", t.EventID, "reference", auth.Reference)
	return &PurchaseResult{Ticket: t, AuthorizationURL: auth.AuthorizationURL, Reference: auth.Reference}, nil
}

// ReinitializePayment opens a new checkout for a ticket still awaiting payment.
// The new reference replaces the previous one.
func (s *TicketService) ReinitializePayment(ctx context.Context, ticketID string) (res *PurchaseResult, err error) {
	defer track("reinitialize", &err)

	t, err := s.tickets.FindTicketByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if t.Type == models.TicketTypeFree {
		return nil, status.E(status.KindInvalidState, "free tickets need no payment", nil).With("ticket_id", t.ID)
	}
	if t.Status != models.TicketPendingPayment {
		return nil, status.E(status.KindInvalidState, "ticket is not awaiting payment", nil).
			With("ticket_id", t.ID).
			With("status", string(t.Status))
	}

	auth, err := s.initializePayment(ctx, t)
	if err != nil {
		return nil, err
	}
	return &PurchaseResult{Ticket: t, AuthorizationURL: auth.AuthorizationURL, Reference: auth.Reference}, nil
}

// HandlePaymentCallback verifies the payment behind reference with the gateway
// and fulfills the ticket once. Nothing is written unless the gateway confirms
// a payment covering the ticket price.
func (s *TicketService) HandlePaymentCallback(ctx context.Context, req CallbackRequest) (res *CallbackResult, err error) {
	defer track("callback", &err)

	reference := strings.TrimSpace(req.Reference)
	if reference == "" {
		return nil, status.E(status.KindValidation, "payment reference is required", nil)
	}

	t, err := s.tickets.FindTicketByID(ctx, req.TicketID)
	if err != nil {
		return nil, err
	}
	if req.EventID != "" && t.EventID != req.EventID {
		return nil, status.E(status.KindNotFound, "ticket not found", status.ErrTicketNotFound).With("ticket_id", req.TicketID)
	}
	if _, err := s.events.FindEventByID(ctx, t.EventID); err != nil {
		return nil, err
	}
	if t.Type == models.TicketTypeFree {
		return nil, status.E(status.KindInvalidState, "free tickets need no payment", nil).With("ticket_id", t.ID)
	}

	v, err := s.gateway.VerifyTransaction(ctx, reference)
	if err != nil {
		return nil, status.E(status.KindPaymentVerification, "payment verification failed", err).
			With("ticket_id", t.ID).
			With("reference", reference)
	}

	if err := s.checkPayment(t, reference, v); err != nil {
		s.logger.Warn("payment not accepted", "ticket_id", t.ID, "reference", reference, "error", err)
		return nil, err
	}

	fr, err := s.fulfill(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	return &CallbackResult{FulfillmentResult: *fr, Verification: v}, nil
}

// IssueFreeTicket issues and delivers a free admission ticket for a complete event.
func (s *TicketService) IssueFreeTicket(ctx context.Context, eventID string, buyer models.Buyer) (res *FulfillmentResult, err error) {
	defer track("free", &err)

	if err := validateBuyer(buyer); err != nil {
		return nil, err
	}

	event, err := s.events.FindEventByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if s.freeOnlyForUnpriced && !event.IsFree() {
		return nil, status.E(status.KindInvalidState, "event requires payment", nil).With("event_id", event.ID)
	}
	snap, err := event.Snapshot(false)
	if err != nil {
		return nil, err
	}

	t, err := s.newTicket(ctx, event.ID, buyer, snap, models.TicketTypeFree, models.TicketPaid)
	if err != nil {
		return nil, err
	}

	return s.fulfill(ctx, t.ID)
}

// RetryFulfillment resumes fulfillment of a paid ticket without contacting the gateway.
func (s *TicketService) RetryFulfillment(ctx context.Context, ticketID string) (res *FulfillmentResult, err error) {
	defer track("retry", &err)

	t, err := s.tickets.FindTicketByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !t.Status.Fulfillable() && t.Status != models.TicketFulfilled {
		return nil, status.E(status.KindInvalidState, "ticket has not been paid", nil).
			With("ticket_id", t.ID).
			With("status", string(t.Status))
	}
	return s.fulfill(ctx, t.ID)
}

// VerifyTicketCode reports whether a scanned QR payload was issued with this
// deployment's signing key.
func (s *TicketService) VerifyTicketCode(content string) bool {
	return s.renderer.VerifyQRContent(strings.TrimSpace(content))
}

func (s *TicketService) GetTicket(ctx context.Context, ticketID string) (*models.Ticket, error) {
	return s.tickets.FindTicketByID(ctx, ticketID)
}

func (s *TicketService) newTicket(ctx context.Context, eventID string, buyer models.Buyer, snap models.EventSnapshot, typ models.TicketType, st models.TicketStatus) (*models.Ticket, error) {
	order, err := s.newOrderNumber()
	if err != nil {
		return nil, status.E(status.KindInternal, "generate order number", err)
	}

	now := s.now().UTC()
	t := &models.Ticket{
		EventID:     eventID,
		Buyer:       buyer,
		Event:       snap,
		Type:        typ,
		OrderNumber: order,
		Status:      st,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if st == models.TicketPaid {
		t.PaidAt = &now
	}

	if err := s.tickets.CreateTicket(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *TicketService) initializePayment(ctx context.Context, t *models.Ticket) (*bank.Authorization, error) {
	auth, err := s.gateway.InitializeTransaction(ctx, bank.InitializeRequest{
		Email:       t.Buyer.Email,
		AmountMinor: bank.MinorUnits(t.Event.Price),
		CallbackURL: s.CallbackURL(t.EventID, t.ID),
		Metadata: map[string]string{
			"ticket_id": t.ID,
			"event_id":  t.EventID,
		},
	})
	if err != nil {
		s.logger.Error("gateway.InitializeTransaction()", "ticket_id", t.ID, "error", err)
		return nil, status.E(status.KindPaymentInitialization, "payment initialization failed", err).With("ticket_id", t.ID)
	}

	ok, err := s.tickets.SetPaymentReference(ctx, t.ID, auth.Reference)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, status.E(status.KindInvalidState, "ticket is not awaiting payment", nil).With("ticket_id", t.ID)
	}
	t.PaymentReference = auth.Reference
	return auth, nil
}

// CallbackURL is where Paystack sends the buyer after checkout.
func (s *TicketService) CallbackURL(eventID, ticketID string) string {
	return fmt.Sprintf("%s/ticket/verify-payment/event/%s/ticket/%s/callback",
		s.callbackBaseURL, url.PathEscape(eventID), url.PathEscape(ticketID))
}

func (s *TicketService) checkPayment(t *models.Ticket, reference string, v *bank.Verification) error {
	failed := func(msg string) *status.Error {
		return status.E(status.KindPaymentFailed, msg, status.ErrFailedPayment).
			With("ticket_id", t.ID).
			With("reference", reference)
	}

	if !v.Successful() {
		return failed("payment failed").With("gateway_response", v.Data.GatewayResponse)
	}
	// a reference replaced by a later checkout still counts when it was opened for this ticket
	if reference != t.PaymentReference && v.MetadataString("ticket_id") != t.ID {
		return failed("payment reference does not belong to ticket")
	}
	if v.Data.Amount < bank.MinorUnits(t.Event.Price) {
		return failed("payment amount is lower than the ticket price").With("amount", v.Data.Amount)
	}
	return nil
}

const (
	persistAttempts = 3
	persistBackoff  = 50 * time.Millisecond
)

func fulfillmentLockKey(ticketID string) string {
	return "ticket:fulfillment:" + ticketID
}

// fulfill moves a paid ticket to fulfilled, rendering and delivering its
// artifact. Callers racing on the same ticket are serialized by the lock and
// decided on the freshest ticket row.
func (s *TicketService) fulfill(ctx context.Context, ticketID string) (*FulfillmentResult, error) {
	release, err := s.locker.Obtain(ctx, fulfillmentLockKey(ticketID))
	if errors.Is(err, utils.ErrNotObtained) {
		return nil, status.E(status.KindInProgress, "ticket fulfillment already in progress", status.ErrFulfillmentInProcess).With("ticket_id", ticketID)
	}
	if err != nil {
		return nil, status.E(status.KindInternal, "fulfillment lock unavailable", err).With("ticket_id", ticketID)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("locker.release()", "ticket_id", ticketID, "error", err)
		}
	}()

	t, err := s.tickets.FindTicketByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	switch t.Status {
	case models.TicketFulfilled:
		return &FulfillmentResult{Ticket: t, AlreadyFulfilled: true}, nil
	case models.TicketPendingPayment:
		now := s.now().UTC()
		if err := s.transition(ctx, t, models.TicketPaid, models.TicketPatch{PaidAt: &now}); err != nil {
			return nil, err
		}
		t.PaidAt = &now
	}

	// an earlier attempt mailed the ticket but could not record the final status
	if t.DeliveryMessageID != "" {
		receipt := &models.DeliveryReceipt{MessageID: t.DeliveryMessageID, To: t.Buyer.Email}
		if err := s.complete(ctx, t, receipt); err != nil {
			return nil, err
		}
		return &FulfillmentResult{Ticket: t, Receipt: receipt, AlreadyFulfilled: true}, nil
	}

	qr, err := s.renderer.RenderQRCode(t.Buyer.Name, t.Event.Name)
	if err != nil {
		return nil, s.markFailed(ctx, t, status.KindRender, "render ticket qr code", err)
	}
	pdf, err := s.renderer.RenderTicketPDF(t.Details(), qr)
	if err != nil {
		return nil, s.markFailed(ctx, t, status.KindRender, "render ticket pdf", err)
	}

	html, err := s.mailer.TicketHTML(t.Event.Name, t.Buyer.Name, t.OrderNumber)
	if err != nil {
		return nil, s.markFailed(ctx, t, status.KindDelivery, "compose ticket email", err)
	}
	receipt, err := s.mailer.SendTicketEmail(ctx, t.Buyer.Email, html, pdf)
	if err != nil {
		monitoring.TrackDelivery(false)
		return nil, s.markFailed(ctx, t, status.KindDelivery, "deliver ticket email", err)
	}
	monitoring.TrackDelivery(true)

	// The email is out. Everything below must land even if the caller went away.
	if err := s.persist(ctx, func(ctx context.Context) error {
		return s.recordDelivery(ctx, t, receipt.MessageID)
	}); err != nil {
		s.logger.Error("tickets.RecordDelivery()", "ticket_id", t.ID, "message_id", receipt.MessageID, "error", err)
	}
	if err := s.complete(ctx, t, receipt); err != nil {
		s.logger.Error("ticket delivered but not marked fulfilled", "ticket_id", t.ID, "message_id", receipt.MessageID, "error", err)
	}

	return &FulfillmentResult{Ticket: t, Delivered: true, Receipt: receipt}, nil
}

// complete marks a delivered ticket fulfilled and announces it.
func (s *TicketService) complete(ctx context.Context, t *models.Ticket, receipt *models.DeliveryReceipt) error {
	now := s.now().UTC()
	err := s.persist(ctx, func(ctx context.Context) error {
		return s.transition(ctx, t, models.TicketFulfilled, models.TicketPatch{
			DeliveryMessageID: &receipt.MessageID,
			FulfilledAt:       &now,
		})
	})
	if err != nil {
		return err
	}
	t.DeliveryMessageID = receipt.MessageID
	t.FailureReason = ""
	t.FulfilledAt = &now

	s.logger.Info("ticket fulfilled", "ticket_id", t.ID, "order_number", t.OrderNumber, "message_id", receipt.MessageID)
	s.publisher.PublishTicketStatus(context.WithoutCancel(ctx), t)
	return nil
}

func (s *TicketService) recordDelivery(ctx context.Context, t *models.Ticket, messageID string) error {
	ok, err := s.tickets.RecordDelivery(ctx, t.ID, messageID)
	if err != nil {
		return err
	}
	if ok {
		t.DeliveryMessageID = messageID
		t.FailureReason = ""
	}
	return nil
}

// persist runs a write that follows a side effect on a context detached from
// the caller, retrying store failures a few times. Lost races are not retried.
func (s *TicketService) persist(ctx context.Context, write func(context.Context) error) error {
	ctx = context.WithoutCancel(ctx)

	var err error
	for attempt := 1; attempt <= persistAttempts; attempt++ {
		if err = write(ctx); err == nil {
			return nil
		}
		if status.Is(err, status.KindInProgress) || status.Is(err, status.KindInvalidState) {
			return err
		}
		if attempt < persistAttempts {
			time.Sleep(time.Duration(attempt) * persistBackoff)
		}
	}
	return err
}

// transition applies a guarded status change and mirrors it onto t.
func (s *TicketService) transition(ctx context.Context, t *models.Ticket, to models.TicketStatus, patch models.TicketPatch) error {
	if !t.Status.CanTransitionTo(to) {
		return status.E(status.KindInvalidState, "illegal ticket status change", status.ErrIllegalTransition).
			With("ticket_id", t.ID).
			With("from", string(t.Status)).
			With("to", string(to))
	}

	ok, err := s.tickets.Transition(ctx, t.ID, []models.TicketStatus{t.Status}, to, patch)
	if err != nil {
		return err
	}
	if !ok {
		return status.E(status.KindInProgress, "ticket changed concurrently", status.ErrFulfillmentInProcess).With("ticket_id", t.ID)
	}

	t.Status = to
	t.UpdatedAt = s.now().UTC()
	return nil
}

// markFailed records a render or delivery failure so the ticket can be retried,
// and returns the error to report. The payment itself stands.
func (s *TicketService) markFailed(ctx context.Context, t *models.Ticket, kind status.Kind, msg string, cause error) error {
	reason := msg + ": " + cause.Error()
	s.logger.Error("ticket fulfillment failed", "ticket_id", t.ID, "kind", kind, "error", cause)

	err := s.persist(ctx, func(ctx context.Context) error {
		return s.transition(ctx, t, models.TicketFulfillmentFailed, models.TicketPatch{FailureReason: &reason})
	})
	if err != nil {
		s.logger.Error("record fulfillment failure", "ticket_id", t.ID, "error", err)
	} else {
		t.FailureReason = reason
		s.publisher.PublishTicketStatus(context.WithoutCancel(ctx), t)
	}

	return status.E(kind, msg, cause).
		With("ticket_id", t.ID).
		With("status", string(t.Status))
}

func validateBuyer(b models.Buyer) error {
	if err := b.Validate(); err != nil {
		return status.E(status.KindValidation, "invalid buyer details", err)
	}
	return nil
}

func track(op string, err *error) {
	outcome := "ok"
	if *err != nil {
		outcome = string(status.KindOf(*err))
	}
	monitoring.TrackOperation(op, outcome)
}
