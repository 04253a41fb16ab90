package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"tixhub/internal/services"
	"tixhub/internal/services/bank/paystack"
	"tixhub/internal/status"
	"tixhub/models"
)

type TicketService interface {
	RequestPurchase(ctx context.Context, eventID string, buyer models.Buyer) (*services.PurchaseResult, error)
	ReinitializePayment(ctx context.Context, ticketID string) (*services.PurchaseResult, error)
	HandlePaymentCallback(ctx context.Context, req services.CallbackRequest) (*services.CallbackResult, error)
	IssueFreeTicket(ctx context.Context, eventID string, buyer models.Buyer) (*services.FulfillmentResult, error)
	RetryFulfillment(ctx context.Context, ticketID string) (*services.FulfillmentResult, error)
	GetTicket(ctx context.Context, ticketID string) (*models.Ticket, error)
	VerifyTicketCode(content string) bool
}

type TicketHandler struct {
	tickets       TicketService
	webhookSecret string
	logger        *slog.Logger
}

func NewTicketHandler(tickets TicketService, webhookSecret string, logger *slog.Logger) *TicketHandler {
	return &TicketHandler{
		tickets:       tickets,
		webhookSecret: webhookSecret,
		logger:        logger,
	}
}

type buyerRequest struct {
	Buyer       string `json:"buyer"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber"`
}

func (r buyerRequest) toBuyer() models.Buyer {
	return models.Buyer{
		Name:  strings.TrimSpace(r.Buyer),
		Email: strings.TrimSpace(r.Email),
		Phone: strings.TrimSpace(r.PhoneNumber),
	}
}

// BuyTicket - Create a pending ticket and return the Paystack checkout url
func (h *TicketHandler) BuyTicket(e *core.RequestEvent) error {
	var req buyerRequest
	if err := e.BindBody(&req); err != nil {
		return h.fail(e, status.E(status.KindValidation, "invalid request body", err))
	}

	res, err := h.tickets.RequestPurchase(e.Request.Context(), e.Request.PathValue("eventId"), req.toBuyer())
	if err != nil {
		return h.fail(e, err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"ticket":            res.Ticket,
		"authorization_url": res.AuthorizationURL,
		"reference":         res.Reference,
	})
}

// PayTicket - Open a new checkout for a ticket still awaiting payment
func (h *TicketHandler) PayTicket(e *core.RequestEvent) error {
	res, err := h.tickets.ReinitializePayment(e.Request.Context(), e.Request.PathValue("ticketId"))
	if err != nil {
		return h.fail(e, err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"ticket":            res.Ticket,
		"authorization_url": res.AuthorizationURL,
		"reference":         res.Reference,
	})
}

// VerifyPayment - Paystack redirects the buyer here after checkout
func (h *TicketHandler) VerifyPayment(e *core.RequestEvent) error {
	reference := callbackReference(e)

	res, err := h.tickets.HandlePaymentCallback(e.Request.Context(), services.CallbackRequest{
		Reference: reference,
		EventID:   e.Request.PathValue("eventId"),
		TicketID:  e.Request.PathValue("ticketId"),
	})
	if err != nil {
		return h.fail(e, err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"ticket":            res.Ticket,
		"verification":      res.Verification,
		"delivered":         res.Delivered,
		"message_id":        messageID(&res.FulfillmentResult),
		"already_fulfilled": res.AlreadyFulfilled,
	})
}

// FreeTicket - Issue and email a ticket for a free event
func (h *TicketHandler) FreeTicket(e *core.RequestEvent) error {
	var req buyerRequest
	if err := e.BindBody(&req); err != nil {
		return h.fail(e, status.E(status.KindValidation, "invalid request body", err))
	}

	res, err := h.tickets.IssueFreeTicket(e.Request.Context(), e.Request.PathValue("eventId"), req.toBuyer())
	if err != nil {
		return h.fail(e, err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"ticket":     res.Ticket,
		"delivered":  res.Delivered,
		"message_id": messageID(res),
	})
}

// RetryFulfillment - Resume delivery of a paid ticket
func (h *TicketHandler) RetryFulfillment(e *core.RequestEvent) error {
	res, err := h.tickets.RetryFulfillment(e.Request.Context(), e.Request.PathValue("ticketId"))
	if err != nil {
		return h.fail(e, err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"ticket":            res.Ticket,
		"delivered":         res.Delivered,
		"message_id":        messageID(res),
		"already_fulfilled": res.AlreadyFulfilled,
	})
}

// GetTicket - Ticket status for polling clients
func (h *TicketHandler) GetTicket(e *core.RequestEvent) error {
	t, err := h.tickets.GetTicket(e.Request.Context(), e.Request.PathValue("ticketId"))
	if err != nil {
		return h.fail(e, err)
	}
	return e.JSON(http.StatusOK, map[string]any{"ticket": t})
}

// VerifyTicketCode - Door check of a scanned ticket QR payload
func (h *TicketHandler) VerifyTicketCode(e *core.RequestEvent) error {
	var req struct {
		Code string `json:"code"`
	}
	if err := e.BindBody(&req); err != nil || strings.TrimSpace(req.Code) == "" {
		return h.fail(e, status.E(status.KindValidation, "ticket code is required", err))
	}
	return e.JSON(http.StatusOK, map[string]bool{"valid": h.tickets.VerifyTicketCode(req.Code)})
}

// PaystackWebhook - Server to server charge notifications. Outcomes that a
// redelivery cannot change are acknowledged so Paystack stops retrying.
func (h *TicketHandler) PaystackWebhook(e *core.RequestEvent) error {
	body, err := io.ReadAll(io.LimitReader(e.Request.Body, 1<<20))
	if err != nil {
		return apis.NewBadRequestError("Unreadable body", err)
	}

	ev, err := paystack.ParseWebhook(h.webhookSecret, body, e.Request.Header.Get(paystack.SignatureHeader))
	if errors.Is(err, paystack.ErrInvalidSignature) {
		return apis.NewUnauthorizedError("Invalid signature", nil)
	}
	if err != nil {
		return apis.NewBadRequestError("Invalid payload", err)
	}

	if ev.Event != paystack.EventChargeSuccess || ev.TicketID() == "" {
		return e.JSON(http.StatusOK, map[string]string{"status": "ignored"})
	}

	_, err = h.tickets.HandlePaymentCallback(e.Request.Context(), services.CallbackRequest{
		Reference: ev.Data.Reference,
		EventID:   ev.EventID(),
		TicketID:  ev.TicketID(),
	})
	if err == nil {
		return e.JSON(http.StatusOK, map[string]string{"status": "fulfilled"})
	}
	switch status.KindOf(err) {
	case status.KindPaymentFailed, status.KindNotFound, status.KindValidation, status.KindInvalidState, status.KindInProgress:
		h.logger.Info("paystack webhook acknowledged", "ticket_id", ev.TicketID(), "reference", ev.Data.Reference, "outcome", status.KindOf(err))
		return e.JSON(http.StatusOK, map[string]string{"status": string(status.KindOf(err))})
	}

	return h.fail(e, err)
}

func callbackReference(e *core.RequestEvent) string {
	q := e.Request.URL.Query()
	if ref := q.Get("reference"); ref != "" {
		return ref
	}
	if ref := q.Get("trxref"); ref != "" {
		return ref
	}
	if e.Request.Method == http.MethodPost {
		var body struct {
			Reference string `json:"reference"`
		}
		if err := e.BindBody(&body); err == nil {
			return body.Reference
		}
	}
	return ""
}

func messageID(res *services.FulfillmentResult) string {
	if res.Receipt == nil {
		return ""
	}
	return res.Receipt.MessageID
}

// fail writes the error envelope. Internal errors expose only their message.
func (h *TicketHandler) fail(e *core.RequestEvent, err error) error {
	kind := status.KindOf(err)
	code := status.HTTPStatus(kind)

	body := map[string]any{
		"kind":    kind,
		"message": "Something went wrong while processing your request.",
	}

	var se *status.Error
	if errors.As(err, &se) {
		body["message"] = se.Message
		if kind != status.KindInternal && len(se.Details) > 0 {
			body["details"] = se.Details
		}
	}

	if code >= http.StatusInternalServerError {
		h.logger.Error("ticket request failed", "path", e.Request.URL.Path, "kind", kind, "error", err)
	}

	return e.JSON(code, map[string]any{
		"error":     body,
		"delivered": false,
	})
}
