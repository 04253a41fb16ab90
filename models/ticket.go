package models

import (
	"slices"
	"time"
)

type TicketType string

const (
	TicketTypeGeneral TicketType = "general"
	TicketTypeFree    TicketType = "free"
)

// Label is the admission text printed on the ticket.
func (t TicketType) Label() string {
	if t == TicketTypeFree {
		return "Free Admission"
	}
	return "General Admission"
}

type TicketStatus string

const (
	TicketPendingPayment    TicketStatus = "pending_payment"
	TicketPaid              TicketStatus = "paid"
	TicketFulfilled         TicketStatus = "fulfilled"
	TicketFulfillmentFailed TicketStatus = "fulfillment_failed"
)

var ticketTransitions = map[TicketStatus][]TicketStatus{
	TicketPendingPayment:    {TicketPaid},
	TicketPaid:              {TicketFulfilled, TicketFulfillmentFailed},
	TicketFulfillmentFailed: {TicketFulfilled, TicketFulfillmentFailed},
}

// CanTransitionTo reports whether moving from s to next is a legal step.
func (s TicketStatus) CanTransitionTo(next TicketStatus) bool {
	return slices.Contains(ticketTransitions[s], next)
}

// Fulfillable reports whether payment is confirmed but the artifact was not delivered yet.
func (s TicketStatus) Fulfillable() bool {
	return s == TicketPaid || s == TicketFulfillmentFailed
}

func (s TicketStatus) Valid() bool {
	switch s {
	case TicketPendingPayment, TicketPaid, TicketFulfilled, TicketFulfillmentFailed:
		return true
	}
	return false
}

// AllTicketStatuses lists the persisted statuses in lifecycle order.
func AllTicketStatuses() []string {
	return []string{
		string(TicketPendingPayment),
		string(TicketPaid),
		string(TicketFulfilled),
		string(TicketFulfillmentFailed),
	}
}

type Ticket struct {
	ID                string        `json:"id"`
	EventID           string        `json:"event_id"`
	Buyer             Buyer         `json:"buyer"`
	Event             EventSnapshot `json:"event"`
	Type              TicketType    `json:"ticket_type"`
	OrderNumber       string        `json:"order_number"`
	Status            TicketStatus  `json:"status"`
	PaymentReference  string        `json:"payment_reference,omitempty"`
	FailureReason     string        `json:"failure_reason,omitempty"`
	DeliveryMessageID string        `json:"delivery_message_id,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
	PaidAt            *time.Time    `json:"paid_at,omitempty"`
	FulfilledAt       *time.Time    `json:"fulfilled_at,omitempty"`
}

// Details is the human readable content printed on the PDF.
func (t *Ticket) Details() TicketDetails {
	return TicketDetails{
		Event:       t.Event.Name,
		Date:        t.Event.Date,
		Time:        t.Event.Time,
		Location:    t.Event.Location,
		Buyer:       t.Buyer.Name,
		TicketType:  t.Type.Label(),
		OrderNumber: t.OrderNumber,
	}
}

type TicketDetails struct {
	Event       string `json:"event"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Location    string `json:"location"`
	Buyer       string `json:"buyer"`
	TicketType  string `json:"ticket_type"`
	OrderNumber string `json:"order_number"`
}

// TicketPatch carries the optional columns written together with a status transition.
type TicketPatch struct {
	FailureReason     *string
	DeliveryMessageID *string
	PaidAt            *time.Time
	FulfilledAt       *time.Time
}
