package services

import (
	"context"

	"tixhub/models"
)

type EventStore interface {
	FindEventByID(ctx context.Context, id string) (*models.Event, error)
}

type TicketStore interface {
	CreateTicket(ctx context.Context, t *models.Ticket) error
	FindTicketByID(ctx context.Context, id string) (*models.Ticket, error)
	// SetPaymentReference stores the latest gateway reference while the ticket
	// still awaits payment. It reports false when the ticket moved on.
	SetPaymentReference(ctx context.Context, id, reference string) (bool, error)
	// RecordDelivery keeps the id of a sent ticket email on a paid ticket.
	RecordDelivery(ctx context.Context, id, messageID string) (bool, error)
	// Transition moves the ticket to `to` only if it currently sits in one of
	// `from`. It reports whether the row moved.
	Transition(ctx context.Context, id string, from []models.TicketStatus, to models.TicketStatus, patch models.TicketPatch) (bool, error)
}

type ArtifactRenderer interface {
	RenderQRCode(buyerName, eventName string) ([]byte, error)
	RenderTicketPDF(d models.TicketDetails, qr []byte) ([]byte, error)
	VerifyQRContent(content string) bool
}

type TicketMailer interface {
	TicketHTML(eventName, buyer, orderNumber string) (string, error)
	SendTicketEmail(ctx context.Context, to, html string, pdf []byte) (*models.DeliveryReceipt, error)
}

// Locker grants exclusive ownership of a key for a bounded time.
type Locker interface {
	Obtain(ctx context.Context, key string) (func(context.Context) error, error)
}
