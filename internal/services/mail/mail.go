package mail

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pocketbase/pocketbase/tools/mailer"
	"github.com/pocketbase/pocketbase/tools/template"

	"tixhub/config"
	"tixhub/internal/status"
	"tixhub/models"
)

const (
	TicketSubject    = "e-Ticket"
	TicketAttachment = "ticket.pdf"
)

const ticketTemplate = `<div style="font-family: Arial, sans-serif; max-width: 600px; margin: auto; padding: 20px; border-radius: 10px; background-color: #f4f4f4;">
  <h2 style="color: #333;">Your ticket for {{.Event}}</h2>
  <p>Hi {{.Buyer}},</p>
  <p>Thank you for your purchase. Your e-ticket is attached to this email as a PDF.</p>
  <p>Order number: <strong>{{.OrderNumber}}</strong></p>
  <p>Please present the QR code on the ticket at the entrance.</p>
  <p style="color: #777; font-size: 12px;">Tixhub</p>
</div>`

type Client struct {
	mailer    mailer.Mailer
	from      mail.Address
	templates *template.Registry
	now       func() time.Time
	newID     func() string
}

func New(m mailer.Mailer, from mail.Address) *Client {
	return &Client{
		mailer:    m,
		from:      from,
		templates: template.NewRegistry(),
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// NewSMTPClient builds the delivery channel from config. The SMTP connection is
// opened per message by the mailer.
func NewSMTPClient(cfg config.MailConfig) *Client {
	smtp := &mailer.SMTPClient{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: cfg.Password,
		TLS:      cfg.TLS,
	}
	return New(smtp, mail.Address{Name: cfg.FromName, Address: cfg.FromAddress})
}

// TicketHTML renders the email body announcing the attached ticket.
func (c *Client) TicketHTML(eventName, buyer, orderNumber string) (string, error) {
	html, err := c.templates.LoadString(ticketTemplate).Render(map[string]any{
		"Event":       eventName,
		"Buyer":       buyer,
		"OrderNumber": orderNumber,
	})
	if err != nil {
		return "", status.E(status.KindDelivery, "render ticket email", err)
	}
	return html, nil
}

// SendTicketEmail sends the ticket PDF to the buyer.
func (c *Client) SendTicketEmail(ctx context.Context, to, html string, pdf []byte) (*models.DeliveryReceipt, error) {
	addr, err := mail.ParseAddress(to)
	if err != nil {
		return nil, status.E(status.KindDelivery, "invalid recipient", err).With("to", to)
	}
	if len(pdf) == 0 {
		return nil, status.E(status.KindDelivery, "ticket attachment missing", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, status.E(status.KindDelivery, "send ticket email", err)
	}

	id := c.newID()
	msg := &mailer.Message{
		From:    c.from,
		To:      []mail.Address{*addr},
		Subject: TicketSubject,
		HTML:    html,
		Headers: map[string]string{"Message-ID": messageID(id, c.from.Address)},
		Attachments: map[string]io.Reader{
			TicketAttachment: bytes.NewReader(pdf),
		},
	}

	if err := c.mailer.Send(msg); err != nil {
		return nil, status.E(status.KindDelivery, "send ticket email", err).With("to", addr.Address)
	}

	return &models.DeliveryReceipt{
		MessageID: id,
		To:        addr.Address,
		SentAt:    c.now().UTC(),
	}, nil
}

func messageID(id, from string) string {
	domain := "tixhub"
	if i := strings.LastIndex(from, "@"); i >= 0 && i < len(from)-1 {
		domain = from[i+1:]
	}
	return fmt.Sprintf("<%s@%s>", id, domain)
}
