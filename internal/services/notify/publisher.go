package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	pubnub "github.com/pubnub/go/v7"

	"tixhub/config"
	"tixhub/models"
)

// StatusPublisher pushes ticket status changes to clients watching a ticket.
type StatusPublisher interface {
	PublishTicketStatus(ctx context.Context, t *models.Ticket)
}

type PubNubPublisher struct {
	send   func(ctx context.Context, channel string, msg map[string]any) error
	logger *slog.Logger
}

// New returns a PubNub backed publisher, or a no-op one when PubNub is not configured.
func New(cfg config.PubNubConfig, logger *slog.Logger) StatusPublisher {
	if !cfg.Enabled() {
		return NopPublisher{}
	}

	pnConfig := pubnub.NewConfigWithUserId(pubnub.UserId("tixhub-" + uuid.NewString()))
	pnConfig.PublishKey = cfg.PublishKey
	pnConfig.SubscribeKey = cfg.SubscribeKey
	pnConfig.SecretKey = cfg.SecretKey
	pn := pubnub.NewPubNub(pnConfig)

	return &PubNubPublisher{
		send: func(ctx context.Context, channel string, msg map[string]any) error {
			_, st, err := pn.PublishWithContext(ctx).
				Channel(channel).
				Message(msg).
				Execute()
			if err != nil {
				return err
			}
			if st.Error != nil {
				return st.Error
			}
			return nil
		},
		logger: logger,
	}
}

func Channel(ticketID string) string {
	return "ticket-" + ticketID
}

// PublishTicketStatus is best effort; failures are logged and swallowed.
func (p *PubNubPublisher) PublishTicketStatus(ctx context.Context, t *models.Ticket) {
	msg := map[string]any{
		"type":         "ticket_status",
		"ticket_id":    t.ID,
		"status":       string(t.Status),
		"order_number": t.OrderNumber,
	}
	if err := p.send(ctx, Channel(t.ID), msg); err != nil {
		p.logger.Warn("pubnub.Publish()", "ticket_id", t.ID, "error", fmt.Errorf("publish ticket status: %w", err))
	}
}

type NopPublisher struct{}

func (NopPublisher) PublishTicketStatus(context.Context, *models.Ticket) {}
