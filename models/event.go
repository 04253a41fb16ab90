package models

import (
	"strings"

	"github.com/shopspring/decimal"

	"tixhub/internal/status"
)

// Event is the read-only projection of an event record used when selling tickets.
type Event struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Location string          `json:"location"`
	Date     string          `json:"date"`
	Time     string          `json:"time"`
	Price    decimal.Decimal `json:"price"`
	OwnerID  string          `json:"owner_id"`
}

// EventSnapshot is copied onto a ticket at purchase time so later event edits
// never change tickets that were already issued.
type EventSnapshot struct {
	Name     string          `json:"name"`
	Location string          `json:"location"`
	Date     string          `json:"date"`
	Time     string          `json:"time"`
	Price    decimal.Decimal `json:"price"`
	OwnerID  string          `json:"owner_id"`
}

// Snapshot freezes the event fields needed to sell a ticket. When requirePrice is
// set the event must carry a positive price.
func (e *Event) Snapshot(requirePrice bool) (EventSnapshot, error) {
	fields := []string{e.Name, e.Location, e.Date, e.Time, e.OwnerID}
	for _, f := range fields {
		if strings.TrimSpace(f) == "" {
			return EventSnapshot{}, status.E(status.KindNotFound, "event ticket not found", status.ErrEventIncomplete).With("event_id", e.ID)
		}
	}
	if requirePrice && !e.Price.IsPositive() {
		return EventSnapshot{}, status.E(status.KindInvalidState, "event has no ticket price", nil).With("event_id", e.ID)
	}

	return EventSnapshot{
		Name:     e.Name,
		Location: e.Location,
		Date:     e.Date,
		Time:     e.Time,
		Price:    e.Price,
		OwnerID:  e.OwnerID,
	}, nil
}

// IsFree reports whether the event can be attended without payment.
func (e *Event) IsFree() bool {
	return !e.Price.IsPositive()
}
