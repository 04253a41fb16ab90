package migrations

import (
	"database/sql"
	"errors"

	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"

	"tixhub/models"
)

const (
	EventsCollection  = "events"
	TicketsCollection = "tickets"
)

// EnsureCollections creates the events and tickets collections when they are
// missing. Existing collections are left untouched.
func EnsureCollections(app core.App) error {
	events, err := ensureEvents(app)
	if err != nil {
		return err
	}
	return ensureTickets(app, events)
}

func ensureEvents(app core.App) (*core.Collection, error) {
	existing, err := app.FindCollectionByNameOrId(EventsCollection)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	collection := core.NewBaseCollection(EventsCollection)
	collection.Fields.Add(
		&core.TextField{Name: "name", Required: true, Max: 200},
		&core.TextField{Name: "location", Max: 300},
		&core.TextField{Name: "date", Max: 40},
		&core.TextField{Name: "time", Max: 40},
		&core.NumberField{Name: "price", Min: types.Pointer(0.0)},
		&core.TextField{Name: "posted_by", Max: 100},
		&core.AutodateField{Name: "created", OnCreate: true},
		&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
	)

	if err := app.Save(collection); err != nil {
		return nil, err
	}
	return collection, nil
}

func ensureTickets(app core.App, events *core.Collection) error {
	_, err := app.FindCollectionByNameOrId(TicketsCollection)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	collection := core.NewBaseCollection(TicketsCollection)
	collection.Fields.Add(
		&core.RelationField{Name: "event", CollectionId: events.Id, MaxSelect: 1, Required: true},
		&core.TextField{Name: "buyer_name", Required: true, Max: 120},
		&core.EmailField{Name: "email", Required: true},
		&core.TextField{Name: "phone", Max: 32},
		&core.JSONField{Name: "event_snapshot", Required: true},
		&core.SelectField{
			Name:      "ticket_type",
			Required:  true,
			MaxSelect: 1,
			Values:    []string{string(models.TicketTypeGeneral), string(models.TicketTypeFree)},
		},
		&core.TextField{Name: "order_number", Required: true, Max: 40},
		&core.SelectField{
			Name:      "status",
			Required:  true,
			MaxSelect: 1,
			Values:    models.AllTicketStatuses(),
		},
		&core.TextField{Name: "payment_reference", Max: 200},
		&core.TextField{Name: "failure_reason", Max: 1000},
		&core.TextField{Name: "delivery_message_id", Max: 200},
		&core.DateField{Name: "paid_at"},
		&core.DateField{Name: "fulfilled_at"},
		&core.AutodateField{Name: "created", OnCreate: true},
		&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
	)
	collection.AddIndex("idx_tickets_order_number", true, "`order_number`", "")
	collection.AddIndex("idx_tickets_payment_reference", false, "`payment_reference`", "")
	collection.AddIndex("idx_tickets_status", false, "`status`", "")

	return app.Save(collection)
}
