package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"

	"tixhub/internal/status"
	"tixhub/migrations"
	"tixhub/models"
)

type EventRepository struct {
	app core.App
}

func NewEventRepository(app core.App) *EventRepository {
	return &EventRepository{app: app}
}

func (r *EventRepository) FindEventByID(ctx context.Context, id string) (*models.Event, error) {
	rec := &core.Record{}
	err := r.app.RecordQuery(migrations.EventsCollection).
		WithContext(ctx).
		AndWhere(dbx.HashExp{"id": id}).
		Limit(1).
		One(rec)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, status.E(status.KindNotFound, "event not found", status.ErrEventNotFound).With("event_id", id)
	}
	if err != nil {
		return nil, status.E(status.KindInternal, "load event", err)
	}

	return &models.Event{
		ID:       rec.Id,
		Name:     rec.GetString("name"),
		Location: rec.GetString("location"),
		Date:     rec.GetString("date"),
		Time:     rec.GetString("time"),
		Price:    decimal.NewFromFloat(rec.GetFloat("price")),
		OwnerID:  rec.GetString("posted_by"),
	}, nil
}
