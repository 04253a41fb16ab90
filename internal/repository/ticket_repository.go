package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"

	"tixhub/internal/status"
	"tixhub/migrations"
	"tixhub/models"
)

type TicketRepository struct {
	app core.App
}

func NewTicketRepository(app core.App) *TicketRepository {
	return &TicketRepository{app: app}
}

func (r *TicketRepository) CreateTicket(ctx context.Context, t *models.Ticket) error {
	collection, err := r.app.FindCachedCollectionByNameOrId(migrations.TicketsCollection)
	if err != nil {
		return status.E(status.KindInternal, "load tickets collection", err)
	}

	rec := core.NewRecord(collection)
	rec.Set("event", t.EventID)
	rec.Set("buyer_name", t.Buyer.Name)
	rec.Set("email", t.Buyer.Email)
	rec.Set("phone", t.Buyer.Phone)
	rec.Set("event_snapshot", t.Event)
	rec.Set("ticket_type", string(t.Type))
	rec.Set("order_number", t.OrderNumber)
	rec.Set("status", string(t.Status))
	rec.Set("payment_reference", t.PaymentReference)
	if t.PaidAt != nil {
		rec.Set("paid_at", *t.PaidAt)
	}

	if err := r.app.SaveWithContext(ctx, rec); err != nil {
		return status.E(status.KindInternal, "save ticket", err)
	}

	t.ID = rec.Id
	t.CreatedAt = rec.GetDateTime("created").Time()
	t.UpdatedAt = rec.GetDateTime("updated").Time()
	return nil
}

func (r *TicketRepository) FindTicketByID(ctx context.Context, id string) (*models.Ticket, error) {
	rec := &core.Record{}
	err := r.app.RecordQuery(migrations.TicketsCollection).
		WithContext(ctx).
		AndWhere(dbx.HashExp{"id": id}).
		Limit(1).
		One(rec)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, status.E(status.KindNotFound, "ticket not found", status.ErrTicketNotFound).With("ticket_id", id)
	}
	if err != nil {
		return nil, status.E(status.KindInternal, "load ticket", err)
	}
	return toTicket(rec)
}

func (r *TicketRepository) SetPaymentReference(ctx context.Context, id, reference string) (bool, error) {
	return r.update(ctx, id, []models.TicketStatus{models.TicketPendingPayment}, dbx.Params{
		"payment_reference": reference,
	})
}

// RecordDelivery stores the message id of a sent ticket email on a ticket that
// is still awaiting its final status.
func (r *TicketRepository) RecordDelivery(ctx context.Context, id, messageID string) (bool, error) {
	return r.update(ctx, id, []models.TicketStatus{models.TicketPaid, models.TicketFulfillmentFailed}, dbx.Params{
		"delivery_message_id": messageID,
		"failure_reason":      "",
	})
}

// Transition is a compare-and-set on the status column. Concurrent writers
// racing from the same status see exactly one success.
func (r *TicketRepository) Transition(ctx context.Context, id string, from []models.TicketStatus, to models.TicketStatus, patch models.TicketPatch) (bool, error) {
	for _, f := range from {
		if !f.CanTransitionTo(to) {
			return false, status.E(status.KindInvalidState, "illegal ticket status change", status.ErrIllegalTransition).
				With("ticket_id", id).
				With("from", string(f)).
				With("to", string(to))
		}
	}

	params := dbx.Params{"status": string(to)}
	if patch.FailureReason != nil {
		params["failure_reason"] = *patch.FailureReason
	}
	if patch.DeliveryMessageID != nil {
		params["delivery_message_id"] = *patch.DeliveryMessageID
		params["failure_reason"] = ""
	}
	if patch.PaidAt != nil {
		params["paid_at"] = dateString(*patch.PaidAt)
	}
	if patch.FulfilledAt != nil {
		params["fulfilled_at"] = dateString(*patch.FulfilledAt)
	}

	return r.update(ctx, id, from, params)
}

func (r *TicketRepository) update(ctx context.Context, id string, from []models.TicketStatus, params dbx.Params) (bool, error) {
	statuses := make([]any, len(from))
	for i, f := range from {
		statuses[i] = string(f)
	}
	params["updated"] = types.NowDateTime().String()

	res, err := r.app.NonconcurrentDB().
		Update(migrations.TicketsCollection, params, dbx.And(
			dbx.HashExp{"id": id},
			dbx.In("status", statuses...),
		)).
		WithContext(ctx).
		Execute()
	if err != nil {
		return false, status.E(status.KindInternal, "update ticket", err).With("ticket_id", id)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, status.E(status.KindInternal, "update ticket", err).With("ticket_id", id)
	}
	return n == 1, nil
}

// CountByStatus feeds the ticket gauges.
func (r *TicketRepository) CountByStatus(ctx context.Context) (map[string]int, error) {
	var rows []struct {
		Status string `db:"status"`
		Total  int    `db:"total"`
	}
	err := r.app.DB().
		NewQuery("SELECT [[status]], COUNT(*) AS [[total]] FROM {{" + migrations.TicketsCollection + "}} GROUP BY [[status]]").
		WithContext(ctx).
		All(&rows)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}

func toTicket(rec *core.Record) (*models.Ticket, error) {
	t := &models.Ticket{
		ID:      rec.Id,
		EventID: rec.GetString("event"),
		Buyer: models.Buyer{
			Name:  rec.GetString("buyer_name"),
			Email: rec.GetString("email"),
			Phone: rec.GetString("phone"),
		},
		Type:              models.TicketType(rec.GetString("ticket_type")),
		OrderNumber:       rec.GetString("order_number"),
		Status:            models.TicketStatus(rec.GetString("status")),
		PaymentReference:  rec.GetString("payment_reference"),
		FailureReason:     rec.GetString("failure_reason"),
		DeliveryMessageID: rec.GetString("delivery_message_id"),
		CreatedAt:         rec.GetDateTime("created").Time(),
		UpdatedAt:         rec.GetDateTime("updated").Time(),
		PaidAt:            optionalTime(rec.GetDateTime("paid_at")),
		FulfilledAt:       optionalTime(rec.GetDateTime("fulfilled_at")),
	}
	if !t.Status.Valid() {
		return nil, status.E(status.KindInternal, "unknown ticket status", nil).
			With("ticket_id", rec.Id).
			With("status", string(t.Status))
	}
	if err := rec.UnmarshalJSONField("event_snapshot", &t.Event); err != nil {
		return nil, status.E(status.KindInternal, "decode event snapshot", err).With("ticket_id", rec.Id)
	}
	return t, nil
}

func optionalTime(d types.DateTime) *time.Time {
	if d.IsZero() {
		return nil
	}
	t := d.Time()
	return &t
}

func dateString(t time.Time) string {
	d, _ := types.ParseDateTime(t)
	return d.String()
}
