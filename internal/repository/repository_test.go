package repository

import (
	"context"
	"testing"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tests"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tixhub/internal/status"
	"tixhub/migrations"
	"tixhub/models"
)

func newTestApp(t *testing.T) *tests.TestApp {
	t.Helper()
	app, err := tests.NewTestApp()
	require.NoError(t, err)
	t.Cleanup(app.Cleanup)

	require.NoError(t, migrations.EnsureCollections(app))
	// a second run must be a no-op
	require.NoError(t, migrations.EnsureCollections(app))
	return app
}

func createEvent(t *testing.T, app core.App, price float64) string {
	t.Helper()
	collection, err := app.FindCollectionByNameOrId(migrations.EventsCollection)
	require.NoError(t, err)

	rec := core.NewRecord(collection)
	rec.Set("name", "Lagos Jazz Night")
	rec.Set("location", "Eko Hotel")
	rec.Set("date", "2025-12-20")
	rec.Set("time", "19:00")
	rec.Set("price", price)
	rec.Set("posted_by", "usr_9")
	require.NoError(t, app.Save(rec))
	return rec.Id
}

func newTicket(eventID, order string) *models.Ticket {
	return &models.Ticket{
		EventID: eventID,
		Buyer:   models.Buyer{Name: "Ada Obi", Email: "ada@example.com", Phone: "+2348000000000"},
		Event: models.EventSnapshot{
			Name: "Lagos Jazz Night", Location: "Eko Hotel", Date: "2025-12-20", Time: "19:00",
			Price: decimal.RequireFromString("5000.5"), OwnerID: "usr_9",
		},
		Type:        models.TicketTypeGeneral,
		OrderNumber: order,
		Status:      models.TicketPendingPayment,
	}
}

func TestEventRepository_FindEventByID(t *testing.T) {
	app := newTestApp(t)
	id := createEvent(t, app, 5000.5)
	repo := NewEventRepository(app)

	e, err := repo.FindEventByID(context.Background(), id)

	require.NoError(t, err)
	assert.Equal(t, "Lagos Jazz Night", e.Name)
	assert.Equal(t, "Eko Hotel", e.Location)
	assert.Equal(t, "usr_9", e.OwnerID)
	assert.True(t, e.Price.Equal(decimal.RequireFromString("5000.5")))

	_, err = repo.FindEventByID(context.Background(), "missing")
	assert.Equal(t, status.KindNotFound, status.KindOf(err))
	assert.ErrorIs(t, err, status.ErrEventNotFound)
}

func TestTicketRepository_CreateAndFind(t *testing.T) {
	app := newTestApp(t)
	eventID := createEvent(t, app, 5000.5)
	repo := NewTicketRepository(app)
	ctx := context.Background()

	tk := newTicket(eventID, "TIX-AAAAAAAAAAAAAAAA")
	require.NoError(t, repo.CreateTicket(ctx, tk))
	require.NotEmpty(t, tk.ID)
	assert.False(t, tk.CreatedAt.IsZero())

	got, err := repo.FindTicketByID(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, eventID, got.EventID)
	assert.Equal(t, tk.Buyer, got.Buyer)
	assert.Equal(t, "Eko Hotel", got.Event.Location)
	assert.True(t, got.Event.Price.Equal(tk.Event.Price))
	assert.Equal(t, models.TicketPendingPayment, got.Status)
	assert.Nil(t, got.PaidAt)

	_, err = repo.FindTicketByID(ctx, "missing")
	assert.ErrorIs(t, err, status.ErrTicketNotFound)
}

func TestTicketRepository_UniqueOrderNumber(t *testing.T) {
	app := newTestApp(t)
	eventID := createEvent(t, app, 100)
	repo := NewTicketRepository(app)

	require.NoError(t, repo.CreateTicket(context.Background(), newTicket(eventID, "TIX-DUPLICATE00000")))
	err := repo.CreateTicket(context.Background(), newTicket(eventID, "TIX-DUPLICATE00000"))
	assert.Error(t, err)
}

func TestTicketRepository_Transition(t *testing.T) {
	app := newTestApp(t)
	eventID := createEvent(t, app, 100)
	repo := NewTicketRepository(app)
	ctx := context.Background()

	tk := newTicket(eventID, "TIX-BBBBBBBBBBBBBBBB")
	require.NoError(t, repo.CreateTicket(ctx, tk))

	ok, err := repo.SetPaymentReference(ctx, tk.ID, "ref_1")
	require.NoError(t, err)
	assert.True(t, ok)

	paidAt := time.Date(2025, 11, 2, 10, 0, 0, 0, time.UTC)
	ok, err = repo.Transition(ctx, tk.ID, []models.TicketStatus{models.TicketPendingPayment}, models.TicketPaid, models.TicketPatch{PaidAt: &paidAt})
	require.NoError(t, err)
	assert.True(t, ok)

	// the second writer from the same status loses
	ok, err = repo.Transition(ctx, tk.ID, []models.TicketStatus{models.TicketPendingPayment}, models.TicketPaid, models.TicketPatch{})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.SetPaymentReference(ctx, tk.ID, "ref_2")
	require.NoError(t, err)
	assert.False(t, ok)

	reason := "deliver ticket email: 535"
	ok, err = repo.Transition(ctx, tk.ID, []models.TicketStatus{models.TicketPaid}, models.TicketFulfillmentFailed, models.TicketPatch{FailureReason: &reason})
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repo.FindTicketByID(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TicketFulfillmentFailed, got.Status)
	assert.Equal(t, reason, got.FailureReason)
	assert.Equal(t, "ref_1", got.PaymentReference)
	require.NotNil(t, got.PaidAt)
	assert.True(t, paidAt.Equal(*got.PaidAt))

	msgID := "msg-1"
	fulfilledAt := paidAt.Add(time.Minute)
	ok, err = repo.Transition(ctx, tk.ID, []models.TicketStatus{models.TicketPaid, models.TicketFulfillmentFailed}, models.TicketFulfilled, models.TicketPatch{
		DeliveryMessageID: &msgID,
		FulfilledAt:       &fulfilledAt,
	})
	require.NoError(t, err)
	assert.True(t, ok)

	got, err = repo.FindTicketByID(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TicketFulfilled, got.Status)
	assert.Equal(t, "msg-1", got.DeliveryMessageID)
	assert.Empty(t, got.FailureReason)
	require.NotNil(t, got.FulfilledAt)

	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts["fulfilled"])
}

func TestTicketRepository_TransitionIllegal(t *testing.T) {
	app := newTestApp(t)
	repo := NewTicketRepository(app)

	_, err := repo.Transition(context.Background(), "any", []models.TicketStatus{models.TicketFulfilled}, models.TicketPaid, models.TicketPatch{})

	assert.ErrorIs(t, err, status.ErrIllegalTransition)
	assert.Equal(t, status.KindInvalidState, status.KindOf(err))
}

func TestTicketRepository_RecordDelivery(t *testing.T) {
	app := newTestApp(t)
	eventID := createEvent(t, app, 100)
	repo := NewTicketRepository(app)
	ctx := context.Background()

	tk := newTicket(eventID, "TIX-CCCCCCCCCCCCCCCC")
	require.NoError(t, repo.CreateTicket(ctx, tk))

	// nothing is delivered before payment
	ok, err := repo.RecordDelivery(ctx, tk.ID, "msg-0")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = repo.Transition(ctx, tk.ID, []models.TicketStatus{models.TicketPendingPayment}, models.TicketPaid, models.TicketPatch{})
	require.NoError(t, err)

	ok, err = repo.RecordDelivery(ctx, tk.ID, "msg-1")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repo.FindTicketByID(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TicketPaid, got.Status)
	assert.Equal(t, "msg-1", got.DeliveryMessageID)
}

func TestTicketRepository_UnknownStatus(t *testing.T) {
	app := newTestApp(t)
	eventID := createEvent(t, app, 100)
	repo := NewTicketRepository(app)
	ctx := context.Background()

	tk := newTicket(eventID, "TIX-DDDDDDDDDDDDDDDD")
	require.NoError(t, repo.CreateTicket(ctx, tk))

	_, err := app.DB().Update(migrations.TicketsCollection, dbx.Params{"status": "archived"}, dbx.HashExp{"id": tk.ID}).Execute()
	require.NoError(t, err)

	_, err = repo.FindTicketByID(ctx, tk.ID)
	assert.Equal(t, status.KindInternal, status.KindOf(err))
}
