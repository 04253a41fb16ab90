package mail

import (
	"context"
	"errors"
	"io"
	"net/mail"
	"testing"
	"time"

	"github.com/pocketbase/pocketbase/tools/mailer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tixhub/config"
	"tixhub/internal/status"
)

type fakeMailer struct {
	sent []*mailer.Message
	err  error
}

func (f *fakeMailer) Send(m *mailer.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, m)
	return nil
}

func newTestClient(m mailer.Mailer) *Client {
	c := New(m, mail.Address{Name: "Tixhub", Address: "tickets@tixhub.test"})
	c.newID = func() string { return "msg-1" }
	c.now = func() time.Time { return time.Date(2025, 11, 2, 10, 0, 0, 0, time.UTC) }
	return c
}

func TestTicketHTML(t *testing.T) {
	c := newTestClient(&fakeMailer{})

	html, err := c.TicketHTML("Lagos Jazz Night", "Ada <Obi>", "TIX-1")

	require.NoError(t, err)
	assert.Contains(t, html, "Lagos Jazz Night")
	assert.Contains(t, html, "TIX-1")
	assert.Contains(t, html, "Ada &lt;Obi&gt;")
}

func TestSendTicketEmail(t *testing.T) {
	fm := &fakeMailer{}
	c := newTestClient(fm)

	receipt, err := c.SendTicketEmail(context.Background(), "ada@example.com", "<p>hi</p>", []byte("%PDF-1.3"))

	require.NoError(t, err)
	assert.Equal(t, "msg-1", receipt.MessageID)
	assert.Equal(t, "ada@example.com", receipt.To)
	assert.Equal(t, 2025, receipt.SentAt.Year())

	require.Len(t, fm.sent, 1)
	msg := fm.sent[0]
	assert.Equal(t, "Tixhub", msg.From.Name)
	assert.Equal(t, "tickets@tixhub.test", msg.From.Address)
	assert.Equal(t, []mail.Address{{Address: "ada@example.com"}}, msg.To)
	assert.Equal(t, "e-Ticket", msg.Subject)
	assert.Equal(t, "<p>hi</p>", msg.HTML)
	assert.Equal(t, "<msg-1@tixhub.test>", msg.Headers["Message-ID"])

	att, ok := msg.Attachments["ticket.pdf"]
	require.True(t, ok)
	b, err := io.ReadAll(att)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.3"), b)
}

func TestSendTicketEmail_Failures(t *testing.T) {
	t.Run("transport", func(t *testing.T) {
		c := newTestClient(&fakeMailer{err: errors.New("535 authentication failed")})
		_, err := c.SendTicketEmail(context.Background(), "ada@example.com", "x", []byte("pdf"))
		assert.Equal(t, status.KindDelivery, status.KindOf(err))
		assert.Contains(t, err.Error(), "535")
	})

	t.Run("bad recipient", func(t *testing.T) {
		fm := &fakeMailer{}
		_, err := newTestClient(fm).SendTicketEmail(context.Background(), "nobody", "x", []byte("pdf"))
		assert.Equal(t, status.KindDelivery, status.KindOf(err))
		assert.Empty(t, fm.sent)
	})

	t.Run("no attachment", func(t *testing.T) {
		_, err := newTestClient(&fakeMailer{}).SendTicketEmail(context.Background(), "ada@example.com", "x", nil)
		assert.Equal(t, status.KindDelivery, status.KindOf(err))
	})

	t.Run("canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		fm := &fakeMailer{}
		_, err := newTestClient(fm).SendTicketEmail(ctx, "ada@example.com", "x", []byte("pdf"))
		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, fm.sent)
	})
}

func TestNewSMTPClient(t *testing.T) {
	c := NewSMTPClient(config.MailConfig{
		Host:        "smtp.gmail.com",
		Port:        587,
		Username:    "u",
		Password:    "p",
		FromName:    "Tixhub",
		FromAddress: "tickets@tixhub.test",
	})

	smtp, ok := c.mailer.(*mailer.SMTPClient)
	require.True(t, ok)
	assert.Equal(t, "smtp.gmail.com", smtp.Host)
	assert.Equal(t, 587, smtp.Port)
	assert.Equal(t, "tickets@tixhub.test", c.from.Address)
}
