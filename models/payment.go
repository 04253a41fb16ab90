package models

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// Buyer holds the contact details captured with a purchase request.
type Buyer struct {
	Name  string `json:"buyer"`
	Email string `json:"email"`
	Phone string `json:"phoneNumber"`
}

func (b Buyer) Validate() error {
	return validation.ValidateStruct(&b,
		validation.Field(&b.Name, validation.Required, validation.Length(1, 120)),
		validation.Field(&b.Email, validation.Required, is.EmailFormat),
		validation.Field(&b.Phone, validation.Required, validation.Length(3, 32)),
	)
}

// DeliveryReceipt is returned by the delivery channel once the ticket email was accepted.
type DeliveryReceipt struct {
	MessageID string    `json:"message_id"`
	To        string    `json:"to"`
	SentAt    time.Time `json:"sent_at"`
}
