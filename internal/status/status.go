package status

import (
	"errors"
	"net/http"
)

// Kind classifies a failure so the HTTP boundary and operators can tell
// "payment did not succeed" apart from "we took the money but did not deliver".
type Kind string

const (
	KindValidation            Kind = "validation_error"
	KindNotFound              Kind = "not_found"
	KindInvalidState          Kind = "invalid_state"
	KindPaymentInitialization Kind = "payment_initialization_error"
	KindPaymentVerification   Kind = "payment_verification_error"
	KindPaymentFailed         Kind = "payment_failed"
	KindRender                Kind = "render_error"
	KindDelivery              Kind = "delivery_error"
	KindInProgress            Kind = "fulfillment_in_progress"
	KindInternal              Kind = "internal_error"
)

var (
	ErrFailedPayment        = errors.New("payment: payment failed")
	ErrEventNotFound        = errors.New("event: event not found")
	ErrTicketNotFound       = errors.New("ticket: ticket not found")
	ErrEventIncomplete      = errors.New("event: event ticket not found")
	ErrIllegalTransition    = errors.New("ticket: illegal status transition")
	ErrFulfillmentInProcess = errors.New("ticket: fulfillment already in progress")
)

// Error is the typed error returned by the ticket services.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Err     error
}

// E builds a typed error. Details may be nil.
func E(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// With attaches a detail to the error and returns it for chaining.
func (e *Error) With(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps a kind onto the response code of the ticket endpoints.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation, KindInvalidState, KindPaymentFailed:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindInProgress:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
