package status

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	base := E(KindDelivery, "send ticket email", errors.New("smtp: 535 auth failed"))
	wrapped := fmt.Errorf("fulfill: %w", base)

	assert.Equal(t, KindDelivery, KindOf(base))
	assert.Equal(t, KindDelivery, KindOf(wrapped))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.True(t, Is(wrapped, KindDelivery))
	assert.False(t, Is(nil, KindDelivery))
}

func TestError_MessageAndUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := E(KindPaymentInitialization, "payment initialization failed", cause)

	assert.Equal(t, "payment initialization failed: connection refused", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "ticket not found", E(KindNotFound, "ticket not found", nil).Error())
}

func TestError_With(t *testing.T) {
	err := E(KindRender, "render ticket", nil).With("ticket_id", "t1").With("status", "fulfillment_failed")

	assert.Equal(t, map[string]any{"ticket_id": "t1", "status": "fulfillment_failed"}, err.Details)
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindValidation, http.StatusBadRequest},
		{KindInvalidState, http.StatusBadRequest},
		{KindPaymentFailed, http.StatusBadRequest},
		{KindNotFound, http.StatusNotFound},
		{KindInProgress, http.StatusConflict},
		{KindPaymentInitialization, http.StatusInternalServerError},
		{KindPaymentVerification, http.StatusInternalServerError},
		{KindRender, http.StatusInternalServerError},
		{KindDelivery, http.StatusInternalServerError},
		{KindInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.kind))
		})
	}
}
