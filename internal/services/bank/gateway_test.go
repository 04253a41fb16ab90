package bank

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinorUnits(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"5000", 500000},
		{"5000.50", 500050},
		{"0.1", 10},
		{"19.999", 2000},
		{"0", 0},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, MinorUnits(decimal.RequireFromString(tt.in)))
		})
	}
}

func TestVerification_Successful(t *testing.T) {
	assert.True(t, (&Verification{Status: true, Data: TransactionData{Status: "success"}}).Successful())
	assert.False(t, (&Verification{Status: true, Data: TransactionData{Status: "abandoned"}}).Successful())
	assert.False(t, (&Verification{Status: false, Data: TransactionData{Status: "success"}}).Successful())

	var nilV *Verification
	assert.False(t, nilV.Successful())
}

func TestVerification_MetadataString(t *testing.T) {
	v := &Verification{Data: TransactionData{Metadata: map[string]any{"ticket_id": "t1", "n": 2.0}}}

	assert.Equal(t, "t1", v.MetadataString("ticket_id"))
	assert.Equal(t, "", v.MetadataString("n"))
	assert.Equal(t, "", (&Verification{}).MetadataString("ticket_id"))
}

func TestMetadata_UnmarshalJSON(t *testing.T) {
	var withObject TransactionData
	require.NoError(t, json.Unmarshal([]byte(`{"metadata":{"ticket_id":"t1"}}`), &withObject))
	assert.Equal(t, Metadata{"ticket_id": "t1"}, withObject.Metadata)

	var withString TransactionData
	require.NoError(t, json.Unmarshal([]byte(`{"metadata":""}`), &withString))
	assert.Nil(t, withString.Metadata)
}
