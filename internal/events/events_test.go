package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	var r Recorder
	ctx := context.Background()

	require.NoError(t, r.Publish(ctx, SubjectInvoicePaid, InvoicePaid{InvoiceID: "inv-1", Amount: 10000}))
	require.NoError(t, r.Publish(ctx, SubjectReminderSent, ReminderSent{ReminderID: "rem-1"}))

	assert.Equal(t, []string{SubjectInvoicePaid, SubjectReminderSent}, r.Subjects())

	events := r.Events()
	require.Len(t, events, 2)
	assert.NotEmpty(t, events[0].ID)
	assert.NotEqual(t, events[0].ID, events[1].ID)
	assert.Equal(t, InvoicePaid{InvoiceID: "inv-1", Amount: 10000}, events[0].Data)
}

func TestEventEnvelopeJSON(t *testing.T) {
	event := NewEvent(SubjectInvoiceRefunded, InvoiceRefunded{InvoiceID: "inv-1", RefundedAmount: 4000, AmountPaid: 6000, Status: "sent"})

	data, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "invoice.refunded", decoded["subject"])
	inner := decoded["data"].(map[string]any)
	assert.Equal(t, float64(4000), inner["refunded_amount"])
	assert.Equal(t, "sent", inner["status"])
}

func TestNoop(t *testing.T) {
	var p Publisher = Noop{}
	assert.NoError(t, p.Publish(context.Background(), SubjectInvoicePaid, nil))
}
