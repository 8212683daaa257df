package domain

import (
	"testing"

	"github.com/dukerupert/ledgerline/internal/repository"
	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to InvoiceStatus
		want     bool
	}{
		{InvoiceStatusDraft, InvoiceStatusSent, true},
		{InvoiceStatusSent, InvoiceStatusViewed, true},
		{InvoiceStatusViewed, InvoiceStatusOverdue, true},
		{InvoiceStatusOverdue, InvoiceStatusPaid, true},
		{InvoiceStatusSent, InvoiceStatusCancelled, true},
		{InvoiceStatusPaid, InvoiceStatusSent, true},

		{InvoiceStatusViewed, InvoiceStatusSent, false},
		{InvoiceStatusOverdue, InvoiceStatusSent, false},
		{InvoiceStatusPaid, InvoiceStatusCancelled, false},
		{InvoiceStatusCancelled, InvoiceStatusSent, false},
		{InvoiceStatusCancelled, InvoiceStatusPaid, false},
		{InvoiceStatusSent, InvoiceStatusDraft, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestInvoiceStatus_IsClosed(t *testing.T) {
	assert.True(t, InvoiceStatusPaid.IsClosed())
	assert.True(t, InvoiceStatusCancelled.IsClosed())
	assert.False(t, InvoiceStatusOverdue.IsClosed())
	assert.False(t, InvoiceStatusDraft.IsClosed())
}

func TestBalance(t *testing.T) {
	assert.Equal(t, int64(4000), Balance(repository.Invoice{Total: 10000, AmountPaid: 6000}))
	assert.Equal(t, int64(0), Balance(repository.Invoice{Total: 10000, AmountPaid: 10000}))
	assert.Equal(t, int64(0), Balance(repository.Invoice{Total: 10000, AmountPaid: 12000}))
}
