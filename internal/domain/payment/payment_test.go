package payment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordID(t *testing.T) {
	assert.Equal(t, "abc#0#5", RecordID("abc", 0, 5))
	assert.Equal(t, "abc#2#0", RecordID("abc", 2, 0))

	// Distinct coordinates of the same transaction produce distinct records.
	assert.NotEqual(t, RecordID("abc", 0, 1), RecordID("abc", 1, 0))
}

func TestNewPayment(t *testing.T) {
	details := Details{
		SubaccountIndex: 1,
		SubaddressIndex: 2,
		TransactionID:   "tx1",
		Confirmations:   3,
	}

	p, err := NewPayment("inv1", "XMR-CHAIN", "addr1", "XMR", 1000, StatusProcessing, details)
	require.NoError(t, err)

	assert.Equal(t, "tx1#1#2", p.ID())
	assert.Equal(t, "inv1", p.InvoiceID())
	assert.Equal(t, "XMR-CHAIN", p.MethodID())
	assert.Equal(t, uint64(1000), p.AmountRaw())
	assert.False(t, p.IsSettled())
	assert.False(t, p.CreatedAt().IsZero())
}

func TestNewPayment_Validation(t *testing.T) {
	details := Details{TransactionID: "tx1"}

	_, err := NewPayment("", "XMR-CHAIN", "addr1", "XMR", 1, StatusProcessing, details)
	assert.Error(t, err)

	_, err = NewPayment("inv1", "", "addr1", "XMR", 1, StatusProcessing, details)
	assert.Error(t, err)

	_, err = NewPayment("inv1", "XMR-CHAIN", "addr1", "XMR", 1, StatusProcessing, Details{})
	assert.Error(t, err)
}

func TestApplyObservation(t *testing.T) {
	details := Details{TransactionID: "tx1", SubaccountIndex: 0, SubaddressIndex: 1, Confirmations: 0}
	p, err := NewPayment("inv1", "XMR-CHAIN", "addr1", "XMR", 1000, StatusProcessing, details)
	require.NoError(t, err)

	details.Confirmations = 6
	details.BlockHeight = 100
	require.NoError(t, p.ApplyObservation(StatusSettled, details))

	assert.True(t, p.IsSettled())
	assert.Equal(t, int64(6), p.Details().Confirmations)
	assert.Equal(t, int64(100), p.Details().BlockHeight)
	// Identity is untouched.
	assert.Equal(t, "tx1#0#1", p.ID())
}

func TestApplyObservation_RejectsForeignTransfer(t *testing.T) {
	p, err := NewPayment("inv1", "XMR-CHAIN", "addr1", "XMR", 1000, StatusProcessing,
		Details{TransactionID: "tx1", SubaddressIndex: 1})
	require.NoError(t, err)

	err = p.ApplyObservation(StatusSettled, Details{TransactionID: "tx2", SubaddressIndex: 1})
	assert.Error(t, err)

	err = p.ApplyObservation(StatusSettled, Details{TransactionID: "tx1", SubaddressIndex: 2})
	assert.Error(t, err)
}

func TestApplyObservation_Idempotent(t *testing.T) {
	details := Details{TransactionID: "tx1", Confirmations: 6}
	p, err := NewPayment("inv1", "XMR-CHAIN", "addr1", "XMR", 1000, StatusSettled, details)
	require.NoError(t, err)

	require.NoError(t, p.ApplyObservation(StatusSettled, details))
	require.NoError(t, p.ApplyObservation(StatusSettled, details))

	assert.Equal(t, StatusSettled, p.Status())
	assert.Equal(t, details, p.Details())
}
