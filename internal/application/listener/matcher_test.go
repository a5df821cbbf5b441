package listener

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moneta-pay/moneta/internal/domain/invoice"
	"github.com/moneta-pay/moneta/internal/domain/payment"
	"github.com/moneta-pay/moneta/internal/infrastructure/walletrpc"
	"github.com/moneta-pay/moneta/internal/shared/logger"
)

func testLogger() logger.Interface {
	return logger.NewLoggerWithSlog(slog.New(slog.DiscardHandler))
}

func makeInvoice(t *testing.T, id, destination string, activated bool) *invoice.Invoice {
	t.Helper()
	prompt, err := invoice.NewPaymentPrompt("XMR-CHAIN", destination, activated, 100, invoice.PromptDetails{})
	require.NoError(t, err)
	inv, err := invoice.NewInvoice(id, invoice.SpeedPolicyLow, []invoice.PaymentPrompt{prompt})
	require.NoError(t, err)
	return inv
}

func makeRecordedPayment(t *testing.T, invoiceID, destination, txID string) *payment.Payment {
	t.Helper()
	p, err := payment.NewPayment(invoiceID, "XMR-CHAIN", destination, "XMR", 100, payment.StatusProcessing,
		payment.Details{TransactionID: txID})
	require.NoError(t, err)
	return p
}

func TestMatch_FreshPromptByDestination(t *testing.T) {
	m := NewMatcher(testLogger())

	inv := makeInvoice(t, "inv1", "addrA", true)
	candidates := []expandedInvoice{
		{invoice: inv, prompt: inv.PaymentPrompt("XMR-CHAIN")},
	}

	matched := m.Match(walletrpc.Transfer{Address: "addrA", TxID: "tx1"}, candidates)
	require.NotNil(t, matched)
	assert.Equal(t, "inv1", matched.ID())
}

func TestMatch_IgnoresDormantPrompt(t *testing.T) {
	m := NewMatcher(testLogger())

	inv := makeInvoice(t, "inv1", "addrA", false)
	candidates := []expandedInvoice{
		{invoice: inv, prompt: inv.PaymentPrompt("XMR-CHAIN")},
	}

	assert.Nil(t, m.Match(walletrpc.Transfer{Address: "addrA", TxID: "tx1"}, candidates))
}

func TestMatch_NoCandidate(t *testing.T) {
	m := NewMatcher(testLogger())

	inv := makeInvoice(t, "inv1", "addrA", true)
	candidates := []expandedInvoice{
		{invoice: inv, prompt: inv.PaymentPrompt("XMR-CHAIN")},
	}

	assert.Nil(t, m.Match(walletrpc.Transfer{Address: "addrB", TxID: "tx1"}, candidates))
}

func TestMatch_ExistingPaymentWinsOverFreshPrompt(t *testing.T) {
	m := NewMatcher(testLogger())

	// inv1 recorded tx1 on addrA before the address was rotated; inv2 now
	// prompts on addrA. A re-observation of tx1 must keep belonging to inv1.
	inv1 := makeInvoice(t, "inv1", "addrZ", true)
	inv2 := makeInvoice(t, "inv2", "addrA", true)

	candidates := []expandedInvoice{
		{
			invoice:  inv1,
			prompt:   inv1.PaymentPrompt("XMR-CHAIN"),
			existing: []*payment.Payment{makeRecordedPayment(t, "inv1", "addrA", "tx1")},
		},
		{invoice: inv2, prompt: inv2.PaymentPrompt("XMR-CHAIN")},
	}

	matched := m.Match(walletrpc.Transfer{Address: "addrA", TxID: "tx1"}, candidates)
	require.NotNil(t, matched)
	assert.Equal(t, "inv1", matched.ID())

	// A different transaction on the same address is a fresh payment for inv2.
	matched = m.Match(walletrpc.Transfer{Address: "addrA", TxID: "tx2"}, candidates)
	require.NotNil(t, matched)
	assert.Equal(t, "inv2", matched.ID())
}

func TestMatch_ConflictingRecordsFirstWins(t *testing.T) {
	m := NewMatcher(testLogger())

	inv1 := makeInvoice(t, "inv1", "addrX", true)
	inv2 := makeInvoice(t, "inv2", "addrY", true)

	candidates := []expandedInvoice{
		{
			invoice:  inv1,
			prompt:   inv1.PaymentPrompt("XMR-CHAIN"),
			existing: []*payment.Payment{makeRecordedPayment(t, "inv1", "addrA", "tx1")},
		},
		{
			invoice:  inv2,
			prompt:   inv2.PaymentPrompt("XMR-CHAIN"),
			existing: []*payment.Payment{makeRecordedPayment(t, "inv2", "addrA", "tx1")},
		},
	}

	matched := m.Match(walletrpc.Transfer{Address: "addrA", TxID: "tx1"}, candidates)
	require.NotNil(t, matched)
	assert.Equal(t, "inv1", matched.ID())
}
