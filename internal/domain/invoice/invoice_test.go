package invoice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChainMethodID(t *testing.T) {
	assert.Equal(t, "XMR-CHAIN", ChainMethodID("xmr"))
	assert.Equal(t, "XMR-CHAIN", ChainMethodID("XMR"))
	assert.Equal(t, "BTC-CHAIN", ChainMethodID("btc"))
}

func TestNewPaymentPrompt_Validation(t *testing.T) {
	_, err := NewPaymentPrompt("", "addr1", true, 10, PromptDetails{})
	assert.Error(t, err)

	_, err = NewPaymentPrompt("XMR-CHAIN", "", true, 10, PromptDetails{})
	assert.Error(t, err)

	prompt, err := NewPaymentPrompt("XMR-CHAIN", "addr1", false, 10, PromptDetails{AccountIndex: 1, AddressIndex: 2})
	require.NoError(t, err)
	assert.Equal(t, "addr1", prompt.Destination())
	assert.False(t, prompt.Activated())
	assert.Equal(t, uint64(10), prompt.DueRaw())
	assert.Equal(t, uint64(1), prompt.Details().AccountIndex)
}

func TestInvoice_PaymentPrompt(t *testing.T) {
	xmr, err := NewPaymentPrompt("XMR-CHAIN", "addr1", true, 10, PromptDetails{})
	require.NoError(t, err)
	btc, err := NewPaymentPrompt("BTC-CHAIN", "addr2", false, 20, PromptDetails{})
	require.NoError(t, err)

	inv, err := NewInvoice("inv1", SpeedPolicyMedium, []PaymentPrompt{xmr, btc})
	require.NoError(t, err)

	prompt := inv.PaymentPrompt("XMR-CHAIN")
	require.NotNil(t, prompt)
	assert.Equal(t, "addr1", prompt.Destination())

	assert.Nil(t, inv.PaymentPrompt("LTC-CHAIN"))
}

func TestInvoice_PaymentPrompt_ReturnsBackingPrompt(t *testing.T) {
	prompt, err := NewPaymentPrompt("XMR-CHAIN", "addr1", false, 10, PromptDetails{})
	require.NoError(t, err)

	inv, err := NewInvoice("inv1", SpeedPolicyLow, []PaymentPrompt{prompt})
	require.NoError(t, err)

	// Mutations through the returned pointer are visible on the invoice.
	inv.PaymentPrompt("XMR-CHAIN").Activate()
	assert.True(t, inv.HasActivatedPrompt("XMR-CHAIN"))
}

func TestInvoice_HasActivatedPrompt(t *testing.T) {
	activated, err := NewPaymentPrompt("XMR-CHAIN", "addr1", true, 10, PromptDetails{})
	require.NoError(t, err)
	dormant, err := NewPaymentPrompt("BTC-CHAIN", "addr2", false, 20, PromptDetails{})
	require.NoError(t, err)

	inv, err := NewInvoice("inv1", SpeedPolicyLow, []PaymentPrompt{activated, dormant})
	require.NoError(t, err)

	assert.True(t, inv.HasActivatedPrompt("XMR-CHAIN"))
	assert.False(t, inv.HasActivatedPrompt("BTC-CHAIN"))
	assert.False(t, inv.HasActivatedPrompt("LTC-CHAIN"))
}

func TestNewInvoice_Validation(t *testing.T) {
	prompt, err := NewPaymentPrompt("XMR-CHAIN", "addr1", true, 10, PromptDetails{})
	require.NoError(t, err)

	_, err = NewInvoice("", SpeedPolicyLow, []PaymentPrompt{prompt})
	assert.Error(t, err)

	_, err = NewInvoice("inv1", SpeedPolicyLow, nil)
	assert.Error(t, err)
}
