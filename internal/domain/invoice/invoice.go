package invoice

import (
	"fmt"
	"strings"
)

// SpeedPolicy is an invoice-level preference trading settlement speed against
// double-spend risk tolerance.
type SpeedPolicy string

const (
	SpeedPolicyHigh      SpeedPolicy = "high"
	SpeedPolicyMedium    SpeedPolicy = "medium"
	SpeedPolicyLowMedium SpeedPolicy = "low_medium"
	SpeedPolicyLow       SpeedPolicy = "low"
)

// ChainMethodID returns the on-chain payment method id for a currency code,
// e.g. "XMR-CHAIN".
func ChainMethodID(currency string) string {
	return strings.ToUpper(currency) + "-CHAIN"
}

// PromptDetails carries the wallet coordinates bound to a payment prompt.
// Immutable once bound.
type PromptDetails struct {
	AccountIndex uint64 `json:"accountIndex"`
	AddressIndex uint64 `json:"addressIndex"`
	// SettledConfirmationThreshold, when set, overrides the speed policy
	// mapping for this invoice.
	SettledConfirmationThreshold *int64 `json:"settledConfirmationThreshold,omitempty"`
}

// PaymentPrompt is the currency-specific destination and amount due bound to
// an invoice.
type PaymentPrompt struct {
	methodID    string
	destination string
	activated   bool
	dueRaw      uint64
	details     PromptDetails
}

func NewPaymentPrompt(methodID, destination string, activated bool, dueRaw uint64, details PromptDetails) (PaymentPrompt, error) {
	if methodID == "" {
		return PaymentPrompt{}, fmt.Errorf("payment method id is required")
	}
	if destination == "" {
		return PaymentPrompt{}, fmt.Errorf("destination is required")
	}
	return PaymentPrompt{
		methodID:    methodID,
		destination: destination,
		activated:   activated,
		dueRaw:      dueRaw,
		details:     details,
	}, nil
}

func (p *PaymentPrompt) MethodID() string {
	return p.methodID
}

func (p *PaymentPrompt) Destination() string {
	return p.destination
}

func (p *PaymentPrompt) Activated() bool {
	return p.activated
}

// DueRaw is the outstanding amount in atomic units. Zero means fully covered.
func (p *PaymentPrompt) DueRaw() uint64 {
	return p.dueRaw
}

func (p *PaymentPrompt) Details() PromptDetails {
	return p.details
}

// Activate marks the prompt as activated.
func (p *PaymentPrompt) Activate() {
	p.activated = true
}

// Invoice is a request for payment with one or more payment prompts.
type Invoice struct {
	id          string
	speedPolicy SpeedPolicy
	prompts     []PaymentPrompt
}

func NewInvoice(id string, speedPolicy SpeedPolicy, prompts []PaymentPrompt) (*Invoice, error) {
	if id == "" {
		return nil, fmt.Errorf("invoice id is required")
	}
	if len(prompts) == 0 {
		return nil, fmt.Errorf("at least one payment prompt is required")
	}
	return &Invoice{
		id:          id,
		speedPolicy: speedPolicy,
		prompts:     prompts,
	}, nil
}

func (i *Invoice) ID() string {
	return i.id
}

func (i *Invoice) SpeedPolicy() SpeedPolicy {
	return i.speedPolicy
}

func (i *Invoice) Prompts() []PaymentPrompt {
	return i.prompts
}

// PaymentPrompt returns the prompt for the given payment method id, or nil
// when the invoice does not accept that method.
func (i *Invoice) PaymentPrompt(methodID string) *PaymentPrompt {
	for idx := range i.prompts {
		if i.prompts[idx].methodID == methodID {
			return &i.prompts[idx]
		}
	}
	return nil
}

// HasActivatedPrompt reports whether the invoice carries an activated prompt
// for the given payment method.
func (i *Invoice) HasActivatedPrompt(methodID string) bool {
	prompt := i.PaymentPrompt(methodID)
	return prompt != nil && prompt.activated
}

// ReconstructInvoice creates an Invoice instance from persistence.
func ReconstructInvoice(id string, speedPolicy SpeedPolicy, prompts []PaymentPrompt) *Invoice {
	return &Invoice{
		id:          id,
		speedPolicy: speedPolicy,
		prompts:     prompts,
	}
}
