package payment

import (
	"fmt"
	"time"

	"github.com/moneta-pay/moneta/internal/shared/biztime"
)

// Status is the confirmation status of a payment. There are exactly two
// states; invoice expiry is handled upstream.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusSettled    Status = "settled"
)

// Details is the transfer-derived blob recorded with a payment.
type Details struct {
	SubaccountIndex uint64 `json:"subaccountIndex"`
	SubaddressIndex uint64 `json:"subaddressIndex"`
	TransactionID   string `json:"transactionId"`
	Confirmations   int64  `json:"confirmations"`
	BlockHeight     int64  `json:"blockHeight"`
	LockTime        int64  `json:"lockTime"`
	// SettledConfirmationThreshold is the invoice-level override in effect
	// when the payment was recorded.
	SettledConfirmationThreshold *int64 `json:"settledConfirmationThreshold,omitempty"`
}

// RecordID builds the deterministic payment id used for idempotent upserts.
func RecordID(txID string, accountIndex, addressIndex uint64) string {
	return fmt.Sprintf("%s#%d#%d", txID, accountIndex, addressIndex)
}

// Payment is the service's own record of a transfer applied to an invoice.
// Re-observing the same transfer updates the record instead of creating a
// duplicate.
type Payment struct {
	id          string
	invoiceID   string
	methodID    string
	destination string
	currency    string
	amountRaw   uint64
	status      Status
	details     Details
	createdAt   time.Time
	updatedAt   time.Time
}

func NewPayment(invoiceID, methodID, destination, currency string, amountRaw uint64, status Status, details Details) (*Payment, error) {
	if invoiceID == "" {
		return nil, fmt.Errorf("invoice id is required")
	}
	if methodID == "" {
		return nil, fmt.Errorf("payment method id is required")
	}
	if details.TransactionID == "" {
		return nil, fmt.Errorf("transaction id is required")
	}

	now := biztime.NowUTC()
	return &Payment{
		id:          RecordID(details.TransactionID, details.SubaccountIndex, details.SubaddressIndex),
		invoiceID:   invoiceID,
		methodID:    methodID,
		destination: destination,
		currency:    currency,
		amountRaw:   amountRaw,
		status:      status,
		details:     details,
		createdAt:   now,
		updatedAt:   now,
	}, nil
}

// ApplyObservation updates status and details from a re-observation of the
// same transfer. The identity fields never change.
func (p *Payment) ApplyObservation(status Status, details Details) error {
	if RecordID(details.TransactionID, details.SubaccountIndex, details.SubaddressIndex) != p.id {
		return fmt.Errorf("observation does not belong to payment %s", p.id)
	}

	p.status = status
	p.details = details
	p.updatedAt = biztime.NowUTC()
	return nil
}

func (p *Payment) ID() string {
	return p.id
}

func (p *Payment) InvoiceID() string {
	return p.invoiceID
}

func (p *Payment) MethodID() string {
	return p.methodID
}

func (p *Payment) Destination() string {
	return p.destination
}

func (p *Payment) Currency() string {
	return p.currency
}

// AmountRaw is the received amount in atomic units.
func (p *Payment) AmountRaw() uint64 {
	return p.amountRaw
}

func (p *Payment) Status() Status {
	return p.status
}

func (p *Payment) Details() Details {
	return p.details
}

func (p *Payment) CreatedAt() time.Time {
	return p.createdAt
}

func (p *Payment) UpdatedAt() time.Time {
	return p.updatedAt
}

// IsSettled reports whether the payment reached its confirmation threshold.
func (p *Payment) IsSettled() bool {
	return p.status == StatusSettled
}

// ReconstructPayment creates a Payment instance from persistence.
func ReconstructPayment(
	id, invoiceID, methodID, destination, currency string,
	amountRaw uint64,
	status Status,
	details Details,
	createdAt, updatedAt time.Time,
) *Payment {
	return &Payment{
		id:          id,
		invoiceID:   invoiceID,
		methodID:    methodID,
		destination: destination,
		currency:    currency,
		amountRaw:   amountRaw,
		status:      status,
		details:     details,
		createdAt:   createdAt,
		updatedAt:   updatedAt,
	}
}
