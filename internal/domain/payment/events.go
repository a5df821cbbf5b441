package payment

import (
	"github.com/moneta-pay/moneta/internal/domain/shared/events"
	"github.com/moneta-pay/moneta/internal/shared/biztime"
)

const (
	// EventTypePaymentReceived signals a freshly recorded payment.
	EventTypePaymentReceived = "payment.received"

	// EventTypeNewBlockProcessed signals that a new-block scan finished for
	// a payment method.
	EventTypeNewBlockProcessed = "payment.new_block_processed"
)

// ReceivedEvent is published when a transfer is recorded against an invoice
// for the first time.
type ReceivedEvent struct {
	events.BaseEvent
	InvoiceID string `json:"invoice_id"`
	PaymentID string `json:"payment_id"`
	MethodID  string `json:"method_id"`
	AmountRaw uint64 `json:"amount_raw"`
	Currency  string `json:"currency"`
}

func NewReceivedEvent(p *Payment) *ReceivedEvent {
	return &ReceivedEvent{
		BaseEvent: events.BaseEvent{
			AggregateID: p.InvoiceID(),
			EventType:   EventTypePaymentReceived,
			OccurredAt:  biztime.NowUTC(),
		},
		InvoiceID: p.InvoiceID(),
		PaymentID: p.ID(),
		MethodID:  p.MethodID(),
		AmountRaw: p.AmountRaw(),
		Currency:  p.Currency(),
	}
}

// NewBlockProcessedEvent is published after a bulk scan triggered by a new
// block completes.
type NewBlockProcessedEvent struct {
	events.BaseEvent
	MethodID string `json:"method_id"`
}

func NewNewBlockProcessedEvent(methodID string) *NewBlockProcessedEvent {
	return &NewBlockProcessedEvent{
		BaseEvent: events.BaseEvent{
			AggregateID: methodID,
			EventType:   EventTypeNewBlockProcessed,
			OccurredAt:  biztime.NowUTC(),
		},
		MethodID: methodID,
	}
}
