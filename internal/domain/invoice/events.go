package invoice

import (
	"github.com/moneta-pay/moneta/internal/domain/shared/events"
	"github.com/moneta-pay/moneta/internal/shared/biztime"
)

const (
	// EventTypeInvoiceNeedsUpdate signals that at least one payment of the
	// invoice changed during a reconciliation pass.
	EventTypeInvoiceNeedsUpdate = "invoice.needs_update"
)

// NeedsUpdateEvent is published once per invoice per reconciliation pass.
type NeedsUpdateEvent struct {
	events.BaseEvent
	InvoiceID string `json:"invoice_id"`
}

func NewNeedsUpdateEvent(invoiceID string) *NeedsUpdateEvent {
	return &NeedsUpdateEvent{
		BaseEvent: events.BaseEvent{
			AggregateID: invoiceID,
			EventType:   EventTypeInvoiceNeedsUpdate,
			OccurredAt:  biztime.NowUTC(),
		},
		InvoiceID: invoiceID,
	}
}
