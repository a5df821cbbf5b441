package listener

import (
	"github.com/moneta-pay/moneta/internal/domain/invoice"
	"github.com/moneta-pay/moneta/internal/domain/payment"
	"github.com/moneta-pay/moneta/internal/domain/shared/events"
	"github.com/moneta-pay/moneta/internal/shared/logger"
)

// RegisterEventLogging subscribes structured log handlers for every event the
// listener publishes. Downstream consumers subscribe their own handlers next
// to these.
func RegisterEventLogging(sub events.EventSubscriber, log logger.Interface) error {
	received := events.NewHandlerFunc(payment.EventTypePaymentReceived, func(e events.DomainEvent) error {
		if evt, ok := e.(*payment.ReceivedEvent); ok {
			log.Infow("payment received",
				"invoice_id", evt.InvoiceID,
				"payment_id", evt.PaymentID,
				"method_id", evt.MethodID,
				"amount_raw", evt.AmountRaw,
				"currency", evt.Currency,
			)
		}
		return nil
	})
	if err := sub.Subscribe(payment.EventTypePaymentReceived, received); err != nil {
		return err
	}

	needsUpdate := events.NewHandlerFunc(invoice.EventTypeInvoiceNeedsUpdate, func(e events.DomainEvent) error {
		log.Infow("invoice needs update", "invoice_id", e.GetAggregateID())
		return nil
	})
	if err := sub.Subscribe(invoice.EventTypeInvoiceNeedsUpdate, needsUpdate); err != nil {
		return err
	}

	newBlock := events.NewHandlerFunc(payment.EventTypeNewBlockProcessed, func(e events.DomainEvent) error {
		log.Debugw("new block scan finished", "method_id", e.GetAggregateID())
		return nil
	})
	return sub.Subscribe(payment.EventTypeNewBlockProcessed, newBlock)
}
