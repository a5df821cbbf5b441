package invoice

import "context"

// Repository is the invoice store consumed by the reconciliation core.
type Repository interface {
	// GetMonitoredInvoices returns every invoice still awaiting payment for
	// the given payment method.
	GetMonitoredInvoices(ctx context.Context, methodID string) ([]*Invoice, error)

	// GetInvoiceFromAddress resolves the invoice whose prompt destination is
	// the given address. Returns (nil, nil) when no invoice tracks it;
	// absence is control flow for the caller, not an error.
	GetInvoiceFromAddress(ctx context.Context, methodID, address string) (*Invoice, error)

	// GetInvoice returns the invoice with the given id.
	GetInvoice(ctx context.Context, id string) (*Invoice, error)

	// ActivatePaymentMethod activates the invoice's prompt for the given
	// payment method so a fresh receiving address can be handed out while a
	// balance is still due.
	ActivatePaymentMethod(ctx context.Context, invoiceID, methodID string) error
}
