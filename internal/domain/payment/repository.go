package payment

import "context"

// Repository is the payment store consumed by the reconciliation core.
type Repository interface {
	// AddPayment persists a newly observed payment. Returns (nil, nil) when
	// the store rejects the record because the invoice is already fully
	// paid. relatedTxIDs lets the store index the payment by transaction id.
	AddPayment(ctx context.Context, p *Payment, relatedTxIDs []string) (*Payment, error)

	// UpdatePayments persists a batch of re-observed payments in one write.
	UpdatePayments(ctx context.Context, payments []*Payment) error

	// GetByInvoice returns every payment recorded against the invoice for
	// the given payment method.
	GetByInvoice(ctx context.Context, invoiceID, methodID string) ([]*Payment, error)
}
