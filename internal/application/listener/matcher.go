package listener

import (
	"github.com/moneta-pay/moneta/internal/domain/invoice"
	"github.com/moneta-pay/moneta/internal/domain/payment"
	"github.com/moneta-pay/moneta/internal/infrastructure/walletrpc"
	"github.com/moneta-pay/moneta/internal/shared/logger"
)

// expandedInvoice couples a pending invoice with its prompt for the scanned
// payment method and the payments already recorded against it.
type expandedInvoice struct {
	invoice  *invoice.Invoice
	prompt   *invoice.PaymentPrompt
	existing []*payment.Payment
}

// Matcher correlates observed wallet transfers with pending invoices.
type Matcher struct {
	log logger.Interface
}

func NewMatcher(log logger.Interface) *Matcher {
	return &Matcher{log: log}
}

// Match resolves the invoice a transfer settles, or nil when the transfer
// belongs to no tracked invoice.
//
// An existing payment whose destination and transaction id both equal the
// transfer's always wins over a fresh prompt match, so a previously matched
// transfer is re-attributed to the same invoice even when addresses reappear
// in multiple candidate sets.
func (m *Matcher) Match(transfer walletrpc.Transfer, candidates []expandedInvoice) *invoice.Invoice {
	var continuation *invoice.Invoice
	for _, candidate := range candidates {
		for _, existing := range candidate.existing {
			if existing.Destination() != transfer.Address || existing.Details().TransactionID != transfer.TxID {
				continue
			}
			if continuation != nil && continuation.ID() != candidate.invoice.ID() {
				// Two invoices owning payments with identical (address, txid)
				// means the matching logic or a concurrent pass misbehaved.
				m.log.Errorw("conflicting payment records match transfer",
					"txid", transfer.TxID,
					"address", transfer.Address,
					"invoice_id", continuation.ID(),
					"conflicting_invoice_id", candidate.invoice.ID(),
				)
				continue
			}
			continuation = candidate.invoice
		}
	}
	if continuation != nil {
		return continuation
	}

	for _, candidate := range candidates {
		if candidate.prompt == nil || !candidate.prompt.Activated() {
			continue
		}
		if candidate.prompt.Destination() == transfer.Address {
			return candidate.invoice
		}
	}

	return nil
}
