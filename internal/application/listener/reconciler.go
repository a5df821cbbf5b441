package listener

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/moneta-pay/moneta/internal/domain/invoice"
	"github.com/moneta-pay/moneta/internal/domain/payment"
	"github.com/moneta-pay/moneta/internal/domain/shared/events"
	"github.com/moneta-pay/moneta/internal/infrastructure/walletrpc"
	"github.com/moneta-pay/moneta/internal/shared/logger"
)

// WalletSource resolves the wallet client for a currency.
type WalletSource interface {
	Client(currency string) (walletrpc.WalletClient, bool)
}

// ReconcileLocker serializes the read-existing/create-or-update critical
// section per invoice, so two concurrent passes cannot both decide "no
// existing payment" and create duplicates for the same key.
type ReconcileLocker interface {
	WithLock(ctx context.Context, key string, fn func() error) error
}

// observation is one transfer-derived fact ready for the upsert path.
type observation struct {
	destination   string
	amountRaw     uint64
	accountIndex  uint64
	addressIndex  uint64
	txID          string
	confirmations int64
	blockHeight   int64
	lockTime      int64
}

// reconcileBatch accumulates in-place payment updates for one pass so the
// store sees a single batched write and each invoice a single notification.
type reconcileBatch struct {
	updated []*payment.Payment
	touched map[string]struct{}
	order   []string
}

func newReconcileBatch() *reconcileBatch {
	return &reconcileBatch{touched: make(map[string]struct{})}
}

func (b *reconcileBatch) add(p *payment.Payment, invoiceID string) {
	b.updated = append(b.updated, p)
	if _, seen := b.touched[invoiceID]; !seen {
		b.touched[invoiceID] = struct{}{}
		b.order = append(b.order, invoiceID)
	}
}

// Reconciler merges wallet-observed transfers with invoice state, creating
// or updating payment records and surfacing invoice change notifications.
type Reconciler struct {
	wallets  WalletSource
	invoices invoice.Repository
	payments payment.Repository
	bus      events.EventPublisher
	locks    ReconcileLocker
	matcher  *Matcher
	log      logger.Interface
}

func NewReconciler(
	wallets WalletSource,
	invoices invoice.Repository,
	payments payment.Repository,
	bus events.EventPublisher,
	locks ReconcileLocker,
	log logger.Interface,
) *Reconciler {
	return &Reconciler{
		wallets:  wallets,
		invoices: invoices,
		payments: payments,
		bus:      bus,
		locks:    locks,
		matcher:  NewMatcher(log),
		log:      log,
	}
}

// ReconcileAll scans incoming transfers for every given invoice. Invoices
// are grouped by wallet account so each distinct account is queried exactly
// once, covering the union of address indices of interest; account queries
// run concurrently and are joined before matching.
func (r *Reconciler) ReconcileAll(ctx context.Context, currency string, invoices []*invoice.Invoice) error {
	if len(invoices) == 0 {
		return nil
	}

	client, ok := r.wallets.Client(currency)
	if !ok {
		return fmt.Errorf("no wallet client configured for %s", currency)
	}
	methodID := invoice.ChainMethodID(currency)

	candidates := r.expandInvoices(ctx, methodID, invoices)
	if len(candidates) == 0 {
		return nil
	}

	accountQuery := buildAccountQuery(candidates)

	type accountResult struct {
		account   uint64
		transfers []walletrpc.Transfer
		err       error
	}

	results := make([]accountResult, 0, len(accountQuery))
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for account, addrIndices := range accountQuery {
		wg.Add(1)
		go func(account uint64, addrIndices []uint64) {
			defer wg.Done()
			transfers, err := client.GetTransfers(ctx, account, addrIndices)
			mu.Lock()
			results = append(results, accountResult{account: account, transfers: transfers, err: err})
			mu.Unlock()
		}(account, addrIndices)
	}
	wg.Wait()

	batch := newReconcileBatch()
	for _, result := range results {
		if result.err != nil {
			r.log.Warnw("incoming transfers query failed",
				"currency", currency,
				"account_index", result.account,
				"error", result.err,
			)
			continue
		}

		for _, transfer := range result.transfers {
			matched := r.matcher.Match(transfer, candidates)
			if matched == nil {
				continue
			}

			obs := observation{
				destination:   transfer.Address,
				amountRaw:     uint64(transfer.Amount),
				accountIndex:  uint64(transfer.SubaddrIndex.Major),
				addressIndex:  uint64(transfer.SubaddrIndex.Minor),
				txID:          transfer.TxID,
				confirmations: int64(transfer.Confirmations),
				blockHeight:   int64(transfer.Height),
				lockTime:      int64(transfer.UnlockTime),
			}
			if err := r.upsert(ctx, currency, methodID, matched, existingFor(candidates, matched.ID()), obs, batch); err != nil {
				r.log.Warnw("failed to apply transfer",
					"currency", currency,
					"txid", transfer.TxID,
					"invoice_id", matched.ID(),
					"error", err,
				)
			}
		}
	}

	return r.flush(ctx, currency, batch)
}

// ReconcileOne scans a single transaction. Every wallet account is probed in
// turn; an account not owning the transaction is a normal outcome and the
// next account is tried, first hit wins.
func (r *Reconciler) ReconcileOne(ctx context.Context, currency, txID string) error {
	client, ok := r.wallets.Client(currency)
	if !ok {
		return fmt.Errorf("no wallet client configured for %s", currency)
	}
	methodID := invoice.ChainMethodID(currency)

	detail, err := r.findTransfer(ctx, client, currency, txID)
	if err != nil {
		return err
	}
	if detail == nil {
		r.log.Debugw("transaction unknown to wallet", "currency", currency, "txid", txID)
		return nil
	}

	batch := newReconcileBatch()

	// Group the transaction's destinations by address and apply the upsert
	// path once per address with the summed amount.
	for _, group := range groupByAddress(detail.Transfers) {
		inv, err := r.invoices.GetInvoiceFromAddress(ctx, methodID, group.address)
		if err != nil {
			r.log.Warnw("invoice lookup by address failed",
				"currency", currency,
				"address", group.address,
				"error", err,
			)
			continue
		}
		if inv == nil {
			continue
		}

		existing, err := r.payments.GetByInvoice(ctx, inv.ID(), methodID)
		if err != nil {
			r.log.Warnw("existing payments lookup failed",
				"currency", currency,
				"invoice_id", inv.ID(),
				"error", err,
			)
			continue
		}

		obs := observation{
			destination:   group.address,
			amountRaw:     group.amountRaw,
			accountIndex:  uint64(group.index.Major),
			addressIndex:  uint64(group.index.Minor),
			txID:          detail.Transfer.TxID,
			confirmations: int64(detail.Transfer.Confirmations),
			blockHeight:   int64(detail.Transfer.Height),
			lockTime:      int64(detail.Transfer.UnlockTime),
		}
		if err := r.upsert(ctx, currency, methodID, inv, existing, obs, batch); err != nil {
			r.log.Warnw("failed to apply transfer",
				"currency", currency,
				"txid", txID,
				"invoice_id", inv.ID(),
				"error", err,
			)
		}
	}

	return r.flush(ctx, currency, batch)
}

// expandInvoices resolves each invoice's prompt and recorded payments. An
// invoice whose payments cannot be loaded is skipped for this pass only.
func (r *Reconciler) expandInvoices(ctx context.Context, methodID string, invoices []*invoice.Invoice) []expandedInvoice {
	candidates := make([]expandedInvoice, 0, len(invoices))
	for _, inv := range invoices {
		prompt := inv.PaymentPrompt(methodID)
		if prompt == nil {
			continue
		}

		existing, err := r.payments.GetByInvoice(ctx, inv.ID(), methodID)
		if err != nil {
			r.log.Warnw("existing payments lookup failed",
				"invoice_id", inv.ID(),
				"method_id", methodID,
				"error", err,
			)
			continue
		}

		candidates = append(candidates, expandedInvoice{
			invoice:  inv,
			prompt:   prompt,
			existing: existing,
		})
	}
	return candidates
}

// buildAccountQuery maps each wallet account to the union of address indices
// of interest: the prompt's expected index plus every subaddress index
// already used by recorded payments.
func buildAccountQuery(candidates []expandedInvoice) map[uint64][]uint64 {
	seen := make(map[uint64]map[uint64]struct{})
	for _, candidate := range candidates {
		details := candidate.prompt.Details()
		indices, ok := seen[details.AccountIndex]
		if !ok {
			indices = make(map[uint64]struct{})
			seen[details.AccountIndex] = indices
		}
		indices[details.AddressIndex] = struct{}{}
		for _, existing := range candidate.existing {
			indices[existing.Details().SubaddressIndex] = struct{}{}
		}
	}

	query := make(map[uint64][]uint64, len(seen))
	for account, indices := range seen {
		addrs := make([]uint64, 0, len(indices))
		for addr := range indices {
			addrs = append(addrs, addr)
		}
		query[account] = addrs
	}
	return query
}

func existingFor(candidates []expandedInvoice, invoiceID string) []*payment.Payment {
	for _, candidate := range candidates {
		if candidate.invoice.ID() == invoiceID {
			return candidate.existing
		}
	}
	return nil
}

// findTransfer probes accounts sequentially so an early hit short-circuits
// the remaining lookups.
func (r *Reconciler) findTransfer(ctx context.Context, client walletrpc.WalletClient, currency, txID string) (*walletrpc.TransferByTxID, error) {
	accounts, err := client.GetAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallet accounts: %w", err)
	}

	probes := make([]*uint64, 0, len(accounts))
	for i := range accounts {
		probes = append(probes, &accounts[i])
	}
	if len(probes) == 0 {
		probes = append(probes, nil)
	}

	for _, account := range probes {
		detail, err := client.GetTransferByTxID(ctx, txID, account)
		if err != nil {
			if errors.Is(err, walletrpc.ErrTransferNotFound) {
				continue
			}
			r.log.Warnw("transfer lookup failed",
				"currency", currency,
				"txid", txID,
				"error", err,
			)
			continue
		}
		return detail, nil
	}

	return nil, nil
}

type addressGroup struct {
	address   string
	amountRaw uint64
	index     walletrpc.SubaddrIndex
}

func groupByAddress(transfers []walletrpc.Transfer) []addressGroup {
	byAddress := make(map[string]int)
	groups := make([]addressGroup, 0, len(transfers))
	for _, transfer := range transfers {
		if idx, ok := byAddress[transfer.Address]; ok {
			groups[idx].amountRaw += uint64(transfer.Amount)
			continue
		}
		byAddress[transfer.Address] = len(groups)
		groups = append(groups, addressGroup{
			address:   transfer.Address,
			amountRaw: uint64(transfer.Amount),
			index:     transfer.SubaddrIndex,
		})
	}
	return groups
}

// upsert creates or updates the payment record for one resolved observation.
// The critical section runs under a per-invoice lock.
func (r *Reconciler) upsert(ctx context.Context, currency, methodID string, inv *invoice.Invoice, existing []*payment.Payment, obs observation, batch *reconcileBatch) error {
	prompt := inv.PaymentPrompt(methodID)
	if prompt == nil {
		return fmt.Errorf("invoice %s has no prompt for %s", inv.ID(), methodID)
	}

	details := payment.Details{
		SubaccountIndex:              obs.accountIndex,
		SubaddressIndex:              obs.addressIndex,
		TransactionID:                obs.txID,
		Confirmations:                obs.confirmations,
		BlockHeight:                  obs.blockHeight,
		LockTime:                     obs.lockTime,
		SettledConfirmationThreshold: prompt.Details().SettledConfirmationThreshold,
	}
	status := payment.StatusFor(details, inv.SpeedPolicy())
	recordID := payment.RecordID(obs.txID, obs.accountIndex, obs.addressIndex)

	return r.locks.WithLock(ctx, "reconcile:invoice:"+inv.ID(), func() error {
		var match *payment.Payment
		for _, p := range existing {
			if p.ID() == recordID && p.MethodID() == methodID {
				match = p
				break
			}
		}

		if match == nil {
			record, err := payment.NewPayment(inv.ID(), methodID, obs.destination, currency, obs.amountRaw, status, details)
			if err != nil {
				return err
			}
			created, err := r.payments.AddPayment(ctx, record, []string{obs.txID})
			if err != nil {
				return fmt.Errorf("failed to add payment %s: %w", recordID, err)
			}
			if created == nil {
				// The store declined the record because the invoice is
				// already fully covered.
				return nil
			}
			r.receivedPayment(ctx, inv, created, methodID)
			return nil
		}

		if err := match.ApplyObservation(status, details); err != nil {
			return err
		}
		batch.add(match, inv.ID())
		return nil
	})
}

// receivedPayment handles a freshly recorded payment: while a balance is
// still due on the activated prompt, the payment method is re-activated so a
// new receiving address is handed out, then the notification is published.
func (r *Reconciler) receivedPayment(ctx context.Context, inv *invoice.Invoice, p *payment.Payment, methodID string) {
	r.log.Infow("invoice received payment",
		"invoice_id", inv.ID(),
		"payment_id", p.ID(),
		"amount_raw", p.AmountRaw(),
		"currency", p.Currency(),
	)

	prompt := inv.PaymentPrompt(methodID)
	if prompt != nil && prompt.Activated() && prompt.Destination() == p.Destination() && prompt.DueRaw() > 0 {
		if err := r.invoices.ActivatePaymentMethod(ctx, inv.ID(), methodID); err != nil {
			r.log.Warnw("failed to activate payment method",
				"invoice_id", inv.ID(),
				"method_id", methodID,
				"error", err,
			)
		} else if refreshed, err := r.invoices.GetInvoice(ctx, inv.ID()); err != nil {
			r.log.Warnw("failed to refresh invoice after activation",
				"invoice_id", inv.ID(),
				"error", err,
			)
		} else if refreshed != nil {
			inv = refreshed
		}
	}

	if err := r.bus.Publish(payment.NewReceivedEvent(p)); err != nil {
		r.log.Warnw("failed to publish payment received event",
			"invoice_id", inv.ID(),
			"payment_id", p.ID(),
			"error", err,
		)
	}
}

// flush writes the batched updates in one store call and notifies each
// distinct invoice that had a payment updated.
func (r *Reconciler) flush(ctx context.Context, currency string, batch *reconcileBatch) error {
	if len(batch.updated) == 0 {
		return nil
	}

	if err := r.payments.UpdatePayments(ctx, batch.updated); err != nil {
		return fmt.Errorf("failed to update payments: %w", err)
	}

	r.log.Debugw("payments updated",
		"currency", currency,
		"count", len(batch.updated),
		"invoices", len(batch.order),
	)

	for _, invoiceID := range batch.order {
		if err := r.bus.Publish(invoice.NewNeedsUpdateEvent(invoiceID)); err != nil {
			r.log.Warnw("failed to publish invoice needs update event",
				"invoice_id", invoiceID,
				"error", err,
			)
		}
	}
	return nil
}
