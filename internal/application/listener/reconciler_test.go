package listener

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/moneta-pay/moneta/internal/domain/invoice"
	"github.com/moneta-pay/moneta/internal/domain/payment"
	"github.com/moneta-pay/moneta/internal/domain/shared/events"
	"github.com/moneta-pay/moneta/internal/infrastructure/walletrpc"
)

type mockWalletClient struct {
	mock.Mock
}

func (m *mockWalletClient) GetTransfers(ctx context.Context, accountIndex uint64, subaddrIndices []uint64) ([]walletrpc.Transfer, error) {
	args := m.Called(ctx, accountIndex, subaddrIndices)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]walletrpc.Transfer), args.Error(1)
}

func (m *mockWalletClient) GetAccounts(ctx context.Context) ([]uint64, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uint64), args.Error(1)
}

func (m *mockWalletClient) GetTransferByTxID(ctx context.Context, txID string, accountIndex *uint64) (*walletrpc.TransferByTxID, error) {
	args := m.Called(ctx, txID, accountIndex)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*walletrpc.TransferByTxID), args.Error(1)
}

func (m *mockWalletClient) GetHeight(ctx context.Context) (uint64, error) {
	args := m.Called(ctx)
	return args.Get(0).(uint64), args.Error(1)
}

type stubWalletSource struct {
	client walletrpc.WalletClient
}

func (s *stubWalletSource) Client(currency string) (walletrpc.WalletClient, bool) {
	if s.client == nil {
		return nil, false
	}
	return s.client, true
}

type mockInvoiceRepository struct {
	mock.Mock
}

func (m *mockInvoiceRepository) GetMonitoredInvoices(ctx context.Context, methodID string) ([]*invoice.Invoice, error) {
	args := m.Called(ctx, methodID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*invoice.Invoice), args.Error(1)
}

func (m *mockInvoiceRepository) GetInvoiceFromAddress(ctx context.Context, methodID, address string) (*invoice.Invoice, error) {
	args := m.Called(ctx, methodID, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoice.Invoice), args.Error(1)
}

func (m *mockInvoiceRepository) GetInvoice(ctx context.Context, id string) (*invoice.Invoice, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoice.Invoice), args.Error(1)
}

func (m *mockInvoiceRepository) ActivatePaymentMethod(ctx context.Context, invoiceID, methodID string) error {
	args := m.Called(ctx, invoiceID, methodID)
	return args.Error(0)
}

type mockPaymentRepository struct {
	mock.Mock
}

func (m *mockPaymentRepository) AddPayment(ctx context.Context, p *payment.Payment, relatedTxIDs []string) (*payment.Payment, error) {
	args := m.Called(ctx, p, relatedTxIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Payment), args.Error(1)
}

func (m *mockPaymentRepository) UpdatePayments(ctx context.Context, payments []*payment.Payment) error {
	args := m.Called(ctx, payments)
	return args.Error(0)
}

func (m *mockPaymentRepository) GetByInvoice(ctx context.Context, invoiceID, methodID string) ([]*payment.Payment, error) {
	args := m.Called(ctx, invoiceID, methodID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*payment.Payment), args.Error(1)
}

// capturingPublisher records every published event in order.
type capturingPublisher struct {
	mu     sync.Mutex
	events []events.DomainEvent
}

func (p *capturingPublisher) Publish(event events.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturingPublisher) PublishAll(evts []events.DomainEvent) error {
	for _, e := range evts {
		if err := p.Publish(e); err != nil {
			return err
		}
	}
	return nil
}

func (p *capturingPublisher) byType(eventType string) []events.DomainEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.DomainEvent
	for _, e := range p.events {
		if e.GetEventType() == eventType {
			out = append(out, e)
		}
	}
	return out
}

// passthroughLocker runs the critical section inline.
type passthroughLocker struct{}

func (passthroughLocker) WithLock(ctx context.Context, key string, fn func() error) error {
	return fn()
}

func activatedInvoice(t *testing.T, id, destination string, account, addr uint64, due uint64) *invoice.Invoice {
	t.Helper()
	prompt, err := invoice.NewPaymentPrompt("XMR-CHAIN", destination, true, due, invoice.PromptDetails{
		AccountIndex: account,
		AddressIndex: addr,
	})
	require.NoError(t, err)
	inv, err := invoice.NewInvoice(id, invoice.SpeedPolicyLow, []invoice.PaymentPrompt{prompt})
	require.NoError(t, err)
	return inv
}

func newTestReconciler(client walletrpc.WalletClient, invoices *mockInvoiceRepository, payments *mockPaymentRepository, bus events.EventPublisher) *Reconciler {
	return NewReconciler(&stubWalletSource{client: client}, invoices, payments, bus, passthroughLocker{}, testLogger())
}

func TestReconcileAll_StoreDeclinesWhenFullyPaid(t *testing.T) {
	client := new(mockWalletClient)
	invoices := new(mockInvoiceRepository)
	payments := new(mockPaymentRepository)
	bus := &capturingPublisher{}

	inv := activatedInvoice(t, "inv1", "addrA", 0, 1, 100)

	payments.On("GetByInvoice", mock.Anything, "inv1", "XMR-CHAIN").Return([]*payment.Payment{}, nil)
	client.On("GetTransfers", mock.Anything, uint64(0), []uint64{1}).Return([]walletrpc.Transfer{
		{
			Address:       "addrA",
			Amount:        100,
			Confirmations: 6,
			Height:        1000,
			TxID:          "tx1",
			SubaddrIndex:  walletrpc.SubaddrIndex{Major: 0, Minor: 1},
		},
	}, nil)

	payments.On("AddPayment", mock.Anything, mock.MatchedBy(func(p *payment.Payment) bool {
		return p.ID() == "tx1#0#1" && p.InvoiceID() == "inv1" && p.AmountRaw() == 100 && p.IsSettled()
	}), []string{"tx1"}).Return(nil, nil).Once()

	err := newTestReconciler(client, invoices, payments, bus).ReconcileAll(context.Background(), "XMR", []*invoice.Invoice{inv})
	require.NoError(t, err)

	payments.AssertExpectations(t)
	client.AssertExpectations(t)

	// The store declined (nil result), so no received event was published and
	// no batch update ran.
	assert.Empty(t, bus.byType(payment.EventTypePaymentReceived))
	payments.AssertNotCalled(t, "UpdatePayments", mock.Anything, mock.Anything)
	invoices.AssertNotCalled(t, "ActivatePaymentMethod", mock.Anything, mock.Anything, mock.Anything)
}

func TestReconcileAll_NewPaymentPublishesReceived(t *testing.T) {
	client := new(mockWalletClient)
	invoices := new(mockInvoiceRepository)
	payments := new(mockPaymentRepository)
	bus := &capturingPublisher{}

	inv := activatedInvoice(t, "inv1", "addrA", 0, 1, 100)

	recorded, err := payment.NewPayment("inv1", "XMR-CHAIN", "addrA", "XMR", 100, payment.StatusSettled,
		payment.Details{TransactionID: "tx1", SubaccountIndex: 0, SubaddressIndex: 1, Confirmations: 6})
	require.NoError(t, err)

	payments.On("GetByInvoice", mock.Anything, "inv1", "XMR-CHAIN").Return([]*payment.Payment{}, nil)
	client.On("GetTransfers", mock.Anything, uint64(0), []uint64{1}).Return([]walletrpc.Transfer{
		{
			Address:       "addrA",
			Amount:        100,
			Confirmations: 6,
			TxID:          "tx1",
			SubaddrIndex:  walletrpc.SubaddrIndex{Major: 0, Minor: 1},
		},
	}, nil)
	payments.On("AddPayment", mock.Anything, mock.Anything, []string{"tx1"}).Return(recorded, nil).Once()

	invoices.On("ActivatePaymentMethod", mock.Anything, "inv1", "XMR-CHAIN").Return(nil).Once()
	invoices.On("GetInvoice", mock.Anything, "inv1").Return(inv, nil).Once()

	err = newTestReconciler(client, invoices, payments, bus).ReconcileAll(context.Background(), "XMR", []*invoice.Invoice{inv})
	require.NoError(t, err)

	invoices.AssertExpectations(t)

	received := bus.byType(payment.EventTypePaymentReceived)
	require.Len(t, received, 1)
	evt := received[0].(*payment.ReceivedEvent)
	assert.Equal(t, "inv1", evt.InvoiceID)
	assert.Equal(t, "tx1#0#1", evt.PaymentID)
	assert.Equal(t, uint64(100), evt.AmountRaw)
}

func TestReconcileAll_UpdatesExistingPayment(t *testing.T) {
	client := new(mockWalletClient)
	invoices := new(mockInvoiceRepository)
	payments := new(mockPaymentRepository)
	bus := &capturingPublisher{}

	inv := activatedInvoice(t, "inv1", "addrA", 0, 1, 100)

	existing, err := payment.NewPayment("inv1", "XMR-CHAIN", "addrA", "XMR", 100, payment.StatusProcessing,
		payment.Details{TransactionID: "tx1", SubaccountIndex: 0, SubaddressIndex: 1, Confirmations: 1})
	require.NoError(t, err)

	payments.On("GetByInvoice", mock.Anything, "inv1", "XMR-CHAIN").Return([]*payment.Payment{existing}, nil)
	client.On("GetTransfers", mock.Anything, uint64(0), []uint64{1}).Return([]walletrpc.Transfer{
		{
			Address:       "addrA",
			Amount:        100,
			Confirmations: 6,
			TxID:          "tx1",
			SubaddrIndex:  walletrpc.SubaddrIndex{Major: 0, Minor: 1},
		},
	}, nil)
	payments.On("UpdatePayments", mock.Anything, []*payment.Payment{existing}).Return(nil).Once()

	err = newTestReconciler(client, invoices, payments, bus).ReconcileAll(context.Background(), "XMR", []*invoice.Invoice{inv})
	require.NoError(t, err)

	payments.AssertExpectations(t)
	payments.AssertNotCalled(t, "AddPayment", mock.Anything, mock.Anything, mock.Anything)

	// The re-observation crossed the threshold.
	assert.True(t, existing.IsSettled())

	needsUpdate := bus.byType(invoice.EventTypeInvoiceNeedsUpdate)
	require.Len(t, needsUpdate, 1)
	assert.Equal(t, "inv1", needsUpdate[0].GetAggregateID())
	assert.Empty(t, bus.byType(payment.EventTypePaymentReceived))
}

func TestReconcileAll_OneQueryPerAccountWithUnionOfIndices(t *testing.T) {
	client := new(mockWalletClient)
	invoices := new(mockInvoiceRepository)
	payments := new(mockPaymentRepository)
	bus := &capturingPublisher{}

	// Two invoices on account 0, one of them with a recorded payment on
	// subaddress 7; one invoice on account 3.
	inv1 := activatedInvoice(t, "inv1", "addrA", 0, 1, 100)
	inv2 := activatedInvoice(t, "inv2", "addrB", 0, 2, 100)
	inv3 := activatedInvoice(t, "inv3", "addrC", 3, 4, 100)

	historical, err := payment.NewPayment("inv1", "XMR-CHAIN", "addrH", "XMR", 10, payment.StatusSettled,
		payment.Details{TransactionID: "tx0", SubaccountIndex: 0, SubaddressIndex: 7, Confirmations: 10})
	require.NoError(t, err)

	payments.On("GetByInvoice", mock.Anything, "inv1", "XMR-CHAIN").Return([]*payment.Payment{historical}, nil)
	payments.On("GetByInvoice", mock.Anything, "inv2", "XMR-CHAIN").Return([]*payment.Payment{}, nil)
	payments.On("GetByInvoice", mock.Anything, "inv3", "XMR-CHAIN").Return([]*payment.Payment{}, nil)

	client.On("GetTransfers", mock.Anything, uint64(0), mock.MatchedBy(func(indices []uint64) bool {
		seen := make(map[uint64]bool, len(indices))
		for _, idx := range indices {
			seen[idx] = true
		}
		return len(indices) == 3 && seen[1] && seen[2] && seen[7]
	})).Return([]walletrpc.Transfer{}, nil).Once()
	client.On("GetTransfers", mock.Anything, uint64(3), []uint64{4}).Return([]walletrpc.Transfer{}, nil).Once()

	err = newTestReconciler(client, invoices, payments, bus).ReconcileAll(context.Background(), "XMR",
		[]*invoice.Invoice{inv1, inv2, inv3})
	require.NoError(t, err)

	client.AssertExpectations(t)
	client.AssertNumberOfCalls(t, "GetTransfers", 2)
}

func TestReconcileAll_AccountFailureDoesNotAbortOthers(t *testing.T) {
	client := new(mockWalletClient)
	invoices := new(mockInvoiceRepository)
	payments := new(mockPaymentRepository)
	bus := &capturingPublisher{}

	inv1 := activatedInvoice(t, "inv1", "addrA", 0, 1, 100)
	inv2 := activatedInvoice(t, "inv2", "addrB", 3, 4, 100)

	existing, err := payment.NewPayment("inv2", "XMR-CHAIN", "addrB", "XMR", 50, payment.StatusProcessing,
		payment.Details{TransactionID: "tx2", SubaccountIndex: 3, SubaddressIndex: 4, Confirmations: 2})
	require.NoError(t, err)

	payments.On("GetByInvoice", mock.Anything, "inv1", "XMR-CHAIN").Return([]*payment.Payment{}, nil)
	payments.On("GetByInvoice", mock.Anything, "inv2", "XMR-CHAIN").Return([]*payment.Payment{existing}, nil)

	client.On("GetTransfers", mock.Anything, uint64(0), mock.Anything).Return(nil, fmt.Errorf("rpc timeout"))
	client.On("GetTransfers", mock.Anything, uint64(3), mock.Anything).Return([]walletrpc.Transfer{
		{
			Address:       "addrB",
			Amount:        50,
			Confirmations: 6,
			TxID:          "tx2",
			SubaddrIndex:  walletrpc.SubaddrIndex{Major: 3, Minor: 4},
		},
	}, nil)
	payments.On("UpdatePayments", mock.Anything, []*payment.Payment{existing}).Return(nil).Once()

	err = newTestReconciler(client, invoices, payments, bus).ReconcileAll(context.Background(), "XMR",
		[]*invoice.Invoice{inv1, inv2})
	require.NoError(t, err)

	payments.AssertExpectations(t)
}

func TestReconcileOne_ProbesAccountsSequentially(t *testing.T) {
	client := new(mockWalletClient)
	invoices := new(mockInvoiceRepository)
	payments := new(mockPaymentRepository)
	bus := &capturingPublisher{}

	inv := activatedInvoice(t, "inv1", "addrA", 1, 2, 100)

	client.On("GetAccounts", mock.Anything).Return([]uint64{0, 1}, nil)

	detail := &walletrpc.TransferByTxID{
		Transfer: walletrpc.Transfer{
			Address:       "addrA",
			Amount:        50,
			Confirmations: 6,
			TxID:          "tx1",
			SubaddrIndex:  walletrpc.SubaddrIndex{Major: 1, Minor: 2},
		},
		Transfers: []walletrpc.Transfer{
			{Address: "addrA", Amount: 30, TxID: "tx1", SubaddrIndex: walletrpc.SubaddrIndex{Major: 1, Minor: 2}},
			{Address: "addrA", Amount: 20, TxID: "tx1", SubaddrIndex: walletrpc.SubaddrIndex{Major: 1, Minor: 2}},
		},
	}

	account0 := uint64(0)
	account1 := uint64(1)
	client.On("GetTransferByTxID", mock.Anything, "tx1", &account0).
		Return(nil, fmt.Errorf("%w: not owned", walletrpc.ErrTransferNotFound)).Once()
	client.On("GetTransferByTxID", mock.Anything, "tx1", &account1).Return(detail, nil).Once()

	invoices.On("GetInvoiceFromAddress", mock.Anything, "XMR-CHAIN", "addrA").Return(inv, nil)
	payments.On("GetByInvoice", mock.Anything, "inv1", "XMR-CHAIN").Return([]*payment.Payment{}, nil)

	recorded, err := payment.NewPayment("inv1", "XMR-CHAIN", "addrA", "XMR", 50, payment.StatusSettled,
		payment.Details{TransactionID: "tx1", SubaccountIndex: 1, SubaddressIndex: 2, Confirmations: 6})
	require.NoError(t, err)

	// Destination amounts are summed per address before the upsert.
	payments.On("AddPayment", mock.Anything, mock.MatchedBy(func(p *payment.Payment) bool {
		return p.AmountRaw() == 50 && p.ID() == "tx1#1#2"
	}), []string{"tx1"}).Return(recorded, nil).Once()
	invoices.On("ActivatePaymentMethod", mock.Anything, "inv1", "XMR-CHAIN").Return(nil)
	invoices.On("GetInvoice", mock.Anything, "inv1").Return(inv, nil)

	err = newTestReconciler(client, invoices, payments, bus).ReconcileOne(context.Background(), "XMR", "tx1")
	require.NoError(t, err)

	client.AssertExpectations(t)
	payments.AssertExpectations(t)
	require.Len(t, bus.byType(payment.EventTypePaymentReceived), 1)
}

func TestReconcileOne_UnknownTransactionIsNotAnError(t *testing.T) {
	client := new(mockWalletClient)
	invoices := new(mockInvoiceRepository)
	payments := new(mockPaymentRepository)
	bus := &capturingPublisher{}

	client.On("GetAccounts", mock.Anything).Return([]uint64{0, 1}, nil)
	client.On("GetTransferByTxID", mock.Anything, "txX", mock.Anything).
		Return(nil, fmt.Errorf("%w: not owned", walletrpc.ErrTransferNotFound))

	err := newTestReconciler(client, invoices, payments, bus).ReconcileOne(context.Background(), "XMR", "txX")
	require.NoError(t, err)

	payments.AssertNotCalled(t, "AddPayment", mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, bus.events)
}

func TestReconcileOne_UntrackedAddressIsSkipped(t *testing.T) {
	client := new(mockWalletClient)
	invoices := new(mockInvoiceRepository)
	payments := new(mockPaymentRepository)
	bus := &capturingPublisher{}

	detail := &walletrpc.TransferByTxID{
		Transfer:  walletrpc.Transfer{Address: "addrZ", Amount: 10, TxID: "tx1"},
		Transfers: []walletrpc.Transfer{{Address: "addrZ", Amount: 10, TxID: "tx1"}},
	}

	client.On("GetAccounts", mock.Anything).Return([]uint64{0}, nil)
	client.On("GetTransferByTxID", mock.Anything, "tx1", mock.Anything).Return(detail, nil)
	invoices.On("GetInvoiceFromAddress", mock.Anything, "XMR-CHAIN", "addrZ").Return(nil, nil)

	err := newTestReconciler(client, invoices, payments, bus).ReconcileOne(context.Background(), "XMR", "tx1")
	require.NoError(t, err)

	payments.AssertNotCalled(t, "AddPayment", mock.Anything, mock.Anything, mock.Anything)
}
