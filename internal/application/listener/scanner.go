package listener

import (
	"context"
	"strings"
	"sync"

	"github.com/moneta-pay/moneta/internal/domain/invoice"
	"github.com/moneta-pay/moneta/internal/domain/payment"
	"github.com/moneta-pay/moneta/internal/domain/shared/events"
	"github.com/moneta-pay/moneta/internal/shared/logger"
)

// SignalKind enumerates the external triggers the scanner reacts to. The
// variant is closed; there is no dynamic subscription.
type SignalKind int

const (
	// SignalDaemonAvailability reports a wallet daemon availability
	// transition for a currency.
	SignalDaemonAvailability SignalKind = iota
	// SignalNewBlock reports a freshly mined block for a currency.
	SignalNewBlock
	// SignalTransactionUpdated reports a wallet-observed change to one
	// transaction.
	SignalTransactionUpdated
)

// Signal is one inbound trigger. Fields beyond Kind and Currency are only
// meaningful for their kind.
type Signal struct {
	Kind      SignalKind
	Currency  string
	BlockHash string
	TxID      string
	Available bool
}

// State is the scanner's current activity, exposed for introspection.
type State string

const (
	StateIdle        State = "idle"
	StateScanningAll State = "scanning_all"
	StateScanningOne State = "scanning_one"
)

// Reconciling is the reconciler surface the scanner drives.
type Reconciling interface {
	ReconcileAll(ctx context.Context, currency string, invoices []*invoice.Invoice) error
	ReconcileOne(ctx context.Context, currency, txID string) error
}

const defaultSignalBuffer = 128

// Scanner pulls external signals in arrival order and drives the reconciler
// for the affected scope. Signals are processed strictly one at a time; a
// transient failure is logged and the signal dropped, the next triggering
// signal retries naturally.
type Scanner struct {
	reconciler Reconciling
	invoices   invoice.Repository
	bus        events.EventPublisher
	log        logger.Interface

	signals      chan Signal
	availability map[string]bool
	state        State

	mu       sync.RWMutex
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	running  bool
}

func NewScanner(reconciler Reconciling, invoices invoice.Repository, bus events.EventPublisher, signalBuffer int, log logger.Interface) *Scanner {
	if signalBuffer <= 0 {
		signalBuffer = defaultSignalBuffer
	}
	return &Scanner{
		reconciler:   reconciler,
		invoices:     invoices,
		bus:          bus,
		log:          log,
		signals:      make(chan Signal, signalBuffer),
		availability: make(map[string]bool),
		state:        StateIdle,
		stopChan:     make(chan struct{}),
	}
}

// Notify enqueues a signal for processing. Accepting a signal never blocks a
// scan in progress; when the queue is full the signal is dropped with a
// warning.
func (s *Scanner) Notify(sig Signal) {
	sig.Currency = strings.ToUpper(sig.Currency)
	select {
	case s.signals <- sig:
	default:
		s.log.Warnw("signal queue full, dropping signal",
			"kind", sig.Kind,
			"currency", sig.Currency,
		)
	}
}

// Start launches the single-consumer event loop.
func (s *Scanner) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.log.Infow("starting payment scanner")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runLoop(ctx)
	}()
}

// Stop stops the event loop and waits for the in-flight signal to finish.
func (s *Scanner) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()

		close(s.stopChan)
		s.wg.Wait()
		s.log.Infow("payment scanner stopped")
	})
}

// State returns the scanner's current activity.
func (s *Scanner) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// IsAvailable reports the last known daemon availability for a currency.
func (s *Scanner) IsAvailable(currency string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.availability[strings.ToUpper(currency)]
}

func (s *Scanner) runLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case sig := <-s.signals:
			s.process(ctx, sig)
		}
	}
}

func (s *Scanner) process(ctx context.Context, sig Signal) {
	defer s.setState(StateIdle)

	switch sig.Kind {
	case SignalDaemonAvailability:
		s.setAvailability(sig.Currency, sig.Available)
		if sig.Available {
			s.log.Infow("daemon became available", "currency", sig.Currency)
			s.scanAll(ctx, sig.Currency, false)
		} else {
			s.log.Infow("daemon became unavailable", "currency", sig.Currency)
		}

	case SignalNewBlock:
		if !s.IsAvailable(sig.Currency) {
			s.log.Debugw("ignoring new block, daemon unavailable",
				"currency", sig.Currency,
				"block_hash", sig.BlockHash,
			)
			return
		}
		s.scanAll(ctx, sig.Currency, true)

	case SignalTransactionUpdated:
		if !s.IsAvailable(sig.Currency) {
			s.log.Debugw("ignoring transaction update, daemon unavailable",
				"currency", sig.Currency,
				"txid", sig.TxID,
			)
			return
		}
		s.setState(StateScanningOne)
		if err := s.reconciler.ReconcileOne(ctx, sig.Currency, sig.TxID); err != nil {
			s.log.Errorw("transaction scan failed",
				"currency", sig.Currency,
				"txid", sig.TxID,
				"error", err,
			)
		}

	default:
		s.log.Warnw("unknown signal kind", "kind", sig.Kind, "currency", sig.Currency)
	}
}

// scanAll reconciles every monitored invoice with an activated prompt for
// the currency, then optionally publishes the new-block notification.
func (s *Scanner) scanAll(ctx context.Context, currency string, newBlock bool) {
	s.setState(StateScanningAll)

	methodID := invoice.ChainMethodID(currency)
	monitored, err := s.invoices.GetMonitoredInvoices(ctx, methodID)
	if err != nil {
		s.log.Errorw("failed to load monitored invoices",
			"currency", currency,
			"error", err,
		)
		return
	}

	pending := monitored[:0]
	for _, inv := range monitored {
		if inv.HasActivatedPrompt(methodID) {
			pending = append(pending, inv)
		}
	}

	if len(pending) > 0 {
		if err := s.reconciler.ReconcileAll(ctx, currency, pending); err != nil {
			s.log.Errorw("bulk scan failed",
				"currency", currency,
				"invoices", len(pending),
				"error", err,
			)
		}
	}

	if newBlock {
		if err := s.bus.Publish(payment.NewNewBlockProcessedEvent(methodID)); err != nil {
			s.log.Warnw("failed to publish new block event",
				"currency", currency,
				"error", err,
			)
		}
	}
}

func (s *Scanner) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Scanner) setAvailability(currency string, available bool) {
	s.mu.Lock()
	s.availability[currency] = available
	s.mu.Unlock()
}
