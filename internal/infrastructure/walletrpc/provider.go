package walletrpc

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/moneta-pay/moneta/internal/shared/config"
	"github.com/moneta-pay/moneta/internal/shared/logger"
)

const defaultHealthCheckInterval = 30 * time.Second

// AvailabilityFunc is invoked on every availability transition of a wallet
// daemon.
type AvailabilityFunc func(currency string, available bool)

// Provider owns one wallet client per configured currency and tracks daemon
// availability with a periodic liveness probe.
type Provider struct {
	clients   map[string]WalletClient
	available map[string]bool
	onChange  AvailabilityFunc
	interval  time.Duration
	log       logger.Interface

	mu       sync.RWMutex
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	running  bool
}

// NewProvider builds wallet clients from the listener configuration.
func NewProvider(cfg *config.ListenerConfig, log logger.Interface) *Provider {
	interval := defaultHealthCheckInterval
	if cfg.HealthCheckInterval > 0 {
		interval = time.Duration(cfg.HealthCheckInterval) * time.Second
	}

	clients := make(map[string]WalletClient, len(cfg.Daemons))
	for code, daemon := range cfg.Daemons {
		currency := strings.ToUpper(code)
		clients[currency] = NewClient(daemon.WalletRPCURL, daemon.Username, daemon.Password,
			log.With("currency", currency))
	}

	return &Provider{
		clients:   clients,
		available: make(map[string]bool, len(clients)),
		interval:  interval,
		log:       log,
		stopChan:  make(chan struct{}),
	}
}

// Client returns the wallet client for a currency code.
func (p *Provider) Client(currency string) (WalletClient, bool) {
	client, ok := p.clients[strings.ToUpper(currency)]
	return client, ok
}

// Currencies returns every configured currency code.
func (p *Provider) Currencies() []string {
	codes := make([]string, 0, len(p.clients))
	for code := range p.clients {
		codes = append(codes, code)
	}
	return codes
}

// IsAvailable reports the last observed availability of a currency's daemon.
func (p *Provider) IsAvailable(currency string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.available[strings.ToUpper(currency)]
}

// SetOnAvailabilityChange registers the transition callback. Must be called
// before Start.
func (p *Provider) SetOnAvailabilityChange(fn AvailabilityFunc) {
	p.onChange = fn
}

// Start launches the periodic liveness probe.
func (p *Provider) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.mu.Unlock()

	p.log.Infow("starting wallet availability monitor", "interval", p.interval)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.runProbeLoop(ctx)
	}()
}

// Stop stops the probe loop and waits for it to exit.
func (p *Provider) Stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()

		close(p.stopChan)
		p.wg.Wait()
		p.log.Infow("wallet availability monitor stopped")
	})
}

func (p *Provider) runProbeLoop(ctx context.Context) {
	// Probe immediately on startup so the listener learns the initial state.
	p.probeAll(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopChan:
			return
		case <-ticker.C:
			p.probeAll(ctx)
		}
	}
}

func (p *Provider) probeAll(ctx context.Context) {
	for currency, client := range p.clients {
		_, err := client.GetHeight(ctx)
		p.record(currency, err == nil)
	}
}

func (p *Provider) record(currency string, available bool) {
	p.mu.Lock()
	previous, seen := p.available[currency]
	p.available[currency] = available
	p.mu.Unlock()

	if seen && previous == available {
		return
	}

	if available {
		p.log.Infow("wallet daemon became available", "currency", currency)
	} else {
		p.log.Warnw("wallet daemon became unavailable", "currency", currency)
	}

	if p.onChange != nil {
		p.onChange(currency, available)
	}
}
