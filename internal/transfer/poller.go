package transfer

import (
	"context"
	"time"

	"github.com/klingon-exchange/klingvault/internal/store"
	"github.com/klingon-exchange/klingvault/pkg/logging"
)

// Poller periodically reconciles pending transactions against their chains.
type Poller struct {
	engine   *Engine
	store    *store.Store
	interval time.Duration
	logger   *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// PollerConfig holds configuration for the status poller.
type PollerConfig struct {
	Engine   *Engine
	Store    *store.Store
	Interval time.Duration // default 30s
	Logger   *logging.Logger
}

// NewPoller creates a transaction status poller.
func NewPoller(cfg *PollerConfig) *Poller {
	ctx, cancel := context.WithCancel(context.Background())

	interval := cfg.Interval
	if interval == 0 {
		interval = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetDefault().Component("tx-poller")
	}

	return &Poller{
		engine:   cfg.Engine,
		store:    cfg.Store,
		interval: interval,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins polling in the background.
func (p *Poller) Start() {
	go p.run()
	p.logger.Info("transaction status poller started", "interval", p.interval)
}

// Stop halts polling.
func (p *Poller) Stop() {
	p.cancel()
	p.logger.Info("transaction status poller stopped")
}

func (p *Poller) run() {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.CheckPending()
		}
	}
}

// CheckPending reconciles every pending transaction once. A failure on one
// transaction does not stop the rest.
func (p *Poller) CheckPending() {
	pending, err := p.store.ListPendingTransactions()
	if err != nil {
		p.logger.Error("failed to list pending transactions", "error", err)
		return
	}

	for _, tx := range pending {
		ctx, cancel := context.WithTimeout(p.ctx, 10*time.Second)
		if _, err := p.engine.ReconcileStatus(ctx, tx.TxHash); err != nil {
			p.logger.Debug("status check failed", "tx_hash", tx.TxHash, "error", err)
		}
		cancel()
	}
}
