package sweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/klingon-exchange/klingvault/internal/chain"
	"github.com/klingon-exchange/klingvault/internal/store"
	"github.com/klingon-exchange/klingvault/pkg/logging"
)

// DefaultFlushInterval is how often each chain is flushed when the
// configuration does not say otherwise.
const DefaultFlushInterval = 10 * time.Minute

// Target names one chain to auto-flush, optionally for a single token asset.
type Target struct {
	Symbol  string
	Network chain.Network
	Asset   string
}

// Scheduler runs periodic flush passes for a set of chains. Each tick it
// resolves the chain's active hot wallet, enumerates the chain's deposit
// addresses, and hands both to the engine.
type Scheduler struct {
	engine   *Engine
	store    *store.Store
	sched    gocron.Scheduler
	interval time.Duration
	logger   *logging.Logger
}

// SchedulerConfig configures the auto-flush scheduler.
type SchedulerConfig struct {
	Engine   *Engine
	Store    *store.Store
	Interval time.Duration
	Logger   *logging.Logger
}

// NewScheduler creates a scheduler; jobs are added with ScheduleAutoFlush and
// run after Start.
func NewScheduler(cfg *SchedulerConfig) (*Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetDefault().Component("sweep-scheduler")
	}
	return &Scheduler{
		engine:   cfg.Engine,
		store:    cfg.Store,
		sched:    sched,
		interval: interval,
		logger:   logger,
	}, nil
}

// ScheduleAutoFlush registers a recurring flush job for one chain target.
func (s *Scheduler) ScheduleAutoFlush(target Target) error {
	_, err := s.sched.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() { s.runFlush(target) }),
	)
	if err != nil {
		return fmt.Errorf("schedule flush for %s/%s: %w", target.Symbol, target.Network, err)
	}
	s.logger.Info("auto-flush scheduled",
		"chain", target.Symbol, "network", target.Network,
		"asset", target.Asset, "interval", s.interval)
	return nil
}

// Start begins executing scheduled jobs.
func (s *Scheduler) Start() {
	s.sched.Start()
}

// Shutdown stops the scheduler and waits for running jobs.
func (s *Scheduler) Shutdown() error {
	return s.sched.Shutdown()
}

func (s *Scheduler) runFlush(target Target) {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()

	hot, err := s.store.GetActiveHotWallet(target.Symbol, string(target.Network))
	if err != nil {
		if errors.Is(err, store.ErrHotWalletNotFound) {
			s.logger.Warn("no active hot wallet, flush skipped",
				"chain", target.Symbol, "network", target.Network)
			return
		}
		s.logger.Error("flush pass failed",
			"chain", target.Symbol, "network", target.Network, "error", err)
		return
	}

	addrs, err := s.store.ListChainAddresses(target.Symbol, string(target.Network))
	if err != nil {
		s.logger.Error("flush pass failed",
			"chain", target.Symbol, "network", target.Network, "error", err)
		return
	}
	addresses := make([]string, 0, len(addrs))
	for _, a := range addrs {
		addresses = append(addresses, a.Address)
	}

	result, err := s.engine.FlushToHotWallet(ctx, addresses, hot.Address, target.Asset)
	if err != nil {
		s.logger.Error("flush pass failed",
			"chain", target.Symbol, "network", target.Network, "error", err)
		return
	}
	if len(result.SweptTxs) > 0 {
		s.logger.Info("auto-flush swept funds",
			"chain", target.Symbol, "network", target.Network,
			"count", len(result.SweptTxs))
	}
}
