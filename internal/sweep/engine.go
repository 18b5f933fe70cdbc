// Package sweep consolidates deposit address balances into the active hot
// wallet for each chain.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/klingon-exchange/klingvault/internal/adapter"
	"github.com/klingon-exchange/klingvault/internal/chain"
	"github.com/klingon-exchange/klingvault/internal/store"
	"github.com/klingon-exchange/klingvault/internal/transfer"
	"github.com/klingon-exchange/klingvault/pkg/logging"
)

const (
	// DefaultConcurrency bounds how many addresses are swept in parallel.
	DefaultConcurrency = 5

	// sweepTimeout bounds the work done per address.
	sweepTimeout = 60 * time.Second
)

// ErrFeeUnavailable is returned when fee estimation fails and no fallback fee
// is configured for the chain.
var ErrFeeUnavailable = errors.New("fee estimate unavailable and no fallback configured")

// Engine flushes deposit address balances to hot wallets. Execution of the
// individual sweeps goes through the transfer engine, which signs, broadcasts,
// and records each one.
type Engine struct {
	store        *store.Store
	transfers    *transfer.Engine
	registry     *adapter.Registry
	concurrency  int
	fallbackFees map[string]decimal.Decimal
	logger       *logging.Logger
}

// Config configures a sweep engine. FallbackFees maps a chain symbol to the
// fee charged when the chain's estimator is unreachable; chains without an
// entry fail the affected address instead of sweeping blind.
type Config struct {
	Store        *store.Store
	Transfers    *transfer.Engine
	Registry     *adapter.Registry
	Concurrency  int
	FallbackFees map[string]decimal.Decimal
	Logger       *logging.Logger
}

// NewEngine creates a sweep engine.
func NewEngine(cfg *Config) *Engine {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetDefault().Component("sweep")
	}
	return &Engine{
		store:        cfg.Store,
		transfers:    cfg.Transfers,
		registry:     cfg.Registry,
		concurrency:  concurrency,
		fallbackFees: cfg.FallbackFees,
		logger:       logger,
	}
}

// Result summarizes one flush pass.
type Result struct {
	Attempted int
	Skipped   int
	Failed    int
	SweptTxs  []string
}

// FlushToHotWallet sweeps the given deposit addresses into the hot wallet.
// Addresses are processed in fixed-size batches; a failure on one address
// never aborts the pass. The hot wallet itself is ignored when it appears in
// the list. The returned transaction ids cover broadcasts only, skipped and
// failed addresses are counted.
func (e *Engine) FlushToHotWallet(ctx context.Context, addresses []string, hotWallet string, asset string) (*Result, error) {
	result := &Result{}
	var mu sync.Mutex

	for start := 0; start < len(addresses); start += e.concurrency {
		end := start + e.concurrency
		if end > len(addresses) {
			end = len(addresses)
		}

		var wg sync.WaitGroup
		for _, address := range addresses[start:end] {
			if address == hotWallet {
				continue
			}
			wg.Add(1)
			go func(address string) {
				defer wg.Done()

				sweepCtx, cancel := context.WithTimeout(ctx, sweepTimeout)
				defer cancel()

				txID, swept, err := e.sweepAddress(sweepCtx, address, hotWallet, asset)
				mu.Lock()
				defer mu.Unlock()
				result.Attempted++
				switch {
				case err != nil:
					result.Failed++
					e.logger.Error("sweep failed", "address", address, "error", err)
				case !swept:
					result.Skipped++
				default:
					result.SweptTxs = append(result.SweptTxs, txID)
				}
			}(address)
		}
		wg.Wait()
	}

	e.logger.Info("flush pass complete",
		"hot_wallet", hotWallet, "asset", asset,
		"attempted", result.Attempted, "swept", len(result.SweptTxs),
		"skipped", result.Skipped, "failed", result.Failed)
	return result, nil
}

// sweepAddress evaluates one address and hands it to the transfer engine when
// its balance clears the threshold. Native sweeps leave the fee behind; token
// sweeps move the full balance and pay gas from the address's native funds.
func (e *Engine) sweepAddress(ctx context.Context, address, hotWallet, asset string) (string, bool, error) {
	addr, err := e.store.GetAddress(address)
	if err != nil {
		return "", false, err
	}
	a, err := e.registry.Get(addr.Chain, chain.Network(addr.Network))
	if err != nil {
		return "", false, err
	}

	balance, err := a.GetBalance(ctx, addr.Address, asset)
	if err != nil {
		return "", false, fmt.Errorf("balance: %w", err)
	}
	if balance.IsZero() {
		return "", false, nil
	}

	fee, err := a.EstimateFee(ctx, asset)
	if err != nil {
		fallback, ok := e.fallbackFees[addr.Chain]
		if !ok {
			return "", false, fmt.Errorf("%w: %v", ErrFeeUnavailable, err)
		}
		e.logger.Warn("using fallback fee", "chain", addr.Chain, "fee", fallback, "error", err)
		fee = fallback
	}

	// Not worth moving until the balance is at least twice the cost.
	if balance.LessThanOrEqual(fee.Mul(decimal.NewFromInt(2))) {
		e.logger.Debug("balance below sweep threshold",
			"address", addr.Address, "balance", balance, "fee", fee)
		return "", false, nil
	}

	amount := balance
	if asset == "" {
		amount = balance.Sub(fee)
	}

	tx, err := e.transfers.Transfer(ctx, &transfer.Request{
		FromAddress: addr.Address,
		To:          hotWallet,
		Amount:      amount,
		Asset:       asset,
		Fee:         fee,
	})
	if err != nil {
		return "", false, fmt.Errorf("transfer: %w", err)
	}

	e.logger.Info("address swept",
		"address", addr.Address, "amount", amount, "asset", asset, "tx", tx.TxHash)
	return tx.TxHash, true, nil
}
