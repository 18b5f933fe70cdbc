// Package transfer executes outbound transfers and tracks their lifecycle. A
// transfer is balance-checked before signing, broadcast through the chain
// adapter, and persisted as pending until the status poller resolves it.
package transfer

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/klingon-exchange/klingvault/internal/adapter"
	"github.com/klingon-exchange/klingvault/internal/chain"
	"github.com/klingon-exchange/klingvault/internal/custody"
	"github.com/klingon-exchange/klingvault/internal/directory"
	"github.com/klingon-exchange/klingvault/internal/store"
	"github.com/klingon-exchange/klingvault/pkg/logging"
)

// ErrAmountNotPositive rejects zero and negative transfer amounts.
var ErrAmountNotPositive = errors.New("transfer amount must be positive")

// Engine executes transfers from custodied addresses.
type Engine struct {
	store     *store.Store
	directory *directory.Service
	registry  *adapter.Registry
	risk      *RiskGuard
	logger    *logging.Logger
}

// Config holds dependencies for the transfer engine.
type Config struct {
	Store     *store.Store
	Directory *directory.Service
	Registry  *adapter.Registry
	Risk      *RiskGuard
	Logger    *logging.Logger
}

// NewEngine creates a transfer engine.
func NewEngine(cfg *Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetDefault().Component("transfer")
	}
	return &Engine{
		store:     cfg.Store,
		directory: cfg.Directory,
		registry:  cfg.Registry,
		risk:      cfg.Risk,
		logger:    logger,
	}
}

// Request describes one outbound transfer from a custodied address.
type Request struct {
	FromAddress string
	To          string
	Amount      decimal.Decimal
	Asset       string          // token contract or mint; empty for native
	Fee         decimal.Decimal // recorded fee; estimated from the chain when zero
}

// Transfer validates, signs, broadcasts, and records a transfer. The returned
// transaction is persisted as pending; if recording fails after a successful
// broadcast the transaction is still returned alongside the error.
func (e *Engine) Transfer(ctx context.Context, req *Request) (*store.Transaction, error) {
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: %s", ErrAmountNotPositive, req.Amount)
	}

	addr, err := e.store.GetAddress(req.FromAddress)
	if err != nil {
		return nil, err
	}

	a, err := e.registry.Get(addr.Chain, chain.Network(addr.Network))
	if err != nil {
		return nil, err
	}
	if !a.ValidateAddress(req.To) {
		return nil, fmt.Errorf("%w: %s", adapter.ErrInvalidAddress, req.To)
	}

	if e.risk != nil {
		if err := e.risk.Check(ctx, req); err != nil {
			return nil, err
		}
	}

	balance, err := a.GetBalance(ctx, addr.Address, req.Asset)
	if err != nil {
		return nil, err
	}
	if balance.LessThan(req.Amount) {
		return nil, fmt.Errorf("%w: balance %s, requested %s",
			adapter.ErrInsufficientFunds, balance, req.Amount)
	}

	fee := req.Fee
	if fee.IsZero() {
		fee, err = a.EstimateFee(ctx, req.Asset)
		if err != nil {
			return nil, err
		}
	}

	seed, err := e.directory.WalletSeed(addr.WalletID)
	if err != nil {
		return nil, err
	}
	defer custody.SecureClear(seed)

	txHash, err := a.Transfer(ctx, seed, addr.AddressIndex, req.To, req.Amount, req.Asset)
	if err != nil {
		return nil, err
	}

	tx := &store.Transaction{
		ID:          uuid.NewString(),
		TxHash:      txHash,
		Chain:       addr.Chain,
		Network:     addr.Network,
		FromAddress: addr.Address,
		ToAddress:   req.To,
		Asset:       req.Asset,
		Amount:      req.Amount,
		Fee:         fee,
		Status:      store.TxStatusPending,
	}
	if err := e.store.CreateTransaction(tx); err != nil {
		e.logger.Error("broadcast succeeded but transaction was not recorded",
			"tx_hash", txHash, "chain", addr.Chain, "error", err)
		return tx, fmt.Errorf("record transaction %s: %w", txHash, err)
	}

	e.logger.Info("transfer broadcast",
		"tx_hash", txHash,
		"chain", addr.Chain,
		"from", addr.Address,
		"to", req.To,
		"amount", req.Amount,
		"asset", req.Asset,
	)
	return tx, nil
}

// ReconcileStatus refreshes a pending transaction from the chain. Terminal
// records are returned as stored and never regress.
func (e *Engine) ReconcileStatus(ctx context.Context, txHash string) (*store.Transaction, error) {
	tx, err := e.store.GetTransactionByHash(txHash)
	if err != nil {
		return nil, err
	}
	if tx.Status.IsTerminal() {
		return tx, nil
	}

	a, err := e.registry.Get(tx.Chain, chain.Network(tx.Network))
	if err != nil {
		return nil, err
	}
	status, err := a.TransactionStatus(ctx, txHash)
	if err != nil {
		return nil, err
	}

	var next store.TxStatus
	switch status {
	case adapter.TxStatusConfirmed:
		next = store.TxStatusConfirmed
	case adapter.TxStatusFailed:
		next = store.TxStatusFailed
	default:
		return tx, nil
	}

	if err := e.store.UpdateTransactionStatus(txHash, next); err != nil {
		if errors.Is(err, store.ErrTxFinalized) {
			return e.store.GetTransactionByHash(txHash)
		}
		return nil, err
	}

	e.logger.Info("transaction resolved", "tx_hash", txHash, "status", next)
	return e.store.GetTransactionByHash(txHash)
}
