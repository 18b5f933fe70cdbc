// Package adapter provides a uniform interface over heterogeneous
// blockchains. Each supported chain family implements Adapter; callers never
// see curve, encoding, or RPC differences.
package adapter

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/klingon-exchange/klingvault/internal/chain"
)

// Adapter errors
var (
	ErrDerivation           = errors.New("key derivation failed")
	ErrBalanceQuery         = errors.New("balance query failed")
	ErrUnsupportedOperation = errors.New("operation not supported on this chain")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrBroadcast            = errors.New("broadcast failed")
	ErrSigning              = errors.New("signing failed")
	ErrFeeEstimate          = errors.New("fee estimate failed")
	ErrInvalidAddress       = errors.New("invalid address")
	ErrTxNotFound           = errors.New("transaction not found")
	ErrStatusQuery          = errors.New("status query failed")
	ErrNotConfigured        = errors.New("no adapter configured for chain")
)

// TxStatus is the chain-reported state of a transaction.
type TxStatus string

const (
	TxStatusPending   TxStatus = "pending"
	TxStatusConfirmed TxStatus = "confirmed"
	TxStatusFailed    TxStatus = "failed"
)

// DerivedAddress is the result of deriving an address from a wallet seed.
type DerivedAddress struct {
	Address   string
	PublicKey []byte
	Path      string
	Index     uint32
}

// Adapter abstracts one blockchain for the wallet backend. Seed material is
// the 64-byte BIP39 seed; the same seed and index always yield the same
// address. The asset parameter selects a token by contract or mint address;
// empty means the native asset. Amounts are whole-coin decimals.
type Adapter interface {
	// Chain returns the chain parameters this adapter serves.
	Chain() *chain.Params

	// DeriveAddress derives the deposit address at the given index.
	DeriveAddress(seed []byte, index uint32) (*DerivedAddress, error)

	// GetBalance returns the confirmed balance of an address.
	GetBalance(ctx context.Context, address, asset string) (decimal.Decimal, error)

	// EstimateFee returns the current network fee for a standard transfer of
	// the given asset, in the chain's native coin.
	EstimateFee(ctx context.Context, asset string) (decimal.Decimal, error)

	// Transfer signs and broadcasts a transfer from the address at the given
	// index, returning a chain transaction identifier.
	Transfer(ctx context.Context, seed []byte, index uint32, to string, amount decimal.Decimal, asset string) (string, error)

	// ValidateAddress reports whether the address is syntactically valid for
	// this chain.
	ValidateAddress(address string) bool

	// TransactionStatus returns the chain-reported status of a transaction
	// previously returned by Transfer. A transaction the chain has not seen
	// yet reports as pending.
	TransactionStatus(ctx context.Context, txID string) (TxStatus, error)
}
