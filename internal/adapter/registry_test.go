package adapter

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/klingon-exchange/klingvault/internal/chain"
)

type stubAdapter struct {
	params *chain.Params
}

func (s *stubAdapter) Chain() *chain.Params { return s.params }
func (s *stubAdapter) DeriveAddress(seed []byte, index uint32) (*DerivedAddress, error) {
	return &DerivedAddress{Address: "stub", Index: index}, nil
}
func (s *stubAdapter) GetBalance(ctx context.Context, address, asset string) (decimal.Decimal, error) {
	return decimal.Zero, nil
}
func (s *stubAdapter) EstimateFee(ctx context.Context, asset string) (decimal.Decimal, error) {
	return decimal.Zero, nil
}
func (s *stubAdapter) Transfer(ctx context.Context, seed []byte, index uint32, to string, amount decimal.Decimal, asset string) (string, error) {
	return "stub-tx", nil
}
func (s *stubAdapter) ValidateAddress(address string) bool { return true }
func (s *stubAdapter) TransactionStatus(ctx context.Context, txID string) (TxStatus, error) {
	return TxStatusPending, nil
}

func TestRegistryUnconfigured(t *testing.T) {
	r := NewRegistry()

	_, err := r.Get("BTC", chain.Mainnet)
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Get() error = %v, want ErrNotConfigured", err)
	}

	// Configured on another network does not leak across.
	r.Configure("BTC", chain.Testnet, "https://mempool.space/testnet/api")
	if _, err := r.Get("BTC", chain.Mainnet); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Get(mainnet) error = %v, want ErrNotConfigured", err)
	}
}

func TestRegistryLazyBuildAndCache(t *testing.T) {
	r := NewRegistry()
	r.Configure("BTC", chain.Mainnet, "https://mempool.space/api")

	first, err := r.Get("BTC", chain.Mainnet)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if first.Chain().Symbol != "BTC" {
		t.Errorf("Chain().Symbol = %s, want BTC", first.Chain().Symbol)
	}

	second, err := r.Get("BTC", chain.Mainnet)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if first != second {
		t.Error("repeated Get built a new adapter instead of caching")
	}
}

func TestRegistryUnknownChain(t *testing.T) {
	r := NewRegistry()
	r.Configure("DOGE", chain.Mainnet, "http://localhost")

	if _, err := r.Get("DOGE", chain.Mainnet); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Get() error = %v, want ErrNotConfigured", err)
	}
}

func TestRegistryRegisterOverrides(t *testing.T) {
	params, _ := chain.Get("ETH", chain.Mainnet)
	stub := &stubAdapter{params: params}

	r := NewRegistry()
	r.Configure("ETH", chain.Mainnet, "http://localhost:8545")
	r.Register("ETH", chain.Mainnet, stub)

	got, err := r.Get("ETH", chain.Mainnet)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != Adapter(stub) {
		t.Error("registered adapter was not returned")
	}
}

func TestRegistryConfigured(t *testing.T) {
	r := NewRegistry()
	r.Configure("BTC", chain.Mainnet, "https://mempool.space/api")
	r.Register("ETH", chain.Mainnet, &stubAdapter{})

	pairs := r.Configured()
	if len(pairs) != 2 {
		t.Fatalf("Configured() returned %d pairs, want 2", len(pairs))
	}
	seen := map[string]bool{}
	for _, p := range pairs {
		seen[p[0]+"/"+p[1]] = true
	}
	if !seen["BTC/mainnet"] || !seen["ETH/mainnet"] {
		t.Errorf("Configured() = %v, want BTC/mainnet and ETH/mainnet", pairs)
	}
}
