package transfer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/klingon-exchange/klingvault/internal/adapter"
	"github.com/klingon-exchange/klingvault/internal/chain"
	"github.com/klingon-exchange/klingvault/internal/custody"
	"github.com/klingon-exchange/klingvault/internal/directory"
	"github.com/klingon-exchange/klingvault/internal/store"
)

const testCustodyKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

// fakeAdapter serves canned balances and statuses and records broadcasts.
type fakeAdapter struct {
	params     *chain.Params
	balances   map[string]decimal.Decimal
	statuses   map[string]adapter.TxStatus
	rejectDest string
	nextHash   int
	broadcasts []string
}

func (f *fakeAdapter) Chain() *chain.Params { return f.params }

func (f *fakeAdapter) DeriveAddress(seed []byte, index uint32) (*adapter.DerivedAddress, error) {
	return &adapter.DerivedAddress{
		Address: fmt.Sprintf("%s-addr-%d", f.params.Symbol, index),
		Path:    f.params.AddressDerivationPathString(index),
		Index:   index,
	}, nil
}

func (f *fakeAdapter) GetBalance(ctx context.Context, address, asset string) (decimal.Decimal, error) {
	return f.balances[address+"/"+asset], nil
}

func (f *fakeAdapter) EstimateFee(ctx context.Context, asset string) (decimal.Decimal, error) {
	return decimal.New(1, -3), nil
}

func (f *fakeAdapter) Transfer(ctx context.Context, seed []byte, index uint32, to string, amount decimal.Decimal, asset string) (string, error) {
	f.nextHash++
	hash := fmt.Sprintf("%s-tx-%d", f.params.Symbol, f.nextHash)
	f.broadcasts = append(f.broadcasts, hash)
	return hash, nil
}

func (f *fakeAdapter) ValidateAddress(address string) bool {
	return address != f.rejectDest && address != ""
}

func (f *fakeAdapter) TransactionStatus(ctx context.Context, txID string) (adapter.TxStatus, error) {
	if status, ok := f.statuses[txID]; ok {
		return status, nil
	}
	return adapter.TxStatusPending, nil
}

type fixture struct {
	engine *Engine
	store  *store.Store
	dir    *directory.Service
	fake   *fakeAdapter
	from   *store.Address
}

func newFixture(t *testing.T, risk *RiskGuard) *fixture {
	t.Helper()

	st, err := store.New(&store.Config{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cust, err := custody.NewService(testCustodyKey)
	if err != nil {
		t.Fatalf("custody.NewService() error = %v", err)
	}

	params, ok := chain.Get("ETH", chain.Mainnet)
	if !ok {
		t.Fatal("ETH mainnet not registered")
	}
	fake := &fakeAdapter{
		params:   params,
		balances: make(map[string]decimal.Decimal),
		statuses: make(map[string]adapter.TxStatus),
	}
	registry := adapter.NewRegistry()
	registry.Register("ETH", chain.Mainnet, fake)

	dir := directory.NewService(&directory.Config{
		Store:    st,
		Custody:  cust,
		Registry: registry,
	})

	ctx := context.Background()
	wallet, err := dir.CreateWallet(ctx, "user-1")
	if err != nil {
		t.Fatalf("CreateWallet() error = %v", err)
	}
	from, err := dir.GenerateNextAddress(ctx, wallet.ID, "ETH", chain.Mainnet)
	if err != nil {
		t.Fatalf("GenerateNextAddress() error = %v", err)
	}

	engine := NewEngine(&Config{
		Store:     st,
		Directory: dir,
		Registry:  registry,
		Risk:      risk,
	})
	return &fixture{engine: engine, store: st, dir: dir, fake: fake, from: from}
}

func TestTransferBroadcastsAndRecordsPending(t *testing.T) {
	fx := newFixture(t, nil)
	fx.fake.balances[fx.from.Address+"/"] = decimal.NewFromInt(10)

	tx, err := fx.engine.Transfer(context.Background(), &Request{
		FromAddress: fx.from.Address,
		To:          "0xdest",
		Amount:      decimal.NewFromInt(1),
	})
	if err != nil {
		t.Fatalf("Transfer() error = %v", err)
	}
	if tx.Status != store.TxStatusPending {
		t.Errorf("status = %s, want pending", tx.Status)
	}
	if len(fx.fake.broadcasts) != 1 || fx.fake.broadcasts[0] != tx.TxHash {
		t.Errorf("broadcasts = %v, want [%s]", fx.fake.broadcasts, tx.TxHash)
	}

	stored, err := fx.store.GetTransactionByHash(tx.TxHash)
	if err != nil {
		t.Fatalf("GetTransactionByHash() error = %v", err)
	}
	if stored.Status != store.TxStatusPending {
		t.Errorf("stored status = %s, want pending", stored.Status)
	}
	if !stored.Amount.Equal(decimal.NewFromInt(1)) {
		t.Errorf("stored amount = %s, want 1", stored.Amount)
	}
}

func TestTransferInsufficientBalance(t *testing.T) {
	fx := newFixture(t, nil)
	fx.fake.balances[fx.from.Address+"/"] = decimal.NewFromFloat(0.5)

	_, err := fx.engine.Transfer(context.Background(), &Request{
		FromAddress: fx.from.Address,
		To:          "0xdest",
		Amount:      decimal.NewFromInt(1),
	})
	if !errors.Is(err, adapter.ErrInsufficientFunds) {
		t.Fatalf("error = %v, want ErrInsufficientFunds", err)
	}
	if len(fx.fake.broadcasts) != 0 {
		t.Error("transfer was broadcast despite failed balance check")
	}
}

func TestTransferRejectsInvalidDestination(t *testing.T) {
	fx := newFixture(t, nil)
	fx.fake.balances[fx.from.Address+"/"] = decimal.NewFromInt(10)
	fx.fake.rejectDest = "bogus"

	_, err := fx.engine.Transfer(context.Background(), &Request{
		FromAddress: fx.from.Address,
		To:          "bogus",
		Amount:      decimal.NewFromInt(1),
	})
	if !errors.Is(err, adapter.ErrInvalidAddress) {
		t.Errorf("error = %v, want ErrInvalidAddress", err)
	}
}

func TestTransferUnknownSource(t *testing.T) {
	fx := newFixture(t, nil)

	_, err := fx.engine.Transfer(context.Background(), &Request{
		FromAddress: "never-derived",
		To:          "0xdest",
		Amount:      decimal.NewFromInt(1),
	})
	if !errors.Is(err, store.ErrAddressNotFound) {
		t.Errorf("error = %v, want ErrAddressNotFound", err)
	}
}

func TestTransferRejectsNonPositiveAmount(t *testing.T) {
	fx := newFixture(t, nil)

	for _, amount := range []decimal.Decimal{decimal.Zero, decimal.NewFromInt(-1)} {
		_, err := fx.engine.Transfer(context.Background(), &Request{
			FromAddress: fx.from.Address,
			To:          "0xdest",
			Amount:      amount,
		})
		if !errors.Is(err, ErrAmountNotPositive) {
			t.Errorf("Transfer(%s) error = %v, want ErrAmountNotPositive", amount, err)
		}
	}
}

func TestReconcileStatus(t *testing.T) {
	fx := newFixture(t, nil)
	fx.fake.balances[fx.from.Address+"/"] = decimal.NewFromInt(10)

	tx, err := fx.engine.Transfer(context.Background(), &Request{
		FromAddress: fx.from.Address,
		To:          "0xdest",
		Amount:      decimal.NewFromInt(1),
	})
	if err != nil {
		t.Fatalf("Transfer() error = %v", err)
	}

	// Chain still reports pending, record unchanged.
	got, err := fx.engine.ReconcileStatus(context.Background(), tx.TxHash)
	if err != nil {
		t.Fatalf("ReconcileStatus() error = %v", err)
	}
	if got.Status != store.TxStatusPending {
		t.Errorf("status = %s, want pending", got.Status)
	}

	fx.fake.statuses[tx.TxHash] = adapter.TxStatusConfirmed
	got, err = fx.engine.ReconcileStatus(context.Background(), tx.TxHash)
	if err != nil {
		t.Fatalf("ReconcileStatus() error = %v", err)
	}
	if got.Status != store.TxStatusConfirmed {
		t.Errorf("status = %s, want confirmed", got.Status)
	}

	// A later contradictory chain report must not regress the record.
	fx.fake.statuses[tx.TxHash] = adapter.TxStatusFailed
	got, err = fx.engine.ReconcileStatus(context.Background(), tx.TxHash)
	if err != nil {
		t.Fatalf("ReconcileStatus() error = %v", err)
	}
	if got.Status != store.TxStatusConfirmed {
		t.Errorf("terminal status regressed to %s", got.Status)
	}
}

func TestRiskGuardApprovalThreshold(t *testing.T) {
	risk := NewRiskGuard(&RiskConfig{
		MaxAmount: decimal.NewFromInt(5),
	})
	fx := newFixture(t, risk)
	fx.fake.balances[fx.from.Address+"/"] = decimal.NewFromInt(100)

	if _, err := fx.engine.Transfer(context.Background(), &Request{
		FromAddress: fx.from.Address,
		To:          "0xdest",
		Amount:      decimal.NewFromInt(6),
	}); !errors.Is(err, ErrApprovalRequired) {
		t.Errorf("error = %v, want ErrApprovalRequired", err)
	}

	if _, err := fx.engine.Transfer(context.Background(), &Request{
		FromAddress: fx.from.Address,
		To:          "0xdest",
		Amount:      decimal.NewFromInt(5),
	}); err != nil {
		t.Errorf("transfer at the threshold rejected: %v", err)
	}
}

func TestRiskGuardVelocity(t *testing.T) {
	fx := newFixture(t, nil)
	risk := NewRiskGuard(&RiskConfig{
		Store:          fx.store,
		VelocityLimit:  2,
		VelocityWindow: time.Hour,
	})
	fx.engine.risk = risk
	fx.fake.balances[fx.from.Address+"/"] = decimal.NewFromInt(100)

	for i := 0; i < 2; i++ {
		if _, err := fx.engine.Transfer(context.Background(), &Request{
			FromAddress: fx.from.Address,
			To:          "0xdest",
			Amount:      decimal.NewFromInt(1),
		}); err != nil {
			t.Fatalf("transfer %d error = %v", i, err)
		}
	}

	_, err := fx.engine.Transfer(context.Background(), &Request{
		FromAddress: fx.from.Address,
		To:          "0xdest",
		Amount:      decimal.NewFromInt(1),
	})
	if !errors.Is(err, ErrVelocityExceeded) {
		t.Errorf("error = %v, want ErrVelocityExceeded", err)
	}
}

func TestPollerCheckPending(t *testing.T) {
	fx := newFixture(t, nil)
	fx.fake.balances[fx.from.Address+"/"] = decimal.NewFromInt(10)

	tx, err := fx.engine.Transfer(context.Background(), &Request{
		FromAddress: fx.from.Address,
		To:          "0xdest",
		Amount:      decimal.NewFromInt(1),
	})
	if err != nil {
		t.Fatalf("Transfer() error = %v", err)
	}
	fx.fake.statuses[tx.TxHash] = adapter.TxStatusConfirmed

	poller := NewPoller(&PollerConfig{
		Engine: fx.engine,
		Store:  fx.store,
	})
	poller.CheckPending()

	stored, err := fx.store.GetTransactionByHash(tx.TxHash)
	if err != nil {
		t.Fatalf("GetTransactionByHash() error = %v", err)
	}
	if stored.Status != store.TxStatusConfirmed {
		t.Errorf("status = %s, want confirmed after poll", stored.Status)
	}
}
