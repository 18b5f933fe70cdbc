package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := New(&Config{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testWallet(userID string) *Wallet {
	return &Wallet{
		ID:             uuid.New().String(),
		UserID:         userID,
		SeedCiphertext: []byte{1, 2, 3},
		SeedIV:         []byte{4, 5, 6},
		SeedTag:        []byte{7, 8, 9},
		CreatedAt:      time.Now(),
	}
}

func TestNew(t *testing.T) {
	tmpDir := t.TempDir()
	s, err := New(&Config{DataDir: tmpDir})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer s.Close()

	dbPath := filepath.Join(tmpDir, "klingvault.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
	if s.DB() == nil {
		t.Error("DB() returned nil")
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()
	expanded := expandPath("~/.test")
	expected := filepath.Join(home, ".test")
	if expanded != expected {
		t.Errorf("expandPath(~/.test) = %s, want %s", expanded, expected)
	}
}

func TestCreateAndGetWallet(t *testing.T) {
	s := newTestStore(t)

	w := testWallet("user-1")
	if err := s.CreateWallet(w); err != nil {
		t.Fatalf("CreateWallet: %v", err)
	}

	got, err := s.GetWalletByUser("user-1")
	if err != nil {
		t.Fatalf("GetWalletByUser: %v", err)
	}
	if got.ID != w.ID {
		t.Errorf("ID = %s, want %s", got.ID, w.ID)
	}
	if string(got.SeedCiphertext) != string(w.SeedCiphertext) {
		t.Error("seed ciphertext mismatch")
	}

	byID, err := s.GetWallet(w.ID)
	if err != nil {
		t.Fatalf("GetWallet: %v", err)
	}
	if byID.UserID != "user-1" {
		t.Errorf("UserID = %s, want user-1", byID.UserID)
	}
}

func TestWalletNotFound(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.GetWalletByUser("missing"); !errors.Is(err, ErrWalletNotFound) {
		t.Errorf("GetWalletByUser error = %v, want ErrWalletNotFound", err)
	}
}

func TestDuplicateWalletPerUser(t *testing.T) {
	s := newTestStore(t)

	if err := s.CreateWallet(testWallet("user-1")); err != nil {
		t.Fatalf("CreateWallet: %v", err)
	}
	if err := s.CreateWallet(testWallet("user-1")); !errors.Is(err, ErrWalletExists) {
		t.Errorf("second CreateWallet error = %v, want ErrWalletExists", err)
	}
}

func testAddress(walletID, chain string, index uint32, address string) *Address {
	return &Address{
		ID:             uuid.New().String(),
		WalletID:       walletID,
		Chain:          chain,
		Network:        "mainnet",
		AddressIndex:   index,
		Address:        address,
		DerivationPath: "m/44'/60'/0'/0/0",
		CreatedAt:      time.Now(),
	}
}

func TestCreateAndGetAddress(t *testing.T) {
	s := newTestStore(t)
	w := testWallet("user-1")
	if err := s.CreateWallet(w); err != nil {
		t.Fatalf("CreateWallet: %v", err)
	}

	a := testAddress(w.ID, "ETH", 0, "0xabc")
	if err := s.CreateAddress(a); err != nil {
		t.Fatalf("CreateAddress: %v", err)
	}

	got, err := s.GetAddress("0xabc")
	if err != nil {
		t.Fatalf("GetAddress: %v", err)
	}
	if got.WalletID != w.ID {
		t.Errorf("WalletID = %s, want %s", got.WalletID, w.ID)
	}
	if got.AddressIndex != 0 {
		t.Errorf("AddressIndex = %d, want 0", got.AddressIndex)
	}

	if _, err := s.GetAddress("0xmissing"); !errors.Is(err, ErrAddressNotFound) {
		t.Errorf("GetAddress error = %v, want ErrAddressNotFound", err)
	}
}

func TestAddressIndexUniqueness(t *testing.T) {
	s := newTestStore(t)
	w := testWallet("user-1")
	if err := s.CreateWallet(w); err != nil {
		t.Fatalf("CreateWallet: %v", err)
	}

	if err := s.CreateAddress(testAddress(w.ID, "ETH", 0, "0xaaa")); err != nil {
		t.Fatalf("CreateAddress: %v", err)
	}

	// Same (wallet, chain, network, index) with a different address string.
	if err := s.CreateAddress(testAddress(w.ID, "ETH", 0, "0xbbb")); !errors.Is(err, ErrDuplicateIndex) {
		t.Errorf("duplicate index error = %v, want ErrDuplicateIndex", err)
	}

	// Same address string under a different index.
	if err := s.CreateAddress(testAddress(w.ID, "ETH", 1, "0xaaa")); !errors.Is(err, ErrDuplicateIndex) {
		t.Errorf("duplicate address error = %v, want ErrDuplicateIndex", err)
	}

	// Same index on a different chain is fine.
	if err := s.CreateAddress(testAddress(w.ID, "BTC", 0, "bc1qxyz")); err != nil {
		t.Errorf("different chain same index error = %v", err)
	}
}

func TestNextAddressIndex(t *testing.T) {
	s := newTestStore(t)
	w := testWallet("user-1")
	if err := s.CreateWallet(w); err != nil {
		t.Fatalf("CreateWallet: %v", err)
	}

	next, err := s.NextAddressIndex(w.ID, "ETH", "mainnet")
	if err != nil {
		t.Fatalf("NextAddressIndex: %v", err)
	}
	if next != 0 {
		t.Errorf("first index = %d, want 0", next)
	}

	for i := uint32(0); i < 3; i++ {
		addr := testAddress(w.ID, "ETH", i, "0xaddr"+string(rune('a'+i)))
		if err := s.CreateAddress(addr); err != nil {
			t.Fatalf("CreateAddress(%d): %v", i, err)
		}
	}

	next, err = s.NextAddressIndex(w.ID, "ETH", "mainnet")
	if err != nil {
		t.Fatalf("NextAddressIndex: %v", err)
	}
	if next != 3 {
		t.Errorf("next index = %d, want 3", next)
	}

	// Another chain is tracked independently.
	next, err = s.NextAddressIndex(w.ID, "SOL", "mainnet")
	if err != nil {
		t.Fatalf("NextAddressIndex: %v", err)
	}
	if next != 0 {
		t.Errorf("SOL index = %d, want 0", next)
	}
}

func TestListAddresses(t *testing.T) {
	s := newTestStore(t)
	w := testWallet("user-1")
	if err := s.CreateWallet(w); err != nil {
		t.Fatalf("CreateWallet: %v", err)
	}

	for i, addr := range []string{"0xa", "0xb"} {
		if err := s.CreateAddress(testAddress(w.ID, "ETH", uint32(i), addr)); err != nil {
			t.Fatalf("CreateAddress: %v", err)
		}
	}
	if err := s.CreateAddress(testAddress(w.ID, "BTC", 0, "bc1qa")); err != nil {
		t.Fatalf("CreateAddress: %v", err)
	}

	all, err := s.ListWalletAddresses(w.ID)
	if err != nil {
		t.Fatalf("ListWalletAddresses: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("wallet addresses = %d, want 3", len(all))
	}

	eth, err := s.ListWalletChainAddresses(w.ID, "ETH", "mainnet")
	if err != nil {
		t.Fatalf("ListWalletChainAddresses: %v", err)
	}
	if len(eth) != 2 {
		t.Errorf("ETH addresses = %d, want 2", len(eth))
	}
	if eth[0].AddressIndex != 0 || eth[1].AddressIndex != 1 {
		t.Error("ETH addresses not ordered by index")
	}

	chainWide, err := s.ListChainAddresses("BTC", "mainnet")
	if err != nil {
		t.Fatalf("ListChainAddresses: %v", err)
	}
	if len(chainWide) != 1 {
		t.Errorf("BTC chain addresses = %d, want 1", len(chainWide))
	}
}

func testTransaction(hash, from string) *Transaction {
	return &Transaction{
		ID:          uuid.New().String(),
		TxHash:      hash,
		Chain:       "ETH",
		Network:     "mainnet",
		FromAddress: from,
		ToAddress:   "0xdest",
		Amount:      decimal.RequireFromString("1.5"),
		Fee:         decimal.RequireFromString("0.001"),
		Status:      TxStatusPending,
		CreatedAt:   time.Now(),
	}
}

func TestCreateAndGetTransaction(t *testing.T) {
	s := newTestStore(t)

	tx := testTransaction("0xhash1", "0xfrom")
	if err := s.CreateTransaction(tx); err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}

	got, err := s.GetTransactionByHash("0xhash1")
	if err != nil {
		t.Fatalf("GetTransactionByHash: %v", err)
	}
	if !got.Amount.Equal(decimal.RequireFromString("1.5")) {
		t.Errorf("Amount = %s, want 1.5", got.Amount)
	}
	if got.Status != TxStatusPending {
		t.Errorf("Status = %s, want pending", got.Status)
	}

	if err := s.CreateTransaction(testTransaction("0xhash1", "0xother")); !errors.Is(err, ErrTxExists) {
		t.Errorf("duplicate hash error = %v, want ErrTxExists", err)
	}
}

func TestUpdateTransactionStatus(t *testing.T) {
	s := newTestStore(t)

	tx := testTransaction("0xhash1", "0xfrom")
	if err := s.CreateTransaction(tx); err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}

	if err := s.UpdateTransactionStatus("0xhash1", TxStatusConfirmed); err != nil {
		t.Fatalf("UpdateTransactionStatus: %v", err)
	}

	got, err := s.GetTransactionByHash("0xhash1")
	if err != nil {
		t.Fatalf("GetTransactionByHash: %v", err)
	}
	if got.Status != TxStatusConfirmed {
		t.Errorf("Status = %s, want confirmed", got.Status)
	}
	if got.ConfirmedAt == nil {
		t.Error("ConfirmedAt should be set")
	}
}

func TestTerminalStatusNeverRegresses(t *testing.T) {
	s := newTestStore(t)

	if err := s.CreateTransaction(testTransaction("0xhash1", "0xfrom")); err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if err := s.UpdateTransactionStatus("0xhash1", TxStatusConfirmed); err != nil {
		t.Fatalf("UpdateTransactionStatus: %v", err)
	}

	// A stale pending or failed report must not move a confirmed record.
	for _, status := range []TxStatus{TxStatusPending, TxStatusFailed} {
		if err := s.UpdateTransactionStatus("0xhash1", status); !errors.Is(err, ErrTxFinalized) {
			t.Errorf("update to %s error = %v, want ErrTxFinalized", status, err)
		}
	}

	got, _ := s.GetTransactionByHash("0xhash1")
	if got.Status != TxStatusConfirmed {
		t.Errorf("Status = %s, want confirmed after stale updates", got.Status)
	}

	if err := s.UpdateTransactionStatus("0xmissing", TxStatusConfirmed); !errors.Is(err, ErrTxNotFound) {
		t.Errorf("missing tx error = %v, want ErrTxNotFound", err)
	}
}

func TestListPendingTransactions(t *testing.T) {
	s := newTestStore(t)

	if err := s.CreateTransaction(testTransaction("0xh1", "0xa")); err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if err := s.CreateTransaction(testTransaction("0xh2", "0xb")); err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if err := s.UpdateTransactionStatus("0xh1", TxStatusConfirmed); err != nil {
		t.Fatalf("UpdateTransactionStatus: %v", err)
	}

	pending, err := s.ListPendingTransactions()
	if err != nil {
		t.Fatalf("ListPendingTransactions: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(pending))
	}
	if pending[0].TxHash != "0xh2" {
		t.Errorf("pending hash = %s, want 0xh2", pending[0].TxHash)
	}
}

func TestCountTransactionsSince(t *testing.T) {
	s := newTestStore(t)

	for _, hash := range []string{"0xh1", "0xh2", "0xh3"} {
		if err := s.CreateTransaction(testTransaction(hash, "0xfrom")); err != nil {
			t.Fatalf("CreateTransaction: %v", err)
		}
	}

	count, err := s.CountTransactionsSince("0xfrom", time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("CountTransactionsSince: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}

	count, err = s.CountTransactionsSince("0xfrom", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("CountTransactionsSince: %v", err)
	}
	if count != 0 {
		t.Errorf("future window count = %d, want 0", count)
	}
}

func TestHotWallets(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.GetActiveHotWallet("ETH", "mainnet"); !errors.Is(err, ErrHotWalletNotFound) {
		t.Errorf("GetActiveHotWallet error = %v, want ErrHotWalletNotFound", err)
	}

	first := &HotWallet{ID: uuid.New().String(), Chain: "ETH", Network: "mainnet", Address: "0xhot1", CreatedAt: time.Now()}
	if err := s.SetHotWallet(first); err != nil {
		t.Fatalf("SetHotWallet: %v", err)
	}

	got, err := s.GetActiveHotWallet("ETH", "mainnet")
	if err != nil {
		t.Fatalf("GetActiveHotWallet: %v", err)
	}
	if got.Address != "0xhot1" {
		t.Errorf("Address = %s, want 0xhot1", got.Address)
	}

	// Rotating replaces the active wallet.
	second := &HotWallet{ID: uuid.New().String(), Chain: "ETH", Network: "mainnet", Address: "0xhot2", CreatedAt: time.Now()}
	if err := s.SetHotWallet(second); err != nil {
		t.Fatalf("SetHotWallet rotate: %v", err)
	}
	got, err = s.GetActiveHotWallet("ETH", "mainnet")
	if err != nil {
		t.Fatalf("GetActiveHotWallet: %v", err)
	}
	if got.Address != "0xhot2" {
		t.Errorf("Address = %s, want 0xhot2", got.Address)
	}
}

func TestCreateStampsCreationTime(t *testing.T) {
	s := newTestStore(t)
	before := time.Now().Add(-time.Second)

	// Records inserted without an explicit creation time get stamped on
	// insert, both on the passed struct and in the stored row.
	w := &Wallet{ID: uuid.New().String(), UserID: "user-stamp",
		SeedCiphertext: []byte{1}, SeedIV: []byte{2}, SeedTag: []byte{3}}
	if err := s.CreateWallet(w); err != nil {
		t.Fatalf("CreateWallet: %v", err)
	}
	if w.CreatedAt.Before(before) {
		t.Errorf("wallet CreatedAt = %v, want stamped at insert", w.CreatedAt)
	}

	a := &Address{ID: uuid.New().String(), WalletID: w.ID, Chain: "ETH",
		Network: "mainnet", AddressIndex: 0, Address: "0xstamped"}
	if err := s.CreateAddress(a); err != nil {
		t.Fatalf("CreateAddress: %v", err)
	}
	stored, err := s.GetAddress("0xstamped")
	if err != nil {
		t.Fatalf("GetAddress: %v", err)
	}
	if stored.CreatedAt.Before(before) {
		t.Errorf("address CreatedAt = %v, want stamped at insert", stored.CreatedAt)
	}

	tx := testTransaction("0xstamp", "0xfrom-stamp")
	tx.CreatedAt = time.Time{}
	if err := s.CreateTransaction(tx); err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	got, err := s.GetTransactionByHash("0xstamp")
	if err != nil {
		t.Fatalf("GetTransactionByHash: %v", err)
	}
	if got.CreatedAt.Before(before) {
		t.Errorf("transaction CreatedAt = %v, want stamped at insert", got.CreatedAt)
	}

	// The stamped time makes the row visible to sliding-window counts.
	count, err := s.CountTransactionsSince("0xfrom-stamp", time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("CountTransactionsSince: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}
