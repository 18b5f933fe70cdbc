// Package directory manages wallet lifecycle and address allocation. One
// wallet per user holds an encrypted master seed; deposit addresses are
// derived from it per chain with contiguous indices starting at zero.
package directory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/klingon-exchange/klingvault/internal/adapter"
	"github.com/klingon-exchange/klingvault/internal/chain"
	"github.com/klingon-exchange/klingvault/internal/custody"
	"github.com/klingon-exchange/klingvault/internal/store"
	"github.com/klingon-exchange/klingvault/pkg/logging"
)

// Service manages wallets and their derived addresses.
type Service struct {
	store    *store.Store
	custody  *custody.Service
	registry *adapter.Registry
	logger   *logging.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex // serializes index allocation per wallet/chain/network
}

// Config holds dependencies for the directory service.
type Config struct {
	Store    *store.Store
	Custody  *custody.Service
	Registry *adapter.Registry
	Logger   *logging.Logger
}

// NewService creates a directory service.
func NewService(cfg *Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetDefault().Component("directory")
	}
	return &Service{
		store:    cfg.Store,
		custody:  cfg.Custody,
		registry: cfg.Registry,
		logger:   logger,
		locks:    make(map[string]*sync.Mutex),
	}
}

// ChainRef names one chain and network a wallet should hold an address on.
type ChainRef struct {
	Symbol  string
	Network chain.Network
}

// CreateWallet creates a wallet for a user, generating and encrypting a fresh
// master seed, then derives the first deposit address on each requested
// chain. Calling it again for the same user reuses the existing wallet and
// seed, but still backfills addresses for chains the wallet does not cover
// yet.
func (s *Service) CreateWallet(ctx context.Context, userID string, chains ...ChainRef) (*store.Wallet, error) {
	wallet, err := s.createWallet(userID)
	if err != nil {
		return nil, err
	}
	for _, ref := range chains {
		existing, err := s.ListChainAddresses(wallet.ID, ref.Symbol, ref.Network)
		if err != nil {
			return nil, err
		}
		if len(existing) > 0 {
			continue
		}
		if _, err := s.GenerateNextAddress(ctx, wallet.ID, ref.Symbol, ref.Network); err != nil {
			return nil, fmt.Errorf("initial address on %s/%s: %w", ref.Symbol, ref.Network, err)
		}
	}
	return wallet, nil
}

func (s *Service) createWallet(userID string) (*store.Wallet, error) {
	if existing, err := s.store.GetWalletByUser(userID); err == nil {
		return existing, nil
	} else if !errors.Is(err, store.ErrWalletNotFound) {
		return nil, err
	}

	mnemonic, err := custody.GenerateMnemonic()
	if err != nil {
		return nil, fmt.Errorf("generate mnemonic: %w", err)
	}
	seed := custody.SeedFromMnemonic(mnemonic)
	defer custody.SecureClear(seed)

	encrypted, err := s.custody.Encrypt(seed)
	if err != nil {
		return nil, fmt.Errorf("encrypt seed: %w", err)
	}

	wallet := &store.Wallet{
		ID:             uuid.NewString(),
		UserID:         userID,
		SeedCiphertext: encrypted.Ciphertext,
		SeedIV:         encrypted.IV,
		SeedTag:        encrypted.Tag,
	}
	if err := s.store.CreateWallet(wallet); err != nil {
		// Lost a race with a concurrent create for the same user.
		if errors.Is(err, store.ErrWalletExists) {
			return s.store.GetWalletByUser(userID)
		}
		return nil, err
	}

	s.logger.Info("wallet created", "wallet_id", wallet.ID, "user_id", userID)
	return wallet, nil
}

// GetWallet returns a wallet by ID.
func (s *Service) GetWallet(id string) (*store.Wallet, error) {
	return s.store.GetWallet(id)
}

// GetWalletByUser returns a user's wallet.
func (s *Service) GetWalletByUser(userID string) (*store.Wallet, error) {
	return s.store.GetWalletByUser(userID)
}

// GenerateNextAddress allocates the next deposit address for a wallet on a
// chain. Indices are contiguous from zero; allocation is serialized per
// (wallet, chain, network) so concurrent calls never mint the same index.
func (s *Service) GenerateNextAddress(ctx context.Context, walletID, symbol string, network chain.Network) (*store.Address, error) {
	a, err := s.registry.Get(symbol, network)
	if err != nil {
		return nil, err
	}

	lock := s.allocationLock(walletID, symbol, network)
	lock.Lock()
	defer lock.Unlock()

	index, err := s.store.NextAddressIndex(walletID, symbol, string(network))
	if err != nil {
		return nil, err
	}

	seed, err := s.WalletSeed(walletID)
	if err != nil {
		return nil, err
	}
	defer custody.SecureClear(seed)

	derived, err := a.DeriveAddress(seed, index)
	if err != nil {
		return nil, err
	}

	record := &store.Address{
		ID:             uuid.NewString(),
		WalletID:       walletID,
		Chain:          symbol,
		Network:        string(network),
		AddressIndex:   index,
		Address:        derived.Address,
		DerivationPath: derived.Path,
	}
	if err := s.store.CreateAddress(record); err != nil {
		return nil, err
	}

	s.logger.Info("address generated",
		"wallet_id", walletID,
		"chain", symbol,
		"network", network,
		"index", index,
		"address", derived.Address,
	)
	return record, nil
}

// WalletSeed decrypts and returns the wallet's master seed. The caller owns
// the buffer and must clear it when done.
func (s *Service) WalletSeed(walletID string) ([]byte, error) {
	wallet, err := s.store.GetWallet(walletID)
	if err != nil {
		return nil, err
	}
	return s.custody.Decrypt(&custody.EncryptedSeed{
		Ciphertext: wallet.SeedCiphertext,
		IV:         wallet.SeedIV,
		Tag:        wallet.SeedTag,
	})
}

// ListAddresses returns all addresses of a wallet.
func (s *Service) ListAddresses(walletID string) ([]*store.Address, error) {
	return s.store.ListWalletAddresses(walletID)
}

// ListChainAddresses returns a wallet's addresses on one chain and network.
func (s *Service) ListChainAddresses(walletID, symbol string, network chain.Network) ([]*store.Address, error) {
	return s.store.ListWalletChainAddresses(walletID, symbol, string(network))
}

// AggregateBalance sums the on-chain balance of every address a wallet holds
// on a chain. asset selects a token; empty means the native coin.
func (s *Service) AggregateBalance(ctx context.Context, walletID, symbol string, network chain.Network, asset string) (decimal.Decimal, error) {
	a, err := s.registry.Get(symbol, network)
	if err != nil {
		return decimal.Zero, err
	}
	addresses, err := s.ListChainAddresses(walletID, symbol, network)
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, addr := range addresses {
		balance, err := a.GetBalance(ctx, addr.Address, asset)
		if err != nil {
			return decimal.Zero, fmt.Errorf("balance of %s: %w", addr.Address, err)
		}
		total = total.Add(balance)
	}
	return total, nil
}

func (s *Service) allocationLock(walletID, symbol string, network chain.Network) *sync.Mutex {
	key := walletID + "/" + symbol + "/" + string(network)
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	return lock
}
