// Package store - Address storage operations.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Address errors
var (
	ErrAddressNotFound = errors.New("address not found")
	ErrDuplicateIndex  = errors.New("address index already allocated")
)

// Address represents a derived deposit address.
type Address struct {
	ID             string
	WalletID       string
	Chain          string
	Network        string
	AddressIndex   uint32
	Address        string
	DerivationPath string
	CreatedAt      time.Time
}

// CreateAddress inserts a derived address. A colliding
// (wallet, chain, network, index) tuple or a colliding address string
// yields ErrDuplicateIndex.
func (s *Store) CreateAddress(a *Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}

	_, err := s.db.Exec(`
		INSERT INTO addresses (id, wallet_id, chain, network, address_index, address, derivation_path, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.WalletID, a.Chain, a.Network, a.AddressIndex, a.Address, a.DerivationPath, a.CreatedAt.Unix())

	if isUniqueViolation(err) {
		return ErrDuplicateIndex
	}
	if err != nil {
		return fmt.Errorf("failed to create address: %w", err)
	}

	return nil
}

// GetAddress retrieves an address record by address string.
func (s *Store) GetAddress(address string) (*Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var a Address
	var createdAt int64

	err := s.db.QueryRow(`
		SELECT id, wallet_id, chain, network, address_index, address, derivation_path, created_at
		FROM addresses WHERE address = ?
	`, address).Scan(&a.ID, &a.WalletID, &a.Chain, &a.Network, &a.AddressIndex, &a.Address, &a.DerivationPath, &createdAt)

	if err == sql.ErrNoRows {
		return nil, ErrAddressNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get address: %w", err)
	}

	a.CreatedAt = time.Unix(createdAt, 0)
	return &a, nil
}

// ListWalletAddresses returns all addresses for a wallet, ordered by chain
// and index.
func (s *Store) ListWalletAddresses(walletID string) ([]*Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryAddresses(`
		SELECT id, wallet_id, chain, network, address_index, address, derivation_path, created_at
		FROM addresses WHERE wallet_id = ?
		ORDER BY chain, network, address_index
	`, walletID)
}

// ListWalletChainAddresses returns a wallet's addresses on one chain and
// network, ordered by index.
func (s *Store) ListWalletChainAddresses(walletID, chain, network string) ([]*Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryAddresses(`
		SELECT id, wallet_id, chain, network, address_index, address, derivation_path, created_at
		FROM addresses WHERE wallet_id = ? AND chain = ? AND network = ?
		ORDER BY address_index
	`, walletID, chain, network)
}

// ListChainAddresses returns every derived address on a chain and network,
// across all wallets.
func (s *Store) ListChainAddresses(chain, network string) ([]*Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryAddresses(`
		SELECT id, wallet_id, chain, network, address_index, address, derivation_path, created_at
		FROM addresses WHERE chain = ? AND network = ?
		ORDER BY wallet_id, address_index
	`, chain, network)
}

// NextAddressIndex returns the next unallocated index for a wallet's chain
// and network. With no addresses yet, the next index is 0.
func (s *Store) NextAddressIndex(walletID, chain, network string) (uint32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var max sql.NullInt64
	err := s.db.QueryRow(`
		SELECT MAX(address_index) FROM addresses
		WHERE wallet_id = ? AND chain = ? AND network = ?
	`, walletID, chain, network).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("failed to get max address index: %w", err)
	}

	if !max.Valid {
		return 0, nil
	}
	return uint32(max.Int64) + 1, nil
}

func (s *Store) queryAddresses(query string, args ...interface{}) ([]*Address, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list addresses: %w", err)
	}
	defer rows.Close()

	var addresses []*Address
	for rows.Next() {
		var a Address
		var createdAt int64
		if err := rows.Scan(&a.ID, &a.WalletID, &a.Chain, &a.Network, &a.AddressIndex,
			&a.Address, &a.DerivationPath, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan address: %w", err)
		}
		a.CreatedAt = time.Unix(createdAt, 0)
		addresses = append(addresses, &a)
	}

	return addresses, rows.Err()
}
