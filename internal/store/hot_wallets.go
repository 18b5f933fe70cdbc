// Package store - Hot wallet storage operations.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Hot wallet errors
var (
	ErrHotWalletNotFound = errors.New("no active hot wallet configured")
)

// HotWallet is the sweep destination for a chain and network.
type HotWallet struct {
	ID        string
	Chain     string
	Network   string
	Address   string
	Active    bool
	CreatedAt time.Time
}

// SetHotWallet activates a new hot wallet for a chain and network,
// deactivating any previous one.
func (s *Store) SetHotWallet(hw *HotWallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if hw.CreatedAt.IsZero() {
		hw.CreatedAt = time.Now()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		UPDATE hot_wallets SET active = 0 WHERE chain = ? AND network = ? AND active = 1
	`, hw.Chain, hw.Network)
	if err != nil {
		return fmt.Errorf("failed to deactivate hot wallet: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO hot_wallets (id, chain, network, address, active, created_at)
		VALUES (?, ?, ?, ?, 1, ?)
	`, hw.ID, hw.Chain, hw.Network, hw.Address, hw.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert hot wallet: %w", err)
	}

	return tx.Commit()
}

// GetActiveHotWallet returns the active hot wallet for a chain and network.
func (s *Store) GetActiveHotWallet(chain, network string) (*HotWallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var hw HotWallet
	var createdAt int64

	err := s.db.QueryRow(`
		SELECT id, chain, network, address, active, created_at
		FROM hot_wallets WHERE chain = ? AND network = ? AND active = 1
	`, chain, network).Scan(&hw.ID, &hw.Chain, &hw.Network, &hw.Address, &hw.Active, &createdAt)

	if err == sql.ErrNoRows {
		return nil, ErrHotWalletNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get hot wallet: %w", err)
	}

	hw.CreatedAt = time.Unix(createdAt, 0)
	return &hw, nil
}
