// Package store - Wallet storage operations.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Wallet errors
var (
	ErrWalletNotFound = errors.New("wallet not found")
	ErrWalletExists   = errors.New("wallet already exists for user")
)

// Wallet represents a user's custodial wallet record.
type Wallet struct {
	ID     string
	UserID string

	// Encrypted master seed
	SeedCiphertext []byte
	SeedIV         []byte
	SeedTag        []byte

	CreatedAt time.Time
}

// CreateWallet creates a new wallet record.
func (s *Store) CreateWallet(w *Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now()
	}

	_, err := s.db.Exec(`
		INSERT INTO wallets (id, user_id, seed_ciphertext, seed_iv, seed_tag, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, w.ID, w.UserID, w.SeedCiphertext, w.SeedIV, w.SeedTag, w.CreatedAt.Unix())

	if isUniqueViolation(err) {
		return ErrWalletExists
	}
	if err != nil {
		return fmt.Errorf("failed to create wallet: %w", err)
	}

	return nil
}

// GetWallet retrieves a wallet by ID.
func (s *Store) GetWallet(id string) (*Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.scanWallet(s.db.QueryRow(`
		SELECT id, user_id, seed_ciphertext, seed_iv, seed_tag, created_at
		FROM wallets WHERE id = ?
	`, id))
}

// GetWalletByUser retrieves a wallet by owning user.
func (s *Store) GetWalletByUser(userID string) (*Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.scanWallet(s.db.QueryRow(`
		SELECT id, user_id, seed_ciphertext, seed_iv, seed_tag, created_at
		FROM wallets WHERE user_id = ?
	`, userID))
}

func (s *Store) scanWallet(row *sql.Row) (*Wallet, error) {
	var w Wallet
	var createdAt int64

	err := row.Scan(&w.ID, &w.UserID, &w.SeedCiphertext, &w.SeedIV, &w.SeedTag, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}

	w.CreatedAt = time.Unix(createdAt, 0)
	return &w, nil
}
