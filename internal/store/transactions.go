// Package store - Transaction storage operations.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction errors
var (
	ErrTxNotFound  = errors.New("transaction not found")
	ErrTxExists    = errors.New("transaction already recorded")
	ErrTxFinalized = errors.New("transaction already in a terminal state")
)

// TxStatus represents the lifecycle state of a broadcast transaction.
type TxStatus string

const (
	TxStatusPending   TxStatus = "pending"
	TxStatusConfirmed TxStatus = "confirmed"
	TxStatusFailed    TxStatus = "failed"
)

// IsTerminal reports whether the status is confirmed or failed.
func (st TxStatus) IsTerminal() bool {
	return st == TxStatusConfirmed || st == TxStatusFailed
}

// Transaction represents a broadcast transaction record.
type Transaction struct {
	ID          string
	TxHash      string
	Chain       string
	Network     string
	FromAddress string
	ToAddress   string
	Asset       string // empty for native transfers
	Amount      decimal.Decimal
	Fee         decimal.Decimal
	Status      TxStatus

	CreatedAt   time.Time
	UpdatedAt   *time.Time
	ConfirmedAt *time.Time
	FailedAt    *time.Time
}

// CreateTransaction records a freshly broadcast transaction as pending.
func (s *Store) CreateTransaction(tx *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := tx.Status
	if status == "" {
		status = TxStatusPending
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}

	_, err := s.db.Exec(`
		INSERT INTO transactions (
			id, tx_hash, chain, network, from_address, to_address, asset,
			amount, fee, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, tx.ID, tx.TxHash, tx.Chain, tx.Network, tx.FromAddress, tx.ToAddress,
		tx.Asset, tx.Amount.String(), tx.Fee.String(), status, tx.CreatedAt.Unix())

	if isUniqueViolation(err) {
		return ErrTxExists
	}
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	return nil
}

// GetTransactionByHash retrieves a transaction by chain hash.
func (s *Store) GetTransactionByHash(txHash string) (*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT id, tx_hash, chain, network, from_address, to_address, asset,
			amount, fee, status, created_at, updated_at, confirmed_at, failed_at
		FROM transactions WHERE tx_hash = ?
	`, txHash)

	tx, err := scanTransaction(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrTxNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return tx, nil
}

// UpdateTransactionStatus moves a pending transaction to a new status.
// Terminal states are sticky: updating an already confirmed or failed
// record returns ErrTxFinalized and leaves the row untouched.
func (s *Store) UpdateTransactionStatus(txHash string, status TxStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Unix()
	var confirmedAt, failedAt *int64
	switch status {
	case TxStatusConfirmed:
		confirmedAt = &now
	case TxStatusFailed:
		failedAt = &now
	}

	result, err := s.db.Exec(`
		UPDATE transactions
		SET status = ?, updated_at = ?,
			confirmed_at = COALESCE(?, confirmed_at),
			failed_at = COALESCE(?, failed_at)
		WHERE tx_hash = ? AND status = ?
	`, status, now, confirmedAt, failedAt, txHash, TxStatusPending)
	if err != nil {
		return fmt.Errorf("failed to update transaction status: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		// Distinguish a missing row from a finalized one.
		var current TxStatus
		err := s.db.QueryRow("SELECT status FROM transactions WHERE tx_hash = ?", txHash).Scan(&current)
		if err == sql.ErrNoRows {
			return ErrTxNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to check transaction status: %w", err)
		}
		if current.IsTerminal() && current != status {
			return ErrTxFinalized
		}
	}

	return nil
}

// ListPendingTransactions returns all transactions awaiting reconciliation,
// oldest first.
func (s *Store) ListPendingTransactions() ([]*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, tx_hash, chain, network, from_address, to_address, asset,
			amount, fee, status, created_at, updated_at, confirmed_at, failed_at
		FROM transactions WHERE status = ?
		ORDER BY created_at ASC
	`, TxStatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending transactions: %w", err)
	}
	defer rows.Close()

	var txs []*Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, tx)
	}

	return txs, rows.Err()
}

// CountTransactionsSince counts outbound transactions from an address since
// the given time. Used by the risk guard's velocity heuristic.
func (s *Store) CountTransactionsSince(fromAddress string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM transactions
		WHERE from_address = ? AND created_at >= ?
	`, fromAddress, since.Unix()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	return count, nil
}

func scanTransaction(scan func(dest ...interface{}) error) (*Transaction, error) {
	var tx Transaction
	var amount, fee string
	var asset sql.NullString
	var createdAt int64
	var updatedAt, confirmedAt, failedAt sql.NullInt64

	err := scan(&tx.ID, &tx.TxHash, &tx.Chain, &tx.Network, &tx.FromAddress,
		&tx.ToAddress, &asset, &amount, &fee, &tx.Status,
		&createdAt, &updatedAt, &confirmedAt, &failedAt)
	if err != nil {
		return nil, err
	}

	if asset.Valid {
		tx.Asset = asset.String
	}
	tx.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("corrupt amount %q: %w", amount, err)
	}
	tx.Fee, err = decimal.NewFromString(fee)
	if err != nil {
		return nil, fmt.Errorf("corrupt fee %q: %w", fee, err)
	}

	tx.CreatedAt = time.Unix(createdAt, 0)
	if updatedAt.Valid {
		t := time.Unix(updatedAt.Int64, 0)
		tx.UpdatedAt = &t
	}
	if confirmedAt.Valid {
		t := time.Unix(confirmedAt.Int64, 0)
		tx.ConfirmedAt = &t
	}
	if failedAt.Valid {
		t := time.Unix(failedAt.Int64, 0)
		tx.FailedAt = &t
	}

	return &tx, nil
}
