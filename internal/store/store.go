// Package store provides persistent storage using SQLite.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
)

// Store provides persistent storage for the wallet backend.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// Config holds storage configuration.
type Config struct {
	DataDir string
}

// New creates a new Store instance.
func New(cfg *Config) (*Store, error) {
	dataDir := expandPath(cfg.DataDir)

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "klingvault.db")

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{
		db:     db,
		dbPath: dbPath,
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection.
func (s *Store) DB() *sql.DB {
	return s.db
}

// initSchema creates all database tables.
func (s *Store) initSchema() error {
	schema := `
	-- One custodial wallet per user. The master seed is stored encrypted;
	-- ciphertext, IV, and auth tag each get their own column.
	CREATE TABLE IF NOT EXISTS wallets (
		id TEXT PRIMARY KEY,
		user_id TEXT UNIQUE NOT NULL,
		seed_ciphertext BLOB NOT NULL,
		seed_iv BLOB NOT NULL,
		seed_tag BLOB NOT NULL,
		created_at INTEGER NOT NULL
	);

	-- Derived deposit addresses. Indices are contiguous per
	-- (wallet, chain, network); both constraints below are load-bearing:
	-- the first serializes index allocation, the second guarantees no
	-- address is ever handed to two owners.
	CREATE TABLE IF NOT EXISTS addresses (
		id TEXT PRIMARY KEY,
		wallet_id TEXT NOT NULL,
		chain TEXT NOT NULL,
		network TEXT NOT NULL,
		address_index INTEGER NOT NULL,
		address TEXT NOT NULL,
		derivation_path TEXT NOT NULL,
		created_at INTEGER NOT NULL,

		UNIQUE(wallet_id, chain, network, address_index),
		UNIQUE(address),
		FOREIGN KEY (wallet_id) REFERENCES wallets(id)
	);

	CREATE INDEX IF NOT EXISTS idx_addresses_wallet ON addresses(wallet_id);
	CREATE INDEX IF NOT EXISTS idx_addresses_chain ON addresses(chain, network);

	-- Broadcast transactions. Amounts are stored as decimal strings to
	-- avoid float drift across 6/8/9/18-decimal assets.
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		tx_hash TEXT UNIQUE NOT NULL,
		chain TEXT NOT NULL,
		network TEXT NOT NULL,
		from_address TEXT NOT NULL,
		to_address TEXT NOT NULL,
		asset TEXT,
		amount TEXT NOT NULL,
		fee TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at INTEGER NOT NULL,
		updated_at INTEGER,
		confirmed_at INTEGER,
		failed_at INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions(status);
	CREATE INDEX IF NOT EXISTS idx_transactions_from ON transactions(from_address);
	CREATE INDEX IF NOT EXISTS idx_transactions_created ON transactions(created_at);

	-- Sweep destinations. At most one active hot wallet per chain/network.
	CREATE TABLE IF NOT EXISTS hot_wallets (
		id TEXT PRIMARY KEY,
		chain TEXT NOT NULL,
		network TEXT NOT NULL,
		address TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_hot_wallets_active
		ON hot_wallets(chain, network) WHERE active = 1;
	`

	_, err := s.db.Exec(schema)
	return err
}

// isUniqueViolation reports whether err is a SQLite unique constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
