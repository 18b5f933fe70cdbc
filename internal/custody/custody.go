// Package custody handles master seed material: mnemonic generation and
// AES-256-GCM encryption at rest with a process-wide key.
package custody

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/tyler-smith/go-bip39"
)

const (
	keyLen = 32 // AES-256
	tagLen = 16 // GCM tag
)

// ErrIntegrity is returned when decryption fails authentication. Either the
// stored ciphertext was tampered with or the wrong key is in use.
var ErrIntegrity = errors.New("seed integrity check failed")

// EncryptedSeed is the stored form of an encrypted mnemonic.
type EncryptedSeed struct {
	Ciphertext []byte
	IV         []byte
	Tag        []byte
}

// Service encrypts and decrypts wallet seed material.
type Service struct {
	key []byte
}

// NewService creates a custody service from a hex-encoded 32-byte key.
func NewService(keyHex string) (*Service, error) {
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key: %w", err)
	}
	if len(key) != keyLen {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", keyLen, len(key))
	}
	return &Service{key: key}, nil
}

// Encrypt encrypts plaintext seed material with a fresh random IV.
func (s *Service) Encrypt(plaintext []byte) (*EncryptedSeed, error) {
	gcm, err := s.newGCM()
	if err != nil {
		return nil, err
	}

	iv := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("failed to generate iv: %w", err)
	}

	sealed := gcm.Seal(nil, iv, plaintext, nil)

	// Seal appends the auth tag; store it separately so each piece lands in
	// its own column.
	split := len(sealed) - tagLen
	return &EncryptedSeed{
		Ciphertext: sealed[:split],
		IV:         iv,
		Tag:        sealed[split:],
	}, nil
}

// Decrypt authenticates and decrypts an encrypted seed. Any modification of
// ciphertext, IV, or tag yields ErrIntegrity; no plaintext is ever returned
// from a failed authentication.
func (s *Service) Decrypt(encrypted *EncryptedSeed) ([]byte, error) {
	gcm, err := s.newGCM()
	if err != nil {
		return nil, err
	}

	sealed := make([]byte, 0, len(encrypted.Ciphertext)+len(encrypted.Tag))
	sealed = append(sealed, encrypted.Ciphertext...)
	sealed = append(sealed, encrypted.Tag...)

	plaintext, err := gcm.Open(nil, encrypted.IV, sealed, nil)
	if err != nil {
		return nil, ErrIntegrity
	}
	return plaintext, nil
}

func (s *Service) newGCM() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// GenerateMnemonic creates a new 24-word BIP39 mnemonic.
func GenerateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", fmt.Errorf("failed to generate entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("failed to generate mnemonic: %w", err)
	}
	return mnemonic, nil
}

// ValidateMnemonic checks a BIP39 mnemonic's word list and checksum.
func ValidateMnemonic(mnemonic string) bool {
	return bip39.IsMnemonicValid(mnemonic)
}

// SeedFromMnemonic derives the 64-byte BIP39 seed. Callers should SecureClear
// the result when done.
func SeedFromMnemonic(mnemonic string) []byte {
	return bip39.NewSeed(mnemonic, "")
}

// SecureClear overwrites a byte slice with zeros.
func SecureClear(data []byte) {
	for i := range data {
		data[i] = 0
	}
}
