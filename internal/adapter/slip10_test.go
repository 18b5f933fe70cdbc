package adapter

import (
	"crypto/ed25519"
	"encoding/hex"
	"testing"
)

// Reference vectors for ed25519 derivation, seed 000102030405060708090a0b0c0d0e0f.
func TestDeriveEd25519Key(t *testing.T) {
	seed, _ := hex.DecodeString("000102030405060708090a0b0c0d0e0f")

	tests := []struct {
		name    string
		path    []uint32
		privKey string
		pubKey  string
	}{
		{
			name:    "m/0'",
			path:    []uint32{0},
			privKey: "68e0fe46dfb67e368c75379acec591dad19df3cde26e63b93a8e704f1dade7a3",
			pubKey:  "8c8a13df77a28f3445213a0f432fde644acaa215fc72dcdf300d5efaa85d350c",
		},
		{
			name:    "m/0'/1'",
			path:    []uint32{0, 1},
			privKey: "b1d0bad404bf35da785a64ca1ac54b2617211d2777696fbffaf208f746ae84f2",
			pubKey:  "1932a5270f335bed617d5b935c80aedb1a35bd9fc1e31acafd5372c30f5c1187",
		},
		{
			name:    "m/0'/1'/2'",
			path:    []uint32{0, 1, 2},
			privKey: "92a5b23c0b8a99e37d07df3fb9966917f5d06e02ddbd909c7e184371463e9fc9",
			pubKey:  "ae98736566d30ed0e9d2f4486a64bc95740d89c7db33f52121f8ea8f76ff0fc1",
		},
		{
			name:    "m/0'/1'/2'/2'/1000000000'",
			path:    []uint32{0, 1, 2, 2, 1000000000},
			privKey: "8f94d394a8e8fd6b1bc2f3f49f5c47e385281d5c17e65324b0f62483e37e8793",
			pubKey:  "3c24da049451555d51a7014a37337aa4e12d41e485abccfa46b47dfb2af54b7a",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			priv, err := deriveEd25519Key(seed, tt.path)
			if err != nil {
				t.Fatalf("deriveEd25519Key() error = %v", err)
			}
			if got := hex.EncodeToString(priv.Seed()); got != tt.privKey {
				t.Errorf("private key = %s, want %s", got, tt.privKey)
			}
			pub := priv.Public().(ed25519.PublicKey)
			if got := hex.EncodeToString(pub); got != tt.pubKey {
				t.Errorf("public key = %s, want %s", got, tt.pubKey)
			}
		})
	}
}

func TestDeriveEd25519KeyHardensComponents(t *testing.T) {
	seed, _ := hex.DecodeString("000102030405060708090a0b0c0d0e0f")

	plain, err := deriveEd25519Key(seed, []uint32{44, 501, 0, 0})
	if err != nil {
		t.Fatalf("deriveEd25519Key() error = %v", err)
	}
	hardened, err := deriveEd25519Key(seed, []uint32{
		44 | 0x80000000, 501 | 0x80000000, 0 | 0x80000000, 0 | 0x80000000,
	})
	if err != nil {
		t.Fatalf("deriveEd25519Key() error = %v", err)
	}
	if !plain.Equal(hardened) {
		t.Error("hardening bit should be forced on every component")
	}
}

func TestDeriveEd25519KeyEmptySeed(t *testing.T) {
	if _, err := deriveEd25519Key(nil, []uint32{0}); err == nil {
		t.Error("expected error for empty seed")
	}
}
