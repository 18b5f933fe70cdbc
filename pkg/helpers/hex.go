package helpers

import (
	"encoding/hex"
	"math/big"
	"strings"
)

// HexToUint64 converts a hex string (with or without 0x prefix) to uint64.
// Malformed input yields zero.
func HexToUint64(s string) uint64 {
	v := HexToBigInt(s)
	if !v.IsUint64() {
		return 0
	}
	return v.Uint64()
}

// HexToBigInt converts a hex string (with or without 0x prefix) to *big.Int.
// Malformed input yields zero.
func HexToBigInt(s string) *big.Int {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return big.NewInt(0)
	}
	v, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return big.NewInt(0)
	}
	return v
}

// BigIntToHex converts a *big.Int to a 0x-prefixed hex string.
func BigIntToHex(n *big.Int) string {
	if n == nil || n.Sign() == 0 {
		return "0x0"
	}
	return "0x" + n.Text(16)
}

// Uint64ToHex converts a uint64 to a 0x-prefixed hex string.
func Uint64ToHex(n uint64) string {
	return BigIntToHex(new(big.Int).SetUint64(n))
}

// HexToBytes converts a hex string (with or without 0x prefix) to bytes.
func HexToBytes(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(s, "0x"))
}

// BytesToHex converts bytes to a 0x-prefixed hex string.
func BytesToHex(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

// PadLeft left-pads a byte slice with zeros to the given length.
func PadLeft(b []byte, length int) []byte {
	if len(b) >= length {
		return b
	}
	out := make([]byte, length)
	copy(out[length-len(b):], b)
	return out
}
