package adapter

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
	"fmt"

	"github.com/klingon-exchange/klingvault/internal/chain"
)

// slip10Key is the HMAC key for the ed25519 master node.
var slip10Key = []byte("ed25519 seed")

// deriveEd25519Key derives an ed25519 private key from a BIP39 seed along a
// SLIP-0010 path. The ed25519 curve only supports hardened derivation, so
// every path component has the hardening bit forced on.
func deriveEd25519Key(seed []byte, path []uint32) (ed25519.PrivateKey, error) {
	if len(seed) == 0 {
		return nil, fmt.Errorf("%w: empty seed", ErrDerivation)
	}

	mac := hmac.New(sha512.New, slip10Key)
	mac.Write(seed)
	sum := mac.Sum(nil)

	key := sum[:32]
	chainCode := sum[32:]

	var data [37]byte
	for _, component := range path {
		component |= chain.HardenedOffset

		data[0] = 0x00
		copy(data[1:33], key)
		binary.BigEndian.PutUint32(data[33:], component)

		mac = hmac.New(sha512.New, chainCode)
		mac.Write(data[:])
		sum = mac.Sum(nil)

		key = sum[:32]
		chainCode = sum[32:]
	}

	return ed25519.NewKeyFromSeed(key), nil
}
