package adapter

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
)

// deriveSecpKey derives a secp256k1 private key from a BIP39 seed along a
// BIP32 path. Path components carry their own hardening bit.
func deriveSecpKey(seed []byte, netParams *chaincfg.Params, path []uint32) (*btcec.PrivateKey, error) {
	master, err := hdkeychain.NewMaster(seed, netParams)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDerivation, err)
	}
	defer master.Zero()

	key := master
	for _, component := range path {
		key, err = key.Derive(component)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDerivation, err)
		}
	}

	priv, err := key.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDerivation, err)
	}
	return priv, nil
}
