// Package chain defines chain parameters and derivation paths for supported
// blockchains. All chain-specific constants live here.
package chain

// Network represents mainnet or testnet.
type Network string

const (
	Mainnet Network = "mainnet"
	Testnet Network = "testnet"
)

// ChainType represents the blockchain family.
type ChainType string

const (
	ChainTypeBitcoin ChainType = "bitcoin" // UTXO chains
	ChainTypeEVM     ChainType = "evm"     // Ethereum and EVM-compatible chains
	ChainTypeSolana  ChainType = "solana"  // Solana
	ChainTypeTON     ChainType = "ton"     // The Open Network
)

// AddressType represents the address encoding format.
type AddressType string

const (
	AddressP2WPKH AddressType = "p2wpkh" // Native SegWit (bc1q...)
	AddressEVM    AddressType = "evm"    // 0x...
	AddressSolana AddressType = "solana" // Base58
	AddressTON    AddressType = "ton"    // Base64url user-friendly
)

// HardenedOffset marks a BIP32 path component as hardened.
const HardenedOffset uint32 = 0x80000000

// Params contains all parameters for a blockchain.
type Params struct {
	// Identity
	Symbol   string
	Name     string
	Type     ChainType
	Decimals uint8

	// BIP44 derivation
	CoinType       uint32
	DefaultPurpose uint32 // 44 or 84
	// Ed25519 chains (Solana, TON) only support hardened child keys and use
	// the address index as the account component: m/44'/coin'/index'/0'.
	HardenedOnly bool

	// Bitcoin-family network params
	PubKeyHashAddrID byte
	ScriptHashAddrID byte
	Bech32HRP        string
	WIF              byte
	HDPrivateKeyID   [4]byte
	HDPublicKeyID    [4]byte

	// EVM params
	ChainID     uint64
	NativeToken string // empty means same as Symbol

	DefaultAddressType AddressType
}

// AddressDerivationPath returns the derivation path for the address at the
// given index. Secp256k1 chains use m/purpose'/coin'/0'/0/index; hardened-only
// ed25519 chains use m/44'/coin'/index'/0'.
func (p *Params) AddressDerivationPath(index uint32) []uint32 {
	if p.HardenedOnly {
		return []uint32{
			p.DefaultPurpose | HardenedOffset,
			p.CoinType | HardenedOffset,
			index | HardenedOffset,
			0 | HardenedOffset,
		}
	}
	return []uint32{
		p.DefaultPurpose | HardenedOffset,
		p.CoinType | HardenedOffset,
		0 | HardenedOffset,
		0,
		index,
	}
}

// AddressDerivationPathString returns the path in the conventional notation.
func (p *Params) AddressDerivationPathString(index uint32) string {
	if p.HardenedOnly {
		return "m/" + itoa(p.DefaultPurpose) + "'/" + itoa(p.CoinType) + "'/" +
			itoa(index) + "'/0'"
	}
	return "m/" + itoa(p.DefaultPurpose) + "'/" + itoa(p.CoinType) + "'/0'/0/" +
		itoa(index)
}

func itoa(n uint32) string {
	if n == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// GetNativeToken returns the native token symbol for a chain.
func (p *Params) GetNativeToken() string {
	if p.NativeToken != "" {
		return p.NativeToken
	}
	return p.Symbol
}

// Registry holds all chain parameters indexed by symbol and network.
var registry = make(map[string]map[Network]*Params)

// Register adds chain params to the registry.
func Register(symbol string, network Network, params *Params) {
	if registry[symbol] == nil {
		registry[symbol] = make(map[Network]*Params)
	}
	registry[symbol][network] = params
}

// Get returns chain params for a symbol and network.
func Get(symbol string, network Network) (*Params, bool) {
	nets, ok := registry[symbol]
	if !ok {
		return nil, false
	}
	params, ok := nets[network]
	return params, ok
}

// List returns all registered chain symbols.
func List() []string {
	symbols := make([]string, 0, len(registry))
	for symbol := range registry {
		symbols = append(symbols, symbol)
	}
	return symbols
}

// IsSupported returns true if the chain is registered.
func IsSupported(symbol string) bool {
	_, ok := registry[symbol]
	return ok
}

// GetByChainID returns chain params for an EVM chain ID.
func GetByChainID(chainID uint64, network Network) (*Params, bool) {
	for _, nets := range registry {
		if params, ok := nets[network]; ok {
			if params.Type == ChainTypeEVM && params.ChainID == chainID {
				return params, true
			}
		}
	}
	return nil, false
}
