package chain

import "strings"

// TokenInfo contains information about an ERC-20 token on a specific chain.
type TokenInfo struct {
	Symbol   string // Token symbol (USDT, USDC, etc.)
	Name     string // Full name
	Decimals uint8  // Token decimals
	Address  string // Contract address on this chain
	ChainID  uint64 // EVM chain ID
}

// SPLTokenInfo contains information about an SPL token mint on Solana.
type SPLTokenInfo struct {
	Symbol   string
	Name     string
	Decimals uint8
	Mint     string // Base58 mint address
}

// tokenRegistry maps chainID -> lowercase contract address -> TokenInfo.
var tokenRegistry = make(map[uint64]map[string]*TokenInfo)

// splRegistry maps mint address -> SPLTokenInfo.
var splRegistry = make(map[string]*SPLTokenInfo)

func init() {
	// Ethereum Mainnet (chainID 1)
	registerToken(&TokenInfo{
		Symbol:   "USDT",
		Name:     "Tether USD",
		Decimals: 6,
		Address:  "0xdAC17F958D2ee523a2206206994597C13D831ec7",
		ChainID:  1,
	})
	registerToken(&TokenInfo{
		Symbol:   "USDC",
		Name:     "USD Coin",
		Decimals: 6,
		Address:  "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
		ChainID:  1,
	})
	registerToken(&TokenInfo{
		Symbol:   "WETH",
		Name:     "Wrapped Ether",
		Decimals: 18,
		Address:  "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
		ChainID:  1,
	})
	registerToken(&TokenInfo{
		Symbol:   "WBTC",
		Name:     "Wrapped Bitcoin",
		Decimals: 8,
		Address:  "0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599",
		ChainID:  1,
	})

	// BSC Mainnet (chainID 56)
	registerToken(&TokenInfo{
		Symbol:   "USDT",
		Name:     "Tether USD",
		Decimals: 18,
		Address:  "0x55d398326f99059fF775485246999027B3197955",
		ChainID:  56,
	})
	registerToken(&TokenInfo{
		Symbol:   "USDC",
		Name:     "USD Coin",
		Decimals: 18,
		Address:  "0x8AC76a51cc950d9822D68b83fE1Ad97B32Cd580d",
		ChainID:  56,
	})

	// Polygon Mainnet (chainID 137)
	registerToken(&TokenInfo{
		Symbol:   "USDT",
		Name:     "Tether USD",
		Decimals: 6,
		Address:  "0xc2132D05D31c914a87C6611C10748AEb04B58e8F",
		ChainID:  137,
	})
	registerToken(&TokenInfo{
		Symbol:   "USDC",
		Name:     "USD Coin",
		Decimals: 6,
		Address:  "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359",
		ChainID:  137,
	})

	// Solana mainnet SPL mints
	registerSPLToken(&SPLTokenInfo{
		Symbol:   "USDT",
		Name:     "Tether USD",
		Decimals: 6,
		Mint:     "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB",
	})
	registerSPLToken(&SPLTokenInfo{
		Symbol:   "USDC",
		Name:     "USD Coin",
		Decimals: 6,
		Mint:     "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
	})
}

func registerToken(token *TokenInfo) {
	if tokenRegistry[token.ChainID] == nil {
		tokenRegistry[token.ChainID] = make(map[string]*TokenInfo)
	}
	tokenRegistry[token.ChainID][strings.ToLower(token.Address)] = token
}

func registerSPLToken(token *SPLTokenInfo) {
	splRegistry[token.Mint] = token
}

// GetTokenByAddress returns token info for a contract address on an EVM
// chain. Address comparison is case-insensitive.
func GetTokenByAddress(chainID uint64, address string) *TokenInfo {
	tokens, ok := tokenRegistry[chainID]
	if !ok {
		return nil
	}
	return tokens[strings.ToLower(address)]
}

// GetTokenBySymbol returns token info for a symbol on an EVM chain.
func GetTokenBySymbol(chainID uint64, symbol string) *TokenInfo {
	for _, token := range tokenRegistry[chainID] {
		if strings.EqualFold(token.Symbol, symbol) {
			return token
		}
	}
	return nil
}

// GetSPLToken returns SPL token info for a mint address.
func GetSPLToken(mint string) *SPLTokenInfo {
	return splRegistry[mint]
}

// ListTokens returns all registered tokens for an EVM chain.
func ListTokens(chainID uint64) []*TokenInfo {
	tokens := make([]*TokenInfo, 0, len(tokenRegistry[chainID]))
	for _, token := range tokenRegistry[chainID] {
		tokens = append(tokens, token)
	}
	return tokens
}
