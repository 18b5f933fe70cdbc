package chain

func init() {
	// Solana Mainnet
	Register("SOL", Mainnet, &Params{
		Symbol:   "SOL",
		Name:     "Solana",
		Type:     ChainTypeSolana,
		Decimals: 9,

		// SLIP-0010 ed25519, m/44'/501'/index'/0'
		CoinType:       501,
		DefaultPurpose: 44,
		HardenedOnly:   true,

		DefaultAddressType: AddressSolana,
	})

	// Solana Devnet
	Register("SOL", Testnet, &Params{
		Symbol:   "SOL",
		Name:     "Solana Devnet",
		Type:     ChainTypeSolana,
		Decimals: 9,

		CoinType:       501,
		DefaultPurpose: 44,
		HardenedOnly:   true,

		DefaultAddressType: AddressSolana,
	})
}
