package chain

func init() {
	// TON Mainnet
	Register("TON", Mainnet, &Params{
		Symbol:   "TON",
		Name:     "The Open Network",
		Type:     ChainTypeTON,
		Decimals: 9,

		// SLIP-0010 ed25519, m/44'/607'/index'/0'
		CoinType:       607,
		DefaultPurpose: 44,
		HardenedOnly:   true,

		DefaultAddressType: AddressTON,
	})

	// TON Testnet
	Register("TON", Testnet, &Params{
		Symbol:   "TON",
		Name:     "TON Testnet",
		Type:     ChainTypeTON,
		Decimals: 9,

		CoinType:       607,
		DefaultPurpose: 44,
		HardenedOnly:   true,

		DefaultAddressType: AddressTON,
	})
}
