package chain

func init() {
	// Ethereum Mainnet (chainID 1)
	Register("ETH", Mainnet, &Params{
		Symbol:      "ETH",
		Name:        "Ethereum",
		Type:        ChainTypeEVM,
		Decimals:    18,
		NativeToken: "ETH",

		CoinType:       60,
		DefaultPurpose: 44,

		ChainID: 1,

		DefaultAddressType: AddressEVM,
	})

	// Ethereum Sepolia Testnet (chainID 11155111)
	Register("ETH", Testnet, &Params{
		Symbol:      "ETH",
		Name:        "Ethereum Sepolia",
		Type:        ChainTypeEVM,
		Decimals:    18,
		NativeToken: "ETH",

		CoinType:       60,
		DefaultPurpose: 44,

		ChainID: 11155111,

		DefaultAddressType: AddressEVM,
	})

	// BSC Mainnet (chainID 56)
	Register("BSC", Mainnet, &Params{
		Symbol:      "BSC",
		Name:        "BNB Smart Chain",
		Type:        ChainTypeEVM,
		Decimals:    18,
		NativeToken: "BNB",

		CoinType:       60,
		DefaultPurpose: 44,

		ChainID: 56,

		DefaultAddressType: AddressEVM,
	})

	// BSC Testnet (chainID 97)
	Register("BSC", Testnet, &Params{
		Symbol:      "BSC",
		Name:        "BNB Smart Chain Testnet",
		Type:        ChainTypeEVM,
		Decimals:    18,
		NativeToken: "BNB",

		CoinType:       60,
		DefaultPurpose: 44,

		ChainID: 97,

		DefaultAddressType: AddressEVM,
	})

	// Polygon Mainnet (chainID 137)
	Register("POLYGON", Mainnet, &Params{
		Symbol:      "POLYGON",
		Name:        "Polygon",
		Type:        ChainTypeEVM,
		Decimals:    18,
		NativeToken: "POL",

		CoinType:       60,
		DefaultPurpose: 44,

		ChainID: 137,

		DefaultAddressType: AddressEVM,
	})

	// Polygon Amoy Testnet (chainID 80002)
	Register("POLYGON", Testnet, &Params{
		Symbol:      "POLYGON",
		Name:        "Polygon Amoy",
		Type:        ChainTypeEVM,
		Decimals:    18,
		NativeToken: "POL",

		CoinType:       60,
		DefaultPurpose: 44,

		ChainID: 80002,

		DefaultAddressType: AddressEVM,
	})
}
