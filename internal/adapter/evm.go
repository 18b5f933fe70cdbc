package adapter

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"github.com/klingon-exchange/klingvault/internal/chain"
	"github.com/klingon-exchange/klingvault/pkg/helpers"
)

// Gas budgets for standard transfers.
const (
	evmNativeGasLimit = 21000
	evmTokenGasLimit  = 65000
)

// ERC-20 function selectors: first 4 bytes of keccak256 of the signature.
var (
	erc20TransferSelector  = []byte{0xa9, 0x05, 0x9c, 0xbb} // transfer(address,uint256)
	erc20BalanceOfSelector = []byte{0x70, 0xa0, 0x82, 0x31} // balanceOf(address)
	erc20DecimalsSelector  = []byte{0x31, 0x3c, 0xe5, 0x67} // decimals()
)

// EVMAdapter serves Ethereum and EVM-compatible chains over JSON-RPC.
// One implementation covers ETH, BSC, and Polygon; only chain ID and
// endpoint differ.
type EVMAdapter struct {
	params  *chain.Params
	chainID *big.Int
	client  *ethclient.Client

	mu       sync.Mutex
	decimals map[string]uint8 // token contract (lowercase) -> decimals
}

// NewEVMAdapter connects to an EVM JSON-RPC endpoint.
func NewEVMAdapter(params *chain.Params, endpoint string) (*EVMAdapter, error) {
	client, err := ethclient.Dial(endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s endpoint: %w", params.Symbol, err)
	}
	return &EVMAdapter{
		params:   params,
		chainID:  new(big.Int).SetUint64(params.ChainID),
		client:   client,
		decimals: make(map[string]uint8),
	}, nil
}

// Chain returns the chain parameters.
func (a *EVMAdapter) Chain() *chain.Params {
	return a.params
}

// DeriveAddress derives the EIP-55 checksummed address at the given index.
func (a *EVMAdapter) DeriveAddress(seed []byte, index uint32) (*DerivedAddress, error) {
	priv, err := a.deriveKey(seed, index)
	if err != nil {
		return nil, err
	}
	ecdsaKey := priv.ToECDSA()

	return &DerivedAddress{
		Address:   crypto.PubkeyToAddress(ecdsaKey.PublicKey).Hex(),
		PublicKey: priv.PubKey().SerializeCompressed(),
		Path:      a.params.AddressDerivationPathString(index),
		Index:     index,
	}, nil
}

// GetBalance returns the native or ERC-20 balance of an address.
func (a *EVMAdapter) GetBalance(ctx context.Context, address, asset string) (decimal.Decimal, error) {
	if !common.IsHexAddress(address) {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidAddress, address)
	}
	addr := common.HexToAddress(address)

	if asset == "" {
		wei, err := a.client.BalanceAt(ctx, addr, nil)
		if err != nil {
			return decimal.Zero, fmt.Errorf("%w: %v", ErrBalanceQuery, err)
		}
		return helpers.FromBaseUnits(wei, a.params.Decimals), nil
	}

	if !common.IsHexAddress(asset) {
		return decimal.Zero, fmt.Errorf("%w: token contract %s", ErrInvalidAddress, asset)
	}
	contract := common.HexToAddress(asset)

	data := append(append([]byte{}, erc20BalanceOfSelector...), helpers.PadLeft(addr.Bytes(), 32)...)
	raw, err := a.client.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: balanceOf call: %v", ErrBalanceQuery, err)
	}

	decimals, err := a.tokenDecimals(ctx, asset)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrBalanceQuery, err)
	}
	return helpers.FromBaseUnits(new(big.Int).SetBytes(raw), decimals), nil
}

// EstimateFee returns gas price times the standard gas budget, in native coin.
func (a *EVMAdapter) EstimateFee(ctx context.Context, asset string) (decimal.Decimal, error) {
	gasPrice, err := a.client.SuggestGasPrice(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrFeeEstimate, err)
	}

	gasLimit := int64(evmNativeGasLimit)
	if asset != "" {
		gasLimit = evmTokenGasLimit
	}

	fee := new(big.Int).Mul(gasPrice, big.NewInt(gasLimit))
	return helpers.FromBaseUnits(fee, a.params.Decimals), nil
}

// Transfer signs and broadcasts a native or ERC-20 transfer.
func (a *EVMAdapter) Transfer(ctx context.Context, seed []byte, index uint32, to string, amount decimal.Decimal, asset string) (string, error) {
	if !common.IsHexAddress(to) {
		return "", fmt.Errorf("%w: %s", ErrInvalidAddress, to)
	}
	toAddr := common.HexToAddress(to)

	priv, err := a.deriveKey(seed, index)
	if err != nil {
		return "", err
	}
	ecdsaKey := priv.ToECDSA()
	from := crypto.PubkeyToAddress(ecdsaKey.PublicKey)

	nonce, err := a.client.PendingNonceAt(ctx, from)
	if err != nil {
		return "", fmt.Errorf("%w: nonce: %v", ErrBroadcast, err)
	}
	gasPrice, err := a.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFeeEstimate, err)
	}

	var tx *types.Transaction
	if asset == "" {
		value := helpers.ToBaseUnits(amount, a.params.Decimals)
		tx = types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			To:       &toAddr,
			Value:    value,
			Gas:      evmNativeGasLimit,
			GasPrice: gasPrice,
		})
	} else {
		if !common.IsHexAddress(asset) {
			return "", fmt.Errorf("%w: token contract %s", ErrInvalidAddress, asset)
		}
		decimals, err := a.tokenDecimals(ctx, asset)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrBroadcast, err)
		}
		contract := common.HexToAddress(asset)
		tx = types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			To:       &contract,
			Value:    big.NewInt(0),
			Gas:      evmTokenGasLimit,
			GasPrice: gasPrice,
			Data:     encodeERC20Transfer(toAddr, helpers.ToBaseUnits(amount, decimals)),
		})
	}

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(a.chainID), ecdsaKey)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSigning, err)
	}

	if err := a.client.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBroadcast, err)
	}
	return signed.Hash().Hex(), nil
}

// ValidateAddress reports whether the address is a well-formed hex address.
func (a *EVMAdapter) ValidateAddress(address string) bool {
	return common.IsHexAddress(address)
}

// TransactionStatus checks the receipt for a transaction hash. A missing
// receipt means the transaction is still pending.
func (a *EVMAdapter) TransactionStatus(ctx context.Context, txID string) (TxStatus, error) {
	receipt, err := a.client.TransactionReceipt(ctx, common.HexToHash(txID))
	if errors.Is(err, ethereum.NotFound) {
		return TxStatusPending, nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: receipt: %v", ErrStatusQuery, err)
	}

	if receipt.Status == types.ReceiptStatusSuccessful {
		return TxStatusConfirmed, nil
	}
	return TxStatusFailed, nil
}

func (a *EVMAdapter) deriveKey(seed []byte, index uint32) (*btcec.PrivateKey, error) {
	return deriveSecpKey(seed, &chaincfg.MainNetParams, a.params.AddressDerivationPath(index))
}

// tokenDecimals resolves a token contract's decimals, preferring the on-chain
// decimals() call and falling back to the curated token registry.
func (a *EVMAdapter) tokenDecimals(ctx context.Context, asset string) (uint8, error) {
	key := strings.ToLower(asset)

	a.mu.Lock()
	if d, ok := a.decimals[key]; ok {
		a.mu.Unlock()
		return d, nil
	}
	a.mu.Unlock()

	contract := common.HexToAddress(asset)
	raw, err := a.client.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: erc20DecimalsSelector}, nil)
	if err == nil && len(raw) > 0 {
		d := uint8(new(big.Int).SetBytes(raw).Uint64())
		a.mu.Lock()
		a.decimals[key] = d
		a.mu.Unlock()
		return d, nil
	}

	if info := chain.GetTokenByAddress(a.params.ChainID, asset); info != nil {
		a.mu.Lock()
		a.decimals[key] = info.Decimals
		a.mu.Unlock()
		return info.Decimals, nil
	}

	return 0, fmt.Errorf("unknown token decimals for %s", asset)
}

// encodeERC20Transfer builds transfer(address,uint256) calldata: 4-byte
// selector plus two 32-byte arguments, 68 bytes total.
func encodeERC20Transfer(to common.Address, amount *big.Int) []byte {
	data := make([]byte, 0, 68)
	data = append(data, erc20TransferSelector...)
	data = append(data, helpers.PadLeft(to.Bytes(), 32)...)
	data = append(data, helpers.PadLeft(amount.Bytes(), 32)...)
	return data
}
