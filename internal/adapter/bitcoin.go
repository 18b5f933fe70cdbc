package adapter

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/shopspring/decimal"

	"github.com/klingon-exchange/klingvault/internal/chain"
	"github.com/klingon-exchange/klingvault/pkg/helpers"
)

const (
	// Virtual size accounting for P2WPKH transactions.
	btcTxOverheadVBytes = 10
	btcInputVBytes      = 68
	btcOutputVBytes     = 31

	// Outputs below this value are unspendable in practice.
	btcDustLimit = 546

	// One input, destination output, change output, witness marker bytes.
	btcStandardTxVBytes = btcTxOverheadVBytes + btcInputVBytes + 2*btcOutputVBytes + 2
)

// BitcoinAdapter serves BTC over an esplora-compatible backend. Addresses are
// native segwit P2WPKH.
type BitcoinAdapter struct {
	params    *chain.Params
	netParams *chaincfg.Params
	client    *EsploraClient
}

// NewBitcoinAdapter creates an adapter backed by the esplora API at endpoint.
func NewBitcoinAdapter(params *chain.Params, endpoint string) (*BitcoinAdapter, error) {
	return &BitcoinAdapter{
		params:    params,
		netParams: newChaincfgParams(params),
		client:    NewEsploraClient(endpoint),
	}, nil
}

// newChaincfgParams builds btcd network parameters from chain metadata.
func newChaincfgParams(p *chain.Params) *chaincfg.Params {
	return &chaincfg.Params{
		Name:             p.Name,
		PubKeyHashAddrID: p.PubKeyHashAddrID,
		ScriptHashAddrID: p.ScriptHashAddrID,
		PrivateKeyID:     p.WIF,
		Bech32HRPSegwit:  p.Bech32HRP,
		HDPrivateKeyID:   p.HDPrivateKeyID,
		HDPublicKeyID:    p.HDPublicKeyID,
	}
}

// Chain returns the chain parameters this adapter serves.
func (a *BitcoinAdapter) Chain() *chain.Params {
	return a.params
}

// DeriveAddress derives the P2WPKH address at the given index.
func (a *BitcoinAdapter) DeriveAddress(seed []byte, index uint32) (*DerivedAddress, error) {
	path := a.params.AddressDerivationPath(index)
	priv, err := deriveSecpKey(seed, a.netParams, path)
	if err != nil {
		return nil, err
	}
	defer priv.Zero()

	pubKey := priv.PubKey().SerializeCompressed()
	addr, err := btcutil.NewAddressWitnessPubKeyHash(btcutil.Hash160(pubKey), a.netParams)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDerivation, err)
	}

	return &DerivedAddress{
		Address:   addr.EncodeAddress(),
		PublicKey: pubKey,
		Path:      a.params.AddressDerivationPathString(index),
		Index:     index,
	}, nil
}

// GetBalance returns the confirmed balance of an address in BTC. Bitcoin has
// no token layer, so a non-empty asset is rejected.
func (a *BitcoinAdapter) GetBalance(ctx context.Context, address, asset string) (decimal.Decimal, error) {
	if asset != "" {
		return decimal.Zero, fmt.Errorf("%w: bitcoin has no token assets", ErrUnsupportedOperation)
	}
	sats, err := a.client.AddressBalance(ctx, address)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrBalanceQuery, err)
	}
	return helpers.Uint64FromBaseUnits(sats, a.params.Decimals), nil
}

// EstimateFee returns the fee in BTC for a standard single-input transfer at
// the current half-hour confirmation rate.
func (a *BitcoinAdapter) EstimateFee(ctx context.Context, asset string) (decimal.Decimal, error) {
	if asset != "" {
		return decimal.Zero, fmt.Errorf("%w: bitcoin has no token assets", ErrUnsupportedOperation)
	}
	rate, err := a.feeRate(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return helpers.Uint64FromBaseUnits(rate*btcStandardTxVBytes, a.params.Decimals), nil
}

func (a *BitcoinAdapter) feeRate(ctx context.Context) (uint64, error) {
	fees, err := a.client.FeeEstimates(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrFeeEstimate, err)
	}
	rate := fees.HalfHourFee
	if rate == 0 {
		rate = 1
	}
	return rate, nil
}

// Transfer builds, signs, and broadcasts a P2WPKH spend from the address at
// the given index.
func (a *BitcoinAdapter) Transfer(ctx context.Context, seed []byte, index uint32, to string, amount decimal.Decimal, asset string) (string, error) {
	if asset != "" {
		return "", fmt.Errorf("%w: bitcoin has no token assets", ErrUnsupportedOperation)
	}
	if !a.ValidateAddress(to) {
		return "", fmt.Errorf("%w: %s", ErrInvalidAddress, to)
	}

	amountSats, err := helpers.ToBaseUint64(amount, a.params.Decimals)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInsufficientFunds, err)
	}
	if amountSats < btcDustLimit {
		return "", fmt.Errorf("%w: amount %d sat below dust limit", ErrInsufficientFunds, amountSats)
	}

	from, err := a.DeriveAddress(seed, index)
	if err != nil {
		return "", err
	}

	utxos, err := a.client.AddressUTXOs(ctx, from.Address)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBalanceQuery, err)
	}

	feeRate, err := a.feeRate(ctx)
	if err != nil {
		return "", err
	}

	sendSats := amountSats
	selected, totalIn, fee, err := selectUTXOs(utxos, amountSats, feeRate)
	if errors.Is(err, ErrInsufficientFunds) {
		selected, totalIn, sendSats, fee, err = spendAllUTXOs(utxos, amountSats, feeRate)
	}
	if err != nil {
		return "", err
	}

	rawTx, err := a.buildAndSignTx(seed, index, from.Address, to, selected, totalIn, sendSats, fee)
	if err != nil {
		return "", err
	}

	txID, err := a.client.Broadcast(ctx, rawTx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBroadcast, err)
	}
	return txID, nil
}

// selectUTXOs picks confirmed UTXOs largest-first until the target amount
// plus the accumulated fee is covered.
func selectUTXOs(utxos []esploraUTXO, amountSats, feeRate uint64) (selected []esploraUTXO, totalIn, fee uint64, err error) {
	confirmed := make([]esploraUTXO, 0, len(utxos))
	for _, u := range utxos {
		if u.Confirmed {
			confirmed = append(confirmed, u)
		}
	}
	sort.Slice(confirmed, func(i, j int) bool {
		return confirmed[i].Value > confirmed[j].Value
	})

	baseFee := uint64(btcTxOverheadVBytes+2*btcOutputVBytes) * feeRate
	fee = baseFee
	for _, u := range confirmed {
		selected = append(selected, u)
		totalIn += u.Value
		fee += btcInputVBytes * feeRate
		if totalIn >= amountSats+fee {
			return selected, totalIn, fee, nil
		}
	}
	return nil, 0, 0, fmt.Errorf("%w: have %d sat, need %d sat", ErrInsufficientFunds, totalIn, amountSats+fee)
}

// spendAllUTXOs drains every confirmed UTXO into a single output. When the
// requested amount leaves no room for per-input fees the fee is subtracted
// from the output instead, so a send of the full balance minus a one-input
// fee estimate still clears on addresses holding several UTXOs.
func spendAllUTXOs(utxos []esploraUTXO, amountSats, feeRate uint64) (selected []esploraUTXO, totalIn, sendSats, fee uint64, err error) {
	for _, u := range utxos {
		if u.Confirmed {
			selected = append(selected, u)
			totalIn += u.Value
		}
	}
	if totalIn < amountSats {
		return nil, 0, 0, 0, fmt.Errorf("%w: have %d sat, need %d sat", ErrInsufficientFunds, totalIn, amountSats)
	}
	fee = uint64(btcTxOverheadVBytes+btcOutputVBytes+len(selected)*btcInputVBytes) * feeRate
	if totalIn <= fee+btcDustLimit {
		return nil, 0, 0, 0, fmt.Errorf("%w: %d sat cannot cover the %d sat fee", ErrInsufficientFunds, totalIn, fee)
	}
	sendSats = totalIn - fee
	if sendSats > amountSats {
		sendSats = amountSats
	}
	return selected, totalIn, sendSats, fee, nil
}

// buildAndSignTx assembles a signed replaceable P2WPKH transaction. Change
// below the dust limit is folded into the fee.
func (a *BitcoinAdapter) buildAndSignTx(seed []byte, index uint32, fromAddr, toAddr string, selected []esploraUTXO, totalIn, amountSats, fee uint64) (string, error) {
	tx := wire.NewMsgTx(wire.TxVersion)

	prevOuts := make(map[wire.OutPoint]*wire.TxOut, len(selected))
	fromScript, err := payToAddrScript(fromAddr, a.netParams)
	if err != nil {
		return "", err
	}
	for _, u := range selected {
		txHash, err := chainhash.NewHashFromStr(u.TxID)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrSigning, err)
		}
		outPoint := wire.NewOutPoint(txHash, u.Vout)
		txIn := wire.NewTxIn(outPoint, nil, nil)
		txIn.Sequence = wire.MaxTxInSequenceNum - 2
		tx.AddTxIn(txIn)
		prevOuts[*outPoint] = wire.NewTxOut(int64(u.Value), fromScript)
	}

	toScript, err := payToAddrScript(toAddr, a.netParams)
	if err != nil {
		return "", err
	}
	tx.AddTxOut(wire.NewTxOut(int64(amountSats), toScript))

	change := totalIn - amountSats - fee
	if change > btcDustLimit {
		tx.AddTxOut(wire.NewTxOut(int64(change), fromScript))
	}

	priv, err := deriveSecpKey(seed, a.netParams, a.params.AddressDerivationPath(index))
	if err != nil {
		return "", err
	}
	defer priv.Zero()

	fetcher := txscript.NewMultiPrevOutFetcher(prevOuts)
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)
	for i, txIn := range tx.TxIn {
		prevOut := prevOuts[txIn.PreviousOutPoint]
		witness, err := txscript.WitnessSignature(
			tx, sigHashes, i, prevOut.Value, prevOut.PkScript,
			txscript.SigHashAll, priv, true,
		)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrSigning, err)
		}
		txIn.Witness = witness
	}

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return "", fmt.Errorf("%w: %v", ErrSigning, err)
	}
	return hex.EncodeToString(buf.Bytes()), nil
}

func payToAddrScript(address string, netParams *chaincfg.Params) ([]byte, error) {
	addr, err := btcutil.DecodeAddress(address, netParams)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigning, err)
	}
	return script, nil
}

// ValidateAddress reports whether the address parses for this network.
func (a *BitcoinAdapter) ValidateAddress(address string) bool {
	addr, err := btcutil.DecodeAddress(address, a.netParams)
	if err != nil {
		return false
	}
	return addr.IsForNet(a.netParams)
}

// TransactionStatus reports confirmation state. A transaction the backend has
// not indexed yet, or that was dropped from the mempool, stays pending;
// bitcoin transactions never fail on chain.
func (a *BitcoinAdapter) TransactionStatus(ctx context.Context, txID string) (TxStatus, error) {
	confirmed, _, err := a.client.TxConfirmed(ctx, txID)
	if err != nil {
		return TxStatusPending, fmt.Errorf("%w: %v", ErrStatusQuery, err)
	}
	if confirmed {
		return TxStatusConfirmed, nil
	}
	return TxStatusPending, nil
}
