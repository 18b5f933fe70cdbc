package adapter

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/klingon-exchange/klingvault/internal/chain"
	"github.com/klingon-exchange/klingvault/pkg/helpers"
)

const (
	// Wallet v3r2 contract code, a single 888-bit cell.
	tonWalletV3R2Code = "ff0020dd2082014c97ba218201339cbab19f71b0ed44d0d31fd31f31d70bffe304e0a4f2608308d71820d31fd31fd31ff82313bbf263ed44d0d31fd31fd3ffd15132baf2a15144baf2a204f901541055f910f2a3f8009320d74a96d307d402fb00e8d101a4c8cb1fcb1fcbffc9ed54"

	tonSubwalletID = 698983191

	// Flat forward fee budget in nanotons for a simple transfer.
	tonBaseFeeNanotons = 10_000_000

	// send mode: pay fees separately, ignore action errors
	tonSendMode = 3

	tonMessageTTL = 60 * time.Second
)

// TONAdapter serves TON over the toncenter HTTP API. Each derived index is a
// wallet v3r2 contract owned by the derived ed25519 key; the contract is
// deployed with the first outgoing transfer.
type TONAdapter struct {
	params *chain.Params
	client *tonCenterClient
}

// NewTONAdapter creates an adapter backed by the toncenter API at endpoint.
func NewTONAdapter(params *chain.Params, endpoint string) (*TONAdapter, error) {
	return &TONAdapter{
		params: params,
		client: newTONCenterClient(endpoint),
	}, nil
}

// Chain returns the chain parameters this adapter serves.
func (a *TONAdapter) Chain() *chain.Params {
	return a.params
}

// DeriveAddress derives the wallet contract address at the given index.
func (a *TONAdapter) DeriveAddress(seed []byte, index uint32) (*DerivedAddress, error) {
	priv, err := deriveEd25519Key(seed, a.params.AddressDerivationPath(index))
	if err != nil {
		return nil, err
	}
	pub := priv.Public().(ed25519.PublicKey)
	stateInit, err := tonWalletStateInit(pub)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDerivation, err)
	}
	return &DerivedAddress{
		Address:   tonFriendlyAddress(0, stateInit.hash()),
		PublicKey: append([]byte(nil), pub...),
		Path:      a.params.AddressDerivationPathString(index),
		Index:     index,
	}, nil
}

// GetBalance returns the confirmed balance of an address in TON. Jetton
// balances are not supported.
func (a *TONAdapter) GetBalance(ctx context.Context, address, asset string) (decimal.Decimal, error) {
	if asset != "" {
		return decimal.Zero, fmt.Errorf("%w: jetton assets not supported", ErrUnsupportedOperation)
	}
	nanotons, err := a.client.AddressBalance(ctx, address)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrBalanceQuery, err)
	}
	return helpers.Uint64FromBaseUnits(nanotons, a.params.Decimals), nil
}

// EstimateFee returns the flat fee budget for a simple transfer.
func (a *TONAdapter) EstimateFee(ctx context.Context, asset string) (decimal.Decimal, error) {
	if asset != "" {
		return decimal.Zero, fmt.Errorf("%w: jetton assets not supported", ErrUnsupportedOperation)
	}
	return helpers.Uint64FromBaseUnits(tonBaseFeeNanotons, a.params.Decimals), nil
}

// Transfer signs and broadcasts a transfer from the wallet contract at the
// given index. An undeployed wallet is deployed by the same message. The
// returned identifier is "ton:<address>:<seqno>" since TON has no client-side
// transaction hash.
func (a *TONAdapter) Transfer(ctx context.Context, seed []byte, index uint32, to string, amount decimal.Decimal, asset string) (string, error) {
	if asset != "" {
		return "", fmt.Errorf("%w: jetton assets not supported", ErrUnsupportedOperation)
	}

	destWorkchain, destHash, err := tonParseAddress(to)
	if err != nil {
		return "", err
	}
	nanotons, err := helpers.ToBaseUint64(amount, a.params.Decimals)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInsufficientFunds, err)
	}

	priv, err := deriveEd25519Key(seed, a.params.AddressDerivationPath(index))
	if err != nil {
		return "", err
	}
	pub := priv.Public().(ed25519.PublicKey)
	stateInit, err := tonWalletStateInit(pub)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSigning, err)
	}
	fromAddress := tonFriendlyAddress(0, stateInit.hash())

	seqno, deployed, err := a.client.WalletSeqno(ctx, fromAddress)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBroadcast, err)
	}

	internal := &tonCell{}
	internal.writeUint(0, 1)  // int_msg_info
	internal.writeBit(1)      // ihr_disabled
	internal.writeBit(0)      // bounce off for deposits to plain wallets
	internal.writeBit(0)      // not bounced
	internal.writeUint(0, 2)  // src addr_none
	internal.writeStdAddress(destWorkchain, destHash)
	internal.writeGrams(nanotons)
	internal.writeUint(0, 1+4+4+64+32) // currencies, ihr fee, fwd fee, lt, at
	internal.writeUint(0, 2)           // no init, body inline

	unsigned := &tonCell{}
	unsigned.writeUint(tonSubwalletID, 32)
	unsigned.writeUint(uint64(time.Now().Add(tonMessageTTL).Unix()), 32)
	unsigned.writeUint(uint64(seqno), 32)
	unsigned.writeUint(tonSendMode, 8)
	unsigned.addRef(internal)

	bodyHash := unsigned.hash()
	signature := ed25519.Sign(priv, bodyHash[:])

	signed := &tonCell{}
	signed.writeBytes(signature)
	signed.writeBytes(unsigned.dataBytes())
	signed.addRef(internal)

	external := &tonCell{}
	external.writeUint(0b10, 2) // ext_in_msg_info
	external.writeUint(0, 2)    // src addr_none
	external.writeStdAddress(0, stateInit.hash())
	external.writeGrams(0) // import fee
	if deployed {
		external.writeBit(0) // no init
	} else {
		external.writeUint(0b11, 2) // init in ref
		external.addRef(stateInit)
	}
	external.writeBit(1) // body in ref
	external.addRef(signed)

	boc, err := serializeBoC(external)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSigning, err)
	}
	if err := a.client.SendBoC(ctx, base64.StdEncoding.EncodeToString(boc)); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBroadcast, err)
	}
	return fmt.Sprintf("ton:%s:%d", fromAddress, seqno), nil
}

// ValidateAddress reports whether the address parses as a user-friendly or
// raw TON address.
func (a *TONAdapter) ValidateAddress(address string) bool {
	_, _, err := tonParseAddress(address)
	return err == nil
}

// TransactionStatus resolves a "ton:<address>:<seqno>" identifier. The wallet
// contract increments its stored seqno when a transfer is accepted, so a
// seqno past the recorded one means the transfer went through. TON gives the
// sender no rejection signal, so an unaccepted message stays pending until
// its TTL lapses and the engine retries.
func (a *TONAdapter) TransactionStatus(ctx context.Context, txID string) (TxStatus, error) {
	parts := strings.Split(txID, ":")
	if len(parts) != 3 || parts[0] != "ton" {
		return TxStatusPending, fmt.Errorf("%w: bad identifier %q", ErrTxNotFound, txID)
	}
	sentSeqno, err := strconv.ParseUint(parts[2], 10, 32)
	if err != nil {
		return TxStatusPending, fmt.Errorf("%w: bad seqno in %q", ErrTxNotFound, txID)
	}

	seqno, deployed, err := a.client.WalletSeqno(ctx, parts[1])
	if err != nil {
		return TxStatusPending, fmt.Errorf("%w: %v", ErrStatusQuery, err)
	}
	if deployed && uint64(seqno) > sentSeqno {
		return TxStatusConfirmed, nil
	}
	return TxStatusPending, nil
}

// tonWalletStateInit builds the StateInit cell for a v3r2 wallet owned by the
// public key. Its hash is the account address.
func tonWalletStateInit(pub ed25519.PublicKey) (*tonCell, error) {
	codeBytes, err := hex.DecodeString(tonWalletV3R2Code)
	if err != nil {
		return nil, err
	}
	code := &tonCell{}
	code.writeBytes(codeBytes)

	data := &tonCell{}
	data.writeUint(0, 32) // initial seqno
	data.writeUint(tonSubwalletID, 32)
	data.writeBytes(pub)

	stateInit := &tonCell{}
	stateInit.writeUint(0b00110, 5) // no split depth, no special, code and data refs, no libraries
	stateInit.addRef(code)
	stateInit.addRef(data)
	return stateInit, nil
}

// tonFriendlyAddress encodes a bounceable mainnet-form address.
func tonFriendlyAddress(workchain int8, hash [32]byte) string {
	payload := make([]byte, 0, 36)
	payload = append(payload, 0x11, byte(workchain))
	payload = append(payload, hash[:]...)
	crc := crc16XModem(payload)
	payload = append(payload, byte(crc>>8), byte(crc))
	return base64.URLEncoding.EncodeToString(payload)
}

// tonParseAddress accepts user-friendly (base64 and base64url) and raw
// "workchain:hex" forms.
func tonParseAddress(address string) (int8, [32]byte, error) {
	var hash [32]byte

	if wc, rest, ok := strings.Cut(address, ":"); ok {
		workchain, err := strconv.ParseInt(wc, 10, 8)
		if err != nil {
			return 0, hash, fmt.Errorf("%w: bad workchain in %q", ErrInvalidAddress, address)
		}
		raw, err := hex.DecodeString(rest)
		if err != nil || len(raw) != 32 {
			return 0, hash, fmt.Errorf("%w: bad account hash in %q", ErrInvalidAddress, address)
		}
		copy(hash[:], raw)
		return int8(workchain), hash, nil
	}

	payload, err := base64.URLEncoding.DecodeString(address)
	if err != nil {
		payload, err = base64.StdEncoding.DecodeString(address)
	}
	if err != nil || len(payload) != 36 {
		return 0, hash, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	tag := payload[0] &^ 0x80 // strip test-only flag
	if tag != 0x11 && tag != 0x51 {
		return 0, hash, fmt.Errorf("%w: unknown tag 0x%02x", ErrInvalidAddress, payload[0])
	}
	crc := uint16(payload[34])<<8 | uint16(payload[35])
	if crc != crc16XModem(payload[:34]) {
		return 0, hash, fmt.Errorf("%w: checksum mismatch in %q", ErrInvalidAddress, address)
	}
	copy(hash[:], payload[2:34])
	return int8(payload[1]), hash, nil
}

// tonCenterClient is a minimal client for the toncenter v2 HTTP API.
type tonCenterClient struct {
	baseURL    string
	httpClient *http.Client
}

func newTONCenterClient(baseURL string) *tonCenterClient {
	return &tonCenterClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// AddressBalance returns the balance in nanotons.
func (c *tonCenterClient) AddressBalance(ctx context.Context, address string) (uint64, error) {
	var result string
	if err := c.get(ctx, "/getAddressBalance", url.Values{"address": {address}}, &result); err != nil {
		return 0, err
	}
	return strconv.ParseUint(result, 10, 64)
}

// WalletSeqno returns the wallet's stored seqno. deployed is false for an
// account with no contract yet, in which case seqno is 0.
func (c *tonCenterClient) WalletSeqno(ctx context.Context, address string) (uint32, bool, error) {
	var result struct {
		Wallet bool    `json:"wallet"`
		Seqno  *uint32 `json:"seqno"`
	}
	if err := c.get(ctx, "/getWalletInformation", url.Values{"address": {address}}, &result); err != nil {
		return 0, false, err
	}
	if !result.Wallet || result.Seqno == nil {
		return 0, false, nil
	}
	return *result.Seqno, true, nil
}

// SendBoC broadcasts a serialized external message.
func (c *tonCenterClient) SendBoC(ctx context.Context, bocBase64 string) error {
	body, err := json.Marshal(map[string]string{"boc": bocBase64})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sendBoc", strings.NewReader(string(body)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.decodeEnvelope(resp, nil)
}

func (c *tonCenterClient) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.decodeEnvelope(resp, result)
}

func (c *tonCenterClient) decodeEnvelope(resp *http.Response, result interface{}) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var envelope struct {
		OK     bool            `json:"ok"`
		Error  string          `json:"error"`
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("status %d: %v", resp.StatusCode, err)
	}
	if !envelope.OK {
		return fmt.Errorf("api error: %s", envelope.Error)
	}
	if result != nil {
		return json.Unmarshal(envelope.Result, result)
	}
	return nil
}
