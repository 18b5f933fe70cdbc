package adapter

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"

	"github.com/klingon-exchange/klingvault/internal/chain"
	"github.com/klingon-exchange/klingvault/pkg/helpers"
)

// Base fee per signature in lamports.
const solBaseFeeLamports = 5000

// SolanaAdapter serves SOL and SPL tokens over JSON-RPC. Addresses are the
// base58 ed25519 public key itself.
type SolanaAdapter struct {
	params *chain.Params
	client *solRPCClient
}

// NewSolanaAdapter creates an adapter backed by the JSON-RPC node at endpoint.
func NewSolanaAdapter(params *chain.Params, endpoint string) (*SolanaAdapter, error) {
	return &SolanaAdapter{
		params: params,
		client: newSolRPCClient(endpoint),
	}, nil
}

// Chain returns the chain parameters this adapter serves.
func (a *SolanaAdapter) Chain() *chain.Params {
	return a.params
}

// DeriveAddress derives the account address at the given index.
func (a *SolanaAdapter) DeriveAddress(seed []byte, index uint32) (*DerivedAddress, error) {
	priv, err := a.deriveKey(seed, index)
	if err != nil {
		return nil, err
	}
	pub := priv.Public().(ed25519.PublicKey)
	return &DerivedAddress{
		Address:   base58.Encode(pub),
		PublicKey: append([]byte(nil), pub...),
		Path:      a.params.AddressDerivationPathString(index),
		Index:     index,
	}, nil
}

func (a *SolanaAdapter) deriveKey(seed []byte, index uint32) (ed25519.PrivateKey, error) {
	return deriveEd25519Key(seed, a.params.AddressDerivationPath(index))
}

// GetBalance returns the confirmed balance of an address. A non-empty asset
// is an SPL token mint address.
func (a *SolanaAdapter) GetBalance(ctx context.Context, address, asset string) (decimal.Decimal, error) {
	owner, err := solPubKeyFromBase58(address)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrBalanceQuery, err)
	}

	if asset == "" {
		lamports, err := a.client.GetBalance(ctx, owner.String())
		if err != nil {
			return decimal.Zero, fmt.Errorf("%w: %v", ErrBalanceQuery, err)
		}
		return helpers.Uint64FromBaseUnits(lamports, a.params.Decimals), nil
	}

	accounts, err := a.client.GetTokenAccountsByOwner(ctx, owner.String(), asset)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrBalanceQuery, err)
	}

	total := new(big.Int)
	decimals := uint8(0)
	for _, acct := range accounts {
		amount, ok := new(big.Int).SetString(acct.Amount, 10)
		if !ok {
			return decimal.Zero, fmt.Errorf("%w: bad token amount %q", ErrBalanceQuery, acct.Amount)
		}
		total.Add(total, amount)
		decimals = acct.Decimals
	}
	if len(accounts) == 0 {
		if token := chain.GetSPLToken(asset); token != nil {
			decimals = token.Decimals
		}
	}
	return helpers.FromBaseUnits(total, decimals), nil
}

// EstimateFee returns the base signature fee in SOL. Token transfers pay the
// same signature fee in SOL.
func (a *SolanaAdapter) EstimateFee(ctx context.Context, asset string) (decimal.Decimal, error) {
	return helpers.Uint64FromBaseUnits(solBaseFeeLamports, a.params.Decimals), nil
}

// Transfer signs and broadcasts a transfer from the address at the given
// index. Token transfers create the destination associated token account when
// it does not exist yet, with the sender paying rent.
func (a *SolanaAdapter) Transfer(ctx context.Context, seed []byte, index uint32, to string, amount decimal.Decimal, asset string) (string, error) {
	dest, err := solPubKeyFromBase58(to)
	if err != nil {
		return "", err
	}

	priv, err := a.deriveKey(seed, index)
	if err != nil {
		return "", err
	}
	var from solPubKey
	copy(from[:], priv.Public().(ed25519.PublicKey))

	var instrs []solInstruction
	if asset == "" {
		lamports, err := helpers.ToBaseUint64(amount, a.params.Decimals)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInsufficientFunds, err)
		}
		instrs = append(instrs, solSystemTransfer(from, dest, lamports))
	} else {
		instrs, err = a.buildTokenTransfer(ctx, from, dest, amount, asset)
		if err != nil {
			return "", err
		}
	}

	blockhash, err := a.client.GetLatestBlockhash(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBroadcast, err)
	}

	txBytes, txSig, err := buildSolTransaction(priv, from, instrs, blockhash)
	if err != nil {
		return "", err
	}

	signature, err := a.client.SendTransaction(ctx, base64.StdEncoding.EncodeToString(txBytes))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBroadcast, err)
	}
	if signature == "" {
		signature = txSig
	}
	return signature, nil
}

func (a *SolanaAdapter) buildTokenTransfer(ctx context.Context, from, dest solPubKey, amount decimal.Decimal, asset string) ([]solInstruction, error) {
	mint, err := solPubKeyFromBase58(asset)
	if err != nil {
		return nil, err
	}

	decimals, err := a.tokenDecimals(ctx, asset)
	if err != nil {
		return nil, err
	}
	baseUnits, err := helpers.ToBaseUint64(amount, decimals)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInsufficientFunds, err)
	}

	sourceATA, err := deriveATA(from, mint)
	if err != nil {
		return nil, err
	}
	destATA, err := deriveATA(dest, mint)
	if err != nil {
		return nil, err
	}

	var instrs []solInstruction
	exists, err := a.client.AccountExists(ctx, destATA.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBalanceQuery, err)
	}
	if !exists {
		instrs = append(instrs, solCreateATA(from, destATA, dest, mint))
	}
	instrs = append(instrs, solSPLTransfer(sourceATA, destATA, from, baseUnits))
	return instrs, nil
}

func (a *SolanaAdapter) tokenDecimals(ctx context.Context, mint string) (uint8, error) {
	if token := chain.GetSPLToken(mint); token != nil {
		return token.Decimals, nil
	}
	decimals, err := a.client.GetTokenSupplyDecimals(ctx, mint)
	if err != nil {
		return 0, fmt.Errorf("%w: unknown mint %s: %v", ErrUnsupportedOperation, mint, err)
	}
	return decimals, nil
}

// ValidateAddress reports whether the address is a 32-byte base58 key.
// Program-derived addresses are off the curve, so no curve check is applied.
func (a *SolanaAdapter) ValidateAddress(address string) bool {
	decoded, err := base58.Decode(address)
	return err == nil && len(decoded) == 32
}

// TransactionStatus reports the state of a transaction signature.
func (a *SolanaAdapter) TransactionStatus(ctx context.Context, txID string) (TxStatus, error) {
	status, err := a.client.GetSignatureStatus(ctx, txID)
	if err != nil {
		return TxStatusPending, fmt.Errorf("%w: %v", ErrStatusQuery, err)
	}
	if status == nil {
		return TxStatusPending, nil
	}
	if status.Err != nil {
		return TxStatusFailed, nil
	}
	if status.ConfirmationStatus == "confirmed" || status.ConfirmationStatus == "finalized" {
		return TxStatusConfirmed, nil
	}
	return TxStatusPending, nil
}

// solRPCClient is a minimal Solana JSON-RPC client.
type solRPCClient struct {
	url        string
	httpClient *http.Client
}

func newSolRPCClient(url string) *solRPCClient {
	return &solRPCClient{
		url: url,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type solRPCRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type solRPCResponse struct {
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

func (c *solRPCClient) doRPC(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(solRPCRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rpc http %d", resp.StatusCode)
	}

	var rpcResp solRPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, err
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("rpc error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}
	return rpcResp.Result, nil
}

// GetBalance returns the lamport balance of an address.
func (c *solRPCClient) GetBalance(ctx context.Context, address string) (uint64, error) {
	result, err := c.doRPC(ctx, "getBalance", []interface{}{
		address,
		map[string]string{"commitment": "confirmed"},
	})
	if err != nil {
		return 0, err
	}
	var parsed struct {
		Value uint64 `json:"value"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return 0, err
	}
	return parsed.Value, nil
}

// GetLatestBlockhash fetches a recent blockhash for transaction building.
func (c *solRPCClient) GetLatestBlockhash(ctx context.Context) ([32]byte, error) {
	var blockhash [32]byte
	result, err := c.doRPC(ctx, "getLatestBlockhash", []interface{}{
		map[string]string{"commitment": "confirmed"},
	})
	if err != nil {
		return blockhash, err
	}
	var parsed struct {
		Value struct {
			Blockhash string `json:"blockhash"`
		} `json:"value"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return blockhash, err
	}
	decoded, err := base58.Decode(parsed.Value.Blockhash)
	if err != nil {
		return blockhash, err
	}
	if len(decoded) != 32 {
		return blockhash, fmt.Errorf("blockhash is %d bytes, want 32", len(decoded))
	}
	copy(blockhash[:], decoded)
	return blockhash, nil
}

// SendTransaction broadcasts a base64-encoded signed transaction.
func (c *solRPCClient) SendTransaction(ctx context.Context, txBase64 string) (string, error) {
	result, err := c.doRPC(ctx, "sendTransaction", []interface{}{
		txBase64,
		map[string]interface{}{
			"encoding":            "base64",
			"preflightCommitment": "confirmed",
		},
	})
	if err != nil {
		return "", err
	}
	var signature string
	if err := json.Unmarshal(result, &signature); err != nil {
		return "", err
	}
	return signature, nil
}

// solSignatureStatus is the chain-reported state of one signature.
type solSignatureStatus struct {
	Slot               uint64      `json:"slot"`
	ConfirmationStatus string      `json:"confirmationStatus"`
	Err                interface{} `json:"err"`
}

// GetSignatureStatus returns the status of a signature, or nil when the node
// has not seen it.
func (c *solRPCClient) GetSignatureStatus(ctx context.Context, signature string) (*solSignatureStatus, error) {
	result, err := c.doRPC(ctx, "getSignatureStatuses", []interface{}{
		[]string{signature},
		map[string]bool{"searchTransactionHistory": true},
	})
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Value []*solSignatureStatus `json:"value"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return nil, err
	}
	if len(parsed.Value) == 0 {
		return nil, nil
	}
	return parsed.Value[0], nil
}

// AccountExists reports whether an account has been created on chain.
func (c *solRPCClient) AccountExists(ctx context.Context, address string) (bool, error) {
	result, err := c.doRPC(ctx, "getAccountInfo", []interface{}{
		address,
		map[string]string{"encoding": "base64"},
	})
	if err != nil {
		return false, err
	}
	var parsed struct {
		Value *struct {
			Lamports uint64 `json:"lamports"`
		} `json:"value"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return false, err
	}
	return parsed.Value != nil, nil
}

// solTokenAccount is one token account balance for an owner.
type solTokenAccount struct {
	Amount   string
	Decimals uint8
}

// GetTokenAccountsByOwner returns all token accounts an owner holds for a
// mint.
func (c *solRPCClient) GetTokenAccountsByOwner(ctx context.Context, owner, mint string) ([]solTokenAccount, error) {
	result, err := c.doRPC(ctx, "getTokenAccountsByOwner", []interface{}{
		owner,
		map[string]string{"mint": mint},
		map[string]string{"encoding": "jsonParsed"},
	})
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Value []struct {
			Account struct {
				Data struct {
					Parsed struct {
						Info struct {
							TokenAmount struct {
								Amount   string `json:"amount"`
								Decimals uint8  `json:"decimals"`
							} `json:"tokenAmount"`
						} `json:"info"`
					} `json:"parsed"`
				} `json:"data"`
			} `json:"account"`
		} `json:"value"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return nil, err
	}
	accounts := make([]solTokenAccount, len(parsed.Value))
	for i, v := range parsed.Value {
		accounts[i] = solTokenAccount{
			Amount:   v.Account.Data.Parsed.Info.TokenAmount.Amount,
			Decimals: v.Account.Data.Parsed.Info.TokenAmount.Decimals,
		}
	}
	return accounts, nil
}

// GetTokenSupplyDecimals returns a mint's decimal precision.
func (c *solRPCClient) GetTokenSupplyDecimals(ctx context.Context, mint string) (uint8, error) {
	result, err := c.doRPC(ctx, "getTokenSupply", []interface{}{mint})
	if err != nil {
		return 0, err
	}
	var parsed struct {
		Value struct {
			Decimals uint8 `json:"decimals"`
		} `json:"value"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return 0, err
	}
	return parsed.Value.Decimals, nil
}
