package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// EsploraClient talks to an esplora-compatible REST API (mempool.space,
// blockstream.info, or self-hosted).
type EsploraClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewEsploraClient creates a client for an esplora base URL.
func NewEsploraClient(baseURL string) *EsploraClient {
	return &EsploraClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// esploraUTXO is one unspent output as reported by the API.
type esploraUTXO struct {
	TxID      string
	Vout      uint32
	Value     uint64
	Confirmed bool
}

// esploraFees holds recommended fee rates in sat/vB.
type esploraFees struct {
	FastestFee  uint64
	HalfHourFee uint64
	HourFee     uint64
	EconomyFee  uint64
	MinimumFee  uint64
}

// AddressBalance returns the confirmed balance of an address in satoshis.
func (c *EsploraClient) AddressBalance(ctx context.Context, address string) (uint64, error) {
	var result struct {
		ChainStats struct {
			FundedTxoSum uint64 `json:"funded_txo_sum"`
			SpentTxoSum  uint64 `json:"spent_txo_sum"`
		} `json:"chain_stats"`
	}
	if err := c.get(ctx, "/address/"+address, &result); err != nil {
		return 0, err
	}
	return result.ChainStats.FundedTxoSum - result.ChainStats.SpentTxoSum, nil
}

// AddressUTXOs returns unspent outputs for an address.
func (c *EsploraClient) AddressUTXOs(ctx context.Context, address string) ([]esploraUTXO, error) {
	var result []struct {
		TxID   string `json:"txid"`
		Vout   uint32 `json:"vout"`
		Value  uint64 `json:"value"`
		Status struct {
			Confirmed bool `json:"confirmed"`
		} `json:"status"`
	}
	if err := c.get(ctx, "/address/"+address+"/utxo", &result); err != nil {
		return nil, err
	}

	utxos := make([]esploraUTXO, len(result))
	for i, u := range result {
		utxos[i] = esploraUTXO{
			TxID:      u.TxID,
			Vout:      u.Vout,
			Value:     u.Value,
			Confirmed: u.Status.Confirmed,
		}
	}
	return utxos, nil
}

// TxConfirmed reports whether a transaction is confirmed. found is false when
// the API has not seen the transaction at all.
func (c *EsploraClient) TxConfirmed(ctx context.Context, txID string) (confirmed, found bool, err error) {
	var result struct {
		Confirmed bool `json:"confirmed"`
	}
	err = c.get(ctx, "/tx/"+txID+"/status", &result)
	if err == errEsploraNotFound {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return result.Confirmed, true, nil
}

// FeeEstimates returns recommended fee rates.
func (c *EsploraClient) FeeEstimates(ctx context.Context) (*esploraFees, error) {
	var result map[string]float64
	if err := c.get(ctx, "/v1/fees/recommended", &result); err != nil {
		return nil, err
	}
	return &esploraFees{
		FastestFee:  uint64(result["fastestFee"]),
		HalfHourFee: uint64(result["halfHourFee"]),
		HourFee:     uint64(result["hourFee"]),
		EconomyFee:  uint64(result["economyFee"]),
		MinimumFee:  uint64(result["minimumFee"]),
	}, nil
}

// Broadcast submits a raw transaction and returns the txid.
func (c *EsploraClient) Broadcast(ctx context.Context, rawTxHex string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/tx", strings.NewReader(rawTxHex))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("broadcast rejected: %s", strings.TrimSpace(string(body)))
	}
	return strings.TrimSpace(string(body)), nil
}

var errEsploraNotFound = fmt.Errorf("esplora: not found")

// get performs a GET request and decodes the JSON response.
func (c *EsploraClient) get(ctx context.Context, path string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errEsploraNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	return json.NewDecoder(resp.Body).Decode(result)
}
