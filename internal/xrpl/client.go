// Package xrpl is a thin JSON-RPC client for a rippled node. It
// submits platform-signed payments in sign-and-submit mode and reads
// account transaction history; all transaction construction stays on
// the rippled side.
package xrpl

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// RLUSD currency code (40-char hex form) and its testnet issuer.
const (
	RLUSDHex           = "524C555344000000000000000000000000000000"
	RLUSDIssuerTestnet = "rQhWct2fv4Vc4KRjRgMrxa8xPN9Zx9iLKV"
)

type Client struct {
	endpoint   string
	httpClient *http.Client
	log        *zap.Logger
}

func NewClient(endpoint string, log *zap.Logger) *Client {
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
		log: log,
	}
}

type rpcRequest struct {
	Method string `json:"method"`
	Params []any  `json:"params"`
}

func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	body, err := json.Marshal(rpcRequest{Method: method, Params: []any{params}})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("rippled unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("rippled returned %d: %s", resp.StatusCode, string(b))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// IssuedAmount is an IOU amount (RLUSD and friends).
type IssuedAmount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
	Issuer   string `json:"issuer"`
}

// PaymentSpec describes one outbound payment from the platform hot
// wallet. Amount is either an IssuedAmount or a drops string for
// native XRP.
type PaymentSpec struct {
	Account     string
	Destination string
	Amount      any
	MemoHex     string
}

type submitResult struct {
	Result struct {
		Status              string `json:"status"`
		EngineResult        string `json:"engine_result"`
		EngineResultMessage string `json:"engine_result_message"`
		TxJSON              struct {
			Hash string `json:"hash"`
		} `json:"tx_json"`
		Error        string `json:"error"`
		ErrorMessage string `json:"error_message"`
	} `json:"result"`
}

// SubmitPayment signs and submits a Payment via the node's
// sign-and-submit mode and returns the transaction hash.
func (c *Client) SubmitPayment(ctx context.Context, seed string, spec PaymentSpec) (string, error) {
	txJSON := map[string]any{
		"TransactionType": "Payment",
		"Account":         spec.Account,
		"Destination":     spec.Destination,
		"Amount":          spec.Amount,
	}
	if spec.MemoHex != "" {
		txJSON["Memos"] = []map[string]any{
			{"Memo": map[string]any{"MemoData": spec.MemoHex}},
		}
	}

	var res submitResult
	err := c.call(ctx, "submit", map[string]any{
		"secret":  seed,
		"tx_json": txJSON,
	}, &res)
	if err != nil {
		return "", err
	}

	if res.Result.Error != "" {
		return "", fmt.Errorf("submit failed: %s (%s)", res.Result.Error, res.Result.ErrorMessage)
	}
	if res.Result.EngineResult != "tesSUCCESS" {
		return "", fmt.Errorf("payment not applied: %s (%s)", res.Result.EngineResult, res.Result.EngineResultMessage)
	}

	c.log.Info("payment submitted",
		zap.String("destination", spec.Destination),
		zap.String("tx_hash", res.Result.TxJSON.Hash),
	)
	return res.Result.TxJSON.Hash, nil
}

// AccountTxEntry is one validated transaction touching an account.
type AccountTxEntry struct {
	Hash            string
	LedgerIndex     uint32
	TransactionType string
	Destination     string
	Result          string
	MemoHexes       []string
}

type accountTxResult struct {
	Result struct {
		Status       string `json:"status"`
		Error        string `json:"error"`
		Transactions []struct {
			Validated bool `json:"validated"`
			Tx        struct {
				Hash            string `json:"hash"`
				LedgerIndex     uint32 `json:"ledger_index"`
				TransactionType string `json:"TransactionType"`
				Destination     string `json:"Destination"`
				Memos           []struct {
					Memo struct {
						MemoData string `json:"MemoData"`
					} `json:"Memo"`
				} `json:"Memos"`
			} `json:"tx"`
			Meta struct {
				TransactionResult string `json:"TransactionResult"`
			} `json:"meta"`
		} `json:"transactions"`
	} `json:"result"`
}

// AccountTx returns validated transactions for an account with ledger
// index greater than minLedger, oldest first.
func (c *Client) AccountTx(ctx context.Context, account string, minLedger int64) ([]AccountTxEntry, error) {
	var res accountTxResult
	err := c.call(ctx, "account_tx", map[string]any{
		"account":          account,
		"ledger_index_min": minLedger,
		"ledger_index_max": -1,
		"forward":          true,
		"limit":            100,
	}, &res)
	if err != nil {
		return nil, err
	}
	if res.Result.Error != "" {
		return nil, fmt.Errorf("account_tx failed: %s", res.Result.Error)
	}

	entries := make([]AccountTxEntry, 0, len(res.Result.Transactions))
	for _, t := range res.Result.Transactions {
		if !t.Validated {
			continue
		}
		entry := AccountTxEntry{
			Hash:            t.Tx.Hash,
			LedgerIndex:     t.Tx.LedgerIndex,
			TransactionType: t.Tx.TransactionType,
			Destination:     t.Tx.Destination,
			Result:          t.Meta.TransactionResult,
		}
		for _, m := range t.Tx.Memos {
			entry.MemoHexes = append(entry.MemoHexes, m.Memo.MemoData)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

type serverInfoResult struct {
	Result struct {
		Status string `json:"status"`
		Info   struct {
			ValidatedLedger struct {
				Seq uint32 `json:"seq"`
			} `json:"validated_ledger"`
		} `json:"info"`
	} `json:"result"`
}

// ValidatedLedger returns the latest validated ledger index. Doubles
// as the connectivity probe.
func (c *Client) ValidatedLedger(ctx context.Context) (uint32, error) {
	var res serverInfoResult
	if err := c.call(ctx, "server_info", map[string]any{}, &res); err != nil {
		return 0, err
	}
	if res.Result.Status != "success" {
		return 0, fmt.Errorf("server_info returned status %q", res.Result.Status)
	}
	return res.Result.Info.ValidatedLedger.Seq, nil
}

// EncodeMemoHex encodes memo text the way the ledger stores it.
func EncodeMemoHex(s string) string {
	return strings.ToUpper(hex.EncodeToString([]byte(s)))
}

// DecodeMemoHex reverses EncodeMemoHex; malformed input yields "".
func DecodeMemoHex(h string) string {
	data, err := hex.DecodeString(h)
	if err != nil {
		return ""
	}
	return string(data)
}

// FormatValue renders a float amount as an XRPL decimal string.
func FormatValue(v float64) string {
	s := fmt.Sprintf("%.6f", v)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

// ExplorerURL builds the public explorer link for a transaction.
func ExplorerURL(base, txHash string) string {
	return fmt.Sprintf("%s/%s", strings.TrimRight(base, "/"), txHash)
}
