// Package crossmark drives the CROSSMARK browser-extension signing
// path through a local bridge process that relays extension
// request/response commands.
package crossmark

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Account is the wallet the extension exposes after connecting.
type Account struct {
	Address string `json:"address"`
	Network string `json:"network"`
}

// Bridge is the extension command surface the adapter needs. The HTTP
// implementation talks to a co-located bridge; tests use fakes.
type Bridge interface {
	// Ping is the capability probe; a non-nil error means the
	// extension is not installed or the bridge is down.
	Ping(ctx context.Context) error
	Connect(ctx context.Context) (Account, error)
	// SignAndSubmit blocks until the user approves or rejects and
	// returns the transaction hash.
	SignAndSubmit(ctx context.Context, network string, txJSON map[string]any) (string, error)
}

type HTTPBridge struct {
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger
}

func NewHTTPBridge(baseURL string, log *zap.Logger) *HTTPBridge {
	return &HTTPBridge{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			// signAndSubmit blocks on the user; give them time
			Timeout: 2 * time.Minute,
		},
		log: log,
	}
}

type commandResponse struct {
	Address  string   `json:"address,omitempty"`
	Accounts []string `json:"accounts,omitempty"`
	Network  string   `json:"network,omitempty"`
	TxID     string   `json:"txid,omitempty"`
	Hash     string   `json:"hash,omitempty"`
	Error    string   `json:"error,omitempty"`
}

func (b *HTTPBridge) request(ctx context.Context, command string, extra map[string]any) (*commandResponse, error) {
	payload := map[string]any{"command": command}
	for k, v := range extra {
		payload[k] = v
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/request", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("crossmark bridge unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("crossmark bridge returned %d: %s", resp.StatusCode, string(raw))
	}

	var res commandResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, err
	}
	if res.Error != "" {
		return nil, fmt.Errorf("crossmark: %s", res.Error)
	}
	return &res, nil
}

func (b *HTTPBridge) Ping(ctx context.Context) error {
	_, err := b.request(ctx, "ping", nil)
	return err
}

// Connect retrieves the active wallet. Some extension builds answer
// "accounts" directly, others want an explicit "crossmark_login"
// first; try both the way the web client does.
func (b *HTTPBridge) Connect(ctx context.Context) (Account, error) {
	res, err := b.request(ctx, "accounts", nil)
	if err != nil || (res.Address == "" && len(res.Accounts) == 0) {
		res, err = b.request(ctx, "crossmark_login", nil)
		if err != nil {
			return Account{}, err
		}
	}

	addr := res.Address
	if addr == "" && len(res.Accounts) > 0 {
		addr = res.Accounts[0]
	}
	if addr == "" {
		return Account{}, fmt.Errorf("crossmark returned no wallet address")
	}
	return Account{Address: addr, Network: res.Network}, nil
}

func (b *HTTPBridge) SignAndSubmit(ctx context.Context, network string, txJSON map[string]any) (string, error) {
	res, err := b.request(ctx, "signAndSubmit", map[string]any{
		"network": network,
		"txjson":  txJSON,
	})
	if err != nil {
		return "", err
	}

	txid := res.TxID
	if txid == "" {
		txid = res.Hash
	}
	if txid == "" {
		return "", fmt.Errorf("signing failed or was rejected")
	}
	return txid, nil
}
