// Package xaman talks to the Xaman (XUMM) platform REST API: payload
// creation for out-of-band signing and payload status reads.
package xaman

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

type Client struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
	log        *zap.Logger
}

func NewClient(baseURL, apiKey, apiSecret string, log *zap.Logger) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		apiSecret: apiSecret,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		log: log,
	}
}

// Configured reports whether API credentials are present. An
// unconfigured client makes the Xaman payment method unavailable
// rather than failing at attempt time.
func (c *Client) Configured() bool {
	return c.apiKey != "" && c.apiSecret != ""
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("X-API-Secret", c.apiSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("xaman service unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("xaman returned %d: %s", resp.StatusCode, string(b))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// PayloadRefs carries the render targets Xaman hands back for a
// created payload.
type PayloadRefs struct {
	QRPng           string `json:"qr_png"`
	QRMatrix        string `json:"qr_matrix,omitempty"`
	WebsocketStatus string `json:"websocket_status,omitempty"`
	DeepLink        string `json:"deeplink_url,omitempty"`
}

type CreatePayloadResponse struct {
	UUID   string      `json:"uuid"`
	Refs   PayloadRefs `json:"refs"`
	Pushed bool        `json:"pushed"`
}

// CreatePayload registers a transaction JSON for out-of-band signing
// and returns the payload handle.
func (c *Client) CreatePayload(ctx context.Context, txJSON map[string]any) (*CreatePayloadResponse, error) {
	var res CreatePayloadResponse
	err := c.do(ctx, http.MethodPost, "/payload", map[string]any{"txjson": txJSON}, &res)
	if err != nil {
		return nil, err
	}
	if res.UUID == "" {
		return nil, fmt.Errorf("xaman did not return a payload id")
	}
	return &res, nil
}

type PayloadStatus struct {
	Meta struct {
		Exists    bool `json:"exists"`
		Resolved  bool `json:"resolved"`
		Signed    bool `json:"signed"`
		Cancelled bool `json:"cancelled"`
		Expired   bool `json:"expired"`
	} `json:"meta"`
	Response struct {
		TxID    string `json:"txid"`
		Account string `json:"account"`
	} `json:"response"`
	Refs PayloadRefs `json:"refs"`
}

// GetPayload reads the current signing state of a payload.
func (c *Client) GetPayload(ctx context.Context, payloadID string) (*PayloadStatus, error) {
	var res PayloadStatus
	if err := c.do(ctx, http.MethodGet, "/payload/"+payloadID, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Ping verifies credentials and reachability.
func (c *Client) Ping(ctx context.Context) error {
	var res map[string]any
	if err := c.do(ctx, http.MethodGet, "/ping", nil, &res); err != nil {
		return err
	}
	return nil
}

// SignLink is the universal fallback link when no QR image was
// returned for a payload.
func SignLink(payloadID string) string {
	return "https://xumm.app/sign/" + payloadID
}
