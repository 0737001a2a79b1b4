package xaman

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func TestCreatePayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/payload" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("X-API-Key") != "key" || r.Header.Get("X-API-Secret") != "secret" {
			t.Error("credentials not forwarded")
		}

		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if _, ok := body["txjson"]; !ok {
			t.Error("txjson missing from request body")
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"uuid": "payload-uuid",
			"refs": map[string]any{"qr_png": "https://example.org/qr.png"},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", "secret", zap.NewNop())
	res, err := c.CreatePayload(context.Background(), map[string]any{"TransactionType": "Payment"})
	if err != nil {
		t.Fatalf("CreatePayload: %v", err)
	}
	if res.UUID != "payload-uuid" || res.Refs.QRPng == "" {
		t.Errorf("response = %+v", res)
	}
}

func TestCreatePayloadRejectsMissingUUID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"refs": map[string]any{}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", "secret", zap.NewNop())
	if _, err := c.CreatePayload(context.Background(), map[string]any{}); err == nil {
		t.Error("missing uuid accepted")
	}
}

func TestGetPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/payload/payload-uuid" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"meta":     map[string]any{"exists": true, "resolved": true, "signed": true},
			"response": map[string]any{"txid": "TX1", "account": "rDonor"},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", "secret", zap.NewNop())
	st, err := c.GetPayload(context.Background(), "payload-uuid")
	if err != nil {
		t.Fatalf("GetPayload: %v", err)
	}
	if !st.Meta.Signed || st.Response.TxID != "TX1" {
		t.Errorf("status = %+v", st)
	}
}

func TestDoSurfacesAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"bad credentials"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", "secret", zap.NewNop())
	if err := c.Ping(context.Background()); err == nil {
		t.Error("403 response did not surface an error")
	}
}

func TestConfigured(t *testing.T) {
	if NewClient("http://x", "", "", zap.NewNop()).Configured() {
		t.Error("client without credentials reported configured")
	}
	if !NewClient("http://x", "k", "s", zap.NewNop()).Configured() {
		t.Error("client with credentials reported unconfigured")
	}
}

func TestSignLink(t *testing.T) {
	if got := SignLink("abc"); got != "https://xumm.app/sign/abc" {
		t.Errorf("SignLink = %q", got)
	}
}
