package payments

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/eunoia-atlas/backend/internal/config"
	"github.com/eunoia-atlas/backend/internal/crossmark"
	"github.com/eunoia-atlas/backend/internal/models"
	"github.com/eunoia-atlas/backend/internal/xaman"
	"go.uber.org/zap"
)

func testConfig() *config.Config {
	return &config.Config{
		Charities:       []config.Charity{{Code: "MEDA", Name: "MEDA", WalletAddress: "rTestWallet"}},
		RLUSDIssuer:     "rIssuer",
		ExplorerBaseURL: "https://testnet.xrpl.org/transactions",
		XRPLNetwork:     "testnet",
	}
}

type fakePlatformService struct {
	donation *models.Donation
	url      string
	err      error
	calls    int
}

func (f *fakePlatformService) SubmitDonorIntent(_ context.Context, _ models.SubmissionPayload) (*models.Donation, string, error) {
	f.calls++
	return f.donation, f.url, f.err
}

func TestPlatformAdapterCompleted(t *testing.T) {
	hash := "ABCDEF"
	svc := &fakePlatformService{
		donation: &models.Donation{TxHash: &hash},
		url:      "https://testnet.xrpl.org/transactions/ABCDEF",
	}
	a := NewPlatformAdapter(svc, true, zap.NewNop())

	res := a.Attempt(context.Background(), models.SubmissionPayload{AmountFiat: 10})
	if res.Kind != ResultCompleted {
		t.Fatalf("kind = %q, want completed", res.Kind)
	}
	if res.TxHash != "ABCDEF" || res.ExplorerURL == "" {
		t.Errorf("result = %+v", res)
	}
}

func TestPlatformAdapterNormalizesErrors(t *testing.T) {
	svc := &fakePlatformService{err: errors.New("ledger transfer failed")}
	a := NewPlatformAdapter(svc, true, zap.NewNop())

	res := a.Attempt(context.Background(), models.SubmissionPayload{AmountFiat: 10})
	if res.Kind != ResultError {
		t.Fatalf("kind = %q, want error", res.Kind)
	}
	if res.Message == "" {
		t.Error("error result carries no user-facing message")
	}
}

func TestPlatformAdapterUnavailableWithoutWallet(t *testing.T) {
	a := NewPlatformAdapter(&fakePlatformService{}, false, zap.NewNop())
	if a.Available(context.Background()) {
		t.Error("adapter available without a configured hot wallet")
	}
}

type fakeBridge struct {
	pingErr error
	account crossmark.Account
	connErr error
	txHash  string
	signErr error
}

func (f *fakeBridge) Ping(context.Context) error { return f.pingErr }

func (f *fakeBridge) Connect(context.Context) (crossmark.Account, error) {
	return f.account, f.connErr
}

func (f *fakeBridge) SignAndSubmit(context.Context, string, map[string]any) (string, error) {
	return f.txHash, f.signErr
}

type fakeSettledRecorder struct {
	txHash string
	method string
}

func (f *fakeSettledRecorder) RecordWalletSettled(_ context.Context, _ models.SubmissionPayload, txHash, method string) (*models.Donation, error) {
	f.txHash = txHash
	f.method = method
	return &models.Donation{}, nil
}

func TestCrossmarkUnavailableWhenExtensionAbsent(t *testing.T) {
	log := zap.NewNop()
	cfg := testConfig()

	a := NewCrossmarkAdapter(nil, &fakeSettledRecorder{}, nil, cfg, log)
	if a.Available(context.Background()) {
		t.Error("nil bridge reported available")
	}

	a = NewCrossmarkAdapter(&fakeBridge{pingErr: errors.New("no extension")}, &fakeSettledRecorder{}, nil, cfg, log)
	if a.Available(context.Background()) {
		t.Error("failing ping reported available")
	}

	a = NewCrossmarkAdapter(&fakeBridge{}, &fakeSettledRecorder{}, nil, cfg, log)
	if !a.Available(context.Background()) {
		t.Error("healthy bridge reported unavailable")
	}
}

func TestCrossmarkAttemptRecordsSettledDonation(t *testing.T) {
	recorder := &fakeSettledRecorder{}
	bridge := &fakeBridge{
		account: crossmark.Account{Address: "rDonor", Network: "testnet"},
		txHash:  "SIGNEDHASH",
	}
	var savedAddr string
	sink := func(_ context.Context, address, _ string) { savedAddr = address }

	a := NewCrossmarkAdapter(bridge, recorder, sink, testConfig(), zap.NewNop())
	res := a.Attempt(context.Background(), models.SubmissionPayload{AmountFiat: 10, Charity: "MEDA"})

	if res.Kind != ResultCompleted || res.TxHash != "SIGNEDHASH" {
		t.Fatalf("result = %+v", res)
	}
	if recorder.txHash != "SIGNEDHASH" || recorder.method != MethodCrossmark {
		t.Errorf("recorded %q via %q", recorder.txHash, recorder.method)
	}
	if savedAddr != "rDonor" {
		t.Errorf("wallet sink got %q", savedAddr)
	}
}

func TestCrossmarkAttemptDeclined(t *testing.T) {
	bridge := &fakeBridge{
		account: crossmark.Account{Address: "rDonor"},
		signErr: errors.New("signing failed or was rejected"),
	}
	a := NewCrossmarkAdapter(bridge, &fakeSettledRecorder{}, nil, testConfig(), zap.NewNop())

	res := a.Attempt(context.Background(), models.SubmissionPayload{AmountFiat: 10, Charity: "MEDA"})
	if res.Kind != ResultError {
		t.Fatalf("kind = %q, want error", res.Kind)
	}
}

type fakeXamanAPI struct {
	configured bool
	created    *xaman.CreatePayloadResponse
	createErr  error
	status     *xaman.PayloadStatus
	statusErr  error
	lastTx     map[string]any
}

func (f *fakeXamanAPI) Configured() bool { return f.configured }

func (f *fakeXamanAPI) CreatePayload(_ context.Context, txJSON map[string]any) (*xaman.CreatePayloadResponse, error) {
	f.lastTx = txJSON
	return f.created, f.createErr
}

func (f *fakeXamanAPI) GetPayload(context.Context, string) (*xaman.PayloadStatus, error) {
	return f.status, f.statusErr
}

type fakePendingRecorder struct {
	memoID string
	method string
	err    error
}

func (f *fakePendingRecorder) RecordWalletPending(_ context.Context, _ models.SubmissionPayload, memoID, method string) (*models.Donation, error) {
	f.memoID = memoID
	f.method = method
	return &models.Donation{}, f.err
}

func TestXamanAttemptReturnsPendingWithRefs(t *testing.T) {
	api := &fakeXamanAPI{
		configured: true,
		created: &xaman.CreatePayloadResponse{
			UUID: "payload-uuid",
			Refs: xaman.PayloadRefs{QRPng: "https://example.org/qr.png"},
		},
	}
	recorder := &fakePendingRecorder{}
	a := NewXamanAdapter(api, recorder, testConfig(), zap.NewNop())

	res := a.Attempt(context.Background(), models.SubmissionPayload{AmountFiat: 25, Charity: "MEDA"})
	if res.Kind != ResultPending {
		t.Fatalf("kind = %q, want pending", res.Kind)
	}
	if res.PayloadID != "payload-uuid" || res.QRCode == "" {
		t.Errorf("result = %+v", res)
	}
	if !strings.HasPrefix(res.SignLink, "https://xumm.app/sign/") {
		t.Errorf("sign link fallback = %q", res.SignLink)
	}
	if res.MemoID == "" || recorder.memoID != res.MemoID {
		t.Errorf("memo id %q not recorded (recorder saw %q)", res.MemoID, recorder.memoID)
	}
	if recorder.method != MethodXaman {
		t.Errorf("recorded method = %q", recorder.method)
	}
	if api.lastTx["Destination"] != "rTestWallet" {
		t.Errorf("payload destination = %v", api.lastTx["Destination"])
	}
}

func TestXamanAttemptCreateFailure(t *testing.T) {
	api := &fakeXamanAPI{configured: true, createErr: errors.New("xaman service unavailable")}
	a := NewXamanAdapter(api, &fakePendingRecorder{}, testConfig(), zap.NewNop())

	res := a.Attempt(context.Background(), models.SubmissionPayload{AmountFiat: 25, Charity: "MEDA"})
	if res.Kind != ResultError {
		t.Fatalf("kind = %q, want error", res.Kind)
	}
}

func TestXamanStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status *xaman.PayloadStatus
		err    error
		want   ResultKind
	}{
		{"transport failure stays pending", nil, errors.New("timeout"), ResultPending},
		{"unresolved stays pending", &xaman.PayloadStatus{}, nil, ResultPending},
		{
			"signed completes",
			func() *xaman.PayloadStatus {
				s := &xaman.PayloadStatus{}
				s.Meta.Signed = true
				s.Response.TxID = "TX1"
				return s
			}(),
			nil,
			ResultCompleted,
		},
		{
			"cancelled errors",
			func() *xaman.PayloadStatus {
				s := &xaman.PayloadStatus{}
				s.Meta.Cancelled = true
				return s
			}(),
			nil,
			ResultError,
		},
		{
			"expired errors",
			func() *xaman.PayloadStatus {
				s := &xaman.PayloadStatus{}
				s.Meta.Expired = true
				return s
			}(),
			nil,
			ResultError,
		},
		{
			"resolved unsigned errors",
			func() *xaman.PayloadStatus {
				s := &xaman.PayloadStatus{}
				s.Meta.Resolved = true
				return s
			}(),
			nil,
			ResultError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeXamanAPI{configured: true, status: tt.status, statusErr: tt.err}
			a := NewXamanAdapter(api, &fakePendingRecorder{}, testConfig(), zap.NewNop())
			res := a.Status(context.Background(), "payload-1")
			if res.Kind != tt.want {
				t.Errorf("kind = %q, want %q", res.Kind, tt.want)
			}
		})
	}
}

func TestFiatAdapterDemoGate(t *testing.T) {
	off := NewFiatAdapter(false, time.Millisecond, zap.NewNop())
	if off.Available(context.Background()) {
		t.Error("fiat adapter available outside demo mode")
	}

	on := NewFiatAdapter(true, time.Millisecond, zap.NewNop())
	if !on.Available(context.Background()) {
		t.Error("fiat adapter unavailable in demo mode")
	}

	res := on.Attempt(context.Background(), models.SubmissionPayload{AmountFiat: 10})
	if res.Kind != ResultCompleted || !strings.HasPrefix(res.TxHash, "DEMO-") {
		t.Errorf("result = %+v", res)
	}
}

func TestFiatAdapterHonorsCancellation(t *testing.T) {
	a := NewFiatAdapter(true, time.Second, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := a.Attempt(ctx, models.SubmissionPayload{AmountFiat: 10})
	if res.Kind != ResultError {
		t.Errorf("cancelled attempt = %+v, want error", res)
	}
}
