package payments

import (
	"context"

	"github.com/eunoia-atlas/backend/internal/config"
	"github.com/eunoia-atlas/backend/internal/models"
	"github.com/eunoia-atlas/backend/internal/services"
	"github.com/eunoia-atlas/backend/internal/xaman"
	"github.com/eunoia-atlas/backend/internal/xrpl"
	"go.uber.org/zap"
)

const MethodXaman = "xaman"

// XamanAPI is the platform API slice the adapter needs; tests
// substitute a fake.
type XamanAPI interface {
	Configured() bool
	CreatePayload(ctx context.Context, txJSON map[string]any) (*xaman.CreatePayloadResponse, error)
	GetPayload(ctx context.Context, payloadID string) (*xaman.PayloadStatus, error)
}

// PendingRecorder stores the donation row awaiting an out-of-band
// signature.
type PendingRecorder interface {
	RecordWalletPending(ctx context.Context, p models.SubmissionPayload, memoID, method string) (*models.Donation, error)
}

// XamanAdapter creates a signing payload on the Xaman platform and
// hands the donor a QR code plus a universal sign link. It always
// returns pending on success; the status poller resolves the outcome.
type XamanAdapter struct {
	api      XamanAPI
	recorder PendingRecorder
	cfg      *config.Config
	log      *zap.Logger
}

func NewXamanAdapter(api XamanAPI, recorder PendingRecorder, cfg *config.Config, log *zap.Logger) *XamanAdapter {
	return &XamanAdapter{api: api, recorder: recorder, cfg: cfg, log: log}
}

func (a *XamanAdapter) Method() string { return MethodXaman }

func (a *XamanAdapter) Available(_ context.Context) bool {
	return a.api.Configured()
}

func (a *XamanAdapter) Attempt(ctx context.Context, payload models.SubmissionPayload) Result {
	charity, ok := a.cfg.CharityByCode(payload.Charity)
	if !ok && len(a.cfg.Charities) > 0 {
		charity = a.cfg.Charities[0]
	}
	if charity.WalletAddress == "" {
		return Errorf("This charity cannot receive wallet payments yet.")
	}

	memoID := services.NewMemoID()
	txJSON := map[string]any{
		"TransactionType": "Payment",
		"Destination":     charity.WalletAddress,
		"Amount": map[string]any{
			"value":    xrpl.FormatValue(payload.AmountFiat),
			"currency": xrpl.RLUSDHex,
			"issuer":   a.cfg.RLUSDIssuer,
		},
		"Memos": []map[string]any{
			{"Memo": map[string]any{"MemoData": xrpl.EncodeMemoHex(memoID)}},
		},
	}

	created, err := a.api.CreatePayload(ctx, txJSON)
	if err != nil {
		a.log.Warn("xaman payload creation failed", zap.Error(err))
		return Errorf("We couldn't reach the Xaman service. Your gift has been saved and will be retried.")
	}

	if _, err := a.recorder.RecordWalletPending(ctx, payload, memoID, MethodXaman); err != nil {
		a.log.Error("pending donation not recorded", zap.String("payload_id", created.UUID), zap.Error(err))
		return Errorf("We couldn't record your gift. Please try again.")
	}

	signLink := created.Refs.DeepLink
	if signLink == "" {
		signLink = xaman.SignLink(created.UUID)
	}
	return Result{
		Kind:      ResultPending,
		PayloadID: created.UUID,
		MemoID:    memoID,
		QRCode:    created.Refs.QRPng,
		SignLink:  signLink,
	}
}

// Status resolves a pending payload. A transport failure stays pending
// so the poller keeps trying until its ceiling.
func (a *XamanAdapter) Status(ctx context.Context, payloadID string) Result {
	st, err := a.api.GetPayload(ctx, payloadID)
	if err != nil {
		a.log.Warn("xaman status read failed", zap.String("payload_id", payloadID), zap.Error(err))
		return Result{Kind: ResultPending, PayloadID: payloadID}
	}

	switch {
	case st.Meta.Signed && st.Response.TxID != "":
		return Completed(st.Response.TxID, xrpl.ExplorerURL(a.cfg.ExplorerBaseURL, st.Response.TxID))
	case st.Meta.Cancelled, st.Meta.Expired:
		return Errorf("The signing request was declined or expired.")
	case st.Meta.Resolved && !st.Meta.Signed:
		return Errorf("The signing request was declined.")
	default:
		return Result{Kind: ResultPending, PayloadID: payloadID}
	}
}
