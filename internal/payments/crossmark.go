package payments

import (
	"context"

	"github.com/eunoia-atlas/backend/internal/config"
	"github.com/eunoia-atlas/backend/internal/crossmark"
	"github.com/eunoia-atlas/backend/internal/models"
	"github.com/eunoia-atlas/backend/internal/xrpl"
	"go.uber.org/zap"
)

const MethodCrossmark = "crossmark"

// SettledRecorder stores a donation the donor's own wallet already
// submitted.
type SettledRecorder interface {
	RecordWalletSettled(ctx context.Context, p models.SubmissionPayload, txHash, method string) (*models.Donation, error)
}

// ConnectionSink remembers the connected wallet for preselection on the
// next visit. Optional.
type ConnectionSink func(ctx context.Context, address, network string)

// CrossmarkAdapter signs through the CROSSMARK browser extension via
// the bridge. The whole connect-sign-submit round trip happens inside
// Attempt, so the result is terminal: completed or error, never
// pending.
type CrossmarkAdapter struct {
	bridge   crossmark.Bridge
	recorder SettledRecorder
	onWallet ConnectionSink
	cfg      *config.Config
	log      *zap.Logger
}

func NewCrossmarkAdapter(bridge crossmark.Bridge, recorder SettledRecorder, onWallet ConnectionSink, cfg *config.Config, log *zap.Logger) *CrossmarkAdapter {
	return &CrossmarkAdapter{bridge: bridge, recorder: recorder, onWallet: onWallet, cfg: cfg, log: log}
}

func (a *CrossmarkAdapter) Method() string { return MethodCrossmark }

// Available probes the extension bridge. The method is hidden rather
// than failing when the extension is absent.
func (a *CrossmarkAdapter) Available(ctx context.Context) bool {
	if a.bridge == nil {
		return false
	}
	return a.bridge.Ping(ctx) == nil
}

func (a *CrossmarkAdapter) Attempt(ctx context.Context, payload models.SubmissionPayload) Result {
	charity, ok := a.cfg.CharityByCode(payload.Charity)
	if !ok && len(a.cfg.Charities) > 0 {
		charity = a.cfg.Charities[0]
	}
	if charity.WalletAddress == "" {
		return Errorf("This charity cannot receive wallet payments yet.")
	}

	account, err := a.bridge.Connect(ctx)
	if err != nil {
		a.log.Warn("crossmark connect failed", zap.Error(err))
		return Errorf("We couldn't connect to your CROSSMARK wallet.")
	}
	if a.onWallet != nil {
		a.onWallet(ctx, account.Address, account.Network)
	}

	txJSON := map[string]any{
		"TransactionType": "Payment",
		"Account":         account.Address,
		"Destination":     charity.WalletAddress,
		"Amount": map[string]any{
			"value":    xrpl.FormatValue(payload.AmountFiat),
			"currency": xrpl.RLUSDHex,
			"issuer":   a.cfg.RLUSDIssuer,
		},
	}

	txHash, err := a.bridge.SignAndSubmit(ctx, a.cfg.XRPLNetwork, txJSON)
	if err != nil {
		a.log.Warn("crossmark signing failed", zap.Error(err))
		return Errorf("The signature was declined or the wallet did not respond.")
	}

	if _, err := a.recorder.RecordWalletSettled(ctx, payload, txHash, MethodCrossmark); err != nil {
		a.log.Error("settled donation not recorded", zap.String("tx_hash", txHash), zap.Error(err))
	}
	return Completed(txHash, xrpl.ExplorerURL(a.cfg.ExplorerBaseURL, txHash))
}
