package payments

import (
	"context"

	"github.com/eunoia-atlas/backend/internal/models"
	"go.uber.org/zap"
)

const MethodPlatform = "platform"

// PlatformService is the donation service slice the adapter invokes;
// tests substitute a fake.
type PlatformService interface {
	SubmitDonorIntent(ctx context.Context, p models.SubmissionPayload) (*models.Donation, string, error)
}

// PlatformAdapter settles donations synchronously through the platform
// hot wallet. It is the only adapter that never returns pending.
type PlatformAdapter struct {
	svc        PlatformService
	configured bool
	log        *zap.Logger
}

func NewPlatformAdapter(svc PlatformService, configured bool, log *zap.Logger) *PlatformAdapter {
	return &PlatformAdapter{svc: svc, configured: configured, log: log}
}

func (a *PlatformAdapter) Method() string { return MethodPlatform }

func (a *PlatformAdapter) Available(_ context.Context) bool {
	return a.configured
}

func (a *PlatformAdapter) Attempt(ctx context.Context, payload models.SubmissionPayload) Result {
	d, explorerURL, err := a.svc.SubmitDonorIntent(ctx, payload)
	if err != nil {
		a.log.Warn("platform transfer failed", zap.Error(err))
		return Errorf("We couldn't complete your gift right now. It has been saved and will be retried.")
	}

	txHash := ""
	if d.TxHash != nil {
		txHash = *d.TxHash
	}
	return Completed(txHash, explorerURL)
}
