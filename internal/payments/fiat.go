package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/eunoia-atlas/backend/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const MethodFiat = "fiat"

// FiatAdapter simulates a card payment with a fixed settlement delay.
// Demo environments only; it is never offered when demo mode is off.
type FiatAdapter struct {
	enabled bool
	delay   time.Duration
	log     *zap.Logger
}

func NewFiatAdapter(enabled bool, delay time.Duration, log *zap.Logger) *FiatAdapter {
	if delay <= 0 {
		delay = 1500 * time.Millisecond
	}
	return &FiatAdapter{enabled: enabled, delay: delay, log: log}
}

func (a *FiatAdapter) Method() string { return MethodFiat }

func (a *FiatAdapter) Available(_ context.Context) bool {
	return a.enabled
}

func (a *FiatAdapter) Attempt(ctx context.Context, payload models.SubmissionPayload) Result {
	select {
	case <-ctx.Done():
		return Errorf("The payment was cancelled.")
	case <-time.After(a.delay):
	}

	ref := fmt.Sprintf("DEMO-%s", uuid.New().String()[:8])
	a.log.Info("simulated fiat payment settled",
		zap.String("ref", ref), zap.Float64("amount", payload.AmountFiat))
	return Completed(ref, "")
}
