package flow

import (
	"context"
	"sync"
	"time"

	"github.com/eunoia-atlas/backend/internal/payments"
	"go.uber.org/zap"
)

// Poller drives the bounded status loop for a pending payment payload.
// One poller per session; starting a new run cancels the previous one,
// and hitting the ceiling stops polling without resolving the attempt.
type Poller struct {
	interval time.Duration
	ceiling  time.Duration
	log      *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

func NewPoller(interval, ceiling time.Duration, log *zap.Logger) *Poller {
	return &Poller{interval: interval, ceiling: ceiling, log: log}
}

// Start begins polling payloadID. check is consulted every interval;
// the first terminal result is handed to onResult and the loop stops.
// A previous run, if any, is cancelled first.
func (p *Poller) Start(
	ctx context.Context,
	payloadID string,
	check func(ctx context.Context, payloadID string) payments.Result,
	onResult func(payments.Result),
) {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.mu.Unlock()

	go p.run(runCtx, payloadID, check, onResult)
}

func (p *Poller) run(
	ctx context.Context,
	payloadID string,
	check func(ctx context.Context, payloadID string) payments.Result,
	onResult func(payments.Result),
) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	deadline := time.NewTimer(p.ceiling)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			// The attempt stays where it is; the ledger indexer will
			// still settle the donation if the signature lands late.
			p.log.Info("status polling ceiling reached", zap.String("payload_id", payloadID))
			return
		case <-ticker.C:
			res := check(ctx, payloadID)
			if res.Kind == payments.ResultPending {
				continue
			}
			onResult(res)
			return
		}
	}
}

// Cancel stops the current run. Safe to call repeatedly and when
// nothing is running.
func (p *Poller) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}
