package flow

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ProbeFunc checks upstream reachability; nil means online.
type ProbeFunc func(ctx context.Context) error

// Watcher tracks connectivity and fires callbacks on the offline to
// online edge. State changes arrive two ways: the periodic probe in
// Run, and direct Notify calls from clients reporting their own
// browser online event.
type Watcher struct {
	probe ProbeFunc
	every time.Duration
	log   *zap.Logger

	mu        sync.Mutex
	primed    bool
	online    bool
	callbacks []func(ctx context.Context)
}

func NewWatcher(probe ProbeFunc, every time.Duration, log *zap.Logger) *Watcher {
	return &Watcher{probe: probe, every: every, log: log}
}

// OnOnline registers a callback for the offline to online transition.
func (w *Watcher) OnOnline(fn func(ctx context.Context)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, fn)
}

// Online reports the last observed state.
func (w *Watcher) Online() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.online
}

// Notify records a connectivity observation. Only the offline to
// online edge fires callbacks; the very first observation sets the
// baseline silently so startup does not trigger a retry storm.
func (w *Watcher) Notify(ctx context.Context, online bool) {
	w.mu.Lock()
	wasPrimed, wasOnline := w.primed, w.online
	w.primed = true
	w.online = online
	var fire []func(ctx context.Context)
	if wasPrimed && !wasOnline && online {
		fire = append(fire, w.callbacks...)
	}
	w.mu.Unlock()

	if len(fire) > 0 {
		w.log.Info("connectivity restored")
		for _, fn := range fire {
			fn(ctx)
		}
	}
}

// Run probes upstream every interval until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.every)
	defer ticker.Stop()

	w.Notify(ctx, w.probe(ctx) == nil)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Notify(ctx, w.probe(ctx) == nil)
		}
	}
}
