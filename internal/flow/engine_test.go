package flow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/eunoia-atlas/backend/internal/config"
	"github.com/eunoia-atlas/backend/internal/models"
	"github.com/eunoia-atlas/backend/internal/payments"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type fakeAdapter struct {
	mu          sync.Mutex
	method      string
	available   bool
	result      payments.Result
	calls       int
	lastPayload models.SubmissionPayload
}

func (f *fakeAdapter) Method() string { return f.method }

func (f *fakeAdapter) Available(context.Context) bool { return f.available }

func (f *fakeAdapter) Attempt(_ context.Context, p models.SubmissionPayload) payments.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastPayload = p
	return f.result
}

func (f *fakeAdapter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeChecker struct {
	mu      sync.Mutex
	results []payments.Result
}

func (f *fakeChecker) Status(context.Context, string) payments.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.results) == 0 {
		return payments.Result{Kind: payments.ResultPending}
	}
	res := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	return res
}

type fakeSettler struct {
	mu     sync.Mutex
	memoID string
	txHash string
}

func (f *fakeSettler) SettleByMemo(_ context.Context, memoID, txHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.memoID = memoID
	f.txHash = txHash
	return nil
}

func (f *fakeSettler) settled() (string, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.memoID, f.txHash
}

func testConfig() *config.Config {
	return &config.Config{
		Charities:     []config.Charity{{Code: "MEDA", Name: "MEDA", WalletAddress: "rTestWallet"}},
		FlowDebounce:  20 * time.Millisecond,
		PollInterval:  5 * time.Millisecond,
		PollCeiling:   500 * time.Millisecond,
		PresetAmounts: []float64{10, 25, 50},
	}
}

func newTestEngine(adapters []payments.Adapter, checker payments.StatusChecker, settler Settler) (*Engine, *Store) {
	store := NewStore(NewMemoryKV(), time.Hour, zap.NewNop())
	return NewEngine(store, adapters, checker, settler, testConfig(), zap.NewNop()), store
}

// advanceToMethod drives a fresh session to the method step with a
// valid draft.
func advanceToMethod(t *testing.T, e *Engine, id uuid.UUID) {
	t.Helper()
	ctx := context.Background()

	if _, err := e.Start(ctx, id); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := e.SetMessage(ctx, id, "warm socks for winter"); err != nil {
		t.Fatalf("SetMessage: %v", err)
	}
	if _, err := e.Next(ctx, id); err != nil {
		t.Fatalf("Next from message: %v", err)
	}
	if _, err := e.SetAmount(ctx, id, 20); err != nil {
		t.Fatalf("SetAmount: %v", err)
	}
	if _, err := e.Next(ctx, id); err != nil {
		t.Fatalf("Next from amount: %v", err)
	}
	view, err := e.SetIdentity(ctx, id, false, "")
	if err != nil {
		t.Fatalf("SetIdentity: %v", err)
	}
	if view.Step != models.StepMethod {
		t.Fatalf("step after anonymous identity = %q, want method", view.Step)
	}
}

func TestSubmitCompletedReachesConfirmation(t *testing.T) {
	ctx := context.Background()
	platform := &fakeAdapter{
		method:    payments.MethodPlatform,
		available: true,
		result:    payments.Completed("HASH1", "https://example.org/tx/HASH1"),
	}
	e, store := newTestEngine([]payments.Adapter{platform}, nil, nil)

	view := e.Create(ctx)
	id := uuid.MustParse(view.SessionID)
	advanceToMethod(t, e, id)

	got, err := e.Submit(ctx, id, payments.MethodPlatform)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if got.Step != models.StepConfirmation {
		t.Errorf("step = %q, want confirmation", got.Step)
	}
	if got.Attempt.Phase != models.AttemptCompleted || got.Attempt.TxHash != "HASH1" {
		t.Errorf("attempt = %+v", got.Attempt)
	}
	if store.GetPending(ctx, view.SessionID) != nil {
		t.Error("pending slot populated after success")
	}
	if d := store.LoadDraft(ctx, view.SessionID); d.Message != "" {
		t.Error("draft not cleared after success")
	}
	if intent, ok := store.LastIntent(ctx, view.SessionID); !ok || intent != "warm socks for winter" {
		t.Errorf("last intent hint = %q, %v", intent, ok)
	}
}

func TestSubmitValidationShortCircuitsBeforeAdapter(t *testing.T) {
	ctx := context.Background()
	platform := &fakeAdapter{method: payments.MethodPlatform, available: true, result: payments.Completed("H", "")}
	e, _ := newTestEngine([]payments.Adapter{platform}, nil, nil)

	view := e.Create(ctx)
	id := uuid.MustParse(view.SessionID)
	advanceToMethod(t, e, id)

	// Blank the message out from the method step.
	if _, err := e.SetMessage(ctx, id, "   "); err != nil {
		t.Fatalf("SetMessage: %v", err)
	}

	_, err := e.Submit(ctx, id, payments.MethodPlatform)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Submit error = %v, want ValidationError", err)
	}
	if platform.callCount() != 0 {
		t.Error("adapter invoked despite failed validation")
	}
}

func TestSubmitErrorQueuesExactPayloadAndKeepsDraft(t *testing.T) {
	ctx := context.Background()
	platform := &fakeAdapter{
		method:    payments.MethodPlatform,
		available: true,
		result:    payments.Errorf("ledger unreachable"),
	}
	e, store := newTestEngine([]payments.Adapter{platform}, nil, nil)

	view := e.Create(ctx)
	id := uuid.MustParse(view.SessionID)
	advanceToMethod(t, e, id)

	got, err := e.Submit(ctx, id, payments.MethodPlatform)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if got.Attempt.Phase != models.AttemptError || got.Attempt.Message != "ledger unreachable" {
		t.Errorf("attempt = %+v", got.Attempt)
	}
	if got.Step != models.StepMethod {
		t.Errorf("step = %q, want method (entered data intact)", got.Step)
	}

	pending := store.GetPending(ctx, view.SessionID)
	if pending == nil {
		t.Fatal("pending slot empty after failed attempt")
	}
	want := models.SubmissionPayload{
		DonorIntent: "warm socks for winter",
		AmountFiat:  20,
		Currency:    "CAD",
		Method:      payments.MethodPlatform,
	}
	if *pending != want {
		t.Errorf("pending payload = %+v, want %+v", *pending, want)
	}

	// A retry with the same method is a valid transition.
	platform.result = payments.Completed("H2", "")
	got, err = e.Submit(ctx, id, payments.MethodPlatform)
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if got.Attempt.Phase != models.AttemptCompleted {
		t.Errorf("resubmit attempt = %+v", got.Attempt)
	}
}

func TestSubmitPendingPollsAndSettles(t *testing.T) {
	ctx := context.Background()
	qr := &fakeAdapter{
		method:    "xaman",
		available: true,
		result: payments.Result{
			Kind:      payments.ResultPending,
			PayloadID: "payload-1",
			MemoID:    "EUN-test",
			QRCode:    "https://example.org/qr.png",
			SignLink:  "https://xumm.app/sign/payload-1",
		},
	}
	checker := &fakeChecker{results: []payments.Result{
		{Kind: payments.ResultPending},
		payments.Completed("SIGNED1", "https://example.org/tx/SIGNED1"),
	}}
	settler := &fakeSettler{}
	e, _ := newTestEngine([]payments.Adapter{qr}, checker, settler)

	view := e.Create(ctx)
	id := uuid.MustParse(view.SessionID)
	advanceToMethod(t, e, id)

	got, err := e.Submit(ctx, id, "xaman")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if got.Attempt.Phase != models.AttemptReady || got.Attempt.PayloadID != "payload-1" {
		t.Fatalf("attempt after pending = %+v", got.Attempt)
	}
	if got.Attempt.QRCode == "" || got.Attempt.SignLink == "" {
		t.Error("QR render targets missing on ready attempt")
	}

	// A second submit while ready is rejected.
	if _, err := e.Submit(ctx, id, "xaman"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("submit while ready = %v, want ErrInvalidTransition", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		v := e.GetOrCreate(ctx, id)
		if v.Attempt.Phase == models.AttemptCompleted {
			if v.Step != models.StepConfirmation {
				t.Errorf("step = %q, want confirmation", v.Step)
			}
			if memo, tx := settler.settled(); memo != "EUN-test" || tx != "SIGNED1" {
				t.Errorf("settled memo/tx = %q/%q", memo, tx)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("poller never completed the attempt")
}

func TestPresetAmountAdvancesImmediately(t *testing.T) {
	ctx := context.Background()
	e, store := newTestEngine(nil, nil, nil)

	view := e.Create(ctx)
	id := uuid.MustParse(view.SessionID)
	_, _ = e.Start(ctx, id)
	_, _ = e.SetMessage(ctx, id, "with love")
	_, _ = e.Next(ctx, id)

	got, err := e.SetAmount(ctx, id, 25)
	if err != nil {
		t.Fatalf("SetAmount: %v", err)
	}
	if got.Step != models.StepIdentity {
		t.Errorf("step after preset = %q, want identity", got.Step)
	}
	if v, ok := store.LastAmount(ctx, view.SessionID); !ok || v != 25 {
		t.Errorf("last amount hint = %v, %v", v, ok)
	}
}

func TestCustomAmountWaitsForNext(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(nil, nil, nil)

	view := e.Create(ctx)
	id := uuid.MustParse(view.SessionID)
	_, _ = e.Start(ctx, id)
	_, _ = e.SetMessage(ctx, id, "with love")
	_, _ = e.Next(ctx, id)

	got, err := e.SetAmount(ctx, id, 33.5)
	if err != nil {
		t.Fatalf("SetAmount: %v", err)
	}
	if got.Step != models.StepAmount {
		t.Errorf("step after custom amount = %q, want amount", got.Step)
	}

	got, err = e.Next(ctx, id)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if got.Step != models.StepIdentity {
		t.Errorf("step after Next = %q, want identity", got.Step)
	}
}

func TestSetAmountRejectsNonPositive(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(nil, nil, nil)

	view := e.Create(ctx)
	id := uuid.MustParse(view.SessionID)

	for _, amount := range []float64{0, -5} {
		_, err := e.SetAmount(ctx, id, amount)
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("SetAmount(%v) error = %v, want ValidationError", amount, err)
		}
	}
}

func TestPublicIdentityRequiresEmail(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(nil, nil, nil)

	view := e.Create(ctx)
	id := uuid.MustParse(view.SessionID)
	_, _ = e.Start(ctx, id)
	_, _ = e.SetMessage(ctx, id, "with love")
	_, _ = e.Next(ctx, id)
	_, _ = e.SetAmount(ctx, id, 10)

	got, err := e.SetIdentity(ctx, id, true, "")
	if err != nil {
		t.Fatalf("SetIdentity: %v", err)
	}
	if got.Step != models.StepIdentity {
		t.Errorf("public identity advanced without email, step = %q", got.Step)
	}

	_, err = e.Next(ctx, id)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Next without email = %v, want ValidationError", err)
	}

	_, _ = e.SetIdentity(ctx, id, true, "donor@example.com")
	got, err = e.Next(ctx, id)
	if err != nil {
		t.Fatalf("Next with email: %v", err)
	}
	if got.Step != models.StepMethod {
		t.Errorf("step = %q, want method", got.Step)
	}
}

func TestBackKeepsDataAndResetsAttempt(t *testing.T) {
	ctx := context.Background()
	platform := &fakeAdapter{
		method:    payments.MethodPlatform,
		available: true,
		result:    payments.Errorf("boom"),
	}
	e, _ := newTestEngine([]payments.Adapter{platform}, nil, nil)

	view := e.Create(ctx)
	id := uuid.MustParse(view.SessionID)
	advanceToMethod(t, e, id)
	_, _ = e.Submit(ctx, id, payments.MethodPlatform)

	got, err := e.Back(ctx, id)
	if err != nil {
		t.Fatalf("Back: %v", err)
	}
	if got.Step != models.StepIdentity {
		t.Errorf("step = %q, want identity", got.Step)
	}
	if got.Attempt.Phase != models.AttemptIdle {
		t.Errorf("attempt not reset on leaving method: %+v", got.Attempt)
	}
	if got.Draft.Message != "warm socks for winter" || got.Draft.Amount != 20 {
		t.Errorf("draft lost on Back: %+v", got.Draft)
	}
}

func TestBackFromIntroIsInvalid(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(nil, nil, nil)

	view := e.Create(ctx)
	id := uuid.MustParse(view.SessionID)
	if _, err := e.Back(ctx, id); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Back at intro = %v, want ErrInvalidTransition", err)
	}
}

func TestSubmitOffMethodStepIsInvalid(t *testing.T) {
	ctx := context.Background()
	platform := &fakeAdapter{method: payments.MethodPlatform, available: true, result: payments.Completed("H", "")}
	e, _ := newTestEngine([]payments.Adapter{platform}, nil, nil)

	view := e.Create(ctx)
	id := uuid.MustParse(view.SessionID)
	if _, err := e.Submit(ctx, id, payments.MethodPlatform); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Submit at intro = %v, want ErrInvalidTransition", err)
	}
}

func TestUnavailableMethodNotOfferedAndRejected(t *testing.T) {
	ctx := context.Background()
	down := &fakeAdapter{method: "crossmark", available: false}
	up := &fakeAdapter{method: payments.MethodPlatform, available: true, result: payments.Completed("H", "")}
	e, _ := newTestEngine([]payments.Adapter{up, down}, nil, nil)

	view := e.Create(ctx)
	for _, m := range view.Methods {
		if m == "crossmark" {
			t.Error("unavailable method offered in view")
		}
	}

	id := uuid.MustParse(view.SessionID)
	advanceToMethod(t, e, id)
	_, err := e.Submit(ctx, id, "crossmark")
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Errorf("Submit with unavailable method = %v, want ValidationError", err)
	}
}

func TestDebounceAutoAdvancesLongMessage(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(nil, nil, nil)

	view := e.Create(ctx)
	id := uuid.MustParse(view.SessionID)
	_, _ = e.Start(ctx, id)
	if _, err := e.SetMessage(ctx, id, "a message well past the threshold"); err != nil {
		t.Fatalf("SetMessage: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if v := e.GetOrCreate(ctx, id); v.Step == models.StepAmount {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("debounce never advanced the long message")
}

func TestDebounceIgnoresShortMessage(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(nil, nil, nil)

	view := e.Create(ctx)
	id := uuid.MustParse(view.SessionID)
	_, _ = e.Start(ctx, id)
	if _, err := e.SetMessage(ctx, id, "hi"); err != nil {
		t.Fatalf("SetMessage: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if v := e.GetOrCreate(ctx, id); v.Step != models.StepMessage {
		t.Errorf("short message auto-advanced to %q", v.Step)
	}
}

func TestRetryPendingClearsSlotOnlyOnSuccess(t *testing.T) {
	ctx := context.Background()
	platform := &fakeAdapter{
		method:    payments.MethodPlatform,
		available: true,
		result:    payments.Errorf("still down"),
	}
	e, store := newTestEngine([]payments.Adapter{platform}, nil, nil)

	view := e.Create(ctx)
	id := uuid.MustParse(view.SessionID)
	payload := models.SubmissionPayload{DonorIntent: "queued gift", AmountFiat: 10, Method: payments.MethodPlatform}
	store.SavePending(ctx, view.SessionID, payload)

	delivered, err := e.RetryPending(ctx, id)
	if err != nil {
		t.Fatalf("RetryPending: %v", err)
	}
	if delivered {
		t.Error("failed retry reported delivered")
	}
	if got := store.GetPending(ctx, view.SessionID); got == nil || *got != payload {
		t.Error("failed retry modified the pending slot")
	}

	platform.result = payments.Completed("H", "")
	delivered, err = e.RetryPending(ctx, id)
	if err != nil {
		t.Fatalf("RetryPending: %v", err)
	}
	if !delivered {
		t.Error("successful retry not reported")
	}
	if store.GetPending(ctx, view.SessionID) != nil {
		t.Error("pending slot survived successful retry")
	}
}

func TestHandleOnlineRetriesLiveSessions(t *testing.T) {
	ctx := context.Background()
	platform := &fakeAdapter{
		method:    payments.MethodPlatform,
		available: true,
		result:    payments.Completed("H", ""),
	}
	e, store := newTestEngine([]payments.Adapter{platform}, nil, nil)

	view := e.Create(ctx)
	store.SavePending(ctx, view.SessionID, models.SubmissionPayload{DonorIntent: "queued", AmountFiat: 5})

	e.HandleOnline(ctx)
	if store.GetPending(ctx, view.SessionID) != nil {
		t.Error("pending slot not delivered on online edge")
	}
}

func TestGetOrCreateRevivesDraft(t *testing.T) {
	ctx := context.Background()
	e, store := newTestEngine(nil, nil, nil)

	id := uuid.New()
	store.SaveDraft(ctx, id.String(), models.DonationDraft{Message: "kept words", Amount: 10, Currency: "CAD"})

	v := e.GetOrCreate(ctx, id)
	if v.Step != models.StepIntro {
		t.Errorf("revived session step = %q, want intro", v.Step)
	}
	if v.Draft.Message != "kept words" || v.Draft.Amount != 10 {
		t.Errorf("revived draft = %+v", v.Draft)
	}
}

func TestTeardownIsIdempotentAndKeepsDraft(t *testing.T) {
	ctx := context.Background()
	e, store := newTestEngine(nil, nil, nil)

	view := e.Create(ctx)
	id := uuid.MustParse(view.SessionID)
	_, _ = e.Start(ctx, id)
	_, _ = e.SetMessage(ctx, id, "words to keep")

	if err := e.Teardown(id); err != nil {
		t.Fatalf("Teardown: %v", err)
	}
	if err := e.Teardown(id); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("second Teardown = %v, want ErrSessionNotFound", err)
	}
	if d := store.LoadDraft(ctx, view.SessionID); d.Message != "words to keep" {
		t.Error("Teardown cleared the persisted draft")
	}
}

func TestReapIdleSparesFreshAndWaitingSessions(t *testing.T) {
	ctx := context.Background()
	xamanA := &fakeAdapter{
		method:    payments.MethodXaman,
		available: true,
		result: payments.Result{
			Kind:      payments.ResultPending,
			PayloadID: "payload-1",
			MemoID:    "EUN-wait",
		},
	}
	checker := &fakeChecker{} // stays pending
	e, _ := newTestEngine([]payments.Adapter{xamanA}, checker, &fakeSettler{})
	defer e.Shutdown()

	idle := uuid.MustParse(e.Create(ctx).SessionID)

	waiting := uuid.MustParse(e.Create(ctx).SessionID)
	advanceToMethod(t, e, waiting)
	if _, err := e.Submit(ctx, waiting, payments.MethodXaman); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	time.Sleep(10 * time.Millisecond)

	fresh := uuid.MustParse(e.Create(ctx).SessionID)

	if n := e.ReapIdle(5 * time.Millisecond); n != 1 {
		t.Fatalf("ReapIdle = %d, want 1", n)
	}
	if err := e.Teardown(idle); !errors.Is(err, ErrSessionNotFound) {
		t.Error("idle session survived the reap")
	}
	if err := e.Teardown(fresh); err != nil {
		t.Errorf("fresh session was reaped: %v", err)
	}
	if err := e.Teardown(waiting); err != nil {
		t.Errorf("session awaiting a signature was reaped: %v", err)
	}
}

// gatedChecker blocks inside Status until released, so a test can hold
// a status check in flight across other engine calls.
type gatedChecker struct {
	entered chan struct{}
	release chan payments.Result
}

func (g *gatedChecker) Status(context.Context, string) payments.Result {
	g.entered <- struct{}{}
	return <-g.release
}

func TestBackDuringInFlightPollDropsLateCompletion(t *testing.T) {
	ctx := context.Background()
	xamanA := &fakeAdapter{
		method:    payments.MethodXaman,
		available: true,
		result: payments.Result{
			Kind:      payments.ResultPending,
			PayloadID: "payload-1",
			MemoID:    "EUN-late",
		},
	}
	checker := &gatedChecker{entered: make(chan struct{}), release: make(chan payments.Result)}
	settler := &fakeSettler{}
	e, store := newTestEngine([]payments.Adapter{xamanA}, checker, settler)
	defer e.Shutdown()

	id := uuid.MustParse(e.Create(ctx).SessionID)
	advanceToMethod(t, e, id)
	if _, err := e.Submit(ctx, id, payments.MethodXaman); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// Hold a status check in flight, back out of the method step, then
	// let the check come back signed.
	<-checker.entered
	if _, err := e.Back(ctx, id); err != nil {
		t.Fatalf("Back: %v", err)
	}
	checker.release <- payments.Completed("LATE1", "")
	time.Sleep(30 * time.Millisecond)

	v := e.GetOrCreate(ctx, id)
	if v.Step != models.StepIdentity {
		t.Errorf("step after late completion = %q, want identity", v.Step)
	}
	if v.Attempt.Phase != models.AttemptIdle {
		t.Errorf("attempt phase = %q, want idle", v.Attempt.Phase)
	}
	if v.Draft.Message == "" {
		t.Error("abandoned flow lost its draft")
	}
	if d := store.LoadDraft(ctx, v.SessionID); d.Message == "" {
		t.Error("persisted draft cleared by stale completion")
	}

	// The donor's signature is real, so the donation itself settles.
	memo, tx := settler.settled()
	if memo != "EUN-late" || tx != "LATE1" {
		t.Errorf("late signature not settled: memo=%q tx=%q", memo, tx)
	}
}
