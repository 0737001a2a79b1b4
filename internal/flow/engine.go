package flow

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/eunoia-atlas/backend/internal/config"
	"github.com/eunoia-atlas/backend/internal/models"
	"github.com/eunoia-atlas/backend/internal/payments"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrSessionNotFound   = errors.New("flow session not found")
	ErrInvalidTransition = errors.New("invalid flow transition")
)

// ValidationError is a user-correctable input problem; handlers map it
// to 422 rather than 500.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Settler marks a pending donation settled once its transaction hash
// is known. Implemented by the donation service.
type Settler interface {
	SettleByMemo(ctx context.Context, memoID, txHash string) error
}

// messageAutoAdvanceLen is the minimum trimmed message length for the
// debounced auto-advance off the message step.
const messageAutoAdvanceLen = 5

// Session is one donor's in-flight whisper flow. The step and payment
// attempt live in memory; the draft and pending slot are persisted, so
// a restarted process resumes with the donor's words intact but back
// at the start of the flow.
type Session struct {
	ID uuid.UUID

	// lastActive is guarded by the engine mutex, not the session one:
	// it is only touched on the lookup path.
	lastActive time.Time

	mu       sync.Mutex
	step     string
	draft    models.DonationDraft
	attempt  models.PaymentAttempt
	poller   *Poller
	debounce *time.Timer
}

// View is the read snapshot handed to the HTTP layer.
type View struct {
	SessionID  string                `json:"session_id"`
	Step       string                `json:"step"`
	Draft      models.DonationDraft  `json:"draft"`
	Attempt    models.PaymentAttempt `json:"attempt"`
	Methods    []string              `json:"methods"`
	Presets    []float64             `json:"presets"`
	HasPending bool                  `json:"has_pending"`
	LastIntent string                `json:"last_intent,omitempty"`
}

// Engine owns all live flow sessions and runs the whisper state
// machine over them.
type Engine struct {
	store    *Store
	adapters []payments.Adapter
	checker  payments.StatusChecker
	settler  Settler
	cfg      *config.Config
	log      *zap.Logger

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
}

func NewEngine(
	store *Store,
	adapters []payments.Adapter,
	checker payments.StatusChecker,
	settler Settler,
	cfg *config.Config,
	log *zap.Logger,
) *Engine {
	return &Engine{
		store:    store,
		adapters: adapters,
		checker:  checker,
		settler:  settler,
		cfg:      cfg,
		log:      log,
		sessions: make(map[uuid.UUID]*Session),
	}
}

// Create starts a fresh session at the intro step.
func (e *Engine) Create(ctx context.Context) View {
	s := &Session{
		ID:     uuid.New(),
		step:   models.StepIntro,
		draft:  models.EmptyDraft(),
		poller: NewPoller(e.cfg.PollInterval, e.cfg.PollCeiling, e.log),
	}
	s.attempt.Phase = models.AttemptIdle

	e.mu.Lock()
	s.lastActive = time.Now()
	e.sessions[s.ID] = s
	e.mu.Unlock()

	return e.view(ctx, s)
}

// GetOrCreate returns the live session, or revives it from persisted
// state: the draft and pending slot survive a process restart, the
// step does not, so a revived session restarts at intro with the
// donor's words restored.
func (e *Engine) GetOrCreate(ctx context.Context, id uuid.UUID) View {
	e.mu.Lock()
	s, ok := e.sessions[id]
	if !ok {
		s = &Session{
			ID:     id,
			step:   models.StepIntro,
			draft:  e.store.LoadDraft(ctx, id.String()),
			poller: NewPoller(e.cfg.PollInterval, e.cfg.PollCeiling, e.log),
		}
		s.attempt.Phase = models.AttemptIdle
		e.sessions[id] = s
	}
	s.lastActive = time.Now()
	e.mu.Unlock()

	return e.view(ctx, s)
}

func (e *Engine) get(id uuid.UUID) (*Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.lastActive = time.Now()
	return s, nil
}

// ReapIdle tears down sessions untouched for longer than maxIdle,
// freeing their timers and map slots. Sessions waiting on a wallet
// signature are spared so a slow signer is never abandoned mid-payment.
// Persisted drafts are untouched either way. Returns the reap count.
func (e *Engine) ReapIdle(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	e.mu.Lock()
	stale := make([]*Session, 0)
	for _, s := range e.sessions {
		if s.lastActive.Before(cutoff) {
			stale = append(stale, s)
		}
	}
	e.mu.Unlock()

	reaped := 0
	for _, s := range stale {
		s.mu.Lock()
		waiting := s.attempt.Phase == models.AttemptReady
		s.mu.Unlock()
		if waiting {
			continue
		}
		if err := e.Teardown(s.ID); err == nil {
			reaped++
		}
	}
	if reaped > 0 {
		e.log.Info("idle flow sessions reaped", zap.Int("count", reaped))
	}
	return reaped
}

// Start leaves the intro step.
func (e *Engine) Start(ctx context.Context, id uuid.UUID) (View, error) {
	s, err := e.get(id)
	if err != nil {
		return View{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !models.IsValidStepTransition(s.step, models.StepMessage) {
		return View{}, ErrInvalidTransition
	}
	s.step = models.StepMessage
	return e.viewLocked(ctx, s), nil
}

// SetMessage updates the donor's message and persists the draft. A
// message longer than the auto-advance threshold schedules a debounced
// move to the amount step, mirroring the pause-to-continue typing
// affordance.
func (e *Engine) SetMessage(ctx context.Context, id uuid.UUID, message string) (View, error) {
	s, err := e.get(id)
	if err != nil {
		return View{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.draft.Message = message
	e.store.SaveDraft(ctx, s.ID.String(), s.draft)

	if s.debounce != nil {
		s.debounce.Stop()
		s.debounce = nil
	}
	if s.step == models.StepMessage && len(strings.TrimSpace(message)) > messageAutoAdvanceLen {
		s.debounce = time.AfterFunc(e.cfg.FlowDebounce, func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if s.step != models.StepMessage {
				return
			}
			if len(strings.TrimSpace(s.draft.Message)) <= messageAutoAdvanceLen {
				return
			}
			s.step = models.StepAmount
			e.store.SaveLastIntent(context.Background(), s.ID.String(), strings.TrimSpace(s.draft.Message))
		})
	}
	return e.viewLocked(ctx, s), nil
}

// SetAmount updates the gift amount. A preset amount advances straight
// to the identity step; a custom amount waits for an explicit Next.
func (e *Engine) SetAmount(ctx context.Context, id uuid.UUID, amount float64) (View, error) {
	s, err := e.get(id)
	if err != nil {
		return View{}, err
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return View{}, &ValidationError{Field: "amount", Reason: "must be a positive number"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.draft.Amount = amount
	e.store.SaveDraft(ctx, s.ID.String(), s.draft)

	if s.step == models.StepAmount && e.cfg.IsPresetAmount(amount) {
		s.step = models.StepIdentity
		e.store.SaveLastAmount(ctx, s.ID.String(), amount)
	}
	return e.viewLocked(ctx, s), nil
}

// SetIdentity records whether the gift is public. Choosing anonymous
// clears any stored email and advances immediately; going public
// stores the email and waits for Next so the donor can correct typos.
func (e *Engine) SetIdentity(ctx context.Context, id uuid.UUID, isPublic bool, email string) (View, error) {
	s, err := e.get(id)
	if err != nil {
		return View{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.draft.IsPublic = isPublic
	if isPublic {
		s.draft.Email = strings.TrimSpace(email)
	} else {
		s.draft.Email = ""
	}
	e.store.SaveDraft(ctx, s.ID.String(), s.draft)

	if !isPublic && s.step == models.StepIdentity {
		s.step = models.StepMethod
	}
	return e.viewLocked(ctx, s), nil
}

// SetTarget points the draft at a charity and optional cause.
func (e *Engine) SetTarget(ctx context.Context, id uuid.UUID, charity, causeID string) (View, error) {
	s, err := e.get(id)
	if err != nil {
		return View{}, err
	}
	if _, ok := e.cfg.CharityByCode(charity); !ok {
		return View{}, &ValidationError{Field: "charity", Reason: "unknown charity"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft.Charity = strings.ToUpper(strings.TrimSpace(charity))
	s.draft.CauseID = causeID
	e.store.SaveDraft(ctx, s.ID.String(), s.draft)
	return e.viewLocked(ctx, s), nil
}

// Next advances one step after validating the current one.
func (e *Engine) Next(ctx context.Context, id uuid.UUID) (View, error) {
	s, err := e.get(id)
	if err != nil {
		return View{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := e.gateLocked(s); err != nil {
		return View{}, err
	}

	var to string
	switch s.step {
	case models.StepIntro:
		to = models.StepMessage
	case models.StepMessage:
		to = models.StepAmount
	case models.StepAmount:
		to = models.StepIdentity
	case models.StepIdentity:
		to = models.StepMethod
	default:
		return View{}, ErrInvalidTransition
	}
	if !models.IsValidStepTransition(s.step, to) {
		return View{}, ErrInvalidTransition
	}
	s.step = to
	return e.viewLocked(ctx, s), nil
}

// gateLocked enforces the per-step requirement Next must satisfy.
func (e *Engine) gateLocked(s *Session) error {
	switch s.step {
	case models.StepMessage:
		if strings.TrimSpace(s.draft.Message) == "" {
			return &ValidationError{Field: "message", Reason: "cannot be empty"}
		}
	case models.StepAmount:
		if s.draft.Amount <= 0 {
			return &ValidationError{Field: "amount", Reason: "must be a positive number"}
		}
	case models.StepIdentity:
		if s.draft.IsPublic && strings.TrimSpace(s.draft.Email) == "" {
			return &ValidationError{Field: "email", Reason: "required for public gifts"}
		}
	}
	return nil
}

// Back moves one step backward. Leaving the method step abandons any
// in-flight attempt: the poller is cancelled and the attempt resets to
// idle. The draft is never touched.
func (e *Engine) Back(ctx context.Context, id uuid.UUID) (View, error) {
	s, err := e.get(id)
	if err != nil {
		return View{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := models.PrevStep(s.step)
	if prev == "" {
		return View{}, ErrInvalidTransition
	}
	if s.step == models.StepMethod {
		s.poller.Cancel()
		s.attempt = models.PaymentAttempt{Phase: models.AttemptIdle}
	}
	s.step = prev
	return e.viewLocked(ctx, s), nil
}

// Submit runs one payment attempt with the chosen method. Validation
// failures short-circuit before any backend is touched.
func (e *Engine) Submit(ctx context.Context, id uuid.UUID, method string) (View, error) {
	s, err := e.get(id)
	if err != nil {
		return View{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.step != models.StepMethod {
		return View{}, ErrInvalidTransition
	}
	if err := e.validateDraftLocked(s); err != nil {
		return View{}, err
	}

	adapter := e.adapterFor(method)
	if adapter == nil || !adapter.Available(ctx) {
		return View{}, &ValidationError{Field: "method", Reason: "payment method not available"}
	}
	if !models.IsValidAttemptTransition(s.attempt.Phase, models.AttemptCreating) {
		return View{}, ErrInvalidTransition
	}

	s.poller.Cancel()
	s.attempt = models.PaymentAttempt{Phase: models.AttemptCreating, Method: method}
	payload := submissionPayload(s.draft, method)

	res := adapter.Attempt(ctx, payload)
	switch res.Kind {
	case payments.ResultCompleted:
		e.completeLocked(ctx, s, res)
	case payments.ResultPending:
		s.attempt = models.PaymentAttempt{
			Phase:     models.AttemptReady,
			Method:    method,
			PayloadID: res.PayloadID,
			MemoID:    res.MemoID,
			QRCode:    res.QRCode,
			SignLink:  res.SignLink,
		}
		e.startPollerLocked(s, payload)
	case payments.ResultError:
		s.attempt = models.PaymentAttempt{
			Phase:   models.AttemptError,
			Method:  method,
			Message: res.Message,
		}
		e.store.SavePending(ctx, s.ID.String(), payload)
	}
	return e.viewLocked(ctx, s), nil
}

func (e *Engine) validateDraftLocked(s *Session) error {
	if strings.TrimSpace(s.draft.Message) == "" {
		return &ValidationError{Field: "message", Reason: "cannot be empty"}
	}
	if s.draft.Amount <= 0 {
		return &ValidationError{Field: "amount", Reason: "must be a positive number"}
	}
	if s.draft.IsPublic && strings.TrimSpace(s.draft.Email) == "" {
		return &ValidationError{Field: "email", Reason: "required for public gifts"}
	}
	return nil
}

// startPollerLocked watches a pending payload until it resolves or the
// ceiling passes. Completion settles the donation by memo before the
// session moves to confirmation.
func (e *Engine) startPollerLocked(s *Session, payload models.SubmissionPayload) {
	if e.checker == nil {
		return
	}
	memoID := s.attempt.MemoID
	payloadID := s.attempt.PayloadID
	s.poller.Start(context.Background(), payloadID, e.checker.Status, func(res payments.Result) {
		ctx := context.Background()
		s.mu.Lock()
		defer s.mu.Unlock()

		switch res.Kind {
		case payments.ResultCompleted:
			// The signed payment is real either way, so it is settled
			// before deciding whether this session still cares.
			if memoID != "" && e.settler != nil {
				if err := e.settler.SettleByMemo(ctx, memoID, res.TxHash); err != nil {
					e.log.Error("settle by memo failed",
						zap.String("memo_id", memoID), zap.Error(err))
				}
			}
			// A check already in flight when the donor backed out, or
			// when a newer attempt replaced this one, must not touch
			// the session it no longer belongs to.
			if s.attempt.PayloadID != payloadID ||
				!models.IsValidAttemptTransition(s.attempt.Phase, models.AttemptCompleted) {
				e.log.Info("dropping stale poll completion",
					zap.String("payload_id", payloadID))
				return
			}
			e.completeLocked(ctx, s, res)
		case payments.ResultError:
			if s.attempt.PayloadID != payloadID ||
				!models.IsValidAttemptTransition(s.attempt.Phase, models.AttemptError) {
				return
			}
			s.attempt.Phase = models.AttemptError
			s.attempt.Message = res.Message
			e.store.SavePending(ctx, s.ID.String(), payload)
		}
	})
}

// completeLocked finishes a successful attempt: confirmation step,
// persisted state cleared, last-used hints saved.
func (e *Engine) completeLocked(ctx context.Context, s *Session, res payments.Result) {
	s.attempt = models.PaymentAttempt{
		Phase:       models.AttemptCompleted,
		Method:      s.attempt.Method,
		TxHash:      res.TxHash,
		ExplorerURL: res.ExplorerURL,
	}
	s.step = models.StepConfirmation

	sid := s.ID.String()
	e.store.ClearDraft(ctx, sid)
	e.store.ClearPending(ctx, sid)
	if intent := strings.TrimSpace(s.draft.Message); intent != "" {
		e.store.SaveLastIntent(ctx, sid, intent)
	}
	if s.draft.Amount > 0 {
		e.store.SaveLastAmount(ctx, sid, s.draft.Amount)
	}
}

// RetryPending replays the session's queued payload through the
// platform adapter. Success clears the slot; failure leaves it exactly
// as it was for the next retry trigger.
func (e *Engine) RetryPending(ctx context.Context, id uuid.UUID) (bool, error) {
	s, err := e.get(id)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return e.retryPendingLocked(ctx, s), nil
}

func (e *Engine) retryPendingLocked(ctx context.Context, s *Session) bool {
	sid := s.ID.String()
	payload := e.store.GetPending(ctx, sid)
	if payload == nil {
		return false
	}

	adapter := e.adapterFor(payments.MethodPlatform)
	if adapter == nil || !adapter.Available(ctx) {
		return false
	}

	res := adapter.Attempt(ctx, *payload)
	if res.Kind != payments.ResultCompleted {
		e.log.Info("pending retry did not settle", zap.String("session", sid))
		return false
	}

	if s.attempt.Phase == models.AttemptError {
		e.completeLocked(ctx, s, res)
	} else {
		e.store.ClearPending(ctx, sid)
	}
	e.log.Info("pending donation delivered", zap.String("session", sid))
	return true
}

// HandleOnline is the connectivity-restored hook: every live session
// with a queued payload gets one retry.
func (e *Engine) HandleOnline(ctx context.Context) {
	e.mu.Lock()
	live := make([]*Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		live = append(live, s)
	}
	e.mu.Unlock()

	for _, s := range live {
		s.mu.Lock()
		e.retryPendingLocked(ctx, s)
		s.mu.Unlock()
	}
}

// Teardown drops the live session, cancelling its timers. Persisted
// draft and pending state survive so the donor can resume later.
func (e *Engine) Teardown(id uuid.UUID) error {
	e.mu.Lock()
	s, ok := e.sessions[id]
	if ok {
		delete(e.sessions, id)
	}
	e.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.debounce != nil {
		s.debounce.Stop()
		s.debounce = nil
	}
	s.poller.Cancel()
	return nil
}

// Shutdown tears down every live session.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	ids := make([]uuid.UUID, 0, len(e.sessions))
	for id := range e.sessions {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	for _, id := range ids {
		_ = e.Teardown(id)
	}
}

func (e *Engine) adapterFor(method string) payments.Adapter {
	for _, a := range e.adapters {
		if a.Method() == method {
			return a
		}
	}
	return nil
}

func (e *Engine) view(ctx context.Context, s *Session) View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return e.viewLocked(ctx, s)
}

func (e *Engine) viewLocked(ctx context.Context, s *Session) View {
	sid := s.ID.String()
	methods := make([]string, 0, len(e.adapters))
	for _, a := range e.adapters {
		if a.Available(ctx) {
			methods = append(methods, a.Method())
		}
	}

	v := View{
		SessionID:  sid,
		Step:       s.step,
		Draft:      s.draft,
		Attempt:    s.attempt,
		Methods:    methods,
		Presets:    e.cfg.PresetAmounts,
		HasPending: e.store.GetPending(ctx, sid) != nil,
	}
	if intent, ok := e.store.LastIntent(ctx, sid); ok {
		v.LastIntent = intent
	}
	return v
}

func submissionPayload(d models.DonationDraft, method string) models.SubmissionPayload {
	return models.SubmissionPayload{
		DonorIntent: strings.TrimSpace(d.Message),
		AmountFiat:  d.Amount,
		Currency:    d.Currency,
		DonorEmail:  d.Email,
		IsPublic:    d.IsPublic,
		Charity:     d.Charity,
		CauseID:     d.CauseID,
		Method:      method,
	}
}
