package models

// Flow steps. The whisper flow is linear with one-step backward
// navigation; anything else is an invalid transition.
const (
	StepIntro        = "intro"
	StepMessage      = "message"
	StepAmount       = "amount"
	StepIdentity     = "identity"
	StepMethod       = "method"
	StepConfirmation = "confirmation"
)

// Valid step transitions: from -> []to
var ValidStepTransitions = map[string][]string{
	StepIntro:        {StepMessage},
	StepMessage:      {StepAmount, StepIntro},
	StepAmount:       {StepIdentity, StepMessage},
	StepIdentity:     {StepMethod, StepAmount},
	StepMethod:       {StepConfirmation, StepIdentity},
	StepConfirmation: {},
}

func IsValidStepTransition(from, to string) bool {
	allowed, ok := ValidStepTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// PrevStep returns the step "Back" lands on, or "" when there is none.
func PrevStep(from string) string {
	switch from {
	case StepMessage:
		return StepIntro
	case StepAmount:
		return StepMessage
	case StepIdentity:
		return StepAmount
	case StepMethod:
		return StepIdentity
	default:
		return ""
	}
}

// Payment attempt phases. Exactly one phase is active per attempt;
// ready moves to completed or error only through the status poller or a
// terminal adapter response, never through user input.
const (
	AttemptIdle      = "idle"
	AttemptCreating  = "creating"
	AttemptReady     = "ready"
	AttemptCompleted = "completed"
	AttemptError     = "error"
)

// Valid attempt transitions: from -> []to. Every phase may reset to
// idle when the user backs out or starts over.
var ValidAttemptTransitions = map[string][]string{
	AttemptIdle:      {AttemptCreating},
	AttemptCreating:  {AttemptReady, AttemptCompleted, AttemptError, AttemptIdle},
	AttemptReady:     {AttemptCompleted, AttemptError, AttemptIdle},
	AttemptError:     {AttemptCreating, AttemptIdle},
	AttemptCompleted: {AttemptIdle},
}

func IsValidAttemptTransition(from, to string) bool {
	allowed, ok := ValidAttemptTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// PaymentAttempt is the transient state of one in-flight payment
// backend invocation.
type PaymentAttempt struct {
	Phase       string `json:"phase"`
	Method      string `json:"method,omitempty"`
	PayloadID   string `json:"payload_id,omitempty"`
	MemoID      string `json:"memo_id,omitempty"`
	QRCode      string `json:"qr_code,omitempty"`
	SignLink    string `json:"sign_link,omitempty"`
	TxHash      string `json:"tx_hash,omitempty"`
	ExplorerURL string `json:"explorer_url,omitempty"`
	Message     string `json:"message,omitempty"`
}

// DonationDraft is the in-progress, not-yet-submitted donor input. It
// is persisted after every mutation and cleared only on successful
// submission.
type DonationDraft struct {
	Message  string  `json:"message"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
	IsPublic bool    `json:"is_public"`
	Email    string  `json:"email"`
	Charity  string  `json:"charity"`
	CauseID  string  `json:"cause_id"`
}

// EmptyDraft is what LoadDraft falls back to on absence or corruption.
func EmptyDraft() DonationDraft {
	return DonationDraft{Currency: "CAD"}
}

// SubmissionPayload is a DonationDraft flattened for submission, the
// exact shape stored in the pending slot after a failed attempt.
type SubmissionPayload struct {
	DonorIntent string  `json:"donorIntent"`
	AmountFiat  float64 `json:"amountFiat"`
	Currency    string  `json:"currency"`
	DonorEmail  string  `json:"donorEmail"`
	IsPublic    bool    `json:"isPublic"`
	Charity     string  `json:"charity"`
	CauseID     string  `json:"cause_id"`
	Method      string  `json:"method"`
}
