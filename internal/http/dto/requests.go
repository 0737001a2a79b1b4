package dto

type DonateRequest struct {
	Charity    string  `json:"charity"`
	CauseID    string  `json:"cid"`
	Amount     float64 `json:"amount"`
	DonorEmail string  `json:"donor_email,omitempty"`
}

// DonorIntentRequest is the flattened whisper payload posted by clients
// that manage the flow themselves.
type DonorIntentRequest struct {
	DonorIntent string  `json:"donorIntent"`
	AmountFiat  float64 `json:"amountFiat"`
	Currency    string  `json:"currency,omitempty"`
	DonorEmail  string  `json:"donorEmail,omitempty"`
	IsPublic    bool    `json:"isPublic"`
	Charity     string  `json:"charity,omitempty"`
	CauseID     string  `json:"cause_id,omitempty"`
}

type XamanCreatePaymentRequest struct {
	Destination string  `json:"destination,omitempty"`
	Amount      float64 `json:"amount"`
	Charity     string  `json:"charity"`
	CauseID     string  `json:"cause_id,omitempty"`
	Asset       string  `json:"asset,omitempty"`
	Issuer      string  `json:"issuer,omitempty"`
}

type CreateFlowRequest struct {
	SessionID string `json:"session_id,omitempty"` // resume an earlier session
}

type SetMessageRequest struct {
	Message string `json:"message"`
}

type SetAmountRequest struct {
	Amount float64 `json:"amount"`
}

type SetIdentityRequest struct {
	IsPublic bool   `json:"is_public"`
	Email    string `json:"email,omitempty"`
}

type SetTargetRequest struct {
	Charity string `json:"charity"`
	CauseID string `json:"cause_id,omitempty"`
}

type SubmitFlowRequest struct {
	Method string `json:"method"`
}

type ConnectivityRequest struct {
	Online bool `json:"online"`
}
