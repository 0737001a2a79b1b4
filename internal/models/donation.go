package models

import (
	"time"

	"github.com/google/uuid"
)

// Donation statuses
const (
	DonationStatusPending = "pending" // awaiting on-ledger settlement
	DonationStatusSettled = "settled"
	DonationStatusFailed  = "failed"
)

// Payment methods
const (
	MethodPlatform  = "platform"  // platform hot wallet signs the transfer
	MethodXaman     = "xaman"     // donor signs a payload in the Xaman app
	MethodCrossmark = "crossmark" // donor signs via the CROSSMARK extension
	MethodFiat      = "fiat"      // simulated fiat, demo builds only
)

type Donation struct {
	ID          uuid.UUID  `json:"id"`
	Charity     string     `json:"charity"` // MEDA / TARA
	CauseID     string     `json:"cause_id"`
	DonorIntent string     `json:"donor_intent"`
	Amount      string     `json:"amount"` // numeric as string
	Currency    string     `json:"currency"`
	DonorEmail  *string    `json:"donor_email,omitempty"`
	DonorHash   *string    `json:"donor_hash,omitempty"` // pseudonym for public scores
	IsPublic    bool       `json:"is_public"`
	Method      string     `json:"method"`
	MemoID      *string    `json:"memo_id,omitempty"` // ledger memo used for settlement matching
	TxHash      *string    `json:"tx_hash,omitempty"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	SettledAt   *time.Time `json:"settled_at,omitempty"`
}

// DonorScore is one row of a charity's public donor board.
type DonorScore struct {
	PseudonymHash string `json:"ph"`
	GiftCount     int    `json:"gift_count"`
}
