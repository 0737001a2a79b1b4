// Package payments wraps the heterogeneous payment backends behind one
// uniform attempt contract. Adapters never let an error escape: every
// network or SDK failure is normalized into a Result with a
// human-readable message, so the flow engine branches on result shape
// only, never on adapter identity.
package payments

import (
	"context"

	"github.com/eunoia-atlas/backend/internal/models"
)

type ResultKind string

const (
	ResultCompleted ResultKind = "completed" // terminal success, tx hash known
	ResultPending   ResultKind = "pending"   // external wallet action awaited
	ResultError     ResultKind = "error"     // terminal failure, user may retry
)

// Result is the closed union every adapter returns.
type Result struct {
	Kind ResultKind

	// completed
	TxHash      string
	ExplorerURL string

	// pending
	PayloadID string
	QRCode    string
	SignLink  string
	MemoID    string

	// error (also carries info text on the other kinds)
	Message string
}

func Completed(txHash, explorerURL string) Result {
	return Result{Kind: ResultCompleted, TxHash: txHash, ExplorerURL: explorerURL}
}

func Errorf(message string) Result {
	return Result{Kind: ResultError, Message: message}
}

// Adapter is one payment backend. Attempt blocks until the backend
// either settles, hands back a pending payload, or fails; it must
// honor ctx cancellation and must not panic or return raw errors.
type Adapter interface {
	Method() string
	Available(ctx context.Context) bool
	Attempt(ctx context.Context, payload models.SubmissionPayload) Result
}

// StatusChecker resolves a pending payload. Implemented by the Xaman
// adapter; the status poller is its only caller. A transport failure
// maps to ResultPending so polling continues.
type StatusChecker interface {
	Status(ctx context.Context, payloadID string) Result
}
