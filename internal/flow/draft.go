package flow

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/eunoia-atlas/backend/internal/models"
	"go.uber.org/zap"
)

// SaveDraft persists the in-progress draft. Best-effort: failures are
// logged, not returned.
func (s *Store) SaveDraft(ctx context.Context, sid string, draft models.DonationDraft) {
	data, err := json.Marshal(draft)
	if err != nil {
		s.log.Warn("draft marshal failed", zap.String("session", sid), zap.Error(err))
		return
	}
	s.set(ctx, draftKeyPrefix+sid, string(data))
}

// LoadDraft returns the last-saved draft, or the empty draft when
// nothing was saved or the stored value does not parse. It never
// returns an error.
func (s *Store) LoadDraft(ctx context.Context, sid string) models.DonationDraft {
	val, ok := s.get(ctx, draftKeyPrefix+sid)
	if !ok {
		return models.EmptyDraft()
	}
	var draft models.DonationDraft
	if err := json.Unmarshal([]byte(val), &draft); err != nil {
		s.log.Warn("corrupt draft discarded", zap.String("session", sid), zap.Error(err))
		return models.EmptyDraft()
	}
	if draft.Currency == "" {
		draft.Currency = "CAD"
	}
	return draft
}

func (s *Store) ClearDraft(ctx context.Context, sid string) {
	s.delete(ctx, draftKeyPrefix+sid)
}

// Last-used hints. Purely cosmetic, same best-effort rules as the draft.

func (s *Store) SaveLastAmount(ctx context.Context, sid string, amount float64) {
	s.set(ctx, lastAmountKeyPrefix+sid, strconv.FormatFloat(amount, 'f', -1, 64))
}

func (s *Store) LastAmount(ctx context.Context, sid string) (float64, bool) {
	val, ok := s.get(ctx, lastAmountKeyPrefix+sid)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func (s *Store) SaveLastIntent(ctx context.Context, sid string, intent string) {
	s.set(ctx, lastIntentKeyPrefix+sid, intent)
}

func (s *Store) LastIntent(ctx context.Context, sid string) (string, bool) {
	return s.get(ctx, lastIntentKeyPrefix+sid)
}

// WalletConnection remembers the donor's last connected extension
// wallet so the method step can preselect it.
type WalletConnection struct {
	Address string `json:"address"`
	Network string `json:"network"`
}

func (s *Store) SaveWalletConnection(ctx context.Context, sid string, wc WalletConnection) {
	data, err := json.Marshal(wc)
	if err != nil {
		return
	}
	s.set(ctx, walletKeyPrefix+sid, string(data))
}

func (s *Store) WalletConnection(ctx context.Context, sid string) (WalletConnection, bool) {
	val, ok := s.get(ctx, walletKeyPrefix+sid)
	if !ok {
		return WalletConnection{}, false
	}
	var wc WalletConnection
	if err := json.Unmarshal([]byte(val), &wc); err != nil {
		return WalletConnection{}, false
	}
	return wc, true
}
