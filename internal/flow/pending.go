package flow

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/eunoia-atlas/backend/internal/models"
	"go.uber.org/zap"
)

// SavePending overwrites the session's pending slot with the payload of
// a failed submission. Single slot, last write wins: two failures in
// quick succession keep only the most recent payload.
func (s *Store) SavePending(ctx context.Context, sid string, payload models.SubmissionPayload) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn("pending marshal failed", zap.String("session", sid), zap.Error(err))
		return
	}
	s.setDurable(ctx, pendingKeyPrefix+sid, string(data))
}

// GetPending returns the queued payload, or nil when the slot is empty
// or unreadable.
func (s *Store) GetPending(ctx context.Context, sid string) *models.SubmissionPayload {
	val, ok := s.get(ctx, pendingKeyPrefix+sid)
	if !ok {
		return nil
	}
	var payload models.SubmissionPayload
	if err := json.Unmarshal([]byte(val), &payload); err != nil {
		s.log.Warn("corrupt pending slot discarded", zap.String("session", sid), zap.Error(err))
		return nil
	}
	return &payload
}

func (s *Store) ClearPending(ctx context.Context, sid string) {
	s.delete(ctx, pendingKeyPrefix+sid)
}

// ForEachPending walks every populated pending slot. The worker's
// retry sweep uses it to deliver donations whose session is no longer
// live in any API process. Returning an error from fn stops the walk.
func (s *Store) ForEachPending(ctx context.Context, fn func(sid string, payload models.SubmissionPayload) error) error {
	keys, err := s.kv.Keys(ctx, pendingKeyPrefix+"*")
	if err != nil {
		return err
	}
	for _, key := range keys {
		sid := strings.TrimPrefix(key, pendingKeyPrefix)
		payload := s.GetPending(ctx, sid)
		if payload == nil {
			continue
		}
		if err := fn(sid, *payload); err != nil {
			return err
		}
	}
	return nil
}
