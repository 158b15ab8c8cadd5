// Package services – IdempotencyService
//
// This file implements replay and recording of successful query results
// keyed by (user, Idempotency-Key). A recorded key maps to the persisted
// assistant message, so a replay rebuilds the full answer — text and
// citations — without touching the embedding or completion providers.
package services

import (
	"context"
	"net/http"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-docqa-backend/internal/repo"
)

// IdempotencyService serves the query endpoint's Idempotency-Key contract.
type IdempotencyService struct {
	DB *gorm.DB
	// TTL is how long a recorded result can be replayed.
	TTL time.Duration
}

// NewIdempotencyService returns a service with the default 24h replay window.
func NewIdempotencyService(db *gorm.DB) *IdempotencyService {
	return &IdempotencyService{DB: db, TTL: 24 * time.Hour}
}

// Replay returns the answer previously recorded under key, rebuilt from the
// persisted assistant message. ok is false when no live record exists or the
// recorded message is gone.
func (s *IdempotencyService) Replay(ctx context.Context, userID, key string) (*Answer, bool) {
	rec, err := repo.GetIdempotency(ctx, s.DB, userID, "", key, time.Now().UTC())
	if err != nil || rec == nil {
		return nil, false
	}
	msg, err := repo.GetMessage(ctx, s.DB, rec.ResultID)
	if err != nil {
		return nil, false
	}
	return &Answer{
		ChatID:    msg.ChatID,
		MessageID: msg.ID,
		Text:      msg.Content,
		Sources:   decodeSources(msg.Sources),
	}, true
}

// Record associates key with a successful answer. Best effort: the answer
// has already been delivered, so a lost record only costs one replay.
func (s *IdempotencyService) Record(ctx context.Context, userID, key string, ans *Answer) {
	if ans == nil || ans.MessageID == "" {
		return
	}
	_, _ = repo.CreateIdempotency(ctx, s.DB, userID, "", key, ans.MessageID, http.StatusOK, s.TTL)
}
