package services

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"wager-ledger-backend/internal/storage"
)

// RateLimiter counts actions per subject in fixed windows on the shared store.
type RateLimiter struct {
	kv     storage.KV
	window time.Duration
}

func NewRateLimiter(kv storage.KV, window time.Duration) *RateLimiter {
	return &RateLimiter{kv: kv, window: window}
}

func (r *RateLimiter) Window() time.Duration {
	return r.window
}

// Allow records one action by subject and reports whether it is within limit.
// A counter failure allows the action.
func (r *RateLimiter) Allow(ctx context.Context, subject, action string, limit int64) bool {
	count, err := r.kv.Incr(ctx, storage.RateLimitKey(subject, action), r.window)
	if err != nil {
		log.WithFields(log.Fields{
			"subject": subject,
			"action":  action,
		}).WithError(err).Warn("Rate limit check failed")
		return true
	}
	return count <= limit
}
