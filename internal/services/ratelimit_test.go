package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"wager-ledger-backend/internal/services"
)

func TestRateLimiterCountsPerSubjectAndAction(t *testing.T) {
	ctx := context.Background()

	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			limiter := services.NewRateLimiter(kv, time.Minute)

			assert.True(t, limiter.Allow(ctx, "p_alice", "bet_start", 2))
			assert.True(t, limiter.Allow(ctx, "p_alice", "bet_start", 2))
			assert.False(t, limiter.Allow(ctx, "p_alice", "bet_start", 2))

			assert.True(t, limiter.Allow(ctx, "p_alice", "bet_finish", 2))
			assert.True(t, limiter.Allow(ctx, "p_bob", "bet_start", 2))
		})
	}
}
