package services_test

import (
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"wager-ledger-backend/internal/models"
	"wager-ledger-backend/internal/storage"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// backends returns a fresh store per backend so ledger behaviour is checked
// against both.
func backends(t *testing.T) map[string]storage.KV {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return map[string]storage.KV{
		"memory": storage.NewMemory(),
		"redis":  storage.NewRedisFromClient(client),
	}
}

type balanceEvent struct {
	PlayerID string
	Balance  decimal.Decimal
	Reason   models.TransactionType
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []balanceEvent
}

func (r *recordingBroadcaster) BalanceChanged(playerID string, balance decimal.Decimal, reason models.TransactionType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, balanceEvent{playerID, balance, reason})
}

func (r *recordingBroadcaster) Events() []balanceEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]balanceEvent(nil), r.events...)
}
