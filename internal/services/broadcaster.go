package services

import (
	"github.com/shopspring/decimal"

	"wager-ledger-backend/internal/models"
)

// Broadcaster is told about every committed balance change.
type Broadcaster interface {
	BalanceChanged(playerID string, balance decimal.Decimal, reason models.TransactionType)
}

type NoopBroadcaster struct{}

func (NoopBroadcaster) BalanceChanged(string, decimal.Decimal, models.TransactionType) {}
