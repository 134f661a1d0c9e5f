package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionTypeInitial    TransactionType = "initial"
	TransactionTypeBet        TransactionType = "bet"
	TransactionTypeWin        TransactionType = "win"
	TransactionTypeDeposit    TransactionType = "deposit"
	TransactionTypeAdjustment TransactionType = "adjustment"
)

// Transaction is one journal line describing a balance mutation.
type Transaction struct {
	ID            string          `json:"id"`
	PlayerID      string          `json:"player_id"`
	Type          TransactionType `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	BalanceBefore decimal.Decimal `json:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	RefID         string          `json:"ref_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

func NewTransaction(playerID string, txType TransactionType, amount, before, after decimal.Decimal, refID string, now time.Time) *Transaction {
	return &Transaction{
		ID:            NewTransactionID(),
		PlayerID:      playerID,
		Type:          txType,
		Amount:        Money(amount),
		BalanceBefore: Money(before),
		BalanceAfter:  Money(after),
		RefID:         refID,
		CreatedAt:     now,
	}
}
