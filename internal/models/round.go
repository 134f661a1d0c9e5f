package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type RoundStatus string

const (
	RoundActive RoundStatus = "active"
	RoundWon    RoundStatus = "won"
	RoundLost   RoundStatus = "lost"
)

// IsTerminal reports whether no further transition is allowed.
func (s RoundStatus) IsTerminal() bool {
	return s == RoundWon || s == RoundLost
}

// ParseOutcome maps a client-reported result onto a terminal status.
// Anything other than "won" settles the round as lost.
func ParseOutcome(result string) RoundStatus {
	if RoundStatus(result) == RoundWon {
		return RoundWon
	}
	return RoundLost
}

type Round struct {
	ID         string          `json:"id"`
	PlayerID   string          `json:"player_id"`
	Bet        decimal.Decimal `json:"bet"`
	Multiplier decimal.Decimal `json:"multiplier"`
	Win        decimal.Decimal `json:"win"`
	Status     RoundStatus     `json:"status"`

	CreatedAt time.Time  `json:"created_at"`
	SettledAt *time.Time `json:"settled_at,omitempty"`
}

func NewRound(playerID string, bet decimal.Decimal, now time.Time) *Round {
	return &Round{
		ID:         NewRoundID(),
		PlayerID:   playerID,
		Bet:        Money(bet),
		Multiplier: decimal.NewFromInt(1),
		Win:        decimal.Zero,
		Status:     RoundActive,
		CreatedAt:  now,
	}
}

// Settle moves an active round to the terminal status for outcome and returns
// the amount to pay out. The multiplier is clamped to at least 1. A round that
// is already settled is left untouched and reports settled=false.
func (r *Round) Settle(outcome RoundStatus, multiplier decimal.Decimal, now time.Time) (win decimal.Decimal, settled bool) {
	if r.Status != RoundActive {
		return decimal.Zero, false
	}

	one := decimal.NewFromInt(1)
	if multiplier.LessThan(one) {
		multiplier = one
	}

	win = decimal.Zero
	if outcome == RoundWon {
		win = Money(r.Bet.Mul(multiplier))
	} else {
		outcome = RoundLost
	}

	r.Status = outcome
	r.Multiplier = multiplier
	r.Win = win
	r.SettledAt = &now

	return win, true
}
