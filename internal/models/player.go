package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Player struct {
	ID       string          `json:"id"`
	Balance  decimal.Decimal `json:"balance"`
	Nickname string          `json:"nickname,omitempty"`
	Email    string          `json:"email,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewPlayer(id string, startingBalance decimal.Decimal, now time.Time) *Player {
	return &Player{
		ID:        id,
		Balance:   Money(startingBalance),
		CreatedAt: now,
		UpdatedAt: now,
	}
}
