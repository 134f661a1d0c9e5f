package storage

import (
	"fmt"
	"time"
)

const (
	KeyPlayer             = "player:%s"
	KeyPlayerTransactions = "txlog:%s"
	KeyRound              = "round:%s"
	KeyDeposit            = "deposit:%s"
	KeyRateLimit          = "ratelimit:%s:%s"

	// MaxPlayerTransactions caps the per-player journal.
	MaxPlayerTransactions = 100

	DefaultRateLimitWindow = time.Minute
)

func PlayerKey(id string) string {
	return fmt.Sprintf(KeyPlayer, id)
}

func PlayerTransactionsKey(id string) string {
	return fmt.Sprintf(KeyPlayerTransactions, id)
}

func RoundKey(id string) string {
	return fmt.Sprintf(KeyRound, id)
}

func DepositKey(orderID string) string {
	return fmt.Sprintf(KeyDeposit, orderID)
}

func RateLimitKey(subject, action string) string {
	return fmt.Sprintf(KeyRateLimit, subject, action)
}
