package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type DepositStatus string

// Statuses other than these two are intermediate values reported by the
// gateway and stored verbatim.
const (
	DepositPending   DepositStatus = "pending"
	DepositConfirmed DepositStatus = "confirmed"
)

type Deposit struct {
	OrderID        string          `json:"order_id"`
	UserID         string          `json:"user_id"`
	PaymentID      int             `json:"payment_id"`
	AmountFiat     decimal.Decimal `json:"amount_fiat"`
	Address        string          `json:"address"`
	DestinationTag string          `json:"destination_tag,omitempty"`
	Status         DepositStatus   `json:"status"`
	CreditedAmount decimal.Decimal `json:"credited_amount"`
	TxHash         string          `json:"tx_hash,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
}

func (d *Deposit) IsConfirmed() bool {
	return d.Status == DepositConfirmed
}

// Confirm is the single pending→confirmed transition. It returns false when the
// deposit was already confirmed.
func (d *Deposit) Confirm(credited decimal.Decimal, txHash string, now time.Time) bool {
	if d.IsConfirmed() {
		return false
	}

	d.Status = DepositConfirmed
	d.CreditedAmount = Money(credited)
	if txHash != "" {
		d.TxHash = txHash
	}
	d.UpdatedAt = now
	d.ConfirmedAt = &now
	return true
}

// MarkIntermediate records a non-terminal status reported by the gateway.
// Confirmed deposits never move back.
func (d *Deposit) MarkIntermediate(status string, now time.Time) bool {
	if d.IsConfirmed() || status == string(DepositConfirmed) {
		return false
	}
	if d.Status == DepositStatus(status) {
		return false
	}

	d.Status = DepositStatus(status)
	d.UpdatedAt = now
	return true
}
