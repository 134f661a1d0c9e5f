package services

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// DepositNotification is a verified deposit webhook body after boundary
// validation. Only the fields the ledger acts on are kept.
type DepositNotification struct {
	OrderID string
	Status  string
	Amount  decimal.NullDecimal
	TxHash  string
}

type rawNotification struct {
	Type         string              `json:"type"`
	OrderID      flexString          `json:"orderId"`
	OrderIDSnake flexString          `json:"order_id"`
	Status       flexString          `json:"status"`
	Amount       decimal.NullDecimal `json:"amount"`
	TxHash       flexString          `json:"txhash"`
}

// ParseDepositNotification validates the shape of a webhook body. It must be
// a JSON object of type "deposit" (or untyped) carrying an order id and a
// status.
func ParseDepositNotification(body []byte) (*DepositNotification, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, validationError("webhook body must be a JSON object")
	}

	var raw rawNotification
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, validationError("malformed webhook body: %v", err)
	}

	if raw.Type != "" && raw.Type != "deposit" {
		return nil, validationError("unsupported notification type %q", raw.Type)
	}

	orderID := firstNonEmpty(raw.OrderID, raw.OrderIDSnake)
	if orderID == "" {
		return nil, validationError("orderId is required")
	}

	status := strings.TrimSpace(string(raw.Status))
	if status == "" {
		return nil, validationError("status is required")
	}

	return &DepositNotification{
		OrderID: orderID,
		Status:  status,
		Amount:  raw.Amount,
		TxHash:  strings.TrimSpace(string(raw.TxHash)),
	}, nil
}
