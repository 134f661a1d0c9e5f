package models

import (
	"strings"

	"github.com/google/uuid"
)

func newID(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func NewPlayerID() string {
	return newID("p_")
}

func NewRoundID() string {
	return newID("r_")
}

func NewOrderID() string {
	return newID("d_")
}

func NewTransactionID() string {
	return newID("tx_")
}
