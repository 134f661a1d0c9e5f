package models_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wager-ledger-backend/internal/models"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestIDs(t *testing.T) {
	assert.True(t, strings.HasPrefix(models.NewPlayerID(), "p_"))
	assert.True(t, strings.HasPrefix(models.NewRoundID(), "r_"))
	assert.True(t, strings.HasPrefix(models.NewOrderID(), "d_"))
	assert.NotEqual(t, models.NewOrderID(), models.NewOrderID())
}

func TestMoneyMarshalsAsNumber(t *testing.T) {
	p := models.NewPlayer("p_1", dec("100.005"), time.Now())

	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"balance":100.01`)
}

func TestIsMinorUnits(t *testing.T) {
	assert.True(t, models.IsMinorUnits(dec("10")))
	assert.True(t, models.IsMinorUnits(dec("10.50")))
	assert.True(t, models.IsMinorUnits(dec("10.500")))
	assert.False(t, models.IsMinorUnits(dec("10.005")))
	assert.False(t, models.IsMinorUnits(dec("0.001")))
}

func TestRoundSettleWon(t *testing.T) {
	r := models.NewRound("p_1", dec("10"), time.Now())

	win, settled := r.Settle(models.RoundWon, dec("2"), time.Now())
	require.True(t, settled)
	assert.Equal(t, "20", win.String())
	assert.Equal(t, models.RoundWon, r.Status)
	assert.NotNil(t, r.SettledAt)
}

func TestRoundSettleClampsMultiplier(t *testing.T) {
	r := models.NewRound("p_1", dec("10"), time.Now())

	win, settled := r.Settle(models.RoundWon, dec("0.5"), time.Now())
	require.True(t, settled)
	assert.Equal(t, "10", win.String())
	assert.Equal(t, "1", r.Multiplier.String())
}

func TestRoundSettleRoundsWin(t *testing.T) {
	r := models.NewRound("p_1", dec("3.33"), time.Now())

	win, _ := r.Settle(models.RoundWon, dec("1.5"), time.Now())
	assert.Equal(t, "5", win.String()) // 4.995 -> 5.00
}

func TestRoundSettleOnlyOnce(t *testing.T) {
	r := models.NewRound("p_1", dec("10"), time.Now())

	_, settled := r.Settle(models.RoundLost, dec("1"), time.Now())
	require.True(t, settled)

	win, settled := r.Settle(models.RoundWon, dec("5"), time.Now())
	assert.False(t, settled)
	assert.True(t, win.IsZero())
	assert.Equal(t, models.RoundLost, r.Status)
}

func TestParseOutcome(t *testing.T) {
	assert.Equal(t, models.RoundWon, models.ParseOutcome("won"))
	assert.Equal(t, models.RoundLost, models.ParseOutcome("lost"))
	assert.Equal(t, models.RoundLost, models.ParseOutcome("anything"))
	assert.True(t, models.RoundLost.IsTerminal())
	assert.False(t, models.RoundActive.IsTerminal())
}

func TestDepositTransitions(t *testing.T) {
	d := &models.Deposit{OrderID: "d_1", Status: models.DepositPending, AmountFiat: dec("50")}

	assert.True(t, d.MarkIntermediate("wait", time.Now()))
	assert.Equal(t, models.DepositStatus("wait"), d.Status)
	assert.False(t, d.MarkIntermediate("wait", time.Now()))
	assert.False(t, d.MarkIntermediate("confirmed", time.Now()))

	assert.True(t, d.Confirm(dec("50"), "0xabc", time.Now()))
	assert.True(t, d.IsConfirmed())
	assert.Equal(t, "0xabc", d.TxHash)

	assert.False(t, d.Confirm(dec("50"), "", time.Now()))
	assert.False(t, d.MarkIntermediate("error", time.Now()))
	assert.True(t, d.IsConfirmed())
}
