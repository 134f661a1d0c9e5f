package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"wager-ledger-backend/internal/models"
	"wager-ledger-backend/internal/services"
)

const (
	startBetLimit  = 30
	finishBetLimit = 60
)

type GameHandler struct {
	rounds  *services.RoundLedger
	limiter *services.RateLimiter
}

func NewGameHandler(rounds *services.RoundLedger, limiter *services.RateLimiter) *GameHandler {
	return &GameHandler{
		rounds:  rounds,
		limiter: limiter,
	}
}

type startBetRequest struct {
	PlayerID string          `json:"playerId" binding:"required"`
	Bet      decimal.Decimal `json:"bet"`
}

type finishBetRequest struct {
	PlayerID   string              `json:"playerId" binding:"required"`
	RoundID    string              `json:"roundId" binding:"required"`
	Result     string              `json:"result"`
	Multiplier decimal.NullDecimal `json:"multiplier"`
}

func (h *GameHandler) StartBet(c *gin.Context) {
	var req startBetRequest
	if !bindJSON(c, &req) {
		return
	}
	if !required(&req.PlayerID) {
		badRequest(c, requiredMessage("playerId"))
		return
	}

	// Rate Limit: 30 bets per minute per player
	if !h.limiter.Allow(c.Request.Context(), req.PlayerID, "bet_start", startBetLimit) {
		tooManyRequests(c, h.limiter.Window())
		return
	}

	result, err := h.rounds.Start(c.Request.Context(), req.PlayerID, req.Bet)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"roundId":  result.RoundID,
		"playerId": result.PlayerID,
		"balance":  result.Balance,
	})
}

func (h *GameHandler) FinishBet(c *gin.Context) {
	var req finishBetRequest
	if !bindJSON(c, &req) {
		return
	}
	if !required(&req.PlayerID, &req.RoundID) {
		badRequest(c, requiredMessage("playerId", "roundId"))
		return
	}

	if !h.limiter.Allow(c.Request.Context(), req.PlayerID, "bet_finish", finishBetLimit) {
		tooManyRequests(c, h.limiter.Window())
		return
	}

	multiplier := decimal.NewFromInt(1)
	if req.Multiplier.Valid {
		multiplier = req.Multiplier.Decimal
	}

	result, err := h.rounds.Finish(c.Request.Context(), req.PlayerID, req.RoundID, models.ParseOutcome(req.Result), multiplier)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"balance": result.Balance,
		"win":     result.Win,
	})
}
