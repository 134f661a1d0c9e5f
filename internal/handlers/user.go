package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"wager-ledger-backend/internal/middleware"
	"wager-ledger-backend/internal/models"
	"wager-ledger-backend/internal/services"
)

type UserHandler struct {
	identity *services.IdentityResolver
	journal  *services.Journal
}

func NewUserHandler(identity *services.IdentityResolver, journal *services.Journal) *UserHandler {
	return &UserHandler{
		identity: identity,
		journal:  journal,
	}
}

type profileRequest struct {
	PlayerID string `json:"playerId" binding:"required"`
	Nickname string `json:"nickname" binding:"required"`
	Email    string `json:"email"`
}

type playerResponse struct {
	PlayerID string          `json:"playerId"`
	Balance  decimal.Decimal `json:"balance"`
	Nickname *string         `json:"nickname"`
	Email    *string         `json:"email"`
}

func newPlayerResponse(p *models.Player) playerResponse {
	resp := playerResponse{
		PlayerID: p.ID,
		Balance:  p.Balance,
	}
	if p.Nickname != "" {
		resp.Nickname = &p.Nickname
	}
	if p.Email != "" {
		resp.Email = &p.Email
	}
	return resp
}

// GetSession returns the caller's player, creating one on first contact.
func (h *UserHandler) GetSession(c *gin.Context) {
	player, err := h.identity.Resolve(c.Request.Context(), middleware.PlayerID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newPlayerResponse(player))
}

func (h *UserHandler) RegisterProfile(c *gin.Context) {
	var req profileRequest
	if !bindJSON(c, &req) {
		return
	}
	if !required(&req.PlayerID) {
		badRequest(c, requiredMessage("playerId"))
		return
	}

	player, err := h.identity.Register(c.Request.Context(), req.PlayerID, req.Nickname, req.Email)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newPlayerResponse(player))
}

func (h *UserHandler) GetTransactions(c *gin.Context) {
	playerID := middleware.PlayerID(c)
	if playerID == "" {
		badRequest(c, "playerId is required")
		return
	}

	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			badRequest(c, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := h.journal.Recent(c.Request.Context(), playerID, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"playerId":     playerID,
		"transactions": entries,
	})
}
