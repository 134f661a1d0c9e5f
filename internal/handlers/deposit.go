package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"wager-ledger-backend/internal/middleware"
	"wager-ledger-backend/internal/services"
)

const maxWebhookBody = 64 << 10

type DepositHandler struct {
	deposits *services.DepositLedger
}

func NewDepositHandler(deposits *services.DepositLedger) *DepositHandler {
	return &DepositHandler{deposits: deposits}
}

type createDepositRequest struct {
	UserID     string          `json:"userId" binding:"required"`
	AmountFiat decimal.Decimal `json:"amountFiat"`
	PaymentID  json.Number     `json:"paymentId"`
}

func (h *DepositHandler) CreateDeposit(c *gin.Context) {
	var req createDepositRequest
	if !bindJSON(c, &req) {
		return
	}
	if !required(&req.UserID) {
		badRequest(c, requiredMessage("userId"))
		return
	}

	paymentID, err := strconv.Atoi(req.PaymentID.String())
	if err != nil || paymentID <= 0 {
		badRequest(c, "Invalid paymentId")
		return
	}

	result, err := h.deposits.Create(c.Request.Context(), req.UserID, req.AmountFiat, paymentID)
	if err != nil {
		respondError(c, err)
		return
	}

	var tag *string
	if result.DestinationTag != "" {
		tag = &result.DestinationTag
	}

	c.JSON(http.StatusOK, gin.H{
		"orderId":        result.OrderID,
		"userId":         result.UserID,
		"address":        result.Address,
		"destinationTag": tag,
	})
}

func (h *DepositHandler) GetDeposit(c *gin.Context) {
	playerID := middleware.PlayerID(c)
	if playerID == "" {
		badRequest(c, "playerId is required")
		return
	}

	deposit, err := h.deposits.Get(c.Request.Context(), playerID, c.Param("orderId"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, deposit)
}

// Webhook receives gateway deposit notifications. Responses are plain text
// and carry no ledger state.
func (h *DepositHandler) Webhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.String(http.StatusBadRequest, "bad request")
		return
	}

	// A transition that started must finish even if the gateway hangs up.
	ctx := context.WithoutCancel(c.Request.Context())

	_, err = h.deposits.ApplyWebhook(ctx, body, c.GetHeader(services.SignatureHeader))
	switch {
	case err == nil:
		c.String(http.StatusOK, "ok")
	case errors.Is(err, services.ErrInvalidSignature):
		log.WithField("ip", c.ClientIP()).Warn("Deposit webhook with invalid signature")
		c.String(http.StatusForbidden, "invalid signature")
	case errors.Is(err, services.ErrValidation):
		// Signed but unusable; a 200 stops the gateway from retrying it.
		log.WithField("ip", c.ClientIP()).WithError(err).Warn("Ignoring malformed deposit webhook")
		c.String(http.StatusOK, "ok")
	default:
		log.WithError(err).Error("Deposit webhook failed")
		c.String(http.StatusInternalServerError, "error")
	}
}
