package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"wager-ledger-backend/internal/services"
	"wager-ledger-backend/internal/storage"
)

// Error codes returned in the "code" field of every error body.
const (
	CodeValidation        = "VALIDATION_ERROR"
	CodeInvalidAmount     = "INVALID_AMOUNT"
	CodeInsufficientFunds = "INSUFFICIENT_FUNDS"
	CodePlayerNotFound    = "PLAYER_NOT_FOUND"
	CodeRoundNotFound     = "ROUND_NOT_FOUND"
	CodeOrderNotFound     = "ORDER_NOT_FOUND"
	CodeRoundOwnership    = "ROUND_OWNERSHIP_MISMATCH"
	CodeGateway           = "GATEWAY_ERROR"
	CodeInvalidSignature  = "INVALID_SIGNATURE"
	CodeConflict          = "CONFLICT"
	CodeRateLimited       = "RATE_LIMITED"
	CodeInternal          = "INTERNAL_ERROR"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondError(c *gin.Context, err error) {
	status, body := classify(err)

	if status >= http.StatusInternalServerError {
		log.WithFields(log.Fields{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
		}).WithError(err).Error("Request failed")
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}

func classify(err error) (int, errorBody) {
	switch {
	case errors.Is(err, services.ErrAmountPrecision):
		return http.StatusBadRequest, errorBody{"Amount must have at most 2 decimal places", CodeInvalidAmount}
	case errors.Is(err, services.ErrInvalidAmount):
		return http.StatusBadRequest, errorBody{"Amount must be positive", CodeInvalidAmount}
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest, errorBody{err.Error(), CodeValidation}
	case errors.Is(err, services.ErrInsufficientFunds):
		return http.StatusBadRequest, errorBody{"Insufficient funds", CodeInsufficientFunds}
	case errors.Is(err, services.ErrPlayerNotFound):
		return http.StatusBadRequest, errorBody{"Player not found", CodePlayerNotFound}
	case errors.Is(err, services.ErrRoundNotFound):
		return http.StatusBadRequest, errorBody{"Round not found", CodeRoundNotFound}
	case errors.Is(err, services.ErrOrderNotFound):
		return http.StatusBadRequest, errorBody{"Order not found", CodeOrderNotFound}
	case errors.Is(err, services.ErrRoundOwnership):
		return http.StatusBadRequest, errorBody{"Round does not belong to player", CodeRoundOwnership}
	case errors.Is(err, services.ErrGateway):
		return http.StatusBadRequest, errorBody{"Payment gateway error", CodeGateway}
	case errors.Is(err, services.ErrInvalidSignature):
		return http.StatusForbidden, errorBody{"Invalid signature", CodeInvalidSignature}
	case errors.Is(err, storage.ErrConflict):
		return http.StatusConflict, errorBody{"Too many concurrent requests, retry", CodeConflict}
	default:
		return http.StatusInternalServerError, errorBody{"Server error", CodeInternal}
	}
}

func tooManyRequests(c *gin.Context, window time.Duration) {
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"error":       "Rate limit exceeded",
		"code":        CodeRateLimited,
		"retry_after": window.Seconds(),
	})
}

func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{message, CodeValidation})
}
