package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"wager-ledger-backend/internal/config"
	"wager-ledger-backend/internal/models"
	"wager-ledger-backend/internal/storage"
)

type CreateDepositResult struct {
	OrderID        string
	UserID         string
	Address        string
	DestinationTag string
}

type WebhookResult string

const (
	WebhookCredited      WebhookResult = "credited"
	WebhookUnknownOrder  WebhookResult = "unknown_order"
	WebhookDuplicate     WebhookResult = "duplicate"
	WebhookIntermediate  WebhookResult = "intermediate"
	WebhookUnknownPlayer WebhookResult = "unknown_player"
)

// WebhookOutcome describes how a verified webhook was handled. Every outcome
// is accepted; only a credited one changed a balance.
type WebhookOutcome struct {
	Result   WebhookResult
	OrderID  string
	PlayerID string
	Credited decimal.Decimal
	Balance  decimal.Decimal
}

// DepositLedger runs the deposit state machine. Creating a deposit asks the
// gateway for an address; the signed webhook is the only path that confirms
// a deposit and credits the player.
type DepositLedger struct {
	kv          storage.KV
	identity    *IdentityResolver
	gateway     PaymentGateway
	signer      *Signer
	broadcaster Broadcaster

	paymentIDs      map[int]struct{}
	successStatuses map[string]struct{}
	creditReported  bool
	timeout         time.Duration
	now             func() time.Time
}

func NewDepositLedger(cfg *config.Config, kv storage.KV, identity *IdentityResolver, gateway PaymentGateway, signer *Signer, broadcaster Broadcaster) *DepositLedger {
	if broadcaster == nil {
		broadcaster = NoopBroadcaster{}
	}

	paymentIDs := make(map[int]struct{}, len(cfg.PaymentIDs))
	for _, id := range cfg.PaymentIDs {
		paymentIDs[id] = struct{}{}
	}

	statuses := make(map[string]struct{}, len(cfg.SuccessStatuses))
	for _, s := range cfg.SuccessStatuses {
		statuses[strings.ToLower(strings.TrimSpace(s))] = struct{}{}
	}

	return &DepositLedger{
		kv:              kv,
		identity:        identity,
		gateway:         gateway,
		signer:          signer,
		broadcaster:     broadcaster,
		paymentIDs:      paymentIDs,
		successStatuses: statuses,
		creditReported:  cfg.CreditReportedAmount,
		timeout:         cfg.GatewayTimeout,
		now:             time.Now,
	}
}

func (l *DepositLedger) acceptsPayment(paymentID int) bool {
	if paymentID <= 0 {
		return false
	}
	if len(l.paymentIDs) == 0 {
		return true
	}
	_, ok := l.paymentIDs[paymentID]
	return ok
}

func (l *DepositLedger) isSuccess(status string) bool {
	_, ok := l.successStatuses[strings.ToLower(status)]
	return ok
}

// Create requests a deposit address and records a pending deposit. Nothing is
// stored unless the gateway succeeds.
func (l *DepositLedger) Create(ctx context.Context, userID string, amountFiat decimal.Decimal, paymentID int) (*CreateDepositResult, error) {
	if !amountFiat.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if !models.IsMinorUnits(amountFiat) {
		return nil, ErrAmountPrecision
	}
	amount := models.Money(amountFiat)
	if !l.acceptsPayment(paymentID) {
		return nil, validationError("unsupported paymentId %d", paymentID)
	}

	player, err := l.identity.Resolve(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve player: %w", err)
	}

	orderID := models.NewOrderID()

	gctx := ctx
	if l.timeout > 0 {
		var cancel context.CancelFunc
		gctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	resp, err := l.gateway.CreateAddress(gctx, AddressRequest{
		OrderID:   orderID,
		PaymentID: paymentID,
		Amount:    amount,
	})
	if err != nil {
		log.WithFields(log.Fields{
			"order_id":   orderID,
			"user_id":    player.ID,
			"payment_id": paymentID,
		}).WithError(err).Warn("Deposit address request failed")

		if !errors.Is(err, ErrGateway) {
			err = fmt.Errorf("%w: %v", ErrGateway, err)
		}
		return nil, err
	}

	now := l.now()
	deposit := &models.Deposit{
		OrderID:        orderID,
		UserID:         player.ID,
		PaymentID:      paymentID,
		AmountFiat:     amount,
		Address:        resp.Address,
		DestinationTag: resp.DestinationTag,
		Status:         models.DepositPending,
		CreditedAmount: decimal.Zero,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	// The address exists upstream now, so the record is written even if the
	// caller has gone away.
	created, err := storage.PutJSONIfAbsent(context.WithoutCancel(ctx), l.kv, storage.DepositKey(orderID), deposit)
	if err != nil {
		return nil, fmt.Errorf("failed to save deposit: %w", err)
	}
	if !created {
		return nil, fmt.Errorf("failed to save deposit: order id %s already exists", orderID)
	}

	log.WithFields(log.Fields{
		"order_id":   orderID,
		"user_id":    player.ID,
		"payment_id": paymentID,
		"amount":     amount.String(),
	}).Info("Deposit created")

	return &CreateDepositResult{
		OrderID:        orderID,
		UserID:         player.ID,
		Address:        resp.Address,
		DestinationTag: resp.DestinationTag,
	}, nil
}

// ApplyWebhook verifies and applies a gateway notification. A bad signature is
// the only rejection that leaves the caller with ErrInvalidSignature; unknown
// and repeated orders are accepted without effect.
func (l *DepositLedger) ApplyWebhook(ctx context.Context, rawBody []byte, signature string) (*WebhookOutcome, error) {
	if !l.signer.Verify(rawBody, signature) {
		return nil, ErrInvalidSignature
	}

	n, err := ParseDepositNotification(rawBody)
	if err != nil {
		return nil, err
	}

	outcome := &WebhookOutcome{OrderID: n.OrderID}

	var existing models.Deposit
	err = storage.GetJSON(ctx, l.kv, storage.DepositKey(n.OrderID), &existing)
	if errors.Is(err, storage.ErrNotFound) {
		outcome.Result = WebhookUnknownOrder
		l.logOutcome(outcome, n.Status)
		return outcome, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load deposit: %w", err)
	}

	userID := existing.UserID
	outcome.PlayerID = userID

	keys := []string{
		storage.DepositKey(n.OrderID),
		storage.PlayerKey(userID),
		storage.PlayerTransactionsKey(userID),
	}
	err = l.kv.Update(ctx, keys, func(tx storage.Tx) error {
		outcome.Result = ""
		outcome.Credited = decimal.Zero

		var d models.Deposit
		found, err := storage.ReadJSON(tx, storage.DepositKey(n.OrderID), &d)
		if err != nil {
			return err
		}
		if !found {
			outcome.Result = WebhookUnknownOrder
			return nil
		}

		if d.IsConfirmed() {
			outcome.Result = WebhookDuplicate
			return nil
		}

		now := l.now()
		if !l.isSuccess(n.Status) {
			outcome.Result = WebhookIntermediate
			if d.MarkIntermediate(n.Status, now) {
				return storage.WriteJSON(tx, storage.DepositKey(n.OrderID), &d)
			}
			return nil
		}

		p, err := loadPlayer(tx, d.UserID)
		if errors.Is(err, ErrPlayerNotFound) {
			outcome.Result = WebhookUnknownPlayer
			return nil
		}
		if err != nil {
			return err
		}

		amount := d.AmountFiat
		if l.creditReported && n.Amount.Valid && models.Money(n.Amount.Decimal).IsPositive() {
			amount = models.Money(n.Amount.Decimal)
		}

		before := p.Balance
		if err := applyCredit(p, amount, now); err != nil {
			return err
		}
		d.Confirm(amount, n.TxHash, now)

		if err := storage.WriteJSON(tx, storage.DepositKey(n.OrderID), &d); err != nil {
			return err
		}
		if err := savePlayer(tx, p); err != nil {
			return err
		}
		entry := models.NewTransaction(p.ID, models.TransactionTypeDeposit, amount, before, p.Balance, d.OrderID, now)
		if err := appendJournal(tx, entry); err != nil {
			return err
		}

		outcome.Result = WebhookCredited
		outcome.Credited = amount
		outcome.Balance = p.Balance
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to apply deposit webhook: %w", err)
	}

	l.logOutcome(outcome, n.Status)

	if outcome.Result == WebhookCredited {
		l.broadcaster.BalanceChanged(outcome.PlayerID, outcome.Balance, models.TransactionTypeDeposit)
	}

	return outcome, nil
}

func (l *DepositLedger) logOutcome(o *WebhookOutcome, status string) {
	entry := log.WithFields(log.Fields{
		"order_id": o.OrderID,
		"result":   o.Result,
		"status":   status,
	})

	switch o.Result {
	case WebhookCredited:
		entry.WithFields(log.Fields{
			"user_id":  o.PlayerID,
			"credited": o.Credited.String(),
			"balance":  o.Balance.String(),
		}).Info("Deposit confirmed")
	case WebhookDuplicate:
		entry.Info("Deposit webhook redelivered")
	default:
		entry.Warn("Deposit webhook ignored")
	}
}

// Get returns a deposit owned by userID.
func (l *DepositLedger) Get(ctx context.Context, userID, orderID string) (*models.Deposit, error) {
	var d models.Deposit
	err := storage.GetJSON(ctx, l.kv, storage.DepositKey(orderID), &d)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load deposit: %w", err)
	}

	// Foreign orders look the same as missing ones.
	if d.UserID != userID {
		return nil, ErrOrderNotFound
	}
	return &d, nil
}
