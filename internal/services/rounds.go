package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"wager-ledger-backend/internal/models"
	"wager-ledger-backend/internal/storage"
)

type StartResult struct {
	RoundID  string
	PlayerID string
	Balance  decimal.Decimal
}

type FinishResult struct {
	Win     decimal.Decimal
	Balance decimal.Decimal
	Settled bool // false when the round had already been settled
}

// RoundLedger runs the bet round state machine: the stake is escrowed on
// start and the payout credited on finish, each as one storage update.
type RoundLedger struct {
	kv          storage.KV
	identity    *IdentityResolver
	broadcaster Broadcaster
	maxBet      decimal.Decimal
	now         func() time.Time
}

func NewRoundLedger(kv storage.KV, identity *IdentityResolver, broadcaster Broadcaster, maxBet decimal.Decimal) *RoundLedger {
	if broadcaster == nil {
		broadcaster = NoopBroadcaster{}
	}
	return &RoundLedger{
		kv:          kv,
		identity:    identity,
		broadcaster: broadcaster,
		maxBet:      maxBet,
		now:         time.Now,
	}
}

func (l *RoundLedger) Start(ctx context.Context, playerID string, bet decimal.Decimal) (*StartResult, error) {
	if !bet.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if !models.IsMinorUnits(bet) {
		return nil, ErrAmountPrecision
	}
	bet = models.Money(bet)
	if l.maxBet.IsPositive() && bet.GreaterThan(l.maxBet) {
		return nil, validationError("bet exceeds maximum of %s", l.maxBet.StringFixed(2))
	}

	player, err := l.identity.Resolve(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve player: %w", err)
	}

	round := models.NewRound(player.ID, bet, l.now())
	var balance decimal.Decimal

	keys := []string{
		storage.PlayerKey(player.ID),
		storage.RoundKey(round.ID),
		storage.PlayerTransactionsKey(player.ID),
	}
	err = l.kv.Update(ctx, keys, func(tx storage.Tx) error {
		p, err := loadPlayer(tx, player.ID)
		if err != nil {
			return err
		}

		before := p.Balance
		if err := applyDebit(p, bet, round.CreatedAt); err != nil {
			return err
		}
		if err := savePlayer(tx, p); err != nil {
			return err
		}
		if err := storage.WriteJSON(tx, storage.RoundKey(round.ID), round); err != nil {
			return err
		}

		entry := models.NewTransaction(p.ID, models.TransactionTypeBet, bet.Neg(), before, p.Balance, round.ID, round.CreatedAt)
		if err := appendJournal(tx, entry); err != nil {
			return err
		}

		balance = p.Balance
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"round_id":  round.ID,
		"player_id": player.ID,
		"bet":       bet.String(),
		"balance":   balance.String(),
	}).Info("Round started")

	l.broadcaster.BalanceChanged(player.ID, balance, models.TransactionTypeBet)

	return &StartResult{
		RoundID:  round.ID,
		PlayerID: player.ID,
		Balance:  balance,
	}, nil
}

// Finish settles an active round. Settling is idempotent: a round that is
// already won or lost returns the current balance and a zero win.
func (l *RoundLedger) Finish(ctx context.Context, playerID, roundID string, outcome models.RoundStatus, multiplier decimal.Decimal) (*FinishResult, error) {
	if playerID == "" || roundID == "" {
		return nil, validationError("playerId and roundId are required")
	}

	var result FinishResult

	keys := []string{
		storage.RoundKey(roundID),
		storage.PlayerKey(playerID),
		storage.PlayerTransactionsKey(playerID),
	}
	err := l.kv.Update(ctx, keys, func(tx storage.Tx) error {
		result = FinishResult{}

		var round models.Round
		found, err := storage.ReadJSON(tx, storage.RoundKey(roundID), &round)
		if err != nil {
			return err
		}
		if !found {
			return ErrRoundNotFound
		}
		if round.PlayerID != playerID {
			return ErrRoundOwnership
		}

		p, err := loadPlayer(tx, playerID)
		if errors.Is(err, ErrPlayerNotFound) && round.Status.IsTerminal() {
			result.Balance = decimal.Zero
			return nil
		}
		if err != nil {
			return err
		}

		now := l.now()
		win, settled := round.Settle(outcome, multiplier, now)
		result.Balance = p.Balance
		if !settled {
			return nil
		}
		result.Settled = true
		result.Win = win

		if err := storage.WriteJSON(tx, storage.RoundKey(roundID), &round); err != nil {
			return err
		}
		if !win.IsPositive() {
			return nil
		}

		before := p.Balance
		if err := applyCredit(p, win, now); err != nil {
			return err
		}
		if err := savePlayer(tx, p); err != nil {
			return err
		}

		entry := models.NewTransaction(p.ID, models.TransactionTypeWin, win, before, p.Balance, round.ID, now)
		if err := appendJournal(tx, entry); err != nil {
			return err
		}

		result.Balance = p.Balance
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !result.Settled {
		log.WithFields(log.Fields{
			"round_id":  roundID,
			"player_id": playerID,
		}).Debug("Round already settled")
		return &result, nil
	}

	log.WithFields(log.Fields{
		"round_id":  roundID,
		"player_id": playerID,
		"outcome":   outcome,
		"win":       result.Win.String(),
		"balance":   result.Balance.String(),
	}).Info("Round finished")

	if result.Win.IsPositive() {
		l.broadcaster.BalanceChanged(playerID, result.Balance, models.TransactionTypeWin)
	}

	return &result, nil
}

func (l *RoundLedger) Get(ctx context.Context, roundID string) (*models.Round, error) {
	var round models.Round
	err := storage.GetJSON(ctx, l.kv, storage.RoundKey(roundID), &round)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrRoundNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load round: %w", err)
	}
	return &round, nil
}
