package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"wager-ledger-backend/internal/models"
	"wager-ledger-backend/internal/storage"
)

const maxProfileField = 64

// PlayerStore owns Player records and is the only writer of balances. Ledgers
// that need a balance change as part of a wider unit use loadPlayer,
// applyCredit and applyDebit inside their own storage update.
type PlayerStore struct {
	kv          storage.KV
	broadcaster Broadcaster
	now         func() time.Time
}

func NewPlayerStore(kv storage.KV, broadcaster Broadcaster) *PlayerStore {
	if broadcaster == nil {
		broadcaster = NoopBroadcaster{}
	}
	return &PlayerStore{
		kv:          kv,
		broadcaster: broadcaster,
		now:         time.Now,
	}
}

func (s *PlayerStore) Get(ctx context.Context, id string) (*models.Player, error) {
	if id == "" {
		return nil, ErrPlayerNotFound
	}

	var p models.Player
	err := storage.GetJSON(ctx, s.kv, storage.PlayerKey(id), &p)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrPlayerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load player: %w", err)
	}
	return &p, nil
}

// Create persists a new player under a fresh id with the given balance.
func (s *PlayerStore) Create(ctx context.Context, startingBalance decimal.Decimal) (*models.Player, error) {
	for attempt := 0; attempt < 3; attempt++ {
		now := s.now()
		player := models.NewPlayer(models.NewPlayerID(), startingBalance, now)
		created := false

		keys := []string{storage.PlayerKey(player.ID), storage.PlayerTransactionsKey(player.ID)}
		err := s.kv.Update(ctx, keys, func(tx storage.Tx) error {
			created = false
			if _, exists := tx.Get(storage.PlayerKey(player.ID)); exists {
				return nil
			}
			if err := savePlayer(tx, player); err != nil {
				return err
			}
			if player.Balance.IsPositive() {
				entry := models.NewTransaction(player.ID, models.TransactionTypeInitial,
					player.Balance, decimal.Zero, player.Balance, "", now)
				if err := appendJournal(tx, entry); err != nil {
					return err
				}
			}
			created = true
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create player: %w", err)
		}
		if created {
			return player, nil
		}
	}

	return nil, fmt.Errorf("failed to create player: id collision")
}

// Credit adds amount to the player's balance.
func (s *PlayerStore) Credit(ctx context.Context, id string, amount decimal.Decimal) (*models.Player, error) {
	return s.adjust(ctx, id, amount, models.TransactionTypeAdjustment, applyCredit)
}

// Debit subtracts amount from the player's balance, refusing to go below zero.
func (s *PlayerStore) Debit(ctx context.Context, id string, amount decimal.Decimal) (*models.Player, error) {
	return s.adjust(ctx, id, amount, models.TransactionTypeAdjustment, applyDebit)
}

func (s *PlayerStore) adjust(ctx context.Context, id string, amount decimal.Decimal, txType models.TransactionType,
	apply func(*models.Player, decimal.Decimal, time.Time) error) (*models.Player, error) {
	var updated *models.Player

	keys := []string{storage.PlayerKey(id), storage.PlayerTransactionsKey(id)}
	err := s.kv.Update(ctx, keys, func(tx storage.Tx) error {
		now := s.now()
		p, err := loadPlayer(tx, id)
		if err != nil {
			return err
		}

		before := p.Balance
		if err := apply(p, amount, now); err != nil {
			return err
		}
		if err := savePlayer(tx, p); err != nil {
			return err
		}

		entry := models.NewTransaction(id, txType, p.Balance.Sub(before), before, p.Balance, "", now)
		if err := appendJournal(tx, entry); err != nil {
			return err
		}

		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.broadcaster.BalanceChanged(updated.ID, updated.Balance, txType)
	return updated, nil
}

// UpdateProfile sets nickname and email. The nickname is required.
func (s *PlayerStore) UpdateProfile(ctx context.Context, id, nickname, email string) (*models.Player, error) {
	nickname, email, err := normalizeProfile(nickname, email)
	if err != nil {
		return nil, err
	}

	var updated *models.Player
	err = s.kv.Update(ctx, []string{storage.PlayerKey(id)}, func(tx storage.Tx) error {
		p, err := loadPlayer(tx, id)
		if err != nil {
			return err
		}
		p.Nickname = nickname
		p.Email = email
		p.UpdatedAt = s.now()
		updated = p
		return savePlayer(tx, p)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func normalizeProfile(nickname, email string) (string, string, error) {
	nickname = strings.TrimSpace(nickname)
	email = strings.TrimSpace(email)

	if nickname == "" {
		return "", "", validationError("nickname is required")
	}
	if len(nickname) > maxProfileField || len(email) > maxProfileField {
		return "", "", validationError("profile fields must be at most %d characters", maxProfileField)
	}
	if email != "" && !strings.Contains(email, "@") {
		return "", "", validationError("invalid email")
	}
	return nickname, email, nil
}

func loadPlayer(tx storage.Tx, id string) (*models.Player, error) {
	var p models.Player
	found, err := storage.ReadJSON(tx, storage.PlayerKey(id), &p)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrPlayerNotFound
	}
	return &p, nil
}

func savePlayer(tx storage.Tx, p *models.Player) error {
	return storage.WriteJSON(tx, storage.PlayerKey(p.ID), p)
}

func applyCredit(p *models.Player, amount decimal.Decimal, now time.Time) error {
	amount = models.Money(amount)
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	p.Balance = models.Money(p.Balance.Add(amount))
	p.UpdatedAt = now
	return nil
}

func applyDebit(p *models.Player, amount decimal.Decimal, now time.Time) error {
	amount = models.Money(amount)
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if amount.GreaterThan(p.Balance) {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientFunds, p.Balance.StringFixed(2), amount.StringFixed(2))
	}
	p.Balance = models.Money(p.Balance.Sub(amount))
	p.UpdatedAt = now
	return nil
}
