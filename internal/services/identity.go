package services

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"wager-ledger-backend/internal/models"
)

// IdentityResolver maps a caller-supplied player handle onto a Player,
// creating one with the starting balance on first sight.
type IdentityResolver struct {
	players         *PlayerStore
	startingBalance decimal.Decimal
}

func NewIdentityResolver(players *PlayerStore, startingBalance decimal.Decimal) *IdentityResolver {
	return &IdentityResolver{
		players:         players,
		startingBalance: startingBalance,
	}
}

// Resolve returns the existing player for id unchanged. An empty or unknown id
// gets a freshly generated one.
func (r *IdentityResolver) Resolve(ctx context.Context, id string) (*models.Player, error) {
	if id != "" {
		p, err := r.players.Get(ctx, id)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, ErrPlayerNotFound) {
			return nil, err
		}
	}

	p, err := r.players.Create(ctx, r.startingBalance)
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"player_id": p.ID,
		"requested": id,
		"balance":   p.Balance.String(),
	}).Info("Player created")

	return p, nil
}

// Register resolves id and stores the profile on the resulting player. The
// profile is checked first so a rejected request never creates a player.
func (r *IdentityResolver) Register(ctx context.Context, id, nickname, email string) (*models.Player, error) {
	if _, _, err := normalizeProfile(nickname, email); err != nil {
		return nil, err
	}

	p, err := r.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}

	return r.players.UpdateProfile(ctx, p.ID, nickname, email)
}
