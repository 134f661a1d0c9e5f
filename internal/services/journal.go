package services

import (
	"context"
	"errors"

	"wager-ledger-backend/internal/models"
	"wager-ledger-backend/internal/storage"
)

// appendJournal prepends entry to its player's journal inside tx. The caller
// must list storage.PlayerTransactionsKey(entry.PlayerID) in the update.
func appendJournal(tx storage.Tx, entry *models.Transaction) error {
	key := storage.PlayerTransactionsKey(entry.PlayerID)

	var entries []*models.Transaction
	if _, err := storage.ReadJSON(tx, key, &entries); err != nil {
		return err
	}

	entries = append([]*models.Transaction{entry}, entries...)
	if len(entries) > storage.MaxPlayerTransactions {
		entries = entries[:storage.MaxPlayerTransactions]
	}

	return storage.WriteJSON(tx, key, entries)
}

// Journal reads the per-player transaction history.
type Journal struct {
	kv storage.KV
}

func NewJournal(kv storage.KV) *Journal {
	return &Journal{kv: kv}
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, playerID string, limit int) ([]*models.Transaction, error) {
	if limit <= 0 || limit > storage.MaxPlayerTransactions {
		limit = 50
	}

	var entries []*models.Transaction
	err := storage.GetJSON(ctx, j.kv, storage.PlayerTransactionsKey(playerID), &entries)
	if errors.Is(err, storage.ErrNotFound) {
		return []*models.Transaction{}, nil
	}
	if err != nil {
		return nil, err
	}

	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}
