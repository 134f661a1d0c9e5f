package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	lockKeySQL = `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`

	upsertEntrySQL = `
		INSERT INTO kv_entries (key, value, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`

	incrCounterSQL = `
		INSERT INTO rate_counters (key, value, expires_at)
		VALUES ($1, 1, NOW() + $2 * INTERVAL '1 millisecond')
		ON CONFLICT (key) DO UPDATE SET
			value = CASE WHEN rate_counters.expires_at <= NOW() THEN 1 ELSE rate_counters.value + 1 END,
			expires_at = CASE WHEN rate_counters.expires_at <= NOW()
				THEN NOW() + $2 * INTERVAL '1 millisecond' ELSE rate_counters.expires_at END
		RETURNING value`
)

// Postgres stores entries in a single kv_entries table. Update takes a
// transaction-scoped advisory lock per key, in sorted order, so keys that do
// not exist yet are serialized as well.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects, pings and migrates the schema.
func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	if err := MigrateUp(databaseURL); err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

func (p *Postgres) withTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func lockKeys(ctx context.Context, tx pgx.Tx, keys []string) error {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	for _, k := range sorted {
		if _, err := tx.Exec(ctx, lockKeySQL, k); err != nil {
			return fmt.Errorf("failed to lock %s: %w", k, err)
		}
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := p.pool.QueryRow(ctx, `SELECT value FROM kv_entries WHERE key = $1`, key).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return data, nil
}

func (p *Postgres) PutIfAbsent(ctx context.Context, key string, value []byte) (bool, error) {
	created := false
	err := p.withTransaction(ctx, func(tx pgx.Tx) error {
		if err := lockKeys(ctx, tx, []string{key}); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx,
			`INSERT INTO kv_entries (key, value) VALUES ($1, $2) ON CONFLICT (key) DO NOTHING`,
			key, value)
		if err != nil {
			return fmt.Errorf("failed to put %s: %w", key, err)
		}
		created = tag.RowsAffected() == 1
		return nil
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

func (p *Postgres) Update(ctx context.Context, keys []string, fn func(tx Tx) error) error {
	keys = uniqueKeys(keys)

	return p.withTransaction(ctx, func(tx pgx.Tx) error {
		if err := lockKeys(ctx, tx, keys); err != nil {
			return err
		}

		view := newTxView(keys)

		rows, err := tx.Query(ctx, `SELECT key, value FROM kv_entries WHERE key = ANY($1)`, keys)
		if err != nil {
			return fmt.Errorf("failed to read keys: %w", err)
		}
		for rows.Next() {
			var (
				k string
				v []byte
			)
			if err := rows.Scan(&k, &v); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan entry: %w", err)
			}
			view.values[k] = v
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("failed to read keys: %w", err)
		}

		if err := fn(view); err != nil {
			return err
		}
		if view.err != nil {
			return view.err
		}
		if len(view.order) == 0 {
			return nil
		}

		batch := &pgx.Batch{}
		for _, k := range view.order {
			batch.Queue(upsertEntrySQL, k, view.writes[k])
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to write entries: %w", err)
		}
		return nil
	})
}

func (p *Postgres) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	var count int64
	err := p.pool.QueryRow(ctx, incrCounterSQL, key, window.Milliseconds()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to increment %s: %w", key, err)
	}
	return count, nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
