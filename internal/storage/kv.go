// Package storage provides the key-value abstraction the ledger runs on and
// its memory and Redis backends.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound    = errors.New("storage: key not found")
	ErrConflict    = errors.New("storage: too many concurrent updates")
	ErrUnlistedKey = errors.New("storage: write to a key not listed in the update")
)

// Tx is the view of the listed keys handed to an Update callback. Writes are
// buffered and applied only if the callback returns nil.
type Tx interface {
	Get(key string) ([]byte, bool)
	Put(key string, value []byte)
}

// KV is a string-keyed byte store with an atomic multi-key read-modify-write.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	PutIfAbsent(ctx context.Context, key string, value []byte) (bool, error)

	// Update reads keys, runs fn and commits its writes as one unit. No other
	// Update or PutIfAbsent touching any of the keys can interleave with it.
	Update(ctx context.Context, keys []string, fn func(tx Tx) error) error

	// Incr bumps a counter that expires window after its first increment.
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)

	Close() error
}

// GetJSON loads key and decodes it into v.
func GetJSON(ctx context.Context, kv KV, key string, v any) error {
	data, err := kv.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}

// PutJSONIfAbsent encodes v and stores it unless key already exists.
func PutJSONIfAbsent(ctx context.Context, kv KV, key string, v any) (bool, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return false, fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return kv.PutIfAbsent(ctx, key, data)
}

// ReadJSON decodes key from tx into v. It reports false when the key is absent.
func ReadJSON(tx Tx, key string, v any) (bool, error) {
	data, ok := tx.Get(key)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

// WriteJSON encodes v and buffers it under key.
func WriteJSON(tx Tx, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	tx.Put(key, data)
	return nil
}

// txView is the Tx implementation shared by the backends.
type txView struct {
	values map[string][]byte
	listed map[string]struct{}
	writes map[string][]byte
	order  []string
	err    error
}

func newTxView(keys []string) *txView {
	v := &txView{
		values: make(map[string][]byte, len(keys)),
		listed: make(map[string]struct{}, len(keys)),
		writes: make(map[string][]byte),
	}
	for _, k := range keys {
		v.listed[k] = struct{}{}
	}
	return v
}

func (v *txView) Get(key string) ([]byte, bool) {
	if data, ok := v.writes[key]; ok {
		return data, true
	}
	data, ok := v.values[key]
	return data, ok
}

func (v *txView) Put(key string, value []byte) {
	if _, ok := v.listed[key]; !ok {
		if v.err == nil {
			v.err = fmt.Errorf("%w: %s", ErrUnlistedKey, key)
		}
		return
	}
	if _, seen := v.writes[key]; !seen {
		v.order = append(v.order, key)
	}
	v.writes[key] = append([]byte(nil), value...)
}

func uniqueKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
