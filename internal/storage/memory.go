package storage

import (
	"context"
	"hash/fnv"
	"sort"
	"sync"
	"time"
)

const (
	memoryStripes = 256

	counterSweepInterval = time.Minute
)

type counter struct {
	value     int64
	expiresAt time.Time
}

// Memory is an in-process KV. Keys hash onto a fixed set of lock stripes, so
// updates on unrelated entities only contend when they share a stripe.
type Memory struct {
	stripes [memoryStripes]sync.Mutex

	mu       sync.RWMutex // guards data and counters, never held across a callback
	data     map[string][]byte
	counters map[string]counter
	swept    time.Time
	now      func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		data:     make(map[string][]byte),
		counters: make(map[string]counter),
		now:      time.Now,
	}
}

func stripeOf(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % memoryStripes)
}

// lock acquires the stripes of keys in ascending order and returns the unlock.
func (m *Memory) lock(keys []string) func() {
	idx := make([]int, 0, len(keys))
	seen := make(map[int]struct{}, len(keys))
	for _, k := range keys {
		s := stripeOf(k)
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		idx = append(idx, s)
	}
	sort.Ints(idx)

	for _, s := range idx {
		m.stripes[s].Lock()
	}
	return func() {
		for i := len(idx) - 1; i >= 0; i-- {
			m.stripes[idx[i]].Unlock()
		}
	}
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (m *Memory) PutIfAbsent(ctx context.Context, key string, value []byte) (bool, error) {
	unlock := m.lock([]string{key})
	defer unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = append([]byte(nil), value...)
	return true, nil
}

func (m *Memory) Update(ctx context.Context, keys []string, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	keys = uniqueKeys(keys)
	unlock := m.lock(keys)
	defer unlock()

	view := newTxView(keys)
	m.mu.RLock()
	for _, k := range keys {
		if data, ok := m.data[k]; ok {
			view.values[k] = append([]byte(nil), data...)
		}
	}
	m.mu.RUnlock()

	if err := fn(view); err != nil {
		return err
	}
	if view.err != nil {
		return view.err
	}

	m.mu.Lock()
	for _, k := range view.order {
		m.data[k] = view.writes[k]
	}
	m.mu.Unlock()

	return nil
}

func (m *Memory) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if now.Sub(m.swept) >= counterSweepInterval {
		m.sweepCounters(now)
	}

	c, ok := m.counters[key]
	if !ok || !now.Before(c.expiresAt) {
		c = counter{expiresAt: now.Add(window)}
	}
	c.value++
	m.counters[key] = c

	return c.value, nil
}

// sweepCounters drops expired counters. Callers hold mu.
func (m *Memory) sweepCounters(now time.Time) {
	for k, c := range m.counters {
		if !now.Before(c.expiresAt) {
			delete(m.counters, k)
		}
	}
	m.swept = now
}

func (m *Memory) Close() error {
	return nil
}
