package query

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// Batcher collects requests over a time window and executes them in batches.
// Overlapping requests are merged, not just identical ones:
// concurrent lookups for [a,b,c], [a,d] and [b,e] become one fetch of [a,b,c,d,e].
type Batcher[V any] struct {
	name     string
	batchFn  func(keys []string) map[string]V
	window   time.Duration
	maxBatch int

	mu       sync.Mutex
	pending  map[string][]*batchWaiter[V]
	timer    *time.Timer
	timerSet bool
}

// batchWaiter represents a caller waiting for results
type batchWaiter[V any] struct {
	keys   []string
	result chan map[string]V
}

// NewBatcher creates a batcher. maxBatch 0 means no key limit per batch.
func NewBatcher[V any](name string, batchFn func(keys []string) map[string]V, window time.Duration, maxBatch int) *Batcher[V] {
	return &Batcher[V]{
		name:     name,
		batchFn:  batchFn,
		window:   window,
		maxBatch: maxBatch,
		pending:  make(map[string][]*batchWaiter[V]),
	}
}

// GetMultiple fetches values for keys, batching with other concurrent
// requests. If ctx ends first the partial result is empty; the batch still
// runs for the other waiters.
func (b *Batcher[V]) GetMultiple(ctx context.Context, keys []string) map[string]V {
	if len(keys) == 0 {
		return map[string]V{}
	}

	waiter := &batchWaiter[V]{
		keys:   keys,
		result: make(chan map[string]V, 1),
	}

	b.mu.Lock()
	for _, key := range keys {
		b.pending[key] = append(b.pending[key], waiter)
	}
	if !b.timerSet {
		b.timerSet = true
		b.timer = time.AfterFunc(b.window, b.executeBatch)
	}
	if b.maxBatch > 0 && len(b.pending) >= b.maxBatch {
		b.timer.Stop()
		b.mu.Unlock()
		go b.executeBatch()
	} else {
		b.mu.Unlock()
	}

	select {
	case result := <-waiter.result:
		return result
	case <-ctx.Done():
		b.withdraw(waiter)
		return map[string]V{}
	}
}

// withdraw removes a waiter that gave up before its batch ran. Keys nobody
// else asked for are dropped, and an emptied batch cancels its timer.
func (b *Batcher[V]) withdraw(waiter *batchWaiter[V]) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, key := range waiter.keys {
		waiters := slices.DeleteFunc(b.pending[key], func(w *batchWaiter[V]) bool {
			return w == waiter
		})
		if len(waiters) == 0 {
			delete(b.pending, key)
		} else {
			b.pending[key] = waiters
		}
	}
	if len(b.pending) == 0 && b.timerSet {
		b.timer.Stop()
		b.timerSet = false
	}
}

// executeBatch runs the batch function and distributes results to waiters.
func (b *Batcher[V]) executeBatch() {
	b.mu.Lock()
	keys := make([]string, 0, len(b.pending))
	waiterSet := make(map[*batchWaiter[V]]bool)
	for key, waiters := range b.pending {
		keys = append(keys, key)
		for _, w := range waiters {
			waiterSet[w] = true
		}
	}
	b.pending = make(map[string][]*batchWaiter[V])
	b.timerSet = false
	b.mu.Unlock()

	if len(keys) == 0 {
		return
	}

	slog.Debug("batcher: executing batch",
		"name", b.name,
		"keys", len(keys),
		"waiters", len(waiterSet))

	results := b.batchFn(keys)

	// each waiter only gets the keys it asked for
	for waiter := range waiterSet {
		waiterResult := make(map[string]V, len(waiter.keys))
		for _, key := range waiter.keys {
			if val, ok := results[key]; ok {
				waiterResult[key] = val
			}
		}
		waiter.result <- waiterResult
	}
}

// Stats returns the number of pending keys and waiters.
func (b *Batcher[V]) Stats() (pendingKeys int, pendingWaiters int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	waiterSet := make(map[*batchWaiter[V]]bool)
	for _, waiters := range b.pending {
		for _, w := range waiters {
			waiterSet[w] = true
		}
	}
	return len(b.pending), len(waiterSet)
}
