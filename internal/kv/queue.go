package kv

import (
	"context"

	"github.com/vmihailenco/msgpack/v5"
)

// Queue wraps a Store's list primitives with msgpack envelope encoding for
// internal, high-frequency queues (`queue:orderbook_analysis`,
// `signals:pending`) per SPEC_FULL.md's KV-backend note: these are never
// hand-inspected, so msgpack is cheaper than JSON. Human-facing keys
// (prices:latest, spreads:latest) should be written with jsoniter directly
// against Store instead of through Queue.
type Queue struct {
	store    Store
	key      string
	capacity int64
}

// NewQueue returns a Queue bounded at capacity (oldest entries trimmed).
func NewQueue(store Store, key string, capacity int64) *Queue {
	return &Queue{store: store, key: key, capacity: capacity}
}

// Push encodes v and pushes it, trimming the queue to capacity afterward.
// Returns trimmed=true if the push caused an overflow trim (caller should
// count a corefail.QueueOverflow).
func (q *Queue) Push(ctx context.Context, v interface{}) (trimmed bool, err error) {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return false, err
	}
	if err := q.store.LPush(ctx, q.key, string(b)); err != nil {
		return false, err
	}
	length, err := q.store.LLen(ctx, q.key)
	if err != nil {
		return false, err
	}
	if length > q.capacity {
		if err := q.store.LTrim(ctx, q.key, q.capacity); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// Pop pops and decodes the oldest entry into dst, reporting ok=false if the
// queue was empty.
func (q *Queue) Pop(ctx context.Context, dst interface{}) (bool, error) {
	raw, ok, err := q.store.RPop(ctx, q.key)
	if err != nil || !ok {
		return false, err
	}
	if err := msgpack.Unmarshal([]byte(raw), dst); err != nil {
		return false, err
	}
	return true, nil
}

// Len returns the current queue length.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.store.LLen(ctx, q.key)
}
