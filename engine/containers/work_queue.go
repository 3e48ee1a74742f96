package containers

import "sync/atomic"

// WorkQueue hands out the items of a read-only slice to any number of
// concurrent consumers. Every item is delivered exactly once, taken from the
// tail. It is lock-free but not wait-free: a consumer that loses the race on
// the cursor retries.
type WorkQueue[T any] struct {
	items  []T
	cursor atomic.Int64
}

// NewWorkQueue wraps items. The slice must not be modified while the queue
// is in use.
func NewWorkQueue[T any](items []T) *WorkQueue[T] {
	q := &WorkQueue[T]{items: items}
	q.cursor.Store(int64(len(items)))
	return q
}

// TryTake returns the next item, or false once the queue is exhausted.
func (q *WorkQueue[T]) TryTake() (T, bool) {
	for {
		c := q.cursor.Load()
		if c <= 0 {
			var zero T
			return zero, false
		}
		if q.cursor.CompareAndSwap(c, c-1) {
			return q.items[c-1], true
		}
	}
}

// Len is the number of items not yet taken. The value may be stale by the
// time it is read.
func (q *WorkQueue[T]) Len() int {
	c := q.cursor.Load()
	if c < 0 {
		return 0
	}
	return int(c)
}
