package vulkan

import "sync"

// QueueLocks serializes submissions per queue family. Graphics and transfer
// work may land on the same family, and vkQueueSubmit needs external
// synchronization on the queue.
type QueueLocks struct {
	mu    sync.Mutex
	locks map[uint32]*sync.Mutex
}

func NewQueueLocks() *QueueLocks {
	return &QueueLocks{locks: make(map[uint32]*sync.Mutex)}
}

func (q *QueueLocks) lock(family uint32) *sync.Mutex {
	q.mu.Lock()
	defer q.mu.Unlock()
	l, ok := q.locks[family]
	if !ok {
		l = &sync.Mutex{}
		q.locks[family] = l
	}
	return l
}

// Submit runs fn while holding the lock of the given family only.
func (q *QueueLocks) Submit(family uint32, fn func() error) error {
	l := q.lock(family)
	l.Lock()
	defer l.Unlock()
	return fn()
}
