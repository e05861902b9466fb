package queue

import (
	"sync"

	"github.com/Sriram-PR/sitemapper/pkg/models"

	"github.com/sirupsen/logrus"
)

// ThreadSafeQueue is a blocking FIFO of work items shared by crawl workers
type ThreadSafeQueue struct {
	items  []*models.WorkItem
	head   int // Index of the next item to pop; the slice is compacted lazily
	mu     sync.Mutex
	cond   *sync.Cond // Condition variable to wait for items
	closed bool
	log    *logrus.Entry
}

// NewThreadSafeQueue creates a new empty queue
func NewThreadSafeQueue(logger *logrus.Entry) *ThreadSafeQueue {
	q := &ThreadSafeQueue{log: logger}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Add appends a work item to the tail of the queue.
// Returns false if the queue is already closed and the item was dropped.
func (q *ThreadSafeQueue) Add(item *models.WorkItem) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		q.log.Debugf("Attempted to add item to closed queue: %s", item.URL)
		return false
	}

	q.items = append(q.items, item)
	q.cond.Signal() // Wake one waiting worker
	return true
}

// Pop retrieves and removes the oldest work item.
// It blocks while the queue is empty and open.
// Returns nil and false once the queue is closed and empty.
func (q *ThreadSafeQueue) Pop() (*models.WorkItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.lenLocked() == 0 {
		if q.closed {
			return nil, false
		}
		q.cond.Wait()
	}

	item := q.items[q.head]
	q.items[q.head] = nil // avoid memory leak
	q.head++

	// Compact once the consumed prefix dominates the backing array
	if q.head > 64 && q.head*2 >= len(q.items) {
		remaining := copy(q.items, q.items[q.head:])
		clear(q.items[remaining:])
		q.items = q.items[:remaining]
		q.head = 0
	}
	return item, true
}

// Close signals that no more items will be added.
// Items already queued can still be popped.
func (q *ThreadSafeQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		q.cond.Broadcast() // Wake up ALL waiting workers so they can check the closed status
	}
}

// Drain closes the queue and removes every pending item, returning them in FIFO order
func (q *ThreadSafeQueue) Drain() []*models.WorkItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	pending := make([]*models.WorkItem, 0, q.lenLocked())
	pending = append(pending, q.items[q.head:]...)
	q.items = nil
	q.head = 0
	if !q.closed {
		q.closed = true
		q.cond.Broadcast()
	}
	return pending
}

// Len returns the current number of items in the queue (thread-safe)
func (q *ThreadSafeQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lenLocked()
}

func (q *ThreadSafeQueue) lenLocked() int {
	return len(q.items) - q.head
}
