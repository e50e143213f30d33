package apply

import (
	"errors"
	"sync"

	"github.com/ivlev/ipbin/internal/binning"
)

// ErrNotAllocated is returned when the apply stage runs before any allocation was queued.
var ErrNotAllocated = errors.New("no allocation queued: allocate before apply")

// Queue hands allocations from the preprocessing stage to the apply stage in FIFO order.
type Queue struct {
	mu    sync.Mutex
	items []*binning.Allocation
}

// Push appends an allocation. Ownership passes to the queue.
func (q *Queue) Push(a *binning.Allocation) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, a)
}

// Pop removes the oldest allocation.
func (q *Queue) Pop() (*binning.Allocation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, ErrNotAllocated
	}
	a := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return a, nil
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
