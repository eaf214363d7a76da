package services

import "sync"

// WorkQueue is the per-worker container. It holds two independent FIFO
// lanes: the primary lane is fed by the distributor's assignment step; the
// secondary lane exists so a cross-worker hand-off scheme could feed a
// worker out of band. Today only the owning worker drains either lane.
//
// Lanes hold item ids, not items. The distributor's registry stays the
// single owner of item state while an id sits in a lane.
type WorkQueue struct {
	mu        sync.Mutex
	primary   []string
	secondary []string

	// wake carries at most one pending signal; a blocked consumer selects
	// on it together with its stop channel and idle timer.
	wake chan struct{}
}

func NewWorkQueue() *WorkQueue {
	return &WorkQueue{wake: make(chan struct{}, 1)}
}

// PushPrimary appends id to the primary lane and wakes a blocked consumer.
func (q *WorkQueue) PushPrimary(id string) {
	q.mu.Lock()
	q.primary = append(q.primary, id)
	q.mu.Unlock()
	q.notify()
}

// PopPrimary removes the oldest id from the primary lane. Ids come out in
// the order they were assigned to this queue.
func (q *WorkQueue) PopPrimary() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.primary) == 0 {
		return "", false
	}
	id := q.primary[0]
	q.primary = q.primary[1:]
	return id, true
}

// PushSecondary appends id to the secondary lane and wakes a blocked
// consumer.
func (q *WorkQueue) PushSecondary(id string) {
	q.mu.Lock()
	q.secondary = append(q.secondary, id)
	q.mu.Unlock()
	q.notify()
}

// PopSecondary removes the oldest id from the secondary lane.
func (q *WorkQueue) PopSecondary() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.secondary) == 0 {
		return "", false
	}
	id := q.secondary[0]
	q.secondary = q.secondary[1:]
	return id, true
}

// IsEmpty reports whether both lanes are empty.
func (q *WorkQueue) IsEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.primary) == 0 && len(q.secondary) == 0
}

// Size is the total number of ids across both lanes.
func (q *WorkQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.primary) + len(q.secondary)
}

// Wake exposes the wake channel so a consumer can block on it. A signal
// means "something may have arrived"; consumers re-check the lanes and
// tolerate spurious wakeups.
func (q *WorkQueue) Wake() <-chan struct{} {
	return q.wake
}

func (q *WorkQueue) notify() {
	select {
	case q.wake <- struct{}{}:
	default:
		// A signal is already pending; the consumer will re-check anyway.
	}
}
