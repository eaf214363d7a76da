package domain

import (
	"errors"
	"sync"
	"time"
)

// WorkloadType classifies a unit of work for the executor's benefit.
// The engine itself never branches on it.
type WorkloadType string

const (
	WorkloadCPUBound        WorkloadType = "cpu_bound"
	WorkloadIOBound         WorkloadType = "io_bound"
	WorkloadMemoryIntensive WorkloadType = "memory_intensive"
	WorkloadNetworkBound    WorkloadType = "network_bound"
)

// WorkStatus is the derived lifecycle state of a work item.
type WorkStatus string

const (
	WorkStatusPending   WorkStatus = "PENDING"
	WorkStatusRunning   WorkStatus = "RUNNING"
	WorkStatusCompleted WorkStatus = "COMPLETED"
	WorkStatusFailed    WorkStatus = "FAILED"
)

var (
	ErrWorkNotFound       = errors.New("work item not found")
	ErrDuplicateWork      = errors.New("work item id already registered")
	ErrDependenciesNotMet = errors.New("dependencies not satisfied")
	ErrEmptyBatch         = errors.New("batch data is empty")
	ErrNotStarted         = errors.New("distributor not started")
)

// WorkItem is one schedulable unit. Identity fields are immutable after
// construction; execution state is guarded by the item's own mutex so a
// worker can stamp timestamps without touching the distributor's registry
// lock.
type WorkItem struct {
	ID           string
	Payload      any
	Workload     WorkloadType
	Priority     int // lower = more urgent; recorded, not yet scheduled on
	Size         int
	Dependencies []string
	CreatedAt    time.Time

	mu             sync.Mutex
	startedAt      *time.Time
	completedAt    *time.Time
	assignedWorker string
	result         any
	err            error
	retryCount     int
}

// NewWorkItem constructs a pending item. Dependencies are copied so the
// caller's slice stays its own.
func NewWorkItem(id string, payload any, workload WorkloadType, priority, size int, deps []string) *WorkItem {
	item := &WorkItem{
		ID:        id,
		Payload:   payload,
		Workload:  workload,
		Priority:  priority,
		Size:      size,
		CreatedAt: time.Now(),
	}
	if len(deps) > 0 {
		item.Dependencies = append([]string(nil), deps...)
	}
	return item
}

// MarkStarted records the executing worker and the start timestamp.
func (w *WorkItem) MarkStarted(workerID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := time.Now()
	w.startedAt = &now
	w.assignedWorker = workerID
}

// MarkCompleted records a successful outcome.
func (w *WorkItem) MarkCompleted(result any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := time.Now()
	w.completedAt = &now
	w.result = result
	w.err = nil
}

// MarkFailed records a failed attempt and consumes one unit of the retry
// budget.
func (w *WorkItem) MarkFailed(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := time.Now()
	w.completedAt = &now
	w.err = err
	w.retryCount++
}

// ResetForRetry returns the item to pending so it can be assigned again.
// The retry count is deliberately kept.
func (w *WorkItem) ResetForRetry() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.startedAt = nil
	w.completedAt = nil
	w.err = nil
}

// Status derives the lifecycle state from the timestamp/outcome fields.
func (w *WorkItem) Status() WorkStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch {
	case w.completedAt != nil && w.err != nil:
		return WorkStatusFailed
	case w.completedAt != nil:
		return WorkStatusCompleted
	case w.startedAt != nil:
		return WorkStatusRunning
	default:
		return WorkStatusPending
	}
}

// Result returns the outcome slots. Err is non-nil only for the latest
// failed attempt.
func (w *WorkItem) Result() (any, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.result, w.err
}

// RetryCount reports how many attempts have failed so far.
func (w *WorkItem) RetryCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.retryCount
}

// AssignedWorker reports the worker currently or last holding the item.
func (w *WorkItem) AssignedWorker() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.assignedWorker
}

// WorkSnapshot is a point-in-time copy of an item's state, safe to hand to
// callers.
type WorkSnapshot struct {
	ID             string       `json:"id"`
	Workload       WorkloadType `json:"workload"`
	Priority       int          `json:"priority"`
	Size           int          `json:"size"`
	Dependencies   []string     `json:"dependencies,omitempty"`
	Status         WorkStatus   `json:"status"`
	AssignedWorker string       `json:"assigned_worker,omitempty"`
	RetryCount     int          `json:"retry_count"`
	CreatedAt      time.Time    `json:"created_at"`
	StartedAt      *time.Time   `json:"started_at,omitempty"`
	CompletedAt    *time.Time   `json:"completed_at,omitempty"`
	Error          string       `json:"error,omitempty"`
}

// Snapshot copies the item's current state.
func (w *WorkItem) Snapshot() WorkSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	snap := WorkSnapshot{
		ID:             w.ID,
		Workload:       w.Workload,
		Priority:       w.Priority,
		Size:           w.Size,
		Dependencies:   append([]string(nil), w.Dependencies...),
		AssignedWorker: w.assignedWorker,
		RetryCount:     w.retryCount,
		CreatedAt:      w.CreatedAt,
	}
	if w.startedAt != nil {
		t := *w.startedAt
		snap.StartedAt = &t
	}
	if w.completedAt != nil {
		t := *w.completedAt
		snap.CompletedAt = &t
	}
	if w.err != nil {
		snap.Error = w.err.Error()
	}

	switch {
	case w.completedAt != nil && w.err != nil:
		snap.Status = WorkStatusFailed
	case w.completedAt != nil:
		snap.Status = WorkStatusCompleted
	case w.startedAt != nil:
		snap.Status = WorkStatusRunning
	default:
		snap.Status = WorkStatusPending
	}
	return snap
}
