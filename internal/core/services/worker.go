package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mfbarbosa/taskgrid/internal/core/domain"
	"github.com/mfbarbosa/taskgrid/internal/core/ports"
)

// workCoordinator is the minimal distributor surface a worker needs: item
// lookup, dependency checking, and outcome reporting.
type workCoordinator interface {
	lookup(id string) (*domain.WorkItem, bool)
	unmetDependencies(item *domain.WorkItem) []string
	recordCompletion(item *domain.WorkItem)
	RequeueWork(item *domain.WorkItem)
	publish(e Event)
}

// Worker is one execution loop bound to exactly one queue. It pulls ids,
// resolves them through the coordinator's registry, runs the executor, and
// reports the outcome. Stop is cooperative: an in-flight execution is never
// interrupted, the loop only observes the stop request between items.
type Worker struct {
	logger   *slog.Logger
	id       string
	queue    *WorkQueue
	coord    workCoordinator
	exec     ports.Executor
	idleWait time.Duration

	running atomic.Bool
	stop    chan struct{}
	done    chan struct{}

	processed  atomic.Int64
	errorCount atomic.Int64
	busyNanos  atomic.Int64
}

func NewWorker(logger *slog.Logger, id string, queue *WorkQueue, coord workCoordinator, exec ports.Executor, idleWait time.Duration) *Worker {
	if idleWait <= 0 {
		idleWait = time.Second
	}
	return &Worker{
		logger:   logger.With("worker", id),
		id:       id,
		queue:    queue,
		coord:    coord,
		exec:     exec,
		idleWait: idleWait,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (w *Worker) ID() string { return w.id }

// Start launches the execution goroutine. ctx is handed to the executor for
// every item; cancelling it is the caller's way of bounding executions.
func (w *Worker) Start(ctx context.Context) {
	if !w.running.CompareAndSwap(false, true) {
		return
	}
	go w.loop(ctx)
}

// Stop clears the running flag and waits for the loop to exit, up to
// timeout. A long-running execution keeps running; only the loop boundary
// observes the stop.
func (w *Worker) Stop(timeout time.Duration) error {
	if !w.running.CompareAndSwap(true, false) {
		return nil
	}
	close(w.stop)
	select {
	case <-w.done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("worker %s did not stop within %s", w.id, timeout)
	}
}

// IsRunning reports liveness for health checks.
func (w *Worker) IsRunning() bool { return w.running.Load() }

// Processed is the number of successfully executed items.
func (w *Worker) Processed() int64 { return w.processed.Load() }

// Errors is the number of failed attempts, unmet dependencies included.
func (w *Worker) Errors() int64 { return w.errorCount.Load() }

// TotalBusy is the cumulative execution time of successful items.
func (w *Worker) TotalBusy() time.Duration { return time.Duration(w.busyNanos.Load()) }

// AvgExecTime is TotalBusy divided by Processed, zero before any success.
func (w *Worker) AvgExecTime() time.Duration {
	n := w.processed.Load()
	if n == 0 {
		return 0
	}
	return time.Duration(w.busyNanos.Load() / n)
}

func (w *Worker) loop(ctx context.Context) {
	defer close(w.done)
	w.logger.Debug("worker started")

	for {
		select {
		case <-w.stop:
			w.logger.Debug("worker stopped")
			return
		default:
		}

		id, ok := w.queue.PopPrimary()
		if !ok {
			id, ok = w.queue.PopSecondary()
		}
		if !ok {
			// Idle: block until fed, but wake periodically so a stop
			// request is observed within idleWait.
			select {
			case <-w.stop:
				w.logger.Debug("worker stopped")
				return
			case <-w.queue.Wake():
			case <-time.After(w.idleWait):
			}
			continue
		}

		w.process(ctx, id)
	}
}

func (w *Worker) process(ctx context.Context, id string) {
	item, ok := w.coord.lookup(id)
	if !ok {
		// An id with no registry entry means the registries and queues
		// disagree; log it loudly rather than crash the loop.
		w.logger.Error("queued id missing from registry", "item_id", id)
		return
	}

	item.MarkStarted(w.id)
	w.coord.publish(Event{
		ItemID:    item.ID,
		Type:      EventStarted,
		WorkerID:  w.id,
		Timestamp: time.Now(),
	})

	if missing := w.coord.unmetDependencies(item); len(missing) > 0 {
		// Unmet dependencies are handled like any execution failure and
		// consume a retry; the item is not deferred.
		err := fmt.Errorf("%w: waiting on [%s]", domain.ErrDependenciesNotMet, strings.Join(missing, ", "))
		w.fail(item, err)
		return
	}

	start := time.Now()
	result, err := w.execute(ctx, item)
	elapsed := time.Since(start)

	if err != nil {
		w.fail(item, err)
		return
	}

	item.MarkCompleted(result)
	w.processed.Add(1)
	w.busyNanos.Add(int64(elapsed))
	w.coord.recordCompletion(item)
}

// execute invokes the caller's executor, converting a panic into a plain
// execution failure so one bad payload cannot take the worker down.
func (w *Worker) execute(ctx context.Context, item *domain.WorkItem) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("executor panic: %v", r)
		}
	}()
	return w.exec.Execute(ctx, item.Payload, item.Workload, item.Size)
}

func (w *Worker) fail(item *domain.WorkItem, err error) {
	w.logger.Warn("work item failed", "item_id", item.ID, "attempt", item.RetryCount()+1, "error", err)
	item.MarkFailed(err)
	w.errorCount.Add(1)
	w.coord.RequeueWork(item)
}
