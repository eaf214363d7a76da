package services

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"

	"github.com/mfbarbosa/taskgrid/internal/config"
	"github.com/mfbarbosa/taskgrid/internal/core/domain"
	"github.com/mfbarbosa/taskgrid/internal/core/ports"
)

const waitPollInterval = 100 * time.Millisecond

// Distributor orchestrates the engine: it accepts submissions, assigns each
// item to a per-worker queue, owns the authoritative item registries,
// handles retries, and answers statistics and health queries.
//
// The registry mutex is only ever held for short bookkeeping; it is never
// held across an executor call.
type Distributor struct {
	logger *slog.Logger
	cfg    config.Config
	exec   ports.Executor
	bus    *EventBus // optional; nil disables event publishing

	queues  []*WorkQueue
	workers []*Worker

	mu          sync.Mutex
	items       map[string]*domain.WorkItem
	completed   map[string]*domain.WorkItem
	failed      map[string]*domain.WorkItem
	submitted   int64
	completions int64
	failures    int64
	// stolen counts cross-worker transfers on the secondary lanes. Nothing
	// populates a peer's secondary lane today, so it stays zero.
	stolen int64

	// Rolling per-worker execution-time history (seconds, last 10 samples)
	// and the derived load weights, both maintained by UpdateLoadBalancing.
	history [][]float64
	weights []float64

	started      atomic.Bool
	balancerStop chan struct{}
	balancerDone chan struct{}
	workerCtx    context.CancelFunc
}

// NewDistributor validates cfg and builds the distributor with its queues.
// Work may be submitted before Start; it sits queued until workers run.
// bus may be nil when lifecycle events are not wanted.
func NewDistributor(logger *slog.Logger, cfg config.Config, exec ports.Executor, bus *EventBus) (*Distributor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if exec == nil {
		return nil, errors.New("executor must not be nil")
	}

	d := &Distributor{
		logger:    logger,
		cfg:       cfg,
		exec:      exec,
		bus:       bus,
		queues:    make([]*WorkQueue, cfg.NumWorkers),
		items:     make(map[string]*domain.WorkItem),
		completed: make(map[string]*domain.WorkItem),
		failed:    make(map[string]*domain.WorkItem),
		history:   make([][]float64, cfg.NumWorkers),
		weights:   make([]float64, cfg.NumWorkers),
	}
	for i := range d.queues {
		d.queues[i] = NewWorkQueue()
		d.weights[i] = 1.0
	}
	return d, nil
}

// Start constructs and launches one worker per queue, plus the rebalance
// loop when load balancing is enabled. Idempotent while running.
func (d *Distributor) Start(ctx context.Context) error {
	if !d.started.CompareAndSwap(false, true) {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	d.workerCtx = cancel

	d.workers = make([]*Worker, d.cfg.NumWorkers)
	for i := range d.workers {
		id := fmt.Sprintf("worker-%d", i)
		d.workers[i] = NewWorker(d.logger, id, d.queues[i], d, d.exec, d.cfg.IdleWait)
		d.workers[i].Start(ctx)
	}

	if d.cfg.EnableLoadBalancing {
		d.balancerStop = make(chan struct{})
		d.balancerDone = make(chan struct{})
		go d.runBalancer()
	}

	d.logger.Info("distributor started",
		"workers", d.cfg.NumWorkers,
		"load_balancing", d.cfg.EnableLoadBalancing,
		"max_retries", d.cfg.MaxRetries)
	return nil
}

// Stop cooperatively stops every worker within timeout. In-flight
// executions finish; queued items stay queued.
func (d *Distributor) Stop(timeout time.Duration) error {
	if !d.started.CompareAndSwap(true, false) {
		return nil
	}

	if d.balancerStop != nil {
		close(d.balancerStop)
		<-d.balancerDone
		d.balancerStop = nil
	}
	if d.workerCtx != nil {
		defer d.workerCtx()
	}

	deadline := time.Now().Add(timeout)
	var errs []error
	for _, w := range d.workers {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			remaining = time.Millisecond
		}
		if err := w.Stop(remaining); err != nil {
			errs = append(errs, err)
		}
	}

	d.logger.Info("distributor stopped")
	return errors.Join(errs...)
}

// SubmitWork registers a new item and assigns it to exactly one queue.
// It returns immediately; completion is observed via polling or
// WaitForCompletion. An empty id gets a generated one.
func (d *Distributor) SubmitWork(id string, payload any, workload domain.WorkloadType, priority, size int, deps []string) (*domain.WorkItem, error) {
	if id == "" {
		id = uuid.New().String()
	}

	item := domain.NewWorkItem(id, payload, workload, priority, size, deps)

	d.mu.Lock()
	if _, exists := d.items[id]; exists {
		d.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", domain.ErrDuplicateWork, id)
	}
	d.items[id] = item
	d.submitted++
	d.mu.Unlock()

	d.publish(Event{ItemID: id, Type: EventSubmitted, Timestamp: time.Now()})
	d.assign(item)
	return item, nil
}

// SubmitBatch splits data into contiguous chunks of ChunkSize elements (the
// last chunk may be shorter) and submits one item per chunk, named
// "<batchID>_chunk_<n>" in order. Concatenating the chunk payloads in
// returned order reconstructs data exactly.
func (d *Distributor) SubmitBatch(batchID string, data []any, workload domain.WorkloadType, priority int) ([]*domain.WorkItem, error) {
	if batchID == "" {
		return nil, errors.New("batch id must not be empty")
	}
	if len(data) == 0 {
		return nil, domain.ErrEmptyBatch
	}

	chunkSize := d.cfg.ChunkSize
	items := make([]*domain.WorkItem, 0, (len(data)+chunkSize-1)/chunkSize)
	for i, n := 0, 0; i < len(data); i, n = i+chunkSize, n+1 {
		end := i + chunkSize
		if end > len(data) {
			end = len(data)
		}
		chunk := data[i:end]

		id := fmt.Sprintf("%s_chunk_%d", batchID, n)
		item, err := d.SubmitWork(id, chunk, workload, priority, len(chunk), nil)
		if err != nil {
			return items, fmt.Errorf("batch %q chunk %d: %w", batchID, n, err)
		}
		items = append(items, item)
	}

	d.logger.Info("batch submitted", "batch_id", batchID, "elements", len(data), "chunks", len(items))
	return items, nil
}

// RequeueWork runs after a failed attempt. Within budget the item is reset
// to pending and sent through the regular assignment path, so it may land
// on a different queue; past the budget it is recorded permanently failed.
func (d *Distributor) RequeueWork(item *domain.WorkItem) {
	attempts := item.RetryCount()
	if attempts > d.cfg.MaxRetries {
		_, execErr := item.Result()
		errMsg := ""
		if execErr != nil {
			errMsg = execErr.Error()
		}

		d.mu.Lock()
		d.failed[item.ID] = item
		d.failures++
		d.mu.Unlock()

		d.logger.Error("work item permanently failed",
			"item_id", item.ID, "attempts", attempts, "error", errMsg)
		d.publish(Event{
			ItemID:    item.ID,
			Type:      EventFailed,
			WorkerID:  item.AssignedWorker(),
			Attempt:   attempts,
			Error:     errMsg,
			Timestamp: time.Now(),
		})
		return
	}

	d.publish(Event{
		ItemID:    item.ID,
		Type:      EventRetried,
		WorkerID:  item.AssignedWorker(),
		Attempt:   attempts,
		Timestamp: time.Now(),
	})
	item.ResetForRetry()

	if delay := d.retryDelay(attempts); delay > 0 {
		time.AfterFunc(delay, func() { d.assign(item) })
		return
	}
	d.assign(item)
}

// retryDelay derives the pacing for the next attempt from the configured
// exponential policy. Zero means requeue immediately, the engine's default.
func (d *Distributor) retryDelay(attempts int) time.Duration {
	if d.cfg.RetryDelay <= 0 {
		return 0
	}

	multiplier := d.cfg.RetryMultiplier
	if multiplier <= 1 {
		multiplier = 2.0
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = d.cfg.RetryDelay
	policy.RandomizationFactor = 0
	policy.Multiplier = multiplier
	policy.MaxElapsedTime = 0
	if d.cfg.RetryDelayMax > 0 {
		policy.MaxInterval = d.cfg.RetryDelayMax
	}
	policy.Reset()

	var delay time.Duration
	for i := 0; i < attempts; i++ {
		delay = policy.NextBackOff()
	}
	return delay
}

func (d *Distributor) assign(item *domain.WorkItem) {
	var idx int
	if d.cfg.EnableLoadBalancing {
		idx = d.selectBestQueue()
	} else {
		idx = d.hashIndex(item.ID)
	}
	d.queues[idx].PushPrimary(item.ID)
}

// selectBestQueue picks the queue minimizing depth * weight / lastAvgTime.
// Both weight and lastAvgTime default to 1.0 until rebalancing has observed
// execution history. Ties resolve to the lowest index.
func (d *Distributor) selectBestQueue() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	best := 0
	bestScore := -1.0
	for i, q := range d.queues {
		lastAvg := 1.0
		if samples := d.history[i]; len(samples) > 0 {
			lastAvg = samples[len(samples)-1]
		}
		if lastAvg <= 0 {
			lastAvg = 1.0
		}

		score := float64(q.Size()) * d.weights[i] / lastAvg
		if bestScore < 0 || score < bestScore {
			best = i
			bestScore = score
		}
	}
	return best
}

func (d *Distributor) hashIndex(id string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return int(h.Sum32() % uint32(len(d.queues)))
}

// UpdateLoadBalancing folds each worker's latest average execution time
// into its rolling history (last holds at most historyLimit samples) and
// recomputes the load weight 1/(1+avg): fast workers stay close to 1,
// slow workers sink toward 0.
func (d *Distributor) UpdateLoadBalancing() {
	if len(d.workers) == 0 {
		return
	}

	const historyLimit = 10

	for i, w := range d.workers {
		if w.Processed() == 0 {
			continue
		}
		avg := w.AvgExecTime().Seconds()

		d.mu.Lock()
		d.history[i] = append(d.history[i], avg)
		if len(d.history[i]) > historyLimit {
			d.history[i] = d.history[i][len(d.history[i])-historyLimit:]
		}
		d.weights[i] = 1.0 / (1.0 + avg)
		d.mu.Unlock()
	}
}

// IsWorkCompleted reports membership in the completed registry.
func (d *Distributor) IsWorkCompleted(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.completed[id]
	return ok
}

// GetWorkResult returns the result of a completed item.
func (d *Distributor) GetWorkResult(id string) (any, error) {
	d.mu.Lock()
	item, ok := d.completed[id]
	d.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q not completed", domain.ErrWorkNotFound, id)
	}
	result, _ := item.Result()
	return result, nil
}

// GetWorkSnapshot returns the current state of any registered item.
func (d *Distributor) GetWorkSnapshot(id string) (domain.WorkSnapshot, error) {
	d.mu.Lock()
	item, ok := d.items[id]
	d.mu.Unlock()
	if !ok {
		return domain.WorkSnapshot{}, fmt.Errorf("%w: %q", domain.ErrWorkNotFound, id)
	}
	return item.Snapshot(), nil
}

// FailedWork lists the permanently failed items.
func (d *Distributor) FailedWork() []domain.WorkSnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]domain.WorkSnapshot, 0, len(d.failed))
	for _, item := range d.failed {
		out = append(out, item.Snapshot())
	}
	return out
}

// WaitForCompletion polls roughly every 100ms until every submitted item is
// either completed or permanently failed, or timeout elapses.
func (d *Distributor) WaitForCompletion(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if d.outstanding() == 0 {
			return true
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		if remaining > waitPollInterval {
			remaining = waitPollInterval
		}
		time.Sleep(remaining)
	}
}

func (d *Distributor) outstanding() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.submitted - d.completions - d.failures
}

// GetStatistics snapshots the counters, queue depth distribution and
// per-worker detail.
func (d *Distributor) GetStatistics() Statistics {
	d.mu.Lock()
	stats := Statistics{
		TotalSubmitted:       d.submitted,
		TotalCompleted:       d.completions,
		TotalFailed:          d.failures,
		TotalStolen:          d.stolen,
		LoadBalancingEnabled: d.cfg.EnableLoadBalancing,
	}
	weights := append([]float64(nil), d.weights...)
	d.mu.Unlock()

	sizes := make([]int, len(d.queues))
	for i, q := range d.queues {
		sizes[i] = q.Size()
	}
	stats.QueueSizes = sizes
	stats.MinQueueSize, stats.MaxQueueSize, stats.AvgQueueSize = sizeSpread(sizes)
	if stats.LoadBalancingEnabled {
		stats.LoadBalanceScore = 1.0 / (1.0 + stddev(sizes))
	}

	var totalBusy time.Duration
	var totalProcessed int64
	for i, w := range d.workers {
		ws := WorkerStats{
			ID:          w.ID(),
			Running:     w.IsRunning(),
			Processed:   w.Processed(),
			Errors:      w.Errors(),
			TotalBusy:   w.TotalBusy(),
			AvgExecTime: w.AvgExecTime(),
			QueueSize:   sizes[i],
			LoadWeight:  weights[i],
		}
		totalBusy += ws.TotalBusy
		totalProcessed += ws.Processed
		stats.Workers = append(stats.Workers, ws)
	}
	if totalProcessed > 0 {
		stats.AvgExecTime = totalBusy / time.Duration(totalProcessed)
	}
	return stats
}

// GetHealthStatus snapshots worker liveness. Overall health requires every
// worker to be running, so it is false before Start and after Stop.
func (d *Distributor) GetHealthStatus() HealthStatus {
	health := HealthStatus{OverallHealthy: len(d.workers) > 0}
	for i, w := range d.workers {
		wh := WorkerHealth{
			ID:        w.ID(),
			Running:   w.IsRunning(),
			QueueSize: d.queues[i].Size(),
			Processed: w.Processed(),
			Errors:    w.Errors(),
		}
		health.OverallHealthy = health.OverallHealthy && wh.Running
		health.Workers = append(health.Workers, wh)
	}
	return health
}

// lookup resolves a queued id against the registry.
func (d *Distributor) lookup(id string) (*domain.WorkItem, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	item, ok := d.items[id]
	return item, ok
}

// unmetDependencies returns the dependency ids not yet in the completed
// registry.
func (d *Distributor) unmetDependencies(item *domain.WorkItem) []string {
	if len(item.Dependencies) == 0 {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	var missing []string
	for _, dep := range item.Dependencies {
		if _, ok := d.completed[dep]; !ok {
			missing = append(missing, dep)
		}
	}
	return missing
}

// recordCompletion moves a successfully executed item into the completed
// registry.
func (d *Distributor) recordCompletion(item *domain.WorkItem) {
	d.mu.Lock()
	d.completed[item.ID] = item
	d.completions++
	d.mu.Unlock()

	d.publish(Event{
		ItemID:    item.ID,
		Type:      EventCompleted,
		WorkerID:  item.AssignedWorker(),
		Timestamp: time.Now(),
	})
}

func (d *Distributor) publish(e Event) {
	if d.bus == nil {
		return
	}
	d.bus.Publish(e)
}
