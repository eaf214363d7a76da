package services

import "time"

// WorkerStats is the per-worker slice of a statistics snapshot.
type WorkerStats struct {
	ID          string        `json:"id"`
	Running     bool          `json:"running"`
	Processed   int64         `json:"processed"`
	Errors      int64         `json:"errors"`
	TotalBusy   time.Duration `json:"total_busy"`
	AvgExecTime time.Duration `json:"avg_exec_time"`
	QueueSize   int           `json:"queue_size"`
	LoadWeight  float64       `json:"load_weight"`
}

// Statistics is an aggregate snapshot of the distributor.
type Statistics struct {
	TotalSubmitted int64 `json:"total_submitted"`
	TotalCompleted int64 `json:"total_completed"`
	TotalFailed    int64 `json:"total_failed"`
	TotalStolen    int64 `json:"total_stolen"`

	AvgExecTime time.Duration `json:"avg_exec_time"`

	QueueSizes   []int   `json:"queue_sizes"`
	MinQueueSize int     `json:"min_queue_size"`
	MaxQueueSize int     `json:"max_queue_size"`
	AvgQueueSize float64 `json:"avg_queue_size"`

	// LoadBalanceScore is 1/(1+stddev(queue sizes)); higher means more even.
	// Only populated while load balancing is enabled.
	LoadBalancingEnabled bool    `json:"load_balancing_enabled"`
	LoadBalanceScore     float64 `json:"load_balance_score,omitempty"`

	Workers []WorkerStats `json:"workers"`
}

// WorkerHealth is one worker's liveness snapshot.
type WorkerHealth struct {
	ID        string `json:"id"`
	Running   bool   `json:"running"`
	QueueSize int    `json:"queue_size"`
	Processed int64  `json:"processed"`
	Errors    int64  `json:"errors"`
}

// HealthStatus aggregates worker liveness. OverallHealthy is the AND of all
// workers' running flags, false before Start and after Stop.
type HealthStatus struct {
	OverallHealthy bool           `json:"overall_healthy"`
	Workers        []WorkerHealth `json:"workers"`
}
