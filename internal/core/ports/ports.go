package ports

import (
	"context"

	"github.com/mfbarbosa/taskgrid/internal/core/domain"
)

// Executor runs one unit of work. Implementations are invoked concurrently
// from every worker goroutine and must not rely on implicit shared state.
type Executor interface {
	Execute(ctx context.Context, payload any, workload domain.WorkloadType, size int) (any, error)
}

// ExecutorFunc adapts a plain function to the Executor interface.
type ExecutorFunc func(ctx context.Context, payload any, workload domain.WorkloadType, size int) (any, error)

func (f ExecutorFunc) Execute(ctx context.Context, payload any, workload domain.WorkloadType, size int) (any, error) {
	return f(ctx, payload, workload, size)
}

// CapacityAdvisor recommends a worker count from host topology. The engine
// consults it once, at construction time, and never re-queries.
type CapacityAdvisor interface {
	RecommendWorkers() int
}

// CapacityAdvisorFunc adapts a plain function to CapacityAdvisor.
type CapacityAdvisorFunc func() int

func (f CapacityAdvisorFunc) RecommendWorkers() int { return f() }
