package services

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfbarbosa/taskgrid/internal/core/domain"
	"github.com/mfbarbosa/taskgrid/internal/core/ports"
)

func TestWorker_PanicBecomesFailure(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	exec := ports.ExecutorFunc(func(ctx context.Context, payload any, workload domain.WorkloadType, size int) (any, error) {
		panic("executor blew up")
	})

	cfg := testConfig(1)
	cfg.MaxRetries = 0
	dist, err := NewDistributor(logger, cfg, exec, nil)
	require.NoError(t, err)
	require.NoError(t, dist.Start(context.Background()))
	defer dist.Stop(time.Second)

	_, err = dist.SubmitWork("panicky", nil, domain.WorkloadCPUBound, 0, 1, nil)
	require.NoError(t, err)

	require.True(t, dist.WaitForCompletion(5*time.Second))

	// The panic was contained: the item failed, the worker survived.
	failed := dist.FailedWork()
	require.Len(t, failed, 1)
	assert.Contains(t, failed[0].Error, "executor panic")
	assert.True(t, dist.GetHealthStatus().OverallHealthy)
}

func TestWorker_UnmetDependencyFailsWithoutDeferral(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := testConfig(1)
	cfg.MaxRetries = 0
	dist, err := NewDistributor(logger, cfg, noopExecutor(), nil)
	require.NoError(t, err)
	require.NoError(t, dist.Start(context.Background()))
	defer dist.Stop(time.Second)

	// The dependency id is never submitted, so the single attempt fails
	// on the dependency check and the retry budget of zero is spent.
	_, err = dist.SubmitWork("orphan", nil, domain.WorkloadCPUBound, 0, 1, []string{"never-submitted"})
	require.NoError(t, err)

	require.True(t, dist.WaitForCompletion(5*time.Second))

	failed := dist.FailedWork()
	require.Len(t, failed, 1)
	assert.Equal(t, "orphan", failed[0].ID)
	assert.Contains(t, failed[0].Error, "dependencies not satisfied")
	assert.Contains(t, failed[0].Error, "never-submitted")

	stats := dist.GetStatistics()
	assert.Equal(t, int64(1), stats.Workers[0].Errors)
	assert.Equal(t, int64(0), stats.Workers[0].Processed)
}

func TestWorker_StopTimesOutOnLongExecution(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	release := make(chan struct{})
	exec := ports.ExecutorFunc(func(ctx context.Context, payload any, workload domain.WorkloadType, size int) (any, error) {
		<-release
		return payload, nil
	})

	dist, err := NewDistributor(logger, testConfig(1), exec, nil)
	require.NoError(t, err)
	require.NoError(t, dist.Start(context.Background()))

	_, err = dist.SubmitWork("blocker", "v", domain.WorkloadCPUBound, 0, 1, nil)
	require.NoError(t, err)

	// Give the worker time to pick the item up, then ask for a stop it
	// cannot honor while the execution is in flight.
	time.Sleep(100 * time.Millisecond)
	err = dist.Stop(50 * time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not stop")

	// Cooperative cancellation: once the execution returns, the loop exits
	// and the in-flight item still completes.
	close(release)
	assert.Eventually(t, func() bool {
		return dist.IsWorkCompleted("blocker")
	}, 2*time.Second, 20*time.Millisecond)
}

func TestWorker_StatsAccumulate(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	exec := ports.ExecutorFunc(func(ctx context.Context, payload any, workload domain.WorkloadType, size int) (any, error) {
		time.Sleep(10 * time.Millisecond)
		return payload, nil
	})

	dist, err := NewDistributor(logger, testConfig(1), exec, nil)
	require.NoError(t, err)
	require.NoError(t, dist.Start(context.Background()))
	defer dist.Stop(time.Second)

	for i := 0; i < 3; i++ {
		_, err := dist.SubmitWork("", i, domain.WorkloadCPUBound, 0, 1, nil)
		require.NoError(t, err)
	}
	require.True(t, dist.WaitForCompletion(5*time.Second))

	w := dist.workers[0]
	assert.Equal(t, int64(3), w.Processed())
	assert.Equal(t, int64(0), w.Errors())
	assert.GreaterOrEqual(t, w.TotalBusy(), 30*time.Millisecond)
	assert.GreaterOrEqual(t, w.AvgExecTime(), 10*time.Millisecond)
}
