package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"go.uber.org/automaxprocs/maxprocs"
	"golang.org/x/sync/errgroup"

	"github.com/mfbarbosa/taskgrid/internal/config"
	"github.com/mfbarbosa/taskgrid/internal/core/domain"
	"github.com/mfbarbosa/taskgrid/internal/core/ports"
	"github.com/mfbarbosa/taskgrid/internal/core/services"
)

func main() {
	_, _ = maxprocs.Set()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger.Info("starting taskgrid demo")

	if err := run(logger); err != nil {
		logger.Error("demo failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		logger.Info("shutting down")
		cancel()
	}()

	cfg := config.FromEnv()
	if os.Getenv("TASKGRID_NUM_WORKERS") == "" {
		advisor := ports.CapacityAdvisorFunc(runtime.NumCPU)
		cfg.NumWorkers = advisor.RecommendWorkers()
	}

	bus := services.NewEventBus(logger)
	dist, err := services.NewDistributor(logger, cfg, ports.ExecutorFunc(sumChunk), bus)
	if err != nil {
		return fmt.Errorf("failed to build distributor: %w", err)
	}

	if err := dist.Start(ctx); err != nil {
		return fmt.Errorf("failed to start distributor: %w", err)
	}
	defer func() {
		if err := dist.Stop(5 * time.Second); err != nil {
			logger.Error("stop incomplete", "error", err)
		}
	}()

	monitor := services.NewHealthMonitor(logger, dist, 2*time.Second)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return monitor.Run(gctx) })
	g.Go(func() error {
		defer cancel()
		return demoBatch(logger, dist)
	})
	return g.Wait()
}

// demoBatch pushes a batch of integers through the engine and reports the
// aggregate statistics.
func demoBatch(logger *slog.Logger, dist *services.Distributor) error {
	const elements = 10_000

	data := make([]any, elements)
	for i := range data {
		data[i] = i
	}

	items, err := dist.SubmitBatch("demo", data, domain.WorkloadCPUBound, 0)
	if err != nil {
		return fmt.Errorf("batch submission failed: %w", err)
	}

	if !dist.WaitForCompletion(30 * time.Second) {
		return fmt.Errorf("batch did not complete in time")
	}

	var total int
	for _, item := range items {
		result, err := dist.GetWorkResult(item.ID)
		if err != nil {
			return err
		}
		total += result.(int)
	}

	stats := dist.GetStatistics()
	logger.Info("batch finished",
		"chunks", len(items),
		"sum", total,
		"completed", stats.TotalCompleted,
		"failed", stats.TotalFailed,
		"avg_exec_time", stats.AvgExecTime.String(),
		"load_balance_score", stats.LoadBalanceScore)

	health := dist.GetHealthStatus()
	logger.Info("health", "overall_healthy", health.OverallHealthy, "workers", len(health.Workers))
	return nil
}

// sumChunk is the demo executor: it sums a chunk of ints, pretending each
// element costs a little work.
func sumChunk(ctx context.Context, payload any, workload domain.WorkloadType, size int) (any, error) {
	chunk, ok := payload.([]any)
	if !ok {
		return nil, fmt.Errorf("unexpected payload type %T", payload)
	}

	sum := 0
	for _, v := range chunk {
		n, ok := v.(int)
		if !ok {
			return nil, fmt.Errorf("unexpected element type %T", v)
		}
		sum += n
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(time.Duration(size) * 10 * time.Microsecond):
	}
	return sum, nil
}
