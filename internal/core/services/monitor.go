package services

import (
	"context"
	"log/slog"
	"time"
)

// healthSource is the minimal interface the monitor needs from the
// distributor.
type healthSource interface {
	GetHealthStatus() HealthStatus
}

// HealthMonitor periodically inspects worker liveness and logs anything
// unhealthy. It is purely operational: it never acts on what it sees.
type HealthMonitor struct {
	logger   *slog.Logger
	source   healthSource
	interval time.Duration
}

func NewHealthMonitor(logger *slog.Logger, source healthSource, interval time.Duration) *HealthMonitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &HealthMonitor{
		logger:   logger,
		source:   source,
		interval: interval,
	}
}

// Run starts the monitor loop. Blocks until ctx is cancelled.
func (m *HealthMonitor) Run(ctx context.Context) error {
	m.logger.Info("health monitor started", "interval", m.interval)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("health monitor stopped")
			return nil
		case <-ticker.C:
			m.check()
		}
	}
}

func (m *HealthMonitor) check() {
	health := m.source.GetHealthStatus()
	if health.OverallHealthy {
		return
	}
	for _, w := range health.Workers {
		if w.Running {
			continue
		}
		m.logger.Warn("worker not running",
			"worker", w.ID,
			"queue_size", w.QueueSize,
			"processed", w.Processed,
			"errors", w.Errors)
	}
}
