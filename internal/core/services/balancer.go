package services

import (
	"math"
	"time"
)

// runBalancer recomputes load weights on a fixed cadence until Stop. The
// loop owns no state of its own; UpdateLoadBalancing does the bookkeeping
// and stays callable directly (tests, manual rebalance).
func (d *Distributor) runBalancer() {
	defer close(d.balancerDone)
	ticker := time.NewTicker(d.cfg.RebalanceInterval)
	defer ticker.Stop()

	d.logger.Debug("load balancer started", "interval", d.cfg.RebalanceInterval)
	for {
		select {
		case <-d.balancerStop:
			d.logger.Debug("load balancer stopped")
			return
		case <-ticker.C:
			d.UpdateLoadBalancing()
		}
	}
}

func sizeSpread(sizes []int) (min, max int, avg float64) {
	if len(sizes) == 0 {
		return 0, 0, 0
	}
	min, max = sizes[0], sizes[0]
	sum := 0
	for _, s := range sizes {
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
		sum += s
	}
	return min, max, float64(sum) / float64(len(sizes))
}

func stddev(sizes []int) float64 {
	if len(sizes) == 0 {
		return 0
	}
	_, _, mean := sizeSpread(sizes)
	var variance float64
	for _, s := range sizes {
		diff := float64(s) - mean
		variance += diff * diff
	}
	variance /= float64(len(sizes))
	return math.Sqrt(variance)
}
