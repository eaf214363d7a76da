// Package config holds the engine's runtime configuration and its
// environment-variable loading.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"
)

// Config controls the work distributor. Zero values are replaced by
// defaults in Default(); Validate rejects values the engine cannot run with.
type Config struct {
	// NumWorkers is the number of worker goroutines and queues.
	NumWorkers int `json:"num_workers"`

	// ChunkSize is the batching granularity of SubmitBatch.
	ChunkSize int `json:"chunk_size"`

	// EnableLoadBalancing switches queue assignment between the scoring
	// function and plain id hashing.
	EnableLoadBalancing bool `json:"enable_load_balancing"`

	// MaxRetries is the retry budget per work item beyond the first attempt.
	MaxRetries int `json:"max_retries"`

	// RetryDelay, when positive, paces re-queued failures with exponential
	// backoff starting at this interval. Zero keeps retries immediate.
	RetryDelay time.Duration `json:"retry_delay"`

	// RetryDelayMax caps the backoff interval. Zero means no cap.
	RetryDelayMax time.Duration `json:"retry_delay_max"`

	// RetryMultiplier grows the backoff each attempt. Values <= 1 fall back
	// to 2.0.
	RetryMultiplier float64 `json:"retry_multiplier"`

	// RebalanceInterval is how often load weights are recomputed while load
	// balancing is enabled.
	RebalanceInterval time.Duration `json:"rebalance_interval"`

	// IdleWait bounds how long an idle worker blocks before re-checking its
	// stop flag.
	IdleWait time.Duration `json:"idle_wait"`
}

// Default returns the engine defaults: one worker per host core, chunks of
// 1000, load balancing on, three retries.
func Default() Config {
	return Config{
		NumWorkers:          runtime.NumCPU(),
		ChunkSize:           1000,
		EnableLoadBalancing: true,
		MaxRetries:          3,
		RetryMultiplier:     2.0,
		RebalanceInterval:   time.Second,
		IdleWait:            time.Second,
	}
}

// FromEnv builds a Config from TASKGRID_* environment variables on top of
// the defaults. Unset or malformed variables keep the default.
func FromEnv() Config {
	cfg := Default()
	if v, ok := envInt("TASKGRID_NUM_WORKERS"); ok {
		cfg.NumWorkers = v
	}
	if v, ok := envInt("TASKGRID_CHUNK_SIZE"); ok {
		cfg.ChunkSize = v
	}
	if v, ok := envBool("TASKGRID_LOAD_BALANCING"); ok {
		cfg.EnableLoadBalancing = v
	}
	if v, ok := envInt("TASKGRID_MAX_RETRIES"); ok {
		cfg.MaxRetries = v
	}
	if v, ok := envDuration("TASKGRID_RETRY_DELAY"); ok {
		cfg.RetryDelay = v
	}
	if v, ok := envDuration("TASKGRID_RETRY_DELAY_MAX"); ok {
		cfg.RetryDelayMax = v
	}
	if v, ok := envDuration("TASKGRID_REBALANCE_INTERVAL"); ok {
		cfg.RebalanceInterval = v
	}
	return cfg
}

// Validate fails fast on configurations the distributor cannot honor.
func (c Config) Validate() error {
	if c.NumWorkers <= 0 {
		return fmt.Errorf("num_workers must be positive, got %d", c.NumWorkers)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.ChunkSize)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative, got %d", c.MaxRetries)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("retry_delay must not be negative, got %s", c.RetryDelay)
	}
	if c.RebalanceInterval <= 0 {
		return fmt.Errorf("rebalance_interval must be positive, got %s", c.RebalanceInterval)
	}
	if c.IdleWait <= 0 {
		return fmt.Errorf("idle_wait must be positive, got %s", c.IdleWait)
	}
	return nil
}

func envInt(key string) (int, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func envBool(key string) (bool, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

func envDuration(key string) (time.Duration, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}
