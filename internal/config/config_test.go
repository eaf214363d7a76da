package config

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, runtime.NumCPU(), cfg.NumWorkers)
	assert.Equal(t, 1000, cfg.ChunkSize)
	assert.True(t, cfg.EnableLoadBalancing)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, time.Duration(0), cfg.RetryDelay)
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero workers", func(c *Config) { c.NumWorkers = 0 }},
		{"negative workers", func(c *Config) { c.NumWorkers = -2 }},
		{"zero chunk size", func(c *Config) { c.ChunkSize = 0 }},
		{"negative retries", func(c *Config) { c.MaxRetries = -1 }},
		{"negative retry delay", func(c *Config) { c.RetryDelay = -time.Second }},
		{"zero rebalance interval", func(c *Config) { c.RebalanceInterval = 0 }},
		{"zero idle wait", func(c *Config) { c.IdleWait = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("TASKGRID_NUM_WORKERS", "6")
	t.Setenv("TASKGRID_CHUNK_SIZE", "250")
	t.Setenv("TASKGRID_LOAD_BALANCING", "false")
	t.Setenv("TASKGRID_MAX_RETRIES", "5")
	t.Setenv("TASKGRID_RETRY_DELAY", "75ms")

	cfg := FromEnv()
	assert.Equal(t, 6, cfg.NumWorkers)
	assert.Equal(t, 250, cfg.ChunkSize)
	assert.False(t, cfg.EnableLoadBalancing)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 75*time.Millisecond, cfg.RetryDelay)
}

func TestFromEnv_MalformedKeepsDefault(t *testing.T) {
	t.Setenv("TASKGRID_NUM_WORKERS", "plenty")
	t.Setenv("TASKGRID_RETRY_DELAY", "soon")

	cfg := FromEnv()
	assert.Equal(t, runtime.NumCPU(), cfg.NumWorkers)
	assert.Equal(t, time.Duration(0), cfg.RetryDelay)
}
