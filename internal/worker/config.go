package worker

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"contracts-backend/internal/analysis"
)

// Config holds the configuration for the background analysis worker.
type Config struct {
	// Concurrency is the number of worker goroutines claiming jobs in
	// parallel. Default: 2
	Concurrency int

	// PollInterval is how often each idle worker checks for new jobs.
	// Default: 5 seconds
	PollInterval time.Duration

	// JobTimeout is the maximum time a single analysis is allowed to run.
	// When exceeded, the job context is canceled and the attempt fails.
	// Default: 5 minutes
	JobTimeout time.Duration

	// LeaseDuration is how long a claimed job stays invisible to other
	// workers. Must exceed JobTimeout so a live attempt is never
	// re-claimed. Default: 15 minutes
	LeaseDuration time.Duration

	// ShutdownTimeout is how long Stop waits for in-flight jobs before
	// giving up. Default: 30 seconds
	ShutdownTimeout time.Duration

	// SweepInterval is how often the stuck-job sweep runs.
	// Default: 1 minute
	SweepInterval time.Duration

	// StuckThreshold defines how old a live job must be before the sweep
	// force-fails it. Must exceed JobTimeout so the sweep never kills an
	// attempt that is still legitimately running. Default: 10 minutes
	StuckThreshold time.Duration
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Concurrency:     2,
		PollInterval:    5 * time.Second,
		JobTimeout:      5 * time.Minute,
		LeaseDuration:   15 * time.Minute,
		ShutdownTimeout: 30 * time.Second,
		SweepInterval:   time.Minute,
		StuckThreshold:  analysis.DefaultStuckThreshold,
	}
}

// ConfigFromEnv returns DefaultConfig with WORKER_* overrides applied.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	if v, err := strconv.Atoi(os.Getenv("WORKER_CONCURRENCY")); err == nil && v > 0 {
		cfg.Concurrency = v
	}
	if d, err := time.ParseDuration(os.Getenv("WORKER_POLL_INTERVAL")); err == nil {
		cfg.PollInterval = d
	}
	if d, err := time.ParseDuration(os.Getenv("WORKER_JOB_TIMEOUT")); err == nil {
		cfg.JobTimeout = d
	}
	if d, err := time.ParseDuration(os.Getenv("WORKER_LEASE_DURATION")); err == nil {
		cfg.LeaseDuration = d
	}
	if d, err := time.ParseDuration(os.Getenv("WORKER_STUCK_THRESHOLD")); err == nil {
		cfg.StuckThreshold = d
	}
	return cfg
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.Concurrency > 100 {
		return fmt.Errorf("concurrency too high (max 100), got %d", c.Concurrency)
	}
	if c.PollInterval < 100*time.Millisecond {
		return fmt.Errorf("poll interval must be at least 100ms, got %v", c.PollInterval)
	}
	if c.JobTimeout < time.Second {
		return fmt.Errorf("job timeout must be at least 1 second, got %v", c.JobTimeout)
	}
	if c.LeaseDuration <= c.JobTimeout {
		return fmt.Errorf("lease duration %v must exceed job timeout %v", c.LeaseDuration, c.JobTimeout)
	}
	if c.ShutdownTimeout < time.Second {
		return fmt.Errorf("shutdown timeout must be at least 1 second, got %v", c.ShutdownTimeout)
	}
	if c.SweepInterval < time.Second {
		return fmt.Errorf("sweep interval must be at least 1 second, got %v", c.SweepInterval)
	}
	if c.StuckThreshold < time.Minute {
		return fmt.Errorf("stuck threshold must be at least 1 minute, got %v", c.StuckThreshold)
	}
	if c.StuckThreshold <= c.JobTimeout {
		return fmt.Errorf("stuck threshold %v must exceed job timeout %v", c.StuckThreshold, c.JobTimeout)
	}
	return nil
}
