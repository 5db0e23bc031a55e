package scheduler

import (
	"time"

	"github.com/invoicekits/invoicekits/internal/config"
)

// Config controls scheduler intervals and batch sizes.
type Config struct {
	RunInterval time.Duration
	BatchSize   int
	JobTimeout  time.Duration
	// StaleBatchAfter fails batches stuck in processing for longer.
	StaleBatchAfter time.Duration
	// ReminderOffsets are days relative to the due date; negative values
	// remind before the invoice is due.
	ReminderOffsets []int
	// EnabledJobs limits which jobs run. Empty runs every job.
	EnabledJobs []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:     time.Minute,
		BatchSize:       50,
		JobTimeout:      30 * time.Second,
		StaleBatchAfter: 30 * time.Minute,
		ReminderOffsets: []int{-3, -1, 0, 3, 7, 14},
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.StaleBatchAfter <= 0 {
		c.StaleBatchAfter = defaults.StaleBatchAfter
	}
	if len(c.ReminderOffsets) == 0 {
		c.ReminderOffsets = defaults.ReminderOffsets
	}
	return c
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval:     cfg.Scheduler.RunInterval,
		BatchSize:       cfg.Scheduler.BatchSize,
		StaleBatchAfter: cfg.Batch.StaleAfter,
	}.withDefaults()
}
