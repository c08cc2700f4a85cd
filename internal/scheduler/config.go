package scheduler

import (
	"strings"
	"time"

	appconfig "github.com/rentfold/rentfold/internal/config"
)

// Config controls scheduler intervals and job selection.
type Config struct {
	RunInterval time.Duration
	JobTimeout  time.Duration
	// EnabledJobs is an allowlist of job names. Empty enables every job.
	EnabledJobs []string
	// PendingRecheckAfter is how old a pending non-bitcoin payment must be
	// before the reconcile job re-verifies it against the gateway.
	PendingRecheckAfter time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval:         time.Minute,
		JobTimeout:          30 * time.Second,
		PendingRecheckAfter: 15 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.PendingRecheckAfter <= 0 {
		c.PendingRecheckAfter = defaults.PendingRecheckAfter
	}
	return c
}

func ProvideConfig(cfg appconfig.Config) Config {
	out := DefaultConfig()
	if cfg.SchedulerRunIntervalSec > 0 {
		out.RunInterval = time.Duration(cfg.SchedulerRunIntervalSec) * time.Second
	}
	if cfg.PendingPaymentRecheckMin > 0 {
		out.PendingRecheckAfter = time.Duration(cfg.PendingPaymentRecheckMin) * time.Minute
	}
	if trimmed := strings.TrimSpace(cfg.SchedulerEnabledJobs); trimmed != "" {
		for _, name := range strings.Split(trimmed, ",") {
			if name = strings.TrimSpace(name); name != "" {
				out.EnabledJobs = append(out.EnabledJobs, name)
			}
		}
	}
	return out
}
