// ABOUTME: Configuration validation with per-section error aggregation
// ABOUTME: Runs after defaults, so zero values have already been backfilled
package config

import (
	"errors"
	"fmt"
)

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("server: %w", err))
	}
	if err := c.Sync.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("sync: %w", err))
	}
	if err := c.Calibration.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("calibration: %w", err))
	}
	if err := c.Events.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("events: %w", err))
	}

	return errors.Join(errs...)
}

// Validate checks ServerConfig for errors.
func (c *ServerConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.HeartbeatMS < 1 {
		return errors.New("heartbeat_ms must be positive")
	}
	return nil
}

// Validate checks SyncConfig for errors.
func (c *SyncConfig) Validate() error {
	if c.ToleranceMS < 1 {
		return errors.New("tolerance_ms must be positive")
	}
	if c.MinResyncIntervalMS < 1 {
		return errors.New("min_resync_interval_ms must be positive")
	}
	if c.MonitorPeriodMS < 1 {
		return errors.New("monitor_period_ms must be positive")
	}
	if c.CommandTimeoutMS < 1 {
		return errors.New("command_timeout_ms must be positive")
	}
	if c.Compensation != 1 && c.Compensation != -1 {
		return fmt.Errorf("compensation must be 1 or -1, got %d", c.Compensation)
	}
	if c.FailureThreshold < 1 {
		return errors.New("failure_threshold must be positive")
	}
	return nil
}

// Validate checks CalibrationConfig for errors.
func (c *CalibrationConfig) Validate() error {
	if c.Probes < 1 {
		return errors.New("probes must be positive")
	}
	if c.GapMS < 0 {
		return errors.New("gap_ms must be non-negative")
	}
	if c.ProbeTimeoutMS < 1 {
		return errors.New("probe_timeout_ms must be positive")
	}
	if c.WindowSize < 1 {
		return errors.New("window_size must be positive")
	}
	if c.MaxLatencyMS < 1 {
		return errors.New("max_latency_ms must be positive")
	}
	for class, ms := range c.PriorsMS {
		if ms < 0 {
			return fmt.Errorf("priors_ms.%s must be non-negative", class)
		}
	}
	return nil
}

// Validate checks EventsConfig for errors.
func (c *EventsConfig) Validate() error {
	if c.Capacity < 1 {
		return errors.New("capacity must be positive")
	}
	return nil
}
