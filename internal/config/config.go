// ABOUTME: Configuration loading from standard locations with environment overrides
// ABOUTME: Bridges the TOML schema onto engine and registry tuning structs
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/unison-audio/unison-go/internal/device"
	"github.com/unison-audio/unison-go/internal/engine"
)

// Load reads configuration from standard locations with environment overrides.
// Search order: ~/.unisonrc, $XDG_CONFIG_HOME/unison/config.toml, ~/.config/unison/config.toml
func Load() (*Config, error) {
	cfg := &Config{}

	// Try loading from file
	path := findConfigFile()
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, err
		}
	}

	// Apply defaults, then environment variable overrides
	cfg.ApplyDefaults()
	applyEnvOverrides(cfg)

	return cfg, nil
}

// LoadFrom reads configuration from a specific file path.
func LoadFrom(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	applyEnvOverrides(cfg)
	return cfg, nil
}

// findConfigFile returns the first existing config file path.
func findConfigFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	paths := []string{
		filepath.Join(home, ".unisonrc"),
	}

	// XDG_CONFIG_HOME or default
	xdgConfig := os.Getenv("XDG_CONFIG_HOME")
	if xdgConfig == "" {
		xdgConfig = filepath.Join(home, ".config")
	}
	paths = append(paths, filepath.Join(xdgConfig, "unison", "config.toml"))

	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(cfg *Config) {
	// Server
	if v := os.Getenv("UNISON_PORT"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = i
		}
	}
	if v := os.Getenv("UNISON_NAME"); v != "" {
		cfg.Server.Name = v
	}
	if v := os.Getenv("UNISON_DISABLE_MDNS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Server.DisableMDNS = b
		}
	}

	// Sync
	if v := os.Getenv("UNISON_TOLERANCE_MS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Sync.ToleranceMS = i
		}
	}
	if v := os.Getenv("UNISON_MIN_RESYNC_INTERVAL_MS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Sync.MinResyncIntervalMS = i
		}
	}
	if v := os.Getenv("UNISON_MONITOR_PERIOD_MS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Sync.MonitorPeriodMS = i
		}
	}
	if v := os.Getenv("UNISON_FAILURE_THRESHOLD"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Sync.FailureThreshold = i
		}
	}

	// Library
	if v := os.Getenv("UNISON_LIBRARY_DIR"); v != "" {
		cfg.Library.Dir = v
	}

	// Log
	if v := os.Getenv("UNISON_LOG_FILE"); v != "" {
		cfg.Log.File = v
	}
}

// EngineConfig converts the sync section into engine tuning.
func (c *Config) EngineConfig() engine.Config {
	return engine.Config{
		SyncTolerance:     float64(c.Sync.ToleranceMS) / 1000,
		MinResyncInterval: time.Duration(c.Sync.MinResyncIntervalMS) * time.Millisecond,
		MonitorPeriod:     time.Duration(c.Sync.MonitorPeriodMS) * time.Millisecond,
		CommandTimeout:    time.Duration(c.Sync.CommandTimeoutMS) * time.Millisecond,
		Compensation:      float64(c.Sync.Compensation),
		FailureThreshold:  c.Sync.FailureThreshold,
	}
}

// RegistryConfig converts the calibration section into registry tuning.
func (c *Config) RegistryConfig() device.Config {
	priors := make(map[device.Class]float64, len(c.Calibration.PriorsMS))
	for class, ms := range c.Calibration.PriorsMS {
		priors[device.Class(class)] = float64(ms) / 1000
	}
	return device.Config{
		ProbeTimeout:      time.Duration(c.Calibration.ProbeTimeoutMS) * time.Millisecond,
		CalibrationProbes: c.Calibration.Probes,
		CalibrationGap:    time.Duration(c.Calibration.GapMS) * time.Millisecond,
		WindowSize:        c.Calibration.WindowSize,
		MaxLatency:        float64(c.Calibration.MaxLatencyMS) / 1000,
		Priors:            priors,
	}
}

// HeartbeatPeriod returns the snapshot rebroadcast interval.
func (c *Config) HeartbeatPeriod() time.Duration {
	return time.Duration(c.Server.HeartbeatMS) * time.Millisecond
}
