// ABOUTME: Configuration schema for the server and sync engine
// ABOUTME: TOML sections map onto engine, registry, and server tuning
package config

// Config is the root configuration structure.
type Config struct {
	Server      ServerConfig      `toml:"server"`
	Sync        SyncConfig        `toml:"sync"`
	Calibration CalibrationConfig `toml:"calibration"`
	Library     LibraryConfig     `toml:"library"`
	Events      EventsConfig      `toml:"events"`
	Log         LogConfig         `toml:"log"`
}

// ServerConfig holds control-channel settings.
type ServerConfig struct {
	Port        int    `toml:"port"`
	Name        string `toml:"name"`
	HeartbeatMS int    `toml:"heartbeat_ms"`
	DisableMDNS bool   `toml:"disable_mdns"`
}

// SyncConfig holds drift-correction tuning. Intervals are milliseconds.
type SyncConfig struct {
	ToleranceMS         int `toml:"tolerance_ms"`
	MinResyncIntervalMS int `toml:"min_resync_interval_ms"`
	MonitorPeriodMS     int `toml:"monitor_period_ms"`
	CommandTimeoutMS    int `toml:"command_timeout_ms"`
	Compensation        int `toml:"compensation"` // +1 or -1
	FailureThreshold    int `toml:"failure_threshold"`
}

// CalibrationConfig holds latency-probe settings. PriorsMS maps device
// classes to assumed latencies used before the first measurement.
type CalibrationConfig struct {
	Probes         int            `toml:"probes"`
	GapMS          int            `toml:"gap_ms"`
	ProbeTimeoutMS int            `toml:"probe_timeout_ms"`
	WindowSize     int            `toml:"window_size"`
	MaxLatencyMS   int            `toml:"max_latency_ms"`
	PriorsMS       map[string]int `toml:"priors_ms"`
}

// LibraryConfig holds the local track library settings.
type LibraryConfig struct {
	Dir string `toml:"dir"`
}

// EventsConfig holds the sync event log settings.
type EventsConfig struct {
	Capacity int `toml:"capacity"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	File string `toml:"file"`
}
