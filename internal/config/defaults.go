// ABOUTME: Default configuration values and zero-value backfill
// ABOUTME: Defaults match the engine and registry fallbacks so files stay optional
package config

// Default returns a Config populated with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8931,
			Name:        "Unison",
			HeartbeatMS: 1000,
		},
		Sync: SyncConfig{
			ToleranceMS:         300,
			MinResyncIntervalMS: 5000,
			MonitorPeriodMS:     1500,
			CommandTimeoutMS:    4000,
			Compensation:        1,
			FailureThreshold:    3,
		},
		Calibration: CalibrationConfig{
			Probes:         3,
			GapMS:          50,
			ProbeTimeoutMS: 3000,
			WindowSize:     5,
			MaxLatencyMS:   2000,
			PriorsMS: map[string]int{
				"cast":      80,
				"bluetooth": 220,
				"web":       20,
				"mobile":    120,
			},
		},
		Library: LibraryConfig{
			Dir: ".",
		},
		Events: EventsConfig{
			Capacity: 500,
		},
	}
}

// ApplyDefaults fills in zero values with sensible defaults.
func (c *Config) ApplyDefaults() {
	d := Default()

	// Server
	if c.Server.Port == 0 {
		c.Server.Port = d.Server.Port
	}
	if c.Server.Name == "" {
		c.Server.Name = d.Server.Name
	}
	if c.Server.HeartbeatMS == 0 {
		c.Server.HeartbeatMS = d.Server.HeartbeatMS
	}

	// Sync
	if c.Sync.ToleranceMS == 0 {
		c.Sync.ToleranceMS = d.Sync.ToleranceMS
	}
	if c.Sync.MinResyncIntervalMS == 0 {
		c.Sync.MinResyncIntervalMS = d.Sync.MinResyncIntervalMS
	}
	if c.Sync.MonitorPeriodMS == 0 {
		c.Sync.MonitorPeriodMS = d.Sync.MonitorPeriodMS
	}
	if c.Sync.CommandTimeoutMS == 0 {
		c.Sync.CommandTimeoutMS = d.Sync.CommandTimeoutMS
	}
	if c.Sync.Compensation == 0 {
		c.Sync.Compensation = d.Sync.Compensation
	}
	if c.Sync.FailureThreshold == 0 {
		c.Sync.FailureThreshold = d.Sync.FailureThreshold
	}

	// Calibration
	if c.Calibration.Probes == 0 {
		c.Calibration.Probes = d.Calibration.Probes
	}
	if c.Calibration.GapMS == 0 {
		c.Calibration.GapMS = d.Calibration.GapMS
	}
	if c.Calibration.ProbeTimeoutMS == 0 {
		c.Calibration.ProbeTimeoutMS = d.Calibration.ProbeTimeoutMS
	}
	if c.Calibration.WindowSize == 0 {
		c.Calibration.WindowSize = d.Calibration.WindowSize
	}
	if c.Calibration.MaxLatencyMS == 0 {
		c.Calibration.MaxLatencyMS = d.Calibration.MaxLatencyMS
	}

	// Priors: start from the defaults and overlay whatever the file set,
	// so a partial map does not strip the other classes.
	priors := make(map[string]int, len(d.Calibration.PriorsMS))
	for class, ms := range d.Calibration.PriorsMS {
		priors[class] = ms
	}
	for class, ms := range c.Calibration.PriorsMS {
		priors[class] = ms
	}
	c.Calibration.PriorsMS = priors

	// Library
	if c.Library.Dir == "" {
		c.Library.Dir = d.Library.Dir
	}

	// Events
	if c.Events.Capacity == 0 {
		c.Events.Capacity = d.Events.Capacity
	}
}
