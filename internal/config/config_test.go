// ABOUTME: Tests for configuration loading, defaults, and validation
// ABOUTME: Uses temp files and t.Setenv to exercise overrides
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/unison-audio/unison-go/internal/device"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if cfg.Server.Port != 8931 {
		t.Errorf("expected default port 8931, got %d", cfg.Server.Port)
	}
	if cfg.Sync.ToleranceMS != 300 {
		t.Errorf("expected tolerance 300ms, got %d", cfg.Sync.ToleranceMS)
	}
	if cfg.Sync.MinResyncIntervalMS != 5000 {
		t.Errorf("expected resync throttle 5000ms, got %d", cfg.Sync.MinResyncIntervalMS)
	}
}

func TestApplyDefaultsBackfillsZeroValues(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()

	if cfg.Server.Name != "Unison" {
		t.Errorf("expected default name, got %q", cfg.Server.Name)
	}
	if cfg.Sync.Compensation != 1 {
		t.Errorf("expected compensation +1, got %d", cfg.Sync.Compensation)
	}
	if cfg.Calibration.PriorsMS["bluetooth"] != 220 {
		t.Errorf("expected bluetooth prior 220ms, got %d", cfg.Calibration.PriorsMS["bluetooth"])
	}
}

func TestPartialPriorsKeepOtherClasses(t *testing.T) {
	cfg := &Config{}
	cfg.Calibration.PriorsMS = map[string]int{"cast": 150}
	cfg.ApplyDefaults()

	if cfg.Calibration.PriorsMS["cast"] != 150 {
		t.Errorf("override lost: got %d", cfg.Calibration.PriorsMS["cast"])
	}
	if cfg.Calibration.PriorsMS["web"] != 20 {
		t.Errorf("default web prior lost: got %d", cfg.Calibration.PriorsMS["web"])
	}
}

func TestLoadFrom(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[server]
port = 9000
name = "Listening Room"

[sync]
tolerance_ms = 250
compensation = -1

[calibration.priors_ms]
cast = 90
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	if cfg.Server.Name != "Listening Room" {
		t.Errorf("expected custom name, got %q", cfg.Server.Name)
	}
	if cfg.Sync.ToleranceMS != 250 {
		t.Errorf("expected tolerance 250, got %d", cfg.Sync.ToleranceMS)
	}
	if cfg.Sync.Compensation != -1 {
		t.Errorf("expected compensation -1, got %d", cfg.Sync.Compensation)
	}
	// Defaults still fill in what the file left out.
	if cfg.Sync.MonitorPeriodMS != 1500 {
		t.Errorf("expected default monitor period, got %d", cfg.Sync.MonitorPeriodMS)
	}
	if cfg.Calibration.PriorsMS["cast"] != 90 || cfg.Calibration.PriorsMS["mobile"] != 120 {
		t.Errorf("priors merge wrong: %v", cfg.Calibration.PriorsMS)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("loaded config should validate: %v", err)
	}
}

func TestLoadFromBadTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("[server\nport ="), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadFrom(path); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("UNISON_PORT", "9500")
	t.Setenv("UNISON_NAME", "Env Room")
	t.Setenv("UNISON_TOLERANCE_MS", "400")
	t.Setenv("UNISON_DISABLE_MDNS", "true")

	cfg := &Config{}
	cfg.ApplyDefaults()
	applyEnvOverrides(cfg)

	if cfg.Server.Port != 9500 {
		t.Errorf("expected env port 9500, got %d", cfg.Server.Port)
	}
	if cfg.Server.Name != "Env Room" {
		t.Errorf("expected env name, got %q", cfg.Server.Name)
	}
	if cfg.Sync.ToleranceMS != 400 {
		t.Errorf("expected env tolerance 400, got %d", cfg.Sync.ToleranceMS)
	}
	if !cfg.Server.DisableMDNS {
		t.Error("expected mDNS disabled via env")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Sync.Compensation = 2
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation failure")
	}
	if !strings.Contains(err.Error(), "compensation") {
		t.Errorf("unexpected error: %v", err)
	}

	cfg = Default()
	cfg.Server.Port = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected port validation failure")
	}

	cfg = Default()
	cfg.Calibration.Probes = 0
	cfg.Calibration.PriorsMS = map[string]int{"cast": -5}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected calibration validation failure")
	}
}

func TestEngineConfigConversion(t *testing.T) {
	cfg := Default()
	ec := cfg.EngineConfig()

	if ec.SyncTolerance != 0.3 {
		t.Errorf("expected tolerance 0.3s, got %v", ec.SyncTolerance)
	}
	if ec.MinResyncInterval != 5*time.Second {
		t.Errorf("expected 5s throttle, got %v", ec.MinResyncInterval)
	}
	if ec.MonitorPeriod != 1500*time.Millisecond {
		t.Errorf("expected 1.5s monitor period, got %v", ec.MonitorPeriod)
	}
	if ec.Compensation != 1 {
		t.Errorf("expected compensation +1, got %v", ec.Compensation)
	}
}

func TestRegistryConfigConversion(t *testing.T) {
	cfg := Default()
	rc := cfg.RegistryConfig()

	if rc.ProbeTimeout != 3*time.Second {
		t.Errorf("expected 3s probe timeout, got %v", rc.ProbeTimeout)
	}
	if rc.MaxLatency != 2.0 {
		t.Errorf("expected 2s ceiling, got %v", rc.MaxLatency)
	}
	if got := rc.Priors[device.ClassBluetooth]; got != 0.22 {
		t.Errorf("expected bluetooth prior 0.22s, got %v", got)
	}
	if got := rc.Priors[device.ClassWeb]; got != 0.02 {
		t.Errorf("expected web prior 0.02s, got %v", got)
	}
}
