// ABOUTME: Tests for playback phase string and JSON round-trips
// ABOUTME: Wire snapshots depend on the lowercase phase names staying stable
package core

import (
	"encoding/json"
	"testing"
)

func TestPhaseStrings(t *testing.T) {
	tests := []struct {
		phase Phase
		want  string
	}{
		{PhaseIdle, "idle"},
		{PhaseLoading, "loading"},
		{PhasePlaying, "playing"},
		{PhasePaused, "paused"},
	}

	for _, tt := range tests {
		if got := tt.phase.String(); got != tt.want {
			t.Errorf("expected %q, got %q", tt.want, got)
		}
		parsed, err := ParsePhase(tt.want)
		if err != nil {
			t.Fatalf("ParsePhase(%q) failed: %v", tt.want, err)
		}
		if parsed != tt.phase {
			t.Errorf("expected phase %v, got %v", tt.phase, parsed)
		}
	}

	if _, err := ParsePhase("warming-up"); err == nil {
		t.Error("expected error for unknown phase name")
	}
}

func TestPhaseJSON(t *testing.T) {
	data, err := json.Marshal(PhasePlaying)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(data) != `"playing"` {
		t.Errorf(`expected "playing", got %s`, data)
	}

	var p Phase
	if err := json.Unmarshal([]byte(`"paused"`), &p); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if p != PhasePaused {
		t.Errorf("expected PhasePaused, got %v", p)
	}
}
