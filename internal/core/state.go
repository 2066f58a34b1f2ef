// ABOUTME: Playback phase enumeration for the engine state machine
// ABOUTME: Marshals as lowercase strings so snapshots stay readable on the wire
package core

import (
	"encoding/json"
	"fmt"
)

// Phase is the externally observable playback state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhasePlaying
	PhasePaused
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoading:
		return "loading"
	case PhasePlaying:
		return "playing"
	case PhasePaused:
		return "paused"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// ParsePhase converts a wire string back into a Phase.
func ParsePhase(s string) (Phase, error) {
	switch s {
	case "idle":
		return PhaseIdle, nil
	case "loading":
		return PhaseLoading, nil
	case "playing":
		return PhasePlaying, nil
	case "paused":
		return PhasePaused, nil
	default:
		return PhaseIdle, fmt.Errorf("unknown phase %q", s)
	}
}

func (p Phase) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

func (p *Phase) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParsePhase(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
