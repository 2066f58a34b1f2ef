// ABOUTME: Track model shared by the queue, timeline, and wire snapshots
// ABOUTME: Duration is in seconds and may be zero until the stream provider reports it
package core

import "github.com/google/uuid"

// Track represents a playable audio track.
type Track struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Source   string  `json:"source"`
	Duration float64 `json:"duration,omitempty"`
}

// NewTrack creates a track with a fresh ID for the given source reference.
func NewTrack(name, source string) Track {
	return Track{
		ID:     uuid.New().String(),
		Name:   name,
		Source: source,
	}
}

// HasDuration returns true once the stream provider has reported a length.
func (t Track) HasDuration() bool {
	return t.Duration > 0
}
