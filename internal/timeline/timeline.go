// ABOUTME: Authoritative playback timeline built on an anchor pair
// ABOUTME: Position derives from anchorPos plus monotonic elapsed time, never a mutated counter
package timeline

import (
	"sync"
	"time"

	"github.com/unison-audio/unison-go/internal/core"
)

// Timeline is the single source of truth for what should be playing and at
// what position. The anchor pair (anchorPos, anchorAt) is only rewritten by
// start, pause, resume, and seek; the current position is always derived
// from it, so it cannot run backward spontaneously while playing.
type Timeline struct {
	mu        sync.RWMutex
	now       func() time.Time
	playing   bool
	track     *core.Track
	anchorPos float64
	anchorAt  time.Time
}

// New creates a stopped timeline reading time from now. Production code
// passes time.Now; tests substitute a fake clock.
func New(now func() time.Time) *Timeline {
	return &Timeline{now: now}
}

// Start makes track the current track and begins playing from fromPos.
func (t *Timeline) Start(track core.Track, fromPos float64) {
	if fromPos < 0 {
		fromPos = 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.track = &track
	t.anchorPos = fromPos
	t.anchorAt = t.now()
	t.playing = true
}

// Pause freezes the position at its current value. Pausing an already
// paused or stopped timeline is a no-op.
func (t *Timeline) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.playing {
		return
	}
	t.anchorPos += t.now().Sub(t.anchorAt).Seconds()
	t.playing = false
}

// Resume continues playing from the frozen position. Resuming while already
// playing or with no track is a no-op.
func (t *Timeline) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.playing || t.track == nil {
		return
	}
	t.anchorAt = t.now()
	t.playing = true
}

// Seek re-anchors the position, preserving the playing flag. Negative
// positions clamp to zero.
func (t *Timeline) Seek(pos float64) {
	if pos < 0 {
		pos = 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.track == nil {
		return
	}
	t.anchorPos = pos
	t.anchorAt = t.now()
}

// Stop drops the current track and resets the anchor.
func (t *Timeline) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.track = nil
	t.playing = false
	t.anchorPos = 0
	t.anchorAt = time.Time{}
}

// Position returns the current logical position in seconds: the anchor
// position plus elapsed time while playing, the frozen anchor while paused,
// zero when stopped.
func (t *Timeline) Position() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.positionLocked()
}

func (t *Timeline) positionLocked() float64 {
	if t.track == nil {
		return 0
	}
	if !t.playing {
		return t.anchorPos
	}
	return t.anchorPos + t.now().Sub(t.anchorAt).Seconds()
}

// Playing reports whether the timeline is advancing.
func (t *Timeline) Playing() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.playing
}

// Track returns a copy of the current track, or nil when stopped.
func (t *Timeline) Track() *core.Track {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.track == nil {
		return nil
	}
	tr := *t.track
	return &tr
}

// Snapshot is a consistent single-instant view of the timeline.
type Snapshot struct {
	Playing  bool
	Track    *core.Track
	Position float64
}

// Snapshot reads playing flag, track, and position under one lock
// acquisition so callers never see a torn view.
func (t *Timeline) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	snap := Snapshot{
		Playing:  t.playing,
		Position: t.positionLocked(),
	}
	if t.track != nil {
		tr := *t.track
		snap.Track = &tr
	}
	return snap
}
