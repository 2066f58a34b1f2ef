// ABOUTME: Tests for anchor-pair timeline arithmetic
// ABOUTME: Uses a fake clock to verify monotonicity, pause freeze, and re-anchoring
package timeline

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/unison-audio/unison-go/internal/core"
)

// fakeClock is a hand-advanced clock for deterministic position checks.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 0.001
}

func TestStartAnchorsPosition(t *testing.T) {
	clk := newFakeClock()
	tl := New(clk.Now)

	tl.Start(core.Track{ID: "t1", Name: "Track"}, 5.0)
	if got := tl.Position(); !almostEqual(got, 5.0) {
		t.Errorf("expected position 5.0 right after start, got %f", got)
	}
	if !tl.Playing() {
		t.Error("expected timeline to be playing after start")
	}
}

func TestPositionAdvancesWhilePlaying(t *testing.T) {
	clk := newFakeClock()
	tl := New(clk.Now)
	tl.Start(core.Track{ID: "t1"}, 0)

	var last float64
	for i := 0; i < 10; i++ {
		clk.Advance(250 * time.Millisecond)
		pos := tl.Position()
		if pos < last {
			t.Fatalf("position ran backward: %f after %f", pos, last)
		}
		last = pos
	}
	if !almostEqual(last, 2.5) {
		t.Errorf("expected position 2.5 after 2.5s, got %f", last)
	}
}

func TestPauseFreezesPosition(t *testing.T) {
	clk := newFakeClock()
	tl := New(clk.Now)
	tl.Start(core.Track{ID: "t1"}, 10)

	clk.Advance(3 * time.Second)
	tl.Pause()

	frozen := tl.Position()
	if !almostEqual(frozen, 13.0) {
		t.Errorf("expected frozen position 13.0, got %f", frozen)
	}

	clk.Advance(42 * time.Second)
	if got := tl.Position(); got != frozen {
		t.Errorf("paused position drifted: expected %f, got %f", frozen, got)
	}
}

func TestResumeContinuesFromFrozenPosition(t *testing.T) {
	clk := newFakeClock()
	tl := New(clk.Now)
	tl.Start(core.Track{ID: "t1"}, 0)

	clk.Advance(8 * time.Second)
	tl.Pause()
	clk.Advance(10 * time.Second)
	tl.Resume()
	clk.Advance(2 * time.Second)

	if got := tl.Position(); !almostEqual(got, 10.0) {
		t.Errorf("expected position 10.0 after resume, got %f", got)
	}
}

func TestSeekReAnchors(t *testing.T) {
	clk := newFakeClock()
	tl := New(clk.Now)
	tl.Start(core.Track{ID: "t1"}, 0)

	clk.Advance(60 * time.Second)
	tl.Seek(100)
	if got := tl.Position(); !almostEqual(got, 100.0) {
		t.Errorf("expected position 100.0 after seek, got %f", got)
	}

	clk.Advance(5 * time.Second)
	if got := tl.Position(); !almostEqual(got, 105.0) {
		t.Errorf("expected position 105.0, got %f", got)
	}
}

func TestSeekWhilePausedStaysPaused(t *testing.T) {
	clk := newFakeClock()
	tl := New(clk.Now)
	tl.Start(core.Track{ID: "t1"}, 0)
	tl.Pause()

	tl.Seek(30)
	clk.Advance(5 * time.Second)
	if got := tl.Position(); !almostEqual(got, 30.0) {
		t.Errorf("expected paused position 30.0, got %f", got)
	}
	if tl.Playing() {
		t.Error("seek should not unpause the timeline")
	}
}

func TestSeekClampsNegative(t *testing.T) {
	clk := newFakeClock()
	tl := New(clk.Now)
	tl.Start(core.Track{ID: "t1"}, 10)

	tl.Seek(-4)
	if got := tl.Position(); got != 0 {
		t.Errorf("expected clamp to 0, got %f", got)
	}
}

func TestStopClearsTrack(t *testing.T) {
	clk := newFakeClock()
	tl := New(clk.Now)
	tl.Start(core.Track{ID: "t1"}, 50)
	tl.Stop()

	if tl.Track() != nil || tl.Playing() {
		t.Error("expected stopped timeline with no track")
	}
	if got := tl.Position(); got != 0 {
		t.Errorf("expected position 0 after stop, got %f", got)
	}
}

func TestPauseResumeIdempotent(t *testing.T) {
	clk := newFakeClock()
	tl := New(clk.Now)

	// No track yet: both are no-ops.
	tl.Pause()
	tl.Resume()
	if tl.Playing() {
		t.Error("resume with no track should not start playback")
	}

	tl.Start(core.Track{ID: "t1"}, 20)
	tl.Resume() // already playing
	clk.Advance(time.Second)
	if got := tl.Position(); !almostEqual(got, 21.0) {
		t.Errorf("expected position 21.0, got %f", got)
	}

	tl.Pause()
	tl.Pause() // already paused
	if got := tl.Position(); !almostEqual(got, 21.0) {
		t.Errorf("expected frozen position 21.0, got %f", got)
	}
}

func TestSnapshotConsistency(t *testing.T) {
	clk := newFakeClock()
	tl := New(clk.Now)
	tl.Start(core.Track{ID: "t1", Name: "Track One"}, 7)

	snap := tl.Snapshot()
	if !snap.Playing {
		t.Error("expected playing snapshot")
	}
	if snap.Track == nil || snap.Track.ID != "t1" {
		t.Errorf("expected track t1 in snapshot, got %v", snap.Track)
	}
	if !almostEqual(snap.Position, 7.0) {
		t.Errorf("expected snapshot position 7.0, got %f", snap.Position)
	}

	// Mutating the snapshot's track must not touch the timeline.
	snap.Track.Name = "mutated"
	if got := tl.Track(); got.Name != "Track One" {
		t.Errorf("snapshot mutation leaked into timeline: %s", got.Name)
	}
}
