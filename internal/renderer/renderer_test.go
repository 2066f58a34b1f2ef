// ABOUTME: Tests for the simulated player, in-process controller, and daemon
// ABOUTME: Daemon coverage round-trips through a real websocket connection
package renderer

import (
	"context"
	"errors"
	"math"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/unison-audio/unison-go/internal/control"
)

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
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestPlayerAnchor(t *testing.T) {
	clk := newFakeClock()
	p := NewPlayerWithClock(clk.Now)

	p.Load("http://example/stream", 5.0)
	if pos := p.Position(); !almostEqual(pos, 5.0) {
		t.Fatalf("expected parked at 5.0, got %f", pos)
	}
	if p.Playing() {
		t.Fatal("expected paused after load")
	}

	if err := p.Play(); err != nil {
		t.Fatalf("play: %v", err)
	}
	clk.Advance(3 * time.Second)
	if pos := p.Position(); !almostEqual(pos, 8.0) {
		t.Fatalf("expected 8.0 after 3s, got %f", pos)
	}

	p.Pause()
	clk.Advance(30 * time.Second)
	if pos := p.Position(); !almostEqual(pos, 8.0) {
		t.Fatalf("expected frozen at 8.0, got %f", pos)
	}

	if err := p.Play(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	clk.Advance(2 * time.Second)
	if pos := p.Position(); !almostEqual(pos, 10.0) {
		t.Fatalf("expected 10.0 after resume, got %f", pos)
	}
}

func TestPlayerSeekKeepsPlayState(t *testing.T) {
	clk := newFakeClock()
	p := NewPlayerWithClock(clk.Now)
	p.Load("http://example/stream", 0)
	p.Play()
	clk.Advance(10 * time.Second)

	if err := p.Seek(100); err != nil {
		t.Fatalf("seek: %v", err)
	}
	if !p.Playing() {
		t.Fatal("expected still playing after seek")
	}
	clk.Advance(5 * time.Second)
	if pos := p.Position(); !almostEqual(pos, 105.0) {
		t.Fatalf("expected 105.0, got %f", pos)
	}

	if err := p.Seek(-3); err != nil {
		t.Fatalf("seek: %v", err)
	}
	if pos := p.Position(); pos != 0 {
		t.Fatalf("expected negative seek clamped to 0, got %f", pos)
	}
}

func TestPlayerCommandsWithoutStream(t *testing.T) {
	p := NewPlayer()
	if err := p.Play(); !errors.Is(err, ErrNoStream) {
		t.Fatalf("expected ErrNoStream from play, got %v", err)
	}
	if err := p.Seek(10); !errors.Is(err, ErrNoStream) {
		t.Fatalf("expected ErrNoStream from seek, got %v", err)
	}
	st := p.Status()
	if st.State != control.StateIdle {
		t.Fatalf("expected idle state, got %s", st.State)
	}
}

func TestPlayerDriftRate(t *testing.T) {
	clk := newFakeClock()
	p := NewPlayerWithClock(clk.Now)
	p.SetDriftRate(0.1)
	p.Load("http://example/stream", 0)
	p.Play()

	clk.Advance(10 * time.Second)
	if pos := p.Position(); !almostEqual(pos, 11.0) {
		t.Fatalf("expected 11.0 with 10%% drift, got %f", pos)
	}
}

func TestSimControllerRejectsWithoutStream(t *testing.T) {
	ctl := NewSimController(NewPlayer(), 0)
	err := ctl.Play(context.Background())
	if !errors.Is(err, control.ErrDeviceRejected) {
		t.Fatalf("expected ErrDeviceRejected, got %v", err)
	}
}

func TestSimControllerLatency(t *testing.T) {
	ctl := NewSimController(NewPlayer(), 30*time.Millisecond)

	start := time.Now()
	if _, err := ctl.Status(context.Background()); err != nil {
		t.Fatalf("status: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("expected at least 30ms round trip, got %s", elapsed)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	if _, err := ctl.Status(ctx); !errors.Is(err, control.ErrDeviceUnreachable) {
		t.Fatalf("expected ErrDeviceUnreachable on expired context, got %v", err)
	}
}

func TestDaemonRoundTrip(t *testing.T) {
	p := NewPlayer()
	d := NewDaemon(p)
	srv := httptest.NewServer(d.Handler())
	defer srv.Close()

	addr := strings.TrimPrefix(srv.URL, "http://")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ctl, err := control.Dial(ctx, addr, 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ctl.Close()

	// Play before load is refused at the device.
	if err := ctl.Play(ctx); !errors.Is(err, control.ErrDeviceRejected) {
		t.Fatalf("expected ErrDeviceRejected before load, got %v", err)
	}

	if err := ctl.Load(ctx, "http://example/streams/h1", 12.5); err != nil {
		t.Fatalf("load: %v", err)
	}
	st, err := ctl.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !almostEqual(st.Position, 12.5) || st.State != control.StatePaused {
		t.Fatalf("expected paused at 12.5, got %s %f", st.State, st.Position)
	}

	if err := ctl.Play(ctx); err != nil {
		t.Fatalf("play: %v", err)
	}
	st, err = ctl.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.State != control.StatePlaying || st.Position < 12.5 || st.Position > 13.5 {
		t.Fatalf("expected playing near 12.5, got %s %f", st.State, st.Position)
	}

	if err := ctl.Seek(ctx, 40); err != nil {
		t.Fatalf("seek: %v", err)
	}
	if err := ctl.Pause(ctx); err != nil {
		t.Fatalf("pause: %v", err)
	}
	st, err = ctl.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.State != control.StatePaused || st.Position < 40 || st.Position > 41 {
		t.Fatalf("expected paused near 40, got %s %f", st.State, st.Position)
	}
}

func TestDaemonConnectionLossFailsPending(t *testing.T) {
	p := NewPlayer()
	d := NewDaemon(p)
	srv := httptest.NewServer(d.Handler())

	addr := strings.TrimPrefix(srv.URL, "http://")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ctl, err := control.Dial(ctx, addr, 500*time.Millisecond)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ctl.Close()

	srv.CloseClientConnections()
	srv.Close()

	pctx, pcancel := context.WithTimeout(context.Background(), time.Second)
	defer pcancel()
	if err := ctl.Play(pctx); !errors.Is(err, control.ErrDeviceUnreachable) {
		t.Fatalf("expected ErrDeviceUnreachable after close, got %v", err)
	}
}
