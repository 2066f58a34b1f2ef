// ABOUTME: Simulated rendering device tracking playback with a local anchor
// ABOUTME: SimController drives it in-process with artificial command latency
package renderer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/unison-audio/unison-go/internal/control"
)

// ErrNoStream is returned for commands that need a loaded stream.
var ErrNoStream = errors.New("no stream loaded")

// Player simulates a rendering device. It keeps its own playback position
// as an anchor pair and optionally skews it over time, standing in for a
// real device's clock drift.
type Player struct {
	mu        sync.Mutex
	now       func() time.Time
	url       string
	loaded    bool
	playing   bool
	anchorPos float64
	anchorAt  time.Time
	driftRate float64
}

// NewPlayer creates an idle player on the wall clock.
func NewPlayer() *Player {
	return NewPlayerWithClock(time.Now)
}

// NewPlayerWithClock substitutes the time source, for tests.
func NewPlayerWithClock(now func() time.Time) *Player {
	return &Player{now: now}
}

// SetDriftRate skews the simulated position by rate seconds per second of
// playback. 0.01 drifts one second every hundred; negative rates lag.
func (p *Player) SetDriftRate(rate float64) {
	p.mu.Lock()
	p.anchorPos = p.positionLocked()
	p.anchorAt = p.now()
	p.driftRate = rate
	p.mu.Unlock()
}

// Load points the player at a stream and parks it at pos, paused.
func (p *Player) Load(url string, pos float64) {
	if pos < 0 {
		pos = 0
	}
	p.mu.Lock()
	p.url = url
	p.loaded = true
	p.playing = false
	p.anchorPos = pos
	p.anchorAt = p.now()
	p.mu.Unlock()
}

// Play starts or resumes rendering.
func (p *Player) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.loaded {
		return ErrNoStream
	}
	if p.playing {
		return nil
	}
	p.anchorAt = p.now()
	p.playing = true
	return nil
}

// Pause halts rendering, keeping position.
func (p *Player) Pause() {
	p.mu.Lock()
	p.anchorPos = p.positionLocked()
	p.anchorAt = p.now()
	p.playing = false
	p.mu.Unlock()
}

// Seek repositions the player without changing play state.
func (p *Player) Seek(pos float64) error {
	if pos < 0 {
		pos = 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.loaded {
		return ErrNoStream
	}
	p.anchorPos = pos
	p.anchorAt = p.now()
	return nil
}

// Position reports the simulated playback position in seconds.
func (p *Player) Position() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positionLocked()
}

func (p *Player) positionLocked() float64 {
	if !p.playing {
		return p.anchorPos
	}
	elapsed := p.now().Sub(p.anchorAt).Seconds()
	return p.anchorPos + elapsed*(1+p.driftRate)
}

// Playing reports whether the player is rendering.
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// URL returns the currently loaded stream URL, if any.
func (p *Player) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

// Status reports position and player state the way a device would.
func (p *Player) Status() control.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := control.StatePaused
	switch {
	case !p.loaded:
		st = control.StateIdle
	case p.playing:
		st = control.StatePlaying
	}
	return control.Status{Position: p.positionLocked(), State: st}
}

// SimController exposes a Player through the cast-control interface with a
// fixed artificial latency on every call, so latency calibration and drift
// probing see realistic round-trip times without a network.
type SimController struct {
	player  *Player
	latency time.Duration
}

// NewSimController wraps a player. latency delays every operation.
func NewSimController(p *Player, latency time.Duration) *SimController {
	return &SimController{player: p, latency: latency}
}

func (c *SimController) wait(ctx context.Context) error {
	if c.latency <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(c.latency)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("simulated link: %w", control.ErrDeviceUnreachable)
	case <-t.C:
		return nil
	}
}

func (c *SimController) Load(ctx context.Context, url string, startPos float64) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	c.player.Load(url, startPos)
	return nil
}

func (c *SimController) Play(ctx context.Context) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	if err := c.player.Play(); err != nil {
		return fmt.Errorf("%v: %w", err, control.ErrDeviceRejected)
	}
	return nil
}

func (c *SimController) Pause(ctx context.Context) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	c.player.Pause()
	return nil
}

func (c *SimController) Seek(ctx context.Context, pos float64) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	if err := c.player.Seek(pos); err != nil {
		return fmt.Errorf("%v: %w", err, control.ErrDeviceRejected)
	}
	return nil
}

func (c *SimController) Status(ctx context.Context) (control.Status, error) {
	if err := c.wait(ctx); err != nil {
		return control.Status{}, err
	}
	return c.player.Status(), nil
}

func (c *SimController) Close() error {
	return nil
}
