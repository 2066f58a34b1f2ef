// ABOUTME: Playback engine: single-writer command loop owning timeline, queue, and state machine
// ABOUTME: Device operations fan out concurrently; all mutation funnels through one goroutine
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/unison-audio/unison-go/internal/core"
	"github.com/unison-audio/unison-go/internal/device"
	"github.com/unison-audio/unison-go/internal/events"
	"github.com/unison-audio/unison-go/internal/protocol"
	"github.com/unison-audio/unison-go/internal/stream"
	"github.com/unison-audio/unison-go/internal/timeline"
)

// ErrInvalidCommand marks commands rejected by state validation: seek with
// no track, skip out of range, play with an empty queue. The caller reports
// these to the issuing client only; nothing is mutated.
var ErrInvalidCommand = errors.New("invalid command")

// ErrStopped is returned for commands sent after shutdown began.
var ErrStopped = errors.New("engine stopped")

// Config tunes synchronization behavior. Zero values fall back to the
// documented defaults.
type Config struct {
	// SyncTolerance is the drift, in seconds, a device may accumulate
	// before a corrective seek is considered. Default 0.3.
	SyncTolerance float64

	// MinResyncInterval is the per-device throttle window between
	// corrective seeks. Default 5s.
	MinResyncInterval time.Duration

	// MonitorPeriod is the drift-check cadence while playing. Default 1.5s.
	MonitorPeriod time.Duration

	// CommandTimeout bounds each per-device load/play/pause/seek call.
	// Default 4s.
	CommandTimeout time.Duration

	// Compensation is the sign applied to latency when deriving a
	// device's expected position: expected = master - Compensation*latency.
	// +1 keeps devices behind the master by their rendering delay; -1
	// flips the model for installations that disagree. Default +1.
	Compensation float64

	// FailureThreshold is how many consecutive device failures trigger
	// eviction. Default 3.
	FailureThreshold int

	// Clock substitutes a fake time source in tests.
	Clock func() time.Time
}

func (c Config) withDefaults() Config {
	if c.SyncTolerance <= 0 {
		c.SyncTolerance = 0.3
	}
	if c.MinResyncInterval <= 0 {
		c.MinResyncInterval = 5 * time.Second
	}
	if c.MonitorPeriod <= 0 {
		c.MonitorPeriod = 1500 * time.Millisecond
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = 4 * time.Second
	}
	if c.Compensation == 0 {
		c.Compensation = 1
	}
	if c.FailureThreshold < 1 {
		c.FailureThreshold = 3
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}

// Broadcaster receives a consistent state snapshot after every externally
// visible change. Implementations must not block.
type Broadcaster interface {
	Broadcast(st protocol.State)
}

// Engine coordinates the master timeline, playback queue, device registry,
// and stream provider. One goroutine processes commands in arrival order;
// everything that can block on the network runs outside it.
type Engine struct {
	cfg      Config
	now      func() time.Time
	tl       *timeline.Timeline
	queue    *core.Queue
	phase    core.Phase
	registry *device.Registry
	provider stream.Provider
	events   *events.Log
	bc       Broadcaster

	cmds     chan command
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Loading state, owned by the command loop.
	loadGen    int
	loadCancel context.CancelFunc

	// Current stream, owned by the command loop.
	handle   stream.Handle
	duration float64
	endTimer *time.Timer

	monitor *driftMonitor
	stats   monitorStats
}

// New creates an engine. The broadcaster may be attached later with
// SetBroadcaster, before Start.
func New(cfg Config, registry *device.Registry, provider stream.Provider, eventLog *events.Log) *Engine {
	cfg = cfg.withDefaults()
	if eventLog == nil {
		eventLog = events.NewLog(0)
	}
	return &Engine{
		cfg:      cfg,
		now:      cfg.Clock,
		tl:       timeline.New(cfg.Clock),
		queue:    core.NewQueue(),
		phase:    core.PhaseIdle,
		registry: registry,
		provider: provider,
		events:   eventLog,
		cmds:     make(chan command, 64),
		stopChan: make(chan struct{}),
	}
}

// SetBroadcaster wires the outbound snapshot sink. Call before Start.
func (e *Engine) SetBroadcaster(bc Broadcaster) {
	e.bc = bc
}

// Start launches the command loop.
func (e *Engine) Start() {
	e.wg.Add(1)
	go e.run()
}

// Stop shuts the engine down: cancels any in-flight load, stops the drift
// monitor, and waits for outstanding device operations to finish or time
// out.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopChan)
	})
	e.wg.Wait()
}

func (e *Engine) run() {
	defer e.wg.Done()
	log.Printf("Engine started (tolerance=%.0fms, resync interval=%s, monitor period=%s)",
		e.cfg.SyncTolerance*1000, e.cfg.MinResyncInterval, e.cfg.MonitorPeriod)

	for {
		select {
		case cmd := <-e.cmds:
			e.dispatch(cmd)
		case <-e.stopChan:
			e.shutdown()
			return
		}
	}
}

func (e *Engine) shutdown() {
	e.cancelLoad()
	e.stopMonitor()
	e.stopEndTimer()
	e.releaseStream()
	log.Printf("Engine stopped")
}

// do posts a command and waits for the loop's verdict.
func (e *Engine) do(c command, resp chan error) error {
	select {
	case e.cmds <- c:
	case <-e.stopChan:
		return ErrStopped
	}
	select {
	case err := <-resp:
		return err
	case <-e.stopChan:
		return ErrStopped
	}
}

// enqueue posts a command from a helper goroutine without awaiting a reply.
func (e *Engine) enqueue(c command) {
	select {
	case e.cmds <- c:
	case <-e.stopChan:
	}
}

// Play starts or resumes playback. With an empty queue it is rejected;
// while already playing or loading the current track it is a no-op.
func (e *Engine) Play() error {
	resp := make(chan error, 1)
	return e.do(cmdPlay{resp: resp}, resp)
}

// Pause freezes the timeline and pauses every device.
func (e *Engine) Pause() error {
	resp := make(chan error, 1)
	return e.do(cmdPause{resp: resp}, resp)
}

// Seek repositions the current track.
func (e *Engine) Seek(pos float64) error {
	resp := make(chan error, 1)
	return e.do(cmdSeek{pos: pos, resp: resp}, resp)
}

// Next advances to the following queue entry.
func (e *Engine) Next() error {
	resp := make(chan error, 1)
	return e.do(cmdNext{resp: resp}, resp)
}

// Previous steps back to the prior queue entry, or restarts the current
// track when already at the front.
func (e *Engine) Previous() error {
	resp := make(chan error, 1)
	return e.do(cmdPrevious{resp: resp}, resp)
}

// AddTrack appends a track. Adding to an empty queue auto-starts playback.
func (e *Engine) AddTrack(t core.Track) error {
	resp := make(chan error, 1)
	return e.do(cmdAdd{track: t, resp: resp}, resp)
}

// RemoveTrack deletes the queue entry at index. Removing the playing entry
// advances to whatever occupies that index next, or goes idle.
func (e *Engine) RemoveTrack(index int) error {
	resp := make(chan error, 1)
	return e.do(cmdRemove{index: index, resp: resp}, resp)
}

// ClearQueue stops playback and empties the queue.
func (e *Engine) ClearQueue() error {
	resp := make(chan error, 1)
	return e.do(cmdClear{resp: resp}, resp)
}

// SkipTo jumps to the queue entry at index and plays it.
func (e *Engine) SkipTo(index int) error {
	resp := make(chan error, 1)
	return e.do(cmdSkip{index: index, resp: resp}, resp)
}

// MoveTrack reorders the queue, keeping the selection on the same track.
func (e *Engine) MoveTrack(from, to int) error {
	resp := make(chan error, 1)
	return e.do(cmdMove{from: from, to: to, resp: resp}, resp)
}

// TrackEnded signals that the current track's stream finished. Stale or
// mismatched signals are ignored.
func (e *Engine) TrackEnded(trackID string) {
	e.enqueue(cmdTrackEnd{trackID: trackID})
}

// Snapshot returns a consistent view assembled inside the command loop.
func (e *Engine) Snapshot() protocol.State {
	resp := make(chan protocol.State, 1)
	select {
	case e.cmds <- cmdSnapshot{resp: resp}:
	case <-e.stopChan:
		return protocol.State{Phase: core.PhaseIdle, At: e.now(), Queue: core.Queue{CurrentIndex: -1}}
	}
	select {
	case st := <-resp:
		return st
	case <-e.stopChan:
		return protocol.State{Phase: core.PhaseIdle, At: e.now(), Queue: core.Queue{CurrentIndex: -1}}
	}
}

// Events returns up to limit recent sync events, oldest first.
func (e *Engine) Events(limit int) []events.Event {
	return e.events.Recent(limit)
}

// Stats reports drift-monitor counters.
func (e *Engine) Stats() MonitorStats {
	return e.stats.snapshot()
}

func (e *Engine) buildSnapshot() protocol.State {
	ts := e.tl.Snapshot()
	st := protocol.State{
		Phase:    e.phase,
		Playing:  ts.Playing,
		Track:    ts.Track,
		Position: ts.Position,
		At:       e.now(),
		Queue:    e.queue.Copy(),
		Devices:  deviceStates(e.registry.Views()),
	}
	// While loading, the timeline still looks stopped; surface the track
	// being prepared instead.
	if e.phase == core.PhaseLoading {
		if cur := e.queue.Current(); cur != nil {
			tr := *cur
			st.Track = &tr
			st.Position = 0
		}
	}
	return st
}

func deviceStates(views []device.View) []protocol.DeviceState {
	out := make([]protocol.DeviceState, len(views))
	for i, v := range views {
		out[i] = protocol.DeviceState{
			ID:        v.ID,
			Name:      v.Name,
			Class:     string(v.Class),
			Connected: v.Connected,
			Latency:   v.Latency,
			Quality:   v.Quality.String(),
		}
		if !v.LastResyncAt.IsZero() {
			at := v.LastResyncAt
			out[i].LastResyncAt = &at
		}
	}
	return out
}

func (e *Engine) broadcast() {
	if e.bc == nil {
		return
	}
	e.bc.Broadcast(e.buildSnapshot())
}

func (e *Engine) record(t events.Type, deviceID, detail string, value float64) {
	e.events.Push(events.Event{
		At:       e.now(),
		Type:     t,
		DeviceID: deviceID,
		Detail:   detail,
		Value:    value,
	})
}

func invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidCommand, fmt.Sprintf(format, args...))
}
