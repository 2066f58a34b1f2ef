// ABOUTME: Command types and the state-machine dispatch for the engine loop
// ABOUTME: Transitions are serialized here; fan-out to devices happens off-loop
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/unison-audio/unison-go/internal/control"
	"github.com/unison-audio/unison-go/internal/core"
	"github.com/unison-audio/unison-go/internal/device"
	"github.com/unison-audio/unison-go/internal/events"
	"github.com/unison-audio/unison-go/internal/protocol"
	"github.com/unison-audio/unison-go/internal/stream"
)

type command interface{}

type cmdPlay struct{ resp chan error }
type cmdPause struct{ resp chan error }
type cmdSeek struct {
	pos  float64
	resp chan error
}
type cmdNext struct{ resp chan error }
type cmdPrevious struct{ resp chan error }
type cmdAdd struct {
	track core.Track
	resp  chan error
}
type cmdRemove struct {
	index int
	resp  chan error
}
type cmdClear struct{ resp chan error }
type cmdSkip struct {
	index int
	resp  chan error
}
type cmdMove struct {
	from, to int
	resp     chan error
}
type cmdDetach struct {
	id   string
	resp chan error
}
type cmdSnapshot struct{ resp chan protocol.State }
type cmdAttached struct{ dev *device.Device }
type cmdTrackEnd struct{ trackID string }
type cmdEvict struct {
	deviceID string
	reason   string
}
type cmdLoadDone struct {
	gen     int
	trackID string
	fromPos float64
	res     stream.Result
	err     error
}

func (e *Engine) dispatch(c command) {
	switch cmd := c.(type) {
	case cmdPlay:
		cmd.resp <- e.verdict("play", e.handlePlay())
	case cmdPause:
		cmd.resp <- e.verdict("pause", e.handlePause())
	case cmdSeek:
		cmd.resp <- e.verdict("seek", e.handleSeek(cmd.pos))
	case cmdNext:
		cmd.resp <- e.verdict("next", e.handleNext())
	case cmdPrevious:
		cmd.resp <- e.verdict("previous", e.handlePrevious())
	case cmdAdd:
		cmd.resp <- e.verdict("add", e.handleAdd(cmd.track))
	case cmdRemove:
		cmd.resp <- e.verdict("remove", e.handleRemove(cmd.index))
	case cmdClear:
		cmd.resp <- e.verdict("clear", e.handleClear())
	case cmdSkip:
		cmd.resp <- e.verdict("skip", e.handleSkip(cmd.index))
	case cmdMove:
		cmd.resp <- e.verdict("move", e.handleMove(cmd.from, cmd.to))
	case cmdDetach:
		cmd.resp <- e.verdict("detach", e.handleDetach(cmd.id))
	case cmdSnapshot:
		cmd.resp <- e.buildSnapshot()
	case cmdAttached:
		e.handleAttached(cmd.dev)
	case cmdTrackEnd:
		e.handleTrackEnd(cmd.trackID)
	case cmdEvict:
		e.handleEvict(cmd)
	case cmdLoadDone:
		e.handleLoadDone(cmd)
	}
}

// verdict books rejected commands in the event log on their way back to
// the caller.
func (e *Engine) verdict(action string, err error) error {
	if err != nil && errors.Is(err, ErrInvalidCommand) {
		e.record(events.TypeInvalidCommand, "", fmt.Sprintf("%s: %v", action, err), 0)
	}
	return err
}

func (e *Engine) handlePlay() error {
	switch e.phase {
	case core.PhasePlaying, core.PhaseLoading:
		// Already playing, or the requested track is being prepared.
		return nil
	case core.PhasePaused:
		e.tl.Resume()
		e.phase = core.PhasePlaying
		e.armEndTimer()
		e.startMonitor()
		e.fanOut("play", func(ctx context.Context, d *device.Device) error {
			return d.Controller.Play(ctx)
		})
		e.broadcast()
		return nil
	default:
		if e.queue.IsEmpty() {
			return invalidf("queue is empty")
		}
		if e.queue.Current() == nil {
			e.queue.SkipTo(0)
		}
		e.startCurrent(0)
		return nil
	}
}

func (e *Engine) handlePause() error {
	switch e.phase {
	case core.PhasePaused:
		return nil
	case core.PhasePlaying:
		e.tl.Pause()
		e.phase = core.PhasePaused
		e.stopMonitor()
		e.stopEndTimer()
		e.fanOut("pause", func(ctx context.Context, d *device.Device) error {
			return d.Controller.Pause(ctx)
		})
		e.broadcast()
		return nil
	default:
		return invalidf("nothing is playing")
	}
}

func (e *Engine) handleSeek(pos float64) error {
	if e.phase != core.PhasePlaying && e.phase != core.PhasePaused {
		return invalidf("seek with no current track")
	}
	if pos < 0 {
		pos = 0
	}
	if e.duration > 0 && pos > e.duration {
		pos = e.duration
	}
	e.tl.Seek(pos)
	if e.phase == core.PhasePlaying {
		e.armEndTimer()
	}
	e.fanOutSeek(pos)
	e.broadcast()
	return nil
}

func (e *Engine) handleNext() error {
	if e.phase == core.PhaseIdle {
		return invalidf("nothing is playing")
	}
	if !e.queue.Advance() {
		return invalidf("no next track")
	}
	e.startCurrent(0)
	return nil
}

func (e *Engine) handlePrevious() error {
	if e.phase == core.PhaseIdle {
		return invalidf("nothing is playing")
	}
	if e.queue.Retreat() {
		e.startCurrent(0)
		return nil
	}
	// Already at the front: restart the current track.
	if e.queue.Current() == nil {
		return invalidf("no current track")
	}
	e.startCurrent(0)
	return nil
}

func (e *Engine) handleAdd(t core.Track) error {
	wasEmpty := e.queue.IsEmpty()
	idx := e.queue.Add(t)
	log.Printf("Queued %s at %d", t.Name, idx)

	if wasEmpty && e.phase == core.PhaseIdle {
		e.queue.SkipTo(idx)
		e.startCurrent(0)
		return nil
	}
	e.broadcast()
	return nil
}

func (e *Engine) handleRemove(index int) error {
	removedCurrent, err := e.queue.RemoveAt(index)
	if err != nil {
		return invalidf("%v", err)
	}
	if !removedCurrent {
		e.broadcast()
		return nil
	}
	// The active entry is gone. Play whatever now occupies its index, or
	// run out.
	if e.queue.CurrentIndex < e.queue.Len() {
		e.startCurrent(0)
	} else {
		e.goIdle("active track removed at queue end")
	}
	return nil
}

func (e *Engine) handleClear() error {
	e.queue.Clear()
	if e.phase == core.PhaseIdle {
		e.broadcast()
		return nil
	}
	e.goIdle("queue cleared")
	return nil
}

func (e *Engine) handleSkip(index int) error {
	if err := e.queue.SkipTo(index); err != nil {
		return invalidf("%v", err)
	}
	e.startCurrent(0)
	return nil
}

func (e *Engine) handleMove(from, to int) error {
	if err := e.queue.Move(from, to); err != nil {
		return invalidf("%v", err)
	}
	e.broadcast()
	return nil
}

func (e *Engine) handleTrackEnd(trackID string) {
	cur := e.queue.Current()
	if e.phase != core.PhasePlaying || cur == nil || cur.ID != trackID {
		return
	}
	log.Printf("Track ended: %s", cur.Name)
	if e.queue.Advance() {
		e.startCurrent(0)
		return
	}
	e.goIdle("end of queue")
}

func (e *Engine) handleEvict(c cmdEvict) {
	d, ok := e.registry.Unregister(c.deviceID)
	if !ok {
		return
	}
	log.Printf("Device %s evicted: %s", c.deviceID, c.reason)
	e.record(events.TypeDeviceLost, c.deviceID, c.reason, 0)
	if d.Controller != nil {
		d.Controller.Close()
	}
	e.broadcast()
}

// startCurrent moves the state machine to Loading for the queue's current
// track and kicks off stream preparation. Any in-flight load for a
// different track is canceled here.
func (e *Engine) startCurrent(fromPos float64) {
	cur := e.queue.Current()
	if cur == nil {
		e.goIdle("no track selected")
		return
	}
	track := *cur

	e.cancelLoad()
	e.stopMonitor()
	e.stopEndTimer()
	e.releaseStream()
	e.tl.Stop()
	e.phase = core.PhaseLoading
	e.record(events.TypeTrackChange, "", "loading "+track.Name, 0)
	log.Printf("Loading %s from %.1fs", track.Name, fromPos)

	gen := e.loadGen
	ctx, cancel := context.WithCancel(context.Background())
	e.loadCancel = cancel

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		res, err := e.provider.Prepare(ctx, track)
		e.enqueue(cmdLoadDone{gen: gen, trackID: track.ID, fromPos: fromPos, res: res, err: err})
	}()

	e.broadcast()
}

func (e *Engine) handleLoadDone(c cmdLoadDone) {
	if c.gen != e.loadGen {
		// A newer start superseded this load; release the orphan stream.
		if c.err == nil && c.res.Handle.ID != "" {
			e.provider.Stop(c.res.Handle.ID)
		}
		return
	}
	if e.loadCancel != nil {
		e.loadCancel()
		e.loadCancel = nil
	}

	if c.err != nil {
		log.Printf("Stream preparation failed: %v", c.err)
		e.record(events.TypeStreamError, "", c.err.Error(), 0)
		if e.queue.Advance() {
			e.startCurrent(0)
		} else {
			e.goIdle("stream preparation failed")
		}
		return
	}

	cur := e.queue.Current()
	if cur == nil || cur.ID != c.trackID {
		e.provider.Stop(c.res.Handle.ID)
		e.goIdle("track changed during load")
		return
	}
	if c.res.Duration > 0 {
		cur.Duration = c.res.Duration
	}
	track := *cur

	e.handle = c.res.Handle
	e.duration = c.res.Duration
	e.tl.Start(track, c.fromPos)
	e.phase = core.PhasePlaying
	e.armEndTimer()
	e.fanOutStart(c.fromPos)
	e.startMonitor()
	log.Printf("Playing %s at %.1fs (duration %.1fs)", track.Name, c.fromPos, e.duration)
	e.broadcast()
}

// goIdle tears playback down to the idle state. The queue itself is left
// alone except for dropping the selection.
func (e *Engine) goIdle(reason string) {
	e.cancelLoad()
	e.stopMonitor()
	e.stopEndTimer()
	e.releaseStream()
	e.tl.Stop()
	e.queue.Deselect()
	e.phase = core.PhaseIdle
	log.Printf("Playback idle: %s", reason)
	e.fanOut("pause", func(ctx context.Context, d *device.Device) error {
		return d.Controller.Pause(ctx)
	})
	e.broadcast()
}

// cancelLoad invalidates any in-flight preparation. Bumping the generation
// makes a late cmdLoadDone stale.
func (e *Engine) cancelLoad() {
	if e.loadCancel != nil {
		e.loadCancel()
		e.loadCancel = nil
	}
	e.loadGen++
}

func (e *Engine) releaseStream() {
	if e.handle.ID != "" {
		e.provider.Stop(e.handle.ID)
		e.handle = stream.Handle{}
	}
	e.duration = 0
}

// armEndTimer schedules queue auto-advance for when the current track runs
// out. Tracks with unknown duration rely on the external track-end signal.
func (e *Engine) armEndTimer() {
	e.stopEndTimer()
	if e.duration <= 0 {
		return
	}
	cur := e.queue.Current()
	if cur == nil {
		return
	}
	trackID := cur.ID
	remaining := e.duration - e.tl.Position()
	if remaining < 0 {
		remaining = 0
	}
	e.endTimer = time.AfterFunc(time.Duration(remaining*float64(time.Second)), func() {
		e.enqueue(cmdTrackEnd{trackID: trackID})
	})
}

func (e *Engine) stopEndTimer() {
	if e.endTimer != nil {
		e.endTimer.Stop()
		e.endTimer = nil
	}
}

// deviceStart derives the position a device should sit at for a given
// master position and latency estimate.
func (e *Engine) deviceStart(masterPos, latency float64) float64 {
	pos := masterPos - e.cfg.Compensation*latency
	if pos < 0 {
		pos = 0
	}
	return pos
}

// fanOut runs one operation against every registered device concurrently.
// Each branch has its own timeout; failures are isolated and recorded, and
// never abort the others.
func (e *Engine) fanOut(op string, fn func(ctx context.Context, d *device.Device) error) {
	devices := e.registry.List()
	if len(devices) == 0 {
		return
	}
	g := new(errgroup.Group)
	for _, d := range devices {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), e.cfg.CommandTimeout)
			defer cancel()
			if err := fn(ctx, d); err != nil {
				e.deviceOpFailed(d, op, err)
			} else {
				d.ResetFailures()
			}
			return nil
		})
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		g.Wait()
	}()
}

func (e *Engine) fanOutStart(fromPos float64) {
	url := e.handle.URL
	e.fanOut("load", func(ctx context.Context, d *device.Device) error {
		start := e.deviceStart(fromPos, d.Profile.Estimate())
		if err := d.Controller.Load(ctx, url, start); err != nil {
			return err
		}
		return d.Controller.Play(ctx)
	})
}

func (e *Engine) fanOutSeek(pos float64) {
	e.fanOut("seek", func(ctx context.Context, d *device.Device) error {
		return d.Controller.Seek(ctx, e.deviceStart(pos, d.Profile.Estimate()))
	})
}

// deviceOpFailed books a failed per-device operation: rejections evict
// immediately, unreachable devices only after the failure threshold.
func (e *Engine) deviceOpFailed(d *device.Device, op string, err error) {
	failures := d.RecordFailure()
	log.Printf("Device %s %s failed (%d consecutive): %v", d.ID, op, failures, err)
	e.record(events.TypeDeviceDegraded, d.ID, fmt.Sprintf("%s failed: %v", op, err), 0)

	if errors.Is(err, control.ErrDeviceRejected) {
		e.enqueue(cmdEvict{deviceID: d.ID, reason: "rejected operation"})
		return
	}
	if failures >= e.cfg.FailureThreshold {
		e.enqueue(cmdEvict{deviceID: d.ID, reason: fmt.Sprintf("%d consecutive failures", failures)})
	}
}
