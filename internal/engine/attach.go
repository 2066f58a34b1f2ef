// ABOUTME: Device attach and detach paths, including late join into playback
// ABOUTME: Calibration happens off-loop; the loop only folds the result in
package engine

import (
	"context"
	"fmt"
	"log"

	"github.com/unison-audio/unison-go/internal/control"
	"github.com/unison-audio/unison-go/internal/core"
	"github.com/unison-audio/unison-go/internal/device"
	"github.com/unison-audio/unison-go/internal/events"
)

// Attach registers a device, calibrates its latency profile, and hands it
// to the engine loop. If playback is active the device is late-joined at
// the compensated master position. Safe to call from any goroutine; the
// calibration probes run here, not on the loop.
func (e *Engine) Attach(ctx context.Context, id, name string, class device.Class, ctl control.Controller) error {
	d, err := e.registry.Register(ctx, id, name, class, ctl)
	if err != nil {
		return err
	}
	est := d.Profile.Estimate()
	if d.Profile.Measured() {
		e.record(events.TypeCalibration, id, "registration probes", est)
	} else {
		e.record(events.TypeCalibration, id, fmt.Sprintf("probes failed, on %s prior", class), est)
	}
	e.record(events.TypeDeviceAttached, id, fmt.Sprintf("%s (%s)", name, class), est)
	log.Printf("Device attached: %s (%s, %s, latency %.0fms)", name, id, class, est*1000)
	e.enqueue(cmdAttached{dev: d})
	return nil
}

// Detach removes a device from the group. Playback for the remaining
// devices is unaffected.
func (e *Engine) Detach(id string) error {
	resp := make(chan error, 1)
	return e.do(cmdDetach{id: id, resp: resp}, resp)
}

func (e *Engine) handleAttached(d *device.Device) {
	// The device may have been evicted or detached while the attach
	// command sat in the queue.
	if _, ok := e.registry.Get(d.ID); !ok {
		return
	}
	if e.phase != core.PhasePlaying {
		e.broadcast()
		return
	}

	// Late join: start behind the master by the latency estimate so audio
	// lines up once the device's pipeline delay has elapsed.
	masterPos := e.tl.Position()
	start := e.deviceStart(masterPos, d.Profile.Estimate())
	url := e.handle.URL

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), e.cfg.CommandTimeout)
		defer cancel()
		if err := d.Controller.Load(ctx, url, start); err != nil {
			e.lateJoinFailed(d, err)
			return
		}
		if err := d.Controller.Play(ctx); err != nil {
			e.lateJoinFailed(d, err)
			return
		}
		log.Printf("Late join: %s started at %.2fs (master %.2fs)", d.ID, start, masterPos)
	}()
	e.broadcast()
}

func (e *Engine) lateJoinFailed(d *device.Device, err error) {
	log.Printf("Late join failed for %s: %v", d.ID, err)
	e.record(events.TypeDeviceDegraded, d.ID, fmt.Sprintf("late join failed: %v", err), 0)
	e.enqueue(cmdEvict{deviceID: d.ID, reason: "late join failed"})
}

func (e *Engine) handleDetach(id string) error {
	d, ok := e.registry.Unregister(id)
	if !ok {
		return invalidf("device %s not attached", id)
	}
	e.record(events.TypeDeviceDetached, id, d.Name, 0)
	log.Printf("Device detached: %s", id)
	if d.Controller != nil {
		d.Controller.Close()
	}
	e.broadcast()
	return nil
}
