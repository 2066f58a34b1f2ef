// ABOUTME: Periodic drift monitor comparing device positions to the master
// ABOUTME: Corrections are throttled per device and never overlap
package engine

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/unison-audio/unison-go/internal/device"
	"github.com/unison-audio/unison-go/internal/events"
)

// MonitorStats summarizes drift-monitor activity since the engine started.
type MonitorStats struct {
	Ticks     int64 `json:"ticks"`
	Checked   int64 `json:"checked"`
	Resyncs   int64 `json:"resyncs"`
	Throttled int64 `json:"throttled"`
	Failures  int64 `json:"failures"`
}

type monitorStats struct {
	ticks     atomic.Int64
	checked   atomic.Int64
	resyncs   atomic.Int64
	throttled atomic.Int64
	failures  atomic.Int64
}

func (s *monitorStats) snapshot() MonitorStats {
	return MonitorStats{
		Ticks:     s.ticks.Load(),
		Checked:   s.checked.Load(),
		Resyncs:   s.resyncs.Load(),
		Throttled: s.throttled.Load(),
		Failures:  s.failures.Load(),
	}
}

type driftMonitor struct {
	cancel context.CancelFunc
}

// startMonitor spins up the drift loop. It runs only while playing; pause
// and idle transitions stop it.
func (e *Engine) startMonitor() {
	if e.monitor != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.monitor = &driftMonitor{cancel: cancel}
	e.wg.Add(1)
	go e.monitorLoop(ctx)
}

func (e *Engine) stopMonitor() {
	if e.monitor == nil {
		return
	}
	e.monitor.cancel()
	e.monitor = nil
}

func (e *Engine) monitorLoop(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.cfg.MonitorPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.checkDrift(ctx)
		}
	}
}

// checkDrift probes every device once. Devices are checked concurrently so
// one slow renderer cannot starve the others' corrections.
func (e *Engine) checkDrift(ctx context.Context) {
	if !e.tl.Playing() {
		return
	}
	devices := e.registry.List()
	if len(devices) == 0 {
		return
	}
	e.stats.ticks.Add(1)

	g := new(errgroup.Group)
	for _, d := range devices {
		g.Go(func() error {
			e.checkDevice(ctx, d)
			return nil
		})
	}
	g.Wait()
}

func (e *Engine) checkDevice(ctx context.Context, d *device.Device) {
	e.stats.checked.Add(1)

	st, _, err := e.registry.TimedStatus(ctx, d)
	if err != nil {
		e.stats.failures.Add(1)
		log.Printf("Drift check: %s unreachable: %v", d.ID, err)
		e.record(events.TypeDeviceDegraded, d.ID, fmt.Sprintf("status query failed: %v", err), 0)
		if d.Failures() >= e.cfg.FailureThreshold {
			e.enqueue(cmdEvict{deviceID: d.ID, reason: fmt.Sprintf("%d consecutive failures", d.Failures())})
		}
		return
	}

	masterPos := e.tl.Position()
	expected := e.deviceStart(masterPos, d.Profile.Estimate())
	drift := math.Abs(st.Position - expected)
	if drift <= e.cfg.SyncTolerance {
		return
	}

	e.record(events.TypeDriftDetected, d.ID, fmt.Sprintf("reported %.2fs, expected %.2fs", st.Position, expected), drift)

	now := e.now()
	if now.Sub(d.LastResync()) < e.cfg.MinResyncInterval {
		e.stats.throttled.Add(1)
		log.Printf("Drift %.0fms on %s exceeds tolerance, resync throttled", drift*1000, d.ID)
		e.record(events.TypeResyncSkipped, d.ID, "inside throttle window", drift)
		return
	}
	if !d.TryBeginResync() {
		return
	}
	defer d.EndResync()

	sctx, cancel := context.WithTimeout(ctx, e.cfg.CommandTimeout)
	defer cancel()
	if err := d.Controller.Seek(sctx, expected); err != nil {
		e.stats.failures.Add(1)
		e.deviceOpFailed(d, "resync seek", err)
		return
	}
	d.MarkResync(now)
	e.stats.resyncs.Add(1)
	log.Printf("Resynced %s: drift %.0fms, seek to %.2fs", d.ID, drift*1000, expected)
	e.record(events.TypeResync, d.ID, fmt.Sprintf("seek to %.2fs", expected), drift)
}
