// ABOUTME: Registry of attached devices with registration-time latency calibration
// ABOUTME: Probes are timed status queries; failures fall back to class priors
package device

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/unison-audio/unison-go/internal/control"
)

// Config bounds the registry's probing behavior.
type Config struct {
	ProbeTimeout      time.Duration
	CalibrationProbes int
	CalibrationGap    time.Duration
	WindowSize        int
	MaxLatency        float64
	Priors            map[Class]float64
	Clock             func() time.Time
}

func (c Config) withDefaults() Config {
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 3 * time.Second
	}
	if c.CalibrationProbes < 1 {
		c.CalibrationProbes = 3
	}
	if c.CalibrationGap <= 0 {
		c.CalibrationGap = 50 * time.Millisecond
	}
	if c.WindowSize < 1 {
		c.WindowSize = DefaultWindowSize
	}
	if c.MaxLatency <= 0 {
		c.MaxLatency = DefaultCeiling
	}
	if c.Priors == nil {
		c.Priors = DefaultPriors
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}

// Registry tracks every currently attached rendering device.
type Registry struct {
	cfg Config
	now func() time.Time

	mu      sync.RWMutex
	devices map[string]*Device
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config) *Registry {
	cfg = cfg.withDefaults()
	return &Registry{
		cfg:     cfg,
		now:     cfg.Clock,
		devices: make(map[string]*Device),
	}
}

// Register adds a device and calibrates its latency profile. The device is
// stored before calibration so it is visible in Connecting state; it ends
// Connected even if every probe failed, running on its class prior.
// Registering an ID that is already present is an error.
func (r *Registry) Register(ctx context.Context, id, name string, class Class, ctl control.Controller) (*Device, error) {
	profile := NewProfile(PriorFor(r.cfg.Priors, class), r.cfg.MaxLatency, r.cfg.WindowSize)
	d := New(id, name, class, ctl, profile)

	r.mu.Lock()
	if _, exists := r.devices[id]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("device %s already registered", id)
	}
	r.devices[id] = d
	r.mu.Unlock()

	r.Calibrate(ctx, d)
	d.SetConnState(Connected)
	return d, nil
}

// Unregister removes a device, returning it for the caller to tear down.
func (r *Registry) Unregister(id string) (*Device, bool) {
	r.mu.Lock()
	d, ok := r.devices[id]
	if ok {
		delete(r.devices, id)
	}
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	d.SetConnState(Disconnected)
	return d, true
}

// Get looks up a device by ID.
func (r *Registry) Get(id string) (*Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[id]
	return d, ok
}

// List returns all devices ordered by ID for stable iteration.
func (r *Registry) List() []*Device {
	r.mu.RLock()
	out := make([]*Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of registered devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// Views snapshots every device for broadcasts, ordered by ID.
func (r *Registry) Views() []View {
	devices := r.List()
	out := make([]View, len(devices))
	for i, d := range devices {
		out[i] = d.View()
	}
	return out
}

// Calibrate measures the device several times, spaced by the configured
// gap, and installs the median of the successful samples. If every probe
// fails the profile stays on its class prior.
func (r *Registry) Calibrate(ctx context.Context, d *Device) {
	samples := make([]float64, 0, r.cfg.CalibrationProbes)
	for i := 0; i < r.cfg.CalibrationProbes; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(r.cfg.CalibrationGap):
			}
		}
		s, err := r.timedProbe(ctx, d)
		if err != nil {
			log.Printf("Calibration probe %d/%d failed for %s: %v", i+1, r.cfg.CalibrationProbes, d.ID, err)
			continue
		}
		samples = append(samples, s)
	}

	if len(samples) == 0 {
		log.Printf("Calibration failed for %s, using %s prior %.0fms",
			d.ID, d.Class, d.Profile.Estimate()*1000)
		return
	}

	est := median(samples)
	d.Profile.SetCalibration(est)
	log.Printf("Calibrated %s: %.0fms over %d probes", d.ID, est*1000, len(samples))
}

// MeasureLatency runs one probe against a registered device, appending the
// sample to its window. It fails with control.ErrDeviceUnreachable when the
// device does not answer within the probe timeout.
func (r *Registry) MeasureLatency(ctx context.Context, id string) (float64, error) {
	d, ok := r.Get(id)
	if !ok {
		return 0, fmt.Errorf("device %s not registered", id)
	}
	_, sample, err := r.TimedStatus(ctx, d)
	return sample, err
}

// TimedStatus queries a device's status while timing the round trip. On
// success the elapsed time lands in the latency window and the failure
// count resets; on failure the failure count grows. This is the periodic
// probe the drift monitor rides on.
func (r *Registry) TimedStatus(ctx context.Context, d *Device) (control.Status, float64, error) {
	pctx, cancel := context.WithTimeout(ctx, r.cfg.ProbeTimeout)
	defer cancel()

	start := r.now()
	st, err := d.Controller.Status(pctx)
	if err != nil {
		d.RecordFailure()
		return control.Status{}, 0, err
	}
	elapsed := r.now().Sub(start).Seconds()

	stored := d.Profile.AddSample(elapsed)
	if stored != elapsed {
		log.Printf("Latency sample for %s clamped: %.3fs -> %.3fs", d.ID, elapsed, stored)
	}
	d.ResetFailures()
	return st, stored, nil
}

func (r *Registry) timedProbe(ctx context.Context, d *Device) (float64, error) {
	pctx, cancel := context.WithTimeout(ctx, r.cfg.ProbeTimeout)
	defer cancel()

	start := r.now()
	if _, err := d.Controller.Status(pctx); err != nil {
		return 0, err
	}
	return r.now().Sub(start).Seconds(), nil
}
