// ABOUTME: Rendering device model: identity, class, connection state, resync bookkeeping
// ABOUTME: Mutable fields are guarded per device; the registry owns the collection
package device

import (
	"fmt"
	"sync"
	"time"

	"github.com/unison-audio/unison-go/internal/control"
)

// Class selects the latency prior used before a device is measured.
type Class string

const (
	ClassCast      Class = "cast"
	ClassBluetooth Class = "bluetooth"
	ClassWeb       Class = "web"
	ClassMobile    Class = "mobile"
)

// ParseClass validates a wire-format device class.
func ParseClass(s string) (Class, error) {
	switch Class(s) {
	case ClassCast, ClassBluetooth, ClassWeb, ClassMobile:
		return Class(s), nil
	default:
		return "", fmt.Errorf("unknown device class %q", s)
	}
}

// ConnState tracks the connection lifecycle of a device.
type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Connected
)

func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Device is one registered renderer. ID, Name, Class, and Controller are
// fixed at registration; everything else is runtime state.
type Device struct {
	ID         string
	Name       string
	Class      Class
	Controller control.Controller

	Profile *Profile

	mu             sync.Mutex
	connState      ConnState
	lastResyncAt   time.Time
	failures       int
	resyncInFlight bool
}

// New creates a device in the Connecting state with an unmeasured profile.
func New(id, name string, class Class, ctl control.Controller, profile *Profile) *Device {
	return &Device{
		ID:         id,
		Name:       name,
		Class:      class,
		Controller: ctl,
		Profile:    profile,
		connState:  Connecting,
	}
}

// SetConnState updates the connection lifecycle state.
func (d *Device) SetConnState(s ConnState) {
	d.mu.Lock()
	d.connState = s
	d.mu.Unlock()
}

// ConnState returns the current connection state.
func (d *Device) ConnState() ConnState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connState
}

// RecordFailure notes a failed probe or command and returns the consecutive
// failure count.
func (d *Device) RecordFailure() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures++
	return d.failures
}

// ResetFailures clears the consecutive failure count after a success.
func (d *Device) ResetFailures() {
	d.mu.Lock()
	d.failures = 0
	d.mu.Unlock()
}

// Failures returns the consecutive failure count.
func (d *Device) Failures() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.failures
}

// MarkResync records the instant a corrective seek was issued.
func (d *Device) MarkResync(at time.Time) {
	d.mu.Lock()
	d.lastResyncAt = at
	d.mu.Unlock()
}

// LastResync returns when the device was last resynced; zero means never.
func (d *Device) LastResync() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastResyncAt
}

// TryBeginResync claims the device's resync slot. It returns false while a
// previous resync is still in flight, which keeps corrective seeks for one
// device from overlapping.
func (d *Device) TryBeginResync() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.resyncInFlight {
		return false
	}
	d.resyncInFlight = true
	return true
}

// EndResync releases the resync slot.
func (d *Device) EndResync() {
	d.mu.Lock()
	d.resyncInFlight = false
	d.mu.Unlock()
}

// View is an immutable snapshot of a device for broadcasts and the TUI.
type View struct {
	ID           string
	Name         string
	Class        Class
	Connected    bool
	Latency      float64
	Quality      Quality
	LastResyncAt time.Time
}

// View captures the device's observable state at one instant.
func (d *Device) View() View {
	d.mu.Lock()
	connected := d.connState == Connected
	lastResync := d.lastResyncAt
	failures := d.failures
	d.mu.Unlock()

	return View{
		ID:           d.ID,
		Name:         d.Name,
		Class:        d.Class,
		Connected:    connected,
		Latency:      d.Profile.Estimate(),
		Quality:      d.Profile.QualityWithFailures(failures),
		LastResyncAt: lastResync,
	}
}
