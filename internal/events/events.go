// ABOUTME: Sync event records and the bounded log that retains them
// ABOUTME: Fixed-capacity ring; when full the oldest entries are discarded
package events

import (
	"sync"
	"time"
)

// Type classifies a sync event.
type Type string

const (
	TypeCalibration    Type = "calibration"
	TypeDriftDetected  Type = "drift_detected"
	TypeResync         Type = "resync"
	TypeResyncSkipped  Type = "resync_throttled"
	TypeDeviceAttached Type = "device_attached"
	TypeDeviceDetached Type = "device_detached"
	TypeDeviceDegraded Type = "device_degraded"
	TypeDeviceLost     Type = "device_lost"
	TypeStreamError    Type = "stream_error"
	TypeTrackChange    Type = "track_change"
	TypeInvalidCommand Type = "invalid_command"
)

// Event is one timestamped observability record. Value carries the metric
// relevant to the type: measured latency for calibration, drift magnitude
// for drift and resync events, zero otherwise.
type Event struct {
	At       time.Time `json:"at"`
	Type     Type      `json:"type"`
	DeviceID string    `json:"device_id,omitempty"`
	Detail   string    `json:"detail,omitempty"`
	Value    float64   `json:"value,omitempty"`
}

// DefaultCapacity bounds the log when no capacity is configured.
const DefaultCapacity = 500

// Log is a fixed-capacity event ring. When full, Push overwrites the oldest
// entry. All methods are safe for concurrent use.
type Log struct {
	mu    sync.RWMutex
	buf   []Event
	head  int
	count int
}

// NewLog creates a log holding at most capacity events. Non-positive
// capacities fall back to DefaultCapacity.
func NewLog(capacity int) *Log {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Log{buf: make([]Event, capacity)}
}

// Push appends an event, discarding the oldest if the log is full.
func (l *Log) Push(e Event) {
	l.mu.Lock()
	idx := (l.head + l.count) % len(l.buf)
	l.buf[idx] = e
	if l.count == len(l.buf) {
		l.head = (l.head + 1) % len(l.buf)
	} else {
		l.count++
	}
	l.mu.Unlock()
}

// Recent returns up to n events, oldest first, ending with the newest. A
// non-positive n returns everything retained.
func (l *Log) Recent(n int) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if n <= 0 || n > l.count {
		n = l.count
	}
	out := make([]Event, n)
	start := l.count - n
	for i := 0; i < n; i++ {
		out[i] = l.buf[(l.head+start+i)%len(l.buf)]
	}
	return out
}

// Len returns the number of events retained.
func (l *Log) Len() int {
	l.mu.RLock()
	n := l.count
	l.mu.RUnlock()
	return n
}

// Capacity returns the maximum number of events the log retains.
func (l *Log) Capacity() int {
	return len(l.buf)
}
