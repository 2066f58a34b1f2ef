// ABOUTME: Cast-control contract every renderer implements, plus its error taxonomy
// ABOUTME: The engine only talks to devices through this interface
package control

import (
	"context"
	"errors"
)

// Player states reported by renderers in Status replies.
const (
	StateIdle    = "idle"
	StatePlaying = "playing"
	StatePaused  = "paused"
)

// Sentinel errors for device operations. Callers classify failures with
// errors.Is; everything else counts as unreachable.
var (
	// ErrDeviceUnreachable means the device did not answer within the
	// operation's timeout.
	ErrDeviceUnreachable = errors.New("device unreachable")

	// ErrDeviceRejected means the device answered but refused the
	// operation, e.g. an unsupported stream.
	ErrDeviceRejected = errors.New("device rejected operation")
)

// Status is a renderer's self-reported playback state.
type Status struct {
	Position float64
	State    string
}

// Controller drives one rendering device. Implementations must honor the
// context deadline on every call; a timeout surfaces as
// ErrDeviceUnreachable, a protocol-level refusal as ErrDeviceRejected.
type Controller interface {
	// Load points the device at a stream and positions it at startPos
	// seconds without starting playback.
	Load(ctx context.Context, url string, startPos float64) error

	// Play starts or resumes rendering.
	Play(ctx context.Context) error

	// Pause halts rendering, keeping position.
	Pause(ctx context.Context) error

	// Seek repositions the device's stream.
	Seek(ctx context.Context, pos float64) error

	// Status queries the device's current position and player state.
	Status(ctx context.Context) (Status, error)

	// Close releases the underlying transport.
	Close() error
}
