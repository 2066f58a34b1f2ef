// ABOUTME: Stream provider contract: turn a track source into a consumable URL
// ABOUTME: The engine requests streams on start and releases them on stop
package stream

import (
	"context"
	"errors"

	"github.com/unison-audio/unison-go/internal/core"
)

// ErrPreparation means the provider could not produce a stream for a track.
// The engine treats it as a per-track playback error, never fatal.
var ErrPreparation = errors.New("stream preparation failed")

// Handle identifies a prepared stream and where devices can fetch it.
type Handle struct {
	ID  string
	URL string
}

// Result is what preparation yields. Duration is in seconds and zero when
// the provider cannot determine it.
type Result struct {
	Handle   Handle
	Duration float64
}

// Provider prepares and releases streams. Prepare must honor context
// cancellation; a canceled preparation leaves nothing registered.
type Provider interface {
	Prepare(ctx context.Context, track core.Track) (Result, error)
	Stop(handleID string)
}
