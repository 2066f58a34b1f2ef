// ABOUTME: Local stream provider serving media files over the server's HTTP mux
// ABOUTME: MP3 sources get a duration probe; http(s) sources pass through untouched
package stream

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	mp3 "github.com/hajimehoshi/go-mp3"

	"github.com/unison-audio/unison-go/internal/core"
)

// mp3FrameBytes is the decoded bytes per sample frame (16-bit stereo).
const mp3FrameBytes = 4

// Local serves files below a media root at baseURL/streams/<id>. Sources
// that are already http(s) URLs are handed to devices as-is.
type Local struct {
	root    string
	baseURL string

	mu      sync.RWMutex
	handles map[string]string // handle ID -> absolute file path
}

// NewLocal creates a provider rooted at dir. baseURL is the externally
// reachable server base, e.g. "http://192.168.1.10:8931".
func NewLocal(dir, baseURL string) *Local {
	return &Local{
		root:    dir,
		baseURL: strings.TrimRight(baseURL, "/"),
		handles: make(map[string]string),
	}
}

// Prepare resolves a track source to a served URL. File sources must live
// below the media root.
func (l *Local) Prepare(ctx context.Context, track core.Track) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("prepare %s: %w", track.Name, ErrPreparation)
	}

	if strings.HasPrefix(track.Source, "http://") || strings.HasPrefix(track.Source, "https://") {
		return Result{Handle: Handle{ID: uuid.New().String(), URL: track.Source}}, nil
	}

	path, err := l.resolve(track.Source)
	if err != nil {
		return Result{}, fmt.Errorf("prepare %s: %v: %w", track.Name, err, ErrPreparation)
	}

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return Result{}, fmt.Errorf("prepare %s: source %s not readable: %w", track.Name, track.Source, ErrPreparation)
	}

	var duration float64
	if strings.EqualFold(filepath.Ext(path), ".mp3") {
		duration, err = probeMP3Duration(path)
		if err != nil {
			// Not fatal: the stream still plays, only auto-advance
			// loses its timer.
			log.Printf("Duration probe failed for %s: %v", track.Source, err)
			duration = 0
		}
	}

	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("prepare %s: %w", track.Name, ErrPreparation)
	}

	id := uuid.New().String()
	l.mu.Lock()
	l.handles[id] = path
	l.mu.Unlock()

	return Result{
		Handle:   Handle{ID: id, URL: l.baseURL + "/streams/" + id},
		Duration: duration,
	}, nil
}

// Stop revokes a handle. Requests for it 404 afterwards.
func (l *Local) Stop(handleID string) {
	l.mu.Lock()
	delete(l.handles, handleID)
	l.mu.Unlock()
}

// ServeHTTP serves prepared streams; mount it at /streams/.
func (l *Local) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/streams/")
	l.mu.RLock()
	path, ok := l.handles[id]
	l.mu.RUnlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	// ServeFile handles range requests, which renderers use to seek.
	http.ServeFile(w, r, path)
}

// resolve joins a source reference onto the media root, refusing paths that
// escape it.
func (l *Local) resolve(source string) (string, error) {
	if l.root == "" {
		return "", fmt.Errorf("no media root configured")
	}
	root, err := filepath.Abs(l.root)
	if err != nil {
		return "", err
	}
	joined := filepath.Join(root, filepath.FromSlash(source))
	if joined != root && !strings.HasPrefix(joined, root+string(filepath.Separator)) {
		return "", fmt.Errorf("source %q escapes media root", source)
	}
	return joined, nil
}

// probeMP3Duration reads just enough of the file to compute its play time.
func probeMP3Duration(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return 0, err
	}
	length := dec.Length()
	if length <= 0 || dec.SampleRate() <= 0 {
		return 0, fmt.Errorf("length unavailable")
	}
	return float64(length) / float64(mp3FrameBytes*dec.SampleRate()), nil
}
