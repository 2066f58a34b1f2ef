// ABOUTME: Tests for the local stream provider
// ABOUTME: Covers handle registration, serving, revocation, and root confinement
package stream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/unison-audio/unison-go/internal/core"
)

func writeMediaFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write media file: %v", err)
	}
}

func TestPrepareAndServe(t *testing.T) {
	dir := t.TempDir()
	writeMediaFile(t, dir, "song.wav", "fake audio bytes")
	l := NewLocal(dir, "http://127.0.0.1:8931")

	res, err := l.Prepare(context.Background(), core.Track{Name: "Song", Source: "song.wav"})
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if res.Handle.ID == "" {
		t.Error("expected a handle ID")
	}
	if !strings.HasPrefix(res.Handle.URL, "http://127.0.0.1:8931/streams/") {
		t.Errorf("unexpected stream URL %s", res.Handle.URL)
	}
	if res.Duration != 0 {
		t.Errorf("expected unknown duration for non-mp3, got %f", res.Duration)
	}

	req := httptest.NewRequest(http.MethodGet, "/streams/"+res.Handle.ID, nil)
	rec := httptest.NewRecorder()
	l.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 serving stream, got %d", rec.Code)
	}
	if rec.Body.String() != "fake audio bytes" {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
}

func TestStopRevokesHandle(t *testing.T) {
	dir := t.TempDir()
	writeMediaFile(t, dir, "song.wav", "x")
	l := NewLocal(dir, "http://h")

	res, err := l.Prepare(context.Background(), core.Track{Source: "song.wav"})
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	l.Stop(res.Handle.ID)

	req := httptest.NewRequest(http.MethodGet, "/streams/"+res.Handle.ID, nil)
	rec := httptest.NewRecorder()
	l.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 after Stop, got %d", rec.Code)
	}
}

func TestPrepareMissingFile(t *testing.T) {
	l := NewLocal(t.TempDir(), "http://h")
	_, err := l.Prepare(context.Background(), core.Track{Name: "Nope", Source: "missing.mp3"})
	if !errors.Is(err, ErrPreparation) {
		t.Errorf("expected ErrPreparation, got %v", err)
	}
}

func TestPrepareRefusesEscape(t *testing.T) {
	l := NewLocal(t.TempDir(), "http://h")
	_, err := l.Prepare(context.Background(), core.Track{Source: "../../etc/passwd"})
	if !errors.Is(err, ErrPreparation) {
		t.Errorf("expected ErrPreparation for escaping source, got %v", err)
	}
}

func TestPrepareHTTPPassthrough(t *testing.T) {
	l := NewLocal(t.TempDir(), "http://h")
	res, err := l.Prepare(context.Background(), core.Track{Source: "https://radio.example/live.mp3"})
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if res.Handle.URL != "https://radio.example/live.mp3" {
		t.Errorf("expected passthrough URL, got %s", res.Handle.URL)
	}
}

func TestPrepareCanceledContext(t *testing.T) {
	dir := t.TempDir()
	writeMediaFile(t, dir, "song.wav", "x")
	l := NewLocal(dir, "http://h")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := l.Prepare(ctx, core.Track{Source: "song.wav"}); !errors.Is(err, ErrPreparation) {
		t.Errorf("expected ErrPreparation for canceled context, got %v", err)
	}
}
