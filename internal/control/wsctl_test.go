// ABOUTME: Tests for the WebSocket renderer controller
// ABOUTME: Exercises request correlation, rejection, timeout, and shutdown paths
package control

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/unison-audio/unison-go/internal/protocol"
)

// reqIDOf digs the correlation ID out of an outbound renderer message.
func reqIDOf(msg protocol.Message) string {
	switch p := msg.Payload.(type) {
	case protocol.RendererLoad:
		return p.ReqID
	case protocol.RendererSeek:
		return p.ReqID
	case protocol.RendererCommand:
		return p.ReqID
	default:
		return ""
	}
}

func TestWSControllerStatusRoundTrip(t *testing.T) {
	var ctl *WSController
	ctl = NewWSController(func(msg protocol.Message) error {
		if msg.Type != protocol.TypeRendererStatus {
			return fmt.Errorf("unexpected type %s", msg.Type)
		}
		go ctl.HandleResult(protocol.RendererResult{
			ReqID:    reqIDOf(msg),
			OK:       true,
			Position: 12.5,
			State:    StatePlaying,
		})
		return nil
	}, time.Second)

	st, err := ctl.Status(context.Background())
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if st.Position != 12.5 || st.State != StatePlaying {
		t.Errorf("expected position 12.5 playing, got %f %s", st.Position, st.State)
	}
}

func TestWSControllerLoadCarriesOffset(t *testing.T) {
	var got protocol.RendererLoad
	var ctl *WSController
	ctl = NewWSController(func(msg protocol.Message) error {
		got = msg.Payload.(protocol.RendererLoad)
		go ctl.HandleResult(protocol.RendererResult{ReqID: got.ReqID, OK: true})
		return nil
	}, time.Second)

	if err := ctl.Load(context.Background(), "http://host/streams/s1", 39.92); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.URL != "http://host/streams/s1" || got.Position != 39.92 {
		t.Errorf("expected load at 39.92, got %s at %f", got.URL, got.Position)
	}
}

func TestWSControllerRejection(t *testing.T) {
	var ctl *WSController
	ctl = NewWSController(func(msg protocol.Message) error {
		go ctl.HandleResult(protocol.RendererResult{
			ReqID: reqIDOf(msg),
			OK:    false,
			Error: "unsupported stream format",
		})
		return nil
	}, time.Second)

	err := ctl.Play(context.Background())
	if !errors.Is(err, ErrDeviceRejected) {
		t.Errorf("expected ErrDeviceRejected, got %v", err)
	}
}

func TestWSControllerTimeout(t *testing.T) {
	ctl := NewWSController(func(msg protocol.Message) error {
		return nil // never answered
	}, 30*time.Millisecond)

	start := time.Now()
	err := ctl.Pause(context.Background())
	if !errors.Is(err, ErrDeviceUnreachable) {
		t.Errorf("expected ErrDeviceUnreachable, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("timeout took far longer than configured")
	}
}

func TestWSControllerContextDeadlineWins(t *testing.T) {
	ctl := NewWSController(func(msg protocol.Message) error {
		return nil
	}, 10*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := ctl.Seek(ctx, 5)
	if !errors.Is(err, ErrDeviceUnreachable) {
		t.Errorf("expected ErrDeviceUnreachable, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("caller deadline was not honored")
	}
}

func TestWSControllerSendFailure(t *testing.T) {
	ctl := NewWSController(func(msg protocol.Message) error {
		return errors.New("broken pipe")
	}, time.Second)

	if err := ctl.Play(context.Background()); !errors.Is(err, ErrDeviceUnreachable) {
		t.Errorf("expected ErrDeviceUnreachable on send failure, got %v", err)
	}
}

func TestWSControllerShutdownFailsInflight(t *testing.T) {
	ctl := NewWSController(func(msg protocol.Message) error {
		return nil
	}, 10*time.Second)

	done := make(chan error, 1)
	go func() {
		done <- ctl.Play(context.Background())
	}()

	time.Sleep(20 * time.Millisecond)
	ctl.Shutdown()

	select {
	case err := <-done:
		if !errors.Is(err, ErrDeviceUnreachable) {
			t.Errorf("expected ErrDeviceUnreachable after shutdown, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("request did not fail after shutdown")
	}

	// New requests fail immediately once shut down.
	if err := ctl.Pause(context.Background()); !errors.Is(err, ErrDeviceUnreachable) {
		t.Errorf("expected immediate failure after shutdown, got %v", err)
	}
}

func TestWSControllerStaleResultDropped(t *testing.T) {
	ctl := NewWSController(func(msg protocol.Message) error { return nil }, time.Second)
	// A result for an unknown req_id must not panic or block.
	ctl.HandleResult(protocol.RendererResult{ReqID: "stale", OK: true})
}
