// ABOUTME: Message dispatch for controller commands and renderer results
// ABOUTME: Maps engine and device errors onto protocol error codes for the issuer
package server

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/unison-audio/unison-go/internal/control"
	"github.com/unison-audio/unison-go/internal/core"
	"github.com/unison-audio/unison-go/internal/device"
	"github.com/unison-audio/unison-go/internal/engine"
	"github.com/unison-audio/unison-go/internal/protocol"
	"github.com/unison-audio/unison-go/internal/stream"
)

// handleClientMessage processes one message from a connected client.
// Rejections go back to the issuer only; accepted commands answer through
// the state broadcast.
func (s *Server) handleClientMessage(c *client, msg protocol.Message) {
	switch msg.Type {
	case protocol.TypeCommand:
		var cmd protocol.Command
		if err := protocol.DecodePayload(msg, &cmd); err != nil {
			log.Printf("Bad command from %s: %v", c.name, err)
			s.sendError(c.id, protocol.CodeInvalidCommand, "malformed command payload")
			return
		}
		if err := s.dispatchCommand(c, cmd); err != nil {
			log.Printf("Command %q from %s rejected: %v", cmd.Action, c.name, err)
			s.sendError(c.id, errorCode(err), err.Error())
		}

	case protocol.TypeEventsQuery:
		var q protocol.EventsQuery
		if err := protocol.DecodePayload(msg, &q); err != nil {
			log.Printf("Bad events query from %s: %v", c.name, err)
			return
		}
		payload := protocol.EventsPayload{Events: s.eng.Events(q.Limit)}
		if err := s.send(c.id, protocol.Message{Type: protocol.TypeEvents, Payload: payload}); err != nil {
			log.Printf("Events delivery to %s failed: %v", c.name, err)
		}

	case protocol.TypeRendererResult:
		if c.ctl == nil {
			log.Printf("Renderer result from non-renderer %s", c.name)
			return
		}
		var res protocol.RendererResult
		if err := protocol.DecodePayload(msg, &res); err != nil {
			log.Printf("Bad renderer result from %s: %v", c.name, err)
			return
		}
		c.ctl.HandleResult(res)

	default:
		log.Printf("Unknown message type: %s", msg.Type)
	}
}

func (s *Server) dispatchCommand(c *client, cmd protocol.Command) error {
	switch cmd.Action {
	case protocol.ActionPlay:
		return s.eng.Play()
	case protocol.ActionPause:
		return s.eng.Pause()
	case protocol.ActionSeek:
		return s.eng.Seek(cmd.Position)
	case protocol.ActionNext:
		return s.eng.Next()
	case protocol.ActionPrevious:
		return s.eng.Previous()
	case protocol.ActionAdd:
		if cmd.Track == nil || cmd.Track.Source == "" {
			return fmt.Errorf("%w: add requires a track with a source", engine.ErrInvalidCommand)
		}
		name := cmd.Track.Name
		if name == "" {
			name = cmd.Track.Source
		}
		return s.eng.AddTrack(core.NewTrack(name, cmd.Track.Source))
	case protocol.ActionRemove:
		return s.eng.RemoveTrack(cmd.Index)
	case protocol.ActionClear:
		return s.eng.ClearQueue()
	case protocol.ActionSkip:
		return s.eng.SkipTo(cmd.Index)
	case protocol.ActionMove:
		return s.eng.MoveTrack(cmd.From, cmd.To)
	case protocol.ActionAttach:
		return s.attachDevice(c, cmd.DeviceID)
	case protocol.ActionDetach:
		if cmd.DeviceID == "" {
			return fmt.Errorf("%w: detach requires a device ID", engine.ErrInvalidCommand)
		}
		return s.eng.Detach(cmd.DeviceID)
	default:
		return fmt.Errorf("%w: unknown action %q", engine.ErrInvalidCommand, cmd.Action)
	}
}

// attachDevice dials a discovered renderer daemon and hands it to the
// engine. Dial and calibration take network time, so they run off the
// connection goroutine; failures are reported to the issuer only.
func (s *Server) attachDevice(c *client, id string) error {
	if id == "" {
		return fmt.Errorf("%w: attach requires a device ID", engine.ErrInvalidCommand)
	}

	s.resolverMu.RLock()
	resolve := s.resolver
	s.resolverMu.RUnlock()
	if resolve == nil {
		return fmt.Errorf("%w: device discovery is not running", engine.ErrInvalidCommand)
	}

	addr, name, class, ok := resolve(id)
	if !ok {
		return fmt.Errorf("%w: no discovered device %s", engine.ErrInvalidCommand, id)
	}
	dc, err := device.ParseClass(class)
	if err != nil {
		dc = device.ClassWeb
	}

	issuer := c.id
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CommandTimeout)
		defer cancel()

		ctl, err := control.Dial(ctx, addr, s.cfg.CommandTimeout)
		if err != nil {
			log.Printf("Attach dial for %s failed: %v", id, err)
			s.sendError(issuer, errorCode(err), err.Error())
			return
		}
		if err := s.eng.Attach(ctx, id, name, dc, ctl); err != nil {
			ctl.Close()
			log.Printf("Attach of %s failed: %v", id, err)
			s.sendError(issuer, errorCode(err), err.Error())
		}
	}()
	return nil
}

func (s *Server) sendError(id, code, message string) {
	if err := s.send(id, errorMessage(code, message)); err != nil {
		log.Printf("Error delivery to %s failed: %v", id, err)
	}
}

// errorCode picks the wire code for a rejected command.
func errorCode(err error) string {
	switch {
	case errors.Is(err, control.ErrDeviceRejected):
		return protocol.CodeDeviceRejected
	case errors.Is(err, control.ErrDeviceUnreachable):
		return protocol.CodeDeviceUnreachable
	case errors.Is(err, stream.ErrPreparation):
		return protocol.CodeStreamFailed
	default:
		return protocol.CodeInvalidCommand
	}
}
