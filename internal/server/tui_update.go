// ABOUTME: TUI update helpers for the server
// ABOUTME: Pushes engine snapshots and client counts to the console
package server

import "github.com/unison-audio/unison-go/internal/protocol"

// tuiEventRows bounds the event section of the console.
const tuiEventRows = 6

// updateTUI refreshes the console from the current engine snapshot, for
// changes the engine does not broadcast itself (connects, disconnects).
func (s *Server) updateTUI() {
	if s.tui == nil {
		return
	}
	s.pushTUI(s.eng.Snapshot())
}

// pushTUI sends a snapshot to the console along with the client count.
func (s *Server) pushTUI(st protocol.State) {
	if s.tui == nil {
		return
	}

	s.clientsMu.RLock()
	controllers := 0
	for _, c := range s.clients {
		if c.role == protocol.RoleController {
			controllers++
		}
	}
	s.clientsMu.RUnlock()

	s.tui.Update(ServerStatus{
		Name:        s.cfg.Name,
		Port:        s.cfg.Port,
		Controllers: controllers,
		State:       st,
		Events:      s.eng.Events(tuiEventRows),
	})
}
