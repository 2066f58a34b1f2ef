// ABOUTME: Renderer daemon serving the websocket control protocol for a Player
// ABOUTME: Servers dial /ws and drive the device with renderer/* requests
package renderer

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/unison-audio/unison-go/internal/protocol"
)

const writeTimeout = 10 * time.Second

// Daemon exposes a Player to servers over WebSocket. Each connection gets
// its own session; concurrent sessions are safe but a device normally
// belongs to one server at a time.
type Daemon struct {
	player   *Player
	delay    time.Duration
	upgrader websocket.Upgrader
	srv      *http.Server
}

// NewDaemon wraps a player for network control.
func NewDaemon(p *Player) *Daemon {
	return &Daemon{
		player: p,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// SetDelay adds an artificial pause before each request is handled,
// simulating a slow transport. Call before ListenAndServe.
func (d *Daemon) SetDelay(delay time.Duration) {
	d.delay = delay
}

// Handler returns the daemon's HTTP routes.
func (d *Daemon) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", d.handleWS)
	return mux
}

// ListenAndServe blocks serving the control endpoint on addr.
func (d *Daemon) ListenAndServe(addr string) error {
	d.srv = &http.Server{Addr: addr, Handler: d.Handler()}
	log.Printf("Renderer control listening on %s", addr)
	err := d.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and drains existing ones.
func (d *Daemon) Shutdown(ctx context.Context) error {
	if d.srv == nil {
		return nil
	}
	return d.srv.Shutdown(ctx)
}

func (d *Daemon) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := d.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	log.Printf("Server connected from %s", conn.RemoteAddr())
	sess := &session{player: d.player, conn: conn, delay: d.delay}
	sess.readLoop()
}

// ServeConn answers renderer requests on an established connection until it
// closes. Used when the renderer dialed the server itself instead of being
// discovered.
func ServeConn(p *Player, conn *websocket.Conn) {
	sess := &session{player: p, conn: conn}
	sess.readLoop()
}

type session struct {
	player  *Player
	conn    *websocket.Conn
	delay   time.Duration
	writeMu sync.Mutex
}

func (s *session) readLoop() {
	defer s.conn.Close()
	for {
		var msg protocol.Message
		if err := s.conn.ReadJSON(&msg); err != nil {
			log.Printf("Server connection closed: %v", err)
			return
		}
		s.handle(msg)
	}
}

func (s *session) handle(msg protocol.Message) {
	// Holding the read loop serializes requests, the way a slow
	// single-threaded device would.
	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	switch msg.Type {
	case protocol.TypeRendererLoad:
		var req protocol.RendererLoad
		if err := protocol.DecodePayload(msg, &req); err != nil {
			log.Printf("Bad load request: %v", err)
			return
		}
		s.player.Load(req.URL, req.Position)
		log.Printf("Loaded %s at %.2fs", req.URL, req.Position)
		s.reply(protocol.RendererResult{ReqID: req.ReqID, OK: true})

	case protocol.TypeRendererPlay:
		var req protocol.RendererCommand
		if err := protocol.DecodePayload(msg, &req); err != nil {
			log.Printf("Bad play request: %v", err)
			return
		}
		if err := s.player.Play(); err != nil {
			s.reply(protocol.RendererResult{ReqID: req.ReqID, Error: err.Error()})
			return
		}
		log.Printf("Playing at %.2fs", s.player.Position())
		s.reply(protocol.RendererResult{ReqID: req.ReqID, OK: true})

	case protocol.TypeRendererPause:
		var req protocol.RendererCommand
		if err := protocol.DecodePayload(msg, &req); err != nil {
			log.Printf("Bad pause request: %v", err)
			return
		}
		s.player.Pause()
		log.Printf("Paused at %.2fs", s.player.Position())
		s.reply(protocol.RendererResult{ReqID: req.ReqID, OK: true})

	case protocol.TypeRendererSeek:
		var req protocol.RendererSeek
		if err := protocol.DecodePayload(msg, &req); err != nil {
			log.Printf("Bad seek request: %v", err)
			return
		}
		if err := s.player.Seek(req.Position); err != nil {
			s.reply(protocol.RendererResult{ReqID: req.ReqID, Error: err.Error()})
			return
		}
		log.Printf("Seeked to %.2fs", req.Position)
		s.reply(protocol.RendererResult{ReqID: req.ReqID, OK: true})

	case protocol.TypeRendererStatus:
		var req protocol.RendererCommand
		if err := protocol.DecodePayload(msg, &req); err != nil {
			log.Printf("Bad status request: %v", err)
			return
		}
		st := s.player.Status()
		s.reply(protocol.RendererResult{
			ReqID:    req.ReqID,
			OK:       true,
			Position: st.Position,
			State:    st.State,
		})

	default:
		log.Printf("Unknown message type: %s", msg.Type)
	}
}

func (s *session) reply(res protocol.RendererResult) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := s.conn.WriteJSON(protocol.Message{Type: protocol.TypeRendererResult, Payload: res}); err != nil {
		log.Printf("Result write failed: %v", err)
	}
}
