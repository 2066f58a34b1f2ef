// ABOUTME: WebSocket hub joining controller clients and renderer devices to the engine
// ABOUTME: Manages connections, fans out state snapshots, and serves prepared streams
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/unison-audio/unison-go/internal/control"
	"github.com/unison-audio/unison-go/internal/device"
	"github.com/unison-audio/unison-go/internal/discovery"
	"github.com/unison-audio/unison-go/internal/engine"
	"github.com/unison-audio/unison-go/internal/protocol"
	"github.com/unison-audio/unison-go/internal/version"
)

const (
	pingPeriod    = 30 * time.Second
	writeDeadline = 10 * time.Second

	sendBuffer = 100
)

// Config holds server configuration
type Config struct {
	Port       int
	Name       string
	EnableMDNS bool
	UseTUI     bool

	// HeartbeatPeriod is the snapshot rebroadcast interval while playing.
	HeartbeatPeriod time.Duration

	// CommandTimeout bounds renderer requests issued on attach dials.
	CommandTimeout time.Duration
}

// ResolveFunc maps a discovered device ID to its dial address and metadata.
// Installed by the owner of the discovery browser.
type ResolveFunc func(id string) (addr, name, class string, ok bool)

// Server owns the control channel. It accepts controller and renderer
// connections on /ws, serves prepared streams under /streams/, and relays
// engine state to every controller.
type Server struct {
	cfg      Config
	serverID string

	eng     *engine.Engine
	streams http.Handler

	// WebSocket upgrader
	upgrader websocket.Upgrader

	// HTTP server
	httpServer *http.Server
	mux        *http.ServeMux

	// Client management
	clients   map[string]*client
	clientsMu sync.RWMutex

	// Discovery lookup for attach commands
	resolver   ResolveFunc
	resolverMu sync.RWMutex

	// mDNS advertisement
	mdnsManager *discovery.Manager

	// TUI
	tui       *ServerTUI
	startTime time.Time

	// Control
	stopChan   chan struct{}
	stopOnce   sync.Once
	shutdownMu sync.RWMutex
	isShutdown bool
	wg         sync.WaitGroup
}

// client represents a connected controller or renderer
type client struct {
	id   string
	name string
	role string

	conn     *websocket.Conn
	sendChan chan protocol.Message

	// Renderer connections double as the device transport; results read
	// off the socket are routed back through ctl.
	ctl *rendererControl
}

// rendererControl drives a renderer over its own inbound connection. Close
// tears the socket down so the connection goroutine unwinds, which is how
// eviction kicks a misbehaving device off the server.
type rendererControl struct {
	*control.WSController
	conn      *websocket.Conn
	closeOnce sync.Once
}

func (rc *rendererControl) Close() error {
	var err error
	rc.closeOnce.Do(func() {
		rc.Shutdown()
		err = rc.conn.Close()
	})
	return err
}

// New creates a server around an engine. The streams handler is mounted
// under /streams/ so renderers can fetch prepared audio; nil skips the
// mount. The server installs itself as the engine's broadcaster.
func New(cfg Config, eng *engine.Engine, streams http.Handler) *Server {
	if cfg.HeartbeatPeriod <= 0 {
		cfg.HeartbeatPeriod = time.Second
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = control.DefaultTimeout
	}

	s := &Server{
		cfg:      cfg,
		serverID: uuid.New().String(),
		eng:      eng,
		streams:  streams,
		mux:      http.NewServeMux(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// TODO: allowlist-based origin validation for non-LAN
				// deployments. The control channel is designed for
				// trusted local networks.
				origin := r.Header.Get("Origin")
				if origin != "" && origin != "http://localhost" && origin != "http://127.0.0.1" {
					log.Printf("Warning: accepting WebSocket from origin: %s", origin)
				}
				return true
			},
		},
		clients:   make(map[string]*client),
		startTime: time.Now(),
		stopChan:  make(chan struct{}),
	}

	s.mux.HandleFunc("/ws", s.handleWebSocket)
	if streams != nil {
		s.mux.Handle("/streams/", streams)
	}
	eng.SetBroadcaster(s)
	return s
}

// Handler returns the server's HTTP routes. Exposed for tests and for
// embedding the control channel in a larger mux.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// SetResolver installs the discovery lookup used by attach commands.
func (s *Server) SetResolver(fn ResolveFunc) {
	s.resolverMu.Lock()
	s.resolver = fn
	s.resolverMu.Unlock()
}

// Start runs the server until Stop is called, the TUI quits, or the HTTP
// listener fails. It owns the engine lifecycle: the engine loop starts
// here and stops during shutdown.
func (s *Server) Start() error {
	// Start TUI if enabled
	if s.cfg.UseTUI {
		s.tui = NewServerTUI()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.tui.Start(s.cfg.Name, s.cfg.Port); err != nil {
				log.Printf("TUI error: %v", err)
			}
		}()

		// Give TUI time to initialize
		time.Sleep(100 * time.Millisecond)
	}

	log.Printf("Server starting: %s (ID: %s)", s.cfg.Name, s.serverID)
	s.eng.Start()

	// Start mDNS advertisement if enabled
	if s.cfg.EnableMDNS {
		mgr, err := discovery.Advertise(discovery.Config{
			Instance: s.cfg.Name,
			Service:  discovery.ServerService,
			Port:     s.cfg.Port,
			TXT: []string{
				"id=" + s.serverID,
				"name=" + s.cfg.Name,
				"version=" + version.Version,
				"path=/ws",
			},
		})
		if err != nil {
			log.Printf("Failed to start mDNS advertisement: %v", err)
		} else {
			s.mdnsManager = mgr
			log.Printf("mDNS advertisement started")
		}
	}

	// Rebroadcast snapshots while playing so controllers can render
	// smooth positions without local extrapolation.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.heartbeat()
	}()

	addr := fmt.Sprintf(":%d", s.cfg.Port)
	log.Printf("Control channel listening on %s", addr)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.mux,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	// Wait for stop signal, TUI quit, or server error
	var serverErr error
	var tuiQuitChan <-chan struct{}
	if s.tui != nil {
		tuiQuitChan = s.tui.QuitChan()
	}

	select {
	case <-s.stopChan:
		log.Printf("Server shutting down...")
	case <-tuiQuitChan:
		log.Printf("TUI quit requested, shutting down...")
	case err := <-errChan:
		log.Printf("HTTP server error: %v", err)
		serverErr = err
	}

	// Mark server as shutting down to reject new connections
	s.shutdownMu.Lock()
	s.isShutdown = true
	s.shutdownMu.Unlock()

	// Stop TUI first so it can display shutdown message
	if s.tui != nil {
		s.tui.Stop()
	}

	if s.mdnsManager != nil {
		s.mdnsManager.Stop()
	}

	// Stop the engine before closing sockets so device fan-outs wind
	// down instead of erroring against dead connections.
	s.eng.Stop()
	s.closeClients()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	s.wg.Wait()
	log.Printf("Server stopped cleanly")

	if serverErr != nil {
		return fmt.Errorf("HTTP server failed: %w", serverErr)
	}
	return nil
}

// Stop stops the server
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

// closeClients tears down every open connection so the per-client writer
// goroutines unwind during shutdown.
func (s *Server) closeClients() {
	s.clientsMu.RLock()
	conns := make([]*websocket.Conn, 0, len(s.clients))
	for _, c := range s.clients {
		conns = append(conns, c.conn)
	}
	s.clientsMu.RUnlock()

	for _, conn := range conns {
		conn.Close()
	}
}

// handleWebSocket handles WebSocket connections
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	log.Printf("New WebSocket connection from %s", r.RemoteAddr)

	s.handleConnection(conn)
}

// handleConnection manages a client connection from handshake to teardown
func (s *Server) handleConnection(conn *websocket.Conn) {
	defer conn.Close()

	// Check if server is shutting down
	s.shutdownMu.RLock()
	if s.isShutdown {
		s.shutdownMu.RUnlock()
		log.Printf("Rejecting connection during shutdown")
		return
	}
	s.shutdownMu.RUnlock()

	// Wait for client/hello
	var msg protocol.Message
	if err := conn.ReadJSON(&msg); err != nil {
		log.Printf("Error reading hello: %v", err)
		return
	}
	if msg.Type != protocol.TypeClientHello {
		log.Printf("Expected %s, got %s", protocol.TypeClientHello, msg.Type)
		return
	}

	var hello protocol.ClientHello
	if err := protocol.DecodePayload(msg, &hello); err != nil {
		log.Printf("Error decoding client hello: %v", err)
		return
	}

	// Validate client hello
	if hello.ClientID == "" {
		log.Printf("Client hello missing client_id")
		return
	}
	if hello.Name == "" {
		log.Printf("Client hello missing name")
		return
	}
	if hello.Role != protocol.RoleController && hello.Role != protocol.RoleRenderer {
		log.Printf("Unknown role %q from %s, rejecting", hello.Role, hello.Name)
		writeDirect(conn, errorMessage(protocol.CodeInvalidCommand, "unknown role "+hello.Role))
		return
	}

	class := device.ClassWeb
	if hello.Role == protocol.RoleRenderer && hello.DeviceClass != "" {
		parsed, err := device.ParseClass(hello.DeviceClass)
		if err != nil {
			log.Printf("Renderer %s announced %v, treating as web", hello.Name, err)
		} else {
			class = parsed
		}
	}

	log.Printf("Client hello: %s (ID: %s, Role: %s)", hello.Name, hello.ClientID, hello.Role)

	c := &client{
		id:       hello.ClientID,
		name:     hello.Name,
		role:     hello.Role,
		conn:     conn,
		sendChan: make(chan protocol.Message, sendBuffer),
	}

	// Check for duplicate client ID and register atomically
	s.clientsMu.Lock()
	if existing, exists := s.clients[c.id]; exists {
		s.clientsMu.Unlock()
		log.Printf("Client ID %s already connected (name: %s), rejecting duplicate", c.id, existing.name)
		writeDirect(conn, errorMessage(protocol.CodeInvalidCommand, "client ID already connected"))
		return
	}
	s.clients[c.id] = c
	s.clientsMu.Unlock()

	s.updateTUI()

	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, c.id)
		s.clientsMu.Unlock()
		close(c.sendChan)
		log.Printf("Client disconnected: %s", c.name)

		s.updateTUI()
	}()

	// Send server/hello
	serverHello := protocol.ServerHello{
		ServerID: s.serverID,
		Name:     s.cfg.Name,
		Version:  protocol.Version,
		Software: version.Product + "/" + version.Version,
	}
	if err := s.send(c.id, protocol.Message{Type: protocol.TypeServerHello, Payload: serverHello}); err != nil {
		log.Printf("Error queueing server hello: %v", err)
		return
	}

	// Start writer goroutine
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.clientWriter(c)
	}()

	switch c.role {
	case protocol.RoleController:
		// Controllers get the current snapshot right away so they can
		// render without waiting for the next change.
		if err := s.send(c.id, protocol.Message{Type: protocol.TypeState, Payload: s.eng.Snapshot()}); err != nil {
			log.Printf("Error queueing initial state: %v", err)
		}

	case protocol.RoleRenderer:
		c.ctl = &rendererControl{
			WSController: control.NewWSController(func(m protocol.Message) error {
				return s.send(c.id, m)
			}, s.cfg.CommandTimeout),
			conn: conn,
		}

		// Attach runs off this goroutine: calibration probes need the
		// read loop below to route renderer results before they can
		// complete.
		attachCtx, cancelAttach := context.WithCancel(context.Background())
		defer cancelAttach()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.eng.Attach(attachCtx, c.id, c.name, class, c.ctl); err != nil {
				log.Printf("Attach failed for %s: %v", c.name, err)
				conn.Close()
			}
		}()

		defer func() {
			c.ctl.Shutdown()
			if err := s.eng.Detach(c.id); err == nil {
				log.Printf("Device detached on disconnect: %s", c.name)
			}
		}()
	}

	// Read messages from client
	for {
		var msg protocol.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		s.handleClientMessage(c, msg)
	}
}

// clientWriter sends queued messages to the client and keeps the
// connection alive with periodic pings
func (s *Server) clientWriter(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.sendChan:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteJSON(msg); err != nil {
				log.Printf("Error writing to %s: %v", c.name, err)
				return
			}

		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeDeadline)); err != nil {
				return
			}
		}
	}
}

// send queues a message for a client if it is still registered. Never
// blocks; a full buffer drops the message and reports it.
func (s *Server) send(id string, msg protocol.Message) error {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	c, ok := s.clients[id]
	if !ok {
		return fmt.Errorf("client %s not connected", id)
	}
	select {
	case c.sendChan <- msg:
		return nil
	default:
		return fmt.Errorf("client %s send buffer full", id)
	}
}

// Broadcast fans a state snapshot out to every controller. The engine
// calls this on every state change; the heartbeat calls it while playing.
func (s *Server) Broadcast(st protocol.State) {
	msg := protocol.Message{Type: protocol.TypeState, Payload: st}

	s.clientsMu.RLock()
	for _, c := range s.clients {
		if c.role != protocol.RoleController {
			continue
		}
		select {
		case c.sendChan <- msg:
		default:
			log.Printf("Dropping state update for %s: send buffer full", c.name)
		}
	}
	s.clientsMu.RUnlock()

	s.pushTUI(st)
}

func (s *Server) heartbeat() {
	ticker := time.NewTicker(s.cfg.HeartbeatPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if snap := s.eng.Snapshot(); snap.Playing {
				s.Broadcast(snap)
			}
		case <-s.stopChan:
			return
		}
	}
}

// writeDirect writes on the raw connection, for rejections that happen
// before a writer goroutine exists.
func writeDirect(conn *websocket.Conn, msg protocol.Message) {
	conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	if err := conn.WriteJSON(msg); err != nil {
		log.Printf("Direct write failed: %v", err)
	}
}

func errorMessage(code, message string) protocol.Message {
	return protocol.Message{
		Type:    protocol.TypeError,
		Payload: protocol.ErrorInfo{Code: code, Message: message},
	}
}
