// ABOUTME: Controller-side client for the server control channel
// ABOUTME: Handles connection, handshake, and routing of inbound messages to typed channels
package client

import (
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/unison-audio/unison-go/internal/events"
	"github.com/unison-audio/unison-go/internal/protocol"
)

const (
	helloTimeout = 5 * time.Second
	writeTimeout = 10 * time.Second
)

// Config holds client configuration
type Config struct {
	ServerAddr string // host:port
	ClientID   string
	Name       string
}

// Client is a controller connection to the server. Inbound messages are
// routed to typed channels; stale entries are dropped rather than blocking
// the reader.
type Client struct {
	config Config
	conn   *websocket.Conn

	// Message channels
	States chan protocol.State
	Errors chan protocol.ErrorInfo
	Events chan []events.Event

	mu          sync.RWMutex
	connected   bool
	serverHello protocol.ServerHello
	lastState   protocol.State
	hasState    bool

	writeMu sync.Mutex

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient creates a client for the given server address.
func NewClient(config Config) *Client {
	return &Client{
		config: config,
		States: make(chan protocol.State, 16),
		Errors: make(chan protocol.ErrorInfo, 16),
		Events: make(chan []events.Event, 4),
		done:   make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection and performs the handshake.
// On return the reader is running and the server's first snapshot is on its
// way to the States channel.
func (c *Client) Connect() error {
	u := url.URL{Scheme: "ws", Host: c.config.ServerAddr, Path: "/ws"}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", u.String(), err)
	}

	hello, err := handshake(conn, protocol.ClientHello{
		ClientID: c.config.ClientID,
		Name:     c.config.Name,
		Role:     protocol.RoleController,
		Version:  protocol.Version,
	})
	if err != nil {
		conn.Close()
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.serverHello = hello
	c.mu.Unlock()

	go c.readMessages()
	return nil
}

// handshake sends client/hello and waits for the matching server/hello.
func handshake(conn *websocket.Conn, hello protocol.ClientHello) (protocol.ServerHello, error) {
	msg := protocol.Message{Type: protocol.TypeClientHello, Payload: hello}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(msg); err != nil {
		return protocol.ServerHello{}, fmt.Errorf("send hello: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(helloTimeout))
	var reply protocol.Message
	if err := conn.ReadJSON(&reply); err != nil {
		return protocol.ServerHello{}, fmt.Errorf("read server hello: %w", err)
	}
	conn.SetReadDeadline(time.Time{})

	switch reply.Type {
	case protocol.TypeServerHello:
	case protocol.TypeError:
		var info protocol.ErrorInfo
		if err := protocol.DecodePayload(reply, &info); err == nil {
			return protocol.ServerHello{}, fmt.Errorf("server rejected hello: %s", info.Message)
		}
		return protocol.ServerHello{}, fmt.Errorf("server rejected hello")
	default:
		return protocol.ServerHello{}, fmt.Errorf("expected %s, got %s", protocol.TypeServerHello, reply.Type)
	}

	var sh protocol.ServerHello
	if err := protocol.DecodePayload(reply, &sh); err != nil {
		return protocol.ServerHello{}, err
	}
	return sh, nil
}

// DialRenderer connects to a server and completes the renderer handshake,
// returning the raw connection for the caller's request loop.
func DialRenderer(addr, id, name, class string) (*websocket.Conn, protocol.ServerHello, error) {
	u := url.URL{Scheme: "ws", Host: addr, Path: "/ws"}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, protocol.ServerHello{}, fmt.Errorf("dial %s: %w", u.String(), err)
	}

	hello, err := handshake(conn, protocol.ClientHello{
		ClientID:    id,
		Name:        name,
		Role:        protocol.RoleRenderer,
		Version:     protocol.Version,
		DeviceClass: class,
	})
	if err != nil {
		conn.Close()
		return nil, protocol.ServerHello{}, err
	}
	return conn, hello, nil
}

// readMessages reads and routes incoming messages until the connection dies.
func (c *Client) readMessages() {
	defer c.Close()

	for {
		var msg protocol.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}
		c.route(msg)
	}
}

func (c *Client) route(msg protocol.Message) {
	switch msg.Type {
	case protocol.TypeState:
		var st protocol.State
		if err := protocol.DecodePayload(msg, &st); err != nil {
			log.Printf("Bad state payload: %v", err)
			return
		}
		c.mu.Lock()
		c.lastState = st
		c.hasState = true
		c.mu.Unlock()
		select {
		case c.States <- st:
		default:
		}

	case protocol.TypeError:
		var info protocol.ErrorInfo
		if err := protocol.DecodePayload(msg, &info); err != nil {
			log.Printf("Bad error payload: %v", err)
			return
		}
		select {
		case c.Errors <- info:
		default:
		}

	case protocol.TypeEvents:
		var payload protocol.EventsPayload
		if err := protocol.DecodePayload(msg, &payload); err != nil {
			log.Printf("Bad events payload: %v", err)
			return
		}
		select {
		case c.Events <- payload.Events:
		default:
		}

	default:
		log.Printf("Unknown message type: %s", msg.Type)
	}
}

// Command sends a control command. The outcome arrives asynchronously: a
// state broadcast if it changed anything, a server error if it was
// rejected, or nothing at all for idempotent no-ops.
func (c *Client) Command(cmd protocol.Command) error {
	return c.sendJSON(protocol.Message{Type: protocol.TypeCommand, Payload: cmd})
}

// QueryEvents asks for recent sync events; the reply lands on Events.
func (c *Client) QueryEvents(limit int) error {
	return c.sendJSON(protocol.Message{Type: protocol.TypeEventsQuery, Payload: protocol.EventsQuery{Limit: limit}})
}

func (c *Client) sendJSON(msg protocol.Message) error {
	c.mu.RLock()
	connected := c.connected
	conn := c.conn
	c.mu.RUnlock()

	if !connected {
		return fmt.Errorf("not connected")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(msg)
}

// ServerHello returns the handshake reply.
func (c *Client) ServerHello() protocol.ServerHello {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverHello
}

// LastState returns the most recent snapshot, if any has arrived.
func (c *Client) LastState() (protocol.State, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastState, c.hasState
}

// Done is closed once the connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close closes the connection
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.connected = false
		conn := c.conn
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		close(c.done)
	})
}

// IsConnected returns connection status
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}
