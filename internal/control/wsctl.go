// ABOUTME: Controller implementation speaking the renderer protocol over WebSocket
// ABOUTME: Request/response correlation by req_id; used for accepted and dialed connections
package control

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/unison-audio/unison-go/internal/protocol"
)

// DefaultTimeout bounds a renderer request when the caller's context has no
// deadline of its own.
const DefaultTimeout = 4 * time.Second

// SendFunc delivers one protocol message to the renderer's transport.
type SendFunc func(protocol.Message) error

// WSController drives a renderer over an established WebSocket-style
// transport. The owner of the transport routes renderer/result messages to
// HandleResult and calls Shutdown when the connection dies.
type WSController struct {
	send    SendFunc
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]chan protocol.RendererResult
	closed  bool
}

// NewWSController wraps a transport send function. A non-positive timeout
// falls back to DefaultTimeout.
func NewWSController(send SendFunc, timeout time.Duration) *WSController {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &WSController{
		send:    send,
		timeout: timeout,
		pending: make(map[string]chan protocol.RendererResult),
	}
}

// HandleResult resolves the pending request matching the result's req_id.
// Unmatched results are dropped; they belong to requests that already timed
// out.
func (c *WSController) HandleResult(res protocol.RendererResult) {
	c.mu.Lock()
	ch, ok := c.pending[res.ReqID]
	if ok {
		delete(c.pending, res.ReqID)
	}
	c.mu.Unlock()
	if ok {
		ch <- res
	}
}

// Shutdown fails every in-flight request. Subsequent requests error
// immediately.
func (c *WSController) Shutdown() {
	c.mu.Lock()
	c.closed = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()
}

// Close satisfies Controller; the transport owner tears down the socket.
func (c *WSController) Close() error {
	c.Shutdown()
	return nil
}

func (c *WSController) request(ctx context.Context, msgType string, payload interface{}, reqID string) (protocol.RendererResult, error) {
	ch := make(chan protocol.RendererResult, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return protocol.RendererResult{}, fmt.Errorf("%s: transport closed: %w", msgType, ErrDeviceUnreachable)
	}
	c.pending[reqID] = ch
	c.mu.Unlock()

	unregister := func() {
		c.mu.Lock()
		delete(c.pending, reqID)
		c.mu.Unlock()
	}

	if err := c.send(protocol.Message{Type: msgType, Payload: payload}); err != nil {
		unregister()
		return protocol.RendererResult{}, fmt.Errorf("%s: send failed: %w", msgType, ErrDeviceUnreachable)
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	select {
	case res, ok := <-ch:
		if !ok {
			return protocol.RendererResult{}, fmt.Errorf("%s: connection lost: %w", msgType, ErrDeviceUnreachable)
		}
		if !res.OK {
			return res, fmt.Errorf("%s: %s: %w", msgType, res.Error, ErrDeviceRejected)
		}
		return res, nil
	case <-ctx.Done():
		unregister()
		return protocol.RendererResult{}, fmt.Errorf("%s: no reply: %w", msgType, ErrDeviceUnreachable)
	}
}

func (c *WSController) Load(ctx context.Context, streamURL string, startPos float64) error {
	reqID := uuid.New().String()
	_, err := c.request(ctx, protocol.TypeRendererLoad, protocol.RendererLoad{
		ReqID:    reqID,
		URL:      streamURL,
		Position: startPos,
	}, reqID)
	return err
}

func (c *WSController) Play(ctx context.Context) error {
	reqID := uuid.New().String()
	_, err := c.request(ctx, protocol.TypeRendererPlay, protocol.RendererCommand{ReqID: reqID}, reqID)
	return err
}

func (c *WSController) Pause(ctx context.Context) error {
	reqID := uuid.New().String()
	_, err := c.request(ctx, protocol.TypeRendererPause, protocol.RendererCommand{ReqID: reqID}, reqID)
	return err
}

func (c *WSController) Seek(ctx context.Context, pos float64) error {
	reqID := uuid.New().String()
	_, err := c.request(ctx, protocol.TypeRendererSeek, protocol.RendererSeek{ReqID: reqID, Position: pos}, reqID)
	return err
}

func (c *WSController) Status(ctx context.Context) (Status, error) {
	reqID := uuid.New().String()
	res, err := c.request(ctx, protocol.TypeRendererStatus, protocol.RendererCommand{ReqID: reqID}, reqID)
	if err != nil {
		return Status{}, err
	}
	return Status{Position: res.Position, State: res.State}, nil
}

// DialedController is a WSController that owns an outbound connection to a
// renderer daemon, as used for devices found via discovery.
type DialedController struct {
	*WSController
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
}

// Dial connects to a renderer daemon at addr (host:port or ws:// URL) and
// returns a controller for it.
func Dial(ctx context.Context, addr string, timeout time.Duration) (*DialedController, error) {
	wsURL := addr
	if !strings.Contains(wsURL, "://") {
		wsURL = "ws://" + wsURL
	}
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("renderer address %q: %w", addr, err)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial renderer %s: %w", u.String(), ErrDeviceUnreachable)
	}

	d := &DialedController{conn: conn}
	d.WSController = NewWSController(d.writeMessage, timeout)
	go d.readLoop()
	return d, nil
}

func (d *DialedController) writeMessage(msg protocol.Message) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	d.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return d.conn.WriteJSON(msg)
}

func (d *DialedController) readLoop() {
	defer d.Shutdown()
	for {
		var msg protocol.Message
		if err := d.conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Type != protocol.TypeRendererResult {
			continue
		}
		var res protocol.RendererResult
		if err := protocol.DecodePayload(msg, &res); err != nil {
			log.Printf("Renderer result decode failed: %v", err)
			continue
		}
		d.HandleResult(res)
	}
}

// Close tears down the connection and fails in-flight requests.
func (d *DialedController) Close() error {
	var err error
	d.closeOnce.Do(func() {
		d.Shutdown()
		err = d.conn.Close()
	})
	return err
}
