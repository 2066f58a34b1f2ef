// ABOUTME: Control-channel message definitions shared by server, clients, and renderers
// ABOUTME: Envelope is {type, payload}; payloads decode via DecodePayload per type
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/unison-audio/unison-go/internal/core"
	"github.com/unison-audio/unison-go/internal/events"
)

// Version is the control protocol version exchanged in hellos.
const Version = 1

// Message is the top-level wrapper for all protocol messages.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Message type identifiers.
const (
	TypeClientHello = "client/hello"
	TypeServerHello = "server/hello"
	TypeCommand     = "client/command"
	TypeEventsQuery = "client/events"
	TypeState       = "server/state"
	TypeError       = "server/error"
	TypeEvents      = "server/events"

	TypeRendererLoad   = "renderer/load"
	TypeRendererPlay   = "renderer/play"
	TypeRendererPause  = "renderer/pause"
	TypeRendererSeek   = "renderer/seek"
	TypeRendererStatus = "renderer/status"
	TypeRendererResult = "renderer/result"
)

// Client roles announced in client/hello.
const (
	RoleController = "controller"
	RoleRenderer   = "renderer"
)

// DecodePayload unmarshals a message's payload into v. The payload arrives
// as generic JSON, so it is round-tripped through the encoder once.
func DecodePayload(msg Message, v interface{}) error {
	data, err := json.Marshal(msg.Payload)
	if err != nil {
		return fmt.Errorf("re-encode %s payload: %w", msg.Type, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", msg.Type, err)
	}
	return nil
}

// ClientHello is sent by clients to initiate the handshake.
type ClientHello struct {
	ClientID    string `json:"client_id"`
	Name        string `json:"name"`
	Role        string `json:"role"`
	Version     int    `json:"version"`
	DeviceClass string `json:"device_class,omitempty"` // renderers only
}

// ServerHello is the server's response to client/hello.
type ServerHello struct {
	ServerID string `json:"server_id"`
	Name     string `json:"name"`
	Version  int    `json:"version"`
	Software string `json:"software,omitempty"`
}

// Command actions accepted in client/command.
const (
	ActionPlay     = "play"
	ActionPause    = "pause"
	ActionSeek     = "seek"
	ActionNext     = "next"
	ActionPrevious = "previous"
	ActionAdd      = "add"
	ActionRemove   = "remove"
	ActionClear    = "clear"
	ActionSkip     = "skip"
	ActionMove     = "move"
	ActionAttach   = "attach"
	ActionDetach   = "detach"
)

// Command is a control request from a controller client. Action decides
// which of the optional fields are meaningful.
type Command struct {
	Action   string     `json:"action"`
	Position float64    `json:"position,omitempty"`
	Index    int        `json:"index,omitempty"`
	From     int        `json:"from,omitempty"`
	To       int        `json:"to,omitempty"`
	DeviceID string     `json:"device_id,omitempty"`
	Track    *TrackSpec `json:"track,omitempty"`
}

// TrackSpec names a track to enqueue; the server assigns the ID.
type TrackSpec struct {
	Name   string `json:"name"`
	Source string `json:"source"`
}

// DeviceState is the per-device slice of a state snapshot.
type DeviceState struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Class        string     `json:"class"`
	Connected    bool       `json:"connected"`
	Latency      float64    `json:"latency"`
	Quality      string     `json:"quality"`
	LastResyncAt *time.Time `json:"last_resync_at,omitempty"`
}

// State is the consistent snapshot broadcast to every client on change and
// on the playback heartbeat.
type State struct {
	Phase    core.Phase    `json:"phase"`
	Playing  bool          `json:"playing"`
	Track    *core.Track   `json:"track,omitempty"`
	Position float64       `json:"position"`
	At       time.Time     `json:"at"`
	Queue    core.Queue    `json:"queue"`
	Devices  []DeviceState `json:"devices"`
}

// ErrorInfo reports a rejected command to the issuing client only.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes carried by server/error.
const (
	CodeInvalidCommand    = "invalid_command"
	CodeDeviceUnreachable = "device_unreachable"
	CodeDeviceRejected    = "device_rejected"
	CodeStreamFailed      = "stream_failed"
)

// EventsQuery asks the server for recent sync events.
type EventsQuery struct {
	Limit int `json:"limit,omitempty"`
}

// EventsPayload answers an events query.
type EventsPayload struct {
	Events []events.Event `json:"events"`
}

// RendererLoad instructs a renderer to load a stream at a start offset.
type RendererLoad struct {
	ReqID    string  `json:"req_id"`
	URL      string  `json:"url"`
	TrackID  string  `json:"track_id,omitempty"`
	Position float64 `json:"position"`
}

// RendererCommand carries play, pause, and status requests.
type RendererCommand struct {
	ReqID string `json:"req_id"`
}

// RendererSeek repositions a renderer.
type RendererSeek struct {
	ReqID    string  `json:"req_id"`
	Position float64 `json:"position"`
}

// RendererResult acknowledges a renderer request. Position and State are
// populated for status replies.
type RendererResult struct {
	ReqID    string  `json:"req_id"`
	OK       bool    `json:"ok"`
	Error    string  `json:"error,omitempty"`
	Position float64 `json:"position,omitempty"`
	State    string  `json:"state,omitempty"`
}
