// Package ipc provides inter-process communication between the lyrad daemon
// and client tools over a Unix socket.
//
// Messages are a fixed 16-byte binary header followed by a JSON payload.
// The request/response pattern covers commands; long-lived subscriptions
// stream daemon events to interested clients.
package ipc

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Protocol version for compatibility checking.
const (
	ProtocolVersion = 1
	ProtocolMagic   = 0x4C495043 // "LIPC"
)

// MessageType identifies the type of IPC message.
type MessageType uint16

const (
	// Control messages (0x00xx)
	MsgPing         MessageType = 0x0001
	MsgPong         MessageType = 0x0002
	MsgHandshake    MessageType = 0x0003
	MsgHandshakeAck MessageType = 0x0004
	MsgError        MessageType = 0x0005
	MsgShutdown     MessageType = 0x0006

	// Status messages (0x01xx)
	MsgStatusRequest  MessageType = 0x0100
	MsgStatusResponse MessageType = 0x0101

	// Configuration and runtime parameters (0x02xx)
	MsgGetConfig     MessageType = 0x0200
	MsgGetConfigResp MessageType = 0x0201
	MsgSetParam      MessageType = 0x0202
	MsgSetParamResp  MessageType = 0x0203

	// Poll control (0x03xx)
	MsgSuspend     MessageType = 0x0300
	MsgSuspendResp MessageType = 0x0301
	MsgResume      MessageType = 0x0302
	MsgResumeResp  MessageType = 0x0303

	// Event streaming (0x04xx)
	MsgSubscribe       MessageType = 0x0400
	MsgSubscribeResp   MessageType = 0x0401
	MsgUnsubscribe     MessageType = 0x0402
	MsgUnsubscribeResp MessageType = 0x0403
	MsgEvent           MessageType = 0x0404
)

// EventType identifies the type of streamed event.
type EventType uint16

const (
	EventSuspended     EventType = 0x0001
	EventResumed       EventType = 0x0002
	EventParamChanged  EventType = 0x0003
	EventConfigReload  EventType = 0x0004
	EventPowerButton   EventType = 0x0005
	EventFIFOOverflow  EventType = 0x0006
	EventDaemonStopped EventType = 0x0007
)

// Header is the fixed-size message header (16 bytes).
type Header struct {
	Magic     uint32
	Version   uint8
	Flags     uint8
	Type      MessageType
	RequestID uint32
	Length    uint32 // Payload length, not including the header
}

// HeaderSize is the size of the header in bytes.
const HeaderSize = 16

// Header flags.
const (
	FlagJSON uint8 = 0x01
)

// maxPayload bounds a message; every real payload is tiny, so anything
// bigger is a desynchronized or hostile peer.
const maxPayload = 1 << 20

// Message wraps a header and payload.
type Message struct {
	Header  Header
	Payload []byte
}

// NewMessage creates a message with the given type and payload.
func NewMessage(msgType MessageType, requestID uint32, payload []byte) *Message {
	return &Message{
		Header: Header{
			Magic:     ProtocolMagic,
			Version:   ProtocolVersion,
			Flags:     FlagJSON,
			Type:      msgType,
			RequestID: requestID,
			Length:    uint32(len(payload)),
		},
		Payload: payload,
	}
}

// Write writes the header to a writer.
func (h *Header) Write(w io.Writer) error {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	buf[4] = h.Version
	buf[5] = h.Flags
	binary.BigEndian.PutUint16(buf[6:8], uint16(h.Type))
	binary.BigEndian.PutUint32(buf[8:12], h.RequestID)
	binary.BigEndian.PutUint32(buf[12:16], h.Length)
	_, err := w.Write(buf)
	return err
}

// ReadHeader reads and validates a header from a reader.
func ReadHeader(r io.Reader) (*Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}

	h := &Header{
		Magic:     binary.BigEndian.Uint32(buf[0:4]),
		Version:   buf[4],
		Flags:     buf[5],
		Type:      MessageType(binary.BigEndian.Uint16(buf[6:8])),
		RequestID: binary.BigEndian.Uint32(buf[8:12]),
		Length:    binary.BigEndian.Uint32(buf[12:16]),
	}

	if h.Magic != ProtocolMagic {
		return nil, fmt.Errorf("invalid magic number: %x", h.Magic)
	}
	if h.Version > ProtocolVersion {
		return nil, fmt.Errorf("unsupported protocol version: %d", h.Version)
	}
	return h, nil
}

// Write writes the message to a writer.
func (m *Message) Write(w io.Writer) error {
	if err := m.Header.Write(w); err != nil {
		return err
	}
	if len(m.Payload) > 0 {
		_, err := w.Write(m.Payload)
		return err
	}
	return nil
}

// ReadMessage reads a complete message from a reader.
func ReadMessage(r io.Reader) (*Message, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}

	m := &Message{Header: *h}
	if h.Length > 0 {
		if h.Length > maxPayload {
			return nil, fmt.Errorf("payload too large: %d bytes", h.Length)
		}
		m.Payload = make([]byte, h.Length)
		if _, err := io.ReadFull(r, m.Payload); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Request/Response payloads.

// HandshakeRequest is sent by the client to initiate a connection.
type HandshakeRequest struct {
	ClientVersion   string `json:"client_version"`
	ClientName      string `json:"client_name"`
	ProtocolVersion uint8  `json:"protocol_version"`
}

// HandshakeResponse acknowledges a connection.
type HandshakeResponse struct {
	ServerVersion   string `json:"server_version"`
	ProtocolVersion uint8  `json:"protocol_version"`
}

// ErrorResponse is sent when an operation fails.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error codes.
const (
	ErrUnknown        = 1
	ErrInvalidRequest = 2
	ErrOutOfRange     = 3
	ErrInternalError  = 4
	ErrShuttingDown   = 5
)

// StatusResponse contains daemon status.
type StatusResponse struct {
	Version   string    `json:"version"`
	StartedAt time.Time `json:"started_at"`
	Uptime    string    `json:"uptime"`
	Device    string    `json:"device"`
	Suspended bool      `json:"suspended"`

	Shift     bool `json:"shift"`
	Alt       bool `json:"alt"`
	Fn        bool `json:"fn"`
	PowerDown bool `json:"power_down"`
	HeldKeys  int  `json:"held_keys"`

	SpeedX         int `json:"speed_x"`
	SpeedY         int `json:"speed_y"`
	PollIntervalMs int `json:"poll_interval_ms"`

	PollCycles      uint64 `json:"poll_cycles"`
	KeyEvents       uint64 `json:"key_events"`
	MouseSamples    uint64 `json:"mouse_samples"`
	TransportErrors uint64 `json:"transport_errors"`
	FIFOOverflows   uint64 `json:"fifo_overflows"`
}

// GetConfigResponse returns the active configuration.
type GetConfigResponse struct {
	Config map[string]any `json:"config"`
}

// SetParamRequest changes one runtime parameter. Name is one of "speed_x",
// "speed_y", "poll_interval_ms".
type SetParamRequest struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// SetParamResponse acknowledges a parameter change.
type SetParamResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// AckResponse acknowledges suspend/resume and shutdown requests.
type AckResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// SubscribeRequest requests an event subscription. An empty Events slice
// subscribes to everything.
type SubscribeRequest struct {
	Events []EventType `json:"events"`
}

// SubscribeResponse acknowledges a subscription.
type SubscribeResponse struct {
	Success        bool   `json:"success"`
	SubscriptionID string `json:"subscription_id"`
}

// UnsubscribeRequest ends an event subscription.
type UnsubscribeRequest struct {
	SubscriptionID string `json:"subscription_id"`
}

// Event is a streamed event.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// Encode encodes a payload to JSON bytes.
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Decode decodes JSON bytes into a payload.
func Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// NewErrorMessage creates an error message.
func NewErrorMessage(requestID uint32, code int, message string) *Message {
	payload, _ := Encode(&ErrorResponse{Code: code, Message: message})
	return NewMessage(MsgError, requestID, payload)
}

// NewResponse creates a response message with a JSON payload.
func NewResponse(msgType MessageType, requestID uint32, v any) (*Message, error) {
	payload, err := Encode(v)
	if err != nil {
		return nil, err
	}
	return NewMessage(msgType, requestID, payload), nil
}
