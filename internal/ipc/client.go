package ipc

import (
	"fmt"
	"net"
	"sync/atomic"
	"time"
)

// Conn is a client connection to the daemon's control socket.
type Conn struct {
	conn    net.Conn
	timeout time.Duration
	nextID  atomic.Uint32
}

// DialOptions configures a client connection.
type DialOptions struct {
	ClientName    string
	ClientVersion string
	Timeout       time.Duration
}

// Dial connects to the daemon socket and performs the handshake.
func Dial(socketPath string, opts DialOptions) (*Conn, error) {
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}

	nc, err := net.DialTimeout("unix", socketPath, opts.Timeout)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon: %w", err)
	}
	c := &Conn{conn: nc, timeout: opts.Timeout}

	var ack HandshakeResponse
	if err := c.Request(MsgHandshake, &HandshakeRequest{
		ClientVersion:   opts.ClientVersion,
		ClientName:      opts.ClientName,
		ProtocolVersion: ProtocolVersion,
	}, MsgHandshakeAck, &ack); err != nil {
		nc.Close()
		return nil, fmt.Errorf("handshake: %w", err)
	}
	return c, nil
}

// Request sends one request and decodes the matching response. A MsgError
// reply surfaces as an error carrying the daemon's message.
func (c *Conn) Request(reqType MessageType, req any, respType MessageType, resp any) error {
	var payload []byte
	if req != nil {
		var err error
		payload, err = Encode(req)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	id := c.nextID.Add(1)
	c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	if err := NewMessage(reqType, id, payload).Write(c.conn); err != nil {
		return fmt.Errorf("send request: %w", err)
	}

	msg, err := c.readReply(id)
	if err != nil {
		return err
	}
	if msg.Header.Type == MsgError {
		var er ErrorResponse
		if err := Decode(msg.Payload, &er); err != nil {
			return fmt.Errorf("daemon error (code unknown)")
		}
		return fmt.Errorf("daemon error: %s", er.Message)
	}
	if msg.Header.Type != respType {
		return fmt.Errorf("unexpected response type 0x%04x", uint16(msg.Header.Type))
	}
	if resp != nil {
		if err := Decode(msg.Payload, resp); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// readReply reads until the frame correlating with id, skipping keepalive
// pings and interleaved event frames.
func (c *Conn) readReply(id uint32) (*Message, error) {
	c.conn.SetReadDeadline(time.Now().Add(c.timeout))
	for {
		msg, err := ReadMessage(c.conn)
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		switch msg.Header.Type {
		case MsgPing, MsgEvent:
			continue
		default:
			if msg.Header.RequestID != id {
				continue
			}
			return msg, nil
		}
	}
}

// Subscribe registers for events and then delivers each one to fn until the
// connection fails or the daemon goes away. fn runs on the caller's
// goroutine.
func (c *Conn) Subscribe(events []EventType, fn func(*Event)) error {
	var ack SubscribeResponse
	if err := c.Request(MsgSubscribe, &SubscribeRequest{Events: events}, MsgSubscribeResp, &ack); err != nil {
		return err
	}
	if !ack.Success {
		return fmt.Errorf("subscription refused")
	}

	// Events arrive whenever the daemon has something to say; no deadline.
	c.conn.SetReadDeadline(time.Time{})
	for {
		msg, err := ReadMessage(c.conn)
		if err != nil {
			return fmt.Errorf("event stream: %w", err)
		}
		switch msg.Header.Type {
		case MsgPing:
			continue
		case MsgEvent:
			var ev Event
			if err := Decode(msg.Payload, &ev); err != nil {
				continue
			}
			fn(&ev)
		}
	}
}

// Close closes the connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}
