package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

// Handler processes IPC messages that the server does not handle itself.
type Handler interface {
	HandleMessage(ctx context.Context, client *Client, msg *Message) (*Message, error)
}

// HandlerFunc is a function that implements Handler.
type HandlerFunc func(ctx context.Context, client *Client, msg *Message) (*Message, error)

func (f HandlerFunc) HandleMessage(ctx context.Context, client *Client, msg *Message) (*Message, error) {
	return f(ctx, client, msg)
}

// Server is the Unix-socket IPC server.
type Server struct {
	mu          sync.RWMutex
	listener    net.Listener
	socketPath  string
	handler     Handler
	log         *slog.Logger
	clients     map[string]*Client
	subscribers map[string]*subscription
	version     string

	maxConns     int
	readTimeout  time.Duration
	writeTimeout time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool

	nextRequestID atomic.Uint32
	eventChan     chan *Event
}

// Client represents a connected client.
type Client struct {
	mu           sync.Mutex
	ID           string
	conn         net.Conn
	Version      string
	Name         string
	ConnectedAt  time.Time
	LastActivity time.Time

	writeMu sync.Mutex
}

type subscription struct {
	clientID string
	all      bool
	events   map[EventType]bool
}

// ServerConfig configures the IPC server.
type ServerConfig struct {
	SocketPath     string
	Version        string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxConnections int
}

// NewServer creates an IPC server. Call Start to begin listening.
func NewServer(cfg ServerConfig, handler Handler, log *slog.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 60 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.MaxConnections == 0 {
		cfg.MaxConnections = 4
	}

	return &Server{
		socketPath:   cfg.SocketPath,
		handler:      handler,
		log:          log,
		version:      cfg.Version,
		maxConns:     cfg.MaxConnections,
		readTimeout:  cfg.ReadTimeout,
		writeTimeout: cfg.WriteTimeout,
		clients:      make(map[string]*Client),
		subscribers:  make(map[string]*subscription),
		ctx:          ctx,
		cancel:       cancel,
		eventChan:    make(chan *Event, 64),
	}
}

// Start begins listening for connections.
func (s *Server) Start() error {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0o700); err != nil {
		return fmt.Errorf("create socket directory: %w", err)
	}
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale socket: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on socket: %w", err)
	}
	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		listener.Close()
		return fmt.Errorf("set socket permissions: %w", err)
	}

	s.listener = listener
	s.running.Store(true)

	s.wg.Add(2)
	go s.eventBroadcaster()
	go s.acceptLoop()

	s.log.Info("ipc server listening", "socket", s.socketPath)
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}

	s.mu.Lock()
	for _, client := range s.clients {
		client.conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		s.log.Warn("ipc shutdown timed out waiting for connections")
	}

	os.Remove(s.socketPath)
	return nil
}

// SocketPath returns the socket path.
func (s *Server) SocketPath() string {
	return s.socketPath
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Broadcast queues an event for all subscribed clients. If the queue is
// full or the server has stopped the event is dropped; event delivery is
// best effort and must never block the poll loop. The channel is never
// closed, so a broadcast racing Stop is a no-op rather than a panic.
func (s *Server) Broadcast(event *Event) {
	select {
	case s.eventChan <- event:
	default:
	}
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
				if !errors.Is(err, net.ErrClosed) {
					s.log.Warn("ipc accept failed", "error", err)
				}
				continue
			}
		}

		// Only the user running the daemon may control it.
		if ok, err := verifyPeer(conn); err != nil || !ok {
			s.log.Warn("rejecting ipc peer", "error", err)
			conn.Close()
			continue
		}

		s.mu.RLock()
		count := len(s.clients)
		s.mu.RUnlock()
		if count >= s.maxConns {
			s.log.Warn("rejecting ipc connection, limit reached", "max", s.maxConns)
			conn.Close()
			continue
		}

		client := &Client{
			ID:           generateClientID(),
			conn:         conn,
			ConnectedAt:  time.Now(),
			LastActivity: time.Now(),
		}
		s.mu.Lock()
		s.clients[client.ID] = client
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handleConnection(client)
	}
}

func (s *Server) handleConnection(client *Client) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.clients, client.ID)
		delete(s.subscribers, client.ID)
		s.mu.Unlock()
		client.conn.Close()
	}()

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		client.conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		msg, err := ReadMessage(client.conn)
		if err != nil {
			if err == io.EOF || errors.Is(err, net.ErrClosed) {
				return
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				// Keep subscribed clients alive across idle stretches.
				s.sendPing(client)
				continue
			}
			s.log.Debug("ipc read failed", "client", client.ID, "error", err)
			return
		}

		client.mu.Lock()
		client.LastActivity = time.Now()
		client.mu.Unlock()

		response, err := s.processMessage(client, msg)
		if err != nil {
			response = NewErrorMessage(msg.Header.RequestID, ErrInternalError, err.Error())
		}
		if response != nil {
			if err := s.sendMessage(client, response); err != nil {
				return
			}
		}
	}
}

func (s *Server) processMessage(client *Client, msg *Message) (*Message, error) {
	switch msg.Header.Type {
	case MsgPing:
		return NewMessage(MsgPong, msg.Header.RequestID, nil), nil
	case MsgHandshake:
		return s.handleHandshake(client, msg)
	case MsgSubscribe:
		return s.handleSubscribe(client, msg)
	case MsgUnsubscribe:
		return s.handleUnsubscribe(client, msg)
	default:
		if s.handler != nil {
			return s.handler.HandleMessage(s.ctx, client, msg)
		}
		return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest, "no handler"), nil
	}
}

func (s *Server) handleHandshake(client *Client, msg *Message) (*Message, error) {
	var req HandshakeRequest
	if err := Decode(msg.Payload, &req); err != nil {
		return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest, "invalid handshake"), nil
	}

	client.mu.Lock()
	client.Version = req.ClientVersion
	client.Name = req.ClientName
	client.mu.Unlock()

	return NewResponse(MsgHandshakeAck, msg.Header.RequestID, &HandshakeResponse{
		ServerVersion:   s.version,
		ProtocolVersion: ProtocolVersion,
	})
}

func (s *Server) handleSubscribe(client *Client, msg *Message) (*Message, error) {
	var req SubscribeRequest
	if err := Decode(msg.Payload, &req); err != nil {
		return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest, "invalid subscribe request"), nil
	}

	sub := &subscription{
		clientID: client.ID,
		all:      len(req.Events) == 0,
		events:   make(map[EventType]bool),
	}
	for _, et := range req.Events {
		sub.events[et] = true
	}
	s.mu.Lock()
	s.subscribers[client.ID] = sub
	s.mu.Unlock()

	return NewResponse(MsgSubscribeResp, msg.Header.RequestID, &SubscribeResponse{
		Success:        true,
		SubscriptionID: client.ID,
	})
}

func (s *Server) handleUnsubscribe(client *Client, msg *Message) (*Message, error) {
	s.mu.Lock()
	delete(s.subscribers, client.ID)
	s.mu.Unlock()
	return NewMessage(MsgUnsubscribeResp, msg.Header.RequestID, nil), nil
}

func (s *Server) eventBroadcaster() {
	defer s.wg.Done()

	for {
		var event *Event
		select {
		case <-s.ctx.Done():
			return
		case event = <-s.eventChan:
		}

		s.mu.RLock()
		for clientID, sub := range s.subscribers {
			if sub.all || sub.events[event.Type] {
				if client, ok := s.clients[clientID]; ok {
					go s.sendEvent(client, event)
				}
			}
		}
		s.mu.RUnlock()
	}
}

func (s *Server) sendEvent(client *Client, event *Event) {
	payload, err := Encode(event)
	if err != nil {
		return
	}
	s.sendMessage(client, NewMessage(MsgEvent, s.nextRequestID.Add(1), payload))
}

func (s *Server) sendMessage(client *Client, msg *Message) error {
	client.writeMu.Lock()
	defer client.writeMu.Unlock()
	client.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	return msg.Write(client.conn)
}

func (s *Server) sendPing(client *Client) {
	s.sendMessage(client, NewMessage(MsgPing, s.nextRequestID.Add(1), nil))
}

func generateClientID() string {
	return fmt.Sprintf("client-%d-%d", time.Now().UnixNano(), os.Getpid())
}
