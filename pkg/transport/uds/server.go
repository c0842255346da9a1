package uds

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"
)

const writeTimeout = 5 * time.Second

// HandlerFunc processes a request and returns a response data payload or error.
type HandlerFunc func(ctx context.Context, req Message) (any, error)

// StreamHandlerFunc processes a request that keeps pushing events after
// its response. It must answer with conn.Reply before sending events; a
// returned error is sent as the response instead. ctx is cancelled when
// the connection closes.
type StreamHandlerFunc func(ctx context.Context, req Message, conn *Conn) error

// Conn is one client connection. Writes are serialized.
type Conn struct {
	nc   net.Conn
	mu   sync.Mutex
	done <-chan struct{}
}

// Send writes one NDJSON message.
func (c *Conn) Send(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	data = append(data, '\n')

	c.mu.Lock()
	defer c.mu.Unlock()
	c.nc.SetWriteDeadline(time.Now().Add(writeTimeout))
	_, err = c.nc.Write(data)
	return err
}

// Reply sends a successful response to req.
func (c *Conn) Reply(req Message, data any) error {
	resp, err := NewResponse(req.ID, req.Method, data)
	if err != nil {
		return err
	}
	return c.Send(resp)
}

// Done is closed when the connection ends.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Server listens on a Unix domain socket and dispatches NDJSON messages.
type Server struct {
	socketPath string
	listener   net.Listener
	handlers   map[string]HandlerFunc
	streams    map[string]StreamHandlerFunc
	clients    map[*Conn]struct{}
	mu         sync.RWMutex
	logger     *slog.Logger
}

// NewServer creates a new UDS server.
func NewServer(socketPath string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		socketPath: socketPath,
		handlers:   make(map[string]HandlerFunc),
		streams:    make(map[string]StreamHandlerFunc),
		clients:    make(map[*Conn]struct{}),
		logger:     logger,
	}
}

// Handle registers a handler for a method.
func (s *Server) Handle(method string, h HandlerFunc) {
	s.handlers[method] = h
}

// HandleStream registers a streaming handler for a method.
func (s *Server) HandleStream(method string, h StreamHandlerFunc) {
	s.streams[method] = h
}

// Listen binds the socket. It removes any stale socket file first.
func (s *Server) Listen() error {
	if err := os.Remove(s.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket: %w", err)
	}

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.socketPath, err)
	}
	s.listener = ln
	s.logger.Info("control socket listening", "socket", s.socketPath)
	return nil
}

// Serve accepts connections on the bound socket until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	ln := s.listener
	if ln == nil {
		return errors.New("serve: socket not bound")
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil // shutting down
			}
			s.logger.Error("accept error", "err", err)
			continue
		}
		cctx, cancel := context.WithCancel(ctx)
		conn := &Conn{nc: nc, done: cctx.Done()}
		s.mu.Lock()
		s.clients[conn] = struct{}{}
		s.mu.Unlock()
		go s.handleConn(cctx, cancel, conn)
	}
}

// Start binds the socket and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Broadcast sends an event to all connected clients.
func (s *Server) Broadcast(msg Message) {
	s.mu.RLock()
	conns := make([]*Conn, 0, len(s.clients))
	for c := range s.clients {
		conns = append(conns, c)
	}
	s.mu.RUnlock()

	for _, c := range conns {
		if err := c.Send(msg); err != nil {
			s.logger.Error("broadcast write error", "err", err)
		}
	}
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Shutdown cleanly stops the server.
func (s *Server) Shutdown() {
	if s.listener != nil {
		s.listener.Close()
	}
	s.mu.Lock()
	for c := range s.clients {
		c.nc.Close()
	}
	s.mu.Unlock()
	os.Remove(s.socketPath)
}

func (s *Server) handleConn(ctx context.Context, cancel context.CancelFunc, conn *Conn) {
	defer func() {
		cancel()
		conn.nc.Close()
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
	}()

	scanner := bufio.NewScanner(conn.nc)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024) // 1MB max line

	for scanner.Scan() {
		var msg Message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			s.logger.Error("invalid message", "err", err)
			continue
		}

		if msg.Type != MsgTypeReq {
			continue
		}

		if sh, ok := s.streams[msg.Method]; ok {
			if err := sh(ctx, msg, conn); err != nil {
				s.reply(conn, NewErrorResponse(msg.ID, msg.Method, err.Error()))
			}
			continue
		}

		handler, ok := s.handlers[msg.Method]
		if !ok {
			s.reply(conn, NewErrorResponse(msg.ID, msg.Method, fmt.Sprintf("unknown method: %s", msg.Method)))
			continue
		}

		result, err := handler(ctx, msg)
		var resp Message
		if err != nil {
			resp = NewErrorResponse(msg.ID, msg.Method, err.Error())
		} else {
			resp, err = NewResponse(msg.ID, msg.Method, result)
			if err != nil {
				resp = NewErrorResponse(msg.ID, msg.Method, err.Error())
			}
		}
		s.reply(conn, resp)
	}
}

func (s *Server) reply(conn *Conn, msg Message) {
	if err := conn.Send(msg); err != nil {
		s.logger.Error("write response error", "err", err)
	}
}
