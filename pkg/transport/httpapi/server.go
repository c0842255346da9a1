// Package httpapi serves the kernel log and host telemetry over HTTP and
// WebSocket.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/websocket"

	"github.com/modoterra/linux2rest/pkg/kernel"
	"github.com/modoterra/linux2rest/pkg/providers/system"
)

// Server is the REST and WebSocket front end.
type Server struct {
	addr     string
	service  *kernel.Service
	logger   *slog.Logger
	cache    *Cache
	upgrader websocket.Upgrader

	categories []system.Category
	everything func(ctx context.Context) (any, error)

	srv *http.Server
	ln  net.Listener
}

// NewServer creates a server for addr ("host:port").
func NewServer(addr string, service *kernel.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		addr:       addr,
		service:    service,
		logger:     logger,
		cache:      NewCache(),
		categories: system.Catalog(),
		everything: system.Everything,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     func(*http.Request) bool { return true },
		Error: func(w http.ResponseWriter, r *http.Request, _ int, reason error) {
			s.logger.Debug("websocket handshake failed", "remote", r.RemoteAddr, "err", reason)
			writeError(w, http.StatusBadRequest, reason)
		},
	}
	return s
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	var paths []string
	route := func(path string, h http.HandlerFunc) {
		mux.HandleFunc("GET "+path, h)
		paths = append(paths, path)
	}

	route("/kernel_buffer", s.handleKernelBuffer)
	route("/ws/kernel_buffer", s.handleKernelWebsocket)
	route("/system", s.cached("/system", 5*time.Second, s.everything, false))
	for _, c := range s.categories {
		route(c.Path, s.cached(c.Path, c.TTL, c.Collect, c.Text))
	}
	sort.Strings(paths)

	index, _ := json.Marshal(paths)
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(index)
	})
	return mux
}

// Listen binds the TCP listener.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.ln = ln
	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("http listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or the configured one before Listen.
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// Serve handles requests until ctx is cancelled, then shuts down.
func (s *Server) Serve(ctx context.Context) error {
	if s.srv == nil {
		return errors.New("serve: listener not bound")
	}
	// request contexts, and so websocket sessions, end with ctx
	s.srv.BaseContext = func(net.Listener) context.Context { return ctx }
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.srv.Shutdown(shutdownCtx)
	}()
	if err := s.srv.Serve(s.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, "error: %v", err)
}
