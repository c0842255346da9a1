package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/modoterra/linux2rest/pkg/core"
	"github.com/modoterra/linux2rest/pkg/kernel"
)

const (
	writeWait      = 10 * time.Second
	maxInboundSize = 64 * 1024
)

var inputRejected = map[string]string{"error": "Websocket does not support inputs."}

type sessionState int

const (
	stateConnecting sessionState = iota
	stateStreaming
	stateClosed
)

func (s sessionState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateStreaming:
		return "streaming"
	default:
		return "closed"
	}
}

type frame struct {
	kind int
	data []byte
}

// session streams the kernel buffer to one WebSocket client. Only run's
// goroutine writes to the connection; a reader goroutine feeds inbound
// frames to it.
type session struct {
	conn    *websocket.Conn
	service *kernel.Service
	logger  *slog.Logger
	state   sessionState
	sub     *kernel.Subscriber
}

func newSession(conn *websocket.Conn, service *kernel.Service, logger *slog.Logger) *session {
	return &session{
		conn:    conn,
		service: service,
		logger:  logger.With("remote", conn.RemoteAddr().String()),
		state:   stateConnecting,
	}
}

func (s *session) run(ctx context.Context) {
	defer s.close()

	snapshot, sub := s.service.Subscribe()
	s.sub = sub
	s.state = stateStreaming
	s.logger.Debug("websocket session streaming", "snapshot", len(snapshot), "subscriber", sub.ID())

	if err := s.writeJSON(snapshot); err != nil {
		s.logger.Debug("write snapshot", "err", err)
		return
	}

	s.conn.SetReadLimit(maxInboundSize)
	inbound := make(chan frame)
	stop := make(chan struct{})
	defer close(stop)
	go s.readLoop(inbound, stop)

	for {
		select {
		case <-ctx.Done():
			s.writeClose(websocket.CloseGoingAway, "server shutting down")
			return

		case entry := <-sub.Events():
			if err := s.writeJSON([]core.LogEntry{entry}); err != nil {
				s.logger.Debug("write entry", "err", err)
				return
			}

		case <-sub.Evicted():
			if sub.Overrun() {
				s.logger.Warn("websocket subscriber too slow, closing")
				s.writeClose(websocket.ClosePolicyViolation, "subscriber too slow")
			}
			return

		case f, ok := <-inbound:
			if !ok {
				return
			}
			if err := s.answer(f); err != nil {
				s.logger.Debug("write reply", "err", err)
				return
			}
		}
	}
}

// answer rejects text input and echoes binary frames.
func (s *session) answer(f frame) error {
	switch f.kind {
	case websocket.TextMessage:
		return s.writeJSON(inputRejected)
	case websocket.BinaryMessage:
		s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		return s.conn.WriteMessage(websocket.BinaryMessage, f.data)
	}
	return nil
}

// readLoop forwards inbound data frames. Pings are answered by the
// connection's default ping handler. The channel is closed when the peer
// goes away or sends garbage.
func (s *session) readLoop(out chan<- frame, stop <-chan struct{}) {
	defer close(out)
	for {
		kind, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket read", "err", err)
			}
			return
		}
		select {
		case out <- frame{kind: kind, data: data}:
		case <-stop:
			return
		}
	}
}

func (s *session) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *session) writeClose(code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

func (s *session) close() {
	if s.state == stateClosed {
		return
	}
	s.state = stateClosed
	s.service.Unsubscribe(s.sub)
	s.conn.Close()
	s.logger.Debug("websocket session closed")
}
