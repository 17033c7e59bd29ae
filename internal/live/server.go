// Package live serves session snapshots to host UIs over HTTP and WebSocket.
package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/candi/dictation/internal/session"
	"github.com/candi/dictation/internal/version"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxCommandSize = 4096
	shutdownWait   = 2 * time.Second
)

// Controller is the session surface exposed to live clients.
type Controller interface {
	Start()
	Stop()
	Clear()
	AppendNewline()
	Snapshot() session.Snapshot
	Watch() (<-chan session.Snapshot, func())
}

// Op names a client command.
type Op string

const (
	OpStart   Op = "start"
	OpStop    Op = "stop"
	OpClear   Op = "clear"
	OpNewline Op = "newline"
)

// Command is a client message.
type Command struct {
	Op Op `json:"op"`
}

// Message is a server message. Type is "snapshot" or "error".
type Message struct {
	Type     string            `json:"type"`
	Snapshot *session.Snapshot `json:"snapshot,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// Server exposes /ws, /snapshot and /healthz.
type Server struct {
	ctrl     Controller
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewServer builds a live server for ctrl.
func NewServer(ctrl Controller, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		ctrl:   ctrl,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /snapshot", s.handleSnapshot)
	mux.HandleFunc("GET /version", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, s.logger, version.Get())
	})
	mux.HandleFunc("GET /ws", s.handleWS)
	return mux
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen live feed %q: %w", addr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve serves on listener until ctx is done.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWait)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("live feed listening", "addr", listener.Addr().String())
	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.logger, s.ctrl.Snapshot())
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("encode response failed", "error", err.Error())
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err.Error())
		return
	}
	defer conn.Close()

	s.logger.Debug("live client connected", "remote", r.RemoteAddr)
	updates, cancel := s.ctrl.Watch()
	defer cancel()

	replies := make(chan Message, 8)
	readDone := make(chan struct{})
	closing := make(chan struct{})
	defer close(closing)
	go func() {
		defer close(readDone)
		s.readCommands(conn, replies, closing)
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case snap, ok := <-updates:
			if !ok {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"))
				return
			}
			if err := writeMessage(conn, Message{Type: "snapshot", Snapshot: &snap}); err != nil {
				return
			}
		case reply := <-replies:
			if err := writeMessage(conn, reply); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-readDone:
			return
		case <-r.Context().Done():
			return
		}
	}
}

// readCommands applies client commands until the connection fails. Unknown
// ops are answered on replies.
func (s *Server) readCommands(conn *websocket.Conn, replies chan<- Message, closing <-chan struct{}) {
	reply := func(msg Message) {
		select {
		case replies <- msg:
		case <-closing:
		}
	}

	conn.SetReadLimit(maxCommandSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var cmd Command
		if err := conn.ReadJSON(&cmd); err != nil {
			var syntaxErr *json.SyntaxError
			if errors.As(err, &syntaxErr) {
				reply(Message{Type: "error", Error: "malformed command"})
				continue
			}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("live client read ended", "error", err.Error())
			}
			return
		}
		if err := s.apply(cmd.Op); err != nil {
			reply(Message{Type: "error", Error: err.Error()})
		}
	}
}

func (s *Server) apply(op Op) error {
	switch Op(strings.ToLower(strings.TrimSpace(string(op)))) {
	case OpStart:
		s.ctrl.Start()
	case OpStop:
		s.ctrl.Stop()
	case OpClear:
		s.ctrl.Clear()
	case OpNewline:
		s.ctrl.AppendNewline()
	default:
		return fmt.Errorf("unknown op: %s", op)
	}
	return nil
}

func writeMessage(conn *websocket.Conn, msg Message) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(msg)
}
