package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/huangsam/xray/schema"
)

// handleStream sends the catch-up event, then live events, until the job ends or the client leaves.
// A ping message is written whenever the stream is idle for the keepalive interval.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", "job_id", id, "error", err)
		return
	}
	defer conn.Close()

	sub, err := s.analyzer.Subscribe(id)
	if err != nil {
		_ = s.send(conn, schema.Event{Type: schema.EventError, Message: "Job not found"})
		s.closeConn(conn)
		return
	}
	defer s.analyzer.Unsubscribe(sub)
	s.logger.Debug("WebSocket client attached", "job_id", id)

	// Reads only detect the client going away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	keepalive := time.NewTicker(s.cfg.Keepalive)
	defer keepalive.Stop()

	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				s.closeConn(conn)
				return
			}
			if err := s.send(conn, ev); err != nil {
				s.logger.Debug("WebSocket write failed", "job_id", id, "error", err)
				return
			}
			if ev.IsTerminal() {
				s.closeConn(conn)
				return
			}
			keepalive.Reset(s.cfg.Keepalive)
		case <-keepalive.C:
			if err := s.send(conn, map[string]string{"type": string(schema.EventPing)}); err != nil {
				return
			}
		case <-gone:
			s.logger.Debug("WebSocket client detached", "job_id", id)
			return
		}
	}
}

func (s *Server) send(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

func (s *Server) closeConn(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
