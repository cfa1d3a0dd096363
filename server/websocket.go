package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/Syferie/BiliBili-Transcribe/progress"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10
)

// handleProgressWS streams progress records for one job over a
// websocket, starting with the current snapshot when one exists.
func (s *Server) handleProgressWS(w http.ResponseWriter, r *http.Request) {
	bvID := mux.Vars(r)["bvId"]
	if !bvPattern.MatchString(bvID) {
		http.Error(w, "invalid BV id", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	updates := s.store.Subscribe(bvID)

	go s.writeProgress(conn, bvID, updates)
	s.readUntilClosed(conn)

	s.store.Unsubscribe(bvID, updates)
	conn.Close()
}

func (s *Server) writeProgress(conn *websocket.Conn, bvID string, updates <-chan progress.Record) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	if rec, ok := s.store.Get(bvID); ok {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(rec); err != nil {
			return
		}
	}

	for {
		select {
		case rec, ok := <-updates:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(rec); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) readUntilClosed(conn *websocket.Conn) {
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("WebSocket read error", "error", err)
			}
			return
		}
	}
}
