package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// CORS for the REST endpoints is configurable; the event stream
		// carries no credentials so any origin may observe it.
		return true
	},
}

// runEventsHandler upgrades the connection and streams state snapshots of
// one run until it reaches a terminal state or the client goes away.
func (s *Server) runEventsHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	orch, ok := s.run(id)
	if !ok {
		s.writeError(w, "Run not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	slog.Info("WebSocket connection established", "session", id, "remote_addr", r.RemoteAddr)

	// Keep the connection alive while the run is idle between snapshots
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			}
		}
	}()

	updates, cancel := orch.Subscribe()
	defer cancel()

	// A client that goes away must unblock the snapshot stream; cancel
	// closes the updates channel and ends the range below.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	// Current state first, then every change
	current := orch.Snapshot()
	if err := conn.WriteJSON(RunStatusResponse{ID: id, Snapshot: current}); err != nil {
		return
	}
	if current.Done() {
		return
	}
	for snap := range updates {
		if err := conn.WriteJSON(RunStatusResponse{ID: id, Snapshot: snap}); err != nil {
			return
		}
		if snap.Done() {
			return
		}
	}
}
