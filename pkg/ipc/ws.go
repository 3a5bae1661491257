package ipc

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gitgrind/gitgrind/pkg/bus"
	"github.com/gitgrind/gitgrind/pkg/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The server binds to loopback; the UI surfaces are local pages.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// handlePushStateWS streams push-state transitions to a connected UI surface.
// Each event published on the push-state subject is forwarded verbatim as one
// text frame.
func (s *Server) handlePushStateWS(w http.ResponseWriter, r *http.Request) {
	if s.msgBus == nil {
		http.Error(w, "push state stream unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	metricWSClients.Inc()
	defer metricWSClients.Dec()
	defer conn.Close()

	events := make(chan []byte, 64)
	sub, err := s.msgBus.Subscribe(r.Context(), bus.SubjectPushState, func(msg *bus.Message) []byte {
		select {
		case events <- msg.Data:
		default:
			// Slow client; drop rather than stall the bus.
		}
		return nil
	})
	if err != nil {
		return
	}
	defer sub.Unsubscribe()

	s.logger.Debug(logging.CategoryIPC, "ws_connected", "push state client connected", map[string]any{
		"remote": r.RemoteAddr,
	})

	// Reader goroutine: we never expect client frames, but reading is what
	// surfaces close and ping/pong traffic.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-done:
			return
		case data := <-events:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
