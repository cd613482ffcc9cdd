package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/nubictl/nubi/internal/logging"
	"github.com/nubictl/nubi/internal/telemetry"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsSink adapts one gorilla/websocket connection to telemetry.Sink.
// Writes are serialized with a mutex since gorilla connections are not
// safe for concurrent writers, and the Fanout may call Send from its
// periodic ticker goroutine and an event-driven emitter goroutine at once.
type wsSink struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsSink) Send(ev telemetry.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(ev)
}

// handleWebSocket upgrades the connection, registers it with the Fanout,
// and relays subscriber commands ({reload, test, get_status}) back in
// until the client disconnects.
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.WithFields(map[string]interface{}{"error": err}).Warn("httpapi: websocket upgrade failed")
		return
	}

	sink := &wsSink{conn: conn}
	s.fanout.Register(sink)
	defer func() {
		s.fanout.Unregister(sink)
		conn.Close()
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var cmd struct {
			Action string `json:"action"`
		}
		if err := json.Unmarshal(message, &cmd); err != nil {
			continue
		}
		s.fanout.HandleCommand(context.Background(), sink, cmd.Action)
	}
}
