package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/zeusync/simview/internal/core/observability/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

const maxWebSocketMessage = 1 << 20

// HandleWebSocket reads JSON updates until the peer disconnects and answers
// each message with an Ack. Undecodable messages are refused, not fatal.
func (b *Bridge) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("WebSocket upgrade failed", log.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()
	if !b.track(conn) {
		return
	}
	defer b.untrack(conn)
	conn.SetReadLimit(maxWebSocketMessage)

	peer := conn.RemoteAddr().String()
	b.logger.Info("WebSocket host connected", log.String("peer", peer))

	for {
		var data []byte
		if _, data, err = conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				b.logger.Warn("WebSocket read failed", log.String("peer", peer), log.Error(err))
			}
			b.logger.Info("WebSocket host disconnected", log.String("peer", peer))
			return
		}
		ack := Ack{Error: ErrInvalidUpdate.Error()}
		var u Update
		if err = json.Unmarshal(data, &u); err == nil {
			ack = b.ack(u, "websocket")
		}
		if err = conn.WriteJSON(ack); err != nil {
			b.logger.Warn("WebSocket write failed", log.String("peer", peer), log.Error(err))
			return
		}
	}
}
