package hub

import (
	"time"

	"github.com/gorilla/websocket"
)

// Serve registers conn and pumps frames to it until either side closes.
// It blocks until the read side ends.
func (h *Hub) Serve(conn *Connection) {
	if !h.Register(conn) {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
		conn.Close()
		return
	}
	go h.writePump(conn)
	h.readPump(conn)
}

// readPump discards client frames and keeps the read deadline moving on
// pongs. The feed is push only.
func (h *Hub) readPump(conn *Connection) {
	defer func() {
		h.Unregister(conn)
		conn.Close()
	}()

	readTimeout := 2 * h.opts.PingInterval
	conn.Conn.SetReadLimit(4096)
	conn.Conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		return conn.Conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		if _, _, err := conn.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Str("conn_id", conn.ID).Msg("WebSocket error")
			}
			return
		}
	}
}

func (h *Hub) writePump(conn *Connection) {
	ticker := time.NewTicker(h.opts.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(h.opts.WriteTimeout))
			if !ok {
				// Hub closed the channel
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Debug().Err(err).Str("conn_id", conn.ID).Msg("Failed to write message")
				return
			}

		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(h.opts.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
