package server

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	streamBuffer = 32
	writeWait    = 5 * time.Second
	pongWait     = 30 * time.Second
	pingPeriod   = pongWait * 9 / 10
)

// streamMessage frames one StateEvent on the websocket feed.
type streamMessage struct {
	Type  string `json:"type"`
	Event any    `json:"event,omitempty"`
}

// stream upgrades to a websocket and forwards every StateEvent, starting
// with the current one. Client messages are read only to observe close.
func (s *Server) stream(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	s.metrics.IncWSConnections()
	defer s.metrics.DecWSConnections()

	events, cancel := s.orch.Stream(streamBuffer)
	defer cancel()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := s.send(conn, streamMessage{Type: "state", Event: s.orch.Current()}); err != nil {
		return
	}

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := s.send(conn, streamMessage{Type: "state", Event: ev}); err != nil {
				s.logger.Debug("WebSocket write failed", zap.Error(err))
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) send(conn *websocket.Conn, msg streamMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(msg)
}
