package relay

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/carenest/relay/internal/model"
)

const (
	// writeWait bounds a single frame write to a client.
	writeWait = 10 * time.Second

	// pongWait is how long a client may go silent before it is considered
	// dead. Pings go out at pingPeriod to keep live clients answering.
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// handleWS handles GET /ws: the transport endpoint. Each browser tab holds
// one connection for the duration of its session; the protocol is server-push
// only.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	client := s.hub.Add()
	s.logger.Info("client connected", "conn_id", client.ID, "remote", r.RemoteAddr, "clients", s.hub.Len())

	// Acknowledge the connection. Queued through the same channel as
	// broadcasts, so a broadcast racing the join may arrive first; ordering
	// relative to the ack is deliberately unspecified.
	ack, _ := json.Marshal(model.Info("connected"))
	select {
	case <-client.Done():
	default:
		client.send <- ack
	}

	go s.writePump(client, conn)
	s.readPump(client, conn)
}

// readPump consumes inbound frames until the connection dies. The channel is
// one-directional by design: anything a client sends is logged and ignored.
func (s *Server) readPump(client *Client, conn *websocket.Conn) {
	defer func() {
		s.hub.Remove(client)
		conn.Close()
		s.logger.Info("client disconnected", "conn_id", client.ID, "clients", s.hub.Len())
	}()

	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s.logger.Debug("ignoring inbound client message", "conn_id", client.ID, "bytes", len(data))
	}
}

// writePump owns all writes to the connection: queued messages and keepalive
// pings. A failed write removes the client from the registry.
func (s *Server) writePump(client *Client, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.hub.Remove(client)
		conn.Close()
	}()

	for {
		select {
		case <-client.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case data := <-client.Send():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Warn("client write failed, pruning", "conn_id", client.ID, "err", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				s.logger.Warn("client ping failed, pruning", "conn_id", client.ID, "err", err)
				return
			}
		}
	}
}
