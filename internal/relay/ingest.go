package relay

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/carenest/relay/internal/events"
	"github.com/carenest/relay/internal/model"
)

// handleIngest handles GET /v1/ingest: the bus-gateway endpoint Change
// Publisher invocations connect to. Each text frame is
// "<topicName>\n<jsonRecord>"; accepted frames are republished to the bus
// topic and acknowledged, rejected frames get an error message back.
// Frames on one connection are processed sequentially in arrival order.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("X-Relay-Key")
	if key == "" {
		key = r.URL.Query().Get("key")
	}
	if key != s.busKey {
		s.logger.Warn("ingest rejected: bad access key", "remote", r.RemoteAddr)
		writeError(w, http.StatusForbidden, "invalid access key")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ingest upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	defer conn.Close()

	s.logger.Info("ingest connection opened", "remote", r.RemoteAddr)
	defer s.logger.Info("ingest connection closed", "remote", r.RemoteAddr)

	conn.SetReadLimit(1 << 20)
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return
		}
		reply := s.ingestFrame(r, frame)
		data, _ := json.Marshal(reply)
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

// ingestFrame validates one frame and republishes it. Returns the
// acknowledgement to send back on the ingest connection.
func (s *Server) ingestFrame(r *http.Request, frame []byte) model.OutboundMessage {
	topicBytes, payload, found := bytes.Cut(frame, []byte("\n"))
	if !found {
		s.logger.Warn("ingest frame has no newline delimiter", "remote", r.RemoteAddr)
		return model.Error("malformed frame: missing newline delimiter")
	}

	topic := string(topicBytes)
	if !events.KnownTopic(topic) {
		s.logger.Warn("ingest frame for unknown topic", "topic", topic, "remote", r.RemoteAddr)
		return model.Error("unknown topic " + topic)
	}
	if !json.Valid(payload) {
		s.logger.Warn("ingest frame payload is not valid JSON", "topic", topic, "remote", r.RemoteAddr)
		return model.Error("payload is not valid JSON")
	}

	if err := s.bus.Publish(r.Context(), topic, payload); err != nil {
		s.logger.Error("failed to republish ingested frame", "topic", topic, "err", err)
		return model.Error("bus publish failed")
	}

	s.logger.Info("frame ingested", "topic", topic, "bytes", len(payload))
	return model.Info("published")
}
