package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/carenest/relay/internal/model"
)

// DialTimeout bounds the bus-gateway connection handshake. A gateway that
// cannot be reached inside this window fails the invocation.
const DialTimeout = 10 * time.Second

// ackTimeout bounds the wait for the gateway's per-frame acknowledgement.
const ackTimeout = 10 * time.Second

// WSGateway publishes frames to the bus gateway over a fresh websocket
// connection per Send. The wire shape is a single text frame
// "<topicName>\n<jsonRecord>"; the gateway answers each frame with an info
// acknowledgement or an error message.
type WSGateway struct {
	url    string
	key    string
	logger *slog.Logger
}

// NewWSGateway creates a gateway client for the given websocket URL
// (e.g. "ws://relay:8080/v1/ingest") authenticated with the access key.
func NewWSGateway(url, key string, logger *slog.Logger) *WSGateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSGateway{url: url, key: key, logger: logger}
}

var _ Gateway = (*WSGateway)(nil)

// Send dials the gateway, writes one frame, waits for the acknowledgement,
// and closes the connection. Only the send/ack steps decide success; a
// failure to close cleanly is logged, never returned.
func (g *WSGateway) Send(ctx context.Context, topic string, payload []byte) error {
	dialCtx, cancel := context.WithTimeout(ctx, DialTimeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: DialTimeout}
	header := map[string][]string{"X-Relay-Key": {g.key}}
	conn, _, err := dialer.DialContext(dialCtx, g.url, header)
	if err != nil {
		return fmt.Errorf("connecting to bus gateway %s: %w", g.url, err)
	}
	defer g.close(conn)

	frame := make([]byte, 0, len(topic)+1+len(payload))
	frame = append(frame, topic...)
	frame = append(frame, '\n')
	frame = append(frame, payload...)

	if err := conn.SetWriteDeadline(time.Now().Add(ackTimeout)); err != nil {
		return fmt.Errorf("setting write deadline: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("sending frame: %w", err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(ackTimeout)); err != nil {
		return fmt.Errorf("setting read deadline: %w", err)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("awaiting acknowledgement: %w", err)
	}

	var ack model.OutboundMessage
	if err := json.Unmarshal(data, &ack); err != nil {
		return fmt.Errorf("decoding acknowledgement: %w", err)
	}
	if ack.Type == model.MessageError {
		return fmt.Errorf("gateway rejected frame: %s", ack.Payload)
	}
	return nil
}

// close performs a best-effort websocket close handshake.
func (g *WSGateway) close(conn *websocket.Conn) {
	deadline := time.Now().Add(time.Second)
	if err := conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline); err != nil {
		g.logger.Warn("bus gateway close handshake failed", "err", err)
	}
	if err := conn.Close(); err != nil {
		g.logger.Warn("bus gateway connection close failed", "err", err)
	}
}
