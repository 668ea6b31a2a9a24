// Package relay implements the Broadcast Server: the long-running process
// that consumes relay topics from the bus and fans each record out to every
// connected browser over a persistent websocket.
package relay

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/carenest/relay/internal/events"
)

// Server hosts the transport endpoint, the bus-gateway ingest endpoint, and
// the health/stats routes. The hub is its only shared mutable state.
type Server struct {
	hub      *Hub
	bus      events.Publisher
	busKey   string
	logger   *slog.Logger
	upgrader websocket.Upgrader

	consumer *Consumer // optional, for the stats route
}

// NewServer creates a server broadcasting through hub and republishing
// ingested frames through bus. busKey authenticates ingest connections.
func NewServer(hub *Hub, bus events.Publisher, busKey string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		hub:    hub,
		bus:    bus,
		busKey: busKey,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Browsers connect from the app origin; the relay carries no
			// credentials, so cross-origin upgrades are accepted.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// AttachConsumer lets the stats route report the consumer's drop counter.
func (s *Server) AttachConsumer(c *Consumer) {
	s.consumer = c
}

// Hub returns the server's client registry.
func (s *Server) Hub() *Hub {
	return s.hub
}
