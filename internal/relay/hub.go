package relay

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/carenest/relay/internal/idgen"
	"github.com/carenest/relay/internal/model"
)

// clientBufSize is the per-client outbound buffer. A client whose buffer is
// full is treated exactly like one whose write failed: pruned.
const clientBufSize = 64

// Client is one registry entry: a connected browser tab. The hub owns the
// entry for its lifetime; the transport handler owns the underlying
// connection and drains the send channel.
type Client struct {
	ID   string
	send chan []byte

	done     chan struct{}
	stopOnce sync.Once
}

// Send returns the channel the transport writer drains.
func (c *Client) Send() <-chan []byte { return c.send }

// Done is closed when the hub has removed this client; the transport writer
// must stop on it.
func (c *Client) Done() <-chan struct{} { return c.done }

// stop closes done exactly once.
func (c *Client) stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

// Hub is the client registry: the set of currently connected real-time
// clients. Add, Remove, and Broadcast are safe to call concurrently; a client
// added mid-broadcast may or may not receive that in-flight message but never
// receives one twice.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}

	relayed atomic.Uint64
	pruned  atomic.Uint64

	logger *slog.Logger
}

// NewHub returns an empty registry.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

// Add registers a new client and returns it.
func (h *Hub) Add() *Client {
	id, err := idgen.GenerateWithPrefix("conn-")
	if err != nil {
		id = "conn-unknown"
	}
	c := &Client{
		ID:   id,
		send: make(chan []byte, clientBufSize),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

// Remove deletes a client from the registry and signals its transport writer
// to stop. Removing an already-absent client is a no-op.
func (h *Hub) Remove(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.stop()
}

// Len returns the number of currently registered clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast serializes the message exactly once and delivers the identical
// bytes to every registered client. Clients that cannot accept the write
// (full buffer = dead or stalled) are pruned; one dead client never blocks or
// fails delivery to the others.
func (h *Hub) Broadcast(msg model.OutboundMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Warn("failed to marshal outbound message", "type", msg.Type, "err", err)
		return
	}
	h.BroadcastRaw(data)
}

// BroadcastRaw delivers pre-serialized bytes to every registered client.
func (h *Hub) BroadcastRaw(data []byte) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	var prunedNow []*Client
	for _, c := range targets {
		select {
		case c.send <- data:
		case <-c.done:
			// Already stopping; skip.
		default:
			prunedNow = append(prunedNow, c)
		}
	}

	for _, c := range prunedNow {
		h.Remove(c)
		h.pruned.Add(1)
	}

	h.relayed.Add(1)
	if len(prunedNow) > 0 {
		h.logger.Info("pruned dead clients during broadcast",
			"pruned", len(prunedNow), "remaining", h.Len())
	}
}

// Stats returns cumulative relayed-message and pruned-client counters.
func (h *Hub) Stats() (relayed, pruned uint64) {
	return h.relayed.Load(), h.pruned.Load()
}
