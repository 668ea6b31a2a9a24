package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/carenest/relay/internal/events"
	"github.com/carenest/relay/internal/model"
)

// Journal records every relayed event for auditing. Recording is best-effort:
// failures are logged by the consumer and never block or fail a broadcast.
type Journal interface {
	Record(ctx context.Context, topic string, payload []byte) error
}

// Consumer subscribes to the relay topics and fans each record out to the
// hub. Messages within one topic are processed sequentially to preserve
// publish order; the two topics are independent and run concurrently.
type Consumer struct {
	sub     events.Subscriber
	hub     *Hub
	journal Journal // nil = journaling disabled
	logger  *slog.Logger

	dropped atomic.Uint64
}

// NewConsumer wires a subscriber to the hub.
func NewConsumer(sub events.Subscriber, hub *Hub, journal Journal, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{sub: sub, hub: hub, journal: journal, logger: logger}
}

// Run subscribes to both topics and processes messages until ctx is
// cancelled. It returns the first subscription error; once subscribed, no
// single malformed message or dead client terminates the loops.
func (c *Consumer) Run(ctx context.Context) error {
	type subscription struct {
		topic  string
		ch     <-chan []byte
		cancel func()
	}

	var subs []subscription
	for _, topic := range events.Topics {
		ch, cancel, err := c.sub.Subscribe(topic)
		if err != nil {
			for _, s := range subs {
				s.cancel()
			}
			return fmt.Errorf("subscribing to %s: %w", topic, err)
		}
		subs = append(subs, subscription{topic: topic, ch: ch, cancel: cancel})
		c.logger.Info("subscribed to topic", "topic", topic)
	}

	var wg sync.WaitGroup
	for _, s := range subs {
		wg.Add(1)
		go func(s subscription) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case payload, ok := <-s.ch:
					if !ok {
						return
					}
					c.handle(ctx, s.topic, payload)
				}
			}
		}(s)
	}

	<-ctx.Done()
	for _, s := range subs {
		s.cancel()
	}
	wg.Wait()
	return nil
}

// handle validates one bus message and broadcasts it. Malformed messages are
// dropped and logged; they must never stop the consumer loop.
func (c *Consumer) handle(ctx context.Context, topic string, payload []byte) {
	msg, err := c.buildMessage(topic, payload)
	if err != nil {
		c.dropped.Add(1)
		c.logger.Warn("dropping malformed bus message", "topic", topic, "err", err)
		return
	}

	if c.journal != nil {
		if err := c.journal.Record(ctx, topic, payload); err != nil {
			c.logger.Warn("failed to journal event", "topic", topic, "err", err)
		}
	}

	c.hub.Broadcast(msg)
}

// buildMessage parses the record for its topic and wraps it in an outbound
// envelope. The original payload bytes pass through untouched so every client
// receives exactly what was published.
func (c *Consumer) buildMessage(topic string, payload []byte) (model.OutboundMessage, error) {
	switch topic {
	case events.TopicForumPosts:
		var post model.ForumPost
		if err := json.Unmarshal(payload, &post); err != nil {
			return model.OutboundMessage{}, fmt.Errorf("parsing post: %w", err)
		}
		if err := post.Validate(); err != nil {
			return model.OutboundMessage{}, err
		}
		return model.OutboundMessage{Type: model.MessageNewPost, Payload: payload}, nil

	case events.TopicForumVotes:
		var update model.VoteUpdate
		if err := json.Unmarshal(payload, &update); err != nil {
			return model.OutboundMessage{}, fmt.Errorf("parsing vote update: %w", err)
		}
		if err := update.Validate(); err != nil {
			return model.OutboundMessage{}, err
		}
		return model.OutboundMessage{Type: model.MessageVoteUpdate, Payload: payload}, nil

	default:
		return model.OutboundMessage{}, fmt.Errorf("unknown topic %q", topic)
	}
}

// Dropped returns the cumulative count of malformed messages skipped.
func (c *Consumer) Dropped() uint64 {
	return c.dropped.Load()
}
