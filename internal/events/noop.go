package events

import "context"

// NoopPublisher is a Publisher that does nothing (used in tests and when the
// bus is intentionally absent).
type NoopPublisher struct{}

func (n *NoopPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	return nil
}

func (n *NoopPublisher) Close() error {
	return nil
}
