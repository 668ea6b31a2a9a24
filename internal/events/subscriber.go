package events

// Subscriber receives raw record payloads from the bus.
type Subscriber interface {
	// Subscribe delivers payloads for the given topic on the returned channel
	// in publish order. Call the returned cancel function to unsubscribe and
	// close the channel.
	Subscribe(topic string) (<-chan []byte, func(), error)
	Close() error
}
