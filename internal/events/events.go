package events

import "context"

// Relay topic constants. Each topic is a named, ordered channel on the bus;
// ordering is guaranteed per topic, not across topics.
const (
	// TopicForumPosts carries newly created forum post documents.
	TopicForumPosts = "forum-posts"

	// TopicForumVotes carries recomputed vote tallies for posts and topics.
	TopicForumVotes = "forum-votes"
)

// Topics lists every topic the relay consumes, in no particular order.
var Topics = []string{TopicForumPosts, TopicForumVotes}

// KnownTopic reports whether name is a topic this relay handles.
func KnownTopic(name string) bool {
	for _, t := range Topics {
		if t == name {
			return true
		}
	}
	return false
}

// Publisher is the interface for emitting raw record payloads to the bus.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Close() error
}
