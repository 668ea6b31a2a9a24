package model

import "encoding/json"

// ForumPost is the full serialized post document as published on the bus.
// Timestamps stay strings end-to-end so the payload a browser receives is
// byte-identical to what the document store produced.
type ForumPost struct {
	ID        string `json:"id"`
	TopicID   string `json:"topicId"`
	UserID    string `json:"userId"`
	Content   string `json:"content"`
	CreatedAt string `json:"createdAt"`
}

// TargetType identifies what a vote update applies to.
type TargetType string

const (
	TargetTopic TargetType = "topic"
	TargetPost  TargetType = "post"
)

// VoteCounts is the aggregated tally for one vote target.
type VoteCounts struct {
	Upvotes   int `json:"upvotes"`
	Downvotes int `json:"downvotes"`
	Score     int `json:"score"`
}

// VoteUpdate is the recomputed vote state for a single target, published
// whenever any vote document for that target changes.
type VoteUpdate struct {
	TargetID   string     `json:"targetId"`
	TargetType TargetType `json:"targetType"`
	VoteCounts VoteCounts `json:"voteCounts"`
}

// Outbound message types sent to connected clients.
const (
	MessageNewPost    = "new_post"
	MessageVoteUpdate = "vote_update"
	MessageInfo       = "info"
	MessageError      = "error"
)

// OutboundMessage is the envelope delivered to every connected client.
// Payload is kept raw so the envelope is serialized exactly once per event
// and the record bytes pass through unmodified.
type OutboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Info builds an informational OutboundMessage with a status string payload.
func Info(status string) OutboundMessage {
	payload, _ := json.Marshal(map[string]string{"status": status})
	return OutboundMessage{Type: MessageInfo, Payload: payload}
}

// Error builds an error OutboundMessage with a message string payload.
func Error(message string) OutboundMessage {
	payload, _ := json.Marshal(map[string]string{"message": message})
	return OutboundMessage{Type: MessageError, Payload: payload}
}
