// Package trigger parses the event-type strings delivered by the upstream
// trigger system when a document mutates.
//
// The observed shape is
//
//	<namespace>.<dbId>.collections.<collectionId>.documents.<docId>.<action>
//
// but the number of leading namespace segments is not stable across
// environments, so parsing anchors on the literal "collections" and
// "documents" markers instead of fixed indices and fails closed on anything
// that does not fit.
package trigger

import (
	"fmt"
	"strings"
)

// Action is the mutation kind extracted from an event string.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Event is the parsed form of an upstream event-type string.
type Event struct {
	DatabaseID   string
	CollectionID string
	DocumentID   string
	Action       Action
}

// Invocation is the full payload the trigger system hands to one Change
// Publisher invocation: the event-type string plus an optional inline copy
// of the mutated document.
type Invocation struct {
	EventType string `json:"event"`
	Payload   string `json:"payload,omitempty"`
}

// Parse validates and decomposes an event-type string. It returns an error
// for any string that does not structurally match the expected shape; the
// caller must treat that as a validation failure, not index into the parts.
func Parse(eventType string) (*Event, error) {
	if strings.TrimSpace(eventType) == "" {
		return nil, fmt.Errorf("empty event type")
	}

	parts := strings.Split(eventType, ".")

	colIdx := -1
	for i, p := range parts {
		if p == "collections" {
			colIdx = i
			break
		}
	}
	if colIdx < 0 {
		return nil, fmt.Errorf("event type %q: no collections segment", eventType)
	}

	// After "collections" there must be exactly: <collectionId>, "documents",
	// <docId>, <action>.
	rest := parts[colIdx+1:]
	if len(rest) != 4 || rest[1] != "documents" {
		return nil, fmt.Errorf("event type %q: malformed collections/documents structure", eventType)
	}

	ev := &Event{
		CollectionID: rest[0],
		DocumentID:   rest[2],
	}
	if ev.CollectionID == "" || ev.DocumentID == "" {
		return nil, fmt.Errorf("event type %q: empty collection or document id", eventType)
	}

	switch Action(rest[3]) {
	case ActionCreate, ActionUpdate, ActionDelete:
		ev.Action = Action(rest[3])
	default:
		return nil, fmt.Errorf("event type %q: unknown action %q", eventType, rest[3])
	}

	// The database ID, when present, is the segment before "collections".
	// Some environments omit the databases namespace entirely.
	for i := 0; i < colIdx-1; i++ {
		if parts[i] == "databases" {
			ev.DatabaseID = parts[i+1]
			break
		}
	}

	return ev, nil
}
