// Package export periodically snapshots the event journal to an external
// destination as JSONL.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/carenest/relay/internal/journal"
)

// Source provides the journaled events to export.
type Source interface {
	// ListSince returns entries with an ID greater than sinceID, oldest first.
	ListSince(ctx context.Context, sinceID int64) ([]journal.Entry, error)
}

// header is the first JSONL record written by WriteJSONL.
type header struct {
	Version    string    `json:"version"`
	Type       string    `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	EventCount int       `json:"event_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// WriteJSONL writes a full journal snapshot as JSONL to w: one header line
// followed by one line per event in journal order.
func WriteJSONL(ctx context.Context, src Source, w io.Writer) error {
	entries, err := src.ListSince(ctx, 0)
	if err != nil {
		return fmt.Errorf("list journal entries: %w", err)
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:    "1",
		Type:       "header",
		Timestamp:  time.Now().UTC(),
		EventCount: len(entries),
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for _, e := range entries {
		if err := enc.Encode(record{Type: "event", Data: e}); err != nil {
			return fmt.Errorf("encode event %d: %w", e.ID, err)
		}
	}

	return nil
}
