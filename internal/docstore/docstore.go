// Package docstore is an HTTP/JSON client for the document store that backs
// the forum. The store itself is an external collaborator; the relay only
// performs point reads and vote-listing queries against its REST surface.
package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/carenest/relay/internal/model"
)

// Vote is one vote document. Aggregation into counts happens in the
// publisher; the store only returns the raw documents.
type Vote struct {
	ID         string           `json:"id"`
	TargetID   string           `json:"targetId"`
	TargetType model.TargetType `json:"targetType"`
	VoteType   string           `json:"voteType"` // "up" or "down"
}

// Client talks to the document store REST API.
type Client struct {
	baseURL         string
	project         string
	key             string
	databaseID      string
	postsCollection string
	votesCollection string
	httpClient      *http.Client
}

// New creates a client for the given endpoint (e.g. "https://store.example.com/v1").
// Every request carries the project and API key headers.
func New(endpoint, project, key, databaseID, postsCollection, votesCollection string) *Client {
	return &Client{
		baseURL:         strings.TrimRight(endpoint, "/"),
		project:         project,
		key:             key,
		databaseID:      databaseID,
		postsCollection: postsCollection,
		votesCollection: votesCollection,
		httpClient:      &http.Client{Timeout: 15 * time.Second},
	}
}

// GetPost performs a point read of one post document.
func (c *Client) GetPost(ctx context.Context, id string) (*model.ForumPost, error) {
	path := c.documentPath(c.postsCollection, id)
	var post model.ForumPost
	if err := c.doJSON(ctx, http.MethodGet, path, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// GetVote performs a point read of one vote document.
func (c *Client) GetVote(ctx context.Context, id string) (*Vote, error) {
	path := c.documentPath(c.votesCollection, id)
	var vote Vote
	if err := c.doJSON(ctx, http.MethodGet, path, &vote); err != nil {
		return nil, err
	}
	return &vote, nil
}

// ListVotes returns every vote document for the given target. The caller
// aggregates; the store has no aggregate endpoint.
func (c *Client) ListVotes(ctx context.Context, targetID string, targetType model.TargetType) ([]Vote, error) {
	q := url.Values{}
	q.Set("targetId", targetID)
	q.Set("targetType", string(targetType))
	path := fmt.Sprintf("/databases/%s/collections/%s/documents?%s",
		url.PathEscape(c.databaseID), url.PathEscape(c.votesCollection), q.Encode())

	var resp struct {
		Documents []Vote `json:"documents"`
		Total     int    `json:"total"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, &resp); err != nil {
		return nil, err
	}
	return resp.Documents, nil
}

func (c *Client) documentPath(collection, id string) string {
	return fmt.Sprintf("/databases/%s/collections/%s/documents/%s",
		url.PathEscape(c.databaseID), url.PathEscape(collection), url.PathEscape(id))
}

// doJSON performs a request and decodes the JSON response into out.
func (c *Client) doJSON(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Relay-Project", c.project)
	req.Header.Set("X-Relay-Key", c.key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("document store request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding document store response: %w", err)
	}
	return nil
}

// StatusError is a non-200 response from the document store.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("document store returned %d: %s", e.Code, e.Body)
}

// IsNotFound reports whether err is a 404 from the document store.
func IsNotFound(err error) bool {
	se, ok := err.(*StatusError)
	return ok && se.Code == http.StatusNotFound
}
