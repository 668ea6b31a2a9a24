package docstore

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/carenest/relay/internal/model"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, "carenest", "apikey", "main", "posts", "votes")
}

func TestGetPost(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/databases/main/collections/posts/documents/p1" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.Header.Get("X-Relay-Project") != "carenest" {
			t.Errorf("missing project header")
		}
		if r.Header.Get("X-Relay-Key") != "apikey" {
			t.Errorf("missing key header")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"p1","topicId":"t1","userId":"u1","content":"hello","createdAt":"2024-01-01T00:00:00Z"}`))
	})

	post, err := client.GetPost(context.Background(), "p1")
	if err != nil {
		t.Fatalf("GetPost error: %v", err)
	}
	if post.ID != "p1" || post.Content != "hello" {
		t.Errorf("unexpected post: %+v", post)
	}
}

func TestGetPost_NotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
	})

	_, err := client.GetPost(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsNotFound(err) {
		t.Errorf("IsNotFound = false for %v", err)
	}
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusNotFound {
		t.Errorf("expected 404 StatusError, got %v", err)
	}
}

func TestGetVote(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/databases/main/collections/votes/documents/v1" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Write([]byte(`{"id":"v1","targetId":"p1","targetType":"post","voteType":"up"}`))
	})

	vote, err := client.GetVote(context.Background(), "v1")
	if err != nil {
		t.Fatalf("GetVote error: %v", err)
	}
	if vote.TargetID != "p1" || vote.TargetType != model.TargetPost {
		t.Errorf("unexpected vote: %+v", vote)
	}
}

func TestListVotes(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/databases/main/collections/votes/documents" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("targetId") != "p1" || q.Get("targetType") != "post" {
			t.Errorf("unexpected query %q", r.URL.RawQuery)
		}
		w.Write([]byte(`{"documents":[
			{"id":"v1","targetId":"p1","targetType":"post","voteType":"up"},
			{"id":"v2","targetId":"p1","targetType":"post","voteType":"up"},
			{"id":"v3","targetId":"p1","targetType":"post","voteType":"down"}
		],"total":3}`))
	})

	votes, err := client.ListVotes(context.Background(), "p1", model.TargetPost)
	if err != nil {
		t.Fatalf("ListVotes error: %v", err)
	}
	if len(votes) != 3 {
		t.Fatalf("got %d votes, want 3", len(votes))
	}
	if votes[2].VoteType != "down" {
		t.Errorf("unexpected vote order/content: %+v", votes)
	}
}

func TestDoJSON_MalformedBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":`))
	})

	if _, err := client.GetPost(context.Background(), "p1"); err == nil {
		t.Fatal("expected decode error")
	}
}
