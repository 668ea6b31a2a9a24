package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/carenest/relay/internal/docstore"
	"github.com/carenest/relay/internal/events"
	"github.com/carenest/relay/internal/model"
	"github.com/carenest/relay/internal/trigger"
)

type fakeStore struct {
	posts map[string]*model.ForumPost
	votes map[string]*docstore.Vote
	lists map[string][]docstore.Vote // targetID -> votes

	getPostErr error
	listErr    error
}

func (f *fakeStore) GetPost(_ context.Context, id string) (*model.ForumPost, error) {
	if f.getPostErr != nil {
		return nil, f.getPostErr
	}
	p, ok := f.posts[id]
	if !ok {
		return nil, &docstore.StatusError{Code: 404, Body: "not found"}
	}
	return p, nil
}

func (f *fakeStore) GetVote(_ context.Context, id string) (*docstore.Vote, error) {
	v, ok := f.votes[id]
	if !ok {
		return nil, &docstore.StatusError{Code: 404, Body: "not found"}
	}
	return v, nil
}

func (f *fakeStore) ListVotes(_ context.Context, targetID string, _ model.TargetType) ([]docstore.Vote, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.lists[targetID], nil
}

type fakeGateway struct {
	topic   string
	payload []byte
	calls   int
	err     error
}

func (f *fakeGateway) Send(_ context.Context, topic string, payload []byte) error {
	f.calls++
	f.topic = topic
	f.payload = payload
	return f.err
}

func newTestPublisher(store *fakeStore, gw *fakeGateway) *Publisher {
	return New(store, gw, "posts", "votes", nil)
}

const validPostJSON = `{"id":"p1","topicId":"t1","userId":"u1","content":"hello","createdAt":"2024-01-01T00:00:00Z"}`

func TestProcess_PostCreateWithInlinePayload(t *testing.T) {
	gw := &fakeGateway{}
	pub := newTestPublisher(&fakeStore{}, gw)

	res := pub.Process(context.Background(), trigger.Invocation{
		EventType: "databases.main.collections.posts.documents.p1.create",
		Payload:   validPostJSON,
	})

	if res.Status != StatusPublished {
		t.Fatalf("status = %q (%s), want published", res.Status, res.Reason)
	}
	if res.Topic != events.TopicForumPosts {
		t.Errorf("topic = %q, want %q", res.Topic, events.TopicForumPosts)
	}
	if gw.calls != 1 {
		t.Fatalf("gateway called %d times, want 1", gw.calls)
	}

	var got model.ForumPost
	if err := json.Unmarshal(gw.payload, &got); err != nil {
		t.Fatalf("unmarshal published payload: %v", err)
	}
	if got.ID != "p1" || got.Content != "hello" || got.CreatedAt != "2024-01-01T00:00:00Z" {
		t.Errorf("published payload = %+v", got)
	}
}

func TestProcess_PostCreateFallsBackToPointRead(t *testing.T) {
	store := &fakeStore{posts: map[string]*model.ForumPost{
		"p1": {ID: "p1", TopicID: "t1", UserID: "u1", Content: "hello", CreatedAt: "2024-01-01T00:00:00Z"},
	}}
	gw := &fakeGateway{}
	pub := newTestPublisher(store, gw)

	// Inline payload missing content: unusable, must fall back.
	res := pub.Process(context.Background(), trigger.Invocation{
		EventType: "databases.main.collections.posts.documents.p1.create",
		Payload:   `{"id":"p1","topicId":"t1","userId":"u1","createdAt":"2024-01-01T00:00:00Z"}`,
	})

	if res.Status != StatusPublished {
		t.Fatalf("status = %q (%s), want published", res.Status, res.Reason)
	}
	if gw.calls != 1 {
		t.Fatalf("gateway called %d times, want 1", gw.calls)
	}
}

func TestProcess_RecordMissingContentIsRejectedBeforePublish(t *testing.T) {
	// Scenario: both the inline payload and the point read lack required
	// fields. No frame may ever be sent.
	store := &fakeStore{posts: map[string]*model.ForumPost{
		"p1": {ID: "p1", TopicID: "t1", UserID: "u1", CreatedAt: "2024-01-01T00:00:00Z"},
	}}
	gw := &fakeGateway{}
	pub := newTestPublisher(store, gw)

	res := pub.Process(context.Background(), trigger.Invocation{
		EventType: "databases.main.collections.posts.documents.p1.create",
		Payload:   `{"id":"p1"}`,
	})

	if res.Status != StatusFailed {
		t.Fatalf("status = %q, want failed", res.Status)
	}
	if !strings.Contains(res.Reason, "content") {
		t.Errorf("reason should name the missing field, got %q", res.Reason)
	}
	if gw.calls != 0 {
		t.Fatalf("gateway called %d times, want 0", gw.calls)
	}
}

func TestProcess_PostUpdateIsSkipped(t *testing.T) {
	gw := &fakeGateway{}
	pub := newTestPublisher(&fakeStore{}, gw)

	res := pub.Process(context.Background(), trigger.Invocation{
		EventType: "databases.main.collections.posts.documents.p1.update",
		Payload:   validPostJSON,
	})

	if res.Status != StatusSkipped {
		t.Fatalf("status = %q, want skipped", res.Status)
	}
	if gw.calls != 0 {
		t.Fatalf("gateway called %d times, want 0", gw.calls)
	}
}

func TestProcess_UnknownCollectionIsSkipped(t *testing.T) {
	gw := &fakeGateway{}
	pub := newTestPublisher(&fakeStore{}, gw)

	res := pub.Process(context.Background(), trigger.Invocation{
		EventType: "databases.main.collections.comments.documents.c1.create",
	})

	if res.Status != StatusSkipped {
		t.Fatalf("status = %q, want skipped", res.Status)
	}
}

func TestProcess_MalformedEventTypeFails(t *testing.T) {
	gw := &fakeGateway{}
	pub := newTestPublisher(&fakeStore{}, gw)

	res := pub.Process(context.Background(), trigger.Invocation{
		EventType: "databases.main.collections.posts.p1.create",
	})

	if res.Status != StatusFailed {
		t.Fatalf("status = %q, want failed", res.Status)
	}
	if gw.calls != 0 {
		t.Fatalf("gateway called %d times, want 0", gw.calls)
	}
}

func TestProcess_VoteRecomputesAggregateOnAnyAction(t *testing.T) {
	store := &fakeStore{
		votes: map[string]*docstore.Vote{
			"v9": {ID: "v9", TargetID: "p1", TargetType: model.TargetPost, VoteType: "down"},
		},
		lists: map[string][]docstore.Vote{
			"p1": {
				{VoteType: "up"}, {VoteType: "up"}, {VoteType: "up"}, {VoteType: "down"},
			},
		},
	}

	for _, action := range []string{"create", "update", "delete"} {
		gw := &fakeGateway{}
		pub := newTestPublisher(store, gw)

		res := pub.Process(context.Background(), trigger.Invocation{
			EventType: "databases.main.collections.votes.documents.v9." + action,
		})

		if res.Status != StatusPublished {
			t.Fatalf("action %s: status = %q (%s), want published", action, res.Status, res.Reason)
		}
		if res.Topic != events.TopicForumVotes {
			t.Errorf("action %s: topic = %q", action, res.Topic)
		}

		var update model.VoteUpdate
		if err := json.Unmarshal(gw.payload, &update); err != nil {
			t.Fatalf("unmarshal vote payload: %v", err)
		}
		want := model.VoteCounts{Upvotes: 3, Downvotes: 1, Score: 2}
		if update.VoteCounts != want {
			t.Errorf("action %s: counts = %+v, want %+v", action, update.VoteCounts, want)
		}
		if update.TargetType != model.TargetPost {
			t.Errorf("action %s: targetType = %q", action, update.TargetType)
		}
	}
}

func TestProcess_VoteDeleteWithInlinePayload(t *testing.T) {
	// On delete the vote document is gone; the inline payload is the only
	// source for the target.
	store := &fakeStore{
		lists: map[string][]docstore.Vote{"t1": {{VoteType: "up"}}},
	}
	gw := &fakeGateway{}
	pub := newTestPublisher(store, gw)

	res := pub.Process(context.Background(), trigger.Invocation{
		EventType: "databases.main.collections.votes.documents.v1.delete",
		Payload:   `{"id":"v1","targetId":"t1","targetType":"topic","voteType":"up"}`,
	})

	if res.Status != StatusPublished {
		t.Fatalf("status = %q (%s), want published", res.Status, res.Reason)
	}

	var update model.VoteUpdate
	if err := json.Unmarshal(gw.payload, &update); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if update.TargetType != model.TargetTopic {
		t.Errorf("targetType = %q, want topic", update.TargetType)
	}
	if update.VoteCounts.Score != 1 {
		t.Errorf("score = %d, want 1", update.VoteCounts.Score)
	}
}

func TestProcess_VoteWithoutAnySourceFails(t *testing.T) {
	gw := &fakeGateway{}
	pub := newTestPublisher(&fakeStore{}, gw)

	res := pub.Process(context.Background(), trigger.Invocation{
		EventType: "databases.main.collections.votes.documents.v1.delete",
	})

	if res.Status != StatusFailed {
		t.Fatalf("status = %q, want failed", res.Status)
	}
	if gw.calls != 0 {
		t.Fatalf("gateway called %d times, want 0", gw.calls)
	}
}

func TestProcess_GatewayFailureIsReported(t *testing.T) {
	gw := &fakeGateway{err: errors.New("connection refused")}
	pub := newTestPublisher(&fakeStore{}, gw)

	res := pub.Process(context.Background(), trigger.Invocation{
		EventType: "databases.main.collections.posts.documents.p1.create",
		Payload:   validPostJSON,
	})

	if res.Status != StatusFailed {
		t.Fatalf("status = %q, want failed", res.Status)
	}
	if !strings.Contains(res.Reason, "connection refused") {
		t.Errorf("reason = %q, want gateway error detail", res.Reason)
	}
}

func TestAggregate(t *testing.T) {
	votes := []docstore.Vote{
		{VoteType: "up"}, {VoteType: "up"}, {VoteType: "down"}, {VoteType: "sideways"},
	}
	got := Aggregate(votes)
	want := model.VoteCounts{Upvotes: 2, Downvotes: 1, Score: 1}
	if got != want {
		t.Errorf("Aggregate = %+v, want %+v", got, want)
	}

	if got := Aggregate(nil); got != (model.VoteCounts{}) {
		t.Errorf("Aggregate(nil) = %+v, want zero counts", got)
	}
}
