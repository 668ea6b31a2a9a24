package events

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
)

func TestKnownTopic(t *testing.T) {
	for _, topic := range []string{TopicForumPosts, TopicForumVotes} {
		if !KnownTopic(topic) {
			t.Errorf("KnownTopic(%q) = false, want true", topic)
		}
	}
	for _, topic := range []string{"", "forum", "forum-comments", "forum-posts "} {
		if KnownTopic(topic) {
			t.Errorf("KnownTopic(%q) = true, want false", topic)
		}
	}
}

func TestNoopPublisher(t *testing.T) {
	pub := &NoopPublisher{}
	if err := pub.Publish(context.Background(), TopicForumPosts, []byte(`{}`)); err != nil {
		t.Fatalf("NoopPublisher.Publish returned unexpected error: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("NoopPublisher.Close returned unexpected error: %v", err)
	}
}

func TestNoopPublisher_ImplementsPublisher(t *testing.T) {
	var _ Publisher = (*NoopPublisher)(nil)
}

func TestNATSPublisher_Publish(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	// Subscribe to capture published messages.
	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connecting subscriber: %v", err)
	}
	defer nc.Close()

	ch := make(chan *nats.Msg, 1)
	sub, err := nc.ChanSubscribe(TopicForumPosts, ch)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer sub.Unsubscribe() //nolint:errcheck
	nc.Flush()

	record := []byte(`{"id":"p1","topicId":"t1","userId":"u1","content":"hello","createdAt":"2024-01-01T00:00:00Z"}`)
	if err := pub.Publish(context.Background(), TopicForumPosts, record); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	pub.conn.Flush()

	select {
	case msg := <-ch:
		var got map[string]any
		if err := json.Unmarshal(msg.Data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got["id"] != "p1" {
			t.Errorf("got id=%q, want %q", got["id"], "p1")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published message")
	}
}

func TestNATSPublisher_PublishAfterClose(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}

	if err := pub.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	if err := pub.Publish(context.Background(), TopicForumPosts, []byte(`{}`)); err == nil {
		t.Error("expected error publishing after close")
	}
}

func TestNATSSubscriber_PerTopicOrdering(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	sub, err := NewNATSSubscriber(url)
	if err != nil {
		t.Fatalf("creating subscriber: %v", err)
	}
	defer sub.Close()

	ch, cancel, err := sub.Subscribe(TopicForumPosts)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer cancel()

	const n = 50
	for i := 0; i < n; i++ {
		payload := fmt.Sprintf(`{"seq":%d}`, i)
		if err := pub.Publish(context.Background(), TopicForumPosts, []byte(payload)); err != nil {
			t.Fatalf("publishing %d: %v", i, err)
		}
	}
	pub.conn.Flush()

	for i := 0; i < n; i++ {
		select {
		case msg := <-ch:
			var got struct {
				Seq int `json:"seq"`
			}
			if err := json.Unmarshal(msg, &got); err != nil {
				t.Fatalf("unmarshal message %d: %v", i, err)
			}
			if got.Seq != i {
				t.Fatalf("message %d arrived out of order (seq=%d)", i, got.Seq)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for message %d", i)
		}
	}
}

func TestNATSSubscriber_TopicsAreIndependent(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	sub, err := NewNATSSubscriber(url)
	if err != nil {
		t.Fatalf("creating subscriber: %v", err)
	}
	defer sub.Close()

	posts, cancelPosts, err := sub.Subscribe(TopicForumPosts)
	if err != nil {
		t.Fatalf("subscribing to posts: %v", err)
	}
	defer cancelPosts()

	votes, cancelVotes, err := sub.Subscribe(TopicForumVotes)
	if err != nil {
		t.Fatalf("subscribing to votes: %v", err)
	}
	defer cancelVotes()

	if err := pub.Publish(context.Background(), TopicForumVotes, []byte(`{"targetId":"p1"}`)); err != nil {
		t.Fatalf("publishing: %v", err)
	}
	pub.conn.Flush()

	select {
	case msg := <-votes:
		if string(msg) != `{"targetId":"p1"}` {
			t.Errorf("got %q on votes topic", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for vote message")
	}

	select {
	case msg := <-posts:
		t.Fatalf("post subscription received vote message %q", msg)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestNATSSubscriber_Cancel(t *testing.T) {
	url := startTestNATS(t)

	sub, err := NewNATSSubscriber(url)
	if err != nil {
		t.Fatalf("creating subscriber: %v", err)
	}
	defer sub.Close()

	ch, cancel, err := sub.Subscribe(TopicForumPosts)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}

	cancel()
	cancel() // double cancel must not panic

	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed after cancel")
	}
}

func TestNATSSubscriber_CancelDuringMessages(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	sub, err := NewNATSSubscriber(url)
	if err != nil {
		t.Fatalf("creating subscriber: %v", err)
	}
	defer sub.Close()

	ch, cancel, err := sub.Subscribe(TopicForumPosts)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			_ = pub.conn.Publish(TopicForumPosts, []byte(`{"id":"x"}`))
		}
		pub.conn.Flush()
	}()

	// Cancel while messages are being sent -- must not panic.
	cancel()
	<-done

	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed after cancel")
	}
}

func TestNATSSubscriber_ReconnectHandler(t *testing.T) {
	url := startTestNATS(t)

	reconnected := make(chan struct{}, 1)
	sub, err := NewNATSSubscriber(url,
		nats.ReconnectHandler(func(_ *nats.Conn) {
			select {
			case reconnected <- struct{}{}:
			default:
			}
		}),
	)
	if err != nil {
		t.Fatalf("creating subscriber: %v", err)
	}
	defer sub.Close()

	if !sub.conn.IsConnected() {
		t.Fatal("expected subscriber to be connected")
	}
}
