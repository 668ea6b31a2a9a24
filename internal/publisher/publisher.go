// Package publisher implements the Change Publisher: it translates one
// upstream "document mutated" notification into exactly one bus publish, or
// fails loudly. Each invocation is a stateless unit of work with its own bus
// connection; the upstream trigger system owns retries, so failures are
// returned as a typed Result rather than thrown past the invocation boundary.
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/carenest/relay/internal/docstore"
	"github.com/carenest/relay/internal/events"
	"github.com/carenest/relay/internal/idgen"
	"github.com/carenest/relay/internal/model"
	"github.com/carenest/relay/internal/trigger"
)

// Status is the outcome of one invocation.
type Status string

const (
	// StatusPublished means exactly one record was published to the bus.
	StatusPublished Status = "published"
	// StatusSkipped means the notification was not interesting to this
	// publisher (wrong collection or action). Not an error.
	StatusSkipped Status = "skipped"
	// StatusFailed means this invocation failed; the upstream trigger system
	// is expected to retry the whole invocation.
	StatusFailed Status = "failed"
)

// Result is the structured outcome returned to the invoking trigger system.
type Result struct {
	InvocationID string `json:"invocationId"`
	Status       Status `json:"status"`
	Topic        string `json:"topic,omitempty"`
	DocumentID   string `json:"documentId,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

// Store is the slice of the document store the publisher needs: a point read
// of a post, a point read of a vote, and a vote listing for aggregation.
type Store interface {
	GetPost(ctx context.Context, id string) (*model.ForumPost, error)
	GetVote(ctx context.Context, id string) (*docstore.Vote, error)
	ListVotes(ctx context.Context, targetID string, targetType model.TargetType) ([]docstore.Vote, error)
}

// Gateway sends one topic-prefixed frame to the bus gateway over a fresh
// connection and closes it. Connections are never pooled across invocations.
type Gateway interface {
	Send(ctx context.Context, topic string, payload []byte) error
}

// Publisher processes upstream trigger invocations.
type Publisher struct {
	store           Store
	gateway         Gateway
	postsCollection string
	votesCollection string
	logger          *slog.Logger
}

// New returns a Publisher routing mutations of the two configured collections
// to their relay topics.
func New(store Store, gateway Gateway, postsCollection, votesCollection string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		store:           store,
		gateway:         gateway,
		postsCollection: postsCollection,
		votesCollection: votesCollection,
		logger:          logger,
	}
}

// Process handles one invocation end to end: classify, resolve the record,
// publish, report. It never panics across the invocation boundary.
func (p *Publisher) Process(ctx context.Context, inv trigger.Invocation) Result {
	id, err := idgen.GenerateWithPrefix("inv-")
	if err != nil {
		id = "inv-unknown"
	}
	res := Result{InvocationID: id}

	ev, err := trigger.Parse(inv.EventType)
	if err != nil {
		res.Status = StatusFailed
		res.Reason = fmt.Sprintf("classify: %v", err)
		p.logger.Error("invocation rejected", "invocation_id", id, "err", err)
		return res
	}
	res.DocumentID = ev.DocumentID

	switch ev.CollectionID {
	case p.postsCollection:
		return p.processPost(ctx, inv, ev, res)
	case p.votesCollection:
		return p.processVote(ctx, inv, ev, res)
	default:
		res.Status = StatusSkipped
		res.Reason = fmt.Sprintf("collection %q is not relayed", ev.CollectionID)
		return res
	}
}

// processPost publishes newly created posts. Updates and deletes are not
// interesting to this publisher and short-circuit with a success no-op.
func (p *Publisher) processPost(ctx context.Context, inv trigger.Invocation, ev *trigger.Event, res Result) Result {
	if ev.Action != trigger.ActionCreate {
		res.Status = StatusSkipped
		res.Reason = fmt.Sprintf("post action %q is not relayed", ev.Action)
		return res
	}

	post, err := p.resolvePost(ctx, inv.Payload, ev.DocumentID)
	if err != nil {
		res.Status = StatusFailed
		res.Reason = fmt.Sprintf("resolve post: %v", err)
		p.logger.Error("post resolution failed", "invocation_id", res.InvocationID, "document_id", ev.DocumentID, "err", err)
		return res
	}

	payload, err := json.Marshal(post)
	if err != nil {
		res.Status = StatusFailed
		res.Reason = fmt.Sprintf("serialize post: %v", err)
		return res
	}
	return p.send(ctx, events.TopicForumPosts, payload, res)
}

// processVote recomputes the aggregate for the vote's target from the latest
// store state and republishes it regardless of the mutation action.
func (p *Publisher) processVote(ctx context.Context, inv trigger.Invocation, ev *trigger.Event, res Result) Result {
	targetID, targetType, err := p.resolveVoteTarget(ctx, inv.Payload, ev)
	if err != nil {
		res.Status = StatusFailed
		res.Reason = fmt.Sprintf("resolve vote target: %v", err)
		p.logger.Error("vote target resolution failed", "invocation_id", res.InvocationID, "document_id", ev.DocumentID, "err", err)
		return res
	}

	votes, err := p.store.ListVotes(ctx, targetID, targetType)
	if err != nil {
		res.Status = StatusFailed
		res.Reason = fmt.Sprintf("list votes: %v", err)
		return res
	}

	update := model.VoteUpdate{
		TargetID:   targetID,
		TargetType: targetType,
		VoteCounts: Aggregate(votes),
	}
	if err := update.Validate(); err != nil {
		res.Status = StatusFailed
		res.Reason = err.Error()
		return res
	}

	payload, err := json.Marshal(update)
	if err != nil {
		res.Status = StatusFailed
		res.Reason = fmt.Sprintf("serialize vote update: %v", err)
		return res
	}
	res.DocumentID = targetID
	return p.send(ctx, events.TopicForumVotes, payload, res)
}

// resolvePost obtains a complete post record: the inline payload if it
// validates, otherwise a point read. A record that fails validation both
// ways is a fatal error for this invocation; partial records never publish.
func (p *Publisher) resolvePost(ctx context.Context, inline string, docID string) (*model.ForumPost, error) {
	var inlineErr error
	if strings.TrimSpace(inline) != "" {
		var post model.ForumPost
		if err := json.Unmarshal([]byte(inline), &post); err != nil {
			inlineErr = fmt.Errorf("inline payload: %w", err)
		} else if err := post.Validate(); err != nil {
			inlineErr = fmt.Errorf("inline payload: %w", err)
		} else {
			return &post, nil
		}
		p.logger.Warn("inline payload unusable, falling back to point read", "document_id", docID, "err", inlineErr)
	}

	post, err := p.store.GetPost(ctx, docID)
	if err != nil {
		if inlineErr != nil {
			return nil, fmt.Errorf("%v; point read: %w", inlineErr, err)
		}
		return nil, fmt.Errorf("point read: %w", err)
	}
	if err := post.Validate(); err != nil {
		return nil, fmt.Errorf("point read: %w", err)
	}
	return post, nil
}

// resolveVoteTarget extracts the vote's target from the inline payload or a
// point read of the vote document. Deletes commonly arrive without a readable
// document, so the inline payload is the only source in that case.
func (p *Publisher) resolveVoteTarget(ctx context.Context, inline string, ev *trigger.Event) (string, model.TargetType, error) {
	if strings.TrimSpace(inline) != "" {
		var vote docstore.Vote
		if err := json.Unmarshal([]byte(inline), &vote); err == nil &&
			vote.TargetID != "" && (vote.TargetType == model.TargetTopic || vote.TargetType == model.TargetPost) {
			return vote.TargetID, vote.TargetType, nil
		}
		p.logger.Warn("inline vote payload unusable, falling back to point read", "document_id", ev.DocumentID)
	}

	vote, err := p.store.GetVote(ctx, ev.DocumentID)
	if err != nil {
		return "", "", fmt.Errorf("point read: %w", err)
	}
	if vote.TargetID == "" || (vote.TargetType != model.TargetTopic && vote.TargetType != model.TargetPost) {
		return "", "", &model.ValidationError{DocumentID: ev.DocumentID, Missing: []string{"targetId", "targetType"}}
	}
	return vote.TargetID, vote.TargetType, nil
}

// send publishes one frame and classifies the failure mode for the caller.
func (p *Publisher) send(ctx context.Context, topic string, payload []byte, res Result) Result {
	if err := p.gateway.Send(ctx, topic, payload); err != nil {
		res.Status = StatusFailed
		res.Topic = topic
		res.Reason = fmt.Sprintf("publish: %v", err)
		p.logger.Error("publish failed", "invocation_id", res.InvocationID, "topic", topic, "err", err)
		return res
	}
	res.Status = StatusPublished
	res.Topic = topic
	p.logger.Info("record published", "invocation_id", res.InvocationID, "topic", topic, "document_id", res.DocumentID)
	return res
}

// Aggregate tallies vote documents into counts. Unknown vote types are
// ignored rather than failing the whole aggregation.
func Aggregate(votes []docstore.Vote) model.VoteCounts {
	var c model.VoteCounts
	for _, v := range votes {
		switch v.VoteType {
		case "up":
			c.Upvotes++
		case "down":
			c.Downvotes++
		}
	}
	c.Score = c.Upvotes - c.Downvotes
	return c
}

// IsValidation reports whether err (anywhere in its chain) is a record
// validation failure, distinguishing it from transient network errors.
func IsValidation(err error) bool {
	var ve *model.ValidationError
	return errors.As(err, &ve)
}
