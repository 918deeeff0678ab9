// ABOUTME: Pipeline engine running the curate, draft, and publish stages
// ABOUTME: Each stage is idempotent per item via conditional state transitions

package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/beacon/internal/genai"
	"github.com/2389/beacon/internal/publish"
	"github.com/2389/beacon/internal/records"
	"github.com/2389/beacon/internal/retry"
	"github.com/2389/beacon/internal/store"
)

// Stage names
const (
	StageCurate  = "curate"
	StageDraft   = "draft"
	StagePublish = "publish"
)

// ErrClientInactive is returned before any stage side effect when the target
// client is not active.
var ErrClientInactive = errors.New("client is not active")

// ErrPostNotModifiable is returned when a revision targets a post that has
// already been decided or delivered.
var ErrPostNotModifiable = errors.New("post can no longer be modified")

// StageResult reports the outcome of one stage for one client.
type StageResult struct {
	Stage      string `json:"stage"`
	Affected   int    `json:"affected"`
	Err        error  `json:"-"`
	Diagnostic string `json:"diagnostic,omitempty"`
}

// Outcomes encodes stage results as JSON for persistence on a run record.
func Outcomes(results []StageResult) string {
	type outcome struct {
		Stage      string `json:"stage"`
		Affected   int    `json:"affected"`
		Error      string `json:"error,omitempty"`
		Diagnostic string `json:"diagnostic,omitempty"`
	}
	out := make([]outcome, 0, len(results))
	for _, r := range results {
		o := outcome{Stage: r.Stage, Affected: r.Affected, Diagnostic: r.Diagnostic}
		if r.Err != nil {
			o.Error = r.Err.Error()
		}
		out = append(out, o)
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// CredentialSource resolves publishing credentials for a client.
type CredentialSource interface {
	For(clientID string) publish.Credentials
}

// StaticCredentials serves one fixed credential set to every client.
type StaticCredentials struct {
	Credentials publish.Credentials
}

func (s StaticCredentials) For(string) publish.Credentials { return s.Credentials }

// Engine runs pipeline stages against the record store. It is safe for
// concurrent use; overlapping runs against the same client resolve through
// conditional transitions, never double-processing an item.
type Engine struct {
	records    *records.Gateway
	gen        genai.Generator
	publishers *publish.Registry
	creds      CredentialSource
	policy     retry.Policy
	logger     *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithRetryPolicy overrides the delivery retry policy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(e *Engine) { e.policy = p }
}

// New creates a pipeline engine.
func New(rec *records.Gateway, gen genai.Generator, pubs *publish.Registry, creds CredentialSource, opts ...Option) *Engine {
	e := &Engine{
		records:    rec,
		gen:        gen,
		publishers: pubs,
		creds:      creds,
		policy:     retry.DefaultPolicy,
		logger:     slog.Default().With("component", "pipeline"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// activeClient loads the client and enforces the active gate shared by all
// stages.
func (e *Engine) activeClient(ctx context.Context, clientID string) (*store.Client, error) {
	client, err := e.records.GetClient(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("loading client: %w", err)
	}
	if !client.Active() {
		return nil, fmt.Errorf("%w: %s", ErrClientInactive, clientID)
	}
	return client, nil
}

// Curate generates up to n fresh ideas for the client and persists them.
// A partial batch from the generator is a success with a smaller count.
func (e *Engine) Curate(ctx context.Context, clientID string, n int) StageResult {
	res := StageResult{Stage: StageCurate}

	client, err := e.activeClient(ctx, clientID)
	if err != nil {
		res.Err = err
		return res
	}

	drafts, err := e.gen.CurateIdeas(ctx, client, n)
	if err != nil {
		res.Err = fmt.Errorf("curating ideas: %w", err)
		res.Diagnostic = err.Error()
		return res
	}

	for _, d := range drafts {
		idea := &store.Idea{
			ID:        uuid.NewString(),
			ClientID:  client.ID,
			Headline:  d.Headline,
			Summary:   d.Summary,
			Origin:    store.OriginCurated,
			State:     store.IdeaNew,
			Priority:  "medium",
			CreatedAt: time.Now().UTC(),
		}
		if err := e.records.CreateIdea(ctx, idea); err != nil {
			res.Err = fmt.Errorf("saving idea: %w", err)
			res.Diagnostic = err.Error()
			return res
		}
		res.Affected++
	}

	e.logger.Info("curated ideas", "client_id", client.ID, "count", res.Affected)
	return res
}

// Draft turns up to n of the client's oldest new ideas into posts. Each idea
// is claimed via a conditional transition before its post is written, so a
// concurrent run drafting the same client skips rather than duplicates.
func (e *Engine) Draft(ctx context.Context, clientID string, n int) StageResult {
	res := StageResult{Stage: StageDraft}

	client, err := e.activeClient(ctx, clientID)
	if err != nil {
		res.Err = err
		return res
	}

	ideas, err := e.records.ListIdeasByState(ctx, clientID, store.IdeaNew, n)
	if err != nil {
		res.Err = fmt.Errorf("listing ideas: %w", err)
		return res
	}

	for _, idea := range ideas {
		if err := e.records.TransitionIdea(ctx, idea.ID, store.IdeaNew, store.IdeaDrafted); err != nil {
			if errors.Is(err, store.ErrStaleState) {
				e.logger.Debug("idea claimed elsewhere", "idea_id", idea.ID)
				continue
			}
			res.Err = fmt.Errorf("claiming idea: %w", err)
			return res
		}

		channel := idea.Channel
		if channel == "" {
			channel = e.channelFor(client)
		}
		draft, err := e.gen.DraftPost(ctx, client, idea, channel)
		if err != nil {
			// The idea stays drafted; the failure is reported, not hidden.
			res.Err = fmt.Errorf("drafting post for idea %s: %w", idea.ID, err)
			res.Diagnostic = err.Error()
			return res
		}

		state := store.PostPending
		if client.ApprovalMode == store.ApprovalAuto {
			state = store.PostApproved
		}
		now := time.Now().UTC()
		post := &store.Post{
			ID:        uuid.NewString(),
			ClientID:  client.ID,
			IdeaID:    idea.ID,
			Caption:   draft.Caption,
			Hashtags:  draft.Hashtags,
			CTA:       draft.CTA,
			Channel:   channel,
			ImageURL:  idea.ImageURL,
			State:     state,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := e.records.CreatePost(ctx, post); err != nil {
			res.Err = fmt.Errorf("saving post: %w", err)
			return res
		}
		res.Affected++
	}

	e.logger.Info("drafted posts", "client_id", client.ID, "count", res.Affected)
	return res
}

// Publish delivers every approved post for the client. Transient delivery
// failures are retried within the stage; a post that still fails moves to
// the failed state with a diagnostic and the stage carries on with the rest.
func (e *Engine) Publish(ctx context.Context, clientID string) StageResult {
	res := StageResult{Stage: StagePublish}

	client, err := e.activeClient(ctx, clientID)
	if err != nil {
		res.Err = err
		return res
	}

	posts, err := e.records.ListPostsByState(ctx, clientID, store.PostApproved, 0)
	if err != nil {
		res.Err = fmt.Errorf("listing approved posts: %w", err)
		return res
	}

	creds := e.creds.For(client.ID)
	var failed int
	for _, post := range posts {
		platformID, err := e.deliver(ctx, post, creds)
		if err != nil {
			failed++
			e.logger.Warn("publish failed", "post_id", post.ID, "channel", post.Channel, "error", err)
			update := &store.PostUpdate{Diagnostic: err.Error()}
			if terr := e.records.TransitionPost(ctx, post.ID, store.PostApproved, store.PostFailed, update); terr != nil && !errors.Is(terr, store.ErrStaleState) {
				res.Err = fmt.Errorf("recording publish failure: %w", terr)
				return res
			}
			continue
		}

		update := &store.PostUpdate{PlatformPostID: platformID}
		if terr := e.records.TransitionPost(ctx, post.ID, store.PostApproved, store.PostPublished, update); terr != nil {
			if errors.Is(terr, store.ErrStaleState) {
				// Claimed by a concurrent publisher after we delivered.
				// The remote post exists; nothing else to do here.
				e.logger.Warn("post left approved state mid-publish", "post_id", post.ID)
				continue
			}
			res.Err = fmt.Errorf("recording publish success: %w", terr)
			return res
		}
		res.Affected++
		e.logger.Info("published post", "post_id", post.ID, "channel", post.Channel, "platform_post_id", platformID)
	}

	if failed > 0 && res.Affected == 0 && len(posts) > 0 {
		res.Diagnostic = fmt.Sprintf("all %d posts failed to publish", failed)
	}
	return res
}

// deliver runs one post through its channel adapter under the retry policy.
func (e *Engine) deliver(ctx context.Context, post *store.Post, creds publish.Credentials) (string, error) {
	publisher, err := e.publishers.For(post.Channel)
	if err != nil {
		return "", err
	}
	var platformID string
	err = retry.Do(ctx, e.policy, func(ctx context.Context) error {
		id, perr := publisher.Publish(ctx, post, creds)
		if perr != nil {
			return perr
		}
		platformID = id
		return nil
	})
	return platformID, err
}

// SubmitIdea records a client-submitted idea. The draft stage consumes the
// backlog in arrival order regardless of priority; the high priority only
// flags the idea for anyone reviewing the backlog.
func (e *Engine) SubmitIdea(ctx context.Context, clientID, text, imageURL, channel string) (*store.Idea, error) {
	client, err := e.activeClient(ctx, clientID)
	if err != nil {
		return nil, err
	}

	idea := &store.Idea{
		ID:        uuid.NewString(),
		ClientID:  client.ID,
		Headline:  headline(text),
		Summary:   text,
		ImageURL:  imageURL,
		Channel:   channel,
		Origin:    store.OriginClientSubmitted,
		State:     store.IdeaNew,
		Priority:  "high",
		CreatedAt: time.Now().UTC(),
	}
	if err := e.records.CreateIdea(ctx, idea); err != nil {
		return nil, fmt.Errorf("saving idea: %w", err)
	}
	e.logger.Info("idea submitted", "client_id", client.ID, "idea_id", idea.ID)
	return idea, nil
}

// ModifyPost rewrites a post's body per free-form instructions, through the
// generation service. Only posts still awaiting a decision can change.
func (e *Engine) ModifyPost(ctx context.Context, postID, instructions string) (*store.Post, error) {
	post, err := e.records.GetPost(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("loading post: %w", err)
	}
	if post.State != store.PostPending {
		return nil, fmt.Errorf("%w: post is %s", ErrPostNotModifiable, post.State)
	}

	client, err := e.activeClient(ctx, post.ClientID)
	if err != nil {
		return nil, err
	}

	draft, err := e.gen.RevisePost(ctx, client, post, instructions)
	if err != nil {
		return nil, fmt.Errorf("revising post: %w", err)
	}

	update := &store.ContentUpdate{Caption: &draft.Caption, Hashtags: &draft.Hashtags, CTA: &draft.CTA}
	if err := e.records.UpdatePostContent(ctx, postID, update); err != nil {
		return nil, fmt.Errorf("saving revision: %w", err)
	}
	e.logger.Info("post revised", "post_id", postID)
	return e.records.GetPost(ctx, postID)
}

// FullWorkflow runs curate, draft, and publish in order. A failed stage
// short-circuits the rest; results for completed stages are kept as is.
func (e *Engine) FullWorkflow(ctx context.Context, clientID string, numIdeas, numPosts int) []StageResult {
	var results []StageResult

	curate := e.Curate(ctx, clientID, numIdeas)
	results = append(results, curate)
	if curate.Err != nil {
		return results
	}

	draft := e.Draft(ctx, clientID, numPosts)
	results = append(results, draft)
	if draft.Err != nil {
		return results
	}

	results = append(results, e.Publish(ctx, clientID))
	return results
}

// channelFor picks the drafting channel for a client.
func (e *Engine) channelFor(client *store.Client) string {
	if len(client.Channels) > 0 {
		return client.Channels[0]
	}
	return publish.ChannelFacebook
}

// headline derives a short title from free-form idea text.
func headline(text string) string {
	const max = 80
	line := text
	if i := strings.IndexAny(line, "\n."); i > 0 {
		line = line[:i]
	}
	if len(line) > max {
		line = line[:max]
	}
	return line
}
