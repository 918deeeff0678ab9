// ABOUTME: Record Gateway wrapping the store with rate limiting and retry
// ABOUTME: All pipeline and chat code reads/writes records through this layer

package records

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/2389/beacon/internal/retry"
	"github.com/2389/beacon/internal/store"
)

// Defaults sized for an Airtable-class record API: 5 requests/second with a
// small burst, 10s per call.
const (
	defaultRate    = 5
	defaultBurst   = 5
	defaultTimeout = 10 * time.Second
)

// Gateway is the typed accessor over the record store. It serializes access
// through a rate limiter and retries transient failures with the shared
// retry policy.
type Gateway struct {
	store   store.Store
	limiter *rate.Limiter
	policy  retry.Policy
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithRateLimit overrides the request budget (per second, burst).
func WithRateLimit(perSecond float64, burst int) Option {
	return func(g *Gateway) {
		g.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) { g.timeout = d }
}

// WithPolicy overrides the retry policy.
func WithPolicy(p retry.Policy) Option {
	return func(g *Gateway) { g.policy = p }
}

// New creates a Gateway over the given store.
func New(s store.Store, opts ...Option) *Gateway {
	g := &Gateway{
		store:   s,
		limiter: rate.NewLimiter(rate.Limit(defaultRate), defaultBurst),
		policy:  retry.DefaultPolicy,
		timeout: defaultTimeout,
		logger:  slog.Default().With("component", "records"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// call runs op under the rate limiter, per-call timeout, and retry budget.
// store.ErrNotFound and store.ErrStaleState pass through unretried: they are
// answers, not failures.
func (g *Gateway) call(ctx context.Context, name string, op func(ctx context.Context) error) error {
	return retry.Do(ctx, g.policy, func(ctx context.Context) error {
		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}

		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		err := op(callCtx)
		if err == nil {
			return nil
		}
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrStaleState) {
			return retry.NotEligible(err)
		}
		g.logger.Warn("record store call failed", "op", name, "error", err)
		return retry.Transient(fmt.Errorf("%s: %w", name, err))
	})
}

// GetClient returns a client by id.
func (g *Gateway) GetClient(ctx context.Context, id string) (*store.Client, error) {
	var client *store.Client
	err := g.call(ctx, "get_client", func(ctx context.Context) error {
		var err error
		client, err = g.store.GetClient(ctx, id)
		return err
	})
	return client, err
}

// GetClientByPhone returns a client by channel handle.
func (g *Gateway) GetClientByPhone(ctx context.Context, phone string) (*store.Client, error) {
	var client *store.Client
	err := g.call(ctx, "get_client_by_phone", func(ctx context.Context) error {
		var err error
		client, err = g.store.GetClientByPhone(ctx, phone)
		return err
	})
	return client, err
}

// ListActiveClients returns all active clients.
func (g *Gateway) ListActiveClients(ctx context.Context) ([]*store.Client, error) {
	var clients []*store.Client
	err := g.call(ctx, "list_active_clients", func(ctx context.Context) error {
		var err error
		clients, err = g.store.ListActiveClients(ctx)
		return err
	})
	return clients, err
}

// CreateIdea persists a new idea.
func (g *Gateway) CreateIdea(ctx context.Context, idea *store.Idea) error {
	return g.call(ctx, "create_idea", func(ctx context.Context) error {
		return g.store.CreateIdea(ctx, idea)
	})
}

// GetIdea returns an idea by id.
func (g *Gateway) GetIdea(ctx context.Context, id string) (*store.Idea, error) {
	var idea *store.Idea
	err := g.call(ctx, "get_idea", func(ctx context.Context) error {
		var err error
		idea, err = g.store.GetIdea(ctx, id)
		return err
	})
	return idea, err
}

// ListIdeasByState returns the client's ideas in a state, oldest first.
func (g *Gateway) ListIdeasByState(ctx context.Context, clientID, state string, limit int) ([]*store.Idea, error) {
	var ideas []*store.Idea
	err := g.call(ctx, "list_ideas", func(ctx context.Context) error {
		var err error
		ideas, err = g.store.ListIdeasByState(ctx, clientID, state, limit)
		return err
	})
	return ideas, err
}

// TransitionIdea moves an idea between states. Returns store.ErrStaleState
// when a concurrent run already claimed the idea.
func (g *Gateway) TransitionIdea(ctx context.Context, id, from, to string) error {
	return g.call(ctx, "transition_idea", func(ctx context.Context) error {
		return g.store.TransitionIdea(ctx, id, from, to)
	})
}

// CreatePost persists a new post.
func (g *Gateway) CreatePost(ctx context.Context, post *store.Post) error {
	return g.call(ctx, "create_post", func(ctx context.Context) error {
		return g.store.CreatePost(ctx, post)
	})
}

// GetPost returns a post by id.
func (g *Gateway) GetPost(ctx context.Context, id string) (*store.Post, error) {
	var post *store.Post
	err := g.call(ctx, "get_post", func(ctx context.Context) error {
		var err error
		post, err = g.store.GetPost(ctx, id)
		return err
	})
	return post, err
}

// ListPostsByState returns the client's posts in a state, oldest first.
func (g *Gateway) ListPostsByState(ctx context.Context, clientID, state string, limit int) ([]*store.Post, error) {
	var posts []*store.Post
	err := g.call(ctx, "list_posts", func(ctx context.Context) error {
		var err error
		posts, err = g.store.ListPostsByState(ctx, clientID, state, limit)
		return err
	})
	return posts, err
}

// TransitionPost moves a post between states. Returns store.ErrStaleState
// when a concurrent run already claimed the post.
func (g *Gateway) TransitionPost(ctx context.Context, id, from, to string, update *store.PostUpdate) error {
	return g.call(ctx, "transition_post", func(ctx context.Context) error {
		return g.store.TransitionPost(ctx, id, from, to, update)
	})
}

// UpdatePostContent rewrites a post's body fields.
func (g *Gateway) UpdatePostContent(ctx context.Context, id string, update *store.ContentUpdate) error {
	return g.call(ctx, "update_post_content", func(ctx context.Context) error {
		return g.store.UpdatePostContent(ctx, id, update)
	})
}

// CreateRun persists a new run record.
func (g *Gateway) CreateRun(ctx context.Context, run *store.Run) error {
	return g.call(ctx, "create_run", func(ctx context.Context) error {
		return g.store.CreateRun(ctx, run)
	})
}

// GetRun returns a run by id.
func (g *Gateway) GetRun(ctx context.Context, id string) (*store.Run, error) {
	var run *store.Run
	err := g.call(ctx, "get_run", func(ctx context.Context) error {
		var err error
		run, err = g.store.GetRun(ctx, id)
		return err
	})
	return run, err
}

// UpdateRunStatus advances a run's status.
func (g *Gateway) UpdateRunStatus(ctx context.Context, id, status, outcomes, errText string) error {
	return g.call(ctx, "update_run_status", func(ctx context.Context) error {
		return g.store.UpdateRunStatus(ctx, id, status, outcomes, errText)
	})
}
