// ABOUTME: Tests for the conversation service
// ABOUTME: Walks the approval, revision, and guided idea intake flows end to end

package chat

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/beacon/internal/genai"
	"github.com/2389/beacon/internal/messenger"
	"github.com/2389/beacon/internal/pipeline"
	"github.com/2389/beacon/internal/publish"
	"github.com/2389/beacon/internal/records"
	"github.com/2389/beacon/internal/retry"
	"github.com/2389/beacon/internal/scheduler"
	"github.com/2389/beacon/internal/session"
	"github.com/2389/beacon/internal/store"
)

const testPhone = "+15551230001"

var fastPolicy = retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

type stubGenerator struct {
	mu         sync.Mutex
	draftFails bool
}

func (s *stubGenerator) CurateIdeas(ctx context.Context, client *store.Client, count int) ([]genai.IdeaDraft, error) {
	return []genai.IdeaDraft{{Headline: "Autumn menu", Summary: "Tease the autumn menu"}}, nil
}

func (s *stubGenerator) DraftPost(ctx context.Context, client *store.Client, idea *store.Idea, channel string) (*genai.PostDraft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draftFails {
		return nil, genai.ErrGenerationUnavailable
	}
	return &genai.PostDraft{Caption: "Drafted from: " + idea.Headline, Hashtags: "#new"}, nil
}

func (s *stubGenerator) RevisePost(ctx context.Context, client *store.Client, post *store.Post, instructions string) (*genai.PostDraft, error) {
	return &genai.PostDraft{Caption: post.Caption + " + " + instructions, Hashtags: post.Hashtags, CTA: post.CTA}, nil
}

type okPublisher struct{}

func (okPublisher) Publish(ctx context.Context, post *store.Post, creds publish.Credentials) (string, error) {
	return "remote-" + post.ID, nil
}

type env struct {
	mock     *store.MockStore
	gen      *stubGenerator
	outbound *messenger.Mock
	svc      *Service
}

func newEnv(t *testing.T) *env {
	t.Helper()

	mock := store.NewMockStore()
	gen := &stubGenerator{}
	registry := publish.NewRegistry()
	registry.Register(publish.ChannelFacebook, okPublisher{})

	rec := records.New(mock, records.WithPolicy(fastPolicy), records.WithRateLimit(1000, 1000))
	engine := pipeline.New(rec, gen, registry, pipeline.StaticCredentials{}, pipeline.WithRetryPolicy(fastPolicy))
	sched := scheduler.New(engine, rec)
	t.Cleanup(sched.Close)

	sessions := session.NewCache(time.Minute, 64)
	t.Cleanup(sessions.Close)

	outbound := messenger.NewMock()
	svc := New(rec, engine, sessions, sched, outbound)
	return &env{mock: mock, gen: gen, outbound: outbound, svc: svc}
}

func (e *env) seedClient(t *testing.T) {
	t.Helper()
	require.NoError(t, e.mock.UpsertClient(context.Background(), &store.Client{
		ID:           "client-1",
		Name:         "Corner Bakery",
		Phone:        testPhone,
		Status:       store.ClientActive,
		Channels:     []string{"facebook"},
		ApprovalMode: store.ApprovalManager,
		CreatedAt:    time.Now().UTC(),
	}))
}

func (e *env) seedPendingPost(t *testing.T, id, caption string) {
	t.Helper()
	require.NoError(t, e.mock.CreatePost(context.Background(), &store.Post{
		ID:        id,
		ClientID:  "client-1",
		Caption:   caption,
		Hashtags:  "#bakery",
		Channel:   "facebook",
		State:     store.PostPending,
		CreatedAt: time.Now().UTC(),
	}))
	time.Sleep(time.Millisecond) // keep CreatedAt ordering stable
}

func (e *env) say(t *testing.T, text string) string {
	t.Helper()
	return e.svc.HandleMessage(context.Background(), testPhone, text, "")
}

func TestHandleMessageUnknownContact(t *testing.T) {
	env := newEnv(t)

	reply := env.say(t, "hi")
	assert.Contains(t, reply, "isn't set up")
}

func TestHandleMessageInactiveClient(t *testing.T) {
	env := newEnv(t)
	require.NoError(t, env.mock.UpsertClient(context.Background(), &store.Client{
		ID: "client-1", Name: "Corner Bakery", Phone: testPhone,
		Status: store.ClientInactive, CreatedAt: time.Now().UTC(),
	}))

	reply := env.say(t, "hi")
	assert.Contains(t, reply, "paused")
}

func TestHandleMessageGreeting(t *testing.T) {
	env := newEnv(t)
	env.seedClient(t)

	reply := env.say(t, "hello")
	assert.Contains(t, reply, "Corner Bakery")
	assert.Contains(t, reply, "pending")
}

func TestApprovalFlow(t *testing.T) {
	env := newEnv(t)
	env.seedClient(t)
	env.seedPendingPost(t, "post-1", "Fresh sourdough every morning")
	env.seedPendingPost(t, "post-2", "Meet our head baker")

	// List, pick, approve.
	reply := env.say(t, "pending")
	assert.Contains(t, reply, "1. [facebook] Fresh sourdough every morning")
	assert.Contains(t, reply, "2. [facebook] Meet our head baker")

	reply = env.say(t, "2")
	assert.Contains(t, reply, "Meet our head baker")
	assert.Contains(t, reply, "approve")

	reply = env.say(t, "approve")
	assert.Contains(t, reply, "Approved")

	// The post publishes in the background and the contact hears about it.
	require.Eventually(t, func() bool {
		post, err := env.mock.GetPost(context.Background(), "post-2")
		return err == nil && post.State == store.PostPublished
	}, 5*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return len(env.outbound.Sent()) == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Contains(t, env.outbound.Sent()[0].Body, "live")
}

func TestRejectFlow(t *testing.T) {
	env := newEnv(t)
	env.seedClient(t)
	env.seedPendingPost(t, "post-1", "Fresh sourdough every morning")

	env.say(t, "pending")
	env.say(t, "1")
	reply := env.say(t, "reject")
	assert.Contains(t, reply, "Rejected")

	post, err := env.mock.GetPost(context.Background(), "post-1")
	require.NoError(t, err)
	assert.Equal(t, store.PostRejected, post.State)
}

func TestApproveAlreadyHandled(t *testing.T) {
	env := newEnv(t)
	env.seedClient(t)
	env.seedPendingPost(t, "post-1", "Fresh sourdough every morning")

	env.say(t, "pending")
	env.say(t, "1")

	// Someone else decides the post before the approval lands.
	require.NoError(t, env.mock.TransitionPost(context.Background(), "post-1", store.PostPending, store.PostRejected, nil))

	reply := env.say(t, "approve")
	assert.Contains(t, reply, "already handled")
}

func TestModifyFlow(t *testing.T) {
	env := newEnv(t)
	env.seedClient(t)
	env.seedPendingPost(t, "post-1", "Fresh sourdough every morning")

	env.say(t, "pending")
	env.say(t, "1")
	reply := env.say(t, "change it to mention gluten free options")
	assert.Contains(t, reply, "new version")
	assert.Contains(t, reply, "Fresh sourdough every morning + it to mention gluten free options")

	// The revised post can still be approved in the same conversation.
	reply = env.say(t, "approve")
	assert.Contains(t, reply, "Approved")
}

func TestGuidedIdeaIntake(t *testing.T) {
	env := newEnv(t)
	env.seedClient(t)

	reply := env.say(t, "i have an idea")
	assert.Contains(t, reply, "tell me your idea")

	reply = env.say(t, "We're hosting a bread baking class next month")
	assert.Contains(t, reply, "image")

	reply = env.say(t, "https://images.example.com/class.jpg")
	assert.Contains(t, reply, "Idea saved")

	// The idea lands with image and high priority.
	ideas, err := env.mock.ListIdeasByState(context.Background(), "client-1", store.IdeaNew, 0)
	require.NoError(t, err)
	if len(ideas) == 0 {
		// Drafting may have already claimed it.
		ideas, err = env.mock.ListIdeasByState(context.Background(), "client-1", store.IdeaDrafted, 0)
		require.NoError(t, err)
	}
	require.Len(t, ideas, 1)
	assert.Equal(t, store.OriginClientSubmitted, ideas[0].Origin)
	assert.Equal(t, "https://images.example.com/class.jpg", ideas[0].ImageURL)

	// The async draft completes and the contact gets a follow-up push.
	require.Eventually(t, func() bool {
		posts, err := env.mock.ListPostsByState(context.Background(), "client-1", store.PostPending, 0)
		return err == nil && len(posts) == 1
	}, 5*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return len(env.outbound.Sent()) == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Contains(t, env.outbound.Sent()[0].Body, "draft is ready")
}

func TestIdeaIntakeSkipImage(t *testing.T) {
	env := newEnv(t)
	env.seedClient(t)

	env.say(t, "i have an idea")
	env.say(t, "Weekend loyalty card double stamps")
	reply := env.say(t, "skip")
	assert.Contains(t, reply, "Idea saved")

	require.Eventually(t, func() bool {
		ideas, err := env.mock.ListIdeasByState(context.Background(), "client-1", store.IdeaDrafted, 0)
		return err == nil && len(ideas) == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestIdeaIntakeDraftFailureStillKeepsIdea(t *testing.T) {
	env := newEnv(t)
	env.seedClient(t)
	env.gen.draftFails = true

	env.say(t, "idea: post about our new espresso machine")
	reply := env.say(t, "skip")
	assert.Contains(t, reply, "Idea saved")

	require.Eventually(t, func() bool {
		sent := env.outbound.Sent()
		return len(sent) == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Contains(t, env.outbound.Sent()[0].Body, "couldn't draft")
}

func TestFreeTextBecomesIdea(t *testing.T) {
	env := newEnv(t)
	env.seedClient(t)

	reply := env.say(t, "We just got a new espresso machine, customers love it")
	assert.Contains(t, reply, "image")

	env.say(t, "skip")

	require.Eventually(t, func() bool {
		ideas, err := env.mock.ListIdeasByState(context.Background(), "client-1", store.IdeaDrafted, 0)
		return err == nil && len(ideas) == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestAttachedImageCompletesIntake(t *testing.T) {
	env := newEnv(t)
	env.seedClient(t)

	env.say(t, "i have an idea")
	env.say(t, "Latte art throwdown this Friday")

	reply := env.svc.HandleMessage(context.Background(), testPhone, "", "https://images.example.com/latte.jpg")
	assert.Contains(t, reply, "Idea saved")
}

func TestListAllEmpty(t *testing.T) {
	env := newEnv(t)
	env.seedClient(t)

	reply := env.say(t, "all")
	assert.Contains(t, reply, "Nothing in the works")
}

func TestListAllGroupsByState(t *testing.T) {
	env := newEnv(t)
	env.seedClient(t)
	env.seedPendingPost(t, "post-1", "Fresh sourdough every morning")
	require.NoError(t, env.mock.CreatePost(context.Background(), &store.Post{
		ID: "post-2", ClientID: "client-1", Caption: "Meet our head baker",
		Channel: "facebook", State: store.PostPublished, CreatedAt: time.Now().UTC(),
	}))

	reply := env.say(t, "all")
	assert.Contains(t, reply, "Pending (1)")
	assert.Contains(t, reply, "Published (1)")
}

func TestShowIdeas(t *testing.T) {
	env := newEnv(t)
	env.seedClient(t)
	require.NoError(t, env.mock.CreateIdea(context.Background(), &store.Idea{
		ID: "idea-1", ClientID: "client-1", Headline: "Bread baking class",
		Summary: "Teach a class", Origin: store.OriginCurated, State: store.IdeaNew,
		Priority: "medium", CreatedAt: time.Now().UTC(),
	}))

	reply := env.say(t, "ideas")
	assert.Contains(t, reply, "Bread baking class")
}

func TestExitEndsSession(t *testing.T) {
	env := newEnv(t)
	env.seedClient(t)
	env.seedPendingPost(t, "post-1", "Fresh sourdough every morning")

	env.say(t, "pending")
	reply := env.say(t, "bye")
	assert.Contains(t, reply, "talk soon")

	// The list context is gone; an ordinal no longer resolves.
	reply = env.say(t, "1")
	assert.Contains(t, reply, "no list")
}

func TestPendingEmpty(t *testing.T) {
	env := newEnv(t)
	env.seedClient(t)

	reply := env.say(t, "pending")
	assert.Contains(t, reply, "No posts waiting")
}

func TestListCapsAtThree(t *testing.T) {
	env := newEnv(t)
	env.seedClient(t)
	for i := 1; i <= 5; i++ {
		env.seedPendingPost(t, fmt.Sprintf("post-%d", i), fmt.Sprintf("Caption %d", i))
	}

	reply := env.say(t, "pending")
	assert.Contains(t, reply, "3. ")
	assert.NotContains(t, reply, "4. ")
}

func TestConversationalDiscoveryFlow(t *testing.T) {
	env := newEnv(t)
	env.seedClient(t)
	env.seedPendingPost(t, "post-1", "Fresh sourdough every morning")

	reply := env.say(t, "Hi")
	assert.Contains(t, reply, "Corner Bakery")

	reply = env.say(t, "Social Media")
	assert.Contains(t, reply, "show me")

	reply = env.say(t, "show me what you got")
	assert.Contains(t, reply, "1. [facebook] Fresh sourdough every morning")

	reply = env.say(t, "First")
	assert.Contains(t, reply, "Fresh sourdough every morning")

	reply = env.say(t, "Approve")
	assert.Contains(t, reply, "Approved")

	require.Eventually(t, func() bool {
		post, err := env.mock.GetPost(context.Background(), "post-1")
		return err == nil && post.State == store.PostPublished
	}, 5*time.Second, 10*time.Millisecond)
}

func TestConcurrentDeliveriesForOnePhone(t *testing.T) {
	env := newEnv(t)
	env.seedClient(t)
	env.seedPendingPost(t, "post-1", "Fresh sourdough every morning")
	env.seedPendingPost(t, "post-2", "Meet our head baker")

	// Duplicate webhook deliveries arrive together; each turn must see a
	// fully written list, never a half-updated session.
	const deliveries = 8
	replies := make([]string, deliveries)
	var wg sync.WaitGroup
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			replies[i] = env.say(t, "pending")
		}(i)
	}
	wg.Wait()

	for _, reply := range replies {
		assert.Contains(t, reply, "1. [facebook] Fresh sourdough every morning")
		assert.Contains(t, reply, "2. [facebook] Meet our head baker")
	}

	// An ordinal after the dust settles still resolves against an intact list.
	reply := env.say(t, "first")
	assert.Contains(t, reply, "Fresh sourdough every morning")
}
