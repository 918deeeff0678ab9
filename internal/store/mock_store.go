// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu      sync.RWMutex
	clients map[string]*Client // keyed by client ID
	byPhone map[string]string  // phone -> client ID
	ideas   map[string]*Idea   // keyed by idea ID
	posts   map[string]*Post   // keyed by post ID
	runs    map[string]*Run    // keyed by run ID

	// FailTransitions forces TransitionIdea/TransitionPost to return
	// ErrStaleState, simulating a concurrent claim.
	FailTransitions bool
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		clients: make(map[string]*Client),
		byPhone: make(map[string]string),
		ideas:   make(map[string]*Idea),
		posts:   make(map[string]*Post),
		runs:    make(map[string]*Run),
	}
}

// UpsertClient stores a client record (test seeding helper).
func (m *MockStore) UpsertClient(ctx context.Context, c *Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *c
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	m.clients[cp.ID] = &cp
	if cp.Phone != "" {
		m.byPhone[cp.Phone] = cp.ID
	}
	return nil
}

// DeleteClient removes a client record. Not part of the Store interface;
// tests use it to simulate a record disappearing between operations.
func (m *MockStore) DeleteClient(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.clients[id]
	if !ok {
		return ErrNotFound
	}
	delete(m.byPhone, c.Phone)
	delete(m.clients, id)
	return nil
}

// GetClient retrieves a client by ID.
func (m *MockStore) GetClient(ctx context.Context, id string) (*Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.clients[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// GetClientByPhone retrieves a client by channel handle.
func (m *MockStore) GetClientByPhone(ctx context.Context, phone string) (*Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byPhone[phone]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m.clients[id]
	return &cp, nil
}

// ListActiveClients returns active clients, oldest first.
func (m *MockStore) ListActiveClients(ctx context.Context) ([]*Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var clients []*Client
	for _, c := range m.clients {
		if c.Status == ClientActive {
			cp := *c
			clients = append(clients, &cp)
		}
	}
	sort.Slice(clients, func(i, j int) bool {
		if clients[i].CreatedAt.Equal(clients[j].CreatedAt) {
			return clients[i].ID < clients[j].ID
		}
		return clients[i].CreatedAt.Before(clients[j].CreatedAt)
	})
	return clients, nil
}

// CreateIdea stores a new idea.
func (m *MockStore) CreateIdea(ctx context.Context, idea *Idea) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *idea
	m.ideas[cp.ID] = &cp
	return nil
}

// GetIdea retrieves an idea by ID.
func (m *MockStore) GetIdea(ctx context.Context, id string) (*Idea, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	idea, ok := m.ideas[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *idea
	return &cp, nil
}

// ListIdeasByState returns the client's ideas in the given state, oldest first.
func (m *MockStore) ListIdeasByState(ctx context.Context, clientID, state string, limit int) ([]*Idea, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ideas []*Idea
	for _, idea := range m.ideas {
		if idea.ClientID == clientID && idea.State == state {
			cp := *idea
			ideas = append(ideas, &cp)
		}
	}
	sort.Slice(ideas, func(i, j int) bool {
		if ideas[i].CreatedAt.Equal(ideas[j].CreatedAt) {
			return ideas[i].ID < ideas[j].ID
		}
		return ideas[i].CreatedAt.Before(ideas[j].CreatedAt)
	})
	if limit > 0 && len(ideas) > limit {
		ideas = ideas[:limit]
	}
	return ideas, nil
}

// TransitionIdea moves an idea between states with an optimistic state check.
func (m *MockStore) TransitionIdea(ctx context.Context, id, from, to string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idea, ok := m.ideas[id]
	if !ok {
		return ErrNotFound
	}
	if m.FailTransitions || idea.State != from {
		return ErrStaleState
	}
	idea.State = to
	return nil
}

// CreatePost stores a new post.
func (m *MockStore) CreatePost(ctx context.Context, post *Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *post
	m.posts[cp.ID] = &cp
	return nil
}

// GetPost retrieves a post by ID.
func (m *MockStore) GetPost(ctx context.Context, id string) (*Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	post, ok := m.posts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *post
	return &cp, nil
}

// ListPostsByState returns the client's posts in the given state, oldest first.
func (m *MockStore) ListPostsByState(ctx context.Context, clientID, state string, limit int) ([]*Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var posts []*Post
	for _, post := range m.posts {
		if post.ClientID == clientID && post.State == state {
			cp := *post
			posts = append(posts, &cp)
		}
	}
	sort.Slice(posts, func(i, j int) bool {
		if posts[i].CreatedAt.Equal(posts[j].CreatedAt) {
			return posts[i].ID < posts[j].ID
		}
		return posts[i].CreatedAt.Before(posts[j].CreatedAt)
	})
	if limit > 0 && len(posts) > limit {
		posts = posts[:limit]
	}
	return posts, nil
}

// TransitionPost moves a post between states with an optimistic state check.
func (m *MockStore) TransitionPost(ctx context.Context, id, from, to string, update *PostUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	post, ok := m.posts[id]
	if !ok {
		return ErrNotFound
	}
	if m.FailTransitions || post.State != from {
		return ErrStaleState
	}
	post.State = to
	if update != nil {
		post.Diagnostic = update.Diagnostic
		post.PlatformPostID = update.PlatformPostID
	}
	post.UpdatedAt = time.Now()
	return nil
}

// UpdatePostContent updates a post's body fields.
func (m *MockStore) UpdatePostContent(ctx context.Context, id string, update *ContentUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	post, ok := m.posts[id]
	if !ok {
		return ErrNotFound
	}
	if update != nil {
		if update.Caption != nil {
			post.Caption = *update.Caption
		}
		if update.Hashtags != nil {
			post.Hashtags = *update.Hashtags
		}
		if update.CTA != nil {
			post.CTA = *update.CTA
		}
		if update.ImageURL != nil {
			post.ImageURL = *update.ImageURL
		}
	}
	post.UpdatedAt = time.Now()
	return nil
}

// CreateRun stores a new run record.
func (m *MockStore) CreateRun(ctx context.Context, run *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *run
	m.runs[cp.ID] = &cp
	return nil
}

// GetRun retrieves a run by ID.
func (m *MockStore) GetRun(ctx context.Context, id string) (*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, ok := m.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *run
	return &cp, nil
}

// UpdateRunStatus advances a run's status and records outcomes/error.
func (m *MockStore) UpdateRunStatus(ctx context.Context, id, status string, outcomes, errText string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[id]
	if !ok {
		return ErrNotFound
	}
	run.Status = status
	if outcomes != "" {
		run.Outcomes = outcomes
	}
	if errText != "" {
		run.Error = errText
	}
	now := time.Now()
	switch status {
	case RunRunning:
		if run.StartedAt == nil {
			run.StartedAt = &now
		}
	case RunCompleted, RunFailed:
		if run.FinishedAt == nil {
			run.FinishedAt = &now
		}
	}
	return nil
}

// Close is a no-op for the mock store.
func (m *MockStore) Close() error {
	return nil
}
