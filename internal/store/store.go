// ABOUTME: Store interface and data types for beacon persistence
// ABOUTME: Defines Client, Idea, Post, Run structs and the Store interface for database operations

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrStaleState is returned when a conditional state transition finds the
// record no longer in the expected state. Callers treat the item as already
// claimed by a concurrent run and skip it.
var ErrStaleState = errors.New("stale state")

// Client status values
const (
	ClientActive   = "active"
	ClientInactive = "inactive"
)

// Approval modes. Manager approval routes drafts through the chat/API
// approval flow; auto mode creates posts directly in the approved state.
const (
	ApprovalManager = "manager"
	ApprovalAuto    = "auto"
)

// Client represents a tenant account. Clients are created and edited
// externally; beacon only reads them.
type Client struct {
	ID           string
	Name         string
	Phone        string // messaging channel handle, E.164
	Status       string // "active" or "inactive"
	Channels     []string
	BrandVoice   string
	SourceURLs   []string // reference pages harvested for ideas
	Instructions string
	ApprovalMode string // "manager" or "auto"
	Cadence      string // free-form posting cadence note
	CreatedAt    time.Time
}

// Active reports whether the client is eligible for pipeline stages.
func (c *Client) Active() bool {
	return c.Status == ClientActive
}

// Idea lifecycle states
const (
	IdeaNew       = "new"
	IdeaDrafted   = "drafted"
	IdeaDiscarded = "discarded"
)

// Idea origins
const (
	OriginCurated         = "curated"
	OriginClientSubmitted = "client-submitted"
)

// Idea is a candidate content concept belonging to exactly one client.
type Idea struct {
	ID        string
	ClientID  string
	Headline  string
	Summary   string
	ImageURL  string
	Channel   string // requested target channel, empty to use the client default
	Origin    string // "curated" or "client-submitted"
	State     string // "new", "drafted", "discarded"
	Priority  string // "high", "medium", "low"
	CreatedAt time.Time
}

// Post approval states
const (
	PostPending   = "pending"
	PostApproved  = "approved"
	PostRejected  = "rejected"
	PostPublished = "published"
	PostFailed    = "failed"
)

// Post is a draft or published artifact derived from exactly one idea.
// Published, rejected and failed are terminal.
type Post struct {
	ID             string
	ClientID       string
	IdeaID         string
	Caption        string
	Hashtags       string
	CTA            string
	Channel        string // target platform: "facebook", "instagram", "linkedin"
	ImageURL       string
	State          string
	Diagnostic     string // failure detail, set when State is "failed"
	PlatformPostID string // remote id after successful publish
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Terminal reports whether the post can no longer change state.
func (p *Post) Terminal() bool {
	return p.State == PostPublished || p.State == PostRejected || p.State == PostFailed
}

// Run statuses
const (
	RunQueued    = "queued"
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// Run modes
const (
	ModeSync  = "sync"
	ModeAsync = "async"
)

// Run records one execution of a workflow (one or more stages) for one
// client. Immutable once it reaches a terminal status.
type Run struct {
	ID         string
	ClientID   string // empty for batch parent runs
	ParentID   string // set on per-client children of a batch run
	Stages     []string
	Mode       string // "sync" or "async"
	Status     string
	Outcomes   string // JSON-encoded per-stage outcomes
	Error      string
	CreatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
}

// Store defines the persistence operations beacon needs.
// The record store is the single source of truth; beacon never caches
// writable state beyond the ephemeral chat session.
type Store interface {
	// Clients (read-only from beacon's perspective)
	GetClient(ctx context.Context, id string) (*Client, error)
	GetClientByPhone(ctx context.Context, phone string) (*Client, error)
	ListActiveClients(ctx context.Context) ([]*Client, error)

	// Ideas
	CreateIdea(ctx context.Context, idea *Idea) error
	GetIdea(ctx context.Context, id string) (*Idea, error)
	// ListIdeasByState returns up to limit ideas for the client in the given
	// state, oldest first. limit <= 0 means no limit.
	ListIdeasByState(ctx context.Context, clientID, state string, limit int) ([]*Idea, error)
	// TransitionIdea moves an idea from one state to another. Returns
	// ErrStaleState if the idea is no longer in the expected state.
	TransitionIdea(ctx context.Context, id, from, to string) error

	// Posts
	CreatePost(ctx context.Context, post *Post) error
	GetPost(ctx context.Context, id string) (*Post, error)
	// ListPostsByState returns up to limit posts for the client in the given
	// state, oldest first. limit <= 0 means no limit.
	ListPostsByState(ctx context.Context, clientID, state string, limit int) ([]*Post, error)
	// TransitionPost moves a post from one state to another, optionally
	// recording a diagnostic and platform post id. Returns ErrStaleState if
	// the post is no longer in the expected state.
	TransitionPost(ctx context.Context, id, from, to string, update *PostUpdate) error
	// UpdatePostContent rewrites body fields without touching state. Nil
	// fields are left as they are.
	UpdatePostContent(ctx context.Context, id string, update *ContentUpdate) error

	// Runs
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	UpdateRunStatus(ctx context.Context, id, status string, outcomes, errText string) error

	Close() error
}

// PostUpdate carries optional fields written alongside a post state
// transition.
type PostUpdate struct {
	Diagnostic     string
	PlatformPostID string
}

// ContentUpdate carries the body fields a post revision may rewrite.
type ContentUpdate struct {
	Caption  *string
	Hashtags *string
	CTA      *string
	ImageURL *string
}
