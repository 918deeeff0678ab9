// ABOUTME: Conversation session state for the chat surface
// ABOUTME: Tracks where a contact is in the approve/submit flows between messages

package session

import (
	"sync"
	"time"
)

// Conversation states.
const (
	// StateIdle means no flow is in progress; the next message starts fresh.
	StateIdle = "idle"
	// StateAwaitingSelection means a numbered list was shown and the contact
	// is expected to pick an item.
	StateAwaitingSelection = "awaiting_selection"
	// StateAwaitingConfirmation means a single item was shown and the contact
	// is expected to approve, reject, or modify it.
	StateAwaitingConfirmation = "awaiting_confirmation"
	// StateAwaitingIdea means the contact said they have an idea and the next
	// message is the idea text itself.
	StateAwaitingIdea = "awaiting_idea"
	// StateAwaitingImage means an idea was captured and the contact may attach
	// an image or skip.
	StateAwaitingImage = "awaiting_image"
)

// Session holds one contact's conversation state. Sessions are keyed by
// phone number and expire after a period of inactivity, at which point the
// conversation restarts from idle.
//
// Webhook deliveries for one phone can arrive concurrently (the transport
// retries), so callers hold the session lock for the whole turn: Lock
// before reading any field, Unlock when the reply is built.
type Session struct {
	mu sync.Mutex

	ClientID string
	State    string

	// LastShownList holds the post ids presented in the most recent
	// numbered list, in display order. Ordinal selections resolve
	// against it.
	LastShownList []string

	// SelectedPostID is the post under confirmation, if any.
	SelectedPostID string

	// PendingIdeaText carries the idea text between the awaiting_idea and
	// awaiting_image steps.
	PendingIdeaText string

	// PendingImageURL carries an attached image through the intake flow.
	PendingImageURL string

	LastActivity time.Time
}

// Lock serializes one conversation turn. Concurrent deliveries for the same
// phone number take turns instead of interleaving field writes.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the turn.
func (s *Session) Unlock() { s.mu.Unlock() }

// Reset returns the session to idle, clearing any in-flight flow state but
// keeping the client binding.
func (s *Session) Reset() {
	s.State = StateIdle
	s.LastShownList = nil
	s.SelectedPostID = ""
	s.PendingIdeaText = ""
	s.PendingImageURL = ""
}
