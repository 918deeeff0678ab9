// ABOUTME: Generation Gateway interface and draft types
// ABOUTME: Defines what the pipeline needs from the content-generation service

package genai

import (
	"context"
	"errors"

	"github.com/2389/beacon/internal/store"
)

// ErrGenerationUnavailable is returned when the generation service cannot
// produce content after the retry budget is exhausted.
var ErrGenerationUnavailable = errors.New("generation service unavailable")

// IdeaDraft is one generated content concept, before persistence.
type IdeaDraft struct {
	Headline string `json:"headline"`
	Summary  string `json:"summary"`
}

// PostDraft is one generated post body, before persistence.
type PostDraft struct {
	Caption  string `json:"caption"`
	Hashtags string `json:"hashtags"`
	CTA      string `json:"cta"`
}

// Generator produces content for a client. Implementations bound every call
// with a timeout and the shared retry policy.
type Generator interface {
	// CurateIdeas requests up to count content ideas tailored to the client.
	// Partial results (fewer than count) are returned without error.
	CurateIdeas(ctx context.Context, client *store.Client, count int) ([]IdeaDraft, error)

	// DraftPost turns one idea into a post body for the given channel.
	DraftPost(ctx context.Context, client *store.Client, idea *store.Idea, channel string) (*PostDraft, error)

	// RevisePost rewrites an existing post per the contact's instructions.
	RevisePost(ctx context.Context, client *store.Client, post *store.Post, instructions string) (*PostDraft, error)
}
