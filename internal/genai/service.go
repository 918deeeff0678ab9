// ABOUTME: Chat-model-backed implementation of the Generation Gateway
// ABOUTME: Builds brand-voice prompts, parses strict-JSON replies, bounds calls with timeout and retry

package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/2389/beacon/internal/retry"
	"github.com/2389/beacon/internal/store"
)

const defaultTimeout = 60 * time.Second

// Service implements Generator on top of an eino chat model.
type Service struct {
	chatModel model.BaseChatModel
	policy    retry.Policy
	timeout   time.Duration
	logger    *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// WithPolicy overrides the retry policy.
func WithPolicy(p retry.Policy) Option {
	return func(s *Service) { s.policy = p }
}

// NewService creates a Generation Gateway over the given chat model.
func NewService(chatModel model.BaseChatModel, opts ...Option) *Service {
	s := &Service{
		chatModel: chatModel,
		policy:    retry.DefaultPolicy,
		timeout:   defaultTimeout,
		logger:    slog.Default().With("component", "genai"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CurateIdeas asks the model for up to count ideas. Replies that parse to
// fewer ideas than requested are a partial success, not a failure.
func (s *Service) CurateIdeas(ctx context.Context, client *store.Client, count int) ([]IdeaDraft, error) {
	system := systemPrompt(client)
	user := fmt.Sprintf(
		`Generate %d social media content ideas for %s.
Respond with ONLY a JSON array, no prose:
[{"headline": "...", "summary": "..."}]
Headlines at most 60 characters, summaries one or two sentences.`,
		count, client.Name)

	content, err := s.generate(ctx, system, user)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationUnavailable, err)
	}

	var drafts []IdeaDraft
	if err := json.Unmarshal([]byte(extractJSON(content)), &drafts); err != nil {
		s.logger.Warn("unparseable curation reply", "client_id", client.ID, "error", err)
		return nil, fmt.Errorf("%w: parsing reply: %v", ErrGenerationUnavailable, err)
	}

	// Drop blanks, cap at requested count
	out := drafts[:0]
	for _, d := range drafts {
		if strings.TrimSpace(d.Summary) == "" {
			continue
		}
		if strings.TrimSpace(d.Headline) == "" {
			d.Headline = clip(d.Summary, 60)
		}
		out = append(out, d)
		if len(out) == count {
			break
		}
	}

	s.logger.Info("curated ideas", "client_id", client.ID, "requested", count, "returned", len(out))
	return out, nil
}

// DraftPost asks the model for one post body derived from an idea.
func (s *Service) DraftPost(ctx context.Context, client *store.Client, idea *store.Idea, channel string) (*PostDraft, error) {
	system := systemPrompt(client)
	user := fmt.Sprintf(
		`Write a %s post from this idea.
Idea: %s
%s
Respond with ONLY a JSON object, no prose:
{"caption": "...", "hashtags": "#a #b", "cta": "..."}`,
		channel, idea.Headline, idea.Summary)

	content, err := s.generate(ctx, system, user)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationUnavailable, err)
	}

	var draft PostDraft
	if err := json.Unmarshal([]byte(extractJSON(content)), &draft); err != nil {
		s.logger.Warn("unparseable draft reply", "client_id", client.ID, "idea_id", idea.ID, "error", err)
		return nil, fmt.Errorf("%w: parsing reply: %v", ErrGenerationUnavailable, err)
	}
	if strings.TrimSpace(draft.Caption) == "" {
		return nil, fmt.Errorf("%w: empty caption in reply", ErrGenerationUnavailable)
	}

	return &draft, nil
}

// RevisePost asks the model to rewrite a post per the contact's
// instructions, keeping the original as context.
func (s *Service) RevisePost(ctx context.Context, client *store.Client, post *store.Post, instructions string) (*PostDraft, error) {
	system := systemPrompt(client)
	user := fmt.Sprintf(
		`Revise this %s post.
Current caption: %s
Current hashtags: %s
Current call to action: %s
Requested change: %s
Respond with ONLY a JSON object, no prose:
{"caption": "...", "hashtags": "#a #b", "cta": "..."}`,
		post.Channel, post.Caption, post.Hashtags, post.CTA, instructions)

	content, err := s.generate(ctx, system, user)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationUnavailable, err)
	}

	var draft PostDraft
	if err := json.Unmarshal([]byte(extractJSON(content)), &draft); err != nil {
		s.logger.Warn("unparseable revision reply", "client_id", client.ID, "post_id", post.ID, "error", err)
		return nil, fmt.Errorf("%w: parsing reply: %v", ErrGenerationUnavailable, err)
	}
	if strings.TrimSpace(draft.Caption) == "" {
		return nil, fmt.Errorf("%w: empty caption in reply", ErrGenerationUnavailable)
	}
	return &draft, nil
}

// generate runs one model call under the timeout and retry budget.
func (s *Service) generate(ctx context.Context, system, user string) (string, error) {
	var content string
	err := retry.Do(ctx, s.policy, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		resp, err := s.chatModel.Generate(callCtx, []*schema.Message{
			schema.SystemMessage(system),
			schema.UserMessage(user),
		})
		if err != nil {
			return retry.Transient(fmt.Errorf("chat model: %w", err))
		}
		content = resp.Content
		return nil
	})
	return content, err
}

// systemPrompt builds the per-client system prompt from brand preferences.
func systemPrompt(client *store.Client) string {
	var b strings.Builder
	b.WriteString("You are a social media content assistant for ")
	b.WriteString(client.Name)
	b.WriteString(".")
	if client.BrandVoice != "" {
		b.WriteString(" Tone: ")
		b.WriteString(client.BrandVoice)
		b.WriteString(".")
	}
	if client.Instructions != "" {
		b.WriteString(" Instructions: ")
		b.WriteString(client.Instructions)
	}
	return b.String()
}

// extractJSON trims markdown fences and surrounding prose that models
// sometimes wrap around JSON replies.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.IndexAny(s, "[{")
	if start < 0 {
		return s
	}
	var end int
	if s[start] == '[' {
		end = strings.LastIndex(s, "]")
	} else {
		end = strings.LastIndex(s, "}")
	}
	if end > start {
		return s[start : end+1]
	}
	return s
}

func clip(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
