// ABOUTME: Conversation service behind the WhatsApp webhook
// ABOUTME: Resolves the contact, interprets intent, drives the approval and intake flows

package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/2389/beacon/internal/interpret"
	"github.com/2389/beacon/internal/messenger"
	"github.com/2389/beacon/internal/pipeline"
	"github.com/2389/beacon/internal/records"
	"github.com/2389/beacon/internal/scheduler"
	"github.com/2389/beacon/internal/session"
	"github.com/2389/beacon/internal/store"
)

// listLimit caps how many posts one reply enumerates. Ordinal picks stay
// unambiguous on a phone screen at this size.
const listLimit = 3

const (
	replyUnknownContact = "Sorry, this number isn't set up with us. If you think that's a mistake, contact your account manager."
	replyInactive       = "Your account is currently paused, so I can't make changes right now. Contact your account manager to reactivate it."
	replyApologetic     = "Sorry, something went wrong on my end. Please try again in a moment."
	replyGoodbye        = "Okay, talk soon! Message me any time."
)

// Service drives the conversational surface. One instance serves all
// contacts; per-contact state lives in the session cache.
type Service struct {
	records  *records.Gateway
	engine   *pipeline.Engine
	sessions *session.Cache
	sched    *scheduler.Scheduler
	outbound messenger.Messenger
	logger   *slog.Logger
}

// New creates the conversation service.
func New(rec *records.Gateway, engine *pipeline.Engine, sessions *session.Cache, sched *scheduler.Scheduler, outbound messenger.Messenger) *Service {
	return &Service{
		records:  rec,
		engine:   engine,
		sessions: sessions,
		sched:    sched,
		outbound: outbound,
		logger:   slog.Default().With("component", "chat"),
	}
}

// HandleMessage processes one inbound message and returns the reply body.
// It never returns an error: internal failures degrade to an apology so the
// contact always hears something.
func (s *Service) HandleMessage(ctx context.Context, phone, text, imageURL string) string {
	client, err := s.records.GetClientByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return replyUnknownContact
		}
		s.logger.Error("resolving contact", "error", err)
		return replyApologetic
	}
	if !client.Active() {
		return replyInactive
	}

	sess := s.sessions.GetOrCreate(phone, client.ID)

	// The transport retries deliveries, so two copies of one message can
	// arrive together. Turns for one phone run one at a time.
	sess.Lock()
	defer sess.Unlock()

	// An attached image completes the intake flow regardless of the text.
	if sess.State == session.StateAwaitingImage {
		return s.handleAwaitingImage(ctx, client, phone, sess, text, imageURL)
	}

	res := interpret.Interpret(text, sess)
	switch res.Command {
	case interpret.CmdGreet:
		sess.Reset()
		return s.renderMenu(client)

	case interpret.CmdExit:
		s.sessions.Delete(phone)
		return replyGoodbye

	case interpret.CmdListPending:
		return s.listPending(ctx, client, sess)

	case interpret.CmdListAll:
		return s.listAll(ctx, client, sess)

	case interpret.CmdShowCategory:
		return s.showCategory(ctx, client, res.Argument)

	case interpret.CmdSelect:
		return s.selectPost(ctx, sess, res.PostID)

	case interpret.CmdApprove:
		return s.approve(ctx, client, phone, sess, res.PostID)

	case interpret.CmdReject:
		return s.reject(ctx, sess, res.PostID)

	case interpret.CmdModify:
		return s.modify(ctx, sess, res.PostID, res.Argument)

	case interpret.CmdSubmitIdea:
		return s.submitIdea(ctx, client, phone, sess, res.Argument, imageURL)

	case interpret.CmdDone:
		sess.Reset()
		return "Okay. Anything else? Say \"pending\" to review posts or share an idea."

	default:
		if res.Hint != "" {
			return res.Hint
		}
		return s.renderMenu(client)
	}
}

func (s *Service) renderMenu(client *store.Client) string {
	return fmt.Sprintf(
		"Hi %s! Here's what I can do:\n"+
			"• \"pending\" — review posts waiting for approval\n"+
			"• \"all\" — see everything in the works\n"+
			"• \"ideas\" — see the idea backlog\n"+
			"Or just tell me a content idea and I'll draft a post from it.",
		client.Name)
}

func (s *Service) listPending(ctx context.Context, client *store.Client, sess *session.Session) string {
	posts, err := s.records.ListPostsByState(ctx, client.ID, store.PostPending, listLimit)
	if err != nil {
		s.logger.Error("listing pending posts", "client_id", client.ID, "error", err)
		return replyApologetic
	}
	if len(posts) == 0 {
		sess.Reset()
		return "No posts waiting for review. Tell me an idea and I'll draft one!"
	}

	var b strings.Builder
	b.WriteString("Posts waiting for your review:\n")
	sess.LastShownList = sess.LastShownList[:0]
	for i, p := range posts {
		fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, p.Channel, clip(p.Caption, 80))
		sess.LastShownList = append(sess.LastShownList, p.ID)
	}
	b.WriteString("Reply with a number to see the full post.")
	sess.State = session.StateAwaitingSelection
	sess.SelectedPostID = ""
	return b.String()
}

func (s *Service) listAll(ctx context.Context, client *store.Client, sess *session.Session) string {
	states := []string{store.PostPending, store.PostApproved, store.PostPublished, store.PostFailed}
	var b strings.Builder
	b.WriteString("Everything in the works:\n")
	total := 0
	for _, state := range states {
		posts, err := s.records.ListPostsByState(ctx, client.ID, state, 0)
		if err != nil {
			s.logger.Error("listing posts", "client_id", client.ID, "state", state, "error", err)
			return replyApologetic
		}
		if len(posts) == 0 {
			continue
		}
		total += len(posts)
		fmt.Fprintf(&b, "%s (%d):\n", capitalize(state), len(posts))
		for _, p := range posts {
			fmt.Fprintf(&b, "  • [%s] %s\n", p.Channel, clip(p.Caption, 60))
		}
	}
	if total == 0 {
		return "Nothing in the works yet. Tell me an idea and I'll draft a post!"
	}
	sess.Reset()
	return strings.TrimRight(b.String(), "\n")
}

func (s *Service) showCategory(ctx context.Context, client *store.Client, category string) string {
	switch category {
	case "ideas":
		ideas, err := s.records.ListIdeasByState(ctx, client.ID, store.IdeaNew, 5)
		if err != nil {
			s.logger.Error("listing ideas", "client_id", client.ID, "error", err)
			return replyApologetic
		}
		if len(ideas) == 0 {
			return "The idea backlog is empty. Send me one!"
		}
		var b strings.Builder
		b.WriteString("Ideas waiting to be drafted:\n")
		for _, idea := range ideas {
			fmt.Fprintf(&b, "• %s\n", clip(idea.Headline, 70))
		}
		return strings.TrimRight(b.String(), "\n")
	case "posts":
		return "Want to see what's waiting for your review? Say \"show me\"."
	default:
		return "I can show \"ideas\", \"pending\", or \"all\"."
	}
}

func (s *Service) selectPost(ctx context.Context, sess *session.Session, postID string) string {
	post, err := s.records.GetPost(ctx, postID)
	if err != nil {
		s.logger.Error("loading post", "post_id", postID, "error", err)
		return replyApologetic
	}

	sess.State = session.StateAwaitingConfirmation
	sess.SelectedPostID = post.ID
	return renderPreview(post) + "\n\nReply \"approve\", \"reject\", or tell me what to change."
}

func (s *Service) approve(ctx context.Context, client *store.Client, phone string, sess *session.Session, postID string) string {
	err := s.records.TransitionPost(ctx, postID, store.PostPending, store.PostApproved, nil)
	if err != nil {
		if errors.Is(err, store.ErrStaleState) {
			sess.Reset()
			return "That post was already handled. Say \"pending\" to see what's still waiting."
		}
		s.logger.Error("approving post", "post_id", postID, "error", err)
		return replyApologetic
	}

	sess.Reset()
	_, err = s.sched.EnqueueWithNotify(ctx, client.ID, []string{pipeline.StagePublish}, scheduler.Opts{}, func(run *store.Run) {
		body := "Your approved post is live!"
		if run.Status != store.RunCompleted {
			body = "I couldn't publish your approved post. We'll look into it."
		}
		if err := s.outbound.Send(context.Background(), phone, body); err != nil {
			s.logger.Error("sending publish follow-up", "phone", phone, "error", err)
		}
	})
	if err != nil {
		s.logger.Error("queueing publish", "client_id", client.ID, "error", err)
		return "Approved! I'll publish it on the next run."
	}
	return "Approved! Publishing now — I'll confirm once it's live."
}

func (s *Service) reject(ctx context.Context, sess *session.Session, postID string) string {
	err := s.records.TransitionPost(ctx, postID, store.PostPending, store.PostRejected, nil)
	if err != nil {
		if errors.Is(err, store.ErrStaleState) {
			sess.Reset()
			return "That post was already handled. Say \"pending\" to see what's still waiting."
		}
		s.logger.Error("rejecting post", "post_id", postID, "error", err)
		return replyApologetic
	}
	sess.Reset()
	return "Rejected — it won't be published. Say \"pending\" to review the rest."
}

func (s *Service) modify(ctx context.Context, sess *session.Session, postID, instructions string) string {
	if strings.TrimSpace(instructions) == "" {
		return "Tell me what to change, e.g. \"change the caption to mention our hours\"."
	}

	post, err := s.engine.ModifyPost(ctx, postID, instructions)
	if err != nil {
		if errors.Is(err, pipeline.ErrPostNotModifiable) {
			sess.Reset()
			return "That post was already decided, so I can't change it anymore."
		}
		s.logger.Error("modifying post", "post_id", postID, "error", err)
		return "I couldn't rework that just now. Try again in a moment."
	}

	sess.State = session.StateAwaitingConfirmation
	sess.SelectedPostID = post.ID
	return "Here's the new version:\n\n" + renderPreview(post) + "\n\nReply \"approve\", \"reject\", or keep tweaking."
}

func (s *Service) submitIdea(ctx context.Context, client *store.Client, phone string, sess *session.Session, text, imageURL string) string {
	if strings.TrimSpace(text) == "" {
		sess.State = session.StateAwaitingIdea
		return "Great — tell me your idea!"
	}
	if imageURL != "" {
		return s.finalizeIdea(ctx, client, phone, sess, text, imageURL)
	}

	sess.PendingIdeaText = text
	sess.State = session.StateAwaitingImage
	return "Got it! Want to attach an image? Send one (or a link), or say \"skip\"."
}

func (s *Service) handleAwaitingImage(ctx context.Context, client *store.Client, phone string, sess *session.Session, text, imageURL string) string {
	idea := sess.PendingIdeaText

	if imageURL != "" {
		return s.finalizeIdea(ctx, client, phone, sess, idea, imageURL)
	}

	res := interpret.Interpret(text, sess)
	switch {
	case res.Command == interpret.CmdExit:
		s.sessions.Delete(phone)
		return "No problem, I dropped that idea. " + replyGoodbye
	case res.Command == interpret.CmdDone:
		return s.finalizeIdea(ctx, client, phone, sess, idea, "")
	case strings.HasPrefix(strings.TrimSpace(text), "http"):
		return s.finalizeIdea(ctx, client, phone, sess, idea, strings.TrimSpace(text))
	default:
		return "Send an image (or a link to one), or say \"skip\" to go without."
	}
}

// finalizeIdea stores the idea and kicks off drafting in the background.
// The contact gets a push message when the draft is ready.
func (s *Service) finalizeIdea(ctx context.Context, client *store.Client, phone string, sess *session.Session, text, imageURL string) string {
	idea, err := s.engine.SubmitIdea(ctx, client.ID, text, imageURL, "")
	if err != nil {
		s.logger.Error("submitting idea", "client_id", client.ID, "error", err)
		return replyApologetic
	}
	sess.Reset()

	_, err = s.sched.EnqueueWithNotify(ctx, client.ID, []string{pipeline.StageDraft}, scheduler.Opts{NumPosts: 1}, func(run *store.Run) {
		body := "Your draft is ready! Say \"pending\" to review it."
		if run.Status != store.RunCompleted {
			body = "I couldn't draft a post from your idea just now. I'll keep it in the backlog and retry later."
		}
		if err := s.outbound.Send(context.Background(), phone, body); err != nil {
			s.logger.Error("sending draft follow-up", "phone", phone, "error", err)
		}
	})
	if err != nil {
		s.logger.Warn("queueing draft", "idea_id", idea.ID, "error", err)
		return "Idea saved! I'll draft a post from it on the next run."
	}
	return "Idea saved! I'm drafting a post from it now — I'll message you when it's ready."
}

// renderPreview formats one post the way it would read on the platform.
func renderPreview(post *store.Post) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]\n%s", post.Channel, post.Caption)
	if post.Hashtags != "" {
		b.WriteString("\n" + post.Hashtags)
	}
	if post.CTA != "" {
		b.WriteString("\n" + post.CTA)
	}
	if post.ImageURL != "" {
		b.WriteString("\n📷 " + post.ImageURL)
	}
	return b.String()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func clip(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
