// ABOUTME: Keyword-driven interpreter turning inbound chat text into commands
// ABOUTME: Prioritized rule table; ordinals resolve against the session's last shown list

package interpret

import (
	"strconv"
	"strings"

	"github.com/2389/beacon/internal/session"
)

// Command is one of the closed set of actions the chat surface understands.
type Command string

const (
	CmdGreet        Command = "greet"
	CmdShowCategory Command = "show_category"
	CmdListPending  Command = "list_pending_posts"
	CmdListAll      Command = "list_all_posts"
	CmdSelect       Command = "select_item"
	CmdApprove      Command = "approve"
	CmdReject       Command = "reject"
	CmdModify       Command = "modify"
	CmdSubmitIdea   Command = "submit_idea"
	CmdDone         Command = "done"
	CmdExit         Command = "exit"
	CmdUnknown      Command = "unknown"
)

// Result is the interpreted intent of one inbound message. Interpretation
// never fails; ambiguous input comes back as CmdUnknown with a Hint the
// caller can relay verbatim.
type Result struct {
	Command Command

	// PostID is the resolved target for select/approve/reject/modify, taken
	// from the ordinal lookup or the session's current selection.
	PostID string

	// Argument carries free text: modification instructions for CmdModify,
	// idea text for CmdSubmitIdea.
	Argument string

	// Hint is a clarification to show the contact when Command is CmdUnknown
	// or a target could not be resolved.
	Hint string
}

// rule matches a normalized message against fixed keywords and prefixes.
// Exact keywords win over prefixes; the table is checked in order.
type rule struct {
	cmd      Command
	arg      string   // fixed argument set on keyword matches
	keywords []string // whole-message matches
	prefixes []string // prefix matches; the remainder becomes the argument
}

var rules = []rule{
	{cmd: CmdExit,
		keywords: []string{"exit", "quit", "stop", "cancel", "bye", "goodbye"}},
	{cmd: CmdGreet,
		keywords: []string{"hi", "hello", "hey", "good morning", "good afternoon", "good evening", "start", "menu"}},
	{cmd: CmdListPending,
		keywords: []string{"pending", "posts", "show posts", "show pending", "review", "what's pending", "whats pending", "show me", "show me what you got", "what do you have", "what have you got"}},
	{cmd: CmdListAll,
		keywords: []string{"all", "show all", "all posts", "everything", "history"}},
	{cmd: CmdShowCategory, arg: "ideas",
		keywords: []string{"ideas", "show ideas", "my ideas"}},
	{cmd: CmdShowCategory, arg: "posts",
		keywords: []string{"social media", "social media posts", "content", "social"}},
	{cmd: CmdApprove,
		keywords: []string{"approve", "approved", "yes", "y", "ok", "okay", "looks good", "go ahead", "publish", "publish it", "ship it"}},
	{cmd: CmdReject,
		keywords: []string{"reject", "rejected", "no", "n", "discard", "delete", "scrap it", "no thanks"}},
	{cmd: CmdDone,
		keywords: []string{"done", "skip", "none", "nothing", "that's all", "thats all"}},
	{cmd: CmdModify,
		prefixes: []string{"modify", "change", "edit", "revise", "rewrite", "update", "make it"}},
	{cmd: CmdSubmitIdea,
		keywords: []string{"i have an idea", "new idea", "got an idea"},
		prefixes: []string{"idea:", "idea "}},
}

var ordinalWords = map[string]int{
	"first":  1,
	"second": 2,
	"third":  3,
	"last":   -1,
}

// Interpret classifies one inbound message in the context of the contact's
// session. The session is read, never mutated.
func Interpret(text string, sess *session.Session) Result {
	norm := normalize(text)
	if norm == "" {
		return Result{Command: CmdUnknown, Hint: "I didn't catch that. Say \"pending\" to review posts or share an idea."}
	}

	// Free text is the payload in the intake states, so explicit commands
	// are only consulted for the short control words there.
	if sess != nil && (sess.State == session.StateAwaitingIdea || sess.State == session.StateAwaitingImage) {
		if matchKeywords(norm, rules[0].keywords) { // exit
			return Result{Command: CmdExit}
		}
		if matchKeywords(norm, findRule(CmdDone).keywords) {
			return Result{Command: CmdDone}
		}
		return Result{Command: CmdSubmitIdea, Argument: strings.TrimSpace(text)}
	}

	for _, r := range rules {
		if matchKeywords(norm, r.keywords) {
			return resolveTarget(Result{Command: r.cmd, Argument: r.arg}, sess)
		}
		for _, p := range r.prefixes {
			if strings.HasPrefix(norm, p) {
				arg := strings.TrimSpace(text[len(p):])
				return resolveTarget(Result{Command: r.cmd, Argument: arg}, sess)
			}
		}
	}

	if n, ok := parseOrdinal(norm); ok {
		return resolveOrdinal(n, sess)
	}

	// Anything else is treated as an idea the contact wants captured.
	return Result{Command: CmdSubmitIdea, Argument: strings.TrimSpace(text)}
}

// resolveTarget fills in the post a confirmation-style command refers to.
func resolveTarget(res Result, sess *session.Session) Result {
	switch res.Command {
	case CmdApprove, CmdReject, CmdModify:
		if sess == nil || sess.SelectedPostID == "" {
			res.Command = CmdUnknown
			res.Hint = "Pick a post first. Say \"pending\" to see what's waiting."
			return res
		}
		res.PostID = sess.SelectedPostID
	}
	return res
}

func resolveOrdinal(n int, sess *session.Session) Result {
	if sess == nil || len(sess.LastShownList) == 0 {
		return Result{Command: CmdUnknown,
			Hint: "There's no list to pick from. Say \"pending\" to see posts."}
	}
	if n == -1 {
		n = len(sess.LastShownList)
	}
	if n < 1 || n > len(sess.LastShownList) {
		return Result{Command: CmdUnknown,
			Hint: "That number isn't on the list. Pick one of the options shown."}
	}
	return Result{Command: CmdSelect, PostID: sess.LastShownList[n-1]}
}

func parseOrdinal(norm string) (int, bool) {
	if n, err := strconv.Atoi(norm); err == nil {
		return n, true
	}
	// "number 2", "option 2", "#2"
	for _, p := range []string{"number ", "option ", "post ", "#"} {
		if rest, ok := strings.CutPrefix(norm, p); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(rest)); err == nil {
				return n, true
			}
		}
	}
	if n, ok := ordinalWords[norm]; ok {
		return n, true
	}
	return 0, false
}

func matchKeywords(norm string, keywords []string) bool {
	for _, k := range keywords {
		if norm == k {
			return true
		}
	}
	return false
}

func findRule(cmd Command) rule {
	for _, r := range rules {
		if r.cmd == cmd {
			return r
		}
	}
	return rule{}
}

func normalize(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	s = strings.TrimRight(s, ".!?")
	return strings.Join(strings.Fields(s), " ")
}
