// ABOUTME: Tests for the chat message interpreter
// ABOUTME: Covers keyword priority, ordinal resolution, and state-dependent intake

package interpret

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/2389/beacon/internal/session"
)

func idleSession() *session.Session {
	return &session.Session{ClientID: "client-1", State: session.StateIdle}
}

func TestInterpretGreetings(t *testing.T) {
	for _, msg := range []string{"hi", "Hello!", "  HEY  ", "good morning"} {
		res := Interpret(msg, idleSession())
		assert.Equal(t, CmdGreet, res.Command, "message %q", msg)
	}
}

func TestInterpretExit(t *testing.T) {
	for _, msg := range []string{"exit", "quit", "bye", "Stop"} {
		res := Interpret(msg, idleSession())
		assert.Equal(t, CmdExit, res.Command, "message %q", msg)
	}
}

func TestInterpretListing(t *testing.T) {
	assert.Equal(t, CmdListPending, Interpret("pending", idleSession()).Command)
	assert.Equal(t, CmdListPending, Interpret("show posts", idleSession()).Command)
	assert.Equal(t, CmdListAll, Interpret("show all", idleSession()).Command)

	res := Interpret("show ideas", idleSession())
	assert.Equal(t, CmdShowCategory, res.Command)
	assert.Equal(t, "ideas", res.Argument)
}

func TestInterpretOrdinals(t *testing.T) {
	sess := idleSession()
	sess.State = session.StateAwaitingSelection
	sess.LastShownList = []string{"post-a", "post-b", "post-c"}

	cases := map[string]string{
		"1":        "post-a",
		"2":        "post-b",
		"first":    "post-a",
		"third":    "post-c",
		"last":     "post-c",
		"number 2": "post-b",
		"#3":       "post-c",
	}
	for msg, want := range cases {
		res := Interpret(msg, sess)
		assert.Equal(t, CmdSelect, res.Command, "message %q", msg)
		assert.Equal(t, want, res.PostID, "message %q", msg)
	}
}

func TestInterpretOrdinalOutOfRange(t *testing.T) {
	sess := idleSession()
	sess.LastShownList = []string{"post-a"}

	res := Interpret("4", sess)
	assert.Equal(t, CmdUnknown, res.Command)
	assert.NotEmpty(t, res.Hint)
}

func TestInterpretOrdinalWithoutList(t *testing.T) {
	res := Interpret("2", idleSession())
	assert.Equal(t, CmdUnknown, res.Command)
	assert.NotEmpty(t, res.Hint)
}

func TestInterpretApproveRequiresSelection(t *testing.T) {
	res := Interpret("approve", idleSession())
	assert.Equal(t, CmdUnknown, res.Command)
	assert.NotEmpty(t, res.Hint)
}

func TestInterpretApproveWithSelection(t *testing.T) {
	sess := idleSession()
	sess.State = session.StateAwaitingConfirmation
	sess.SelectedPostID = "post-b"

	res := Interpret("yes", sess)
	assert.Equal(t, CmdApprove, res.Command)
	assert.Equal(t, "post-b", res.PostID)

	res = Interpret("no thanks", sess)
	assert.Equal(t, CmdReject, res.Command)
	assert.Equal(t, "post-b", res.PostID)
}

func TestInterpretModify(t *testing.T) {
	sess := idleSession()
	sess.SelectedPostID = "post-b"

	res := Interpret("change the caption to mention our summer sale", sess)
	assert.Equal(t, CmdModify, res.Command)
	assert.Equal(t, "post-b", res.PostID)
	assert.Equal(t, "the caption to mention our summer sale", res.Argument)
}

func TestInterpretIdeaPrefix(t *testing.T) {
	res := Interpret("idea: behind the scenes at the bakery", idleSession())
	assert.Equal(t, CmdSubmitIdea, res.Command)
	assert.Equal(t, "behind the scenes at the bakery", res.Argument)
}

func TestInterpretFreeTextFallsBackToIdea(t *testing.T) {
	res := Interpret("we're launching oat milk lattes next week", idleSession())
	assert.Equal(t, CmdSubmitIdea, res.Command)
	assert.Equal(t, "we're launching oat milk lattes next week", res.Argument)
}

func TestInterpretIntakeStatesCaptureFreeText(t *testing.T) {
	sess := idleSession()
	sess.State = session.StateAwaitingIdea

	// Words that would normally be commands are still payload here.
	res := Interpret("publish a recap of our all hands", sess)
	assert.Equal(t, CmdSubmitIdea, res.Command)
	assert.Equal(t, "publish a recap of our all hands", res.Argument)

	// Except the control words for skipping and bailing out.
	assert.Equal(t, CmdDone, Interpret("skip", sess).Command)
	assert.Equal(t, CmdExit, Interpret("cancel", sess).Command)
}

func TestInterpretEmpty(t *testing.T) {
	res := Interpret("   ", idleSession())
	assert.Equal(t, CmdUnknown, res.Command)
	assert.NotEmpty(t, res.Hint)
}

func TestInterpretNilSession(t *testing.T) {
	assert.Equal(t, CmdGreet, Interpret("hello", nil).Command)
	assert.Equal(t, CmdUnknown, Interpret("approve", nil).Command)
}

func TestInterpretCategoryAndCasualList(t *testing.T) {
	res := Interpret("Social Media", idleSession())
	assert.Equal(t, CmdShowCategory, res.Command)
	assert.Equal(t, "posts", res.Argument)

	assert.Equal(t, CmdListPending, Interpret("show me what you got", idleSession()).Command)
	assert.Equal(t, CmdListPending, Interpret("show me", idleSession()).Command)
}
