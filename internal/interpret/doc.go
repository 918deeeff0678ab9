// Package interpret turns free-form inbound messages into a closed command
// vocabulary. Matching is a prioritized keyword/prefix table over normalized
// text; numeric and word ordinals resolve against the list most recently
// shown to the contact. Interpretation never returns an error: input that
// can't be classified comes back as CmdUnknown with a clarification hint,
// and unmatched free text is captured as a submitted idea.
package interpret
