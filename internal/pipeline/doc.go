// Package pipeline implements the content workflow stages.
//
// Curate asks the generator for fresh ideas and persists them. Draft claims
// new ideas via conditional state transitions and turns each into a post,
// pending manager approval or directly approved for auto-mode clients.
// Publish delivers approved posts through the channel adapters, retrying
// transient failures and failing posts with a diagnostic on permanent ones.
// FullWorkflow chains the three, short-circuiting on a fatal stage error.
//
// Every stage checks the client is active before side effects and returns a
// StageResult rather than leaking raw gateway errors.
package pipeline
