// Package chat implements the conversational surface. Inbound messages are
// resolved to a client by phone number, interpreted against the contact's
// session, and dispatched to the pipeline: listing and approving drafts,
// requesting revisions, and capturing new ideas with an optional image.
// Replies are plain text sized for a phone screen; slow work (drafting,
// publishing) runs through the scheduler with a push follow-up when done.
package chat
