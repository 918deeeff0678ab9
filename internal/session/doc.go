// Package session tracks conversational state for the chat surface.
//
// Each contact gets a Session holding where they are in the current flow
// (picking from a list, confirming a post, submitting an idea). Sessions
// live in an in-memory TTL cache; after fifteen minutes of inactivity the
// conversation silently restarts from idle.
package session
